package types

import "time"

// Credentials are resolved cloud credentials used to build a model runtime.
type Credentials struct {
	AccessKeyID     string    `json:"access_key_id"`
	SecretAccessKey string    `json:"-"`
	SessionToken    string    `json:"-"`
	Region          string    `json:"region"`
	Expires         time.Time `json:"expires,omitempty"`
}

// Valid reports whether the key pair and region are all set.
func (c Credentials) Valid() bool {
	return c.AccessKeyID != "" && c.SecretAccessKey != "" && c.Region != ""
}

// Expired reports whether temporary credentials have passed their expiry.
func (c Credentials) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !now.Before(c.Expires)
}
