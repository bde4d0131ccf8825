package tlsutil

import (
	"crypto/tls"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientConfig_AEADOnly(t *testing.T) {
	cfg := ClientConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	insecure := tls.InsecureCipherSuites()
	for _, cs := range cfg.CipherSuites {
		name := tls.CipherSuiteName(cs)
		assert.False(t, slices.ContainsFunc(insecure, func(s *tls.CipherSuite) bool { return s.ID == cs }), name)
		assert.Regexp(t, `GCM|CHACHA20_POLY1305`, name)
	}
}

func TestConfigs_AreIndependent(t *testing.T) {
	a := ClientConfig()
	a.CipherSuites[0] = 0
	a.Certificates = []tls.Certificate{{}}

	b := ServerConfig()
	assert.NotZero(t, b.CipherSuites[0])
	assert.Empty(t, b.Certificates)
	assert.Equal(t, []tls.CurveID{tls.X25519, tls.CurveP256}, b.CurvePreferences)
}

func TestHTTPClient(t *testing.T) {
	client := HTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, client.Timeout)

	tr := Transport()
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, 32, tr.MaxIdleConnsPerHost)
}
