// Package config loads AgentDash configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// environment variables named <PREFIX>_<SECTION>_<FIELD> (for example
// AGENTDASH_SANDBOX_TIMEOUT=5s). Validate reports every invalid field in one
// joined error.
package config
