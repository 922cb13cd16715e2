package config

import (
	"fmt"
	"time"
)

// Secret source selection for the secrets chain.
const (
	// SecretSourceAuto reads environment overrides first and falls back to
	// the durable parameter store.
	SecretSourceAuto = "auto"
	// SecretSourceEnv reads secrets from the environment only.
	SecretSourceEnv = "env"
	// SecretSourceSSM reads secrets from the parameter store only.
	SecretSourceSSM = "ssm"
)

// Default secret store paths for the backend OAuth client credentials.
const (
	DefaultClientIDRef     = "/agentgate/oauth/client_id"
	DefaultClientSecretRef = "/agentgate/oauth/client_secret"
)

// Config is the top-level configuration structure for agentgate. One Config
// describes one deployment: a gateway, its credential provider, and the
// backend targets attached to it.
type Config struct {
	Region             string                   `yaml:"region,omitempty"` // Control-plane region (default: $AGENTGATE_REGION or $AWS_REGION)
	Gateway            GatewayConfig            `yaml:"gateway"`
	Inbound            InboundConfig            `yaml:"inbound"`
	CredentialProvider CredentialProviderConfig `yaml:"credentialProvider"`
	Targets            []TargetConfig           `yaml:"targets,omitempty"`
	Secrets            SecretsConfig            `yaml:"secrets,omitempty"`
	Provisioning       ProvisioningConfig       `yaml:"provisioning,omitempty"`
	Broker             BrokerConfig             `yaml:"broker,omitempty"`
	Serve              ServeConfig              `yaml:"serve,omitempty"`
}

// GatewayConfig names the gateway resource to provision.
type GatewayConfig struct {
	Name        string `yaml:"name"`                  // Gateway resource name (required)
	RoleARN     string `yaml:"roleArn,omitempty"`     // Execution role the gateway assumes
	Description string `yaml:"description,omitempty"` // Free-form description
}

// InboundConfig describes how agent tokens are verified.
type InboundConfig struct {
	Issuer    string   `yaml:"issuer"`              // Identity provider issuing agent tokens (required)
	Audiences []string `yaml:"audiences,omitempty"` // Accepted audiences; empty accepts any
	JWKSURL   string   `yaml:"jwksUrl,omitempty"`   // Key set location when not at the issuer's well-known path
	Leeway    string   `yaml:"leeway,omitempty"`    // Clock skew tolerance, e.g. "30s" (default: 30s)
}

// LeewayDuration returns the parsed leeway, falling back to the default.
func (c InboundConfig) LeewayDuration() time.Duration {
	return durationOrDefault(c.Leeway, 30*time.Second)
}

// CredentialProviderConfig describes the outbound OAuth credential.
type CredentialProviderConfig struct {
	Name            string   `yaml:"name"`                      // Credential provider resource name (required)
	Issuer          string   `yaml:"issuer"`                    // Identity provider for the backend exchange (required)
	Audience        string   `yaml:"audience,omitempty"`        // Audience parameter of the exchange
	Scopes          []string `yaml:"scopes,omitempty"`          // Scopes to request
	ClientIDRef     string   `yaml:"clientIdRef,omitempty"`     // Secret store path of the client id
	ClientSecretRef string   `yaml:"clientSecretRef,omitempty"` // Secret store path of the client secret
}

// TargetConfig attaches one backend MCP server to the gateway.
type TargetConfig struct {
	Name     string `yaml:"name"`     // Target resource name (required)
	Endpoint string `yaml:"endpoint"` // Backend MCP endpoint URL (required)
}

// SecretsConfig selects where client credentials are read from.
type SecretsConfig struct {
	Source string `yaml:"source,omitempty"` // auto, env, or ssm (default: auto)
}

// ProvisioningConfig tunes how long provisioning operations wait.
type ProvisioningConfig struct {
	WaitTimeout string `yaml:"waitTimeout,omitempty"` // Max wait for one resource to settle, e.g. "5m" (default: 5m)
	RetryBudget string `yaml:"retryBudget,omitempty"` // Max time spent retrying one transient control-plane call (default: 1m)
}

// WaitTimeoutDuration returns the parsed wait timeout.
func (c ProvisioningConfig) WaitTimeoutDuration() time.Duration {
	return durationOrDefault(c.WaitTimeout, 5*time.Minute)
}

// RetryBudgetDuration returns the parsed retry budget.
func (c ProvisioningConfig) RetryBudgetDuration() time.Duration {
	return durationOrDefault(c.RetryBudget, time.Minute)
}

// BrokerConfig tunes the outbound token broker.
type BrokerConfig struct {
	SafetyMargin string `yaml:"safetyMargin,omitempty"` // Minimum remaining token lifetime to serve from cache (default: 60s)
	MaxAttempts  int    `yaml:"maxAttempts,omitempty"`  // Exchange attempts per token request (default: 3)
}

// SafetyMarginDuration returns the parsed safety margin.
func (c BrokerConfig) SafetyMarginDuration() time.Duration {
	return durationOrDefault(c.SafetyMargin, 60*time.Second)
}

// ServeConfig configures the local proxy listener.
type ServeConfig struct {
	Host        string `yaml:"host,omitempty"`        // Address to bind (default: 127.0.0.1)
	Port        int    `yaml:"port,omitempty"`        // Port to bind (default: 8080)
	Backend     string `yaml:"backend,omitempty"`     // Backend endpoint override (default: first target's endpoint)
	WatchConfig *bool  `yaml:"watchConfig,omitempty"` // Reload on config file changes (default: true)
}

// Watch reports whether the serve command should reload on file changes.
func (c ServeConfig) Watch() bool {
	if c.WatchConfig == nil {
		return true
	}
	return *c.WatchConfig
}

// Addr returns the listen address in host:port form.
func (c ServeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BackendEndpoint returns the endpoint the proxy forwards to.
func (c Config) BackendEndpoint() string {
	if c.Serve.Backend != "" {
		return c.Serve.Backend
	}
	if len(c.Targets) > 0 {
		return c.Targets[0].Endpoint
	}
	return ""
}

func durationOrDefault(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
