package cmd

import (
	"context"
	"fmt"

	"agentgate/internal/broker"
	"agentgate/internal/config"
	"agentgate/internal/gateway"
	"agentgate/internal/poller"
	"agentgate/internal/provisioner"
	"agentgate/internal/secrets"

	"github.com/prometheus/client_golang/prometheus"
)

// loadConfig reads and validates the configuration for one invocation. The
// returned path names the file that was loaded; it is empty when built-in
// defaults were used.
func loadConfig() (config.Config, string, error) {
	cfg, path, err := config.Load(rootConfigPath)
	if err != nil {
		return config.Config{}, "", err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, path, nil
}

// newSecretStore builds the secret store selected by the config. The auto
// source layers environment overrides over the durable parameter store so
// local runs never need cloud access for secrets they already have in the
// environment.
func newSecretStore(ctx context.Context, cfg config.Config) (secrets.Store, error) {
	switch cfg.Secrets.Source {
	case config.SecretSourceEnv:
		return secrets.NewEnvStore(), nil
	case config.SecretSourceSSM:
		store, err := secrets.NewSSMStore(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("secret store: %w", err)
		}
		return store, nil
	case config.SecretSourceAuto:
		if cfg.Region == "" {
			return secrets.NewEnvStore(), nil
		}
		ssm, err := secrets.NewSSMStore(ctx, cfg.Region)
		if err != nil {
			return nil, fmt.Errorf("secret store: %w", err)
		}
		return secrets.NewChain(secrets.NewEnvStore(), ssm), nil
	default:
		return nil, fmt.Errorf("unknown secret source %q", cfg.Secrets.Source)
	}
}

// newProvisioner wires the control-plane client, status poller, and secret
// store into a provisioner configured from cfg.
func newProvisioner(ctx context.Context, cfg config.Config) (*provisioner.Provisioner, error) {
	api, err := gateway.NewClient(ctx, cfg.Region)
	if err != nil {
		return nil, err
	}

	store, err := newSecretStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return provisioner.New(api, poller.New(api), store,
		provisioner.WithWaitTimeout(cfg.Provisioning.WaitTimeoutDuration()),
		provisioner.WithRetryBudget(cfg.Provisioning.RetryBudgetDuration()),
	), nil
}

// newBroker builds the outbound token broker configured from cfg.
func newBroker(ctx context.Context, cfg config.Config) (*broker.Broker, error) {
	store, err := newSecretStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return broker.New(store,
		broker.WithSafetyMargin(cfg.Broker.SafetyMarginDuration()),
		broker.WithMaxAttempts(cfg.Broker.MaxAttempts),
	), nil
}

// newBrokerWithRegistry is the serve-mode variant: its metrics land in the
// given registry so a rebuilt stack never collides with collectors from the
// previous one.
func newBrokerWithRegistry(store secrets.Store, cfg config.Config, reg prometheus.Registerer) *broker.Broker {
	return broker.New(store,
		broker.WithSafetyMargin(cfg.Broker.SafetyMarginDuration()),
		broker.WithMaxAttempts(cfg.Broker.MaxAttempts),
		broker.WithRegisterer(reg),
	)
}

// outboundIdentity derives the broker identity for the configured backend
// credential. Only secret references travel here, never secret values.
func outboundIdentity(cfg config.Config) broker.Identity {
	cp := cfg.CredentialProvider
	return broker.Identity{
		Name:            cp.Name,
		Issuer:          cp.Issuer,
		Audience:        cp.Audience,
		Scopes:          cp.Scopes,
		ClientIDRef:     cp.ClientIDRef,
		ClientSecretRef: cp.ClientSecretRef,
	}
}
