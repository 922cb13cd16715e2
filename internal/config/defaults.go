package config

// Default returns the built-in configuration. Loaded files are merged on
// top of it, so every field a file omits keeps its default.
func Default() Config {
	return Config{
		Inbound: InboundConfig{
			Leeway: "30s",
		},
		CredentialProvider: CredentialProviderConfig{
			ClientIDRef:     DefaultClientIDRef,
			ClientSecretRef: DefaultClientSecretRef,
		},
		Secrets: SecretsConfig{
			Source: SecretSourceAuto,
		},
		Provisioning: ProvisioningConfig{
			WaitTimeout: "5m",
			RetryBudget: "1m",
		},
		Broker: BrokerConfig{
			SafetyMargin: "60s",
			MaxAttempts:  3,
		},
		Serve: ServeConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
	}
}
