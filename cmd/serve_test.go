package cmd

import (
	"context"
	"testing"

	"agentgate/internal/config"
)

func TestBuildProxyStack(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets.Source = config.SecretSourceEnv
	cfg.Targets = []config.TargetConfig{
		{Name: "backend", Endpoint: "https://mcp.example.com/mcp"},
	}

	mcpHandler, metricsHandler, err := buildProxyStack(context.Background(), cfg)
	if err != nil {
		t.Fatalf("buildProxyStack: %v", err)
	}
	if mcpHandler == nil {
		t.Error("expected a non-nil MCP handler")
	}
	if metricsHandler == nil {
		t.Error("expected a non-nil metrics handler")
	}
}

func TestBuildProxyStack_NoBackend(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets.Source = config.SecretSourceEnv
	cfg.Targets = nil
	cfg.Serve.Backend = ""

	if _, _, err := buildProxyStack(context.Background(), cfg); err == nil {
		t.Error("expected an error when no backend endpoint is configured")
	}
}

func TestBuildProxyStack_BadBackendURL(t *testing.T) {
	cfg := testConfig()
	cfg.Secrets.Source = config.SecretSourceEnv
	cfg.Serve.Backend = "not a url"

	if _, _, err := buildProxyStack(context.Background(), cfg); err == nil {
		t.Error("expected an error for a malformed backend endpoint")
	}
}
