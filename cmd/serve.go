package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"agentgate/internal/config"
	"agentgate/internal/proxy"
	"agentgate/internal/server"
	"agentgate/internal/verifier"
	"agentgate/pkg/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var serveListen string

// newServeCmd creates the command that runs the local dual-auth proxy.
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dual-authentication MCP proxy",
		Long: `Runs the request path locally: agents POST MCP JSON-RPC calls to /mcp
with their own bearer token; the proxy verifies the token, swaps it for a
brokered backend token, and forwards the call to the backend MCP server.

The listener also exposes /healthz and Prometheus metrics on /metrics.
When the configuration file changes, the proxy stack is rebuilt and
swapped in without dropping the listener. The process stops cleanly on
SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides the configured serve.host/serve.port)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.InitForServe(logging.ParseLevel(rootLogLevel), os.Stderr)

	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	addr := serveListen
	if addr == "" {
		addr = cfg.Serve.Addr()
	}

	srv := server.New(addr)

	mcpHandler, metricsHandler, err := buildProxyStack(ctx, cfg)
	if err != nil {
		return err
	}
	srv.Swap(mcpHandler, metricsHandler)

	if cfgPath != "" && cfg.Serve.Watch() {
		watcher, err := server.NewConfigWatcher(cfgPath, func() {
			reloaded, _, err := loadConfig()
			if err != nil {
				logging.Error("Serve", err, "Config reload failed, keeping previous configuration")
				return
			}
			mcpHandler, metricsHandler, err := buildProxyStack(ctx, reloaded)
			if err != nil {
				logging.Error("Serve", err, "Config reload failed, keeping previous configuration")
				return
			}
			srv.Swap(mcpHandler, metricsHandler)
			logging.Info("Serve", "Configuration reloaded from %s", cfgPath)
		})
		if err != nil {
			logging.Warn("Serve", "Config watch unavailable: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "agentgate proxy listening on %s (backend: %s)\n",
		addr, cfg.BackendEndpoint())

	return srv.Run(ctx)
}

// buildProxyStack assembles verifier, broker, and proxy from one config
// snapshot, with a fresh metrics registry so a rebuilt stack never collides
// with collectors registered by the previous one.
func buildProxyStack(ctx context.Context, cfg config.Config) (http.Handler, http.Handler, error) {
	backend := cfg.BackendEndpoint()
	if backend == "" {
		return nil, nil, fmt.Errorf("no backend endpoint: configure serve.backend or at least one target")
	}

	opts := []verifier.Option{
		verifier.WithLeeway(cfg.Inbound.LeewayDuration()),
	}
	if cfg.Inbound.JWKSURL != "" {
		opts = append(opts, verifier.WithJWKSURL(cfg.Inbound.JWKSURL))
	}
	v := verifier.New(cfg.Inbound.Issuer, cfg.Inbound.Audiences, opts...)

	reg := prometheus.NewRegistry()

	store, err := newSecretStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	b := newBrokerWithRegistry(store, cfg, reg)

	p, err := proxy.New(v, b, outboundIdentity(cfg), backend, proxy.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}

	return p, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
