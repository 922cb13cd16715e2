package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"agentgate/internal/cli"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"
)

// tokenEnv is consulted when --token is not given.
const tokenEnv = "AGENTGATE_TOKEN"

var (
	verifyToken    string
	verifyEndpoint string
	verifyTimeout  time.Duration
)

// newVerifyCmd creates the command that exercises the gateway end to end.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Run an MCP handshake through the gateway",
		Long: `Connects to the gateway endpoint as an agent would: performs the MCP
initialize handshake with the given inbound bearer token, then lists the
backend's tools. Succeeding proves the whole chain works: inbound token
accepted, outbound token brokered, backend reachable.

The endpoint is read from the control plane unless --endpoint is given.
The inbound token comes from --token or the AGENTGATE_TOKEN environment
variable.`,
		Args: cobra.NoArgs,
		RunE: runVerify,
	}
	cmd.Flags().StringVar(&verifyToken, "token", "", "Inbound bearer token (default: $"+tokenEnv+")")
	cmd.Flags().StringVar(&verifyEndpoint, "endpoint", "", "Gateway MCP endpoint (default: looked up from the control plane)")
	cmd.Flags().DurationVar(&verifyTimeout, "timeout", 30*time.Second, "Per-call timeout")
	return cmd
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	token := verifyToken
	if token == "" {
		token = os.Getenv(tokenEnv)
	}
	if token == "" {
		return fmt.Errorf("no inbound token: pass --token or set %s", tokenEnv)
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	endpoint := verifyEndpoint
	if endpoint == "" {
		prov, err := newProvisioner(ctx, cfg)
		if err != nil {
			return err
		}
		snap, err := prov.Snapshot(ctx, cfg.Gateway.Name, "")
		if err != nil {
			return err
		}
		if snap.Gateway == nil {
			return fmt.Errorf("gateway %q does not exist; run 'agentgate up' first", cfg.Gateway.Name)
		}
		endpoint = snap.Gateway.Endpoint(cfg.Region)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connecting to %s\n", endpoint)

	mcpClient, err := client.NewStreamableHttpClient(endpoint,
		transport.WithHTTPHeaders(map[string]string{
			"Authorization": "Bearer " + token,
		}))
	if err != nil {
		return fmt.Errorf("create MCP client: %w", err)
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return cli.ClassifyConnectionError(err, endpoint)
	}

	initCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agentgate-verify",
		Version: rootCmd.Version,
	}

	initResult, err := mcpClient.Initialize(initCtx, initReq)
	if err != nil {
		return fmt.Errorf("initialize failed: %w", cli.ClassifyConnectionError(err, endpoint))
	}
	fmt.Fprintf(out, "Initialized: %s %s (protocol %s)\n",
		initResult.ServerInfo.Name, initResult.ServerInfo.Version, initResult.ProtocolVersion)

	listCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	tools, err := mcpClient.ListTools(listCtx, mcp.ListToolsRequest{})
	if err != nil {
		return fmt.Errorf("tools/list failed: %w", err)
	}

	fmt.Fprintf(out, "Backend exposes %d tool(s)\n", len(tools.Tools))
	for _, tool := range tools.Tools {
		fmt.Fprintf(out, "  - %s\n", tool.Name)
	}
	return nil
}
