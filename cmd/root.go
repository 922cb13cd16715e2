package cmd

import (
	"errors"
	"os"

	"agentgate/internal/config"
	"agentgate/internal/gateway"
	"agentgate/internal/poller"
	"agentgate/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for provisioning commands. Scripts branch on these to tell a
// retryable failure from one that needs a config fix or operator action.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTransient indicates the control plane kept answering with
	// transient errors until the retry budget ran out.
	ExitCodeTransient = 10
	// ExitCodeValidation indicates the request or configuration was rejected;
	// re-running without changes cannot succeed.
	ExitCodeValidation = 11
	// ExitCodeTimeout indicates a status wait expired. The resource state is
	// unknown, not failed.
	ExitCodeTimeout = 12
	// ExitCodeResourceFailed indicates a resource reached the terminal FAILED
	// state and must be deleted and recreated.
	ExitCodeResourceFailed = 13
)

// Persistent flags shared by every subcommand.
var (
	rootConfigPath string
	rootLogLevel   string
	rootQuiet      bool
)

// rootCmd is the base command of the agentgate CLI.
var rootCmd = &cobra.Command{
	Use:   "agentgate",
	Short: "Provision and run an MCP gateway with dual authentication",
	Long: `agentgate provisions a gateway that lets AI agents share a backend MCP
server without holding backend credentials. Agents authenticate to the
gateway with their own bearer tokens; the gateway authenticates to the
backend with brokered OAuth2 client-credentials tokens.

Provisioning (up, down, status) drives the control-plane resources:
the gateway, its credential provider, and the backend targets.
Runtime traffic is served by 'agentgate serve' or by the managed
gateway endpoint itself.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.InitForCLI(logging.ParseLevel(rootLogLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main to
// inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. It is called by main.main() and terminates the
// process with the exit code derived from the returned error.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "agentgate version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode maps the error taxonomy to process exit codes so operators
// and scripts can branch without parsing error text.
func getExitCode(err error) int {
	var timeout *poller.TimeoutError
	if errors.As(err, &timeout) {
		return ExitCodeTimeout
	}

	if gateway.IsResourceFailed(err) {
		return ExitCodeResourceFailed
	}

	var configErrs config.ValidationErrors
	if gateway.IsValidation(err) || errors.As(err, &configErrs) {
		return ExitCodeValidation
	}

	if gateway.IsTransient(err) {
		return ExitCodeTransient
	}

	return ExitCodeError
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Config file (default: ./agentgate.yaml, then ~/.config/agentgate/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&rootQuiet, "quiet", "q", false, "Suppress progress output")

	rootCmd.AddCommand(newUpCmd())
	rootCmd.AddCommand(newDownCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVerifyCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}
