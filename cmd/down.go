package cmd

import (
	"fmt"

	"agentgate/internal/cli"
	"agentgate/internal/provisioner"

	"github.com/spf13/cobra"
)

var downForce bool

// newDownCmd creates the command that tears the deployment down.
func newDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Delete the gateway, its targets, and the credential provider",
		Long: `Deletes the deployment in reverse dependency order: targets first, then
the credential provider, then the gateway. Each deletion is waited to
completion before the next one starts.

Resources that are already gone are skipped. If a deletion fails, the
remaining resources are left untouched for inspection.`,
		Args: cobra.NoArgs,
		RunE: runDown,
	}
	cmd.Flags().BoolVar(&downForce, "force", false, "Skip the confirmation prompt")
	return cmd
}

func runDown(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	if !downForce {
		ok, err := cli.Confirm(fmt.Sprintf("Delete gateway %q, its targets, and credential provider %q?",
			cfg.Gateway.Name, cfg.CredentialProvider.Name))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
	}

	prov, err := newProvisioner(ctx, cfg)
	if err != nil {
		return err
	}

	progress := cli.NewProgress(rootQuiet)
	defer progress.Stop()

	progress.Start("Tearing down gateway %q", cfg.Gateway.Name)
	if err := prov.Teardown(ctx, provisioner.TeardownSpec{
		GatewayName:  cfg.Gateway.Name,
		ProviderName: cfg.CredentialProvider.Name,
	}); err != nil {
		progress.Fail("Teardown: %v", err)
		return err
	}
	progress.Success("Deployment removed")

	return nil
}
