package cmd

import (
	"fmt"

	"agentgate/internal/cli"
	"agentgate/internal/provisioner"

	"github.com/spf13/cobra"
)

// newUpCmd creates the command that provisions the full deployment.
func newUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Provision the gateway, credential provider, and targets",
		Long: `Provisions the deployment described by the configuration: the outbound
credential provider first, then the gateway, then each backend target.

Every step is idempotent. Resources that already exist under their
configured names are adopted, never recreated, so 'up' is safe to re-run
after an interruption or to converge a partially provisioned deployment.
Each resource is waited to a terminal status before the next one that
depends on it is touched.`,
		Args: cobra.NoArgs,
		RunE: runUp,
	}
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	prov, err := newProvisioner(ctx, cfg)
	if err != nil {
		return err
	}

	progress := cli.NewProgress(rootQuiet)
	defer progress.Stop()

	progress.Start("Ensuring credential provider %q", cfg.CredentialProvider.Name)
	provider, err := prov.EnsureCredentialProvider(ctx, provisioner.CredentialProviderSpec{
		Name:            cfg.CredentialProvider.Name,
		Issuer:          cfg.CredentialProvider.Issuer,
		ClientIDRef:     cfg.CredentialProvider.ClientIDRef,
		ClientSecretRef: cfg.CredentialProvider.ClientSecretRef,
	})
	if err != nil {
		progress.Fail("Credential provider %q: %v", cfg.CredentialProvider.Name, err)
		return err
	}
	progress.Success("Credential provider %q is %s", provider.Name, provider.Status)

	progress.Start("Ensuring gateway %q", cfg.Gateway.Name)
	gw, err := prov.EnsureGateway(ctx, provisioner.GatewaySpec{
		Name:            cfg.Gateway.Name,
		RoleARN:         cfg.Gateway.RoleARN,
		Description:     cfg.Gateway.Description,
		InboundIssuer:   cfg.Inbound.Issuer,
		InboundAudience: cfg.Inbound.Audiences,
	})
	if err != nil {
		progress.Fail("Gateway %q: %v", cfg.Gateway.Name, err)
		return err
	}
	progress.Success("Gateway %q is %s (%s)", gw.Name, gw.Status, gw.ID)

	for _, target := range cfg.Targets {
		progress.Start("Ensuring target %q", target.Name)
		tgt, err := prov.EnsureTarget(ctx, provisioner.TargetSpec{
			Name:         target.Name,
			GatewayID:    gw.ID,
			Endpoint:     target.Endpoint,
			ProviderName: provider.Name,
			Audience:     cfg.CredentialProvider.Audience,
			Scopes:       cfg.CredentialProvider.Scopes,
		})
		if err != nil {
			progress.Fail("Target %q: %v", target.Name, err)
			return err
		}
		progress.Success("Target %q is %s (%s)", tgt.Name, tgt.Status, tgt.ID)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nGateway endpoint: %s\n", gw.Endpoint(cfg.Region))
	return nil
}
