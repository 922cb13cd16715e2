package cmd

import (
	"encoding/json"
	"fmt"

	"agentgate/internal/cli"
	"agentgate/internal/gateway"
	strutil "agentgate/pkg/strings"

	"github.com/spf13/cobra"
)

var statusOutput cli.OutputFlags

// newStatusCmd creates the command that shows the deployment state.
func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current state of the provisioned resources",
		Long: `Reads the current status of the gateway, its targets, and the credential
provider from the control plane and prints them. This is a pure
observation: nothing is created, changed, or waited on.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}
	cli.RegisterOutputFlags(cmd, &statusOutput)
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := statusOutput.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	prov, err := newProvisioner(ctx, cfg)
	if err != nil {
		return err
	}

	snap, err := prov.Snapshot(ctx, cfg.Gateway.Name, cfg.CredentialProvider.Name)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if statusOutput.Format == cli.OutputJSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	table := cli.NewTable("KIND", "NAME", "ID", "STATUS", "DETAIL")

	if snap.Gateway == nil {
		table.AddRow(string(gateway.KindGateway), cfg.Gateway.Name, "", string(gateway.StatusAbsent), "")
	} else {
		table.AddRow(string(gateway.KindGateway), snap.Gateway.Name, snap.Gateway.ID,
			cli.FormatStatus(snap.Gateway.Status), snap.Gateway.Endpoint(cfg.Region))
	}

	if snap.Provider == nil {
		table.AddRow(string(gateway.KindCredentialProvider), cfg.CredentialProvider.Name, "",
			string(gateway.StatusAbsent), "")
	} else {
		table.AddRow(string(gateway.KindCredentialProvider), snap.Provider.Name,
			strutil.Truncate(snap.Provider.ARN, 48),
			cli.FormatStatus(snap.Provider.Status), snap.Provider.DiscoveryURL)
	}

	for _, target := range snap.Targets {
		detail := target.Endpoint
		if target.LastSyncError != "" {
			detail = strutil.Truncate(target.LastSyncError, 60)
		}
		table.AddRow(string(gateway.KindTarget), target.Name, target.ID,
			cli.FormatStatus(target.Status), detail)
	}

	if statusOutput.Format == cli.OutputPlain {
		table.RenderPlain(out, statusOutput.NoHeaders)
	} else {
		table.Render(out)
	}
	return nil
}
