package cmd

import (
	"fmt"

	"agentgate/internal/cli"

	"github.com/spf13/cobra"
)

var tokenShow bool

// newTokenCmd creates the command that brokers one backend token.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Broker an outbound backend token and print its metadata",
		Long: `Performs the same client-credentials exchange the gateway performs for
proxied requests and prints the resulting token's metadata. Useful for
checking that the credential provider's secrets and issuer are correct
before sending agent traffic.

The token value itself is only printed with --show.`,
		Args: cobra.NoArgs,
		RunE: runToken,
	}
	cmd.Flags().BoolVar(&tokenShow, "show", false, "Print the token value (sensitive)")
	return cmd
}

func runToken(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	b, err := newBroker(ctx, cfg)
	if err != nil {
		return err
	}

	tok, err := b.GetToken(ctx, outboundIdentity(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Identity:  %s\n", cfg.CredentialProvider.Name)
	fmt.Fprintf(out, "Type:      %s\n", tok.TokenType)
	fmt.Fprintf(out, "Expires:   %s\n", cli.FormatExpiry(tok.ExpiresAt))
	if tokenShow {
		fmt.Fprintf(out, "Token:     %s\n", tok.AccessToken)
	} else {
		fmt.Fprintln(out, "Token:     (hidden, use --show to print)")
	}
	return nil
}
