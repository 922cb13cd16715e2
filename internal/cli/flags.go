package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Output formats accepted by the --output flag.
const (
	OutputTable = "table"
	OutputPlain = "plain"
	OutputJSON  = "json"
)

// OutputFlags holds the flag values shared by commands that print resource
// state, so every command names and documents them identically.
type OutputFlags struct {
	// Format selects the output shape (table, plain, json).
	Format string
	// NoHeaders suppresses the header row in plain output.
	NoHeaders bool
}

// RegisterOutputFlags registers --output and --no-headers on a command.
func RegisterOutputFlags(cmd *cobra.Command, flags *OutputFlags) {
	cmd.Flags().StringVarP(&flags.Format, "output", "o", OutputTable, "Output format (table, plain, json)")
	cmd.Flags().BoolVar(&flags.NoHeaders, "no-headers", false, "Suppress header row in plain output")
}

// Validate rejects unknown output formats before the command does any work.
func (f *OutputFlags) Validate() error {
	switch f.Format {
	case OutputTable, OutputPlain, OutputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (expected %s, %s or %s)",
			f.Format, OutputTable, OutputPlain, OutputJSON)
	}
}
