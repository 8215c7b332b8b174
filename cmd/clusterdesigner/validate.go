// ABOUTME: The validate command: lints a saved design and reports every diagnostic.
// ABOUTME: Exits non-zero when any error-severity diagnostic would block an export.
package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/topology/validator"
)

// ErrDesignInvalid is returned when validation finds blocking problems.
var ErrDesignInvalid = errors.New("design has errors")

func newValidateCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "validate [design.json]",
		Short: "Check a saved design for problems that block export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, args[0], asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print diagnostics as JSON")

	return cmd
}

func runValidate(cmd *cobra.Command, input string, asJSON bool) error {
	d, err := readDesign(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	diags := validator.Lint(d.graph, d.settings)
	loggerFromContext(cmd.Context()).Debug("lint finished", "agents", d.graph.Len(), "diagnostics", len(diags))

	out := cmd.OutOrStdout()
	if asJSON {
		if diags == nil {
			diags = []validator.Diagnostic{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(diags); err != nil {
			return err
		}
	} else if len(diags) == 0 {
		printSuccess(out, "No problems found in %d agents", d.graph.Len())
	} else {
		printDiagnostics(out, diags)
	}

	if validator.HasErrors(diags) {
		return ErrDesignInvalid
	}
	return nil
}
