// ABOUTME: The organize command: runs auto-layout on a saved design and writes the positions back.
// ABOUTME: A layout that cannot remove every overlap is reported as a warning, not a failure.
package main

import (
	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/layout"
)

func newOrganizeCmd() *cobra.Command {
	var (
		output      string
		canvasWidth float64
	)

	cmd := &cobra.Command{
		Use:   "organize [design.json]",
		Short: "Auto-layout the agents of a saved design",
		Long: `Arrange every agent of a saved design into a tree: one row per depth, children
grouped under their parent, positions snapped to the grid.

The design is rewritten in place unless -o is given. Use "-" for stdin/stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrganize(cmd, args[0], output, canvasWidth)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: overwrite the input)")
	cmd.Flags().Float64Var(&canvasWidth, "canvas-width", layout.DefaultCanvasWidth, "canvas width used to center the tree")

	return cmd
}

func runOrganize(cmd *cobra.Command, input, output string, canvasWidth float64) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	if output == "" {
		output = input
	}

	d, err := readDesign(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	res := layout.Organize(d.graph, layout.Options{BlockSize: d.blockSize(), CanvasWidth: canvasWidth})
	logger.Debug("layout finished", "agents", d.graph.Len(), "passes", res.Passes, "messy", res.Messy)
	if len(res.Cyclic) > 0 {
		logger.Warn("agents on a parent cycle were placed on the top row", "ids", res.Cyclic)
	}

	if err := d.writeDesign(output, cmd.OutOrStdout()); err != nil {
		return err
	}
	prog.done("organized")

	if output == "-" {
		return nil
	}
	out := cmd.OutOrStdout()
	if !res.Converged {
		printWarning(out, "%s", res.Warning)
	} else {
		printSuccess(out, "Organized %d agents", d.graph.Len())
	}
	printFile(out, output)
	return nil
}
