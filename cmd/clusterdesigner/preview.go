// ABOUTME: The preview command: renders a saved design to SVG, PNG, or DOT with Graphviz.
// ABOUTME: Agents keep their canvas positions so the picture matches the editor.
package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/internal/atomicfile"
	"github.com/2389-research/clusterdesigner/render"
)

func newPreviewCmd() *cobra.Command {
	var (
		output      string
		format      string
		catalogPath string
	)

	cmd := &cobra.Command{
		Use:   "preview [design.json]",
		Short: "Render a saved design as an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreview(cmd, args[0], output, format, catalogPath)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", `output file, "-" for stdout (default: <input>.<format>)`)
	cmd.Flags().StringVarP(&format, "format", "f", "svg", "svg, png, or dot")
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "icon catalog file (icons.xml or YAML)")

	return cmd
}

func runPreview(cmd *cobra.Command, input, output, format, catalogPath string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cat, err := loadCatalog(catalogPath)
	if err != nil {
		return err
	}
	d, err := readDesign(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	prog := newProgress(logger)
	data, err := render.Render(ctx, d.graph, cat, d.blockSize(), format)
	if err != nil {
		return fmt.Errorf("render preview: %w", err)
	}
	prog.done("rendered " + format)

	if output == "" {
		if input == "-" {
			output = "-"
		} else {
			output = strings.TrimSuffix(input, filepath.Ext(input)) + "." + format
		}
	}
	if output == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := atomicfile.Write(output, data); err != nil {
		return fmt.Errorf("write preview %s: %w", output, err)
	}
	printSuccess(cmd.OutOrStdout(), "Rendered %d agents", d.graph.Len())
	printFile(cmd.OutOrStdout(), output)
	return nil
}
