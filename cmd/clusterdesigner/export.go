// ABOUTME: The export command: builds the node configuration of a saved design and writes it to disk or stdout.
// ABOUTME: Output directory, format, catalog, and node header default to the layered config.
package main

import (
	"github.com/spf13/cobra"

	"github.com/2389-research/clusterdesigner/nodeconfig"
)

type exportFlags struct {
	dir      string
	format   string
	catalog  string
	nodeID   string
	nodeName string
	stdout   bool
}

func newExportCmd(global *globalFlags) *cobra.Command {
	flags := &exportFlags{}

	cmd := &cobra.Command{
		Use:   "export [design.json]",
		Short: "Export the node configuration of a saved design",
		Long: `Check a saved design and write the PowerMatcher node configuration for it.

The file is named after the cluster's fileName setting and placed under the
export directory (plus the exportPath setting, if any). Designs with errors are
refused; run 'clusterdesigner validate' to see all of them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, global, flags, args[0])
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "output-dir", "o", "", "export directory (default: config export_dir)")
	cmd.Flags().StringVarP(&flags.format, "format", "f", "", "xml, yaml, or json (default: config export_format)")
	cmd.Flags().StringVar(&flags.catalog, "catalog", "", "icon catalog file (icons.xml or YAML)")
	cmd.Flags().StringVar(&flags.nodeID, "node-id", "", "node id written into the document header")
	cmd.Flags().StringVar(&flags.nodeName, "node-name", "", "node name written into the document header")
	cmd.Flags().BoolVar(&flags.stdout, "stdout", false, "write the document to stdout instead of a file")

	return cmd
}

func runExport(cmd *cobra.Command, global *globalFlags, flags *exportFlags, input string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return err
	}
	overrideString(&cfg.ExportDir, flags.dir)
	overrideString(&cfg.ExportFormat, flags.format)
	overrideString(&cfg.CatalogPath, flags.catalog)
	overrideString(&cfg.NodeID, flags.nodeID)
	overrideString(&cfg.NodeName, flags.nodeName)

	format, err := nodeconfig.ParseFormat(cfg.ExportFormat)
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	d, err := readDesign(input, cmd.InOrStdin())
	if err != nil {
		return err
	}

	opts := nodeconfig.DefaultOptions()
	opts.Catalog = cat
	overrideString(&opts.NodeID, cfg.NodeID)
	overrideString(&opts.NodeName, cfg.NodeName)

	doc, err := nodeconfig.Build(d.graph, d.settings, opts)
	if err != nil {
		return err
	}

	if flags.stdout {
		return nodeconfig.Write(cmd.OutOrStdout(), doc, format)
	}

	sink := &nodeconfig.FileSink{Dir: cfg.ExportDir, Format: format}
	path, err := sink.Path(d.settings)
	if err != nil {
		return err
	}
	status, err := sink.Export(ctx, doc, d.settings)
	if err != nil {
		return err
	}
	logger.Info(status, "agents", d.graph.Len(), "format", format)

	printSuccess(cmd.OutOrStdout(), "Exported %s", d.settings.FileName)
	printFile(cmd.OutOrStdout(), path)
	return nil
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
