// ABOUTME: Root cobra command: global flags, logger setup, and registration of every subcommand.
// ABOUTME: The logger is attached to the command context in PersistentPreRun so --verbose applies everywhere.
package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	verbose    bool
	configPath string
}

func newRootCmd(logOut io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "clusterdesigner",
		Short: "Design PowerMatcher trading-agent clusters",
		Long: `clusterdesigner builds the tree of trading agents that make up a PowerMatcher
cluster (one auctioneer, concentrators, objective agents, and devices), lays it
out, checks it, and exports the node configuration the runtime loads.

Run 'clusterdesigner serve' for the editor API, or use the file commands on
saved designs.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if flags.verbose {
				level = log.DebugLevel
			}
			cmd.SetContext(withLogger(cmd.Context(), newLogger(logOut, level)))
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("clusterdesigner %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/clusterdesigner/config.toml)")

	root.AddCommand(newServeCmd(flags))
	root.AddCommand(newOrganizeCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newExportCmd(flags))
	root.AddCommand(newTreeCmd())
	root.AddCommand(newPreviewCmd())

	return root
}
