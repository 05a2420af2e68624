package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dbPath     string
	verbose    bool
	jsonOutput bool
}

// NewRootCmd builds the mnemo command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mnemo",
		Short: "Embedded vector memory store",
		Long: `Mnemo stores short texts with their embeddings and metadata, and finds
them again by semantic similarity. Items can expire, the store evicts by
fifo, lru or lfu when full, and everything is kept in a local SQLite file.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (.yaml or .json)")
	root.PersistentFlags().StringVar(&opts.dbPath, "db", "", "Database path (default ~/.mnemo/mnemo.db)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "JSON logs and output")

	root.AddCommand(
		newAddCmd(opts),
		newGetCmd(opts),
		newDeleteCmd(opts),
		newClearCmd(opts),
		newSearchCmd(opts),
		newPruneCmd(opts),
		newStatsCmd(opts),
		newConfigCmd(opts),
		newShellCmd(opts),
		newPluginCmd(),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
