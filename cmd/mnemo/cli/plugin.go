package cli

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/mnemo/internal/embed"
	"github.com/felixgeelhaar/mnemo/internal/plugin"
)

func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "plugin",
		Short:  "Embedder plugin support",
		Hidden: true,
	}

	var dim int
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the hash embedder as a plugin",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			plugin.Serve(embed.NewHash(dim))
		},
	}
	serveCmd.Flags().IntVar(&dim, "dimension", 384, "Embedding dimension")

	cmd.AddCommand(serveCmd)
	return cmd
}
