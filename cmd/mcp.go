package cmd

import (
	"github.com/spf13/cobra"

	"github.com/agentic-research/yieldtree/internal/mcpserver"
)

func newMCPCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp [path]",
		Short: "Serve an output directory to MCP clients over stdio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, env, err := o.open(args[0])
			if err != nil {
				return err
			}
			o.logger.Info("serving MCP on stdio", "path", args[0], "keys", env.Keys.Len())
			return mcpserver.Serve(mcpserver.New(root, env.Keys, env.Keys.Version()))
		},
	}
}
