package cli

import (
	"github.com/spf13/cobra"

	"github.com/priscilla100/goose-llm/internal/mcp"
)

func (r *runner) newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the dataset tools to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := r.loadConfig()
			if err != nil {
				return err
			}
			logger, err := r.logger(cfg)
			if err != nil {
				return err
			}
			defer logger.Close()

			d := r.dataset(cmd).Resolve(cfg)
			server := mcp.NewServer(Version, r.counter(logger), logger, mcp.Defaults{
				MaxTokens: d.MaxTokens,
				Limit:     d.Limit,
			})
			return server.Run(cmd.Context())
		},
	}
}
