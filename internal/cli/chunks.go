package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/priscilla100/goose-llm/internal/mcp"
)

func (r *runner) newChunksCommand() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Show how the dataset would be split, without calling a model",
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
			chunks, err := d.Chunk()
			if err != nil {
				return err
			}
			report := mcp.Summarize(chunks, r.counter(logger))

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "CHUNK\tLINES\tCHARACTERS\tTOKENS\t")
			for _, c := range report.Chunks {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t\n", c.Index+1, c.Lines, c.Characters, c.Tokens)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "%d chunk(s) from %s (maxTokens=%d, limit=%d)\n", report.Total, d.Path, d.MaxTokens, *d.Limit)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}
