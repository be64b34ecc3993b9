package cli

import (
	"github.com/spf13/cobra"

	"github.com/priscilla100/goose-llm/internal/app"
	"github.com/priscilla100/goose-llm/internal/llm"
)

func (r *runner) newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Analyse the dataset and chat about the result in the terminal",
		Args:  cobra.NoArgs,
		RunE:  r.runChat,
	}
}

func (r *runner) runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}
	logger, err := r.logger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	d := r.dataset(cmd)
	instance, err := app.New(app.Options{
		Store:          r.store(),
		Factory:        llm.NewFactory(nil),
		Input:          r.env.Stdin,
		Output:         r.env.Stdout,
		ErrorOutput:    r.env.Stderr,
		HomeDir:        r.env.HomeDir,
		DatasetPath:    d.Path,
		Limit:          d.Limit,
		MaxTokens:      d.MaxTokens,
		HeuristicsFile: d.HeuristicsFile,
		Model:          r.flags.model,
		Counter:        r.counter(logger),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	return instance.Run(cmd.Context())
}
