package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/priscilla100/goose-llm/internal/app"
	"github.com/priscilla100/goose-llm/internal/llm"
	"github.com/priscilla100/goose-llm/internal/session"
	"github.com/priscilla100/goose-llm/internal/web"
)

func (r *runner) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Analyse the dataset once and serve the chat in a browser",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.runServe(cmd, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, GOOSE_LLM_ADDR, then :8501)")
	return cmd
}

func (r *runner) runServe(cmd *cobra.Command, addr string) error {
	cfg, err := r.loadConfig()
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.WebAddr()
	}
	logger, err := r.logger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	model, err := r.resolveModel(cfg)
	if err != nil {
		return err
	}
	provider, err := llm.NewFactory(nil).Create(model)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	analysis, chunks, err := app.PrepareAnalysis(r.dataset(cmd).Resolve(cfg), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []session.Option
	if counter := r.counter(logger); counter != nil {
		opts = append(opts, session.WithCounter(counter))
	}
	base := session.New(provider, model.Name, logger, opts...)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sending %d chunk(s) to %s...\n", len(chunks), model.Name)
	if _, err := base.Start(ctx, analysis); err != nil {
		return err
	}

	fmt.Fprintf(out, "Serving chat on %s\n", addr)
	return web.NewServer(base, logger).ListenAndServe(ctx, addr)
}
