// Package cli wires the goose-llm command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/priscilla100/goose-llm/internal/app"
	"github.com/priscilla100/goose-llm/internal/config"
	"github.com/priscilla100/goose-llm/internal/logging"
	"github.com/priscilla100/goose-llm/internal/tokenizer"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// Env carries the process environment the commands run against.
type Env struct {
	Stdin   io.Reader
	Stdout  io.Writer
	Stderr  io.Writer
	HomeDir string
	// Tokenizer loads the token counter. Nil loads tokenizer.DefaultEncoding.
	Tokenizer func() (*tokenizer.Counter, error)
}

// DefaultEnv returns an Env bound to the real process.
func DefaultEnv() (Env, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Env{}, fmt.Errorf("determine home directory: %w", err)
	}
	return Env{
		Stdin:   os.Stdin,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		HomeDir: home,
	}, nil
}

type rootFlags struct {
	dataset    string
	limit      int
	maxTokens  int
	heuristics string
	model      string
}

type runner struct {
	env   Env
	flags rootFlags
}

// NewRootCommand builds the goose-llm command tree. Running it without a
// subcommand starts the terminal chat.
func NewRootCommand(env Env) *cobra.Command {
	r := &runner{env: env}

	root := &cobra.Command{
		Use:   "goose-llm",
		Short: "Detect anomalies in GOOSE substation traffic with an LLM",
		Long: `goose-llm splits a GOOSE CSV dataset into prompt-sized chunks, asks a
language model to flag anomalous records and then answers follow-up
questions about its analysis.`,
		Version:       Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          r.runChat,
	}
	root.SetIn(env.Stdin)
	root.SetOut(env.Stdout)
	root.SetErr(env.Stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&r.flags.dataset, "dataset", "", "GOOSE CSV dataset (default from config, then "+config.DefaultDatasetPath+")")
	pf.IntVar(&r.flags.limit, "limit", 0, "only consider the first N lines")
	pf.IntVar(&r.flags.maxTokens, "max-tokens", 0, "chunk size limit, 250 of which are reserved for prompt text")
	pf.StringVar(&r.flags.heuristics, "heuristics", "", "YAML file replacing the built-in anomaly heuristics")
	pf.StringVar(&r.flags.model, "model", "", "configured model to use instead of the active one")

	root.AddCommand(
		r.newChatCommand(),
		r.newServeCommand(),
		r.newChunksCommand(),
		r.newMCPCommand(),
	)
	return root
}

// Execute runs the command tree against the real process and returns the
// exit code.
func Execute() int {
	env, err := DefaultEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return Run(context.Background(), env, os.Args[1:])
}

// Run executes args against env and returns the exit code.
func Run(ctx context.Context, env Env, args []string) int {
	root := NewRootCommand(env)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(env.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// dataset collects the dataset flags that were set explicitly.
func (r *runner) dataset(cmd *cobra.Command) app.Dataset {
	d := app.Dataset{
		Path:           r.flags.dataset,
		MaxTokens:      r.flags.maxTokens,
		HeuristicsFile: r.flags.heuristics,
	}
	if cmd.Flags().Changed("limit") {
		limit := r.flags.limit
		d.Limit = &limit
	}
	return d
}

func (r *runner) store() *config.FileStore {
	return config.NewFileStore(r.env.HomeDir)
}

func (r *runner) loadConfig() (config.Config, error) {
	cfg, err := r.store().Load()
	if errors.Is(err, config.ErrNotFound) {
		return config.Config{}, nil
	}
	if err != nil {
		return config.Config{}, err
	}
	return cfg.ApplyEnv(), nil
}

func (r *runner) logger(cfg config.Config) (*logging.Logger, error) {
	logger, err := logging.NewLogger(r.env.HomeDir, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return logger, nil
}

// counter loads the tokenizer. Token counts are optional everywhere, so a
// failure is logged and a nil counter returned.
func (r *runner) counter(logger *logging.Logger) *tokenizer.Counter {
	load := r.env.Tokenizer
	if load == nil {
		load = func() (*tokenizer.Counter, error) { return tokenizer.NewCounter("") }
	}
	counter, err := load()
	if err != nil {
		logger.Warnf("Token counting disabled: %v", err)
		return nil
	}
	return counter
}

func (r *runner) resolveModel(cfg config.Config) (config.Model, error) {
	if r.flags.model != "" {
		m, ok := cfg.FindModel(r.flags.model)
		if !ok {
			return config.Model{}, fmt.Errorf("model %q is not configured in %s", r.flags.model, r.store().Path())
		}
		return m, nil
	}
	m, ok := cfg.ActiveModel()
	if !ok {
		return config.Model{}, fmt.Errorf("no active model is configured in %s", r.store().Path())
	}
	return m, nil
}
