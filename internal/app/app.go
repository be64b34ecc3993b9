package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/priscilla100/goose-llm/internal/config"
	"github.com/priscilla100/goose-llm/internal/conversation"
	"github.com/priscilla100/goose-llm/internal/llm"
	"github.com/priscilla100/goose-llm/internal/logging"
	"github.com/priscilla100/goose-llm/internal/session"
	"github.com/priscilla100/goose-llm/internal/tokenizer"
)

// ProviderFactory resolves model configurations to streaming providers.
type ProviderFactory interface {
	Create(config.Model) (llm.ChatProvider, error)
}

// Options configures App creation.
type Options struct {
	Store       config.Store
	Factory     ProviderFactory
	Input       io.Reader
	Output      io.Writer
	ErrorOutput io.Writer
	HomeDir     string

	// Dataset overrides; zero values fall back to the config file, then defaults.
	DatasetPath    string
	Limit          *int
	MaxTokens      int
	HeuristicsFile string
	Model          string

	Counter    *tokenizer.Counter
	Logger     *logging.Logger
	Interrupts chan os.Signal
}

// App runs the terminal analysis chat.
type App struct {
	store     config.Store
	factory   ProviderFactory
	reader    lineReader
	output    io.Writer
	errOutput io.Writer
	homeDir   string
	render    renderFunc
	counter   *tokenizer.Counter
	logger    *logging.Logger
	ownLogger bool

	overrides Options

	cfgMu sync.RWMutex
	cfg   config.Config

	session *session.Session
	// analysisLen is the number of messages that make up the analysis prompt.
	analysisLen int

	modeMu        sync.Mutex
	mode          appMode
	cancelCurrent context.CancelFunc
	exitRequested bool

	signalCh   chan os.Signal
	stopSignal func()
	// signalDone is closed once the interrupt goroutine has returned.
	signalDone chan struct{}
}

type appMode int

const (
	modeInput appMode = iota
	modeResponding
)

const (
	promptLabel    = "Prompt: "
	responseHeader = "AI's Response:"
)

// New constructs an App from options.
func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("store is required")
	}
	if opts.Factory == nil {
		return nil, errors.New("factory is required")
	}
	if opts.Input == nil {
		return nil, errors.New("input is required")
	}
	if opts.Output == nil {
		return nil, errors.New("output is required")
	}

	errOutput := opts.ErrorOutput
	if errOutput == nil {
		errOutput = opts.Output
	}

	home := opts.HomeDir
	if home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("determine home dir: %w", err)
		}
		home = dir
	}

	cfg, err := opts.Store.Load()
	if err != nil {
		if !errors.Is(err, config.ErrNotFound) {
			return nil, err
		}
		cfg = config.Config{}
	}

	logger := opts.Logger
	ownLogger := false
	if logger == nil {
		logger, err = logging.NewLogger(home, cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("initialize logger: %w", err)
		}
		ownLogger = true
	}

	a := &App{
		store:     opts.Store,
		factory:   opts.Factory,
		reader:    newLineReader(opts.Input, opts.Output),
		output:    opts.Output,
		errOutput: errOutput,
		homeDir:   home,
		render:    newRenderer(opts.Output),
		counter:   opts.Counter,
		logger:    logger,
		ownLogger: ownLogger,
		overrides: opts,
		cfg:       cfg,
		mode:      modeInput,
	}
	a.setupSignals(opts.Interrupts)
	return a, nil
}

func (a *App) setupSignals(ch chan os.Signal) {
	if ch == nil {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt)
		var once sync.Once
		a.stopSignal = func() {
			once.Do(func() {
				signal.Stop(sigCh)
				close(sigCh)
			})
		}
		ch = sigCh
	}
	a.signalCh = ch
	a.signalDone = make(chan struct{})

	go func() {
		defer close(a.signalDone)
		for range ch {
			a.handleInterrupt()
		}
	}()
}

// Run chunks the dataset, sends the analysis and then answers follow-up
// questions until the user quits.
func (a *App) Run(ctx context.Context) error {
	defer func() {
		if a.stopSignal != nil {
			a.stopSignal()
		}
		if a.ownLogger {
			_ = a.logger.Close()
		}
	}()

	model, ok := a.resolveModel()
	if !ok {
		a.printModelGuidance()
		return nil
	}

	provider, err := a.factory.Create(model)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	analysis, err := a.prepareAnalysis()
	if err != nil {
		return err
	}
	a.analysisLen = analysis.Len()

	var opts []session.Option
	if a.counter != nil {
		opts = append(opts, session.WithCounter(a.counter))
	}
	a.session = session.New(provider, model.Name, a.logger, opts...)

	reply, err := a.respond(ctx, func(reqCtx context.Context) (string, error) {
		return a.session.Start(reqCtx, analysis)
	})
	if err != nil {
		return err
	}
	if reply == nil {
		return nil
	}
	a.printResponse(*reply)

	return a.loop(ctx)
}

func (a *App) loop(ctx context.Context) error {
	for {
		if a.shouldExit() {
			return nil
		}

		line, err := a.reader.ReadLine(promptLabel)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, errInterrupted) {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case isQuit(line):
			fmt.Fprintln(a.output, "Goodbye.")
			return nil
		case strings.HasPrefix(line, "/"):
			exit, err := a.handleCommand(line)
			if err != nil {
				fmt.Fprintf(a.errOutput, "Error: %v\n", err)
			}
			if exit {
				return nil
			}
			continue
		}

		reply, err := a.respond(ctx, func(reqCtx context.Context) (string, error) {
			return a.session.Ask(reqCtx, line)
		})
		if err != nil {
			fmt.Fprintf(a.errOutput, "Error: %v\n", err)
			continue
		}
		if reply != nil {
			a.printResponse(*reply)
		}
	}
}

func isQuit(line string) bool {
	lower := strings.ToLower(line)
	return lower == "q" || lower == "quit"
}

// respond runs call with a context the user can cancel with Ctrl+C. A nil
// reply with a nil error means the user cancelled.
func (a *App) respond(ctx context.Context, call func(context.Context) (string, error)) (*string, error) {
	fmt.Fprintln(a.output, "Waiting for response...")

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.enterResponding(cancel)
	defer a.leaveResponding()

	reply, err := call(reqCtx)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			fmt.Fprintln(a.output, "Response cancelled.")
			a.logger.Debugf("Response cancelled by user")
			return nil, nil
		}
		return nil, err
	}
	return &reply, nil
}

func (a *App) printResponse(reply string) {
	fmt.Fprintln(a.output, responseHeader)
	fmt.Fprint(a.output, a.render(reply))
}

func (a *App) currentConfig() config.Config {
	a.cfgMu.RLock()
	defer a.cfgMu.RUnlock()
	return a.cfg.ApplyEnv()
}

func (a *App) resolveModel() (config.Model, bool) {
	cfg := a.currentConfig()
	if name := strings.TrimSpace(a.overrides.Model); name != "" {
		return cfg.FindModel(name)
	}
	return cfg.ActiveModel()
}

func (a *App) printModelGuidance() {
	if name := strings.TrimSpace(a.overrides.Model); name != "" {
		fmt.Fprintf(a.output, "Model %q is not configured.\n", name)
	} else {
		fmt.Fprintln(a.output, "No active model is configured.")
	}
	fmt.Fprintf(a.output, "Add a model to %s and mark it active, or pass --model.\n", a.configFilePath())
}

func (a *App) prepareAnalysis() (conversation.Log, error) {
	dataset := Dataset{
		Path:           a.overrides.DatasetPath,
		Limit:          a.overrides.Limit,
		MaxTokens:      a.overrides.MaxTokens,
		HeuristicsFile: a.overrides.HeuristicsFile,
	}.Resolve(a.currentConfig())

	analysis, chunks, err := PrepareAnalysis(dataset, a.logger)
	if err != nil {
		return conversation.Log{}, err
	}
	fmt.Fprintf(a.output, "Prepared %d chunk(s) from %s.\n", len(chunks), dataset.Path)
	return analysis, nil
}

func (a *App) handleCommand(line string) (bool, error) {
	switch line {
	case "/help":
		a.printHelp()
	case "/set-model":
		return false, a.changeActiveModel()
	case "/history":
		a.printHistory()
	case "/exit":
		return true, nil
	default:
		fmt.Fprintf(a.output, "Unknown command: %s\n", line)
	}
	return false, nil
}

func (a *App) printHelp() {
	fmt.Fprintln(a.output, "Available commands:")
	fmt.Fprintln(a.output, "  /help       Show this help message.")
	fmt.Fprintln(a.output, "  /set-model  Continue the conversation with another configured model.")
	fmt.Fprintln(a.output, "  /history    Show the questions and answers so far.")
	fmt.Fprintln(a.output, "  /exit       Exit the application.")
	fmt.Fprintln(a.output, "Type q or quit to end the session.")
}

func (a *App) printHistory() {
	turns := a.session.Log().Since(a.analysisLen)
	if len(turns) == 0 {
		fmt.Fprintln(a.output, "No conversation yet.")
		return
	}
	for _, msg := range turns {
		switch msg.Role {
		case llm.RoleAssistant:
			fmt.Fprintln(a.output, responseHeader)
			fmt.Fprint(a.output, a.render(msg.Content))
		case llm.RoleUser:
			fmt.Fprintf(a.output, "%s%s\n", promptLabel, msg.Content)
		}
	}
}

func (a *App) changeActiveModel() error {
	a.cfgMu.RLock()
	cfg := a.cfg
	a.cfgMu.RUnlock()

	if len(cfg.Models) == 0 {
		fmt.Fprintf(a.output, "No models configured. Please add entries to %s.\n", a.configFilePath())
		return nil
	}

	fmt.Fprintln(a.output, "Select a model (0 to cancel):")
	for idx, m := range cfg.Models {
		marker := ""
		if m.Name == a.session.Model() {
			marker = " *"
		}
		fmt.Fprintf(a.output, "  %d) %s (%s)%s\n", idx+1, m.Name, m.Provider, marker)
	}

	choiceLine, err := a.reader.ReadLine("Choice: ")
	if err != nil {
		return err
	}
	choiceLine = strings.TrimSpace(choiceLine)
	if choiceLine == "" {
		return nil
	}

	choice, err := strconv.Atoi(choiceLine)
	if err != nil || choice < 0 || choice > len(cfg.Models) {
		fmt.Fprintln(a.output, "Invalid selection.")
		return nil
	}
	if choice == 0 {
		fmt.Fprintln(a.output, "Model selection cancelled.")
		return nil
	}

	models := make([]config.Model, len(cfg.Models))
	copy(models, cfg.Models)
	for i := range models {
		models[i].Active = i == choice-1
	}
	cfg.Models = models
	selected := models[choice-1]

	provider, err := a.factory.Create(cfg.ApplyEnv().Models[choice-1])
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}
	if err := a.store.Save(cfg); err != nil {
		return err
	}

	a.cfgMu.Lock()
	a.cfg = cfg
	a.cfgMu.Unlock()
	a.session = a.session.ForkWith(provider, selected.Name)

	a.logger.Infof("Switched model to %s (%s)", selected.Name, selected.Provider)
	fmt.Fprintf(a.output, "Active model set to %s (%s).\n", selected.Name, selected.Provider)
	return nil
}

func (a *App) configFilePath() string {
	return filepath.Join(a.homeDir, config.DirName, "config.json")
}

func (a *App) enterResponding(cancel context.CancelFunc) {
	a.modeMu.Lock()
	a.mode = modeResponding
	a.cancelCurrent = cancel
	a.modeMu.Unlock()
}

func (a *App) leaveResponding() {
	a.modeMu.Lock()
	a.mode = modeInput
	a.cancelCurrent = nil
	a.modeMu.Unlock()
}

// handleInterrupt cancels a pending response, or asks the loop to exit when
// the user is at the prompt.
func (a *App) handleInterrupt() {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()

	switch a.mode {
	case modeResponding:
		if a.cancelCurrent != nil {
			a.cancelCurrent()
		}
	case modeInput:
		a.exitRequested = true
	}
}

func (a *App) shouldExit() bool {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.exitRequested
}
