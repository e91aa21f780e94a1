// Package cli wires the orchestration core into a cobra command tree.
//
// The CLI is a reference host: it drives runs with the deterministic scripted
// invoker, persists state in a file checkpoint store, and reads gate verdicts
// from the YAML approval file. Production hosts embed the orchestrator
// package directly and substitute their own invoker and stores.
//
// Key types:
//   - [App] - Wired dependencies shared by all commands
//   - [ExitError] - Testable non-zero exit codes
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"crewflow/internal/agent"
	"crewflow/internal/approval"
	"crewflow/internal/checkpoint"
	"crewflow/internal/config"
	"crewflow/internal/llm"
	"crewflow/internal/orchestrator"
	"crewflow/internal/output"
	"crewflow/internal/phase"
	"crewflow/internal/state"
)

// App holds the wired dependencies shared by every command.
type App struct {
	Config       *config.Config
	Printer      *output.Printer
	Orchestrator *orchestrator.Orchestrator
	Store        checkpoint.Store
	Approvals    *approval.File
	Logger       *zap.Logger
}

// NewApp wires an [App] from configuration. The invoker is injectable so
// tests can substitute a mock; pass nil for the default scripted invoker.
func NewApp(cfg *config.Config, invoker llm.Invoker, printer *output.Printer) (*App, error) {
	if invoker == nil {
		invoker = llm.ScriptedInvoker{}
	}
	if printer == nil {
		printer = output.NewPrinter()
	}

	logger, err := buildLogger(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	store, err := checkpoint.NewFileStore(cfg.Checkpoint.Dir)
	if err != nil {
		return nil, err
	}

	approvals := approval.NewFile(cfg.Approval.Path)

	byRole := make(map[agent.Role]string, len(cfg.Models.ByRole))
	for name, model := range cfg.Models.ByRole {
		byRole[agent.Role(name)] = model
	}

	runner := phase.NewRunner(invoker,
		phase.WithModels(cfg.Models.Default, byRole),
		phase.WithLedger(llm.NewLogLedger(logger)),
		phase.WithLogger(logger),
	)

	var gated []state.Phase
	for _, name := range cfg.Approval.RequiredPhases {
		gated = append(gated, state.Phase(name))
	}

	limits := orchestrator.Limits{
		MaxTurns:        cfg.Governor.MaxTurns,
		MaxAgentRetries: cfg.Governor.MaxAgentRetries,
		FallbackAgent:   agent.Role(cfg.Governor.FallbackAgent),
	}
	if limits.FallbackAgent != "" && !limits.FallbackAgent.IsValid() {
		return nil, fmt.Errorf("governor.fallback_agent %q is not a roster role", cfg.Governor.FallbackAgent)
	}

	orc := orchestrator.New(runner,
		orchestrator.WithStore(store),
		orchestrator.WithApprovals(approvals),
		orchestrator.WithGatedPhases(gated...),
		orchestrator.WithLimits(limits),
		orchestrator.WithLogger(logger),
	)

	return &App{
		Config:       cfg,
		Printer:      printer,
		Orchestrator: orc,
		Store:        store,
		Approvals:    approvals,
		Logger:       logger,
	}, nil
}

// buildLogger creates a production zap logger at the configured level.
func buildLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	return zcfg.Build()
}

// NewRootCommand builds the command tree over a wired [App].
func NewRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "crewflow",
		Short: "Coordinate a roster of specialized agents through a phased workflow",
		Long: `crewflow turns a single request into requirements, designs, code, tests,
and documentation by sequencing a fixed roster of specialized agents through
four phases: strategy, design, build, and ship.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCommand(app),
		newResumeCommand(app),
		newApproveCommand(app),
		newRejectCommand(app),
		newStatusCommand(app),
	)

	return root
}

// Execute loads configuration, wires the app, and runs the command tree,
// exiting the process with the resolved code.
func Execute() {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app, err := NewApp(cfg, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Logger.Sync() //nolint:errcheck // best-effort flush on exit

	if err := NewRootCommand(app).Execute(); err != nil {
		if code, ok := IsExitError(err); ok {
			os.Exit(code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
