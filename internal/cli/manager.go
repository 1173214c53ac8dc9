// Package cli implements the foundation command-line tool.
package cli

import (
	"io"
	"os"

	"github.com/agilira/orpheus/pkg/orpheus"
)

// Version is reported by --version.
const Version = "0.1.0"

// Manager wires the command tree to its handlers.
type Manager struct {
	app *orpheus.App
	out io.Writer
}

// NewManager builds the command tree. Handler output goes to os.Stdout.
func NewManager() *Manager {
	return NewManagerWithOutput(os.Stdout)
}

// NewManagerWithOutput builds the command tree with handler output sent to out.
func NewManagerWithOutput(out io.Writer) *Manager {
	m := &Manager{
		app: orpheus.New("foundation").
			SetDescription("Thread pools, dedicated threads and timers").
			SetVersion(Version),
		out: out,
	}

	m.setupRunCommand()
	m.setupDemoCommands()
	m.setupConfigCommands()
	m.setupHistoryCommands()

	return m
}

// Run executes the command given by args, without the program name.
func (m *Manager) Run(args []string) error {
	return m.app.Run(args)
}

func (m *Manager) setupRunCommand() {
	// run [--config=file] [--duration=0] [--metrics-addr=]
	runCmd := orpheus.NewCommand("run", "Run the configured pools, threads and timers").
		AddFlag("config", "c", "", "YAML configuration file (default: one two-worker pool)").
		AddFlag("duration", "d", "0", "Stop after this long; 0 waits for a signal").
		AddFlag("metrics-addr", "m", "", "Serve Prometheus metrics on this address").
		SetHandler(m.handleRun)
	m.app.AddCommand(runCmd)
}

func (m *Manager) setupDemoCommands() {
	poolCmd := orpheus.NewCommand("pool", "Thread pool operations")
	// pool bench [--tasks=10000] [--workers=2] [--submitters=4] ...
	benchCmd := poolCmd.Subcommand("bench", "Commit many short tasks and report pool stats", m.handlePoolBench)
	benchCmd.AddIntFlag("tasks", "t", 10000, "Number of tasks")
	benchCmd.AddIntFlag("workers", "w", 2, "Core workers")
	benchCmd.AddIntFlag("max-workers", "x", 0, "Worker cap (0 = GOMAXPROCS)")
	benchCmd.AddIntFlag("submitters", "s", 4, "Concurrent submitting goroutines")
	benchCmd.AddIntFlag("queue", "q", 0, "Queue capacity (0 = unbounded)")
	benchCmd.AddBoolFlag("auto-expansion", "a", false, "Add temporary workers under load")
	m.app.AddCommand(poolCmd)

	timerCmd := orpheus.NewCommand("timer", "Timer operations")
	// timer tick [--period=100ms] [--count=10]
	tickCmd := timerCmd.Subcommand("tick", "Run a period task and report lateness", m.handleTimerTick)
	tickCmd.AddFlag("period", "p", "100ms", "Period")
	tickCmd.AddIntFlag("count", "n", 10, "Number of firings")
	m.app.AddCommand(timerCmd)

	threadCmd := orpheus.NewCommand("thread", "Dedicated thread operations")
	// thread invoke [--count=3]
	invokeCmd := threadCmd.Subcommand("invoke", "Invoke tasks on a dedicated thread", m.handleThreadInvoke)
	invokeCmd.AddIntFlag("count", "n", 3, "Number of invocations")
	m.app.AddCommand(threadCmd)
}

func (m *Manager) setupConfigCommands() {
	configCmd := orpheus.NewCommand("config", "Configuration file operations")

	// config validate <file>
	configCmd.Subcommand("validate", "Validate a configuration file", m.handleConfigValidate)

	// config show [<file>]
	configCmd.Subcommand("show", "Print the effective configuration", m.handleConfigShow)

	m.app.AddCommand(configCmd)
}

func (m *Manager) setupHistoryCommands() {
	historyCmd := orpheus.NewCommand("history", "Execution history operations")

	// history query <db> [--runner=] [--limit=20] [--since=] [--panicked]
	queryCmd := historyCmd.Subcommand("query", "List recorded task executions", m.handleHistoryQuery)
	queryCmd.AddFlag("runner", "r", "", "Runner name filter")
	queryCmd.AddFlag("since", "s", "", "Only executions finished within this duration")
	queryCmd.AddIntFlag("limit", "l", 20, "Maximum results")
	queryCmd.AddBoolFlag("panicked", "p", false, "Only panicked executions")

	// history cleanup <db> [--older-than=24h]
	cleanupCmd := historyCmd.Subcommand("cleanup", "Delete old executions", m.handleHistoryCleanup)
	cleanupCmd.AddFlag("older-than", "o", "24h", "Delete executions older than this")

	m.app.AddCommand(historyCmd)
}
