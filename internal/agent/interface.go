// Package agent defines the pluggable adapter interface between the
// pool and a specific subordinate AI CLI (claude-code, codex, ...).
// Adapters here describe how to launch and prompt a local process
// rather than a Docker container, since every worker runs in its own
// git worktree on the same machine as the core.
package agent

// Session carries everything an adapter needs to build a command line
// and an initial prompt for one worker invocation.
type Session struct {
	TaskID       string
	WorkflowID   string
	WorktreePath string
	Prompt       string
	SystemPrompt string // composed skill prompt for the current phase
	Model        string // optional model override
	Metadata     map[string]string
}

// Result is what an adapter extracts from a worker's raw captured
// output once it has exited or been asked to summarize.
type Result struct {
	ExitCode int
	Success  bool
	Summary  string
	Error    string
	RawText  string
}

// Agent is the interface every subordinate-worker adapter implements.
// Command and Env describe a local process instead of a container
// image; the pool starts it attached to a PTY inside the task's
// worktree.
type Agent interface {
	// Name returns the agent identifier, e.g. "claude-code".
	Name() string

	// Command returns the argv for launching the worker in session's
	// worktree (argv[0] is resolved via PATH).
	Command(session *Session) []string

	// Env returns additional environment variables for the process,
	// on top of the pool's inherited environment.
	Env(session *Session) map[string]string

	// BuildPrompt constructs the initial text submitted to the worker
	// once its terminal session is live.
	BuildPrompt(session *Session) string

	// ParseOutput interprets a worker's raw captured text once it has
	// exited, producing a structured Result.
	ParseOutput(exitCode int, raw string) (*Result, error)

	// Validate checks that the adapter is configured correctly (e.g.
	// the binary named by Command is resolvable).
	Validate() error
}
