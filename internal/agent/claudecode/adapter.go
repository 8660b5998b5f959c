// Package claudecode adapts the claude-code CLI to the agent.Agent
// interface.
package claudecode

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zenweave/zen/internal/agent"
)

// DefaultBinary is the executable name resolved via PATH.
const DefaultBinary = "claude"

// Adapter implements agent.Agent for the claude-code CLI.
type Adapter struct {
	binary string
}

// New returns a claude-code adapter using DefaultBinary.
func New() *Adapter {
	return &Adapter{binary: DefaultBinary}
}

// Name returns the agent identifier.
func (a *Adapter) Name() string { return "claude-code" }

// Command returns the argv for a non-interactive claude-code invocation
// with permission prompts suppressed, since the worker runs unattended
// in its own worktree.
func (a *Adapter) Command(session *agent.Session) []string {
	args := []string{a.binary, "--print", "--dangerously-skip-permissions"}
	if session.SystemPrompt != "" {
		args = append(args, "--system-prompt", session.SystemPrompt)
	}
	if session.Model != "" {
		args = append(args, "--model", session.Model)
	}
	return args
}

// Env returns the environment variables the worker needs to identify
// itself and its task in logs and status signals.
func (a *Adapter) Env(session *agent.Session) map[string]string {
	env := map[string]string{
		"ZEN_TASK_ID":     session.TaskID,
		"ZEN_WORKFLOW_ID": session.WorkflowID,
		"ZEN_WORKDIR":     session.WorktreePath,
	}
	for k, v := range session.Metadata {
		env["ZEN_"+strings.ToUpper(k)] = v
	}
	return env
}

// BuildPrompt returns the session's prompt verbatim; per-phase framing
// is composed upstream by internal/skills.
func (a *Adapter) BuildPrompt(session *agent.Session) string {
	return session.Prompt
}

// statusPattern matches a ZEN_STATUS signal line of the form
// "ZEN_STATUS: STATUS_NAME [optional message]".
var statusPattern = regexp.MustCompile(`ZEN_STATUS:[ \t]*(\w+)(?:[ \t]+([^\n]+))?`)

var errorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)error:?\s+(.+)`),
	regexp.MustCompile(`(?i)fatal:?\s+(.+)`),
}

// ParseOutput extracts the worker's terminal status from its raw
// captured output, falling back to exit code when no signal was found.
func (a *Adapter) ParseOutput(exitCode int, raw string) (*agent.Result, error) {
	result := &agent.Result{ExitCode: exitCode, Success: exitCode == 0, RawText: raw}

	if matches := statusPattern.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		last := matches[len(matches)-1]
		status := last[1]
		msg := ""
		if len(last) > 2 {
			msg = strings.TrimSpace(last[2])
		}
		switch status {
		case "COMPLETE", "TESTS_PASSED":
			result.Success = true
		case "FAILED":
			result.Success = false
		}
		result.Summary = strings.TrimSpace(fmt.Sprintf("%s %s", status, msg))
	}

	if !result.Success {
		for _, p := range errorPatterns {
			if m := p.FindStringSubmatch(raw); len(m) > 1 {
				result.Error = strings.TrimSpace(m[1])
				break
			}
		}
		if result.Error == "" {
			lines := strings.Split(strings.TrimSpace(raw), "\n")
			if len(lines) > 0 {
				result.Error = lines[len(lines)-1]
			}
		}
	}

	if result.Summary == "" {
		if result.Success {
			result.Summary = "task completed successfully"
		} else {
			result.Summary = fmt.Sprintf("task failed: %s", result.Error)
		}
	}

	return result, nil
}

// Validate checks that the adapter has a binary name configured.
func (a *Adapter) Validate() error {
	if a.binary == "" {
		return fmt.Errorf("claude-code adapter: binary name is required")
	}
	return nil
}

func init() {
	agent.Register("claude-code", func() agent.Agent { return New() })
}
