// Package classify turns a captured terminal pane snapshot from a
// subordinate worker into a semantic AgentOutputEvent. It is a pure
// function over text: no I/O, no state, ordered regex pattern tables
// evaluated top to bottom, same technique as the teacher's bash-command
// classifier but applied to pane output instead of shell invocations.
package classify

import (
	"regexp"
	"strings"
)

// Kind tags the variant of an AgentOutputEvent.
type Kind string

const (
	KindText      Kind = "text"
	KindQuestion  Kind = "question"
	KindCompleted Kind = "completed"
	KindError     Kind = "error"
)

// Event is the tagged union produced by Classify. Text carries the
// trailing tail for Text and Error; Question carries the extracted
// question text.
type Event struct {
	Kind Kind
	Text string
}

// errorMarkers recognize a worker reporting a failure.
var errorMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\berror:`),
	regexp.MustCompile(`(?i)\bfailed:`),
	regexp.MustCompile(`(?i)\bfatal:`),
	regexp.MustCompile(`(?i)\bpanic:`),
	regexp.MustCompile(`(?i)\bexception:`),
	regexp.MustCompile(`❌`),
	regexp.MustCompile(`✗`),
}

// completionMarkers recognize a worker reporting it finished its task.
var completionMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?i)task completed`),
	regexp.MustCompile(`(?i)successfully completed`),
	regexp.MustCompile(`(?i)build successful`),
	regexp.MustCompile(`(?i)done!`),
	regexp.MustCompile(`(?i)✅\s*done`),
}

// interrogativePhrases recognize a worker asking a natural-language
// question without a trailing "?".
var interrogativePhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdo you want\b`),
	regexp.MustCompile(`(?i)\bwould you like\b`),
	regexp.MustCompile(`(?i)\bshould i\b`),
	regexp.MustCompile(`(?i)\bshall i\b`),
	regexp.MustCompile(`(?i)\bcan i\b`),
	regexp.MustCompile(`(?i)\bmay i\b`),
	regexp.MustCompile(`(?i)\bplease confirm\b`),
	regexp.MustCompile(`(?i)\bplease select\b`),
	regexp.MustCompile(`(?i)\bchoose one\b`),
	regexp.MustCompile(`(?i)\bselect an option\b`),
	regexp.MustCompile(`(?i)\benter your\b`),
	regexp.MustCompile(`(?i)\btype your\b`),
	regexp.MustCompile(`(?i)\bwhat is\b`),
}

// waitingSentinels recognize a worker that has stopped to wait for input.
var waitingSentinels = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bpress enter\b`),
	regexp.MustCompile(`(?i)\bplease provide\b`),
	regexp.MustCompile(`(?i)\benter\s*$`),
}

// waitingSentinelChars are trailing shell-prompt-like characters on the
// last non-empty line that indicate the worker is blocked on input.
var waitingSentinelChars = regexp.MustCompile(`[>:]\s*$|\?\s+$`)

// optionListLine matches a numbered or lettered option list entry, e.g.
// "1. Use Postgres" or "a) Use SQLite".
var optionListLine = regexp.MustCompile(`^\s*(?:\d+[.)]|[a-zA-Z][.)])\s+\S`)

// Classify applies the ordered rules to the trailing non-empty lines of
// a pane snapshot and returns the resulting event.
func Classify(paneSnapshot string) Event {
	lines := trailingNonEmptyLines(paneSnapshot)
	if len(lines) == 0 {
		return Event{Kind: KindText, Text: ""}
	}
	tail := strings.Join(lines, "\n")

	if m := firstMatch(errorMarkers, tail); m != "" {
		return Event{Kind: KindError, Text: tail}
	}
	if firstMatch(completionMarkers, tail) != "" {
		return Event{Kind: KindCompleted}
	}
	if q, ok := questionText(lines); ok {
		return Event{Kind: KindQuestion, Text: q}
	}
	return Event{Kind: KindText, Text: tail}
}

func firstMatch(patterns []*regexp.Regexp, text string) string {
	for _, p := range patterns {
		if loc := p.FindStringIndex(text); loc != nil {
			return text[loc[0]:loc[1]]
		}
	}
	return ""
}

// questionText decides whether the tail is a question, per the four
// recognized forms, and if so extracts the question text.
func questionText(lines []string) (string, bool) {
	last := lines[len(lines)-1]

	if strings.HasSuffix(strings.TrimRight(last, " \t"), "?") {
		return extractQuestionRun(lines), true
	}

	if optionListCount(lines) >= 2 {
		if prompt, ok := optionListPrompt(lines); ok {
			return prompt, true
		}
	}

	joined := strings.Join(lines, "\n")
	if firstMatch(interrogativePhrases, joined) != "" {
		return extractQuestionRun(lines), true
	}

	if waitingSentinelChars.MatchString(last) || firstMatch(waitingSentinels, last) != "" {
		return extractQuestionRun(lines), true
	}

	return "", false
}

// optionListCount returns how many of the last lines are option-list
// entries.
func optionListCount(lines []string) int {
	n := 0
	for _, l := range lines {
		if optionListLine.MatchString(l) {
			n++
		}
	}
	return n
}

// optionListPrompt returns the prompt line immediately preceding the
// first option-list entry, if that line ends with ":".
func optionListPrompt(lines []string) (string, bool) {
	for i, l := range lines {
		if optionListLine.MatchString(l) {
			if i == 0 {
				return "", false
			}
			prev := strings.TrimSpace(lines[i-1])
			if strings.HasSuffix(prev, ":") {
				return prev, true
			}
			return "", false
		}
	}
	return "", false
}

// extractQuestionRun returns the last run of consecutive non-empty
// lines, trimmed, which by construction is exactly `lines` since
// trailingNonEmptyLines already stripped blank lines from the tail.
func extractQuestionRun(lines []string) string {
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// trailingNonEmptyLines returns the final contiguous run of non-blank
// lines from the snapshot, in order.
func trailingNonEmptyLines(snapshot string) []string {
	all := strings.Split(snapshot, "\n")
	end := len(all)
	for end > 0 && strings.TrimSpace(all[end-1]) == "" {
		end--
	}
	start := end
	for start > 0 && strings.TrimSpace(all[start-1]) != "" {
		start--
	}
	return all[start:end]
}
