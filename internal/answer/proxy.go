// Package answer implements the autonomous answer proxy: it stands in
// for the human operator when a subordinate worker asks a question
// mid-task, keeping every answer consistent with the original prompt
// and with every answer given so far in the workflow.
package answer

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Pair is one recorded question/answer exchange.
type Pair struct {
	Question string
	Answer   string
}

// Context is the conversation state shared across a workflow's
// questions: the running Q&A history plus a dictionary of decisions
// extracted from it. It is safe for concurrent use; AnswerQuestion takes
// the write lock only while recording the new pair, so concurrent
// readers via Summary are never blocked by each other.
type Context struct {
	mu        sync.RWMutex
	history   []Pair
	decisions map[string]string
}

// NewContext returns an empty conversation context.
func NewContext() *Context {
	return &Context{decisions: make(map[string]string)}
}

// escalationPhrases mark a question as genuinely ambiguous: no answer
// the proxy gives can be more than a guess.
var escalationPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)personal preference`),
	regexp.MustCompile(`(?i)which style do you prefer`),
	regexp.MustCompile(`(?i)there are multiple valid`),
	regexp.MustCompile(`(?i)which approach do you prefer`),
}

// NeedsEscalation reports whether q matches one of escalationPhrases.
// It only flags the question; AnswerQuestion answers a flagged question
// like any other.
func NeedsEscalation(q string) bool {
	for _, p := range escalationPhrases {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// decisionRule maps a keyword match in a question to the decisions key
// it should populate.
type decisionRule struct {
	pattern *regexp.Regexp
	key     string
}

var decisionRules = []decisionRule{
	{regexp.MustCompile(`(?i)\bnaming\b|\bname\b`), "naming"},
	{regexp.MustCompile(`(?i)which database|what database`), "database"},
	{regexp.MustCompile(`(?i)\blibrary\b|\bframework\b|\bcrate\b|\bpackage\b`), "tech"},
}

// AnswerFunc produces an answer for a question given the accumulated
// context. The default (Heuristic) is deterministic and model-free; a
// caller wanting an LLM-backed proxy supplies its own AnswerFunc backed
// by a small, fast model.
type AnswerFunc func(prompt, question string, history []Pair, decisions map[string]string) string

// Proxy answers worker questions on behalf of the human operator for a
// single workflow. Proxy itself is immutable once constructed and holds
// a pointer to shared Context, so it can be cheaply copied and handed
// to multiple scheduler goroutines.
type Proxy struct {
	Prompt  string
	Context *Context
	Answer  AnswerFunc
}

// New returns a Proxy using the given answer function. Pass Heuristic
// for the deterministic fallback used in tests and when no model
// endpoint is configured.
func New(prompt string, fn AnswerFunc) *Proxy {
	if fn == nil {
		fn = Heuristic
	}
	return &Proxy{Prompt: prompt, Context: NewContext(), Answer: fn}
}

// AnswerQuestion produces an answer for q consistent with the original
// prompt and every prior pair, then records the new pair and updates
// the decisions dictionary.
func (p *Proxy) AnswerQuestion(q string) string {
	p.Context.mu.RLock()
	history := make([]Pair, len(p.Context.history))
	copy(history, p.Context.history)
	decisions := make(map[string]string, len(p.Context.decisions))
	for k, v := range p.Context.decisions {
		decisions[k] = v
	}
	p.Context.mu.RUnlock()

	a := p.Answer(p.Prompt, q, history, decisions)

	p.Context.mu.Lock()
	p.Context.history = append(p.Context.history, Pair{Question: q, Answer: a})
	for _, rule := range decisionRules {
		if rule.pattern.MatchString(q) {
			p.Context.decisions[rule.key] = a
		}
	}
	p.Context.mu.Unlock()

	return a
}

// Summary renders the accumulated decisions as a block suitable for
// prepending to a future worker prompt, so later tasks stay consistent
// with earlier answers.
func (p *Proxy) Summary() string {
	p.Context.mu.RLock()
	defer p.Context.mu.RUnlock()
	if len(p.Context.decisions) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Decisions made so far:\n")
	for _, k := range []string{"naming", "database", "tech"} {
		if v, ok := p.Context.decisions[k]; ok {
			fmt.Fprintf(&b, "- %s: %s\n", k, v)
		}
	}
	return b.String()
}

// Heuristic is the deterministic, model-free fallback: it echoes the
// most specific decision already on record for a repeated question, and
// otherwise answers with the first sentence of the original prompt, a
// predictable answer suitable for tests and for headless runs with no
// model endpoint configured.
func Heuristic(prompt, question string, history []Pair, decisions map[string]string) string {
	for _, rule := range decisionRules {
		if rule.pattern.MatchString(question) {
			if v, ok := decisions[rule.key]; ok {
				return v
			}
		}
	}
	for _, pair := range history {
		if strings.EqualFold(strings.TrimSpace(pair.Question), strings.TrimSpace(question)) {
			return pair.Answer
		}
	}
	return firstSentence(prompt)
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".!?\n"); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
