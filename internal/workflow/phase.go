package workflow

import (
	"fmt"
	"time"

	"github.com/zenweave/zen/internal/model"
)

// ErrInvalidPhaseTransition is returned when a transition would skip
// ahead, go backward, or otherwise deviate from the strict ordering
// Planning < TaskGeneration < Implementation < Merging < Documentation
// < Complete.
type ErrInvalidPhaseTransition struct {
	From, To model.Phase
}

func (e *ErrInvalidPhaseTransition) Error() string {
	return fmt.Sprintf("workflow: invalid phase transition %s -> %s", e.From, e.To)
}

// legalNext lists, for each phase, the only phases a transition may
// target. Documentation is optional (config.UpdateDocs == false skips
// straight from Merging to Complete), so Merging legally leads to
// either.
var legalNext = map[model.Phase][]model.Phase{
	model.PhasePlanning:       {model.PhaseTaskGeneration},
	model.PhaseTaskGeneration: {model.PhaseImplementation},
	model.PhaseImplementation: {model.PhaseMerging},
	model.PhaseMerging:        {model.PhaseDocumentation, model.PhaseComplete},
	model.PhaseDocumentation:  {model.PhaseComplete},
	model.PhaseComplete:       {},
}

// PhaseEventKind tags the variant of a PhaseEvent.
type PhaseEventKind string

const (
	PhaseStarted   PhaseEventKind = "phase_started"
	PhaseCompleted PhaseEventKind = "phase_completed"
)

// PhaseEvent is emitted by the PhaseController on every transition.
type PhaseEvent struct {
	Kind     PhaseEventKind
	Phase    model.Phase
	Duration time.Duration // set on PhaseCompleted; the time spent in the prior phase
}

// PhaseController holds a workflow's current phase, its transition
// history, and a sink for phase-change events.
type PhaseController struct {
	current model.Phase
	since   time.Time
	history []model.PhaseHistoryEntry
	events  chan PhaseEvent
}

// NewPhaseController returns a controller starting at model.PhasePlanning.
func NewPhaseController() *PhaseController {
	now := time.Now()
	return &PhaseController{
		current: model.PhasePlanning,
		since:   now,
		history: []model.PhaseHistoryEntry{{Phase: model.PhasePlanning, Timestamp: now}},
		events:  make(chan PhaseEvent, 16),
	}
}

// Events returns the channel PhaseEvents are published on.
func (c *PhaseController) Events() <-chan PhaseEvent { return c.events }

// Current returns the phase the controller is currently in.
func (c *PhaseController) Current() model.Phase { return c.current }

// Elapsed returns the time since the last transition.
func (c *PhaseController) Elapsed() time.Duration { return time.Since(c.since) }

// History returns the accumulated phase-history entries.
func (c *PhaseController) History() []model.PhaseHistoryEntry {
	out := make([]model.PhaseHistoryEntry, len(c.history))
	copy(out, c.history)
	return out
}

// Transition enforces the legal ordering and, if target is a legal
// next phase from the current one, moves to it, recording the
// duration spent in the phase being left and emitting PhaseCompleted
// then PhaseStarted.
func (c *PhaseController) Transition(target model.Phase) error {
	legal := legalNext[c.current]
	allowed := false
	for _, p := range legal {
		if p == target {
			allowed = true
			break
		}
	}
	if !allowed {
		return &ErrInvalidPhaseTransition{From: c.current, To: target}
	}

	duration := c.Elapsed()
	c.emit(PhaseEvent{Kind: PhaseCompleted, Phase: c.current, Duration: duration})

	c.current = target
	c.since = time.Now()
	c.history = append(c.history, model.PhaseHistoryEntry{Phase: target, Timestamp: c.since})
	c.emit(PhaseEvent{Kind: PhaseStarted, Phase: target})
	return nil
}

func (c *PhaseController) emit(ev PhaseEvent) {
	select {
	case c.events <- ev:
	default:
	}
}
