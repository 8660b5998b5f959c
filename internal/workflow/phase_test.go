package workflow

import (
	"errors"
	"testing"

	"github.com/zenweave/zen/internal/model"
)

func TestPhaseControllerWalksLegalOrder(t *testing.T) {
	c := NewPhaseController()
	if c.Current() != model.PhasePlanning {
		t.Fatalf("initial phase = %s, want planning", c.Current())
	}

	order := []model.Phase{
		model.PhaseTaskGeneration,
		model.PhaseImplementation,
		model.PhaseMerging,
		model.PhaseDocumentation,
		model.PhaseComplete,
	}
	for _, next := range order {
		if err := c.Transition(next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
		if c.Current() != next {
			t.Fatalf("Current() = %s, want %s", c.Current(), next)
		}
	}

	if len(c.History()) != 6 {
		t.Errorf("len(History()) = %d, want 6 (planning + 5 transitions)", len(c.History()))
	}
}

func TestPhaseControllerMergingCanSkipDocumentation(t *testing.T) {
	c := NewPhaseController()
	for _, next := range []model.Phase{model.PhaseTaskGeneration, model.PhaseImplementation, model.PhaseMerging} {
		if err := c.Transition(next); err != nil {
			t.Fatalf("Transition(%s): %v", next, err)
		}
	}
	if err := c.Transition(model.PhaseComplete); err != nil {
		t.Fatalf("Merging -> Complete should be legal, got: %v", err)
	}
}

func TestPhaseControllerRejectsIllegalTransition(t *testing.T) {
	c := NewPhaseController()
	err := c.Transition(model.PhaseMerging)
	if err == nil {
		t.Fatal("expected an error skipping ahead from Planning to Merging")
	}
	var target *ErrInvalidPhaseTransition
	if !errors.As(err, &target) {
		t.Fatalf("error = %v, want *ErrInvalidPhaseTransition", err)
	}
	if target.From != model.PhasePlanning || target.To != model.PhaseMerging {
		t.Errorf("From/To = %s/%s, want planning/merging", target.From, target.To)
	}
}

func TestPhaseControllerEmitsStartedAndCompletedEvents(t *testing.T) {
	c := NewPhaseController()
	if err := c.Transition(model.PhaseTaskGeneration); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	var kinds []PhaseEventKind
	for i := 0; i < 2; i++ {
		select {
		case ev := <-c.Events():
			kinds = append(kinds, ev.Kind)
		default:
			t.Fatalf("expected two buffered events, got %d", i)
		}
	}
	if kinds[0] != PhaseCompleted || kinds[1] != PhaseStarted {
		t.Errorf("event order = %v, want [completed, started]", kinds)
	}
}
