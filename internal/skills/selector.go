package skills

import "strings"

// Selector composes loaded skills into a phase-scoped system prompt.
type Selector struct {
	skills []Skill
}

// NewSelector returns a Selector over a priority-sorted slice of
// loaded skills (see LoadSkills).
func NewSelector(skills []Skill) *Selector {
	return &Selector{skills: skills}
}

// SelectForPhase composes every skill that applies to phase into one
// prompt, in priority order, separated by blank lines. A skill with no
// declared phases is universal and always included.
func (s *Selector) SelectForPhase(phase string) string {
	var parts []string
	for _, sk := range s.skills {
		if s.matchesPhase(sk, phase) {
			parts = append(parts, sk.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (s *Selector) matchesPhase(sk Skill, phase string) bool {
	if len(sk.Entry.Phases) == 0 {
		return true
	}
	for _, p := range sk.Entry.Phases {
		if p == phase {
			return true
		}
	}
	return false
}
