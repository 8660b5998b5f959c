// Package model holds the core data types shared across the orchestration
// core: workflows, tasks, dependency edges, conflict records, and the
// identifiers that tie them together.
package model

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// ID is an opaque, comparable, hashable identifier for a workflow, task, or
// worker. It is a plain string (the canonical 36-character UUID form) so it
// works directly as a map key.
type ID string

// NewID generates a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// Short returns the first 8 characters of the canonical form, the
// human-readable display form used in logs and CLI output.
func (id ID) Short() string {
	s := string(id)
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}

func (id ID) String() string {
	return string(id)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// SlugName derives a short display name from a free-text prompt: the first
// few words, lowercased, with runs of non-alphanumeric characters collapsed
// to a single "-" separator.
func SlugName(prompt string, maxWords int) string {
	fields := strings.Fields(strings.ToLower(prompt))
	if len(fields) > maxWords {
		fields = fields[:maxWords]
	}
	joined := strings.Join(fields, " ")
	slug := nonAlphanumeric.ReplaceAllString(joined, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		return "workflow"
	}
	return slug
}
