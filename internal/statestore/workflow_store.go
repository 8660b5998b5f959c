package statestore

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/zenweave/zen/internal/model"
)

// SaveWorkflow persists wf's current JSON representation under its ref,
// creating the ref's anchor commit the first time the workflow is
// saved.
func (s *Store) SaveWorkflow(wf *model.Workflow) error {
	ref := s.workflowRef(wf.ID.String())
	anchor, err := s.ensureAnchorCommit(ref, fmt.Sprintf("zen: workflow %s", wf.ID.Short()))
	if err != nil {
		return fmt.Errorf("statestore: ensure anchor for workflow %s: %w", wf.ID.Short(), err)
	}
	payload, err := marshal(wf)
	if err != nil {
		return fmt.Errorf("statestore: marshal workflow %s: %w", wf.ID.Short(), err)
	}
	if err := s.attachNote(s.workflowsNotesRef(), anchor, payload); err != nil {
		return fmt.Errorf("statestore: attach note for workflow %s: %w", wf.ID.Short(), err)
	}
	return nil
}

// LoadWorkflow reads back the workflow persisted under id.
func (s *Store) LoadWorkflow(id model.ID) (*model.Workflow, error) {
	ref, err := s.repo.Reference(s.workflowRef(id.String()), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: resolve workflow ref %s: %w", id.Short(), err)
	}
	raw, err := s.readNote(s.workflowsNotesRef(), ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("statestore: read note for workflow %s: %w", id.Short(), err)
	}
	var wf model.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("statestore: unmarshal workflow %s: %w", id.Short(), err)
	}
	return &wf, nil
}

// ListWorkflowIDs returns the IDs of every workflow with a ref under
// <refs-root>/workflows/.
func (s *Store) ListWorkflowIDs() ([]model.ID, error) {
	return s.listIDs(s.refsRoot + "/workflows/")
}

// DeleteWorkflow removes id's ref and its notes-tree entry. It is
// idempotent: deleting an id with no recorded workflow is not an
// error.
func (s *Store) DeleteWorkflow(id model.ID) error {
	ref := s.workflowRef(id.String())
	existing, err := s.repo.Reference(ref, true)
	if err == plumbing.ErrReferenceNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("statestore: resolve workflow ref %s: %w", id.Short(), err)
	}
	if err := s.detachNote(s.workflowsNotesRef(), existing.Hash()); err != nil {
		return fmt.Errorf("statestore: detach note for workflow %s: %w", id.Short(), err)
	}
	if err := s.repo.Storer.RemoveReference(ref); err != nil {
		return fmt.Errorf("statestore: remove workflow ref %s: %w", id.Short(), err)
	}
	return nil
}

func (s *Store) listIDs(prefix string) ([]model.ID, error) {
	iter, err := s.repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("statestore: iterate references: %w", err)
	}
	var ids []model.ID
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if strings.HasPrefix(name, prefix) {
			ids = append(ids, model.ID(strings.TrimPrefix(name, prefix)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
