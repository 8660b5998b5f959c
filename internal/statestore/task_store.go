package statestore

import (
	"encoding/json"
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/zenweave/zen/internal/model"
)

// SaveTask persists task's current JSON representation under its ref,
// creating the ref's anchor commit the first time the task is saved.
func (s *Store) SaveTask(task *model.Task) error {
	ref := s.taskRef(task.ID.String())
	anchor, err := s.ensureAnchorCommit(ref, fmt.Sprintf("zen: task %s", task.ID.Short()))
	if err != nil {
		return fmt.Errorf("statestore: ensure anchor for task %s: %w", task.ID.Short(), err)
	}
	payload, err := marshal(task)
	if err != nil {
		return fmt.Errorf("statestore: marshal task %s: %w", task.ID.Short(), err)
	}
	if err := s.attachNote(s.tasksNotesRef(), anchor, payload); err != nil {
		return fmt.Errorf("statestore: attach note for task %s: %w", task.ID.Short(), err)
	}
	return nil
}

// LoadTask reads back the task persisted under id.
func (s *Store) LoadTask(id model.ID) (*model.Task, error) {
	ref, err := s.repo.Reference(s.taskRef(id.String()), true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("statestore: resolve task ref %s: %w", id.Short(), err)
	}
	raw, err := s.readNote(s.tasksNotesRef(), ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("statestore: read note for task %s: %w", id.Short(), err)
	}
	var task model.Task
	if err := json.Unmarshal(raw, &task); err != nil {
		return nil, fmt.Errorf("statestore: unmarshal task %s: %w", id.Short(), err)
	}
	return &task, nil
}

// ListTaskIDs returns the IDs of every task with a ref under
// <refs-root>/tasks/, across every workflow.
func (s *Store) ListTaskIDs() ([]model.ID, error) {
	return s.listIDs(s.refsRoot + "/tasks/")
}

// DeleteTask removes id's ref and its notes-tree entry. It is
// idempotent: deleting an id with no recorded task is not an error.
func (s *Store) DeleteTask(id model.ID) error {
	ref := s.taskRef(id.String())
	existing, err := s.repo.Reference(ref, true)
	if err == plumbing.ErrReferenceNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("statestore: resolve task ref %s: %w", id.Short(), err)
	}
	if err := s.detachNote(s.tasksNotesRef(), existing.Hash()); err != nil {
		return fmt.Errorf("statestore: detach note for task %s: %w", id.Short(), err)
	}
	if err := s.repo.Storer.RemoveReference(ref); err != nil {
		return fmt.Errorf("statestore: remove task ref %s: %w", id.Short(), err)
	}
	return nil
}
