package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/zenweave/zen/internal/model"
)

// IsMigrated reports whether MigrateFromJSON has already run against
// this repository.
func (s *Store) IsMigrated() (bool, error) {
	_, err := s.repo.Reference(s.migratedRef(), true)
	if err == plumbing.ErrReferenceNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// NeedsMigration reports whether migration from the legacy JSON-file
// layout at legacyDir is still outstanding: the migration marker must
// be absent AND a legacy workflow/tasks directory must actually exist.
// A fresh repository with neither the marker nor a legacy directory
// reports false — there is nothing to migrate. Unlike MigrateFromJSON,
// this performs no side effects.
func (s *Store) NeedsMigration(legacyDir string) (bool, error) {
	migrated, err := s.IsMigrated()
	if err != nil {
		return false, err
	}
	if migrated {
		return false, nil
	}
	if _, err := os.Stat(legacyDir); os.IsNotExist(err) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	return true, nil
}

// markMigrated sets the singleton migration marker ref.
func (s *Store) markMigrated() error {
	now := time.Now()
	var treeHash plumbing.Hash
	empty := &object.Tree{}
	obj := s.repo.Storer.NewEncodedObject()
	if err := empty.Encode(obj); err != nil {
		return err
	}
	treeHash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return err
	}
	commit := &object.Commit{
		Author:    object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Committer: object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Message:   "zen: migrated from JSON-file layout",
		TreeHash:  treeHash,
	}
	commitObj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return err
	}
	hash, err := s.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return err
	}
	return s.repo.Storer.SetReference(plumbing.NewHashReference(s.migratedRef(), hash))
}

// legacyLayout mirrors the flat JSON-file store an earlier prototype of
// this tool used before the git-native ref/notes layout: one
// workflow.json and a tasks/ directory of <id>.json files under a
// .zen/state directory in the repository.
type legacyLayout struct {
	dir string
}

// MigrateFromJSON imports any workflows and tasks found in the legacy
// .zen/state JSON-file layout (if present) into ref/notes storage, then
// sets the migration marker so this only ever runs once. Once the marker
// is set it does nothing; if the legacy directory does not exist it
// imports nothing and only sets the marker. Neither case is an error.
func (s *Store) MigrateFromJSON(legacyDir string) error {
	if migrated, err := s.IsMigrated(); err != nil {
		return err
	} else if migrated {
		return nil
	}

	layout := legacyLayout{dir: legacyDir}
	if _, err := os.Stat(layout.dir); os.IsNotExist(err) {
		return s.markMigrated()
	}

	if wf, err := layout.loadWorkflow(); err != nil {
		return fmt.Errorf("statestore: migrate legacy workflow: %w", err)
	} else if wf != nil {
		if err := s.SaveWorkflow(wf); err != nil {
			return err
		}
	}

	tasks, err := layout.loadTasks()
	if err != nil {
		return fmt.Errorf("statestore: migrate legacy tasks: %w", err)
	}
	for _, t := range tasks {
		if err := s.SaveTask(t); err != nil {
			return err
		}
	}

	return s.markMigrated()
}

func (l legacyLayout) loadWorkflow() (*model.Workflow, error) {
	raw, err := os.ReadFile(filepath.Join(l.dir, "workflow.json"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var wf model.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (l legacyLayout) loadTasks() ([]*model.Task, error) {
	entries, err := os.ReadDir(filepath.Join(l.dir, "tasks"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tasks []*model.Task
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(l.dir, "tasks", e.Name()))
		if err != nil {
			return nil, err
		}
		var t model.Task
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	return tasks, nil
}
