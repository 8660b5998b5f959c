// Package statestore persists workflows and tasks as git-native state:
// each workflow or task gets a namespaced ref pointing at an anchor
// commit in the host repository, and the entity's JSON is attached to
// that commit as a note. This survives process restart without any
// separate database, and the history of every change is just git
// history.
package statestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Store persists workflow and task JSON as refs + notes in a git
// repository. All operations go through the repository's object and
// reference storers directly; no working tree is touched.
type Store struct {
	repo      *git.Repository
	refsRoot  string
	notesRoot string
}

const (
	defaultRefsRoot  = "refs/zen"
	defaultNotesRoot = "refs/notes/zen"
)

// Open opens the git repository at repoDir and returns a Store using
// the default ref namespaces.
func Open(repoDir string) (*Store, error) {
	repo, err := git.PlainOpen(repoDir)
	if err != nil {
		return nil, fmt.Errorf("statestore: open repository at %s: %w", repoDir, err)
	}
	return &Store{repo: repo, refsRoot: defaultRefsRoot, notesRoot: defaultNotesRoot}, nil
}

func (s *Store) workflowRef(id string) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("%s/workflows/%s", s.refsRoot, id))
}

func (s *Store) taskRef(id string) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("%s/tasks/%s", s.refsRoot, id))
}

func (s *Store) workflowsNotesRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.notesRoot + "/workflows")
}

func (s *Store) tasksNotesRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.notesRoot + "/tasks")
}

// migratedRef is a singleton marker recording that a prior JSON-file
// layout (if one ever existed) has been migrated into this store.
func (s *Store) migratedRef() plumbing.ReferenceName {
	return plumbing.ReferenceName(s.refsRoot + "/migrated")
}

var zenSignature = object.Signature{
	Name:  "zen",
	Email: "zen@localhost",
}

// saveBlob writes content as a git blob and returns its hash.
func (s *Store) saveBlob(content []byte) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, err
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	return s.repo.Storer.SetEncodedObject(obj)
}

// ensureAnchorCommit returns the commit referenced by ref, creating an
// empty anchor commit for it (parented on the repo's current HEAD when
// one exists) if the ref does not exist yet.
func (s *Store) ensureAnchorCommit(ref plumbing.ReferenceName, message string) (plumbing.Hash, error) {
	if existing, err := s.repo.Reference(ref, true); err == nil {
		return existing.Hash(), nil
	} else if err != plumbing.ErrReferenceNotFound {
		return plumbing.ZeroHash, err
	}

	var parents []plumbing.Hash
	var treeHash plumbing.Hash
	if head, err := s.repo.Head(); err == nil {
		parents = []plumbing.Hash{head.Hash()}
		headCommit, err := s.repo.CommitObject(head.Hash())
		if err != nil {
			return plumbing.ZeroHash, err
		}
		treeHash = headCommit.TreeHash
	} else {
		empty := &object.Tree{}
		obj := s.repo.Storer.NewEncodedObject()
		if err := empty.Encode(obj); err != nil {
			return plumbing.ZeroHash, err
		}
		treeHash, err = s.repo.Storer.SetEncodedObject(obj)
		if err != nil {
			return plumbing.ZeroHash, err
		}
	}

	now := time.Now()
	commit := &object.Commit{
		Author:       object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Committer:    object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Message:      message,
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return plumbing.ZeroHash, err
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(ref, hash)); err != nil {
		return plumbing.ZeroHash, err
	}
	return hash, nil
}

// attachNote writes noteContent as a blob and attaches it, keyed by the
// hex form of target, to the notes tree that notesRef points at,
// creating or updating that ref's commit.
func (s *Store) attachNote(notesRef plumbing.ReferenceName, target plumbing.Hash, noteContent []byte) error {
	blobHash, err := s.saveBlob(noteContent)
	if err != nil {
		return err
	}

	entries, parent, err := s.readNotesTree(notesRef)
	if err != nil {
		return err
	}

	key := target.String()
	replaced := false
	for i, e := range entries {
		if e.Name == key {
			entries[i].Hash = blobHash
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, object.TreeEntry{Name: key, Mode: filemode.Regular, Hash: blobHash})
	}

	tree := &object.Tree{Entries: entries}
	treeObj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return err
	}
	treeHash, err := s.repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return err
	}

	now := time.Now()
	var parents []plumbing.Hash
	if parent != plumbing.ZeroHash {
		parents = []plumbing.Hash{parent}
	}
	commit := &object.Commit{
		Author:       object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Committer:    object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Message:      fmt.Sprintf("zen: note %s", key),
		TreeHash:     treeHash,
		ParentHashes: parents,
	}
	commitObj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return err
	}
	commitHash, err := s.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return err
	}
	return s.repo.Storer.SetReference(plumbing.NewHashReference(notesRef, commitHash))
}

// readNotesTree returns the current entries of the tree that notesRef's
// commit points at (empty if the ref doesn't exist yet), plus the
// commit hash to use as the new note commit's parent.
func (s *Store) readNotesTree(notesRef plumbing.ReferenceName) ([]object.TreeEntry, plumbing.Hash, error) {
	ref, err := s.repo.Reference(notesRef, true)
	if err == plumbing.ErrReferenceNotFound {
		return nil, plumbing.ZeroHash, nil
	}
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	tree, err := s.repo.TreeObject(commit.TreeHash)
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	entries := make([]object.TreeEntry, len(tree.Entries))
	copy(entries, tree.Entries)
	return entries, ref.Hash(), nil
}

// readNote looks up the note blob keyed by target's hex hash in the
// tree that notesRef points at.
func (s *Store) readNote(notesRef plumbing.ReferenceName, target plumbing.Hash) ([]byte, error) {
	entries, _, err := s.readNotesTree(notesRef)
	if err != nil {
		return nil, err
	}
	key := target.String()
	for _, e := range entries {
		if e.Name == key {
			blob, err := s.repo.BlobObject(e.Hash)
			if err != nil {
				return nil, err
			}
			r, err := blob.Reader()
			if err != nil {
				return nil, err
			}
			defer r.Close()
			var buf bytes.Buffer
			if _, err := buf.ReadFrom(r); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		}
	}
	return nil, ErrNotFound
}

// detachNote removes the entry keyed by target's hex hash from the
// tree notesRef points at, committing the updated tree as notesRef's
// new target. It is a no-op if notesRef does not exist yet or has no
// such entry.
func (s *Store) detachNote(notesRef plumbing.ReferenceName, target plumbing.Hash) error {
	entries, parent, err := s.readNotesTree(notesRef)
	if err != nil {
		return err
	}
	if parent == plumbing.ZeroHash {
		return nil
	}

	key := target.String()
	filtered := make([]object.TreeEntry, 0, len(entries))
	found := false
	for _, e := range entries {
		if e.Name == key {
			found = true
			continue
		}
		filtered = append(filtered, e)
	}
	if !found {
		return nil
	}

	tree := &object.Tree{Entries: filtered}
	treeObj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(treeObj); err != nil {
		return err
	}
	treeHash, err := s.repo.Storer.SetEncodedObject(treeObj)
	if err != nil {
		return err
	}

	now := time.Now()
	commit := &object.Commit{
		Author:       object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Committer:    object.Signature{Name: zenSignature.Name, Email: zenSignature.Email, When: now},
		Message:      fmt.Sprintf("zen: remove note %s", key),
		TreeHash:     treeHash,
		ParentHashes: []plumbing.Hash{parent},
	}
	commitObj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(commitObj); err != nil {
		return err
	}
	commitHash, err := s.repo.Storer.SetEncodedObject(commitObj)
	if err != nil {
		return err
	}
	return s.repo.Storer.SetReference(plumbing.NewHashReference(notesRef, commitHash))
}

// HealthCheck confirms the host repository backing this Store is still
// reachable: it exercises the reference storer and, when the
// repository has a checked-out branch, resolves HEAD. An unborn branch
// (no commits yet) is not a health failure; a repository whose object
// or reference database cannot be read is.
func (s *Store) HealthCheck() error {
	if _, err := s.repo.Storer.IterReferences(); err != nil {
		return fmt.Errorf("statestore: repository unreachable: %w", err)
	}
	if _, err := s.repo.Head(); err != nil && err != plumbing.ErrReferenceNotFound {
		return fmt.Errorf("statestore: repository unreachable: %w", err)
	}
	return nil
}

// ErrNotFound is returned when an entity's ref or note cannot be
// located.
var ErrNotFound = fmt.Errorf("statestore: not found")

func marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
