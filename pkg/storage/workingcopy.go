// ABOUTME: File-per-entity object store over a git working copy
// ABOUTME: Whole-object reads and writes with per-write commit messages

package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotFound is returned when no object exists under the requested
// locator.
var ErrNotFound = errors.New("storage: object not found")

const fileExt = ".json"

// Update signals consumers that persisted data for an object type has
// changed and any in-memory index should be reloaded.
type Update struct {
	ObjectType string
	Refs       []string
}

// WorkingCopy stores one JSON file per entity under a type-specific
// subdirectory of a git working copy. Every write replaces the whole
// file; a non-empty commit message produces a commit attributed to
// the identity configured in git.
//
// Individual calls are serialized; there is no cross-call
// transaction. Concurrent editors race last-write-wins.
type WorkingCopy struct {
	Path string

	repo *git.Repository
	mu   sync.Mutex

	subMu sync.Mutex
	subs  []chan Update
}

// Open opens the working copy at Path, initializing a fresh git
// repository if none exists yet.
func (w *WorkingCopy) Open() error {
	if w.Path == "" {
		return fmt.Errorf("storage: path is required")
	}
	if err := os.MkdirAll(w.Path, 0o755); err != nil {
		return fmt.Errorf("storage: create working copy dir: %w", err)
	}

	repo, err := git.PlainOpen(w.Path)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(w.Path, false)
	}
	if err != nil {
		return fmt.Errorf("storage: open repository: %w", err)
	}

	w.repo = repo
	return nil
}

// Close releases subscriber channels.
func (w *WorkingCopy) Close() error {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	for _, ch := range w.subs {
		close(ch)
	}
	w.subs = nil
	return nil
}

// Read returns the raw object bytes stored under (objectType, ref).
func (w *WorkingCopy) Read(objectType, ref string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := os.ReadFile(w.objectPath(objectType, ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, objectType, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", objectType, ref, err)
	}
	return data, nil
}

// Write persists the full object under (objectType, ref). When
// commitMessage is non-empty the change is committed immediately;
// otherwise it is left staged in the working tree only.
func (w *WorkingCopy) Write(objectType, ref string, data []byte, commitMessage string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Keep files diffable under version control.
	var buf json.RawMessage
	if err := json.Unmarshal(data, &buf); err != nil {
		return fmt.Errorf("storage: write %s/%s: payload is not valid JSON: %w", objectType, ref, err)
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", objectType, ref, err)
	}
	pretty = append(pretty, '\n')

	path := w.objectPath(objectType, ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", objectType, ref, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, pretty, 0o644); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", objectType, ref, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: write %s/%s: %w", objectType, ref, err)
	}

	if commitMessage != "" {
		if err := w.commit(objectType, ref, commitMessage); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the object file. When commitMessage is non-empty the
// deletion is committed immediately.
func (w *WorkingCopy) Delete(objectType, ref string, commitMessage string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	path := w.objectPath(objectType, ref)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s/%s", ErrNotFound, objectType, ref)
		}
		return fmt.Errorf("storage: delete %s/%s: %w", objectType, ref, err)
	}

	if commitMessage != "" {
		if err := w.commit(objectType, ref, commitMessage); err != nil {
			return err
		}
	}
	return nil
}

// ListRefs returns the locator strings of every stored object of the
// given type, sorted lexically.
func (w *WorkingCopy) ListRefs(objectType string) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(w.Path, objectType))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", objectType, err)
	}

	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		refs = append(refs, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(refs)
	return refs, nil
}

// ReadAll returns a full index of every stored object of the given
// type, keyed by locator.
func (w *WorkingCopy) ReadAll(objectType string) (map[string][]byte, error) {
	refs, err := w.ListRefs(objectType)
	if err != nil {
		return nil, err
	}

	index := make(map[string][]byte, len(refs))
	for _, ref := range refs {
		data, err := w.Read(objectType, ref)
		if err != nil {
			return nil, err
		}
		index[ref] = data
	}
	return index, nil
}

// Subscribe returns a channel that receives update notifications.
// Slow consumers drop notifications instead of blocking writers.
func (w *WorkingCopy) Subscribe() <-chan Update {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	ch := make(chan Update, 16)
	w.subs = append(w.subs, ch)
	return ch
}

// ReportUpdated notifies all subscribers that the given objects
// changed on disk.
func (w *WorkingCopy) ReportUpdated(objectType string, refs []string) {
	w.subMu.Lock()
	defer w.subMu.Unlock()

	u := Update{ObjectType: objectType, Refs: refs}
	for _, ch := range w.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// Committer returns the identity used for commits, taken from git
// configuration with a service fallback.
func (w *WorkingCopy) Committer() (name, email string) {
	name, email = "termstore", "termstore@localhost"

	cfg, err := w.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		return name, email
	}
	if cfg.User.Name != "" {
		name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		email = cfg.User.Email
	}
	return name, email
}

func (w *WorkingCopy) commit(objectType, ref, message string) error {
	wt, err := w.repo.Worktree()
	if err != nil {
		return fmt.Errorf("storage: worktree: %w", err)
	}

	rel := filepath.ToSlash(filepath.Join(objectType, ref+fileExt))
	if _, err := wt.Add(rel); err != nil {
		return fmt.Errorf("storage: stage %s: %w", rel, err)
	}

	name, email := w.Committer()
	_, err = wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{Name: name, Email: email, When: time.Now()},
	})
	if err != nil {
		return fmt.Errorf("storage: commit %s: %w", rel, err)
	}
	return nil
}

func (w *WorkingCopy) objectPath(objectType, ref string) string {
	return filepath.Join(w.Path, objectType, ref+fileExt)
}
