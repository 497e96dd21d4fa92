// ABOUTME: Revision data model for versioned entries
// ABOUTME: Immutable snapshot tree with a single current pointer

package revision

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// IDLength is the number of hex characters in a revision ID.
const IDLength = 6

// Author identifies the person a revision is attributed to.
type Author struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Revision is an immutable snapshot of an entry's content.
// Parents holds zero or one revision IDs; a revision with no
// parents is the root of its history.
type Revision[T any] struct {
	Object          T         `json:"object"`
	Parents         []string  `json:"parents"`
	TimeCreated     time.Time `json:"timeCreated"`
	ChangeRequestID string    `json:"changeRequestID,omitempty"`
	Author          *Author   `json:"author,omitempty"`
}

// History is the per-entry revision store persisted inline with the
// entity under the "_revisions" key. Tree grows only by insertion;
// revisions are never mutated or removed.
type History[T any] struct {
	Current string                 `json:"current,omitempty"`
	Tree    map[string]Revision[T] `json:"tree"`
}

// NewID generates a fresh revision identifier. IDs are 6 hex
// characters drawn from crypto/rand; uniqueness against an existing
// tree is not checked.
func NewID() string {
	buf := make([]byte, IDLength/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms
		panic(fmt.Sprintf("revision: rand.Read: %v", err))
	}
	return hex.EncodeToString(buf)
}

// Add inserts a new revision for obj with the given parent and
// returns its ID. An empty parentID creates a root revision. The
// caller decides whether to move Current to the new revision.
func (h *History[T]) Add(obj T, parentID string, author *Author, changeRequestID string) string {
	if h.Tree == nil {
		h.Tree = make(map[string]Revision[T])
	}

	parents := []string{}
	if parentID != "" {
		parents = []string{parentID}
	}

	id := NewID()
	h.Tree[id] = Revision[T]{
		Object:          obj,
		Parents:         parents,
		TimeCreated:     time.Now(),
		ChangeRequestID: changeRequestID,
		Author:          author,
	}
	return id
}

// Resolve looks up the object stored under revisionID. A stale or
// unknown ID is reported as not found, never as a failure; callers
// are expected to fall back to the entity's own top-level fields.
func (h *History[T]) Resolve(revisionID string) (T, bool) {
	rev, ok := h.Tree[revisionID]
	if !ok {
		var zero T
		return zero, false
	}
	return rev.Object, true
}

// TaggedWith reports whether any revision in the tree carries the
// given change request ID. Used to decide whether a change request
// was already merged into this history.
func (h *History[T]) TaggedWith(changeRequestID string) bool {
	if changeRequestID == "" {
		return false
	}
	for _, rev := range h.Tree {
		if rev.ChangeRequestID == changeRequestID {
			return true
		}
	}
	return false
}

// Validate checks the structural invariants: Current, when set, must
// key into Tree, and the parent chain from Current must terminate at
// a root revision without revisiting a node.
func (h *History[T]) Validate() error {
	if h.Current == "" {
		return nil
	}

	if _, ok := h.Tree[h.Current]; !ok {
		return fmt.Errorf("current revision %q not present in tree", h.Current)
	}

	seen := make(map[string]bool)
	id := h.Current
	for id != "" {
		if seen[id] {
			return fmt.Errorf("revision chain cycles at %q", id)
		}
		seen[id] = true

		rev, ok := h.Tree[id]
		if !ok {
			return fmt.Errorf("revision %q references missing parent", id)
		}
		if len(rev.Parents) == 0 {
			return nil
		}
		id = rev.Parents[0]
	}
	return nil
}
