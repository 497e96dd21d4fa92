// ABOUTME: Named orderable sets of concept references
// ABOUTME: Collections form a forest via parent pointers

package collection

import (
	"fmt"

	"github.com/glossarium/termstore/pkg/entity"
)

// ObjectType is the storage type segment for collections.
const ObjectType = "collections"

// Collection is a named ordered set of concept references. ParentID
// links collections into a forest for display purposes.
type Collection struct {
	ID       string `json:"id"`
	ParentID string `json:"parentID,omitempty"`
	Label    string `json:"label"`
	Items    []int  `json:"items"`
}

// Contains reports whether the collection holds the given concept.
func (c *Collection) Contains(ref int) bool {
	for _, item := range c.Items {
		if item == ref {
			return true
		}
	}
	return false
}

// Manager owns collection records.
type Manager struct {
	*entity.Manager[Collection]
}

// NewManager creates a collection manager over the given store.
func NewManager(store entity.Store) *Manager {
	return &Manager{Manager: entity.New[Collection](store, ObjectType)}
}

// AddItems appends concept refs that are not yet present, keeping
// existing order. Duplicate adds are no-ops.
func (m *Manager) AddItems(id string, refs ...int) error {
	c, err := m.Read(id)
	if err != nil {
		return err
	}

	changed := false
	for _, ref := range refs {
		if !c.Contains(ref) {
			c.Items = append(c.Items, ref)
			changed = true
		}
	}
	if !changed {
		return nil
	}

	return m.Update(id, c, fmt.Sprintf("Add items to collection %s", id))
}

// RemoveItems removes the given concept refs, preserving the order of
// the remainder. Removing an absent item is a no-op.
func (m *Manager) RemoveItems(id string, refs ...int) error {
	c, err := m.Read(id)
	if err != nil {
		return err
	}

	drop := make(map[int]bool, len(refs))
	for _, ref := range refs {
		drop[ref] = true
	}

	kept := c.Items[:0:0]
	for _, item := range c.Items {
		if !drop[item] {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(c.Items) {
		return nil
	}
	c.Items = kept

	return m.Update(id, c, fmt.Sprintf("Remove items from collection %s", id))
}
