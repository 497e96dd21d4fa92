// ABOUTME: Tests for collection management
// ABOUTME: Verifies set semantics of item adds and removals

package collection

import (
	"reflect"
	"testing"

	"github.com/glossarium/termstore/pkg/storage"
)

func setupTestCollections(t *testing.T) *Manager {
	t.Helper()

	w := &storage.WorkingCopy{Path: t.TempDir()}
	if err := w.Open(); err != nil {
		t.Fatalf("Failed to open working copy: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	m := NewManager(w)
	if err := m.Create("standards", Collection{ID: "standards", Label: "Standards", Items: []int{12, 7}}, false); err != nil {
		t.Fatalf("Failed to seed collection: %v", err)
	}
	return m
}

func TestAddItems(t *testing.T) {
	m := setupTestCollections(t)

	// 12 is already present: duplicate add is a no-op
	if err := m.AddItems("standards", 42, 12); err != nil {
		t.Fatalf("Failed to add items: %v", err)
	}

	c, err := m.Read("standards")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	want := []int{12, 7, 42}
	if !reflect.DeepEqual(c.Items, want) {
		t.Errorf("Expected %v, got %v", want, c.Items)
	}
}

func TestRemoveItems(t *testing.T) {
	m := setupTestCollections(t)

	// 99 is absent: removing it is a no-op
	if err := m.RemoveItems("standards", 12, 99); err != nil {
		t.Fatalf("Failed to remove items: %v", err)
	}

	c, err := m.Read("standards")
	if err != nil {
		t.Fatalf("Failed to read: %v", err)
	}
	want := []int{7}
	if !reflect.DeepEqual(c.Items, want) {
		t.Errorf("Expected %v, got %v", want, c.Items)
	}

	if c.Label != "Standards" {
		t.Errorf("Rest of collection must be preserved, got label %q", c.Label)
	}
}
