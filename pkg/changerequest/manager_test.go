// ABOUTME: Tests for the change request manager
// ABOUTME: Verifies drafts, staging, deletion cascades and queries

package changerequest

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/glossarium/termstore/pkg/entity"
	"github.com/glossarium/termstore/pkg/revision"
	"github.com/glossarium/termstore/pkg/storage"
)

var ann = revision.Author{Name: "Ann", Email: "ann@example.com"}

func setupTestCRs(t *testing.T) *Manager {
	t.Helper()

	w := &storage.WorkingCopy{Path: t.TempDir()}
	if err := w.Open(); err != nil {
		t.Fatalf("Failed to open working copy: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return NewManager(w)
}

func TestSaveRevisionCreatesDraft(t *testing.T) {
	m := setupTestCRs(t)

	payload := json.RawMessage(`{"terms":[{"designation":"datum"}]}`)
	crID, err := m.SaveRevision("", "concepts", "12_eng", payload, "r000", ann)
	if err != nil {
		t.Fatalf("Failed to save revision: %v", err)
	}
	if len(crID) != revision.IDLength {
		t.Errorf("Expected generated 6-char CR ID, got %q", crID)
	}

	revs, err := m.ListRevisions(crID)
	if err != nil {
		t.Fatalf("Failed to list revisions: %v", err)
	}
	if len(revs) != 1 || len(revs["concepts"]) != 1 {
		t.Fatalf("Expected exactly one staged revision under concepts, got %v", revs)
	}
	staged := revs["concepts"]["12_eng"]
	if !reflect.DeepEqual(staged.Parents, []string{"r000"}) {
		t.Errorf("Expected parents [r000], got %v", staged.Parents)
	}

	cr, err := m.Read(crID)
	if err != nil {
		t.Fatalf("Failed to read CR: %v", err)
	}
	if cr.Stage != StageDraft {
		t.Errorf("Expected Draft stage, got %s", cr.Stage)
	}
	if cr.Author != ann {
		t.Errorf("Expected author %v, got %v", ann, cr.Author)
	}
}

func TestSaveRevisionIntoExistingCR(t *testing.T) {
	m := setupTestCRs(t)

	crID, err := m.SaveRevision("", "concepts", "12_eng", json.RawMessage(`{}`), "", ann)
	if err != nil {
		t.Fatalf("Failed to save: %v", err)
	}

	got, err := m.SaveRevision(crID, "concepts", "7_eng", json.RawMessage(`{}`), "aaaaaa", ann)
	if err != nil {
		t.Fatalf("Failed to save into existing CR: %v", err)
	}
	if got != crID {
		t.Errorf("Expected same CR ID back, got %q", got)
	}

	cr, _ := m.Read(crID)
	if cr.RevisionCount() != 2 {
		t.Errorf("Expected 2 staged revisions, got %d", cr.RevisionCount())
	}

	// A parentless staged revision represents a brand-new entity
	if len(cr.Revisions["concepts"]["12_eng"].Parents) != 0 {
		t.Errorf("Expected empty parents, got %v", cr.Revisions["concepts"]["12_eng"].Parents)
	}
}

func TestSubmittedCRIsImmutable(t *testing.T) {
	m := setupTestCRs(t)

	crID, _ := m.SaveRevision("", "concepts", "12_eng", json.RawMessage(`{}`), "", ann)
	if err := m.UpdateStage(crID, StageProposal); err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}

	_, err := m.SaveRevision(crID, "concepts", "7_eng", json.RawMessage(`{}`), "", ann)
	if !errors.Is(err, ErrSubmitted) {
		t.Errorf("Expected ErrSubmitted on save, got %v", err)
	}
	if err := m.DeleteRevision(crID, "concepts", "12_eng"); !errors.Is(err, ErrSubmitted) {
		t.Errorf("Expected ErrSubmitted on delete, got %v", err)
	}
}

func TestDeleteLastRevisionDeletesCR(t *testing.T) {
	m := setupTestCRs(t)

	crID, _ := m.SaveRevision("", "concepts", "12_eng", json.RawMessage(`{}`), "", ann)
	if _, err := m.SaveRevision(crID, "collections", "geodesy", json.RawMessage(`{}`), "", ann); err != nil {
		t.Fatalf("Failed to stage second revision: %v", err)
	}

	// Non-last delete keeps the CR and drops the emptied type key
	if err := m.DeleteRevision(crID, "collections", "geodesy"); err != nil {
		t.Fatalf("Failed to delete revision: %v", err)
	}
	cr, err := m.Read(crID)
	if err != nil {
		t.Fatalf("Expected CR to survive, got %v", err)
	}
	if _, ok := cr.Revisions["collections"]; ok {
		t.Error("Expected emptied type key removed")
	}
	if cr.RevisionCount() != 1 {
		t.Errorf("Expected 1 remaining revision, got %d", cr.RevisionCount())
	}

	// Last delete removes the CR itself
	if err := m.DeleteRevision(crID, "concepts", "12_eng"); err != nil {
		t.Fatalf("Failed to delete last revision: %v", err)
	}
	if _, err := m.Read(crID); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("Expected CR deleted, got %v", err)
	}
}

func TestMarkAccepted(t *testing.T) {
	m := setupTestCRs(t)

	crID, _ := m.SaveRevision("", "concepts", "12_eng", json.RawMessage(`{}`), "r000", ann)
	if _, err := m.SaveRevision(crID, "concepts", "new_eng", json.RawMessage(`{}`), "", ann); err != nil {
		t.Fatalf("Failed to stage: %v", err)
	}

	// Edit revision requires the created revision ID
	err := m.MarkAccepted(crID, "concepts", "12_eng", "", "")
	if !errors.Is(err, ErrMissingCompanionID) {
		t.Errorf("Expected ErrMissingCompanionID, got %v", err)
	}
	if err := m.MarkAccepted(crID, "concepts", "12_eng", "", "bbbbbb"); err != nil {
		t.Fatalf("Failed to mark accepted: %v", err)
	}

	// Parentless revision requires the created object ID
	err = m.MarkAccepted(crID, "concepts", "new_eng", "", "cccccc")
	if !errors.Is(err, ErrMissingCompanionID) {
		t.Errorf("Expected ErrMissingCompanionID for parentless, got %v", err)
	}
	if err := m.MarkAccepted(crID, "concepts", "new_eng", "101", ""); err != nil {
		t.Fatalf("Failed to mark parentless accepted: %v", err)
	}

	err = m.MarkAccepted(crID, "concepts", "missing", "x", "y")
	if !errors.Is(err, ErrRevisionNotFound) {
		t.Errorf("Expected ErrRevisionNotFound, got %v", err)
	}

	cr, _ := m.Read(crID)
	if cr.Revisions["concepts"]["12_eng"].CreatedRevisionID != "bbbbbb" {
		t.Error("Expected created revision ID recorded")
	}
	if cr.Revisions["concepts"]["new_eng"].CreatedObjectID != "101" {
		t.Error("Expected created object ID recorded")
	}
}

func TestNullCRReads(t *testing.T) {
	m := setupTestCRs(t)

	revs, err := m.ListRevisions("")
	if err != nil || len(revs) != 0 {
		t.Errorf("Expected empty map for null CR, got %v err=%v", revs, err)
	}

	staged, err := m.ReadRevision("", "concepts", "12_eng")
	if err != nil || staged != nil {
		t.Errorf("Expected nil for null CR, got %v err=%v", staged, err)
	}

	crID, _ := m.SaveRevision("", "concepts", "12_eng", json.RawMessage(`{}`), "", ann)
	staged, err = m.ReadRevision(crID, "concepts", "")
	if err != nil || staged != nil {
		t.Errorf("Expected nil for null object ID, got %v err=%v", staged, err)
	}
}

func TestListQueries(t *testing.T) {
	m := setupTestCRs(t)

	bob := revision.Author{Name: "Bob", Email: "bob@example.com"}
	open, _ := m.SaveRevision("", "concepts", "1_eng", json.RawMessage(`{}`), "", ann)
	done, _ := m.SaveRevision("", "concepts", "2_eng", json.RawMessage(`{}`), "", bob)

	if err := m.UpdateStage(done, StageProposal); err != nil {
		t.Fatalf("Failed to submit: %v", err)
	}
	if err := m.UpdateStage(done, StageResolved); err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}

	boolp := func(b bool) *bool { return &b }

	ids, err := m.List(&ListQuery{Resolved: boolp(true)})
	if err != nil {
		t.Fatalf("Failed to list resolved: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{done}) {
		t.Errorf("Expected [%s], got %v", done, ids)
	}

	ids, err = m.List(&ListQuery{Submitted: boolp(false)})
	if err != nil {
		t.Fatalf("Failed to list drafts: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{open}) {
		t.Errorf("Expected [%s], got %v", open, ids)
	}

	index, err := m.ReadAllFiltered(&ListQuery{CreatorEmail: "ann@example.com"})
	if err != nil {
		t.Fatalf("Failed to filter by creator: %v", err)
	}
	if len(index) != 1 {
		t.Fatalf("Expected 1 CR by ann, got %d", len(index))
	}
	if _, ok := index[open]; !ok {
		t.Errorf("Expected %s in index, got %v", open, index)
	}

	ids, err = m.List(&ListQuery{OnlyIDs: []string{done, "zzzzzz"}})
	if err != nil {
		t.Fatalf("Failed to list by onlyIDs: %v", err)
	}
	if !reflect.DeepEqual(ids, []string{done}) {
		t.Errorf("Expected [%s], got %v", done, ids)
	}
}
