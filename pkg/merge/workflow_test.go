// ABOUTME: Tests for the acceptance workflow
// ABOUTME: Covers rebase detection, new-object acceptance and review material

package merge

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/glossarium/termstore/pkg/changerequest"
	"github.com/glossarium/termstore/pkg/collection"
	"github.com/glossarium/termstore/pkg/concept"
	"github.com/glossarium/termstore/pkg/review"
	"github.com/glossarium/termstore/pkg/revision"
	"github.com/glossarium/termstore/pkg/storage"
)

var ann = revision.Author{Name: "Ann", Email: "ann@example.com"}

func setupTestWorkflow(t *testing.T) *Workflow {
	t.Helper()

	w := &storage.WorkingCopy{Path: t.TempDir()}
	if err := w.Open(); err != nil {
		t.Fatalf("Failed to open working copy: %v", err)
	}
	t.Cleanup(func() { w.Close() })

	colls := collection.NewManager(w)
	wf := &Workflow{
		Concepts:       concept.NewManager(w, colls),
		ChangeRequests: changerequest.NewManager(w),
		Reviews:        review.NewManager(w),
	}

	entry := concept.MigrateEntry(concept.LocalizedEntry{Entry: concept.Entry{
		Terms:      []concept.Designation{{Designation: "datum", Type: "expression"}},
		Definition: "reference frame for coordinates",
		Language:   "eng",
	}})
	c := concept.MultiLanguageConcept{
		TermID:    12,
		Localized: map[string]*concept.LocalizedEntry{"eng": &entry},
	}
	if err := wf.Concepts.Create(c, false); err != nil {
		t.Fatalf("Failed to seed concept: %v", err)
	}
	return wf
}

// stageEdit stages an edit of concept 12 (eng) in a fresh in-review CR
// and returns the CR ID and the staged parent revision.
func stageEdit(t *testing.T, wf *Workflow, definition string) (string, string) {
	t.Helper()

	c, err := wf.Concepts.Read(12)
	if err != nil {
		t.Fatalf("Failed to read concept: %v", err)
	}
	parent := c.Eng().Revisions.Current

	obj := c.Eng().Entry
	obj.Definition = definition
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("Failed to marshal entry: %v", err)
	}

	crID, err := wf.ChangeRequests.SaveRevision("", concept.ObjectType, "12_eng", data, parent, ann)
	if err != nil {
		t.Fatalf("Failed to stage revision: %v", err)
	}
	if err := wf.ChangeRequests.UpdateStage(crID, changerequest.StageProposal); err != nil {
		t.Fatalf("Failed to submit CR: %v", err)
	}
	return crID, parent
}

func TestAcceptEdit(t *testing.T) {
	wf := setupTestWorkflow(t)
	crID, parent := stageEdit(t, wf, "geodetic reference frame")

	res, err := wf.Accept(crID, concept.ObjectType, "12_eng", 0)
	if err != nil {
		t.Fatalf("Failed to accept: %v", err)
	}
	if res.ObjectID != 12 {
		t.Errorf("Expected object ID 12, got %d", res.ObjectID)
	}

	c, err := wf.Concepts.Read(12)
	if err != nil {
		t.Fatalf("Failed to read concept: %v", err)
	}
	eng := c.Eng()
	if eng.Revisions.Current != res.RevisionID {
		t.Errorf("Expected current revision %s, got %s", res.RevisionID, eng.Revisions.Current)
	}
	if eng.Definition != "geodetic reference frame" {
		t.Errorf("Expected top-level entry to mirror accepted content, got %q", eng.Definition)
	}
	rev, ok := eng.Revisions.Tree[res.RevisionID]
	if !ok {
		t.Fatalf("Expected revision %s in tree", res.RevisionID)
	}
	if rev.ChangeRequestID != crID {
		t.Errorf("Expected revision tagged with %s, got %q", crID, rev.ChangeRequestID)
	}
	if len(rev.Parents) != 1 || rev.Parents[0] != parent {
		t.Errorf("Expected parent %s, got %v", parent, rev.Parents)
	}

	staged, err := wf.ChangeRequests.ReadRevision(crID, concept.ObjectType, "12_eng")
	if err != nil {
		t.Fatalf("Failed to read staged revision: %v", err)
	}
	if staged.CreatedRevisionID != res.RevisionID {
		t.Errorf("Expected staged revision marked accepted with %s, got %q", res.RevisionID, staged.CreatedRevisionID)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	wf := setupTestWorkflow(t)
	crID, _ := stageEdit(t, wf, "geodetic reference frame")

	first, err := wf.Accept(crID, concept.ObjectType, "12_eng", 0)
	if err != nil {
		t.Fatalf("Failed to accept: %v", err)
	}
	second, err := wf.Accept(crID, concept.ObjectType, "12_eng", 0)
	if err != nil {
		t.Fatalf("Expected repeated accept to be a no-op, got %v", err)
	}
	if second.RevisionID != first.RevisionID {
		t.Errorf("Expected same revision %s, got %s", first.RevisionID, second.RevisionID)
	}
}

func TestAcceptDetectsRebase(t *testing.T) {
	wf := setupTestWorkflow(t)
	crID, _ := stageEdit(t, wf, "stale edit")

	// A competing edit lands first and moves the current pointer.
	c, err := wf.Concepts.Read(12)
	if err != nil {
		t.Fatalf("Failed to read concept: %v", err)
	}
	eng := c.Eng()
	obj := eng.Entry
	obj.Definition = "competing edit"
	eng.Revisions.Current = eng.Revisions.Add(obj, eng.Revisions.Current, &ann, "")
	eng.Entry = obj
	if err := wf.Concepts.Update(c, "Competing edit"); err != nil {
		t.Fatalf("Failed to apply competing edit: %v", err)
	}

	if _, err := wf.Accept(crID, concept.ObjectType, "12_eng", 0); !errors.Is(err, ErrNeedsRebase) {
		t.Errorf("Expected ErrNeedsRebase, got %v", err)
	}
}

func TestAcceptRequiresInReview(t *testing.T) {
	wf := setupTestWorkflow(t)

	cr, err := wf.ChangeRequests.InitializeDraft(ann)
	if err != nil {
		t.Fatalf("Failed to create draft: %v", err)
	}
	if _, err := wf.Accept(cr.ID, concept.ObjectType, "12_eng", 0); !errors.Is(err, ErrNotInReview) {
		t.Errorf("Expected ErrNotInReview for draft, got %v", err)
	}
}

func TestAcceptNewConcept(t *testing.T) {
	wf := setupTestWorkflow(t)

	data, _ := json.Marshal(concept.Entry{
		Terms:      []concept.Designation{{Designation: "geoid", Type: "expression"}},
		Definition: "equipotential surface of gravity",
		Language:   "eng",
	})
	crID, err := wf.ChangeRequests.SaveRevision("", concept.ObjectType, "0_eng", data, "", ann)
	if err != nil {
		t.Fatalf("Failed to stage revision: %v", err)
	}
	if err := wf.ChangeRequests.UpdateStage(crID, changerequest.StageProposal); err != nil {
		t.Fatalf("Failed to submit CR: %v", err)
	}

	// The operator must supply the fresh ID.
	if _, err := wf.Accept(crID, concept.ObjectType, "0_eng", 0); !errors.Is(err, ErrMissingObjectID) {
		t.Errorf("Expected ErrMissingObjectID, got %v", err)
	}
	// A taken ID is refused.
	if _, err := wf.Accept(crID, concept.ObjectType, "0_eng", 12); !errors.Is(err, ErrIDTaken) {
		t.Errorf("Expected ErrIDTaken, got %v", err)
	}

	res, err := wf.Accept(crID, concept.ObjectType, "0_eng", 99)
	if err != nil {
		t.Fatalf("Failed to accept new concept: %v", err)
	}
	if res.ObjectID != 99 {
		t.Errorf("Expected object ID 99, got %d", res.ObjectID)
	}

	c, err := wf.Concepts.Read(99)
	if err != nil {
		t.Fatalf("Failed to read created concept: %v", err)
	}
	eng := c.Eng()
	if eng == nil || eng.Definition != "equipotential surface of gravity" {
		t.Fatalf("Expected created concept content, got %+v", eng)
	}
	if eng.Revisions.Current != res.RevisionID {
		t.Errorf("Expected root revision %s, got %s", res.RevisionID, eng.Revisions.Current)
	}
	if rev := eng.Revisions.Tree[res.RevisionID]; len(rev.Parents) != 0 {
		t.Errorf("Expected parentless root revision, got parents %v", rev.Parents)
	}

	staged, err := wf.ChangeRequests.ReadRevision(crID, concept.ObjectType, "0_eng")
	if err != nil {
		t.Fatalf("Failed to read staged revision: %v", err)
	}
	if staged.CreatedObjectID != "99" {
		t.Errorf("Expected created object ID 99, got %q", staged.CreatedObjectID)
	}
}

func TestAcceptNewTranslation(t *testing.T) {
	wf := setupTestWorkflow(t)

	data, _ := json.Marshal(concept.Entry{
		Terms:      []concept.Designation{{Designation: "Datum", Type: "expression"}},
		Definition: "Bezugssystem für Koordinaten",
		Language:   "deu",
	})
	crID, err := wf.ChangeRequests.SaveRevision("", concept.ObjectType, "12_deu", data, "", ann)
	if err != nil {
		t.Fatalf("Failed to stage revision: %v", err)
	}
	if err := wf.ChangeRequests.UpdateStage(crID, changerequest.StageProposal); err != nil {
		t.Fatalf("Failed to submit CR: %v", err)
	}

	res, err := wf.Accept(crID, concept.ObjectType, "12_deu", 0)
	if err != nil {
		t.Fatalf("Failed to accept translation: %v", err)
	}
	if res.ObjectID != 12 {
		t.Errorf("Expected object ID 12, got %d", res.ObjectID)
	}

	c, err := wf.Concepts.Read(12)
	if err != nil {
		t.Fatalf("Failed to read concept: %v", err)
	}
	deu := c.Entry("deu")
	if deu == nil {
		t.Fatal("Expected German entry after acceptance")
	}
	if deu.Revisions.Current != res.RevisionID {
		t.Errorf("Expected current revision %s, got %s", res.RevisionID, deu.Revisions.Current)
	}
	// The English entry is untouched.
	if c.Eng() == nil || c.Eng().Definition != "reference frame for coordinates" {
		t.Error("Expected English entry to be unchanged")
	}
}

func TestCheckIDAvailable(t *testing.T) {
	wf := setupTestWorkflow(t)

	available, err := wf.CheckIDAvailable(12)
	if err != nil {
		t.Fatalf("Failed to check ID: %v", err)
	}
	if available {
		t.Error("Expected ID 12 to be taken")
	}
	available, err = wf.CheckIDAvailable(99)
	if err != nil {
		t.Fatalf("Failed to check ID: %v", err)
	}
	if !available {
		t.Error("Expected ID 99 to be available")
	}
}

func TestReviewMaterial(t *testing.T) {
	wf := setupTestWorkflow(t)

	c, err := wf.Concepts.Read(12)
	if err != nil {
		t.Fatalf("Failed to read concept: %v", err)
	}
	oldRev := c.Eng().Revisions.Current

	// Move the entry forward so the review points at history.
	obj := c.Eng().Entry
	obj.Definition = "newer definition"
	c.Eng().Revisions.Current = c.Eng().Revisions.Add(obj, oldRev, &ann, "")
	c.Eng().Entry = obj
	if err := wf.Concepts.Update(c, "Edit"); err != nil {
		t.Fatalf("Failed to update concept: %v", err)
	}

	r, err := wf.Reviews.Request(concept.ObjectType, "12_eng", oldRev)
	if err != nil {
		t.Fatalf("Failed to request review: %v", err)
	}

	data, revID, err := wf.ReviewMaterial(r.ID)
	if err != nil {
		t.Fatalf("Failed to resolve review material: %v", err)
	}
	if revID != oldRev {
		t.Errorf("Expected revision %s, got %s", oldRev, revID)
	}
	var got concept.Entry
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Failed to decode material: %v", err)
	}
	if got.Definition != "reference frame for coordinates" {
		t.Errorf("Expected historical definition, got %q", got.Definition)
	}
}

func TestParseConceptObjectID(t *testing.T) {
	termID, lang, err := ParseConceptObjectID("42_eng")
	if err != nil {
		t.Fatalf("Failed to parse: %v", err)
	}
	if termID != 42 || lang != "eng" {
		t.Errorf("Expected (42, eng), got (%d, %s)", termID, lang)
	}

	for _, bad := range []string{"42", "x_eng", "42_xx", ""} {
		if _, _, err := ParseConceptObjectID(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}

func TestLocalizedEntryWithoutScaffolding(t *testing.T) {
	wf := setupTestWorkflow(t)

	bare := concept.MultiLanguageConcept{
		TermID:    50,
		Localized: map[string]*concept.LocalizedEntry{"eng": {}},
	}
	if err := wf.Concepts.Create(bare, false); err != nil {
		t.Fatalf("Failed to create concept: %v", err)
	}

	if _, err := wf.LocalizedEntry("50_eng"); !errors.Is(err, ErrNoScaffolding) {
		t.Errorf("Expected ErrNoScaffolding, got %v", err)
	}
}
