// ABOUTME: Acceptance workflow applying staged revisions to canon
// ABOUTME: Parent comparison yields a single needs-rebase signal

package merge

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glossarium/termstore/pkg/changerequest"
	"github.com/glossarium/termstore/pkg/concept"
	"github.com/glossarium/termstore/pkg/review"
)

var (
	// ErrNeedsRebase signals that the staged revision's parent no
	// longer matches the canonical entry's current revision; the
	// proposer must re-base before acceptance.
	ErrNeedsRebase = errors.New("merge: staged revision needs rebase")
	// ErrNotInReview rejects acceptance actions outside an in-review
	// stage.
	ErrNotInReview = errors.New("merge: change request is not in review")
	// ErrMissingObjectID reports a new-entity acceptance without an
	// operator-supplied object ID.
	ErrMissingObjectID = errors.New("merge: new object needs an operator-supplied ID")
	// ErrIDTaken reports that the requested object ID already exists.
	ErrIDTaken = errors.New("merge: object ID already taken")
	// ErrUnsupportedType reports an object type the workflow cannot
	// merge into.
	ErrUnsupportedType = errors.New("merge: unsupported object type")
	// ErrNoScaffolding reports an entry that cannot participate in
	// review because it carries no revision history.
	ErrNoScaffolding = errors.New("merge: entry lacks revision scaffolding")
)

// Workflow applies accepted change request revisions to canonical
// entities. Manager dependencies are injected at construction.
type Workflow struct {
	Concepts       *concept.Manager
	ChangeRequests *changerequest.Manager
	Reviews        *review.Manager
}

// AcceptResult reports what an acceptance produced.
type AcceptResult struct {
	ObjectID   int    `json:"objectID"`
	RevisionID string `json:"revisionID"`
}

// ParseConceptObjectID splits a synthetic "<termid>_<lang>" object ID
// into its parts.
func ParseConceptObjectID(objectID string) (termID int, lang string, err error) {
	num, lang, ok := strings.Cut(objectID, "_")
	if !ok {
		return 0, "", fmt.Errorf("merge: malformed object ID %q, want \"<termid>_<lang>\"", objectID)
	}
	termID, err = strconv.Atoi(num)
	if err != nil {
		return 0, "", fmt.Errorf("merge: malformed object ID %q: %w", objectID, err)
	}
	if !concept.SupportedLanguages[lang] {
		return 0, "", fmt.Errorf("merge: unsupported language %q in object ID %q", lang, objectID)
	}
	return termID, lang, nil
}

// LocalizedEntry resolves a synthetic concept object ID to the
// corresponding localized sub-entry. Entries without revision history
// cannot participate in reviews or change requests and yield a
// descriptive error.
func (wf *Workflow) LocalizedEntry(objectID string) (*concept.LocalizedEntry, error) {
	termID, lang, err := ParseConceptObjectID(objectID)
	if err != nil {
		return nil, err
	}

	c, err := wf.Concepts.Read(termID)
	if err != nil {
		return nil, err
	}

	entry := c.Entry(lang)
	if entry == nil {
		return nil, fmt.Errorf("merge: concept %d has no %s entry", termID, lang)
	}
	if entry.Revisions.Current == "" {
		return nil, fmt.Errorf("%w: concept %d (%s)", ErrNoScaffolding, termID, lang)
	}
	return entry, nil
}

// CheckIDAvailable reports whether the given termid is free for a new
// concept. Advisory only; creation is not atomic against a concurrent
// taker.
func (wf *Workflow) CheckIDAvailable(termID int) (bool, error) {
	exists, err := wf.Concepts.Exists(termID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// ReviewMaterial resolves the historical entry content a review record
// points at, for side-by-side comparison. A stale revision ID degrades
// to the entry's top-level fields.
func (wf *Workflow) ReviewMaterial(reviewID string) (json.RawMessage, string, error) {
	r, err := wf.Reviews.Read(reviewID)
	if err != nil {
		return nil, "", err
	}
	if r.ObjectType != concept.ObjectType {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, r.ObjectType)
	}

	entry, err := wf.LocalizedEntry(r.ObjectID)
	if err != nil {
		return nil, "", err
	}

	content := entry.CurrentEntry(r.RevisionID)
	data, err := json.Marshal(content)
	if err != nil {
		return nil, "", fmt.Errorf("merge: encode review material: %w", err)
	}
	return data, r.RevisionID, nil
}

// Accept applies one staged revision of an in-review change request
// to the canonical concept. A revision with a parent becomes a new
// canonical revision tagged with the change request ID; a parentless
// revision creates a new concept (operator-supplied ID) or a new
// translation of an existing one.
//
// A non-nil result alongside a non-nil error means the merge landed
// but recording the acceptance back into the change request failed;
// callers should surface the error without treating the merge as
// undone.
func (wf *Workflow) Accept(crID, objectType, objectID string, newObjectID int) (*AcceptResult, error) {
	cr, err := wf.ChangeRequests.Read(crID)
	if err != nil {
		return nil, err
	}
	if !cr.InReview() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotInReview, crID, cr.Stage)
	}
	if objectType != concept.ObjectType {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, objectType)
	}

	staged, ok := cr.Revisions[objectType][objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s in CR %s", changerequest.ErrRevisionNotFound, objectType, objectID, crID)
	}

	termID, lang, err := ParseConceptObjectID(objectID)
	if err != nil {
		return nil, err
	}

	var content concept.Entry
	if err := json.Unmarshal(staged.Object, &content); err != nil {
		return nil, fmt.Errorf("merge: decode staged object %s/%s: %w", objectType, objectID, err)
	}
	if content.Language == "" {
		content.Language = lang
	}

	if len(staged.Parents) == 0 {
		return wf.acceptNew(cr, objectType, objectID, termID, lang, newObjectID, content)
	}
	return wf.acceptEdit(cr, objectType, objectID, termID, lang, staged.Parents[0], content)
}

func (wf *Workflow) acceptEdit(cr changerequest.ChangeRequest, objectType, objectID string, termID int, lang, parent string, content concept.Entry) (*AcceptResult, error) {
	c, err := wf.Concepts.Read(termID)
	if err != nil {
		return nil, err
	}

	entry := c.Entry(lang)
	if entry == nil {
		return nil, fmt.Errorf("merge: concept %d has no %s entry", termID, lang)
	}
	if entry.Revisions.Current == "" {
		return nil, fmt.Errorf("%w: concept %d (%s)", ErrNoScaffolding, termID, lang)
	}

	// Already merged once: acceptance is idempotent.
	if entry.Revisions.TaggedWith(cr.ID) {
		for id, rev := range entry.Revisions.Tree {
			if rev.ChangeRequestID == cr.ID {
				return &AcceptResult{ObjectID: termID, RevisionID: id}, nil
			}
		}
	}

	if entry.Revisions.Current != parent {
		return nil, fmt.Errorf("%w: parent %s, current %s", ErrNeedsRebase, parent, entry.Revisions.Current)
	}

	revID := entry.Revisions.Add(content, parent, &cr.Author, cr.ID)
	entry.Revisions.Current = revID
	entry.Entry = content

	message := fmt.Sprintf("Accept CR %s for %s/%s", cr.ID, objectType, objectID)
	if err := wf.Concepts.Update(c, message); err != nil {
		return nil, err
	}
	res := &AcceptResult{ObjectID: termID, RevisionID: revID}
	if err := wf.ChangeRequests.MarkAccepted(cr.ID, objectType, objectID, "", revID); err != nil {
		// The merge already landed; bookkeeping failure is reported
		// alongside the result, not instead of it.
		return res, fmt.Errorf("merge: record acceptance: %w", err)
	}
	return res, nil
}

func (wf *Workflow) acceptNew(cr changerequest.ChangeRequest, objectType, objectID string, termID int, lang string, newObjectID int, content concept.Entry) (*AcceptResult, error) {
	exists, err := wf.Concepts.Exists(termID)
	if err != nil {
		return nil, err
	}

	if exists {
		// New translation of an existing concept.
		c, err := wf.Concepts.Read(termID)
		if err != nil {
			return nil, err
		}
		if existing := c.Entry(lang); existing != nil {
			if existing.Revisions.TaggedWith(cr.ID) {
				return &AcceptResult{ObjectID: termID, RevisionID: existing.Revisions.Current}, nil
			}
			return nil, fmt.Errorf("%w: %s", ErrIDTaken, objectID)
		}

		entry := newLocalizedEntry(content, &cr)
		c.Localized[lang] = entry

		message := fmt.Sprintf("Accept CR %s for %s/%s", cr.ID, objectType, objectID)
		if err := wf.Concepts.Update(c, message); err != nil {
			return nil, err
		}
		res := &AcceptResult{ObjectID: termID, RevisionID: entry.Revisions.Current}
		if err := wf.ChangeRequests.MarkAccepted(cr.ID, objectType, objectID, strconv.Itoa(termID), ""); err != nil {
			return res, fmt.Errorf("merge: record acceptance: %w", err)
		}
		return res, nil
	}

	// Brand-new concept: the operator supplies the fresh ID.
	if newObjectID == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrMissingObjectID, objectType, objectID)
	}
	available, err := wf.CheckIDAvailable(newObjectID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, fmt.Errorf("%w: %d", ErrIDTaken, newObjectID)
	}

	entry := newLocalizedEntry(content, &cr)
	c := concept.MultiLanguageConcept{
		TermID:    newObjectID,
		Localized: map[string]*concept.LocalizedEntry{lang: entry},
	}
	if err := wf.Concepts.Create(c, true); err != nil {
		return nil, err
	}
	res := &AcceptResult{ObjectID: newObjectID, RevisionID: entry.Revisions.Current}
	if err := wf.ChangeRequests.MarkAccepted(cr.ID, objectType, objectID, strconv.Itoa(newObjectID), ""); err != nil {
		return res, fmt.Errorf("merge: record acceptance: %w", err)
	}
	return res, nil
}

func newLocalizedEntry(content concept.Entry, cr *changerequest.ChangeRequest) *concept.LocalizedEntry {
	entry := &concept.LocalizedEntry{
		Entry:         content,
		SchemaVersion: concept.CurrentSchemaVersion,
	}
	entry.Revisions.Current = entry.Revisions.Add(content, "", &cr.Author, cr.ID)
	return entry
}
