// ABOUTME: Change request manager: drafts, staging and lifecycle
// ABOUTME: Submitted change requests are immutable containers

package changerequest

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glossarium/termstore/pkg/entity"
	"github.com/glossarium/termstore/pkg/query"
	"github.com/glossarium/termstore/pkg/revision"
)

var (
	// ErrRevisionNotFound reports a missing staged revision.
	ErrRevisionNotFound = errors.New("changerequest: staged revision not found")
	// ErrMissingCompanionID reports a mark-accepted call without the
	// required created-object or created-revision ID.
	ErrMissingCompanionID = errors.New("changerequest: missing created object or revision ID")
)

// Manager owns change request records.
type Manager struct {
	*entity.Manager[ChangeRequest]
}

// NewManager creates a change request manager over the given store.
func NewManager(store entity.Store) *Manager {
	return &Manager{Manager: entity.New[ChangeRequest](store, ObjectType)}
}

// InitializeDraft creates and persists an empty draft change request
// for the given author.
func (m *Manager) InitializeDraft(author revision.Author) (ChangeRequest, error) {
	cr := ChangeRequest{
		ID:          revision.NewID(),
		Author:      author,
		TimeCreated: time.Now(),
		Revisions:   map[string]map[string]StagedRevision{},
		Stage:       StageDraft,
	}
	if err := m.Create(cr.ID, cr, true); err != nil {
		return ChangeRequest{}, err
	}
	return cr, nil
}

// SaveRevision stages a proposed revision for (objectType, objectID)
// into the change request, initializing a fresh draft first when no
// change request ID is given. Returns the (possibly new) change
// request ID.
func (m *Manager) SaveRevision(crID, objectType, objectID string, data json.RawMessage, parentRevisionID string, author revision.Author) (string, error) {
	var cr ChangeRequest
	var err error

	if crID == "" {
		cr, err = m.InitializeDraft(author)
	} else {
		cr, err = m.Read(crID)
	}
	if err != nil {
		return "", err
	}

	if cr.Submitted() {
		return "", fmt.Errorf("%w: %s", ErrSubmitted, cr.ID)
	}

	parents := []string{}
	if parentRevisionID != "" {
		parents = []string{parentRevisionID}
	}

	if cr.Revisions == nil {
		cr.Revisions = map[string]map[string]StagedRevision{}
	}
	if cr.Revisions[objectType] == nil {
		cr.Revisions[objectType] = map[string]StagedRevision{}
	}
	cr.Revisions[objectType][objectID] = StagedRevision{
		Object:      data,
		Parents:     parents,
		TimeCreated: time.Now(),
	}

	message := fmt.Sprintf("Save %s/%s into CR %s", objectType, objectID, cr.ID)
	if err := m.Update(cr.ID, cr, message); err != nil {
		return "", err
	}
	return cr.ID, nil
}

// DeleteRevision removes a staged revision. Submitted change requests
// are immutable. A change request left with zero revisions is deleted
// entirely; drafts are ephemeral containers.
func (m *Manager) DeleteRevision(crID, objectType, objectID string) error {
	cr, err := m.Read(crID)
	if err != nil {
		return err
	}
	if cr.Submitted() {
		return fmt.Errorf("%w: %s", ErrSubmitted, crID)
	}

	byID, ok := cr.Revisions[objectType]
	if !ok {
		return fmt.Errorf("%w: %s/%s in CR %s", ErrRevisionNotFound, objectType, objectID, crID)
	}
	if _, ok := byID[objectID]; !ok {
		return fmt.Errorf("%w: %s/%s in CR %s", ErrRevisionNotFound, objectType, objectID, crID)
	}

	delete(byID, objectID)
	if len(byID) == 0 {
		delete(cr.Revisions, objectType)
	}
	if cr.RevisionCount() == 0 {
		return m.Delete(crID, true)
	}

	message := fmt.Sprintf("Delete %s/%s from CR %s", objectType, objectID, crID)
	return m.Update(crID, cr, message)
}

// UpdateStage applies a lifecycle transition and persists it.
func (m *Manager) UpdateStage(crID string, next Stage) error {
	cr, err := m.Read(crID)
	if err != nil {
		return err
	}
	if err := cr.TransitionTo(next, time.Now()); err != nil {
		return err
	}
	return m.Update(crID, cr, fmt.Sprintf("Transition CR %s to %s", crID, next))
}

// MarkAccepted records the outcome of accepting a staged revision: a
// parentless revision requires the created object ID, a revision with
// a parent requires the created revision ID. The error is meant to be
// reported, not to abort the caller.
func (m *Manager) MarkAccepted(crID, objectType, objectID, createdObjectID, createdRevisionID string) error {
	cr, err := m.Read(crID)
	if err != nil {
		return err
	}

	staged, ok := cr.Revisions[objectType][objectID]
	if !ok {
		return fmt.Errorf("%w: %s/%s in CR %s", ErrRevisionNotFound, objectType, objectID, crID)
	}

	if len(staged.Parents) == 0 {
		if createdObjectID == "" {
			return fmt.Errorf("%w: parentless revision %s/%s needs created object ID", ErrMissingCompanionID, objectType, objectID)
		}
		staged.CreatedObjectID = createdObjectID
	} else {
		if createdRevisionID == "" {
			return fmt.Errorf("%w: revision %s/%s needs created revision ID", ErrMissingCompanionID, objectType, objectID)
		}
		staged.CreatedRevisionID = createdRevisionID
	}

	cr.Revisions[objectType][objectID] = staged
	message := fmt.Sprintf("Mark %s/%s accepted in CR %s", objectType, objectID, crID)
	return m.Update(crID, cr, message)
}

// ListRevisions returns the full staged revisions map. A null change
// request ID yields an empty map rather than an error.
func (m *Manager) ListRevisions(crID string) (map[string]map[string]StagedRevision, error) {
	if crID == "" {
		return map[string]map[string]StagedRevision{}, nil
	}
	cr, err := m.Read(crID)
	if err != nil {
		return nil, err
	}
	if cr.Revisions == nil {
		return map[string]map[string]StagedRevision{}, nil
	}
	return cr.Revisions, nil
}

// ReadRevision returns one staged revision, or nil when the change
// request ID or object ID is null or nothing is staged.
func (m *Manager) ReadRevision(crID, objectType, objectID string) (*StagedRevision, error) {
	if crID == "" || objectID == "" {
		return nil, nil
	}
	cr, err := m.Read(crID)
	if err != nil {
		return nil, err
	}
	staged, ok := cr.Revisions[objectType][objectID]
	if !ok {
		return nil, nil
	}
	return &staged, nil
}

// ListQuery carries the optional change request listing filters.
type ListQuery struct {
	Submitted    *bool    `json:"submitted,omitempty"`
	Resolved     *bool    `json:"resolved,omitempty"`
	CreatorEmail string   `json:"creatorEmail,omitempty"`
	OnlyIDs      []string `json:"onlyIDs,omitempty"`
}

func (lq *ListQuery) build() *query.Query[ChangeRequest] {
	q := query.New[ChangeRequest]()
	if lq == nil {
		return q
	}

	if lq.OnlyIDs != nil {
		q.WhereID(query.OnlyIDs(lq.OnlyIDs))
	}
	if lq.Submitted != nil {
		want := *lq.Submitted
		q.Where(func(cr ChangeRequest) bool { return cr.Submitted() == want })
	}
	if lq.Resolved != nil {
		want := *lq.Resolved
		q.Where(func(cr ChangeRequest) bool { return cr.Resolved() == want })
	}
	if lq.CreatorEmail != "" {
		q.Where(func(cr ChangeRequest) bool { return cr.Author.Email == lq.CreatorEmail })
	}
	return q
}

// List returns the IDs matching the query, reading full objects only
// when an object-level filter demands it.
func (m *Manager) List(lq *ListQuery) ([]string, error) {
	return m.ListIDsMatching(lq.build())
}

// ReadAllFiltered returns the full index filtered by the query.
func (m *Manager) ReadAllFiltered(lq *ListQuery) (map[string]ChangeRequest, error) {
	return m.ReadAllMatching(lq.build())
}
