// ABOUTME: Review gate records keyed to an object and revision pair
// ABOUTME: Same two-path query pattern as the change request manager

package review

import (
	"fmt"
	"time"

	"github.com/glossarium/termstore/pkg/entity"
	"github.com/glossarium/termstore/pkg/query"
)

// ObjectType is the storage type segment for reviews.
const ObjectType = "reviews"

// Review gates whether a specific revision of a specific object has
// been vetted. The record ID embeds the object type as its first
// hyphen-delimited segment so type filtering stays an ID-level
// predicate.
type Review struct {
	ID            string     `json:"id"`
	ObjectType    string     `json:"objectType"`
	ObjectID      string     `json:"objectID"`
	RevisionID    string     `json:"revisionID"`
	Approved      *bool      `json:"approved,omitempty"`
	TimeRequested time.Time  `json:"timeRequested"`
	TimeCompleted *time.Time `json:"timeCompleted,omitempty"`
}

// Completed reports whether the review reached a verdict.
func (r *Review) Completed() bool {
	return r.TimeCompleted != nil
}

// NewID builds the record ID for an (object, revision) pair.
func NewID(objectType, objectID, revisionID string) string {
	return fmt.Sprintf("%s-%s-%s", objectType, objectID, revisionID)
}

// Manager owns review records.
type Manager struct {
	*entity.Manager[Review]
}

// NewManager creates a review manager over the given store.
func NewManager(store entity.Store) *Manager {
	return &Manager{Manager: entity.New[Review](store, ObjectType)}
}

// Request creates a pending review for one revision of one object.
func (m *Manager) Request(objectType, objectID, revisionID string) (Review, error) {
	r := Review{
		ID:            NewID(objectType, objectID, revisionID),
		ObjectType:    objectType,
		ObjectID:      objectID,
		RevisionID:    revisionID,
		TimeRequested: time.Now(),
	}
	if err := m.Create(r.ID, r, true); err != nil {
		return Review{}, err
	}
	return r, nil
}

// Complete records the verdict and stamps the completion time.
func (m *Manager) Complete(id string, approved bool) error {
	r, err := m.Read(id)
	if err != nil {
		return err
	}

	now := time.Now()
	r.Approved = &approved
	r.TimeCompleted = &now

	verdict := "approve"
	if !approved {
		verdict = "reject"
	}
	return m.Update(id, r, fmt.Sprintf("%s review %s", verdict, id))
}

// ListQuery carries the optional review listing filters.
type ListQuery struct {
	Completed  *bool    `json:"completed,omitempty"`
	ObjectType string   `json:"objectType,omitempty"`
	ObjectIDs  []string `json:"objectIDs,omitempty"`
	OnlyIDs    []string `json:"onlyIDs,omitempty"`
}

func (lq *ListQuery) build() *query.Query[Review] {
	q := query.New[Review]()
	if lq == nil {
		return q
	}

	if lq.OnlyIDs != nil {
		q.WhereID(query.OnlyIDs(lq.OnlyIDs))
	}
	if lq.ObjectType != "" {
		// The ID's first hyphen-delimited segment is the object type.
		q.WhereID(query.IDSegment(0, "-", lq.ObjectType))
	}
	if lq.Completed != nil {
		want := *lq.Completed
		q.Where(func(r Review) bool { return r.Completed() == want })
	}
	if len(lq.ObjectIDs) > 0 {
		wanted := make(map[string]bool, len(lq.ObjectIDs))
		for _, id := range lq.ObjectIDs {
			wanted[id] = true
		}
		q.Where(func(r Review) bool { return wanted[r.ObjectID] })
	}
	return q
}

// List returns the IDs matching the query, avoiding a full read when
// only ID-level filters are present.
func (m *Manager) List(lq *ListQuery) ([]string, error) {
	return m.ListIDsMatching(lq.build())
}

// ReadAllFiltered returns the full index filtered by the query.
func (m *Manager) ReadAllFiltered(lq *ListQuery) (map[string]Review, error) {
	return m.ReadAllMatching(lq.build())
}
