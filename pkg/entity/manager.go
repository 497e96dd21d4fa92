// ABOUTME: Generic CRUD manager over the working copy store
// ABOUTME: Base contract every concrete entity manager extends

package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/glossarium/termstore/pkg/query"
	"github.com/glossarium/termstore/pkg/storage"
)

// ErrNotFound aliases the storage sentinel so callers can test with
// errors.Is regardless of layer.
var ErrNotFound = storage.ErrNotFound

// Store is the storage backend contract the managers build on.
// Implemented by storage.WorkingCopy.
type Store interface {
	Read(objectType, ref string) ([]byte, error)
	Write(objectType, ref string, data []byte, commitMessage string) error
	Delete(objectType, ref, commitMessage string) error
	ListRefs(objectType string) ([]string, error)
	ReadAll(objectType string) (map[string][]byte, error)
	ReportUpdated(objectType string, refs []string)
}

// Manager is a typed create/read/update/delete/list facade over a
// Store. Concrete managers embed or wrap it and may remap domain IDs
// to storage locator strings (e.g. zero-padding, prefixing).
type Manager[T any] struct {
	store      Store
	objectType string
	dbRef      func(id string) string
	objID      func(ref string) string
}

// Option configures a Manager.
type Option[T any] func(*Manager[T])

// WithRefMapping overrides the domain-ID-to-locator mapping in both
// directions.
func WithRefMapping[T any](dbRef, objID func(string) string) Option[T] {
	return func(m *Manager[T]) {
		m.dbRef = dbRef
		m.objID = objID
	}
}

// New creates a manager for one object type. By default domain IDs
// are used directly as storage locators.
func New[T any](store Store, objectType string, opts ...Option[T]) *Manager[T] {
	ident := func(s string) string { return s }
	m := &Manager[T]{
		store:      store,
		objectType: objectType,
		dbRef:      ident,
		objID:      ident,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ObjectType returns the storage type segment this manager owns.
func (m *Manager[T]) ObjectType() string {
	return m.objectType
}

// DBRef maps a domain ID to its storage locator.
func (m *Manager[T]) DBRef(id string) string {
	return m.dbRef(id)
}

// ObjID maps a storage locator back to its domain ID.
func (m *Manager[T]) ObjID(ref string) string {
	return m.objID(ref)
}

// Create persists a new object. With commitImmediately the write is
// committed under a generated message.
func (m *Manager[T]) Create(id string, obj T, commitImmediately bool) error {
	message := ""
	if commitImmediately {
		message = fmt.Sprintf("Create %s/%s", m.objectType, id)
	}
	return m.write(id, obj, message)
}

// Read loads and decodes one object. A missing object is reported as
// ErrNotFound.
func (m *Manager[T]) Read(id string) (T, error) {
	var obj T

	data, err := m.store.Read(m.objectType, m.dbRef(id))
	if err != nil {
		return obj, err
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return obj, fmt.Errorf("entity: decode %s/%s: %w", m.objectType, id, err)
	}
	return obj, nil
}

// Exists reports whether an object is stored under id.
func (m *Manager[T]) Exists(id string) (bool, error) {
	_, err := m.store.Read(m.objectType, m.dbRef(id))
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// Update replaces the whole stored object and commits it under the
// given message.
func (m *Manager[T]) Update(id string, obj T, commitMessage string) error {
	return m.write(id, obj, commitMessage)
}

// Delete removes the object. With commitImmediately the deletion is
// committed under a generated message.
func (m *Manager[T]) Delete(id string, commitImmediately bool) error {
	message := ""
	if commitImmediately {
		message = fmt.Sprintf("Delete %s/%s", m.objectType, id)
	}
	return m.store.Delete(m.objectType, m.dbRef(id), message)
}

// ListIDs returns the domain IDs of all stored objects.
func (m *Manager[T]) ListIDs() ([]string, error) {
	refs, err := m.store.ListRefs(m.objectType)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(refs))
	for i, ref := range refs {
		ids[i] = m.objID(ref)
	}
	return ids, nil
}

// ReadAll returns a full index of all stored objects keyed by domain
// ID.
func (m *Manager[T]) ReadAll() (map[string]T, error) {
	raw, err := m.store.ReadAll(m.objectType)
	if err != nil {
		return nil, err
	}

	index := make(map[string]T, len(raw))
	for ref, data := range raw {
		var obj T
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("entity: decode %s/%s: %w", m.objectType, ref, err)
		}
		index[m.objID(ref)] = obj
	}
	return index, nil
}

// ListIDsMatching applies a query, using the bare ID list when no
// object-level predicate is present and forcing a full index read
// otherwise.
func (m *Manager[T]) ListIDsMatching(q *query.Query[T]) ([]string, error) {
	if !q.NeedsObjects() {
		ids, err := m.ListIDs()
		if err != nil {
			return nil, err
		}
		return q.FilterIDs(ids), nil
	}

	index, err := m.ReadAllMatching(q)
	if err != nil {
		return nil, err
	}

	ids, err := m.ListIDs()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(index))
	for _, id := range ids {
		if _, ok := index[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

// ReadAllMatching returns the full index filtered by the query.
func (m *Manager[T]) ReadAllMatching(q *query.Query[T]) (map[string]T, error) {
	index, err := m.ReadAll()
	if err != nil {
		return nil, err
	}
	return q.FilterIndex(index), nil
}

// ReportUpdatedData signals consumers that stored data changed and
// in-memory indexes should be reloaded.
func (m *Manager[T]) ReportUpdatedData(ids ...string) {
	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = m.dbRef(id)
	}
	m.store.ReportUpdated(m.objectType, refs)
}

func (m *Manager[T]) write(id string, obj T, commitMessage string) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("entity: encode %s/%s: %w", m.objectType, id, err)
	}
	if err := m.store.Write(m.objectType, m.dbRef(id), data, commitMessage); err != nil {
		return err
	}
	m.ReportUpdatedData(id)
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound)
}
