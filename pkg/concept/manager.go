// ABOUTME: Concept manager with source scoping and text search
// ABOUTME: Every read self-heals through the migration chain

package concept

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/glossarium/termstore/pkg/collection"
	"github.com/glossarium/termstore/pkg/entity"
)

// ObjectType is the storage type segment for concepts.
const ObjectType = "concepts"

// CatalogAll is the preset naming the unfiltered catalog.
const CatalogAll = "all"

// Source types.
const (
	SourceCatalogPreset = "catalog-preset"
	SourceCollection    = "collection"
)

// ErrUnknownSource is returned for a source that names neither the
// all-catalog preset nor a collection.
var ErrUnknownSource = errors.New("concept: unknown source")

// Source scopes a listing to a catalog preset or a collection.
type Source struct {
	Type         string `json:"type"`
	PresetName   string `json:"presetName,omitempty"`
	CollectionID string `json:"collectionID,omitempty"`
}

// Query carries the optional concept listing filters.
type Query struct {
	InSource     *Source `json:"inSource,omitempty"`
	MatchingText string  `json:"matchingText,omitempty"`
}

// Manager owns multilingual concepts. It depends on the collection
// manager for source scoping; the dependency is injected at
// construction.
type Manager struct {
	base        *entity.Manager[MultiLanguageConcept]
	collections *collection.Manager
}

// NewManager creates a concept manager over the given store.
func NewManager(store entity.Store, collections *collection.Manager) *Manager {
	base := entity.New[MultiLanguageConcept](store, ObjectType,
		entity.WithRefMapping[MultiLanguageConcept](conceptRef, conceptID))
	return &Manager{base: base, collections: collections}
}

// Storage locators are zero-padded so lexical listing order matches
// numeric termid order.
func conceptRef(id string) string {
	n, err := strconv.Atoi(id)
	if err != nil {
		return "concept-" + id
	}
	return fmt.Sprintf("concept-%07d", n)
}

func conceptID(ref string) string {
	trimmed := strings.TrimPrefix(ref, "concept-")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return trimmed
	}
	return strconv.Itoa(n)
}

// Create persists a new concept.
func (m *Manager) Create(c MultiLanguageConcept, commitImmediately bool) error {
	return m.base.Create(strconv.Itoa(c.TermID), c, commitImmediately)
}

// Read loads one concept, piping it through the migration chain so
// callers always see the current schema regardless of on-disk format
// age.
func (m *Manager) Read(termID int) (MultiLanguageConcept, error) {
	c, err := m.base.Read(strconv.Itoa(termID))
	if err != nil {
		return MultiLanguageConcept{}, err
	}
	return Migrate(c), nil
}

// Exists reports whether a concept is stored under termID.
func (m *Manager) Exists(termID int) (bool, error) {
	return m.base.Exists(strconv.Itoa(termID))
}

// Update replaces the whole stored concept.
func (m *Manager) Update(c MultiLanguageConcept, commitMessage string) error {
	return m.base.Update(strconv.Itoa(c.TermID), c, commitMessage)
}

// Delete removes a concept.
func (m *Manager) Delete(termID int, commitImmediately bool) error {
	return m.base.Delete(strconv.Itoa(termID), commitImmediately)
}

// ListIDs returns the termids in scope for the query's source: the
// full catalog for the all preset (or no source), a collection's
// items intersected with the base list in base order for a
// collection source, and an error for anything else.
func (m *Manager) ListIDs(q *Query) ([]int, error) {
	base, err := m.base.ListIDs()
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(base))
	for _, id := range base {
		n, err := strconv.Atoi(id)
		if err != nil {
			continue
		}
		ids = append(ids, n)
	}

	if q == nil || q.InSource == nil {
		return ids, nil
	}

	src := q.InSource
	switch {
	case src.Type == SourceCatalogPreset && src.PresetName == CatalogAll:
		return ids, nil

	case src.Type == SourceCollection && src.CollectionID != "":
		coll, err := m.collections.Read(src.CollectionID)
		if err != nil {
			return nil, err
		}
		scoped := make([]int, 0, len(coll.Items))
		for _, id := range ids {
			if coll.Contains(id) {
				scoped = append(scoped, id)
			}
		}
		return scoped, nil

	default:
		return nil, fmt.Errorf("%w: %+v", ErrUnknownSource, *src)
	}
}

// ReadAll resolves the IDs in scope, reads and migrates each concept,
// and applies the free-text filter when present.
func (m *Manager) ReadAll(q *Query) (map[int]MultiLanguageConcept, error) {
	ids, err := m.ListIDs(q)
	if err != nil {
		return nil, err
	}

	index := make(map[int]MultiLanguageConcept, len(ids))
	for _, id := range ids {
		c, err := m.Read(id)
		if err != nil {
			return nil, err
		}
		if q != nil && q.MatchingText != "" && !matchesText(c, q.MatchingText) {
			continue
		}
		index[id] = c
	}
	return index, nil
}

// matchesText does a case-insensitive match across the authoritative
// designations, the definition and the termid's string form.
func matchesText(c MultiLanguageConcept, text string) bool {
	needle := strings.ToLower(text)

	if strings.Contains(strconv.Itoa(c.TermID), needle) {
		return true
	}

	eng := c.Eng()
	if eng == nil {
		return false
	}
	if strings.Contains(strings.ToLower(eng.Definition), needle) {
		return true
	}
	for _, d := range eng.Terms {
		if strings.Contains(strings.ToLower(d.Designation), needle) {
			return true
		}
	}
	return false
}

// FindIncomingRelations scans all concepts for relations pointing at
// ref and returns one entry per source concept, first-seen type wins.
// This is an O(n) reverse-index computed on every call.
func (m *Manager) FindIncomingRelations(ref int) ([]IncomingRelation, error) {
	index, err := m.ReadAll(nil)
	if err != nil {
		return nil, err
	}

	froms := make([]int, 0, len(index))
	for id := range index {
		froms = append(froms, id)
	}
	sort.Ints(froms)

	incoming := []IncomingRelation{}
	for _, from := range froms {
		for _, rel := range index[from].Relations {
			if rel.To != ref {
				continue
			}
			incoming = append(incoming, IncomingRelation{Type: rel.Type, From: from})
			break
		}
	}
	return incoming, nil
}

// ReportUpdatedData signals consumers that concept data changed.
func (m *Manager) ReportUpdatedData(termIDs ...int) {
	ids := make([]string, len(termIDs))
	for i, id := range termIDs {
		ids[i] = strconv.Itoa(id)
	}
	m.base.ReportUpdatedData(ids...)
}
