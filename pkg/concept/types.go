// ABOUTME: Concept data model for multilingual terminology entries
// ABOUTME: One independently versioned localized entry per language

package concept

import (
	"encoding/json"
	"fmt"

	"github.com/glossarium/termstore/pkg/revision"
)

// AuthoritativeLanguage is the language every concept must carry.
const AuthoritativeLanguage = "eng"

// SupportedLanguages is the set of ISO 639-2 codes a concept can be
// localized into.
var SupportedLanguages = map[string]bool{
	"eng": true, "ara": true, "dan": true, "deu": true, "fin": true,
	"fra": true, "jpn": true, "kor": true, "msa": true, "nld": true,
	"pol": true, "rus": true, "spa": true, "swe": true, "tha": true,
	"zho": true,
}

// Relation is an outgoing typed link to another concept.
type Relation struct {
	Type string `json:"type"`
	To   int    `json:"to"`
}

// IncomingRelation is a reverse link computed by scanning all
// concepts for relations pointing at a target.
type IncomingRelation struct {
	Type string `json:"type"`
	From int    `json:"from"`
}

// Designation is one way of expressing a concept in a language.
type Designation struct {
	Designation     string `json:"designation"`
	Type            string `json:"type,omitempty"` // expression, symbol, ...
	NormativeStatus string `json:"normativeStatus,omitempty"`
}

// SourceRef points at the document a definition was taken from.
type SourceRef struct {
	Ref    string `json:"ref,omitempty"`
	Clause string `json:"clause,omitempty"`
	Link   string `json:"link,omitempty"`
}

// Entry is the language-specific content of a concept. Term is the
// legacy single-designation field kept only so old files decode; the
// migration chain folds it into Terms.
type Entry struct {
	Term                string        `json:"term,omitempty"`
	Terms               []Designation `json:"terms,omitempty"`
	Definition          string        `json:"definition,omitempty"`
	Domain              string        `json:"domain,omitempty"`
	Notes               []string      `json:"notes,omitempty"`
	Examples            []string      `json:"examples,omitempty"`
	Language            string        `json:"language,omitempty"`
	AuthoritativeSource *SourceRef    `json:"authoritativeSource,omitempty"`
}

// LocalizedEntry is an Entry together with its own revision history,
// persisted inline under "_revisions".
type LocalizedEntry struct {
	Entry
	SchemaVersion int                     `json:"schemaVersion,omitempty"`
	Revisions     revision.History[Entry] `json:"_revisions"`
}

// CurrentEntry resolves the entry content for the given revision ID,
// degrading gracefully to the top-level fields when the ID is stale
// or empty.
func (e *LocalizedEntry) CurrentEntry(revisionID string) Entry {
	if revisionID != "" {
		if obj, ok := e.Revisions.Resolve(revisionID); ok {
			return obj
		}
	}
	return e.Entry
}

// MultiLanguageConcept is the primary domain entity: a terminological
// item carrying one localized entry per supported language. The
// authoritative-language entry is required.
type MultiLanguageConcept struct {
	TermID    int
	Relations []Relation
	Localized map[string]*LocalizedEntry
}

// Eng returns the authoritative-language entry.
func (c *MultiLanguageConcept) Eng() *LocalizedEntry {
	return c.Localized[AuthoritativeLanguage]
}

// Entry returns the localized entry for a language, or nil.
func (c *MultiLanguageConcept) Entry(lang string) *LocalizedEntry {
	return c.Localized[lang]
}

// The persisted shape inlines language codes as top-level keys next
// to termid and relations, so the concept (un)marshals by hand.

type conceptHeader struct {
	TermID    int        `json:"termid"`
	Relations []Relation `json:"relations,omitempty"`
}

// MarshalJSON emits {"termid":..,"relations":..,"eng":{..},..}.
func (c MultiLanguageConcept) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(c.Localized)+2)

	header, err := json.Marshal(c.TermID)
	if err != nil {
		return nil, err
	}
	out["termid"] = header

	if len(c.Relations) > 0 {
		rels, err := json.Marshal(c.Relations)
		if err != nil {
			return nil, err
		}
		out["relations"] = rels
	}

	for lang, entry := range c.Localized {
		if entry == nil {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return nil, err
		}
		out[lang] = data
	}

	return json.Marshal(out)
}

// UnmarshalJSON reads termid and relations, then treats every
// remaining supported-language key as a localized entry.
func (c *MultiLanguageConcept) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var header conceptHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return err
	}
	c.TermID = header.TermID
	c.Relations = header.Relations
	c.Localized = make(map[string]*LocalizedEntry)

	for key, raw := range fields {
		if !SupportedLanguages[key] {
			continue
		}
		var entry LocalizedEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("concept: decode %s entry: %w", key, err)
		}
		c.Localized[key] = &entry
	}
	return nil
}
