// ABOUTME: Schema migration chain for localized entries
// ABOUTME: Pure, total, idempotent upgrades run on every read

package concept

import (
	"strings"

	"github.com/glossarium/termstore/pkg/revision"
)

// CurrentSchemaVersion is the schema every read self-heals to.
const CurrentSchemaVersion = 3

// The chain: index n upgrades schema version n to n+1.
//
//	v0 → v1  fold the legacy single term field into the terms list
//	v1 → v2  extract an embedded <domain> tag from the first term
//	         or the definition
//	v2 → v3  scaffold the revision history, seeding an initial
//	         revision from present content
var upgrades = []func(LocalizedEntry) LocalizedEntry{
	upgradeSplitDesignations,
	upgradeExtractDomain,
	upgradeScaffoldRevisions,
}

// MigrateEntry brings one localized entry up to the current schema.
// Migrating an already-migrated entry changes nothing.
func MigrateEntry(e LocalizedEntry) LocalizedEntry {
	for e.SchemaVersion < CurrentSchemaVersion {
		e = upgrades[e.SchemaVersion](e)
		e.SchemaVersion++
	}
	return e
}

// Migrate upgrades every localized entry of a concept, including the
// entry content stored inside each historical revision.
func Migrate(c MultiLanguageConcept) MultiLanguageConcept {
	for lang, entry := range c.Localized {
		if entry == nil {
			continue
		}
		migrated := MigrateEntry(*entry)

		for id, rev := range migrated.Revisions.Tree {
			rev.Object = migrateContent(rev.Object)
			migrated.Revisions.Tree[id] = rev
		}

		c.Localized[lang] = &migrated
	}
	return c
}

func upgradeSplitDesignations(e LocalizedEntry) LocalizedEntry {
	e.Entry = splitDesignations(e.Entry)
	return e
}

func upgradeExtractDomain(e LocalizedEntry) LocalizedEntry {
	e.Entry = extractDomain(e.Entry)
	return e
}

func upgradeScaffoldRevisions(e LocalizedEntry) LocalizedEntry {
	if e.Revisions.Tree == nil {
		e.Revisions.Tree = map[string]revision.Revision[Entry]{}
	}
	if e.Revisions.Current == "" && hasContent(e.Entry) {
		e.Revisions.Current = e.Revisions.Add(e.Entry, "", nil, "")
	}
	return e
}

// migrateContent applies the content-level upgrade steps to entry
// snapshots stored inside revisions, which carry no schema version of
// their own.
func migrateContent(entry Entry) Entry {
	return extractDomain(splitDesignations(entry))
}

func splitDesignations(entry Entry) Entry {
	if entry.Term == "" {
		return entry
	}
	if len(entry.Terms) == 0 {
		entry.Terms = []Designation{{Designation: entry.Term, Type: "expression"}}
	}
	entry.Term = ""
	return entry
}

func extractDomain(entry Entry) Entry {
	if entry.Domain != "" {
		return entry
	}

	if len(entry.Terms) > 0 {
		if domain, rest, ok := splitDomainTag(entry.Terms[0].Designation); ok {
			entry.Domain = domain
			entry.Terms[0].Designation = rest
			return entry
		}
	}
	if domain, rest, ok := splitDomainTag(entry.Definition); ok {
		entry.Domain = domain
		entry.Definition = rest
	}
	return entry
}

// splitDomainTag parses a leading "<domain>" tag, e.g.
// "<geodesy> station" → ("geodesy", "station").
func splitDomainTag(s string) (domain, rest string, ok bool) {
	if !strings.HasPrefix(s, "<") {
		return "", "", false
	}
	end := strings.Index(s, ">")
	if end <= 1 {
		return "", "", false
	}
	return s[1:end], strings.TrimSpace(s[end+1:]), true
}

func hasContent(entry Entry) bool {
	return len(entry.Terms) > 0 || entry.Definition != ""
}
