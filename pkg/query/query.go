// ABOUTME: Composable two-path predicate engine shared by all managers
// ABOUTME: Filters either a bare ID list or a full object index

package query

import "strings"

// IDPredicate decides membership from an object ID alone. ID
// predicates are cheap: they can run without reading any objects.
type IDPredicate func(id string) bool

// ObjectPredicate decides membership from a fully loaded object.
// The presence of any object predicate forces a full index read.
type ObjectPredicate[T any] func(obj T) bool

// Query is an ordered set of optional filters. A zero query matches
// everything.
type Query[T any] struct {
	idFilters     []IDPredicate
	objectFilters []ObjectPredicate[T]
}

// New creates an empty query.
func New[T any]() *Query[T] {
	return &Query[T]{}
}

// WhereID adds an ID-level filter.
func (q *Query[T]) WhereID(p IDPredicate) *Query[T] {
	q.idFilters = append(q.idFilters, p)
	return q
}

// Where adds an object-level filter.
func (q *Query[T]) Where(p ObjectPredicate[T]) *Query[T] {
	q.objectFilters = append(q.objectFilters, p)
	return q
}

// Empty reports whether the query carries no filters at all.
func (q *Query[T]) Empty() bool {
	return q == nil || (len(q.idFilters) == 0 && len(q.objectFilters) == 0)
}

// NeedsObjects reports whether evaluating the query requires loaded
// objects. Managers use this to decide between the cheap ID-list path
// and a full index read.
func (q *Query[T]) NeedsObjects() bool {
	return q != nil && len(q.objectFilters) > 0
}

// FilterIDs applies the ID-level filters to a bare ID list,
// preserving input order. Object-level filters are silently skipped
// on this path. An empty query returns the input unmodified.
func (q *Query[T]) FilterIDs(ids []string) []string {
	if q.Empty() || len(q.idFilters) == 0 {
		return ids
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if q.matchID(id) {
			out = append(out, id)
		}
	}
	return out
}

// FilterIndex applies the full query to an ID-to-object index. ID
// filters run first to shrink the candidate set, then object filters
// remove disqualified keys. An empty query returns the input
// unmodified.
func (q *Query[T]) FilterIndex(index map[string]T) map[string]T {
	if q.Empty() {
		return index
	}

	out := make(map[string]T, len(index))
	for id, obj := range index {
		if !q.matchID(id) {
			continue
		}
		out[id] = obj
	}

	for id, obj := range out {
		if !q.matchObject(obj) {
			delete(out, id)
		}
	}
	return out
}

func (q *Query[T]) matchID(id string) bool {
	for _, p := range q.idFilters {
		if !p(id) {
			return false
		}
	}
	return true
}

func (q *Query[T]) matchObject(obj T) bool {
	for _, p := range q.objectFilters {
		if !p(obj) {
			return false
		}
	}
	return true
}

// OnlyIDs restricts results to the given set of IDs.
func OnlyIDs(ids []string) IDPredicate {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(id string) bool {
		return set[id]
	}
}

// IDPrefix matches IDs starting with the given prefix.
func IDPrefix(prefix string) IDPredicate {
	return func(id string) bool {
		return strings.HasPrefix(id, prefix)
	}
}

// IDSegment matches IDs whose nth sep-delimited segment equals want.
func IDSegment(n int, sep, want string) IDPredicate {
	return func(id string) bool {
		parts := strings.Split(id, sep)
		if n >= len(parts) {
			return false
		}
		return parts[n] == want
	}
}
