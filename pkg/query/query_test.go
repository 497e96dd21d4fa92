// ABOUTME: Tests for the predicate engine
// ABOUTME: Verifies identity, ID-path and index-path filtering

package query

import (
	"reflect"
	"testing"
)

type record struct {
	Email    string
	Resolved bool
}

func TestEmptyQueryIsIdentity(t *testing.T) {
	ids := []string{"c", "a", "b"}
	index := map[string]record{"a": {Email: "x"}, "b": {Email: "y"}}

	q := New[record]()

	gotIDs := q.FilterIDs(ids)
	if !reflect.DeepEqual(gotIDs, ids) {
		t.Errorf("Expected identity on ID list, got %v", gotIDs)
	}

	gotIndex := q.FilterIndex(index)
	if !reflect.DeepEqual(gotIndex, index) {
		t.Errorf("Expected identity on index, got %v", gotIndex)
	}
}

func TestOnlyIDsIntersection(t *testing.T) {
	ids := []string{"a1", "b2", "c3", "d4"}

	q := New[record]().WhereID(OnlyIDs([]string{"d4", "b2", "zz"}))

	got := q.FilterIDs(ids)
	want := []string{"b2", "d4"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v (input order preserved), got %v", want, got)
	}
}

func TestObjectFiltersSkippedOnIDPath(t *testing.T) {
	ids := []string{"a", "b"}

	q := New[record]().Where(func(r record) bool { return r.Resolved })

	if !q.NeedsObjects() {
		t.Fatal("Expected query with object filter to require objects")
	}

	// On the bare ID path the object filter cannot run and is skipped.
	got := q.FilterIDs(ids)
	if !reflect.DeepEqual(got, ids) {
		t.Errorf("Expected object filters skipped on ID path, got %v", got)
	}
}

func TestFilterIndex(t *testing.T) {
	index := map[string]record{
		"a1": {Email: "ann@example.com", Resolved: true},
		"a2": {Email: "ann@example.com", Resolved: false},
		"b1": {Email: "bob@example.com", Resolved: true},
	}

	q := New[record]().
		WhereID(IDPrefix("a")).
		Where(func(r record) bool { return r.Resolved })

	got := q.FilterIndex(index)
	if len(got) != 1 {
		t.Fatalf("Expected 1 survivor, got %d", len(got))
	}
	if _, ok := got["a1"]; !ok {
		t.Errorf("Expected a1 to survive, got %v", got)
	}

	// Input index must not be mutated.
	if len(index) != 3 {
		t.Errorf("Input index was mutated, now %d entries", len(index))
	}
}

func TestIDSegment(t *testing.T) {
	p := IDSegment(0, "-", "concepts")

	if !p("concepts-12_eng-a1b2c3") {
		t.Error("Expected first segment concepts to match")
	}
	if p("reviews-12") {
		t.Error("Unexpected match on reviews prefix")
	}
	if IDSegment(4, "-", "x")("a-b") {
		t.Error("Out-of-range segment must not match")
	}
}
