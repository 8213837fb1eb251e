package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// chain: a -> b -> c -> d, with a shortcut a -> c
func pathStore(t *testing.T) *MemoryStore {
	s := NewMemoryStore()
	nodes := []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	if err := s.UpsertNodes(context.Background(), nodes); err != nil {
		t.Fatalf("upsert nodes failed: %v", err)
	}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "b", To: "c"},
		{From: "c", To: "d"},
		{From: "a", To: "c"},
	}
	if err := s.UpsertEdges(context.Background(), edges); err != nil {
		t.Fatalf("upsert edges failed: %v", err)
	}
	return s
}

func TestShortestPath(t *testing.T) {
	s := pathStore(t)

	path, err := ShortestPath(context.Background(), s, "a", "d", 0)
	if err != nil {
		t.Fatalf("shortest path failed: %v", err)
	}
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(path, want) {
		t.Fatalf("expected %v, got %v", want, path)
	}

	path, err = ShortestPath(context.Background(), s, "a", "a", 0)
	if err != nil || !reflect.DeepEqual(path, []string{"a"}) {
		t.Fatalf("self path wrong: %v %v", path, err)
	}
}

func TestShortestPathNoRoute(t *testing.T) {
	s := pathStore(t)

	// edges are directed; d has no way back to a
	if _, err := ShortestPath(context.Background(), s, "d", "a", 0); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestShortestPathDepthBound(t *testing.T) {
	s := pathStore(t)

	// a -> c -> d needs two rounds; one round must not reach d
	if _, err := ShortestPath(context.Background(), s, "a", "d", 1); !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath under depth bound, got %v", err)
	}
	path, err := ShortestPath(context.Background(), s, "a", "d", 2)
	if err != nil {
		t.Fatalf("depth 2 should reach d: %v", err)
	}
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(path, want) {
		t.Fatalf("expected %v, got %v", want, path)
	}
}

func TestShortestPathCancelled(t *testing.T) {
	s := pathStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ShortestPath(ctx, s, "a", "d", 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDegreeRank(t *testing.T) {
	s := pathStore(t)

	entries, err := DegreeRank(context.Background(), s, []string{"a"}, 0)
	if err != nil {
		t.Fatalf("degree rank failed: %v", err)
	}
	// out-degrees: a=2, b=1, c=1, d=0; ties break by id
	want := []RankEntry{{ID: "a", Degree: 2}, {ID: "b", Degree: 1}, {ID: "c", Degree: 1}, {ID: "d", Degree: 0}}
	if !reflect.DeepEqual(entries, want) {
		t.Fatalf("expected %v, got %v", want, entries)
	}

	top, err := DegreeRank(context.Background(), s, []string{"a"}, 2)
	if err != nil {
		t.Fatalf("limited rank failed: %v", err)
	}
	if len(top) != 2 || top[0].ID != "a" || top[1].ID != "b" {
		t.Fatalf("limit not honored: %v", top)
	}

	// unreachable parts stay out: starting at b never sees a
	entries, err = DegreeRank(context.Background(), s, []string{"b"}, 0)
	if err != nil {
		t.Fatalf("rank from b failed: %v", err)
	}
	for _, e := range entries {
		if e.ID == "a" {
			t.Fatalf("rank walked backwards to a: %v", entries)
		}
	}

	// duplicate and empty seeds collapse
	entries, err = DegreeRank(context.Background(), s, []string{"d", "", "d"}, 0)
	if err != nil {
		t.Fatalf("rank with messy seeds failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "d" || entries[0].Degree != 0 {
		t.Fatalf("expected single entry for d, got %v", entries)
	}
}
