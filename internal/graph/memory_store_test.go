package graph

import (
	"context"
	"errors"
	"testing"
)

func seedStore(t *testing.T, s *MemoryStore) {
	nodes := []Node{
		{ID: "a", Label: "alpha", Props: map[string]string{"color": "red"}},
		{ID: "b", Label: "beta"},
		{ID: "c", Label: "gamma"},
	}
	if err := s.UpsertNodes(context.Background(), nodes); err != nil {
		t.Fatalf("upsert nodes failed: %v", err)
	}
	edges := []Edge{
		{From: "a", To: "b"},
		{From: "a", To: "c"},
		{From: "b", To: "c"},
	}
	if err := s.UpsertEdges(context.Background(), edges); err != nil {
		t.Fatalf("upsert edges failed: %v", err)
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	s := NewMemoryStore()
	seedStore(t, s)

	n, err := s.Node(context.Background(), "a")
	if err != nil {
		t.Fatalf("node lookup failed: %v", err)
	}
	if n.Label != "alpha" || n.Props["color"] != "red" {
		t.Fatalf("wrong node back: %+v", n)
	}
	if _, err := s.Node(context.Background(), "zz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	adj, err := s.Adjacency(context.Background(), "a")
	if err != nil {
		t.Fatalf("adjacency failed: %v", err)
	}
	if len(adj) != 2 || adj[0] != "b" || adj[1] != "c" {
		t.Fatalf("expected sorted [b c], got %v", adj)
	}
	adj, err = s.Adjacency(context.Background(), "c")
	if err != nil || adj != nil {
		t.Fatalf("leaf adjacency should be empty, got %v %v", adj, err)
	}

	nc, err := s.NodeCount(context.Background())
	if err != nil || nc != 3 {
		t.Fatalf("expected 3 nodes, got %d %v", nc, err)
	}
	ec, err := s.EdgeCount(context.Background())
	if err != nil || ec != 3 {
		t.Fatalf("expected 3 edges, got %d %v", ec, err)
	}

	// re-adding an edge must not double count
	if err := s.UpsertEdges(context.Background(), []Edge{{From: "a", To: "b"}}); err != nil {
		t.Fatalf("re-upsert edge failed: %v", err)
	}
	if ec, _ := s.EdgeCount(context.Background()); ec != 3 {
		t.Fatalf("duplicate edge double counted: %d", ec)
	}
}

func TestMemoryStoreValidation(t *testing.T) {
	s := NewMemoryStore()
	if err := s.UpsertNodes(context.Background(), []Node{{ID: ""}}); err == nil {
		t.Fatalf("expected error for empty node id")
	}
	if err := s.UpsertEdges(context.Background(), []Edge{{From: "a", To: ""}}); err == nil {
		t.Fatalf("expected error for empty edge endpoint")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	seedStore(t, s)

	n, err := s.Node(context.Background(), "a")
	if err != nil {
		t.Fatalf("node lookup failed: %v", err)
	}
	n.Props["color"] = "blue"
	again, err := s.Node(context.Background(), "a")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if again.Props["color"] != "red" {
		t.Fatalf("caller mutation leaked into the store: %v", again.Props)
	}
}

func TestMemoryStoreClosed(t *testing.T) {
	s := NewMemoryStore()
	seedStore(t, s)
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from ping, got %v", err)
	}
	if _, err := s.Node(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from node, got %v", err)
	}
	if _, err := s.Adjacency(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from adjacency, got %v", err)
	}
	if err := s.UpsertNodes(context.Background(), []Node{{ID: "x"}}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from upsert, got %v", err)
	}
	if _, err := s.NodeCount(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from count, got %v", err)
	}
}
