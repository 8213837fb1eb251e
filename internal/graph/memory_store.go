package graph

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is the in-process driver: mutex-guarded maps, no external
// connection. Default for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nodes  map[string]Node
	adj    map[string]map[string]struct{}
	edges  int64
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes: make(map[string]Node),
		adj:   make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) Node(ctx context.Context, id string) (*Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	n, ok := m.nodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := n
	if n.Props != nil {
		cp.Props = make(map[string]string, len(n.Props))
		for k, v := range n.Props {
			cp.Props[k] = v
		}
	}
	return &cp, nil
}

func (m *MemoryStore) Adjacency(ctx context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	set := m.adj[id]
	if len(set) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(set))
	for nb := range set {
		out = append(out, nb)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("graph: node with empty id")
		}
		m.nodes[n.ID] = n
	}
	return nil
}

func (m *MemoryStore) UpsertEdges(ctx context.Context, edges []Edge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("graph: edge with empty endpoint")
		}
		set := m.adj[e.From]
		if set == nil {
			set = make(map[string]struct{})
			m.adj[e.From] = set
		}
		if _, dup := set[e.To]; !dup {
			set[e.To] = struct{}{}
			m.edges++
		}
	}
	return nil
}

func (m *MemoryStore) NodeCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return int64(len(m.nodes)), nil
}

func (m *MemoryStore) EdgeCount(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.edges, nil
}
