// Package graph is the shared external resource behind the resource
// registry: a directed graph with pluggable storage drivers. Callers get a
// Store only through the registry and never close it themselves.
package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("graph: node not found")
	ErrNoPath   = errors.New("graph: no path")
	ErrClosed   = errors.New("graph: store closed")
)

type Node struct {
	ID    string            `json:"id"`
	Label string            `json:"label,omitempty"`
	Props map[string]string `json:"props,omitempty"`
}

type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Querier is the read/write surface handed out to resource leases. It
// deliberately lacks Close and Ping: lifecycle belongs to whoever opened
// the store. Adjacency returns outgoing neighbor ids in deterministic
// (sorted) order.
type Querier interface {
	Node(ctx context.Context, id string) (*Node, error)
	Adjacency(ctx context.Context, id string) ([]string, error)
	UpsertNodes(ctx context.Context, nodes []Node) error
	UpsertEdges(ctx context.Context, edges []Edge) error
	NodeCount(ctx context.Context) (int64, error)
	EdgeCount(ctx context.Context) (int64, error)
}

// Store is the full driver contract.
type Store interface {
	Querier
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
	DriverSQL    = "sql"
)

type Config struct {
	Driver string
	Redis  RedisOptions
	SQL    SQLOptions
}

type RedisOptions struct {
	Addrs        []string
	DB           int
	Password     string
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type SQLOptions struct {
	Dialect         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// Open connects the configured driver. An empty driver selects memory.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		return openRedis(ctx, cfg.Redis)
	case DriverSQL:
		return openSQL(ctx, cfg.SQL)
	default:
		return nil, fmt.Errorf("unknown graph driver %q", cfg.Driver)
	}
}
