package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisStore keeps nodes as hashes (node:<id>) and adjacency as sets
// (adj:<id>). A nodes set and an edge counter back the count queries.
type redisStore struct {
	client redis.UniversalClient
}

const (
	redisNodesKey = "graph:nodes"
	redisEdgesKey = "graph:edges_total"
)

func nodeKey(id string) string { return "graph:node:" + id }
func adjKey(id string) string  { return "graph:adj:" + id }

func openRedis(ctx context.Context, o RedisOptions) (Store, error) {
	if len(o.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs empty")
	}
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:        o.Addrs,
		DB:           o.DB,
		Password:     o.Password,
		PoolSize:     o.PoolSize,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &redisStore{client: client}, nil
}

func (s *redisStore) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

func (s *redisStore) Close(ctx context.Context) error { return s.client.Close() }

func (s *redisStore) Node(ctx context.Context, id string) (*Node, error) {
	m, err := s.client.HGetAll(ctx, nodeKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	n := &Node{ID: id, Label: m["label"]}
	for k, v := range m {
		if strings.HasPrefix(k, "p:") {
			if n.Props == nil {
				n.Props = make(map[string]string)
			}
			n.Props[strings.TrimPrefix(k, "p:")] = v
		}
	}
	return n, nil
}

func (s *redisStore) Adjacency(ctx context.Context, id string) ([]string, error) {
	members, err := s.client.SMembers(ctx, adjKey(id)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

func (s *redisStore) UpsertNodes(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for _, n := range nodes {
		if n.ID == "" {
			return fmt.Errorf("graph: node with empty id")
		}
		fields := map[string]interface{}{"id": n.ID, "label": n.Label}
		for k, v := range n.Props {
			fields["p:"+k] = v
		}
		pipe.HSet(ctx, nodeKey(n.ID), fields)
		pipe.SAdd(ctx, redisNodesKey, n.ID)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) UpsertEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	adds := make([]*redis.IntCmd, 0, len(edges))
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("graph: edge with empty endpoint")
		}
		adds = append(adds, pipe.SAdd(ctx, adjKey(e.From), e.To))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	var added int64
	for _, cmd := range adds {
		added += cmd.Val()
	}
	if added > 0 {
		return s.client.IncrBy(ctx, redisEdgesKey, added).Err()
	}
	return nil
}

func (s *redisStore) NodeCount(ctx context.Context) (int64, error) {
	return s.client.SCard(ctx, redisNodesKey).Result()
}

func (s *redisStore) EdgeCount(ctx context.Context) (int64, error) {
	n, err := s.client.Get(ctx, redisEdgesKey).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
