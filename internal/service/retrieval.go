// Package service holds the retrieval business layer: it turns retrieval
// requests into orchestrator task groups running against the shared graph
// store, and keeps the resulting reports for later lookup.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/grand-thief-cash/yggdrasil/infra/components/logging"
	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/internal/config"
	"github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/graph"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
	"github.com/grand-thief-cash/yggdrasil/internal/orchestrator"
	"github.com/grand-thief-cash/yggdrasil/internal/resource"
)

var (
	ErrInvalidRequest = errors.New("retrieval: invalid request")
	ErrReportNotFound = errors.New("retrieval: report not found")
	ErrReportFinished = errors.New("retrieval: report already finished")
)

// PathResult is the payload of a path query. A missing path is a regular
// result, not a task failure, so it cannot trip a fail-fast group.
type PathResult struct {
	Found bool     `json:"found"`
	Path  []string `json:"path,omitempty"`
}

// NodeResult is the payload of a node query.
type NodeResult struct {
	Node      *graph.Node `json:"node"`
	OutDegree int         `json:"out_degree"`
}

type RetrievalService struct {
	*core.BaseComponent
	Resource     *resource.Component        `infra:"dep:graph_resource"`
	Orchestrator *orchestrator.Orchestrator `infra:"dep:orchestrator"`
	Reports      *ReportStore               `infra:"dep:report_store"`

	maxQueries int
	policy     model.GroupPolicy
	wg         sync.WaitGroup // async report completions
}

func NewRetrievalService(cfg *config.RetrievalConfig) *RetrievalService {
	maxQ := cfg.MaxQueriesPerRequest
	if maxQ <= 0 {
		maxQ = 16
	}
	policy := model.GroupPolicy(cfg.DefaultPolicy)
	if !policy.Valid() {
		policy = model.PolicyCollectAll
	}
	return &RetrievalService{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_RETRIEVAL),
		maxQueries:    maxQ,
		policy:        policy,
	}
}

func (s *RetrievalService) Start(ctx context.Context) error { return s.BaseComponent.Start(ctx) }

func (s *RetrievalService) Stop(ctx context.Context) error {
	defer s.BaseComponent.Stop(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// stragglers resolve once the orchestrator settles their groups
		return fmt.Errorf("retrieval stop: async completions pending: %w", ctx.Err())
	}
}

// Submit validates the request, runs its queries as one task group and
// returns the report. Synchronous requests return the finished report;
// async requests return it still running, to be polled via Get.
func (s *RetrievalService) Submit(ctx context.Context, req model.RetrievalRequest) (model.RetrievalReport, error) {
	tasks, policy, err := s.buildTasks(req)
	if err != nil {
		return model.RetrievalReport{}, err
	}
	gh, err := s.Orchestrator.SubmitGroup(ctx, tasks, policy)
	if err != nil {
		return model.RetrievalReport{}, err
	}
	s.Reports.Put(&model.RetrievalReport{
		ID:          gh.ID(),
		Status:      model.RetrievalRunning,
		Policy:      policy,
		Queries:     len(tasks),
		SubmittedAt: time.Now(),
	})
	logging.Info(ctx, "retrieval submitted",
		zap.String("report_id", gh.ID()),
		zap.Int("queries", len(tasks)),
		zap.String("policy", string(policy)),
		zap.Bool("async", req.Async),
	)

	if req.Async {
		s.wg.Add(1)
		go s.finish(gh)
		out, _ := s.Reports.Get(gh.ID())
		return out, nil
	}

	group, werr := gh.Wait(ctx)
	if group == nil {
		// caller gave up waiting; the group still runs to completion
		s.wg.Add(1)
		go s.finish(gh)
		return model.RetrievalReport{}, werr
	}
	s.complete(gh.ID(), group)
	out, _ := s.Reports.Get(gh.ID())
	return out, nil
}

func (s *RetrievalService) Get(id string) (model.RetrievalReport, bool) {
	return s.Reports.Get(id)
}

func (s *RetrievalService) List(limit int) []model.RetrievalReport {
	return s.Reports.List(limit)
}

// Cancel stops a running retrieval by cancelling its task group.
func (s *RetrievalService) Cancel(id string) error {
	rep, ok := s.Reports.Get(id)
	if !ok {
		return ErrReportNotFound
	}
	if rep.Status != model.RetrievalRunning {
		return ErrReportFinished
	}
	err := s.Orchestrator.CancelGroup(id)
	if errors.Is(err, orchestrator.ErrUnknownGroup) {
		return ErrReportFinished // completed between the status check and the cancel
	}
	return err
}

func (s *RetrievalService) finish(gh *orchestrator.GroupHandle) {
	defer s.wg.Done()
	<-gh.Done()
	group, _ := gh.Report()
	s.complete(gh.ID(), group)
}

func (s *RetrievalService) complete(id string, group *model.GroupReport) {
	now := time.Now()
	s.Reports.Update(id, func(r *model.RetrievalReport) {
		r.Group = group
		r.CompletedAt = &now
		r.Status = statusOf(group)
	})
}

func statusOf(g *model.GroupReport) model.RetrievalStatus {
	switch {
	case g.Err != nil:
		return model.RetrievalFailed
	case len(g.Results) > 0 && g.StateCounts[model.TaskStateCancelled] == len(g.Results):
		return model.RetrievalCancelled
	default:
		return model.RetrievalCompleted
	}
}

func (s *RetrievalService) buildTasks(req model.RetrievalRequest) ([]model.Task, model.GroupPolicy, error) {
	if len(req.Queries) == 0 {
		return nil, "", fmt.Errorf("%w: no queries", ErrInvalidRequest)
	}
	if len(req.Queries) > s.maxQueries {
		return nil, "", fmt.Errorf("%w: %d queries exceeds limit %d", ErrInvalidRequest, len(req.Queries), s.maxQueries)
	}
	policy := s.policy
	if req.Policy != "" {
		p, err := model.ParsePolicy(req.Policy)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		policy = p
	}
	if req.DeadlineMS < 0 {
		return nil, "", fmt.Errorf("%w: negative deadline_ms", ErrInvalidRequest)
	}
	deadline := time.Duration(req.DeadlineMS) * time.Millisecond

	tasks := make([]model.Task, 0, len(req.Queries))
	for i, q := range req.Queries {
		t, err := s.queryTask(i, q, deadline)
		if err != nil {
			return nil, "", err
		}
		tasks = append(tasks, t)
	}
	return tasks, policy, nil
}

// queryTask maps one query to a task. Lookups are io-bound; path search
// and ranking walk the graph in memory and go to the cpu pool. Every body
// holds a store lease for its whole run, so a draining resource waits for
// in-flight queries.
func (s *RetrievalService) queryTask(idx int, q model.RetrievalQuery, deadline time.Duration) (model.Task, error) {
	reg := s.Resource.Registry()
	switch q.Kind {
	case model.QueryNode:
		if q.NodeID == "" {
			return model.Task{}, fmt.Errorf("%w: query %d: node needs node_id", ErrInvalidRequest, idx)
		}
		id := q.NodeID
		return model.Task{
			Name:     fmt.Sprintf("node[%s]", id),
			Kind:     model.TaskKindIO,
			Deadline: deadline,
			Func: func(ctx context.Context) (interface{}, error) {
				var out NodeResult
				err := reg.WithLease(ctx, func(g graph.Querier) error {
					n, err := g.Node(ctx, id)
					if err != nil {
						return err
					}
					adj, err := g.Adjacency(ctx, id)
					if err != nil {
						return err
					}
					out = NodeResult{Node: n, OutDegree: len(adj)}
					return nil
				})
				if err != nil {
					return nil, err
				}
				return out, nil
			},
		}, nil

	case model.QueryNeighbors:
		if q.NodeID == "" {
			return model.Task{}, fmt.Errorf("%w: query %d: neighbors needs node_id", ErrInvalidRequest, idx)
		}
		id := q.NodeID
		return model.Task{
			Name:     fmt.Sprintf("neighbors[%s]", id),
			Kind:     model.TaskKindIO,
			Deadline: deadline,
			Func: func(ctx context.Context) (interface{}, error) {
				var out []string
				err := reg.WithLease(ctx, func(g graph.Querier) error {
					adj, err := g.Adjacency(ctx, id)
					if err != nil {
						return err
					}
					out = adj
					return nil
				})
				if err != nil {
					return nil, err
				}
				return out, nil
			},
		}, nil

	case model.QueryPath:
		if q.From == "" || q.To == "" {
			return model.Task{}, fmt.Errorf("%w: query %d: path needs from and to", ErrInvalidRequest, idx)
		}
		from, to := q.From, q.To
		maxDepth := q.MaxDepth
		if maxDepth <= 0 {
			maxDepth = 16
		}
		return model.Task{
			Name:     fmt.Sprintf("path[%s->%s]", from, to),
			Kind:     model.TaskKindCPU,
			Deadline: deadline,
			Func: func(ctx context.Context) (interface{}, error) {
				var out PathResult
				err := reg.WithLease(ctx, func(g graph.Querier) error {
					path, err := graph.ShortestPath(ctx, g, from, to, maxDepth)
					if errors.Is(err, graph.ErrNoPath) {
						out = PathResult{Found: false}
						return nil
					}
					if err != nil {
						return err
					}
					out = PathResult{Found: true, Path: path}
					return nil
				})
				if err != nil {
					return nil, err
				}
				return out, nil
			},
		}, nil

	case model.QueryRank:
		if len(q.Seeds) == 0 {
			return model.Task{}, fmt.Errorf("%w: query %d: rank needs seeds", ErrInvalidRequest, idx)
		}
		seeds := q.Seeds
		limit := q.Limit
		if limit <= 0 {
			limit = 10
		}
		return model.Task{
			Name:     fmt.Sprintf("rank[%d seeds]", len(seeds)),
			Kind:     model.TaskKindCPU,
			Deadline: deadline,
			Func: func(ctx context.Context) (interface{}, error) {
				var out []graph.RankEntry
				err := reg.WithLease(ctx, func(g graph.Querier) error {
					entries, err := graph.DegreeRank(ctx, g, seeds, limit)
					if err != nil {
						return err
					}
					out = entries
					return nil
				})
				if err != nil {
					return nil, err
				}
				return out, nil
			},
		}, nil

	default:
		return model.Task{}, fmt.Errorf("%w: query %d: unknown kind %q", ErrInvalidRequest, idx, q.Kind)
	}
}
