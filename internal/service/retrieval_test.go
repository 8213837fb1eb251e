package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/grand-thief-cash/yggdrasil/internal/config"
	"github.com/grand-thief-cash/yggdrasil/internal/graph"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
	"github.com/grand-thief-cash/yggdrasil/internal/orchestrator"
	"github.com/grand-thief-cash/yggdrasil/internal/resource"
)

// slowStore delays adjacency reads so tests can observe running retrievals
type slowStore struct {
	*graph.MemoryStore
	delay time.Duration
}

func (s *slowStore) Adjacency(ctx context.Context, id string) ([]string, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return s.MemoryStore.Adjacency(ctx, id)
}

func seedMemory(t *testing.T) *graph.MemoryStore {
	s := graph.NewMemoryStore()
	nodes := []graph.Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if err := s.UpsertNodes(context.Background(), nodes); err != nil {
		t.Fatalf("seed nodes failed: %v", err)
	}
	edges := []graph.Edge{{From: "a", To: "b"}, {From: "a", To: "c"}, {From: "b", To: "c"}}
	if err := s.UpsertEdges(context.Background(), edges); err != nil {
		t.Fatalf("seed edges failed: %v", err)
	}
	return s
}

func newTestService(t *testing.T, store graph.Store) (*RetrievalService, *orchestrator.Orchestrator) {
	reg := resource.NewRegistry(func(ctx context.Context) (graph.Store, error) { return store, nil })
	orch := orchestrator.New(orchestrator.Config{MaxWorkerPoolSize: 2, MaxPendingTasks: 32, DefaultDeadline: 5 * time.Second})
	if err := orch.Start(context.Background()); err != nil {
		t.Fatalf("orchestrator start failed: %v", err)
	}

	svc := NewRetrievalService(&config.RetrievalConfig{
		DefaultPolicy:        "collect_all",
		MaxQueriesPerRequest: 8,
		ReportHistory:        16,
	})
	svc.Resource = resource.NewComponent(reg, time.Second, false)
	svc.Orchestrator = orch
	svc.Reports = NewReportStore(16)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("service start failed: %v", err)
	}
	return svc, orch
}

func waitFinished(t *testing.T, svc *RetrievalService, id string) model.RetrievalReport {
	deadline := time.Now().Add(3 * time.Second)
	for {
		rep, ok := svc.Get(id)
		if ok && rep.Status != model.RetrievalRunning {
			return rep
		}
		if time.Now().After(deadline) {
			t.Fatalf("report %s never finished", id)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSubmitSyncAllQueryKinds(t *testing.T) {
	svc, orch := newTestService(t, seedMemory(t))
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	req := model.RetrievalRequest{
		Queries: []model.RetrievalQuery{
			{Kind: model.QueryNode, NodeID: "a"},
			{Kind: model.QueryNeighbors, NodeID: "a"},
			{Kind: model.QueryPath, From: "a", To: "c"},
			{Kind: model.QueryRank, Seeds: []string{"a"}, Limit: 2},
		},
	}
	rep, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if rep.Status != model.RetrievalCompleted {
		t.Fatalf("expected completed, got %s", rep.Status)
	}
	if rep.Queries != 4 || rep.Group == nil || len(rep.Group.Results) != 4 {
		t.Fatalf("report incomplete: %+v", rep)
	}
	if rep.CompletedAt == nil {
		t.Fatalf("completed report missing completion time")
	}

	nr, ok := rep.Group.Results[0].Value.(NodeResult)
	if !ok || nr.Node == nil || nr.Node.ID != "a" || nr.OutDegree != 2 {
		t.Fatalf("wrong node result: %+v", rep.Group.Results[0].Value)
	}
	nb, ok := rep.Group.Results[1].Value.([]string)
	if !ok || len(nb) != 2 || nb[0] != "b" || nb[1] != "c" {
		t.Fatalf("wrong neighbors result: %+v", rep.Group.Results[1].Value)
	}
	pr, ok := rep.Group.Results[2].Value.(PathResult)
	if !ok || !pr.Found || len(pr.Path) == 0 || pr.Path[0] != "a" || pr.Path[len(pr.Path)-1] != "c" {
		t.Fatalf("wrong path result: %+v", rep.Group.Results[2].Value)
	}
	rk, ok := rep.Group.Results[3].Value.([]graph.RankEntry)
	if !ok || len(rk) != 2 || rk[0].ID != "a" {
		t.Fatalf("wrong rank result: %+v", rep.Group.Results[3].Value)
	}

	// the stored copy matches what the caller got
	stored, ok := svc.Get(rep.ID)
	if !ok || stored.Status != model.RetrievalCompleted {
		t.Fatalf("stored report mismatch: %v %+v", ok, stored)
	}
}

func TestSubmitMissingPathIsStillCompleted(t *testing.T) {
	svc, orch := newTestService(t, seedMemory(t))
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	// edges are directed, there is no route c -> a; under fail_fast this
	// must stay a result, not a failure
	req := model.RetrievalRequest{
		Policy: "fail_fast",
		Queries: []model.RetrievalQuery{
			{Kind: model.QueryPath, From: "c", To: "a"},
			{Kind: model.QueryNeighbors, NodeID: "b"},
		},
	}
	rep, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if rep.Status != model.RetrievalCompleted {
		t.Fatalf("expected completed, got %s", rep.Status)
	}
	pr, ok := rep.Group.Results[0].Value.(PathResult)
	if !ok || pr.Found {
		t.Fatalf("expected not-found path result: %+v", rep.Group.Results[0].Value)
	}
	if rep.Group.Results[1].State != model.TaskStateCompleted {
		t.Fatalf("sibling was disturbed: %s", rep.Group.Results[1].State)
	}
}

func TestSubmitFailFastSurfacesFailure(t *testing.T) {
	svc, orch := newTestService(t, seedMemory(t))
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	req := model.RetrievalRequest{
		Policy: "fail_fast",
		Queries: []model.RetrievalQuery{
			{Kind: model.QueryNode, NodeID: "does-not-exist"},
		},
	}
	rep, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if rep.Status != model.RetrievalFailed {
		t.Fatalf("expected failed, got %s", rep.Status)
	}
	if rep.Group == nil || rep.Group.Err == nil {
		t.Fatalf("group error missing from failed report")
	}
	if rep.Group.StateCounts[model.TaskStateFailed] != 1 {
		t.Fatalf("wrong state counts: %+v", rep.Group.StateCounts)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc, orch := newTestService(t, seedMemory(t))
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	cases := []model.RetrievalRequest{
		{}, // no queries
		{Queries: make([]model.RetrievalQuery, 9)},                                                // over the limit
		{Queries: []model.RetrievalQuery{{Kind: model.QueryNode, NodeID: "a"}}, Policy: "maybe"},  // bad policy
		{Queries: []model.RetrievalQuery{{Kind: model.QueryNode, NodeID: "a"}}, DeadlineMS: -5},   // negative deadline
		{Queries: []model.RetrievalQuery{{Kind: model.QueryNode}}},                                // node without id
		{Queries: []model.RetrievalQuery{{Kind: model.QueryNeighbors}}},                           // neighbors without id
		{Queries: []model.RetrievalQuery{{Kind: model.QueryPath, From: "a"}}},                     // path without to
		{Queries: []model.RetrievalQuery{{Kind: model.QueryRank}}},                                // rank without seeds
		{Queries: []model.RetrievalQuery{{Kind: model.QueryKind("teleport"), NodeID: "a"}}},       // unknown kind
	}
	for i, req := range cases {
		if _, err := svc.Submit(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestSubmitAsync(t *testing.T) {
	mem := seedMemory(t)
	svc, orch := newTestService(t, &slowStore{MemoryStore: mem, delay: 100 * time.Millisecond})
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	req := model.RetrievalRequest{
		Async:   true,
		Queries: []model.RetrievalQuery{{Kind: model.QueryNeighbors, NodeID: "a"}},
	}
	rep, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if rep.Status != model.RetrievalRunning {
		t.Fatalf("async submit should return a running report, got %s", rep.Status)
	}
	if rep.Group != nil {
		t.Fatalf("running report should carry no group yet")
	}

	final := waitFinished(t, svc, rep.ID)
	if final.Status != model.RetrievalCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.Group == nil || len(final.Group.Results) != 1 {
		t.Fatalf("final report incomplete: %+v", final)
	}
}

func TestCancelRetrieval(t *testing.T) {
	mem := seedMemory(t)
	svc, orch := newTestService(t, &slowStore{MemoryStore: mem, delay: 2 * time.Second})
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Cancel("unknown"); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}

	req := model.RetrievalRequest{
		Async:   true,
		Queries: []model.RetrievalQuery{{Kind: model.QueryNeighbors, NodeID: "a"}},
	}
	rep, err := svc.Submit(context.Background(), req)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := svc.Cancel(rep.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	final := waitFinished(t, svc, rep.ID)
	if final.Status != model.RetrievalCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}
	if err := svc.Cancel(rep.ID); !errors.Is(err, ErrReportFinished) {
		t.Fatalf("expected ErrReportFinished, got %v", err)
	}
}

func TestSubmitSyncCallerGivesUp(t *testing.T) {
	mem := seedMemory(t)
	svc, orch := newTestService(t, &slowStore{MemoryStore: mem, delay: 400 * time.Millisecond})
	defer orch.Stop(context.Background())
	defer svc.Stop(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := model.RetrievalRequest{
		Queries: []model.RetrievalQuery{{Kind: model.QueryNeighbors, NodeID: "a"}},
	}
	if _, err := svc.Submit(ctx, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline, got %v", err)
	}

	// the group keeps running and lands in the store anyway
	reports := svc.List(1)
	if len(reports) != 1 {
		t.Fatalf("expected the abandoned report in the store, got %d", len(reports))
	}
	final := waitFinished(t, svc, reports[0].ID)
	if final.Status != model.RetrievalCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
}
