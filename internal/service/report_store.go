package service

import (
	"context"
	"sync"

	"github.com/grand-thief-cash/yggdrasil/infra/core"
	"github.com/grand-thief-cash/yggdrasil/internal/consts"
	"github.com/grand-thief-cash/yggdrasil/internal/model"
)

// ReportStore keeps the most recent retrieval reports in memory. Oldest
// entries fall off once capacity is reached, running or not; a report
// evicted mid-flight simply becomes unknown to Get.
type ReportStore struct {
	*core.BaseComponent
	mu   sync.RWMutex
	cap  int
	ids  []string // insertion order, oldest first
	byID map[string]*model.RetrievalReport
}

func NewReportStore(capacity int) *ReportStore {
	if capacity <= 0 {
		capacity = 128
	}
	return &ReportStore{
		BaseComponent: core.NewBaseComponent(consts.COMP_SVC_REPORT_STORE),
		cap:           capacity,
		byID:          make(map[string]*model.RetrievalReport),
	}
}

func (rs *ReportStore) Start(ctx context.Context) error { return rs.BaseComponent.Start(ctx) }
func (rs *ReportStore) Stop(ctx context.Context) error  { return rs.BaseComponent.Stop(ctx) }

func (rs *ReportStore) Put(rep *model.RetrievalReport) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if _, exists := rs.byID[rep.ID]; exists {
		rs.byID[rep.ID] = rep
		return
	}
	rs.ids = append(rs.ids, rep.ID)
	rs.byID[rep.ID] = rep
	for len(rs.ids) > rs.cap {
		delete(rs.byID, rs.ids[0])
		rs.ids = rs.ids[1:]
	}
}

// Update mutates a stored report under the lock. Returns false when the
// id has been evicted or never existed.
func (rs *ReportStore) Update(id string, fn func(*model.RetrievalReport)) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rep, ok := rs.byID[id]
	if !ok {
		return false
	}
	fn(rep)
	return true
}

// Get copies the report out. The embedded group report pointer is shared
// but immutable once set.
func (rs *ReportStore) Get(id string) (model.RetrievalReport, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	rep, ok := rs.byID[id]
	if !ok {
		return model.RetrievalReport{}, false
	}
	return *rep, true
}

// List returns up to limit reports, newest first. limit <= 0 returns all.
func (rs *ReportStore) List(limit int) []model.RetrievalReport {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	n := len(rs.ids)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.RetrievalReport, 0, n)
	for i := len(rs.ids) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *rs.byID[rs.ids[i]])
	}
	return out
}

func (rs *ReportStore) Len() int {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	return len(rs.ids)
}
