package model

import (
	"fmt"
	"time"
)

type GroupPolicy string

const (
	PolicyCollectAll GroupPolicy = "collect_all"
	PolicyFailFast   GroupPolicy = "fail_fast"
)

func (p GroupPolicy) Valid() bool { return p == PolicyCollectAll || p == PolicyFailFast }

func ParsePolicy(s string) (GroupPolicy, error) {
	p := GroupPolicy(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown group policy %q", s)
	}
	return p, nil
}

// GroupReport collects the outcomes of one task group. Results are in
// submission order regardless of completion order. Err is non-nil only
// under fail-fast with at least one failed member.
type GroupReport struct {
	GroupID     string            `json:"group_id"`
	Policy      GroupPolicy       `json:"policy"`
	Results     []ResultEnvelope  `json:"results"`
	StateCounts map[TaskState]int `json:"state_counts"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Elapsed     time.Duration     `json:"elapsed_ns"`
	Err         error             `json:"-"`
	Error       string            `json:"error,omitempty"`
}
