package model

import "time"

type QueryKind string

const (
	QueryNode      QueryKind = "node"
	QueryNeighbors QueryKind = "neighbors"
	QueryPath      QueryKind = "path"
	QueryRank      QueryKind = "rank"
)

// RetrievalQuery is one unit of work inside a retrieval request. Which
// fields matter depends on Kind: node and neighbors read NodeID, path
// reads From/To/MaxDepth, rank reads Seeds/Limit.
type RetrievalQuery struct {
	Kind     QueryKind `json:"kind"`
	NodeID   string    `json:"node_id,omitempty"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Seeds    []string  `json:"seeds,omitempty"`
	MaxDepth int       `json:"max_depth,omitempty"`
	Limit    int       `json:"limit,omitempty"`
}

type RetrievalRequest struct {
	Queries    []RetrievalQuery `json:"queries"`
	Policy     string           `json:"policy,omitempty"`
	DeadlineMS int64            `json:"deadline_ms,omitempty"`
	Async      bool             `json:"async,omitempty"`
}

type RetrievalStatus string

const (
	RetrievalRunning   RetrievalStatus = "running"
	RetrievalCompleted RetrievalStatus = "completed"
	RetrievalFailed    RetrievalStatus = "failed"
	RetrievalCancelled RetrievalStatus = "cancelled"
)

// RetrievalReport tracks one retrieval request end to end. The ID doubles
// as the orchestrator group id. Group stays nil while the request runs.
type RetrievalReport struct {
	ID          string          `json:"id"`
	Status      RetrievalStatus `json:"status"`
	Policy      GroupPolicy     `json:"policy"`
	Queries     int             `json:"queries"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Group       *GroupReport    `json:"group,omitempty"`
}
