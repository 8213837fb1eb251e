package model

import "time"

// ResultEnvelope is the immutable record of one task's outcome. Err stays
// out of the JSON form; Error carries its text for transport.
type ResultEnvelope struct {
	TaskID      string        `json:"task_id"`
	Name        string        `json:"name,omitempty"`
	Kind        TaskKind      `json:"kind"`
	State       TaskState     `json:"state"`
	Value       interface{}   `json:"value,omitempty"`
	Err         error         `json:"-"`
	Error       string        `json:"error,omitempty"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
}
