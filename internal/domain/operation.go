package domain

import "time"

type OperationKind string

const (
	OperationNone        OperationKind = "none"
	OperationReconciling OperationKind = "reconciling"
	OperationSweeping    OperationKind = "sweeping"
)

// OperationStatus is an immutable snapshot of one background operation.
// Holders replace it wholesale; it is never mutated after publication.
type OperationStatus struct {
	Kind       OperationKind `json:"kind"`
	Running    bool          `json:"running"`
	Processed  int           `json:"processed"`
	Total      int           `json:"total"`
	Current    string        `json:"current,omitempty"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// WithProgress returns a copy with updated counters.
func (s OperationStatus) WithProgress(processed, total int, current string) *OperationStatus {
	s.Processed = processed
	s.Total = total
	s.Current = current
	return &s
}

// Finished returns a copy marked as no longer running.
func (s OperationStatus) Finished(at time.Time, err error) *OperationStatus {
	s.Running = false
	s.Current = ""
	s.FinishedAt = &at
	if err != nil {
		s.Error = err.Error()
	}
	return &s
}

// OperationOutcome is the terminal result of one unit of work.
type OperationOutcome struct {
	Kind       OperationKind `json:"kind"`
	Unit       string        `json:"unit"`
	Result     string        `json:"result"`
	Processed  int           `json:"processed"`
	Missing    int           `json:"missing"`
	Resolved   int           `json:"resolved"`
	Error      string        `json:"error,omitempty"`
	FinishedAt time.Time     `json:"finished_at"`
}

const (
	OutcomeOK        = "ok"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

// StatusFeed is what the dashboard polls.
type StatusFeed struct {
	Kind      OperationKind      `json:"kind"`
	Reconcile OperationStatus    `json:"reconcile"`
	Sweep     OperationStatus    `json:"sweep"`
	Recent    []OperationOutcome `json:"recent"`
}
