package flow

import (
	"encoding/json"
	"errors"
	"time"
)

// Status is the terminal state of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// StepStatus is the outcome of a single node run.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step records one node run in execution order.
type Step struct {
	StepNumber int        `json:"stepNumber"`
	NodeID     NodeID     `json:"nodeId"`
	NodeType   NodeType   `json:"nodeType"`
	Label      string     `json:"label,omitempty"`
	Status     StepStatus `json:"status"`
	Duration   int64      `json:"duration"` // milliseconds
	Output     any        `json:"output,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
	Error      string     `json:"error,omitempty"`
}

// ExecutionReport is the outcome of one run. It cannot be modified once
// built; every accessor returns a copy.
type ExecutionReport struct {
	executionID   string
	status        Status
	executedNodes []NodeID
	errors        []NodeError
	steps         []Step
	results       map[string]any
	startedAt     time.Time
	finishedAt    time.Time
}

type reportState struct {
	ExecutionID   string
	Status        Status
	ExecutedNodes []NodeID
	Errors        []NodeError
	Steps         []Step
	Results       map[string]any
	StartedAt     time.Time
	FinishedAt    time.Time
}

func newReport(s reportState) *ExecutionReport {
	r := &ExecutionReport{
		executionID:   s.ExecutionID,
		status:        s.Status,
		executedNodes: append([]NodeID{}, s.ExecutedNodes...),
		errors:        append([]NodeError{}, s.Errors...),
		steps:         cloneSteps(s.Steps),
		results:       cloneMap(s.Results),
		startedAt:     s.StartedAt,
		finishedAt:    s.FinishedAt,
	}
	return r
}

func (r *ExecutionReport) ExecutionID() string { return r.executionID }

func (r *ExecutionReport) Status() Status { return r.status }

// Success is true only when the run reached completion without recording an
// error.
func (r *ExecutionReport) Success() bool {
	return r.status == StatusCompleted && len(r.errors) == 0
}

// ExecutedNodes returns node ids in the order they ran.
func (r *ExecutionReport) ExecutedNodes() []NodeID {
	return append([]NodeID{}, r.executedNodes...)
}

func (r *ExecutionReport) Errors() []NodeError {
	return append([]NodeError{}, r.errors...)
}

// FirstError returns the first recorded error, if any.
func (r *ExecutionReport) FirstError() (NodeError, bool) {
	if len(r.errors) == 0 {
		return NodeError{}, false
	}
	return r.errors[0], true
}

func (r *ExecutionReport) Steps() []Step { return cloneSteps(r.steps) }

// Results returns node outputs keyed by node id.
func (r *ExecutionReport) Results() map[string]any { return cloneMap(r.results) }

func (r *ExecutionReport) StartedAt() time.Time  { return r.startedAt }
func (r *ExecutionReport) FinishedAt() time.Time { return r.finishedAt }

// Duration is the wall-clock time of the whole run.
func (r *ExecutionReport) Duration() time.Duration {
	return r.finishedAt.Sub(r.startedAt)
}

func (r *ExecutionReport) DurationMillis() int64 {
	return r.Duration().Milliseconds()
}

type reportJSON struct {
	ExecutionID   string         `json:"executionId"`
	Status        Status         `json:"status"`
	Success       bool           `json:"success"`
	ExecutedNodes []NodeID       `json:"executedNodes"`
	Duration      int64          `json:"duration"`
	Errors        []NodeError    `json:"errors"`
	Steps         []Step         `json:"steps"`
	Results       map[string]any `json:"results"`
	StartedAt     time.Time      `json:"startedAt"`
	FinishedAt    time.Time      `json:"finishedAt"`
}

func (r *ExecutionReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(reportJSON{
		ExecutionID:   r.executionID,
		Status:        r.status,
		Success:       r.Success(),
		ExecutedNodes: r.ExecutedNodes(),
		Duration:      r.DurationMillis(),
		Errors:        r.Errors(),
		Steps:         r.Steps(),
		Results:       r.Results(),
		StartedAt:     r.startedAt,
		FinishedAt:    r.finishedAt,
	})
}

// ErrReportImmutable is returned when JSON is decoded into a report that
// already holds a run.
var ErrReportImmutable = errors.New("execution report is immutable")

// UnmarshalJSON restores a report from its JSON form, e.g. from execution
// history, into a zero ExecutionReport. A missing finishedAt is derived from
// startedAt and duration.
func (r *ExecutionReport) UnmarshalJSON(data []byte) error {
	if !r.isZero() {
		return ErrReportImmutable
	}
	var in reportJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	finished := in.FinishedAt
	if finished.IsZero() && !in.StartedAt.IsZero() {
		finished = in.StartedAt.Add(time.Duration(in.Duration) * time.Millisecond)
	}
	*r = *newReport(reportState{
		ExecutionID:   in.ExecutionID,
		Status:        in.Status,
		ExecutedNodes: in.ExecutedNodes,
		Errors:        in.Errors,
		Steps:         in.Steps,
		Results:       in.Results,
		StartedAt:     in.StartedAt,
		FinishedAt:    finished,
	})
	return nil
}

func (r *ExecutionReport) isZero() bool {
	return r.executionID == "" && r.status == "" && r.startedAt.IsZero() &&
		len(r.steps) == 0 && len(r.executedNodes) == 0
}

func cloneSteps(steps []Step) []Step {
	out := make([]Step, len(steps))
	for i, s := range steps {
		s.Output = cloneValue(s.Output)
		out[i] = s
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string{}, val...)
	default:
		return v
	}
}
