package domain

import "time"

// Status is the closed sum of execution states (spec §4.6). Terminal
// values (Completed, Error, Timeout) never transition further.
type Status string

const (
	StatusPending     Status = "pending"
	StatusRunning     Status = "running"
	StatusAwaitingLLM Status = "awaiting_llm"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusTimeout     Status = "timeout"
)

// IsTerminal reports whether s is one of the execution's final states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusTimeout:
		return true
	default:
		return false
	}
}

// LLMRequest is the pending llm.complete() call surfaced while an
// execution is awaiting_llm.
type LLMRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model"`
}

// Execution is the persistent/in-memory record for one /execute call
// across its lifetime (spec §3).
type Execution struct {
	ID               string
	ProfileID        string
	Script           string
	Status           Status
	Result           any
	Stdout           string
	Stderr           string
	ErrorMessage     string
	PendingLLM       *LLMRequest
	ExecutionTimeMS  *int64
	CreatedAt        time.Time
	CompletedAt      *time.Time
}

// ExecutionResult is the public projection of an Execution (spec §6).
type ExecutionResult struct {
	ExecutionID     string      `json:"execution_id"`
	Status          Status      `json:"status"`
	Result          any         `json:"result,omitempty"`
	Stdout          string      `json:"stdout"`
	Stderr          string      `json:"stderr"`
	Error           string      `json:"error,omitempty"`
	LLMRequest      *LLMRequest `json:"llm_request,omitempty"`
	ExecutionTimeMS *int64      `json:"execution_time_ms,omitempty"`
}

// ToResult projects an Execution to its public response shape.
func (e *Execution) ToResult() ExecutionResult {
	return ExecutionResult{
		ExecutionID:     e.ID,
		Status:          e.Status,
		Result:          e.Result,
		Stdout:          e.Stdout,
		Stderr:          e.Stderr,
		Error:           e.ErrorMessage,
		LLMRequest:      e.PendingLLM,
		ExecutionTimeMS: e.ExecutionTimeMS,
	}
}

// Clone returns a deep-enough copy for safe hand-off to callers outside
// the dispatcher's write path (spec §4.6 poll() "returns a deep copy").
func (e *Execution) Clone() *Execution {
	clone := *e
	if e.PendingLLM != nil {
		llm := *e.PendingLLM
		clone.PendingLLM = &llm
	}
	if e.ExecutionTimeMS != nil {
		v := *e.ExecutionTimeMS
		clone.ExecutionTimeMS = &v
	}
	if e.CompletedAt != nil {
		v := *e.CompletedAt
		clone.CompletedAt = &v
	}
	return &clone
}
