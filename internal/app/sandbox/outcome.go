// Package sandbox implements the SandboxBackend contract from spec §4.7: a
// goja-based script execution environment presenting the settings/llm/
// set_result shim described in spec §4.8, with cooperative suspension across
// llm.complete calls.
package sandbox

// OutcomeKind is the closed sum of terminal and non-terminal run/resume
// results.
type OutcomeKind int

const (
	Completed OutcomeKind = iota
	Failed
	TimedOut
	Suspended
)

// Outcome is the result of a run or resume call. Exactly the fields implied
// by Kind are meaningful; the zero value of the rest is ignored.
type Outcome struct {
	Kind OutcomeKind

	// Completed
	Result any

	// Failed
	Err error

	// Completed, Failed, TimedOut
	Stdout string
	Stderr string

	// Suspended
	Prompt       string
	Model        string
	ResumeHandle string
}
