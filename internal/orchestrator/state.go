package orchestrator

import "errors"

var (
	ErrMissingStartNode   = errors.New("orchestrator: graph has no start node")
	ErrMultipleStartNodes = errors.New("orchestrator: graph has more than one start node")
	ErrRunActive          = errors.New("orchestrator: a run is already active")
)

// RunState represents the lifecycle state of a simulation run.
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// Terminal returns true if the run has finished.
func (s RunState) Terminal() bool {
	return s == RunStateCompleted || s == RunStateFailed
}

// EntryStatus is the outcome of a single step.
type EntryStatus string

const (
	StatusSuccess EntryStatus = "success"
	StatusError   EntryStatus = "error"
)

// ErrorKind classifies a failed step.
type ErrorKind string

const (
	BranchResolutionError ErrorKind = "BranchResolutionError"
	StructuralError       ErrorKind = "StructuralError"
	StepLimitExceeded     ErrorKind = "StepLimitExceeded"
)
