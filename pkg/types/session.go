// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SessionStatus tracks where a session's most recent call ended.
// Per prd004-sessions R2.1.
type SessionStatus string

const (
	SessionNew       SessionStatus = "new"
	SessionSucceeded SessionStatus = "succeeded"
	SessionFailed    SessionStatus = "failed"
)

// Session owns the on-disk state for one generation chain: a private
// scratch directory holding the persisted script and the output artifact.
// Each iterate call overwrites both, forming a continuation chain.
// Per prd004-sessions R1.1-R1.4.
type Session struct {
	ID         string        `json:"id" yaml:"id"`
	ScratchDir string        `json:"scratch_dir" yaml:"scratch_dir"`
	Request    string        `json:"request" yaml:"request"`
	Status     SessionStatus `json:"status" yaml:"status"`
	CreatedAt  time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" yaml:"updated_at"`
}

// AttemptStatus classifies the outcome of one attempt inside the retry loop.
type AttemptStatus string

const (
	AttemptSucceeded       AttemptStatus = "succeeded"
	AttemptExecFailed      AttemptStatus = "exec_failed"
	AttemptMissingArtifact AttemptStatus = "missing_artifact"
	AttemptEmptyResponse   AttemptStatus = "empty_response"
	AttemptNoScript        AttemptStatus = "no_script"
	AttemptInternalError   AttemptStatus = "internal_error"
)

// Attempt records one iteration of the retry loop for audit and debugging.
// The original pipeline only printed this to stdout; persisting it lets
// operators reconstruct why a generation failed. Per prd004-sessions R3.1.
type Attempt struct {
	SessionID string        `json:"session_id" yaml:"session_id"`
	Seq       int           `json:"seq" yaml:"seq"`
	Op        string        `json:"op" yaml:"op"` // "generate" or "iterate"
	Status    AttemptStatus `json:"status" yaml:"status"`
	ExitCode  int           `json:"exit_code" yaml:"exit_code"`
	Stderr    string        `json:"stderr,omitempty" yaml:"stderr,omitempty"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
}
