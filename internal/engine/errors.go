// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package engine

import (
	"errors"
	"fmt"

	"github.com/pdiddy/cad-engine/internal/script"
)

// ErrEmptyResponse reports that the generative service streamed no answer
// text. Nothing can be folded into a follow-up instruction, so the call
// fails without consuming the attempt budget. Per prd001-generation R5.1.
var ErrEmptyResponse = errors.New("generative service returned no answer text")

// ErrMissingArtifact reports that the script exited zero but produced no
// output artifact. Recoverable: the next instruction reminds the model to
// call the export function. Per prd001-generation R5.3.
var ErrMissingArtifact = errors.New("script exited zero but produced no output artifact")

// ExecError reports a non-zero script exit. Recoverable: the captured
// stderr is folded into the next instruction as corrective feedback.
// Per prd001-generation R5.2.
type ExecError struct {
	ExitCode int
	Stderr   string
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("script exited %d: %s", e.ExitCode, firstLine(e.Stderr))
}

// ExhaustedError reports that the attempt budget was consumed with no
// success. LastErr is the failure of the final attempt.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all %d attempts failed: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }

// retryable is the single classification point for the retry policy.
// Execution failures and missing artifacts carry feedback the model can act
// on; an empty response or an unextractable response would just replay the
// identical instruction, so those fail the call outright.
// Per prd001-generation R5.4 (explicit per-error retry policy).
func retryable(err error) bool {
	var execErr *ExecError
	switch {
	case errors.As(err, &execErr):
		return true
	case errors.Is(err, ErrMissingArtifact):
		return true
	case errors.Is(err, ErrEmptyResponse), errors.Is(err, script.ErrNoCode):
		return false
	default:
		return false
	}
}

func firstLine(s string) string {
	for i, c := range s {
		if c == '\n' {
			return s[:i]
		}
	}
	return s
}
