// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine implements the generation orchestrator: it asks the
// generative service for a CAD script, executes it in an isolated
// interpreter, and feeds execution errors back into follow-up instructions
// until an artifact is produced or the attempt budget runs out.
// Implements: prd001-generation (R1-R6); docs/ARCHITECTURE § Orchestrator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/gemini"
	"github.com/pdiddy/cad-engine/internal/runner"
	"github.com/pdiddy/cad-engine/internal/script"
	"github.com/pdiddy/cad-engine/internal/session"
	"github.com/pdiddy/cad-engine/pkg/types"
)

const (
	defaultMaxAttempts = 3
	defaultTemperature = 1.0

	opGenerate = "generate"
	opIterate  = "iterate"
)

// ThoughtFunc receives incremental reasoning text during streaming. It is
// invoked zero or more times per attempt; implementations must not block.
type ThoughtFunc func(text string)

// TextStreamer abstracts the generative service so tests can supply a mock.
// Per Strategy pattern (prd001-generation R2.1).
type TextStreamer interface {
	StreamGenerate(ctx context.Context, req gemini.Request) (<-chan gemini.Chunk, error)
}

// Recorder persists attempt history and session status. *session.Store
// satisfies it; engine tests supply an in-memory fake.
type Recorder interface {
	RecordAttempt(ctx context.Context, att types.Attempt) error
	SetStatus(ctx context.Context, id string, status types.SessionStatus) error
}

// Engine is the generation orchestrator. One call runs one bounded retry
// loop; attempts are strictly sequential because each follow-up instruction
// depends on the previous attempt's stderr.
type Engine struct {
	ai       TextStreamer
	runtime  runner.Interpreter
	recorder Recorder
	cfg      types.GenerationConfig
	execTO   time.Duration
	logger   *zap.Logger
}

// New builds an Engine. Zero config fields fall back to defaults
// (3 attempts, temperature 1.0, unbounded external calls).
func New(ai TextStreamer, rt runner.Interpreter, rec Recorder, cfg types.GenerationConfig, runtimeCfg types.RuntimeConfig, logger *zap.Logger) *Engine {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = defaultTemperature
	}
	return &Engine{
		ai:       ai,
		runtime:  rt,
		recorder: rec,
		cfg:      cfg,
		execTO:   runtimeCfg.ExecTimeout,
		logger:   logger,
	}
}

// Generate produces a mesh for a fresh natural-language request. The
// request is forwarded unchanged; empty or garbage strings are the model's
// problem. Per prd001-generation R1.1.
func (e *Engine) Generate(ctx context.Context, sess *types.Session, request string, onThought ThoughtFunc) (*types.Mesh, error) {
	prompt, err := initialPrompt(request)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	return e.run(ctx, sess, opGenerate, request, prompt, onThought)
}

// Iterate produces a mesh by rewriting the session's persisted script to
// satisfy a change request. With no persisted script it degenerates to
// Generate (cold-start fallback). Per prd001-generation R6.1-R6.3.
func (e *Engine) Iterate(ctx context.Context, sess *types.Session, request string, onThought ThoughtFunc) (*types.Mesh, error) {
	prior, err := script.Load(session.ScriptPath(sess))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			e.logger.Info("no prior script, falling back to fresh generation",
				zap.String("session", sess.ID))
			return e.Generate(ctx, sess, request, onThought)
		}
		return nil, err
	}

	prompt, err := iteratePrompt(prior, request)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}
	return e.run(ctx, sess, opIterate, request, prompt, onThought)
}

// run executes the bounded attempt loop shared by Generate and Iterate.
func (e *Engine) run(ctx context.Context, sess *types.Session, op, request, prompt string, onThought ThoughtFunc) (*types.Mesh, error) {
	scriptPath := session.ScriptPath(sess)
	artifactPath := session.ArtifactPath(sess)

	var lastErr error
	for seq := 1; seq <= e.cfg.MaxAttempts; seq++ {
		e.logger.Info("attempt started",
			zap.String("session", sess.ID),
			zap.String("op", op),
			zap.Int("attempt", seq),
			zap.Int("budget", e.cfg.MaxAttempts))

		mesh, attemptErr := e.attempt(ctx, sess, op, seq, prompt, scriptPath, artifactPath, onThought)
		if attemptErr == nil {
			e.setStatus(ctx, sess, types.SessionSucceeded)
			return mesh, nil
		}

		if !retryable(attemptErr) {
			e.logger.Error("attempt failed fatally",
				zap.String("session", sess.ID),
				zap.Int("attempt", seq),
				zap.Error(attemptErr))
			e.setStatus(ctx, sess, types.SessionFailed)
			return nil, attemptErr
		}

		lastErr = attemptErr
		next, err := e.followupPrompt(lastErr, request)
		if err != nil {
			e.setStatus(ctx, sess, types.SessionFailed)
			return nil, err
		}
		prompt = next
	}

	e.logger.Warn("attempt budget exhausted",
		zap.String("session", sess.ID),
		zap.Int("attempts", e.cfg.MaxAttempts),
		zap.Error(lastErr))
	e.setStatus(ctx, sess, types.SessionFailed)
	return nil, &ExhaustedError{Attempts: e.cfg.MaxAttempts, LastErr: lastErr}
}

// attempt runs one iteration of the loop: stream, extract, persist, execute,
// collect. It records the attempt outcome in the session history.
func (e *Engine) attempt(ctx context.Context, sess *types.Session, op string, seq int, prompt, scriptPath, artifactPath string, onThought ThoughtFunc) (*types.Mesh, error) {
	// Remove the stale artifact so a zero-exit run that writes nothing
	// cannot hand back last attempt's mesh.
	if err := os.Remove(artifactPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale artifact: %w", err)
	}

	raw, err := e.complete(ctx, prompt, onThought)
	if err != nil {
		e.record(ctx, sess, op, seq, types.AttemptInternalError, 0, err.Error())
		return nil, err
	}
	if strings.TrimSpace(raw) == "" {
		e.record(ctx, sess, op, seq, types.AttemptEmptyResponse, 0, "")
		return nil, ErrEmptyResponse
	}

	code, err := script.Extract(raw)
	if err != nil {
		e.record(ctx, sess, op, seq, types.AttemptNoScript, 0, "")
		return nil, err
	}

	if err := script.Save(scriptPath, code); err != nil {
		e.record(ctx, sess, op, seq, types.AttemptInternalError, 0, err.Error())
		return nil, err
	}

	execCtx := ctx
	if e.execTO > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, e.execTO)
		defer cancel()
	}

	res, err := e.runtime.Run(execCtx, scriptPath, sess.ScratchDir)
	if err != nil {
		e.record(ctx, sess, op, seq, types.AttemptInternalError, 0, err.Error())
		return nil, err
	}

	if res.ExitCode != 0 {
		e.logger.Warn("script execution failed",
			zap.String("session", sess.ID),
			zap.Int("attempt", seq),
			zap.Int("exit_code", res.ExitCode),
			zap.String("stderr", res.Stderr))
		e.record(ctx, sess, op, seq, types.AttemptExecFailed, res.ExitCode, res.Stderr)
		return nil, &ExecError{ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		if os.IsNotExist(err) {
			e.record(ctx, sess, op, seq, types.AttemptMissingArtifact, 0, "")
			return nil, ErrMissingArtifact
		}
		e.record(ctx, sess, op, seq, types.AttemptInternalError, 0, err.Error())
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	e.record(ctx, sess, op, seq, types.AttemptSucceeded, 0, "")
	e.logger.Info("artifact produced",
		zap.String("session", sess.ID),
		zap.Int("attempt", seq),
		zap.Int("bytes", len(data)))
	return types.NewMesh(types.FormatSTL, data), nil
}

// complete streams one generative call to completion, forwarding thought
// chunks to the observer and accumulating answer chunks.
func (e *Engine) complete(ctx context.Context, prompt string, onThought ThoughtFunc) (string, error) {
	if e.cfg.StreamTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.StreamTimeout)
		defer cancel()
	}

	ch, err := e.ai.StreamGenerate(ctx, gemini.Request{
		System:          systemInstruction,
		Prompt:          prompt,
		Temperature:     e.cfg.Temperature,
		IncludeThoughts: true,
	})
	if err != nil {
		return "", err
	}

	var answer strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		if chunk.Thought {
			if onThought != nil {
				onThought(chunk.Text)
			}
			continue
		}
		answer.WriteString(chunk.Text)
	}
	return answer.String(), nil
}

// followupPrompt maps a retryable attempt error to the next instruction.
func (e *Engine) followupPrompt(attemptErr error, request string) (string, error) {
	var execErr *ExecError
	switch {
	case errors.As(attemptErr, &execErr):
		return execFailurePrompt(execErr.Stderr, request)
	case errors.Is(attemptErr, ErrMissingArtifact):
		return missingArtifactPrompt, nil
	default:
		return "", fmt.Errorf("no follow-up instruction for %w", attemptErr)
	}
}

// record persists one attempt outcome; bookkeeping failures are logged, not
// propagated, so they cannot abort an otherwise healthy generation.
func (e *Engine) record(ctx context.Context, sess *types.Session, op string, seq int, status types.AttemptStatus, exitCode int, stderr string) {
	err := e.recorder.RecordAttempt(ctx, types.Attempt{
		SessionID: sess.ID,
		Seq:       seq,
		Op:        op,
		Status:    status,
		ExitCode:  exitCode,
		Stderr:    stderr,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		e.logger.Error("recording attempt", zap.String("session", sess.ID), zap.Error(err))
	}
}

func (e *Engine) setStatus(ctx context.Context, sess *types.Session, status types.SessionStatus) {
	sess.Status = status
	if err := e.recorder.SetStatus(ctx, sess.ID, status); err != nil {
		e.logger.Error("updating session status", zap.String("session", sess.ID), zap.Error(err))
	}
}
