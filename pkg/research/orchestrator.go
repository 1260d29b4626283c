package research

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const DefaultTimeout = 2 * time.Minute

// Orchestrator wraps a backend Researcher with a hard timeout and normalizes
// whatever comes back into a classified research error. The timeout must stay
// shorter than the hosting invocation's budget so the engine keeps headroom
// to persist a retry or failure state.
type Orchestrator struct {
	backend Researcher
	timeout time.Duration
	logger  *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given backend. A zero
// timeout falls back to DefaultTimeout.
func NewOrchestrator(backend Researcher, timeout time.Duration, logger *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Orchestrator{
		backend: backend,
		timeout: timeout,
		logger:  logger.With("module", "research_orchestrator"),
	}
}

// Research makes one bounded attempt against the backend.
func (o *Orchestrator) Research(ctx context.Context, req Request) (string, error) {
	if len(req.Topics) == 0 {
		return "", NewPermanentError(errors.New("request has no topics"))
	}

	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	started := time.Now()

	content, err := o.backend.Research(attemptCtx, req)

	elapsed := time.Since(started)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			o.logger.WarnContext(ctx, "Research attempt timed out", "timeout", o.timeout, "elapsed", elapsed)

			return "", NewTransientError(fmt.Errorf("research timed out after %s: %w", o.timeout, err))
		}

		o.logger.WarnContext(ctx, "Research attempt failed", "error", err, "elapsed", elapsed)

		var researchErr *Error
		if errors.As(err, &researchErr) {
			return "", err
		}

		return "", NewTransientError(err)
	}

	if content == "" {
		return "", NewTransientError(errors.New("backend returned empty content"))
	}

	o.logger.InfoContext(ctx, "Research attempt succeeded", "elapsed", elapsed, "content_length", len(content))

	return content, nil
}
