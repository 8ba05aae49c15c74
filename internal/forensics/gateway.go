package forensics

import (
	"context"
	"log/slog"
	"time"

	"docanchor/internal/forensics/metrics"
	"docanchor/internal/platform/config"
	dErrors "docanchor/pkg/domain-errors"
)

// Gateway drives the forensics service with the submit retry policy and
// normalizes poll observations into completion events.
type Gateway struct {
	api     API
	cfg     config.Forensics
	logger  *slog.Logger
	metrics *metrics.Metrics

	// sleep is swapped in tests so retry suites never wait on real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGateway constructs a Gateway. metrics may be nil.
func NewGateway(api API, cfg config.Forensics, logger *slog.Logger, m *metrics.Metrics) (*Gateway, error) {
	if api == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "forensics api is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SubmitMaxRetries <= 0 {
		cfg.SubmitMaxRetries = 1
	}
	return &Gateway{api: api, cfg: cfg, logger: logger, metrics: m, sleep: sleepCtx}, nil
}

// Submit sends the document for analysis, retrying transient failures with
// exponential backoff up to the configured ceiling. Permanent failures are
// surfaced immediately.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (JobHandle, int, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.SubmitMaxRetries; attempt++ {
		if g.metrics != nil {
			g.metrics.SubmitAttempts.Inc()
			if attempt > 1 {
				g.metrics.SubmitRetries.Inc()
			}
		}
		externalID, err := g.api.Submit(ctx, req)
		if err == nil {
			g.logger.InfoContext(ctx, "forensics job submitted",
				slog.String("document_id", req.DocumentID.String()),
				slog.String("external_job_id", string(externalID)),
				slog.Int("attempt", attempt))
			return JobHandle{ExternalID: externalID, DocumentID: req.DocumentID}, attempt, nil
		}
		lastErr = err

		if !dErrors.IsRetryable(err) {
			if g.metrics != nil {
				g.metrics.SubmitFailures.WithLabelValues("permanent").Inc()
			}
			g.logger.WarnContext(ctx, "forensics submit failed permanently",
				slog.String("document_id", req.DocumentID.String()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return JobHandle{}, attempt, err
		}
		if attempt == g.cfg.SubmitMaxRetries {
			break
		}
		delay := BackoffDelay(g.cfg.SubmitBaseDelay, g.cfg.SubmitMaxDelay, attempt)
		g.logger.WarnContext(ctx, "forensics submit failed, retrying",
			slog.String("document_id", req.DocumentID.String()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_delay", delay),
			slog.String("error", err.Error()))
		if err := g.sleep(ctx, delay); err != nil {
			return JobHandle{}, attempt, dErrors.Wrap(dErrors.CodeTransientExternal, "forensics submit interrupted", err)
		}
	}
	if g.metrics != nil {
		g.metrics.SubmitFailures.WithLabelValues("transient_exhausted").Inc()
	}
	return JobHandle{}, g.cfg.SubmitMaxRetries, dErrors.Wrap(dErrors.CodeTransientExternal,
		"forensics submit retries exhausted", lastErr)
}

// Poll observes the job once. A completed job has its results fetched and
// validated; a failed validation fails the job, not the poll.
func (g *Gateway) Poll(ctx context.Context, handle JobHandle) (CompletionEvent, bool, error) {
	state, err := g.api.Status(ctx, handle.ExternalID)
	if err != nil {
		return CompletionEvent{}, false, err
	}
	switch state.Status {
	case JobCompleted:
		result, err := g.api.Results(ctx, handle.ExternalID)
		if err != nil {
			return CompletionEvent{}, false, err
		}
		if err := ValidateResult(result); err != nil {
			return CompletionEvent{
				ExternalID:   handle.ExternalID,
				Status:       JobFailed,
				ErrorMessage: err.Error(),
			}, true, nil
		}
		return CompletionEvent{ExternalID: handle.ExternalID, Status: JobCompleted, Result: result}, true, nil
	case JobFailed, JobCancelled:
		return CompletionEvent{
			ExternalID:   handle.ExternalID,
			Status:       state.Status,
			ErrorMessage: state.Message,
		}, true, nil
	default:
		return CompletionEvent{}, false, nil
	}
}

// Cancel tells the service to abandon the job. Best effort: the caller's
// local transition does not depend on it succeeding.
func (g *Gateway) Cancel(ctx context.Context, handle JobHandle) error {
	if err := g.api.Cancel(ctx, handle.ExternalID); err != nil {
		g.logger.WarnContext(ctx, "forensics cancel failed",
			slog.String("external_job_id", string(handle.ExternalID)),
			slog.String("error", err.Error()))
		return err
	}
	return nil
}

// PollInterval exposes the configured poll cadence to the orchestrator.
func (g *Gateway) PollInterval() time.Duration {
	if g.cfg.PollInterval <= 0 {
		return 5 * time.Second
	}
	return g.cfg.PollInterval
}

// BackoffDelay computes the retry delay for an attempt that just failed:
// base doubled per prior attempt, capped at maxDelay.
func BackoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			return maxDelay
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
