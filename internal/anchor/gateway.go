package anchor

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"docanchor/internal/anchor/metrics"
	"docanchor/internal/platform/config"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// Gateway makes registration logically idempotent on top of a ledger that
// rejects duplicate keys: an ambiguous failure is reconciled through verify
// before any re-register, so the same hash never gets two records.
type Gateway struct {
	api        ChainAPI
	logger     *slog.Logger
	metrics    *metrics.Metrics
	batchLimit int
}

// NewGateway constructs a Gateway. metrics may be nil.
func NewGateway(api ChainAPI, cfg config.Anchor, logger *slog.Logger, m *metrics.Metrics) (*Gateway, error) {
	if api == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "chain api is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.BatchLimit
	if limit <= 0 {
		limit = 4
	}
	return &Gateway{api: api, logger: logger, metrics: m, batchLimit: limit}, nil
}

// Register anchors the canonical hash. Registering an already-registered
// hash returns the existing record. An ambiguous failure (broadcast may
// have landed, confirmation lost) triggers a verify reconciliation before
// the single retry.
func (g *Gateway) Register(ctx context.Context, req RegisterRequest) (*Record, error) {
	record, err := g.api.RegisterDocument(ctx, req)
	if err == nil {
		g.record("registered")
		return record, nil
	}
	if dErrors.HasCode(err, dErrors.CodeConflict) {
		return g.recoverExisting(ctx, req.Hash)
	}
	if !dErrors.IsRetryable(err) {
		g.record("failed")
		return nil, err
	}

	// Ambiguous: the write may have landed. Verify before re-registering.
	if g.metrics != nil {
		g.metrics.Reconciliations.Inc()
	}
	g.logger.WarnContext(ctx, "anchor register ambiguous, reconciling via verify",
		slog.String("canonical_hash", req.Hash.String()),
		slog.String("error", err.Error()))
	verified, verifyErr := g.api.VerifyDocument(ctx, req.Hash)
	if verifyErr != nil {
		g.record("failed")
		return nil, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor reconciliation failed", verifyErr)
	}
	if verified.Exists {
		g.record("reconciled")
		if verified.Record != nil {
			return verified.Record, nil
		}
		return &Record{Status: RecordConfirmed, AnchoredAt: verified.Timestamp}, nil
	}

	record, err = g.api.RegisterDocument(ctx, req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeConflict) {
			return g.recoverExisting(ctx, req.Hash)
		}
		g.record("failed")
		return nil, err
	}
	g.record("registered")
	return record, nil
}

// recoverExisting fetches the record behind a duplicate-key rejection.
func (g *Gateway) recoverExisting(ctx context.Context, hash id.ContentHash) (*Record, error) {
	verified, err := g.api.VerifyDocument(ctx, hash)
	if err != nil {
		g.record("failed")
		return nil, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor existing record lookup failed", err)
	}
	if !verified.Exists {
		g.record("failed")
		return nil, dErrors.New(dErrors.CodeConsistency, "registry rejected hash as duplicate but verify finds no record")
	}
	g.record("existing")
	if verified.Record != nil {
		return verified.Record, nil
	}
	return &Record{Status: RecordConfirmed, AnchoredAt: verified.Timestamp}, nil
}

// Verify checks the registry for a canonical hash.
func (g *Gateway) Verify(ctx context.Context, hash id.ContentHash) (VerifyResult, error) {
	return g.api.VerifyDocument(ctx, hash)
}

// Revoke revokes a registration, surfacing authorization failures distinctly
// from a missing record.
func (g *Gateway) Revoke(ctx context.Context, hash id.ContentHash) error {
	err := g.api.RevokeDocument(ctx, hash)
	if g.metrics != nil {
		switch {
		case err == nil:
			g.metrics.Revocations.WithLabelValues("revoked").Inc()
		case dErrors.HasCode(err, dErrors.CodeAuthorization):
			g.metrics.Revocations.WithLabelValues("unauthorized").Inc()
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			g.metrics.Revocations.WithLabelValues("not_found").Inc()
		default:
			g.metrics.Revocations.WithLabelValues("failed").Inc()
		}
	}
	return err
}

// RegisterBatch anchors multiple hashes with bounded concurrency. Every item
// gets an outcome; one failure never aborts the rest.
func (g *Gateway) RegisterBatch(ctx context.Context, reqs []RegisterRequest) []BatchResult {
	results := make([]BatchResult, len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.batchLimit)
	for i, req := range reqs {
		group.Go(func() error {
			record, err := g.Register(groupCtx, req)
			results[i] = BatchResult{Hash: req.Hash, Record: record, Err: err}
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (g *Gateway) record(result string) {
	if g.metrics != nil {
		g.metrics.Registrations.WithLabelValues(result).Inc()
	}
}
