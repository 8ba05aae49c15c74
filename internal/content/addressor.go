// Package content is the content-addressing gate in front of the pipeline:
// canonical hashing, per-uploader duplicate detection, and file type
// sniffing for preprocessing.
package content

import (
	"context"
	"log/slog"

	"docanchor/internal/content/metrics"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// DuplicateIndex maps (uploader, content hash) to the document that first
// claimed it.
type DuplicateIndex interface {
	// Lookup returns the claiming document, or zero and false when the pair
	// is unclaimed.
	Lookup(ctx context.Context, uploaderID id.UserID, hash id.ContentHash) (id.DocumentID, bool, error)

	// Claim records the pair. Claiming an already-claimed pair is an error.
	Claim(ctx context.Context, uploaderID id.UserID, hash id.ContentHash, docID id.DocumentID) error
}

// Addressor computes canonical hashes and gates duplicate uploads.
type Addressor struct {
	index   DuplicateIndex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewAddressor constructs an Addressor. metrics may be nil.
func NewAddressor(index DuplicateIndex, logger *slog.Logger, m *metrics.Metrics) (*Addressor, error) {
	if index == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "duplicate index is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Addressor{index: index, logger: logger, metrics: m}, nil
}

// Hash computes the canonical content hash of the raw bytes.
func (a *Addressor) Hash(data []byte) id.ContentHash {
	return id.HashBytes(data)
}

// FindDuplicate checks whether the uploader has already submitted this
// content. A hit returns the existing document id and a duplicate coded
// error: the short-circuit is a successful outcome, the code lets transport
// map it to 409 with the existing reference.
func (a *Addressor) FindDuplicate(ctx context.Context, uploaderID id.UserID, hash id.ContentHash) (id.DocumentID, error) {
	existing, found, err := a.index.Lookup(ctx, uploaderID, hash)
	if err != nil {
		return id.DocumentID{}, dErrors.Wrap(dErrors.CodeInternal, "duplicate index lookup failed", err)
	}
	if !found {
		return id.DocumentID{}, nil
	}
	if a.metrics != nil {
		a.metrics.DuplicateHits.Inc()
	}
	a.logger.InfoContext(ctx, "duplicate upload short-circuited",
		slog.String("uploader_id", uploaderID.String()),
		slog.String("content_hash", hash.String()),
		slog.String("existing_document_id", existing.String()))
	return existing, dErrors.New(dErrors.CodeDuplicate, "content already verified as document "+existing.String())
}

// Claim records the document as the owner of the (uploader, hash) pair. Call
// after the duplicate check passes and the document row is created.
func (a *Addressor) Claim(ctx context.Context, uploaderID id.UserID, hash id.ContentHash, docID id.DocumentID) error {
	if err := a.index.Claim(ctx, uploaderID, hash, docID); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "duplicate index claim failed", err)
	}
	return nil
}
