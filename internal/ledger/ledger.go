package ledger

import (
	"context"
	"fmt"
	"log/slog"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
	"docanchor/pkg/requestcontext"

	"docanchor/internal/ledger/metrics"
)

// Store persists stage events in append order.
type Store interface {
	// Append persists the event. It must never fail silently: a failed
	// append aborts the transition it was recording.
	Append(ctx context.Context, event StageEvent) error

	// History returns all events for a document in append order.
	History(ctx context.Context, documentID id.DocumentID) ([]StageEvent, error)

	// Latest returns the most recent event for a document, or nil when the
	// document has no history yet.
	Latest(ctx context.Context, documentID id.DocumentID) (*StageEvent, error)
}

// StreamPublisher mirrors appended events to an external stream. Publishing
// is fire-and-forget: the store append is the correctness gate, the stream
// is fan-out for downstream consumers.
type StreamPublisher interface {
	Publish(ctx context.Context, event StageEvent)
}

// Ledger enforces the forward-or-terminal invariant at write time and fans
// appended events out to the stream.
type Ledger struct {
	store   Store
	stream  StreamPublisher
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New constructs a Ledger. stream and metrics may be nil.
func New(store Store, stream StreamPublisher, logger *slog.Logger, m *metrics.Metrics) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("ledger store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, stream: stream, logger: logger, metrics: m}, nil
}

// Append validates and persists one stage transition. An event that moves
// the stage backward (except a same-stage retry, or a manual re-entry from
// failed) is rejected with a consistency error and nothing is written.
func (l *Ledger) Append(ctx context.Context, event StageEvent) error {
	if err := l.validate(ctx, &event); err != nil {
		if l.metrics != nil {
			l.metrics.RecordRejectedAppend()
		}
		return err
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if err := l.store.Append(ctx, event); err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "stage event append failed", err)
	}
	if l.metrics != nil {
		l.metrics.RecordTransition(string(event.NewStage), string(event.Trigger))
	}
	l.logger.InfoContext(ctx, "stage transition recorded",
		slog.String("document_id", event.DocumentID.String()),
		slog.String("from", string(event.PreviousStage)),
		slog.String("to", string(event.NewStage)),
		slog.String("trigger", string(event.Trigger)))
	if l.stream != nil {
		l.stream.Publish(ctx, event)
	}
	return nil
}

// History returns the ordered event sequence for a document.
func (l *Ledger) History(ctx context.Context, documentID id.DocumentID) ([]StageEvent, error) {
	return l.store.History(ctx, documentID)
}

// CurrentStage returns the stage projected from the latest event. Documents
// with no history are reported as queued.
func (l *Ledger) CurrentStage(ctx context.Context, documentID id.DocumentID) (id.Stage, error) {
	latest, err := l.store.Latest(ctx, documentID)
	if err != nil {
		return "", err
	}
	if latest == nil {
		return id.StageQueued, nil
	}
	return latest.NewStage, nil
}

func (l *Ledger) validate(ctx context.Context, event *StageEvent) error {
	if event.DocumentID.IsZero() {
		return dErrors.New(dErrors.CodeInvalidInput, "stage event requires a document id")
	}
	if !event.NewStage.Valid() || !event.PreviousStage.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "stage event has an unknown stage")
	}
	if !event.Trigger.Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "stage event has an unknown trigger")
	}

	latest, err := l.store.Latest(ctx, event.DocumentID)
	if err != nil {
		return err
	}
	if latest == nil {
		// First event for the document; anything valid is accepted, the
		// orchestrator always starts at queued.
		return nil
	}

	if event.PreviousStage != latest.NewStage {
		return dErrors.New(dErrors.CodeConsistency, fmt.Sprintf(
			"stage event claims previous stage %s but document is at %s",
			event.PreviousStage, latest.NewStage))
	}
	return checkForward(latest.NewStage, event.NewStage, event.Trigger)
}

// checkForward is the write-time forward-or-terminal rule.
func checkForward(from, to id.Stage, trigger id.Trigger) error {
	if to == from {
		// Same-stage retry: attempt counters ride in metadata.
		return nil
	}
	if to.Terminal() && !from.Terminal() {
		return nil
	}
	if from.Terminal() {
		// The only legal exit from a terminal stage is a manual retry
		// re-entering the pipeline from failed.
		if from == id.StageFailed && trigger == id.TriggerManual {
			if _, onPath := to.Index(); onPath {
				return nil
			}
		}
		return dErrors.New(dErrors.CodeConsistency, fmt.Sprintf(
			"illegal transition out of terminal stage %s to %s", from, to))
	}
	fromIdx, _ := from.Index()
	toIdx, ok := to.Index()
	if !ok || toIdx < fromIdx {
		return dErrors.New(dErrors.CodeConsistency, fmt.Sprintf(
			"backward stage transition %s to %s", from, to))
	}
	return nil
}
