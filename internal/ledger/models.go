// Package ledger is the append-only history of stage transitions: the source
// of truth for progress reporting and audit. Events are never mutated or
// deleted; the stage/status on a document is a projection of the latest
// event.
package ledger

import (
	"time"

	id "docanchor/pkg/domain"
)

// Metadata keys written by the orchestrator and gateways. Kept as constants
// so tests and projections don't scatter string literals.
const (
	MetaAttempts      = "attempts"
	MetaError         = "error"
	MetaErrorCategory = "error_category"
	MetaExternalJobID = "external_job_id"
	MetaTxHash        = "transaction_hash"
	MetaModelVersion  = "model_version"
	MetaDelivery      = "delivery"
	MetaAuthenticity  = "authenticity_score"
	MetaTampering     = "tampering_score"
	MetaConfidence    = "confidence_score"
)

// StageEvent is one immutable stage transition record.
type StageEvent struct {
	DocumentID    id.DocumentID
	PreviousStage id.Stage
	NewStage      id.Stage
	Trigger       id.Trigger
	Reason        string
	Metadata      map[string]string
	Timestamp     time.Time
}
