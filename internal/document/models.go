// Package document holds the document aggregate: the write-side projection
// the orchestrator keeps alongside the stage ledger. The ledger is the
// source of truth for transitions; the document row is the queryable
// current state.
package document

import (
	"time"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// Document is one uploaded document moving through verification.
type Document struct {
	ID             id.DocumentID
	CanonicalHash  id.ContentHash
	OrganizationID id.OrganizationID
	UploaderID     id.UserID
	Status         id.Status
	Stage          id.Stage
	// Attempts counts executions per stage, including the first.
	Attempts     map[id.Stage]int
	AnchorRecord *AnchorRecord
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AnchorStatus is the lifecycle of an on-chain registration.
type AnchorStatus string

const (
	AnchorPending   AnchorStatus = "pending"
	AnchorConfirmed AnchorStatus = "confirmed"
	AnchorFailed    AnchorStatus = "failed"
)

// AnchorRecord is the on-chain registration outcome. Once confirmed it is
// immutable.
type AnchorRecord struct {
	TransactionHash string       `json:"transaction_hash"`
	BlockNumber     uint64       `json:"block_number"`
	Network         string       `json:"network"`
	Status          AnchorStatus `json:"status"`
	AnchoredAt      time.Time    `json:"anchored_at"`
}

// Confirmed reports whether the record is final.
func (r AnchorRecord) Confirmed() bool { return r.Status == AnchorConfirmed }

// New constructs a freshly uploaded document sitting in the queue.
func New(docID id.DocumentID, hash id.ContentHash, orgID id.OrganizationID, uploaderID id.UserID, now time.Time) *Document {
	return &Document{
		ID:             docID,
		CanonicalHash:  hash,
		OrganizationID: orgID,
		UploaderID:     uploaderID,
		Status:         id.StatusPending,
		Stage:          id.StageQueued,
		Attempts:       make(map[id.Stage]int),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// AdvanceTo moves the projection to the given stage and derives the coarse
// status. Attempt bookkeeping is separate: call RecordAttempt when a stage
// execution starts.
func (d *Document) AdvanceTo(stage id.Stage, now time.Time) {
	d.Stage = stage
	d.Status = id.StatusFor(stage)
	d.UpdatedAt = now
}

// RecordAttempt bumps the attempt counter for a stage and returns the new
// count.
func (d *Document) RecordAttempt(stage id.Stage) int {
	if d.Attempts == nil {
		d.Attempts = make(map[id.Stage]int)
	}
	d.Attempts[stage]++
	return d.Attempts[stage]
}

// SetAnchorRecord attaches the registration outcome. A confirmed record can
// never be replaced.
func (d *Document) SetAnchorRecord(record AnchorRecord, now time.Time) error {
	if d.AnchorRecord != nil && d.AnchorRecord.Confirmed() {
		return dErrors.New(dErrors.CodeConsistency, "anchor record is confirmed and immutable")
	}
	copied := record
	d.AnchorRecord = &copied
	d.UpdatedAt = now
	return nil
}

func (d *Document) clone() *Document {
	copied := *d
	copied.Attempts = make(map[id.Stage]int, len(d.Attempts))
	for stage, n := range d.Attempts {
		copied.Attempts[stage] = n
	}
	if d.AnchorRecord != nil {
		record := *d.AnchorRecord
		copied.AnchorRecord = &record
	}
	return &copied
}
