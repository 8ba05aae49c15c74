// Package anchor wraps the blockchain registry: idempotent register, verify,
// and revoke of a document's canonical hash.
package anchor

import (
	"time"

	id "docanchor/pkg/domain"
)

// RecordStatus is the lifecycle of an on-chain registration.
type RecordStatus string

const (
	RecordPending   RecordStatus = "pending"
	RecordConfirmed RecordStatus = "confirmed"
	RecordFailed    RecordStatus = "failed"
)

// Record is one on-chain registration of a canonical hash.
type Record struct {
	TransactionHash string       `json:"transaction_hash"`
	BlockNumber     uint64       `json:"block_number"`
	Network         string       `json:"network"`
	Status          RecordStatus `json:"status"`
	AnchoredAt      time.Time    `json:"anchored_at"`
}

// VerifyResult is the registry's answer for one canonical hash.
type VerifyResult struct {
	Exists    bool      `json:"exists"`
	IsActive  bool      `json:"is_active"`
	Issuer    string    `json:"issuer"`
	Timestamp time.Time `json:"timestamp"`
	// Record carries the existing registration when Exists is true, so an
	// ambiguous register retry can recover the record without re-writing.
	Record *Record `json:"record,omitempty"`
}

// RegisterRequest is one registration: the canonical hash plus an off-chain
// pointer back to the document.
type RegisterRequest struct {
	Hash    id.ContentHash
	Pointer string
}

// BatchResult is one item's outcome in a bulk registration.
type BatchResult struct {
	Hash   id.ContentHash
	Record *Record
	Err    error
}
