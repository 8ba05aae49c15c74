package verification

import (
	"sync"
	"sync/atomic"
	"time"

	"docanchor/internal/forensics"
	id "docanchor/pkg/domain"
)

// Job is one pipeline run for a document. It is owned by a single worker
// for its duration; the cancel flag and completion channel are the only
// cross-goroutine surfaces.
type Job struct {
	ID             id.JobID
	DocumentID     id.DocumentID
	OrganizationID id.OrganizationID
	UploaderID     id.UserID
	Hash           id.ContentHash
	FileName       string
	DocumentType   string
	Content        []byte
	Priority       id.Priority
	CreatedAt      time.Time

	// RetryOf marks a manual retry run: the job starts at forensic_analysis
	// instead of the top of the pipeline.
	RetryOf id.JobID

	externalID atomic.Value // id.ExternalJobID

	// completion receives the first forensics completion delivery, whether
	// from a poll tick or a webhook. Later deliveries are dropped.
	completion chan forensics.CompletionEvent

	cancelOnce sync.Once
	cancelled  chan struct{}
}

func newJob(docID id.DocumentID, orgID id.OrganizationID, uploaderID id.UserID, hash id.ContentHash, now time.Time) *Job {
	return &Job{
		ID:             id.NewJobID(),
		DocumentID:     docID,
		OrganizationID: orgID,
		UploaderID:     uploaderID,
		Hash:           hash,
		Priority:       id.PriorityNormal,
		CreatedAt:      now,
		completion:     make(chan forensics.CompletionEvent, 1),
		cancelled:      make(chan struct{}),
	}
}

// IsRetry reports whether this run is a manual retry of a failed job.
func (j *Job) IsRetry() bool { return !j.RetryOf.IsZero() }

// Cancel flips the cooperative cancellation flag. The owning worker observes
// it at the next suspension point.
func (j *Job) Cancel() {
	j.cancelOnce.Do(func() { close(j.cancelled) })
}

// Cancelled reports whether cancellation was requested.
func (j *Job) Cancelled() bool {
	select {
	case <-j.cancelled:
		return true
	default:
		return false
	}
}

// ExternalID returns the forensics job id, empty until submitted.
func (j *Job) ExternalID() id.ExternalJobID {
	if v, ok := j.externalID.Load().(id.ExternalJobID); ok {
		return v
	}
	return ""
}

// deliverCompletion hands the event to the waiting worker. The buffer holds
// exactly one event: the first delivery wins, duplicates are reported back
// to the caller as not delivered.
func (j *Job) deliverCompletion(event forensics.CompletionEvent) bool {
	select {
	case j.completion <- event:
		return true
	default:
		return false
	}
}

// ArchivedJob is a finished run retained for the progress history and the
// manual-retry bookkeeping.
type ArchivedJob struct {
	JobID       id.JobID
	DocumentID  id.DocumentID
	FinalStage  id.Stage
	CreatedAt   time.Time
	CompletedAt time.Time

	// The original upload is retained so a manual retry can resubmit the
	// same bytes for analysis.
	FileName     string
	DocumentType string
	Content      []byte

	// RetriedBy is set when a manual retry run was spawned from this job.
	// A job may be retried at most once.
	RetriedBy id.JobID
}
