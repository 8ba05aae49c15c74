package verification

import (
	"sync"
	"time"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// Registry tracks active jobs and the archive of finished runs. It enforces
// the one-active-job-per-document invariant; the storage layer does not.
type Registry struct {
	mu         sync.Mutex
	active     map[id.DocumentID]*Job
	byExternal map[id.ExternalJobID]*Job
	archive    map[id.DocumentID][]*ArchivedJob
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active:     make(map[id.DocumentID]*Job),
		byExternal: make(map[id.ExternalJobID]*Job),
		archive:    make(map[id.DocumentID][]*ArchivedJob),
	}
}

// Activate registers the job as the document's active run. A second active
// job for the same document is rejected.
func (r *Registry) Activate(job *Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.active[job.DocumentID]; ok {
		return dErrors.New(dErrors.CodeConflict,
			"document already has active job "+existing.ID.String())
	}
	r.active[job.DocumentID] = job
	return nil
}

// BindExternal indexes the job by the forensics job id so webhook deliveries
// can find it.
func (r *Registry) BindExternal(job *Job, externalID id.ExternalJobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.externalID.Store(externalID)
	r.byExternal[externalID] = job
}

// FindActive returns the document's active job.
func (r *Registry) FindActive(docID id.DocumentID) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.active[docID]
	return job, ok
}

// FindByExternal returns the active job bound to a forensics job id.
func (r *Registry) FindByExternal(externalID id.ExternalJobID) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byExternal[externalID]
	return job, ok
}

// Complete archives the job and frees the document for a new run.
func (r *Registry) Complete(job *Job, finalStage id.Stage, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, job.DocumentID)
	if externalID := job.ExternalID(); externalID != "" {
		delete(r.byExternal, externalID)
	}
	r.archive[job.DocumentID] = append(r.archive[job.DocumentID], &ArchivedJob{
		JobID:        job.ID,
		DocumentID:   job.DocumentID,
		FinalStage:   finalStage,
		CreatedAt:    job.CreatedAt,
		CompletedAt:  at,
		FileName:     job.FileName,
		DocumentType: job.DocumentType,
		Content:      job.Content,
	})
}

// Archived returns the document's finished runs, oldest first.
func (r *Registry) Archived(docID id.DocumentID) []*ArchivedJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*ArchivedJob, len(r.archive[docID]))
	copy(out, r.archive[docID])
	return out
}

// ClaimRetry marks the document's most recent failed run as retried and
// returns it. Each failed run may be retried exactly once.
func (r *Registry) ClaimRetry(docID id.DocumentID, retryJobID id.JobID) (*ArchivedJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[docID]; ok {
		return nil, dErrors.New(dErrors.CodeConflict, "document already has an active job")
	}
	runs := r.archive[docID]
	if len(runs) == 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "document has no finished runs")
	}
	last := runs[len(runs)-1]
	if last.FinalStage != id.StageFailed {
		return nil, dErrors.New(dErrors.CodeConsistency,
			"only a failed run can be retried, last run ended "+string(last.FinalStage))
	}
	if !last.RetriedBy.IsZero() {
		return nil, dErrors.New(dErrors.CodeConflict, "failed run was already retried once")
	}
	last.RetriedBy = retryJobID
	return last, nil
}

// ActiveCount reports the number of in-flight jobs.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
