package verification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"docanchor/internal/anchor"
	"docanchor/internal/content"
	"docanchor/internal/document"
	"docanchor/internal/forensics"
	"docanchor/internal/ledger"
	"docanchor/internal/platform/config"
	"docanchor/internal/verification/metrics"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
	"docanchor/pkg/requestcontext"
)

// StartRequest is the upload boundary's handoff to the orchestrator.
type StartRequest struct {
	DocumentID     id.DocumentID
	OrganizationID id.OrganizationID
	UploaderID     id.UserID
	FileName       string
	DocumentType   string
	Content        []byte
	Priority       id.Priority
}

// StartResponse identifies the created run. On a duplicate short-circuit the
// error carries the duplicate code and DocumentID references the existing
// document instead.
type StartResponse struct {
	JobID        id.JobID
	DocumentID   id.DocumentID
	InitialStage id.Stage
}

// Service is the verification orchestrator.
type Service struct {
	cfg       config.Pipeline
	documents document.Store
	ledger    *ledger.Ledger
	addressor *content.Addressor
	forensics *forensics.Gateway
	anchor    *anchor.Gateway
	registry  *Registry
	queue     *jobQueue
	logger    *slog.Logger
	metrics   *metrics.Metrics

	wg      sync.WaitGroup
	stop    context.CancelFunc
	stopped chan struct{}
}

// New constructs the orchestrator. metrics may be nil.
func New(
	cfg config.Pipeline,
	documents document.Store,
	stageLedger *ledger.Ledger,
	addressor *content.Addressor,
	forensicsGateway *forensics.Gateway,
	anchorGateway *anchor.Gateway,
	logger *slog.Logger,
	m *metrics.Metrics,
) (*Service, error) {
	switch {
	case documents == nil:
		return nil, dErrors.New(dErrors.CodeInternal, "document store is required")
	case stageLedger == nil:
		return nil, dErrors.New(dErrors.CodeInternal, "stage ledger is required")
	case addressor == nil:
		return nil, dErrors.New(dErrors.CodeInternal, "content addressor is required")
	case forensicsGateway == nil:
		return nil, dErrors.New(dErrors.CodeInternal, "forensics gateway is required")
	case anchorGateway == nil:
		return nil, dErrors.New(dErrors.CodeInternal, "anchor gateway is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 5 * time.Minute
	}
	if cfg.StageMaxAttempts <= 0 {
		cfg.StageMaxAttempts = 2
	}
	return &Service{
		cfg:       cfg,
		documents: documents,
		ledger:    stageLedger,
		addressor: addressor,
		forensics: forensicsGateway,
		anchor:    anchorGateway,
		registry:  NewRegistry(),
		queue:     newJobQueue(cfg.QueueCapacity),
		logger:    logger,
		metrics:   m,
		stopped:   make(chan struct{}),
	}, nil
}

// Start launches the worker pool. Workers run until Shutdown.
func (s *Service) Start(ctx context.Context) {
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = cancel
	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runWorker(workerCtx)
		}()
	}
}

// Shutdown stops intake and waits for in-flight jobs to reach a suspension
// point and exit, up to the context deadline.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.stop != nil {
		s.stop()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit runs the content-addressing gate and, when it passes, creates the
// document and queues a pipeline run. A duplicate upload short-circuits with
// the existing document's id and a duplicate coded error.
func (s *Service) Submit(ctx context.Context, req StartRequest) (StartResponse, error) {
	if len(req.Content) == 0 {
		return StartResponse{}, dErrors.New(dErrors.CodeInvalidInput, "document content is required")
	}
	if req.OrganizationID.IsZero() || req.UploaderID.IsZero() {
		return StartResponse{}, dErrors.New(dErrors.CodeInvalidInput, "organization and uploader ids are required")
	}
	if !req.Priority.Valid() {
		req.Priority = id.PriorityNormal
	}

	hash := s.addressor.Hash(req.Content)
	if existing, err := s.addressor.FindDuplicate(ctx, req.UploaderID, hash); err != nil {
		return StartResponse{DocumentID: existing}, err
	}

	now := requestcontext.Now(ctx)
	docID := req.DocumentID
	if docID.IsZero() {
		docID = id.NewDocumentID()
	}
	doc := document.New(docID, hash, req.OrganizationID, req.UploaderID, now)
	if err := s.documents.Create(ctx, doc); err != nil {
		return StartResponse{}, err
	}
	if err := s.addressor.Claim(ctx, req.UploaderID, hash, docID); err != nil {
		return StartResponse{}, err
	}

	job := newJob(docID, req.OrganizationID, req.UploaderID, hash, now)
	job.FileName = req.FileName
	job.DocumentType = req.DocumentType
	job.Content = req.Content
	job.Priority = req.Priority

	if err := s.registry.Activate(job); err != nil {
		return StartResponse{}, err
	}
	if err := s.enqueue(job); err != nil {
		s.registry.Complete(job, id.StageFailed, now)
		return StartResponse{}, err
	}

	s.logger.InfoContext(ctx, "verification job queued",
		slog.String("document_id", docID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("priority", string(job.Priority)))
	return StartResponse{JobID: job.ID, DocumentID: docID, InitialStage: id.StageQueued}, nil
}

// Cancel requests cooperative cancellation of the document's active run. The
// worker observes the flag at its next suspension point.
func (s *Service) Cancel(ctx context.Context, docID id.DocumentID) error {
	job, ok := s.registry.FindActive(docID)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "document has no active verification job")
	}
	job.Cancel()
	s.logger.InfoContext(ctx, "verification cancel requested",
		slog.String("document_id", docID.String()),
		slog.String("job_id", job.ID.String()))
	return nil
}

// Retry spawns a manual retry run for a failed document. Allowed exactly
// once per failed run; the new job re-enters at forensic_analysis.
func (s *Service) Retry(ctx context.Context, docID id.DocumentID) (StartResponse, error) {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return StartResponse{}, err
	}
	if doc.Stage != id.StageFailed {
		return StartResponse{}, dErrors.New(dErrors.CodeConsistency,
			"only a failed document can be retried, current stage is "+string(doc.Stage))
	}

	now := requestcontext.Now(ctx)
	job := newJob(docID, doc.OrganizationID, doc.UploaderID, doc.CanonicalHash, now)
	job.Priority = id.PriorityHigh

	failed, err := s.registry.ClaimRetry(docID, job.ID)
	if err != nil {
		return StartResponse{}, err
	}
	job.RetryOf = failed.JobID
	job.FileName = failed.FileName
	job.DocumentType = failed.DocumentType
	job.Content = failed.Content

	if err := s.registry.Activate(job); err != nil {
		return StartResponse{}, err
	}
	if err := s.enqueue(job); err != nil {
		s.registry.Complete(job, id.StageFailed, now)
		return StartResponse{}, err
	}

	s.logger.InfoContext(ctx, "manual retry queued",
		slog.String("document_id", docID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("retry_of", failed.JobID.String()))
	return StartResponse{JobID: job.ID, DocumentID: docID, InitialStage: id.StageForensicAnalysis}, nil
}

// Progress projects the document's ledger history into a read-only snapshot.
func (s *Service) Progress(ctx context.Context, docID id.DocumentID) (ledger.VerificationProgress, error) {
	if _, err := s.documents.Get(ctx, docID); err != nil {
		return ledger.VerificationProgress{}, err
	}
	history, err := s.ledger.History(ctx, docID)
	if err != nil {
		return ledger.VerificationProgress{}, err
	}
	return ledger.Project(docID, history), nil
}

// History returns the raw ordered stage events.
func (s *Service) History(ctx context.Context, docID id.DocumentID) ([]ledger.StageEvent, error) {
	if _, err := s.documents.Get(ctx, docID); err != nil {
		return nil, err
	}
	return s.ledger.History(ctx, docID)
}

// Document returns the document aggregate.
func (s *Service) Document(ctx context.Context, docID id.DocumentID) (*document.Document, error) {
	return s.documents.Get(ctx, docID)
}

// Revoke revokes the document's on-chain registration.
func (s *Service) Revoke(ctx context.Context, docID id.DocumentID) error {
	doc, err := s.documents.Get(ctx, docID)
	if err != nil {
		return err
	}
	return s.anchor.Revoke(ctx, doc.CanonicalHash)
}

// HandleForensicsCompletion routes a completion event (webhook or poll
// normalized upstream) to the waiting worker. A delivery for a job that has
// already left the stage, or a second delivery of the same completion, is
// dropped as a logged no-op.
func (s *Service) HandleForensicsCompletion(ctx context.Context, event forensics.CompletionEvent) {
	job, ok := s.registry.FindByExternal(event.ExternalID)
	if !ok {
		s.dropEvent(ctx, event, "stale")
		return
	}
	if !job.deliverCompletion(event) {
		s.dropEvent(ctx, event, "duplicate")
	}
}

func (s *Service) dropEvent(ctx context.Context, event forensics.CompletionEvent, reason string) {
	if s.metrics != nil {
		s.metrics.DroppedEvents.WithLabelValues(reason).Inc()
	}
	s.logger.InfoContext(ctx, "completion delivery dropped",
		slog.String("external_job_id", string(event.ExternalID)),
		slog.String("reason", reason))
}

func (s *Service) enqueue(job *Job) error {
	if err := s.queue.Push(job); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.QueueDepth.Set(float64(s.queue.Depth()))
	}
	return nil
}
