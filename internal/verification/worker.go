package verification

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"docanchor/internal/anchor"
	"docanchor/internal/content"
	"docanchor/internal/document"
	"docanchor/internal/forensics"
	"docanchor/internal/ledger"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

func (s *Service) runWorker(ctx context.Context) {
	for {
		job, err := s.queue.Pop(ctx)
		if err != nil {
			return
		}
		if s.metrics != nil {
			s.metrics.QueueDepth.Set(float64(s.queue.Depth()))
			s.metrics.ActiveJobs.Inc()
		}
		final := s.runJob(ctx, job)
		s.registry.Complete(job, final, time.Now())
		if s.metrics != nil {
			s.metrics.ActiveJobs.Dec()
			s.metrics.JobsFinished.WithLabelValues(string(final)).Inc()
		}
	}
}

// run carries one job's execution state. All ledger appends for the document
// go through advance, keeping the single-writer-per-document invariant.
type run struct {
	svc    *Service
	job    *Job
	doc    *document.Document
	stage  id.Stage
	result *forensics.Result

	enteredAt time.Time
}

func (s *Service) runJob(ctx context.Context, job *Job) id.Stage {
	doc, err := s.documents.Get(ctx, job.DocumentID)
	if err != nil {
		s.logger.ErrorContext(ctx, "job dropped, document missing",
			slog.String("document_id", job.DocumentID.String()),
			slog.String("error", err.Error()))
		return id.StageFailed
	}

	r := &run{svc: s, job: job, doc: doc, stage: id.StageQueued, enteredAt: time.Now()}
	if job.IsRetry() {
		r.stage = id.StageFailed
	}

	if r.checkCancelled(ctx) {
		return r.stage
	}
	if !job.IsRetry() {
		if done := r.preprocess(ctx); done {
			return r.stage
		}
	}
	if done := r.forensic(ctx); done {
		return r.stage
	}
	if done := r.anchorStage(ctx); done {
		return r.stage
	}
	if done := r.localStages(ctx); done {
		return r.stage
	}
	return r.stage
}

// advance commits one transition: ledger append first, then the document
// projection. A failed append aborts the transition and the run.
func (r *run) advance(ctx context.Context, to id.Stage, trigger id.Trigger, reason string, meta map[string]string) bool {
	if !CanTransition(r.stage, to, trigger) {
		r.svc.logger.ErrorContext(ctx, "illegal transition suppressed",
			slog.String("document_id", r.doc.ID.String()),
			slog.String("from", string(r.stage)),
			slog.String("to", string(to)),
			slog.String("trigger", string(trigger)))
		return false
	}
	err := r.svc.ledger.Append(ctx, ledger.StageEvent{
		DocumentID:    r.doc.ID,
		PreviousStage: r.stage,
		NewStage:      to,
		Trigger:       trigger,
		Reason:        reason,
		Metadata:      meta,
	})
	if err != nil {
		r.svc.logger.ErrorContext(ctx, "stage transition aborted, ledger append failed",
			slog.String("document_id", r.doc.ID.String()),
			slog.String("to", string(to)),
			slog.String("error", err.Error()))
		return false
	}

	if r.svc.metrics != nil && to != r.stage {
		r.svc.metrics.StageDurations.WithLabelValues(string(r.stage)).
			Observe(time.Since(r.enteredAt).Seconds())
	}
	r.enteredAt = time.Now()
	r.stage = to
	r.doc.AdvanceTo(to, time.Now())
	if err := r.svc.documents.Update(ctx, r.doc); err != nil {
		r.svc.logger.ErrorContext(ctx, "document projection update failed",
			slog.String("document_id", r.doc.ID.String()),
			slog.String("error", err.Error()))
	}
	return true
}

// fail moves the run to failed with the error recorded verbatim.
func (r *run) fail(ctx context.Context, cause error, extra map[string]string) {
	meta := map[string]string{
		ledger.MetaError:         cause.Error(),
		ledger.MetaErrorCategory: string(dErrors.CodeOf(cause)),
	}
	for k, v := range extra {
		meta[k] = v
	}
	r.advance(ctx, id.StageFailed, id.TriggerSystem, dErrors.MessageOf(cause), meta)
}

// cancel commits the cancelled transition and best-effort cancels any
// in-flight forensics job.
func (r *run) cancel(ctx context.Context) {
	if externalID := r.job.ExternalID(); externalID != "" {
		cancelCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		_ = r.svc.forensics.Cancel(cancelCtx, forensics.JobHandle{ExternalID: externalID, DocumentID: r.doc.ID})
		done()
	}
	r.advance(ctx, id.StageCancelled, id.TriggerManual, "cancelled by request", nil)
}

// checkCancelled observes the cooperative flag, committing the cancelled
// transition when set.
func (r *run) checkCancelled(ctx context.Context) bool {
	if !r.job.Cancelled() {
		return false
	}
	r.cancel(ctx)
	return true
}

func (r *run) preprocess(ctx context.Context) (terminal bool) {
	if !r.advance(ctx, id.StagePreprocessing, id.TriggerSystem, "", nil) {
		return true
	}
	r.doc.RecordAttempt(id.StagePreprocessing)

	fileType, err := content.Sniff(r.job.Content)
	if err != nil {
		r.fail(ctx, err, nil)
		return true
	}
	if r.job.DocumentType == "" {
		r.job.DocumentType = string(fileType)
	}
	return r.checkCancelled(ctx)
}

func (r *run) forensic(ctx context.Context) (terminal bool) {
	entryTrigger := id.TriggerSystem
	if r.job.IsRetry() {
		entryTrigger = id.TriggerManual
	}
	attempt := r.doc.RecordAttempt(id.StageForensicAnalysis)
	entryMeta := map[string]string{ledger.MetaAttempts: strconv.Itoa(attempt)}
	if !r.advance(ctx, id.StageForensicAnalysis, entryTrigger, "", entryMeta) {
		return true
	}

	for {
		if r.checkCancelled(ctx) {
			return true
		}

		stageCtx, cancelStage := context.WithTimeout(ctx, r.svc.cfg.StageTimeout)
		handle, submitAttempts, err := r.svc.forensics.Submit(stageCtx, forensics.SubmitRequest{
			DocumentID:   r.doc.ID,
			FileName:     r.job.FileName,
			Content:      r.job.Content,
			DocumentType: r.job.DocumentType,
			AnalysisType: "forgery_detection",
			Priority:     r.job.Priority,
			Metadata: map[string]string{
				"organization_id": r.doc.OrganizationID.String(),
				"canonical_hash":  r.doc.CanonicalHash.String(),
			},
		})
		cancelStage()

		if r.checkCancelled(ctx) {
			return true
		}
		if err != nil {
			r.fail(ctx, err, map[string]string{ledger.MetaAttempts: strconv.Itoa(submitAttempts)})
			return true
		}
		r.svc.registry.BindExternal(r.job, handle.ExternalID)
		if submitAttempts > 1 {
			// The submission attempts ride as metadata on a forensic_analysis
			// event, never as separate stage transitions.
			if !r.advance(ctx, id.StageForensicAnalysis, id.TriggerAutomated, "", map[string]string{
				ledger.MetaAttempts:      strconv.Itoa(submitAttempts),
				ledger.MetaExternalJobID: string(handle.ExternalID),
			}) {
				return true
			}
		}

		outcome, event := r.waitForCompletion(ctx, handle)
		switch outcome {
		case waitCompleted:
			r.result = event.Result
			return !r.advance(ctx, id.StageBlockchainVerification, id.TriggerVerificationResult, "", map[string]string{
				ledger.MetaExternalJobID: string(handle.ExternalID),
				ledger.MetaDelivery:      event.delivery,
				ledger.MetaAuthenticity:  strconv.Itoa(event.Result.AuthenticityScore),
				ledger.MetaTampering:     strconv.Itoa(event.Result.TamperingScore),
				ledger.MetaConfidence:    strconv.Itoa(event.Result.ConfidenceScore),
			})
		case waitFailed:
			r.fail(ctx, dErrors.New(dErrors.CodePermanentExternal, "forensic analysis failed: "+event.ErrorMessage),
				map[string]string{ledger.MetaExternalJobID: string(handle.ExternalID)})
			return true
		case waitCancelled:
			r.cancel(ctx)
			return true
		case waitShutdown:
			return true
		case waitTimeout:
			timeoutErr := dErrors.New(dErrors.CodeTransientExternal, "forensic analysis stage timed out")
			attempt = r.doc.RecordAttempt(id.StageForensicAnalysis)
			if attempt > r.svc.cfg.StageMaxAttempts {
				r.fail(ctx, timeoutErr, nil)
				return true
			}
			// Abandon the stalled external job and resubmit in-stage.
			cancelCtx, done := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			_ = r.svc.forensics.Cancel(cancelCtx, handle)
			done()
			if !r.advance(ctx, id.StageForensicAnalysis, id.TriggerAutomated, "retrying after stage timeout", map[string]string{
				ledger.MetaAttempts:      strconv.Itoa(attempt),
				ledger.MetaError:         timeoutErr.Error(),
				ledger.MetaErrorCategory: string(dErrors.CodeTransientExternal),
			}) {
				return true
			}
		}
	}
}

type waitOutcome int

const (
	waitCompleted waitOutcome = iota
	waitFailed
	waitCancelled
	waitTimeout
	waitShutdown
)

type completionOutcome struct {
	forensics.CompletionEvent
	delivery string
}

// waitForCompletion is the suspended-poll wait: a poll ticker and the webhook
// completion channel race, first delivery wins. Cancellation and the stage
// wall-clock budget are observed here.
func (r *run) waitForCompletion(ctx context.Context, handle forensics.JobHandle) (waitOutcome, completionOutcome) {
	ticker := time.NewTicker(r.svc.forensics.PollInterval())
	defer ticker.Stop()
	deadline := time.NewTimer(r.svc.cfg.StageTimeout)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			return waitShutdown, completionOutcome{}
		case <-r.job.cancelled:
			return waitCancelled, completionOutcome{}
		case <-deadline.C:
			return waitTimeout, completionOutcome{}
		case event := <-r.job.completion:
			return classifyCompletion(event, "webhook")
		case <-ticker.C:
			event, done, err := r.svc.forensics.Poll(ctx, handle)
			if err != nil {
				// Poll errors are absorbed; the stage deadline bounds how
				// long a broken service can stall the job.
				r.svc.logger.WarnContext(ctx, "forensics poll failed",
					slog.String("external_job_id", string(handle.ExternalID)),
					slog.String("error", err.Error()))
				continue
			}
			if !done {
				continue
			}
			// A webhook may have landed between the poll request and its
			// response. First delivery wins: drain the channel so the
			// duplicate is dropped, not left for a later stage.
			select {
			case event = <-r.job.completion:
				return classifyCompletion(event, "webhook")
			default:
			}
			return classifyCompletion(event, "poll")
		}
	}
}

func classifyCompletion(event forensics.CompletionEvent, delivery string) (waitOutcome, completionOutcome) {
	outcome := completionOutcome{CompletionEvent: event, delivery: delivery}
	if event.Status == forensics.JobCompleted && event.Result != nil {
		return waitCompleted, outcome
	}
	return waitFailed, outcome
}

func (r *run) anchorStage(ctx context.Context) (terminal bool) {
	for {
		if r.checkCancelled(ctx) {
			return true
		}
		attempt := r.doc.RecordAttempt(id.StageBlockchainVerification)

		stageCtx, cancelStage := context.WithTimeout(ctx, r.svc.cfg.StageTimeout)
		record, err := r.svc.anchor.Register(stageCtx, anchor.RegisterRequest{
			Hash:    r.doc.CanonicalHash,
			Pointer: r.doc.ID.String(),
		})
		cancelStage()

		if r.checkCancelled(ctx) {
			return true
		}
		if err != nil {
			if dErrors.IsRetryable(err) && attempt < r.svc.cfg.StageMaxAttempts {
				if !r.advance(ctx, id.StageBlockchainVerification, id.TriggerAutomated, "retrying after transient anchor failure", map[string]string{
					ledger.MetaAttempts:      strconv.Itoa(attempt + 1),
					ledger.MetaError:         err.Error(),
					ledger.MetaErrorCategory: string(dErrors.CodeTransientExternal),
				}) {
					return true
				}
				continue
			}
			r.fail(ctx, err, nil)
			return true
		}

		if setErr := r.doc.SetAnchorRecord(document.AnchorRecord{
			TransactionHash: record.TransactionHash,
			BlockNumber:     record.BlockNumber,
			Network:         record.Network,
			Status:          document.AnchorStatus(record.Status),
			AnchoredAt:      record.AnchoredAt,
		}, time.Now()); setErr != nil {
			r.fail(ctx, setErr, nil)
			return true
		}
		return !r.advance(ctx, id.StageSignatureValidation, id.TriggerSystem, "", map[string]string{
			ledger.MetaTxHash: record.TransactionHash,
		})
	}
}

// localStages runs the purely local tail of the pipeline: signature check,
// metadata extraction, final validation.
func (r *run) localStages(ctx context.Context) (terminal bool) {
	if r.checkCancelled(ctx) {
		return true
	}
	r.doc.RecordAttempt(id.StageSignatureValidation)
	if r.doc.AnchorRecord == nil || !r.doc.AnchorRecord.Confirmed() {
		r.fail(ctx, dErrors.New(dErrors.CodeValidation, "anchor record is not confirmed"), nil)
		return true
	}
	if !r.advance(ctx, id.StageMetadataExtraction, id.TriggerSystem, "", nil) {
		return true
	}

	if r.checkCancelled(ctx) {
		return true
	}
	r.doc.RecordAttempt(id.StageMetadataExtraction)
	meta := map[string]string{}
	if r.result != nil && r.result.ModelVersion != "" {
		meta[ledger.MetaModelVersion] = r.result.ModelVersion
	}
	if !r.advance(ctx, id.StageFinalValidation, id.TriggerSystem, "", meta) {
		return true
	}

	if r.checkCancelled(ctx) {
		return true
	}
	r.doc.RecordAttempt(id.StageFinalValidation)
	if err := forensics.ValidateResult(r.result); err != nil {
		r.fail(ctx, err, nil)
		return true
	}
	return !r.advance(ctx, id.StageCompleted, id.TriggerSystem, "", nil)
}
