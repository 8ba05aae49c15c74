package ledger

import (
	"strconv"
	"time"

	id "docanchor/pkg/domain"
)

// VerificationProgress is the read-only snapshot surfaced to callers. It is
// derived entirely from ledger history and never mutated by consumers.
type VerificationProgress struct {
	DocumentID          id.DocumentID  `json:"document_id"`
	Stage               id.Stage       `json:"stage"`
	Status              id.Status      `json:"status"`
	ProgressPercent     int            `json:"progress_percent"`
	PerStageDetail      []StageDetail  `json:"per_stage_detail"`
	StartedAt           time.Time      `json:"started_at"`
	EstimatedCompletion *time.Time     `json:"estimated_completion,omitempty"`
	Error               *ProgressError `json:"error,omitempty"`
}

// StageDetail summarizes one stage's part in the run.
type StageDetail struct {
	Stage     id.Stage  `json:"stage"`
	Status    string    `json:"status"` // completed | active | pending | failed | cancelled
	EnteredAt time.Time `json:"entered_at,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// ProgressError carries the last recorded error. WillRetry distinguishes
// "transient, still in-stage" from a terminal failure.
type ProgressError struct {
	Message   string `json:"message"`
	Category  string `json:"category"`
	WillRetry bool   `json:"will_retry"`
}

var stagePercent = map[id.Stage]int{
	id.StageQueued:                 0,
	id.StagePreprocessing:          10,
	id.StageForensicAnalysis:       35,
	id.StageBlockchainVerification: 60,
	id.StageSignatureValidation:    75,
	id.StageMetadataExtraction:     85,
	id.StageFinalValidation:        95,
	id.StageCompleted:              100,
}

// Project folds a document's event history into a progress snapshot.
// An empty history projects a queued, pending document.
func Project(documentID id.DocumentID, history []StageEvent) VerificationProgress {
	progress := VerificationProgress{
		DocumentID: documentID,
		Stage:      id.StageQueued,
		Status:     id.StatusPending,
	}
	if len(history) == 0 {
		progress.PerStageDetail = pendingDetails(id.StageQueued)
		return progress
	}

	progress.StartedAt = history[0].Timestamp
	latest := history[len(history)-1]
	progress.Stage = latest.NewStage
	progress.Status = id.StatusFor(latest.NewStage)
	progress.ProgressPercent = percentFor(history, latest)
	progress.PerStageDetail = buildDetails(history, latest)
	progress.Error = lastError(history, latest)
	progress.EstimatedCompletion = estimate(history, latest)
	return progress
}

func percentFor(history []StageEvent, latest StageEvent) int {
	if pct, ok := stagePercent[latest.NewStage]; ok {
		return pct
	}
	// Failed or cancelled: progress freezes where the run stopped.
	if pct, ok := stagePercent[latest.PreviousStage]; ok {
		return pct
	}
	return 0
}

func buildDetails(history []StageEvent, latest StageEvent) []StageDetail {
	entered := make(map[id.Stage]time.Time)
	attempts := make(map[id.Stage]int)
	reasons := make(map[id.Stage]string)
	for _, event := range history {
		if _, seen := entered[event.NewStage]; !seen {
			entered[event.NewStage] = event.Timestamp
		}
		if raw, ok := event.Metadata[MetaAttempts]; ok {
			if n, err := strconv.Atoi(raw); err == nil && n > attempts[event.NewStage] {
				attempts[event.NewStage] = n
			}
		}
		if event.Reason != "" {
			reasons[event.NewStage] = event.Reason
		}
	}

	currentIdx := len(id.OrderedStages())
	if i, ok := latest.NewStage.Index(); ok {
		currentIdx = i
	} else if latest.NewStage.Terminal() && latest.NewStage != id.StageCompleted {
		// Failed or cancelled: the last pipeline stage reached is the
		// previous stage of the terminal event.
		if i, ok := latest.PreviousStage.Index(); ok {
			currentIdx = i
		}
	}

	details := make([]StageDetail, 0, len(id.OrderedStages()))
	for i, stage := range id.OrderedStages() {
		detail := StageDetail{
			Stage:     stage,
			EnteredAt: entered[stage],
			Attempts:  attempts[stage],
			Reason:    reasons[stage],
		}
		switch {
		case i < currentIdx:
			detail.Status = "completed"
		case i == currentIdx:
			detail.Status = stageDetailStatus(latest)
		default:
			detail.Status = "pending"
		}
		details = append(details, detail)
	}
	return details
}

func stageDetailStatus(latest StageEvent) string {
	switch latest.NewStage {
	case id.StageFailed:
		return "failed"
	case id.StageCancelled:
		return "cancelled"
	case id.StageCompleted:
		return "completed"
	default:
		return "active"
	}
}

func lastError(history []StageEvent, latest StageEvent) *ProgressError {
	for i := len(history) - 1; i >= 0; i-- {
		event := history[i]
		msg, hasErr := event.Metadata[MetaError]
		if !hasErr {
			continue
		}
		category := event.Metadata[MetaErrorCategory]
		return &ProgressError{
			Message:   msg,
			Category:  category,
			WillRetry: latest.NewStage != id.StageFailed && latest.NewStage != id.StageCancelled && category == "transient_external",
		}
	}
	return nil
}

// estimate projects a completion time from the average pace of stages
// finished so far. Only meaningful while the run is still in progress.
func estimate(history []StageEvent, latest StageEvent) *time.Time {
	if latest.NewStage.Terminal() {
		return nil
	}
	currentIdx, ok := latest.NewStage.Index()
	if !ok || currentIdx == 0 || len(history) < 2 {
		return nil
	}
	elapsed := latest.Timestamp.Sub(history[0].Timestamp)
	perStage := elapsed / time.Duration(currentIdx)
	remaining := len(id.OrderedStages()) - currentIdx
	eta := latest.Timestamp.Add(perStage * time.Duration(remaining))
	return &eta
}

func pendingDetails(current id.Stage) []StageDetail {
	details := make([]StageDetail, 0, len(id.OrderedStages()))
	for _, stage := range id.OrderedStages() {
		status := "pending"
		if stage == current {
			status = "active"
		}
		details = append(details, StageDetail{Stage: stage, Status: status})
	}
	return details
}
