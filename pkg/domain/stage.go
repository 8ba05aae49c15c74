package domain

import dErrors "docanchor/pkg/domain-errors"

// Stage is one discrete phase of the verification pipeline. The enum is
// closed: stages only move forward along the ordered list or into a terminal
// stage, never backward except via an explicit same-stage retry.
type Stage string

const (
	StageQueued                 Stage = "queued"
	StagePreprocessing          Stage = "preprocessing"
	StageForensicAnalysis       Stage = "forensic_analysis"
	StageBlockchainVerification Stage = "blockchain_verification"
	StageSignatureValidation    Stage = "signature_validation"
	StageMetadataExtraction     Stage = "metadata_extraction"
	StageFinalValidation        Stage = "final_validation"
	StageCompleted              Stage = "completed"
	StageFailed                 Stage = "failed"
	StageCancelled              Stage = "cancelled"
)

// orderedStages is the forward path. Terminal stages sit past the end of the
// ordered path and are reachable from anywhere.
var orderedStages = []Stage{
	StageQueued,
	StagePreprocessing,
	StageForensicAnalysis,
	StageBlockchainVerification,
	StageSignatureValidation,
	StageMetadataExtraction,
	StageFinalValidation,
}

var stageIndex = func() map[Stage]int {
	m := make(map[Stage]int, len(orderedStages))
	for i, s := range orderedStages {
		m[s] = i
	}
	return m
}()

// OrderedStages returns the non-terminal pipeline path in order.
func OrderedStages() []Stage {
	out := make([]Stage, len(orderedStages))
	copy(out, orderedStages)
	return out
}

// Index returns the position of a non-terminal stage on the ordered path and
// whether the stage is on that path at all.
func (s Stage) Index() (int, bool) {
	i, ok := stageIndex[s]
	return i, ok
}

// Terminal reports whether the stage ends the pipeline.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// Valid reports whether s is a defined stage.
func (s Stage) Valid() bool {
	if s.Terminal() {
		return true
	}
	_, ok := stageIndex[s]
	return ok
}

// ParseStage validates a caller-supplied stage name.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown stage: "+raw)
	}
	return s, nil
}

// Status is the coarse verification status projected onto the document.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// StatusFor derives the coarse status from a stage.
func StatusFor(s Stage) Status {
	switch s {
	case StageQueued:
		return StatusPending
	case StageCompleted:
		return StatusCompleted
	case StageFailed:
		return StatusFailed
	case StageCancelled:
		return StatusCancelled
	default:
		return StatusInProgress
	}
}

// Trigger identifies what caused a stage transition.
type Trigger string

const (
	TriggerManual             Trigger = "manual"
	TriggerSystem             Trigger = "system"
	TriggerAutomated          Trigger = "automated"
	TriggerVerificationResult Trigger = "verification_result"
	TriggerScheduled          Trigger = "scheduled"
)

// Valid reports whether t is a defined trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerSystem, TriggerAutomated, TriggerVerificationResult, TriggerScheduled:
		return true
	}
	return false
}
