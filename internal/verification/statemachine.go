// Package verification is the orchestrator: the state machine that sequences
// pipeline stages, drives the forensics and anchor gateways, applies retry
// and cancellation policy, and commits every transition to the stage ledger.
package verification

import (
	id "docanchor/pkg/domain"
)

// transition is one (from, to) edge of the pipeline state machine.
type transition struct {
	from id.Stage
	to   id.Stage
}

// allowedTriggers is the total transition table: every legal edge and the
// triggers that may drive it. Anything absent is illegal.
var allowedTriggers = map[transition][]id.Trigger{
	{id.StageQueued, id.StagePreprocessing}:                       {id.TriggerSystem},
	{id.StagePreprocessing, id.StageForensicAnalysis}:             {id.TriggerSystem},
	{id.StageForensicAnalysis, id.StageBlockchainVerification}:    {id.TriggerVerificationResult},
	{id.StageBlockchainVerification, id.StageSignatureValidation}: {id.TriggerSystem},
	{id.StageSignatureValidation, id.StageMetadataExtraction}:     {id.TriggerSystem},
	{id.StageMetadataExtraction, id.StageFinalValidation}:         {id.TriggerSystem},
	{id.StageFinalValidation, id.StageCompleted}:                  {id.TriggerSystem},
	{id.StageFailed, id.StageForensicAnalysis}:                    {id.TriggerManual},
}

// CanTransition reports whether the edge is legal under the given trigger.
// Beyond the table: any non-terminal stage may fail or be cancelled, and a
// non-terminal stage may retry in place.
func CanTransition(from, to id.Stage, trigger id.Trigger) bool {
	if !from.Valid() || !to.Valid() || !trigger.Valid() {
		return false
	}
	if !from.Terminal() {
		switch to {
		case id.StageFailed:
			return trigger == id.TriggerSystem || trigger == id.TriggerAutomated || trigger == id.TriggerVerificationResult
		case id.StageCancelled:
			return trigger == id.TriggerManual || trigger == id.TriggerSystem
		case from:
			// Same-stage retry.
			return trigger == id.TriggerAutomated || trigger == id.TriggerSystem
		}
	}
	for _, allowed := range allowedTriggers[transition{from: from, to: to}] {
		if trigger == allowed {
			return true
		}
	}
	return false
}
