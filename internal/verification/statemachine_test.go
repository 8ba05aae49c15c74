package verification

import (
	"testing"

	"github.com/stretchr/testify/assert"

	id "docanchor/pkg/domain"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    id.Stage
		to      id.Stage
		trigger id.Trigger
		want    bool
	}{
		{"queued to preprocessing", id.StageQueued, id.StagePreprocessing, id.TriggerSystem, true},
		{"preprocessing to forensic", id.StagePreprocessing, id.StageForensicAnalysis, id.TriggerSystem, true},
		{"forensic to blockchain needs verification result", id.StageForensicAnalysis, id.StageBlockchainVerification, id.TriggerVerificationResult, true},
		{"forensic to blockchain rejects system trigger", id.StageForensicAnalysis, id.StageBlockchainVerification, id.TriggerSystem, false},
		{"blockchain to signature", id.StageBlockchainVerification, id.StageSignatureValidation, id.TriggerSystem, true},
		{"final to completed", id.StageFinalValidation, id.StageCompleted, id.TriggerSystem, true},

		{"skip ahead rejected", id.StagePreprocessing, id.StageBlockchainVerification, id.TriggerSystem, false},
		{"backward rejected", id.StageBlockchainVerification, id.StageForensicAnalysis, id.TriggerSystem, false},

		{"same-stage retry automated", id.StageForensicAnalysis, id.StageForensicAnalysis, id.TriggerAutomated, true},
		{"same-stage retry manual rejected", id.StageForensicAnalysis, id.StageForensicAnalysis, id.TriggerManual, false},

		{"any stage may fail", id.StageQueued, id.StageFailed, id.TriggerSystem, true},
		{"fail on verification result", id.StageForensicAnalysis, id.StageFailed, id.TriggerVerificationResult, true},
		{"fail never manual", id.StageForensicAnalysis, id.StageFailed, id.TriggerManual, false},
		{"any stage may cancel manually", id.StageMetadataExtraction, id.StageCancelled, id.TriggerManual, true},
		{"cancel never automated", id.StageMetadataExtraction, id.StageCancelled, id.TriggerAutomated, false},

		{"failed reenters forensic on manual retry", id.StageFailed, id.StageForensicAnalysis, id.TriggerManual, true},
		{"failed reentry never automatic", id.StageFailed, id.StageForensicAnalysis, id.TriggerSystem, false},
		{"failed cannot reenter elsewhere", id.StageFailed, id.StagePreprocessing, id.TriggerManual, false},
		{"completed is final", id.StageCompleted, id.StagePreprocessing, id.TriggerSystem, false},
		{"cancelled is final", id.StageCancelled, id.StageForensicAnalysis, id.TriggerManual, false},
		{"terminal same-stage rejected", id.StageFailed, id.StageFailed, id.TriggerSystem, false},

		{"unknown stage rejected", id.Stage("warming_up"), id.StagePreprocessing, id.TriggerSystem, false},
		{"unknown trigger rejected", id.StageQueued, id.StagePreprocessing, id.Trigger("cron"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CanTransition(tc.from, tc.to, tc.trigger))
		})
	}
}
