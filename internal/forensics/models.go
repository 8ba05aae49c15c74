// Package forensics wraps the external AI-forensics analysis service:
// submit with retry, poll, webhook ingestion, and result validation.
package forensics

import (
	"math"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// JobStatus is the analysis job lifecycle as reported by the service.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// JobHandle references a submitted analysis job.
type JobHandle struct {
	ExternalID id.ExternalJobID
	DocumentID id.DocumentID
}

// Result is a validated analysis outcome. Scores are integer percentages.
type Result struct {
	AuthenticityScore int    `json:"authenticity_score"`
	TamperingScore    int    `json:"tampering_score"`
	ConfidenceScore   int    `json:"confidence_score"`
	Flags             []Flag `json:"flags,omitempty"`
	ModelVersion      string `json:"model_version,omitempty"`
}

// Flag is one named detail check from the analysis model, e.g.
// font_consistency, pixel_analysis, compression_artifacts.
type Flag struct {
	Name   string `json:"name"`
	Detail string `json:"detail,omitempty"`
}

// PollState is one observation of a job via the status endpoint.
type PollState struct {
	Status   JobStatus
	Progress int
	Result   *Result
	Message  string
}

// CompletionEvent is the normalized completion signal, whether it arrived
// via poll or webhook.
type CompletionEvent struct {
	ExternalID   id.ExternalJobID
	Status       JobStatus
	Result       *Result
	ErrorMessage string
}

// SubmitRequest carries everything the analyze endpoint needs.
type SubmitRequest struct {
	DocumentID   id.DocumentID
	FileName     string
	Content      []byte
	DocumentType string
	AnalysisType string
	Priority     id.Priority
	Metadata     map[string]string
}

// wireResult is the service's result shape: scores are floats in [0,1].
type wireResult struct {
	AuthenticityScore    float64 `json:"authenticity_score"`
	TamperingProbability float64 `json:"tampering_probability"`
	ConfidenceScore      float64 `json:"confidence_score"`
	Flags                []Flag  `json:"flags"`
	ModelVersion         string  `json:"model_version"`
}

func (w wireResult) toResult() *Result {
	return &Result{
		AuthenticityScore: int(math.Round(w.AuthenticityScore * 100)),
		TamperingScore:    int(math.Round(w.TamperingProbability * 100)),
		ConfidenceScore:   int(math.Round(w.ConfidenceScore * 100)),
		Flags:             w.Flags,
		ModelVersion:      w.ModelVersion,
	}
}

// ValidateResult rejects results with any score outside [0,100]. A result
// that fails validation fails the stage: the model contract was broken.
func ValidateResult(result *Result) error {
	if result == nil {
		return dErrors.New(dErrors.CodeValidation, "analysis result is missing")
	}
	for _, score := range []struct {
		name  string
		value int
	}{
		{"authenticity_score", result.AuthenticityScore},
		{"tampering_score", result.TamperingScore},
		{"confidence_score", result.ConfidenceScore},
	} {
		if score.value < 0 || score.value > 100 {
			return dErrors.New(dErrors.CodeValidation, "analysis "+score.name+" out of range")
		}
	}
	return nil
}
