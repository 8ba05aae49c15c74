package forensics

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// webhookPayload is the completion callback body the service posts.
type webhookPayload struct {
	JobID  string      `json:"job_id"`
	Status string      `json:"status"`
	Result *wireResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// IngestWebhook verifies the bearer token and parses the callback into a
// completion event. Webhook and poll are two delivery paths for the same
// event; idempotency is the orchestrator's job, this only authenticates and
// normalizes.
func (g *Gateway) IngestWebhook(ctx context.Context, authorization string, payload []byte) (CompletionEvent, error) {
	if err := g.verifyWebhookToken(authorization); err != nil {
		if g.metrics != nil {
			g.metrics.WebhookEvents.WithLabelValues("unauthorized").Inc()
		}
		return CompletionEvent{}, err
	}

	var body webhookPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		if g.metrics != nil {
			g.metrics.WebhookEvents.WithLabelValues("malformed").Inc()
		}
		return CompletionEvent{}, dErrors.Wrap(dErrors.CodeBadRequest, "malformed webhook payload", err)
	}
	if body.JobID == "" {
		return CompletionEvent{}, dErrors.New(dErrors.CodeBadRequest, "webhook payload missing job_id")
	}

	event := CompletionEvent{
		ExternalID:   id.ExternalJobID(body.JobID),
		Status:       JobStatus(body.Status),
		ErrorMessage: body.Error,
	}
	switch event.Status {
	case JobCompleted:
		if body.Result == nil {
			return CompletionEvent{}, dErrors.New(dErrors.CodeBadRequest, "completed webhook payload missing result")
		}
		result := body.Result.toResult()
		if err := ValidateResult(result); err != nil {
			// Delivered but broken: surface it as a failed completion so the
			// stage fails with the validation reason.
			event.Status = JobFailed
			event.ErrorMessage = err.Error()
		} else {
			event.Result = result
		}
	case JobFailed, JobCancelled:
	default:
		return CompletionEvent{}, dErrors.New(dErrors.CodeBadRequest, "webhook payload has non-terminal status "+body.Status)
	}

	if g.metrics != nil {
		g.metrics.WebhookEvents.WithLabelValues("accepted").Inc()
	}
	g.logger.InfoContext(ctx, "forensics webhook accepted",
		slog.String("external_job_id", body.JobID),
		slog.String("status", string(event.Status)))
	return event, nil
}

func (g *Gateway) verifyWebhookToken(authorization string) error {
	if !strings.HasPrefix(authorization, "Bearer ") {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook missing bearer token")
	}
	raw := strings.TrimPrefix(authorization, "Bearer ")
	if raw == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "webhook missing bearer token")
	}
	_, err := jwt.Parse(raw, func(token *jwt.Token) (any, error) {
		return []byte(g.cfg.WebhookSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return dErrors.Wrap(dErrors.CodeUnauthorized, "webhook token rejected", err)
	}
	return nil
}
