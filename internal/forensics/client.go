package forensics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"docanchor/internal/platform/config"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// API is the forensics service surface the gateway drives.
type API interface {
	Submit(ctx context.Context, req SubmitRequest) (id.ExternalJobID, error)
	Status(ctx context.Context, jobID id.ExternalJobID) (PollState, error)
	Results(ctx context.Context, jobID id.ExternalJobID) (*Result, error)
	Cancel(ctx context.Context, jobID id.ExternalJobID) error
}

// Client is the HTTP implementation of API.
type Client struct {
	baseURL    string
	apiKey     string
	webhookURL string
	http       *http.Client
}

// NewClient constructs an HTTP forensics client.
func NewClient(cfg config.Forensics) *Client {
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		webhookURL: cfg.WebhookURL,
		http:       &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Submit posts the document for analysis. Failures are classified:
// network errors and 5xx are transient, 4xx are permanent.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (id.ExternalJobID, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", req.FileName)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
	}
	if _, err := part.Write(req.Content); err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
	}
	fields := map[string]string{
		"document_type": req.DocumentType,
		"analysis_type": req.AnalysisType,
		"priority":      string(req.Priority),
		"document_id":   req.DocumentID.String(),
	}
	if c.webhookURL != "" {
		fields["webhook_url"] = c.webhookURL
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
		}
	}
	if len(req.Metadata) > 0 {
		meta, err := json.Marshal(req.Metadata)
		if err != nil {
			return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
		}
		if err := writer.WriteField("metadata", string(meta)); err != nil {
			return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "build multipart request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", &body)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "build submit request", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeTransientExternal, "forensics submit failed", err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp, "forensics submit"); err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", dErrors.Wrap(dErrors.CodePermanentExternal, "forensics submit returned malformed response", err)
	}
	if out.JobID == "" {
		return "", dErrors.New(dErrors.CodePermanentExternal, "forensics submit returned no job id")
	}
	return id.ExternalJobID(out.JobID), nil
}

// Status fetches the current job state.
func (c *Client) Status(ctx context.Context, jobID id.ExternalJobID) (PollState, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/jobs/%s/status", c.baseURL, jobID))
	if err != nil {
		return PollState{}, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, "forensics status"); err != nil {
		return PollState{}, err
	}
	var out struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PollState{}, dErrors.Wrap(dErrors.CodePermanentExternal, "forensics status returned malformed response", err)
	}
	return PollState{Status: JobStatus(out.Status), Progress: out.Progress, Message: out.Message}, nil
}

// Results fetches and normalizes the completed job's scores.
func (c *Client) Results(ctx context.Context, jobID id.ExternalJobID) (*Result, error) {
	resp, err := c.get(ctx, fmt.Sprintf("%s/jobs/%s/results", c.baseURL, jobID))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := classifyStatus(resp, "forensics results"); err != nil {
		return nil, err
	}
	var out wireResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, dErrors.Wrap(dErrors.CodePermanentExternal, "forensics results returned malformed response", err)
	}
	return out.toResult(), nil
}

// Cancel asks the service to abandon the job.
func (c *Client) Cancel(ctx context.Context, jobID id.ExternalJobID) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID), nil)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "build cancel request", err)
	}
	c.authorize(httpReq)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeTransientExternal, "forensics cancel failed", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return classifyStatus(resp, "forensics cancel")
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build forensics request", err)
	}
	c.authorize(httpReq)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTransientExternal, "forensics request failed", err)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// classifyStatus maps HTTP status classes onto the error taxonomy. 2xx is
// nil, 5xx is transient, everything else is permanent.
func classifyStatus(resp *http.Response, op string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return dErrors.New(dErrors.CodeTransientExternal, fmt.Sprintf("%s returned %d", op, resp.StatusCode))
	default:
		return dErrors.New(dErrors.CodePermanentExternal, fmt.Sprintf("%s returned %d", op, resp.StatusCode))
	}
}
