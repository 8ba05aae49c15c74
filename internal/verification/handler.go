package verification

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"docanchor/internal/forensics"
	"docanchor/internal/ledger"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
	"docanchor/pkg/platform/httputil"
)

const maxUploadBytes = 64 << 20

// Handler exposes the orchestrator over HTTP.
type Handler struct {
	service  *Service
	forensic *forensics.Gateway
	logger   *slog.Logger
}

// NewHandler constructs the verification handler.
func NewHandler(service *Service, forensic *forensics.Gateway, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, forensic: forensic, logger: logger}
}

// Register mounts the verification routes.
func (h *Handler) Register(r chi.Router) {
	r.Route("/verifications", func(r chi.Router) {
		r.Post("/", h.start)
		r.Route("/{documentID}", func(r chi.Router) {
			r.Get("/", h.progress)
			r.Get("/history", h.history)
			r.Post("/cancel", h.cancel)
			r.Post("/retry", h.retry)
		})
	})
	r.Post("/documents/{documentID}/revoke", h.revoke)
	r.Post("/webhooks/forensics", h.forensicsWebhook)
}

type startResponse struct {
	JobID        id.JobID      `json:"job_id"`
	DocumentID   id.DocumentID `json:"document_id"`
	InitialStage id.Stage      `json:"initial_stage"`
}

type duplicateResponse struct {
	Error              string        `json:"error"`
	ErrorDescription   string        `json:"error_description"`
	ExistingDocumentID id.DocumentID `json:"existing_document_id"`
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "expected multipart form upload", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "file part is required", err))
		return
	}
	defer file.Close()
	bytes, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "failed to read file part", err))
		return
	}
	if len(bytes) > maxUploadBytes {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "file exceeds upload limit"))
		return
	}

	orgID, err := id.ParseOrganizationID(r.FormValue("organization_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	uploaderID, err := id.ParseUserID(r.FormValue("uploader_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	priority, err := id.ParsePriority(r.FormValue("priority"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req := StartRequest{
		OrganizationID: orgID,
		UploaderID:     uploaderID,
		FileName:       header.Filename,
		DocumentType:   r.FormValue("document_type"),
		Content:        bytes,
		Priority:       priority,
	}
	if raw := r.FormValue("document_id"); raw != "" {
		docID, err := id.ParseDocumentID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		req.DocumentID = docID
	}

	resp, err := h.service.Submit(r.Context(), req)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeDuplicate) {
			httputil.WriteJSON(w, http.StatusConflict, duplicateResponse{
				Error:              string(dErrors.CodeDuplicate),
				ErrorDescription:   dErrors.MessageOf(err),
				ExistingDocumentID: resp.DocumentID,
			})
			return
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startResponse{
		JobID:        resp.JobID,
		DocumentID:   resp.DocumentID,
		InitialStage: resp.InitialStage,
	})
}

// progressResponse wraps the projection with the verification summary the
// status-poll consumers expect.
type progressResponse struct {
	VerificationID  id.DocumentID               `json:"verification_id"`
	Status          id.Status                   `json:"status"`
	ConfidenceScore *int                        `json:"confidence_score,omitempty"`
	Progress        ledger.VerificationProgress `json:"progress"`
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	progress := ledger.Project(docID, events)
	resp := progressResponse{
		VerificationID: docID,
		Status:         progress.Status,
		Progress:       progress,
	}
	// The confidence score rides on the forensic completion event.
	for i := len(events) - 1; i >= 0; i-- {
		if raw, ok := events[i].Metadata[ledger.MetaConfidence]; ok {
			if score, err := strconv.Atoi(raw); err == nil {
				resp.ConfidenceScore = &score
			}
			break
		}
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

type historyEntry struct {
	PreviousStage id.Stage          `json:"previous_stage"`
	NewStage      id.Stage          `json:"new_stage"`
	Trigger       id.Trigger        `json:"trigger"`
	Reason        string            `json:"reason,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	OccurredAt    string            `json:"occurred_at"`
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	events, err := h.service.History(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	entries := make([]historyEntry, 0, len(events))
	for _, event := range events {
		entries = append(entries, historyEntry{
			PreviousStage: event.PreviousStage,
			NewStage:      event.NewStage,
			Trigger:       event.Trigger,
			Reason:        event.Reason,
			Metadata:      event.Metadata,
			OccurredAt:    event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"document_id": docID,
		"events":      entries,
	})
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Cancel(r.Context(), docID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func (h *Handler) retry(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	resp, err := h.service.Retry(r.Context(), docID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, startResponse{
		JobID:        resp.JobID,
		DocumentID:   resp.DocumentID,
		InitialStage: resp.InitialStage,
	})
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	docID, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.Revoke(r.Context(), docID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *Handler) forensicsWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeBadRequest, "failed to read webhook body", err))
		return
	}
	event, err := h.forensic.IngestWebhook(r.Context(), r.Header.Get("Authorization"), payload)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// Stale and duplicate deliveries are dropped inside; the webhook always
	// gets a 200 so the service does not redeliver.
	h.service.HandleForensicsCompletion(r.Context(), event)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (id.DocumentID, bool) {
	docID, err := id.ParseDocumentID(chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.DocumentID{}, false
	}
	return docID, true
}
