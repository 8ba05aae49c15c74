package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanchor/internal/anchor"
	"docanchor/internal/content"
	"docanchor/internal/document"
	"docanchor/internal/forensics"
	"docanchor/internal/ledger"
	"docanchor/internal/platform/config"
	"docanchor/internal/platform/logger"
	"docanchor/internal/verification"
	verificationmetrics "docanchor/internal/verification/metrics"
	id "docanchor/pkg/domain"
)

type stubForensicsAPI struct{}

func (stubForensicsAPI) Submit(context.Context, forensics.SubmitRequest) (id.ExternalJobID, error) {
	return "ext-1", nil
}

func (stubForensicsAPI) Status(context.Context, id.ExternalJobID) (forensics.PollState, error) {
	return forensics.PollState{Status: forensics.JobProcessing}, nil
}

func (stubForensicsAPI) Results(context.Context, id.ExternalJobID) (*forensics.Result, error) {
	return nil, nil
}

func (stubForensicsAPI) Cancel(context.Context, id.ExternalJobID) error { return nil }

type stubChainAPI struct{}

func (stubChainAPI) RegisterDocument(context.Context, anchor.RegisterRequest) (*anchor.Record, error) {
	return &anchor.Record{Status: anchor.RecordConfirmed}, nil
}

func (stubChainAPI) VerifyDocument(context.Context, id.ContentHash) (anchor.VerifyResult, error) {
	return anchor.VerifyResult{}, nil
}

func (stubChainAPI) RevokeDocument(context.Context, id.ContentHash) error { return nil }

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	log := logger.Discard()

	stageLedger, err := ledger.New(ledger.NewInMemoryStore(), nil, log, nil)
	require.NoError(t, err)
	addressor, err := content.NewAddressor(content.NewInMemoryIndex(), log, nil)
	require.NoError(t, err)
	forensicsGateway, err := forensics.NewGateway(stubForensicsAPI{}, config.Forensics{}, log, nil)
	require.NoError(t, err)
	anchorGateway, err := anchor.NewGateway(stubChainAPI{}, config.Anchor{}, log, nil)
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	service, err := verification.New(config.Pipeline{},
		document.NewInMemoryStore(), stageLedger, addressor, forensicsGateway, anchorGateway,
		log, verificationmetrics.New(registry))
	require.NoError(t, err)

	return NewRouter(Deps{
		Verification: verification.NewHandler(service, forensicsGateway, log),
		Gatherer:     registry,
		Logger:       log,
		ReadyChecks:  checks,
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Readiness(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check reports unavailable", func(t *testing.T) {
		router := newTestRouter(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body struct {
			Checks map[string]string `json:"checks"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "ok", body.Checks["postgres"])
		assert.Contains(t, body.Checks["redis"], "connection refused")
	})
}

func TestRouter_Metrics(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "docanchor_pipeline_queue_depth"))
}

func TestRouter_VerificationRoutesMounted(t *testing.T) {
	router := newTestRouter(t, nil)

	t.Run("malformed document id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/verifications/not-a-uuid", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown document", func(t *testing.T) {
		rec := httptest.NewRecorder()
		target := "/api/v1/verifications/" + id.NewDocumentID().String()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("routes outside the api prefix are not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/verifications", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
