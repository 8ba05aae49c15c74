package anchor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"docanchor/internal/platform/config"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

func newChainServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(config.Anchor{
		BaseURL:        server.URL,
		IssuerKey:      "issuer-key",
		Network:        "testnet",
		RequestTimeout: time.Second,
	})
}

func TestClient_RegisterDocument(t *testing.T) {
	hash := id.HashBytes([]byte("doc"))

	t.Run("success decodes the record", func(t *testing.T) {
		client := newChainServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Issuer-Key") != "issuer-key" {
				t.Errorf("missing issuer key header")
			}
			var body map[string]string
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			if body["canonical_hash"] != hash.String() {
				t.Errorf("unexpected hash %q", body["canonical_hash"])
			}
			json.NewEncoder(w).Encode(Record{TransactionHash: "0xabc", Status: RecordConfirmed})
		})
		record, err := client.RegisterDocument(context.Background(), RegisterRequest{Hash: hash, Pointer: "doc/1"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if record.TransactionHash != "0xabc" {
			t.Fatalf("unexpected record %+v", record)
		}
	})

	t.Run("conflict maps to conflict code", func(t *testing.T) {
		client := newChainServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		})
		_, err := client.RegisterDocument(context.Background(), RegisterRequest{Hash: hash})
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			t.Fatalf("expected conflict, got %v", err)
		}
	})

	t.Run("5xx maps to transient", func(t *testing.T) {
		client := newChainServer(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})
		_, err := client.RegisterDocument(context.Background(), RegisterRequest{Hash: hash})
		if !dErrors.IsRetryable(err) {
			t.Fatalf("expected transient, got %v", err)
		}
	})
}

func TestClient_VerifyDocument_NotFound(t *testing.T) {
	client := newChainServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	result, err := client.VerifyDocument(context.Background(), id.HashBytes([]byte("doc")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Exists {
		t.Fatal("expected exists=false for 404")
	}
}

func TestClient_RevokeDocument_StatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		code   dErrors.Code
	}{
		{"forbidden is authorization", http.StatusForbidden, dErrors.CodeAuthorization},
		{"missing is not found", http.StatusNotFound, dErrors.CodeNotFound},
		{"5xx is transient", http.StatusInternalServerError, dErrors.CodeTransientExternal},
		{"other 4xx is permanent", http.StatusBadRequest, dErrors.CodePermanentExternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newChainServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			err := client.RevokeDocument(context.Background(), id.HashBytes([]byte("doc")))
			if !dErrors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}
