package anchor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"docanchor/internal/platform/config"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// ChainAPI is the registry surface the gateway drives.
type ChainAPI interface {
	RegisterDocument(ctx context.Context, req RegisterRequest) (*Record, error)
	VerifyDocument(ctx context.Context, hash id.ContentHash) (VerifyResult, error)
	RevokeDocument(ctx context.Context, hash id.ContentHash) error
}

// Client is the HTTP implementation of ChainAPI.
type Client struct {
	baseURL   string
	issuerKey string
	network   string
	http      *http.Client
}

// NewClient constructs an HTTP registry client.
func NewClient(cfg config.Anchor) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		issuerKey: cfg.IssuerKey,
		network:   cfg.Network,
		http:      &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// RegisterDocument broadcasts a registration. The underlying ledger rejects
// duplicate keys, surfaced here as a conflict.
func (c *Client) RegisterDocument(ctx context.Context, req RegisterRequest) (*Record, error) {
	payload, err := json.Marshal(map[string]string{
		"canonical_hash": req.Hash.String(),
		"pointer":        req.Pointer,
		"network":        c.network,
	})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "marshal register request", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/registry/records", bytes.NewReader(payload))
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "build register request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		// Timeout or connection loss after broadcast: ambiguous, the write
		// may have landed.
		return nil, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor register failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, dErrors.New(dErrors.CodeConflict, "canonical hash already registered")
	case resp.StatusCode >= 500:
		return nil, dErrors.New(dErrors.CodeTransientExternal, fmt.Sprintf("anchor register returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return nil, dErrors.New(dErrors.CodePermanentExternal, fmt.Sprintf("anchor register returned %d", resp.StatusCode))
	}
	var record Record
	if err := json.NewDecoder(resp.Body).Decode(&record); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor register confirmation lost", err)
	}
	return &record, nil
}

// VerifyDocument checks the registry for a canonical hash.
func (c *Client) VerifyDocument(ctx context.Context, hash id.ContentHash) (VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/registry/records/%s", c.baseURL, hash.String()), nil)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeInternal, "build verify request", err)
	}
	c.authorize(httpReq)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor verify failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return VerifyResult{Exists: false}, nil
	case resp.StatusCode >= 500:
		return VerifyResult{}, dErrors.New(dErrors.CodeTransientExternal, fmt.Sprintf("anchor verify returned %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return VerifyResult{}, dErrors.New(dErrors.CodePermanentExternal, fmt.Sprintf("anchor verify returned %d", resp.StatusCode))
	}
	var result VerifyResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return VerifyResult{}, dErrors.Wrap(dErrors.CodeTransientExternal, "anchor verify returned malformed response", err)
	}
	return result, nil
}

// RevokeDocument revokes a registration. Only the original issuer may
// revoke; the contract layer enforces it and we surface the distinction.
func (c *Client) RevokeDocument(ctx context.Context, hash id.ContentHash) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/registry/records/%s", c.baseURL, hash.String()), nil)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeInternal, "build revoke request", err)
	}
	c.authorize(httpReq)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return dErrors.Wrap(dErrors.CodeTransientExternal, "anchor revoke failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return dErrors.New(dErrors.CodeAuthorization, "revoke rejected: caller is not the issuer")
	case resp.StatusCode == http.StatusNotFound:
		return dErrors.New(dErrors.CodeNotFound, "canonical hash is not registered")
	case resp.StatusCode >= 500:
		return dErrors.New(dErrors.CodeTransientExternal, fmt.Sprintf("anchor revoke returned %d", resp.StatusCode))
	default:
		return dErrors.New(dErrors.CodePermanentExternal, fmt.Sprintf("anchor revoke returned %d", resp.StatusCode))
	}
}

func (c *Client) authorize(req *http.Request) {
	if c.issuerKey != "" {
		req.Header.Set("X-Issuer-Key", c.issuerKey)
	}
}
