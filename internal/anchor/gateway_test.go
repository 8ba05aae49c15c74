package anchor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docanchor/internal/platform/config"
	"docanchor/internal/platform/logger"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// fakeChain is an in-memory registry that can be scripted to fail. It
// counts register calls so tests can prove no double-registration happens.
type fakeChain struct {
	mu      sync.Mutex
	records map[id.ContentHash]*Record
	issuers map[id.ContentHash]string
	issuer  string

	registerCalls int
	verifyCalls   int

	// failNextRegister makes the next register call fail with this error
	// AFTER the write lands, simulating a lost confirmation.
	failNextRegister      error
	failBeforeWrite       bool
	failNextVerify        error
	revokeUnauthenticated bool
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		records: make(map[id.ContentHash]*Record),
		issuers: make(map[id.ContentHash]string),
		issuer:  "issuer-1",
	}
}

func (f *fakeChain) RegisterDocument(_ context.Context, req RegisterRequest) (*Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++

	if f.failNextRegister != nil && f.failBeforeWrite {
		err := f.failNextRegister
		f.failNextRegister = nil
		return nil, err
	}
	if _, exists := f.records[req.Hash]; exists {
		return nil, dErrors.New(dErrors.CodeConflict, "canonical hash already registered")
	}
	record := &Record{
		TransactionHash: "0x" + req.Hash.String()[:16],
		BlockNumber:     uint64(len(f.records) + 1),
		Network:         "testnet",
		Status:          RecordConfirmed,
		AnchoredAt:      time.Now(),
	}
	f.records[req.Hash] = record
	f.issuers[req.Hash] = f.issuer
	if f.failNextRegister != nil {
		err := f.failNextRegister
		f.failNextRegister = nil
		return nil, err
	}
	return record, nil
}

func (f *fakeChain) VerifyDocument(_ context.Context, hash id.ContentHash) (VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if f.failNextVerify != nil {
		err := f.failNextVerify
		f.failNextVerify = nil
		return VerifyResult{}, err
	}
	record, exists := f.records[hash]
	if !exists {
		return VerifyResult{Exists: false}, nil
	}
	return VerifyResult{
		Exists:    true,
		IsActive:  record.Status == RecordConfirmed,
		Issuer:    f.issuers[hash],
		Timestamp: record.AnchoredAt,
		Record:    record,
	}, nil
}

func (f *fakeChain) RevokeDocument(_ context.Context, hash id.ContentHash) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeUnauthenticated {
		return dErrors.New(dErrors.CodeAuthorization, "revoke rejected: caller is not the issuer")
	}
	if _, exists := f.records[hash]; !exists {
		return dErrors.New(dErrors.CodeNotFound, "canonical hash is not registered")
	}
	delete(f.records, hash)
	return nil
}

type AnchorSuite struct {
	suite.Suite
	chain   *fakeChain
	gateway *Gateway
}

func TestAnchorSuite(t *testing.T) {
	suite.Run(t, new(AnchorSuite))
}

func (s *AnchorSuite) SetupTest() {
	s.chain = newFakeChain()
	var err error
	s.gateway, err = NewGateway(s.chain, config.Anchor{BatchLimit: 4}, logger.Discard(), nil)
	s.Require().NoError(err)
}

func (s *AnchorSuite) hash(seed string) id.ContentHash {
	return id.HashBytes([]byte(seed))
}

func (s *AnchorSuite) TestRegister_Success() {
	record, err := s.gateway.Register(context.Background(), RegisterRequest{Hash: s.hash("doc-1"), Pointer: "doc/1"})
	s.Require().NoError(err)
	s.Equal(RecordConfirmed, record.Status)
	s.NotEmpty(record.TransactionHash)
}

func (s *AnchorSuite) TestRegister_AlreadyRegisteredReturnsExisting() {
	ctx := context.Background()
	hash := s.hash("doc-1")

	first, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash, Pointer: "doc/1"})
	s.Require().NoError(err)

	second, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash, Pointer: "doc/1"})
	s.Require().NoError(err)
	s.Equal(first.TransactionHash, second.TransactionHash)
	s.Len(s.chain.records, 1)
}

func (s *AnchorSuite) TestRegister_AmbiguousFailureReconciles() {
	ctx := context.Background()
	hash := s.hash("doc-1")

	// Broadcast lands but the confirmation is lost.
	s.chain.failNextRegister = dErrors.New(dErrors.CodeTransientExternal, "confirmation timeout")

	record, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash, Pointer: "doc/1"})
	s.Require().NoError(err)
	s.Equal(RecordConfirmed, record.Status)

	// Exactly one register call hit the chain and verify was consulted
	// before any retry: never two records for the same hash.
	s.Equal(1, s.chain.registerCalls)
	s.Equal(1, s.chain.verifyCalls)
	s.Len(s.chain.records, 1)
}

func (s *AnchorSuite) TestRegister_AmbiguousFailureBeforeBroadcastRetries() {
	ctx := context.Background()
	hash := s.hash("doc-1")

	// Connection refused before the write: verify finds nothing, one retry.
	s.chain.failNextRegister = dErrors.New(dErrors.CodeTransientExternal, "connection refused")
	s.chain.failBeforeWrite = true

	record, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash, Pointer: "doc/1"})
	s.Require().NoError(err)
	s.NotNil(record)
	s.Equal(2, s.chain.registerCalls)
	s.Equal(1, s.chain.verifyCalls)
	s.Len(s.chain.records, 1)
}

func (s *AnchorSuite) TestRegister_PermanentFailureNotRetried() {
	s.chain.failNextRegister = dErrors.New(dErrors.CodePermanentExternal, "malformed hash")
	s.chain.failBeforeWrite = true

	_, err := s.gateway.Register(context.Background(), RegisterRequest{Hash: s.hash("doc-1")})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePermanentExternal))
	s.Equal(1, s.chain.registerCalls)
	s.Equal(0, s.chain.verifyCalls)
}

func (s *AnchorSuite) TestRegister_ReconciliationFailureSurfacesTransient() {
	s.chain.failNextRegister = dErrors.New(dErrors.CodeTransientExternal, "confirmation timeout")
	s.chain.failNextVerify = dErrors.New(dErrors.CodeTransientExternal, "verify timeout")

	_, err := s.gateway.Register(context.Background(), RegisterRequest{Hash: s.hash("doc-1")})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTransientExternal))
}

func (s *AnchorSuite) TestVerify() {
	ctx := context.Background()
	hash := s.hash("doc-1")

	s.Run("unregistered hash does not exist", func() {
		result, err := s.gateway.Verify(ctx, hash)
		s.Require().NoError(err)
		s.False(result.Exists)
	})

	s.Run("registered hash is active with issuer", func() {
		_, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash})
		s.Require().NoError(err)

		result, err := s.gateway.Verify(ctx, hash)
		s.Require().NoError(err)
		s.True(result.Exists)
		s.True(result.IsActive)
		s.Equal("issuer-1", result.Issuer)
	})
}

func (s *AnchorSuite) TestRevoke() {
	ctx := context.Background()
	hash := s.hash("doc-1")

	s.Run("unregistered hash is not found", func() {
		err := s.gateway.Revoke(ctx, hash)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("issuer can revoke", func() {
		_, err := s.gateway.Register(ctx, RegisterRequest{Hash: hash})
		s.Require().NoError(err)
		s.NoError(s.gateway.Revoke(ctx, hash))
	})

	s.Run("non-issuer is rejected with authorization error", func() {
		other := s.hash("doc-2")
		_, err := s.gateway.Register(ctx, RegisterRequest{Hash: other})
		s.Require().NoError(err)

		s.chain.revokeUnauthenticated = true
		err = s.gateway.Revoke(ctx, other)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAuthorization))
		s.False(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *AnchorSuite) TestRegisterBatch() {
	ctx := context.Background()
	reqs := make([]RegisterRequest, 10)
	for i := range reqs {
		reqs[i] = RegisterRequest{Hash: s.hash(string(rune('a' + i)))}
	}
	// One duplicate of the first item: resolved to the existing record, not
	// an error.
	reqs = append(reqs, RegisterRequest{Hash: reqs[0].Hash})

	results := s.gateway.RegisterBatch(ctx, reqs)
	s.Require().Len(results, 11)
	for _, result := range results {
		s.NoError(result.Err)
		s.NotNil(result.Record)
	}
	s.Len(s.chain.records, 10)
}
