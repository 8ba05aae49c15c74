//go:build integration

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docanchor/internal/ledger"
	id "docanchor/pkg/domain"
	"docanchor/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledger.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = ledger.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "stage_events"))
}

func event(docID id.DocumentID, from, to id.Stage, at time.Time) ledger.StageEvent {
	return ledger.StageEvent{
		DocumentID:    docID,
		PreviousStage: from,
		NewStage:      to,
		Trigger:       id.TriggerSystem,
		Timestamp:     at,
	}
}

func (s *PostgresStoreSuite) TestAppendAndHistoryOrder() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	base := time.Now().UTC().Truncate(time.Microsecond)

	first := event(docID, id.StageQueued, id.StagePreprocessing, base)
	second := event(docID, id.StagePreprocessing, id.StageForensicAnalysis, base.Add(time.Second))
	second.Trigger = id.TriggerAutomated
	second.Reason = "entered analysis"
	second.Metadata = map[string]string{ledger.MetaAttempts: "1", ledger.MetaExternalJobID: "fa-9"}

	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))

	history, err := s.store.History(ctx, docID)
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(id.StagePreprocessing, history[0].NewStage)
	s.Equal(id.StageForensicAnalysis, history[1].NewStage)
	s.Equal(id.TriggerAutomated, history[1].Trigger)
	s.Equal("entered analysis", history[1].Reason)
	s.Equal("fa-9", history[1].Metadata[ledger.MetaExternalJobID])
	s.WithinDuration(base, history[0].Timestamp, time.Millisecond)
}

func (s *PostgresStoreSuite) TestLatest() {
	ctx := context.Background()
	docID := id.NewDocumentID()
	base := time.Now().UTC()

	s.Run("empty history", func() {
		latest, err := s.store.Latest(ctx, docID)
		s.Require().NoError(err)
		s.Nil(latest)
	})

	s.Require().NoError(s.store.Append(ctx, event(docID, id.StageQueued, id.StagePreprocessing, base)))
	s.Require().NoError(s.store.Append(ctx, event(docID, id.StagePreprocessing, id.StageForensicAnalysis, base.Add(time.Second))))

	latest, err := s.store.Latest(ctx, docID)
	s.Require().NoError(err)
	s.Require().NotNil(latest)
	s.Equal(id.StageForensicAnalysis, latest.NewStage)
}

func (s *PostgresStoreSuite) TestHistoryIsolatedPerDocument() {
	ctx := context.Background()
	first := id.NewDocumentID()
	second := id.NewDocumentID()
	now := time.Now().UTC()

	s.Require().NoError(s.store.Append(ctx, event(first, id.StageQueued, id.StagePreprocessing, now)))
	s.Require().NoError(s.store.Append(ctx, event(second, id.StageQueued, id.StagePreprocessing, now)))
	s.Require().NoError(s.store.Append(ctx, event(second, id.StagePreprocessing, id.StageForensicAnalysis, now)))

	history, err := s.store.History(ctx, first)
	s.Require().NoError(err)
	s.Len(history, 1)
	s.Equal(first, history[0].DocumentID)
}
