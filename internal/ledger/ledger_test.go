package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"docanchor/internal/platform/logger"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

type LedgerSuite struct {
	suite.Suite
	store  *InMemoryStore
	ledger *Ledger
	docID  id.DocumentID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = NewInMemoryStore()
	var err error
	s.ledger, err = New(s.store, nil, logger.Discard(), nil)
	s.Require().NoError(err)
	s.docID = id.NewDocumentID()
}

func (s *LedgerSuite) append(from, to id.Stage, trigger id.Trigger) error {
	return s.ledger.Append(context.Background(), StageEvent{
		DocumentID:    s.docID,
		PreviousStage: from,
		NewStage:      to,
		Trigger:       trigger,
	})
}

func (s *LedgerSuite) TestNew() {
	s.Run("nil store returns error", func() {
		_, err := New(nil, nil, logger.Discard(), nil)
		s.Error(err)
		s.Contains(err.Error(), "ledger store is required")
	})
}

func (s *LedgerSuite) TestAppend_ForwardOnly() {
	ctx := context.Background()

	s.Run("first event is accepted", func() {
		s.NoError(s.append(id.StageQueued, id.StageQueued, id.TriggerSystem))
	})

	s.Run("forward transition is accepted", func() {
		s.NoError(s.append(id.StageQueued, id.StagePreprocessing, id.TriggerSystem))
		s.NoError(s.append(id.StagePreprocessing, id.StageForensicAnalysis, id.TriggerAutomated))
	})

	s.Run("same-stage retry is accepted", func() {
		s.NoError(s.append(id.StageForensicAnalysis, id.StageForensicAnalysis, id.TriggerAutomated))
	})

	s.Run("backward transition is rejected with consistency error", func() {
		err := s.append(id.StageForensicAnalysis, id.StagePreprocessing, id.TriggerSystem)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConsistency))
	})

	s.Run("stale previous stage is rejected", func() {
		err := s.append(id.StageQueued, id.StageBlockchainVerification, id.TriggerSystem)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConsistency))
	})

	s.Run("terminal transition is accepted from any pipeline stage", func() {
		s.NoError(s.append(id.StageForensicAnalysis, id.StageFailed, id.TriggerVerificationResult))
	})

	s.Run("transitions out of failed require a manual trigger", func() {
		err := s.append(id.StageFailed, id.StageForensicAnalysis, id.TriggerSystem)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConsistency))

		s.NoError(s.append(id.StageFailed, id.StageForensicAnalysis, id.TriggerManual))
	})

	s.Run("rejected appends leave history untouched", func() {
		before, err := s.ledger.History(ctx, s.docID)
		s.Require().NoError(err)

		s.Error(s.append(id.StageForensicAnalysis, id.StageQueued, id.TriggerSystem))

		after, err := s.ledger.History(ctx, s.docID)
		s.Require().NoError(err)
		s.Len(after, len(before))
	})
}

func (s *LedgerSuite) TestAppend_SkippingForwardIsAllowed() {
	// Cancellation can jump multiple stages; monotonic non-decreasing is
	// the invariant, not single-step.
	s.NoError(s.append(id.StageQueued, id.StageQueued, id.TriggerSystem))
	s.NoError(s.append(id.StageQueued, id.StageForensicAnalysis, id.TriggerSystem))
}

func (s *LedgerSuite) TestAppend_Validation() {
	s.Run("missing document id rejected", func() {
		err := s.ledger.Append(context.Background(), StageEvent{
			PreviousStage: id.StageQueued,
			NewStage:      id.StagePreprocessing,
			Trigger:       id.TriggerSystem,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown stage rejected", func() {
		err := s.ledger.Append(context.Background(), StageEvent{
			DocumentID:    s.docID,
			PreviousStage: id.StageQueued,
			NewStage:      id.Stage("warp_drive"),
			Trigger:       id.TriggerSystem,
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unknown trigger rejected", func() {
		err := s.ledger.Append(context.Background(), StageEvent{
			DocumentID:    s.docID,
			PreviousStage: id.StageQueued,
			NewStage:      id.StagePreprocessing,
			Trigger:       id.Trigger("wishful_thinking"),
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *LedgerSuite) TestHistory_AppendOrder() {
	ctx := context.Background()
	s.NoError(s.append(id.StageQueued, id.StageQueued, id.TriggerSystem))
	s.NoError(s.append(id.StageQueued, id.StagePreprocessing, id.TriggerSystem))
	s.NoError(s.append(id.StagePreprocessing, id.StageForensicAnalysis, id.TriggerAutomated))

	history, err := s.ledger.History(ctx, s.docID)
	s.Require().NoError(err)
	s.Require().Len(history, 3)
	s.Equal(id.StageQueued, history[0].NewStage)
	s.Equal(id.StagePreprocessing, history[1].NewStage)
	s.Equal(id.StageForensicAnalysis, history[2].NewStage)
}

func (s *LedgerSuite) TestCurrentStage() {
	ctx := context.Background()

	s.Run("no history projects queued", func() {
		stage, err := s.ledger.CurrentStage(ctx, s.docID)
		s.Require().NoError(err)
		s.Equal(id.StageQueued, stage)
	})

	s.Run("latest event wins", func() {
		s.NoError(s.append(id.StageQueued, id.StageQueued, id.TriggerSystem))
		s.NoError(s.append(id.StageQueued, id.StagePreprocessing, id.TriggerSystem))

		stage, err := s.ledger.CurrentStage(ctx, s.docID)
		s.Require().NoError(err)
		s.Equal(id.StagePreprocessing, stage)
	})
}

func (s *LedgerSuite) TestAppend_TimestampDefaulted() {
	before := time.Now()
	s.NoError(s.append(id.StageQueued, id.StageQueued, id.TriggerSystem))

	history, err := s.ledger.History(context.Background(), s.docID)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.False(history[0].Timestamp.Before(before))
}
