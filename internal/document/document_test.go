package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

type DocumentSuite struct {
	suite.Suite
	store *InMemoryStore
	now   time.Time
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

func (s *DocumentSuite) SetupTest() {
	s.store = NewInMemoryStore()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *DocumentSuite) newDoc() *Document {
	return New(
		id.NewDocumentID(),
		id.HashBytes([]byte(id.NewDocumentID().String())),
		id.NewOrganizationID(),
		id.NewUserID(),
		s.now,
	)
}

func (s *DocumentSuite) TestNew() {
	doc := s.newDoc()
	s.Equal(id.StatusPending, doc.Status)
	s.Equal(id.StageQueued, doc.Stage)
	s.Empty(doc.Attempts)
}

func (s *DocumentSuite) TestAdvanceTo() {
	doc := s.newDoc()
	later := s.now.Add(time.Minute)

	doc.AdvanceTo(id.StageForensicAnalysis, later)
	s.Equal(id.StageForensicAnalysis, doc.Stage)
	s.Equal(id.StatusInProgress, doc.Status)
	s.Equal(later, doc.UpdatedAt)

	doc.AdvanceTo(id.StageFailed, later.Add(time.Minute))
	s.Equal(id.StatusFailed, doc.Status)
}

func (s *DocumentSuite) TestRecordAttempt() {
	doc := s.newDoc()
	s.Equal(1, doc.RecordAttempt(id.StageForensicAnalysis))
	s.Equal(2, doc.RecordAttempt(id.StageForensicAnalysis))
	s.Equal(1, doc.RecordAttempt(id.StagePreprocessing))
}

func (s *DocumentSuite) TestSetAnchorRecord() {
	doc := s.newDoc()

	s.Run("pending record can be replaced", func() {
		s.NoError(doc.SetAnchorRecord(AnchorRecord{TransactionHash: "0xabc", Status: AnchorPending}, s.now))
		s.NoError(doc.SetAnchorRecord(AnchorRecord{TransactionHash: "0xdef", Status: AnchorPending}, s.now))
		s.Equal("0xdef", doc.AnchorRecord.TransactionHash)
	})

	s.Run("confirmed record is immutable", func() {
		s.NoError(doc.SetAnchorRecord(AnchorRecord{TransactionHash: "0xdef", Status: AnchorConfirmed}, s.now))
		err := doc.SetAnchorRecord(AnchorRecord{TransactionHash: "0x999", Status: AnchorPending}, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConsistency))
		s.Equal("0xdef", doc.AnchorRecord.TransactionHash)
	})
}

func (s *DocumentSuite) TestStore_CreateAndGet() {
	ctx := context.Background()
	doc := s.newDoc()

	s.Require().NoError(s.store.Create(ctx, doc))

	got, err := s.store.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(doc.ID, got.ID)
	s.Equal(doc.CanonicalHash, got.CanonicalHash)

	s.Run("unknown id returns not found", func() {
		_, err := s.store.Get(ctx, id.NewDocumentID())
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DocumentSuite) TestStore_DuplicateHashPerUploader() {
	ctx := context.Background()
	first := s.newDoc()
	s.Require().NoError(s.store.Create(ctx, first))

	s.Run("same uploader same hash rejected", func() {
		dup := s.newDoc()
		dup.UploaderID = first.UploaderID
		dup.CanonicalHash = first.CanonicalHash
		err := s.store.Create(ctx, dup)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
	})

	s.Run("different uploader same hash allowed", func() {
		other := s.newDoc()
		other.CanonicalHash = first.CanonicalHash
		s.NoError(s.store.Create(ctx, other))
	})
}

func (s *DocumentSuite) TestStore_FindByHash() {
	ctx := context.Background()
	doc := s.newDoc()
	s.Require().NoError(s.store.Create(ctx, doc))

	found, err := s.store.FindByHash(ctx, doc.UploaderID, doc.CanonicalHash)
	s.Require().NoError(err)
	s.Require().NotNil(found)
	s.Equal(doc.ID, found.ID)

	miss, err := s.store.FindByHash(ctx, doc.UploaderID, id.HashBytes([]byte("other")))
	s.Require().NoError(err)
	s.Nil(miss)
}

func (s *DocumentSuite) TestStore_Update() {
	ctx := context.Background()
	doc := s.newDoc()
	s.Require().NoError(s.store.Create(ctx, doc))

	doc.AdvanceTo(id.StagePreprocessing, s.now.Add(time.Minute))
	doc.RecordAttempt(id.StagePreprocessing)
	s.Require().NoError(s.store.Update(ctx, doc))

	got, err := s.store.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(id.StagePreprocessing, got.Stage)
	s.Equal(1, got.Attempts[id.StagePreprocessing])

	s.Run("update of missing document returns not found", func() {
		ghost := s.newDoc()
		err := s.store.Update(ctx, ghost)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *DocumentSuite) TestStore_ReturnsCopies() {
	ctx := context.Background()
	doc := s.newDoc()
	s.Require().NoError(s.store.Create(ctx, doc))

	got, err := s.store.Get(ctx, doc.ID)
	s.Require().NoError(err)
	got.RecordAttempt(id.StageQueued)
	got.Stage = id.StageFailed

	again, err := s.store.Get(ctx, doc.ID)
	s.Require().NoError(err)
	s.Equal(id.StageQueued, again.Stage)
	s.Empty(again.Attempts)
}
