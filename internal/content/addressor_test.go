package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"docanchor/internal/platform/logger"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

type AddressorSuite struct {
	suite.Suite
	addressor *Addressor
	uploader  id.UserID
}

func TestAddressorSuite(t *testing.T) {
	suite.Run(t, new(AddressorSuite))
}

func (s *AddressorSuite) SetupTest() {
	var err error
	s.addressor, err = NewAddressor(NewInMemoryIndex(), logger.Discard(), nil)
	s.Require().NoError(err)
	s.uploader = id.NewUserID()
}

func (s *AddressorSuite) TestHash_Deterministic() {
	data := []byte("the same bytes")
	s.Equal(s.addressor.Hash(data), s.addressor.Hash(data))
	s.NotEqual(s.addressor.Hash(data), s.addressor.Hash([]byte("different bytes")))
}

func (s *AddressorSuite) TestFindDuplicate() {
	ctx := context.Background()
	hash := s.addressor.Hash([]byte("receipt.pdf contents"))
	docID := id.NewDocumentID()

	s.Run("unclaimed content passes", func() {
		existing, err := s.addressor.FindDuplicate(ctx, s.uploader, hash)
		s.NoError(err)
		s.True(existing.IsZero())
	})

	s.Run("claimed content short-circuits with duplicate code", func() {
		s.Require().NoError(s.addressor.Claim(ctx, s.uploader, hash, docID))

		existing, err := s.addressor.FindDuplicate(ctx, s.uploader, hash)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeDuplicate))
		s.Equal(docID, existing)
	})

	s.Run("same content from another uploader passes", func() {
		existing, err := s.addressor.FindDuplicate(ctx, id.NewUserID(), hash)
		s.NoError(err)
		s.True(existing.IsZero())
	})
}

func (s *AddressorSuite) TestClaim_FirstWins() {
	ctx := context.Background()
	hash := s.addressor.Hash([]byte("contested bytes"))
	first := id.NewDocumentID()

	s.Require().NoError(s.addressor.Claim(ctx, s.uploader, hash, first))

	err := s.addressor.Claim(ctx, s.uploader, hash, id.NewDocumentID())
	s.Require().Error(err)

	existing, err := s.addressor.FindDuplicate(ctx, s.uploader, hash)
	s.Require().Error(err)
	s.Equal(first, existing)
}

func TestSniff(t *testing.T) {
	t.Run("png magic bytes", func(t *testing.T) {
		data := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("payload")...)
		fileType, err := Sniff(data)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fileType != TypePNG {
			t.Fatalf("expected png, got %s", fileType)
		}
	})

	t.Run("jpeg magic bytes", func(t *testing.T) {
		fileType, err := Sniff([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if fileType != TypeJPEG {
			t.Fatalf("expected jpeg, got %s", fileType)
		}
	})

	t.Run("empty file rejected", func(t *testing.T) {
		if _, err := Sniff(nil); !dErrors.HasCode(err, dErrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("unknown bytes rejected", func(t *testing.T) {
		if _, err := Sniff([]byte("plain text")); !dErrors.HasCode(err, dErrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})

	t.Run("corrupt pdf rejected", func(t *testing.T) {
		if _, err := Sniff([]byte("%PDF-1.7 garbage")); !dErrors.HasCode(err, dErrors.CodeValidation) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}
