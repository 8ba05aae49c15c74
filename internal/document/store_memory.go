package document

import (
	"context"
	"sync"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// InMemoryStore is the development and test store.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[id.DocumentID]*Document
	byHash map[hashKey]id.DocumentID
}

type hashKey struct {
	uploader id.UserID
	hash     id.ContentHash
}

// NewInMemoryStore constructs an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[id.DocumentID]*Document),
		byHash: make(map[hashKey]id.DocumentID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[doc.ID]; exists {
		return dErrors.New(dErrors.CodeDuplicate, "document already exists: "+doc.ID.String())
	}
	key := hashKey{uploader: doc.UploaderID, hash: doc.CanonicalHash}
	if existing, exists := s.byHash[key]; exists {
		return dErrors.New(dErrors.CodeDuplicate, "duplicate content for uploader, existing document "+existing.String())
	}
	s.byID[doc.ID] = doc.clone()
	s.byHash[key] = doc.ID
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, docID id.DocumentID) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.byID[docID]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found: "+docID.String())
	}
	return doc.clone(), nil
}

func (s *InMemoryStore) FindByHash(_ context.Context, uploaderID id.UserID, hash id.ContentHash) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docID, ok := s.byHash[hashKey{uploader: uploaderID, hash: hash}]
	if !ok {
		return nil, nil
	}
	doc, ok := s.byID[docID]
	if !ok {
		return nil, nil
	}
	return doc.clone(), nil
}

func (s *InMemoryStore) Update(_ context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[doc.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "document not found: "+doc.ID.String())
	}
	s.byID[doc.ID] = doc.clone()
	return nil
}
