package content

import (
	"context"
	"sync"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// InMemoryIndex is the development and test duplicate index.
type InMemoryIndex struct {
	mu      sync.RWMutex
	entries map[indexKey]id.DocumentID
}

type indexKey struct {
	uploader id.UserID
	hash     id.ContentHash
}

// NewInMemoryIndex constructs an empty index.
func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{entries: make(map[indexKey]id.DocumentID)}
}

func (i *InMemoryIndex) Lookup(_ context.Context, uploaderID id.UserID, hash id.ContentHash) (id.DocumentID, bool, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	docID, ok := i.entries[indexKey{uploader: uploaderID, hash: hash}]
	return docID, ok, nil
}

func (i *InMemoryIndex) Claim(_ context.Context, uploaderID id.UserID, hash id.ContentHash, docID id.DocumentID) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	key := indexKey{uploader: uploaderID, hash: hash}
	if existing, ok := i.entries[key]; ok {
		return dErrors.New(dErrors.CodeDuplicate, "content already claimed by document "+existing.String())
	}
	i.entries[key] = docID
	return nil
}
