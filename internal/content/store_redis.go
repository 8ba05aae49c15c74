package content

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"docanchor/internal/platform/redis"
	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

// RedisIndex is the shared duplicate index for multi-instance deployments.
// Entries never expire: duplicate detection must hold for the lifetime of
// the document, so the index is a permanent keyspace.
type RedisIndex struct {
	client *redis.Client
}

// NewRedisIndex constructs a Redis-backed duplicate index.
func NewRedisIndex(client *redis.Client) *RedisIndex {
	return &RedisIndex{client: client}
}

func indexRedisKey(uploaderID id.UserID, hash id.ContentHash) string {
	return fmt.Sprintf("content:dup:%s:%s", uploaderID.String(), hash.String())
}

func (i *RedisIndex) Lookup(ctx context.Context, uploaderID id.UserID, hash id.ContentHash) (id.DocumentID, bool, error) {
	raw, err := i.client.Get(ctx, indexRedisKey(uploaderID, hash)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return id.DocumentID{}, false, nil
		}
		return id.DocumentID{}, false, fmt.Errorf("duplicate index get: %w", err)
	}
	docID, err := id.ParseDocumentID(raw)
	if err != nil {
		return id.DocumentID{}, false, fmt.Errorf("corrupt duplicate index entry: %w", err)
	}
	return docID, true, nil
}

func (i *RedisIndex) Claim(ctx context.Context, uploaderID id.UserID, hash id.ContentHash, docID id.DocumentID) error {
	// SETNX keeps the first claim under concurrent uploads of the same bytes.
	claimed, err := i.client.SetNX(ctx, indexRedisKey(uploaderID, hash), docID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("duplicate index setnx: %w", err)
	}
	if !claimed {
		return dErrors.New(dErrors.CodeDuplicate, "content already claimed for uploader "+uploaderID.String())
	}
	return nil
}
