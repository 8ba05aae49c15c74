package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	dErrors "docanchor/pkg/domain-errors"
)

// ContentHash is the canonical, content-derived identifier of a document:
// the lowercase hex encoding of the SHA-256 of its raw bytes. It is the key
// used for deduplication and on-chain anchoring.
type ContentHash string

const contentHashHexLen = sha256.Size * 2

// HashBytes computes the canonical hash over raw document bytes.
func HashBytes(data []byte) ContentHash {
	sum := sha256.Sum256(data)
	return ContentHash(hex.EncodeToString(sum[:]))
}

// ParseContentHash validates a caller-supplied canonical hash. Uppercase hex
// is accepted and normalized so external systems that shout are still equal
// to our own lowercase encoding.
func ParseContentHash(raw string) (ContentHash, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if len(normalized) != contentHashHexLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "canonical hash must be 64 hex characters")
	}
	if _, err := hex.DecodeString(normalized); err != nil {
		return "", dErrors.Wrap(dErrors.CodeInvalidInput, "canonical hash is not valid hex", err)
	}
	return ContentHash(normalized), nil
}

func (h ContentHash) String() string { return string(h) }

// IsZero reports whether the hash is unset.
func (h ContentHash) IsZero() bool { return h == "" }
