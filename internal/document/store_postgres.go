package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	id "docanchor/pkg/domain"
	dErrors "docanchor/pkg/domain-errors"
)

const pgUniqueViolation = "23505"

// PostgresStore persists documents in the documents table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore constructs a PostgreSQL-backed document store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, doc *Document) error {
	attempts, anchor, err := marshalJSONFields(doc)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO documents (id, canonical_hash, organization_id, uploader_id, status, stage, attempts, anchor_record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		doc.ID.String(),
		doc.CanonicalHash.String(),
		doc.OrganizationID.String(),
		doc.UploaderID.String(),
		string(doc.Status),
		string(doc.Stage),
		attempts,
		anchor,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return dErrors.Wrap(dErrors.CodeDuplicate, "document already exists", err)
		}
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, docID id.DocumentID) (*Document, error) {
	query := `
		SELECT id, canonical_hash, organization_id, uploader_id, status, stage, attempts, anchor_record, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, docID.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, dErrors.New(dErrors.CodeNotFound, "document not found: "+docID.String())
		}
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) FindByHash(ctx context.Context, uploaderID id.UserID, hash id.ContentHash) (*Document, error) {
	query := `
		SELECT id, canonical_hash, organization_id, uploader_id, status, stage, attempts, anchor_record, created_at, updated_at
		FROM documents
		WHERE uploader_id = $1 AND canonical_hash = $2
	`
	doc, err := scanDocument(s.db.QueryRowContext(ctx, query, uploaderID.String(), hash.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

func (s *PostgresStore) Update(ctx context.Context, doc *Document) error {
	attempts, anchor, err := marshalJSONFields(doc)
	if err != nil {
		return err
	}
	query := `
		UPDATE documents
		SET status = $2, stage = $3, attempts = $4, anchor_record = $5, updated_at = $6
		WHERE id = $1
	`
	result, err := s.db.ExecContext(ctx, query,
		doc.ID.String(),
		string(doc.Status),
		string(doc.Stage),
		attempts,
		anchor,
		doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows affected: %w", err)
	}
	if affected == 0 {
		return dErrors.New(dErrors.CodeNotFound, "document not found: "+doc.ID.String())
	}
	return nil
}

func marshalJSONFields(doc *Document) (attempts []byte, anchor any, err error) {
	counts := make(map[string]int, len(doc.Attempts))
	for stage, n := range doc.Attempts {
		counts[string(stage)] = n
	}
	attempts, err = json.Marshal(counts)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal document attempts: %w", err)
	}
	if doc.AnchorRecord == nil {
		return attempts, nil, nil
	}
	raw, err := json.Marshal(doc.AnchorRecord)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal anchor record: %w", err)
	}
	return attempts, raw, nil
}

func scanDocument(row *sql.Row) (*Document, error) {
	var (
		doc      Document
		rawID    string
		rawHash  string
		rawOrg   string
		rawUser  string
		status   string
		stage    string
		attempts []byte
		anchor   []byte
	)
	err := row.Scan(&rawID, &rawHash, &rawOrg, &rawUser, &status, &stage, &attempts, &anchor, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if doc.ID, err = id.ParseDocumentID(rawID); err != nil {
		return nil, fmt.Errorf("parse stored document id: %w", err)
	}
	if doc.CanonicalHash, err = id.ParseContentHash(rawHash); err != nil {
		return nil, fmt.Errorf("parse stored content hash: %w", err)
	}
	if doc.OrganizationID, err = id.ParseOrganizationID(rawOrg); err != nil {
		return nil, fmt.Errorf("parse stored organization id: %w", err)
	}
	if doc.UploaderID, err = id.ParseUserID(rawUser); err != nil {
		return nil, fmt.Errorf("parse stored uploader id: %w", err)
	}
	doc.Status = id.Status(status)
	doc.Stage = id.Stage(stage)

	counts := make(map[string]int)
	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &counts); err != nil {
			return nil, fmt.Errorf("unmarshal document attempts: %w", err)
		}
	}
	doc.Attempts = make(map[id.Stage]int, len(counts))
	for stage, n := range counts {
		doc.Attempts[id.Stage(stage)] = n
	}
	if len(anchor) > 0 {
		var record AnchorRecord
		if err := json.Unmarshal(anchor, &record); err != nil {
			return nil, fmt.Errorf("unmarshal anchor record: %w", err)
		}
		doc.AnchorRecord = &record
	}
	return &doc, nil
}
