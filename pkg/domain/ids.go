// Package domain holds the typed identifiers shared across the pipeline.
// IDs are distinct types over uuid.UUID so a DocumentID can never be passed
// where a JobID is expected.
package domain

import (
	"github.com/google/uuid"

	dErrors "docanchor/pkg/domain-errors"
)

// DocumentID identifies a document aggregate.
type DocumentID uuid.UUID

// JobID identifies one verification pipeline run.
type JobID uuid.UUID

// OrganizationID identifies the owning organization of a document.
type OrganizationID uuid.UUID

// UserID identifies the uploader of a document.
type UserID uuid.UUID

// ExternalJobID is the identifier issued by the forensics service for a
// submitted analysis job. It is opaque to us; no UUID guarantee.
type ExternalJobID string

func (d DocumentID) String() string     { return uuid.UUID(d).String() }
func (j JobID) String() string          { return uuid.UUID(j).String() }
func (o OrganizationID) String() string { return uuid.UUID(o).String() }
func (u UserID) String() string         { return uuid.UUID(u).String() }

// IsZero reports whether the ID is the nil UUID.
func (d DocumentID) IsZero() bool     { return uuid.UUID(d) == uuid.Nil }
func (j JobID) IsZero() bool          { return uuid.UUID(j) == uuid.Nil }
func (o OrganizationID) IsZero() bool { return uuid.UUID(o) == uuid.Nil }
func (u UserID) IsZero() bool         { return uuid.UUID(u) == uuid.Nil }

// NewDocumentID returns a fresh random DocumentID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

// NewJobID returns a fresh random JobID.
func NewJobID() JobID { return JobID(uuid.New()) }

// NewOrganizationID returns a fresh random OrganizationID.
func NewOrganizationID() OrganizationID { return OrganizationID(uuid.New()) }

// NewUserID returns a fresh random UserID.
func NewUserID() UserID { return UserID(uuid.New()) }

// IDs marshal as their canonical string form in JSON and text.
func (d DocumentID) MarshalText() ([]byte, error)     { return []byte(d.String()), nil }
func (j JobID) MarshalText() ([]byte, error)          { return []byte(j.String()), nil }
func (o OrganizationID) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
func (u UserID) MarshalText() ([]byte, error)         { return []byte(u.String()), nil }

func (d *DocumentID) UnmarshalText(raw []byte) error {
	parsed, err := ParseDocumentID(string(raw))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (j *JobID) UnmarshalText(raw []byte) error {
	parsed, err := ParseJobID(string(raw))
	if err != nil {
		return err
	}
	*j = parsed
	return nil
}

func (o *OrganizationID) UnmarshalText(raw []byte) error {
	parsed, err := ParseOrganizationID(string(raw))
	if err != nil {
		return err
	}
	*o = parsed
	return nil
}

func (u *UserID) UnmarshalText(raw []byte) error {
	parsed, err := ParseUserID(string(raw))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// parseUUID enforces the shared invariant: IDs must be valid, non-nil UUIDs.
func parseUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid id format", err)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil uuid")
	}
	return parsed, nil
}

// ParseDocumentID parses and validates a DocumentID from its string form.
func ParseDocumentID(raw string) (DocumentID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return DocumentID{}, err
	}
	return DocumentID(parsed), nil
}

// ParseJobID parses and validates a JobID from its string form.
func ParseJobID(raw string) (JobID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return JobID{}, err
	}
	return JobID(parsed), nil
}

// ParseOrganizationID parses and validates an OrganizationID from its string form.
func ParseOrganizationID(raw string) (OrganizationID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return OrganizationID{}, err
	}
	return OrganizationID(parsed), nil
}

// ParseUserID parses and validates a UserID from its string form.
func ParseUserID(raw string) (UserID, error) {
	parsed, err := parseUUID(raw)
	if err != nil {
		return UserID{}, err
	}
	return UserID(parsed), nil
}
