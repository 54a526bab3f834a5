// Package metadata manages the catalog records the portal exists for:
// titles, abstracts and keywords describing geospatial datasets, with a
// validation workflow. Geospatial semantics and dataset schema
// validation are out of scope; records are opaque descriptive rows.
package metadata

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("metadata: record not found")
	ErrInvalidInput = errors.New("metadata: invalid input")
)

// Status is the record validation workflow state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// ValidStatus reports whether s is a known workflow state.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusApproved, StatusRejected:
		return true
	default:
		return false
	}
}

// Record is a catalog entry describing one dataset.
type Record struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Abstract       string    `json:"abstract,omitempty"`
	Keywords       []string  `json:"keywords,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	OwnerID        string    `json:"owner_id"`
	Status         Status    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Update carries partial changes; nil fields are left untouched.
type Update struct {
	Title    *string
	Abstract *string
	Keywords []string
}

// Query filters a record search.
type Query struct {
	Keyword        string
	OrganizationID string
	OwnerID        string
	Status         Status
	Limit          int
	Offset         int
}

// Store is the persistence contract for records.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Find(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, upd Update) (*Record, error)
	SetStatus(ctx context.Context, id string, status Status) (*Record, error)
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, q Query) ([]*Record, error)
}
