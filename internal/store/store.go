package store

import (
	"context"
	"errors"
	"time"

	"github.com/joescharf/issues/internal/models"
)

// ErrNotFound is returned when no issue matches the given id. Malformed ids
// are reported the same way.
var ErrNotFound = errors.New("issue not found")

// IssueListFilter specifies equality constraints for listing issues. Every
// non-empty field must match; a field holding several values matches any of
// them.
type IssueListFilter struct {
	Project    string
	IDs        []string
	Titles     []string
	Texts      []string
	CreatedBy  []string
	AssignedTo []string
	StatusText []string
	Open       []bool
	CreatedOn  []time.Time
	UpdatedOn  []time.Time
}

// Store defines the document store the issue handlers delegate to.
type Store interface {
	// CreateIssue assigns the id and both timestamps before inserting.
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id string) (*models.Issue, error)
	// ListIssues returns matches in insertion order.
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) error
	DeleteIssue(ctx context.Context, id string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
