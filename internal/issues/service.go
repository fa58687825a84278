// Package issues implements the create/list/update/delete contract for
// project-scoped issues on top of a store.Store.
package issues

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
)

// Wire names of issue fields.
const (
	FieldID         = "_id"
	FieldProject    = "project"
	FieldIssueTitle = "issue_title"
	FieldIssueText  = "issue_text"
	FieldCreatedBy  = "created_by"
	FieldAssignedTo = "assigned_to"
	FieldStatusText = "status_text"
	FieldOpen       = "open"
	FieldCreatedOn  = "created_on"
	FieldUpdatedOn  = "updated_on"
)

// Values holds request fields keyed by wire name. A key that is absent and a
// key holding "" are treated alike.
type Values map[string]string

// Service validates requests and delegates persistence to a store.
type Service struct {
	store store.Store
	now   func() time.Time
	log   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used to stamp updates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used for store failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service backed by st.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the issues of project matching every query constraint. It
// never returns nil; a query no issue can satisfy yields an empty slice.
func (s *Service) List(ctx context.Context, project string, query map[string][]string) ([]*models.Issue, error) {
	filter, ok := BuildFilter(project, query)
	if !ok {
		return []*models.Issue{}, nil
	}
	found, err := s.store.ListIssues(ctx, filter)
	if err != nil {
		return []*models.Issue{}, err
	}
	if found == nil {
		found = []*models.Issue{}
	}
	return found, nil
}

// Create validates and persists a new open issue in project.
func (s *Service) Create(ctx context.Context, project string, in Values) (*models.Issue, error) {
	title, text, by := in[FieldIssueTitle], in[FieldIssueText], in[FieldCreatedBy]
	if title == "" || text == "" || by == "" {
		return nil, fail(ErrMissingRequiredField, MsgRequiredFieldMissing, "", nil)
	}

	issue := &models.Issue{
		Project:    project,
		IssueTitle: title,
		IssueText:  text,
		CreatedBy:  by,
		AssignedTo: in[FieldAssignedTo],
		StatusText: in[FieldStatusText],
		Open:       true,
	}
	if err := s.store.CreateIssue(ctx, issue); err != nil {
		s.log.Warn("create issue failed", "project", project, "error", err)
		return nil, fail(ErrStorageWrite, MsgCouldNotSave, "", err)
	}
	return issue, nil
}

// Update merges the mutable fields of in into the issue named by in["_id"].
func (s *Service) Update(ctx context.Context, in Values) (Result, error) {
	id := in[FieldID]
	if id == "" {
		return Result{}, fail(ErrMissingID, MsgMissingID, "", nil)
	}

	patch, ok := buildPatch(in)
	if !ok {
		return Result{}, fail(ErrNoUpdateFields, MsgNoUpdateFields, id, nil)
	}
	patch.UpdatedOn = s.now()

	if err := s.store.UpdateIssue(ctx, id, patch); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("update issue failed", "id", id, "error", err)
		}
		return Result{}, fail(ErrRecordNotFound, MsgCouldNotUpdate, id, err)
	}
	return Result{Result: MsgUpdated, ID: id}, nil
}

// Delete permanently removes the issue with the given id.
func (s *Service) Delete(ctx context.Context, id string) (Result, error) {
	if id == "" {
		return Result{}, fail(ErrMissingID, MsgMissingID, "", nil)
	}
	if err := s.store.DeleteIssue(ctx, id); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Warn("delete issue failed", "id", id, "error", err)
		}
		return Result{}, fail(ErrRecordNotFound, MsgCouldNotDelete, id, err)
	}
	return Result{Result: MsgDeleted, ID: id}, nil
}

// Get returns a single issue by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Issue, error) {
	if id == "" {
		return nil, fail(ErrMissingID, MsgMissingID, "", nil)
	}
	issue, err := s.store.GetIssue(ctx, id)
	if err != nil {
		return nil, fail(ErrRecordNotFound, MsgCouldNotFind, id, err)
	}
	return issue, nil
}

// buildPatch collects the non-empty mutable fields of in. An open value other
// than true/false is ignored.
func buildPatch(in Values) (models.IssuePatch, bool) {
	var patch models.IssuePatch
	str := func(key string) *string {
		if v := in[key]; v != "" {
			return &v
		}
		return nil
	}
	patch.IssueTitle = str(FieldIssueTitle)
	patch.IssueText = str(FieldIssueText)
	patch.CreatedBy = str(FieldCreatedBy)
	patch.AssignedTo = str(FieldAssignedTo)
	patch.StatusText = str(FieldStatusText)
	if b, err := parseBool(in[FieldOpen]); err == nil {
		patch.Open = &b
	}
	return patch, !patch.Empty()
}
