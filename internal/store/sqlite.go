package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joescharf/issues/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const issueColumns = `id, project, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on, updated_on`

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. A single connection
	// serializes access and avoids "database is locked" under concurrent requests.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// boolToInt converts a bool to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func newULID() string {
	return ulid.Make().String()
}

// validID reports whether id could have been generated by this store.
func validID(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Issues ---

func (s *SQLiteStore) CreateIssue(ctx context.Context, issue *models.Issue) error {
	if issue.ID == "" {
		issue.ID = newULID()
	}
	now := s.now().UTC().Truncate(time.Millisecond)
	issue.CreatedOn = now
	issue.UpdatedOn = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO issues (`+issueColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, issue.Project, issue.IssueTitle, issue.IssueText, issue.CreatedBy,
		issue.AssignedTo, issue.StatusText, boolToInt(issue.Open),
		formatTime(issue.CreatedOn), formatTime(issue.UpdatedOn),
	)
	if err != nil {
		return fmt.Errorf("create issue: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetIssue(ctx context.Context, id string) (*models.Issue, error) {
	if !validID(id) {
		return nil, fmt.Errorf("get issue %q: %w", id, ErrNotFound)
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("get issue %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get issue: %w", err)
	}
	return issue, nil
}

func (s *SQLiteStore) ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error) {
	var where conditions
	if filter.Project != "" {
		where.equal("project", filter.Project)
	}
	where.equal("id", toAny(filter.IDs, identity)...)
	where.equal("issue_title", toAny(filter.Titles, identity)...)
	where.equal("issue_text", toAny(filter.Texts, identity)...)
	where.equal("created_by", toAny(filter.CreatedBy, identity)...)
	where.equal("assigned_to", toAny(filter.AssignedTo, identity)...)
	where.equal("status_text", toAny(filter.StatusText, identity)...)
	where.equal("open", toAny(filter.Open, func(b bool) any { return boolToInt(b) })...)
	where.equal("created_on", toAny(filter.CreatedOn, func(t time.Time) any { return formatTime(t) })...)
	where.equal("updated_on", toAny(filter.UpdatedOn, func(t time.Time) any { return formatTime(t) })...)

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where.clauses) > 0 {
		query += " WHERE " + strings.Join(where.clauses, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer func() { _ = rows.Close() }()

	issues := []*models.Issue{}
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

func (s *SQLiteStore) UpdateIssue(ctx context.Context, id string, patch models.IssuePatch) error {
	if !validID(id) {
		return fmt.Errorf("update issue %q: %w", id, ErrNotFound)
	}

	updatedOn := patch.UpdatedOn
	if updatedOn.IsZero() {
		updatedOn = s.now()
	}

	// updated_on never moves before created_on, whatever clock the caller used.
	sets := []string{"updated_on = MAX(created_on, ?)"}
	args := []any{formatTime(updatedOn)}
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if patch.IssueTitle != nil {
		set("issue_title", *patch.IssueTitle)
	}
	if patch.IssueText != nil {
		set("issue_text", *patch.IssueText)
	}
	if patch.CreatedBy != nil {
		set("created_by", *patch.CreatedBy)
	}
	if patch.AssignedTo != nil {
		set("assigned_to", *patch.AssignedTo)
	}
	if patch.StatusText != nil {
		set("status_text", *patch.StatusText)
	}
	if patch.Open != nil {
		set("open", boolToInt(*patch.Open))
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, `UPDATE issues SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("update issue %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeleteIssue(ctx context.Context, id string) error {
	if !validID(id) {
		return fmt.Errorf("delete issue %q: %w", id, ErrNotFound)
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM issues WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete issue: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("delete issue %q: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIssue(row rowScanner) (*models.Issue, error) {
	issue := &models.Issue{}
	var createdOn, updatedOn string
	if err := row.Scan(&issue.ID, &issue.Project, &issue.IssueTitle, &issue.IssueText, &issue.CreatedBy,
		&issue.AssignedTo, &issue.StatusText, &issue.Open, &createdOn, &updatedOn); err != nil {
		return nil, err
	}

	var err error
	if issue.CreatedOn, err = parseTime(createdOn); err != nil {
		return nil, fmt.Errorf("parse created_on: %w", err)
	}
	if issue.UpdatedOn, err = parseTime(updatedOn); err != nil {
		return nil, fmt.Errorf("parse updated_on: %w", err)
	}
	return issue, nil
}

// conditions accumulates AND-ed equality clauses and their arguments.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) equal(column string, values ...any) {
	switch len(values) {
	case 0:
		return
	case 1:
		c.clauses = append(c.clauses, column+" = ?")
	default:
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")
		c.clauses = append(c.clauses, fmt.Sprintf("%s IN (%s)", column, placeholders))
	}
	c.args = append(c.args, values...)
}

func identity(s string) any { return s }

func toAny[T any](values []T, conv func(T) any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = conv(v)
	}
	return out
}
