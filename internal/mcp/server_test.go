package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/issues/internal/issues"
	"github.com/joescharf/issues/internal/models"
	"github.com/joescharf/issues/internal/store"
)

// ---------------------------------------------------------------------------
// Mock store
// ---------------------------------------------------------------------------

// mockStore implements store.Store in memory.
type mockStore struct {
	issues  []*models.Issue
	nextID  int
	filters []store.IssueListFilter

	createIssueErr error
}

func (m *mockStore) CreateIssue(_ context.Context, issue *models.Issue) error {
	if m.createIssueErr != nil {
		return m.createIssueErr
	}
	m.nextID++
	issue.ID = fmt.Sprintf("issue-%d", m.nextID)
	issue.CreatedOn = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	issue.UpdatedOn = issue.CreatedOn
	m.issues = append(m.issues, issue)
	return nil
}

func (m *mockStore) GetIssue(_ context.Context, id string) (*models.Issue, error) {
	for _, i := range m.issues {
		if i.ID == id {
			return i, nil
		}
	}
	return nil, fmt.Errorf("get issue %q: %w", id, store.ErrNotFound)
}

func (m *mockStore) ListIssues(_ context.Context, filter store.IssueListFilter) ([]*models.Issue, error) {
	m.filters = append(m.filters, filter)
	var out []*models.Issue
	for _, i := range m.issues {
		if filter.Project != "" && i.Project != filter.Project {
			continue
		}
		if len(filter.Open) > 0 && i.Open != filter.Open[0] {
			continue
		}
		out = append(out, i)
	}
	return out, nil
}

func (m *mockStore) UpdateIssue(_ context.Context, id string, patch models.IssuePatch) error {
	for _, i := range m.issues {
		if i.ID != id {
			continue
		}
		if patch.IssueTitle != nil {
			i.IssueTitle = *patch.IssueTitle
		}
		if patch.StatusText != nil {
			i.StatusText = *patch.StatusText
		}
		if patch.Open != nil {
			i.Open = *patch.Open
		}
		i.UpdatedOn = patch.UpdatedOn
		return nil
	}
	return fmt.Errorf("update issue %q: %w", id, store.ErrNotFound)
}

func (m *mockStore) DeleteIssue(_ context.Context, id string) error {
	for n, i := range m.issues {
		if i.ID == id {
			m.issues = append(m.issues[:n], m.issues[n+1:]...)
			return nil
		}
	}
	return fmt.Errorf("delete issue %q: %w", id, store.ErrNotFound)
}

func (m *mockStore) Migrate(context.Context) error { return nil }
func (m *mockStore) Close() error                  { return nil }

var _ store.Store = (*mockStore)(nil)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newTestServer(t *testing.T) (*Server, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	srv := NewServer(issues.NewService(ms), "test")
	require.NotNil(t, srv)
	return srv, ms
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), target))
}

func seed(t *testing.T, srv *Server, title string) string {
	t.Helper()
	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project":     "proj",
		"issue_title": title,
		"issue_text":  "text",
		"created_by":  "agent",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	return issue.ID
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMCPServer_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	// Call tools/list via HandleMessage to verify registration.
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(context.Background(), reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}
	for _, name := range []string{"issues_list", "issues_create", "issues_update", "issues_delete"} {
		assert.True(t, toolNames[name], "expected tool %q to be registered", name)
	}
}

func TestCreateIssue(t *testing.T) {
	srv, ms := newTestServer(t)

	id := seed(t, srv, "From agent")
	require.Len(t, ms.issues, 1)
	assert.Equal(t, id, ms.issues[0].ID)
	assert.Equal(t, "proj", ms.issues[0].Project)
	assert.True(t, ms.issues[0].Open)
}

func TestCreateIssue_MissingRequired(t *testing.T) {
	srv, ms := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project":     "proj",
		"issue_title": "only a title",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	var payload issues.Result
	resultJSON(t, result, &payload)
	assert.Equal(t, "required field(s) missing", payload.Error)
	assert.Empty(t, ms.issues)
}

func TestCreateIssue_StoreError(t *testing.T) {
	srv, ms := newTestServer(t)
	ms.createIssueErr = fmt.Errorf("boom")

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{
		"project": "proj", "issue_title": "t", "issue_text": "x", "created_by": "y",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, `{"error":"could not save"}`, resultText(t, result))
}

func TestCreateIssue_MissingProject(t *testing.T) {
	srv, _ := newTestServer(t)

	result, err := srv.handleCreateIssue(context.Background(), callToolReq("issues_create", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "project")
}

func TestListIssues(t *testing.T) {
	srv, ms := newTestServer(t)
	seed(t, srv, "a")
	seed(t, srv, "b")

	result, err := srv.handleListIssues(context.Background(), callToolReq("issues_list", map[string]any{
		"project": "proj",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got []models.Issue
	resultJSON(t, result, &got)
	assert.Len(t, got, 2)

	result, err = srv.handleListIssues(context.Background(), callToolReq("issues_list", map[string]any{
		"project": "proj", "open": "false",
	}))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))

	last := ms.filters[len(ms.filters)-1]
	assert.Equal(t, "proj", last.Project)
	assert.Equal(t, []bool{false}, last.Open)
}

func TestUpdateIssue(t *testing.T) {
	srv, ms := newTestServer(t)
	id := seed(t, srv, "a")

	result, err := srv.handleUpdateIssue(context.Background(), callToolReq("issues_update", map[string]any{
		"_id": id, "status_text": "In QA", "open": false,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.JSONEq(t, fmt.Sprintf(`{"result":"successfully updated","_id":%q}`, id), resultText(t, result))
	assert.Equal(t, "In QA", ms.issues[0].StatusText)
	assert.False(t, ms.issues[0].Open)
}

func TestUpdateIssue_Errors(t *testing.T) {
	srv, _ := newTestServer(t)
	id := seed(t, srv, "a")

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing id", map[string]any{"issue_title": "x"}, `{"error":"missing _id"}`},
		{"no fields", map[string]any{"_id": id}, fmt.Sprintf(`{"error":"no update field(s) sent","_id":%q}`, id)},
		{"unknown id", map[string]any{"_id": "nope", "issue_title": "x"}, `{"error":"could not update","_id":"nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := srv.handleUpdateIssue(context.Background(), callToolReq("issues_update", tt.args))
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.JSONEq(t, tt.want, resultText(t, result))
		})
	}
}

func TestDeleteIssue(t *testing.T) {
	srv, ms := newTestServer(t)
	id := seed(t, srv, "a")

	result, err := srv.handleDeleteIssue(context.Background(), callToolReq("issues_delete", map[string]any{"_id": id}))
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"result":"successfully deleted","_id":%q}`, id), resultText(t, result))
	assert.Empty(t, ms.issues)

	result, err = srv.handleDeleteIssue(context.Background(), callToolReq("issues_delete", map[string]any{"_id": id}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.JSONEq(t, fmt.Sprintf(`{"error":"could not delete","_id":%q}`, id), resultText(t, result))

	result, err = srv.handleDeleteIssue(context.Background(), callToolReq("issues_delete", map[string]any{}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"missing _id"}`, resultText(t, result))
}
