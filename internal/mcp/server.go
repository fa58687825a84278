package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/issues/internal/issues"
)

// Server exposes the issue operations as MCP tools.
type Server struct {
	issues  *issues.Service
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *issues.Service, version string) *Server {
	return &Server{issues: svc, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("issues", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// mutableFields are the optional string arguments shared by create and update.
var mutableFields = []struct {
	name string
	desc string
}{
	{issues.FieldIssueTitle, "Issue title"},
	{issues.FieldIssueText, "Issue text"},
	{issues.FieldCreatedBy, "Name of the reporter"},
	{issues.FieldAssignedTo, "Assignee"},
	{issues.FieldStatusText, "Free-form status text"},
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// issues_list
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("List the issues of a project. Every other argument is an equality filter. Returns a JSON array of issues with _id, issue_title, issue_text, created_by, assigned_to, status_text, open, created_on and updated_on."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(issues.FieldID, mcp.Description("Issue id")),
		mcp.WithString(issues.FieldOpen, mcp.Description("Open state: true or false")),
	}
	for _, f := range mutableFields {
		opts = append(opts, mcp.WithString(f.name, mcp.Description("Filter: "+f.desc)))
	}
	return mcp.NewTool("issues_list", opts...), s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	query := make(map[string][]string)
	for key, v := range stringArgs(request) {
		if key != "project" {
			query[key] = []string{v}
		}
	}

	found, err := s.issues.List(ctx, project, query)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	return jsonResult(found, false)
}

// issues_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Create an open issue in a project. issue_title, issue_text and created_by are required. Returns the created issue as JSON, or {\"error\": ...}."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
	}
	for _, f := range mutableFields {
		opts = append(opts, mcp.WithString(f.name, mcp.Description(f.desc)))
	}
	return mcp.NewTool("issues_create", opts...), s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	issue, err := s.issues.Create(ctx, project, stringArgs(request))
	if err != nil {
		return jsonResult(issues.PayloadFor(err), true)
	}
	return jsonResult(issue, false)
}

// issues_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Update fields of an issue. Provide _id and at least one field. Empty values are ignored. Returns {\"result\": \"successfully updated\", \"_id\": ...} or {\"error\": ...}."),
		mcp.WithString(issues.FieldID, mcp.Description("Issue id")),
		mcp.WithString(issues.FieldOpen, mcp.Description("Open state: true or false")),
	}
	for _, f := range mutableFields {
		opts = append(opts, mcp.WithString(f.name, mcp.Description(f.desc)))
	}
	return mcp.NewTool("issues_update", opts...), s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.issues.Update(ctx, stringArgs(request))
	if err != nil {
		return jsonResult(issues.PayloadFor(err), true)
	}
	return jsonResult(res, false)
}

// issues_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issues_delete",
		mcp.WithDescription("Permanently delete an issue. Returns {\"result\": \"successfully deleted\", \"_id\": ...} or {\"error\": ...}."),
		mcp.WithString(issues.FieldID, mcp.Description("Issue id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.issues.Delete(ctx, request.GetString(issues.FieldID, ""))
	if err != nil {
		return jsonResult(issues.PayloadFor(err), true)
	}
	return jsonResult(res, false)
}

// stringArgs flattens the call arguments to issue values. Booleans are
// accepted for open; other non-string arguments are dropped.
func stringArgs(request mcp.CallToolRequest) issues.Values {
	vals := issues.Values{}
	for key, v := range request.GetArguments() {
		switch v := v.(type) {
		case string:
			vals[key] = v
		case bool:
			vals[key] = fmt.Sprintf("%t", v)
		}
	}
	return vals
}

func jsonResult(v any, isError bool) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	if isError {
		return mcp.NewToolResultError(string(data)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
