// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Tiwaz task tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/halvard/tiwaz/internal/apperr"
	"github.com/halvard/tiwaz/internal/taskservice"
	"github.com/halvard/tiwaz/internal/tasks"
)

// Server wraps the MCP server with Tiwaz tools.
type Server struct {
	mcp *server.MCPServer
	svc *taskservice.Service
}

// New creates a new MCP server with all Tiwaz tools registered.
func New(svc *taskservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Tiwaz",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks in the index, optionally filtered by status or note."),
		mcp.WithString("status", mcp.Description("Filter: 'checked' or 'unchecked' (empty for all)")),
		mcp.WithString("note", mcp.Description("Filter: vault-relative note path (empty for all)")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("get_task",
		mcp.WithDescription("Read one task by its stable task ID."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
	), s.getTask)

	s.mcp.AddTool(mcp.NewTool("toggle_task",
		mcp.WithDescription("Flip the checked state of a task. The document is saved and the "+
			"index refreshed; the result lists the change events produced. Read the task model "+
			"first via the get_task_model tool or the tiwaz://task-model resource."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task ID")),
	), s.toggleTask)

	s.mcp.AddTool(mcp.NewTool("reorder_tasks",
		mcp.WithDescription("Reorder tasks by priority. Tasks not mentioned keep their relative "+
			"order after the reordered set."),
		mcp.WithString("ids", mcp.Required(), mcp.Description("Comma-separated task IDs in the desired order")),
	), s.reorderTasks)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the raw JSON document tree of a note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Vault-relative note path (e.g. inbox/todo.json)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("get_task_model",
		mcp.WithDescription("Returns the Tiwaz task identity model. "+
			"Call this before toggling or reordering tasks."),
	), s.getTaskModel)

	// Resource: task model contract.
	s.mcp.AddResource(
		mcp.NewResource("tiwaz://task-model", "Task Model",
			mcp.WithResourceDescription("How task identity, locators, and change events work."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readTaskModelResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := tasks.Filter{}
	if v, err := req.RequireString("status"); err == nil {
		f.Status = tasks.Status(v)
	}
	if v, err := req.RequireString("note"); err == nil {
		f.NoteID = v
	}
	items := s.svc.ListTasks(ctx, f)
	out, _ := json.MarshalIndent(items, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.svc.GetTask(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("task not found: %s", id)), nil
	}
	out, _ := json.MarshalIndent(t, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) toggleTask(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	changes, err := s.svc.ToggleTask(ctx, id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("task no longer resolves: %s", id)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(changes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) reorderTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return mcp.NewToolResultError("ids must contain at least one task ID"), nil
	}
	changes := s.svc.Reorder(ctx, ids)
	out, _ := json.MarshalIndent(changes, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(string(note.Content)), nil
}

func (s *Server) getTaskModel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(TaskModelContract), nil
}

func (s *Server) readTaskModelResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "tiwaz://task-model",
			MIMEType: "text/markdown",
			Text:     TaskModelContract,
		},
	}, nil
}
