// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Stemma tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/stemma/internal/chartservice"
	"github.com/starford/stemma/internal/models"
	"github.com/starford/stemma/internal/storage"
)

// Server wraps the MCP server with Stemma tools.
type Server struct {
	mcp *server.MCPServer
	svc *chartservice.Service
}

// New creates a new MCP server with all Stemma tools registered.
func New(svc *chartservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Stemma",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_charts",
		mcp.WithDescription("List all charts in the library."),
	), s.listCharts)

	s.mcp.AddTool(mcp.NewTool("read_chart",
		mcp.WithDescription("Read the full text of a chart."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart (e.g. teams/eng.stemma)")),
	), s.readChart)

	s.mcp.AddTool(mcp.NewTool("create_chart",
		mcp.WithDescription("Create a new chart at the specified path. "+
			"Content MUST follow the canonical chart format (optional front matter "+
			"with options, schema and card sections, then a YAML record list). Read "+
			"the contract first via the get_chart_contract tool or the "+
			"stemma://chart-format resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new chart (must end with .stemma)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Chart text following the Stemma chart format contract")),
	), s.createChart)

	s.mcp.AddTool(mcp.NewTool("update_chart",
		mcp.WithDescription("Replace a chart's text. Invalid content is stored and "+
			"reported; the chart keeps its last good render until fixed."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement text")),
	), s.updateChart)

	s.mcp.AddTool(mcp.NewTool("move_node",
		mcp.WithDescription("Move a record one slot up or down among the records "+
			"sharing its parent. The chart file is rewritten in canonical form."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Id of the record to move")),
		mcp.WithString("direction", mcp.Required(), mcp.Description("Either up or down")),
	), s.moveNode)

	s.mcp.AddTool(mcp.NewTool("swap_nodes",
		mcp.WithDescription("Exchange two records' places in the document order. "+
			"Each record keeps its own parent and children."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart")),
		mcp.WithString("a", mcp.Required(), mcp.Description("Id of the first record")),
		mcp.WithString("b", mcp.Required(), mcp.Description("Id of the second record")),
	), s.swapNodes)

	s.mcp.AddTool(mcp.NewTool("validate_chart",
		mcp.WithDescription("Validate a chart against its schema and the structural "+
			"rules. Returns a report without changing anything."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the chart")),
	), s.validateChart)

	s.mcp.AddTool(mcp.NewTool("get_chart_contract",
		mcp.WithDescription("Returns the canonical Stemma chart format contract. "+
			"Call this before creating or updating charts to ensure correct structure."),
	), s.getChartContract)

	// Resource: chart format contract.
	s.mcp.AddResource(
		mcp.NewResource("stemma://chart-format", "Chart Format Contract",
			mcp.WithResourceDescription("Canonical chart format that all charts must follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readChartFormatResource,
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

func (s *Server) listCharts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, _, err := s.svc.ListCharts(ctx, 0, 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no charts in the library"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) readChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	detail, err := s.svc.GetChart(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) createChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !strings.HasSuffix(path, storage.Ext) {
		return mcp.NewToolResultError(fmt.Sprintf("chart path must end with %s: %s", storage.Ext, path)), nil
	}

	detail, err := s.svc.CreateChart(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(statusLine("created", detail)), nil
}

func (s *Server) updateChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	detail, err := s.svc.UpdateChart(ctx, path, []byte(content), "")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(statusLine("updated", detail)), nil
}

func (s *Server) moveNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	direction, err := req.RequireString("direction")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dir := models.Direction(direction)
	if !dir.Valid() {
		return mcp.NewToolResultError("direction must be up or down"), nil
	}

	detail, err := s.svc.MoveSibling(ctx, path, id, dir)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) swapNodes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := req.RequireString("a")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := req.RequireString("b")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	detail, err := s.svc.SwapRecords(ctx, path, a, b)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(detail.Content), nil
}

func (s *Server) validateChart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := s.svc.Validate(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(report, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getChartContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ChartFormatContract), nil
}

func (s *Server) readChartFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "stemma://chart-format",
			MIMEType: "text/markdown",
			Text:     ChartFormatContract,
		},
	}, nil
}

// statusLine reports a write outcome, surfacing validation problems so the
// caller can fix the chart without a separate validate call.
func statusLine(verb string, detail *chartservice.ChartDetail) string {
	if detail.Valid {
		return fmt.Sprintf("%s: %s", verb, detail.Path)
	}
	msgs := make([]string, 0, len(detail.Issues))
	for _, is := range detail.Issues {
		msgs = append(msgs, is.Message)
	}
	return fmt.Sprintf("%s: %s\nvalidation issues:\n%s", verb, detail.Path, strings.Join(msgs, "\n"))
}
