// Package mcpserver serves the course tools to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"courserag/internal/domain"
	"courserag/internal/tools"
)

const (
	Version    = "0.1.0"
	coursesURI = "courserag://courses"
	serverName = "courserag"
	jsonMIME   = "application/json"
)

var ErrMissingTools = errors.New("tool manager is required")

// Stats reports the catalog for the courses resource.
type Stats interface {
	Stats(ctx context.Context) (domain.CourseStats, error)
}

type Server struct {
	tools  *tools.Manager
	stats  Stats
	server *mcp.Server
}

// New builds a server exposing manager's tools. stats may be nil, in which
// case the courses resource is not registered.
func New(manager *tools.Manager, stats Stats) (*Server, error) {
	if manager == nil {
		return nil, ErrMissingTools
	}
	s := &Server{
		tools:  manager,
		stats:  stats,
		server: mcp.NewServer(&mcp.Implementation{Name: serverName, Version: Version}, nil),
	}
	s.registerTools()
	if stats != nil {
		s.server.AddResource(&mcp.Resource{
			URI:         coursesURI,
			Name:        "courses",
			Description: "Number and titles of the loaded courses",
			MIMEType:    jsonMIME,
		}, s.handleCourses)
	}
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// SearchInput is the input schema of search_course_content.
type SearchInput struct {
	Query        string  `json:"query" jsonschema:"what to search for in the course content"`
	CourseName   *string `json:"course_name,omitempty" jsonschema:"course title, partial matches work (e.g. 'MCP', 'Introduction')"`
	LessonNumber *int    `json:"lesson_number,omitempty" jsonschema:"specific lesson number to search within"`
}

// OutlineInput is the input schema of get_course_outline.
type OutlineInput struct {
	CourseName string `json:"course_name" jsonschema:"course title, partial matches work"`
}

// Output is the structured result of both tools.
type Output struct {
	Text      string           `json:"text"`
	Citations []tools.Citation `json:"citations"`
}

func (s *Server) registerTools() {
	defs := make(map[string]tools.Definition)
	for _, d := range s.tools.Definitions() {
		defs[d.Name] = d
	}
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        tools.SearchToolName,
		Description: defs[tools.SearchToolName].Description,
	}, s.handleSearch)
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        tools.OutlineToolName,
		Description: defs[tools.OutlineToolName].Description,
	}, s.handleOutline)
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, Output, error) {
	args, err := json.Marshal(tools.SearchArgs{Query: in.Query, CourseName: in.CourseName, LessonNumber: in.LessonNumber})
	if err != nil {
		return nil, Output{}, err
	}
	return s.execute(ctx, tools.SearchToolName, args)
}

func (s *Server) handleOutline(ctx context.Context, _ *mcp.CallToolRequest, in OutlineInput) (*mcp.CallToolResult, Output, error) {
	args, err := json.Marshal(in)
	if err != nil {
		return nil, Output{}, err
	}
	return s.execute(ctx, tools.OutlineToolName, args)
}

func (s *Server) execute(ctx context.Context, name string, args json.RawMessage) (*mcp.CallToolResult, Output, error) {
	res, err := s.tools.Execute(ctx, name, args)
	if err != nil {
		return nil, Output{}, err
	}
	out := Output{Text: res.Text, Citations: res.Citations}
	if out.Citations == nil {
		out.Citations = []tools.Citation{}
	}
	return &mcp.CallToolResult{
		IsError: res.IsError,
		Content: []mcp.Content{&mcp.TextContent{Text: res.Text}},
	}, out, nil
}

func (s *Server) handleCourses(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	stats, err := s.stats.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading course stats: %w", err)
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: jsonMIME,
			Text:     string(data),
		}},
	}, nil
}
