// Package tools exposes retrieval to a tool-calling language model: tool
// definitions in JSON-schema form and an executor that renders results as
// text with aligned citations.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"courserag/internal/domain"
	"courserag/internal/logger"
)

const (
	SearchToolName  = "search_course_content"
	OutlineToolName = "get_course_outline"
)

var ErrUnknownTool = errors.New("unknown tool")

// Retriever is the part of the service the tools call.
type Retriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (domain.Retrieval, error)
	Outline(ctx context.Context, courseHint string) (domain.Course, error)
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Citation is a source as shown to the end user.
type Citation struct {
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

// Result is the outcome of one tool call. Citations align with the
// passages in Text. IsError marks text that reports a failure to the model
// rather than content.
type Result struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	IsError   bool       `json:"is_error,omitempty"`
}

type tool struct {
	def  Definition
	exec func(ctx context.Context, args json.RawMessage) (Result, error)
}

type Manager struct {
	retriever Retriever
	tools     map[string]tool
}

func NewManager(r Retriever) *Manager {
	m := &Manager{retriever: r, tools: make(map[string]tool)}
	m.register(tool{def: searchDefinition, exec: m.executeSearch})
	m.register(tool{def: outlineDefinition, exec: m.executeOutline})
	return m
}

func (m *Manager) register(t tool) {
	m.tools[t.def.Name] = t
}

// Definitions lists the registered tools by name.
func (m *Manager) Definitions() []Definition {
	defs := make([]Definition, 0, len(m.tools))
	for _, t := range m.tools {
		defs = append(defs, t.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute runs the named tool with JSON arguments. Failures the model
// should see come back as a Result with IsError set; a returned error
// means the call itself could not be made.
func (m *Manager) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	t, ok := m.tools[name]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	logger.FromContext(ctx).Debug("executing tool", "tool", name, "args", string(args))
	return t.exec(ctx, args)
}

var searchDefinition = Definition{
	Name:        SearchToolName,
	Description: "Search course materials with smart course name matching and lesson filtering",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "What to search for in the course content",
			},
			"course_name": map[string]any{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
			"lesson_number": map[string]any{
				"type":        "integer",
				"description": "Specific lesson number to search within (e.g. 1, 2, 3)",
			},
		},
		"required": []string{"query"},
	},
}

var outlineDefinition = Definition{
	Name:        OutlineToolName,
	Description: "Get complete course outline including title, link, and all lessons",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"course_name": map[string]any{
				"type":        "string",
				"description": "Course title (partial matches work, e.g. 'MCP', 'Introduction')",
			},
		},
		"required": []string{"course_name"},
	},
}

// SearchArgs are the arguments of search_course_content.
type SearchArgs struct {
	Query        string  `json:"query"`
	CourseName   *string `json:"course_name,omitempty"`
	LessonNumber *int    `json:"lesson_number,omitempty"`
}

func decode[T any](args json.RawMessage) (T, error) {
	var v T
	if len(args) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(args, &v); err != nil {
		return v, fmt.Errorf("%w: decoding tool arguments: %v", domain.ErrInvalidInput, err)
	}
	return v, nil
}

func (m *Manager) executeSearch(ctx context.Context, raw json.RawMessage) (Result, error) {
	args, err := decode[SearchArgs](raw)
	if err != nil {
		return Result{}, err
	}
	res, err := m.Search(ctx, args)
	switch {
	case errors.Is(err, domain.ErrCourseNotFound):
		var name string
		if args.CourseName != nil {
			name = *args.CourseName
		}
		return Result{Text: fmt.Sprintf("No course found matching '%s'", name), IsError: true}, nil
	case errors.Is(err, domain.ErrRetrievalTimeout):
		return Result{Text: "Search timed out, please try again.", IsError: true}, nil
	}
	return res, err
}

// Search runs a retrieval and renders it. Unlike Execute it reports a
// course that cannot be found as ErrCourseNotFound.
func (m *Manager) Search(ctx context.Context, args SearchArgs) (Result, error) {
	if strings.TrimSpace(args.Query) == "" {
		return Result{}, fmt.Errorf("%w: query is required", domain.ErrInvalidInput)
	}
	if args.CourseName != nil && strings.TrimSpace(*args.CourseName) == "" {
		args.CourseName = nil
	}
	ret, err := m.retriever.Retrieve(ctx, domain.RetrieveRequest{
		Query:      args.Query,
		CourseHint: args.CourseName,
		LessonHint: args.LessonNumber,
	})
	if err != nil {
		return Result{}, err
	}
	if ret.Empty() {
		var filter strings.Builder
		if args.CourseName != nil {
			fmt.Fprintf(&filter, " in course '%s'", *args.CourseName)
		}
		if args.LessonNumber != nil {
			fmt.Fprintf(&filter, " in lesson %d", *args.LessonNumber)
		}
		return Result{Text: fmt.Sprintf("No relevant content found%s.", filter.String())}, nil
	}
	citations := make([]Citation, len(ret.Sources))
	for i, src := range ret.Sources {
		citations[i] = Citation{Text: src.Text(), URL: src.Link}
	}
	return Result{Text: strings.Join(ret.Passages, "\n\n"), Citations: citations}, nil
}

type outlineArgs struct {
	CourseName string `json:"course_name"`
}

func (m *Manager) executeOutline(ctx context.Context, raw json.RawMessage) (Result, error) {
	args, err := decode[outlineArgs](raw)
	if err != nil {
		return Result{}, err
	}
	if strings.TrimSpace(args.CourseName) == "" {
		return Result{}, fmt.Errorf("%w: course_name is required", domain.ErrInvalidInput)
	}
	course, err := m.retriever.Outline(ctx, args.CourseName)
	if errors.Is(err, domain.ErrCourseNotFound) {
		return Result{Text: fmt.Sprintf("No course found matching '%s'", args.CourseName), IsError: true}, nil
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Text:      FormatOutline(course),
		Citations: []Citation{{Text: course.Title + " - Course Outline", URL: course.Link}},
	}, nil
}

// FormatOutline renders a course and its lesson list.
func FormatOutline(c domain.Course) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n", c.Title)
	if c.Instructor != "" {
		fmt.Fprintf(&b, "Instructor: %s\n", c.Instructor)
	}
	if c.Link != "" {
		fmt.Fprintf(&b, "Course Link: %s\n", c.Link)
	}
	b.WriteString("\n**Course Outline:**\n")
	if len(c.Lessons) == 0 {
		b.WriteString("No lessons available\n")
	}
	for _, l := range c.Lessons {
		fmt.Fprintf(&b, "Lesson %d: %s\n", l.Number, l.Title)
		if l.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", l.Summary)
		}
	}
	return b.String()
}
