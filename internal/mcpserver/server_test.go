package mcpserver

import (
	"context"
	"errors"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
	"courserag/internal/tools"
)

type fakeRetriever struct {
	retrieval domain.Retrieval
	course    domain.Course
	err       error
}

func (f *fakeRetriever) Retrieve(context.Context, domain.RetrieveRequest) (domain.Retrieval, error) {
	return f.retrieval, f.err
}

func (f *fakeRetriever) Outline(context.Context, string) (domain.Course, error) {
	return f.course, f.err
}

type fakeStats struct {
	stats domain.CourseStats
	err   error
}

func (f fakeStats) Stats(context.Context) (domain.CourseStats, error) { return f.stats, f.err }

func TestNew(t *testing.T) {
	_, err := New(nil, nil)
	assert.ErrorIs(t, err, ErrMissingTools)

	s, err := New(tools.NewManager(&fakeRetriever{}), nil)
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestHandleSearch(t *testing.T) {
	f := &fakeRetriever{retrieval: domain.Retrieval{
		Results:  []domain.SearchResult{{}},
		Passages: []string{"[MCP Server Development - Lesson 1]\nServers expose tools."},
		Sources:  []domain.Source{{CourseTitle: "MCP Server Development", LessonNumber: domain.IntPtr(1), Link: "https://mcp/1"}},
	}}
	s, err := New(tools.NewManager(f), nil)
	require.NoError(t, err)

	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "tools", CourseName: domain.StringPtr("MCP")})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	require.Len(t, res.Content, 1)
	assert.Equal(t, out.Text, res.Content[0].(*mcp.TextContent).Text)
	assert.Equal(t, []tools.Citation{{Text: "MCP Server Development - Lesson 1", URL: "https://mcp/1"}}, out.Citations)
}

func TestHandleSearch_CourseNotFoundIsToolError(t *testing.T) {
	s, err := New(tools.NewManager(&fakeRetriever{err: domain.ErrCourseNotFound}), nil)
	require.NoError(t, err)

	res, out, err := s.handleSearch(context.Background(), nil, SearchInput{Query: "q", CourseName: domain.StringPtr("Quantum")})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "No course found matching 'Quantum'", out.Text)
	assert.Empty(t, out.Citations)
}

func TestHandleSearch_FailurePropagates(t *testing.T) {
	s, err := New(tools.NewManager(&fakeRetriever{err: errors.New("store down")}), nil)
	require.NoError(t, err)
	_, _, err = s.handleSearch(context.Background(), nil, SearchInput{Query: "q"})
	assert.ErrorContains(t, err, "store down")
}

func TestHandleOutline(t *testing.T) {
	f := &fakeRetriever{course: domain.Course{Title: "Intro to X", Lessons: []domain.Lesson{{Number: 1, Title: "Start"}}}}
	s, err := New(tools.NewManager(f), nil)
	require.NoError(t, err)
	_, out, err := s.handleOutline(context.Background(), nil, OutlineInput{CourseName: "intro"})
	require.NoError(t, err)
	assert.Contains(t, out.Text, "Lesson 1: Start")
	assert.Equal(t, "Intro to X - Course Outline", out.Citations[0].Text)
}

func TestHandleCourses(t *testing.T) {
	s, err := New(tools.NewManager(&fakeRetriever{}), fakeStats{stats: domain.CourseStats{Total: 1, Titles: []string{"Intro to X"}}})
	require.NoError(t, err)

	req := &mcp.ReadResourceRequest{Params: &mcp.ReadResourceParams{URI: coursesURI}}
	res, err := s.handleCourses(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.JSONEq(t, `{"total_courses":1,"course_titles":["Intro to X"]}`, res.Contents[0].Text)

	s, err = New(tools.NewManager(&fakeRetriever{}), fakeStats{err: errors.New("boom")})
	require.NoError(t, err)
	_, err = s.handleCourses(context.Background(), req)
	assert.ErrorContains(t, err, "boom")
}
