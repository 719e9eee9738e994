package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
)

const introDoc = `Course Title: Intro to X
Course Link: https://x.example
Course Instructor: Ada Lovelace

Lesson 1: Getting Started
Lesson Link: https://x.example/1
Setup instructions and a tour of the tools.

Lesson 2: Core Concepts
Lesson Link: https://x.example/2
This lesson explains the core concepts in depth and what is covered later.
`

const mcpDoc = `Course Title: MCP Server Development
Course Instructor: Elie Schoppik

Lesson 0: Introduction
The Model Context Protocol standardizes how applications provide context to models.

Lesson 1: Building a Server
An MCP server exposes tools, resources and prompts.
`

// workspace writes a docs folder and a config pointing at it, and returns
// the config path.
func workspace(t *testing.T, docs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	docsDir := filepath.Join(dir, "docs")
	require.NoError(t, os.Mkdir(docsDir, 0o755))
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(docsDir, name), []byte(body), 0o644))
	}
	cfg := "ingest:\n  docs_dir: " + docsDir + "\nlogging:\n  level: error\n"
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// Flag variables outlive a single execution of the shared root command.
	cfgPath = ""
	queryCourse, queryLesson, queryLimit, queryJSON = "", -1, 0, false
	coursesJSON = false
	ingestClear, ingestSchedule = false, ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := Execute(context.Background())
	return buf.String(), err
}

var twoCourses = map[string]string{"a-intro.txt": introDoc, "b-mcp.md": mcpDoc}

func TestQuery_CourseAndLessonScope(t *testing.T) {
	cfg := workspace(t, twoCourses)
	out, err := run(t, "query", "what is covered", "--course", "Intro", "--lesson", "2", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "[Intro to X - Lesson 2]\n")
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "Intro to X - Lesson 2 <https://x.example/2>")
	assert.NotContains(t, out, "MCP Server Development")
}

func TestQuery_UnknownCourse(t *testing.T) {
	cfg := workspace(t, twoCourses)
	_, err := run(t, "query", "model context protocol", "--course", "Quantum Basket Weaving", "--config", cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrCourseNotFound))
	assert.Contains(t, err.Error(), "no matching course")
}

func TestQuery_JSON(t *testing.T) {
	cfg := workspace(t, twoCourses)
	out, err := run(t, "query", "server", "--course", "MCP", "--json", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"ResolvedCourse": "MCP Server Development"`)
}

func TestQuery_RequiresQuestion(t *testing.T) {
	_, err := run(t, "query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg(s)")
}

func TestCourses_ListsInDocumentOrder(t *testing.T) {
	cfg := workspace(t, twoCourses)
	out, err := run(t, "courses", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "2 courses\n  1. Intro to X\n  2. MCP Server Development\n")

	out, err = run(t, "courses", "--json", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"total_courses": 2`)
}

func TestOutline(t *testing.T) {
	cfg := workspace(t, twoCourses)
	out, err := run(t, "outline", "MCP", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "**MCP Server Development**")
	assert.Contains(t, out, "Instructor: Elie Schoppik")

	_, err = run(t, "outline", "Quantum Basket Weaving", "--config", cfg)
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestIngest_ReportsSkippedDocuments(t *testing.T) {
	cfg := workspace(t, map[string]string{
		"a-intro.txt": introDoc,
		"b-copy.txt":  introDoc,
		"c-junk.txt":  "just some words",
		"notes.pdf":   "ignored",
	})
	out, err := run(t, "ingest", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 1 courses")
	assert.Contains(t, out, "  + Intro to X")
	assert.Contains(t, out, "Skipped 1 already loaded.")
	assert.Contains(t, out, "  ! c-junk.txt:")
	assert.NotContains(t, out, "notes.pdf")
}

func TestIngest_ExplicitFolderAndClear(t *testing.T) {
	cfg := workspace(t, nil)
	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "mcp.txt"), []byte(mcpDoc), 0o644))
	out, err := run(t, "ingest", other, "--clear", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "  + MCP Server Development")
}

func TestIngest_InvalidSchedule(t *testing.T) {
	cfg := workspace(t, twoCourses)
	_, err := run(t, "ingest", "--schedule", "whenever", "--config", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "whenever")
}

func TestInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunker:\n  size: 10\n  overlap: 10\n"), 0o644))
	_, err := run(t, "courses", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunker.overlap")
}

func TestQueryCmd_Flags(t *testing.T) {
	lesson := queryCmd.Flags().Lookup("lesson")
	require.NotNil(t, lesson)
	assert.Equal(t, "l", lesson.Shorthand)
	assert.Equal(t, "-1", lesson.DefValue)
	course := queryCmd.Flags().Lookup("course")
	require.NotNil(t, course)
	assert.Equal(t, "c", course.Shorthand)
}

func TestRootHasSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"ingest", "query", "courses", "outline", "shell", "consume", "publish", "watch", "mcp"} {
		assert.Contains(t, names, want)
	}
}

func TestOutline_ShowsLessonSummaries(t *testing.T) {
	cfg := workspace(t, twoCourses)
	out, err := run(t, "outline", "Intro", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "Lesson 2: Core Concepts\n  This lesson explains the core concepts in depth and what is covered later.\n")
}
