package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/chunker"
	"courserag/internal/domain"
	"courserag/internal/embedding/hashing"
	"courserag/internal/vectorstore/memory"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(memory.NewCollection(), memory.NewCollection(), hashing.NewEmbedder(hashing.DefaultDimension), Options{})
}

func addCourses(t *testing.T, s *Store, titles ...string) {
	t.Helper()
	for _, title := range titles {
		require.NoError(t, s.UpsertCourse(context.Background(), domain.Course{Title: title}))
	}
}

func TestResolveCourseName(t *testing.T) {
	s := newStore(t)
	addCourses(t, s,
		"Advanced Retrieval for AI with Chroma",
		"MCP Server Development",
		"Prompt Compression and Query Optimization",
	)
	ctx := context.Background()

	got, err := s.ResolveCourseName(ctx, "MCP")
	require.NoError(t, err)
	assert.Equal(t, "MCP Server Development", got)

	_, err = s.ResolveCourseName(ctx, "Quantum Basket Weaving")
	assert.True(t, errors.Is(err, domain.ErrCourseNotFound), "got %v", err)

	got, err = s.ResolveCourseName(ctx, "chroma retrieval")
	require.NoError(t, err)
	assert.Equal(t, "Advanced Retrieval for AI with Chroma", got)

	got, err = s.ResolveCourseName(ctx, "Prompt Compression and Query Optimization")
	require.NoError(t, err, "exact title")
	assert.Equal(t, "Prompt Compression and Query Optimization", got)

	_, err = s.ResolveCourseName(ctx, "   ")
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

func TestResolveCourseName_EmptyCatalog(t *testing.T) {
	_, err := newStore(t).ResolveCourseName(context.Background(), "MCP")
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
}

// "Intro to X" and "Intro to Y" embed identically, so "Intro" ties.
func TestResolveCourseName_TieGoesToFirstCataloged(t *testing.T) {
	s := newStore(t)
	addCourses(t, s, "Intro to Y", "Intro to X")
	got, err := s.ResolveCourseName(context.Background(), "Intro")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Y", got)
}

func TestResolveCourseName_ExactTitleIgnoresCase(t *testing.T) {
	s := newStore(t)
	addCourses(t, s, "Intro to Y", "Intro to X")
	ctx := context.Background()
	for _, name := range []string{"Intro to X", "intro to x", "  INTRO TO X "} {
		got, err := s.ResolveCourseName(ctx, name)
		require.NoError(t, err, name)
		assert.Equal(t, "Intro to X", got, name)
	}
}

func TestResolveCourseName_Threshold(t *testing.T) {
	s := New(memory.NewCollection(), memory.NewCollection(), hashing.NewEmbedder(0), Options{MinResolveScore: 0.6})
	addCourses(t, s, "MCP Server Development")
	// 1/sqrt(3) is below 0.6
	_, err := s.ResolveCourseName(context.Background(), "MCP")
	assert.ErrorIs(t, err, domain.ErrCourseNotFound)
	got, err := s.ResolveCourseName(context.Background(), "MCP server")
	require.NoError(t, err)
	assert.Equal(t, "MCP Server Development", got)
}

func ingest(t *testing.T, s *Store, course domain.Course) {
	t.Helper()
	ch, err := chunker.New(120, 20)
	require.NoError(t, err)
	require.NoError(t, s.UpsertChunks(context.Background(), ch.ChunkCourse(course)))
	require.NoError(t, s.UpsertCourse(context.Background(), course))
}

var (
	courseA = domain.Course{Title: "Course A", Link: "https://a", Lessons: []domain.Lesson{
		{Number: 1, Title: "Vectors", Link: "https://a/1", Body: "Vector databases store embeddings. Embeddings capture meaning."},
		{Number: 2, Title: "Search", Link: "https://a/2", Body: "Similarity search ranks embeddings by cosine distance."},
	}}
	courseB = domain.Course{Title: "Course B", Lessons: []domain.Lesson{
		{Number: 1, Title: "Embeddings", Body: "Embeddings embeddings embeddings. Everything about embeddings and vector search."},
	}}
)

func TestSearch_FilterNeverCrossesCourses(t *testing.T) {
	s := newStore(t)
	ingest(t, s, courseA)
	ingest(t, s, courseB)
	ctx := context.Background()

	for _, q := range []string{"embeddings", "vector search", "cosine", "unrelated words"} {
		got, err := s.Search(ctx, q, domain.Filter{CourseTitle: "Course A"}, 10)
		require.NoError(t, err)
		require.NotEmpty(t, got, q)
		for _, r := range got {
			assert.Equal(t, "Course A", r.Chunk.CourseTitle, q)
		}
	}

	got, err := s.Search(ctx, "embeddings", domain.Filter{CourseTitle: "Course A", LessonNumber: domain.IntPtr(2)}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, r := range got {
		assert.Equal(t, 2, r.Chunk.LessonNumber)
		assert.Equal(t, r.Chunk.Content(), r.Content)
	}
}

func TestSearch_NoDataIsNotAnError(t *testing.T) {
	s := newStore(t)
	got, err := s.Search(context.Background(), "anything", domain.Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	ingest(t, s, courseA)
	got, err = s.Search(context.Background(), "anything", domain.Filter{CourseTitle: "No Such Course"}, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_RanksByRelevance(t *testing.T) {
	s := newStore(t)
	ingest(t, s, courseA)
	got, err := s.Search(context.Background(), "cosine similarity", domain.Filter{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 2, got[0].Chunk.LessonNumber)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestCourseMetadataAndStats(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ingest(t, s, courseB)
	ingest(t, s, courseA)

	course, ok, err := s.Course(ctx, "Course A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://a", course.Link)
	require.Len(t, course.Lessons, 2)
	assert.Empty(t, course.Lessons[0].Body, "bodies are not kept in the catalog")

	link, err := s.LessonLink(ctx, "Course A", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://a/2", link)
	link, err = s.LessonLink(ctx, "Nope", 2)
	require.NoError(t, err)
	assert.Empty(t, link)
	link, err = s.CourseLink(ctx, "Course A")
	require.NoError(t, err)
	assert.Equal(t, "https://a", link)
	link, err = s.CourseLink(ctx, "Course B")
	require.NoError(t, err)
	assert.Empty(t, link)

	n, err := s.CourseCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	titles, err := s.CourseTitles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Course B", "Course A"}, titles)

	chunks, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, chunks)

	require.NoError(t, s.Clear(ctx))
	n, _ = s.CourseCount(ctx)
	assert.Zero(t, n)
}

func TestUpsert_SameCourseTwiceKeepsCounts(t *testing.T) {
	s := newStore(t)
	ingest(t, s, courseA)
	ingest(t, s, courseA)
	n, _ := s.CourseCount(context.Background())
	c, _ := s.ChunkCount(context.Background())
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, c)
}

func TestPrepareWritesNothingUntilWrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	ch, err := chunker.New(120, 20)
	require.NoError(t, err)

	p, err := s.Prepare(ctx, courseA, ch.ChunkCourse(courseA))
	require.NoError(t, err)
	assert.Equal(t, 2, p.Chunks())
	n, _ := s.CourseCount(ctx)
	c, _ := s.ChunkCount(ctx)
	assert.Zero(t, n)
	assert.Zero(t, c)

	require.NoError(t, s.Write(ctx, p))
	n, _ = s.CourseCount(ctx)
	c, _ = s.ChunkCount(ctx)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, c)
	got, err := s.ResolveCourseName(ctx, "Course A")
	require.NoError(t, err)
	assert.Equal(t, "Course A", got)
}
