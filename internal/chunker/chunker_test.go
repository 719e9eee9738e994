package chunker

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/domain"
)

type want struct {
	text    string
	overlap int
	offset  int
}

func collect(t *testing.T, size, overlap int, body string) []domain.Chunk {
	t.Helper()
	c, err := New(size, overlap)
	require.NoError(t, err)
	return slices.Collect(c.Chunks("Intro to X", domain.Lesson{Number: 2, Body: body}))
}

func assertChunks(t *testing.T, got []domain.Chunk, expected []want) {
	t.Helper()
	require.Len(t, got, len(expected))
	for i, w := range expected {
		assert.Equal(t, w.text, got[i].Text, "chunk %d text", i)
		assert.Equal(t, w.overlap, got[i].Overlap, "chunk %d overlap", i)
		assert.Equal(t, w.offset, got[i].Offset, "chunk %d offset", i)
		assert.Equal(t, i, got[i].Index)
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = New(10, 10)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	_, err = New(10, -1)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	c, err := New(800, 100)
	require.NoError(t, err)
	assert.Equal(t, 800, c.Size())
	assert.Equal(t, 100, c.Overlap())
}

func TestChunks_PacksWholeSentences(t *testing.T) {
	got := collect(t, 40, 0, "One two. Three four. Five six seven eight nine ten eleven.")
	assertChunks(t, got, []want{
		{"One two. Three four. ", 0, 0},
		{"Five six seven eight nine ten eleven.", 0, 21},
	})
}

func TestChunks_OverlapStartsAtWord(t *testing.T) {
	got := collect(t, 24, 8, "Alpha beta gamma. Delta epsilon zeta. Eta theta iota.")
	assertChunks(t, got, []want{
		{"Alpha beta gamma. ", 0, 0},
		{"gamma. Delta epsilon ", 7, 18},
		{"epsilon zeta. ", 8, 32},
		{"zeta. Eta theta iota.", 6, 38},
	})
}

func TestChunks_HardSplitsLongWord(t *testing.T) {
	got := collect(t, 10, 3, "Supercalifragilisticexpialidocious")
	assertChunks(t, got, []want{
		{"Supercalif", 0, 0},
		{"lifragilis", 3, 10},
		{"listicexpi", 3, 17},
		{"xpialidoci", 3, 24},
		{"ocious", 3, 31},
	})
}

func TestChunks_EmptyBody(t *testing.T) {
	assert.Empty(t, collect(t, 10, 2, ""))
	assert.Empty(t, collect(t, 10, 2, " \n\t "))
}

func TestChunks_Metadata(t *testing.T) {
	got := collect(t, 20, 5, "First sentence here. Second sentence here. Third one.")
	require.NotEmpty(t, got)
	for i, ch := range got {
		assert.Equal(t, "Intro to X", ch.CourseTitle)
		assert.Equal(t, 2, ch.LessonNumber)
		assert.Equal(t, domain.ChunkID("Intro to X", 2, i), ch.ID)
		assert.True(t, strings.HasPrefix(ch.Content(), "Course Intro to X Lesson 2: "))
	}
}

func TestChunks_Restartable(t *testing.T) {
	c, err := New(30, 10)
	require.NoError(t, err)
	seq := c.Chunks("T", domain.Lesson{Number: 1, Body: sampleBody})
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
	assert.Greater(t, len(first), 1)
}

func TestChunks_StopsWhenConsumerStops(t *testing.T) {
	c, err := New(30, 10)
	require.NoError(t, err)
	n := 0
	for range c.Chunks("T", domain.Lesson{Body: sampleBody}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestChunkCourse(t *testing.T) {
	c, err := New(50, 0)
	require.NoError(t, err)
	course := domain.Course{Title: "T", Lessons: []domain.Lesson{
		{Number: 0, Body: "Short lesson."},
		{Number: 1, Body: ""},
		{Number: 4, Body: "Another short lesson."},
	}}
	got := c.ChunkCourse(course)
	require.Len(t, got, 2)
	assert.Equal(t, 0, got[0].LessonNumber)
	assert.Equal(t, 4, got[1].LessonNumber)
	assert.Equal(t, 0, got[1].Index)
}

const sampleBody = `Welcome to Building Toward Computer Use with Anthropic. Built in partnership with Anthropic, where I'm happy to have with us Colt Steele, Anthropic's Head of Curriculum.
This course will teach you how to use many of the models' features! Do you know about prompt caching? It saves cost and latency.
Ünïcödé sentences should split by rune · not by byte… and a very-long-token-without-any-spaces-at-all-that-must-be-hard-split-somewhere-in-the-middle ends here.`

// Concatenating the non-overlap part of every chunk reproduces the body,
// and no chunk exceeds the size limit, for every valid size/overlap pair.
func TestChunks_RoundTripAndBounds(t *testing.T) {
	for size := 1; size <= 60; size++ {
		for overlap := 0; overlap < size; overlap += max(1, size/7) {
			c, err := New(size, overlap)
			require.NoError(t, err)

			var rebuilt strings.Builder
			idx := 0
			for ch := range c.Chunks("T", domain.Lesson{Number: 1, Body: sampleBody}) {
				n := utf8.RuneCountInString(ch.Text)
				require.LessOrEqual(t, n, size, "size=%d overlap=%d chunk=%d", size, overlap, idx)
				require.Less(t, ch.Overlap, n, "size=%d overlap=%d chunk=%d", size, overlap, idx)
				require.LessOrEqual(t, ch.Overlap, overlap)
				require.Equal(t, idx, ch.Index)
				if idx == 0 {
					require.Zero(t, ch.Overlap)
				}
				require.Equal(t, utf8.RuneCountInString(rebuilt.String()), ch.Offset)
				rebuilt.WriteString(ch.Fresh())
				idx++
			}
			require.Equal(t, sampleBody, rebuilt.String(), "size=%d overlap=%d", size, overlap)
		}
	}
}
