// Package chunker splits lesson bodies into bounded, overlapping chunks.
//
// Bodies are segmented at sentence ends (terminal punctuation followed by
// whitespace) and at line breaks. Whole segments are packed greedily; a
// segment that cannot fit is hard-split, preferring a whitespace cut. Every
// chunk after the first opens with up to Overlap runes from the end of the
// previous one, advanced to a word start. All lengths are in runes.
package chunker

import (
	"fmt"
	"iter"
	"strings"
	"unicode"

	"courserag/internal/domain"
)

// Chunker produces chunks of at most Size runes.
type Chunker struct {
	size    int
	overlap int
}

// New validates 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", domain.ErrInvalidInput, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", domain.ErrInvalidInput, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

func (c *Chunker) Size() int    { return c.size }
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks returns the lesson's chunks as a lazy sequence. Each range over the
// sequence recomputes it from the body, so it can be iterated any number of
// times.
func (c *Chunker) Chunks(courseTitle string, lesson domain.Lesson) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		if strings.TrimSpace(lesson.Body) == "" {
			return
		}
		body := []rune(lesson.Body)
		bounds := boundaries(body)

		pos, prevStart, index := 0, 0, 0
		for pos < len(body) {
			start := pos
			if index > 0 && c.overlap > 0 {
				start = c.overlapStart(body, prevStart, pos)
			}
			capacity := c.size - (pos - start)

			end := pos
			for _, b := range bounds {
				if b <= pos {
					continue
				}
				if b-pos > capacity {
					break
				}
				end = b
			}
			if end == pos {
				end = hardSplit(body, pos, capacity)
			}

			chunk := domain.Chunk{
				ID:           domain.ChunkID(courseTitle, lesson.Number, index),
				CourseTitle:  courseTitle,
				LessonNumber: lesson.Number,
				Index:        index,
				Text:         string(body[start:end]),
				Overlap:      pos - start,
				Offset:       pos,
			}
			if !yield(chunk) {
				return
			}
			prevStart, pos = start, end
			index++
		}
	}
}

// ChunkCourse collects the chunks of every lesson in document order.
func (c *Chunker) ChunkCourse(course domain.Course) []domain.Chunk {
	var out []domain.Chunk
	for _, lesson := range course.Lessons {
		for chunk := range c.Chunks(course.Title, lesson) {
			out = append(out, chunk)
		}
	}
	return out
}

// overlapStart picks where the repeated region of the next chunk begins. It
// never reaches back past the previous chunk's own start.
func (c *Chunker) overlapStart(body []rune, prevStart, pos int) int {
	start := max(prevStart, pos-c.overlap)
	if start > 0 && !unicode.IsSpace(body[start-1]) && !unicode.IsSpace(body[start]) {
		k := start
		for k < pos && !unicode.IsSpace(body[k]) {
			k++
		}
		if k < pos {
			start = k
		}
	}
	for start < pos && unicode.IsSpace(body[start]) {
		start++
	}
	return start
}

// hardSplit cuts an oversized segment. It prefers the last whitespace in
// the back half of the window and otherwise cuts at capacity.
func hardSplit(body []rune, pos, capacity int) int {
	limit := min(pos+capacity, len(body))
	for k := limit; k > pos+capacity/2; k-- {
		if unicode.IsSpace(body[k-1]) {
			return k
		}
	}
	return limit
}

// boundaries returns the end offsets of the body's segments. A segment ends
// after a whitespace run that follows '.', '!' or '?' or contains a newline.
// The last offset is always len(body).
func boundaries(body []rune) []int {
	var out []int
	for i := 0; i < len(body); {
		if !unicode.IsSpace(body[i]) {
			i++
			continue
		}
		j, newline := i, false
		for j < len(body) && unicode.IsSpace(body[j]) {
			if body[j] == '\n' {
				newline = true
			}
			j++
		}
		if newline || (i > 0 && isTerminal(body[i-1])) {
			out = append(out, j)
		}
		i = j
	}
	if len(out) == 0 || out[len(out)-1] != len(body) {
		out = append(out, len(body))
	}
	return out
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
