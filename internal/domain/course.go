// Package domain holds the course, lesson and chunk types shared by the
// parser, chunker, store and retrieval layers.
package domain

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Course is one parsed course document. Title is unique across the corpus
// and is the only key joining the catalog and content indices.
type Course struct {
	Title      string   `json:"title"`
	Link       string   `json:"link,omitempty"`
	Instructor string   `json:"instructor,omitempty"`
	Lessons    []Lesson `json:"lessons,omitempty"`
}

// Lesson is a numbered section of a course. Body is not persisted in the
// catalog payload; Summary is, for outlines.
type Lesson struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Link    string `json:"link,omitempty"`
	Summary string `json:"summary,omitempty"`
	Body    string `json:"-"`
}

// Lesson returns the lesson with the given number.
func (c Course) Lesson(number int) (Lesson, bool) {
	for _, l := range c.Lessons {
		if l.Number == number {
			return l, true
		}
	}
	return Lesson{}, false
}

// Chunk is a contiguous slice of one lesson's body. The first Overlap runes
// of Text repeat the tail of the previous chunk; Offset is the rune offset
// in the body where the non-repeated part starts.
type Chunk struct {
	ID           string `json:"id"`
	CourseTitle  string `json:"course_title"`
	LessonNumber int    `json:"lesson_number"`
	Index        int    `json:"chunk_index"`
	Text         string `json:"text"`
	Overlap      int    `json:"overlap"`
	Offset       int    `json:"offset"`
}

// Prefix is the context header stored and embedded with every chunk.
func (c Chunk) Prefix() string {
	return fmt.Sprintf("Course %s Lesson %d: ", c.CourseTitle, c.LessonNumber)
}

// Content is the stored form of the chunk: prefix plus text.
func (c Chunk) Content() string {
	return c.Prefix() + c.Text
}

// Fresh returns the part of Text that is not repeated from the previous chunk.
func (c Chunk) Fresh() string {
	r := []rune(c.Text)
	if c.Overlap >= len(r) {
		return ""
	}
	return string(r[c.Overlap:])
}

// idNamespace scopes the deterministic UUIDs used as index keys.
var idNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e39-9a0c-3d8f2b1e7c45")

// ChunkID derives the stable key of a chunk from its position. Re-chunking
// the same lesson yields the same IDs, so writes replace in place.
func ChunkID(courseTitle string, lessonNumber, index int) string {
	key := courseTitle + "\x00" + strconv.Itoa(lessonNumber) + "\x00" + strconv.Itoa(index)
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// CourseID derives the stable catalog key of a course title.
func CourseID(title string) string {
	return uuid.NewSHA1(idNamespace, []byte("course\x00"+title)).String()
}
