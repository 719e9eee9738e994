package domain

import (
	"fmt"
)

// Filter restricts a content search. Zero fields match everything; set
// fields are combined with AND.
type Filter struct {
	CourseTitle  string
	LessonNumber *int
}

// IsZero reports whether the filter matches every chunk.
func (f Filter) IsZero() bool {
	return f.CourseTitle == "" && f.LessonNumber == nil
}

// Matches reports whether a chunk at (course, lesson) passes the filter.
func (f Filter) Matches(courseTitle string, lessonNumber int) bool {
	if f.CourseTitle != "" && f.CourseTitle != courseTitle {
		return false
	}
	if f.LessonNumber != nil && *f.LessonNumber != lessonNumber {
		return false
	}
	return true
}

// Source describes where a retrieved passage came from.
type Source struct {
	CourseTitle  string `json:"course_title"`
	LessonNumber *int   `json:"lesson_number,omitempty"`
	Link         string `json:"link,omitempty"`
}

// Text renders the source the way passage headers name it.
func (s Source) Text() string {
	if s.LessonNumber == nil {
		return s.CourseTitle
	}
	return fmt.Sprintf("%s - Lesson %d", s.CourseTitle, *s.LessonNumber)
}

// SearchResult is one ranked chunk from the content index.
type SearchResult struct {
	Chunk   Chunk   `json:"chunk"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Header is the provenance line placed above a passage.
func (r SearchResult) Header() string {
	return fmt.Sprintf("[%s - Lesson %d]", r.Chunk.CourseTitle, r.Chunk.LessonNumber)
}

// RetrieveRequest is the input of a retrieval. Hints are optional.
type RetrieveRequest struct {
	Query      string
	CourseHint *string
	LessonHint *int
	Limit      int
}

// Retrieval is the outcome of a retrieval. Results, Passages and Sources
// are index-aligned.
type Retrieval struct {
	ResolvedCourse string
	Results        []SearchResult
	Passages       []string
	Sources        []Source
}

// Empty reports whether nothing was retrieved.
func (r Retrieval) Empty() bool { return len(r.Results) == 0 }

// CourseStats summarizes the catalog.
type CourseStats struct {
	Total  int      `json:"total_courses"`
	Titles []string `json:"course_titles"`
}

// IntPtr and StringPtr build optional hint values.
func IntPtr(v int) *int { return &v }

func StringPtr(v string) *string { return &v }
