// Package parser reads the plain-text course document format:
//
//	Course Title: <title>
//	Course Link: <url>            (optional)
//	Course Instructor: <name>     (optional)
//
//	Lesson 0: <lesson title>
//	Lesson Link: <url>            (optional, directly after the marker)
//	<body lines>
//	Lesson 1: ...
//
// Header fields must appear in that order, at most once each. Blank lines
// and lines starting with '#' are ignored before the first lesson. Anything
// else before the first lesson is rejected.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"courserag/internal/domain"
)

// ParseError reports where and why a document was rejected. It unwraps to
// domain.ErrMalformedDocument or domain.ErrEmptyDocument.
type ParseError struct {
	Line   int
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%v: line %d: %s", e.Err, e.Line, e.Reason)
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

var lessonMarker = regexp.MustCompile(`^Lesson\s+(\d+):\s*(.*)$`)

const lessonLinkField = "Lesson Link:"

// header fields in their required order
var headerFields = []string{"Course Title", "Course Link", "Course Instructor"}

func malformed(line int, format string, args ...any) error {
	return &ParseError{Line: line, Reason: fmt.Sprintf(format, args...), Err: domain.ErrMalformedDocument}
}

// Parse converts one raw document into a Course.
func Parse(raw string) (domain.Course, error) {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	var (
		course     domain.Course
		seenHeader = -1
		current    *domain.Lesson
		body       []string
		markerLine = -1
		numbers    = make(map[int]int)
		content    bool
	)

	closeLesson := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(strings.Join(body, "\n"))
		course.Lessons = append(course.Lessons, *current)
		current, body = nil, nil
	}

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if m := lessonMarker.FindStringSubmatch(trimmed); m != nil {
			content = true
			if course.Title == "" {
				return domain.Course{}, malformed(lineNo, "lesson marker before Course Title")
			}
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return domain.Course{}, malformed(lineNo, "lesson number %q: %v", m[1], err)
			}
			title := strings.TrimSpace(m[2])
			if title == "" {
				return domain.Course{}, malformed(lineNo, "lesson %d has no title", n)
			}
			if prev, dup := numbers[n]; dup {
				return domain.Course{}, malformed(lineNo, "lesson %d already declared on line %d", n, prev)
			}
			numbers[n] = lineNo
			closeLesson()
			current = &domain.Lesson{Number: n, Title: title}
			markerLine = i
			continue
		}

		if current != nil {
			if i == markerLine+1 && strings.HasPrefix(trimmed, lessonLinkField) {
				current.Link = strings.TrimSpace(strings.TrimPrefix(trimmed, lessonLinkField))
				continue
			}
			body = append(body, line)
			continue
		}

		// header area
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		content = true
		key, value, ok := strings.Cut(trimmed, ":")
		rank := -1
		if ok {
			for r, field := range headerFields {
				if strings.TrimSpace(key) == field {
					rank = r
					break
				}
			}
		}
		if rank < 0 {
			return domain.Course{}, malformed(lineNo, "unexpected text before first lesson: %q", trimmed)
		}
		if rank <= seenHeader {
			return domain.Course{}, malformed(lineNo, "%s out of order or repeated", headerFields[rank])
		}
		if rank > 0 && course.Title == "" {
			return domain.Course{}, malformed(lineNo, "%s before Course Title", headerFields[rank])
		}
		seenHeader = rank
		value = strings.TrimSpace(value)
		switch rank {
		case 0:
			if value == "" {
				return domain.Course{}, malformed(lineNo, "Course Title is empty")
			}
			course.Title = value
		case 1:
			course.Link = value
		case 2:
			course.Instructor = value
		}
	}
	closeLesson()

	if !content {
		return domain.Course{}, &ParseError{Reason: "no content", Err: domain.ErrEmptyDocument}
	}
	if course.Title == "" {
		return domain.Course{}, malformed(0, "missing Course Title")
	}
	return course, nil
}
