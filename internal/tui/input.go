package tui

import (
	"fmt"
	"strconv"
	"strings"

	"courserag/internal/domain"
)

// ParseInput reads a query line of the form
//
//	[@course name:] [#lesson] question
//
// into a retrieval request. Both hints are optional.
func ParseInput(line string) (domain.RetrieveRequest, error) {
	var req domain.RetrieveRequest
	rest := strings.TrimSpace(line)

	if after, ok := strings.CutPrefix(rest, "@"); ok {
		course, query, found := strings.Cut(after, ":")
		if !found {
			return req, fmt.Errorf("%w: course hint must end with ':'", domain.ErrInvalidInput)
		}
		course = strings.TrimSpace(course)
		if course == "" {
			return req, fmt.Errorf("%w: empty course hint", domain.ErrInvalidInput)
		}
		req.CourseHint = &course
		rest = strings.TrimSpace(query)
	}

	if after, ok := strings.CutPrefix(rest, "#"); ok {
		num, query, _ := strings.Cut(after, " ")
		n, err := strconv.Atoi(num)
		if err != nil || n < 0 {
			return req, fmt.Errorf("%w: lesson hint %q is not a lesson number", domain.ErrInvalidInput, "#"+num)
		}
		req.LessonHint = &n
		rest = strings.TrimSpace(query)
	}

	if rest == "" {
		return req, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	req.Query = rest
	return req, nil
}
