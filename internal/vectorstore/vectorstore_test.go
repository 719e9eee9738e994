package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"courserag/internal/domain"
)

func TestMatches(t *testing.T) {
	chunk := Metadata{CourseTitle: "A", LessonNumber: domain.IntPtr(1)}
	catalog := Metadata{CourseTitle: "A"}

	assert.True(t, Matches(domain.Filter{}, chunk))
	assert.True(t, Matches(domain.Filter{CourseTitle: "A"}, chunk))
	assert.False(t, Matches(domain.Filter{CourseTitle: "B"}, chunk))
	assert.True(t, Matches(domain.Filter{LessonNumber: domain.IntPtr(1)}, chunk))
	assert.False(t, Matches(domain.Filter{LessonNumber: domain.IntPtr(2)}, chunk))
	assert.False(t, Matches(domain.Filter{LessonNumber: domain.IntPtr(1)}, catalog))
}
