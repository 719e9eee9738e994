package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"title", "MCP Server Development", []string{"mcp", "serv", "development"}},
		{"stop words and short words", "Intro to X", []string{"intro"}},
		{"stemming", "Quantum Basket Weaving", []string{"quantum", "basket", "weav"}},
		{"punctuation", "what's covered in lesson 2?", []string{"cover", "lesson"}},
		{"empty", "   ", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.in))
		})
	}
}

func TestStem(t *testing.T) {
	assert.Equal(t, "compress", stem("compression"))
	assert.Equal(t, "optimizat", stem("optimization"))
	assert.Equal(t, "advanc", stem("advanced"))
	assert.Equal(t, "lesson", stem("lessons"))
	// Too short to strip.
	assert.Equal(t, "us", stem("us"))
}

func TestIsStopWord(t *testing.T) {
	assert.True(t, IsStopWord("the"))
	assert.False(t, IsStopWord("lesson"))
}
