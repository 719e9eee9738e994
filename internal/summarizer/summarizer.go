// Package summarizer picks the most representative sentences of a lesson
// body for course outlines.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"courserag/internal/tokenizer"
)

var sentencePattern = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Summarize returns up to maxSentences sentences of text, in their original
// order, ranked by how many of the text's frequent terms they contain.
// Text without sentence punctuation is returned trimmed.
func Summarize(text string, maxSentences int) string {
	if maxSentences <= 0 {
		maxSentences = 1
	}
	sentences := sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text)
	}

	terms := make([][]string, len(sentences))
	freq := make(map[string]float64)
	for i, sent := range sentences {
		terms[i] = tokenizer.Terms(sent)
		for _, t := range terms[i] {
			freq[t]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = max(maxF, v)
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, t := range terms[i] {
			score += freq[t] / maxF
		}
		// dampen the advantage of long sentences
		if n := len(terms[i]); n > 0 {
			score /= math.Sqrt(float64(n))
		}
		scores[i] = ranked{i, score}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	selected := make([]int, min(maxSentences, len(scores)))
	for i := range selected {
		selected[i] = scores[i].idx
	}
	sort.Ints(selected)
	out := make([]string, len(selected))
	for i, idx := range selected {
		out[i] = strings.TrimSpace(sentences[idx])
	}
	return strings.Join(out, " ")
}
