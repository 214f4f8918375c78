package enrichment

import (
	"math"
	"regexp"
	"strings"

	"videogenie/internal/models"
)

// WordsPerMinute is the narration pace used for timing estimates.
const WordsPerMinute = 150

var sentenceEnd = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits on sentence punctuation followed by whitespace,
// keeping the punctuation and dropping empty pieces.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var out []string
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start : m[0]+1]); s != "" {
			out = append(out, s)
		}
		start = m[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

// EstimateSeconds is the speaking time of text at WordsPerMinute, to 2 decimals.
func EstimateSeconds(text string) float64 {
	words := len(strings.Fields(text))
	return round2(float64(words) / WordsPerMinute * 60)
}

// Segments times each sentence of script back to back and returns the total.
func Segments(script string) ([]models.Segment, float64) {
	sentences := SplitSentences(script)
	segs := make([]models.Segment, 0, len(sentences))
	var at float64
	for _, s := range sentences {
		d := EstimateSeconds(s)
		segs = append(segs, models.Segment{Text: s, StartS: round2(at), Seconds: d})
		at += d
	}
	return segs, round2(at)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
