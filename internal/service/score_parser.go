package service

import (
	"math"
	"strconv"
	"strings"
)

const scoreMarker = "score:"

var lineBreaks = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// ParseScore extracts the numeric score from free-form grading feedback.
//
// The first line containing "score:" (any case) is used; the value is the text
// after the first marker on that line and before the first "/", trimmed.
// "Score: 8.5/10" yields 8.5. It returns nil when no line matches or the value
// is not a finite number. Only that first matching line is considered.
func ParseScore(feedback string) *float64 {
	for _, line := range strings.Split(lineBreaks.Replace(feedback), "\n") {
		idx := indexFold(line, scoreMarker)
		if idx < 0 {
			continue
		}

		value := line[idx+len(scoreMarker):]
		if slash := strings.IndexByte(value, '/'); slash >= 0 {
			value = value[:slash]
		}

		score, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil || math.IsNaN(score) || math.IsInf(score, 0) {
			return nil
		}
		return &score
	}
	return nil
}

// indexFold is strings.Index with ASCII case folding.
func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}
	return -1
}
