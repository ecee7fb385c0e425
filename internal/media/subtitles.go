package media

import (
	"fmt"
	"strings"
)

// maxWordsPerCue keeps each cue readable at short-video pacing.
const maxWordsPerCue = 8

// BuildSRT turns narration text into numbered SRT cues spread across the
// clip duration. Cue lengths are weighted by word count so long sentences
// stay on screen longer. Empty text yields an empty document.
func BuildSRT(text string, durationSeconds int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}
	if durationSeconds <= 0 {
		durationSeconds = len(words) / 3
		if durationSeconds < 4 {
			durationSeconds = 4
		}
	}

	cues := groupCues(words)
	totalMillis := durationSeconds * 1000

	var b strings.Builder
	start := 0
	counted := 0
	for i, cue := range cues {
		counted += len(cue)
		end := totalMillis * counted / len(words)
		if i == len(cues)-1 {
			end = totalMillis
		}
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, formatSRTTime(start), formatSRTTime(end), strings.Join(cue, " "))
		start = end
	}
	return b.String()
}

// groupCues closes a cue at sentence punctuation or once it reaches the word
// cap, whichever comes first.
func groupCues(words []string) [][]string {
	var cues [][]string
	var current []string
	for _, word := range words {
		current = append(current, word)
		if len(current) >= maxWordsPerCue || endsSentence(word) {
			cues = append(cues, current)
			current = nil
		}
	}
	if len(current) > 0 {
		cues = append(cues, current)
	}
	return cues
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, `"')`)
	return strings.HasSuffix(trimmed, ".") || strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?")
}

func formatSRTTime(millis int) string {
	if millis < 0 {
		millis = 0
	}
	hours := millis / 3600000
	minutes := millis % 3600000 / 60000
	seconds := millis % 60000 / 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis%1000)
}
