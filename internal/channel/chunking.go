package channel

import (
	"strings"
	"unicode"
)

// DefaultMaxLength keeps chunks under Telegram's 4096 character cap.
const DefaultMaxLength = 4000

// SplitMessage splits text into chunks of at most maxLen characters. Each
// cut is made at the last paragraph break that fits, else the last line
// break, else the last space, else exactly at maxLen. Whitespace at the
// start of the following chunk is dropped. Empty text yields no chunks.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxLength
	}

	remaining := []rune(text)
	if len(remaining) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(remaining) > 0 {
		if len(remaining) <= maxLen {
			chunks = append(chunks, string(remaining))
			break
		}

		window := string(remaining[:maxLen])
		cut := lastIndexRunes(window, "\n\n")
		if cut <= 0 {
			cut = lastIndexRunes(window, "\n")
		}
		if cut <= 0 {
			cut = lastIndexRunes(window, " ")
		}
		if cut <= 0 {
			cut = maxLen
		}

		chunks = append(chunks, string(remaining[:cut]))
		remaining = []rune(strings.TrimLeftFunc(string(remaining[cut:]), unicode.IsSpace))
	}
	return chunks
}

// lastIndexRunes is strings.LastIndex measured in runes.
func lastIndexRunes(s, sep string) int {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return -1
	}
	return len([]rune(s[:i]))
}
