package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SplitText splits a long string into chunks of at most 'chunkSize' runes.
// It includes an 'overlap' to preserve context at boundaries.
// A chunk ends at the last paragraph break, sentence end or space inside the
// final fifth of its window, so words are not cut in half when avoidable.
func SplitText(text string, chunkSize int, overlap int) []string {
	runes := []rune(text)
	totalLen := len(runes)
	if chunkSize <= 0 || totalLen <= chunkSize {
		return []string{text}
	}

	var chunks []string
	for i := 0; i < totalLen; {
		end := i + chunkSize
		if end >= totalLen {
			chunks = append(chunks, string(runes[i:]))
			break
		}
		end = boundary(runes, i, end)
		chunks = append(chunks, string(runes[i:end]))

		next := end - overlap
		if next <= i {
			next = end // fallback if overlap >= chunk length
		}
		i = next
	}

	return chunks
}

// boundary picks the best cut in runes[start:end], searching back at most a fifth of the window.
func boundary(runes []rune, start, end int) int {
	floor := end - (end-start)/5
	if floor <= start {
		return end
	}
	best := -1
	for j := end - 1; j >= floor; j-- {
		if runes[j] == '\n' && j > start && runes[j-1] == '\n' {
			return j + 1
		}
		if best < 0 && j+2 <= end && (runes[j] == '.' || runes[j] == '?' || runes[j] == '!') && unicode.IsSpace(runes[j+1]) {
			best = j + 2
		}
	}
	if best > 0 {
		return best
	}
	for j := end - 1; j >= floor; j-- {
		if unicode.IsSpace(runes[j]) {
			return j + 1
		}
	}
	return end
}

// EstimateTokens approximates a token count as runes / charsPerToken, rounded up.
func EstimateTokens(text string, charsPerToken int) int {
	if charsPerToken <= 0 {
		charsPerToken = 4
	}
	n := utf8.RuneCountInString(text)
	return (n + charsPerToken - 1) / charsPerToken
}

// TruncateRunes cuts s to at most max runes without splitting a character.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

// CountWords counts whitespace-separated words.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
