package optimizer

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const minLineRunes = 4

var (
	pageMarker    = regexp.MustCompile(`(?i)^(page|pg\.?|p\.)\s*\d+(\s*(of|/)\s*\d+)?$`)
	chapterMarker = regexp.MustCompile(`(?i)^(chapter|section|part)\s+([0-9]+|[ivxlcdm]+)\.?$`)
	pureNumeral   = regexp.MustCompile(`^[\d\s.,:;/()%\-–—]+$`)
	sentenceEnd   = regexp.MustCompile(`[.!?]+(\s+|$)`)
	wordPattern   = regexp.MustCompile(`[\p{L}][\p{L}\-']+`)
)

// FilterLowValueLines drops very short lines, page and chapter markers and
// lines made only of numerals. Blank-line paragraph breaks are kept, collapsed to one.
func FilterLowValueLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(kept) > 0 && !blank {
				kept = append(kept, "")
				blank = true
			}
			continue
		}
		if isLowValue(trimmed) {
			continue
		}
		kept = append(kept, trimmed)
		blank = false
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func isLowValue(line string) bool {
	return utf8.RuneCountInString(line) < minLineRunes ||
		pageMarker.MatchString(line) ||
		chapterMarker.MatchString(line) ||
		pureNumeral.MatchString(line)
}

// AlphaRatio is the share of letters among non-space runes.
func AlphaRatio(text string) float64 {
	letters, total := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if unicode.IsLetter(r) {
			letters++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(letters) / float64(total)
}

// Sentences splits text at sentence-ending punctuation.
func Sentences(text string) []string {
	flat := strings.Join(strings.Fields(text), " ")
	if flat == "" {
		return nil
	}
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(flat, -1) {
		s := strings.TrimSpace(flat[last:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(flat[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

var stopwords = map[string]bool{
	"about": true, "above": true, "after": true, "again": true, "against": true, "among": true,
	"because": true, "before": true, "being": true, "below": true, "between": true, "both": true,
	"could": true, "does": true, "doing": true, "during": true, "each": true, "every": true,
	"first": true, "from": true, "further": true, "have": true, "having": true, "here": true,
	"itself": true, "might": true, "more": true, "most": true, "other": true, "over": true,
	"same": true, "should": true, "since": true, "some": true, "such": true, "than": true,
	"that": true, "their": true, "them": true, "then": true, "there": true, "these": true,
	"they": true, "this": true, "those": true, "through": true, "under": true, "until": true,
	"very": true, "what": true, "when": true, "where": true, "which": true, "while": true,
	"with": true, "within": true, "without": true, "would": true, "your": true, "also": true,
	"into": true, "only": true, "were": true, "will": true, "been": true, "many": true,
}

// KeyTerms returns up to limit frequent content words, most frequent first.
func KeyTerms(text string, limit int) []string {
	counts := make(map[string]int)
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if utf8.RuneCountInString(w) < 5 || stopwords[w] {
			continue
		}
		counts[w]++
	}
	terms := make([]string, 0, len(counts))
	for w, c := range counts {
		if c >= 2 {
			terms = append(terms, w)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if counts[terms[i]] != counts[terms[j]] {
			return counts[terms[i]] > counts[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}
