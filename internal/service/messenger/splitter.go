package messenger

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/zhouzirui/messenger-relay/backend/internal/model/messenger"
)

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n\s*`)
	wordPattern    = regexp.MustCompile(`\S+\s*`)
)

// Split breaks text into chunks of at most limit runes. It prefers paragraph
// boundaries, then sentence boundaries, then words, and cuts inside a word
// only when a single word is longer than limit. Chunks are trimmed; joining
// them reproduces text up to whitespace.
func Split(text string, limit int) []string {
	if limit <= 0 {
		limit = messenger.DefaultMessageLimit
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if utf8.RuneCountInString(trimmed) <= limit {
		return []string{trimmed}
	}

	fits := func(s string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s)) <= limit
	}

	var units []string
	for _, paragraph := range splitParagraphs(text) {
		if fits(paragraph) {
			units = append(units, paragraph)
			continue
		}
		for _, sentence := range splitSentences(paragraph) {
			if fits(sentence) {
				units = append(units, sentence)
				continue
			}
			for _, word := range wordPattern.FindAllString(sentence, -1) {
				if fits(word) {
					units = append(units, word)
					continue
				}
				core := strings.TrimRightFunc(word, unicode.IsSpace)
				pieces := splitRunes(core, limit)
				pieces[len(pieces)-1] += word[len(core):]
				units = append(units, pieces...)
			}
		}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if chunk := strings.TrimSpace(current.String()); chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
	}
	for _, unit := range units {
		if fits(current.String() + unit) {
			current.WriteString(unit)
			continue
		}
		flush()
		current.WriteString(unit)
	}
	flush()

	return chunks
}

// splitParagraphs cuts after every blank line, keeping the separators.
func splitParagraphs(text string) []string {
	var parts []string
	prev := 0
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		parts = append(parts, text[prev:loc[1]])
		prev = loc[1]
	}
	if prev < len(text) {
		parts = append(parts, text[prev:])
	}
	return parts
}

// splitSentences cuts after terminal punctuation (plus closing quotes and
// brackets) that is followed by whitespace, and after line breaks. Trailing
// whitespace stays with the sentence.
func splitSentences(text string) []string {
	runes := []rune(text)
	var parts []string
	start := 0
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		end := -1
		switch {
		case r == '\n':
			end = i + 1
		case isTerminal(r):
			j := i + 1
			for j < len(runes) && (isTerminal(runes[j]) || isClosing(runes[j])) {
				j++
			}
			if j == len(runes) || unicode.IsSpace(runes[j]) || isWideTerminal(r) {
				end = j
			}
		}
		if end == -1 {
			continue
		}
		for end < len(runes) && unicode.IsSpace(runes[end]) {
			end++
		}
		parts = append(parts, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}

func splitRunes(word string, limit int) []string {
	runes := []rune(word)
	parts := make([]string, 0, len(runes)/limit+1)
	for len(runes) > limit {
		parts = append(parts, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		parts = append(parts, string(runes))
	}
	return parts
}

func isTerminal(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return isWideTerminal(r)
}

func isWideTerminal(r rune) bool {
	switch r {
	case '。', '！', '？':
		return true
	}
	return false
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '»', '」':
		return true
	}
	return false
}
