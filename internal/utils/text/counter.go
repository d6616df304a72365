// Package text provides rune-aware helpers for sizing outgoing messages.
//
// Messaging APIs limit message length in characters, not bytes, so every
// helper here counts runes. Summaries routinely contain emoji and
// non-Latin scripts.
package text

import (
	"strings"
	"unicode/utf8"
)

// CountRunes counts the number of Unicode characters (runes) in the given text.
//
// Examples:
//
//	CountRunes("hello")    // returns 5
//	CountRunes("こんにちは")  // returns 5
//	CountRunes("Hello👋")   // returns 6
func CountRunes(text string) int {
	return utf8.RuneCountInString(text)
}

// Truncate shortens text to at most maxRunes runes. When text is cut, suffix
// is appended and counted against maxRunes.
func Truncate(text string, maxRunes int, suffix string) string {
	if maxRunes <= 0 {
		return ""
	}
	if CountRunes(text) <= maxRunes {
		return text
	}

	keep := maxRunes - CountRunes(suffix)
	if keep <= 0 {
		return string([]rune(suffix)[:maxRunes])
	}
	return string([]rune(text)[:keep]) + suffix
}

// SplitMessage breaks text into parts of at most limit runes.
//
// Lines are kept together where possible. A line longer than limit is split
// on whitespace, and a single word longer than limit is cut hard. Empty parts
// are never returned; an empty input yields nil.
func SplitMessage(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}
	if CountRunes(text) <= limit {
		return []string{text}
	}

	s := splitter{limit: limit}
	for _, line := range strings.Split(text, "\n") {
		if CountRunes(line) > limit {
			s.flush()
			for _, word := range strings.Fields(line) {
				s.addWord(word)
			}
			continue
		}
		s.addLine(line)
	}
	s.flush()
	return s.parts
}

type splitter struct {
	limit   int
	parts   []string
	current strings.Builder
	size    int
	started bool
}

func (s *splitter) addLine(line string) {
	n := CountRunes(line)
	if s.started && s.size+1+n > s.limit {
		s.flush()
	}
	if s.started {
		s.current.WriteByte('\n')
		s.size++
	}
	s.current.WriteString(line)
	s.size += n
	s.started = true
}

func (s *splitter) addWord(word string) {
	for CountRunes(word) > s.limit {
		s.flush()
		runes := []rune(word)
		s.parts = append(s.parts, string(runes[:s.limit]))
		word = string(runes[s.limit:])
	}

	n := CountRunes(word)
	if s.started && s.size+1+n > s.limit {
		s.flush()
	}
	if s.started {
		s.current.WriteByte(' ')
		s.size++
	}
	s.current.WriteString(word)
	s.size += n
	s.started = true
}

func (s *splitter) flush() {
	if s.started && strings.TrimSpace(s.current.String()) != "" {
		s.parts = append(s.parts, s.current.String())
	}
	s.current.Reset()
	s.size = 0
	s.started = false
}
