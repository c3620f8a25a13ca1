// Package lexicon answers one question for the pipeline: is this word part
// of the corpus's natural language?
//
// The answer gates two behaviors: lowercase native words inside
// abbreviations are left alone by the token generator, and names or
// abbreviations that contain native words are flagged for review.
//
// Implementations:
//   - WordList — a dictionary file, one word per line.
//   - Cyrillic — accepts any all-Cyrillic word of two or more letters; the
//     fallback when no dictionary is available.
//   - Ollama   — asks a local model, caching verdicts (see ollama.go).
package lexicon

import (
	"strings"
	"unicode"

	"corpus-obfuscator/internal/artifact"
)

// Lexicon reports whether a word belongs to the natural language.
// Implementations must be safe for concurrent use.
type Lexicon interface {
	Contains(word string) bool
}

// WordList is a Lexicon backed by a fixed set of lowercase words.
type WordList struct {
	words map[string]struct{}
}

// NewWordList builds a WordList from the given words.
func NewWordList(words ...string) *WordList {
	w := &WordList{words: make(map[string]struct{}, len(words))}
	for _, word := range words {
		if word = strings.TrimSpace(word); word != "" {
			w.words[strings.ToLower(word)] = struct{}{}
		}
	}
	return w
}

// LoadWordList reads a dictionary file with one word per line.
func LoadWordList(path string) (*WordList, error) {
	lines, err := artifact.ReadLines(path)
	if err != nil {
		return nil, err
	}
	return NewWordList(lines...), nil
}

// Contains reports whether the lowercased word is in the list.
func (w *WordList) Contains(word string) bool {
	if len([]rune(word)) < 2 {
		return false
	}
	_, ok := w.words[strings.ToLower(word)]
	return ok
}

// Len returns the number of dictionary words.
func (w *WordList) Len() int { return len(w.words) }

// Cyrillic accepts every word made only of Cyrillic letters with at least
// two runes. It mirrors a morphological analyzer that tags any Cyrillic
// token as native vocabulary.
type Cyrillic struct{}

// Contains implements Lexicon.
func (Cyrillic) Contains(word string) bool {
	n := 0
	for _, r := range word {
		if !unicode.Is(unicode.Cyrillic, r) || !unicode.IsLetter(r) {
			return false
		}
		n++
	}
	return n >= 2
}

// CyrillicWords extracts Cyrillic word candidates from line: runs of
// Cyrillic letters that may contain apostrophes or hyphens. Apostrophes and
// hyphens are stripped from each returned word; the raw span is returned
// alongside for reporting.
func CyrillicWords(line string) (raw, clean []string) {
	var cur []rune
	flush := func() {
		// Trailing joiners are not part of the word.
		for len(cur) > 0 && isJoiner(cur[len(cur)-1]) {
			cur = cur[:len(cur)-1]
		}
		if len(cur) > 0 {
			raw = append(raw, string(cur))
			var b strings.Builder
			for _, r := range cur {
				if !isJoiner(r) {
					b.WriteRune(r)
				}
			}
			clean = append(clean, b.String())
		}
		cur = cur[:0]
	}
	for _, r := range line {
		switch {
		case unicode.Is(unicode.Cyrillic, r) && unicode.IsLetter(r):
			cur = append(cur, r)
		case isJoiner(r) && len(cur) > 0:
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return raw, clean
}

func isJoiner(r rune) bool {
	return r == '\'' || r == '’' || r == '-'
}
