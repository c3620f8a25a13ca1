package finalizer

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/logger"
)

// Entry is one key → value pair of the term map.
type Entry struct {
	Key   string
	Value string
}

// LoadEntries reads the term map at path and returns it in application
// order (see Order).
func LoadEntries(path string, log *logger.Logger) ([]Entry, error) {
	t, err := artifact.ReadTable(path)
	if err != nil {
		return nil, fmt.Errorf("load term map: %w", err)
	}
	return Order(t.Pairs(), log), nil
}

// Order sorts pairs by case-folded key, ascending and stable, then
// reverses the result. Longer keys sharing a prefix with shorter ones sort
// after them, so reversal applies "AT-ST" before "AT". Empty keys are
// dropped.
func Order(pairs []artifact.Pair, log *logger.Logger) []Entry {
	if log == nil {
		log = logger.Discard()
	}
	entries := make([]Entry, 0, len(pairs))
	keys := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.Key == "" {
			log.Warn("load_map", "skipping entry with empty key")
			continue
		}
		entries = append(entries, Entry{Key: p.Key, Value: p.Value})
		keys = append(keys, artifact.FoldKey(p.Key))
	}
	idx := make([]int, len(entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	out := make([]Entry, len(entries))
	for i, j := range idx {
		out[len(out)-1-i] = entries[j]
	}
	return out
}

// AdjustCase shapes value after the matched text: the first rune of value
// is upper-cased when the first rune of matched is uppercase and
// lower-cased otherwise. The rest of value is untouched.
func AdjustCase(matched, value string) string {
	if value == "" {
		return ""
	}
	vr := []rune(value)
	first := []rune(matched)
	if len(first) > 0 && unicode.IsUpper(first[0]) {
		vr[0] = unicode.ToUpper(vr[0])
	} else {
		vr[0] = unicode.ToLower(vr[0])
	}
	return string(vr)
}

// isBoundary reports whether a match may start right after r.
func isBoundary(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '"', '«', '»', '_', '(', '[', '-':
		return true
	}
	return false
}

func foldEqual(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b) || unicode.ToUpper(a) == unicode.ToUpper(b)
}

// Substitution identifies one kind of replacement within a document.
type Substitution struct {
	Matched     string
	Replacement string
}

// Record is a Substitution with its occurrence count.
type Record struct {
	Substitution
	Count int
}

// replaceEntry performs one left-to-right pass of e over text. A match
// starts at the beginning of text or after a boundary rune; nothing is
// required after it.
func replaceEntry(text []rune, e Entry, key []rune, counts map[Substitution]int) []rune {
	if len(key) == 0 || len(key) > len(text) {
		return text
	}
	var out []rune
	last := 0
	for i := 0; i+len(key) <= len(text); {
		if i > 0 && !isBoundary(text[i-1]) {
			i++
			continue
		}
		match := true
		for k := range key {
			if !foldEqual(text[i+k], key[k]) {
				match = false
				break
			}
		}
		if !match {
			i++
			continue
		}
		matched := string(text[i : i+len(key)])
		repl := AdjustCase(matched, e.Value)
		if counts != nil {
			counts[Substitution{matched, repl}]++
		}
		out = append(out, text[last:i]...)
		out = append(out, []rune(repl)...)
		i += len(key)
		last = i
	}
	if out == nil {
		return text
	}
	return append(out, text[last:]...)
}

// ReplaceText applies entries in order to text and returns the result with
// per-substitution counts. Each entry works on the output of the previous
// one.
func ReplaceText(text string, entries []Entry) (string, map[Substitution]int) {
	counts := make(map[Substitution]int)
	rs := []rune(text)
	for _, e := range entries {
		rs = replaceEntry(rs, e, []rune(e.Key), counts)
	}
	return string(rs), counts
}

// ReplaceFilename applies entries to the stem of name; the extension is
// kept as is.
func ReplaceFilename(name string, entries []Entry) string {
	ext := filepath.Ext(name)
	rs := []rune(strings.TrimSuffix(name, ext))
	for _, e := range entries {
		rs = replaceEntry(rs, e, []rune(e.Key), nil)
	}
	return string(rs) + ext
}

// Records flattens counts into a list sorted by matched text, then
// replacement.
func Records(counts map[Substitution]int) []Record {
	out := make([]Record, 0, len(counts))
	for s, n := range counts {
		out = append(out, Record{Substitution: s, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Matched != out[j].Matched {
			return out[i].Matched < out[j].Matched
		}
		return out[i].Replacement < out[j].Replacement
	})
	return out
}
