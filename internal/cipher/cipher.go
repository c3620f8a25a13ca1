// Package cipher disguises terminology with a reversible letter substitution.
//
// Cyrillic letters fall into three classes. Immutable letters are kept.
// Vowels and consonants are swapped with a fixed partner, and both tables
// are involutions: applying the cipher twice returns the original line.
// Everything else (Latin letters, digits, punctuation) is left alone.
//
// Quoted lines ("…", «…», »…«) are treated as phrases instead: their words
// are swapped for antonyms from a small fixed table.
package cipher

import (
	"regexp"
	"strings"
	"unicode"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/metrics"
)

// LetterClass is the cipher role of a rune.
type LetterClass int

const (
	Other LetterClass = iota
	Immutable
	Vowel
	Consonant
)

func (c LetterClass) String() string {
	switch c {
	case Immutable:
		return "immutable"
	case Vowel:
		return "vowel"
	case Consonant:
		return "consonant"
	default:
		return "other"
	}
}

var (
	immutable = map[rune]bool{}
	vowels    = map[rune]rune{}
	consonant = map[rune]rune{}
)

func init() {
	for _, r := range "нйкмлартпхъья" {
		immutable[r] = true
		immutable[unicode.ToUpper(r)] = true
	}
	pairs := func(dst map[rune]rune, s string) {
		rs := []rune(s)
		for i := 0; i+1 < len(rs); i += 2 {
			a, b := rs[i], rs[i+1]
			dst[a], dst[b] = b, a
			dst[unicode.ToUpper(a)], dst[unicode.ToUpper(b)] = unicode.ToUpper(b), unicode.ToUpper(a)
		}
	}
	pairs(vowels, "еёиыоюуэ")
	pairs(consonant, "бвгджзсфцчшщ")
}

// ClassOf returns the letter class of r.
func ClassOf(r rune) LetterClass {
	switch {
	case immutable[r]:
		return Immutable
	case vowels[r] != 0:
		return Vowel
	case consonant[r] != 0:
		return Consonant
	}
	return Other
}

// Substitute returns the cipher partner of r.
func Substitute(r rune) rune {
	if v, ok := vowels[r]; ok {
		return v
	}
	if c, ok := consonant[r]; ok {
		return c
	}
	return r
}

// Plain applies the letter substitution to every rune of line.
func Plain(line string) string {
	return strings.Map(Substitute, line)
}

var antonymPairs = [][2]string{
	{"хороший", "плохой"},
	{"отличный", "ужасный"},
	{"добрый", "скверный"},
	{"большой", "маленький"},
	{"огромный", "крошечный"},
	{"крупный", "небольшой"},
}

var antonyms = map[string]string{}

func init() {
	for _, p := range antonymPairs {
		antonyms[p[0]], antonyms[p[1]] = p[1], p[0]
	}
}

// Antonym returns the antonym of word from the fixed table, keeping the
// case of the first letter. Unknown words are returned unchanged.
func Antonym(word string) string {
	repl, ok := antonyms[strings.ToLower(word)]
	if !ok {
		return word
	}
	first := []rune(word)[0]
	if unicode.IsUpper(first) {
		rs := []rune(repl)
		rs[0] = unicode.ToUpper(rs[0])
		return string(rs)
	}
	return repl
}

// IsQuoted reports whether line is wrapped in "…", «…» or »…«.
func IsQuoted(line string) bool {
	rs := []rune(strings.TrimSpace(line))
	if len(rs) < 2 {
		return false
	}
	first, last := rs[0], rs[len(rs)-1]
	return (first == '"' && last == '"') ||
		(first == '«' && last == '»') ||
		(first == '»' && last == '«')
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'' || r == '’' || r == '-'
}

// Quoted rewrites a quoted phrase word by word through the antonym table.
// Separators, whitespace included, are kept. Straight quotes are restored as
// straight quotes; both angled conventions are restored as «…».
func Quoted(line string) string {
	rs := []rune(strings.TrimSpace(line))
	inner := rs[1 : len(rs)-1]

	var b strings.Builder
	if rs[0] == '"' {
		b.WriteRune('"')
	} else {
		b.WriteRune('«')
	}
	for i := 0; i < len(inner); {
		j := i
		word := isWordRune(inner[i])
		for j < len(inner) && isWordRune(inner[j]) == word {
			j++
		}
		if word {
			b.WriteString(Antonym(string(inner[i:j])))
		} else {
			b.WriteString(string(inner[i:j]))
		}
		i = j
	}
	if rs[0] == '"' {
		b.WriteRune('"')
	} else {
		b.WriteRune('»')
	}
	return b.String()
}

// Line ciphers one term, choosing the quoted or plain treatment.
func Line(line string) string {
	if IsQuoted(line) {
		return Quoted(line)
	}
	return Plain(line)
}

// Duplicate is a word shared by several terms.
type Duplicate struct {
	Word string
	// Lines are 1-based positions in the term list, ascending.
	Lines []int
}

var wordPattern = regexp.MustCompile(`[A-Za-zА-Яа-яЁё'’-]+`)

// DuplicateWords reports every lowercased word that occurs on two or more
// distinct lines, in order of first appearance. Apostrophes and hyphens
// belong to words but never start or end one.
func DuplicateWords(lines []string) []Duplicate {
	var order []string
	seen := make(map[string][]int)
	for i, line := range lines {
		for _, w := range wordPattern.FindAllString(line, -1) {
			w = strings.ToLower(strings.Trim(w, "'’-"))
			if w == "" {
				continue
			}
			nums, ok := seen[w]
			if !ok {
				order = append(order, w)
			}
			if len(nums) > 0 && nums[len(nums)-1] == i+1 {
				continue
			}
			seen[w] = append(nums, i+1)
		}
	}
	var out []Duplicate
	for _, w := range order {
		if nums := seen[w]; len(nums) > 1 {
			out = append(out, Duplicate{Word: w, Lines: nums})
		}
	}
	return out
}

// Result is the output of Run.
type Result struct {
	// Terms is the input sorted case-insensitively.
	Terms []string
	// Lines holds the ciphered terms, parallel to Terms.
	Lines      []string
	LineMap    *artifact.Table
	Duplicates []Duplicate
	Quoted     int
}

// Run sorts terms, reports shared words and ciphers every term. m may be nil.
func Run(terms []string, m *metrics.Metrics) *Result {
	if m == nil {
		m = &metrics.Metrics{}
	}
	sorted := append([]string(nil), terms...)
	artifact.SortFold(sorted)

	res := &Result{
		Terms:      sorted,
		Lines:      make([]string, 0, len(sorted)),
		LineMap:    artifact.NewTable(),
		Duplicates: DuplicateWords(sorted),
	}
	m.DuplicateWords.Add(int64(len(res.Duplicates)))

	for _, t := range sorted {
		if IsQuoted(t) {
			res.Quoted++
			m.QuotedTerms.Add(1)
		}
		out := Line(t)
		res.Lines = append(res.Lines, out)
		if _, ok := res.LineMap.Get(t); !ok {
			res.LineMap.Set(t, out)
		}
		m.TermsCiphered.Add(1)
	}
	return res
}
