package classifier

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule is one named predicate of the classification grammar.
type Rule struct {
	Name     string
	Category Category
	Match    func(line string) bool
}

// Rules is the classification grammar, in precedence order. The first rule
// whose predicate matches decides the category; lines matching none are
// Terms.
var Rules = []Rule{
	{"abbr/latin-token", Abbreviation, isLatinToken},
	{"abbr/numeral-suffix", Abbreviation, hasNumeralSuffix},
	{"abbr/short-runs", Abbreviation, isShortRunWord},
	{"abbr/cyrillic-upper", Abbreviation, isCyrillicUpperToken},
	{"name/title-case", Name, isTitleCased},
	{"name/numbered", Name, isNumberedName},
}

// Character classes. These are the only places that decide what counts as
// a letter, digit or joiner.

func isLatin(r rune) bool { return (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') }

func isDigit(r rune) bool { return r >= '0' && r <= '9' }

func isApostrophe(r rune) bool { return r == '\'' || r == '’' }

func isUpperCyrillic(r rune) bool { return (r >= 'А' && r <= 'Я') || r == 'Ё' }

func isRomanUpper(r rune) bool { return strings.ContainsRune("IVXLCDM", r) }

func isRoman(r rune) bool { return strings.ContainsRune("IVXLCDMivxlcdm", r) }

func allRunes(s string, ok func(rune) bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !ok(r) {
			return false
		}
	}
	return true
}

// isLatinToken: Latin letters, digits, apostrophes, hyphens and periods only.
func isLatinToken(line string) bool {
	return allRunes(line, func(r rune) bool {
		return isLatin(r) || isDigit(r) || isApostrophe(r) || r == '-' || r == '.'
	})
}

// hasNumeralSuffix: Latin letters (apostrophes allowed) followed by a
// Roman-numeral-or-digit suffix, optionally separated by one hyphen or
// whitespace character, e.g. "Mark IV", "T-65", "Droid7".
func hasNumeralSuffix(line string) bool {
	rs := []rune(line)
	head := func(rs []rune) bool {
		return allRunes(string(rs), func(r rune) bool { return isLatin(r) || isApostrophe(r) })
	}
	tail := func(rs []rune) bool {
		return allRunes(string(rs), func(r rune) bool { return isRomanUpper(r) || isDigit(r) })
	}
	for i := 1; i < len(rs); i++ {
		if head(rs[:i]) && tail(rs[i:]) {
			return true
		}
		if (rs[i] == '-' || unicode.IsSpace(rs[i])) && head(rs[:i]) && tail(rs[i+1:]) {
			return true
		}
	}
	return false
}

// isShortRunWord: Latin/digit/apostrophe/hyphen/period content forming a
// single word with no alphabetic run longer than three letters.
func isShortRunWord(line string) bool {
	if len(strings.Fields(line)) != 1 {
		return false
	}
	run := 0
	for _, r := range line {
		switch {
		case isLatin(r):
			run++
			if run > 3 {
				return false
			}
		case isDigit(r) || isApostrophe(r) || r == '-' || r == '.':
			run = 0
		default:
			return false
		}
	}
	return true
}

// isCyrillicUpperToken: uppercase Cyrillic letters, digits, apostrophes,
// hyphens and periods only.
func isCyrillicUpperToken(line string) bool {
	return allRunes(line, func(r rune) bool {
		return isUpperCyrillic(r) || isDigit(r) || isApostrophe(r) || r == '-' || r == '.'
	})
}

// trimWord strips surrounding punctuation from a whitespace-delimited word,
// keeping apostrophes, which carry meaning for title-casing.
func trimWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !isApostrophe(r)
	})
}

// titleCased reports whether a single word is title-cased: first rune
// uppercase and the remainder not all-uppercase. A word starting with an
// apostrophe is title-cased when the rune after it is uppercase.
func titleCased(w string) bool {
	rs := []rune(w)
	if len(rs) == 0 {
		return false
	}
	if isApostrophe(rs[0]) {
		return len(rs) > 1 && unicode.IsUpper(rs[1])
	}
	if !unicode.IsUpper(rs[0]) {
		return false
	}
	return !allUpper(rs[1:])
}

// allUpper mirrors str.isupper: at least one cased rune and no lowercase ones.
func allUpper(rs []rune) bool {
	cased := false
	for _, r := range rs {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) || unicode.IsTitle(r) {
			cased = true
		}
	}
	return cased
}

// isTitleCased: every whitespace-delimited word is title-cased.
func isTitleCased(line string) bool {
	seen := false
	for _, f := range strings.Fields(line) {
		w := trimWord(f)
		if w == "" {
			continue
		}
		if !titleCased(w) {
			return false
		}
		seen = true
	}
	return seen
}

// isNumberedName: exactly two parts, one starting with an uppercase letter
// and the other only digits or Roman numerals, e.g. "Episode 4", "IV Hope".
func isNumberedName(line string) bool {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return false
	}
	upperStart := func(s string) bool {
		r, _ := utf8.DecodeRuneInString(s)
		return unicode.IsUpper(r)
	}
	numeral := func(s string) bool {
		return allRunes(s, isDigit) || allRunes(s, isRoman)
	}
	return (upperStart(parts[0]) && numeral(parts[1])) || (upperStart(parts[1]) && numeral(parts[0]))
}
