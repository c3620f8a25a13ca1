// Package classifier splits raw index lines into names, abbreviations and
// terms.
//
// Classification is driven by Rules, an ordered list of named predicates
// over a single trimmed line. It is total: every non-empty line resolves to
// exactly one Category, and the result depends only on the line itself, so
// reclassifying the same input is idempotent.
package classifier

import (
	"strings"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/lexicon"
)

// Category is the bucket an index entry is assigned to.
type Category int

// Categories, in the order their lists are written.
const (
	Term Category = iota
	Name
	Abbreviation
)

func (c Category) String() string {
	switch c {
	case Name:
		return "names"
	case Abbreviation:
		return "abbr"
	default:
		return "terms"
	}
}

// Entry is one distinct line of the raw index.
type Entry struct {
	Text     string
	Category Category
	// Line is the 1-based position of the first occurrence in the raw index.
	Line int
	// Rule names the predicate that decided the category; empty for Terms.
	Rule string
}

// Classify returns the category of a single trimmed, non-empty line.
func Classify(line string) Category {
	c, _ := classify(line)
	return c
}

func classify(line string) (Category, string) {
	for _, r := range Rules {
		if r.Match(line) {
			return r.Category, r.Name
		}
	}
	return Term, ""
}

// Result is the outcome of classifying a whole index.
type Result struct {
	Entries       []Entry
	Names         []string
	Abbreviations []string
	Terms         []string
	// Duplicates counts lines dropped because an identical line came earlier.
	Duplicates int
	// Empty counts blank lines skipped.
	Empty int
}

// Run classifies raw index lines. Lines are trimmed; blank lines and exact
// duplicates of an earlier line are dropped before classification. The
// three category lists are sorted case-insensitively.
func Run(lines []string) *Result {
	res := &Result{}
	seen := make(map[string]struct{}, len(lines))
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			res.Empty++
			continue
		}
		if _, dup := seen[line]; dup {
			res.Duplicates++
			continue
		}
		seen[line] = struct{}{}

		cat, rule := classify(line)
		res.Entries = append(res.Entries, Entry{Text: line, Category: cat, Line: i + 1, Rule: rule})
		switch cat {
		case Name:
			res.Names = append(res.Names, line)
		case Abbreviation:
			res.Abbreviations = append(res.Abbreviations, line)
		default:
			res.Terms = append(res.Terms, line)
		}
	}
	artifact.SortFold(res.Names)
	artifact.SortFold(res.Abbreviations)
	artifact.SortFold(res.Terms)
	return res
}

// Leak is a name or abbreviation containing a native-language word.
type Leak struct {
	Category Category
	// Index is the 1-based line number within the category list.
	Index int
	Line  string
	Word  string
}

// CheckLeakage flags every Cyrillic word in names and abbreviations that
// lex recognizes as native vocabulary. Leaks are review hints, not errors.
func CheckLeakage(lex lexicon.Lexicon, names, abbreviations []string) []Leak {
	var leaks []Leak
	scan := func(cat Category, lines []string) {
		for i, line := range lines {
			raw, clean := lexicon.CyrillicWords(line)
			for j, w := range clean {
				if w != "" && lex.Contains(w) {
					leaks = append(leaks, Leak{Category: cat, Index: i + 1, Line: line, Word: raw[j]})
				}
			}
		}
	}
	scan(Name, names)
	scan(Abbreviation, abbreviations)
	return leaks
}
