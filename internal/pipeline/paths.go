package pipeline

import (
	"path/filepath"
	"strings"
)

// Paths names every artifact of a run. Stage files sit next to the input
// file and share its base name; the term maps sit in the input's directory.
type Paths struct {
	Input string

	Names       string
	Abbr        string
	Terms       string
	ClassifyLog string

	AbbrOut     string
	TokenMap    string
	AbbrMap     string
	GenerateLog string

	TermsOut  string
	TermsMap  string
	CipherLog string

	Merged string

	FinalizeLog string
}

// PathsFor derives all artifact paths from the input file. merged names the
// merged term map; a bare file name is placed in the input's directory.
func PathsFor(input, merged string) Paths {
	dir := filepath.Dir(input)
	base := strings.TrimSuffix(input, ".txt")
	if merged == "" {
		merged = "terms_map.json"
	}
	if filepath.Base(merged) == merged {
		merged = filepath.Join(dir, merged)
	}
	return Paths{
		Input: input,

		Names:       base + "-s1_names.txt",
		Abbr:        base + "-s1_abbr.txt",
		Terms:       base + "-s1_terms.txt",
		ClassifyLog: base + "-s1.log",

		AbbrOut:     base + "-s2_abbr.txt",
		TokenMap:    base + "-s2_abbr_token_repl.json",
		AbbrMap:     filepath.Join(dir, "terms_map-s2_abbr.json"),
		GenerateLog: base + "-s2.log",

		TermsOut:  base + "-s3_terms.txt",
		TermsMap:  filepath.Join(dir, "terms_map-s3_terms.json"),
		CipherLog: base + "-s3.log",

		Merged: merged,

		FinalizeLog: base + "-s4.log",
	}
}
