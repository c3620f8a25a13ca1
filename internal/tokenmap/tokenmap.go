// Package tokenmap replaces abbreviations with random look-alikes.
//
// Every abbreviation line is split into tokens and separators. Each token is
// replaced rune by rune with a random rune of the same class (uppercase
// Latin stays uppercase Latin, digits stay digits, and so on), so "AT-ST"
// may become "XY-47" while its shape is unchanged. Replacements are memoized
// per token: a token that appears on several lines gets the same
// replacement everywhere.
//
// Lookup order for a token:
//  1. the override table (exact, case-sensitive)
//  2. lowercase native words recognized by the lexicon pass through
//  3. the memo
//  4. a fresh random replacement, stored in the memo
package tokenmap

import (
	"math/rand/v2"
	"strings"
	"sync"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/kvstore"
	"corpus-obfuscator/internal/lexicon"
	"corpus-obfuscator/internal/logger"
	"corpus-obfuscator/internal/metrics"
)

// DefaultOverrides are fixed replacements for tokens that recur across the
// corpus with an established rendering.
var DefaultOverrides = map[string]string{
	"TIE":  "raumJr",
	"ТИЕ":  "РЖР",
	"AT":   "schr.gepanzerTr",
	"АТ":   "schr.gepanzerTr",
	"IG":   "hw.hoherLst",
	"ДБЯ":  "ДБА",
	"wing": "Staffel",
}

// Rune classes. A rune is replaced only by another rune of its own class.
var classes = [][]rune{
	[]rune("ABCDEFGHIJKLMNOPQRSTUVWXYZ"),
	[]rune("abcdefghijklmnopqrstuvwxyz"),
	[]rune("АБВГДЕЁЖЗИЙКЛМНОПРСТУФХЦЧШЩЪЫЬЭЮЯ"),
	[]rune("абвгдеёжзийклмнопрстуфхцчшщъыьэюя"),
	[]rune("0123456789"),
}

func classOf(r rune) []rune {
	for _, c := range classes {
		for _, m := range c {
			if m == r {
				return c
			}
		}
	}
	return nil
}

// Piece is a token or a separator run of a tokenized line.
type Piece struct {
	Text  string
	Token bool
}

func isCyrillic(r rune) bool { return (r >= 'А' && r <= 'я') || r == 'Ё' || r == 'ё' }

func isTokenRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
		return true
	case r == '\'' || r == '’' || r == '-':
		return true
	}
	return isCyrillic(r)
}

// Tokenize splits line into alternating token and separator pieces.
// Tokens are runs of Latin or Cyrillic letters, digits, apostrophes and
// hyphens; everything else, whitespace included, is kept verbatim as a
// separator. Concatenating the pieces yields line.
func Tokenize(line string) []Piece {
	var pieces []Piece
	var b strings.Builder
	inToken := false
	for _, r := range line {
		tok := isTokenRune(r)
		if b.Len() > 0 && tok != inToken {
			pieces = append(pieces, Piece{Text: b.String(), Token: inToken})
			b.Reset()
		}
		inToken = tok
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		pieces = append(pieces, Piece{Text: b.String(), Token: inToken})
	}
	return pieces
}

// Options configures a Generator.
type Options struct {
	// Seed drives the random source. Equal seeds with empty memos produce
	// equal output.
	Seed int64
	// Store memoizes token replacements. Defaults to an in-memory store; a
	// bbolt store keeps replacements stable across runs.
	Store kvstore.Store
	// Lexicon decides which lowercase native words pass through.
	// Defaults to lexicon.Cyrillic.
	Lexicon lexicon.Lexicon
	// Overrides extend (and take precedence over) DefaultOverrides.
	Overrides map[string]string
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

// Generator produces token replacements. It is safe for concurrent use.
type Generator struct {
	mu        sync.Mutex
	rnd       *rand.Rand
	memo      kvstore.Store
	lex       lexicon.Lexicon
	overrides map[string]string
	m         *metrics.Metrics
	log       *logger.Logger
}

// New returns a Generator for opts.
func New(opts Options) *Generator {
	seed := uint64(opts.Seed) // #nosec G115 -- seed bits, sign irrelevant
	g := &Generator{
		rnd:       rand.New(rand.NewPCG(seed, seed)), // #nosec G404 -- obfuscation, not crypto
		memo:      opts.Store,
		lex:       opts.Lexicon,
		overrides: make(map[string]string, len(DefaultOverrides)+len(opts.Overrides)),
		m:         opts.Metrics,
		log:       opts.Logger,
	}
	if g.memo == nil {
		g.memo = kvstore.NewMemory()
	}
	if g.lex == nil {
		g.lex = lexicon.Cyrillic{}
	}
	if g.m == nil {
		g.m = &metrics.Metrics{}
	}
	if g.log == nil {
		g.log = logger.Discard()
	}
	for k, v := range DefaultOverrides {
		g.overrides[k] = v
	}
	for k, v := range opts.Overrides {
		g.overrides[k] = v
	}
	return g
}

// Replace returns the replacement for a single token.
func (g *Generator) Replace(token string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.overrides[token]; ok {
		g.m.TokenOverrides.Add(1)
		return v
	}
	if g.isNativeWord(token) {
		g.m.TokenPassthroughs.Add(1)
		return token
	}
	if v, ok := g.memo.Get(token); ok {
		g.m.TokenMemoHits.Add(1)
		return v
	}

	rs := []rune(token)
	for i, r := range rs {
		if c := classOf(r); c != nil {
			rs[i] = c[g.rnd.IntN(len(c))]
		}
	}
	out := string(rs)
	g.memo.Set(token, out)
	g.m.TokensGenerated.Add(1)
	g.log.Debugf("token", "%s -> %s", token, out)
	return out
}

// isNativeWord reports whether token is a lowercase Cyrillic word the
// lexicon recognizes. Apostrophes and hyphens are ignored.
func (g *Generator) isNativeWord(token string) bool {
	var b strings.Builder
	for _, r := range token {
		switch {
		case r == '\'' || r == '’' || r == '-':
		case (r >= 'а' && r <= 'я') || r == 'ё':
			b.WriteRune(r)
		default:
			return false
		}
	}
	return b.Len() > 0 && g.lex.Contains(b.String())
}

// Line replaces every token of line and reassembles it.
func (g *Generator) Line(line string) string {
	var b strings.Builder
	for _, p := range Tokenize(line) {
		if p.Token {
			b.WriteString(g.Replace(p.Text))
		} else {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// Result is the output of Run.
type Result struct {
	// Lines holds the processed lines, parallel to the input.
	Lines []string
	// Tokens maps every token whose replacement differs from it, in order
	// of first appearance.
	Tokens *artifact.Table
	// LineMap maps each distinct input line to its processed form.
	LineMap *artifact.Table
}

// Run processes lines in order.
func (g *Generator) Run(lines []string) *Result {
	res := &Result{
		Lines:   make([]string, 0, len(lines)),
		Tokens:  artifact.NewTable(),
		LineMap: artifact.NewTable(),
	}
	for _, line := range lines {
		var b strings.Builder
		for _, p := range Tokenize(line) {
			if !p.Token {
				b.WriteString(p.Text)
				continue
			}
			repl := g.Replace(p.Text)
			if repl != p.Text {
				if _, seen := res.Tokens.Get(p.Text); !seen {
					res.Tokens.Set(p.Text, repl)
				}
			}
			b.WriteString(repl)
		}
		out := b.String()
		res.Lines = append(res.Lines, out)
		if _, seen := res.LineMap.Get(line); !seen {
			res.LineMap.Set(line, out)
		}
	}
	return res
}
