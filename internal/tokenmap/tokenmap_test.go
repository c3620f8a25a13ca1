package tokenmap

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"corpus-obfuscator/internal/kvstore"
	"corpus-obfuscator/internal/lexicon"
	"corpus-obfuscator/internal/metrics"
)

func TestTokenize(t *testing.T) {
	got := Tokenize("AT-ST / R2.D2 (ДБЯ)")
	want := []Piece{
		{"AT-ST", true},
		{" / ", false},
		{"R2", true},
		{".", false},
		{"D2", true},
		{" (", false},
		{"ДБЯ", true},
		{")", false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokenize mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenize_Reassembles(t *testing.T) {
	for _, line := range []string{"", "  ", "X-wing", "«ТИЕ» — 7/8", "d'Ar ’tag"} {
		var s string
		for _, p := range Tokenize(line) {
			s += p.Text
		}
		if s != line {
			t.Errorf("Tokenize(%q) reassembled to %q", line, s)
		}
	}
}

func sameShape(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) != len(rb) {
		return false
	}
	for i := range ra {
		ca, cb := classOf(ra[i]), classOf(rb[i])
		if ca == nil {
			if ra[i] != rb[i] {
				return false
			}
			continue
		}
		if cb == nil || &ca[0] != &cb[0] {
			return false
		}
	}
	return true
}

func TestReplace_PreservesClasses(t *testing.T) {
	g := New(Options{Seed: 42, Lexicon: lexicon.NewWordList()})
	for _, tok := range []string{"AT-ST", "R2", "Xq'9", "БТР-80", "ёж"} {
		out := g.Replace(tok)
		if !sameShape(tok, out) {
			t.Errorf("Replace(%q) = %q: rune classes not preserved", tok, out)
		}
	}
}

func TestReplace_Memoized(t *testing.T) {
	m := &metrics.Metrics{}
	g := New(Options{Seed: 1, Metrics: m})
	first := g.Replace("XJ9")
	if again := g.Replace("XJ9"); again != first {
		t.Errorf("memo broken: %q then %q", first, again)
	}
	if m.TokensGenerated.Load() != 1 || m.TokenMemoHits.Load() != 1 {
		t.Errorf("generated=%d hits=%d, want 1/1", m.TokensGenerated.Load(), m.TokenMemoHits.Load())
	}
}

func TestReplace_FixedSeedIsDeterministic(t *testing.T) {
	lines := []string{"AT-ST", "X-wing", "R2-D2", "Т-16"}
	a := New(Options{Seed: 7}).Run(lines)
	b := New(Options{Seed: 7}).Run(lines)
	if diff := cmp.Diff(a.Lines, b.Lines); diff != "" {
		t.Errorf("same seed, different output (-a +b):\n%s", diff)
	}
}

func TestReplace_Overrides(t *testing.T) {
	m := &metrics.Metrics{}
	g := New(Options{Seed: 3, Metrics: m, Overrides: map[string]string{"TIE": "custom", "BX": "Zz"}})
	cases := map[string]string{
		"TIE":  "custom", // configured overrides win over defaults
		"BX":   "Zz",
		"ДБЯ":  "ДБА",
		"wing": "Staffel",
		"AT":   "schr.gepanzerTr",
	}
	for tok, want := range cases {
		if got := g.Replace(tok); got != want {
			t.Errorf("Replace(%q) = %q, want %q", tok, got, want)
		}
	}
	if g.Replace("tie") == "custom" {
		t.Error("overrides must be case-sensitive")
	}
	if m.TokenOverrides.Load() != int64(len(cases)) {
		t.Errorf("TokenOverrides: got %d, want %d", m.TokenOverrides.Load(), len(cases))
	}
}

func TestReplace_NativeWordsPassThrough(t *testing.T) {
	g := New(Options{Seed: 5, Lexicon: lexicon.NewWordList("истребитель", "дроид")})
	for _, tok := range []string{"истребитель", "дроид"} {
		if got := g.Replace(tok); got != tok {
			t.Errorf("Replace(%q) = %q, want unchanged", tok, got)
		}
	}
	// Capitalized words are not lowercase native words, so they are replaced.
	if got := g.Replace("Дроид"); !sameShape("Дроид", got) {
		t.Errorf("Replace(Дроид) = %q", got)
	}
}

func TestRun_Tables(t *testing.T) {
	g := New(Options{Seed: 11})
	res := g.Run([]string{"TIE Fighter", "AT-ST", "истребитель TIE", "AT-ST"})

	if len(res.Lines) != 4 {
		t.Fatalf("Lines: got %d, want 4", len(res.Lines))
	}
	if res.Lines[1] != res.Lines[3] {
		t.Errorf("repeated line replaced differently: %q vs %q", res.Lines[1], res.Lines[3])
	}
	if res.LineMap.Len() != 3 {
		t.Errorf("LineMap: got %d entries, want 3", res.LineMap.Len())
	}
	if v, _ := res.Tokens.Get("TIE"); v != "raumJr" {
		t.Errorf("token map TIE = %q", v)
	}
	if _, ok := res.Tokens.Get("истребитель"); ok {
		t.Error("passthrough tokens must not appear in the token map")
	}
	wantOrder := []string{"TIE", "Fighter", "AT-ST"}
	var gotOrder []string
	for _, p := range res.Tokens.Pairs() {
		gotOrder = append(gotOrder, p.Key)
	}
	if diff := cmp.Diff(wantOrder, gotOrder); diff != "" {
		t.Errorf("token order (-want +got):\n%s", diff)
	}
}

func TestRun_BoltStoreReusedAcrossRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.db")

	s1, err := kvstore.OpenBolt(path, "tokens", nil)
	if err != nil {
		t.Fatalf("OpenBolt: %v", err)
	}
	first := New(Options{Seed: 1, Store: s1}).Line("XR-77 / Qz")
	if err := s1.Close(); err != nil {
		t.Fatal(err)
	}

	s2, err := kvstore.OpenBolt(path, "tokens", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close() //nolint:errcheck // test cleanup
	second := New(Options{Seed: 999, Store: s2}).Line("XR-77 / Qz")

	if first != second {
		t.Errorf("persisted memo not reused: %q vs %q", first, second)
	}
}

func TestReplace_Concurrent(t *testing.T) {
	g := New(Options{Seed: 2})
	want := g.Replace("ZZ-9")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := g.Replace("ZZ-9"); got != want {
				t.Errorf("concurrent Replace: got %q, want %q", got, want)
			}
			g.Replace("Q")
		}()
	}
	wg.Wait()
}
