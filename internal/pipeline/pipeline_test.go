package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	req "github.com/stretchr/testify/require"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/config"
	"corpus-obfuscator/internal/metrics"
)

func TestPathsFor(t *testing.T) {
	p := PathsFor("/data/names_index_reviewed.txt", "terms_map.json")
	assert.Equal(t, "/data/names_index_reviewed-s1_names.txt", p.Names)
	assert.Equal(t, "/data/names_index_reviewed-s1.log", p.ClassifyLog)
	assert.Equal(t, "/data/names_index_reviewed-s2_abbr_token_repl.json", p.TokenMap)
	assert.Equal(t, "/data/terms_map-s2_abbr.json", p.AbbrMap)
	assert.Equal(t, "/data/terms_map-s3_terms.json", p.TermsMap)
	assert.Equal(t, "/data/terms_map.json", p.Merged)
	assert.Equal(t, "/data/names_index_reviewed-s4.log", p.FinalizeLog)

	assert.Equal(t, "/maps/custom.json", PathsFor("/data/x.txt", "/maps/custom.json").Merged)
	assert.Equal(t, "/data/terms_map.json", PathsFor("/data/x.txt", "").Merged)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Code
	}{
		{nil, CodeUnknown},
		{errors.New("boom"), CodeUnknown},
		{fmt.Errorf("stage: %w", ErrMissingInput), CodeMissingInput},
		{fmt.Errorf("load: %w", fs.ErrNotExist), CodeMissingInput},
		{fmt.Errorf("%w: disk full", ErrIO), CodeIO},
		{fmt.Errorf("%w: same dir", ErrConfig), CodeConfig},
		{&os.PathError{Op: "write", Path: "x", Err: errors.New("denied")}, CodeIO},
		{fmt.Errorf("finalize: %w", context.Canceled), CodeCancel},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "Classify(%v)", c.err)
	}
}

// newWorkspace writes an index and a one-document corpus and returns a
// Runner pointing at them.
func newWorkspace(t *testing.T) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "names_index_reviewed.txt")
	req.NoError(t, os.WriteFile(input, []byte("AT-ST\nдроид\nЛюк Скайуокер\nAT-ST\n"), 0o600))

	corpus := filepath.Join(dir, "corpus")
	req.NoError(t, os.Mkdir(corpus, 0o750))
	req.NoError(t, os.WriteFile(filepath.Join(corpus, "story.txt"),
		[]byte("Соберите AT-ST немедленно. Этот дроид сломан."), 0o600))

	r := &Runner{
		Paths:     PathsFor(input, "terms_map.json"),
		CorpusDir: corpus,
		OutputDir: filepath.Join(dir, "final"),
		Seed:      1,
		Overrides: map[string]string{"AT-ST": "XY-47"},
		Metrics:   metrics.New(),
	}
	return r, dir
}

func TestRunAll_EndToEnd(t *testing.T) {
	r, dir := newWorkspace(t)
	var diag bytes.Buffer
	r.Diag = &diag

	req.NoError(t, r.RunAll(context.Background()))

	names, err := artifact.ReadLines(r.Paths.Names)
	req.NoError(t, err)
	assert.Equal(t, []string{"Люк Скайуокер"}, names)

	abbr, err := artifact.ReadLines(r.Paths.AbbrOut)
	req.NoError(t, err)
	assert.Equal(t, []string{"XY-47"}, abbr)

	terms, err := artifact.ReadLines(r.Paths.TermsOut)
	req.NoError(t, err)
	assert.Equal(t, []string{"грюыг"}, terms)

	merged, err := artifact.ReadTable(r.Paths.Merged)
	req.NoError(t, err)
	assert.Equal(t, []artifact.Pair{{Key: "AT-ST", Value: "XY-47"}, {Key: "дроид", Value: "грюыг"}}, merged.Pairs())

	out, err := os.ReadFile(filepath.Join(dir, "final", "story.txt"))
	req.NoError(t, err)
	assert.Equal(t, "Соберите XY-47 немедленно. Этот грюыг сломан.", string(out))

	s4, err := os.ReadFile(r.Paths.FinalizeLog)
	req.NoError(t, err)
	assert.Contains(t, string(s4), "  Replaced: AT-ST -> XY-47 (1 times)\n")
	assert.Contains(t, string(s4), "  Total replacements: 2\n")

	s1, err := os.ReadFile(r.Paths.ClassifyLog)
	req.NoError(t, err)
	assert.Contains(t, string(s1), "Duplicates dropped: 1\n")

	assert.Contains(t, diag.String(), "AT-ST -> XY-47\n")
	assert.Contains(t, diag.String(), "дроид -> грюыг\n")

	snap := r.Metrics.Snapshot()
	assert.Equal(t, int64(1), snap.Finalize.Documents)
}

func TestStageLogsAreDeterministic(t *testing.T) {
	r, _ := newWorkspace(t)
	req.NoError(t, r.RunAll(context.Background()))
	first, err := os.ReadFile(r.Paths.FinalizeLog)
	req.NoError(t, err)

	r.Metrics = metrics.New()
	req.NoError(t, r.RunAll(context.Background()))
	second, err := os.ReadFile(r.Paths.FinalizeLog)
	req.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestClassify_MissingInputWritesNothing(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Paths: PathsFor(filepath.Join(dir, "absent.txt"), "")}

	_, err := r.Classify()
	req.ErrorIs(t, err, ErrMissingInput)
	assert.NoFileExists(t, r.Paths.Names)
	assert.NoFileExists(t, r.Paths.ClassifyLog)
}

func TestClassify_FailedWriteLeavesNoArtifacts(t *testing.T) {
	r, dir := newWorkspace(t)
	// A directory in place of the terms list makes its rename fail after
	// the names and abbreviation lists were staged.
	req.NoError(t, os.Mkdir(r.Paths.Terms, 0o750))

	_, err := r.Classify()
	req.ErrorIs(t, err, ErrIO)
	assert.NoFileExists(t, r.Paths.Names)
	assert.NoFileExists(t, r.Paths.Abbr)
	assert.NoFileExists(t, r.Paths.ClassifyLog)

	entries, err := os.ReadDir(dir)
	req.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestGenerate_FailedWriteLeavesNoArtifacts(t *testing.T) {
	r, _ := newWorkspace(t)
	_, err := r.Classify()
	req.NoError(t, err)
	req.NoError(t, os.Mkdir(r.Paths.AbbrMap, 0o750))

	_, err = r.Generate()
	req.ErrorIs(t, err, ErrIO)
	assert.NoFileExists(t, r.Paths.AbbrOut)
	assert.NoFileExists(t, r.Paths.TokenMap)
	assert.NoFileExists(t, r.Paths.GenerateLog)
}

func TestLaterStages_RequireEarlierArtifacts(t *testing.T) {
	r, _ := newWorkspace(t)

	_, err := r.Generate()
	req.ErrorIs(t, err, ErrMissingInput)
	assert.NoFileExists(t, r.Paths.AbbrOut)

	_, err = r.Cipher()
	req.ErrorIs(t, err, ErrMissingInput)
	assert.NoFileExists(t, r.Paths.TermsOut)

	_, err = r.Merge()
	req.ErrorIs(t, err, ErrMissingInput)

	_, err = r.Finalize(context.Background())
	req.ErrorIs(t, err, ErrMissingInput)
	assert.NoDirExists(t, r.OutputDir)
}

func TestFinalize_OutputIsCorpusRejected(t *testing.T) {
	r, _ := newWorkspace(t)
	for _, s := range r.Stages()[:4] {
		req.NoError(t, s.Run(context.Background()), s.Name)
	}
	r.OutputDir = r.CorpusDir

	_, err := r.Finalize(context.Background())
	req.ErrorIs(t, err, ErrConfig)
	assert.Equal(t, CodeConfig, Classify(err))
	got, err := os.ReadFile(filepath.Join(r.CorpusDir, "story.txt"))
	req.NoError(t, err)
	assert.Equal(t, "Соберите AT-ST немедленно. Этот дроид сломан.", string(got))
	assert.NoFileExists(t, r.Paths.FinalizeLog)
}

func TestMerge_FirstWinsAndDropsIdentity(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Paths: PathsFor(filepath.Join(dir, "in.txt"), ""), Metrics: &metrics.Metrics{}}

	abbr := artifact.NewTable()
	abbr.Set("AT", "XY")
	abbr.Set("same", "same")
	req.NoError(t, artifact.WriteTable(r.Paths.AbbrMap, abbr))

	terms := artifact.NewTable()
	terms.Set("AT", "ZZ")
	terms.Set("дроид", "грюыг")
	req.NoError(t, artifact.WriteTable(r.Paths.TermsMap, terms))

	merged, err := r.Merge()
	req.NoError(t, err)
	assert.Equal(t, []artifact.Pair{{Key: "AT", Value: "XY"}, {Key: "дроид", Value: "грюыг"}}, merged.Pairs())
	assert.Equal(t, int64(1), r.Metrics.MapConflicts.Load())
	assert.FileExists(t, r.Paths.Merged)
}

func TestRunAll_StopsAtFirstFailure(t *testing.T) {
	dir := t.TempDir()
	r := &Runner{Paths: PathsFor(filepath.Join(dir, "absent.txt"), "")}
	err := r.RunAll(context.Background())
	req.Error(t, err)
	assert.Contains(t, err.Error(), "classify:")
	assert.Equal(t, CodeMissingInput, Classify(err))
	assert.NoFileExists(t, r.Paths.Merged)
}

func TestNew_FromConfig(t *testing.T) {
	dir := t.TempDir()
	lex := filepath.Join(dir, "lexicon.txt")
	req.NoError(t, os.WriteFile(lex, []byte("дроид\n"), 0o600))

	cfg := &config.Config{
		InputFile:    filepath.Join(dir, "index.txt"),
		TermsMapFile: "terms_map.json",
		TokenStore:   filepath.Join(dir, "tokens.db"),
		LexiconFile:  lex,
		Workers:      2,
	}
	r := New(cfg, nil, nil)
	t.Cleanup(func() { req.NoError(t, r.Close()) })

	assert.True(t, r.Lexicon.Contains("дроид"))
	assert.False(t, r.Lexicon.Contains("гзандо"), "word list should replace the Cyrillic fallback")
	assert.Equal(t, filepath.Join(dir, "terms_map.json"), r.Paths.Merged)
	assert.FileExists(t, cfg.TokenStore)
	assert.Equal(t, 2, r.Workers)
}
