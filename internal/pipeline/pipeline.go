// Package pipeline runs the obfuscation stages over on-disk artifacts.
//
// Stages, in order:
//
//	classify  raw index → names / abbreviations / terms lists
//	generate  abbreviations → token replacements and line map
//	cipher    terms → letter-substituted terms and line map
//	merge     line maps → terms_map.json
//	finalize  terms_map.json + source corpus → finalized corpus
//
// Every stage reads the artifacts of earlier stages from disk, so stages can
// be rerun individually. A missing prerequisite fails the stage with
// ErrMissingInput before anything is written.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/cipher"
	"corpus-obfuscator/internal/classifier"
	"corpus-obfuscator/internal/config"
	"corpus-obfuscator/internal/finalizer"
	"corpus-obfuscator/internal/kvstore"
	"corpus-obfuscator/internal/lexicon"
	"corpus-obfuscator/internal/logger"
	"corpus-obfuscator/internal/metrics"
	"corpus-obfuscator/internal/tokenmap"
)

// Runner holds everything the stages need.
type Runner struct {
	Paths      Paths
	CorpusDir  string
	OutputDir  string
	Extensions []string
	Workers    int
	Seed       int64
	Overrides  map[string]string

	Lexicon    lexicon.Lexicon
	TokenStore kvstore.Store

	Metrics *metrics.Metrics
	Logger  *logger.Logger
	// Diag receives the before -> after pairs of the generate and cipher
	// stages. Nil discards them.
	Diag io.Writer

	closers []io.Closer
}

// New builds a Runner from cfg. It opens the token store and the lexicon;
// call Close when done.
func New(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) *Runner {
	if log == nil {
		log = logger.Discard()
	}
	if m == nil {
		m = metrics.New()
	}
	r := &Runner{
		Paths:      PathsFor(cfg.InputFile, cfg.TermsMapFile),
		CorpusDir:  cfg.CorpusDir,
		OutputDir:  cfg.OutputDir,
		Extensions: cfg.Extensions,
		Workers:    cfg.Workers,
		Seed:       cfg.Seed,
		Overrides:  cfg.Overrides,
		Metrics:    m,
		Logger:     log,
	}

	r.TokenStore = kvstore.Open(cfg.TokenStore, "tokens", log.WithModule("KVSTORE"))
	r.closers = append(r.closers, r.TokenStore)

	var base lexicon.Lexicon = lexicon.Cyrillic{}
	if cfg.LexiconFile != "" && artifact.Exists(cfg.LexiconFile) {
		wl, err := lexicon.LoadWordList(cfg.LexiconFile)
		if err != nil {
			log.Warnf("lexicon", "could not load %s: %v (using Cyrillic fallback)", cfg.LexiconFile, err)
		} else {
			log.Infof("lexicon", "loaded %d words from %s", wl.Len(), cfg.LexiconFile)
			base = wl
		}
	}
	r.Lexicon = base
	if cfg.UseAILexicon {
		cache := kvstore.Open(cfg.LexiconCache, "lexicon", log.WithModule("KVSTORE"))
		r.closers = append(r.closers, cache)
		r.Lexicon = lexicon.NewOllama(lexicon.OllamaOptions{
			Endpoint: cfg.OllamaEndpoint,
			Model:    cfg.OllamaModel,
			Cache:    cache,
			Fallback: base,
			Logger:   log.WithModule("LEXICON"),
		})
		log.Infof("lexicon", "using Ollama model %s at %s", cfg.OllamaModel, cfg.OllamaEndpoint)
	}
	return r
}

// Close releases the stores opened by New.
func (r *Runner) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runner) log(module string) *logger.Logger {
	if r.Logger == nil {
		return logger.Discard()
	}
	return r.Logger.WithModule(module)
}

func (r *Runner) metrics() *metrics.Metrics {
	if r.Metrics == nil {
		r.Metrics = &metrics.Metrics{}
	}
	return r.Metrics
}

func (r *Runner) diag() io.Writer {
	if r.Diag == nil {
		return io.Discard
	}
	return r.Diag
}

func require(paths ...string) error {
	for _, p := range paths {
		if !artifact.Exists(p) {
			return fmt.Errorf("%w: %s", ErrMissingInput, p)
		}
	}
	return nil
}

func readLines(path string) ([]string, error) {
	lines, err := artifact.ReadLines(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}
	return lines, nil
}

func ioErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// Classify splits the raw index into the three category lists and checks
// names and abbreviations for native-language leakage.
func (r *Runner) Classify() (*classifier.Result, error) {
	log := r.log("CLASSIFY")
	m := r.metrics()
	p := r.Paths

	if err := require(p.Input); err != nil {
		return nil, err
	}
	lines, err := readLines(p.Input)
	if err != nil {
		return nil, err
	}
	res := classifier.Run(lines)
	m.EntriesRead.Add(int64(len(lines)))
	m.DuplicatesDropped.Add(int64(res.Duplicates))
	m.Names.Add(int64(len(res.Names)))
	m.Abbreviations.Add(int64(len(res.Abbreviations)))
	m.Terms.Add(int64(len(res.Terms)))

	var leaks []classifier.Leak
	if r.Lexicon != nil {
		leaks = classifier.CheckLeakage(r.Lexicon, res.Names, res.Abbreviations)
	}
	m.LeakageWarnings.Add(int64(len(leaks)))
	for _, l := range leaks {
		log.Warnf("leakage", "%s:%d %q contains native word %q", l.Category, l.Index, l.Line, l.Word)
	}

	var b artifact.Batch
	b.Lines(p.Names, res.Names)
	b.Lines(p.Abbr, res.Abbreviations)
	b.Lines(p.Terms, res.Terms)

	sl := newStageLog("s1", "classify", p.Input)
	sl.kv("Entries read", len(lines))
	sl.kv("Duplicates dropped", res.Duplicates)
	sl.kv("Names", len(res.Names))
	sl.kv("Abbreviations", len(res.Abbreviations))
	sl.kv("Terms", len(res.Terms))
	sl.kv("Leakage warnings", len(leaks))
	for _, l := range leaks {
		sl.linef("  %s:%d: %s (%s)", l.Category, l.Index, l.Line, l.Word)
	}
	b.Add(p.ClassifyLog, sl.bytes())
	if err := b.Commit(); err != nil {
		return nil, ioErr(err)
	}
	log.Infof("done", "names=%d abbr=%d terms=%d duplicates=%d leaks=%d",
		len(res.Names), len(res.Abbreviations), len(res.Terms), res.Duplicates, len(leaks))
	return res, nil
}

// Generate replaces every abbreviation with random look-alike tokens.
func (r *Runner) Generate() (*tokenmap.Result, error) {
	log := r.log("GENERATE")
	m := r.metrics()
	p := r.Paths

	if err := require(p.Abbr); err != nil {
		return nil, err
	}
	lines, err := readLines(p.Abbr)
	if err != nil {
		return nil, err
	}

	before := [4]int64{m.TokensGenerated.Load(), m.TokenMemoHits.Load(), m.TokenOverrides.Load(), m.TokenPassthroughs.Load()}
	g := tokenmap.New(tokenmap.Options{
		Seed:      r.Seed,
		Store:     r.TokenStore,
		Lexicon:   r.Lexicon,
		Overrides: r.Overrides,
		Metrics:   m,
		Logger:    log,
	})
	res := g.Run(lines)
	writePairs(r.diag(), "s2", lines, res.Lines)

	var b artifact.Batch
	b.Lines(p.AbbrOut, res.Lines)
	b.Table(p.TokenMap, res.Tokens)
	b.Table(p.AbbrMap, res.LineMap)

	sl := newStageLog("s2", "generate", p.Abbr)
	sl.kv("Lines", len(res.Lines))
	sl.kv("Distinct tokens replaced", res.Tokens.Len())
	sl.kv("Tokens generated", m.TokensGenerated.Load()-before[0])
	sl.kv("Memo hits", m.TokenMemoHits.Load()-before[1])
	sl.kv("Overrides applied", m.TokenOverrides.Load()-before[2])
	sl.kv("Native words kept", m.TokenPassthroughs.Load()-before[3])
	b.Add(p.GenerateLog, sl.bytes())
	if err := b.Commit(); err != nil {
		return nil, ioErr(err)
	}
	log.Infof("done", "%d lines, %d tokens replaced", len(res.Lines), res.Tokens.Len())
	return res, nil
}

// Cipher applies the letter cipher to every term.
func (r *Runner) Cipher() (*cipher.Result, error) {
	log := r.log("CIPHER")
	m := r.metrics()
	p := r.Paths

	if err := require(p.Terms); err != nil {
		return nil, err
	}
	lines, err := readLines(p.Terms)
	if err != nil {
		return nil, err
	}
	res := cipher.Run(lines, m)
	for _, d := range res.Duplicates {
		log.Debugf("duplicate_word", "%q on lines %v", d.Word, d.Lines)
	}
	writePairs(r.diag(), "s3", res.Terms, res.Lines)

	var b artifact.Batch
	b.Lines(p.TermsOut, res.Lines)
	b.Table(p.TermsMap, res.LineMap)

	sl := newStageLog("s3", "cipher", p.Terms)
	sl.kv("Terms", len(res.Lines))
	sl.kv("Quoted terms", res.Quoted)
	sl.kv("Shared words", len(res.Duplicates))
	for _, d := range res.Duplicates {
		nums := make([]string, len(d.Lines))
		for i, n := range d.Lines {
			nums[i] = fmt.Sprint(n)
		}
		sl.linef("  %s: lines %s", d.Word, strings.Join(nums, ", "))
	}
	b.Add(p.CipherLog, sl.bytes())
	if err := b.Commit(); err != nil {
		return nil, ioErr(err)
	}
	log.Infof("done", "%d terms, %d quoted, %d shared words", len(res.Lines), res.Quoted, len(res.Duplicates))
	return res, nil
}

// Merge combines the abbreviation and term line maps into the term map
// used by the finalizer. The first mapping of a key wins; identity pairs
// are dropped since they would not change the corpus.
func (r *Runner) Merge() (*artifact.Table, error) {
	log := r.log("MERGE")
	m := r.metrics()
	p := r.Paths

	if err := require(p.AbbrMap, p.TermsMap); err != nil {
		return nil, err
	}
	merged := artifact.NewTable()
	for _, src := range []string{p.AbbrMap, p.TermsMap} {
		t, err := artifact.ReadTable(src)
		if err != nil {
			return nil, ioErr(err)
		}
		for _, pair := range t.Pairs() {
			if pair.Key == pair.Value {
				continue
			}
			if prev, ok := merged.Get(pair.Key); ok {
				if prev != pair.Value {
					m.MapConflicts.Add(1)
					log.Warnf("conflict", "%q: keeping %q, ignoring %q from %s", pair.Key, prev, pair.Value, filepath.Base(src))
				}
				continue
			}
			merged.Set(pair.Key, pair.Value)
		}
	}
	if err := artifact.WriteTable(p.Merged, merged); err != nil {
		return nil, ioErr(err)
	}
	m.MapEntries.Add(int64(merged.Len()))
	log.Infof("done", "%d entries -> %s", merged.Len(), p.Merged)
	return merged, nil
}

// Finalize rewrites the corpus with the merged term map.
func (r *Runner) Finalize(ctx context.Context) (*finalizer.Report, error) {
	log := r.log("FINALIZE")
	p := r.Paths

	if err := require(p.Merged); err != nil {
		return nil, err
	}
	rep, err := finalizer.Run(ctx, finalizer.Options{
		MapFile:    p.Merged,
		CorpusDir:  r.CorpusDir,
		OutputDir:  r.OutputDir,
		Extensions: r.Extensions,
		Workers:    r.Workers,
		Metrics:    r.metrics(),
		Logger:     log,
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrMissingInput, err)
		}
		if errors.Is(err, finalizer.ErrOutputIsCorpus) {
			return nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		if ctx.Err() != nil {
			return nil, err
		}
		return nil, ioErr(err)
	}

	var b strings.Builder
	if err := rep.WriteLog(&b); err != nil {
		return nil, ioErr(err)
	}
	if err := artifact.WriteFileAtomic(p.FinalizeLog, []byte(b.String())); err != nil {
		return nil, ioErr(err)
	}
	if n := rep.Failed(); n > 0 {
		log.Warnf("done", "%d of %d documents failed, see %s", n, len(rep.Documents), p.FinalizeLog)
	} else {
		log.Infof("done", "%d documents -> %s", len(rep.Documents), r.OutputDir)
	}
	return rep, nil
}

// Stage is one named step of a full run.
type Stage struct {
	Name string
	Run  func(ctx context.Context) error
}

// Stages returns the pipeline in execution order.
func (r *Runner) Stages() []Stage {
	return []Stage{
		{"classify", func(context.Context) error { _, err := r.Classify(); return err }},
		{"generate", func(context.Context) error { _, err := r.Generate(); return err }},
		{"cipher", func(context.Context) error { _, err := r.Cipher(); return err }},
		{"merge", func(context.Context) error { _, err := r.Merge(); return err }},
		{"finalize", func(ctx context.Context) error { _, err := r.Finalize(ctx); return err }},
	}
}

// RunAll executes every stage in order and stops at the first failure.
func (r *Runner) RunAll(ctx context.Context) error {
	for _, s := range r.Stages() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
	}
	return nil
}

func writePairs(w io.Writer, stage string, before, after []string) {
	fmt.Fprintf(w, "Replacement pairs (%s):\n", stage)
	for i := range before {
		if i < len(after) {
			fmt.Fprintf(w, "%s -> %s\n", before[i], after[i])
		}
	}
}

// stageLog accumulates the human-readable summary written next to the
// stage artifacts. It holds no timestamps, so reruns compare equal.
type stageLog struct {
	b strings.Builder
}

func newStageLog(id, name, input string) *stageLog {
	sl := &stageLog{}
	sl.linef("Stage %s: %s", id, name)
	sl.linef("Input: %s", filepath.Base(input))
	return sl
}

func (sl *stageLog) kv(key string, v any) { sl.linef("%s: %v", key, v) }

func (sl *stageLog) linef(format string, args ...any) {
	fmt.Fprintf(&sl.b, format, args...)
	sl.b.WriteByte('\n')
}

func (sl *stageLog) bytes() []byte { return []byte(sl.b.String()) }
