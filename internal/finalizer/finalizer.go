// Package finalizer applies the merged term map to a whole corpus.
//
// Each document and its filename stem are rewritten independently with the
// same ordered entry list. Sources are never modified; results go to a
// separate output directory. A substitution log lists, per document, every
// distinct replacement with its count and a digest of the written output.
package finalizer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"corpus-obfuscator/internal/artifact"
	"corpus-obfuscator/internal/logger"
	"corpus-obfuscator/internal/metrics"
)

// ErrOutputIsCorpus is returned when the output directory resolves to the
// corpus directory, which would overwrite the source documents.
var ErrOutputIsCorpus = errors.New("output directory is the corpus directory")

// Options configures Run.
type Options struct {
	MapFile   string
	CorpusDir string
	OutputDir string
	// Extensions selects the documents to process, matched case-insensitively.
	// Defaults to ".txt".
	Extensions []string
	// Workers bounds concurrent documents. Values below 2 run sequentially.
	Workers int
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Document is the outcome for one source file.
type Document struct {
	Source  string
	Output  string
	Records []Record
	Total   int
	// Digest is the hex blake3-256 of the written output.
	Digest string
	// Warning is set when the output name had to fall back to Source.
	Warning string
	Err     error
}

// Report is the outcome of Run. Documents are in source filename order.
type Report struct {
	Entries   int
	Documents []Document
}

// Failed returns the number of documents that could not be processed.
func (r *Report) Failed() int {
	n := 0
	for _, d := range r.Documents {
		if d.Err != nil {
			n++
		}
	}
	return n
}

// Run loads the term map and rewrites every matching document of
// opts.CorpusDir into opts.OutputDir. A missing or unreadable map or corpus
// directory fails before anything is created. Errors on single documents
// are recorded in the report and do not stop the run.
func Run(ctx context.Context, opts Options) (*Report, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	m := opts.Metrics
	if m == nil {
		m = &metrics.Metrics{}
	}
	exts := opts.Extensions
	if len(exts) == 0 {
		exts = []string{".txt"}
	}

	entries, err := LoadEntries(opts.MapFile, log)
	if err != nil {
		return nil, err
	}
	names, err := listDocuments(opts.CorpusDir, exts)
	if err != nil {
		return nil, err
	}
	if err := checkOutputDir(opts.CorpusDir, opts.OutputDir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o750); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	log.Infof("start", "%d entries, %d documents, workers=%d", len(entries), len(names), opts.Workers)

	docs := planOutputs(names, entries, log)
	process := func(i int) {
		start := time.Now()
		processDocument(&docs[i], opts, entries)
		m.RecordDocumentLatency(time.Since(start))
		if docs[i].Err != nil {
			m.DocumentsFailed.Add(1)
			log.Errorf("document", "%s: %v", docs[i].Source, docs[i].Err)
			return
		}
		m.DocumentsProcessed.Add(1)
		m.Substitutions.Add(int64(docs[i].Total))
		if docs[i].Output != docs[i].Source {
			m.FilesRenamed.Add(1)
		}
		log.Debugf("document", "%s -> %s (%d replacements)", docs[i].Source, docs[i].Output, docs[i].Total)
	}

	if opts.Workers > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i := range docs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					docs[i].Err = err
					return nil
				}
				process(i)
				return nil
			})
		}
		g.Wait() //nolint:errcheck // workers never return errors; failures live in docs
	} else {
		for i := range docs {
			if err := ctx.Err(); err != nil {
				docs[i].Err = err
				continue
			}
			process(i)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Report{Entries: len(entries), Documents: docs}, nil
}

func listDocuments(dir string, exts []string) ([]string, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read corpus dir: %w", err)
	}
	var names []string
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		ext := filepath.Ext(de.Name())
		for _, want := range exts {
			if strings.EqualFold(ext, want) {
				names = append(names, de.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// checkOutputDir rejects an output directory that is the corpus directory,
// including through symlinks or a different spelling of the path.
func checkOutputDir(corpus, output string) error {
	out, err := os.Stat(output)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat output dir: %w", err)
	}
	src, err := os.Stat(corpus)
	if err != nil {
		return fmt.Errorf("stat corpus dir: %w", err)
	}
	if os.SameFile(src, out) {
		return fmt.Errorf("%w: %s", ErrOutputIsCorpus, output)
	}
	return nil
}

// planOutputs decides every output name up front so collisions resolve the
// same way regardless of worker scheduling.
func planOutputs(names []string, entries []Entry, log *logger.Logger) []Document {
	docs := make([]Document, len(names))
	taken := make(map[string]bool, len(names))
	for i, name := range names {
		docs[i].Source = name
		out := ReplaceFilename(name, entries)
		if strings.TrimSuffix(out, filepath.Ext(out)) == "" || taken[out] {
			docs[i].Warning = fmt.Sprintf("output name %q unusable, keeping %q", out, name)
			log.Warnf("rename", "%s: %s", name, docs[i].Warning)
			out = name
		}
		if taken[out] {
			docs[i].Err = fmt.Errorf("output name %q already used", out)
			continue
		}
		taken[out] = true
		docs[i].Output = out
	}
	return docs
}

func processDocument(d *Document, opts Options, entries []Entry) {
	if d.Err != nil {
		return
	}
	src, err := os.ReadFile(filepath.Join(opts.CorpusDir, d.Source)) // #nosec G304 -- path from a directory listing
	if err != nil {
		d.Err = fmt.Errorf("read: %w", err)
		return
	}
	text, counts := ReplaceText(string(src), entries)
	if err := artifact.WriteFileAtomic(filepath.Join(opts.OutputDir, d.Output), []byte(text)); err != nil {
		d.Err = fmt.Errorf("write: %w", err)
		return
	}
	d.Records = Records(counts)
	for _, r := range d.Records {
		d.Total += r.Count
	}
	sum := blake3.Sum256([]byte(text))
	d.Digest = hex.EncodeToString(sum[:])
}

// WriteLog writes the substitution log. Its content depends only on the
// corpus and the term map.
func (r *Report) WriteLog(w io.Writer) error {
	var b strings.Builder
	for _, d := range r.Documents {
		out := d.Output
		if out == "" {
			out = d.Source
		}
		fmt.Fprintf(&b, "File: %s -> %s\n", d.Source, out)
		if d.Warning != "" {
			fmt.Fprintf(&b, "  Warning: %s\n", d.Warning)
		}
		if d.Err != nil {
			fmt.Fprintf(&b, "  Error: %v\n\n", d.Err)
			continue
		}
		for _, rec := range d.Records {
			fmt.Fprintf(&b, "  Replaced: %s -> %s (%d times)\n", rec.Matched, rec.Replacement, rec.Count)
		}
		fmt.Fprintf(&b, "  Total replacements: %d\n", d.Total)
		fmt.Fprintf(&b, "  Digest: blake3:%s\n\n", d.Digest)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
