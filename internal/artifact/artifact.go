// Package artifact reads and writes the human-readable files exchanged
// between pipeline stages: newline-delimited line lists, insertion-ordered
// JSON key→value tables and plain-text logs.
//
// Every write goes through a temp file in the destination directory followed
// by a rename, so a failing stage never leaves a half-written artifact.
package artifact

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// ReadLines returns the trimmed, non-empty lines of path. Line bytes are
// kept as written so index entries match corpus text byte for byte.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path) // #nosec G304 -- stage artifact path derived from operator input
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only file

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}

// WriteLines writes one line per entry, each terminated by a newline.
func WriteLines(path string, lines []string) error {
	return WriteFileAtomic(path, encodeLines(lines))
}

func encodeLines(lines []string) []byte {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// WriteFileAtomic writes data to path via temp file → rename.
func WriteFileAtomic(path string, data []byte) error {
	tmpName, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// writeTemp writes data to a temp file next to path and returns its name.
func writeTemp(path string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck // best-effort cleanup
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		return "", fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil { // #nosec G302 -- artifacts are meant to be shared
		os.Remove(tmpName) //nolint:errcheck // #nosec G703 -- tmpName from os.CreateTemp
		return "", fmt.Errorf("chmod %s: %w", path, err)
	}
	return tmpName, nil
}

// Batch collects the artifacts of one stage and publishes them together.
// Nothing is visible at the destination paths until Commit, and a failed
// Commit removes whatever it had already moved into place.
type Batch struct {
	staged []staged
	err    error
}

type staged struct {
	path, tmp string
}

// Add stages data for path. After the first failure further calls are
// ignored and Commit reports that failure.
func (b *Batch) Add(path string, data []byte) {
	if b.err != nil {
		return
	}
	tmp, err := writeTemp(path, data)
	if err != nil {
		b.err = err
		return
	}
	b.staged = append(b.staged, staged{path: path, tmp: tmp})
}

// Lines stages a line list, see WriteLines.
func (b *Batch) Lines(path string, lines []string) {
	b.Add(path, encodeLines(lines))
}

// Table stages a table, see WriteTable.
func (b *Batch) Table(path string, t *Table) {
	if b.err != nil {
		return
	}
	data, err := encodeTable(t)
	if err != nil {
		b.err = fmt.Errorf("encode %s: %w", path, err)
		return
	}
	b.Add(path, data)
}

// Commit renames every staged file into place, in the order added.
func (b *Batch) Commit() error {
	if b.err != nil {
		b.Discard()
		return b.err
	}
	for i, s := range b.staged {
		if err := os.Rename(s.tmp, s.path); err != nil {
			for _, done := range b.staged[:i] {
				os.Remove(done.path) //nolint:errcheck // best-effort rollback
			}
			b.staged = b.staged[i:]
			b.Discard()
			return fmt.Errorf("rename %s: %w", s.path, err)
		}
	}
	b.staged = nil
	return nil
}

// Discard removes every staged temp file.
func (b *Batch) Discard() {
	for _, s := range b.staged {
		os.Remove(s.tmp) //nolint:errcheck // #nosec G703 -- tmp from os.CreateTemp
	}
	b.staged = nil
}

// FoldKey returns the case-folded form of s used for case-insensitive
// ordering and duplicate detection.
func FoldKey(s string) string {
	return cases.Fold().String(s)
}

// SortFold sorts lines case-insensitively in place. The sort is stable, so
// lines that differ only in case keep their relative order.
func SortFold(lines []string) {
	keys := make(map[string]string, len(lines))
	folder := cases.Fold()
	for _, l := range lines {
		if _, ok := keys[l]; !ok {
			keys[l] = folder.String(l)
		}
	}
	sort.SliceStable(lines, func(i, j int) bool {
		return keys[lines[i]] < keys[lines[j]]
	})
}

// Exists reports whether path names an existing regular file.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
