package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Pair is one original → replacement entry of a Table.
type Pair struct {
	Key   string
	Value string
}

// Table is an insertion-ordered original → replacement mapping. It encodes
// as a JSON object whose keys keep insertion order.
type Table struct {
	m *orderedmap.OrderedMap[string, string]
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{m: orderedmap.New[string, string]()}
}

// Set stores key → value. An existing key keeps its position. It reports
// whether the key was already present.
func (t *Table) Set(key, value string) bool {
	_, present := t.m.Set(key, value)
	return present
}

// Get returns the value for key.
func (t *Table) Get(key string) (string, bool) {
	return t.m.Get(key)
}

// Len returns the number of entries.
func (t *Table) Len() int { return t.m.Len() }

// Pairs returns the entries in insertion order.
func (t *Table) Pairs() []Pair {
	out := make([]Pair, 0, t.m.Len())
	for p := t.m.Oldest(); p != nil; p = p.Next() {
		out = append(out, Pair{Key: p.Key, Value: p.Value})
	}
	return out
}

// MarshalJSON encodes the table as a JSON object in insertion order.
// Keys and values are written without HTML escaping.
func (t *Table) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	out := []byte{'{'}
	for p := t.m.Oldest(); p != nil; p = p.Next() {
		if len(out) > 1 {
			out = append(out, ',')
		}
		for i, s := range [2]string{p.Key, p.Value} {
			buf.Reset()
			if err := enc.Encode(s); err != nil {
				return nil, err
			}
			if i == 1 {
				out = append(out, ':')
			}
			out = append(out, bytes.TrimRight(buf.Bytes(), "\n")...)
		}
	}
	return append(out, '}'), nil
}

// UnmarshalJSON decodes a JSON object of string values, keeping the key
// order of the document.
func (t *Table) UnmarshalJSON(data []byte) error {
	if t.m == nil {
		t.m = orderedmap.New[string, string]()
	}
	return t.m.UnmarshalJSON(data)
}

// ReadTable loads a JSON object mapping strings to strings.
func ReadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- stage artifact path derived from operator input
	if err != nil {
		return nil, err
	}
	t := NewTable()
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return t, nil
}

// WriteTable writes t as an indented JSON document. Non-ASCII and HTML
// characters are written literally.
func WriteTable(path string, t *Table) error {
	data, err := encodeTable(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return WriteFileAtomic(path, data)
}

func encodeTable(t *Table) ([]byte, error) {
	// json.Marshal would re-escape &, < and > in the encoded object.
	raw, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
