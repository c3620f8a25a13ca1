// Package metrics provides lightweight, lock-minimal counters for a
// pipeline run.
//
// Counters use sync/atomic so the optional parallel finalize pass incurs no
// mutex contention. Per-document latency uses a single mutex; it is updated
// at most once per document.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds all counters for one pipeline run.
// The zero value is usable; New additionally records the start time.
type Metrics struct {
	// Classification
	EntriesRead       atomic.Int64
	DuplicatesDropped atomic.Int64
	Names             atomic.Int64
	Abbreviations     atomic.Int64
	Terms             atomic.Int64
	LeakageWarnings   atomic.Int64

	// Token generation
	TokensGenerated   atomic.Int64
	TokenMemoHits     atomic.Int64
	TokenOverrides    atomic.Int64
	TokenPassthroughs atomic.Int64

	// Letter cipher
	TermsCiphered  atomic.Int64
	QuotedTerms    atomic.Int64
	DuplicateWords atomic.Int64

	// Merge
	MapEntries   atomic.Int64
	MapConflicts atomic.Int64

	// Finalize
	DocumentsProcessed atomic.Int64
	DocumentsFailed    atomic.Int64
	FilesRenamed       atomic.Int64
	Substitutions      atomic.Int64

	docMu   sync.Mutex
	docStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordDocumentLatency records how long one document took to rewrite.
func (m *Metrics) RecordDocumentLatency(d time.Duration) {
	m.docMu.Lock()
	m.docStat.record(float64(d.Microseconds()) / 1000.0)
	m.docMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.docMu.Lock()
	doc := m.docStat.snapshot()
	m.docMu.Unlock()

	var uptime float64
	if !m.startTime.IsZero() {
		uptime = time.Since(m.startTime).Seconds()
	}

	return Snapshot{
		Classify: ClassifySnapshot{
			Entries:       m.EntriesRead.Load(),
			Duplicates:    m.DuplicatesDropped.Load(),
			Names:         m.Names.Load(),
			Abbreviations: m.Abbreviations.Load(),
			Terms:         m.Terms.Load(),
			Leakage:       m.LeakageWarnings.Load(),
		},
		Tokens: TokenSnapshot{
			Generated:    m.TokensGenerated.Load(),
			MemoHits:     m.TokenMemoHits.Load(),
			Overrides:    m.TokenOverrides.Load(),
			Passthroughs: m.TokenPassthroughs.Load(),
		},
		Cipher: CipherSnapshot{
			Terms:          m.TermsCiphered.Load(),
			Quoted:         m.QuotedTerms.Load(),
			DuplicateWords: m.DuplicateWords.Load(),
		},
		Merge: MergeSnapshot{
			Entries:   m.MapEntries.Load(),
			Conflicts: m.MapConflicts.Load(),
		},
		Finalize: FinalizeSnapshot{
			Documents:     m.DocumentsProcessed.Load(),
			Failed:        m.DocumentsFailed.Load(),
			Renamed:       m.FilesRenamed.Load(),
			Substitutions: m.Substitutions.Load(),
			DocumentMs:    doc,
		},
		UptimeSecs: round2(uptime),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Classify   ClassifySnapshot `json:"classify"`
	Tokens     TokenSnapshot    `json:"tokens"`
	Cipher     CipherSnapshot   `json:"cipher"`
	Merge      MergeSnapshot    `json:"merge"`
	Finalize   FinalizeSnapshot `json:"finalize"`
	UptimeSecs float64          `json:"uptimeSecs"`
}

// ClassifySnapshot holds entry classification counters.
type ClassifySnapshot struct {
	Entries       int64 `json:"entries"`
	Duplicates    int64 `json:"duplicates"`
	Names         int64 `json:"names"`
	Abbreviations int64 `json:"abbreviations"`
	Terms         int64 `json:"terms"`
	Leakage       int64 `json:"leakage"`
}

// TokenSnapshot holds token generator counters.
type TokenSnapshot struct {
	Generated    int64 `json:"generated"`
	MemoHits     int64 `json:"memoHits"`
	Overrides    int64 `json:"overrides"`
	Passthroughs int64 `json:"passthroughs"`
}

// CipherSnapshot holds letter cipher counters.
type CipherSnapshot struct {
	Terms          int64 `json:"terms"`
	Quoted         int64 `json:"quoted"`
	DuplicateWords int64 `json:"duplicateWords"`
}

// MergeSnapshot holds term map merge counters.
type MergeSnapshot struct {
	Entries   int64 `json:"entries"`
	Conflicts int64 `json:"conflicts"`
}

// FinalizeSnapshot holds corpus rewrite counters.
type FinalizeSnapshot struct {
	Documents     int64           `json:"documents"`
	Failed        int64           `json:"failed"`
	Renamed       int64           `json:"renamed"`
	Substitutions int64           `json:"substitutions"`
	DocumentMs    LatencySnapshot `json:"documentMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
