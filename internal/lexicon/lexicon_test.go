package lexicon

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"corpus-obfuscator/internal/kvstore"
)

func TestWordList(t *testing.T) {
	w := NewWordList("дроид", " Корабль ", "", "я")
	cases := []struct {
		word string
		want bool
	}{
		{"дроид", true},
		{"Дроид", true},
		{"корабль", true},
		{"гзандо", false},
		{"я", false}, // single letters never count
		{"", false},
	}
	for _, c := range cases {
		if got := w.Contains(c.word); got != c.want {
			t.Errorf("Contains(%q) = %v, want %v", c.word, got, c.want)
		}
	}
	if w.Len() != 3 {
		t.Errorf("Len: got %d, want 3", w.Len())
	}
}

func TestLoadWordList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ru.txt")
	if err := os.WriteFile(path, []byte("дроид\nзвезда\n\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := LoadWordList(path)
	if err != nil {
		t.Fatalf("LoadWordList: %v", err)
	}
	if !w.Contains("звезда") {
		t.Error("expected loaded word")
	}
}

func TestCyrillic(t *testing.T) {
	var c Cyrillic
	cases := map[string]bool{
		"дроид": true,
		"ДБЯ":   true,
		"ёж":    true,
		"я":     false,
		"AT":    false,
		"дроid": false,
		"R2-Д2": false,
	}
	for word, want := range cases {
		if got := c.Contains(word); got != want {
			t.Errorf("Contains(%q) = %v, want %v", word, got, want)
		}
	}
}

func TestCyrillicWords(t *testing.T) {
	raw, clean := CyrillicWords("Оби-Ван Кеноби, д'Артаньян- AT-ST ёлка")
	wantRaw := []string{"Оби-Ван", "Кеноби", "д'Артаньян", "ёлка"}
	wantClean := []string{"ОбиВан", "Кеноби", "дАртаньян", "ёлка"}
	if diff := cmp.Diff(wantRaw, raw); diff != "" {
		t.Errorf("raw mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantClean, clean); diff != "" {
		t.Errorf("clean mismatch (-want +got):\n%s", diff)
	}
}

// newOllamaServer returns a fake Ollama endpoint that answers isWord=true
// for the given words and counts requests.
func newOllamaServer(t *testing.T, known ...string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	var calls atomic.Int64
	set := make(map[string]bool)
	for _, k := range known {
		set[k] = true
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/api/generate" {
			http.NotFound(w, r)
			return
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		idx := strings.LastIndex(req.Prompt, "Token: ")
		word := strings.TrimSpace(req.Prompt[idx+len("Token: "):])
		verdict, _ := json.Marshal(wordVerdict{Word: word, IsWord: set[word]})
		resp, _ := json.Marshal(ollamaResponse{Response: "Sure! " + string(verdict)})
		w.Header().Set("Content-Type", "application/json")
		w.Write(resp) //nolint:errcheck // test server
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOllama_QueriesAndCaches(t *testing.T) {
	srv, calls := newOllamaServer(t, "дроид")
	o := NewOllama(OllamaOptions{Endpoint: srv.URL + "/", Model: "test-model"})

	if !o.Contains("Дроид") {
		t.Error("expected дроид to be a word")
	}
	if o.Contains("гзандо") {
		t.Error("expected гзандо not to be a word")
	}
	if !o.Contains("дроид") {
		t.Error("cached verdict lost")
	}
	if n := calls.Load(); n != 2 {
		t.Errorf("expected 2 upstream calls (second дроид cached), got %d", n)
	}
}

func TestOllama_PersistentCache(t *testing.T) {
	srv, calls := newOllamaServer(t, "звезда")
	cache := kvstore.NewMemory()
	cache.Set("корабль", "1")

	o := NewOllama(OllamaOptions{Endpoint: srv.URL, Cache: cache})
	if !o.Contains("корабль") {
		t.Error("pre-seeded verdict ignored")
	}
	if calls.Load() != 0 {
		t.Error("cached verdict should not reach the model")
	}
	o.Contains("звезда")
	if v, _ := cache.Get("звезда"); v != "1" {
		t.Errorf("verdict not written to cache, got %q", v)
	}
}

func TestOllama_FallbackOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	cache := kvstore.NewMemory()
	o := NewOllama(OllamaOptions{
		Endpoint: srv.URL,
		Cache:    cache,
		Fallback: NewWordList("дроид"),
		Timeout:  time.Second,
	})
	if !o.Contains("дроид") {
		t.Error("fallback should answer when the model fails")
	}
	if o.Contains("гзандо") {
		t.Error("fallback should reject unknown words")
	}
	if cache.Len() != 0 {
		t.Error("failed queries must not be cached")
	}
}

func TestOllama_GarbageResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response":"I cannot answer that"}`)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	o := NewOllama(OllamaOptions{Endpoint: srv.URL, Fallback: NewWordList()})
	if o.Contains("дроид") {
		t.Error("garbage response should defer to the (empty) fallback")
	}
}
