package lexicon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"corpus-obfuscator/internal/kvstore"
	"corpus-obfuscator/internal/logger"
)

const maxOllamaResponse = 1 << 20 // 1 MB

// Ollama is a Lexicon that asks a local Ollama model whether a word is a
// dictionary word. Verdicts are cached in a kvstore.Store, so a persistent
// store makes repeated runs free. When the model cannot be reached the
// fallback lexicon answers instead and nothing is cached.
type Ollama struct {
	url      string
	model    string
	language string
	client   *http.Client
	timeout  time.Duration
	cache    kvstore.Store
	fallback Lexicon
	log      *logger.Logger
}

// OllamaOptions configures NewOllama.
type OllamaOptions struct {
	Endpoint string
	Model    string
	// Language names the natural language in the prompt. Defaults to "Russian".
	Language string
	Timeout  time.Duration
	Cache    kvstore.Store
	Fallback Lexicon
	Client   *http.Client
	Logger   *logger.Logger
}

// NewOllama returns an Ollama lexicon. Nil Cache, Fallback, Client and
// Logger get in-memory, Cyrillic, http.DefaultClient and discard defaults.
func NewOllama(opts OllamaOptions) *Ollama {
	o := &Ollama{
		url:      strings.TrimRight(opts.Endpoint, "/") + "/api/generate",
		model:    opts.Model,
		language: opts.Language,
		client:   opts.Client,
		timeout:  opts.Timeout,
		cache:    opts.Cache,
		fallback: opts.Fallback,
		log:      opts.Logger,
	}
	if o.language == "" {
		o.language = "Russian"
	}
	if o.timeout <= 0 {
		o.timeout = 10 * time.Second
	}
	if o.client == nil {
		o.client = http.DefaultClient
	}
	if o.cache == nil {
		o.cache = kvstore.NewMemory()
	}
	if o.fallback == nil {
		o.fallback = Cyrillic{}
	}
	if o.log == nil {
		o.log = logger.Discard()
	}
	return o
}

type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

type wordVerdict struct {
	Word   string `json:"word"`
	IsWord bool   `json:"isWord"`
}

// Contains implements Lexicon.
func (o *Ollama) Contains(word string) bool {
	key := strings.ToLower(word)
	if len([]rune(key)) < 2 {
		return false
	}
	if v, ok := o.cache.Get(key); ok {
		return v == "1"
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	verdict, err := o.query(ctx, key)
	if err != nil {
		o.log.Warnf("ollama_query", "word %q: %v (using fallback)", key, err)
		return o.fallback.Contains(key)
	}
	if verdict {
		o.cache.Set(key, "1")
	} else {
		o.cache.Set(key, "0")
	}
	return verdict
}

func (o *Ollama) query(ctx context.Context, word string) (bool, error) {
	prompt := fmt.Sprintf(`Is the following token an ordinary %s dictionary word (in any grammatical form)?
Proper names, abbreviations and invented words are NOT dictionary words.
Return ONLY a JSON object: {"word": "<token>", "isWord": true|false}

Token: %s`, o.language, word)

	reqBody, err := json.Marshal(ollamaRequest{Model: o.model, Prompt: prompt, Stream: false})
	if err != nil {
		return false, fmt.Errorf("encode ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(reqBody))
	if err != nil {
		return false, fmt.Errorf("create ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req) // #nosec G107 -- URL from trusted config, not user input
	if err != nil {
		return false, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("ollama status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOllamaResponse))
	if err != nil {
		return false, err
	}

	var or ollamaResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return false, fmt.Errorf("ollama response parse error: %w", err)
	}

	// Extract the JSON object from the model's text response.
	raw := strings.TrimSpace(or.Response)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return false, fmt.Errorf("no JSON object in ollama response")
	}

	var v wordVerdict
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return false, fmt.Errorf("verdict parse error: %w", err)
	}
	return v.IsWord, nil
}
