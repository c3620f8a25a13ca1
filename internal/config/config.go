// Package config loads and holds all pipeline configuration.
// Settings are read from built-in defaults, then an optional config file
// (obfuscator-config.json or obfuscator-config.yaml), then environment
// variables. Command-line flags are applied on top by the caller.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"corpus-obfuscator/internal/logger"
)

// DefaultFiles lists the config files Load probes, in order, when no
// explicit path is given.
var DefaultFiles = []string{"obfuscator-config.json", "obfuscator-config.yaml", "obfuscator-config.yml"}

// Config holds the full pipeline configuration.
type Config struct {
	InputFile    string `json:"inputFile" yaml:"inputFile"`
	CorpusDir    string `json:"corpusDir" yaml:"corpusDir"`
	OutputDir    string `json:"outputDir" yaml:"outputDir"`
	TermsMapFile string `json:"termsMapFile" yaml:"termsMapFile"`
	LogLevel     string `json:"logLevel" yaml:"logLevel"`

	// Seed drives the token generator. Zero means "derive from the clock".
	Seed int64 `json:"seed" yaml:"seed"`
	// TokenStore is a bbolt file that keeps token replacements across runs.
	// Empty keeps the memo in memory for a single run.
	TokenStore string `json:"tokenStore" yaml:"tokenStore"`

	LexiconFile    string `json:"lexiconFile" yaml:"lexiconFile"`
	UseAILexicon   bool   `json:"useAILexicon" yaml:"useAILexicon"`
	OllamaEndpoint string `json:"ollamaEndpoint" yaml:"ollamaEndpoint"`
	OllamaModel    string `json:"ollamaModel" yaml:"ollamaModel"`
	LexiconCache   string `json:"lexiconCache" yaml:"lexiconCache"`

	Extensions []string `json:"extensions" yaml:"extensions"`
	Workers    int      `json:"workers" yaml:"workers"`

	// Overrides extends the built-in token override table.
	Overrides map[string]string `json:"overrides" yaml:"overrides"`
}

// Load returns config with defaults overridden by the config file and env vars.
// An empty path probes DefaultFiles in the working directory. log may be nil.
func Load(path string, log *logger.Logger) *Config {
	if log == nil {
		log = logger.Discard()
	}
	cfg := defaults()
	if path != "" {
		loadFile(cfg, path, log)
	} else {
		for _, p := range DefaultFiles {
			if loadFile(cfg, p, log) {
				break
			}
		}
	}
	loadEnv(cfg)
	return cfg
}

func defaults() *Config {
	return &Config{
		InputFile:      "names_index_reviewed.txt",
		CorpusDir:      "knowledge_base_source_reviewed",
		OutputDir:      "knowledge_base_final",
		TermsMapFile:   "terms_map.json",
		LogLevel:       "info",
		LexiconFile:    "lexicon.txt",
		OllamaEndpoint: "http://localhost:11434",
		OllamaModel:    "qwen2.5:3b",
		Extensions:     []string{".txt"},
		Workers:        1,
	}
}

// loadFile merges the file at path into cfg. It reports whether the file
// existed; a missing file is not an error.
func loadFile(cfg *Config, path string, log *logger.Logger) bool {
	data, err := os.ReadFile(path) // #nosec G304 -- path from operator flag or fixed default
	if err != nil {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		log.Warnf("load", "could not parse %s: %v", path, err)
	} else {
		log.Infof("load", "loaded %s", path)
	}
	return true
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("OBFUSCATOR_INPUT"); v != "" {
		cfg.InputFile = v
	}
	if v := os.Getenv("OBFUSCATOR_CORPUS"); v != "" {
		cfg.CorpusDir = v
	}
	if v := os.Getenv("OBFUSCATOR_OUTPUT"); v != "" {
		cfg.OutputDir = v
	}
	if v := os.Getenv("OBFUSCATOR_TERMS_MAP"); v != "" {
		cfg.TermsMapFile = v
	}
	if v := os.Getenv("OBFUSCATOR_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Seed = n
		}
	}
	if v := os.Getenv("OBFUSCATOR_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TOKEN_STORE"); v != "" {
		cfg.TokenStore = v
	}
	if v := os.Getenv("LEXICON_FILE"); v != "" {
		cfg.LexiconFile = v
	}
	if v := os.Getenv("OLLAMA_ENDPOINT"); v != "" {
		cfg.OllamaEndpoint = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.OllamaModel = v
	}
	if v := os.Getenv("USE_AI_LEXICON"); v != "" {
		cfg.UseAILexicon = v == "true" || v == "1"
	}
}
