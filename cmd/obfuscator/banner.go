package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"corpus-obfuscator/internal/config"
	"corpus-obfuscator/internal/pipeline"
)

var (
	colorOK    = lipgloss.Color("#10B981") // Green
	colorFail  = lipgloss.Color("#EF4444") // Red
	colorMuted = lipgloss.Color("#6B7280") // Gray

	okStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorOK)
	failStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorFail)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	titleStyle = lipgloss.NewStyle().Bold(true).Border(lipgloss.RoundedBorder()).Padding(0, 2)
)

// printBanner shows the effective settings before any stage runs.
func printBanner(w io.Writer, cfg *config.Config, runID string) {
	lexicon := cfg.LexiconFile
	if cfg.UseAILexicon {
		lexicon = fmt.Sprintf("ollama %s @ %s", cfg.OllamaModel, cfg.OllamaEndpoint)
	}
	store := cfg.TokenStore
	if store == "" {
		store = "(in memory, set TOKEN_STORE to keep replacements across runs)"
	}
	rows := [][2]string{
		{"Run", runID},
		{"Index", cfg.InputFile},
		{"Corpus", cfg.CorpusDir},
		{"Output", cfg.OutputDir},
		{"Term map", cfg.TermsMapFile},
		{"Seed", fmt.Sprint(cfg.Seed)},
		{"Token store", store},
		{"Lexicon", lexicon},
		{"Extensions", strings.Join(cfg.Extensions, " ")},
		{"Workers", fmt.Sprint(cfg.Workers)},
	}
	fmt.Fprintln(w, titleStyle.Render("Corpus Obfuscator"))
	for _, r := range rows {
		fmt.Fprintf(w, "  %-12s: %s\n", r[0], r[1])
	}
	fmt.Fprintln(w)
}

// stageBanner reports the outcome of one stage.
func stageBanner(w io.Writer, stage string, err error) {
	if err == nil {
		fmt.Fprintf(w, "%s %s\n", okStyle.Render("✔ "+stage), mutedStyle.Render("completed"))
		return
	}
	code := pipeline.Classify(err)
	fmt.Fprintf(w, "%s %s %v\n", failStyle.Render("✘ "+stage), mutedStyle.Render("["+string(code)+"]"), err)
}
