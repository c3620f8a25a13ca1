package main

import (
	"bufio"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"corpus-obfuscator/internal/config"
	"corpus-obfuscator/internal/logger"
	"corpus-obfuscator/internal/metrics"
	"corpus-obfuscator/internal/pipeline"
)

// app carries flag values and per-invocation state shared by all commands.
type app struct {
	configPath string
	input      string
	corpus     string
	output     string
	mapFile    string
	logLevel   string
	seed       int64
	workers    int

	cfg   *config.Config
	log   *logger.Logger
	m     *metrics.Metrics
	runID string
	stdin *bufio.Reader
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "obfuscator",
		Short: "Obfuscate proper nouns, abbreviations and terms across a text corpus",
		Long: `obfuscator classifies a reviewed index of proper nouns, abbreviations and
terminology, derives replacements for them (random look-alike tokens for
abbreviations, a reversible letter cipher for terms) and applies the merged
term map to every document and filename of a corpus.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "config file (default: obfuscator-config.json or .yaml in the working directory)")
	pf.StringVarP(&a.input, "input", "i", "", "raw index file")
	pf.StringVar(&a.corpus, "corpus", "", "source corpus directory")
	pf.StringVarP(&a.output, "output", "o", "", "finalized corpus directory")
	pf.StringVar(&a.mapFile, "map", "", "merged term map file")
	pf.Int64Var(&a.seed, "seed", 0, "token generator seed (0 derives one from the clock)")
	pf.IntVar(&a.workers, "workers", 0, "documents rewritten concurrently by finalize")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		a.stageCmd("classify", "Split the raw index into names, abbreviations and terms", false, "classify"),
		a.stageCmd("generate", "Replace abbreviations with random look-alike tokens", false, "generate"),
		a.stageCmd("cipher", "Apply the letter cipher to terms", false, "cipher"),
		a.stageCmd("merge", "Merge the abbreviation and term maps into the term map", false, "merge"),
		a.stageCmd("finalize", "Rewrite the corpus with the term map", true, "finalize"),
		a.stageCmd("run", "Run every stage in order", true, "classify", "generate", "cipher", "merge", "finalize"),
	)
	return root
}

// setup loads the config and applies explicitly set flags on top of it.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Flags()
	a.runID = uuid.NewString()
	level := "info"
	if flags.Changed("log-level") {
		level = a.logLevel
	}
	l := logger.New("CLI", level)
	l.SetOutput(cmd.ErrOrStderr())
	l = l.WithRunID(a.runID[:8])

	cfg := config.Load(a.configPath, l.WithModule("CONFIG"))
	if flags.Changed("input") {
		cfg.InputFile = a.input
	}
	if flags.Changed("corpus") {
		cfg.CorpusDir = a.corpus
	}
	if flags.Changed("output") {
		cfg.OutputDir = a.output
	}
	if flags.Changed("map") {
		cfg.TermsMapFile = a.mapFile
	}
	if flags.Changed("seed") {
		cfg.Seed = a.seed
	}
	if flags.Changed("workers") && a.workers > 0 {
		cfg.Workers = a.workers
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.logLevel
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	l.SetLevel(cfg.LogLevel)
	a.log = l
	a.m = metrics.New()
	a.cfg = cfg
	a.stdin = bufio.NewReader(cmd.InOrStdin())
	return nil
}

func (a *app) stageCmd(use, short string, needCorpus bool, stages ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [index-file]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.execute(cmd, args, needCorpus, stages)
		},
	}
}

// execute resolves inputs, then runs the named stages in pipeline order,
// stopping at the first failure.
func (a *app) execute(cmd *cobra.Command, args []string, needCorpus bool, stages []string) error {
	out := cmd.OutOrStdout()
	defer a.logMetrics()

	candidates := []string{a.cfg.InputFile}
	if len(args) == 1 {
		candidates = []string{args[0]}
	}
	input, err := resolvePath(a.stdin, out, "Index file "+candidates[0], false, candidates...)
	if err != nil {
		stageBanner(out, stages[0], err)
		return err
	}
	a.cfg.InputFile = input

	if needCorpus {
		corpus, err := resolvePath(a.stdin, out, "Corpus directory "+a.cfg.CorpusDir, true, a.cfg.CorpusDir)
		if err != nil {
			stageBanner(out, stages[0], err)
			return err
		}
		a.cfg.CorpusDir = corpus
	}

	printBanner(out, a.cfg, a.runID)

	r := pipeline.New(a.cfg, a.log, a.m)
	defer func() {
		if err := r.Close(); err != nil {
			a.log.Warnf("close", "%v", err)
		}
	}()
	r.Diag = out

	want := make(map[string]bool, len(stages))
	for _, s := range stages {
		want[s] = true
	}
	for _, s := range r.Stages() {
		if !want[s.Name] {
			continue
		}
		err := s.Run(cmd.Context())
		stageBanner(out, s.Name, err)
		if err != nil {
			a.log.Errorf(s.Name, "[%s] %v", pipeline.Classify(err), err)
			return err
		}
	}
	return nil
}

func (a *app) logMetrics() {
	b, err := json.Marshal(a.m.Snapshot())
	if err != nil {
		return
	}
	a.log.Info("metrics", string(b))
}
