package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/minios-linux/mnbkit/cache"
	"github.com/minios-linux/mnbkit/chunk"
	"github.com/minios-linux/mnbkit/config"
	"github.com/minios-linux/mnbkit/glossary"
	"github.com/minios-linux/mnbkit/i18n"
	"github.com/minios-linux/mnbkit/langmeta"
	"github.com/minios-linux/mnbkit/progress"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/settings"
	"github.com/minios-linux/mnbkit/translate"
)

// ---------------------------------------------------------------------------
// Provider flags (shared by translate and auth)
// ---------------------------------------------------------------------------

type providerFlags struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	proxy    string
	timeout  time.Duration
}

func addProviderFlags(fs *pflag.FlagSet, pf *providerFlags) {
	fs.StringVarP(&pf.provider, "provider", "p", "", "Provider: "+strings.Join(provider.IDs(), ", ")+" (default from .mnbkit.yaml or google)")
	fs.StringVarP(&pf.model, "model", "m", "", "Model name (default: provider default)")
	fs.StringVar(&pf.apiKey, "api-key", "", "API key (or "+settings.EnvAPIKey+" env var)")
	fs.StringVar(&pf.baseURL, "base-url", "", "Custom API base URL (function name for lambda)")
	fs.StringVar(&pf.proxy, "proxy", "", "HTTP/HTTPS proxy URL")
	fs.DurationVar(&pf.timeout, "timeout", 0, "Request timeout (0 = provider default)")
}

func registerProviderCompletion(cmd *cobra.Command) {
	_ = cmd.RegisterFlagCompletionFunc("provider", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		defs := provider.DefaultProviders()
		completions := make([]string, 0, len(defs))
		for _, id := range provider.IDs() {
			completions = append(completions, id+"\t"+defs[id].Name)
		}
		return completions, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("model", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		p, _ := cmd.Flags().GetString("provider")
		switch p {
		case provider.ProviderGoogle, "":
			return []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"}, cobra.ShellCompDirectiveNoFileComp
		case provider.ProviderOpenAI:
			return []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini", "gpt-4.1"}, cobra.ShellCompDirectiveNoFileComp
		case provider.ProviderGroq:
			return []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant"}, cobra.ShellCompDirectiveNoFileComp
		case provider.ProviderOllama:
			return []string{"qwen2.5", "llama3.2", "mistral"}, cobra.ShellCompDirectiveNoFileComp
		}
		return nil, cobra.ShellCompDirectiveNoFileComp
	})
}

// applyProviderFlags overrides config values with explicitly set flags.
func applyProviderFlags(fs *pflag.FlagSet, pf providerFlags, cfg *config.File) {
	if fs.Changed("provider") {
		cfg.Provider = pf.provider
	}
	if fs.Changed("model") {
		cfg.Model = pf.model
	}
	if fs.Changed("base-url") {
		cfg.BaseURL = pf.baseURL
	}
	if fs.Changed("proxy") {
		cfg.Proxy = pf.proxy
	}
	if fs.Changed("timeout") {
		cfg.Timeout = pf.timeout
	}
}

// resolveProvider builds the provider definition from the config, filling
// the API key and stored endpoint from the credential store.
func resolveProvider(cfg *config.File, apiKeyFlag string, verbose bool) (provider.Provider, error) {
	p, err := cfg.ProviderConfig()
	if err != nil {
		return p, err
	}
	p.Verbose = verbose
	p.APIKey = settings.ResolveAPIKey(p.ID, apiKeyFlag)
	if cfg.BaseURL == "" {
		if stored := settings.GetBaseURL(p.ID); stored != "" {
			p.BaseURL = stored
		}
	}
	return p, nil
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

type translateArgs struct {
	providerFlags

	configPath    string
	output        string
	language      string
	promptID      string
	chunkSize     int
	concurrency   int
	maxRetries    int
	initialDelay  time.Duration
	requestDelay  time.Duration
	glossaries    []string
	caseSensitive bool
	noWholeWord   bool
	useCache      bool
	watch         bool
	dryRun        bool
	verbose       bool
}

func newTranslateCmd() *cobra.Command {
	var a translateArgs

	cmd := &cobra.Command{
		Use:   "translate [file...]",
		Short: "Translate string files using AI",
		Long: `Translate line-based string files using an AI provider.

Each file is split into chunks of lines. Chunks are translated concurrently
(worker count depends on the model), retried on rate limits and transient
errors, and reassembled in their original order. A chunk that cannot be
translated keeps its original text. Placeholders such as {s0}, {reg1} and
{player_name} are protected from the model.

Without file arguments the files listed in .mnbkit.yaml are translated.
Output defaults to <name>.<language>.<ext> next to the input.

Press Ctrl-C to cancel; calls in flight are abandoned and nothing is written
for the interrupted file.

Examples:
  # Translate one file to Korean with Gemini
  mnbkit translate quick_strings.txt

  # Use Groq and write to a specific file
  mnbkit translate -p groq dialogs.txt -o dialogs_ko.txt

  # Translate every file from .mnbkit.yaml with a glossary
  mnbkit translate --glossary terms.csv

  # Show the chunk plan without calling the provider
  mnbkit translate --dry-run quick_strings.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(cmd, args, a)
		},
	}

	fs := cmd.Flags()
	addProviderFlags(fs, &a.providerFlags)

	fs.StringVar(&a.configPath, "config", "", "Config file (default: <root>/"+config.FileName+")")
	fs.StringVarP(&a.output, "output", "o", "", "Output file (single input only)")
	fs.StringVarP(&a.language, "lang", "l", "", "Target language name or code, e.g. Korean or ko (default Korean)")
	fs.StringVar(&a.promptID, "prompt", "", "Prompt ID or name from prompts.json (default: first prompt)")
	fs.IntVar(&a.chunkSize, "chunk-size", chunk.DefaultSize, "Lines per chunk")
	fs.IntVarP(&a.concurrency, "concurrency", "j", 0, "Concurrent requests (0 = by model)")
	fs.IntVar(&a.maxRetries, "max-retries", 2, "Retries per chunk after the first attempt")
	fs.DurationVar(&a.initialDelay, "initial-delay", time.Second, "First retry delay (doubles on each retry)")
	fs.DurationVar(&a.requestDelay, "request-delay", 0, "Delay between launching requests")
	fs.StringSliceVarP(&a.glossaries, "glossary", "g", nil, "Glossary files (CSV or YAML), later files win")
	fs.BoolVar(&a.caseSensitive, "case-sensitive", false, "Match glossary terms case-sensitively")
	fs.BoolVar(&a.noWholeWord, "no-whole-word", false, "Match glossary terms inside words too")
	fs.BoolVar(&a.useCache, "cache", false, "Reuse translations from "+cache.FileName)
	fs.BoolVar(&a.watch, "watch-glossary", false, "Reload glossary files when they change")
	fs.BoolVar(&a.dryRun, "dry-run", false, "Show the chunk plan without calling the provider")
	fs.BoolVarP(&a.verbose, "verbose", "v", false, "Enable detailed logging")

	registerProviderCompletion(cmd)
	return cmd
}

// loadConfig reads the config file named by path, or .mnbkit.yaml in
// rootDir, falling back to defaults.
func loadConfig(path string) (*config.File, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default(rootDir)
	}
	return cfg, nil
}

// applyTranslateFlags overrides config values with explicitly set flags.
func applyTranslateFlags(fs *pflag.FlagSet, a translateArgs, cfg *config.File) error {
	applyProviderFlags(fs, a.providerFlags, cfg)
	if fs.Changed("lang") {
		cfg.TargetLanguage = a.language
	}
	if fs.Changed("prompt") {
		cfg.Prompt = a.promptID
	}
	if fs.Changed("chunk-size") {
		if a.chunkSize <= 0 {
			return fmt.Errorf("%w: --chunk-size must be positive", chunk.ErrInvalidConfiguration)
		}
		cfg.ChunkSize = a.chunkSize
	}
	if fs.Changed("max-retries") {
		n := a.maxRetries
		cfg.MaxRetries = &n
	}
	if fs.Changed("initial-delay") {
		cfg.InitialDelay = a.initialDelay
	}
	if fs.Changed("request-delay") {
		cfg.RequestDelay = a.requestDelay
	}
	if fs.Changed("glossary") {
		cfg.Glossaries = append(cfg.Glossaries, a.glossaries...)
	}
	if fs.Changed("case-sensitive") {
		cfg.Glossary.CaseSensitive = a.caseSensitive
	}
	if fs.Changed("no-whole-word") {
		whole := !a.noWholeWord
		cfg.Glossary.WholeWord = &whole
	}
	if fs.Changed("cache") {
		cfg.Cache = a.useCache
	}
	return cfg.Validate()
}

// selectTargets returns the files to translate: the arguments if any,
// otherwise the config file list.
func selectTargets(args []string, output string, cfg *config.File) ([]config.ResolvedTarget, error) {
	if output != "" && len(args) != 1 {
		return nil, fmt.Errorf("--output requires exactly one input file")
	}
	if len(args) == 0 {
		targets := cfg.Resolve()
		if len(targets) == 0 {
			return nil, fmt.Errorf("no input files: pass files as arguments or list them under 'files' in %s", config.FileName)
		}
		return targets, nil
	}

	targets := make([]config.ResolvedTarget, 0, len(args))
	for _, in := range args {
		out := output
		if out == "" {
			out = config.OutputPath(in, cfg.TargetLanguage)
		}
		targets = append(targets, config.ResolvedTarget{Name: filepath.Base(in), Input: in, Output: out})
	}
	return targets, nil
}

// loadPrompt picks the prompt template from the user's prompts.json.
func loadPrompt(id string) (prompt.Prompt, error) {
	path, err := settings.PromptsFilePath()
	if err != nil {
		return prompt.Prompt{}, err
	}
	store, err := prompt.LoadOrCreate(path)
	if err != nil {
		return prompt.Prompt{}, err
	}
	p, ok := lookupPrompt(store, id)
	if !ok && id != "" {
		logWarning("Prompt %q not found in %s, using %q", id, path, p.ID)
	}
	return p, nil
}

// lookupPrompt accepts a prompt ID or display name. Anything else yields
// the default prompt.
func lookupPrompt(store *prompt.Store, key string) (prompt.Prompt, bool) {
	if p, ok := store.Get(key); ok || key == "" {
		return p, ok
	}
	if p, ok := store.ByName(key); ok {
		return p, true
	}
	return store.Default(), false
}

func runTranslate(cmd *cobra.Command, args []string, a translateArgs) error {
	cfg, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	if err := applyTranslateFlags(cmd.Flags(), a, cfg); err != nil {
		return err
	}

	targets, err := selectTargets(args, a.output, cfg)
	if err != nil {
		return err
	}

	tmpl, err := loadPrompt(cfg.Prompt)
	if err != nil {
		return err
	}
	if err := prompt.Validate(tmpl.Template); err != nil {
		return fmt.Errorf("prompt %q: %w", tmpl.ID, err)
	}

	store := glossary.NewStore(logWarning)
	if paths := cfg.GlossaryPaths(); len(paths) > 0 {
		if err := store.SetActive(paths); err != nil {
			logWarning("%v", err)
		}
		for _, p := range store.Active() {
			terms, _ := store.File(p)
			logInfo("Glossary %s: %d terms", p, len(terms))
		}
	}

	table := provider.DefaultConcurrencyTable().Merge(cfg.Concurrency)

	if a.dryRun {
		return dryRun(targets, cfg, table, a.concurrency)
	}

	prov, err := resolveProvider(cfg, a.apiKey, a.verbose)
	if err != nil {
		return err
	}

	// Setup signal handling for graceful cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logWarning("%s", i18n.T("Interrupted, cancelling translation..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	client, err := provider.New(ctx, prov)
	if err != nil {
		return err
	}

	var mem *cache.Memory
	if cfg.Cache {
		if mem, err = cache.Load(cfg.Dir()); err != nil {
			return err
		}
	}

	if a.watch && len(store.Active()) > 0 {
		w, err := glossary.NewWatcher(store)
		if err != nil {
			return fmt.Errorf("watching glossaries: %w", err)
		}
		defer w.Close()
		for _, p := range store.Active() {
			if err := w.Add(p); err != nil {
				logWarning("Cannot watch %s: %v", p, err)
			}
		}
		go func() {
			for ev := range w.Watch(ctx) {
				if ev.Err != nil {
					logWarning("Glossary %s: %v", ev.Path, ev.Err)
					continue
				}
				logInfo("Glossary %s reloaded: %d terms", ev.Path, ev.Terms)
			}
		}()
	}

	model := prov.Model
	logInfo("Provider: %s (%s), Model: %s", prov.Name, prov.ID, model)
	lang := langmeta.Resolve(cfg.TargetLanguage)
	if lang.Known() {
		logInfo("Target language: %s (%s, %s), prompt: %s", lang.Name, lang.Native, lang.Code, tmpl.ID)
	} else {
		logInfo("Target language: %s, prompt: %s", lang.Name, tmpl.ID)
	}

	base := translate.Options{
		Model:            model,
		Template:         tmpl.Template,
		Language:         cfg.Language(),
		ChunkSize:        cfg.ChunkSize,
		Concurrency:      a.concurrency,
		ConcurrencyTable: table,
		Retry:            cfg.Retry(),
		RequestDelay:     cfg.RequestDelay,
		GlossaryOptions: glossary.Options{
			WholeWord:     cfg.WholeWord(),
			CaseSensitive: cfg.Glossary.CaseSensitive,
		},
		Verbose: a.verbose,
		OnLog: func(format string, args ...any) {
			logInfo(format, args...)
		},
		OnError: func(format string, args ...any) {
			logWarning(format, args...)
		},
	}
	if mem != nil {
		base.Cache = mem
	}
	logInfo("Workers: %d, chunk size: %d, retries: %d", effectiveWorkers(base), cfg.ChunkSize, base.Retry.Retries())

	complete := true
	for _, t := range targets {
		// Glossary files may have been reloaded since the previous file.
		opts := base
		opts.Glossary = store.Terms()

		status, err := translateFile(ctx, client, t, opts, a.verbose)
		if mem != nil {
			if serr := mem.Save(); serr != nil {
				logWarning("Saving cache: %v", serr)
			}
		}
		if err != nil {
			return err
		}
		if status == translate.RunCancelled {
			complete = false
			logWarning("%s", i18n.T("Translation cancelled"))
			break
		}
	}

	// Prune only after a full pass over the configured files so entries of
	// files not named on the command line survive.
	if mem != nil && complete && len(args) == 0 {
		if n := mem.Prune(); n > 0 {
			logInfo("Cache: pruned %d stale entries", n)
			if err := mem.Save(); err != nil {
				logWarning("Saving cache: %v", err)
			}
		}
	}

	if complete {
		logSuccess("%s", i18n.T("Translation complete"))
	}
	return nil
}

func effectiveWorkers(opts translate.Options) int {
	if opts.Concurrency > 0 {
		return opts.Concurrency
	}
	return opts.ConcurrencyTable.Concurrency(opts.Model)
}

// translateFile translates one target and writes its output. Nothing is
// written for a cancelled run.
func translateFile(ctx context.Context, client provider.Client, t config.ResolvedTarget, opts translate.Options, verbose bool) (translate.RunStatus, error) {
	text, err := readSource(t.Input)
	if err != nil {
		return translate.Done, fmt.Errorf("reading %s: %w", t.Input, err)
	}
	logInfo("%s: %s -> %s", cyan(t.Name), t.Input, t.Output)

	reporter := progress.NewReporter()
	opts.Progress = reporter
	printer := &eventPrinter{name: t.Name, verbose: verbose}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range reporter.Events() {
			printer.print(e)
		}
	}()

	start := time.Now()
	outcome, err := translate.Translate(ctx, text, client, opts)
	reporter.Close()
	<-done

	if err != nil {
		var fatal *translate.FatalError
		if errors.As(err, &fatal) {
			return translate.Done, fmt.Errorf("%s: %w (check your API key with 'mnbkit auth list')", t.Name, err)
		}
		return translate.Done, fmt.Errorf("%s: %w", t.Name, err)
	}
	if outcome.Status == translate.RunCancelled {
		return translate.RunCancelled, nil
	}

	if err := os.MkdirAll(filepath.Dir(t.Output), 0755); err != nil {
		return translate.Done, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(t.Output, []byte(outcome.Text), 0644); err != nil {
		return translate.Done, fmt.Errorf("writing %s: %w", t.Output, err)
	}

	s := outcome.Stats
	logSuccess("%s: %d/%d chunks translated (%d cached, %d kept original, %d empty), %d calls in %v",
		t.Name, s.Translated, s.Chunks-s.Empty, s.Cached, s.Fallback, s.Empty, s.Calls,
		time.Since(start).Round(time.Millisecond))
	if s.Fallback > 0 {
		logWarning(i18n.N("%d chunk kept its original text", "%d chunks kept their original text", s.Fallback), s.Fallback)
	}
	return translate.Done, nil
}

// eventPrinter renders progress events as log lines.
type eventPrinter struct {
	name    string
	verbose bool
}

func (p *eventPrinter) print(e progress.Event) {
	switch e.Kind {
	case progress.Progress:
		logInfo("%s %s %d/%d", p.name, progressBar(percentOf(e.Completed, e.Total), 20), e.Completed, e.Total)
	case progress.Error:
		if e.Terminal {
			logError("%s: %s", p.name, e.Message)
			return
		}
		logWarning("%s: %s", p.name, e.Message)
	case progress.Status:
		if e.Terminal || p.verbose || strings.Contains(e.Message, "retrying") {
			logInfo("%s: %s", p.name, e.Message)
		}
	}
}

// dryRun prints the chunk plan for each target.
func dryRun(targets []config.ResolvedTarget, cfg *config.File, table provider.ConcurrencyTable, concurrency int) error {
	p, err := cfg.ProviderConfig()
	if err != nil {
		return err
	}
	workers := concurrency
	if workers <= 0 {
		workers = table.Concurrency(p.Model)
	}
	logInfo("Provider: %s, Model: %s, workers: %d, chunk size: %d", p.ID, p.Model, workers, cfg.ChunkSize)

	for _, t := range targets {
		text, err := readSource(t.Input)
		if err != nil {
			logError("Reading %s: %v", t.Input, err)
			continue
		}
		chunks, err := chunk.Split(text, cfg.ChunkSize)
		if err != nil {
			return err
		}
		n := chunk.CountNonEmpty(chunks)
		logInfo("%s: %d lines, %s to translate (%d empty) -> %s",
			t.Name, len(chunk.SplitLines(text)),
			fmt.Sprintf(i18n.N("%d chunk", "%d chunks", n), n), len(chunks)-n, t.Output)
	}
	return nil
}
