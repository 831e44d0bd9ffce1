package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/minios-linux/mnbkit/config"
	"github.com/minios-linux/mnbkit/glossary"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/settings"
)

// ---------------------------------------------------------------------------
// glossary
// ---------------------------------------------------------------------------

func newGlossaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "glossary",
		Short: "Inspect and apply glossaries",
		Long: `Inspect and apply glossary files.

Glossaries are CSV files with "original,translated" rows or YAML files with
a "terms" mapping. When several glossaries are active, later files win on
conflicting terms. Longer terms are replaced first.`,
	}
	cmd.AddCommand(newGlossaryListCmd(), newGlossaryApplyCmd())
	return cmd
}

// openGlossaries loads the config glossaries followed by extra files.
func openGlossaries(cfg *config.File, extra []string) (*glossary.Store, error) {
	store := glossary.NewStore(logWarning)
	paths := append(cfg.GlossaryPaths(), extra...)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no glossary files: pass them as arguments or list them under 'glossaries' in %s", config.FileName)
	}
	if err := store.SetActive(paths); err != nil {
		logWarning("%v", err)
	}
	return store, nil
}

func newGlossaryListCmd() *cobra.Command {
	var showTerms bool

	cmd := &cobra.Command{
		Use:     "list [file...]",
		Aliases: []string{"ls"},
		Short:   "Show glossary files and their terms",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			store, err := openGlossaries(cfg, args)
			if err != nil {
				return err
			}
			printGlossaries(cmd.OutOrStdout(), store, showTerms)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showTerms, "terms", false, "Print the merged terms")
	return cmd
}

func printGlossaries(w io.Writer, store *glossary.Store, showTerms bool) {
	fmt.Fprintf(w, "\n%s\n", blue("Active Glossaries"))
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for i, p := range store.Active() {
		terms, _ := store.File(p)
		fmt.Fprintf(w, "  %d. %s (%d terms)\n", i+1, p, len(terms))
	}
	merged := store.Terms()
	fmt.Fprintf(w, "\n  Merged: %d terms\n", len(merged))
	if showTerms {
		fmt.Fprintln(w)
		for _, k := range merged.Sorted() {
			fmt.Fprintf(w, "  %s %s %s\n", k, cyan("->"), merged[k])
		}
	}
	fmt.Fprintln(w)
}

func newGlossaryApplyCmd() *cobra.Command {
	var (
		files         []string
		output        string
		caseSensitive bool
		noWholeWord   bool
	)

	cmd := &cobra.Command{
		Use:   "apply <file>",
		Short: "Apply glossaries to an already translated file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			store, err := openGlossaries(cfg, files)
			if err != nil {
				return err
			}

			text, err := readSource(args[0])
			if err != nil {
				return err
			}
			opts := glossary.Options{
				WholeWord:     cfg.WholeWord(),
				CaseSensitive: cfg.Glossary.CaseSensitive,
			}
			if cmd.Flags().Changed("case-sensitive") {
				opts.CaseSensitive = caseSensitive
			}
			if cmd.Flags().Changed("no-whole-word") {
				opts.WholeWord = !noWholeWord
			}
			result := store.Apply(text, opts)

			if output == "" {
				output = args[0]
			}
			if err := os.WriteFile(output, []byte(result), 0644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			logSuccess("Glossary applied: %s", output)
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&files, "glossary", "g", nil, "Glossary files (CSV or YAML), later files win")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: overwrite input)")
	cmd.Flags().BoolVar(&caseSensitive, "case-sensitive", false, "Match glossary terms case-sensitively")
	cmd.Flags().BoolVar(&noWholeWord, "no-whole-word", false, "Match glossary terms inside words too")
	return cmd
}

// ---------------------------------------------------------------------------
// prompts
// ---------------------------------------------------------------------------

func newPromptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompts",
		Short: "Manage translation prompts",
		Long: `Manage translation prompts stored in prompts.json.

Every prompt template must contain {text_to_translate} exactly once.
{target_language} is replaced by the target language name.`,
	}
	cmd.AddCommand(newPromptsListCmd(), newPromptsResetCmd())
	return cmd
}

func newPromptsListCmd() *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List available prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settings.PromptsFilePath()
			if err != nil {
				return err
			}
			store, err := prompt.LoadOrCreate(path)
			if err != nil {
				return err
			}
			printPrompts(cmd.OutOrStdout(), path, store, show)
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print the templates")
	return cmd
}

func printPrompts(w io.Writer, path string, store *prompt.Store, show bool) {
	fmt.Fprintf(w, "\n%s (%s)\n", blue("Prompts"), path)
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for i, p := range store.All() {
		marker := " "
		if i == 0 {
			marker = "*"
		}
		status := green("ok")
		if err := prompt.Validate(p.Template); err != nil {
			status = red("invalid")
		}
		fmt.Fprintf(w, "%s %-12s %-28s %s\n", marker, p.ID, p.Name, status)
		if p.Description != "" {
			fmt.Fprintf(w, "  %s\n", p.Description)
		}
		if show {
			for _, line := range strings.Split(p.Template, "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	fmt.Fprintln(w)
}

func newPromptsResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the built-in prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := settings.PromptsFilePath()
			if err != nil {
				return err
			}
			if err := prompt.WriteDefaults(path); err != nil {
				return err
			}
			logSuccess("Built-in prompts written to %s", path)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// auth
// ---------------------------------------------------------------------------

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage provider credentials",
		Long: `Manage API keys and endpoints for translation providers.

API key providers:
  google         Google AI Studio (Gemini API key)
  openai         OpenAI
  groq           Groq Cloud
  custom-openai  Custom OpenAI-compatible endpoint (key optional)

Endpoint only:
  lambda         AWS Lambda function name (AWS credentials come from the
                 usual AWS environment and shared config)

No auth required:
  ollama         Local Ollama server

Examples:
  mnbkit auth login --provider google              Store Google AI API key
  mnbkit auth login --provider lambda --base-url mnb-translator
  mnbkit auth logout --provider google             Remove Google API key
  mnbkit auth logout                               Remove all credentials
  mnbkit auth list                                 Show stored credentials`,
	}
	cmd.AddCommand(newAuthLoginCmd(), newAuthLogoutCmd(), newAuthListCmd())
	return cmd
}

// authHelp holds the key pages for API key providers.
var authHelp = map[string]string{
	provider.ProviderGoogle: "https://aistudio.google.com/apikey",
	provider.ProviderOpenAI: "https://platform.openai.com/api-keys",
	provider.ProviderGroq:   "https://console.groq.com/keys",
}

func newAuthLoginCmd() *cobra.Command {
	var providerID, key, baseURL string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store credentials for a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := provider.Lookup(providerID)
			if !ok {
				return fmt.Errorf("unknown provider %q (valid: %s)", providerID, strings.Join(provider.IDs(), ", "))
			}
			return authLogin(p, key, baseURL, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&providerID, "provider", "p", provider.ProviderGoogle, "Provider to configure")
	cmd.Flags().StringVar(&key, "key", "", "API key (prompted when omitted)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Endpoint URL (custom-openai) or function name (lambda)")
	registerProviderCompletion(cmd)
	return cmd
}

// authLogin stores a key and endpoint for p, reading the key from in when
// not given.
func authLogin(p provider.Provider, key, baseURL string, in io.Reader) error {
	switch p.ID {
	case provider.ProviderOllama:
		logInfo("%s needs no credentials", p.Name)
		return nil
	case provider.ProviderLambda:
		if baseURL == "" {
			return fmt.Errorf("%s: --base-url (function name or ARN) is required", p.Name)
		}
		if err := settings.SetAPIKeyWithBaseURL(p.ID, "", baseURL); err != nil {
			return fmt.Errorf("saving credentials: %w", err)
		}
		logSuccess("%s function saved: %s", p.Name, baseURL)
		return nil
	case provider.ProviderCustomOpenAI:
		if baseURL == "" {
			return fmt.Errorf("%s: --base-url is required", p.Name)
		}
	}

	if key == "" {
		if url := authHelp[p.ID]; url != "" {
			fmt.Fprintf(logOut, "  Get your API key from: %s\n", green(url))
		}
		existing := settings.GetAPIKey(p.ID)
		if existing != "" {
			fmt.Fprintf(logOut, "  Current key: %s\n", yellow(settings.MaskKey(existing)))
			fmt.Fprint(logOut, "  Enter new key to replace, or press Enter to keep: ")
		} else {
			fmt.Fprint(logOut, "  Enter API key: ")
		}

		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			key = strings.TrimSpace(scanner.Text())
		}
		if key == "" {
			if existing != "" {
				logInfo("Keeping existing key")
				return nil
			}
			if p.NeedsAPIKey() && p.ID != provider.ProviderCustomOpenAI {
				return fmt.Errorf("no API key provided")
			}
		}
	}

	if err := settings.SetAPIKeyWithBaseURL(p.ID, key, baseURL); err != nil {
		return fmt.Errorf("saving credentials: %w", err)
	}
	logSuccess("%s credentials saved", p.Name)
	return nil
}

func newAuthLogoutCmd() *cobra.Command {
	var providerID string

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove stored credentials",
		Long: `Remove stored credentials for one or all providers.

If --provider is not specified, credentials for ALL providers are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if providerID == "" {
				if err := settings.RemoveAll(); err != nil {
					return err
				}
				logSuccess("All stored credentials removed")
				return nil
			}
			if _, ok := provider.Lookup(providerID); !ok {
				return fmt.Errorf("unknown provider %q. Run 'mnbkit auth list' to see providers", providerID)
			}
			if err := settings.Remove(providerID); err != nil {
				return fmt.Errorf("removing %s credentials: %w", providerID, err)
			}
			logSuccess("%s credentials removed", providerID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&providerID, "provider", "p", "", "Provider to logout (default: all)")
	registerProviderCompletion(cmd)
	return cmd
}

func newAuthListCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show stored credentials and status",
		Run: func(cmd *cobra.Command, args []string) {
			printCredentials(cmd.OutOrStdout(), settings.Load())
		},
	}
}

func printCredentials(w io.Writer, store settings.Store) {
	defs := provider.DefaultProviders()

	fmt.Fprintf(w, "\n%s (%s)\n", blue("Stored Credentials"), settings.FilePath())
	fmt.Fprintln(w, strings.Repeat("─", 60))
	for _, id := range provider.IDs() {
		p := defs[id]
		entry := store[id]
		var status string
		switch {
		case entry != nil && entry.Key != "":
			status = fmt.Sprintf("%s (key: %s)", green("configured"), settings.MaskKey(entry.Key))
		case entry != nil && entry.BaseURL != "":
			status = green("configured")
		case !p.NeedsAPIKey() && id != provider.ProviderLambda:
			status = "no auth needed"
		default:
			status = red("not configured")
		}
		fmt.Fprintf(w, "  %-14s %s\n", id, status)
		if entry != nil && entry.BaseURL != "" {
			fmt.Fprintf(w, "  %14s endpoint: %s\n", "", entry.BaseURL)
		}
	}

	fmt.Fprintf(w, "\n  %s\n", yellow("Environment Variables"))
	if key := os.Getenv(settings.EnvAPIKey); key != "" {
		fmt.Fprintf(w, "  %s: %s (overrides stored keys)\n", settings.EnvAPIKey, green(settings.MaskKey(key)))
	} else {
		fmt.Fprintf(w, "  %s: %s\n", settings.EnvAPIKey, red("not set"))
	}
	fmt.Fprintln(w)
}
