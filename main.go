// mnbkit: Mount&Blade mod localization kit. Translates game string files
// through LLM providers in parallel chunks while keeping placeholders intact.
package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/minios-linux/mnbkit/i18n"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// ---------------------------------------------------------------------------
// Logging
// ---------------------------------------------------------------------------

var (
	blue   = color.New(color.FgBlue).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.Bold, color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.Bold, color.FgCyan).SprintFunc()
)

// logOut receives all log lines.
var logOut io.Writer = color.Error

func logLine(tag, format string, args ...any) {
	fmt.Fprintf(logOut, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func logInfo(format string, args ...any) {
	logLine(blue("[INFO]"), format, args...)
}

func logSuccess(format string, args ...any) {
	logLine(green("[OK]"), format, args...)
}

func logWarning(format string, args ...any) {
	logLine(yellow("[WARN]"), format, args...)
}

func logError(format string, args ...any) {
	logLine(red("[ERROR]"), format, args...)
}

// ---------------------------------------------------------------------------
// Global flags
// ---------------------------------------------------------------------------

var (
	rootDir string
	noColor bool
)

// ---------------------------------------------------------------------------
// Root command
// ---------------------------------------------------------------------------

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mnbkit",
		Short: i18n.T("Mount&Blade mod localization kit"),
		Long: `mnbkit: Mount&Blade mod localization kit.

Translates game string files (one entry per line) with LLM providers.
Files are split into chunks of lines that are translated concurrently,
retried on transient failures and reassembled in order. Placeholders such
as {s0}, {reg1} and {player_name} are protected, and glossary terms are
applied to the result.

Commands:
  translate   Translate files (or the files listed in .mnbkit.yaml)
  glossary    Inspect and apply glossaries
  prompts     Manage translation prompts
  auth        Manage provider credentials

Providers:
  google         Google AI (Gemini), API key
  openai         OpenAI, API key
  groq           Groq, API key
  ollama         Ollama local server
  custom-openai  Custom OpenAI-compatible endpoint
  lambda         AWS Lambda translator function`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags, inherited by all subcommands
	root.PersistentFlags().StringVar(&rootDir, "root", ".", "Project root directory (location of .mnbkit.yaml)")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newTranslateCmd(),
		newGlossaryCmd(),
		newPromptsCmd(),
		newAuthCmd(),
		newVersionCmd(),
	)

	return root
}

func main() {
	// MNBKIT_API_KEY and provider keys may come from a local .env file.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logWarning("Reading .env: %v", err)
	}
	i18n.Init("")

	if err := newRootCmd().Execute(); err != nil {
		logError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version, commit hash, build date, and message catalogs.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mnbkit version %s\n", version)
			fmt.Fprintf(out, "  commit:    %s\n", commit)
			fmt.Fprintf(out, "  built:     %s\n", date)
			fmt.Fprintf(out, "  messages:  %s (available: en %s)\n", i18n.Language(), strings.Join(i18n.Available(), " "))
		},
	}
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readSource reads a UTF-8 text file, dropping a leading byte order mark.
func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimPrefix(data, utf8BOM)), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// progressBar renders a fixed-width bar coloured by completion.
func progressBar(percent, width int) string {
	percent = max(0, min(percent, 100))
	filled := percent * width / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	paint := red
	switch {
	case percent >= 100:
		paint = green
	case percent >= 50:
		paint = yellow
	}
	return fmt.Sprintf("%s %3d%%", paint(bar), percent)
}

// percentOf returns done/total as a whole percentage; an empty total is
// complete.
func percentOf(done, total int) int {
	if total <= 0 {
		return 100
	}
	return done * 100 / total
}
