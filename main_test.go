package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fatih/color"

	"github.com/minios-linux/mnbkit/config"
	"github.com/minios-linux/mnbkit/progress"
	"github.com/minios-linux/mnbkit/prompt"
	"github.com/minios-linux/mnbkit/provider"
	"github.com/minios-linux/mnbkit/settings"
	"github.com/minios-linux/mnbkit/translate"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

// captureLog redirects log output for the duration of the test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := logOut
	logOut = &buf
	t.Cleanup(func() { logOut = old })
	return &buf
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{"clamps below zero", -10, 4, "░░░░   0%"},
		{"mid range", 50, 4, "██░░  50%"},
		{"clamps above hundred", 120, 4, "████ 100%"},
	}
	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestPercentOf(t *testing.T) {
	if got := percentOf(1, 3); got != 33 {
		t.Errorf("percentOf(1, 3) = %d, want 33", got)
	}
	if got := percentOf(0, 0); got != 100 {
		t.Errorf("percentOf(0, 0) = %d, want 100", got)
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}

func TestReadSourceStripsBOM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, append([]byte{0xEF, 0xBB, 0xBF}, "str_a|Hello\n"...), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := readSource(path)
	if err != nil {
		t.Fatalf("readSource error: %v", err)
	}
	if got != "str_a|Hello\n" {
		t.Fatalf("readSource = %q", got)
	}
}

func TestSelectTargets(t *testing.T) {
	cfg := config.Default("/project")

	got, err := selectTargets([]string{"a/menu.txt"}, "", cfg)
	if err != nil {
		t.Fatalf("selectTargets error: %v", err)
	}
	want := []config.ResolvedTarget{{Name: "menu.txt", Input: "a/menu.txt", Output: "a/menu.ko.txt"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("selectTargets() = %#v, want %#v", got, want)
	}

	got, err = selectTargets([]string{"menu.txt"}, "out.txt", cfg)
	if err != nil || got[0].Output != "out.txt" {
		t.Fatalf("explicit output: %#v, %v", got, err)
	}

	if _, err := selectTargets([]string{"a.txt", "b.txt"}, "out.txt", cfg); err == nil {
		t.Fatal("--output with two inputs should fail")
	}
	if _, err := selectTargets(nil, "", cfg); err == nil {
		t.Fatal("no inputs and no config files should fail")
	}
}

func TestApplyTranslateFlags(t *testing.T) {
	cmd := newTranslateCmd()
	if err := cmd.Flags().Parse([]string{"-p", "groq", "--chunk-size", "10", "--max-retries", "0", "-g", "extra.csv", "--no-whole-word"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	a := translateArgs{
		providerFlags: providerFlags{provider: "groq"},
		chunkSize:     10,
		maxRetries:    0,
		glossaries:    []string{"extra.csv"},
		noWholeWord:   true,
	}
	cfg := config.Default("/project")
	cfg.Glossaries = []string{"base.csv"}
	if err := applyTranslateFlags(cmd.Flags(), a, cfg); err != nil {
		t.Fatalf("applyTranslateFlags error: %v", err)
	}
	if cfg.Provider != "groq" || cfg.ChunkSize != 10 || *cfg.MaxRetries != 0 {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Glossaries, []string{"base.csv", "extra.csv"}) {
		t.Errorf("Glossaries = %v", cfg.Glossaries)
	}
	if cfg.WholeWord() {
		t.Error("--no-whole-word not applied")
	}
	if cfg.TargetLanguage != "Korean" {
		t.Errorf("unset flag overrode TargetLanguage: %q", cfg.TargetLanguage)
	}

	bad := newTranslateCmd()
	_ = bad.Flags().Parse([]string{"--chunk-size", "0"})
	if err := applyTranslateFlags(bad.Flags(), translateArgs{chunkSize: 0}, config.Default("/project")); err == nil {
		t.Fatal("--chunk-size 0 should be rejected")
	}
}

func TestResolveProvider(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.EnvAPIKey, "")
	t.Setenv("GROQ_API_KEY", "")

	cfg := config.Default("/project")
	cfg.Provider = provider.ProviderGroq
	temp := 0.1
	cfg.Temperature = &temp

	p, err := resolveProvider(cfg, "gsk-flag", true)
	if err != nil {
		t.Fatalf("resolveProvider: %v", err)
	}
	if p.APIKey != "gsk-flag" || !p.Verbose {
		t.Errorf("provider = %+v, want flag key and verbose", p)
	}
	if p.Temperature == nil || *p.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", p.Temperature)
	}

	if p, _ = resolveProvider(cfg, "gsk-flag", false); p.Verbose {
		t.Error("Verbose set without --verbose")
	}
}

func TestLookupPrompt(t *testing.T) {
	store := prompt.NewStore([]prompt.Prompt{
		{ID: "general", Name: "General", Template: "{text_to_translate}"},
		{ID: "dialog", Name: "Dialog Lines", Template: "D {text_to_translate}"},
	})
	tests := []struct {
		key    string
		wantID string
		wantOK bool
	}{
		{"dialog", "dialog", true},
		{"dialog lines", "dialog", true},
		{"", "general", false},
		{"missing", "general", false},
	}
	for _, tt := range tests {
		p, ok := lookupPrompt(store, tt.key)
		if p.ID != tt.wantID || ok != tt.wantOK {
			t.Errorf("lookupPrompt(%q) = %q, %v; want %q, %v", tt.key, p.ID, ok, tt.wantID, tt.wantOK)
		}
	}
}

func TestEventPrinter(t *testing.T) {
	buf := captureLog(t)
	p := &eventPrinter{name: "menu.txt"}

	p.print(progress.Event{Kind: progress.Status, Chunk: 0, Message: "chunk 1 is empty, kept as is"})
	p.print(progress.Event{Kind: progress.Status, Chunk: 1, Message: "chunk 2: rate_limited, retrying in 1s (attempt 2/3)"})
	p.print(progress.Event{Kind: progress.Progress, Chunk: 1, Completed: 1, Total: 2})
	p.print(progress.Event{Kind: progress.Error, Chunk: 1, Message: "chunk 2 failed"})

	out := buf.String()
	if strings.Contains(out, "kept as is") {
		t.Errorf("routine status printed without verbose:\n%s", out)
	}
	for _, want := range []string{"retrying", "1/2", "[WARN] menu.txt: chunk 2 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTranslateFile(t *testing.T) {
	captureLog(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "menu.txt")
	out := filepath.Join(dir, "out", "menu.ko.txt")
	if err := os.WriteFile(in, []byte("a|Attack\nb|Defend\nc|Retreat\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	client := provider.ClientFunc(func(ctx context.Context, p, model string) (string, error) {
		calls.Add(1)
		return "  번역  ", nil
	})
	opts := translate.DefaultOptions()
	opts.Template = prompt.GenericTemplate
	opts.Language = "Korean"
	opts.ChunkSize = 2
	opts.Concurrency = 2

	status, err := translateFile(context.Background(), client, config.ResolvedTarget{Name: "menu.txt", Input: in, Output: out}, opts, false)
	if err != nil {
		t.Fatalf("translateFile error: %v", err)
	}
	if status != translate.Done {
		t.Fatalf("status = %v, want done", status)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output not written: %v", err)
	}
	if string(data) != "번역\n번역\n" {
		t.Fatalf("output = %q", data)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestTranslateFileCancelledWritesNothing(t *testing.T) {
	captureLog(t)
	dir := t.TempDir()
	in := filepath.Join(dir, "menu.txt")
	out := filepath.Join(dir, "menu.ko.txt")
	if err := os.WriteFile(in, []byte("a|Attack\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := provider.ClientFunc(func(ctx context.Context, p, model string) (string, error) {
		t.Error("client called after cancellation")
		return "", nil
	})
	opts := translate.DefaultOptions()
	opts.Template = prompt.GenericTemplate

	status, err := translateFile(ctx, client, config.ResolvedTarget{Name: "menu.txt", Input: in, Output: out}, opts, false)
	if err != nil {
		t.Fatalf("translateFile error: %v", err)
	}
	if status != translate.RunCancelled {
		t.Fatalf("status = %v, want cancelled", status)
	}
	if fileExists(out) {
		t.Fatal("output written for cancelled run")
	}
}

func TestAuthLoginAndList(t *testing.T) {
	captureLog(t)
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	t.Setenv(settings.EnvAPIKey, "")

	google, _ := provider.Lookup(provider.ProviderGoogle)
	if err := authLogin(google, "", "", strings.NewReader("  AIzaSecretKey123  \n")); err != nil {
		t.Fatalf("authLogin(google) error: %v", err)
	}
	if got := settings.GetAPIKey("google"); got != "AIzaSecretKey123" {
		t.Fatalf("stored key = %q", got)
	}

	lambda, _ := provider.Lookup(provider.ProviderLambda)
	if err := authLogin(lambda, "", "", strings.NewReader("")); err == nil {
		t.Fatal("lambda login without --base-url should fail")
	}
	if err := authLogin(lambda, "", "mnb-translator", nil); err != nil {
		t.Fatalf("authLogin(lambda) error: %v", err)
	}

	groq, _ := provider.Lookup(provider.ProviderGroq)
	if err := authLogin(groq, "", "", strings.NewReader("\n")); err == nil {
		t.Fatal("empty key for groq should fail")
	}

	var buf bytes.Buffer
	printCredentials(&buf, settings.Load())
	out := buf.String()
	for _, want := range []string{"AIza...y123", "mnb-translator", "no auth needed", "not configured"} {
		if !strings.Contains(out, want) {
			t.Errorf("credentials listing missing %q:\n%s", want, out)
		}
	}
}

// openAIStub answers chat completion requests with a fixed reply.
func openAIStub(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": reply}, "finish_reason": "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCLITranslateEndToEnd(t *testing.T) {
	logs := captureLog(t)
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	dir := t.TempDir()
	glossaryPath := filepath.Join(dir, "terms.csv")
	if err := os.WriteFile(glossaryPath, []byte("Calradia,칼라디아\n"), 0644); err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "strings.txt")
	if err := os.WriteFile(in, []byte("str_a|Welcome to Calradia\n"), 0644); err != nil {
		t.Fatal(err)
	}
	srv := openAIStub(t, "str_a|Calradia에 오신 것을 환영합니다")

	_, err := runCLI(t, "translate", "--root", dir, "-p", "ollama", "--base-url", srv.URL+"/v1", "-g", glossaryPath, "--no-whole-word", in)
	if err != nil {
		t.Fatalf("translate error: %v\nlogs:\n%s", err, logs)
	}

	data, err := os.ReadFile(filepath.Join(dir, "strings.ko.txt"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	if got := string(data); got != "str_a|칼라디아에 오신 것을 환영합니다\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestCLIDryRun(t *testing.T) {
	logs := captureLog(t)
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	dir := t.TempDir()
	in := filepath.Join(dir, "strings.txt")
	if err := os.WriteFile(in, []byte(strings.Repeat("x|y\n", 120)), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "translate", "--root", dir, "--dry-run", in); err != nil {
		t.Fatalf("dry run error: %v", err)
	}
	if !strings.Contains(logs.String(), "3 chunks") {
		t.Fatalf("dry run did not report 3 chunks:\n%s", logs)
	}
	if fileExists(filepath.Join(dir, "strings.ko.txt")) {
		t.Fatal("dry run wrote output")
	}
}

func TestCLIVersion(t *testing.T) {
	out, err := runCLI(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "mnbkit version ") || !strings.Contains(out, "available: en ko") {
		t.Fatalf("version output = %q", out)
	}
}

func TestCLIPromptsList(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	out, err := runCLI(t, "prompts", "list")
	if err != nil {
		t.Fatalf("prompts list error: %v", err)
	}
	for _, p := range prompt.Defaults() {
		if !strings.Contains(out, p.ID) {
			t.Errorf("prompts list missing %q:\n%s", p.ID, out)
		}
	}
}

func TestCLIGlossaryApply(t *testing.T) {
	captureLog(t)
	dir := t.TempDir()
	g := filepath.Join(dir, "terms.yaml")
	if err := os.WriteFile(g, []byte("terms:\n  Swadia: 스와디아\n"), 0644); err != nil {
		t.Fatal(err)
	}
	in := filepath.Join(dir, "ko.txt")
	if err := os.WriteFile(in, []byte("Swadia 왕국\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := runCLI(t, "glossary", "apply", "--root", dir, "-g", g, in); err != nil {
		t.Fatalf("glossary apply error: %v", err)
	}
	data, _ := os.ReadFile(in)
	if string(data) != "스와디아 왕국\n" {
		t.Fatalf("applied = %q", data)
	}
}

func TestCommandTree(t *testing.T) {
	root := newRootCmd()
	want := []string{"auth", "glossary", "prompts", "translate", "version"}
	var got []string
	for _, c := range root.Commands() {
		if c.Name() == "help" || c.Name() == "completion" {
			continue
		}
		got = append(got, c.Name())
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
}
