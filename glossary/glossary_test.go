package glossary

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApply_LongestTermWins(t *testing.T) {
	terms := Terms{"Bob": "X", "Bobby": "Y"}
	got := Apply("Bobby said hi", terms, DefaultOptions(), nil)
	if got != "Y said hi" {
		t.Errorf("Apply = %q, want %q", got, "Y said hi")
	}
	// Substring mode gives the same answer because Bobby is applied first.
	got = Apply("Bobby said hi", terms, Options{}, nil)
	if got != "Y said hi" {
		t.Errorf("substring Apply = %q, want %q", got, "Y said hi")
	}
}

func TestApply_Modes(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		terms Terms
		opts  Options
		want  string
	}{
		{"whole word skips inner match", "Swadians and swadia", Terms{"Swadia": "스와디아"}, Options{WholeWord: true}, "Swadians and 스와디아"},
		{"substring matches inside words", "Swadians", Terms{"Swadia": "스와디아"}, Options{}, "스와디아ns"},
		{"case sensitive", "king King", Terms{"King": "왕"}, Options{WholeWord: true, CaseSensitive: true}, "king 왕"},
		{"case insensitive", "king King", Terms{"King": "왕"}, Options{WholeWord: true}, "왕 왕"},
		{"regex metacharacters are literal", "a.b axb", Terms{"a.b": "Z"}, Options{}, "Z axb"},
		{"replacement is literal", "gold", Terms{"gold": "$1 denars"}, Options{WholeWord: true}, "$1 denars"},
		{"non-word edge", "Sir. Bob", Terms{"Sir.": "경"}, Options{WholeWord: true}, "경 Bob"},
		{"overlap after rejected candidate", "xa-a-a", Terms{"a-a": "Z"}, Options{WholeWord: true}, "xa-Z"},
		{"overlap with multibyte text", "가칼-칼-칼", Terms{"칼-칼": "K"}, Options{WholeWord: true}, "가칼-K"},
		{"unicode boundaries", "칼라디아의 칼라디아", Terms{"칼라디아": "Calradia"}, Options{WholeWord: true}, "칼라디아의 Calradia"},
		{"empty terms", "unchanged", Terms{}, DefaultOptions(), "unchanged"},
		{"empty original ignored", "text", Terms{"": "boom"}, Options{}, "text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Apply(tc.text, tc.terms, tc.opts, nil); got != tc.want {
				t.Errorf("Apply = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestApply_Compounds(t *testing.T) {
	// "Lord Harlaus" -> "Harlaus the Lord"; the shorter "Harlaus" then matches
	// inside the text introduced by the first substitution.
	terms := Terms{"Lord Harlaus": "Harlaus the Lord", "Harlaus": "하를라우스"}
	got := Apply("Meet Lord Harlaus.", terms, DefaultOptions(), nil)
	if got != "Meet 하를라우스 the Lord." {
		t.Errorf("Apply = %q", got)
	}
}

func TestApply_SkipsMalformedTerm(t *testing.T) {
	var warnings []string
	warn := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}
	terms := Terms{"\xff\xfe": "bad", "good": "ok"}
	got := Apply("good stuff", terms, DefaultOptions(), warn)
	if got != "ok stuff" {
		t.Errorf("Apply = %q, want %q", got, "ok stuff")
	}
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want 1: %q", len(warnings), warnings)
	}
}

func TestMerge_LaterWins(t *testing.T) {
	m := Merge(Terms{"a": "1", "b": "2"}, Terms{"b": "3"})
	if m["a"] != "1" || m["b"] != "3" {
		t.Errorf("Merge = %v", m)
	}
}

func TestSorted(t *testing.T) {
	got := Terms{"bb": "", "a": "", "ccc": "", "dd": ""}.Sorted()
	want := []string{"ccc", "bb", "dd", "a"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Sorted = %v, want %v", got, want)
	}
}

// ---------------------------------------------------------------------------
// Files and store
// ---------------------------------------------------------------------------

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadFile_CSV(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "terms.csv",
		"\xEF\xBB\xBFSwadia,스와디아\n"+
			"  Vaegir , 베기르 \n"+
			"broken row\n"+
			"a,b,c\n"+
			",empty original\n"+
			"\"Sarranid, Sultanate\",사라니드 술탄국\n")

	var warnings []string
	terms, err := ReadFile(path, func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := Terms{"Swadia": "스와디아", "Vaegir": "베기르", "Sarranid, Sultanate": "사라니드 술탄국"}
	if len(terms) != len(want) {
		t.Fatalf("terms = %v, want %v", terms, want)
	}
	for k, v := range want {
		if terms[k] != v {
			t.Errorf("terms[%q] = %q, want %q", k, terms[k], v)
		}
	}
	if len(warnings) != 2 {
		t.Errorf("got %d warnings, want 2: %q", len(warnings), warnings)
	}
	if len(warnings) > 0 && !strings.Contains(warnings[0], "line 3") {
		t.Errorf("first warning should name line 3: %q", warnings[0])
	}
}

func TestReadFile_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "terms.yaml", "terms:\n  Rhodok: 로독\n  Khergit: 케르기트\n")
	terms, err := ReadFile(path, nil)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if terms["Rhodok"] != "로독" || terms["Khergit"] != "케르기트" {
		t.Errorf("terms = %v", terms)
	}
}

func TestStore_Precedence(t *testing.T) {
	dir := t.TempDir()
	first := writeFile(t, dir, "first.csv", "King,왕\nLord,영주\n")
	second := writeFile(t, dir, "second.csv", "King,국왕\n")

	s := NewStore(nil)
	if err := s.SetActive([]string{first, second}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if got := s.Apply("King and Lord", DefaultOptions()); got != "국왕 and 영주" {
		t.Errorf("Apply = %q", got)
	}

	if err := s.SetActive([]string{second, first}); err != nil {
		t.Fatalf("SetActive: %v", err)
	}
	if got := s.Apply("King", DefaultOptions()); got != "왕" {
		t.Errorf("reordered Apply = %q, want 왕", got)
	}
}

func TestStore_SetActiveMissingFile(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.csv", "a,b\n")
	s := NewStore(nil)
	err := s.SetActive([]string{ok, filepath.Join(dir, "missing.csv")})
	if err == nil {
		t.Fatal("expected an error for the missing file")
	}
	if got := s.Active(); len(got) != 1 || got[0] != ok {
		t.Errorf("Active = %v, want [%s]", got, ok)
	}
}

func TestStore_RemoveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "g.csv", "a,b\n")
	s := NewStore(nil)
	if err := s.SetActive([]string{path}); err != nil {
		t.Fatal(err)
	}

	writeFile(t, dir, "g.csv", "a,c\nd,e\n")
	n, err := s.Reload(path)
	if err != nil || n != 2 {
		t.Fatalf("Reload = %d, %v", n, err)
	}
	if got := s.Apply("a", Options{}); got != "c" {
		t.Errorf("after reload Apply = %q, want c", got)
	}

	if !s.Remove(path) {
		t.Fatal("Remove returned false")
	}
	if s.IsActive(path) || len(s.Loaded()) != 0 {
		t.Error("file still present after Remove")
	}
	if s.Remove(path) {
		t.Error("second Remove should report false")
	}
	if _, err := s.Reload(path); err == nil {
		t.Error("Reload of an unloaded file should fail")
	}
	if got := s.Apply("a", Options{}); got != "a" {
		t.Errorf("Apply with no active glossaries = %q", got)
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "live.csv", "sword,검\n")
	s := NewStore(nil)
	if err := s.SetActive([]string{path}); err != nil {
		t.Fatal(err)
	}

	w, err := NewWatcher(s)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	if err := w.Add(path); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := w.Watch(ctx)

	writeFile(t, dir, "unrelated.txt", "ignored")
	writeFile(t, dir, "live.csv", "sword,장검\n")

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("watcher stopped before reloading")
			}
			if ev.Err != nil || ev.Path != filepath.Clean(path) {
				continue
			}
			if got := s.Apply("sword", DefaultOptions()); got == "장검" {
				return
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for reload")
		}
	}
}
