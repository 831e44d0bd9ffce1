package chunk

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func makeLines(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "str_line_%d|Line number %d\n", i, i)
	}
	return b.String()
}

func TestSplitLinesKeepsTerminators(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single no newline", "abc", []string{"abc"}},
		{"single newline", "abc\n", []string{"abc\n"}},
		{"crlf", "a\r\nb\r\n", []string{"a\r\n", "b\r\n"}},
		{"trailing partial", "a\nb", []string{"a\n", "b"}},
		{"blank lines", "\n\n", []string{"\n", "\n"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitLines(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("SplitLines(%q) = %q, want %q", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("line %d = %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSplitRejectsNonPositiveSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := Split("a\n", size)
		if !errors.Is(err, ErrInvalidConfiguration) {
			t.Errorf("Split(size=%d) err = %v, want ErrInvalidConfiguration", size, err)
		}
	}
}

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("", 10)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("got %d chunks, want 0", len(chunks))
	}
}

func TestSplitPositional(t *testing.T) {
	chunks, err := Split(makeLines(120), 50)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	wantSizes := []int{50, 50, 20}
	if len(chunks) != len(wantSizes) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(wantSizes))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
		if len(c.Lines) != wantSizes[i] {
			t.Errorf("chunk %d has %d lines, want %d", i, len(c.Lines), wantSizes[i])
		}
		if c.Empty {
			t.Errorf("chunk %d marked empty", i)
		}
	}
	if !strings.HasPrefix(chunks[1].Lines[0], "str_line_50|") {
		t.Errorf("chunk 1 starts with %q", chunks[1].Lines[0])
	}
}

func TestSplitReassemblesExactly(t *testing.T) {
	inputs := []string{
		makeLines(1),
		makeLines(7),
		makeLines(100),
		"no trailing newline\nsecond",
		"windows\r\nline\r\n\r\n",
		"\n\n\n",
		"  \n\t\nword\n",
	}
	for _, in := range inputs {
		for size := 1; size <= 12; size++ {
			chunks, err := Split(in, size)
			if err != nil {
				t.Fatalf("Split: %v", err)
			}
			parts := make([]string, len(chunks))
			for i, c := range chunks {
				parts[i] = c.Text()
			}
			if got := Join(parts); got != in {
				t.Fatalf("size %d: reassembled %q, want %q", size, got, in)
			}
		}
	}
}

func TestSplitMarksBlankChunksEmpty(t *testing.T) {
	in := "a\nb\n\n  \n\t\n\nc\n"
	chunks, err := Split(in, 2)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []bool{false, true, true, false}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}
	for i, c := range chunks {
		if c.Empty != want[i] {
			t.Errorf("chunk %d Empty = %v, want %v", i, c.Empty, want[i])
		}
	}
	if n := CountNonEmpty(chunks); n != 2 {
		t.Errorf("CountNonEmpty = %d, want 2", n)
	}
}

func TestTerminator(t *testing.T) {
	tests := []struct {
		lines []string
		want  string
	}{
		{nil, ""},
		{[]string{"a\n"}, "\n"},
		{[]string{"a\n", "b\r\n"}, "\r\n"},
		{[]string{"a\n", "b"}, ""},
	}
	for _, tc := range tests {
		if got := (Chunk{Lines: tc.lines}).Terminator(); got != tc.want {
			t.Errorf("Terminator(%q) = %q, want %q", tc.lines, got, tc.want)
		}
	}
}
