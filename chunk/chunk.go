// Package chunk splits line-oriented source text into ordered, line-bounded
// translation units and puts the translated units back together.
//
// Line terminators are kept verbatim on every line, so concatenating the
// Lines of all chunks in index order reproduces the input byte for byte.
package chunk

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfiguration is returned when the chunk size is not positive.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// DefaultSize is the default number of lines per chunk.
const DefaultSize = 50

// Chunk is one translation unit.
type Chunk struct {
	// Index is the 0-based, dense position of the chunk in the document.
	Index int
	// Lines are the raw source lines, terminators included.
	Lines []string
	// Empty is true when every line is blank or whitespace-only.
	Empty bool
}

// Text returns the chunk's lines joined verbatim.
func (c Chunk) Text() string {
	return strings.Join(c.Lines, "")
}

// Terminator returns the line terminator of the chunk's last line
// ("\r\n", "\n", or "" when the document ends without one).
func (c Chunk) Terminator() string {
	if len(c.Lines) == 0 {
		return ""
	}
	last := c.Lines[len(c.Lines)-1]
	switch {
	case strings.HasSuffix(last, "\r\n"):
		return "\r\n"
	case strings.HasSuffix(last, "\n"):
		return "\n"
	}
	return ""
}

// SplitLines splits text after every "\n", keeping the terminator on each
// line. A trailing line without a terminator is kept as is. Empty text has
// zero lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	// SplitAfter yields a trailing "" when text ends with "\n".
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Split divides text into chunks of at most maxLines lines. Chunk i holds
// lines [i*maxLines, min((i+1)*maxLines, total)). Empty text yields no chunks.
func Split(text string, maxLines int) ([]Chunk, error) {
	if maxLines <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfiguration, maxLines)
	}

	lines := SplitLines(text)
	if len(lines) == 0 {
		return nil, nil
	}

	chunks := make([]Chunk, 0, (len(lines)+maxLines-1)/maxLines)
	for start := 0; start < len(lines); start += maxLines {
		end := start + maxLines
		if end > len(lines) {
			end = len(lines)
		}
		part := lines[start:end]
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Lines: part,
			Empty: allBlank(part),
		})
	}
	return chunks, nil
}

// Join concatenates the parts in order.
func Join(parts []string) string {
	var b strings.Builder
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	b.Grow(n)
	for _, p := range parts {
		b.WriteString(p)
	}
	return b.String()
}

// CountNonEmpty returns how many chunks need translation.
func CountNonEmpty(chunks []Chunk) int {
	n := 0
	for _, c := range chunks {
		if !c.Empty {
			n++
		}
	}
	return n
}

func allBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}
