package parse

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Returned when the line stream runs out before a complete section
// was found. Callers scanning for repeated sections use this to
// detect that no more sections remain.
var ErrEndOfStream = errors.New("end of stream")

// Lines are larger than bufio's default token size in some exports.
const maxLineSize = 1 << 20

// A stream of lines. Next returns false when the stream is exhausted
// or failed, in which case Err holds the failure (if any).
type LineIterator interface {
	Next() (string, bool)
	Err() error
}

type lineReader struct {
	scanner *bufio.Scanner
}

// Iterates over the lines of r.
func NewLineReader(r io.Reader) LineIterator {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &lineReader{scanner: scanner}
}

func (l *lineReader) Next() (string, bool) {
	if !l.scanner.Scan() {
		return "", false
	}
	return l.scanner.Text(), true
}

func (l *lineReader) Err() error {
	return l.scanner.Err()
}

type lineSlice struct {
	lines []string
	pos   int
}

// Iterates over already collected lines, e.g. the body of an
// enclosing section.
func NewLineSlice(lines []string) LineIterator {
	return &lineSlice{lines: lines}
}

func (l *lineSlice) Next() (string, bool) {
	if l.pos >= len(l.lines) {
		return "", false
	}
	line := l.lines[l.pos]
	l.pos++
	return line, true
}

func (l *lineSlice) Err() error {
	return nil
}

type scanState int

const (
	seekingStart scanState = iota
	collecting
	done
)

// Reads the next *TAG ... #TAG section from lines and returns its
// trimmed body, without the marker lines. Everything preceding the
// start marker is consumed and discarded.
//
// Returns ErrEndOfStream if lines is exhausted before the section is
// complete.
func ScanSection(lines LineIterator, tag string) ([]string, error) {
	start := "*" + tag
	end := "#" + tag

	body := []string{}
	state := seekingStart

	for state != done {
		raw, ok := lines.Next()
		if !ok {
			if err := lines.Err(); err != nil {
				return nil, fmt.Errorf("reading section %s: %w", tag, err)
			}
			return nil, ErrEndOfStream
		}
		line := strings.TrimSpace(raw)

		switch {
		case strings.HasPrefix(line, start):
			state = collecting
		case strings.HasPrefix(line, end) && state == collecting:
			state = done
		case state == collecting:
			body = append(body, line)
		}
	}

	return body, nil
}

// Reads consecutive sections of a single tag.
type SectionScanner struct {
	lines LineIterator
	tag   string
}

func NewSectionScanner(lines LineIterator, tag string) *SectionScanner {
	return &SectionScanner{lines: lines, tag: tag}
}

// Returns the body of the next section. found is false, with a nil
// error, once the stream holds no more sections of the tag.
func (s *SectionScanner) Next() (body []string, found bool, err error) {
	body, err = ScanSection(s.lines, s.tag)
	if errors.Is(err, ErrEndOfStream) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}
