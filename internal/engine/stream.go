package engine

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
)

// Fragment is one decoded chunk of a streamed advisor reply.
type Fragment struct {
	Content string `json:"content"`
	Error   string `json:"error"`
}

// FragmentScanner lazily decodes "data: {...}" lines from a streamed response
// body. Line reassembly is handled by the underlying scanner, so a fragment
// split across arbitrary network read boundaries decodes identically to one
// delivered whole. Undecodable lines are skipped, not fatal.
type FragmentScanner struct {
	lines    *bufio.Scanner
	fragment Fragment
}

const dataPrefix = "data: "

func NewFragmentScanner(r io.Reader) *FragmentScanner {
	lines := bufio.NewScanner(r)
	// Increase buffer size for long lines
	lines.Buffer(make([]byte, 64*1024), 1024*1024)
	return &FragmentScanner{lines: lines}
}

// Scan advances to the next decodable fragment, returning false at end of
// stream or on a read error.
func (s *FragmentScanner) Scan() bool {
	for s.lines.Scan() {
		line := strings.TrimRight(s.lines.Text(), "\r")
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		payload := line[len(dataPrefix):]
		var fragment Fragment
		if err := json.Unmarshal([]byte(payload), &fragment); err != nil {
			slog.Warn("skipping undecodable stream fragment", "error", err)
			continue
		}

		s.fragment = fragment
		return true
	}
	return false
}

// Fragment returns the fragment produced by the last successful Scan.
func (s *FragmentScanner) Fragment() Fragment {
	return s.fragment
}

// Err returns the first non-EOF error encountered while reading the stream.
func (s *FragmentScanner) Err() error {
	return s.lines.Err()
}
