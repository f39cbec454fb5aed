// Package allowlist loads the line-oriented allow-list and keeps it fresh.
package allowlist

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineBytes = 64 << 10

// ParseLines splits r into records, one per line. Surrounding whitespace and
// carriage returns are trimmed; blank lines and lines starting with '#' are
// skipped.
func ParseLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLineBytes)

	var out []string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan allow-list: %w", err)
	}
	return out, nil
}

// FileSource reads the allow-list from a local file.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading path on every Fetch.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

func (s *FileSource) Name() string { return "file:" + s.path }

// Path returns the file being read.
func (s *FileSource) Path() string { return s.path }

func (s *FileSource) Fetch(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open allow-list: %w", err)
	}
	defer f.Close()
	return ParseLines(f)
}
