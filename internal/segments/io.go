package segments

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Read parses a two-column ASCII segment list ("start end" per line).
// Blank lines and lines starting with '#' are skipped. Extra columns are ignored.
func Read(r io.Reader) (*List, error) {
	l := &List{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", lineNo, len(fields))
		}
		start, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid start %q: %w", lineNo, fields[0], err)
		}
		end, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid end %q: %w", lineNo, fields[1], err)
		}
		if err := l.Add(start, end); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read segments: %w", err)
	}
	return l, nil
}

// ReadFile reads a segment file from disk.
func ReadFile(path string) (*List, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write dumps the list in the two-column format accepted by Read.
func Write(w io.Writer, l *List) error {
	for _, s := range l.Segments() {
		if _, err := fmt.Fprintf(w, "%s %s\n",
			strconv.FormatFloat(s.Start, 'f', -1, 64),
			strconv.FormatFloat(s.End, 'f', -1, 64)); err != nil {
			return err
		}
	}
	return nil
}
