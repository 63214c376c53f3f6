package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadEntries reads "name=value" lines. Blank lines and lines starting with
// '#' are skipped. Values may carry \n, \r and \\ escapes as written by
// WriteEntries.
func ReadEntries(r io.Reader) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimRight(sc.Text(), "\r")
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		eq := strings.IndexByte(text, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("line %d: %w", line, ErrInvalidName)
		}
		entries = append(entries, Entry{Name: text[:eq], Value: unescapeValue(text[eq+1:])})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// WriteEntries writes entries as "name=value" lines.
func WriteEntries(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%s=%s\n", e.Name, escapeValue(e.Value)); err != nil {
			return err
		}
	}
	return bw.Flush()
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`)

func escapeValue(v string) string {
	return valueEscaper.Replace(v)
}

func unescapeValue(v string) string {
	if strings.IndexByte(v, '\\') < 0 {
		return v
	}
	var sb strings.Builder
	for i := 0; i < len(v); i++ {
		if v[i] != '\\' || i == len(v)-1 {
			sb.WriteByte(v[i])
			continue
		}
		i++
		switch v[i] {
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		default:
			sb.WriteByte(v[i])
		}
	}
	return sb.String()
}

// MatchPattern reports whether name passes a prefix filter. An empty pattern
// matches everything and a leading '!' negates the prefix.
func MatchPattern(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	if strings.HasPrefix(pattern, "!") {
		return !strings.HasPrefix(name, pattern[1:])
	}
	return strings.HasPrefix(name, pattern)
}

// SyncFromFile seeds store with the entries of a "name=value" file whose
// names match pattern. Names already present in the store are left alone.
// It returns how many entries were written.
func SyncFromFile(ctx context.Context, store Store, path, pattern string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open defaults file: %w", err)
	}
	defer f.Close()

	entries, err := ReadEntries(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read defaults file: %w", err)
	}

	written := 0
	for _, e := range entries {
		if !MatchPattern(e.Name, pattern) {
			continue
		}
		_, err := store.Get(ctx, e.Name)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrNotFound) {
			return written, err
		}
		if err := store.Set(ctx, e.Name, e.Value); err != nil {
			return written, fmt.Errorf("failed to set %s: %w", e.Name, err)
		}
		written++
	}
	return written, nil
}
