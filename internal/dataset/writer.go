// Package dataset appends labeled search terms to the CSV training store.
package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrBelowThreshold is returned when a batch is too small to be written.
var ErrBelowThreshold = errors.New("batch below write threshold")

// Header is the first line of every non-empty store.
var Header = []string{"Search Query", "Classification"}

// Row is one line of the store.
type Row struct {
	SearchQuery    string
	Classification string
}

// Writer appends batches to a single CSV file. A batch is written whole or
// not at all, and the header is emitted only into an empty store.
type Writer struct {
	path      string
	threshold int

	mu sync.Mutex
}

// NewWriter creates a Writer for path. Batches with len <= threshold are
// refused.
func NewWriter(path string, threshold int) *Writer {
	return &Writer{path: path, threshold: threshold}
}

// Path returns the store location.
func (w *Writer) Path() string { return w.path }

// Append writes rows to the end of the store and returns how many were
// written. Batches at or below the threshold return ErrBelowThreshold
// without touching the file.
func (w *Writer) Append(rows []Row) (int, error) {
	if len(rows) <= w.threshold {
		return 0, fmt.Errorf("%w: %d rows, need more than %d", ErrBelowThreshold, len(rows), w.threshold)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return 0, fmt.Errorf("creating dataset directory: %w", err)
	}
	f, err := os.OpenFile(w.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	size, sep, err := repairTail(f)
	if err != nil {
		return 0, fmt.Errorf("repairing dataset tail: %w", err)
	}

	body, err := encode(rows, size == 0)
	if err != nil {
		return 0, fmt.Errorf("encoding rows: %w", err)
	}
	buf := append(sep, body...)

	if _, err := f.Seek(size, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking dataset: %w", err)
	}
	if _, err := f.Write(buf); err != nil {
		return 0, errors.Join(fmt.Errorf("writing dataset: %w", err), rollback(f, size))
	}
	if err := f.Sync(); err != nil {
		return 0, errors.Join(fmt.Errorf("syncing dataset: %w", err), rollback(f, size))
	}
	return len(rows), nil
}

// rollback restores the store to its size before a failed append.
func rollback(f *os.File, size int64) error {
	if err := f.Truncate(size); err != nil {
		return fmt.Errorf("rolling back dataset to %d bytes: %w", size, err)
	}
	return nil
}

func encode(rows []Row, withHeader bool) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if withHeader {
		cw.Write(Header)
	}
	for _, r := range rows {
		cw.Write([]string{singleLine(r.SearchQuery), r.Classification})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// singleLine keeps every row on one physical line so tail repair and row
// counting can work line by line.
func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return strings.Join(strings.Fields(s), " ")
}

// repairTail deals with a final line that has no newline. A complete
// two-field record is kept and sep terminates it ahead of the next batch.
// Anything else is a torn write and is cut back to the previous newline.
// size is where the next batch starts.
func repairTail(f *os.File) (size int64, sep []byte, err error) {
	info, err := f.Stat()
	if err != nil {
		return 0, nil, err
	}
	size = info.Size()
	if size == 0 {
		return 0, nil, nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	var tail []byte
	lineStart := int64(0)
	for end := size; end > 0; {
		start := max(end-chunk, 0)
		n, err := f.ReadAt(buf[:end-start], start)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, nil, err
		}
		b := buf[:n]
		if end == size && len(b) > 0 && b[len(b)-1] == '\n' {
			return size, nil, nil
		}
		if i := bytes.LastIndexByte(b, '\n'); i >= 0 {
			lineStart = start + int64(i) + 1
			tail = append(bytes.Clone(b[i+1:]), tail...)
			break
		}
		tail = append(bytes.Clone(b), tail...)
		end = start
	}

	if completeRecord(tail) {
		return size, []byte("\n"), nil
	}
	return lineStart, nil, f.Truncate(lineStart)
}

// completeRecord reports whether line parses as exactly one CSV record with
// two non-empty fields.
func completeRecord(line []byte) bool {
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = len(Header)
	rec, err := r.Read()
	if err != nil {
		return false
	}
	if _, err := r.Read(); !errors.Is(err, io.EOF) {
		return false
	}
	return rec[0] != "" && rec[1] != ""
}

// Stats summarizes the store.
type Stats struct {
	Rows      int
	HasHeader bool
}

// Stats reads the store and counts data rows. A missing store is empty.
func (w *Writer) Stats() (Stats, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.ReuseRecord = true

	var st Stats
	for i := 0; ; i++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A torn final line is repaired on the next append.
			break
		}
		if i == 0 && len(rec) == len(Header) && rec[0] == Header[0] && rec[1] == Header[1] {
			st.HasHeader = true
			continue
		}
		st.Rows++
	}
	return st, nil
}
