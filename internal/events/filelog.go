package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileLog writes the access and failure streams to two append-only text
// files, one key=value line per event.
type FileLog struct {
	mu      sync.Mutex
	files   []*os.File
	access  slog.Handler
	failure slog.Handler
}

// OpenFileLog opens (creating if needed) the two log files for append.
func OpenFileLog(accessPath, failurePath string) (*FileLog, error) {
	af, err := openAppend(accessPath)
	if err != nil {
		return nil, err
	}
	ff, err := openAppend(failurePath)
	if err != nil {
		af.Close()
		return nil, err
	}
	return &FileLog{
		files:   []*os.File{af, ff},
		access:  slog.NewTextHandler(af, nil),
		failure: slog.NewTextHandler(ff, nil),
	}, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	return f, nil
}

func (l *FileLog) Record(ctx context.Context, ev Event) error {
	h, level := l.access, slog.LevelInfo
	if ev.Kind == KindFailure {
		h, level = l.failure, slog.LevelError
	}

	r := slog.NewRecord(ev.Time, level, string(ev.Kind), 0)
	r.AddAttrs(
		slog.String("run_id", ev.RunID),
		slog.String("record", ev.RecordID),
		slog.String("component", ev.Component),
		slog.String("outcome", ev.Outcome),
	)
	if ev.Cause != "" {
		r.AddAttrs(slog.String("cause", ev.Cause))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return h.Handle(ctx, r)
}

// Close closes both files.
func (l *FileLog) Close() error {
	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
