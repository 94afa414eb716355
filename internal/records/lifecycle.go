package records

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/kalambet/tdgen/internal/events"
)

// Lifecycle moves records out of the pending set once their batch is
// durably written, and records failures for everything else.
type Lifecycle struct {
	processedDir string
	recorder     *events.Recorder
}

// NewLifecycle creates a Lifecycle relocating into processedDir.
func NewLifecycle(processedDir string, rec *events.Recorder) *Lifecycle {
	return &Lifecycle{processedDir: processedDir, recorder: rec}
}

// ProcessedDir returns the relocation target.
func (l *Lifecycle) ProcessedDir() string { return l.processedDir }

// Advance transitions rec. A nil cause means the batch was written and the
// record is relocated; a non-nil cause leaves the file in place and records
// a failure naming the component cause was tagged with.
//
// A relocation error is recorded and returned; the record then stays
// pending and will be regenerated by a later run.
func (l *Lifecycle) Advance(ctx context.Context, rec Record, cause error) (Record, error) {
	if cause != nil {
		component := events.ComponentOf(cause, events.ComponentPipeline)
		l.recorder.Failure(ctx, rec.ID, component, "left pending", cause)
		rec.State = Errored
		return rec, nil
	}

	dest, err := l.relocate(rec.Path)
	if err != nil {
		err = events.Tag(events.ComponentLifecycle, err)
		l.recorder.Failure(ctx, rec.ID, events.ComponentLifecycle, "relocation failed", err)
		rec.State = Errored
		return rec, err
	}

	l.recorder.Access(ctx, rec.ID, events.ComponentLifecycle, "moved to "+dest)
	rec.Path = dest
	rec.State = Processed
	return rec, nil
}

func (l *Lifecycle) relocate(src string) (string, error) {
	if err := os.MkdirAll(l.processedDir, 0o755); err != nil {
		return "", fmt.Errorf("creating processed directory: %w", err)
	}
	dest, err := freeName(l.processedDir, filepath.Base(src))
	if err != nil {
		return "", err
	}
	if err := moveFile(src, dest); err != nil {
		return "", fmt.Errorf("moving %s: %w", filepath.Base(src), err)
	}
	return dest, nil
}

// freeName returns a path in dir for name that does not overwrite an
// existing file, appending a short unique suffix on collision.
func freeName(dir, name string) (string, error) {
	dest := filepath.Join(dir, name)
	_, err := os.Lstat(dest)
	if errors.Is(err, os.ErrNotExist) {
		return dest, nil
	}
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", dest, err)
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	return filepath.Join(dir, stem+"-"+uuid.NewString()[:8]+ext), nil
}

// moveFile renames src to dest, copying across filesystems.
func moveFile(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}
