package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"taxosort/internal/fileutil"
	"taxosort/internal/logging"
)

// Record is one ledger row in schema column order.
type Record []string

// Ledger is an append-only CSV of classification results. Key presence means
// the image is fully processed. A Ledger is owned by a single process for its
// lifetime; Open takes an exclusive advisory lock.
type Ledger struct {
	path   string
	schema Schema
	logger *slog.Logger

	lock   *flock.Flock
	file   *os.File
	writer *csv.Writer

	keys       map[string]struct{}
	rows       int
	resumed    bool
	backupPath string
	corruptAt  string
}

// Lock takes the advisory lock a run holds on the ledger at path without
// reading or touching the ledger itself. It fails with ErrLocked while a run
// is active. The returned function releases the lock.
func Lock(path string) (func() error, error) {
	lock, err := acquire(path)
	if err != nil {
		return nil, err
	}
	return lock.Unlock, nil
}

func acquire(path string) (*flock.Flock, error) {
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("ledger: acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return lock, nil
}

// Open loads every key of the ledger at path (creating it with a header when
// absent) and prepares it for appends.
//
// A trailing incomplete line left by a crash is cut back to the last complete
// row after the original bytes are copied to the backup. A ledger that fails
// to parse is renamed aside, never truncated, and the run starts fresh.
func Open(path string, schema Schema, logger *slog.Logger) (*Ledger, error) {
	logger = logging.NewComponentLogger(logger, "ledger")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create directory: %w", err)
	}

	lock, err := acquire(path)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		path:   path,
		schema: schema,
		logger: logger,
		lock:   lock,
		keys:   make(map[string]struct{}),
	}
	if err := l.load(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if err := l.openForAppend(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	info, err := os.Stat(l.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger: stat: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	cut, err := completeLength(l.path, info.Size())
	if err != nil {
		return fmt.Errorf("ledger: inspect tail: %w", err)
	}
	if cut < info.Size() {
		if _, err := l.Backup(); err != nil {
			return err
		}
		if err := os.Truncate(l.path, cut); err != nil {
			return fmt.Errorf("ledger: drop partial row: %w", err)
		}
		logging.WarnWithContext(l.logger, "dropped incomplete trailing row", "ledger_partial_row",
			logging.String("path", l.path),
			logging.Int64("bytes", info.Size()-cut),
			logging.String("backup", l.backupPath),
			logging.String(logging.FieldImpact, "the interrupted image will be classified again"),
		)
		if cut == 0 {
			return nil
		}
	}

	keys, rows, dups, err := readKeys(l.path, l.schema)
	switch {
	case errors.Is(err, ErrSchemaMismatch):
		return err
	case err != nil:
		return l.setAside(err)
	}
	if dups > 0 {
		logging.WarnWithContext(l.logger, "ledger holds repeated keys", "ledger_duplicate_keys",
			logging.String("path", l.path),
			logging.Int("duplicates", dups),
			logging.String(logging.FieldErrorHint, "run `taxosort ledger verify` to list the affected rows"),
			logging.String(logging.FieldImpact, "first occurrence of each key is kept"),
		)
	}
	l.keys = keys
	l.rows = rows
	l.resumed = len(keys) > 0
	l.logger.Info("ledger loaded",
		logging.String("path", l.path),
		logging.Int("processed", len(keys)),
		logging.Bool("resumed", l.resumed),
	)
	return nil
}

// setAside moves an unreadable ledger out of the way so a fresh one can be
// started without losing its bytes.
func (l *Ledger) setAside(cause error) error {
	aside := fmt.Sprintf("%s.corrupt-%s", l.path, time.Now().UTC().Format("20060102T150405Z"))
	if err := os.Rename(l.path, aside); err != nil {
		return fmt.Errorf("ledger: set aside unreadable ledger: %w", err)
	}
	l.corruptAt = aside
	logging.WarnWithContext(l.logger, "ledger unreadable; starting fresh", "ledger_parse_failed",
		logging.Error(cause),
		logging.String("preserved_as", aside),
		logging.String(logging.FieldErrorHint, "inspect the preserved file before deleting it"),
		logging.String(logging.FieldImpact, "previously processed images will be classified again"),
	)
	return nil
}

func (l *Ledger) openForAppend() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ledger: open: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("ledger: stat: %w", err)
	}
	l.file = file
	l.writer = csv.NewWriter(file)
	if info.Size() == 0 {
		if err := l.writeRecord(l.schema.Header); err != nil {
			_ = file.Close()
			return fmt.Errorf("ledger: write header: %w", err)
		}
	}
	return nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Schema returns the column layout.
func (l *Ledger) Schema() Schema { return l.schema }

// Resumed reports whether the ledger held processed rows when opened.
func (l *Ledger) Resumed() bool { return l.resumed }

// BackupPath returns the backup location, empty until a backup was taken.
func (l *Ledger) BackupPath() string { return l.backupPath }

// SetAsidePath returns where an unreadable ledger was preserved, if any.
func (l *Ledger) SetAsidePath() string { return l.corruptAt }

// Rows returns the number of data rows written, counting repeated keys.
func (l *Ledger) Rows() int { return l.rows }

// Len returns the number of processed keys.
func (l *Ledger) Len() int { return len(l.keys) }

// Exists reports whether key has been recorded.
func (l *Ledger) Exists(key string) bool {
	_, ok := l.keys[key]
	return ok
}

// Keys returns a copy of the processed key set.
func (l *Ledger) Keys() map[string]struct{} {
	out := make(map[string]struct{}, len(l.keys))
	for k := range l.keys {
		out[k] = struct{}{}
	}
	return out
}

// Backup copies the ledger verbatim to <path>.backup. It runs at most once
// per Open; later calls return the existing backup path.
func (l *Ledger) Backup() (string, error) {
	if l.backupPath != "" {
		return l.backupPath, nil
	}
	if l.writer != nil {
		l.writer.Flush()
		if err := l.writer.Error(); err != nil {
			return "", fmt.Errorf("ledger: flush before backup: %w", err)
		}
	}
	dst := l.path + ".backup"
	if err := fileutil.CopyFileVerified(l.path, dst); err != nil {
		return "", fmt.Errorf("ledger: backup: %w", err)
	}
	l.backupPath = dst
	l.logger.Info("ledger backed up", logging.String("backup", dst))
	return dst, nil
}

// Append durably records one row. The row is flushed and fsynced before
// Append returns, so a crash never loses an acknowledged row.
func (l *Ledger) Append(rec Record) error {
	if l.file == nil {
		return ErrClosed
	}
	if len(rec) != l.schema.Width() {
		return fmt.Errorf("ledger: row has %d fields, schema %s wants %d", len(rec), l.schema.Name, l.schema.Width())
	}
	key := l.schema.Key(rec)
	if strings.TrimSpace(key) == "" {
		return errors.New("ledger: row key is empty")
	}
	if l.Exists(key) {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, key)
	}
	if l.resumed && l.backupPath == "" {
		if _, err := l.Backup(); err != nil {
			return err
		}
	}
	if err := l.writeRecord(rec); err != nil {
		return fmt.Errorf("ledger: append %s: %w", key, err)
	}
	l.keys[key] = struct{}{}
	l.rows++
	return nil
}

func (l *Ledger) writeRecord(rec []string) error {
	if err := l.writer.Write(rec); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// Close flushes the ledger and releases the lock.
func (l *Ledger) Close() error {
	if l.file == nil {
		return nil
	}
	var errs []error
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Sync(); err != nil {
		errs = append(errs, err)
	}
	if err := l.file.Close(); err != nil {
		errs = append(errs, err)
	}
	l.file = nil
	if err := l.lock.Unlock(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
