package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	appLog "shiftcal/internal/log"
)

// canonicalName is the single document the feed serves.
const canonicalName = "schedule.ics"

// ErrNotFound is returned when no calendar document has been persisted yet.
var ErrNotFound = errors.New("no calendar document persisted")

// Store persists the canonical calendar document plus append-only
// timestamped snapshots kept for forensic inspection. Snapshots are
// never read back; their absence or corruption has no effect on
// reconciliation.
type Store struct {
	dir string
}

func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("data dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

func (s *Store) canonicalPath() string {
	return filepath.Join(s.dir, canonicalName)
}

// Read returns the persisted document bytes, or ErrNotFound.
func (s *Store) Read() ([]byte, error) {
	data, err := os.ReadFile(s.canonicalPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// LastModified returns the modification time of the persisted document,
// or ErrNotFound.
func (s *Store) LastModified() (time.Time, error) {
	info, err := os.Stat(s.canonicalPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Write atomically replaces the canonical document: readers observe
// either the previous document or the new one, never a partial write.
// A timestamped snapshot is recorded afterwards; snapshot failures are
// logged only, the canonical rename alone decides success.
func (s *Store) Write(data []byte, now time.Time) error {
	tmp, err := os.CreateTemp(s.dir, ".shiftcal-schedule-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.canonicalPath()); err != nil {
		return err
	}

	snapName := "schedule_" + now.Format("20060102_150405") + ".ics"
	if err := os.WriteFile(filepath.Join(s.dir, snapName), data, 0o600); err != nil {
		appLog.Error("failed to write snapshot", err, "name", snapName)
	}

	return nil
}
