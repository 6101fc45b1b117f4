package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// BackupStore preserves the previous version of a composite document before
// it is overwritten. Ensure is idempotent on the backup id, which is derived
// from the content: re-applying an identical patch finds the existing backup
// and creates nothing.
type BackupStore interface {
	Ensure(backupID string, content []byte) (created bool, err error)
}

// BackupID derives the stable backup identifier for a resource's document
// content: the resource id plus a truncated content digest.
func BackupID(resourceID string, content []byte) string {
	sum := sha256.Sum256(content)
	return fmt.Sprintf("%s.%s.bak", resourceID, hex.EncodeToString(sum[:])[:12])
}

// FSBackupStore keeps gzip-compressed backups as files under one directory.
type FSBackupStore struct {
	dir string
}

// NewFSBackupStore creates the backup directory if needed and returns the
// store.
func NewFSBackupStore(dir string) (*FSBackupStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating backup directory %s: %w", dir, err)
	}
	return &FSBackupStore{dir: dir}, nil
}

var _ BackupStore = (*FSBackupStore)(nil)

// Ensure writes the compressed content under the backup id unless a backup
// with that id already exists.
func (s *FSBackupStore) Ensure(backupID string, content []byte) (bool, error) {
	path := filepath.Join(s.dir, backupID+".gz")
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("checking backup %s: %w", backupID, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return false, fmt.Errorf("creating backup %s: %w", backupID, err)
	}
	zw := gzip.NewWriter(f)
	if _, err := zw.Write(content); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("writing backup %s: %w", backupID, err)
	}
	if err := zw.Close(); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, fmt.Errorf("finalizing backup %s: %w", backupID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("closing backup %s: %w", backupID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, fmt.Errorf("publishing backup %s: %w", backupID, err)
	}
	return true, nil
}
