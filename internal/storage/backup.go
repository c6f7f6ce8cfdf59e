package storage

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"banyg/internal/core"
)

// sqliteMagic is the 16-byte format signature at the start of every valid
// SQLite database file.
var sqliteMagic = []byte("SQLite format 3\x00")

// BackupManager copies the whole database file into an app-private directory
// before any migration runs, and verifies backups before they are offered
// for restore.
type BackupManager struct {
	dir string
}

// NewBackupManager creates the backup directory if needed.
func NewBackupManager(dir string) (*BackupManager, error) {
	if dir == "" {
		return nil, fmt.Errorf("backup directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &BackupManager{dir: dir}, nil
}

// Dir returns the backup directory.
func (b *BackupManager) Dir() string { return b.dir }

// Create copies the database file to a timestamped backup and verifies the
// copy. A backup that fails verification is removed and reported.
func (b *BackupManager) Create(dbPath string) (string, error) {
	name := fmt.Sprintf("banyg-%s.db", time.Now().UTC().Format("20060102-150405"))
	dst := filepath.Join(b.dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(dst); os.IsNotExist(err) {
			break
		}
		dst = filepath.Join(b.dir, fmt.Sprintf("banyg-%s-%d.db", time.Now().UTC().Format("20060102-150405"), i))
	}

	if err := copyFile(dbPath, dst); err != nil {
		return "", core.TransientErr("copy database for backup", err)
	}
	if err := b.Verify(dst); err != nil {
		_ = os.Remove(dst)
		return "", err
	}
	return dst, nil
}

// Verify checks that the file starts with the SQLite format signature.
// Verification failure must be reported, never silently accepted.
func (b *BackupManager) Verify(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return core.TransientErr("open backup for verification", err)
	}
	defer f.Close()

	header := make([]byte, len(sqliteMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		return core.IntegrityErr(fmt.Sprintf("backup %s is too short to be a database file", filepath.Base(path)), err)
	}
	if !bytes.Equal(header, sqliteMagic) {
		return core.IntegrityErr(fmt.Sprintf("backup %s does not carry the SQLite format signature", filepath.Base(path)), nil)
	}
	return nil
}

// List returns backup file paths, newest first.
func (b *BackupManager) List() ([]string, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		paths = append(paths, filepath.Join(b.dir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Restore overwrites the database file with a verified backup. The caller
// must hold no open connections to dbPath.
func (b *BackupManager) Restore(backupPath, dbPath string) error {
	if err := b.Verify(backupPath); err != nil {
		return err
	}
	if err := copyFile(backupPath, dbPath); err != nil {
		return core.TransientErr("restore backup", err)
	}
	return nil
}

// ExportTo copies a verified backup to a user-accessible directory and
// returns the destination path.
func (b *BackupManager) ExportTo(backupPath, dstDir string) (string, error) {
	if err := b.Verify(backupPath); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", core.TransientErr("create export directory", err)
	}
	dst := filepath.Join(dstDir, filepath.Base(backupPath))
	if err := copyFile(backupPath, dst); err != nil {
		return "", core.TransientErr("export backup", err)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Sync()
}
