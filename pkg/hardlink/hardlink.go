package hardlink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

var (
	// ErrCrossDevice means source and target live on different filesystems.
	ErrCrossDevice = errors.New("source and target are on different filesystems")

	// ErrUnsupported means the platform or filesystem cannot create hard links.
	ErrUnsupported = errors.New("hard links are not supported on this filesystem")

	// ErrInvalidSource means the source is not a regular file.
	ErrInvalidSource = errors.New("source is not a regular file")

	// ErrTargetIsDir means the target path is occupied by a directory.
	ErrTargetIsDir = errors.New("target is a directory")
)

// Manager owns all hard link filesystem operations.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// CreateLink links target to the same data as source. The source must be a
// regular file; symlinks and directories at the final path component are
// rejected. An existing regular file at target is replaced. Both paths must
// reside on the same filesystem.
func (m *Manager) CreateLink(source, target string) error {
	source, err := filepath.Abs(source)
	if err != nil {
		return err
	}
	target, err = filepath.Abs(target)
	if err != nil {
		return err
	}

	fi, err := os.Lstat(source)
	if err != nil {
		return err
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%s: %w", filepath.Base(source), ErrInvalidSource)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	if !m.SameFilesystem(source, target) {
		return ErrCrossDevice
	}

	if ti, err := os.Lstat(target); err == nil {
		if ti.IsDir() {
			return fmt.Errorf("%s: %w", filepath.Base(target), ErrTargetIsDir)
		}
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("replace existing link: %w", err)
		}
	}

	if err := os.Link(source, target); err != nil {
		switch {
		case errors.Is(err, syscall.EXDEV):
			return ErrCrossDevice
		case errors.Is(err, syscall.ENOTSUP), errors.Is(err, syscall.EPERM):
			return fmt.Errorf("%w: %v", ErrUnsupported, err)
		}
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

// DeleteLink removes the single directory entry at target. A missing target
// is a no-op; directories are refused. Other links to the same data are
// unaffected.
func (m *Manager) DeleteLink(target string) error {
	fi, err := os.Lstat(target)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if fi.IsDir() {
		return fmt.Errorf("%s: %w", filepath.Base(target), ErrTargetIsDir)
	}
	return os.Remove(target)
}

// LinkCount returns the hard link count of path, or 1 when the platform
// does not expose it.
func (m *Manager) LinkCount(path string) int {
	fi, err := os.Stat(path)
	if err != nil {
		return 1
	}
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return int(st.Nlink)
	}
	return 1
}

// SameFilesystem compares the device IDs of the directories containing a
// and b, so a not-yet-created target is handled. Any error fails closed.
func (m *Manager) SameFilesystem(a, b string) bool {
	da, ok := deviceID(filepath.Dir(a))
	if !ok {
		return false
	}
	db, ok := deviceID(filepath.Dir(b))
	if !ok {
		return false
	}
	return da == db
}

func deviceID(dir string) (uint64, bool) {
	fi, err := os.Stat(dir)
	if err != nil {
		return 0, false
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Dev), true
}
