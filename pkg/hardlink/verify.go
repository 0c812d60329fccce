package hardlink

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// VerifySupport creates a throwaway source and hard link inside testDir and
// confirms the same bytes are visible through both names. Both files are
// removed regardless of outcome. Meant for startup checks, not the request
// path.
func (m *Manager) VerifySupport(testDir string) error {
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		return err
	}

	source := filepath.Join(testDir, ".linkdrop-probe-src")
	target := filepath.Join(testDir, ".linkdrop-probe-dst")
	defer os.Remove(source)
	defer os.Remove(target)

	payload := make([]byte, 64)
	if _, err := io.ReadFull(rand.Reader, payload); err != nil {
		return err
	}
	if err := os.WriteFile(source, payload, 0o600); err != nil {
		return fmt.Errorf("write probe file: %w", err)
	}

	if err := m.CreateLink(source, target); err != nil {
		return err
	}

	got, err := os.ReadFile(target)
	if err != nil {
		return fmt.Errorf("read through link: %w", err)
	}
	if !bytes.Equal(payload, got) {
		return fmt.Errorf("%w: linked content differs from source", ErrUnsupported)
	}
	return nil
}
