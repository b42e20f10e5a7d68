// Package generation manages the agent's on-disk secret generations:
// numbered directories under a secret root, swapped in via a symlink
// flip, with garbage collection of superseded siblings.
package generation

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/yeet-sh/yeet/pkg/contracts"
)

// DirMode is the permission mode new generation directories are
// created with.
const DirMode = 0o751

// Manager owns a secret root directory and the "current" symlink
// inside it that points at the active generation.
type Manager struct {
	Root       string // e.g. /etc/yeet/secret.d
	SymlinkPath string // e.g. /etc/yeet/secret
}

// New returns a Manager rooted at root, with the "current" symlink at
// symlinkPath.
func New(root, symlinkPath string) *Manager {
	return &Manager{Root: root, SymlinkPath: symlinkPath}
}

// CurrentTarget reads the current symlink, if any. A missing symlink
// is reported as os.IsNotExist on the error, not a fatal condition.
func (m *Manager) CurrentTarget() (string, error) {
	return os.Readlink(m.SymlinkPath)
}

// NextGeneration computes the next generation number from the current
// symlink target's basename, defaulting to 0 if parsing fails or no
// link exists.
func (m *Manager) NextGeneration() int {
	target, err := m.CurrentTarget()
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(filepath.Base(target))
	if err != nil {
		return 0
	}
	return n + 1
}

func (m *Manager) path(n int) string {
	return filepath.Join(m.Root, strconv.Itoa(n))
}

// Create materializes generation n under Root with the declared
// secrets written into it, each with independently-applied owner and
// group (owner and group are independent identities, not one parsed twice).
// On any error the partially-written directory is removed and the
// error is returned.
func (m *Manager) Create(n int, secrets map[string][]byte, defs map[string]contracts.SecretDefinition) (err error) {
	dir := m.path(n)
	if mkErr := os.MkdirAll(dir, DirMode); mkErr != nil {
		return fmt.Errorf("generation: create %s: %w", dir, mkErr)
	}

	defer func() {
		if err != nil {
			_ = os.RemoveAll(dir)
		}
	}()

	if chErr := os.Chmod(dir, DirMode); chErr != nil {
		return fmt.Errorf("generation: chmod %s: %w", dir, chErr)
	}

	for name, content := range secrets {
		def, ok := defs[name]
		if !ok {
			return fmt.Errorf("generation: no manifest entry for secret %q", name)
		}
		if err = writeSecretFile(dir, def, content); err != nil {
			return err
		}
	}
	return nil
}

func writeSecretFile(dir string, def contracts.SecretDefinition, content []byte) error {
	fileName := filepath.Base(def.Name)
	if fileName == "." || fileName == string(filepath.Separator) {
		return fmt.Errorf("generation: invalid secret name %q", def.Name)
	}
	full := filepath.Join(dir, fileName)

	mode, err := strconv.ParseUint(def.Mode, 8, 32)
	if err != nil {
		return fmt.Errorf("generation: parse mode %q for %q: %w", def.Mode, def.Name, err)
	}

	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, os.FileMode(mode))
	if err != nil {
		return fmt.Errorf("generation: create %s: %w", full, err)
	}
	if _, err := f.Write(content); err != nil {
		_ = f.Close()
		return fmt.Errorf("generation: write %s: %w", full, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("generation: close %s: %w", full, err)
	}
	if err := os.Chmod(full, os.FileMode(mode)); err != nil {
		return fmt.Errorf("generation: chmod %s: %w", full, err)
	}

	uid, err := resolveID(def.Owner)
	if err != nil {
		return fmt.Errorf("generation: resolve owner %q: %w", def.Owner, err)
	}
	gid, err := resolveID(def.Group)
	if err != nil {
		return fmt.Errorf("generation: resolve group %q: %w", def.Group, err)
	}
	if err := syscall.Chown(full, uid, gid); err != nil {
		return fmt.Errorf("generation: chown %s to %d:%d: %w", full, uid, gid, err)
	}
	return nil
}

// resolveID parses a numeric uid/gid string. Owner and Group are
// independent fields resolved independently — never the same
// the same parsed value reused for both.
func resolveID(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// FlipSymlink repoints the current symlink at generation n by removing
// the old link and creating a new one (two steps, not one atomic
// rename), returning the previous target (if any) so a caller can roll
// back.
func (m *Manager) FlipSymlink(n int) (previous string, hadPrevious bool, err error) {
	previous, perr := m.CurrentTarget()
	hadPrevious = perr == nil

	if rmErr := os.Remove(m.SymlinkPath); rmErr != nil && !os.IsNotExist(rmErr) {
		return previous, hadPrevious, fmt.Errorf("generation: remove old symlink: %w", rmErr)
	}
	if symErr := os.Symlink(m.path(n), m.SymlinkPath); symErr != nil {
		return previous, hadPrevious, fmt.Errorf("generation: create symlink: %w", symErr)
	}
	return previous, hadPrevious, nil
}

// RestoreSymlink points the current symlink back at a previously
// recorded target, used when an update must be rolled back.
func (m *Manager) RestoreSymlink(previous string) error {
	_ = os.Remove(m.SymlinkPath)
	if previous == "" {
		return nil
	}
	if err := os.Symlink(previous, m.SymlinkPath); err != nil {
		return fmt.Errorf("generation: restore symlink: %w", err)
	}
	return nil
}

// Remove deletes generation n entirely.
func (m *Manager) Remove(n int) error {
	return os.RemoveAll(m.path(n))
}

// GCExceptCurrent removes every generation directory under Root except
// n, the newly-committed generation. Called only after a successful
// switch.
func (m *Manager) GCExceptCurrent(n int) error {
	entries, err := os.ReadDir(m.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("generation: read root %s: %w", m.Root, err)
	}
	keep := strconv.Itoa(n)
	for _, e := range entries {
		if e.Name() == keep {
			continue
		}
		if rmErr := os.RemoveAll(filepath.Join(m.Root, e.Name())); rmErr != nil {
			return fmt.Errorf("generation: gc %s: %w", e.Name(), rmErr)
		}
	}
	return nil
}
