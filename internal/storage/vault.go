// Package storage provides contained file operations for the recordings
// tree. All paths are resolved against the recordings root so a crafted
// stream title can never write outside it.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Vault is the recordings root. Every capture, sidecar and working file
// lives under it; Resolve rejects anything that would escape.
type Vault struct {
	root string
}

// NewVault creates a Vault rooted at the given directory, creating it if
// needed.
func NewVault(root string) (*Vault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating recordings root: %w", err)
	}
	return &Vault{root: abs}, nil
}

// Root returns the absolute recordings root.
func (v *Vault) Root() string {
	return v.root
}

// Resolve resolves a relative path inside the vault. Absolute paths and
// paths that climb out of the root are rejected.
func (v *Vault) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path escapes recordings root: %s", rel)
	}

	full := filepath.Join(v.root, filepath.Clean(rel))
	abs, err := filepath.Abs(full)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	if abs != v.root && !strings.HasPrefix(abs, v.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes recordings root: %s", rel)
	}
	return abs, nil
}

// Contains reports whether an absolute path lies inside the vault.
func (v *Vault) Contains(abs string) bool {
	clean := filepath.Clean(abs)
	return clean == v.root || strings.HasPrefix(clean, v.root+string(filepath.Separator))
}

// Rel converts an absolute path inside the vault back to a vault-relative one.
func (v *Vault) Rel(abs string) (string, error) {
	if !v.Contains(abs) {
		return "", fmt.Errorf("path outside recordings root: %s", abs)
	}
	rel, err := filepath.Rel(v.root, abs)
	if err != nil {
		return "", fmt.Errorf("relativizing path: %w", err)
	}
	return rel, nil
}

// MkdirAll creates a directory tree inside the vault.
func (v *Vault) MkdirAll(rel string) (string, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return "", fmt.Errorf("creating directory: %w", err)
	}
	return path, nil
}

// WriteSidecar atomically writes a sidecar file (chapters, NFO) inside the
// vault. Readers never observe a partially written file.
func (v *Vault) WriteSidecar(rel string, data []byte) error {
	path, err := v.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("writing sidecar: %w", err)
	}
	return nil
}

// ReadFile reads a file inside the vault.
func (v *Vault) ReadFile(rel string) ([]byte, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return data, nil
}

// Rename moves a file inside the vault, creating the destination's parent.
func (v *Vault) Rename(oldRel, newRel string) error {
	oldAbs, err := v.Resolve(oldRel)
	if err != nil {
		return fmt.Errorf("resolving source: %w", err)
	}
	newAbs, err := v.Resolve(newRel)
	if err != nil {
		return fmt.Errorf("resolving destination: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return fmt.Errorf("renaming: %w", err)
	}
	return nil
}

// Remove removes a single file inside the vault.
func (v *Vault) Remove(rel string) error {
	path, err := v.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing: %w", err)
	}
	return nil
}

// RemoveAll removes a tree inside the vault. The root itself is protected.
func (v *Vault) RemoveAll(rel string) error {
	path, err := v.Resolve(rel)
	if err != nil {
		return err
	}
	if path == v.root {
		return fmt.Errorf("refusing to remove recordings root")
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing tree: %w", err)
	}
	return nil
}

// Exists reports whether a path exists inside the vault.
func (v *Vault) Exists(rel string) (bool, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking path: %w", err)
	}
	return true, nil
}

// Stat returns file info for a path inside the vault.
func (v *Vault) Stat(rel string) (os.FileInfo, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	return info, nil
}

// Size returns the size of a file inside the vault.
func (v *Vault) Size(rel string) (int64, error) {
	info, err := v.Stat(rel)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// List returns the entries of a directory inside the vault.
func (v *Vault) List(rel string) ([]os.DirEntry, error) {
	path, err := v.Resolve(rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return entries, nil
}
