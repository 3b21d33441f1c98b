// Package filestore implements the peer's sandboxed public file store:
// PUT_FILE/GET_FILE semantics under a single root, filename-only (no
// path traversal), plus the cross-protocol guard that refuses to serve a
// filename that is under owner custody.
package filestore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Snider/Fabric/pkg/ferrors"
)

// OwnedChecker reports whether filename is currently held in owner
// custody (pkg/ownedfile.Store implements this) so GET_FILE can refuse
// with OwnedFileForbidden instead of serving a public replica of the
// same name.
type OwnedChecker interface {
	IsOwned(filename string) bool
}

// Store is a filesystem-backed blob store rooted at a single directory.
type Store struct {
	root   string
	owned  OwnedChecker
}

func New(root string, owned OwnedChecker) *Store {
	return &Store{root: root, owned: owned}
}

// sanitize rejects any filename containing a path separator or "." /
// ".." segments, accepting only a bare basename.
func sanitize(filename string) (string, error) {
	if filename == "" {
		return "", ferrors.Validation("filename is required")
	}
	clean := filepath.Base(filename)
	if clean != filename || clean == "." || clean == ".." || strings.ContainsAny(filename, `/\`) {
		return "", ferrors.Validation("filename %q is not a valid basename", filename)
	}
	return clean, nil
}

// Put writes data under filename, creating the store root if needed.
func (s *Store) Put(filename string, data []byte) error {
	clean, err := sanitize(filename)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0755); err != nil {
		return ferrors.IOError("create public store root").WithCause(err)
	}
	path := filepath.Join(s.root, clean)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return ferrors.IOError("write public file %q", clean).WithCause(err)
	}
	return nil
}

// Get returns filename's bytes, refusing with OwnedFileForbidden when
// the name is under owner custody and NotFound when absent from disk.
func (s *Store) Get(filename string) ([]byte, error) {
	clean, err := sanitize(filename)
	if err != nil {
		return nil, err
	}
	if s.owned != nil && s.owned.IsOwned(clean) {
		return nil, ferrors.OwnedFileForbidden(clean)
	}
	path := filepath.Join(s.root, clean)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound("file %q not found", clean)
		}
		return nil, ferrors.IOError("read public file %q", clean).WithCause(err)
	}
	return data, nil
}
