package cloud

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"extranef/internal/fsutil"
	"extranef/internal/nef"
)

// FileSystemStore is a filesystem-based implementation of the CloudStore
// interface. Folders are directories under root and ids are slash-separated
// paths relative to it:
//
//	<root>/
//	  <folder>/
//	    <object>
type FileSystemStore struct {
	root string
}

// NewFileSystemStore creates a store rooted at the given path.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

// EnsureFolder creates parentID/name if needed and returns its id.
func (s *FileSystemStore) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validateName(name); err != nil {
		return "", err
	}
	id := path.Join(parentID, name)
	if err := os.MkdirAll(s.localPath(id), 0755); err != nil {
		return "", fmt.Errorf("failed to create folder %s: %w", id, err)
	}
	return id, nil
}

// Upload writes r to parentID/name atomically. An existing object with the
// same name is replaced.
func (s *FileSystemStore) Upload(ctx context.Context, parentID, name, mimeType string, r io.Reader) (*nef.RemoteObject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	dir := s.localPath(parentID)
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("folder %q not accessible: %w", parentID, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("folder %q is not a directory", parentID)
	}

	id := path.Join(parentID, name)
	dest := s.localPath(id)
	if err := fsutil.WriteAtomic(dest, r, 0644); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	link := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return &nef.RemoteObject{ID: id, Name: name, Link: link.String()}, nil
}

// ValidateSetup verifies that the store root is an accessible directory.
func (s *FileSystemStore) ValidateSetup() error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("store root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("store root is not a directory: %s", s.root)
	}
	return nil
}

func (s *FileSystemStore) localPath(id string) string {
	return filepath.Join(s.root, filepath.FromSlash(id))
}

// validateName rejects names that would address anything but a direct child.
func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid object name %q", name)
	}
	return nil
}

// Compile-time check that FileSystemStore implements nef.CloudStore interface
var _ nef.CloudStore = (*FileSystemStore)(nil)
