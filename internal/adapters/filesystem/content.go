package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/ports"
)

// ContentStore implements ports.ContentStore on top of the local filesystem.
// Every path handed out by Resolve is guaranteed to stay below the root.
type ContentStore struct {
	root string
}

// Ensure ContentStore implements ports.ContentStore
var _ ports.ContentStore = (*ContentStore)(nil)

// NewContentStore canonicalises root (absolute, symlinks evaluated)
func NewContentStore(root string) (*ContentStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve content root %s: %w", root, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &ContentStore{root: abs}, nil
}

// Root returns the canonical content root
func (s *ContentStore) Root() string {
	return s.root
}

// Resolve maps a forward-slash request path onto the content root.
// Leading slashes are ignored; ".." segments, NUL bytes, backslashes and
// volume names are rejected, and the final target (after following symlinks)
// must be a descendant of the root.
func (s *ContentStore) Resolve(relativePath string) (string, error) {
	if strings.ContainsRune(relativePath, 0) || strings.Contains(relativePath, `\`) {
		return "", fmt.Errorf("%w: %q", entities.ErrInvalidPath, relativePath)
	}

	relativePath = strings.TrimLeft(relativePath, "/")
	if relativePath == "" {
		return "", fmt.Errorf("%w: empty path", entities.ErrInvalidPath)
	}

	for _, segment := range strings.Split(relativePath, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%w: %q", entities.ErrPathEscape, relativePath)
		}
	}

	native := filepath.FromSlash(relativePath)
	if filepath.VolumeName(native) != "" || filepath.IsAbs(native) {
		return "", fmt.Errorf("%w: %q", entities.ErrInvalidPath, relativePath)
	}

	target := filepath.Join(s.root, native)
	if !isWithin(s.root, target) {
		return "", fmt.Errorf("%w: %q", entities.ErrPathEscape, relativePath)
	}

	if resolved, err := filepath.EvalSymlinks(target); err == nil && !isWithin(s.root, resolved) {
		return "", fmt.Errorf("%w: %q", entities.ErrPathEscape, relativePath)
	}

	return target, nil
}

// Stat reports whether absolutePath is an existing regular file
func (s *ContentStore) Stat(absolutePath string) (bool, error) {
	info, err := os.Stat(absolutePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Open opens a resolved file for streaming
func (s *ContentStore) Open(absolutePath string) (io.ReadCloser, error) {
	f, err := os.Open(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", absolutePath, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", absolutePath, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", absolutePath, entities.ErrFileNotFound)
	}
	return f, nil
}

// ReadFile reads a resolved file fully
func (s *ContentStore) ReadFile(absolutePath string) ([]byte, error) {
	data, err := os.ReadFile(absolutePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", absolutePath, err)
	}
	return data, nil
}

func isWithin(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
