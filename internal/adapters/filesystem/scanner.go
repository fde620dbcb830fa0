package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/tbag/core/internal/domain/entities"
	"github.com/tbag/core/internal/ports"
)

// Scanner implements ports.Scanner by walking the content root on disk
type Scanner struct {
	root      string
	languages entities.LanguageMap
	exclude   []string
}

// Ensure Scanner implements ports.Scanner
var _ ports.Scanner = (*Scanner)(nil)

// NewScanner creates a scanner over root. Exclude patterns are doublestar globs
// matched against forward-slash paths relative to root.
func NewScanner(root string, languages entities.LanguageMap, exclude []string) (*Scanner, error) {
	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern: %s", pattern)
		}
	}
	return &Scanner{
		root:      root,
		languages: languages,
		exclude:   exclude,
	}, nil
}

// Root returns the directory being scanned
func (s *Scanner) Root() string {
	return s.root
}

// Scan walks the tree in lexical order and returns one entry per allow-listed file.
// Any unreadable entry aborts the scan with an *entities.IndexBuildError.
func (s *Scanner) Scan(ctx context.Context) ([]entities.IndexEntry, error) {
	var entries []entities.IndexEntry

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &entities.IndexBuildError{Path: path, Err: err}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.root {
			return nil
		}

		relPath, err := filepath.Rel(s.root, path)
		if err != nil {
			return &entities.IndexBuildError{Path: path, Err: err}
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if s.isExcluded(relPath) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks and special files are not indexed; they could point outside the root.
		if !d.Type().IsRegular() {
			return nil
		}
		if s.isExcluded(relPath) {
			return nil
		}

		lang, ok := s.languages.Detect(d.Name())
		if !ok {
			return nil
		}

		entries = append(entries, entities.IndexEntry{
			Key:          entities.KeyFor(d.Name()),
			RelativePath: relPath,
			Language:     lang,
		})
		return nil
	})
	if err != nil {
		var buildErr *entities.IndexBuildError
		if errors.As(err, &buildErr) {
			return nil, err
		}
		return nil, &entities.IndexBuildError{Path: s.root, Err: err}
	}

	return entries, nil
}

func (s *Scanner) isExcluded(relPath string) bool {
	for _, pattern := range s.exclude {
		if matched, _ := doublestar.Match(pattern, relPath); matched {
			return true
		}
		// A bare directory name like ".git" also excludes everything below it.
		if !strings.ContainsAny(pattern, "*?[{") && strings.HasPrefix(relPath+"/", pattern+"/") {
			return true
		}
	}
	return false
}

// Excluded reports whether a path below the root matches an exclude pattern
func (s *Scanner) Excluded(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == "." {
		return false
	}
	return s.isExcluded(filepath.ToSlash(rel))
}
