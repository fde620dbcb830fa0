package entities

import (
	"errors"
	"fmt"
	"time"
)

// Common errors
var (
	ErrFileNotFound         = errors.New("file not found")
	ErrPathEscape           = errors.New("path escapes content root")
	ErrInvalidPath          = errors.New("invalid path")
	ErrExtensionNotAllowed  = errors.New("extension not allowed")
	ErrIndexBuild           = errors.New("index build failed")
	ErrKeyCollision         = errors.New("index key collision")
	ErrVisitNotFound        = errors.New("visit record not found")
	ErrQueueFull            = errors.New("visit queue full")
	ErrUnknownVisitKind     = errors.New("unknown visit kind")
	ErrUnknownCounter       = errors.New("unknown counter backend")
	ErrInvalidCollisionMode = errors.New("invalid collision policy")
)

// Enums and types
type VisitKind string

const (
	VisitKindRaw  VisitKind = "raw"
	VisitKindHTML VisitKind = "html"
)

// Valid reports whether k is one of the known visit kinds
func (k VisitKind) Valid() bool {
	return k == VisitKindRaw || k == VisitKindHTML
}

// CollisionPolicy decides which file keeps an index key when two files share a basename.
type CollisionPolicy string

const (
	// CollisionKeepLast lets the file visited later in scan order win.
	CollisionKeepLast CollisionPolicy = "last"
	// CollisionKeepFirst keeps the file visited first in scan order.
	CollisionKeepFirst CollisionPolicy = "first"
	// CollisionError aborts the rebuild on the first collision.
	CollisionError CollisionPolicy = "error"
)

// ParseCollisionPolicy converts a config string into a CollisionPolicy
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case CollisionKeepLast, CollisionKeepFirst, CollisionError:
		return CollisionPolicy(s), nil
	case "":
		return CollisionKeepLast, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCollisionMode, s)
}

// IndexEntry maps a lowercase basename key to a file below the content root
type IndexEntry struct {
	Key          string `json:"key"`
	RelativePath string `json:"relative_path"`
	Language     string `json:"language"`
}

// Collision records two files that produced the same index key
type Collision struct {
	Key       string `json:"key"`
	Kept      string `json:"kept"`
	Discarded string `json:"discarded"`
}

// VisitRecord holds per-file visit counters
type VisitRecord struct {
	Filename  string    `json:"filename" db:"filename"`
	Visits    int64     `json:"visits" db:"visits"`
	HTMLFile  int64     `json:"html_file" db:"html_file"`
	RawFile   int64     `json:"raw_file" db:"raw_file"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Apply increments the record the same way the stores do
func (v *VisitRecord) Apply(kind VisitKind) {
	v.Visits++
	switch kind {
	case VisitKindRaw:
		v.RawFile++
	case VisitKindHTML:
		v.HTMLFile++
	}
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	v.UpdatedAt = now
}

// IndexBuildError wraps a failure that aborted an index rebuild
type IndexBuildError struct {
	Path string
	Err  error
}

func (e *IndexBuildError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("index build: %v", e.Err)
	}
	return fmt.Sprintf("index build at %s: %v", e.Path, e.Err)
}

func (e *IndexBuildError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrIndexBuild) match any IndexBuildError
func (e *IndexBuildError) Is(target error) bool { return target == ErrIndexBuild }
