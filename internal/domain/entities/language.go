package entities

import (
	"path"
	"sort"
	"strings"
)

// DefaultLanguages is the script allow-list served by default, keyed by extension without dot.
var DefaultLanguages = map[string]string{
	"ps1":  "PowerShell",
	"psm1": "PowerShell",
	"bat":  "Batch",
	"sh":   "Bash",
}

// LanguageMap is the allow-list of servable extensions and their language labels.
// Keys are lowercase extensions without the leading dot.
type LanguageMap map[string]string

// NewLanguageMap normalises extension keys (lowercase, no dot)
func NewLanguageMap(raw map[string]string) LanguageMap {
	m := make(LanguageMap, len(raw))
	for ext, label := range raw {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext == "" || label == "" {
			continue
		}
		m[ext] = label
	}
	return m
}

// Detect returns the language label for a file name and whether its extension is allowed.
func (m LanguageMap) Detect(name string) (string, bool) {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ext == "" {
		return "", false
	}
	label, ok := m[ext]
	return label, ok
}

// Extensions returns the allowed extensions, sorted
func (m LanguageMap) Extensions() []string {
	exts := make([]string, 0, len(m))
	for ext := range m {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// KeyFor derives the index key for a file: its basename without extension, lowercased.
func KeyFor(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	return strings.ToLower(strings.TrimSuffix(base, path.Ext(base)))
}
