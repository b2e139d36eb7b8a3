package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnsureDir creates rel and any missing ancestors. An existing directory is
// not an error.
func (s *Store) EnsureDir(rel string) error {
	if err := os.MkdirAll(s.Path(rel), s.DirPerm); err != nil {
		return fmt.Errorf("create directory %s: %w", rel, err)
	}
	return nil
}

// ReadText returns the content of rel. A missing file yields ok=false and a
// nil error; any other failure is returned.
func (s *Store) ReadText(rel string) (content string, ok bool, err error) {
	data, err := os.ReadFile(s.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", rel, err)
	}
	return string(data), true, nil
}

// WriteText writes content to rel, replacing anything already there, and
// returns the written path. Ancestor directories are created as needed.
func (s *Store) WriteText(rel, content string) (string, error) {
	path := s.Path(rel)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.atomicWrite(path, func(w io.Writer) error {
		_, err := io.WriteString(w, content)
		return err
	}); err != nil {
		return "", fmt.Errorf("write %s: %w", rel, err)
	}
	return path, nil
}

// Exists reports whether rel exists. It never fails.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(s.Path(rel))
	return err == nil
}

// ListDir returns the entry names of rel in lexical order. A missing
// directory yields an empty slice.
func (s *Store) ListDir(rel string) ([]string, error) {
	entries, err := os.ReadDir(s.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// ListSubdirs is ListDir restricted to directories.
func (s *Store) ListSubdirs(rel string) ([]string, error) {
	entries, err := os.ReadDir(s.Path(rel))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", rel, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ReadYAML decodes rel into v. A missing file yields ok=false and leaves v
// untouched.
func (s *Store) ReadYAML(rel string, v any) (ok bool, err error) {
	text, ok, err := s.ReadText(rel)
	if err != nil || !ok {
		return false, err
	}
	if err := yaml.Unmarshal([]byte(text), v); err != nil {
		return false, fmt.Errorf("parse %s: %w", rel, err)
	}
	return true, nil
}

// WriteYAML encodes v as YAML and writes it to rel.
func (s *Store) WriteYAML(rel string, v any) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("encode %s: %w", rel, err)
	}
	return s.WriteText(rel, buf.String())
}

// Resolve maps a caller-supplied path onto the node, rejecting anything that
// would land outside Root. Used where paths come from a model or a remote
// tool call rather than from fixed layout constants.
func (s *Store) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", ErrEmptyPath
	}
	if strings.HasPrefix(p, "~") {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, p)
	}

	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	target := p
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesRoot, p)
	}
	return target, nil
}

// atomicWrite writes to a temp file and renames atomically.
func (s *Store) atomicWrite(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, s.DirPerm); err != nil {
		return err
	}

	// Create temp file in same directory for atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath) //nolint:errcheck // cleanup in error path
		}
	}()

	if err := writeFunc(tmpFile); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("write content: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close() //nolint:errcheck // cleanup in error path
		return fmt.Errorf("sync file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Chmod(tmpPath, s.FilePerm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename to final: %w", err)
	}

	success = true
	return nil
}

// Slugify creates a kebab-case slug from free text, e.g. a topic title
// proposed by the model. Returns fallback when nothing usable remains.
func Slugify(text, fallback string) string {
	s := slugify(strings.ToLower(text))
	s = truncateSlug(s)
	if s == "" {
		return fallback
	}
	return s
}

// slugify replaces non-alphanumeric runs with single hyphens and trims leading/trailing hyphens.
func slugify(input string) string {
	var result strings.Builder
	lastHyphen := false
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			result.WriteRune(r)
			lastHyphen = false
		} else if !lastHyphen {
			result.WriteRune('-')
			lastHyphen = true
		}
	}
	return strings.Trim(result.String(), "-")
}

// truncateSlug limits the slug to SlugMaxLength, preferring word boundaries.
func truncateSlug(s string) string {
	if len(s) <= SlugMaxLength {
		return s
	}
	s = s[:SlugMaxLength]
	if idx := strings.LastIndex(s, "-"); idx > SlugMinWordBoundary {
		s = s[:idx]
	}
	return strings.Trim(s, "-")
}
