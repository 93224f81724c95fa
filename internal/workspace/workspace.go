// Package workspace provides the single directory all file and
// command effects are confined to. Every path the pipeline touches
// goes through Resolve; nothing outside the root is ever addressed.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// ErrOutsideRoot is returned when a path escapes the workspace root
var ErrOutsideRoot = errors.New("path resolves outside the workspace")

// ErrNotFound is returned for reads and deletes of missing files
var ErrNotFound = errors.New("file not found in workspace")

// ErrExists is returned by Write when the target exists and overwrite
// was not requested
var ErrExists = errors.New("file already exists")

// Workspace is a root-path handle. It is passed explicitly to the
// validator, the executor and the read-only HTTP handlers so tests can
// construct one over a temporary directory.
type Workspace struct {
	root  string
	locks *pathLocks
}

// New opens the workspace rooted at dir. The directory must exist.
func New(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}
	// Pin the root to its real path so containment checks compare
	// like with like when the root itself sits behind a link.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	return &Workspace{root: abs, locks: newPathLocks()}, nil
}

// Root returns the absolute workspace root
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a relative path to an absolute path inside the root.
// Absolute paths, home-directory references and any traversal that
// leaves the root after normalization are rejected. This is the single
// containment check shared by the validator, the executor and the
// workspace HTTP endpoints.
func (w *Workspace) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideRoot)
	}
	if strings.HasPrefix(rel, "~") {
		return "", fmt.Errorf("%w: home-relative path %q", ErrOutsideRoot, rel)
	}
	if filepath.IsAbs(rel) || strings.HasPrefix(filepath.ToSlash(rel), "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrOutsideRoot, rel)
	}

	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	abs := filepath.Join(w.root, clean)

	// Join+Clean already guarantees containment for lexical input;
	// re-check against the root to also catch oddities like a bare "."
	// forming the root itself with a trailing separator appended.
	if !w.contains(abs) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	// Lexical containment says nothing about links. A symlink planted
	// inside the workspace can point anywhere on the host, so resolve
	// the deepest existing part of the target and check again.
	resolved, err := resolveExisting(abs)
	if err != nil || !w.contains(resolved) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}
	return resolved, nil
}

func (w *Workspace) contains(abs string) bool {
	return abs == w.root || strings.HasPrefix(abs, w.root+string(filepath.Separator))
}

// resolveExisting resolves symlinks in the deepest existing ancestor
// of path and rejoins the not-yet-created remainder. A link that
// exists but resolves nowhere is an error: writing through it would
// create the link's target instead of the named file.
func resolveExisting(path string) (string, error) {
	var suffix []string
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(append([]string{resolved}, suffix...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if _, lerr := os.Lstat(cur); lerr == nil {
			return "", fmt.Errorf("broken link at %s", cur)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}
}

// Contains reports whether rel stays inside the workspace
func (w *Workspace) Contains(rel string) bool {
	_, err := w.Resolve(rel)
	return err == nil
}

// Read returns the content of a workspace file
func (w *Workspace) Read(rel string) (string, error) {
	abs, err := w.Resolve(rel)
	if err != nil {
		return "", err
	}
	w.locks.lock(abs)
	defer w.locks.unlock(abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", err
	}
	return string(data), nil
}

// Write creates or replaces a workspace file, creating parent
// directories as needed. With overwrite false an existing target is an
// error, not a silent skip.
func (w *Workspace) Write(rel, content string, overwrite bool) error {
	abs, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	w.locks.lock(abs)
	defer w.locks.unlock(abs)

	if !overwrite {
		if _, err := os.Stat(abs); err == nil {
			return fmt.Errorf("%w: %s", ErrExists, rel)
		}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, []byte(content), 0o644)
}

// Exists reports whether a workspace file exists
func (w *Workspace) Exists(rel string) bool {
	abs, err := w.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Delete removes a single file. Directories are never removed, so a
// delete can never cascade.
func (w *Workspace) Delete(rel string) error {
	abs, err := w.Resolve(rel)
	if err != nil {
		return err
	}
	w.locks.lock(abs)
	defer w.locks.unlock(abs)

	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("refusing to delete directory %s", rel)
	}
	return os.Remove(abs)
}

// FileInfo describes one workspace file in the listing
type FileInfo struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	SizeHuman string    `json:"size_human"`
	ModTime   time.Time `json:"mod_time"`
}

// List walks the workspace and returns every regular file, sorted by
// path
func (w *Workspace) List() ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			SizeHuman: humanize.Bytes(uint64(info.Size())),
			ModTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// TotalSize sums the size of all workspace files
func (w *Workspace) TotalSize() (int64, error) {
	files, err := w.List()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return total, nil
}
