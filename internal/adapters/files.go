package adapters

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"luna/internal/apperr"
)

// well known folders, relative to the home directory
var folders = map[string]string{
	"home":      "",
	"desktop":   "Desktop",
	"documents": "Documents",
	"downloads": "Downloads",
	"music":     "Music",
	"pictures":  "Pictures",
	"photos":    "Pictures",
	"videos":    "Videos",
}

// maxWalkDepth bounds how far below a root the search descends.
const maxWalkDepth = 6

type Files struct {
	home   string
	roots  []string
	run    Runner
	opener string
}

// NewFiles searches below roots, or the home directory when none are
// given, and opens results with xdg-open.
func NewFiles(home string, roots []string, run Runner) *Files {
	if len(roots) == 0 {
		roots = []string{home}
	}
	return &Files{home: home, roots: roots, run: run, opener: "xdg-open"}
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// SearchByName returns up to limit paths whose base name contains query,
// ignoring case. Hidden directories are skipped.
func (f *Files) SearchByName(ctx context.Context, query string, limit int) ([]string, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, apperr.Invalid("empty file query")
	}
	if limit <= 0 {
		limit = 1
	}

	var out []string
	stop := errors.New("stop")
	for _, root := range f.roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				// unreadable entries are not fatal to the search
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			name := d.Name()
			if d.IsDir() {
				if path != root && (strings.HasPrefix(name, ".") || depth(root, path) > maxWalkDepth) {
					return fs.SkipDir
				}
				return nil
			}
			if strings.Contains(strings.ToLower(name), query) {
				out = append(out, path)
				if len(out) >= limit {
					return stop
				}
			}
			return nil
		})
		if errors.Is(err, stop) {
			break
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return out, err
		}
	}
	return out, nil
}

func (f *Files) OpenFile(ctx context.Context, path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", apperr.Wrap(apperr.FileAccessDenied, "stat "+path, err).WithSubject(path)
		}
		return "", apperr.FileMissing(path)
	}
	if err := f.run.Start(f.opener, path); err != nil {
		return "", commandErr("open "+path, err)
	}
	return fmt.Sprintf("Opening %s", filepath.Base(path)), nil
}

// FolderPath resolves a spoken folder name: a well known folder, a path
// below home or an absolute path.
func (f *Files) FolderPath(name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	var candidates []string
	if rel, ok := folders[key]; ok {
		candidates = append(candidates, filepath.Join(f.home, rel))
	}
	if filepath.IsAbs(name) {
		candidates = append(candidates, filepath.Clean(name))
	} else {
		candidates = append(candidates, filepath.Join(f.home, name))
		if len(name) > 0 {
			// "Downloads" on disk for "downloads" spoken
			candidates = append(candidates, filepath.Join(f.home, strings.ToUpper(name[:1])+name[1:]))
		}
	}
	for _, c := range candidates {
		if st, err := os.Stat(c); err == nil && st.IsDir() {
			return c, nil
		}
	}
	return "", apperr.FileMissing(name)
}

func (f *Files) OpenFolder(ctx context.Context, name string) (string, error) {
	path, err := f.FolderPath(name)
	if err != nil {
		return "", err
	}
	if err := f.run.Start(f.opener, path); err != nil {
		return "", commandErr("open "+path, err)
	}
	return fmt.Sprintf("Opening %s", filepath.Base(path)), nil
}
