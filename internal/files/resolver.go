// Package files resolves client-supplied file names against the watched root.
//
// Names are root-relative slash paths. A bare base name that does not exist at
// the root is looked up across the whole tree, because the change feed only
// reports base names. Anything that resolves outside the root, directly or via
// a symlink, is rejected with domain.ErrPathOutsideRoot.
package files

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/brianly1003/changefeed/internal/domain"
)

// Resolver maps file names to files beneath a single root directory.
type Resolver struct {
	root string
}

// NewResolver creates a resolver for root. root should be absolute.
func NewResolver(root string) *Resolver {
	return &Resolver{root: filepath.Clean(root)}
}

// Root returns the root directory.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the real path of the regular file that name designates.
func (r *Resolver) Resolve(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	realRoot := r.root
	if resolved, err := filepath.EvalSymlinks(r.root); err == nil {
		realRoot = resolved
	}

	realPath, err := filepath.EvalSymlinks(filepath.Join(r.root, clean))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
		}
		if strings.ContainsRune(clean, filepath.Separator) {
			return "", domain.ErrFileNotFound
		}
		return r.search(realRoot, clean)
	}

	if !within(realRoot, realPath) {
		return "", domain.ErrPathOutsideRoot
	}

	info, err := os.Stat(realPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}
	if !info.Mode().IsRegular() {
		return "", domain.ErrFileNotFound
	}
	return realPath, nil
}

// Open resolves name and opens the file for reading.
func (r *Resolver) Open(name string) (*os.File, fs.FileInfo, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}
	return f, info, nil
}

// search walks the tree for regular files whose base name is name.
func (r *Resolver) search(realRoot, name string) (string, error) {
	var matches []string

	err := filepath.WalkDir(realRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip entries we can't access
		}
		if d.Type().IsRegular() && d.Name() == name {
			matches = append(matches, path)
			if len(matches) > 1 {
				return filepath.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrFileNotFound, err)
	}

	switch len(matches) {
	case 0:
		return "", domain.ErrFileNotFound
	case 1:
		return matches[0], nil
	default:
		return "", domain.ErrAmbiguousName
	}
}

// cleanName validates a client-supplied name and returns it as a clean,
// OS-specific relative path.
func cleanName(name string) (string, error) {
	if name == "" || strings.ContainsRune(name, 0) {
		return "", domain.ErrInvalidFilename
	}
	if strings.HasPrefix(name, "/") || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", domain.ErrPathOutsideRoot
	}

	clean := filepath.Clean(filepath.FromSlash(name))
	if clean == "." {
		return "", domain.ErrInvalidFilename
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", domain.ErrPathOutsideRoot
	}
	return clean, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
