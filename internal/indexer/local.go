package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// DirSource reads .java files from a local directory tree.
type DirSource struct {
	root string
}

// NewDirSource creates a source rooted at dir. The directory must exist.
func NewDirSource(dir string) (*DirSource, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path %s is not a directory", dir)
	}
	return &DirSource{root: dir}, nil
}

// Name returns the root directory.
func (d *DirSource) Name() string {
	return d.root
}

// Revision is empty for local directories.
func (d *DirSource) Revision(ctx context.Context) (string, error) {
	return "", nil
}

// ListFiles returns slash-separated paths, relative to the root, of every .java file.
func (d *DirSource) ListFiles(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".java") {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", d.root, err)
	}
	return files, nil
}

// ReadFile reads a file by the relative path returned from ListFiles.
func (d *DirSource) ReadFile(ctx context.Context, path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.root, filepath.FromSlash(path)))
}
