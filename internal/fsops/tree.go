package fsops

import (
	"fmt"
	"path/filepath"
)

// Node is one entry of a scanned directory tree: either a File or a Dir.
type Node interface {
	// Path is the absolute filesystem path of the entry.
	Path() string
	node()
}

// File is a non-directory entry.
type File struct {
	Name     string
	FullPath string
}

// Dir is a directory entry with its children in name order.
type Dir struct {
	Name     string
	FullPath string
	Children []Node
}

func (f File) Path() string { return f.FullPath }
func (d Dir) Path() string  { return d.FullPath }

func (File) node() {}
func (Dir) node()  {}

// Scan reads the tree rooted at root. root must be a directory.
func Scan(fs FS, root string) (Dir, error) {
	info, err := fs.Stat(root)
	if err != nil {
		return Dir{}, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return Dir{}, fmt.Errorf("%s is not a directory", root)
	}
	return scanDir(fs, filepath.Base(root), root)
}

func scanDir(fs FS, name, path string) (Dir, error) {
	entries, err := fs.ReadDir(path)
	if err != nil {
		return Dir{}, fmt.Errorf("failed to read directory %s: %w", path, err)
	}

	dir := Dir{Name: name, FullPath: path, Children: make([]Node, 0, len(entries))}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		if !entry.IsDir() {
			dir.Children = append(dir.Children, File{Name: entry.Name(), FullPath: child})
			continue
		}
		sub, err := scanDir(fs, entry.Name(), child)
		if err != nil {
			return Dir{}, err
		}
		dir.Children = append(dir.Children, sub)
	}
	return dir, nil
}
