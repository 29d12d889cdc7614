package integration

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/engine"
	"github.com/danieljhkim/docsnap/internal/fsops"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// memFS is a filesystem that keeps files in memory for testing.
type memFS struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemFS() *memFS {
	return &memFS{
		files: make(map[string][]byte),
		dirs:  map[string]bool{"/": true, ".": true},
	}
}

func (m *memFS) Stat(path string) (os.FileInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if m.dirs[path] {
		return &mockFileInfo{name: filepath.Base(path), isDir: true}, nil
	}
	if data, ok := m.files[path]; ok {
		return &mockFileInfo{name: filepath.Base(path), size: int64(len(data))}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

func (m *memFS) ReadDir(path string) ([]os.DirEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	if !m.dirs[path] {
		return nil, &fs.PathError{Op: "readdir", Path: path, Err: fs.ErrNotExist}
	}

	var entries []os.DirEntry
	for p := range m.dirs {
		if p != path && filepath.Dir(p) == path {
			entries = append(entries, fs.FileInfoToDirEntry(&mockFileInfo{name: filepath.Base(p), isDir: true}))
		}
	}
	for p, data := range m.files {
		if filepath.Dir(p) == path {
			entries = append(entries, fs.FileInfoToDirEntry(&mockFileInfo{name: filepath.Base(p), size: int64(len(data))}))
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	return entries, nil
}

func (m *memFS) MkdirAll(path string, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mkdirAll(filepath.Clean(path))
	return nil
}

func (m *memFS) mkdirAll(path string) {
	for p := path; !m.dirs[p]; p = filepath.Dir(p) {
		m.dirs[p] = true
	}
}

func (m *memFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	path = filepath.Clean(path)
	m.mkdirAll(filepath.Dir(path))
	m.files[path] = append([]byte(nil), data...)
	return nil
}

func (m *memFS) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if content, ok := m.files[filepath.Clean(path)]; ok {
		return append([]byte(nil), content...), nil
	}
	return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
}

func (m *memFS) ValidateIdentifier(id string) error {
	return fsops.NewRealFS().ValidateIdentifier(id)
}

// fileNames returns the stored file paths below root, relative and sorted.
func (m *memFS) fileNames(root string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		if rel, err := filepath.Rel(root, p); err == nil && !strings.HasPrefix(rel, "..") {
			out = append(out, filepath.ToSlash(rel))
		}
	}
	sort.Strings(out)
	return out
}

// mockFileInfo implements os.FileInfo
type mockFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (m *mockFileInfo) Name() string { return m.name }
func (m *mockFileInfo) Size() int64  { return m.size }
func (m *mockFileInfo) Mode() os.FileMode {
	if m.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (m *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

// newEngine creates an engine with a fixed clock over store and fsys.
func newEngine(store docstore.Store, fsys fsops.FS) *engine.Engine {
	return engine.New(store, fsys, testclock.NewClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)), nil)
}

func mustPath(t *testing.T, raw string) storepath.Path {
	t.Helper()
	p, err := storepath.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return p
}

func mustRef(t *testing.T, store docstore.Store, raw string) docstore.Ref {
	t.Helper()
	ref, err := store.Ref(mustPath(t, raw))
	if err != nil {
		t.Fatalf("Ref(%q): %v", raw, err)
	}
	return ref
}
