package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/fsops"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

var testStart = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(store docstore.Store, fs fsops.FS) (*Engine, *testclock.Clock) {
	clk := testclock.NewClock(testStart)
	eng := New(store, fs, clk, nil)
	eng.newID = func() string { return "run-1" }
	return eng, clk
}

func mustPath(t *testing.T, raw string) storepath.Path {
	t.Helper()
	p, err := storepath.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q): %v", raw, err)
	}
	return p
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("failed to create %s: %v", filepath.Dir(full), err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", full, err)
	}
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

func fileExists(root, rel string) bool {
	_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
	return err == nil
}

// slowStore delays every Get and tracks how many are outstanding.
type slowStore struct {
	docstore.Store
	delay   time.Duration
	current atomic.Int64
	peak    atomic.Int64
}

func (s *slowStore) Get(ctx context.Context, doc storepath.Path) (map[string]any, error) {
	n := s.current.Add(1)
	defer s.current.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return s.Store.Get(ctx, doc)
}

// failingFS fails AtomicWrite for any path containing match.
type failingFS struct {
	*fsops.RealFS
	match string
	err   error
}

func (f *failingFS) AtomicWrite(path string, data []byte, perm os.FileMode) error {
	if strings.Contains(path, f.match) {
		return f.err
	}
	return f.RealFS.AtomicWrite(path, data, perm)
}

var errBoom = errors.New("boom")
