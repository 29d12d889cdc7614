package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danieljhkim/docsnap/internal/docstore/memstore"
	"github.com/danieljhkim/docsnap/internal/fsops"
)

// TestBackup_WritesTaggedDocument verifies that a single document is written
// as a tagged JSON file inside its own document directory.
func TestBackup_WritesTaggedDocument(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "users/jon"), map[string]any{"name": "Jon", "age": 26})
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	result, err := eng.Backup(context.Background(), &BackupRequest{
		BackupPath:        root,
		RequestCountLimit: 1,
	})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	want := `{"age":{"type":"number","value":26},"name":{"type":"string","value":"Jon"}}` + "\n"
	if got := readFile(t, root, "users/jon/jon.json"); got != want {
		t.Errorf("file content = %s, want %s", got, want)
	}

	wantResult := &BackupResult{
		RunID:     "run-1",
		StartedAt: testStart,
		Documents: 1,
		Paths:     []string{"users/jon"},
	}
	if diff := cmp.Diff(wantResult, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestBackup_EmptyDocumentStillWritten(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "settings/empty"), map[string]any{})
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	if _, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root, RequestCountLimit: 1}); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if got := readFile(t, root, "settings/empty/empty.json"); got != "{}\n" {
		t.Errorf("file content = %q, want {}", got)
	}
}

func TestBackup_PrettyPrint(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "users/jon"), map[string]any{"name": "Jon"})
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	if _, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root, PrettyPrint: true}); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	want := "{\n  \"name\": {\n    \"type\": \"string\",\n    \"value\": \"Jon\"\n  }\n}\n"
	if got := readFile(t, root, "users/jon/jon.json"); got != want {
		t.Errorf("file content = %q, want %q", got, want)
	}
}

// TestBackup_ExcludesCollectionsAtEveryDepth verifies that an excluded id is
// skipped both at the top level and inside sub-collections.
func TestBackup_ExcludesCollectionsAtEveryDepth(t *testing.T) {
	store := memstore.New()
	for _, p := range []string{
		"users/jon",
		"users/jon/sessions/s1",
		"users/jon/posts/p1",
		"users/jon/posts/p1/sessions/s9",
		"sessions/top",
		"posts/p2",
		"posts/p2/sessions/s2",
	} {
		store.Put(mustPath(t, p), map[string]any{"id": p})
	}
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	result, err := eng.Backup(context.Background(), &BackupRequest{
		BackupPath:         root,
		ExcludeCollections: []string{"sessions"},
		RequestCountLimit:  3,
	})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	want := []string{"posts/p2", "users/jon", "users/jon/posts/p1"}
	if diff := cmp.Diff(want, result.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	for _, rel := range []string{"sessions", "users/jon/sessions", "posts/p2/sessions", "users/jon/posts/p1/sessions"} {
		if fileExists(root, rel) {
			t.Errorf("excluded collection %s was written", rel)
		}
	}
}

func TestBackup_StartPath(t *testing.T) {
	store := memstore.New()
	for _, p := range []string{"users/jon", "users/jon/posts/p1", "users/amy", "audit/a1"} {
		store.Put(mustPath(t, p), map[string]any{"id": p})
	}

	tests := []struct {
		name    string
		start   string
		exclude []string
		want    []string
	}{
		{
			name:  "root",
			start: "",
			want:  []string{"audit/a1", "users/amy", "users/jon", "users/jon/posts/p1"},
		},
		{
			name:  "collection with leading slash",
			start: "/users",
			want:  []string{"users/amy", "users/jon", "users/jon/posts/p1"},
		},
		{
			name:  "document",
			start: "users/jon",
			want:  []string{"users/jon", "users/jon/posts/p1"},
		},
		{
			name:  "sub-collection",
			start: "users/jon/posts",
			want:  []string{"users/jon/posts/p1"},
		},
		{
			name:    "start inside an excluded collection",
			start:   "users/jon/posts",
			exclude: []string{"users"},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newTestEngine(store, fsops.NewRealFS())
			result, err := eng.Backup(context.Background(), &BackupRequest{
				BackupPath:         t.TempDir(),
				StartPath:          tt.start,
				ExcludeCollections: tt.exclude,
			})
			if err != nil {
				t.Fatalf("Backup failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, result.Paths); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBackup_InvalidStartPath(t *testing.T) {
	eng, _ := newTestEngine(memstore.New(), fsops.NewRealFS())
	_, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: t.TempDir(), StartPath: "users//jon"})
	if !errors.Is(err, ErrInvalidStartPath) {
		t.Errorf("Backup error = %v, want ErrInvalidStartPath", err)
	}
}

// TestBackup_DocumentWithoutDataIsWalked verifies that a document that only
// owns sub-collections produces no file of its own but its children do.
func TestBackup_DocumentWithoutDataIsWalked(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "users/ghost/posts/p1"), map[string]any{"title": "hi"})
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	result, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if result.Missing != 1 || result.Documents != 1 {
		t.Errorf("Missing = %d, Documents = %d, want 1 and 1", result.Missing, result.Documents)
	}
	if fileExists(root, "users/ghost/ghost.json") {
		t.Error("a document without data should not produce a file")
	}
	if !fileExists(root, "users/ghost/posts/p1/p1.json") {
		t.Error("the sub-collection document should be written")
	}
}

func TestBackup_DroppedFieldsCounted(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "files/f1"), map[string]any{
		"name": "logo",
		"blob": []byte{0x89, 0x50},
	})
	root := t.TempDir()

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	result, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	if result.DroppedFields != 1 {
		t.Errorf("DroppedFields = %d, want 1", result.DroppedFields)
	}
	want := `{"name":{"type":"string","value":"logo"}}` + "\n"
	if got := readFile(t, root, "files/f1/f1.json"); got != want {
		t.Errorf("file content = %s, want %s", got, want)
	}
	if got := testutil.ToFloat64(eng.Metrics().dropped.WithLabelValues(OpBackup)); got != 1 {
		t.Errorf("dropped fields metric = %v, want 1", got)
	}
}

func TestBackup_DryRunWritesNothing(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "users/jon"), map[string]any{"name": "Jon"})
	store.Put(mustPath(t, "users/ghost/posts/p1"), map[string]any{"title": "hi"})
	root := filepath.Join(t.TempDir(), "out")

	eng, _ := newTestEngine(store, fsops.NewRealFS())
	result, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root, DryRun: true})
	if err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	// users/ghost has no data but is listed, so it counts without a read.
	if !result.DryRun || result.Documents != 3 || result.Missing != 0 {
		t.Errorf("DryRun = %v, Documents = %d, Missing = %d; want true, 3, 0",
			result.DryRun, result.Documents, result.Missing)
	}
	if diff := cmp.Diff([]string{"users/ghost", "users/ghost/posts/p1", "users/jon"}, result.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if fileExists(root, "") {
		t.Error("dry run should not create the backup directory")
	}
}

// TestBackup_ConcurrencyBound verifies that no more than three documents are
// read at once, whatever limit is requested.
func TestBackup_ConcurrencyBound(t *testing.T) {
	inner := memstore.New()
	for i := 0; i < 12; i++ {
		inner.Put(mustPath(t, fmt.Sprintf("items/i%02d", i)), map[string]any{"n": i})
	}

	for _, limit := range []int{1, 2, 3, 10} {
		t.Run(fmt.Sprintf("limit=%d", limit), func(t *testing.T) {
			store := &slowStore{Store: inner, delay: 3 * time.Millisecond}
			eng, _ := newTestEngine(store, fsops.NewRealFS())

			result, err := eng.Backup(context.Background(), &BackupRequest{
				BackupPath:        t.TempDir(),
				RequestCountLimit: limit,
			})
			if err != nil {
				t.Fatalf("Backup failed: %v", err)
			}
			if result.Documents != 12 {
				t.Fatalf("Documents = %d, want 12", result.Documents)
			}

			bound := min(limit, 3)
			if peak := store.peak.Load(); peak > int64(bound) {
				t.Errorf("peak outstanding reads = %d, want <= %d", peak, bound)
			}
		})
	}
}

// TestBackup_WriteFailureStopsRun verifies fail-fast behaviour with a
// sequential limit: documents before the failure are written, none after.
func TestBackup_WriteFailureStopsRun(t *testing.T) {
	store := memstore.New()
	for i := 1; i <= 10; i++ {
		store.Put(mustPath(t, fmt.Sprintf("items/d%02d", i)), map[string]any{"n": i})
	}
	root := t.TempDir()

	fs := &failingFS{RealFS: fsops.NewRealFS(), match: "d03", err: errBoom}
	eng, _ := newTestEngine(store, fs)

	_, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: root, RequestCountLimit: 1})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Backup error = %v, want boom", err)
	}

	for i := 1; i <= 10; i++ {
		rel := fmt.Sprintf("items/d%02d/d%02d.json", i, i)
		if want := i < 3; fileExists(root, rel) != want {
			t.Errorf("%s exists = %v, want %v", rel, !want, want)
		}
	}

	if got := testutil.ToFloat64(eng.Metrics().documents.WithLabelValues(OpBackup, OutcomeFailed)); got != 1 {
		t.Errorf("failed documents metric = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(eng.Metrics().lastSuccess); got != 0 {
		t.Errorf("last success should not be recorded for a failed run, got %d series", got)
	}
}

func TestBackup_RecordsMetrics(t *testing.T) {
	store := memstore.New()
	store.Put(mustPath(t, "users/jon"), map[string]any{"name": "Jon"})
	store.Put(mustPath(t, "users/amy"), map[string]any{"name": "Amy"})

	eng, clk := newTestEngine(store, fsops.NewRealFS())
	if _, err := eng.Backup(context.Background(), &BackupRequest{BackupPath: t.TempDir()}); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	m := eng.Metrics()
	if got := testutil.ToFloat64(m.documents.WithLabelValues(OpBackup, OutcomeWritten)); got != 2 {
		t.Errorf("written documents metric = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues(OpBackup)); got != float64(clk.Now().Unix()) {
		t.Errorf("last success = %v, want %d", got, clk.Now().Unix())
	}

	path := filepath.Join(t.TempDir(), "docsnap.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}
	text := readFile(t, filepath.Dir(path), filepath.Base(path))
	for _, name := range []string{"docsnap_documents_total", "docsnap_last_run_duration_seconds", "docsnap_last_success_timestamp_seconds"} {
		if !strings.Contains(text, name) {
			t.Errorf("textfile is missing %s", name)
		}
	}
}
