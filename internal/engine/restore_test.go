package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/docstore/memstore"
	"github.com/danieljhkim/docsnap/internal/fsops"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// TestRestore_SetsDecodedDocument verifies that one backup file results in
// exactly one Set call with native values.
func TestRestore_SetsDecodedDocument(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/jon/jon.json",
		`{"name":{"type":"string","value":"Jon"},"age":{"type":"number","value":26}}`)

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	result, err := eng.Restore(context.Background(), &RestoreRequest{
		BackupPath:        root,
		RequestCountLimit: 1,
	})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	want := []memstore.SetCall{{
		Path: mustPath(t, "users/jon"),
		Data: map[string]any{"name": "Jon", "age": int64(26)},
	}}
	if diff := cmp.Diff(want, dest.SetCalls()); diff != "" {
		t.Errorf("Set calls mismatch (-want +got):\n%s", diff)
	}

	wantResult := &RestoreResult{
		RunID:     "run-1",
		StartedAt: testStart,
		Documents: 1,
		Paths:     []string{"users/jon"},
	}
	if diff := cmp.Diff(wantResult, result); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore_EmptyDocumentIsSet(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "settings/empty/empty.json", "{}\n")

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	if _, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	want := []memstore.SetCall{{Path: mustPath(t, "settings/empty"), Data: map[string]any{}}}
	if diff := cmp.Diff(want, dest.SetCalls()); diff != "" {
		t.Errorf("Set calls mismatch (-want +got):\n%s", diff)
	}
}

func TestRestore_ScopeAndExclusion(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{
		"users/jon/jon.json",
		"users/jon/posts/p1/p1.json",
		"users/jon/sessions/s1/s1.json",
		"users/amy/amy.json",
		"audit/a1/a1.json",
	} {
		writeFile(t, root, rel, "{}")
	}

	tests := []struct {
		name    string
		start   string
		exclude []string
		want    []string
	}{
		{
			name: "everything",
			want: []string{"audit/a1", "users/amy", "users/jon", "users/jon/posts/p1", "users/jon/sessions/s1"},
		},
		{
			name:    "excluded at depth",
			exclude: []string{"sessions", "audit"},
			want:    []string{"users/amy", "users/jon", "users/jon/posts/p1"},
		},
		{
			name:  "document scope",
			start: "users/jon",
			want:  []string{"users/jon", "users/jon/posts/p1", "users/jon/sessions/s1"},
		},
		{
			name:    "document scope with exclusion",
			start:   "/users/jon",
			exclude: []string{"posts"},
			want:    []string{"users/jon", "users/jon/sessions/s1"},
		},
		{
			name:  "collection scope",
			start: "users/jon/posts",
			want:  []string{"users/jon/posts/p1"},
		},
		{
			name:  "scope with nothing in it",
			start: "groups",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := memstore.New()
			eng, _ := newTestEngine(dest, fsops.NewRealFS())
			result, err := eng.Restore(context.Background(), &RestoreRequest{
				BackupPath:         root,
				StartPath:          tt.start,
				ExcludeCollections: tt.exclude,
				RequestCountLimit:  2,
			})
			if err != nil {
				t.Fatalf("Restore failed: %v", err)
			}
			if diff := cmp.Diff(tt.want, result.Paths); diff != "" {
				t.Errorf("paths mismatch (-want +got):\n%s", diff)
			}
			if len(dest.SetCalls()) != len(tt.want) {
				t.Errorf("Set called %d times, want %d", len(dest.SetCalls()), len(tt.want))
			}
		})
	}
}

// TestRestore_IgnoresStrayFiles verifies which files in the tree are taken as
// documents.
func TestRestore_IgnoresStrayFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/jon/jon.json", "{}")
	writeFile(t, root, "users/jon/notes.txt", "not a document")
	writeFile(t, root, "users/jon/"+fsops.TempPrefix+"123", "{")
	writeFile(t, root, "users/jon/copy.json", "{}")
	writeFile(t, root, "stray.json", "{}")
	writeFile(t, root, "users/loose.json", "{}")

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	result, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if diff := cmp.Diff([]string{"users/jon"}, result.Paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
	if result.Skipped != 3 {
		t.Errorf("Skipped = %d, want 3 (copy.json, stray.json, loose.json)", result.Skipped)
	}
	if got := testutil.ToFloat64(eng.Metrics().documents.WithLabelValues(OpRestore, OutcomeSkipped)); got != 3 {
		t.Errorf("skipped metric = %v, want 3", got)
	}
}

// TestRestore_BindsReferencesToDestination verifies that a reference read
// from a backup points at the destination store.
func TestRestore_BindsReferencesToDestination(t *testing.T) {
	source := memstore.New()
	amy, err := source.Ref(mustPath(t, "users/amy"))
	if err != nil {
		t.Fatal(err)
	}
	when := time.Date(2023, 7, 14, 9, 30, 0, 123000000, time.UTC)
	source.Put(mustPath(t, "users/jon"), map[string]any{
		"friend": amy,
		"seen":   when,
		"home":   docstore.GeoPoint{Latitude: 51.5, Longitude: -0.12},
		"tags":   []any{"a", int64(2), true},
	})
	root := t.TempDir()

	srcEng, _ := newTestEngine(source, fsops.NewRealFS())
	if _, err := srcEng.Backup(context.Background(), &BackupRequest{BackupPath: root}); err != nil {
		t.Fatalf("Backup failed: %v", err)
	}

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	if _, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root}); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	calls := dest.SetCalls()
	if len(calls) != 1 {
		t.Fatalf("Set called %d times, want 1", len(calls))
	}
	want := map[string]any{
		"friend": memstore.Ref{Owner: dest, DocPath: "users/amy"},
		"seen":   when,
		"home":   docstore.GeoPoint{Latitude: 51.5, Longitude: -0.12},
		"tags":   []any{"a", int64(2), true},
	}
	refComparer := cmp.Comparer(func(a, b memstore.Ref) bool { return a == b })
	if diff := cmp.Diff(want, calls[0].Data, refComparer); diff != "" {
		t.Errorf("restored data mismatch (-want +got):\n%s", diff)
	}
}

// TestRestore_SetFailureStopsRun verifies fail-fast behaviour with a
// sequential limit.
func TestRestore_SetFailureStopsRun(t *testing.T) {
	root := t.TempDir()
	for i := 1; i <= 5; i++ {
		writeFile(t, root, fmt.Sprintf("items/d%d/d%d.json", i, i), "{}")
	}

	dest := memstore.New()
	dest.FailSet = func(doc storepath.Path) error {
		if doc.ID() == "d2" {
			return errBoom
		}
		return nil
	}

	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	_, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root, RequestCountLimit: 1})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Restore error = %v, want boom", err)
	}

	calls := dest.SetCalls()
	if len(calls) != 1 || calls[0].Path.String() != "items/d1" {
		t.Errorf("Set calls = %v, want only items/d1", calls)
	}
}

func TestRestore_InvalidBackupFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/jon/jon.json", "not json")

	eng, _ := newTestEngine(memstore.New(), fsops.NewRealFS())
	_, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root})
	if !errors.Is(err, ErrInvalidBackup) {
		t.Errorf("Restore error = %v, want ErrInvalidBackup", err)
	}
}

func TestRestore_MissingBackupPath(t *testing.T) {
	eng, _ := newTestEngine(memstore.New(), fsops.NewRealFS())
	if _, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: t.TempDir() + "/nope"}); err == nil {
		t.Error("Restore should fail when the backup path does not exist")
	}
}

func TestRestore_DryRunSetsNothing(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/jon/jon.json", `{"name":{"type":"string","value":"Jon"}}`)

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	result, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root, DryRun: true})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if len(dest.SetCalls()) != 0 {
		t.Errorf("dry run called Set %d times", len(dest.SetCalls()))
	}
	if result.Documents != 1 {
		t.Errorf("Documents = %d, want 1", result.Documents)
	}
}

func TestRestore_DropsUndecodableFields(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "users/jon/jon.json",
		`{"name":{"type":"string","value":"Jon"},"blob":{"type":"bytes","value":"iVBO"}}`)

	dest := memstore.New()
	eng, _ := newTestEngine(dest, fsops.NewRealFS())
	result, err := eng.Restore(context.Background(), &RestoreRequest{BackupPath: root})
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if result.DroppedFields != 1 {
		t.Errorf("DroppedFields = %d, want 1", result.DroppedFields)
	}
	want := []memstore.SetCall{{Path: mustPath(t, "users/jon"), Data: map[string]any{"name": "Jon"}}}
	if diff := cmp.Diff(want, dest.SetCalls()); diff != "" {
		t.Errorf("Set calls mismatch (-want +got):\n%s", diff)
	}
}
