package fsops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRealFS_ValidateIdentifier(t *testing.T) {
	fs := &RealFS{}

	tests := []struct {
		name      string
		id        string
		wantError bool
	}{
		{
			name:      "valid simple identifier",
			id:        "users",
			wantError: false,
		},
		{
			name:      "valid with underscores",
			id:        "user_123",
			wantError: false,
		},
		{
			name:      "valid alphanumeric",
			id:        "aJ8kQ2xPz",
			wantError: false,
		},
		{
			name:      "leading dot",
			id:        ".profile",
			wantError: false,
		},
		{
			name:      "empty identifier",
			id:        "",
			wantError: true,
		},
		{
			name:      "current directory",
			id:        ".",
			wantError: true,
		},
		{
			name:      "parent directory",
			id:        "..",
			wantError: true,
		},
		{
			name:      "path with separator",
			id:        "users/jon",
			wantError: true,
		},
		{
			name:      "path with backslash",
			id:        "users\\jon",
			wantError: true,
		},
		{
			name:      "absolute path",
			id:        "/etc/hosts",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := fs.ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantError %v", tt.id, err, tt.wantError)
			}
		})
	}
}

func TestRealFS_MkdirAll(t *testing.T) {
	fs := &RealFS{}

	tmpDir, err := os.MkdirTemp("", "docsnap-fsops-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Run("create nested directories", func(t *testing.T) {
		nestedPath := filepath.Join(tmpDir, "a", "b", "c")
		err := fs.MkdirAll(nestedPath, 0755)
		if err != nil {
			t.Fatalf("MkdirAll failed: %v", err)
		}

		// Verify directory exists
		if _, err := os.Stat(nestedPath); os.IsNotExist(err) {
			t.Error("Nested directory was not created")
		}
	})

	t.Run("idempotent operation", func(t *testing.T) {
		dirPath := filepath.Join(tmpDir, "existing")

		// Create once
		if err := fs.MkdirAll(dirPath, 0755); err != nil {
			t.Fatalf("First MkdirAll failed: %v", err)
		}

		// Create again - should not fail
		if err := fs.MkdirAll(dirPath, 0755); err != nil {
			t.Errorf("Second MkdirAll should not fail: %v", err)
		}
	})
}

func TestRealFS_AtomicWrite(t *testing.T) {
	fs := &RealFS{}

	tmpDir, err := os.MkdirTemp("", "docsnap-fsops-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Run("write to new file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "atomic-new.txt")
		content := []byte("atomic content")

		err := fs.AtomicWrite(testFile, content, 0644)
		if err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}

		// Verify file exists and has correct content
		readContent, err := os.ReadFile(testFile)
		if err != nil {
			t.Fatalf("failed to read written file: %v", err)
		}
		if string(readContent) != string(content) {
			t.Errorf("File content mismatch: got %q, want %q", readContent, content)
		}
	})

	t.Run("overwrite existing file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "atomic-overwrite.txt")

		// Write initial content
		initialContent := []byte("initial")
		if err := os.WriteFile(testFile, initialContent, 0644); err != nil {
			t.Fatalf("failed to create initial file: %v", err)
		}

		// Overwrite with atomic write
		newContent := []byte("overwritten")
		err := fs.AtomicWrite(testFile, newContent, 0644)
		if err != nil {
			t.Fatalf("AtomicWrite failed: %v", err)
		}

		// Verify new content
		readContent, err := os.ReadFile(testFile)
		if err != nil {
			t.Fatalf("failed to read file: %v", err)
		}
		if string(readContent) != string(newContent) {
			t.Errorf("File content not updated: got %q, want %q", readContent, newContent)
		}
	})
}

func TestRealFS_ReadFile(t *testing.T) {
	fs := &RealFS{}

	tmpDir, err := os.MkdirTemp("", "docsnap-fsops-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Run("read existing file", func(t *testing.T) {
		testFile := filepath.Join(tmpDir, "read-test.txt")
		content := []byte("test content")
		if err := os.WriteFile(testFile, content, 0644); err != nil {
			t.Fatalf("failed to create test file: %v", err)
		}

		readContent, err := fs.ReadFile(testFile)
		if err != nil {
			t.Fatalf("ReadFile failed: %v", err)
		}
		if string(readContent) != string(content) {
			t.Errorf("ReadFile content mismatch: got %q, want %q", readContent, content)
		}
	})

	t.Run("read non-existing file", func(t *testing.T) {
		nonExistent := filepath.Join(tmpDir, "does-not-exist.txt")
		_, err := fs.ReadFile(nonExistent)
		if err == nil {
			t.Error("ReadFile should return error for non-existing file")
		}
	})
}

func TestRealFS_AtomicWriteCreatesParents(t *testing.T) {
	fs := &RealFS{}
	root := t.TempDir()

	target := filepath.Join(root, "users", "jon", "jon.json")
	if err := fs.AtomicWrite(target, []byte("{}\n"), 0644); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	entries, err := os.ReadDir(filepath.Dir(target))
	if err != nil {
		t.Fatalf("failed to read directory: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "jon.json" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only jon.json", names)
	}
}

func TestRealFS_AtomicWriteFailureLeavesNoTempFile(t *testing.T) {
	fs := &RealFS{}
	root := t.TempDir()

	// A directory in the way makes the final rename fail.
	target := filepath.Join(root, "blocked")
	if err := os.MkdirAll(filepath.Join(target, "child"), 0755); err != nil {
		t.Fatalf("failed to create blocking directory: %v", err)
	}

	if err := fs.AtomicWrite(target, []byte("data"), 0644); err == nil {
		t.Fatal("AtomicWrite should fail when a directory occupies the target")
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("failed to read directory: %v", err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), TempPrefix) {
			t.Errorf("temp file %s left behind", e.Name())
		}
	}
}
