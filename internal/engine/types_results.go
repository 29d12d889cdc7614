package engine

import (
	"sort"
	"sync"
	"time"
)

// BackupResult represents the outcome of a backup run.
type BackupResult struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dryRun"`

	// Documents is the number of document files written. On a dry run it is
	// the number of documents listed, including any a real run would report
	// as Missing
	Documents int `json:"documents"`

	// Missing counts listed documents that had no data of their own. Always
	// zero on a dry run
	Missing int `json:"missing"`

	// Skipped counts documents or collections whose ids cannot be used as
	// file names
	Skipped int `json:"skipped"`

	// DroppedFields counts fields left out because their type is unsupported
	DroppedFields int `json:"droppedFields"`

	// Paths lists the store paths of the documents written, sorted
	Paths []string `json:"paths"`
}

// RestoreResult represents the outcome of a restore run.
type RestoreResult struct {
	RunID     string        `json:"runId"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dryRun"`

	// Documents is the number of documents written (or, on a dry run,
	// decoded)
	Documents int `json:"documents"`

	// Skipped counts files in the tree that do not map to a document
	Skipped int `json:"skipped"`

	// DroppedFields counts fields left out while decoding
	DroppedFields int `json:"droppedFields"`

	// Paths lists the store paths of the documents written, sorted
	Paths []string `json:"paths"`
}

// tally collects per-document outcomes from concurrent work items.
type tally struct {
	mu      sync.Mutex
	paths   []string
	missing int
	dropped int
}

func (t *tally) done(path string, dropped int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paths = append(t.paths, path)
	t.dropped += dropped
}

func (t *tally) miss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.missing++
}

func (t *tally) sortedPaths() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string{}, t.paths...)
	sort.Strings(out)
	return out
}
