package engine

// BackupRequest represents a request to copy the store into a file tree.
type BackupRequest struct {
	// BackupPath is the root directory the tree is written under
	BackupPath string

	// StartPath is the store path the walk begins at; empty means the root
	StartPath string

	// ExcludeCollections are collection ids skipped at every depth
	ExcludeCollections []string

	// RequestCountLimit is the requested number of documents in flight;
	// values above 1 are capped
	RequestCountLimit int

	// PrettyPrint indents the written JSON
	PrettyPrint bool

	// DryRun enumerates the documents without reading or writing them.
	// Listed documents without data are counted as documents, since telling
	// them apart takes a read
	DryRun bool
}

// RestoreRequest represents a request to write a file tree back to the store.
type RestoreRequest struct {
	// BackupPath is the root directory of a previous backup
	BackupPath string

	// StartPath limits the restore to documents at or below this path
	StartPath string

	// ExcludeCollections are collection ids skipped at every depth
	ExcludeCollections []string

	// RequestCountLimit is the requested number of documents in flight;
	// values above 1 are capped
	RequestCountLimit int

	// DryRun reads and decodes every file without writing to the store
	DryRun bool
}
