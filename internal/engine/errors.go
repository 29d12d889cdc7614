package engine

import "errors"

var (
	// ErrInvalidStartPath indicates a start path that cannot be parsed.
	ErrInvalidStartPath = errors.New("invalid start path")

	// ErrInvalidBackup indicates a backup file that is not a tagged document.
	ErrInvalidBackup = errors.New("invalid backup file")
)
