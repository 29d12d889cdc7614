// Package config manages docsnap invocation options, credentials and the
// optional defaults file.
//
// The defaults file lives at ~/.docsnap/config.yaml; the root can be moved
// with the DOCSNAP_ROOT environment variable.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths contains the filesystem paths used by docsnap itself.
type Paths struct {
	// Root is the base directory for docsnap data (default: ~/.docsnap)
	Root string

	// Config is the path to the defaults file
	Config string
}

// DefaultPaths returns the default paths for docsnap.
// Paths can be overridden with environment variables:
// - DOCSNAP_ROOT: Override the root directory
func DefaultPaths() (*Paths, error) {
	root := os.Getenv("DOCSNAP_ROOT")
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		root = filepath.Join(home, ".docsnap")
	}

	return &Paths{
		Root:   root,
		Config: filepath.Join(root, "config.yaml"),
	}, nil
}
