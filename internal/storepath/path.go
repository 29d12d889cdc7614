// Package storepath translates between hierarchical store paths and the
// filesystem layout of a backup.
//
// A store path alternates collection and document ids. An odd number of
// segments addresses a collection, an even (non-zero) number addresses a
// document, and the empty path is the database root.
//
// On disk every document is a directory named after its id, holding the
// document body in <id>.json next to its sub-collection directories:
//
//	<root>/users/jon/jon.json
//	<root>/users/jon/posts/p1/p1.json
package storepath

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for paths with empty, dot or separator-bearing segments.
var ErrInvalidPath = errors.New("invalid store path")

// DocumentFileExt is the extension of a document body file.
const DocumentFileExt = ".json"

// Path is an ordered list of alternating collection/document ids.
type Path []string

// Root is the empty path addressing the whole database.
var Root Path

// Parse normalizes leading and trailing separators and splits raw into segments.
// The empty string (or "/") parses to Root.
func Parse(raw string) (Path, error) {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return Root, nil
	}

	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if err := ValidateSegment(seg); err != nil {
			return nil, fmt.Errorf("%q: %w", raw, err)
		}
	}
	return Path(segments), nil
}

// ValidateSegment checks that a single collection or document id can be used
// both as a store id and as a directory name.
func ValidateSegment(seg string) error {
	if seg == "" {
		return fmt.Errorf("%w: empty segment", ErrInvalidPath)
	}
	if strings.ContainsAny(seg, `/\`) || strings.ContainsRune(seg, filepath.Separator) {
		return fmt.Errorf("%w: segment %q contains a path separator", ErrInvalidPath, seg)
	}
	if seg == "." || seg == ".." {
		return fmt.Errorf("%w: segment %q is not allowed", ErrInvalidPath, seg)
	}
	return nil
}

// IsRoot reports whether p addresses the database root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// IsDocument reports whether p addresses a document.
func (p Path) IsDocument() bool {
	return len(p) > 0 && len(p)%2 == 0
}

// IsCollection reports whether p addresses a collection.
func (p Path) IsCollection() bool {
	return len(p)%2 == 1
}

// ID returns the last segment, or "" for the root.
func (p Path) ID() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns a new path with id appended. p is never modified.
func (p Path) Child(id string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, id)
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Root
	}
	return p[:len(p)-1:len(p)-1]
}

// CollectionIDs returns the collection segments of p, outermost first.
func (p Path) CollectionIDs() []string {
	ids := make([]string, 0, (len(p)+1)/2)
	for i := 0; i < len(p); i += 2 {
		ids = append(ids, p[i])
	}
	return ids
}

// HasPrefix reports whether prefix is an ancestor of (or equal to) p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

// String joins the segments with "/".
func (p Path) String() string {
	return strings.Join(p, "/")
}

// ToFilesystem returns the directory for p under root.
func ToFilesystem(p Path, root string) string {
	return filepath.Join(append([]string{root}, p...)...)
}

// FromFilesystem is the inverse of ToFilesystem. fsPath must be root itself or
// lie below it.
func FromFilesystem(fsPath, root string) (Path, error) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(fsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to compute path of %q relative to %q: %w", fsPath, root, err)
	}
	if rel == "." {
		return Root, nil
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: %q is outside of %q", ErrInvalidPath, fsPath, root)
	}

	segments := strings.Split(rel, string(filepath.Separator))
	for _, seg := range segments {
		if err := ValidateSegment(seg); err != nil {
			return nil, err
		}
	}
	return Path(segments), nil
}

// DocumentFile returns the file holding the body of document p under root.
func DocumentFile(p Path, root string) string {
	return filepath.Join(ToFilesystem(p, root), p.ID()+DocumentFileExt)
}

// FromDocumentFile derives the document path from a body file written by
// DocumentFile. The file's directory, not its name, decides the path.
func FromDocumentFile(file, root string) (Path, error) {
	p, err := FromFilesystem(filepath.Dir(file), root)
	if err != nil {
		return nil, err
	}
	if !p.IsDocument() {
		return nil, fmt.Errorf("%w: %q is not inside a document directory", ErrInvalidPath, file)
	}
	return p, nil
}
