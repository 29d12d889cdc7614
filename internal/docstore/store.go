// Package docstore defines the hierarchical document store that backups are
// taken from and restored into.
//
// Backends translate their client library's native values to the neutral
// types below so that the codec never depends on a particular SDK:
//
//	nil, string, bool, int64 (and other Go integers), float64, time.Time,
//	GeoPoint, Ref, []any, map[string]any
package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/danieljhkim/docsnap/internal/storepath"
)

// ErrNotFound is returned by Get for a document that has no data. Such a
// document may still own sub-collections.
var ErrNotFound = errors.New("document not found")

// Store is the surface of a document database consumed by backup and restore.
type Store interface {
	// ListCollections returns the ids of the collections directly under parent,
	// which is either the root or a document path.
	ListCollections(ctx context.Context, parent storepath.Path) ([]string, error)

	// ListDocuments returns the ids of the documents in a collection.
	ListDocuments(ctx context.Context, collection storepath.Path) ([]string, error)

	// Get returns the fields of a document.
	Get(ctx context.Context, doc storepath.Path) (map[string]any, error)

	// Set replaces the fields of a document.
	Set(ctx context.Context, doc storepath.Path, data map[string]any) error

	// Ref returns a reference to doc owned by this store.
	Ref(doc storepath.Path) (Ref, error)
}

// Ref is a document reference owned by a particular store instance.
type Ref interface {
	Path() storepath.Path
}

// GeoPoint is a geographic coordinate.
type GeoPoint struct {
	Latitude  float64
	Longitude float64
}

// Validate checks that the coordinate is within range.
func (g GeoPoint) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", g.Longitude)
	}
	return nil
}

// WalkRef resolves doc pairwise (collection, then document) using the given
// constructors. Backends share it to build references bound to themselves.
func WalkRef[C, D any](doc storepath.Path, root func(id string) C, collection func(C, string) D, sub func(D, string) C) (D, error) {
	var zero D
	if !doc.IsDocument() {
		return zero, fmt.Errorf("%w: reference %q does not address a document", storepath.ErrInvalidPath, doc)
	}

	var (
		coll C
		ref  D
	)
	for i := 0; i < len(doc); i += 2 {
		if i == 0 {
			coll = root(doc[i])
		} else {
			coll = sub(ref, doc[i])
		}
		ref = collection(coll, doc[i+1])
	}
	return ref, nil
}
