// Package firestore is the Cloud Firestore docstore.Store.
//
// Set FIRESTORE_EMULATOR_HOST to run against the local emulator; the client
// library picks it up on its own.
package firestore

import (
	"context"
	"fmt"

	firestoreapi "cloud.google.com/go/firestore"
	"github.com/juju/loggo/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

var logger = loggo.GetLogger("docsnap.docstore.firestore")

// Store reads and writes documents through a Firestore client.
type Store struct {
	client *firestoreapi.Client
}

// Open connects with a service account credential blob.
func Open(ctx context.Context, creds *config.Credentials) (*Store, error) {
	projectID, err := creds.ProjectID()
	if err != nil {
		return nil, err
	}
	client, err := firestoreapi.NewClient(ctx, projectID, option.WithCredentialsJSON(creds.JSON()))
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	logger.Debugf("connected to project %s", projectID)
	return New(client), nil
}

// New wraps an existing client.
func New(client *firestoreapi.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// ListCollections implements docstore.Store.
func (s *Store) ListCollections(ctx context.Context, parent storepath.Path) ([]string, error) {
	var it *firestoreapi.CollectionIterator
	if parent.IsRoot() {
		it = s.client.Collections(ctx)
	} else {
		doc, err := s.docRef(parent)
		if err != nil {
			return nil, err
		}
		it = doc.Collections(ctx)
	}

	var ids []string
	for {
		coll, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list collections of %q: %w", parent, err)
		}
		ids = append(ids, coll.ID)
	}
	return ids, nil
}

// ListDocuments implements docstore.Store. Documents that only own
// sub-collections are included.
func (s *Store) ListDocuments(ctx context.Context, collection storepath.Path) ([]string, error) {
	coll, err := s.collectionRef(collection)
	if err != nil {
		return nil, err
	}

	var ids []string
	it := coll.DocumentRefs(ctx)
	for {
		doc, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list documents of %q: %w", collection, err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, doc storepath.Path) (map[string]any, error) {
	ref, err := s.docRef(doc)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if status.Code(err) == codes.NotFound || (err == nil && !snap.Exists()) {
		return nil, fmt.Errorf("%s: %w", doc, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", doc, err)
	}
	return fromNativeFields(snap.Data()), nil
}

// Set implements docstore.Store.
func (s *Store) Set(ctx context.Context, doc storepath.Path, data map[string]any) error {
	ref, err := s.docRef(doc)
	if err != nil {
		return err
	}
	native, err := s.toNativeFields(data)
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", doc, err)
	}
	if _, err := ref.Set(ctx, native); err != nil {
		return fmt.Errorf("failed to set %s: %w", doc, err)
	}
	return nil
}

// Ref implements docstore.Store.
func (s *Store) Ref(doc storepath.Path) (docstore.Ref, error) {
	ref, err := s.docRef(doc)
	if err != nil {
		return nil, err
	}
	return Ref{doc: ref, path: append(storepath.Path(nil), doc...), owner: s.client}, nil
}

func (s *Store) docRef(doc storepath.Path) (*firestoreapi.DocumentRef, error) {
	return docstore.WalkRef(doc,
		s.client.Collection,
		func(c *firestoreapi.CollectionRef, id string) *firestoreapi.DocumentRef { return c.Doc(id) },
		func(d *firestoreapi.DocumentRef, id string) *firestoreapi.CollectionRef { return d.Collection(id) },
	)
}

func (s *Store) collectionRef(collection storepath.Path) (*firestoreapi.CollectionRef, error) {
	if !collection.IsCollection() {
		return nil, fmt.Errorf("%w: %q is not a collection", storepath.ErrInvalidPath, collection)
	}
	if len(collection) == 1 {
		return s.client.Collection(collection[0]), nil
	}
	parent, err := s.docRef(collection.Parent())
	if err != nil {
		return nil, err
	}
	return parent.Collection(collection.ID()), nil
}
