// Package memstore is an in-memory docstore.Store.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// SetCall records one Set invocation.
type SetCall struct {
	Path storepath.Path
	Data map[string]any
}

// Store keeps documents keyed by path. Documents that only own
// sub-collections are listed but have no data.
type Store struct {
	mu       sync.Mutex
	docs     map[string]map[string]any
	children map[string]map[string]bool // parent path -> collection ids
	members  map[string]map[string]bool // collection path -> document ids
	calls    []SetCall

	// FailSet, when set, is returned by Set for matching paths.
	FailSet func(doc storepath.Path) error
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		docs:     make(map[string]map[string]any),
		children: make(map[string]map[string]bool),
		members:  make(map[string]map[string]bool),
	}
}

// Put stores data at doc without recording a Set call. Used to seed fixtures.
func (s *Store) Put(doc storepath.Path, data map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(doc, data)
}

func (s *Store) put(doc storepath.Path, data map[string]any) {
	for i := 0; i < len(doc); i += 2 {
		parent := doc[:i].String()
		coll := doc[:i+1].String()
		if s.children[parent] == nil {
			s.children[parent] = make(map[string]bool)
		}
		s.children[parent][doc[i]] = true
		if s.members[coll] == nil {
			s.members[coll] = make(map[string]bool)
		}
		s.members[coll][doc[i+1]] = true
	}
	s.docs[doc.String()] = copyFields(data)
}

// ListCollections implements docstore.Store.
func (s *Store) ListCollections(_ context.Context, parent storepath.Path) ([]string, error) {
	if !parent.IsRoot() && !parent.IsDocument() {
		return nil, fmt.Errorf("%w: %q is not a document", storepath.ErrInvalidPath, parent)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.children[parent.String()]), nil
}

// ListDocuments implements docstore.Store.
func (s *Store) ListDocuments(_ context.Context, collection storepath.Path) ([]string, error) {
	if !collection.IsCollection() {
		return nil, fmt.Errorf("%w: %q is not a collection", storepath.ErrInvalidPath, collection)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.members[collection.String()]), nil
}

// Get implements docstore.Store.
func (s *Store) Get(_ context.Context, doc storepath.Path) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[doc.String()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", doc, docstore.ErrNotFound)
	}
	return copyFields(data), nil
}

// Set implements docstore.Store.
func (s *Store) Set(_ context.Context, doc storepath.Path, data map[string]any) error {
	if !doc.IsDocument() {
		return fmt.Errorf("%w: %q is not a document", storepath.ErrInvalidPath, doc)
	}
	if s.FailSet != nil {
		if err := s.FailSet(doc); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, SetCall{Path: doc, Data: copyFields(data)})
	s.put(doc, data)
	return nil
}

// Ref implements docstore.Store.
func (s *Store) Ref(doc storepath.Path) (docstore.Ref, error) {
	if !doc.IsDocument() {
		return nil, fmt.Errorf("%w: reference %q does not address a document", storepath.ErrInvalidPath, doc)
	}
	return Ref{Owner: s, DocPath: doc.String()}, nil
}

// SetCalls returns every recorded Set call in order.
func (s *Store) SetCalls() []SetCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SetCall(nil), s.calls...)
}

// Ref is a reference owned by a Store. It is comparable so tests can check
// which store a decoded reference is bound to.
type Ref struct {
	Owner   *Store
	DocPath string
}

// Path implements docstore.Ref.
func (r Ref) Path() storepath.Path {
	p, _ := storepath.Parse(r.DocPath)
	return p
}

func copyFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
