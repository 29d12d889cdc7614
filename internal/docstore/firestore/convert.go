package firestore

import (
	firestoreapi "cloud.google.com/go/firestore"
	"google.golang.org/genproto/googleapis/type/latlng"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// Ref is a document reference. Refs made by Store.Ref remember the client
// they belong to; refs read back from documents do not.
type Ref struct {
	doc   *firestoreapi.DocumentRef
	path  storepath.Path
	owner *firestoreapi.Client
}

// Path implements docstore.Ref.
func (r Ref) Path() storepath.Path {
	return r.path
}

// DocumentRef returns the client reference.
func (r Ref) DocumentRef() *firestoreapi.DocumentRef {
	return r.doc
}

// refPath rebuilds the store path of a client reference from its parents.
func refPath(doc *firestoreapi.DocumentRef) storepath.Path {
	var reversed []string
	for d := doc; d != nil; {
		reversed = append(reversed, d.ID)
		if d.Parent == nil {
			break
		}
		reversed = append(reversed, d.Parent.ID)
		d = d.Parent.Parent
	}

	p := make(storepath.Path, len(reversed))
	for i, seg := range reversed {
		p[len(reversed)-1-i] = seg
	}
	return p
}

func fromNativeFields(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = fromNative(v)
	}
	return out
}

// fromNative maps client values to the neutral docstore types.
func fromNative(v any) any {
	switch x := v.(type) {
	case *latlng.LatLng:
		if x == nil {
			return nil
		}
		return docstore.GeoPoint{Latitude: x.GetLatitude(), Longitude: x.GetLongitude()}
	case *firestoreapi.DocumentRef:
		if x == nil {
			return nil
		}
		return Ref{doc: x, path: refPath(x)}
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = fromNative(item)
		}
		return out
	case map[string]any:
		return fromNativeFields(x)
	}
	return v
}

func (s *Store) toNativeFields(data map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(data))
	for k, v := range data {
		n, err := s.toNative(v)
		if err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, nil
}

// toNative maps neutral values to client values. Only references made by this
// store's client are passed through; every other reference is rebuilt against
// it from its path.
func (s *Store) toNative(v any) (any, error) {
	switch x := v.(type) {
	case docstore.GeoPoint:
		return &latlng.LatLng{Latitude: x.Latitude, Longitude: x.Longitude}, nil
	case Ref:
		if x.owner != nil && x.owner == s.client && x.doc != nil {
			return x.doc, nil
		}
		return s.docRef(x.Path())
	case docstore.Ref:
		return s.docRef(x.Path())
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			n, err := s.toNative(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		return s.toNativeFields(x)
	}
	return v, nil
}
