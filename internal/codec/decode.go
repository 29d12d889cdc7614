package codec

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// RefBinder builds references owned by a destination store.
type RefBinder interface {
	Ref(doc storepath.Path) (docstore.Ref, error)
}

// Decode converts a tagged document back to native fields. References are
// bound to binder; with a nil binder they are dropped. Every dropped field is
// logged and returned.
func Decode(doc TaggedDocument, binder RefBinder) (map[string]any, []Dropped) {
	var dropped []Dropped
	data := decodeFields(doc, binder, "", &dropped)
	for _, d := range dropped {
		logger.Warningf("dropping field %s while decoding: %v", d.Field, d.Err)
	}
	return data, dropped
}

// DecodeField converts a single tagged field. Nested fields that cannot be
// decoded are dropped silently; use Decode to have them reported.
func DecodeField(f TaggedField, binder RefBinder) (any, error) {
	var dropped []Dropped
	return decodeField(f, binder, "", &dropped)
}

func decodeFields(doc TaggedDocument, binder RefBinder, prefix string, dropped *[]Dropped) map[string]any {
	data := make(map[string]any, len(doc))
	for key, field := range doc {
		path := joinField(prefix, key)
		v, err := decodeField(field, binder, path, dropped)
		if err != nil {
			*dropped = append(*dropped, Dropped{Field: path, Err: err})
			continue
		}
		data[key] = v
	}
	return data
}

func decodeField(f TaggedField, binder RefBinder, path string, dropped *[]Dropped) (any, error) {
	switch v := f.Value.(type) {
	case nil, Null:
		return nil, nil
	case String:
		return string(v), nil
	case Number:
		return decodeNumber(v)
	case Boolean:
		return bool(v), nil
	case Timestamp:
		t, err := time.Parse(time.RFC3339Nano, string(v))
		if err != nil {
			return nil, fmt.Errorf("%w: timestamp %q", ErrInvalidPayload, v)
		}
		return t.UTC(), nil
	case GeoPoint:
		gp := docstore.GeoPoint{Latitude: v.Latitude, Longitude: v.Longitude}
		if err := gp.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return gp, nil
	case Reference:
		return decodeReference(v, binder)
	case Array:
		return decodeArray(v, binder, path, dropped), nil
	case Object:
		return decodeFields(TaggedDocument(v), binder, path, dropped), nil
	case Unsupported:
		if v.Reason != nil {
			return nil, v.Reason
		}
		return nil, fmt.Errorf("%w: tag %q", ErrUnsupportedType, v.Type)
	default:
		return nil, fmt.Errorf("%w: payload %T", ErrUnsupportedType, v)
	}
}

// decodeArray decodes items one by one, keeping their order. Items that cannot
// be decoded are dropped; the rest close ranks.
func decodeArray(items Array, binder RefBinder, path string, dropped *[]Dropped) []any {
	out := make([]any, 0, len(items))
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		v, err := decodeField(item, binder, itemPath, dropped)
		if err != nil {
			*dropped = append(*dropped, Dropped{Field: itemPath, Err: err})
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeNumber(n Number) (any, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: number %q", ErrInvalidPayload, s)
	}
	return f, nil
}

func decodeReference(segments Reference, binder RefBinder) (any, error) {
	if binder == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnboundReference, strings.Join(segments, "/"))
	}
	p := storepath.Path(segments)
	for _, seg := range p {
		if err := storepath.ValidateSegment(seg); err != nil {
			return nil, fmt.Errorf("%w: reference %q: %v", ErrInvalidPayload, p, err)
		}
	}
	ref, err := binder.Ref(p)
	if err != nil {
		return nil, fmt.Errorf("%w: reference %q: %v", ErrInvalidPayload, p, err)
	}
	return ref, nil
}
