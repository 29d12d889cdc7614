package codec

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/juju/loggo/v2"

	"github.com/danieljhkim/docsnap/internal/docstore"
)

var logger = loggo.GetLogger("docsnap.codec")

// Encode converts native document fields to their tagged form. Fields whose
// runtime type is outside the supported set are logged and left out; they are
// returned as Dropped so callers can count them.
func Encode(data map[string]any) (TaggedDocument, []Dropped) {
	var dropped []Dropped
	doc := encodeFields(data, "", &dropped)
	for _, d := range dropped {
		logger.Warningf("dropping field %s while encoding: %v", d.Field, d.Err)
	}
	return doc, dropped
}

// EncodeValue converts a single native value. Nested values that cannot be
// encoded are dropped silently; use Encode to have them reported.
func EncodeValue(v any) (TaggedField, error) {
	var dropped []Dropped
	return encodeValue(v, "", &dropped)
}

func encodeFields(data map[string]any, prefix string, dropped *[]Dropped) TaggedDocument {
	doc := make(TaggedDocument, len(data))
	for key, v := range data {
		field, err := encodeValue(v, joinField(prefix, key), dropped)
		if err != nil {
			*dropped = append(*dropped, Dropped{Field: joinField(prefix, key), Err: err})
			continue
		}
		doc[key] = field
	}
	return doc
}

func encodeValue(v any, path string, dropped *[]Dropped) (TaggedField, error) {
	switch x := v.(type) {
	case nil:
		return TaggedField{Value: Null{}}, nil
	case string:
		return TaggedField{Value: String(x)}, nil
	case bool:
		return TaggedField{Value: Boolean(x)}, nil
	case int:
		return TaggedField{Value: Number(strconv.FormatInt(int64(x), 10))}, nil
	case int64:
		return TaggedField{Value: Number(strconv.FormatInt(x, 10))}, nil
	case int32:
		return TaggedField{Value: Number(strconv.FormatInt(int64(x), 10))}, nil
	case float64:
		return encodeFloat(x, 64)
	case float32:
		return encodeFloat(float64(x), 32)
	case json.Number:
		if _, err := strconv.ParseFloat(string(x), 64); err != nil {
			return TaggedField{}, fmt.Errorf("%w: malformed number %q", ErrInvalidPayload, x)
		}
		return TaggedField{Value: Number(x)}, nil
	case time.Time:
		return encodeTime(x)
	case *time.Time:
		if x == nil {
			return TaggedField{Value: Null{}}, nil
		}
		return encodeTime(*x)
	case docstore.GeoPoint:
		return TaggedField{Value: GeoPoint{Latitude: x.Latitude, Longitude: x.Longitude}}, nil
	case docstore.Ref:
		return TaggedField{Value: Reference(append([]string(nil), x.Path()...))}, nil
	case []any:
		items := make(Array, 0, len(x))
		for i, item := range x {
			items = appendItem(items, item, path, i, dropped)
		}
		return TaggedField{Value: items}, nil
	case map[string]any:
		return TaggedField{Value: Object(encodeFields(x, path, dropped))}, nil
	case []byte:
		return TaggedField{}, fmt.Errorf("%w: bytes", ErrUnsupportedType)
	}
	return encodeReflect(v, path, dropped)
}

// encodeTime writes t as RFC 3339 in UTC. Years outside 0000-9999 have no
// four-digit form and are rejected.
func encodeTime(t time.Time) (TaggedField, error) {
	t = t.UTC()
	if y := t.Year(); y < 0 || y > 9999 {
		return TaggedField{}, fmt.Errorf("%w: timestamp year %d outside 0000-9999", ErrUnsupportedType, y)
	}
	return TaggedField{Value: Timestamp(t.Format(time.RFC3339Nano))}, nil
}

// encodeReflect covers the remaining integer kinds and typed slices/maps such
// as []string or map[string]int.
func encodeReflect(v any, path string, dropped *[]Dropped) (TaggedField, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return TaggedField{Value: Number(strconv.FormatInt(rv.Int(), 10))}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return TaggedField{}, fmt.Errorf("%w: %d overflows int64", ErrUnsupportedType, u)
		}
		return TaggedField{Value: Number(strconv.FormatUint(u, 10))}, nil
	case reflect.Slice, reflect.Array:
		items := make(Array, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items = appendItem(items, rv.Index(i).Interface(), path, i, dropped)
		}
		return TaggedField{Value: items}, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return TaggedField{}, fmt.Errorf("%w: map with %s keys", ErrUnsupportedType, rv.Type().Key())
		}
		fields := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[iter.Key().String()] = iter.Value().Interface()
		}
		return TaggedField{Value: Object(encodeFields(fields, path, dropped))}, nil
	}
	return TaggedField{}, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}

func appendItem(items Array, item any, path string, i int, dropped *[]Dropped) Array {
	itemPath := fmt.Sprintf("%s[%d]", path, i)
	field, err := encodeValue(item, itemPath, dropped)
	if err != nil {
		*dropped = append(*dropped, Dropped{Field: itemPath, Err: err})
		return items
	}
	return append(items, field)
}

// encodeFloat always leaves a fraction or exponent in the text so that the
// value decodes back to a float.
func encodeFloat(f float64, bitSize int) (TaggedField, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return TaggedField{}, fmt.Errorf("%w: %v is not representable", ErrUnsupportedType, f)
	}
	s := strconv.FormatFloat(f, 'g', -1, bitSize)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return TaggedField{Value: Number(s)}, nil
}

func joinField(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
