// Package codec converts store documents to and from a type-tagged form that
// survives a trip through plain JSON.
//
// Every field is stored as {"type": <tag>, "value": <payload>}. The payload
// shape is fixed by the tag, which is modelled as a closed sum type: each
// Payload implementation corresponds to exactly one TypeTag.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType marks a value or tag outside the closed type set.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrUnboundReference marks a reference decoded without a destination store.
	ErrUnboundReference = errors.New("reference without a bound store")

	// ErrInvalidPayload marks a known tag whose payload has the wrong shape.
	ErrInvalidPayload = errors.New("invalid payload")
)

// TypeTag names the type of a tagged field.
type TypeTag string

const (
	TagString    TypeTag = "string"
	TagNumber    TypeTag = "number"
	TagBoolean   TypeTag = "boolean"
	TagNull      TypeTag = "null"
	TagArray     TypeTag = "array"
	TagObject    TypeTag = "object"
	TagTimestamp TypeTag = "timestamp"
	TagGeoPoint  TypeTag = "geopoint"
	TagReference TypeTag = "reference"

	// tagDate is written by older backups for timestamps.
	tagDate TypeTag = "date"
)

// Payload is the value half of a TaggedField. The set of implementations is
// closed; Unsupported carries anything read from disk that does not fit.
type Payload interface {
	Tag() TypeTag
	payload()
}

// String is the payload of a string field.
type String string

// Number is the payload of a number field, kept as its decimal text so that
// integers and floats survive unchanged.
type Number string

// Boolean is the payload of a boolean field.
type Boolean bool

// Null is the payload of a null field.
type Null struct{}

// Array is the payload of an array field.
type Array []TaggedField

// Object is the payload of a nested object field.
type Object TaggedDocument

// Timestamp is the payload of a timestamp field, in RFC 3339 with nanoseconds.
type Timestamp string

// GeoPoint is the payload of a geopoint field.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Reference is the payload of a reference field: the referenced document's
// path segments.
type Reference []string

// Unsupported holds a field whose tag is unknown or whose payload could not
// be parsed. Decoding drops it with a diagnostic.
type Unsupported struct {
	Type   TypeTag
	Raw    json.RawMessage
	Reason error
}

func (String) Tag() TypeTag    { return TagString }
func (Number) Tag() TypeTag    { return TagNumber }
func (Boolean) Tag() TypeTag   { return TagBoolean }
func (Null) Tag() TypeTag      { return TagNull }
func (Array) Tag() TypeTag     { return TagArray }
func (Object) Tag() TypeTag    { return TagObject }
func (Timestamp) Tag() TypeTag { return TagTimestamp }
func (GeoPoint) Tag() TypeTag  { return TagGeoPoint }
func (Reference) Tag() TypeTag { return TagReference }

func (u Unsupported) Tag() TypeTag { return u.Type }

func (String) payload()      {}
func (Number) payload()      {}
func (Boolean) payload()     {}
func (Null) payload()        {}
func (Array) payload()       {}
func (Object) payload()      {}
func (Timestamp) payload()   {}
func (GeoPoint) payload()    {}
func (Reference) payload()   {}
func (Unsupported) payload() {}

// TaggedField is the on-disk form of one document field.
type TaggedField struct {
	Value Payload
}

// Type returns the field's tag.
func (f TaggedField) Type() TypeTag {
	if f.Value == nil {
		return TagNull
	}
	return f.Value.Tag()
}

// TaggedDocument is the on-disk form of a whole document.
type TaggedDocument map[string]TaggedField

// Dropped describes a field left out of an encoded or decoded document.
type Dropped struct {
	// Field is the dotted path of the field, e.g. "address.geo" or "tags[2]".
	Field string
	Err   error
}

func (d Dropped) Error() string {
	return fmt.Sprintf("%s: %v", d.Field, d.Err)
}

func (d Dropped) Unwrap() error {
	return d.Err
}
