package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Marshal serializes a document. pretty switches to two-space indentation.
func Marshal(doc TaggedDocument, pretty bool) ([]byte, error) {
	if doc == nil {
		doc = TaggedDocument{}
	}

	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(doc, "", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a serialized document. Individual fields that cannot be
// understood become Unsupported payloads rather than failing the document.
func Unmarshal(data []byte) (TaggedDocument, error) {
	var doc TaggedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if doc == nil {
		doc = TaggedDocument{}
	}
	return doc, nil
}

// MarshalJSON writes the {"type", "value"} envelope.
func (f TaggedField) MarshalJSON() ([]byte, error) {
	value := f.Value
	if value == nil {
		value = Null{}
	}
	return json.Marshal(struct {
		Type  TypeTag `json:"type"`
		Value Payload `json:"value"`
	}{value.Tag(), value})
}

// MarshalJSON writes the number text verbatim.
func (n Number) MarshalJSON() ([]byte, error) {
	return json.Marshal(json.Number(n))
}

// MarshalJSON writes null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalJSON writes back whatever was read.
func (u Unsupported) MarshalJSON() ([]byte, error) {
	if len(u.Raw) == 0 {
		return []byte("null"), nil
	}
	return u.Raw, nil
}

// UnmarshalJSON reads the {"type", "value"} envelope, plus the flattened
// object form used by older backups.
func (f *TaggedField) UnmarshalJSON(data []byte) error {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil || env == nil {
		f.Value = Unsupported{Raw: append(json.RawMessage(nil), data...), Reason: fmt.Errorf("%w: field is not a tagged object", ErrInvalidPayload)}
		return nil
	}

	var tag TypeTag
	if rawTag, ok := env["type"]; ok {
		if err := json.Unmarshal(rawTag, &tag); err != nil {
			f.Value = Unsupported{Raw: rawTag, Reason: fmt.Errorf("%w: type is not a string", ErrInvalidPayload)}
			return nil
		}
	}

	if tag == TagObject && isFlattened(env) {
		f.Value = parseFlattenedObject(env)
		return nil
	}
	raw, hasValue := env["value"]
	if !hasValue {
		raw = json.RawMessage("null")
	}
	f.Value = parsePayload(tag, raw)
	return nil
}

// isFlattened reports whether an object field keeps its fields beside "type"
// rather than under "value". A real field named "value" is itself tagged, so
// its own "type" is a string, while an envelope payload holds only tagged
// objects.
func isFlattened(env map[string]json.RawMessage) bool {
	raw, ok := env["value"]
	if !ok || len(env) > 2 {
		return true
	}
	var inner map[string]json.RawMessage
	if json.Unmarshal(raw, &inner) != nil {
		return false
	}
	var tag string
	return json.Unmarshal(inner["type"], &tag) == nil
}

func parsePayload(tag TypeTag, raw json.RawMessage) Payload {
	invalid := func(format string, args ...any) Payload {
		return Unsupported{Type: tag, Raw: raw, Reason: fmt.Errorf("%w: "+format, append([]any{ErrInvalidPayload}, args...)...)}
	}
	null := isNull(raw)

	switch tag {
	case TagString:
		var s string
		if null || json.Unmarshal(raw, &s) != nil {
			return invalid("expected a string")
		}
		return String(s)
	case TagNumber:
		var n json.Number
		if null || json.Unmarshal(raw, &n) != nil {
			return invalid("expected a number")
		}
		return Number(n)
	case TagBoolean:
		var b bool
		if null || json.Unmarshal(raw, &b) != nil {
			return invalid("expected a boolean")
		}
		return Boolean(b)
	case TagNull:
		return Null{}
	case TagArray:
		var items []TaggedField
		if err := json.Unmarshal(raw, &items); err != nil {
			return invalid("expected an array")
		}
		return Array(items)
	case TagObject:
		var fields TaggedDocument
		if err := json.Unmarshal(raw, &fields); err != nil {
			return invalid("expected an object")
		}
		if fields == nil {
			fields = TaggedDocument{}
		}
		return Object(fields)
	case TagTimestamp, tagDate:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return invalid("%v", err)
		}
		return ts
	case TagGeoPoint:
		gp, err := parseGeoPoint(raw)
		if err != nil {
			return invalid("%v", err)
		}
		return gp
	case TagReference:
		ref, err := parseReference(raw)
		if err != nil {
			return invalid("%v", err)
		}
		return ref
	default:
		return Unsupported{Type: tag, Raw: raw, Reason: fmt.Errorf("%w: tag %q", ErrUnsupportedType, tag)}
	}
}

// parseFlattenedObject reads {"type":"object", "a": {...}, "b": {...}}. The
// key "type" is the discriminator, so a real field named "type" cannot be
// recovered from this form.
func parseFlattenedObject(env map[string]json.RawMessage) Payload {
	fields := make(TaggedDocument, len(env))
	for key, raw := range env {
		if key == "type" {
			continue
		}
		var f TaggedField
		_ = f.UnmarshalJSON(raw)
		fields[key] = f
	}
	return Object(fields)
}

func parseTimestamp(raw json.RawMessage) (Timestamp, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return Timestamp(t.UTC().Format(time.RFC3339Nano)), nil
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return timestampFromMillis(ms), nil
		}
		return "", fmt.Errorf("unrecognized timestamp %q", s)
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		ms, err := n.Int64()
		if err != nil {
			return "", fmt.Errorf("unrecognized timestamp %s", n)
		}
		return timestampFromMillis(ms), nil
	}

	// Serialized client timestamps look like {"_seconds": s, "_nanoseconds": ns}.
	var parts struct {
		Seconds     *int64 `json:"_seconds"`
		Nanoseconds int64  `json:"_nanoseconds"`
	}
	if err := json.Unmarshal(raw, &parts); err == nil && parts.Seconds != nil {
		return Timestamp(time.Unix(*parts.Seconds, parts.Nanoseconds).UTC().Format(time.RFC3339Nano)), nil
	}
	return "", fmt.Errorf("expected a timestamp")
}

func timestampFromMillis(ms int64) Timestamp {
	return Timestamp(time.UnixMilli(ms).UTC().Format(time.RFC3339Nano))
}

func parseGeoPoint(raw json.RawMessage) (GeoPoint, error) {
	var v struct {
		Latitude        *float64 `json:"latitude"`
		Longitude       *float64 `json:"longitude"`
		LegacyLatitude  *float64 `json:"_latitude"`
		LegacyLongitude *float64 `json:"_longitude"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return GeoPoint{}, fmt.Errorf("expected a geopoint object")
	}
	lat, lng := v.Latitude, v.Longitude
	if lat == nil {
		lat = v.LegacyLatitude
	}
	if lng == nil {
		lng = v.LegacyLongitude
	}
	if lat == nil || lng == nil {
		return GeoPoint{}, fmt.Errorf("geopoint needs latitude and longitude")
	}
	return GeoPoint{Latitude: *lat, Longitude: *lng}, nil
}

func parseReference(raw json.RawMessage) (Reference, error) {
	var segments []string
	if err := json.Unmarshal(raw, &segments); err == nil && segments != nil {
		return Reference(segments), nil
	}

	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		return Reference(strings.Split(strings.Trim(joined, "/"), "/")), nil
	}

	var obj struct {
		Segments      []string `json:"segments"`
		ReferencePath *struct {
			Segments []string `json:"segments"`
		} `json:"_referencePath"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Segments != nil {
			return Reference(obj.Segments), nil
		}
		if obj.ReferencePath != nil && obj.ReferencePath.Segments != nil {
			return Reference(obj.ReferencePath.Segments), nil
		}
	}
	return nil, fmt.Errorf("expected reference segments")
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
