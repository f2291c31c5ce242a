// Package docvalue converts the document store's tagged-union wire values
// to and from plain Go values.
//
// Every wire value is a JSON object with exactly one key naming its type
// (stringValue, integerValue, mapValue, ...). Value models that wrapper as an
// explicit sum type; Decode is total over the supported kinds and unknown tags
// are rejected during unmarshalling instead of being silently dropped.
package docvalue

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrUnknownValueType is returned when a wire value carries a type tag this package does not know.
	ErrUnknownValueType = errors.New("unknown value type")
	// ErrMalformedValue is returned when a wire value does not have exactly one type tag or its payload is invalid.
	ErrMalformedValue = errors.New("malformed value")
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindInteger
	KindDouble
	KindBoolean
	KindTimestamp
	KindReference
	KindBytes
	KindGeoPoint
	KindArray
	KindMap
)

var kindTags = map[Kind]string{
	KindNull:      "nullValue",
	KindString:    "stringValue",
	KindInteger:   "integerValue",
	KindDouble:    "doubleValue",
	KindBoolean:   "booleanValue",
	KindTimestamp: "timestampValue",
	KindReference: "referenceValue",
	KindBytes:     "bytesValue",
	KindGeoPoint:  "geoPointValue",
	KindArray:     "arrayValue",
	KindMap:       "mapValue",
}

var tagKinds = func() map[string]Kind {
	out := make(map[string]Kind, len(kindTags))
	for k, tag := range kindTags {
		out[tag] = k
	}
	return out
}()

// String returns the wire tag for the kind.
func (k Kind) String() string {
	if tag, ok := kindTags[k]; ok {
		return tag
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Value is a single tagged wire value. The zero Value is a null.
type Value struct {
	kind  Kind
	str   string
	i     int64
	f     float64
	b     bool
	t     time.Time
	raw   []byte
	geo   GeoPoint
	items []Value
	props map[string]Value
}

func Null() Value { return Value{kind: KindNull} }
func String(s string) Value { return Value{kind: KindString, str: s} }
func Integer(i int64) Value { return Value{kind: KindInteger, i: i} }
func Double(f float64) Value { return Value{kind: KindDouble, f: f} }
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }
func Timestamp(t time.Time) Value { return Value{kind: KindTimestamp, t: t.UTC()} }
func Reference(path string) Value { return Value{kind: KindReference, str: path} }
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: append([]byte(nil), b...)} }
func Geo(p GeoPoint) Value { return Value{kind: KindGeoPoint, geo: p} }
func Array(items ...Value) Value { return Value{kind: KindArray, items: items} }
func Map(props map[string]Value) Value { return Value{kind: KindMap, props: props} }

// Strings builds an array of string values.
func Strings(values ...string) Value {
	items := make([]Value, len(values))
	for i, v := range values {
		items[i] = String(v)
	}
	return Array(items...)
}

// Kind reports the variant held by v.
func (v Value) Kind() Kind { return v.kind }

// Items returns the elements of an array value.
func (v Value) Items() []Value { return v.items }

// Fields returns the entries of a map value.
func (v Value) Fields() map[string]Value { return v.props }

// Decode unwraps v into a plain Go value:
//
//	null      -> nil
//	string    -> string
//	integer   -> int64
//	double    -> float64
//	boolean   -> bool
//	timestamp -> time.Time
//	reference -> string (full document path)
//	bytes     -> []byte
//	geoPoint  -> GeoPoint
//	array     -> []any
//	map       -> map[string]any
func Decode(v Value) any {
	switch v.kind {
	case KindString, KindReference:
		return v.str
	case KindInteger:
		return v.i
	case KindDouble:
		return v.f
	case KindBoolean:
		return v.b
	case KindTimestamp:
		return v.t
	case KindBytes:
		return append([]byte(nil), v.raw...)
	case KindGeoPoint:
		return v.geo
	case KindArray:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = Decode(item)
		}
		return out
	case KindMap:
		return DecodeFields(v.props)
	default:
		return nil
	}
}

// DecodeFields decodes every entry of a field map.
func DecodeFields(fields map[string]Value) map[string]any {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		out[name] = Decode(value)
	}
	return out
}

// Encode wraps a plain Go value into its wire representation. It accepts the
// output types of Decode plus the common integer, float, slice and
// string-keyed map types.
func Encode(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case int:
		return Integer(int64(x)), nil
	case int32:
		return Integer(int64(x)), nil
	case int64:
		return Integer(x), nil
	case uint32:
		return Integer(int64(x)), nil
	case float32:
		return Double(float64(x)), nil
	case float64:
		return Double(x), nil
	case time.Time:
		return Timestamp(x), nil
	case []byte:
		return Bytes(x), nil
	case GeoPoint:
		return Geo(x), nil
	case []string:
		return Strings(x...), nil
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			enc, err := Encode(item)
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = enc
		}
		return Array(items...), nil
	case map[string]any:
		props := make(map[string]Value, len(x))
		for k, item := range x {
			enc, err := Encode(item)
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", k, err)
			}
			props[k] = enc
		}
		return Map(props), nil
	}

	rv := reflect.ValueOf(in)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		return Encode(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]Value, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			enc, err := Encode(rv.Index(i).Interface())
			if err != nil {
				return Value{}, fmt.Errorf("index %d: %w", i, err)
			}
			items[i] = enc
		}
		return Array(items...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		props := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			enc, err := Encode(iter.Value().Interface())
			if err != nil {
				return Value{}, fmt.Errorf("field %q: %w", iter.Key().String(), err)
			}
			props[iter.Key().String()] = enc
		}
		return Map(props), nil
	}
	return Value{}, fmt.Errorf("cannot encode %T", in)
}

// MustEncode is Encode for values known to be encodable; it panics otherwise.
func MustEncode(in any) Value {
	v, err := Encode(in)
	if err != nil {
		panic(err)
	}
	return v
}

type arrayPayload struct {
	Values []Value `json:"values,omitempty"`
}

type mapPayload struct {
	Fields map[string]Value `json:"fields,omitempty"`
}

// MarshalJSON encodes v as a single-key wire object.
func (v Value) MarshalJSON() ([]byte, error) {
	var payload any
	switch v.kind {
	case KindNull:
		payload = nil
	case KindString, KindReference:
		payload = v.str
	case KindInteger:
		payload = strconv.FormatInt(v.i, 10)
	case KindDouble:
		switch {
		case math.IsNaN(v.f):
			payload = "NaN"
		case math.IsInf(v.f, 1):
			payload = "Infinity"
		case math.IsInf(v.f, -1):
			payload = "-Infinity"
		default:
			payload = v.f
		}
	case KindBoolean:
		payload = v.b
	case KindTimestamp:
		payload = v.t.Format(time.RFC3339Nano)
	case KindBytes:
		payload = base64.StdEncoding.EncodeToString(v.raw)
	case KindGeoPoint:
		payload = v.geo
	case KindArray:
		payload = arrayPayload{Values: v.items}
	case KindMap:
		payload = mapPayload{Fields: v.props}
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrUnknownValueType, int(v.kind))
	}
	return json.Marshal(map[string]any{v.kind.String(): payload})
}

// UnmarshalJSON decodes a single-key wire object. Objects with zero or
// several keys fail with ErrMalformedValue; an unrecognised key fails with
// ErrUnknownValueType.
func (v *Value) UnmarshalJSON(data []byte) error {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	if len(wrapper) != 1 {
		keys := make([]string, 0, len(wrapper))
		for k := range wrapper {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return fmt.Errorf("%w: expected exactly one type tag, got %v", ErrMalformedValue, keys)
	}

	for tag, raw := range wrapper {
		kind, ok := tagKinds[tag]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownValueType, tag)
		}
		decoded, err := decodePayload(kind, raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedValue, tag, err)
		}
		*v = decoded
	}
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Value, error) {
	switch kind {
	case KindNull:
		return Null(), nil
	case KindString, KindReference:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Value{kind: kind, str: s}, nil
	case KindInteger:
		// Integers travel as decimal strings; tolerate bare numbers too.
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			var n json.Number
			dec := json.NewDecoder(bytes.NewReader(raw))
			dec.UseNumber()
			if err := dec.Decode(&n); err != nil {
				return Value{}, err
			}
			s = n.String()
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Integer(i), nil
	case KindDouble:
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return Double(f), nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		switch s {
		case "NaN":
			return Double(math.NaN()), nil
		case "Infinity":
			return Double(math.Inf(1)), nil
		case "-Infinity":
			return Double(math.Inf(-1)), nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Value{}, err
		}
		return Double(f), nil
	case KindBoolean:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return Value{}, err
		}
		return Bool(b), nil
	case KindTimestamp:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Value{}, err
		}
		return Timestamp(t), nil
	case KindBytes:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return Value{}, err
		}
		return Value{kind: KindBytes, raw: b}, nil
	case KindGeoPoint:
		var p GeoPoint
		if err := json.Unmarshal(raw, &p); err != nil {
			return Value{}, err
		}
		return Geo(p), nil
	case KindArray:
		var p arrayPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Value{}, err
		}
		return Array(p.Values...), nil
	case KindMap:
		var p mapPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Value{}, err
		}
		if p.Fields == nil {
			p.Fields = map[string]Value{}
		}
		return Map(p.Fields), nil
	}
	return Value{}, fmt.Errorf("unsupported kind %d", int(kind))
}
