// Package value implements the tagged property value used throughout the
// graph: node and edge properties, query parameters, and RETURN results are
// all a value.Property.
//
// A Property is one of seven variants: Id, Integer, Real, Boolean, Text,
// Blob or Null. Comparisons between properties are deliberately loose -
// Id and Integer compare numerically across variants, Text only compares
// to Text, and Null never equals anything, including another Null.
package value

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Kind identifies which variant a Property holds.
type Kind int

const (
	KindNull Kind = iota
	KindId
	KindInteger
	KindReal
	KindBoolean
	KindText
	KindBlob
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindId:
		return "Id"
	case KindInteger:
		return "Integer"
	case KindReal:
		return "Real"
	case KindBoolean:
		return "Boolean"
	case KindText:
		return "Text"
	case KindBlob:
		return "Blob"
	default:
		return "Unknown"
	}
}

// Property is a tagged union over the value types a node or edge property,
// a query parameter, or a RETURN column can hold. The zero value is Null.
type Property struct {
	kind Kind
	id   uint64
	i    int64
	f    float64
	b    bool
	text string
	blob []byte
}

// Null is the absence of a value. Two Nulls are never equal to each other.
var Null = Property{kind: KindNull}

func Id(v uint64) Property      { return Property{kind: KindId, id: v} }
func Integer(v int64) Property  { return Property{kind: KindInteger, i: v} }
func Real(v float64) Property   { return Property{kind: KindReal, f: v} }
func Boolean(v bool) Property   { return Property{kind: KindBoolean, b: v} }
func Text(v string) Property    { return Property{kind: KindText, text: v} }
func Blob(v []byte) Property    { return Property{kind: KindBlob, blob: append([]byte(nil), v...)} }

func (p Property) Kind() Kind { return p.kind }

func (p Property) AsId() (uint64, bool) {
	if p.kind == KindId {
		return p.id, true
	}
	return 0, false
}

func (p Property) AsInteger() (int64, bool) {
	if p.kind == KindInteger {
		return p.i, true
	}
	return 0, false
}

func (p Property) AsReal() (float64, bool) {
	if p.kind == KindReal {
		return p.f, true
	}
	return 0, false
}

func (p Property) AsBoolean() (bool, bool) {
	if p.kind == KindBoolean {
		return p.b, true
	}
	return false, false
}

func (p Property) AsText() (string, bool) {
	if p.kind == KindText {
		return p.text, true
	}
	return "", false
}

func (p Property) AsBlob() ([]byte, bool) {
	if p.kind == KindBlob {
		return p.blob, true
	}
	return nil, false
}

// IsTruthy implements the loose truthiness used by CheckTrue and boolean
// operators: only Boolean(true) is truthy, every other value - including
// Boolean(false) - is not.
func (p Property) IsTruthy() bool {
	return p.kind == KindBoolean && p.b
}

// CastId implements the numeric-to-identifier cast used when a property
// value is used where a node or edge id is expected: Id(n) casts to n, and
// a non-negative Integer(n) casts to uint64(n). Anything else fails.
func (p Property) CastId() (uint64, bool) {
	switch p.kind {
	case KindId:
		return p.id, true
	case KindInteger:
		if p.i >= 0 {
			return uint64(p.i), true
		}
	}
	return 0, false
}

func numeric(p Property) (float64, bool) {
	switch p.kind {
	case KindId:
		return float64(p.id), true
	case KindInteger:
		return float64(p.i), true
	case KindReal:
		return p.f, true
	default:
		return 0, false
	}
}

// idOrInteger reports whether p is an Id or Integer, and its value as a
// float64 if so. Equal uses this, not numeric, because Id and Integer are
// the only cross-variant pair equality permits: Real compares equal to
// Real only.
func idOrInteger(p Property) (float64, bool) {
	switch p.kind {
	case KindId:
		return float64(p.id), true
	case KindInteger:
		return float64(p.i), true
	default:
		return 0, false
	}
}

// Equal implements loose equality: Id and Integer compare numerically
// against each other and themselves, Real compares to Real only, Boolean
// to Boolean, Text to Text, Blob to Blob byte-for-byte, and Null never
// equals anything, including another Null.
func (p Property) Equal(other Property) bool {
	if p.kind == KindNull || other.kind == KindNull {
		return false
	}
	if pf, ok := idOrInteger(p); ok {
		if of, ok := idOrInteger(other); ok {
			return pf == of
		}
		return false
	}
	if p.kind != other.kind {
		return false
	}
	switch p.kind {
	case KindReal:
		return p.f == other.f
	case KindBoolean:
		return p.b == other.b
	case KindText:
		return p.text == other.text
	case KindBlob:
		return bytes.Equal(p.blob, other.blob)
	default:
		return false
	}
}

// Less implements loose ordering, used by CheckLt/CheckGt: numeric
// variants (Id, Integer, Real) compare against each other numerically,
// Text compares lexicographically against Text, and every other pairing -
// including Boolean, Blob and Null - has no defined order.
func (p Property) Less(other Property) (bool, bool) {
	if pf, ok := numeric(p); ok {
		if of, ok := numeric(other); ok {
			return pf < of, true
		}
		return false, false
	}
	if p.kind == KindText && other.kind == KindText {
		return p.text < other.text, true
	}
	return false, false
}

func (p Property) String() string {
	switch p.kind {
	case KindNull:
		return "null"
	case KindId:
		return fmt.Sprintf("#%d", p.id)
	case KindInteger:
		return fmt.Sprintf("%d", p.i)
	case KindReal:
		return fmt.Sprintf("%g", p.f)
	case KindBoolean:
		return fmt.Sprintf("%t", p.b)
	case KindText:
		return p.text
	case KindBlob:
		return fmt.Sprintf("blob(%d bytes)", len(p.blob))
	default:
		return "?"
	}
}

// gobProperty mirrors Property's fields in exported form so gob can encode
// it; Property keeps its fields unexported to stop callers from
// constructing an invalid variant (e.g. kind=KindText with text unset).
type gobProperty struct {
	Kind Kind
	Id   uint64
	I    int64
	F    float64
	B    bool
	Text string
	Blob []byte
}

// GobEncode implements gob.GobEncoder so Property can be stored as a
// node/edge property value in the store's encoded records.
func (p Property) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(gobProperty{p.kind, p.id, p.i, p.f, p.b, p.text, p.blob})
	return buf.Bytes(), err
}

// GobDecode implements gob.GobDecoder.
func (p *Property) GobDecode(data []byte) error {
	var g gobProperty
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return err
	}
	*p = Property{kind: g.Kind, id: g.Id, i: g.I, f: g.F, b: g.B, text: g.Text, blob: g.Blob}
	return nil
}

// Map is the property bag attached to a node or edge.
type Map map[string]Property

// Clone returns a shallow copy safe for independent mutation of the map
// itself (Blob contents are not re-copied).
func (m Map) Clone() Map {
	if m == nil {
		return nil
	}
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
