// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package dynamic

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// Value is the closed dynamic data-model sum type. Exactly the
// fields relevant to Kind are meaningful; the rest are left zero. A
// single tagged struct (rather than an interface hierarchy) keeps the
// variant set closed and enumerable.
type Value struct {
	Kind Kind

	Bool bool
	I8   int8
	U8   uint8
	I16  int16
	U16  uint16
	I32  int32
	U32  uint32
	I64  int64
	U64  uint64
	// I128/U128 use math/big.Int since Go has no native 128-bit
	// integer type.
	I128 *big.Int
	U128 *big.Int
	// Usize/Isize are carried as the widest native machine ints;
	// postkit never runs on a target where this would truncate a
	// value the wire actually sent (devices send 32/64-bit widths).
	Usize uint64
	Isize int64
	F32   float32
	F64   float64
	Char  rune
	Str   string
	Bytes []byte

	// Option: IsSome false means None; IsSome true means Some(Inner).
	IsSome bool
	Inner  *Value

	// Seq, Tuple, TupleStruct: ordered elements.
	Elements []Value

	// Map: ordered key/value pairs (order is wire order, not sorted).
	Entries []MapEntry

	// Struct, StructVariant: ordered named field values.
	Fields []FieldValue

	// Enum: which variant, and its payload shaped per VariantKind.
	VariantName string
	VariantKind VariantKind

	// UnitStruct, NewtypeStruct, TupleStruct, Struct, Enum: carried
	// through from the schema for error messages.
	TypeName string

	// Schema: a reflexive value embedding a schema node itself.
	SchemaValue *NamedType
}

// MapEntry is one key/value pair of a Map value.
type MapEntry struct {
	Key   Value
	Value Value
}

// FieldValue is one named field of a Struct or StructVariant value.
type FieldValue struct {
	Name  string
	Value Value
}

func Bool(b bool) Value    { return Value{Kind: KindBool, Bool: b} }
func I8(v int8) Value      { return Value{Kind: KindI8, I8: v} }
func U8(v uint8) Value     { return Value{Kind: KindU8, U8: v} }
func I16(v int16) Value    { return Value{Kind: KindI16, I16: v} }
func U16(v uint16) Value   { return Value{Kind: KindU16, U16: v} }
func I32(v int32) Value    { return Value{Kind: KindI32, I32: v} }
func U32(v uint32) Value   { return Value{Kind: KindU32, U32: v} }
func I64(v int64) Value    { return Value{Kind: KindI64, I64: v} }
func U64(v uint64) Value   { return Value{Kind: KindU64, U64: v} }
func F32(v float32) Value  { return Value{Kind: KindF32, F32: v} }
func F64(v float64) Value  { return Value{Kind: KindF64, F64: v} }
func Str(v string) Value   { return Value{Kind: KindString, Str: v} }
func Bytes(v []byte) Value { return Value{Kind: KindByteArray, Bytes: v} }
func Unit() Value          { return Value{Kind: KindUnit} }

func None() Value            { return Value{Kind: KindOption, IsSome: false} }
func Some(inner Value) Value { return Value{Kind: KindOption, IsSome: true, Inner: &inner} }

// AsInterface converts v into a plain Go value (bool, int64-family,
// string, []byte, []interface{}, map[string]interface{}, nil for
// None) suitable for generic marshaling (JSON, CBOR). Enum values
// render as {"variant": name}, plus a "value" key holding the payload
// for newtype, tuple and struct variants. This is a one-way debug/
// interchange projection, not a schema-reversible encoding: decoding
// a dynamic Value back out of it would lose Kind information that
// only the schema tree carries.
func (v Value) AsInterface() interface{} {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindI8:
		return v.I8
	case KindU8:
		return v.U8
	case KindI16:
		return v.I16
	case KindU16:
		return v.U16
	case KindI32:
		return v.I32
	case KindU32:
		return v.U32
	case KindI64:
		return v.I64
	case KindU64:
		return v.U64
	case KindI128, KindU128:
		if v.Kind == KindI128 && v.I128 != nil {
			return v.I128.String()
		}
		if v.U128 != nil {
			return v.U128.String()
		}
		return "0"
	case KindUsize:
		return v.Usize
	case KindIsize:
		return v.Isize
	case KindF32:
		return v.F32
	case KindF64:
		return v.F64
	case KindChar:
		return string(v.Char)
	case KindString:
		return v.Str
	case KindByteArray:
		return v.Bytes
	case KindOption:
		if !v.IsSome {
			return nil
		}
		return v.Inner.AsInterface()
	case KindUnit, KindUnitStruct:
		return nil
	case KindNewtypeStruct:
		if v.Inner == nil {
			return nil
		}
		return v.Inner.AsInterface()
	case KindSeq, KindTuple, KindTupleStruct:
		out := make([]interface{}, len(v.Elements))
		for i, e := range v.Elements {
			out[i] = e.AsInterface()
		}
		return out
	case KindMap:
		out := make(map[string]interface{}, len(v.Entries))
		for _, e := range v.Entries {
			out[fmt.Sprint(e.Key.AsInterface())] = e.Value.AsInterface()
		}
		return out
	case KindStruct:
		out := make(map[string]interface{}, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Name] = f.Value.AsInterface()
		}
		return out
	case KindEnum:
		switch v.VariantKind {
		case VariantUnit:
			return map[string]interface{}{"variant": v.VariantName}
		case VariantNewtype:
			return map[string]interface{}{"variant": v.VariantName, "value": v.Inner.AsInterface()}
		case VariantTuple:
			elems := make([]interface{}, len(v.Elements))
			for i, e := range v.Elements {
				elems[i] = e.AsInterface()
			}
			return map[string]interface{}{"variant": v.VariantName, "value": elems}
		case VariantStruct:
			fields := make(map[string]interface{}, len(v.Fields))
			for _, f := range v.Fields {
				fields[f.Name] = f.Value.AsInterface()
			}
			return map[string]interface{}{"variant": v.VariantName, "value": fields}
		}
		return nil
	case KindSchema:
		return v.SchemaValue
	default:
		return nil
	}
}

// MarshalCBOR implements cbor.Marshaler, projecting through
// AsInterface. It is not used on the wire (the wire uses the
// schema-directed Encode/Decode in codec.go), and cmd/postkit prints
// JSON only.
func (v Value) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(v.AsInterface())
}
