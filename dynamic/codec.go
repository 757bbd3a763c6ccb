// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package dynamic

import (
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"
)

// DynamicError reports a schema/value mismatch encountered while
// encoding or decoding.
type DynamicError struct {
	msg string
}

func (e *DynamicError) Error() string { return "dynamic: " + e.msg }

func errf(format string, a ...interface{}) *DynamicError {
	return &DynamicError{msg: fmt.Sprintf(format, a...)}
}

// Encode serializes v against schema, producing the wire body for an
// endpoint/topic whose abstract type is schema. Integer widths above
// 8 bits use LEB128 (unsigned) or zig-zag LEB128 (signed); bool, u8,
// i8, f32, f64 are raw fixed-width; string/byte-array/seq/map are
// length-prefixed with an unsigned LEB128 count.
func Encode(schema *DataModelType, v Value) ([]byte, error) {
	var out []byte
	if err := encodeInto(&out, schema, v); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeInto(out *[]byte, schema *DataModelType, v Value) error {
	if schema == nil {
		return errf("nil schema node")
	}
	if v.Kind != schema.Kind {
		return errf("value kind %d does not match schema kind %d", v.Kind, schema.Kind)
	}
	switch schema.Kind {
	case KindBool:
		if v.Bool {
			*out = append(*out, 1)
		} else {
			*out = append(*out, 0)
		}
	case KindU8:
		*out = append(*out, v.U8)
	case KindI8:
		*out = append(*out, byte(v.I8))
	case KindU16:
		putUvarint(out, uint64(v.U16))
	case KindU32:
		putUvarint(out, uint64(v.U32))
	case KindU64:
		putUvarint(out, v.U64)
	case KindUsize:
		putUvarint(out, v.Usize)
	case KindI16:
		putSvarint(out, int64(v.I16))
	case KindI32:
		putSvarint(out, int64(v.I32))
	case KindI64:
		putSvarint(out, v.I64)
	case KindIsize:
		putSvarint(out, v.Isize)
	case KindU128:
		putUvarintBig(out, v.U128)
	case KindI128:
		putSvarintBig(out, v.I128)
	case KindF32:
		bits := math.Float32bits(v.F32)
		*out = append(*out, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
	case KindF64:
		bits := math.Float64bits(v.F64)
		for i := 0; i < 8; i++ {
			*out = append(*out, byte(bits>>(8*i)))
		}
	case KindChar:
		buf := make([]byte, utf8.UTFMax)
		n := utf8.EncodeRune(buf, v.Char)
		putUvarint(out, uint64(n))
		*out = append(*out, buf[:n]...)
	case KindString:
		putUvarint(out, uint64(len(v.Str)))
		*out = append(*out, v.Str...)
	case KindByteArray:
		putUvarint(out, uint64(len(v.Bytes)))
		*out = append(*out, v.Bytes...)
	case KindUnit, KindUnitStruct:
		// zero bytes on the wire
	case KindOption:
		if !v.IsSome {
			*out = append(*out, 0)
			return nil
		}
		*out = append(*out, 1)
		return encodeInto(out, schema.Inner, *v.Inner)
	case KindNewtypeStruct:
		return encodeInto(out, schema.Inner, *v.Inner)
	case KindSeq:
		putUvarint(out, uint64(len(v.Elements)))
		for _, e := range v.Elements {
			if err := encodeInto(out, schema.Inner, e); err != nil {
				return err
			}
		}
	case KindTuple, KindTupleStruct:
		if len(v.Elements) != len(schema.Elements) {
			return errf("tuple has %d elements, schema wants %d", len(v.Elements), len(schema.Elements))
		}
		for i, e := range v.Elements {
			if err := encodeInto(out, schema.Elements[i], e); err != nil {
				return err
			}
		}
	case KindMap:
		putUvarint(out, uint64(len(v.Entries)))
		for _, e := range v.Entries {
			if err := encodeInto(out, schema.MapKey, e.Key); err != nil {
				return err
			}
			if err := encodeInto(out, schema.MapValue, e.Value); err != nil {
				return err
			}
		}
	case KindStruct:
		if len(v.Fields) != len(schema.Fields) {
			return errf("struct %s has %d fields, schema wants %d", schema.Name, len(v.Fields), len(schema.Fields))
		}
		for i, f := range v.Fields {
			want := schema.Fields[i]
			if f.Name != want.Name {
				return errf("struct %s field %d is %q, schema wants %q", schema.Name, i, f.Name, want.Name)
			}
			if err := encodeInto(out, want.Type, f.Value); err != nil {
				return err
			}
		}
	case KindEnum:
		idx, variant := findVariant(schema, v.VariantName)
		if variant == nil {
			return errf("enum %s has no variant %q", schema.Name, v.VariantName)
		}
		putUvarint(out, uint64(idx))
		return encodeVariant(out, variant, v)
	case KindSchema:
		if v.SchemaValue == nil {
			return errf("schema value missing payload")
		}
		encodeSchemaNamedType(out, v.SchemaValue)
	default:
		return errf("unknown schema kind %d", schema.Kind)
	}
	return nil
}

// encodeSchemaNamedType serializes a NamedType as a value: the
// reflexive node of the data model, where a schema tree is itself a
// message body (a device reporting its own type graph). Layout is
// name || node, with each node a varint kind tag followed by
// kind-specific children.
func encodeSchemaNamedType(out *[]byte, nt *NamedType) {
	encodeSchemaString(out, nt.Name)
	encodeSchemaNode(out, nt.Type)
}

func encodeSchemaNode(out *[]byte, t *DataModelType) {
	if t == nil {
		t = Primitive(KindUnit)
	}
	putUvarint(out, uint64(t.Kind))
	switch t.Kind {
	case KindOption, KindSeq:
		encodeSchemaNode(out, t.Inner)
	case KindNewtypeStruct:
		encodeSchemaString(out, t.Name)
		encodeSchemaNode(out, t.Inner)
	case KindUnitStruct:
		encodeSchemaString(out, t.Name)
	case KindTuple:
		putUvarint(out, uint64(len(t.Elements)))
		for _, e := range t.Elements {
			encodeSchemaNode(out, e)
		}
	case KindTupleStruct:
		encodeSchemaString(out, t.Name)
		putUvarint(out, uint64(len(t.Elements)))
		for _, e := range t.Elements {
			encodeSchemaNode(out, e)
		}
	case KindMap:
		encodeSchemaNode(out, t.MapKey)
		encodeSchemaNode(out, t.MapValue)
	case KindStruct:
		encodeSchemaString(out, t.Name)
		putUvarint(out, uint64(len(t.Fields)))
		for _, f := range t.Fields {
			encodeSchemaString(out, f.Name)
			encodeSchemaNode(out, f.Type)
		}
	case KindEnum:
		encodeSchemaString(out, t.Name)
		putUvarint(out, uint64(len(t.Variants)))
		for _, nv := range t.Variants {
			encodeSchemaString(out, nv.Name)
			encodeSchemaVariant(out, nv.Type)
		}
	}
}

func encodeSchemaVariant(out *[]byte, v *DataModelVariant) {
	if v == nil {
		v = &DataModelVariant{Kind: VariantUnit}
	}
	putUvarint(out, uint64(v.Kind))
	switch v.Kind {
	case VariantNewtype:
		encodeSchemaNode(out, v.Inner)
	case VariantTuple:
		putUvarint(out, uint64(len(v.Elements)))
		for _, e := range v.Elements {
			encodeSchemaNode(out, e)
		}
	case VariantStruct:
		putUvarint(out, uint64(len(v.Fields)))
		for _, f := range v.Fields {
			encodeSchemaString(out, f.Name)
			encodeSchemaNode(out, f.Type)
		}
	}
}

func encodeSchemaString(out *[]byte, s string) {
	putUvarint(out, uint64(len(s)))
	*out = append(*out, s...)
}

func encodeVariant(out *[]byte, variant *DataModelVariant, v Value) error {
	if v.VariantKind != variant.Kind {
		return errf("variant %q has kind %d, schema wants %d", v.VariantName, v.VariantKind, variant.Kind)
	}
	switch variant.Kind {
	case VariantUnit:
		return nil
	case VariantNewtype:
		if v.Inner == nil {
			return errf("newtype variant %q missing payload", v.VariantName)
		}
		return encodeInto(out, variant.Inner, *v.Inner)
	case VariantTuple:
		if len(v.Elements) != len(variant.Elements) {
			return errf("tuple variant %q has %d elements, schema wants %d", v.VariantName, len(v.Elements), len(variant.Elements))
		}
		for i, e := range v.Elements {
			if err := encodeInto(out, variant.Elements[i], e); err != nil {
				return err
			}
		}
		return nil
	case VariantStruct:
		if len(v.Fields) != len(variant.Fields) {
			return errf("struct variant %q has %d fields, schema wants %d", v.VariantName, len(v.Fields), len(variant.Fields))
		}
		for i, f := range v.Fields {
			want := variant.Fields[i]
			if f.Name != want.Name {
				return errf("struct variant %q field %d is %q, schema wants %q", v.VariantName, i, f.Name, want.Name)
			}
			if err := encodeInto(out, want.Type, f.Value); err != nil {
				return err
			}
		}
		return nil
	default:
		return errf("unknown variant kind %d", variant.Kind)
	}
}

func findVariant(schema *DataModelType, name string) (int, *DataModelVariant) {
	for i := range schema.Variants {
		if schema.Variants[i].Name == name {
			return i, schema.Variants[i].Type
		}
	}
	return -1, nil
}

// Decode deserializes data against schema, the inverse of Encode.
func Decode(schema *DataModelType, data []byte) (Value, error) {
	v, rest, err := decodeFrom(schema, data)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, errf("%d trailing bytes after decoding %s", len(rest), schema.Name)
	}
	return v, nil
}

func decodeFrom(schema *DataModelType, data []byte) (Value, []byte, error) {
	if schema == nil {
		return Value{}, nil, errf("nil schema node")
	}
	switch schema.Kind {
	case KindBool:
		b, rest, err := takeByte(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindBool, Bool: b != 0}, rest, nil
	case KindU8:
		b, rest, err := takeByte(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindU8, U8: b}, rest, nil
	case KindI8:
		b, rest, err := takeByte(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindI8, I8: int8(b)}, rest, nil
	case KindU16:
		u, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindU16, U16: uint16(u)}, rest, nil
	case KindU32:
		u, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindU32, U32: uint32(u)}, rest, nil
	case KindU64:
		u, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindU64, U64: u}, rest, nil
	case KindUsize:
		u, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindUsize, Usize: u}, rest, nil
	case KindI16:
		s, rest, err := takeSvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindI16, I16: int16(s)}, rest, nil
	case KindI32:
		s, rest, err := takeSvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindI32, I32: int32(s)}, rest, nil
	case KindI64:
		s, rest, err := takeSvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindI64, I64: s}, rest, nil
	case KindIsize:
		s, rest, err := takeSvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindIsize, Isize: s}, rest, nil
	case KindU128:
		u, rest, err := takeUvarintBig(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindU128, U128: u}, rest, nil
	case KindI128:
		s, rest, err := takeSvarintBig(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindI128, I128: s}, rest, nil
	case KindF32:
		if len(data) < 4 {
			return Value{}, nil, errf("truncated f32")
		}
		bits := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
		return Value{Kind: KindF32, F32: math.Float32frombits(bits)}, data[4:], nil
	case KindF64:
		if len(data) < 8 {
			return Value{}, nil, errf("truncated f64")
		}
		var bits uint64
		for i := 0; i < 8; i++ {
			bits |= uint64(data[i]) << (8 * i)
		}
		return Value{Kind: KindF64, F64: math.Float64frombits(bits)}, data[8:], nil
	case KindChar:
		n, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		if uint64(len(rest)) < n {
			return Value{}, nil, errf("truncated char")
		}
		r, size := utf8.DecodeRune(rest[:n])
		if r == utf8.RuneError && size <= 1 {
			return Value{}, nil, errf("invalid utf8 char")
		}
		return Value{Kind: KindChar, Char: r}, rest[n:], nil
	case KindString:
		n, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		if uint64(len(rest)) < n {
			return Value{}, nil, errf("truncated string")
		}
		return Value{Kind: KindString, Str: string(rest[:n])}, rest[n:], nil
	case KindByteArray:
		n, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		if uint64(len(rest)) < n {
			return Value{}, nil, errf("truncated byte array")
		}
		b := make([]byte, n)
		copy(b, rest[:n])
		return Value{Kind: KindByteArray, Bytes: b}, rest[n:], nil
	case KindUnit, KindUnitStruct:
		return Value{Kind: schema.Kind, TypeName: schema.Name}, data, nil
	case KindOption:
		tag, rest, err := takeByte(data)
		if err != nil {
			return Value{}, nil, err
		}
		if tag == 0 {
			return Value{Kind: KindOption, IsSome: false}, rest, nil
		}
		inner, rest2, err := decodeFrom(schema.Inner, rest)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindOption, IsSome: true, Inner: &inner}, rest2, nil
	case KindNewtypeStruct:
		inner, rest, err := decodeFrom(schema.Inner, data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindNewtypeStruct, TypeName: schema.Name, Inner: &inner}, rest, nil
	case KindSeq:
		n, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		elems := make([]Value, 0, n)
		for i := uint64(0); i < n; i++ {
			var e Value
			e, rest, err = decodeFrom(schema.Inner, rest)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: KindSeq, Elements: elems}, rest, nil
	case KindTuple, KindTupleStruct:
		elems := make([]Value, 0, len(schema.Elements))
		rest := data
		for _, elemSchema := range schema.Elements {
			var e Value
			var err error
			e, rest, err = decodeFrom(elemSchema, rest)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: schema.Kind, TypeName: schema.Name, Elements: elems}, rest, nil
	case KindMap:
		n, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		entries := make([]MapEntry, 0, n)
		for i := uint64(0); i < n; i++ {
			var k, val Value
			k, rest, err = decodeFrom(schema.MapKey, rest)
			if err != nil {
				return Value{}, nil, err
			}
			val, rest, err = decodeFrom(schema.MapValue, rest)
			if err != nil {
				return Value{}, nil, err
			}
			entries = append(entries, MapEntry{Key: k, Value: val})
		}
		return Value{Kind: KindMap, Entries: entries}, rest, nil
	case KindStruct:
		fields := make([]FieldValue, 0, len(schema.Fields))
		rest := data
		for _, f := range schema.Fields {
			var val Value
			var err error
			val, rest, err = decodeFrom(f.Type, rest)
			if err != nil {
				return Value{}, nil, err
			}
			fields = append(fields, FieldValue{Name: f.Name, Value: val})
		}
		return Value{Kind: KindStruct, TypeName: schema.Name, Fields: fields}, rest, nil
	case KindEnum:
		idx, rest, err := takeUvarint(data)
		if err != nil {
			return Value{}, nil, err
		}
		if idx >= uint64(len(schema.Variants)) {
			return Value{}, nil, errf("enum %s has no variant index %d", schema.Name, idx)
		}
		nv := schema.Variants[idx]
		v, rest2, err := decodeVariant(nv, rest)
		if err != nil {
			return Value{}, nil, err
		}
		v.TypeName = schema.Name
		return v, rest2, nil
	case KindSchema:
		nt, rest, err := decodeSchemaNamedType(data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindSchema, SchemaValue: nt}, rest, nil
	default:
		return Value{}, nil, errf("unknown schema kind %d", schema.Kind)
	}
}

func decodeSchemaNamedType(data []byte) (*NamedType, []byte, error) {
	name, rest, err := decodeSchemaString(data)
	if err != nil {
		return nil, nil, err
	}
	t, rest, err := decodeSchemaNode(rest)
	if err != nil {
		return nil, nil, err
	}
	return &NamedType{Name: name, Type: t}, rest, nil
}

func decodeSchemaNode(data []byte) (*DataModelType, []byte, error) {
	tag, rest, err := takeUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	t := &DataModelType{Kind: Kind(tag)}
	switch t.Kind {
	case KindOption, KindSeq:
		t.Inner, rest, err = decodeSchemaNode(rest)
	case KindNewtypeStruct:
		if t.Name, rest, err = decodeSchemaString(rest); err == nil {
			t.Inner, rest, err = decodeSchemaNode(rest)
		}
	case KindUnitStruct:
		t.Name, rest, err = decodeSchemaString(rest)
	case KindTuple:
		t.Elements, rest, err = decodeSchemaNodeList(rest)
	case KindTupleStruct:
		if t.Name, rest, err = decodeSchemaString(rest); err == nil {
			t.Elements, rest, err = decodeSchemaNodeList(rest)
		}
	case KindMap:
		if t.MapKey, rest, err = decodeSchemaNode(rest); err == nil {
			t.MapValue, rest, err = decodeSchemaNode(rest)
		}
	case KindStruct:
		if t.Name, rest, err = decodeSchemaString(rest); err == nil {
			t.Fields, rest, err = decodeSchemaFieldList(rest)
		}
	case KindEnum:
		if t.Name, rest, err = decodeSchemaString(rest); err == nil {
			var n uint64
			if n, rest, err = takeUvarint(rest); err == nil {
				t.Variants = make([]NamedVariant, 0, n)
				for i := uint64(0); i < n && err == nil; i++ {
					var nv NamedVariant
					if nv.Name, rest, err = decodeSchemaString(rest); err == nil {
						nv.Type, rest, err = decodeSchemaVariant(rest)
					}
					t.Variants = append(t.Variants, nv)
				}
			}
		}
	case KindBool, KindI8, KindU8, KindI16, KindU16, KindI32, KindU32,
		KindI64, KindU64, KindI128, KindU128, KindUsize, KindIsize,
		KindF32, KindF64, KindChar, KindString, KindByteArray,
		KindUnit, KindSchema:
		// leaf node, no children
	default:
		return nil, nil, errf("unknown schema node tag %d", tag)
	}
	if err != nil {
		return nil, nil, err
	}
	return t, rest, nil
}

func decodeSchemaVariant(data []byte) (*DataModelVariant, []byte, error) {
	tag, rest, err := takeUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	v := &DataModelVariant{Kind: VariantKind(tag)}
	switch v.Kind {
	case VariantUnit:
	case VariantNewtype:
		v.Inner, rest, err = decodeSchemaNode(rest)
	case VariantTuple:
		v.Elements, rest, err = decodeSchemaNodeList(rest)
	case VariantStruct:
		v.Fields, rest, err = decodeSchemaFieldList(rest)
	default:
		return nil, nil, errf("unknown schema variant tag %d", tag)
	}
	if err != nil {
		return nil, nil, err
	}
	return v, rest, nil
}

func decodeSchemaNodeList(data []byte) ([]*DataModelType, []byte, error) {
	n, rest, err := takeUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	out := make([]*DataModelType, 0, n)
	for i := uint64(0); i < n; i++ {
		var t *DataModelType
		if t, rest, err = decodeSchemaNode(rest); err != nil {
			return nil, nil, err
		}
		out = append(out, t)
	}
	return out, rest, nil
}

func decodeSchemaFieldList(data []byte) ([]NamedValue, []byte, error) {
	n, rest, err := takeUvarint(data)
	if err != nil {
		return nil, nil, err
	}
	out := make([]NamedValue, 0, n)
	for i := uint64(0); i < n; i++ {
		var f NamedValue
		if f.Name, rest, err = decodeSchemaString(rest); err != nil {
			return nil, nil, err
		}
		if f.Type, rest, err = decodeSchemaNode(rest); err != nil {
			return nil, nil, err
		}
		out = append(out, f)
	}
	return out, rest, nil
}

func decodeSchemaString(data []byte) (string, []byte, error) {
	n, rest, err := takeUvarint(data)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, errf("truncated schema string")
	}
	return string(rest[:n]), rest[n:], nil
}

func decodeVariant(nv NamedVariant, data []byte) (Value, []byte, error) {
	variant := nv.Type
	switch variant.Kind {
	case VariantUnit:
		return Value{Kind: KindEnum, VariantName: nv.Name, VariantKind: VariantUnit}, data, nil
	case VariantNewtype:
		inner, rest, err := decodeFrom(variant.Inner, data)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: KindEnum, VariantName: nv.Name, VariantKind: VariantNewtype, Inner: &inner}, rest, nil
	case VariantTuple:
		elems := make([]Value, 0, len(variant.Elements))
		rest := data
		for _, elemSchema := range variant.Elements {
			var e Value
			var err error
			e, rest, err = decodeFrom(elemSchema, rest)
			if err != nil {
				return Value{}, nil, err
			}
			elems = append(elems, e)
		}
		return Value{Kind: KindEnum, VariantName: nv.Name, VariantKind: VariantTuple, Elements: elems}, rest, nil
	case VariantStruct:
		fields := make([]FieldValue, 0, len(variant.Fields))
		rest := data
		for _, f := range variant.Fields {
			var val Value
			var err error
			val, rest, err = decodeFrom(f.Type, rest)
			if err != nil {
				return Value{}, nil, err
			}
			fields = append(fields, FieldValue{Name: f.Name, Value: val})
		}
		return Value{Kind: KindEnum, VariantName: nv.Name, VariantKind: VariantStruct, Fields: fields}, rest, nil
	default:
		return Value{}, nil, errf("unknown variant kind %d", variant.Kind)
	}
}

func takeByte(data []byte) (byte, []byte, error) {
	if len(data) < 1 {
		return 0, nil, errf("truncated: expected 1 byte")
	}
	return data[0], data[1:], nil
}

// putUvarint appends an unsigned LEB128 encoding of v.
func putUvarint(out *[]byte, v uint64) {
	for v >= 0x80 {
		*out = append(*out, byte(v)|0x80)
		v >>= 7
	}
	*out = append(*out, byte(v))
}

func takeUvarint(data []byte) (uint64, []byte, error) {
	var result uint64
	var shift uint
	for i, b := range data {
		if shift >= 64 {
			return 0, nil, errf("uvarint overflow")
		}
		result |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return result, data[i+1:], nil
		}
		shift += 7
	}
	return 0, nil, errf("truncated uvarint")
}

// putSvarint appends a zig-zag LEB128 encoding of v.
func putSvarint(out *[]byte, v int64) {
	zz := uint64((v << 1) ^ (v >> 63))
	putUvarint(out, zz)
}

func takeSvarint(data []byte) (int64, []byte, error) {
	zz, rest, err := takeUvarint(data)
	if err != nil {
		return 0, nil, err
	}
	return int64(zz>>1) ^ -int64(zz&1), rest, nil
}

func putUvarintBig(out *[]byte, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	n := new(big.Int).Set(v)
	mask := big.NewInt(0x7F)
	for n.Cmp(big.NewInt(0x80)) >= 0 {
		low := new(big.Int).And(n, mask)
		*out = append(*out, byte(low.Uint64())|0x80)
		n.Rsh(n, 7)
	}
	*out = append(*out, byte(n.Uint64()))
}

func takeUvarintBig(data []byte) (*big.Int, []byte, error) {
	result := big.NewInt(0)
	shift := uint(0)
	for i, b := range data {
		chunk := big.NewInt(int64(b & 0x7F))
		chunk.Lsh(chunk, shift)
		result.Or(result, chunk)
		if b < 0x80 {
			return result, data[i+1:], nil
		}
		shift += 7
		if shift > 128 {
			return nil, nil, errf("u128 varint overflow")
		}
	}
	return nil, nil, errf("truncated u128 varint")
}

func putSvarintBig(out *[]byte, v *big.Int) {
	if v == nil {
		v = big.NewInt(0)
	}
	// zig-zag: (v << 1) ^ (v >> 127), done on arbitrary precision by
	// sign rather than a fixed-width arithmetic shift of the sign bit.
	doubled := new(big.Int).Lsh(v, 1)
	if v.Sign() < 0 {
		doubled = new(big.Int).Sub(new(big.Int).Neg(doubled), big.NewInt(1))
	}
	putUvarintBig(out, doubled)
}

func takeSvarintBig(data []byte) (*big.Int, []byte, error) {
	zz, rest, err := takeUvarintBig(data)
	if err != nil {
		return nil, nil, err
	}
	half := new(big.Int).Rsh(zz, 1)
	if zz.Bit(0) == 1 {
		half.Add(half, big.NewInt(1))
		half.Neg(half)
	}
	return half, rest, nil
}
