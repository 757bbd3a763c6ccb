// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0

// Package dynamic implements the schema-directed codec that lets
// postkit encode and decode message bodies without a compile-time Go
// type for them, using only the schema tree a device reports.
package dynamic

// NamedType pairs a human-readable name with its data-model shape.
type NamedType struct {
	Name string
	Type *DataModelType
}

// NamedValue is a named field inside a Struct or a StructVariant.
type NamedValue struct {
	Name string
	Type *DataModelType
}

// NamedVariant is one arm of an Enum.
type NamedVariant struct {
	Name string
	Type *DataModelVariant
}

// Kind enumerates every node of the dynamic data model. Schema trees
// are closed over this set; Encode/Decode switch on Kind.
type Kind uint8

const (
	KindBool Kind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindI128
	KindU128
	KindUsize
	KindIsize
	KindF32
	KindF64
	KindChar
	KindString
	KindByteArray
	KindOption
	KindUnit
	KindUnitStruct
	KindNewtypeStruct
	KindSeq
	KindTuple
	KindTupleStruct
	KindMap
	KindStruct
	KindEnum
	// KindSchema is the reflexive node: a value that is itself a
	// schema (a NamedType tree), used when a device reports its own
	// type graph back through the standard schema-report mechanism.
	KindSchema
)

// DataModelType is one node of a schema tree. Only the fields
// relevant to Kind are populated; the rest are zero. Self-referential
// children (Option's inner type, a struct field's type, and so on)
// are heap-allocated pointers, never flattened inline, since schema
// graphs are recursive.
type DataModelType struct {
	Kind Kind

	// Option, NewtypeStruct, Seq: element/inner type.
	Inner *DataModelType

	// Tuple, TupleStruct: ordered element types.
	Elements []*DataModelType

	// Map: key and value types.
	MapKey   *DataModelType
	MapValue *DataModelType

	// Struct: ordered named fields.
	Fields []NamedValue

	// Enum: ordered named variants.
	Variants []NamedVariant

	// UnitStruct, NewtypeStruct, TupleStruct, Struct, Enum: the
	// type's own name, carried for error messages and debug output.
	Name string
}

// DataModelVariant is the shape of one Enum arm.
type DataModelVariant struct {
	Kind VariantKind
	Name string

	// NewtypeVariant: the wrapped type.
	Inner *DataModelType
	// TupleVariant: ordered element types.
	Elements []*DataModelType
	// StructVariant: ordered named fields.
	Fields []NamedValue
}

// VariantKind enumerates the four enum-variant shapes.
type VariantKind uint8

const (
	VariantUnit VariantKind = iota
	VariantNewtype
	VariantTuple
	VariantStruct
)

// Convenience constructors for the common primitive leaves, used by
// callers building ad hoc schema trees (e.g. tests, or a caller that
// knows the one endpoint it wants to call dynamically without
// fetching a full SchemaReport).
func Primitive(k Kind) *DataModelType { return &DataModelType{Kind: k} }

func Option(inner *DataModelType) *DataModelType {
	return &DataModelType{Kind: KindOption, Inner: inner}
}

func Seq(elem *DataModelType) *DataModelType {
	return &DataModelType{Kind: KindSeq, Inner: elem}
}

func Tuple(elems ...*DataModelType) *DataModelType {
	return &DataModelType{Kind: KindTuple, Elements: elems}
}

func Map(key, value *DataModelType) *DataModelType {
	return &DataModelType{Kind: KindMap, MapKey: key, MapValue: value}
}

func Struct(name string, fields ...NamedValue) *DataModelType {
	return &DataModelType{Kind: KindStruct, Name: name, Fields: fields}
}

func Enum(name string, variants ...NamedVariant) *DataModelType {
	return &DataModelType{Kind: KindEnum, Name: name, Variants: variants}
}
