// SPDX-FileCopyrightText: © 2026 OneVariable UG
// SPDX-License-Identifier: Apache-2.0
package dynamic

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, schema *DataModelType, v Value) Value {
	t.Helper()
	data, err := Encode(schema, v)
	require.NoError(t, err)
	got, err := Decode(schema, data)
	require.NoError(t, err)
	return got
}

func TestRoundTripPrimitives(t *testing.T) {
	require.Equal(t, Bool(true), roundTrip(t, Primitive(KindBool), Bool(true)))
	require.Equal(t, U8(0x80), roundTrip(t, Primitive(KindU8), U8(0x80)))
	require.Equal(t, I8(-128), roundTrip(t, Primitive(KindI8), I8(-128)))
	require.Equal(t, I32(-70000), roundTrip(t, Primitive(KindI32), I32(-70000)))
	require.Equal(t, U64(1<<40), roundTrip(t, Primitive(KindU64), U64(1<<40)))
	require.Equal(t, F64(3.5), roundTrip(t, Primitive(KindF64), F64(3.5)))
	require.Equal(t, Str("hello"), roundTrip(t, Primitive(KindString), Str("hello")))
	require.Equal(t, Bytes([]byte{1, 2, 3}), roundTrip(t, Primitive(KindByteArray), Bytes([]byte{1, 2, 3})))
}

func TestRoundTripOption(t *testing.T) {
	schema := Option(Primitive(KindU32))
	require.Equal(t, None(), roundTrip(t, schema, None()))
	require.Equal(t, Some(U32(42)), roundTrip(t, schema, Some(U32(42))))
}

func TestRoundTripSeq(t *testing.T) {
	schema := Seq(Primitive(KindU16))
	v := Value{Kind: KindSeq, Elements: []Value{U16(1), U16(2), U16(3)}}
	require.Equal(t, v, roundTrip(t, schema, v))
}

func TestRoundTripStruct(t *testing.T) {
	schema := Struct("Rgb8",
		NamedValue{Name: "r", Type: Primitive(KindU8)},
		NamedValue{Name: "g", Type: Primitive(KindU8)},
		NamedValue{Name: "b", Type: Primitive(KindU8)},
	)
	v := Value{Kind: KindStruct, TypeName: "Rgb8", Fields: []FieldValue{
		{Name: "r", Value: U8(10)},
		{Name: "g", Value: U8(20)},
		{Name: "b", Value: U8(30)},
	}}
	require.Equal(t, v, roundTrip(t, schema, v))
}

func TestRoundTripEnum(t *testing.T) {
	schema := Enum("TopicStreamResult",
		NamedVariant{Name: "NoDeviceKnown", Type: &DataModelVariant{Kind: VariantUnit}},
		NamedVariant{Name: "Started", Type: &DataModelVariant{Kind: VariantNewtype, Inner: Primitive(KindU64)}},
	)
	unit := Value{Kind: KindEnum, VariantName: "NoDeviceKnown", VariantKind: VariantUnit}
	require.Equal(t, unit, roundTrip(t, schema, unit))

	started := Value{Kind: KindEnum, VariantName: "Started", VariantKind: VariantNewtype, Inner: func() *Value { v := U64(7); return &v }()}
	got := roundTrip(t, schema, started)
	require.Equal(t, "Started", got.VariantName)
	require.Equal(t, uint64(7), got.Inner.U64)
}

func TestDecodeU8AsI8(t *testing.T) {
	// The daemon may proxy a u8 request body 0x80 to an endpoint
	// whose response schema is i8; decoding that single byte against
	// the i8 schema must yield -128.
	data, err := Encode(Primitive(KindU8), U8(0x80))
	require.NoError(t, err)
	got, err := Decode(Primitive(KindI8), data)
	require.NoError(t, err)
	require.Equal(t, int8(-128), got.I8)
}

func TestEncodeRejectsShapeMismatch(t *testing.T) {
	_, err := Encode(Primitive(KindU8), Str("wrong shape"))
	require.Error(t, err)
}

func TestRoundTripSchemaValue(t *testing.T) {
	// The reflexive node: a schema tree carried as a message body.
	reported := &NamedType{
		Name: "SensorReading",
		Type: Struct("SensorReading",
			NamedValue{Name: "temp", Type: Primitive(KindF64)},
			NamedValue{Name: "tags", Type: Seq(Primitive(KindString))},
			NamedValue{Name: "state", Type: Enum("State",
				NamedVariant{Name: "Idle", Type: &DataModelVariant{Kind: VariantUnit}},
				NamedVariant{Name: "Active", Type: &DataModelVariant{Kind: VariantNewtype, Inner: Primitive(KindU32)}},
			)},
			NamedValue{Name: "parent", Type: Option(Primitive(KindU64))},
		),
	}
	v := Value{Kind: KindSchema, SchemaValue: reported}
	got := roundTrip(t, Primitive(KindSchema), v)
	require.Equal(t, reported, got.SchemaValue)
}

func TestRoundTripI128(t *testing.T) {
	schema := Primitive(KindI128)
	big1, _ := new(big.Int).SetString("-170141183460469231731687303715884105000", 10)
	v := Value{Kind: KindI128, I128: big1}
	got := roundTrip(t, schema, v)
	require.Equal(t, 0, big1.Cmp(got.I128))
}
