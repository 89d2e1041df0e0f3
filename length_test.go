package iso8583

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthEncoders(t *testing.T) {
	tests := []struct {
		name    string
		encoder LengthEncoder
		length  int
		wire    []byte
	}{
		{name: "string LL", encoder: MustStringLengthEncoder(99), length: 7, wire: []byte("07")},
		{name: "string LLL", encoder: MustStringLengthEncoder(999), length: 9, wire: []byte("009")},
		{name: "string LLLL zero", encoder: MustStringLengthEncoder(9999), length: 0, wire: []byte("0000")},
		{name: "bcd LL", encoder: MustBCDLengthEncoder(99), length: 42, wire: []byte{0x42}},
		{name: "bcd LLL", encoder: MustBCDLengthEncoder(999), length: 123, wire: []byte{0x01, 0x23}},
		{name: "binary 1", encoder: MustBinaryLengthEncoder(255), length: 200, wire: []byte{0xC8}},
		{name: "binary 2", encoder: MustBinaryLengthEncoder(0xFFFF), length: 300, wire: []byte{0x01, 0x2C}},
		{name: "binary 3", encoder: MustBinaryLengthEncoder(0x10000), length: 0x10000, wire: []byte{0x01, 0x00, 0x00}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, len(test.wire), test.encoder.EncodedLength())

			fc := NewFormatterContext(0)
			require.NoError(t, test.encoder.Encode(test.length, fc))
			assert.Equal(t, test.wire, fc.Data())

			pc := parserWith(fc.Bytes())
			got, ok, err := test.encoder.Decode(pc)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, test.length, got)
			assert.Equal(t, 0, pc.DataLength())
		})
	}
}

func TestLengthEncoderBounds(t *testing.T) {
	encoders := []LengthEncoder{
		MustStringLengthEncoder(99),
		MustBCDLengthEncoder(99),
		MustBinaryLengthEncoder(99),
	}
	for _, enc := range encoders {
		fc := NewFormatterContext(0)
		assert.ErrorIs(t, enc.Encode(100, fc), ErrLengthOutOfRange)
		assert.ErrorIs(t, enc.Encode(-1, fc), ErrLengthOutOfRange)
		assert.Equal(t, 0, fc.Len())
	}

	_, err := NewStringLengthEncoder(0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = NewBCDLengthEncoder(-5)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = NewBinaryLengthEncoder(0)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestLengthEncoderWaitsForPrefix(t *testing.T) {
	enc := MustStringLengthEncoder(999)
	pc := parserWith([]byte("01"))

	_, ok, err := enc.Decode(pc)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, pc.DataLength(), "a partial prefix is not consumed")

	pc.WriteString("2")
	n, ok, err := enc.Decode(pc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, n)
}

func TestLengthEncoderRejectsBadDigits(t *testing.T) {
	_, _, err := MustStringLengthEncoder(99).Decode(parserWith([]byte("1X")))
	assert.ErrorIs(t, err, ErrInvalidDigit)

	_, _, err = MustBCDLengthEncoder(99).Decode(parserWith([]byte{0x1C}))
	assert.ErrorIs(t, err, ErrInvalidBCDDigit)
}

func TestFixedLengthManager(t *testing.T) {
	_, err := NewFixedLengthManager(-1)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	lm := MustFixedLengthManager(2)
	assert.True(t, lm.Fixed())
	assert.Equal(t, 2, lm.MaximumLength())

	fc := NewFormatterContext(0)
	require.NoError(t, lm.WriteLength(2, fc))
	assert.Equal(t, 0, fc.Len(), "fixed fields carry no prefix")
	assert.ErrorIs(t, lm.WriteLength(3, fc), ErrLengthOutOfRange)
	assert.ErrorIs(t, lm.WriteLength(1, fc), ErrInvalidLength)

	n, ok, err := lm.ReadLength(NewParserContext(0))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, n)
}

func TestNewVariableLengthManager(t *testing.T) {
	enc := MustStringLengthEncoder(99)
	tests := []struct {
		name     string
		min, max int
		encoder  LengthEncoder
	}{
		{name: "nil encoder", min: 0, max: 10},
		{name: "negative min", min: -1, max: 10, encoder: enc},
		{name: "min above max", min: 11, max: 10, encoder: enc},
		{name: "max above encoder", min: 0, max: 100, encoder: enc},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewVariableLengthManager(test.min, test.max, test.encoder)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	lm, err := NewVariableLengthManager(2, 99, enc)
	require.NoError(t, err)
	assert.False(t, lm.Fixed())
	assert.Equal(t, 2, lm.MinimumLength())
	assert.Equal(t, 99, lm.MaximumLength())
}

func TestVariableLengthManagerBounds(t *testing.T) {
	lm := MustVariableLengthManager(2, 20, MustStringLengthEncoder(99))

	fc := NewFormatterContext(0)
	assert.ErrorIs(t, lm.WriteLength(1, fc), ErrLengthOutOfRange)
	assert.ErrorIs(t, lm.WriteLength(21, fc), ErrLengthOutOfRange)
	require.NoError(t, lm.WriteLength(20, fc))
	assert.Equal(t, "20", string(fc.Data()))

	pc := parserWith([]byte("21"))
	assert.True(t, lm.EnoughData(pc))
	_, _, err := lm.ReadLength(pc)
	assert.ErrorIs(t, err, ErrLengthOutOfRange)

	short := parserWith([]byte("2"))
	assert.False(t, lm.EnoughData(short))
}
