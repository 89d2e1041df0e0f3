package iso8583

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

func encodeString(t *testing.T, enc StringEncoder, value string) []byte {
	t.Helper()
	fc := NewFormatterContext(0)
	require.NoError(t, enc.Encode(value, fc))
	return fc.Bytes()
}

func parserWith(data []byte) *ParserContext {
	pc := NewParserContext(len(data))
	pc.Write(data)
	return pc
}

func TestPlainStringEncoder(t *testing.T) {
	tests := []struct {
		name    string
		encoder StringEncoder
		value   string
		wire    []byte
	}{
		{name: "ascii", encoder: ASCIIStringEncoder, value: "AB12", wire: []byte("AB12")},
		{name: "latin1", encoder: ASCIIStringEncoder, value: "é", wire: []byte{0xE9}},
		{name: "ebcdic", encoder: EBCDICStringEncoder, value: "A1 ", wire: []byte{0xC1, 0xF1, 0x40}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got := encodeString(t, test.encoder, test.value)
			assert.Equal(t, test.wire, got)
			assert.Equal(t, len(test.wire), test.encoder.EncodedLength(len([]rune(test.value))))

			pc := parserWith(got)
			decoded, err := test.encoder.Decode(pc, len(got))
			require.NoError(t, err)
			assert.Equal(t, test.value, decoded)
			assert.Equal(t, 0, pc.DataLength())
		})
	}
}

func TestPlainStringEncoderRejectsUnmappedRune(t *testing.T) {
	fc := NewFormatterContext(0)
	fc.WriteString("XY")
	err := ASCIIStringEncoder.Encode("AB€", fc)
	assert.ErrorIs(t, err, ErrInvalidCharacter)
	assert.Equal(t, "XY", string(fc.Data()))
}

func TestNewPlainStringEncoder(t *testing.T) {
	_, err := NewPlainStringEncoder(nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	enc, err := NewPlainStringEncoder(charmap.CodePage1047)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF0, 0xF9}, encodeString(t, enc, "09"))
}

func TestHexStringEncoder(t *testing.T) {
	assert.Equal(t, []byte("4142"), encodeString(t, HexStringEncoder, "AB"))
	assert.Equal(t, 4, HexStringEncoder.EncodedLength(2))

	pc := parserWith([]byte("4a4B"))
	value, err := HexStringEncoder.Decode(pc, 2)
	require.NoError(t, err)
	assert.Equal(t, "JK", value)
}

func TestHexDecodeRejectsBadDigit(t *testing.T) {
	pc := parserWith([]byte("4G"))
	_, err := HexBinaryEncoder.Decode(pc, 1)
	assert.ErrorIs(t, err, ErrInvalidHexDigit)
	assert.Equal(t, 2, pc.DataLength(), "nothing is consumed on failure")
}

func TestHexBinaryEncoder(t *testing.T) {
	fc := NewFormatterContext(0)
	require.NoError(t, HexBinaryEncoder.Encode([]byte{0x00, 0xAB, 0x7F}, fc))
	assert.Equal(t, "00AB7F", string(fc.Data()))

	pc := parserWith(fc.Bytes())
	got, err := HexBinaryEncoder.Decode(pc, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0xAB, 0x7F}, got)
}

func TestRawBinaryEncoder(t *testing.T) {
	fc := NewFormatterContext(0)
	require.NoError(t, RawBinaryEncoder.Encode([]byte{1, 2, 3}, fc))
	pc := parserWith(fc.Bytes())

	got, err := RawBinaryEncoder.Decode(pc, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	_, err = RawBinaryEncoder.Decode(pc, 1)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBCDStringEncoder(t *testing.T) {
	tests := []struct {
		name       string
		leftPadded bool
		pad        byte
		value      string
		wire       []byte
	}{
		{name: "odd left F", leftPadded: true, pad: 0xF, value: "12345", wire: []byte{0xF1, 0x23, 0x45}},
		{name: "odd left 0", leftPadded: true, pad: 0x0, value: "123", wire: []byte{0x01, 0x23}},
		{name: "odd right F", leftPadded: false, pad: 0xF, value: "12345", wire: []byte{0x12, 0x34, 0x5F}},
		{name: "even", leftPadded: true, pad: 0xF, value: "1234", wire: []byte{0x12, 0x34}},
		{name: "empty", leftPadded: false, pad: 0x0, value: "", wire: []byte{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			enc, err := BCDStringEncoderFor(test.leftPadded, test.pad)
			require.NoError(t, err)

			got := encodeString(t, enc, test.value)
			assert.Equal(t, test.wire, got)
			assert.Equal(t, len(test.wire), enc.EncodedLength(len(test.value)))

			pc := parserWith(got)
			decoded, err := enc.Decode(pc, len(test.value))
			require.NoError(t, err)
			assert.Equal(t, test.value, decoded)
			assert.Equal(t, 0, pc.DataLength())
		})
	}
}

func TestBCDStringEncoderErrors(t *testing.T) {
	_, err := BCDStringEncoderFor(true, 0x10)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	fc := NewFormatterContext(0)
	assert.ErrorIs(t, LeftPaddedBCDStringEncoder.Encode("12A", fc), ErrInvalidDigit)

	pc := parserWith([]byte{0x1A})
	_, err = LeftPaddedBCDStringEncoder.Decode(pc, 2)
	assert.ErrorIs(t, err, ErrInvalidBCDDigit)
	assert.Equal(t, 1, pc.DataLength())

	pc = parserWith([]byte{0x12})
	_, err = LeftPaddedBCDStringEncoder.Decode(pc, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestBCDStringEncoderShared(t *testing.T) {
	a, err := BCDStringEncoderFor(true, 0xF)
	require.NoError(t, err)
	b, err := BCDStringEncoderFor(true, 0xF)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Same(t, LeftPaddedBCDStringEncoder, MustBCDStringEncoder(true, 0x0))
	assert.Equal(t, "bcd/left/F", a.String())
}

func TestBCDBinaryEncoder(t *testing.T) {
	_, err := NewBCDBinaryEncoder(nil)
	assert.ErrorIs(t, err, ErrInvalidConfiguration)

	enc, err := NewBCDBinaryEncoder(RightPaddedBCDStringEncoder)
	require.NoError(t, err)

	fc := NewFormatterContext(0)
	require.NoError(t, enc.Encode([]byte("987"), fc))
	assert.Equal(t, []byte{0x98, 0x7F}, fc.Data())

	pc := parserWith(fc.Bytes())
	got, err := enc.Decode(pc, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("987"), got)
}
