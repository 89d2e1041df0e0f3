package iso8583

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthIndicator(t *testing.T) {
	tests := []struct {
		name   string
		config LengthIndicatorConfig
		length int
		wire   []byte
	}{
		{name: "binary 2", config: LengthIndicatorConfig{Type: LengthIndicatorBinary, Length: 2}, length: 300, wire: []byte{0x01, 0x2C}},
		{name: "binary 4", config: LengthIndicatorConfig{Type: LengthIndicatorBinary, Length: 4}, length: 70000, wire: []byte{0x00, 0x01, 0x11, 0x70}},
		{name: "ascii", config: LengthIndicatorConfig{Type: LengthIndicatorASCII, Length: 4}, length: 123, wire: []byte("0123")},
		{name: "hex", config: LengthIndicatorConfig{Type: LengthIndicatorHex, Length: 4}, length: 0x1F, wire: []byte("001F")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, len(test.wire), test.config.IndicatorLength())

			buf := make([]byte, 8)
			n, err := WriteLengthIndicator(test.length, buf, test.config)
			require.NoError(t, err)
			assert.Equal(t, test.wire, buf[:n])

			length, width, err := ReadLengthIndicator(test.wire, test.config)
			require.NoError(t, err)
			assert.Equal(t, test.length, length)
			assert.Equal(t, len(test.wire), width)
		})
	}
}

func TestLengthIndicatorNone(t *testing.T) {
	none := LengthIndicatorConfig{}
	assert.Equal(t, 0, none.IndicatorLength())

	n, err := WriteLengthIndicator(10, nil, none)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	length, width, err := ReadLengthIndicator([]byte("0800"), none)
	require.NoError(t, err)
	assert.Equal(t, 4, length)
	assert.Equal(t, 0, width)
}

func TestLengthIndicatorErrors(t *testing.T) {
	ascii := LengthIndicatorConfig{Type: LengthIndicatorASCII, Length: 4}
	binary := LengthIndicatorConfig{Type: LengthIndicatorBinary, Length: 2}

	_, err := WriteLengthIndicator(1, make([]byte, 4), LengthIndicatorConfig{Type: LengthIndicatorASCII, Length: 3})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = WriteLengthIndicator(1, make([]byte, 4), LengthIndicatorConfig{Type: LengthIndicatorBinary, Length: 3})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
	_, err = WriteLengthIndicator(1, make([]byte, 4), LengthIndicatorConfig{Type: LengthIndicatorType(9), Length: 4})
	assert.ErrorIs(t, err, ErrUnsupportedLengthType)

	_, err = WriteLengthIndicator(10000, make([]byte, 4), ascii)
	assert.ErrorIs(t, err, ErrLengthOutOfRange)
	_, err = WriteLengthIndicator(0x10000, make([]byte, 4), binary)
	assert.ErrorIs(t, err, ErrLengthOutOfRange)
	_, err = WriteLengthIndicator(10, make([]byte, 1), binary)
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	_, _, err = ReadLengthIndicator([]byte("01"), ascii)
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, _, err = ReadLengthIndicator([]byte("01X3"), ascii)
	assert.ErrorIs(t, err, ErrInvalidDigit)
	_, _, err = ReadLengthIndicator([]byte("00G1"), LengthIndicatorConfig{Type: LengthIndicatorHex, Length: 4})
	assert.ErrorIs(t, err, ErrInvalidHexDigit)
}

func TestFrameMessage(t *testing.T) {
	framed, err := FrameMessage([]byte("0800"), LengthIndicatorConfig{Type: LengthIndicatorASCII, Length: 4})
	require.NoError(t, err)
	assert.Equal(t, "00040800", string(framed))

	_, err = FrameMessage(make([]byte, 256), LengthIndicatorConfig{Type: LengthIndicatorHex, Length: 2})
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestReadFrameLength(t *testing.T) {
	config := LengthIndicatorConfig{Type: LengthIndicatorBinary, Length: 2}
	pc := parserWith([]byte{0x00})

	_, ok, err := readFrameLength(pc, config)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, pc.DataLength(), "a partial indicator is left in place")

	pc.Write([]byte{0x10, 'x'})
	n, ok, err := readFrameLength(pc, config)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 16, n)
	assert.Equal(t, 1, pc.DataLength())
}
