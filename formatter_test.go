package iso8583

import (
	"errors"
	"fmt"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func llvar(max int) *VariableLengthManager {
	return MustVariableLengthManager(0, max, MustStringLengthEncoder(99))
}

func lllvar(max int) *VariableLengthManager {
	return MustVariableLengthManager(0, max, MustStringLengthEncoder(999))
}

func fixed(n int) *FixedLengthManager {
	return MustFixedLengthManager(n)
}

// newTestFormatter is a small 1987-style layout: MTI, hex bitmaps and a
// handful of data elements.
func newTestFormatter(opts ...FormatterOption) *MessageFormatter {
	numeric := MustFieldValidator(&NumericRule{})
	return NewMessageFormatter(opts...).MustAdd(
		MustStringFieldFormatter(FieldMTI, "MTI", fixed(4), ASCIIStringEncoder, WithValidator(numeric)),
		MustBitmapFieldFormatter(FieldPrimaryBitmap, "primary bitmap", 1, 64, HexBinaryEncoder),
		MustBitmapFieldFormatter(FieldSecondaryBitmap, "secondary bitmap", 65, 128, HexBinaryEncoder),
		MustStringFieldFormatter(2, "PAN", llvar(19), ASCIIStringEncoder, WithValidator(numeric)),
		MustStringFieldFormatter(3, "processing code", fixed(6), ASCIIStringEncoder, WithPadder(ZeroLeftPadder)),
		MustStringFieldFormatter(4, "amount", fixed(12), ASCIIStringEncoder, WithPadder(ZeroLeftPadder)),
		MustStringFieldFormatter(11, "STAN", fixed(6), ASCIIStringEncoder, WithPadder(ZeroLeftPadder)),
		MustStringFieldFormatter(39, "response code", fixed(2), ASCIIStringEncoder, WithPadder(SpaceRightPadder)),
		MustStringFieldFormatter(48, "additional data", lllvar(999), ASCIIStringEncoder),
		MustBinaryFieldFormatter(52, "PIN block", fixed(8), HexBinaryEncoder),
		MustStringFieldFormatter(70, "network management code", fixed(3), ASCIIStringEncoder),
	)
}

func newFinancialRequest(mf *MessageFormatter) *Message {
	return NewMessage(
		WithFormatter(mf),
		WithMTI("0200"),
		WithFields(map[int]any{
			2:  "4111111111111111",
			3:  "000000",
			4:  "000000001500",
			11: "000123",
			52: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		}),
	)
}

const financialRequestWire = "0200" +
	"7020000000001000" +
	"164111111111111111" +
	"000000" +
	"000000001500" +
	"000123" +
	"0102030405060708"

func TestMessageFormatterFormat(t *testing.T) {
	mf := newTestFormatter()
	msg := newFinancialRequest(mf)

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, financialRequestWire, string(wire))
	assert.False(t, msg.Fields().Dirty())
	assert.True(t, msg.HasField(FieldPrimaryBitmap))
	assert.False(t, msg.HasField(FieldSecondaryBitmap))
}

func TestMessageFormatterRoundTrip(t *testing.T) {
	mf := newTestFormatter()
	msg := newFinancialRequest(mf)
	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)

	parsed, err := mf.ParseBytes(wire)
	require.NoError(t, err)
	assert.Same(t, mf, parsed.Formatter())
	if diff := pretty.Compare(msg.String(), parsed.String()); diff != "" {
		t.Errorf("TestMessageFormatterRoundTrip: diff:\n%s", diff)
	}

	again, err := mf.FormatBytes(parsed)
	require.NoError(t, err)
	assert.Equal(t, wire, again)
}

func TestMessageFormatterResumesAtEverySplit(t *testing.T) {
	mf := newTestFormatter()
	want := newFinancialRequest(mf)
	wire, err := mf.FormatBytes(want)
	require.NoError(t, err)

	for i := 1; i < len(wire); i++ {
		pc := NewParserContext(0)
		pc.Write(wire[:i])

		msg, ok, err := mf.Parse(pc)
		require.NoError(t, err, "split at %d", i)
		require.False(t, ok, "split at %d", i)
		require.Nil(t, msg)
		assert.Equal(t, i, pc.Offset()+pc.BufferedLength(), "split at %d: bytes lost", i)

		pc.Write(wire[i:])
		msg, ok, err = mf.Parse(pc)
		require.NoError(t, err, "split at %d", i)
		require.True(t, ok, "split at %d", i)
		assert.Equal(t, want.String(), msg.String(), "split at %d", i)
		assert.Equal(t, 0, pc.DataLength(), "split at %d", i)
		assert.Nil(t, pc.CurrentMessage())
	}
}

func TestMessageFormatterByteByByte(t *testing.T) {
	mf := newTestFormatter()
	want := newFinancialRequest(mf)
	require.NoError(t, want.SetField(70, "301"))
	require.NoError(t, want.SetField(48, "MORE DATA"))
	wire, err := mf.FormatBytes(want)
	require.NoError(t, err)

	pc := NewParserContext(1)
	lastOffset := 0
	for i, b := range wire {
		pc.Write([]byte{b})
		msg, ok, err := mf.Parse(pc)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pc.Offset(), lastOffset)
		lastOffset = pc.Offset()
		if i < len(wire)-1 {
			require.False(t, ok, "complete after %d of %d bytes", i+1, len(wire))
			continue
		}
		require.True(t, ok)
		assert.Equal(t, want.String(), msg.String())
	}
	assert.Equal(t, 0, pc.DataLength())
}

func TestMessageFormatterBackToBack(t *testing.T) {
	mf := newTestFormatter()
	first := newFinancialRequest(mf)
	second := NewMessage(WithFormatter(mf), WithMTI("0800"), WithField(11, "000002"), WithField(70, "301"))

	a, err := mf.FormatBytes(first)
	require.NoError(t, err)
	b, err := mf.FormatBytes(second)
	require.NoError(t, err)

	pc := NewParserContext(0)
	pc.Write(append(a, b...))

	msg, ok, err := mf.Parse(pc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0200", msg.MTI())

	msg, ok, err = mf.Parse(pc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0800", msg.MTI())
	code, err := msg.GetString(70)
	require.NoError(t, err)
	assert.Equal(t, "301", code)
	assert.Equal(t, 0, pc.DataLength())
}

func TestMessageFormatterSecondaryBitmap(t *testing.T) {
	mf := newTestFormatter()
	msg := NewMessage(WithFormatter(mf), WithMTI("0800"), WithField(3, "000000"), WithField(11, "000001"), WithField(70, "301"))

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, "0800"+"A020000000000000"+"0400000000000000"+"000000"+"000001"+"301", string(wire))

	msg.RemoveField(70)
	wire, err = mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, "0800"+"2020000000000000"+"000000"+"000001", string(wire))
	assert.False(t, msg.HasField(FieldSecondaryBitmap), "an empty extension bitmap is dropped")
}

func TestMessageFormatterTertiaryBitmap(t *testing.T) {
	mf := NewMessageFormatter().MustAdd(
		MustBitmapFieldFormatter(FieldPrimaryBitmap, "primary", 1, 64, RawBinaryEncoder),
		MustBitmapFieldFormatter(FieldSecondaryBitmap, "secondary", 65, 128, RawBinaryEncoder),
		MustBitmapFieldFormatter(FieldTertiaryBitmap, "tertiary", 129, 192, RawBinaryEncoder),
		MustStringFieldFormatter(2, "two", fixed(1), ASCIIStringEncoder),
		MustStringFieldFormatter(130, "one thirty", fixed(1), ASCIIStringEncoder),
	)
	msg := NewMessage(WithFormatter(mf), WithField(130, "X"))

	require.NoError(t, msg.CorrectBitmaps())
	for _, n := range []int{FieldPrimaryBitmap, FieldSecondaryBitmap, FieldTertiaryBitmap} {
		assert.True(t, msg.HasField(n), "bitmap %d", n)
	}
	primary, err := msg.GetBytes(FieldPrimaryBitmap)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0, 0, 0, 0, 0, 0, 0}, primary)
	secondary, err := msg.GetBytes(FieldSecondaryBitmap)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0, 0, 0, 0, 0, 0, 0}, secondary)
	tertiary, err := msg.GetBytes(FieldTertiaryBitmap)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40, 0, 0, 0, 0, 0, 0, 0}, tertiary)

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Len(t, wire, 8*3+1)

	parsed, err := mf.ParseBytes(wire)
	require.NoError(t, err)
	v, err := parsed.GetString(130)
	require.NoError(t, err)
	assert.Equal(t, "X", v)
}

func TestMessageFormatterMissingMandatory(t *testing.T) {
	mf := newTestFormatter()
	msg := NewMessage(WithFormatter(mf), WithField(11, "000001"))

	fc := NewFormatterContext(0)
	fc.WriteString("KEEP")
	err := mf.Format(msg, fc)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FieldMTI, fe.Field)
	assert.ErrorIs(t, err, ErrMissingMandatoryField)
	assert.Equal(t, "KEEP", string(fc.Data()), "a failed format leaves the context as it was")
}

func TestMessageFormatterRequire(t *testing.T) {
	mf := newTestFormatter()
	mf.Require(11)

	msg := NewMessage(WithFormatter(mf), WithMTI("0800"), WithField(70, "301"))
	_, err := mf.FormatBytes(msg)
	assert.ErrorIs(t, err, ErrMissingMandatoryField)

	wire, err := newTestFormatter().FormatBytes(msg)
	require.NoError(t, err)
	_, err = mf.ParseBytes(wire)
	assert.ErrorIs(t, err, ErrMissingMandatoryField)
}

func TestMessageFormatterUnconfiguredField(t *testing.T) {
	mf := newTestFormatter()
	msg := NewMessage(WithFormatter(mf), WithMTI("0200"), WithField(5, "000000000001"))

	_, err := mf.FormatBytes(msg)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 5, fe.Field)
	assert.ErrorIs(t, err, ErrFieldNotConfigured)
}

func TestMessageFormatterBitmapFlagsUnknownField(t *testing.T) {
	mf := newTestFormatter()
	pc := NewParserContext(0)
	// bit 5 has no formatter
	pc.WriteString("0200" + "0800000000000000")

	_, ok, err := mf.Parse(pc)
	assert.False(t, ok)
	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, FieldPrimaryBitmap, de.Field)
	assert.Equal(t, 4, de.Offset)
	assert.ErrorIs(t, err, ErrFieldNotConfigured)
	assert.Nil(t, pc.CurrentMessage(), "a decode fault drops the message in progress")
}

func TestMessageFormatterParseValidationFault(t *testing.T) {
	mf := newTestFormatter()
	second := "0800" + "0020000000000000" + "000002"
	pc := NewParserContext(0)
	pc.WriteString("02X0" + "2000000000000000" + "000000" + second)

	msg, ok, err := mf.Parse(pc)
	require.True(t, ok, "a rejected value does not stop the message")
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, FieldMTI, ve.Field)
	assert.Equal(t, "02X0", msg.MTI())
	code, err := msg.GetString(3)
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
	assert.Nil(t, pc.CurrentMessage())
	assert.Equal(t, len(second), pc.DataLength())

	msg, ok, err = mf.Parse(pc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "0800", msg.MTI())
	stan, err := msg.GetString(11)
	require.NoError(t, err)
	assert.Equal(t, "000002", stan)
	assert.Equal(t, 0, pc.DataLength())
}

func TestMessageFormatterParseKeepsFirstValidationFault(t *testing.T) {
	mf := newTestFormatter()
	wire := "02X0" + "4000000000000000" + "044A11"

	msg, err := mf.ParseBytes([]byte(wire))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, FieldMTI, ve.Field)
	require.NotNil(t, msg)
	pan, err := msg.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "4A11", pan)
}

func TestMessageFormatterFormatPrimaryBitmap(t *testing.T) {
	mf := NewMessageFormatter().MustAdd(
		MustBitmapFieldFormatter(FieldPrimaryBitmap, "primary bitmap", 1, 64, HexBinaryEncoder),
	)
	values := make(map[int]any, len(primaryBitmapFields))
	want := "1208202010CA1183"
	for _, n := range primaryBitmapFields {
		mf.MustAdd(MustStringFieldFormatter(n, fmt.Sprintf("field %d", n), fixed(2), ASCIIStringEncoder))
		values[n] = fmt.Sprintf("%02d", n)
		want += fmt.Sprintf("%02d", n)
	}

	msg := NewMessage(WithFormatter(mf), WithFields(values))
	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, want, string(wire))

	parsed, err := mf.ParseBytes(wire)
	require.NoError(t, err)
	assert.Equal(t, primaryBitmapFields, parsed.Fields().Numbers()[1:])
}

func TestMessageFormatterParseBytes(t *testing.T) {
	mf := newTestFormatter()
	wire := []byte(financialRequestWire)

	_, err := mf.ParseBytes(wire[:len(wire)-2])
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = mf.ParseBytes(append(wire, '0'))
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestMessageFormatterFieldError(t *testing.T) {
	mf := newTestFormatter()
	msg := newFinancialRequest(mf)
	require.NoError(t, msg.SetField(2, "41111111111111111111"))

	_, err := mf.FormatBytes(msg)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 2, fe.Field)
	assert.ErrorIs(t, err, ErrLengthOutOfRange)
}

func TestMessageFormatterReplace(t *testing.T) {
	var replaced []string
	mf := newTestFormatter(WithReplaceHook(func(old, replacement FieldFormatter) {
		replaced = append(replaced, old.Description()+" -> "+replacement.Description())
	}))

	require.NoError(t, mf.Add(MustStringFieldFormatter(39, "action code", fixed(3), ASCIIStringEncoder)))
	assert.Equal(t, []string{"response code -> action code"}, replaced)

	ff, ok := mf.FieldFormatter(39)
	require.True(t, ok)
	assert.Equal(t, "action code", ff.Description())
	assert.Equal(t, []int{-1, 0, 1, 2, 3, 4, 11, 39, 48, 52, 70}, mf.FieldNumbers())
}

func TestMessageFormatterAddRejects(t *testing.T) {
	mf := NewMessageFormatter()
	assert.ErrorIs(t, mf.Add(nil), ErrInvalidConfiguration)
	assert.Panics(t, func() {
		mf.MustAdd(nil)
	})
}

func TestMessageFormatterCorrectBitmapsRejectsForeignField(t *testing.T) {
	mf := newTestFormatter()
	msg := NewMessage(WithFormatter(mf), WithMTI("0200"))
	msg.AddField(NewStringField(FieldPrimaryBitmap, "oops"))

	err := msg.CorrectBitmaps()
	assert.ErrorIs(t, err, ErrInvalidBitmap)
}

func TestMessageFormatterHeader(t *testing.T) {
	hf := MustStringMessageHeaderFormatter(fixed(6), ASCIIStringEncoder, SpaceRightPadder)
	mf := newTestFormatter(WithHeaderFormatter(hf))
	msg := newFinancialRequest(mf)
	msg.SetHeader(NewStringMessageHeader("ISO"))

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, "ISO   "+financialRequestWire, string(wire))

	pc := NewParserContext(0)
	pc.Write(wire[:4])
	_, ok, err := mf.Parse(pc)
	require.NoError(t, err)
	require.False(t, ok)

	pc.Write(wire[4:])
	parsed, ok, err := mf.Parse(pc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ISO", parsed.Header().String())
}

func TestMessageFormatterHeaderTooLong(t *testing.T) {
	hf := MustStringMessageHeaderFormatter(fixed(2), ASCIIStringEncoder, nil)
	mf := newTestFormatter(WithHeaderFormatter(hf))
	msg := newFinancialRequest(mf)
	msg.SetHeader(NewStringMessageHeader("ISO"))

	_, err := mf.FormatBytes(msg)
	assert.ErrorIs(t, err, ErrInvalidHeader)
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, FieldHeader, fe.Field)
}
