package iso8583

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldCollection(t *testing.T) {
	fc := NewFieldCollection()
	_, err := fc.MaximumFieldNumber()
	assert.ErrorIs(t, err, ErrEmptyCollection)
	assert.False(t, fc.Dirty())

	fc.Add(NewStringField(11, "000001"))
	fc.Add(NewStringField(3, "000000"))
	fc.Add(NewStringField(FieldMTI, "0200"))
	assert.True(t, fc.Dirty())
	assert.Equal(t, 3, fc.Len())
	assert.Equal(t, []int{-1, 3, 11}, fc.Numbers())

	max, err := fc.MaximumFieldNumber()
	require.NoError(t, err)
	assert.Equal(t, 11, max)

	fc.Add(NewStringField(3, "310000"))
	f, ok := fc.Get(3)
	require.True(t, ok)
	assert.Equal(t, "310000", f.String(), "adding replaces by number")
	assert.Equal(t, 3, fc.Len())

	fc.ResetDirty()
	fc.Remove(99)
	assert.False(t, fc.Dirty(), "removing an absent field is a no-op")
	fc.Remove(3)
	assert.True(t, fc.Dirty())
	assert.False(t, fc.Contains(3))

	fc.ResetDirty()
	fc.Clear()
	assert.True(t, fc.Dirty())
	assert.Equal(t, 0, fc.Len())
}

func TestStringFieldInt(t *testing.T) {
	f := NewStringField(4, "")
	require.NoError(t, f.SetInt(1500, 12))
	assert.Equal(t, "000000001500", f.String())

	n, err := f.Int()
	require.NoError(t, err)
	assert.Equal(t, 1500, n)

	assert.ErrorIs(t, f.SetInt(-1, 0), ErrInvalidField)
	assert.ErrorIs(t, f.SetInt(1, 21), ErrInvalidLength)

	require.NoError(t, f.SetInt(0, 0))
	assert.Equal(t, "0", f.String())
}

func TestMessageSetField(t *testing.T) {
	msg := NewMessage()

	require.NoError(t, msg.SetField(2, "4111111111111111"))
	require.NoError(t, msg.SetField(52, []byte{0x01, 0x02}))
	require.NoError(t, msg.SetField(4, 2500))
	require.NoError(t, msg.SetField(62, NewMessage()))
	require.NoError(t, msg.SetField(39, NewStringField(39, "00")))

	assert.ErrorIs(t, msg.SetField(40, NewStringField(41, "x")), ErrInvalidField)
	assert.ErrorIs(t, msg.SetField(40, 1.5), ErrFieldTypeMismatch)
	assert.ErrorIs(t, msg.SetField(-2, "x"), ErrInvalidField)

	s, err := msg.GetString(2)
	require.NoError(t, err)
	assert.Equal(t, "4111111111111111", s)

	b, err := msg.GetBytes(52)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, b)

	n, err := msg.GetInt(4)
	require.NoError(t, err)
	assert.Equal(t, 2500, n)

	inner, err := msg.GetInnerMessage(62)
	require.NoError(t, err)
	assert.Same(t, msg, inner.Parent())

	_, err = msg.GetString(62)
	assert.ErrorIs(t, err, ErrFieldTypeMismatch)
	_, err = msg.GetInnerMessage(2)
	assert.ErrorIs(t, err, ErrFieldTypeMismatch)
	_, err = msg.GetField(100)
	assert.ErrorIs(t, err, ErrFieldNotFound)

	assert.Equal(t, []int{2, 4, 39, 52, 62}, msg.GetPresentFields())
	msg.RemoveField(4)
	assert.False(t, msg.HasField(4))
}

func TestMessageMTI(t *testing.T) {
	msg := NewMessage(WithMTI("0800"))
	assert.Equal(t, "0800", msg.MTI())
	assert.True(t, msg.IsNMM())

	assert.ErrorIs(t, msg.SetMTI("08A0"), ErrInvalidMTI)
	assert.ErrorIs(t, msg.SetMTI("080"), ErrInvalidMTI)
	assert.Equal(t, "0800", msg.MTI())

	require.NoError(t, msg.SetMTI(MTIFinancialRequest))
	assert.False(t, msg.IsNMM())
}

func TestMessageParentLinks(t *testing.T) {
	root := NewMessage(WithField(2, "root"))
	middle := NewMessage(WithField(3, "middle"))
	leaf := NewMessage()

	middle.AddField(NewInnerMessageField(48, leaf))
	root.AddField(NewInnerMessageField(62, middle))

	assert.Same(t, middle, leaf.Parent())
	assert.Same(t, root, leaf.Root())
	assert.Nil(t, root.Parent())

	f, ok := leaf.ParentField(3)
	require.True(t, ok)
	assert.Equal(t, "middle", f.String())
	_, ok = root.ParentField(3)
	assert.False(t, ok)
}

func TestMessageClone(t *testing.T) {
	inner := NewMessage(WithField(1, "inner"))
	msg := NewMessage(
		WithHeader(NewStringMessageHeader("ISO016000")),
		WithMTI("0200"),
		WithFields(map[int]any{
			2:  "4111111111111111",
			52: []byte{0xAA},
			62: inner,
		}),
	)

	clone := msg.Clone()
	if diff := pretty.Compare(msg.String(), clone.String()); diff != "" {
		t.Errorf("TestMessageClone: diff:\n%s", diff)
	}

	b, err := clone.GetBytes(52)
	require.NoError(t, err)
	b[0] = 0xBB
	orig, err := msg.GetBytes(52)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA}, orig)

	clonedInner, err := clone.GetInnerMessage(62)
	require.NoError(t, err)
	assert.NotSame(t, inner, clonedInner)
	assert.Same(t, clone, clonedInner.Parent())

	clone.Header().(*StringMessageHeader).Value = "changed"
	assert.Equal(t, "ISO016000", msg.Header().String())
}

func TestMessageCreateResponse(t *testing.T) {
	msg := NewMessage(WithMTI("0100"), WithField(11, "000123"))

	resp, err := msg.CreateResponse("00")
	require.NoError(t, err)
	assert.Equal(t, "0110", resp.MTI())
	code, err := resp.GetString(39)
	require.NoError(t, err)
	assert.Equal(t, "00", code)
	stan, err := resp.GetString(11)
	require.NoError(t, err)
	assert.Equal(t, "000123", stan)
	assert.False(t, msg.HasField(39))

	_, err = resp.CreateResponse("00")
	assert.Error(t, err, "a response has no response")
}

func TestMessageCorrectBitmapsWithoutFormatter(t *testing.T) {
	assert.ErrorIs(t, NewMessage().CorrectBitmaps(), ErrNoFormatter)
}

func TestMessageString(t *testing.T) {
	msg := NewMessage(WithHeader(NewStringMessageHeader("H1")), WithMTI("0800"), WithField(70, "301"))
	assert.Equal(t, "[H1] {-1:0800, 70:301}", msg.String())
}

func TestMessageZerologObject(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	msg := NewMessage(WithMTI("0800"), WithField(11, "000001"), WithField(52, []byte{0x0F}))

	logger.Info().Object("iso", msg).Send()

	var out struct {
		Message struct {
			MTI    string            `json:"mti"`
			Fields map[string]string `json:"fields"`
		} `json:"iso"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "0800", out.Message.MTI)
	assert.Equal(t, map[string]string{"11": "000001", "52": "0F"}, out.Message.Fields)
}

func TestMessageLogValue(t *testing.T) {
	msg := NewMessage(WithMTI("0200"), WithField(3, "000000"))
	v := msg.LogValue()
	attrs := v.Group()
	require.Len(t, attrs, 2)
	assert.Equal(t, "MTI", attrs[0].Key)
	assert.Equal(t, "0200", attrs[0].Value.String())
	assert.Equal(t, "Fields", attrs[1].Key)
}
