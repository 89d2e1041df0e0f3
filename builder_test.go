package iso8583

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderWithFormatter(t *testing.T) {
	mf := newTestFormatter()
	b := NewBuilder(WithFormatter(mf))
	defer b.Release()

	msg, err := b.MTI("0200").
		PAN("4111111111111111").
		ProcessingCode("000000").
		Amount(1500).
		STAN(123).
		Field(52, []byte{1, 2, 3, 4, 5, 6, 7, 8}).
		Build()
	require.NoError(t, err)

	f, err := msg.GetField(FieldPrimaryBitmap)
	require.NoError(t, err)
	primary := f.(*BitmapField)
	for _, n := range []int{2, 3, 4, 11, 52} {
		set, err := primary.IsSet(n)
		require.NoError(t, err)
		assert.True(t, set, "bit %d", n)
	}
	assert.False(t, msg.HasField(FieldSecondaryBitmap))

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, financialRequestWire, string(wire))
}

func TestBuilderFieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(*Builder) *Builder
		field int
		err   error
	}{
		{name: "field without formatter", build: func(b *Builder) *Builder { return b.Field(5, "x") }, field: 5, err: ErrFieldNotConfigured},
		{name: "amount too wide", build: func(b *Builder) *Builder { return b.Amount(1_000_000_000_000) }, field: 4, err: ErrInvalidLength},
		{name: "negative stan", build: func(b *Builder) *Builder { return b.STAN(-1) }, field: 11, err: ErrInvalidField},
		{name: "nested field without nesting", build: func(b *Builder) *Builder { return b.Inner(3, func(*Builder) {}) }, field: 3, err: ErrFieldTypeMismatch},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			b := NewBuilder(WithFormatter(newTestFormatter()))
			defer b.Release()

			_, err := test.build(b.MTI("0200")).Build()
			assert.ErrorIs(t, err, test.err)
			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, test.field, fe.Field)
		})
	}
}

func TestBuilderInner(t *testing.T) {
	mf := newNestingFormatter(newSubFormatter())
	b := NewBuilder(WithFormatter(mf))
	defer b.Release()

	msg, err := b.MTI("0100").
		ProcessingCode("000000").
		STAN(1).
		Inner(48, func(sub *Builder) {
			sub.Field(1, "AB").Field(2, "hello")
		}).
		Build()
	require.NoError(t, err)

	wire, err := mf.FormatBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, nestedWire+"009AB05hello", string(wire))

	_, err = NewBuilder(WithFormatter(mf)).
		Inner(48, func(sub *Builder) { sub.Field(3, "x") }).
		Build()
	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 48, fe.Field)
	assert.ErrorIs(t, err, ErrFieldNotConfigured)
}

func TestBuilderKeepsFirstError(t *testing.T) {
	b := NewBuilder()
	defer b.Release()

	_, err := b.MTI("02X0").Field(-5, "x").Build()
	assert.ErrorIs(t, err, ErrInvalidMTI)
}

func TestBuilderMustBuild(t *testing.T) {
	assert.Panics(t, func() {
		NewBuilder().Field(2, 3.5).MustBuild()
	})

	msg := NewBuilder().MTI("0800").Digits(70, 301, 3).MustBuild()
	assert.False(t, msg.HasField(FieldPrimaryBitmap), "without a formatter bitmaps are left alone")
	assert.Equal(t, "{-1:0800, 70:301}", msg.String())
}

func TestBuilderReleaseResets(t *testing.T) {
	b := NewBuilder()
	b.MTI("bad")
	b.Release()

	b = NewBuilder()
	defer b.Release()
	msg, err := b.MTI("0800").Build()
	require.NoError(t, err)
	assert.Equal(t, "0800", msg.MTI())
}
