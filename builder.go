package iso8583

import (
	"fmt"
	"sync"
)

var builderPool = sync.Pool{
	New: func() interface{} { return new(Builder) },
}

// Builder assembles a message field by field. The first failure sticks and
// is returned by Build; later calls are ignored.
type Builder struct {
	msg *Message
	err error
}

func NewBuilder(opts ...MessageOption) *Builder {
	b := builderPool.Get().(*Builder)
	b.msg = NewMessage(opts...)
	b.err = nil
	return b
}

// Release returns the builder to the pool. A message already built stays
// with its caller.
func (b *Builder) Release() {
	b.msg = nil
	b.err = nil
	builderPool.Put(b)
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) MTI(mti string) *Builder {
	if b.err != nil {
		return b
	}
	if err := b.msg.SetMTI(mti); err != nil {
		return b.fail(err)
	}
	return b
}

func (b *Builder) Header(h MessageHeader) *Builder {
	if b.err == nil {
		b.msg.SetHeader(h)
	}
	return b
}

// Field sets any value Message.SetField accepts. With a formatter attached,
// the number must have a formatter of its own.
func (b *Builder) Field(n int, value any) *Builder {
	if b.err != nil {
		return b
	}
	if mf := b.msg.Formatter(); mf != nil {
		if _, ok := mf.FieldFormatter(n); !ok {
			return b.fail(&FieldError{Field: n, Err: ErrFieldNotConfigured})
		}
	}
	if err := b.msg.SetField(n, value); err != nil {
		return b.fail(err)
	}
	return b
}

// Digits stores a non-negative number zero padded to width digits.
func (b *Builder) Digits(n, value, width int) *Builder {
	if b.err != nil {
		return b
	}
	f := NewStringField(n, "")
	if err := f.SetInt(value, width); err != nil {
		return b.fail(&FieldError{Field: n, Err: err})
	}
	if len(f.value) > width {
		return b.fail(&FieldError{Field: n, Err: fmt.Errorf("%w: %d does not fit in %d digits", ErrInvalidLength, value, width)})
	}
	return b.Field(n, f)
}

func (b *Builder) PAN(pan string) *Builder { return b.Field(2, pan) }

func (b *Builder) ProcessingCode(code string) *Builder { return b.Field(3, code) }

// Amount is the transaction amount in minor units.
func (b *Builder) Amount(minor int) *Builder { return b.Digits(4, minor, 12) }

func (b *Builder) STAN(stan int) *Builder { return b.Digits(11, stan, 6) }

// Inner builds the nested message of field n with the formatter configured
// for it, so its bitmaps are corrected like the outer ones.
func (b *Builder) Inner(n int, build func(*Builder)) *Builder {
	if b.err != nil {
		return b
	}
	var opts []MessageOption
	if mf := b.msg.Formatter(); mf != nil {
		ff, ok := mf.FieldFormatter(n)
		if !ok {
			return b.fail(&FieldError{Field: n, Err: ErrFieldNotConfigured})
		}
		inner, ok := ff.(*InnerMessageFieldFormatter)
		if !ok {
			return b.fail(&FieldError{Field: n, Err: fmt.Errorf("%w: field %d does not hold a nested message", ErrFieldTypeMismatch, n)})
		}
		opts = append(opts, WithFormatter(inner.MessageFormatter()))
	}

	sub := NewBuilder(opts...)
	defer sub.Release()
	build(sub)
	msg, err := sub.Build()
	if err != nil {
		return b.fail(&FieldError{Field: n, Err: err})
	}
	return b.Field(n, msg)
}

// Build hands the message over. Bitmaps are corrected when the message has a
// formatter to work from.
func (b *Builder) Build() (*Message, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.msg.Formatter() != nil {
		if err := b.msg.CorrectBitmaps(); err != nil {
			return nil, err
		}
	}
	msg := b.msg
	b.msg = nil
	return msg, nil
}

func (b *Builder) MustBuild() *Message {
	msg, err := b.Build()
	if err != nil {
		panic(err)
	}
	return msg
}
