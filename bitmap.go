package iso8583

import (
	"fmt"
)

// BitmapField is a bit vector flagging which fields of [lower, upper] are
// present. Bits are stored MSB first: field lower is bit 0x80 of byte 0.
// Bitmaps chain: the bitmap numbered 1 (65..128) is itself flagged by bit 1
// of the primary bitmap, and so on.
type BitmapField struct {
	number int
	lower  int
	upper  int
	bits   []byte
}

// NewBitmapField returns a cleared bitmap over [lower, upper].
func NewBitmapField(number, lower, upper int) (*BitmapField, error) {
	if lower < 0 || upper < lower {
		return nil, fmt.Errorf("%w: bitmap range [%d, %d]", ErrInvalidConfiguration, lower, upper)
	}
	return &BitmapField{
		number: number,
		lower:  lower,
		upper:  upper,
		bits:   make([]byte, bitmapBytes(lower, upper)),
	}, nil
}

// MustBitmapField panics on an invalid range.
func MustBitmapField(number, lower, upper int) *BitmapField {
	bm, err := NewBitmapField(number, lower, upper)
	if err != nil {
		panic(err)
	}
	return bm
}

func bitmapBytes(lower, upper int) int {
	return (upper - lower + 8) / 8
}

func (bm *BitmapField) FieldNumber() int      { return bm.number }
func (bm *BitmapField) Kind() FieldKind       { return KindBitmap }
func (bm *BitmapField) Value() any            { return bm.Bytes() }
func (bm *BitmapField) LowerFieldNumber() int { return bm.lower }
func (bm *BitmapField) UpperFieldNumber() int { return bm.upper }

// Covers tells whether field number n falls within the bitmap's range.
func (bm *BitmapField) Covers(n int) bool {
	return n >= bm.lower && n <= bm.upper
}

func (bm *BitmapField) position(n int) (int, byte, error) {
	if !bm.Covers(n) {
		return 0, 0, fmt.Errorf("%w: field %d outside bitmap %d range [%d, %d]",
			ErrInvalidBitmap, n, bm.number, bm.lower, bm.upper)
	}
	offset := n - bm.lower
	return offset / 8, byte(0x80) >> (offset % 8), nil
}

// Set flags field n as present.
func (bm *BitmapField) Set(n int) error {
	idx, mask, err := bm.position(n)
	if err != nil {
		return err
	}
	bm.bits[idx] |= mask
	return nil
}

// Unset clears the flag of field n.
func (bm *BitmapField) Unset(n int) error {
	idx, mask, err := bm.position(n)
	if err != nil {
		return err
	}
	bm.bits[idx] &^= mask
	return nil
}

// IsSet reports whether field n is flagged.
func (bm *BitmapField) IsSet(n int) (bool, error) {
	idx, mask, err := bm.position(n)
	if err != nil {
		return false, err
	}
	return bm.bits[idx]&mask != 0, nil
}

// Clear zeroes every bit.
func (bm *BitmapField) Clear() {
	for i := range bm.bits {
		bm.bits[i] = 0
	}
}

// Bytes returns a copy of the bit vector.
func (bm *BitmapField) Bytes() []byte {
	out := make([]byte, len(bm.bits))
	copy(out, bm.bits)
	return out
}

// SetBytes replaces the bit vector. data must have exactly the bitmap's size.
func (bm *BitmapField) SetBytes(data []byte) error {
	if len(data) != len(bm.bits) {
		return fmt.Errorf("%w: bitmap %d needs %d bytes, got %d", ErrInvalidBitmap, bm.number, len(bm.bits), len(data))
	}
	copy(bm.bits, data)
	return nil
}

// ByteLength is the size of the bit vector.
func (bm *BitmapField) ByteLength() int {
	return len(bm.bits)
}

// Present returns the flagged field numbers in ascending order.
func (bm *BitmapField) Present() []int {
	fields := make([]int, 0, 16)
	for n := bm.lower; n <= bm.upper; n++ {
		offset := n - bm.lower
		if bm.bits[offset/8]&(byte(0x80)>>(offset%8)) != 0 {
			fields = append(fields, n)
		}
	}
	return fields
}

// IsEmpty reports whether no bit is set.
func (bm *BitmapField) IsEmpty() bool {
	for _, b := range bm.bits {
		if b != 0 {
			return false
		}
	}
	return true
}

// String renders the bit vector as upper-case hex.
func (bm *BitmapField) String() string {
	out := make([]byte, len(bm.bits)*2)
	encodeHexUpper(out, bm.bits)
	return string(out)
}

func (bm *BitmapField) Clone() Field {
	return &BitmapField{
		number: bm.number,
		lower:  bm.lower,
		upper:  bm.upper,
		bits:   bm.Bytes(),
	}
}
