package iso8583

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidMTI            = errors.New("invalid MTI")
	ErrInvalidField          = errors.New("invalid field")
	ErrFieldNotFound         = errors.New("field not found")
	ErrInvalidLength         = errors.New("invalid field length")
	ErrLengthOutOfRange      = errors.New("length out of range")
	ErrInvalidBitmap         = errors.New("invalid bitmap")
	ErrInvalidTLV            = errors.New("invalid TLV data")
	ErrValidationFailed      = errors.New("validation failed")
	ErrBufferTooSmall        = errors.New("buffer too small")
	ErrInvalidHeader         = errors.New("invalid header")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrTrailingData          = errors.New("trailing data after message")
	ErrEmptyCollection       = errors.New("field collection is empty")
	ErrMissingMandatoryField = errors.New("missing mandatory field")

	ErrInvalidConfiguration   = errors.New("invalid configuration")
	ErrFieldNotConfigured     = errors.New("field not configured")
	ErrUnsupportedLengthType  = errors.New("unsupported length type")
	ErrInvalidHexDigit        = errors.New("invalid hex digit")
	ErrInvalidBCDDigit        = errors.New("invalid BCD digit")
	ErrInvalidDigit           = errors.New("invalid decimal digit")
	ErrInvalidCharacter       = errors.New("character not representable in charset")
	ErrFieldTypeMismatch      = errors.New("field type mismatch")
	ErrUnexpectedAnnouncement = errors.New("unexpected self-announced field")
	ErrNoFormatter            = errors.New("message has no formatter")
)

// FieldError reports a failure while formatting a single field.
type FieldError struct {
	Field int
	Err   error
}

func (fe *FieldError) Error() string {
	return fmt.Sprintf("field %d: %v", fe.Field, fe.Err)
}

func (fe *FieldError) Unwrap() error {
	return fe.Err
}

// DecodeError is a fault found while parsing wire bytes. Offset is the
// absolute position in the parser context where the fault was detected.
// A DecodeError is fatal to the message in progress: the caller should drop
// the ParserContext (or at least call ResetState and Clear on it).
type DecodeError struct {
	Field  int
	Offset int
	Err    error
}

func (de *DecodeError) Error() string {
	return fmt.Sprintf("decode field %d at offset %d: %v", de.Field, de.Offset, de.Err)
}

func (de *DecodeError) Unwrap() error {
	return de.Err
}

// ValidationError is returned when a field value does not satisfy a
// configured rule. It only concerns the one field: a parse that meets one
// still reads the message to its end.
type ValidationError struct {
	Field   int
	Rule    string
	Message string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %d (%s): %s", ve.Field, ve.Rule, ve.Message)
}

func (ve *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

type TLVError struct {
	Tag []byte
	Err error
}

func (te *TLVError) Error() string {
	return fmt.Sprintf("TLV tag %x: %v", te.Tag, te.Err)
}

func (te *TLVError) Unwrap() error {
	return te.Err
}

// decodeFault wraps err into a DecodeError unless it already is one, or is a
// validation error, which keeps its own identity.
func decodeFault(field, offset int, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &DecodeError{Field: field, Offset: offset, Err: err}
}
