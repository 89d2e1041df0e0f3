package iso8583

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// MessageFormatter lays out a whole message: an optional header, then every
// configured field in ascending field number. Fields covered by a bitmap are
// only written and read when their bit is set; fields no bitmap governs are
// mandatory.
//
// A MessageFormatter is configured once and may then be shared by any number
// of goroutines, each with its own contexts. Add must not race with Format
// or Parse.
type MessageFormatter struct {
	header      MessageHeaderFormatter
	formatters  map[int]FieldFormatter
	numbers     []int
	bitmaps     []*BitmapFieldFormatter
	required    map[int]bool
	logger      zerolog.Logger
	replaceHook func(old, replacement FieldFormatter)
}

// FormatterOption configures a MessageFormatter.
type FormatterOption func(*MessageFormatter)

// WithLogger sets the logger used for debug events.
func WithLogger(logger zerolog.Logger) FormatterOption {
	return func(mf *MessageFormatter) {
		mf.logger = logger
	}
}

// WithReplaceHook is called whenever Add replaces an existing formatter.
func WithReplaceHook(hook func(old, replacement FieldFormatter)) FormatterOption {
	return func(mf *MessageFormatter) {
		mf.replaceHook = hook
	}
}

// WithHeaderFormatter sets the header formatter.
func WithHeaderFormatter(hf MessageHeaderFormatter) FormatterOption {
	return func(mf *MessageFormatter) {
		mf.header = hf
	}
}

func NewMessageFormatter(opts ...FormatterOption) *MessageFormatter {
	mf := &MessageFormatter{
		formatters: make(map[int]FieldFormatter),
		required:   make(map[int]bool),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(mf)
	}
	return mf
}

// SetHeaderFormatter sets or, with nil, removes the header formatter.
func (mf *MessageFormatter) SetHeaderFormatter(hf MessageHeaderFormatter) {
	mf.header = hf
}

func (mf *MessageFormatter) HeaderFormatter() MessageHeaderFormatter {
	return mf.header
}

// Add registers ff under its field number, replacing any previous formatter
// for that number. Self-announced formatters of one message must share the
// same prefix and tag layout, since the tag is read before the formatter is
// known.
func (mf *MessageFormatter) Add(ff FieldFormatter) error {
	if ff == nil {
		return fmt.Errorf("%w: nil field formatter", ErrInvalidConfiguration)
	}
	n := ff.FieldNumber()
	if n < FieldMTI {
		return fmt.Errorf("%w: field number %d", ErrInvalidConfiguration, n)
	}
	if af, ok := ff.(AnnouncedFieldFormatter); ok {
		for other, existing := range mf.formatters {
			oa, ok := existing.(AnnouncedFieldFormatter)
			if !ok || other == n {
				continue
			}
			if oa.layoutKey() != af.layoutKey() {
				return fmt.Errorf("%w: self-announced field %d layout %s differs from field %d layout %s",
					ErrInvalidConfiguration, n, af.layoutKey(), other, oa.layoutKey())
			}
		}
	}

	if old, exists := mf.formatters[n]; exists {
		mf.logger.Debug().
			Int("field", n).
			Str("old", old.Description()).
			Str("new", ff.Description()).
			Msg("replacing field formatter")
		if mf.replaceHook != nil {
			mf.replaceHook(old, ff)
		}
	} else {
		mf.numbers = append(mf.numbers, n)
		sort.Ints(mf.numbers)
	}
	mf.formatters[n] = ff

	bitmaps := mf.bitmaps[:0]
	for _, num := range mf.numbers {
		if bm, ok := mf.formatters[num].(*BitmapFieldFormatter); ok {
			bitmaps = append(bitmaps, bm)
		}
	}
	mf.bitmaps = bitmaps
	return nil
}

// MustAdd panics when ff is rejected.
func (mf *MessageFormatter) MustAdd(ffs ...FieldFormatter) *MessageFormatter {
	for _, ff := range ffs {
		if err := mf.Add(ff); err != nil {
			panic(err)
		}
	}
	return mf
}

// Require makes gated fields mandatory: formatting fails without them and a
// parsed message lacking them is rejected.
func (mf *MessageFormatter) Require(numbers ...int) {
	for _, n := range numbers {
		mf.required[n] = true
	}
}

// FieldFormatter returns the formatter configured for field n.
func (mf *MessageFormatter) FieldFormatter(n int) (FieldFormatter, bool) {
	ff, ok := mf.formatters[n]
	return ff, ok
}

// FieldNumbers lists the configured field numbers in ascending order.
func (mf *MessageFormatter) FieldNumbers() []int {
	out := make([]int, len(mf.numbers))
	copy(out, mf.numbers)
	return out
}

// governorOf is the bitmap deciding whether field n is present: the last
// bitmap below n whose range covers it.
func (mf *MessageFormatter) governorOf(n int) *BitmapFieldFormatter {
	var governor *BitmapFieldFormatter
	for _, bm := range mf.bitmaps {
		if bm.number >= n {
			break
		}
		if bm.Covers(n) {
			governor = bm
		}
	}
	return governor
}

// CorrectBitmaps rewrites every bitmap of msg from the fields present.
// Bitmaps are processed from the highest number down, so an empty extension
// bitmap is dropped before the bitmap that governs it is computed.
func (mf *MessageFormatter) CorrectBitmaps(msg *Message) error {
	for i := len(mf.bitmaps) - 1; i >= 0; i-- {
		bmf := mf.bitmaps[i]
		var bm *BitmapField
		if f, ok := msg.fields.Get(bmf.number); ok {
			bm, ok = f.(*BitmapField)
			if !ok || bm.lower != bmf.lower || bm.upper != bmf.upper {
				return &FieldError{Field: bmf.number, Err: fmt.Errorf("%w: field holds a %s", ErrInvalidBitmap, f.Kind())}
			}
			bm.Clear()
		} else {
			bm = bmf.NewField()
		}

		for _, n := range msg.fields.Numbers() {
			if bmf.Covers(n) && mf.governorOf(n) == bmf {
				_ = bm.Set(n)
			}
		}

		if bm.IsEmpty() && mf.governorOf(bmf.number) != nil {
			msg.fields.Remove(bmf.number)
			continue
		}
		msg.fields.Add(bm)
	}
	msg.fields.ResetDirty()
	return nil
}

func (mf *MessageFormatter) bitmapsMissing(msg *Message) bool {
	for _, bmf := range mf.bitmaps {
		if mf.governorOf(bmf.number) == nil && !msg.fields.Contains(bmf.number) {
			return true
		}
	}
	return false
}

// Format appends the wire form of msg to fc. On failure fc is rolled back
// to its length before the call.
func (mf *MessageFormatter) Format(msg *Message, fc *FormatterContext) error {
	if msg == nil {
		return fmt.Errorf("%w: nil message", ErrInvalidField)
	}
	if msg.fields.Dirty() || mf.bitmapsMissing(msg) {
		if err := mf.CorrectBitmaps(msg); err != nil {
			return err
		}
	}

	start := fc.Len()
	enclosing := fc.currentMessage
	fc.currentMessage = msg
	defer func() { fc.currentMessage = enclosing }()

	if err := mf.format(msg, fc); err != nil {
		fc.truncate(start)
		return err
	}
	return nil
}

func (mf *MessageFormatter) format(msg *Message, fc *FormatterContext) error {
	for _, n := range msg.fields.Numbers() {
		if _, ok := mf.formatters[n]; !ok {
			return &FieldError{Field: n, Err: ErrFieldNotConfigured}
		}
	}

	if mf.header != nil {
		if err := mf.header.Format(msg.header, fc); err != nil {
			return &FieldError{Field: FieldHeader, Err: err}
		}
	}

	var announcedDone map[int]bool
	for _, n := range mf.numbers {
		ff := mf.formatters[n]
		f, ok := msg.fields.Get(n)
		if !ok && (mf.governorOf(n) == nil || mf.required[n]) {
			return &FieldError{Field: n, Err: ErrMissingMandatoryField}
		}
		if _, announced := ff.(AnnouncedFieldFormatter); announced {
			if announcedDone == nil {
				announcedDone = make(map[int]bool)
			}
			if err := mf.formatAnnounced(msg, fc, n, announcedDone); err != nil {
				return err
			}
			continue
		}
		if !ok {
			continue
		}
		if err := ff.Format(f, fc); err != nil {
			return &FieldError{Field: n, Err: err}
		}
	}
	return nil
}

// formatAnnounced writes, at the position of self-announced field at, every
// present self-announced field Parse reads there: those whose bitmap comes
// before at. Parse takes them all in one run, so positional fields may not
// sit between them on the wire.
func (mf *MessageFormatter) formatAnnounced(msg *Message, fc *FormatterContext, at int, done map[int]bool) error {
	for _, n := range mf.numbers {
		if n < at || done[n] {
			continue
		}
		ff, announced := mf.formatters[n].(AnnouncedFieldFormatter)
		if !announced {
			continue
		}
		if governor := mf.governorOf(n); governor != nil && governor.number > at {
			continue
		}
		f, ok := msg.fields.Get(n)
		if !ok {
			continue
		}
		if err := ff.Format(f, fc); err != nil {
			return &FieldError{Field: n, Err: err}
		}
		done[n] = true
	}
	return nil
}

// FormatBytes formats msg into a new byte slice.
func (mf *MessageFormatter) FormatBytes(msg *Message) ([]byte, error) {
	fc := acquireFormatterContext()
	defer releaseFormatterContext(fc)
	if err := mf.Format(msg, fc); err != nil {
		return nil, err
	}
	return fc.Bytes(), nil
}

// expected tells whether field n must be read for the message in progress.
// A gated field whose bitmap has not been read yet is not expected.
func (mf *MessageFormatter) expected(msg *Message, n int) bool {
	governor := mf.governorOf(n)
	if governor == nil {
		return true
	}
	f, ok := msg.fields.Get(governor.number)
	if !ok {
		return false
	}
	bm, ok := f.(*BitmapField)
	if !ok {
		return false
	}
	set, err := bm.IsSet(n)
	return err == nil && set
}

// Parse decodes the next message from pc. It returns (nil, false, nil) when
// pc does not hold the whole message yet; the progress made is kept in pc
// and the next call resumes from there.
//
// A value rejected by a validator does not stop the parse: the message is
// read to its end and returned with ok set and the first *ValidationError,
// leaving pc at the start of the next message. Any other error ends the
// message in progress.
func (mf *MessageFormatter) Parse(pc *ParserContext) (*Message, bool, error) {
	if pc.currentMessage == nil {
		pc.currentMessage = NewMessage(WithFormatter(mf))
		pc.currentIndex = 0
		pc.headerParsed = false
	}
	msg := pc.currentMessage

	if mf.header != nil && !pc.headerParsed {
		h, ok, err := mf.header.Parse(pc)
		if err != nil {
			return mf.fail(pc, FieldHeader, err)
		}
		if !ok {
			return mf.suspend(pc, FieldHeader)
		}
		msg.header = h
		pc.headerParsed = true
	}

	for pc.currentIndex < len(mf.numbers) {
		n := mf.numbers[pc.currentIndex]
		ff := mf.formatters[n]

		if _, announced := ff.(AnnouncedFieldFormatter); announced {
			ok, err := mf.parseAnnounced(pc, msg)
			if err != nil {
				return mf.fail(pc, pc.currentField, err)
			}
			if !ok {
				return mf.suspend(pc, pc.currentField)
			}
			pc.currentIndex++
			continue
		}

		if !mf.expected(msg, n) {
			pc.currentIndex++
			continue
		}

		pc.currentField = n
		offset := pc.Offset()
		f, ok, err := ff.Parse(pc)
		if err != nil && !mf.rejected(pc, f, ok, err) {
			return mf.fail(pc, n, err)
		}
		if !ok {
			return mf.suspend(pc, n)
		}
		if bm, isBitmap := f.(*BitmapField); isBitmap {
			if err := mf.checkBitmap(bm); err != nil {
				return mf.fail(pc, n, decodeFault(n, offset, err))
			}
			pc.currentBitmap = bm
		}
		msg.AddField(f)
		pc.currentIndex++
	}

	for n := range mf.required {
		if !msg.fields.Contains(n) {
			return mf.fail(pc, n, fmt.Errorf("%w: field %d", ErrMissingMandatoryField, n))
		}
	}

	msg.fields.ResetDirty()
	fault := pc.validationFault
	pc.clearMessageState()
	if fault != nil {
		mf.logger.Debug().Err(fault).Str("mti", msg.MTI()).Msg("message decoded with rejected values")
	}
	return msg, true, fault
}

// rejected records a validation fault on a completely decoded field and
// tells whether parsing may go on.
func (mf *MessageFormatter) rejected(pc *ParserContext, f Field, ok bool, err error) bool {
	var ve *ValidationError
	if !ok || f == nil || !errors.As(err, &ve) {
		return false
	}
	if pc.validationFault == nil {
		pc.validationFault = err
	}
	return true
}

// parseAnnounced reads self-announced fields in wire order until every
// expected one has arrived. It is safe to call again after a suspension.
func (mf *MessageFormatter) parseAnnounced(pc *ParserContext, msg *Message) (bool, error) {
	for {
		var pending []AnnouncedFieldFormatter
		for _, n := range mf.numbers {
			af, ok := mf.formatters[n].(AnnouncedFieldFormatter)
			if !ok || msg.fields.Contains(n) || !mf.expected(msg, n) {
				continue
			}
			pending = append(pending, af)
		}
		if len(pending) == 0 {
			return true, nil
		}

		offset := pc.Offset()
		tag, ok, err := pending[0].ParseFieldNumber(pc)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}

		var next AnnouncedFieldFormatter
		for _, af := range pending {
			if af.FieldNumber() == tag {
				next = af
				break
			}
		}
		if next == nil {
			if _, configured := mf.formatters[tag]; !configured {
				return false, decodeFault(tag, offset, fmt.Errorf("%w: announced field %d", ErrFieldNotConfigured, tag))
			}
			return false, decodeFault(tag, offset, fmt.Errorf("%w: field %d was not expected here", ErrUnexpectedAnnouncement, tag))
		}

		f, ok, err := next.Parse(pc)
		if err != nil && !mf.rejected(pc, f, ok, err) {
			return false, err
		}
		if !ok {
			return false, nil
		}
		msg.AddField(f)
	}
}

// checkBitmap rejects bits set for fields nothing can decode.
func (mf *MessageFormatter) checkBitmap(bm *BitmapField) error {
	for _, n := range bm.Present() {
		if _, ok := mf.formatters[n]; !ok {
			return fmt.Errorf("%w: bitmap %d flags field %d", ErrFieldNotConfigured, bm.number, n)
		}
	}
	return nil
}

func (mf *MessageFormatter) suspend(pc *ParserContext, field int) (*Message, bool, error) {
	mf.logger.Debug().
		Int("field", field).
		Int("buffered", pc.DataLength()).
		Msg("parse suspended, waiting for more data")
	return nil, false, nil
}

func (mf *MessageFormatter) fail(pc *ParserContext, field int, err error) (*Message, bool, error) {
	err = decodeFault(field, pc.Offset(), err)
	mf.logger.Debug().
		Err(err).
		Int("field", field).
		Int("offset", pc.Offset()).
		Msg("message decode failed")
	pc.clearMessageState()
	return nil, false, err
}

// ParseBytes decodes exactly one message from data. A message holding
// rejected values is returned along with its *ValidationError.
func (mf *MessageFormatter) ParseBytes(data []byte) (*Message, error) {
	pc := NewParserContext(len(data))
	pc.Write(data)
	msg, ok, err := mf.Parse(pc)
	if err != nil && !ok {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: message incomplete after %d bytes", ErrInsufficientData, len(data))
	}
	if rest := pc.DataLength(); rest > 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, rest)
	}
	return msg, err
}
