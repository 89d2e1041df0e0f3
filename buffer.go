package iso8583

import "fmt"

const (
	defaultContextCapacity = 2048

	// lengthUnset marks the decoded length slot as empty.
	lengthUnset = -1
	// noFrontier means decoding may look up to the upper data bound.
	noFrontier = -1
)

// ParserContext is the decode-side buffer. Bytes are appended with Write and
// consumed by formatters as they complete fields. Between calls it also
// keeps the state of a message whose parsing was suspended because not all
// of its bytes had arrived yet.
//
// A ParserContext must not be used from more than one goroutine at a time.
type ParserContext struct {
	buffer   []byte
	lower    int
	upper    int
	base     int // bytes discarded by compaction, keeps Offset absolute
	frontier int

	currentMessage     *Message
	currentIndex       int
	currentField       int
	currentBitmap      *BitmapField
	decodedLength      int
	announcementParsed bool
	headerParsed       bool
	validationFault    error // first rejected value of the current message
}

// NewParserContext returns an empty context with room for capacity bytes.
func NewParserContext(capacity int) *ParserContext {
	if capacity <= 0 {
		capacity = defaultContextCapacity
	}
	pc := &ParserContext{buffer: make([]byte, capacity)}
	pc.ResetState()
	return pc
}

// Write appends data after the last buffered byte.
func (pc *ParserContext) Write(data []byte) {
	if len(data) == 0 {
		return
	}
	pc.ensureFreeSpace(len(data))
	copy(pc.buffer[pc.upper:], data)
	pc.upper += len(data)
}

// WriteString appends the bytes of s.
func (pc *ParserContext) WriteString(s string) {
	pc.Write([]byte(s))
}

// ensureFreeSpace makes room for n more bytes. Consumed bytes at the front
// are reclaimed first; only then does the store grow, doubling until the
// data fits.
func (pc *ParserContext) ensureFreeSpace(n int) {
	if len(pc.buffer)-pc.upper >= n {
		return
	}
	pending := pc.upper - pc.lower
	if pc.lower > 0 && len(pc.buffer)-pending >= n {
		copy(pc.buffer, pc.buffer[pc.lower:pc.upper])
		if pc.frontier != noFrontier {
			pc.frontier -= pc.lower
		}
		pc.base += pc.lower
		pc.upper = pending
		pc.lower = 0
		return
	}
	size := len(pc.buffer) * 2
	if size == 0 {
		size = defaultContextCapacity
	}
	for size-pc.upper < n {
		size *= 2
	}
	grown := make([]byte, size)
	copy(grown, pc.buffer[:pc.upper])
	pc.buffer = grown
}

// Consumed advances the lower data bound by n bytes.
func (pc *ParserContext) Consumed(n int) error {
	if n < 0 || n > pc.DataLength() {
		return fmt.Errorf("%w: cannot consume %d of %d buffered bytes", ErrInvalidLength, n, pc.DataLength())
	}
	pc.lower += n
	if pc.lower == pc.upper && pc.frontier == noFrontier {
		pc.base += pc.lower
		pc.lower = 0
		pc.upper = 0
	}
	return nil
}

// DataLength reports how many bytes can be read, honoring the frontier.
func (pc *ParserContext) DataLength() int {
	limit := pc.upper
	if pc.frontier != noFrontier && pc.frontier < limit {
		limit = pc.frontier
	}
	return limit - pc.lower
}

// BufferedLength reports every byte written and not yet consumed, ignoring
// the frontier.
func (pc *ParserContext) BufferedLength() int {
	return pc.upper - pc.lower
}

// Offset is the absolute position of the next unread byte since the
// context was created.
func (pc *ParserContext) Offset() int {
	return pc.base + pc.lower
}

// Capacity returns the size of the backing store.
func (pc *ParserContext) Capacity() int {
	return len(pc.buffer)
}

// Peek returns the next n bytes without consuming them. The slice aliases
// the internal store and is only valid until the next Write.
func (pc *ParserContext) Peek(n int) ([]byte, bool) {
	return pc.PeekAt(0, n)
}

// PeekAt is Peek starting offset bytes past the lower bound.
func (pc *ParserContext) PeekAt(offset, n int) ([]byte, bool) {
	if offset < 0 || n < 0 || offset+n > pc.DataLength() {
		return nil, false
	}
	start := pc.lower + offset
	return pc.buffer[start : start+n], true
}

// Read returns a copy of the next n bytes and consumes them.
func (pc *ParserContext) Read(n int) ([]byte, error) {
	data, ok := pc.Peek(n)
	if !ok {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrInsufficientData, n, pc.DataLength())
	}
	out := make([]byte, n)
	copy(out, data)
	pc.lower += n
	return out, nil
}

// Clear drops every buffered byte. Resumable state is left alone.
func (pc *ParserContext) Clear() {
	pc.base += pc.upper
	pc.lower = 0
	pc.upper = 0
}

// ResetState forgets any partially decoded message and removes the
// frontier.
func (pc *ParserContext) ResetState() {
	pc.clearMessageState()
	pc.frontier = noFrontier
}

// clearMessageState drops the per-message slots. The frontier belongs to
// whoever set it and is left alone.
func (pc *ParserContext) clearMessageState() {
	pc.currentMessage = nil
	pc.currentIndex = 0
	pc.currentField = 0
	pc.currentBitmap = nil
	pc.decodedLength = lengthUnset
	pc.announcementParsed = false
	pc.headerParsed = false
	pc.validationFault = nil
}

// CurrentMessage is the message being assembled, or nil between messages.
func (pc *ParserContext) CurrentMessage() *Message {
	return pc.currentMessage
}

// CurrentField is the field number the parser stopped at.
func (pc *ParserContext) CurrentField() int {
	return pc.currentField
}

// CurrentBitmap is the last bitmap completely decoded for the current message.
func (pc *ParserContext) CurrentBitmap() *BitmapField {
	return pc.currentBitmap
}

// DecodedLength returns a length prefix that has been read but whose data
// has not been consumed yet.
func (pc *ParserContext) DecodedLength() (int, bool) {
	return pc.decodedLength, pc.decodedLength != lengthUnset
}

func (pc *ParserContext) setDecodedLength(n int) {
	pc.decodedLength = n
}

func (pc *ParserContext) clearFieldState() {
	pc.decodedLength = lengthUnset
	pc.announcementParsed = false
}

// AnnouncementParsed tells whether a self-announced tag has been consumed for
// the field in progress.
func (pc *ParserContext) AnnouncementParsed() bool {
	return pc.announcementParsed
}

// Frontier returns the absolute offset decoding may not look past.
func (pc *ParserContext) Frontier() (int, bool) {
	if pc.frontier == noFrontier {
		return 0, false
	}
	return pc.base + pc.frontier, true
}

// SetFrontier limits decoding to the next n bytes, which need not all be
// buffered yet. It is used to parse a framed message without reading into
// the next one.
func (pc *ParserContext) SetFrontier(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: frontier %d", ErrInvalidLength, n)
	}
	limit := pc.lower + n
	if pc.frontier != noFrontier && limit > pc.frontier {
		return fmt.Errorf("%w: frontier beyond the enclosing one", ErrInvalidLength)
	}
	pc.frontier = limit
	return nil
}

// ClearFrontier lets decoding see every buffered byte again.
func (pc *ParserContext) ClearFrontier() {
	pc.frontier = noFrontier
}

// parserState is a snapshot of the resumable slots, used to parse a nested
// message in place without disturbing the enclosing one.
type parserState struct {
	currentMessage     *Message
	currentIndex       int
	currentField       int
	currentBitmap      *BitmapField
	decodedLength      int
	announcementParsed bool
	headerParsed       bool
	validationFault    error
	frontier           int
}

func (pc *ParserContext) saveState() parserState {
	return parserState{
		currentMessage:     pc.currentMessage,
		currentIndex:       pc.currentIndex,
		currentField:       pc.currentField,
		currentBitmap:      pc.currentBitmap,
		decodedLength:      pc.decodedLength,
		announcementParsed: pc.announcementParsed,
		headerParsed:       pc.headerParsed,
		validationFault:    pc.validationFault,
		frontier:           pc.frontier,
	}
}

func (pc *ParserContext) restoreState(s parserState) {
	pc.currentMessage = s.currentMessage
	pc.currentIndex = s.currentIndex
	pc.currentField = s.currentField
	pc.currentBitmap = s.currentBitmap
	pc.decodedLength = s.decodedLength
	pc.announcementParsed = s.announcementParsed
	pc.headerParsed = s.headerParsed
	pc.validationFault = s.validationFault
	pc.frontier = s.frontier
}

// FormatterContext is the encode-side buffer formatters append to.
type FormatterContext struct {
	buffer         []byte
	upper          int
	currentMessage *Message
}

// NewFormatterContext returns an empty context with room for capacity bytes.
func NewFormatterContext(capacity int) *FormatterContext {
	if capacity <= 0 {
		capacity = defaultContextCapacity
	}
	return &FormatterContext{buffer: make([]byte, capacity)}
}

func (fc *FormatterContext) ensureFreeSpace(n int) {
	if len(fc.buffer)-fc.upper >= n {
		return
	}
	size := len(fc.buffer) * 2
	if size == 0 {
		size = defaultContextCapacity
	}
	for size-fc.upper < n {
		size *= 2
	}
	grown := make([]byte, size)
	copy(grown, fc.buffer[:fc.upper])
	fc.buffer = grown
}

// Write appends data.
func (fc *FormatterContext) Write(data []byte) {
	fc.ensureFreeSpace(len(data))
	copy(fc.buffer[fc.upper:], data)
	fc.upper += len(data)
}

// WriteByte appends a single byte. It never fails.
func (fc *FormatterContext) WriteByte(b byte) error {
	fc.ensureFreeSpace(1)
	fc.buffer[fc.upper] = b
	fc.upper++
	return nil
}

// WriteString appends the bytes of s.
func (fc *FormatterContext) WriteString(s string) {
	fc.ensureFreeSpace(len(s))
	copy(fc.buffer[fc.upper:], s)
	fc.upper += len(s)
}

// grow reserves n bytes at the end and returns them for in-place encoding.
func (fc *FormatterContext) grow(n int) []byte {
	fc.ensureFreeSpace(n)
	start := fc.upper
	fc.upper += n
	return fc.buffer[start:fc.upper]
}

// Len is the number of bytes written so far.
func (fc *FormatterContext) Len() int {
	return fc.upper
}

// Capacity returns the size of the backing store.
func (fc *FormatterContext) Capacity() int {
	return len(fc.buffer)
}

// Data returns the written bytes. The slice aliases the internal store.
func (fc *FormatterContext) Data() []byte {
	return fc.buffer[:fc.upper]
}

// Bytes returns a copy of the written bytes and clears the context.
func (fc *FormatterContext) Bytes() []byte {
	out := make([]byte, fc.upper)
	copy(out, fc.buffer[:fc.upper])
	fc.Clear()
	return out
}

// Clear drops the written bytes, keeping the backing store.
func (fc *FormatterContext) Clear() {
	fc.upper = 0
	fc.currentMessage = nil
}

// CurrentMessage is the message being formatted, or nil outside Format.
func (fc *FormatterContext) CurrentMessage() *Message {
	return fc.currentMessage
}

// truncate rolls the context back to n written bytes.
func (fc *FormatterContext) truncate(n int) {
	if n >= 0 && n < fc.upper {
		fc.upper = n
	}
}
