package iso8583

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

const defaultReadSize = 4096

// Processor provides high-level processing for ISO8583 messages on top of a
// MessageFormatter: single buffers, concurrent batches and byte streams.
type Processor struct {
	formatter    *MessageFormatter
	framing      LengthIndicatorConfig
	concurrency  int         // Max number of goroutines for batches
	readSize     int         // Bytes requested per stream read
	errorHandler func(error) // Callback for handling errors
	metrics      *ProcessorMetrics
	logger       zerolog.Logger
}

// ProcessorOption defines a function signature for configuring a Processor.
type ProcessorOption func(*Processor)

// WithConcurrency sets the maximum number of concurrent goroutines for the processor.
func WithConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithReadSize sets how many bytes ProcessStream asks for per read.
func WithReadSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.readSize = n
		}
	}
}

// WithErrorHandler sets a custom error handler for errors encountered during
// batch or stream processing.
func WithErrorHandler(handler func(error)) ProcessorOption {
	return func(p *Processor) {
		p.errorHandler = handler
	}
}

// WithFraming expects every message to be preceded by a length indicator.
func WithFraming(config LengthIndicatorConfig) ProcessorOption {
	return func(p *Processor) {
		p.framing = config
	}
}

// WithMetrics records processing counters.
func WithMetrics(m *ProcessorMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithProcessorLogger sets the processor logger.
func WithProcessorLogger(logger zerolog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new Processor with the given formatter and options.
func NewProcessor(formatter *MessageFormatter, opts ...ProcessorOption) *Processor {
	p := &Processor{
		formatter:   formatter,
		concurrency: 4,
		readSize:    defaultReadSize,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.errorHandler == nil {
		p.errorHandler = func(err error) {
			p.logger.Error().Err(err).Msg("processor error")
		}
	}
	return p
}

// NewPackagerProcessor uses the formatter and framing of a compiled packager.
func NewPackagerProcessor(cp *CompiledPackager, opts ...ProcessorOption) *Processor {
	opts = append([]ProcessorOption{WithFraming(cp.LengthIndicator())}, opts...)
	return NewProcessor(cp.Formatter(), opts...)
}

// Process decodes a single message. With framing configured, data must hold
// the indicator followed by exactly the announced number of bytes.
func (p *Processor) Process(data []byte) (*Message, error) {
	payload := data
	if p.framing.Type != LengthIndicatorNone {
		n, width, err := ReadLengthIndicator(data, p.framing)
		if err != nil {
			p.metrics.decodeFault(err)
			return nil, err
		}
		switch rest := len(data) - width; {
		case rest < n:
			err = fmt.Errorf("%w: frame announces %d bytes, got %d", ErrInsufficientData, n, rest)
		case rest > n:
			err = fmt.Errorf("%w: %d bytes after the frame", ErrTrailingData, rest-n)
		}
		if err != nil {
			p.metrics.decodeFault(err)
			return nil, err
		}
		payload = data[width:]
	}

	msg, err := p.formatter.ParseBytes(payload)
	if err != nil {
		p.metrics.decodeFault(err)
		return nil, err
	}
	p.metrics.messageDecoded(msg)
	return msg, nil
}

// ProcessBatch decodes a slice of raw messages concurrently.
// It uses a semaphore to limit concurrency to p.concurrency. The results
// keep the input order; the first error is returned with partial results.
func (p *Processor) ProcessBatch(ctx context.Context, dataSlice [][]byte) ([]*Message, error) {
	results := make([]*Message, len(dataSlice))
	errs := make([]error, len(dataSlice))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.concurrency) // Limit concurrent goroutines

	for i, data := range dataSlice {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return results, err
		}
		select {
		case <-ctx.Done():
			wg.Wait() // Wait for already-running jobs
			return results, ctx.Err()
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int, msgData []byte) {
			defer wg.Done()
			defer func() { <-semaphore }()

			msg, err := p.Process(msgData)
			if err != nil {
				errs[idx] = fmt.Errorf("message %d: %w", idx, err)
				p.errorHandler(errs[idx])
				return
			}
			results[idx] = msg
		}(i, data)
	}

	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// ProcessStream reads r until EOF and sends every message to output as soon
// as its last byte has arrived, however the bytes are split across reads.
// A message with values rejected by a validator is reported to the error
// handler and skipped. A decode fault stops the stream, since the position
// of the next message is unknown after it.
func (p *Processor) ProcessStream(ctx context.Context, r io.Reader, output chan<- *Message) error {
	pc := NewParserContext(p.readSize * 2)
	buf := make([]byte, p.readSize)
	framed := p.framing.Type != LengthIndicatorNone
	inFrame := false

	for {
		for {
			if framed && !inFrame {
				n, ok, err := readFrameLength(pc, p.framing)
				if err != nil {
					return p.streamFault(pc, err)
				}
				if !ok {
					break
				}
				if err := pc.SetFrontier(n); err != nil {
					return p.streamFault(pc, err)
				}
				inFrame = true
			}

			if pc.DataLength() == 0 && pc.CurrentMessage() == nil {
				if !inFrame {
					break
				}
				if frontier, _ := pc.Frontier(); frontier > pc.Offset() {
					break
				}
			}

			msg, ok, err := p.formatter.Parse(pc)
			if err != nil && !ok {
				return p.streamFault(pc, err)
			}
			if !ok {
				if inFrame && frameComplete(pc) {
					return p.streamFault(pc, fmt.Errorf("%w: message truncated by its frame", ErrInsufficientData))
				}
				p.metrics.suspended()
				break
			}

			if inFrame {
				if rest := pc.DataLength(); rest > 0 {
					return p.streamFault(pc, fmt.Errorf("%w: %d bytes left in frame", ErrTrailingData, rest))
				}
				pc.ClearFrontier()
				inFrame = false
			}

			if err != nil {
				// rejected values: the message is dropped, the stream stays aligned
				p.metrics.decodeFault(err)
				p.logger.Warn().Err(err).Str("mti", msg.MTI()).Int("offset", pc.Offset()).Msg("message rejected")
				p.errorHandler(err)
				continue
			}

			p.metrics.messageDecoded(msg)
			p.logger.Debug().Str("mti", msg.MTI()).Int("offset", pc.Offset()).Msg("message decoded")
			select {
			case output <- msg:
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := r.Read(buf)
		if n > 0 {
			pc.Write(buf[:n])
			p.metrics.read(n)
		}
		if errors.Is(err, io.EOF) {
			if n > 0 {
				continue
			}
			if inFrame || pc.BufferedLength() > 0 || pc.CurrentMessage() != nil {
				return p.streamFault(pc, fmt.Errorf("%w: stream ended inside a message", ErrInsufficientData))
			}
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// frameComplete tells whether every byte up to the frontier is buffered.
func frameComplete(pc *ParserContext) bool {
	frontier, ok := pc.Frontier()
	return ok && pc.Offset()+pc.BufferedLength() >= frontier
}

func (p *Processor) streamFault(pc *ParserContext, err error) error {
	p.metrics.decodeFault(err)
	p.logger.Warn().Err(err).Int("offset", pc.Offset()).Msg("stream aborted")
	p.errorHandler(err)
	pc.ResetState()
	return err
}

// faultKind maps an error to a short label for metrics.
func faultKind(err error) string {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.Is(err, ErrInsufficientData):
		return "truncated"
	case errors.Is(err, ErrTrailingData):
		return "trailing"
	case errors.Is(err, ErrLengthOutOfRange), errors.Is(err, ErrInvalidLength):
		return "length"
	case errors.Is(err, ErrInvalidBitmap):
		return "bitmap"
	case errors.Is(err, ErrFieldNotConfigured), errors.Is(err, ErrUnexpectedAnnouncement):
		return "layout"
	default:
		return "other"
	}
}
