package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lacquerai/engine/internal/protocol"
)

// Engine answers line-delimited JSON requests. Every line read produces
// exactly one response line, in order. Lines never share state.
type Engine struct {
	clock   Clock
	logger  zerolog.Logger
	metrics *Metrics
	ready   bool
}

// Option configures an Engine
type Option func(*Engine)

// WithClock sets the clock used for response timestamps
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the logger. Logs must never share the output stream.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records per-line metrics
func WithMetrics(metrics *Metrics) Option {
	return func(e *Engine) {
		e.metrics = metrics
	}
}

// WithReady makes Run write a ready notice before reading any input
func WithReady(ready bool) Option {
	return func(e *Engine) {
		e.ready = ready
	}
}

// New creates an engine
func New(opts ...Option) *Engine {
	e := &Engine{
		clock:  NewMonotonicClock(),
		logger: log.With().Str("component", "engine").Logger(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Run answers every line of in on out until in reaches end-of-stream,
// flushing after each response. Lines end at "\n", "\r\n" or a lone
// "\r". Decode failures are answered with an error response and the
// loop continues. Read and write failures stop
// the loop and are returned. Cancellation is checked between lines.
func (e *Engine) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := newLineReader(bufio.NewReader(in))
	writer := bufio.NewWriter(out)

	if e.ready {
		if err := e.emit(writer, protocol.Ready()); err != nil {
			return err
		}
		e.logger.Debug().Msg("Ready notice written")
	}

	lines := 0
	for {
		if err := ctx.Err(); err != nil {
			e.logger.Debug().Int("lines", lines).Msg("Engine cancelled")
			return err
		}

		line, readErr := reader.ReadLine()
		if len(line) > 0 {
			lines++
			if err := e.emit(writer, e.Handle(line)); err != nil {
				return err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				e.logger.Debug().Int("lines", lines).Msg("Input closed")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", readErr)
		}
	}
}

// Handle builds the response for a single input line.
func (e *Engine) Handle(line []byte) protocol.Response {
	start := time.Now()

	req, err := protocol.Decode(line)
	if err != nil {
		e.logger.Warn().Err(err).Int("bytes", len(line)).Msg("Failed to decode request")
		e.metrics.observe(protocol.StatusError, time.Since(start))
		return protocol.Failure(err)
	}

	resp := protocol.OK(req.Command, e.clock.Now())

	e.logger.Debug().
		Interface("command", req.Command).
		Int("fields", len(req.Fields)).
		Float64("timestamp", resp.Timestamp).
		Msg("Request answered")
	e.metrics.observe(protocol.StatusOK, time.Since(start))

	return resp
}

// emit writes one response line and flushes it
func (e *Engine) emit(w *bufio.Writer, resp protocol.Response) error {
	if err := protocol.Encode(w, resp); err != nil {
		return fmt.Errorf("failed to write response: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush response: %w", err)
	}
	return nil
}
