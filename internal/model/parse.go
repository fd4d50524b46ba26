package model

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/hibana/internal/eventlog"
)

// ErrUnusableInput marks a stream in which not a single line decoded as an
// event. Empty input, non-JSON files, and logs from other systems all land
// here.
var ErrUnusableInput = errors.New("model: no decodable events in input")

const (
	// Spark writes one event per line; large stages produce lines well past
	// bufio's default token limit.
	initialLineBuf = 64 * 1024
	maxLineBuf     = 16 * 1024 * 1024

	defaultBatchSize = 512
)

type parseOptions struct {
	parallelism int
	batchSize   int
}

// ParseOption adjusts how Parse consumes the stream.
type ParseOption func(*parseOptions)

// WithParallelism decodes lines on n goroutines. Model construction stays
// sequential and event order is preserved, so the result is byte-identical
// to a sequential parse. n < 2 keeps the single-threaded path.
func WithParallelism(n int) ParseOption {
	return func(o *parseOptions) { o.parallelism = n }
}

// WithBatchSize sets how many lines each decode batch carries when
// parallelism is enabled.
func WithBatchSize(n int) ParseOption {
	return func(o *parseOptions) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// Parse reads a line-delimited event stream and reconstructs the execution
// model. Malformed lines and unknown event kinds are absorbed into the
// model's diagnostics; the only error conditions are a read failure, a
// cancelled context, and a stream with no decodable events at all.
func Parse(ctx context.Context, r io.Reader, opts ...ParseOption) (*Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := parseOptions{batchSize: defaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}

	b := newBuilder()

	var err error
	if o.parallelism > 1 {
		err = parseParallel(ctx, r, b, o)
	} else {
		err = parseSequential(ctx, r, b)
	}
	if err != nil {
		return nil, err
	}
	if b.recognized == 0 {
		return nil, ErrUnusableInput
	}
	return b.finalize(), nil
}

func parseSequential(ctx context.Context, r io.Reader, b *builder) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, initialLineBuf), maxLineBuf)

	var n int
	for sc.Scan() {
		if n++; n%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := eventlog.Decode(line)
		if err != nil {
			b.m.Diags.MalformedLines++
			continue
		}
		b.apply(ev)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read event log: %w", err)
	}
	return nil
}

// decoded is one line's outcome: an event, or a malformed marker.
type decoded struct {
	ev        eventlog.Event
	malformed bool
}

// job is one batch of raw lines plus the channel its results come back on.
// The results channel is buffered so decode workers never block on the
// consumer.
type job struct {
	lines   [][]byte
	results chan []decoded
}

// parseParallel fans raw lines out to decode workers in fixed-size batches
// and folds the results back in submission order, so the built model is
// independent of worker scheduling.
func parseParallel(ctx context.Context, r io.Reader, b *builder, o parseOptions) error {
	g, ctx := errgroup.WithContext(ctx)

	work := make(chan *job, o.parallelism)
	ordered := make(chan *job, o.parallelism*2)

	g.Go(func() error {
		defer close(work)
		defer close(ordered)

		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, initialLineBuf), maxLineBuf)

		batch := make([][]byte, 0, o.batchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			j := &job{lines: batch, results: make(chan []decoded, 1)}
			batch = make([][]byte, 0, o.batchSize)
			select {
			case work <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
			select {
			case ordered <- j:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		}

		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			// the scanner reuses its buffer across Scan calls
			batch = append(batch, append([]byte(nil), line...))
			if len(batch) == o.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		if err := sc.Err(); err != nil {
			return fmt.Errorf("read event log: %w", err)
		}
		return flush()
	})

	for range o.parallelism {
		g.Go(func() error {
			for j := range work {
				out := make([]decoded, len(j.lines))
				for i, line := range j.lines {
					ev, err := eventlog.Decode(line)
					if err != nil {
						out[i] = decoded{malformed: true}
						continue
					}
					out[i] = decoded{ev: ev}
				}
				select {
				case j.results <- out:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		for j := range ordered {
			var out []decoded
			select {
			case out = <-j.results:
			case <-ctx.Done():
				return ctx.Err()
			}
			for _, d := range out {
				if d.malformed {
					b.m.Diags.MalformedLines++
					continue
				}
				b.apply(d.ev)
			}
		}
		return nil
	})

	return g.Wait()
}
