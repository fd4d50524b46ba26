// Package loader resolves an event log reference to a byte stream. A
// reference is a local file, a directory containing event logs, or an HTTP
// URL (including presigned object-store URLs). Compression is detected from
// content, not file extension: plain, gzip, and zstd streams all come back
// as transparent readers.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrNoEventLogs marks a directory with no plausible event log files.
var ErrNoEventLogs = errors.New("loader: no event logs found")

// appIDPattern matches YARN-style application ids embedded in log file
// names.
var appIDPattern = regexp.MustCompile(`application_\d+_\d+`)

// Spark writes zero-byte appstatus_* marker files next to rolling event
// logs; anything smaller than this is a marker or a stub, not a log.
const minLogSize = 64

const defaultHTTPTimeout = 2 * time.Minute

type options struct {
	client   *http.Client
	maxBytes int64
}

// Option adjusts how references are fetched.
type Option func(*options)

// WithHTTPClient substitutes the client used for URL references.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithMaxBytes caps how many decompressed bytes a reader will yield.
// Zero means unlimited.
func WithMaxBytes(n int64) Option {
	return func(o *options) { o.maxBytes = n }
}

// Open resolves ref and returns a reader over the decompressed event log.
// Directory references resolve to the most recently modified log file
// inside.
func Open(ctx context.Context, ref string, opts ...Option) (io.ReadCloser, error) {
	o := options{client: &http.Client{Timeout: defaultHTTPTimeout}}
	for _, opt := range opts {
		opt(&o)
	}

	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return openURL(ctx, ref, o)
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		ref, err = resolveDir(ref)
		if err != nil {
			return nil, err
		}
	}
	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref, err)
	}
	rc, err := decompress(f, o.maxBytes)
	if err != nil {
		f.Close()
		return nil, err
	}
	return rc, nil
}

// ResolveDir returns the event log file Open would pick for a directory
// reference.
func ResolveDir(dir string) (string, error) { return resolveDir(dir) }

// resolveDir picks the newest plausible event log in a directory, skipping
// appstatus markers and undersized files.
func resolveDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read dir %s: %w", dir, err)
	}
	var (
		best     string
		bestTime time.Time
	)
	for _, e := range entries {
		if e.IsDir() || !plausibleLogName(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.Size() < minLogSize {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = filepath.Join(dir, e.Name())
			bestTime = info.ModTime()
		}
	}
	if best == "" {
		return "", fmt.Errorf("%w in %s", ErrNoEventLogs, dir)
	}
	return best, nil
}

func plausibleLogName(name string) bool {
	if strings.HasPrefix(name, "appstatus_") || strings.HasPrefix(name, ".") {
		return false
	}
	return appIDPattern.MatchString(name) ||
		strings.HasPrefix(name, "events_") ||
		strings.HasPrefix(name, "eventLog")
}

func openURL(ctx context.Context, url string, o options) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	rc, err := decompress(resp.Body, o.maxBytes)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	return rc, nil
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// decompress sniffs the stream's magic bytes and wraps it in the matching
// decoder. The returned closer closes the underlying source.
func decompress(rc io.ReadCloser, maxBytes int64) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	head, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		rc.Close()
		return nil, fmt.Errorf("sniff compression: %w", err)
	}

	var r io.Reader = br
	var closeInner func() error
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		gr, err := gzip.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		r = gr
		closeInner = gr.Close
	case bytes.HasPrefix(head, zstdMagic):
		zr, err := zstd.NewReader(br)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("open zstd stream: %w", err)
		}
		r = zr.IOReadCloser()
	}
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes)
	}
	return &stream{r: r, inner: closeInner, source: rc}, nil
}

type stream struct {
	r      io.Reader
	inner  func() error
	source io.Closer
}

func (s *stream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *stream) Close() error {
	var err error
	if s.inner != nil {
		err = s.inner()
	}
	if cerr := s.source.Close(); err == nil {
		err = cerr
	}
	return err
}
