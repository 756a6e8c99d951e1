package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Transport moves the bytes of one artifact into partPath.
//
// Fetch resumes from whatever partPath already holds when the remote allows it.
// onBytes is called with the cumulative bytes in partPath and the expected
// total (-1 when unknown). Fetch returns the final size of partPath, fsynced.
type Transport interface {
	Fetch(ctx context.Context, url, partPath string, onBytes func(written, expected int64)) (int64, error)
}

const defaultBufferSize = 256 << 10

// HTTPTransport is a resumable GET transport.
type HTTPTransport struct {
	Client     *http.Client
	UserAgent  string
	BufferSize int
}

func (t *HTTPTransport) client() *http.Client {
	if t.Client != nil {
		return t.Client
	}
	return http.DefaultClient
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, url, partPath string, onBytes func(written, expected int64)) (int64, error) {
	var offset int64
	if fi, err := os.Stat(partPath); err == nil && fi.Mode().IsRegular() {
		offset = fi.Size()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	if t.UserAgent != "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if offset > 0 {
		req.Header.Set("Range", "bytes="+strconv.FormatInt(offset, 10)+"-")
	}
	resp, err := t.client().Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	expected := int64(-1)
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok {
			expected = total
		} else if resp.ContentLength >= 0 {
			expected = offset + resp.ContentLength
		}
	case http.StatusOK:
		// server ignored the range; start over
		flags |= os.O_TRUNC
		offset = 0
		expected = resp.ContentLength
	case http.StatusRequestedRangeNotSatisfiable:
		if total, ok := contentRangeTotal(resp.Header.Get("Content-Range")); ok && offset > 0 && total == offset {
			onBytes(offset, offset)
			return offset, nil
		}
		return 0, statusError{url: url, code: resp.StatusCode}
	default:
		return 0, statusError{url: url, code: resp.StatusCode}
	}

	f, err := os.OpenFile(partPath, flags, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open part file: %w", err)
	}
	pw := &progressWriter{w: f, written: offset, expected: expected, onBytes: onBytes}
	onBytes(offset, expected)
	size := t.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	_, copyErr := io.CopyBuffer(pw, resp.Body, make([]byte, size))
	syncErr := f.Sync()
	closeErr := f.Close()
	if copyErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return pw.written, ctxErr
		}
		return pw.written, copyErr
	}
	if err := errors.Join(syncErr, closeErr); err != nil {
		return pw.written, fmt.Errorf("flush part file: %w", err)
	}
	if expected >= 0 && pw.written != expected {
		return pw.written, fmt.Errorf("short transfer: %d of %d bytes: %w", pw.written, expected, io.ErrUnexpectedEOF)
	}
	return pw.written, nil
}

type progressWriter struct {
	w        io.Writer
	written  int64
	expected int64
	onBytes  func(written, expected int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if n > 0 {
		p.onBytes(p.written, p.expected)
	}
	return n, err
}

// contentRangeTotal parses the complete length from "bytes a-b/total" or "bytes */total".
func contentRangeTotal(h string) (int64, bool) {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || !strings.HasPrefix(h, "bytes ") {
		return 0, false
	}
	total, err := strconv.ParseInt(strings.TrimSpace(h[i+1:]), 10, 64)
	if err != nil || total < 0 {
		return 0, false
	}
	return total, true
}
