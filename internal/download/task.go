package download

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/imroc/req/v3"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const (
	// progress is surfaced only when the written count crosses a multiple of this
	noticeDivisor = 8192

	maxErrorBody = 64 << 10
)

// ByteCounter receives signed byte deltas for the aggregate progress of a
// session. Implementations must be safe for concurrent use.
type ByteCounter interface {
	AddBytes(delta int64)
}

// CounterFunc adapts a function to a ByteCounter.
type CounterFunc func(delta int64)

func (f CounterFunc) AddBytes(delta int64) { f(delta) }

// Task is a single file transfer. A successful run contributes exactly its
// total size to the counter; a failed run contributes nothing.
type Task struct {
	URL          string
	FileName     string
	ExpectedSize int64

	// FailedAttempts is maintained by the Dispatcher.
	FailedAttempts int

	client          *req.Client
	counter         ByteCounter
	totalBytes      atomic.Int64
	downloadedBytes atomic.Int64
}

func NewTask(client *req.Client, counter ByteCounter, url, fileName string, expectedSize int64) *Task {
	if counter == nil {
		counter = CounterFunc(func(int64) {})
	}
	return &Task{
		URL:          url,
		FileName:     fileName,
		ExpectedSize: expectedSize,
		client:       client,
		counter:      counter,
	}
}

// TotalBytes is the size the last run settled on, 0 before the response arrived.
func (t *Task) TotalBytes() int64 {
	return t.totalBytes.Load()
}

// DownloadedBytes is the amount accounted so far; reset to 0 when a run fails.
func (t *Task) DownloadedBytes() int64 {
	return t.downloadedBytes.Load()
}

// Run fetches URL and writes the decoded body to w.
func (t *Task) Run(ctx context.Context, w io.Writer) (err error) {
	var accounted int64
	t.downloadedBytes.Store(0)

	defer func() {
		if err == nil {
			return
		}
		if accounted != 0 {
			t.counter.AddBytes(-accounted)
		}
		t.downloadedBytes.Store(0)
	}()

	resp, err := t.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(t.URL)
	if err != nil {
		return &TransportError{URL: t.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &TransportError{
			URL:        t.URL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := decodeBody(t.URL, resp.Header.Get("Content-Encoding"), resp.Body)
	if err != nil {
		return err
	}
	defer body.Close()

	total := resp.ContentLength
	if total < 0 {
		total = t.ExpectedSize
	}
	t.totalBytes.Store(total)

	pw := &progressWriter{w: w, onWrite: func(written int64) {
		if accounted/noticeDivisor == written/noticeDivisor {
			return
		}
		delta := written - accounted
		accounted = written
		t.downloadedBytes.Add(delta)
		t.counter.AddBytes(delta)
	}}

	if _, err := io.Copy(pw, &transportReader{r: body, url: t.URL}); err != nil {
		return err
	}

	// unknown length: settle on what was actually received
	if total <= 0 {
		total = pw.written
		t.totalBytes.Store(total)
	}

	t.counter.AddBytes(total - accounted)
	accounted = total
	t.downloadedBytes.Store(total)
	return nil
}

func decodeBody(url, encoding string, r io.Reader) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, &TransportError{URL: url, Err: fmt.Errorf("gzip: %w", err)}
		}
		return zr, nil
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, &TransportError{URL: url, Err: fmt.Errorf("deflate: %w", err)}
		}
		return zr, nil
	default:
		return nil, &UnsupportedEncodingError{Encoding: encoding}
	}
}

// transportReader types read failures of the (decoded) response stream.
type transportReader struct {
	r   io.Reader
	url string
}

func (r *transportReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF {
		err = &TransportError{URL: r.url, Err: err}
	}
	return n, err
}

type progressWriter struct {
	w       io.Writer
	written int64
	onWrite func(written int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.onWrite(p.written)
	return n, err
}
