// Package download transfers remote files with byte-accurate progress
// accounting and a shared aggregate counter.
package download

import (
	"context"
	"net"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/version"
)

const (
	DefaultTimeout = 20 * time.Second
	acceptEncoding = "gzip, deflate"
)

type clientOptions struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
}

type ClientOption func(*clientOptions)

// WithConnectTimeout bounds dialing and the TLS handshake.
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.connectTimeout = d }
}

// WithReadTimeout bounds every single read on the connection, not the whole
// transfer.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.readTimeout = d }
}

// NewHTTPClient returns the client shared by metadata fetches and file
// downloads. Responses are handed over still encoded; Task decodes them.
func NewHTTPClient(opts ...ClientOption) *req.Client {
	o := &clientOptions{
		connectTimeout: DefaultTimeout,
		readTimeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}

	dialer := &net.Dialer{Timeout: o.connectTimeout}

	return req.C().
		SetUserAgent(version.UserAgent()).
		SetCommonHeader("Accept-Encoding", acceptEncoding).
		DisableAutoDecompress().
		SetTLSHandshakeTimeout(o.connectTimeout).
		SetDial(func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			return &deadlineConn{Conn: conn, timeout: o.readTimeout}, nil
		})
}

// deadlineConn pushes the read deadline forward before every Read.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.timeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}
