// Package remote reads the published metadata of a remote asset tree.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/openmined/assetsync/internal/diff"
	"github.com/openmined/assetsync/internal/download"
	"github.com/openmined/assetsync/internal/progress"
	"github.com/openmined/assetsync/internal/version"
)

const (
	ChecksumFile     = "metadata.sha1"
	MetadataFile     = "metadata.json"
	DefaultFilesPath = "dist"

	// MaxRetries is the number of extra attempts for a metadata fetch.
	MaxRetries = 3
	// MaxProtocolVersion is the newest metadata layout this client reads.
	MaxProtocolVersion = 2
)

// Probe is the result of the cheap fingerprint request.
type Probe struct {
	Digest        []byte
	Version       int
	Encrypt       bool
	ClientVersion string
}

// Metadata is the full remote tree description.
type Metadata struct {
	BaseURL string
	Version int
	Encrypt bool
	Dirs    []string
	Files   map[string]FileProperty
}

// Snapshot reduces the metadata to the shape the diff engine compares.
func (m *Metadata) Snapshot() diff.Snapshot {
	files := make(map[string][]byte, len(m.Files))
	for path, prop := range m.Files {
		files[path] = prop.SHA1
	}
	return diff.Snapshot{Dirs: m.Dirs, Files: files}
}

type Option func(*Client)

func WithMatcher(m version.Matcher) Option {
	return func(c *Client) { c.matcher = m }
}

func WithReceiver(r progress.Receiver) Option {
	return func(c *Client) { c.receiver = progress.OrNop(r) }
}

// WithFilesPath sets the directory under the base URL that serves file content.
func WithFilesPath(p string) Option {
	return func(c *Client) { c.filesPath = strings.Trim(p, "/") }
}

type Client struct {
	baseURL   string
	http      *req.Client
	matcher   version.Matcher
	receiver  progress.Receiver
	filesPath string
}

func NewClient(baseURL string, httpClient *req.Client, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = download.NewHTTPClient()
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      httpClient,
		matcher:   version.NewMatcher(),
		receiver:  progress.Nop{},
		filesPath: DefaultFilesPath,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL resolves a name directly under the base URL.
func (c *Client) URL(name string) string {
	return c.baseURL + "/" + escapePath(name)
}

// FileURL is where the content of a tree file is served.
func (c *Client) FileURL(relPath string) string {
	if c.filesPath == "" {
		return c.URL(relPath)
	}
	return c.baseURL + "/" + c.filesPath + "/" + escapePath(relPath)
}

// FetchDirChecksum requests the aggregate fingerprint of the remote tree. The
// body is either a bare hex digest or a JSON envelope that also carries the
// protocol header.
func (c *Client) FetchDirChecksum(ctx context.Context) (*Probe, error) {
	data, err := c.fetchText(ctx, c.URL(ChecksumFile))
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(string(data))
	if !strings.HasPrefix(text, "{") {
		digest, err := decodeDigest(text)
		if err != nil {
			return nil, fmt.Errorf("remote: %s: %w", ChecksumFile, err)
		}
		return &Probe{Digest: digest, Version: 1}, nil
	}

	var env checksumEnvelope
	if err := jsonUnmarshal([]byte(text), &env); err != nil {
		return nil, fmt.Errorf("remote: %s: %w", ChecksumFile, err)
	}
	if err := c.checkCompat(env.header); err != nil {
		return nil, err
	}
	digest, err := decodeDigest(env.SHA1)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", ChecksumFile, err)
	}

	return &Probe{
		Digest:        digest,
		Version:       env.version(),
		Encrypt:       env.Encrypt,
		ClientVersion: env.ClientVersion,
	}, nil
}

// Fetch downloads and decodes metadata.json.
func (c *Client) Fetch(ctx context.Context) (*Metadata, error) {
	data, err := c.fetchText(ctx, c.URL(MetadataFile))
	if err != nil {
		return nil, err
	}

	var h header
	if err := jsonUnmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("remote: %s: %w", MetadataFile, err)
	}
	if err := c.checkCompat(h); err != nil {
		return nil, err
	}

	doc, err := decodeDocument(h.version(), data)
	if err != nil {
		var pe *ProtocolVersionError
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, fmt.Errorf("remote: %s: %w", MetadataFile, err)
	}
	table := doc.table()

	m := &Metadata{
		BaseURL: c.baseURL,
		Version: h.version(),
		Encrypt: h.Encrypt,
		Files:   make(map[string]FileProperty, len(table.Files)),
	}
	for dir := range table.Dirs {
		// some generators list the tree root as ""
		if dir == "" {
			continue
		}
		m.Dirs = append(m.Dirs, dir)
	}
	slices.Sort(m.Dirs)
	for path, prop := range table.Files {
		m.Files[path] = prop
	}

	slog.Debug("remote metadata", "version", m.Version, "dirs", len(m.Dirs), "files", len(m.Files), "encrypt", m.Encrypt)
	return m, nil
}

func (c *Client) checkCompat(h header) error {
	if h.ClientVersion != "" && !c.matcher.Matches(h.ClientVersion) {
		return &ProtocolVersionError{Requested: h.ClientVersion, Client: clientVersion(c.matcher)}
	}
	if v := h.version(); v > MaxProtocolVersion {
		return &ProtocolVersionError{Version: v}
	}
	return nil
}

// fetchText reads a small document, retrying transport failures that did not
// produce an HTTP response. The last error is returned as is.
func (c *Client) fetchText(ctx context.Context, target string) ([]byte, error) {
	for attempt := 0; ; attempt++ {
		var received int64
		counter := download.CounterFunc(func(delta int64) {
			received += delta
			c.receiver.SetInfo("", fmt.Sprintf(": %5d KiB downloaded", received/1024))
		})

		var buf bytes.Buffer
		err := download.NewTask(c.http, counter, target, "", 0).Run(ctx, &buf)
		if err == nil {
			return buf.Bytes(), nil
		}

		var te *download.TransportError
		if attempt >= MaxRetries || ctx.Err() != nil || !errors.As(err, &te) || !te.Retryable() {
			return nil, err
		}

		c.receiver.PrintLog(fmt.Sprintf("%v; retrying (%d/%d) ...", err, attempt+1, MaxRetries))
		slog.Warn("metadata fetch failed, retrying", "url", target, "attempt", attempt+1, "maxRetries", MaxRetries, "error", err)
	}
}

func clientVersion(m version.Matcher) string {
	if s, ok := m.(fmt.Stringer); ok {
		return s.String()
	}
	return version.Version
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
