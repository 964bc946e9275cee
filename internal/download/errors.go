package download

import "fmt"

// TransportError is a failed transfer. StatusCode is zero when no HTTP
// response was obtained or the response stream broke (socket, DNS, malformed
// body); those are the only retryable failures.
type TransportError struct {
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download: %s: server returned HTTP %d %s", e.URL, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("download: %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Retryable() bool {
	return e.StatusCode == 0
}

// UnsupportedEncodingError is returned before any byte is written when the
// server answers with a Content-Encoding other than gzip, deflate or identity.
type UnsupportedEncodingError struct {
	Encoding string
}

func (e *UnsupportedEncodingError) Error() string {
	return fmt.Sprintf("download: unsupported content encoding %q", e.Encoding)
}
