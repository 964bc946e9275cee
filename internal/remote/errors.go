package remote

import "fmt"

// ProtocolVersionError means the server publishes metadata this client must
// not consume. It is never retried.
type ProtocolVersionError struct {
	// Version is the metadata protocol version; set when it is unsupported.
	Version int
	// Requested is the client_version range the server asked for.
	Requested string
	// Client is the running client version.
	Client string
}

func (e *ProtocolVersionError) Error() string {
	if e.Requested != "" {
		return fmt.Sprintf("remote: client %s does not satisfy required version %q", e.Client, e.Requested)
	}
	return fmt.Sprintf("remote: unsupported metadata protocol version %d", e.Version)
}
