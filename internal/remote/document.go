package remote

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// header holds the fields every metadata document and checksum envelope may
// carry. It is decoded on its own before the versioned body.
type header struct {
	Version       *int   `json:"version"`
	ClientVersion string `json:"client_version"`
	Encrypt       bool   `json:"encrypt"`
}

func (h header) version() int {
	if h.Version == nil {
		return 1
	}
	return *h.Version
}

type checksumEnvelope struct {
	header
	SHA1 string `json:"sha1"`
}

// FileProperty describes one remote file.
type FileProperty struct {
	SHA1 []byte
	// Size is optional; 0 when the server does not publish it.
	Size int64
}

func (p *FileProperty) UnmarshalJSON(data []byte) error {
	var raw struct {
		SHA1 string `json:"sha1"`
		Size int64  `json:"size"`
	}
	if err := jsonUnmarshal(data, &raw); err != nil {
		return err
	}
	digest, err := decodeDigest(raw.SHA1)
	if err != nil {
		return err
	}
	p.SHA1 = digest
	p.Size = raw.Size
	return nil
}

type fileTable struct {
	Dirs  map[string]any          `json:"dirs"`
	Files map[string]FileProperty `json:"files"`
}

// document is the versioned body of metadata.json.
type document interface {
	table() fileTable
}

// v1 keeps dirs and files at the top level
type documentV1 struct {
	fileTable
}

func (d *documentV1) table() fileTable { return d.fileTable }

// v2 nests them under file_content
type documentV2 struct {
	FileContent fileTable `json:"file_content"`
}

func (d *documentV2) table() fileTable { return d.FileContent }

func decodeDocument(version int, data []byte) (document, error) {
	var doc document
	switch version {
	case 1:
		doc = &documentV1{}
	case 2:
		doc = &documentV2{}
	default:
		return nil, &ProtocolVersionError{Version: version}
	}
	if err := jsonUnmarshal(data, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodeDigest(s string) ([]byte, error) {
	digest, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("sha1 %q: %w", s, err)
	}
	if len(digest) != sha1.Size {
		return nil, fmt.Errorf("sha1 %q: want %d bytes, got %d", s, sha1.Size, len(digest))
	}
	return digest, nil
}
