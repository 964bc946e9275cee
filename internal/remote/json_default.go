//go:build !sonic

package remote

import (
	"github.com/goccy/go-json"
)

var jsonUnmarshal = json.Unmarshal
