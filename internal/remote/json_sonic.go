//go:build sonic

package remote

import (
	"github.com/bytedance/sonic"
)

var jsonUnmarshal = sonic.Unmarshal
