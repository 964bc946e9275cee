package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler(t *testing.T) {
	var debugBuf, infoBuf bytes.Buffer
	debugHandler := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiLogHandler(debugHandler, infoHandler)).With("pass", "p1")
	logger.Debug("scan", "files", 3)
	logger.Info("sync done")

	assert.Contains(t, debugBuf.String(), "msg=scan")
	assert.Contains(t, debugBuf.String(), "msg=\"sync done\"")
	assert.NotContains(t, infoBuf.String(), "msg=scan")
	assert.Contains(t, infoBuf.String(), "pass=p1")
}
