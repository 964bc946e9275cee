package progress

import (
	"log/slog"
)

// Slog forwards receiver calls to a structured logger. Progress updates are
// logged at debug level, info and log lines at info level.
type Slog struct {
	l *slog.Logger
}

func NewSlog(l *slog.Logger) *Slog {
	if l == nil {
		l = slog.Default()
	}
	return &Slog{l: l}
}

func (s *Slog) SetProgress(fraction float64, secondary float64) {
	s.l.Debug("progress", "fraction", fraction, "secondary", secondary)
}

func (s *Slog) SetSecondaryProgress(fraction float64, label string) {
	s.l.Debug("progress", "secondary", fraction, "label", label)
}

func (s *Slog) SetInfo(title string, detail string) {
	s.l.Info("status", "title", title, "detail", detail)
}

func (s *Slog) PrintLog(line string) {
	s.l.Info(line)
}

var _ Receiver = (*Slog)(nil)
