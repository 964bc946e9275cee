// Package progress defines the observational sink every sync component
// reports to. Receivers never influence control flow.
package progress

// Receiver consumes progress, status and log lines. Implementations must be
// safe for concurrent use because download tasks report from several
// goroutines at once.
type Receiver interface {
	// SetProgress reports the primary progress fraction (0..1) and an
	// optional secondary fraction.
	SetProgress(fraction float64, secondary float64)

	// SetSecondaryProgress reports a secondary fraction with a short label,
	// e.g. archive entries processed.
	SetSecondaryProgress(fraction float64, label string)

	// SetInfo reports a title/detail status pair.
	SetInfo(title string, detail string)

	// PrintLog appends a human readable log line.
	PrintLog(line string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetProgress(float64, float64)          {}
func (Nop) SetSecondaryProgress(float64, string) {}
func (Nop) SetInfo(string, string)               {}
func (Nop) PrintLog(string)                      {}

// Multi fans out every call to all receivers.
type Multi []Receiver

func (m Multi) SetProgress(fraction float64, secondary float64) {
	for _, r := range m {
		r.SetProgress(fraction, secondary)
	}
}

func (m Multi) SetSecondaryProgress(fraction float64, label string) {
	for _, r := range m {
		r.SetSecondaryProgress(fraction, label)
	}
}

func (m Multi) SetInfo(title string, detail string) {
	for _, r := range m {
		r.SetInfo(title, detail)
	}
}

func (m Multi) PrintLog(line string) {
	for _, r := range m {
		r.PrintLog(line)
	}
}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Receiver) Receiver {
	if r == nil {
		return Nop{}
	}
	return r
}

var (
	_ Receiver = Nop{}
	_ Receiver = Multi{}
)
