package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"

	bprogress "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 40

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Terminal renders a single self-overwriting status line with a progress bar.
// Log lines are printed above it.
type Terminal struct {
	mu        sync.Mutex
	out       io.Writer
	bar       bprogress.Model
	fraction  float64
	secondary string
	title     string
	detail    string
	drawn     bool
}

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{
		out: out,
		bar: bprogress.New(bprogress.WithDefaultGradient(), bprogress.WithWidth(barWidth)),
	}
}

func (t *Terminal) SetProgress(fraction float64, _ float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fraction = clamp(fraction)
	t.redraw()
}

func (t *Terminal) SetSecondaryProgress(fraction float64, label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.secondary = fmt.Sprintf("%3.0f%%%s", clamp(fraction)*100, label)
	t.redraw()
}

func (t *Terminal) SetInfo(title string, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if title != "" {
		t.title = title
	}
	t.detail = detail
	t.redraw()
}

func (t *Terminal) PrintLog(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clear()
	fmt.Fprintln(t.out, line)
	t.redraw()
}

// Done moves the cursor past the status line.
func (t *Terminal) Done() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.drawn {
		fmt.Fprintln(t.out)
		t.drawn = false
	}
}

func (t *Terminal) line() string {
	parts := []string{t.bar.ViewAs(t.fraction)}
	if t.title != "" {
		parts = append(parts, titleStyle.Render(t.title))
	}
	if t.detail != "" {
		parts = append(parts, detailStyle.Render(t.detail))
	}
	if t.secondary != "" {
		parts = append(parts, detailStyle.Render(t.secondary))
	}
	return strings.Join(parts, " ")
}

func (t *Terminal) clear() {
	if t.drawn {
		fmt.Fprint(t.out, "\r\033[2K")
	}
}

func (t *Terminal) redraw() {
	t.clear()
	fmt.Fprint(t.out, t.line())
	t.drawn = true
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

var _ Receiver = (*Terminal)(nil)
