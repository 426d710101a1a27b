package demo

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Reporter receives human-readable progress. It satisfies rag.Reporter and
// its Warn method fits extract.WarnFunc.
type Reporter interface {
	Step(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Success(format string, args ...any)
	Error(format string, args ...any)
}

var (
	colorStep    = lipgloss.Color("#06B6D4")
	colorSuccess = lipgloss.Color("#10B981")
	colorWarn    = lipgloss.Color("#F59E0B")
	colorError   = lipgloss.Color("#EF4444")

	stepStyle    = lipgloss.NewStyle().Foreground(colorStep).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(colorSuccess)
	warnStyle    = lipgloss.NewStyle().Foreground(colorWarn)
	errorStyle   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

// Console prints styled lines to a writer.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to w, or stdout when w is nil.
func NewConsole(w io.Writer) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{out: w}
}

func (c *Console) print(style *lipgloss.Style, format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if style != nil {
		line = style.Render(line)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, line)
}

func (c *Console) Step(format string, args ...any)    { c.print(&stepStyle, "\n"+format, args...) }
func (c *Console) Info(format string, args ...any)    { c.print(nil, format, args...) }
func (c *Console) Warn(format string, args ...any)    { c.print(&warnStyle, format, args...) }
func (c *Console) Success(format string, args ...any) { c.print(&successStyle, format, args...) }
func (c *Console) Error(format string, args ...any)   { c.print(&errorStyle, format, args...) }

// Discard drops all output.
type Discard struct{}

func (Discard) Step(string, ...any)    {}
func (Discard) Info(string, ...any)    {}
func (Discard) Warn(string, ...any)    {}
func (Discard) Success(string, ...any) {}
func (Discard) Error(string, ...any)   {}
