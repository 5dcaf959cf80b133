// Package ui renders the terminal status board.
package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/doridoridoriand/pingalert/internal/state"
)

const (
	uiRefreshInterval = 500 * time.Millisecond
	minBoxHeight      = 3
)

// Source is what the board displays.
type Source interface {
	Snapshot() []state.DeviceStatus
	Running() bool
}

// Options tune the board header and key handling.
type Options struct {
	Title             string
	Interval          time.Duration
	RecoveryThreshold int
	// Toggle is called when the user presses 's'. Nil disables the key.
	Toggle func()
}

// UI renders one row per device, coloured by status.
type UI struct {
	source Source
	opts   Options
	now    func() time.Time
}

// New returns a UI instance.
func New(source Source, opts Options) *UI {
	if opts.Title == "" {
		opts.Title = "pingalert"
	}
	if opts.RecoveryThreshold <= 0 {
		opts.RecoveryThreshold = state.DefaultRecoveryThreshold
	}
	return &UI{source: source, opts: opts, now: time.Now}
}

// ErrQuit is returned by Run when the user quits with q or Ctrl-C.
var ErrQuit = errors.New("ui: quit requested")

// Run blocks until the context is cancelled or the user quits. Screen setup
// failures are returned as is.
func (u *UI) Run(ctx context.Context) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("init terminal: %w", err)
	}
	screen.HideCursor()
	defer screen.Fini()

	eventCh := make(chan tcell.Event, 1)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case eventCh <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(uiRefreshInterval)
	defer ticker.Stop()

	u.render(screen)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-eventCh:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyCtrlC || ev.Rune() == 'q':
					return ErrQuit
				case ev.Rune() == 's' && u.opts.Toggle != nil:
					u.opts.Toggle()
					u.render(screen)
				}
			case *tcell.EventResize:
				screen.Sync()
				u.render(screen)
			}
		case <-ticker.C:
			u.render(screen)
		}
	}
}

func (u *UI) render(screen tcell.Screen) {
	screen.Clear()
	width, height := screen.Size()
	if width < 20 || height < 5 {
		screen.Show()
		return
	}

	drawText(screen, 0, 0, width, u.header(), tcell.StyleDefault.Bold(true))
	drawText(screen, 0, 1, width, u.infoLine(), tcell.StyleDefault.Foreground(tcell.ColorGray))

	devices := u.source.Snapshot()
	boxHeight := len(devices) + 2
	if boxHeight < minBoxHeight {
		boxHeight = minBoxHeight
	}
	if boxHeight > height-2 {
		boxHeight = height - 2
	}
	drawBox(screen, 0, 2, width, boxHeight)
	drawText(screen, 2, 2, width-4, " devices ", tcell.StyleDefault.Bold(true))
	if len(devices) == 0 {
		drawText(screen, 1, 3, width-2, " no devices in list", tcell.StyleDefault.Foreground(tcell.ColorGray))
	}
	for i := 0; i < len(devices) && i < boxHeight-2; i++ {
		line := u.formatDeviceLine(width-2, devices[i])
		drawText(screen, 1, 3+i, width-2, line, rowStyle(devices[i].Status))
	}

	screen.Show()
}

func (u *UI) header() string {
	keys := "q quit"
	if u.opts.Toggle != nil {
		keys = "s start/stop  q quit"
	}
	return fmt.Sprintf(" %s  %s  (%s)", u.opts.Title, u.now().Format("2006-01-02 15:04:05"), keys)
}

func (u *UI) infoLine() string {
	status := "stopped"
	if u.source.Running() {
		status = "monitoring"
	}
	return fmt.Sprintf(" %s  interval=%s  recovery=%d", status, formatDuration(u.opts.Interval), u.opts.RecoveryThreshold)
}

func (u *UI) formatDeviceLine(width int, dev state.DeviceStatus) string {
	name := padOrTrim(dev.Device.Name, minInt(20, width))
	addr := padOrTrim(dev.Device.IP, 16)
	status := padOrTrim(string(dev.Status), 8)
	streak := padOrTrim(fmt.Sprintf("streak:%d", dev.SuccessStreak), 13)

	line := strings.Join([]string{name, addr, status, streak}, " ") + " "
	if barWidth := width - len([]rune(line)); barWidth > 0 && dev.Status == state.StatusYellow {
		line += buildBar(dev.SuccessStreak, u.opts.RecoveryThreshold, barWidth)
	}
	return padOrTrim(line, width)
}

// buildBar shows progress of a YELLOW device toward the recovery threshold.
func buildBar(streak, threshold, width int) string {
	if width <= 0 {
		return ""
	}
	if threshold <= 0 || streak <= 0 {
		return strings.Repeat(" ", width)
	}
	units := streak * width / threshold
	if units > width {
		units = width
	}
	return strings.Repeat("#", units) + strings.Repeat(" ", width-units)
}

func drawBox(screen tcell.Screen, x, y, width, height int) {
	if width < 2 || height < 2 {
		return
	}
	right := x + width - 1
	bottom := y + height - 1

	setCell(screen, x, y, '+', tcell.StyleDefault)
	setCell(screen, right, y, '+', tcell.StyleDefault)
	setCell(screen, x, bottom, '+', tcell.StyleDefault)
	setCell(screen, right, bottom, '+', tcell.StyleDefault)

	for col := x + 1; col < right; col++ {
		setCell(screen, col, y, '-', tcell.StyleDefault)
		setCell(screen, col, bottom, '-', tcell.StyleDefault)
	}
	for row := y + 1; row < bottom; row++ {
		setCell(screen, x, row, '|', tcell.StyleDefault)
		setCell(screen, right, row, '|', tcell.StyleDefault)
	}
}

// drawText writes text and pads the rest of width with blanks in style.
func drawText(screen tcell.Screen, x, y, width int, text string, style tcell.Style) {
	if width <= 0 {
		return
	}
	col := x
	for _, r := range text {
		if col >= x+width {
			return
		}
		setCell(screen, col, y, r, style)
		col++
	}
	for col < x+width {
		setCell(screen, col, y, ' ', style)
		col++
	}
}

func setCell(screen tcell.Screen, x, y int, r rune, style tcell.Style) {
	screen.SetContent(x, y, r, nil, style)
}

func padOrTrim(value string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(value)
	if len(runes) > width {
		return string(runes[:width])
	}
	if len(runes) < width {
		return value + strings.Repeat(" ", width-len(runes))
	}
	return value
}

// rowStyle colours the whole row: default, green, yellow or red.
func rowStyle(status state.Status) tcell.Style {
	switch status {
	case state.StatusGreen:
		return tcell.StyleDefault.Background(tcell.ColorGreen).Foreground(tcell.ColorBlack)
	case state.StatusYellow:
		return tcell.StyleDefault.Background(tcell.ColorYellow).Foreground(tcell.ColorBlack)
	case state.StatusRed:
		return tcell.StyleDefault.Background(tcell.ColorRed).Foreground(tcell.ColorWhite)
	default:
		return tcell.StyleDefault
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dus", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}
