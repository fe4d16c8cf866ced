// Package ui renders a live terminal view of a controller run and provides
// the column-aligned tables used by the CLI query commands.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"

	"github.com/rainbow979/sticky-mitten-avatar/internal/bus"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// StatusLabel colors a terminal task status. Rejections that never consumed
// a step render yellow, hard failures red.
func StatusLabel(status string) string {
	switch status {
	case "success":
		return green(status)
	case "detached":
		return cyan(status)
	case "too_close_to_reach", "too_far_to_reach", "behind_avatar", "aborted":
		return yellow(status)
	default:
		return red(status)
	}
}

func statusIcon(status string) string {
	switch status {
	case "success":
		return "✅"
	case "detached":
		return "⇢"
	default:
		return "❌"
	}
}

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// Display animates a live view of one controller run: a box per task with a
// spinner status line, and flow lines for collisions and standing goals. It
// reads from a bus tap, so it sees events in publish order.
type Display struct {
	tap <-chan bus.Event
	out io.Writer

	mu      sync.Mutex
	status  string
	started time.Time
	inTask  bool
	spinIdx int
}

// New creates a Display reading from tap.
func New(tap <-chan bus.Event) *Display {
	return &Display{tap: tap, out: os.Stdout}
}

// Run is the main goroutine. All terminal writes happen here, so no extra
// locking is needed for I/O.
func (d *Display) Run(ctx context.Context) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprint(d.out, "\r\033[K")
			return

		case ev, ok := <-d.tap:
			if !ok {
				return
			}
			d.render(ev)

		case <-ticker.C:
			if !d.inTask {
				continue
			}
			frame := spinRunes[d.spinIdx%len(spinRunes)]
			d.spinIdx++
			d.mu.Lock()
			status := d.status
			d.mu.Unlock()
			fmt.Fprintf(d.out, "\r%s %s", cyan(string(frame)), status)
		}
	}
}

func (d *Display) render(ev bus.Event) {
	switch ev.Type {
	case bus.EventTaskBegin:
		if p, ok := ev.Payload.(bus.TaskPayload); ok {
			d.beginBox(p)
		}
	case bus.EventTaskEnd:
		if p, ok := ev.Payload.(bus.TaskPayload); ok {
			d.endBox(p)
		}
	case bus.EventStep:
		if p, ok := ev.Payload.(bus.StepPayload); ok && p.Task != "" {
			d.setStatus(stepStatus(p))
		}
	case bus.EventCollision:
		if p, ok := ev.Payload.(bus.CollisionPayload); ok {
			d.printLine(collisionLine(p))
		}
	case bus.EventGoalDetached:
		if p, ok := ev.Payload.(bus.GoalPayload); ok {
			d.printLine(goalLine(p, false))
		}
	case bus.EventGoalResolved:
		if p, ok := ev.Payload.(bus.GoalPayload); ok {
			d.printLine(goalLine(p, true))
		}
	}
}

func (d *Display) beginBox(p bus.TaskPayload) {
	d.started = time.Now()
	d.inTask = true
	d.setStatus("stepping...")
	fmt.Fprintf(d.out, "\n%s\n", dim("┌── ⚡ "+taskTitle(p)+" "+strings.Repeat("─", 30)))
}

func (d *Display) endBox(p bus.TaskPayload) {
	if !d.inTask {
		return
	}
	d.inTask = false
	elapsed := time.Since(d.started).Round(time.Millisecond)
	fmt.Fprintf(d.out, "\r\033[K%s %s %s · %d steps · %v %s\n",
		dim("└──"), statusIcon(p.Status), StatusLabel(p.Status), p.Steps, elapsed,
		dim(strings.Repeat("─", 20)))
}

// printLine clears the spinner line, then prints s indented when a task box
// is open.
func (d *Display) printLine(s string) {
	fmt.Fprint(d.out, "\r\033[K")
	if d.inTask {
		s = "  " + s
	}
	fmt.Fprintln(d.out, s)
}

func (d *Display) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// taskTitle renders the box header for one task.
func taskTitle(p bus.TaskPayload) string {
	title := p.Task
	if p.Arm != "" {
		title += " · " + p.Arm
	}
	if p.Target != "" {
		title += " → " + p.Target
	}
	return clipCols(title, 56)
}

// stepStatus renders the spinner line for one step. Clipped so \r\033[K can
// overwrite it on an 80-column terminal without wrapping.
func stepStatus(p bus.StepPayload) string {
	s := fmt.Sprintf("%s · step %d · (%.2f, %.2f, %.2f) · %.1f°",
		p.Task, p.Step, p.Position.X, p.Position.Y, p.Position.Z, p.Heading)
	return clipCols(s, 64)
}

func collisionLine(p bus.CollisionPayload) string {
	switch p.Kind {
	case "heavy":
		return fmt.Sprintf("%s · body part %d ✕ object %d", red("⚠ heavy contact"), p.BodyPart, p.ObjectID)
	default:
		return fmt.Sprintf("%s · body part %d", yellow("⚠ environment contact"), p.BodyPart)
	}
}

func goalLine(p bus.GoalPayload, resolved bool) string {
	if resolved {
		return dim(fmt.Sprintf("⇠ %s goal resolved · %s", p.Arm, p.Outcome))
	}
	return dim(fmt.Sprintf("⇢ %s goal standing · %s", p.Arm, p.Task))
}

// clipCols truncates s to at most cols visual columns, appending "…" when
// trimmed. Widths are terminal columns, so CJK text counts double.
func clipCols(s string, cols int) string {
	if runewidth.StringWidth(s) <= cols {
		return s
	}
	return runewidth.Truncate(s, cols, "…")
}

// RenderTable writes rows under headers with each column padded to its widest
// cell. Widths are visual columns: color codes count zero, wide runes two.
func RenderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = ansi.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && ansi.StringWidth(cell) > widths[i] {
				widths[i] = ansi.StringWidth(cell)
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			if i < len(widths) {
				if pad := widths[i] - ansi.StringWidth(cell); pad > 0 {
					cell += strings.Repeat(" ", pad)
				}
			}
			parts[i] = cell
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	total := 0
	for _, wd := range widths {
		total += wd
	}
	fmt.Fprintln(w, bold(line(headers)))
	fmt.Fprintln(w, dim(strings.Repeat("─", total+2*(len(widths)-1))))
	for _, row := range rows {
		fmt.Fprintln(w, line(row))
	}
}
