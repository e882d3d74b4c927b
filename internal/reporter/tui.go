package reporter

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/examplerun/internal/task"
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TUI styles
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pauseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

type tickMsg time.Time

// DoneMsg tells the TUI that the pool has drained; the program exits after
// rendering the final state.
type DoneMsg struct{}

// TUIModel is the Bubbletea model for the live run display.
type TUIModel struct {
	snapshot  func() task.Snapshot
	cancelRun func() // called on 'q' to cancel the run context

	snap         task.Snapshot
	firstSeen    map[int]time.Time // when a task was first observed running
	scrollOffset int
	paused       bool
	frame        int
	width        int
	height       int
	done         bool
}

// NewTUIModel creates a TUI model that polls snapshot on every tick.
func NewTUIModel(snapshot func() task.Snapshot, cancelRun func()) TUIModel {
	return TUIModel{
		snapshot:  snapshot,
		cancelRun: cancelRun,
		snap:      snapshot(),
		firstSeen: make(map[int]time.Time),
	}
}

// Init implements tea.Model.
func (m TUIModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancelRun != nil {
				m.cancelRun()
			}
			m.done = true
			return m, tea.Quit

		case "p", " ":
			m.paused = !m.paused

		case "j", "down":
			m.scrollDown(1)

		case "k", "up":
			m.scrollUp(1)

		case "g", "home":
			m.scrollOffset = 0

		case "G", "end":
			m.scrollOffset = m.maxScroll()

		case "pgdown":
			m.scrollDown(m.visibleTasks())

		case "pgup":
			m.scrollUp(m.visibleTasks())
		}

	case tickMsg:
		if !m.paused {
			m.refresh()
		}
		m.frame++
		return m, tickCmd()

	case DoneMsg:
		m.refresh()
		m.done = true
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m *TUIModel) refresh() {
	m.snap = m.snapshot()
	now := time.Now()
	for i, st := range m.snap.States {
		if st == task.StateRunning {
			if _, ok := m.firstSeen[i]; !ok {
				m.firstSeen[i] = now
			}
		}
	}
}

func (m *TUIModel) scrollDown(n int) {
	m.scrollOffset += n
	if max := m.maxScroll(); m.scrollOffset > max {
		m.scrollOffset = max
	}
}

func (m *TUIModel) scrollUp(n int) {
	m.scrollOffset -= n
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m TUIModel) visibleTasks() int {
	// header(1) + progress(1) + help(1) + scroll hints(2) = 5 reserved lines
	avail := m.height - 5
	if avail < 3 {
		return 3
	}
	return avail
}

func (m TUIModel) maxScroll() int {
	total := len(m.snap.Tasks)
	vis := m.visibleTasks()
	if total <= vis {
		return 0
	}
	return total - vis
}

// Done reports whether the model has seen the end of the run or a quit key.
func (m TUIModel) Done() bool {
	return m.done
}

// View implements tea.Model.
func (m TUIModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	c := m.snap.Counters
	header := fmt.Sprintf("examplerun — %d scripts", c.Total)
	if m.paused {
		header += "  " + pauseStyle.Render("⏸ PAUSED")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")
	b.WriteString(m.progressLine(c))
	b.WriteString("\n")

	taskLines := m.buildTaskLines()

	vis := m.visibleTasks()
	start := m.scrollOffset
	if start > len(taskLines) {
		start = len(taskLines)
	}
	end := start + vis
	if end > len(taskLines) {
		end = len(taskLines)
	}

	if start > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↑ %d more above", start)))
		b.WriteString("\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(taskLines[i])
		b.WriteString("\n")
	}
	if end < len(taskLines) {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  ↓ %d more below", len(taskLines)-end)))
		b.WriteString("\n")
	}

	used := 2 + (end - start) + 1
	if start > 0 {
		used++
	}
	if end < len(taskLines) {
		used++
	}
	for i := used; i < m.height-1; i++ {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("  ↑↓/jk: scroll  g/G: top/bottom  p: pause  q: quit"))

	return b.String()
}

// buildTaskLines orders tasks failed → running → passed → queued, each group
// in discovery order.
func (m TUIModel) buildTaskLines() []string {
	var failed, running, passed, queued []string
	spinner := spinnerChars[m.frame%len(spinnerChars)]

	for i := range m.snap.Tasks {
		t := &m.snap.Tasks[i]
		var res *task.TaskResult
		if i < len(m.snap.Results) {
			res = m.snap.Results[i]
		}
		state := task.StatePending
		if i < len(m.snap.States) {
			state = m.snap.States[i]
		}

		switch state {
		case task.StateFailed:
			failed = append(failed, m.fmtFailed(t, res))
		case task.StateRunning:
			running = append(running, m.fmtRunning(t, spinner))
		case task.StatePassed:
			passed = append(passed, m.fmtPassed(t, res))
		default:
			queued = append(queued, dimStyle.Render(fmt.Sprintf("  ─ %-8s %s", "queued", t.ID)))
		}
	}

	lines := make([]string, 0, len(m.snap.Tasks))
	lines = append(lines, failed...)
	lines = append(lines, running...)
	lines = append(lines, passed...)
	lines = append(lines, queued...)
	return lines
}

func (m TUIModel) fmtFailed(t *task.Task, res *task.TaskResult) string {
	errMsg := ""
	var dur time.Duration
	if res != nil {
		errMsg = firstLine(res.Error)
		if res.ConnectivityError != "" {
			errMsg = res.ConnectivityError
		}
		dur = res.Duration.Truncate(100 * time.Millisecond)
	}
	if len(errMsg) > 50 {
		errMsg = errMsg[:50] + "..."
	}
	return failedStyle.Render(fmt.Sprintf("  ✗ %-8s %-45s %-8s %s", "failed", t.ID, dur, errMsg))
}

func (m TUIModel) fmtRunning(t *task.Task, spinner string) string {
	elapsed := ""
	if since, ok := m.firstSeen[t.Index]; ok {
		elapsed = time.Since(since).Truncate(time.Second).String()
	}
	return runStyle.Render(fmt.Sprintf("  %s %-8s %-45s %s", spinner, "running", t.ID, elapsed))
}

func (m TUIModel) fmtPassed(t *task.Task, res *task.TaskResult) string {
	var dur time.Duration
	if res != nil {
		dur = res.Duration.Truncate(100 * time.Millisecond)
	}
	return doneStyle.Render(fmt.Sprintf("  ✓ %-8s %-45s %s", "passed", t.ID, dur))
}

func (m TUIModel) progressLine(c task.Counters) string {
	var parts []string
	if c.Passed > 0 {
		parts = append(parts, doneStyle.Render(fmt.Sprintf("%d passed", c.Passed)))
	}
	if c.InFlight > 0 {
		parts = append(parts, runStyle.Render(fmt.Sprintf("%d running", c.InFlight)))
	}
	if c.Failed > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", c.Failed)))
	}
	if queued := c.Total - c.Completed - c.InFlight; queued > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d queued", queued)))
	}
	return fmt.Sprintf("  %s", strings.Join(parts, "  "))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
