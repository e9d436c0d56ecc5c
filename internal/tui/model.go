package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/clarabennett2626/logrecorder/internal/capture"
	"github.com/clarabennett2626/logrecorder/internal/record"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#333333")).
			Padding(0, 1)

	statusKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D56F4")).
			Background(lipgloss.Color("#333333")).
			Bold(true).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Background(lipgloss.Color("#333333")).
			Padding(0, 1)
)

// DefaultRefresh is how often the viewer re-reads the capture.
const DefaultRefresh = 250 * time.Millisecond

// Capture is the part of a capture session the viewer reads.
type Capture interface {
	ID() string
	Snapshot() []record.Entry
	Stats() capture.Stats
}

// SnapshotMsg carries the current contents of the capture into the TUI.
type SnapshotMsg struct {
	Entries []record.Entry
	Stats   capture.Stats
}

// ErrMsg carries a source error into the TUI.
type ErrMsg struct {
	Err error
}

type tickMsg time.Time

// Model is the capture viewer. It polls a Capture and redraws the retained
// records, so eviction is visible as records scrolling off the top.
type Model struct {
	width  int
	height int
	ready  bool

	cap      Capture
	renderer *Renderer
	refresh  time.Duration
	title    string

	// Rendered retained records.
	lines []string
	stats capture.Stats

	// Virtual scrolling state.
	offset     int  // index of the first visible line
	autoScroll bool // stick to bottom when new lines arrive
	paused     bool

	lastErr error
}

// NewModel creates a viewer with no capture attached.
func NewModel() Model {
	return Model{
		autoScroll: true,
		renderer:   NewRenderer(DefaultConfig()),
		refresh:    DefaultRefresh,
		title:      "logrecorder",
	}
}

// NewCaptureModel creates a viewer polling c every refresh.
func NewCaptureModel(c Capture, r *Renderer, refresh time.Duration) Model {
	m := NewModel()
	m.cap = c
	if r != nil {
		m.renderer = r
	}
	if refresh > 0 {
		m.refresh = refresh
	}
	return m
}

// viewHeight returns the number of lines available for log display
// (total height minus title bar and status bar).
func (m Model) viewHeight() int {
	// 1 line title + 1 blank + 1 status bar = 3 overhead lines
	h := m.height - 3
	if h < 1 {
		return 1
	}
	return h
}

// maxOffset returns the maximum valid scroll offset.
func (m Model) maxOffset() int {
	max := len(m.lines) - m.viewHeight()
	if max < 0 {
		return 0
	}
	return max
}

// clampOffset ensures offset is within valid bounds.
func (m *Model) clampOffset() {
	if m.offset < 0 {
		m.offset = 0
	}
	if max := m.maxOffset(); m.offset > max {
		m.offset = max
	}
}

// isAtBottom returns true if the viewport is scrolled to the bottom.
func (m Model) isAtBottom() bool {
	return m.offset >= m.maxOffset()
}

// scroll moves the viewport by n lines. Reaching the bottom while scrolling
// down re-enables auto-scroll.
func (m *Model) scroll(n int) {
	m.autoScroll = false
	m.offset += n
	m.clampOffset()
	if n > 0 && m.isAtBottom() {
		m.autoScroll = true
	}
}

// Init reads the capture once and starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	if m.cap == nil {
		return nil
	}
	return tea.Batch(m.poll(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) poll() tea.Cmd {
	c := m.cap
	return func() tea.Msg {
		return SnapshotMsg{Entries: c.Snapshot(), Stats: c.Stats()}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "p", " ":
			m.paused = !m.paused
		case "j", "down":
			m.scroll(1)
		case "k", "up":
			m.scroll(-1)
		case "g", "home":
			m.autoScroll = false
			m.offset = 0
		case "G", "end":
			m.offset = m.maxOffset()
			m.autoScroll = true
		case "pgdown", "f", "ctrl+f":
			m.scroll(m.viewHeight())
		case "pgup", "b", "ctrl+b":
			m.scroll(-m.viewHeight())
		case "d", "ctrl+d":
			m.scroll(m.viewHeight() / 2)
		case "u", "ctrl+u":
			m.scroll(-m.viewHeight() / 2)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		if m.autoScroll {
			m.offset = m.maxOffset()
		}
		m.clampOffset()

	case tickMsg:
		if m.cap == nil {
			return m, nil
		}
		if m.paused {
			return m, m.tick()
		}
		return m, tea.Batch(m.poll(), m.tick())

	case SnapshotMsg:
		m.stats = msg.Stats
		lines := make([]string, 0, len(msg.Entries))
		for _, e := range msg.Entries {
			lines = append(lines, m.renderer.RenderEntry(e))
		}
		m.lines = lines
		if m.autoScroll {
			m.offset = m.maxOffset()
		}
		m.clampOffset()

	case ErrMsg:
		m.lastErr = msg.Err
	}
	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	var b strings.Builder

	title := m.title
	if m.paused {
		title += " (paused)"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteByte('\n')

	// Virtual scrolling: only render the visible slice.
	vh := m.viewHeight()
	if len(m.lines) == 0 {
		for i := 0; i < vh; i++ {
			if i == vh/2-1 {
				b.WriteString("  No records captured yet.")
			} else if i == vh/2 {
				b.WriteString("  Waiting for input...")
			}
			b.WriteByte('\n')
		}
	} else {
		start := max(m.offset, 0)
		end := min(m.offset+vh, len(m.lines))
		rendered := 0
		for i := start; i < end; i++ {
			b.WriteString(m.lines[i])
			b.WriteByte('\n')
			rendered++
		}
		for i := rendered; i < vh; i++ {
			b.WriteByte('\n')
		}
	}

	b.WriteString(m.statusLine())
	return b.String()
}

func (m Model) statusLine() string {
	scrollInfo := "bottom"
	if len(m.lines) > 0 && !m.isAtBottom() {
		pct := 0
		if m.maxOffset() > 0 {
			pct = m.offset * 100 / m.maxOffset()
		}
		scrollInfo = fmt.Sprintf("%d%%", pct)
	}

	limit := "∞"
	if m.stats.Limit >= 0 {
		limit = fmt.Sprintf("%d", m.stats.Limit)
	}

	left := statusKeyStyle.Render("Records:") + statusBarStyle.Render(fmt.Sprintf(" %d ", m.stats.Records)) +
		statusKeyStyle.Render("Size:") + statusBarStyle.Render(fmt.Sprintf(" %d/%s ", m.stats.Size, limit)) +
		statusKeyStyle.Render("Evicted:") + statusBarStyle.Render(fmt.Sprintf(" %d ", m.stats.Evicted))
	if m.cap != nil {
		id := m.cap.ID()
		if len(id) > 8 {
			id = id[:8]
		}
		left += statusKeyStyle.Render("Session:") + statusBarStyle.Render(" "+id+" ")
	}
	if m.lastErr != nil {
		left += errorStyle.Render(m.lastErr.Error())
	}
	right := statusKeyStyle.Render("Pos:") + statusBarStyle.Render(fmt.Sprintf(" %s ", scrollInfo))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return statusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}
