// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/somnus/pkg/halwire"
	"github.com/Thermoquad/somnus/pkg/lowpower"
	"github.com/Thermoquad/somnus/pkg/simboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Event log entry
type logEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// TUI model
type monitorModel struct {
	cm            *cycleManager
	connInfo      string
	mode          lowpower.Mode
	spinner       spinner.Model
	state         lowpower.State
	running       bool
	paused        bool
	finished      bool
	linkUp        bool
	cycle         int
	current       *cycleSpec
	last          *cycleResult
	causes        map[lowpower.WakeupCause]int
	returned      int
	ended         int
	board         *simboard.Snapshot
	stats         *halwire.Statistics
	eventLog      []logEntry
	maxLogEntries int
	started       time.Time
	width         int
	height        int
	quitting      bool
}

// Messages
type tickMsg time.Time
type stateMsg lowpower.State
type cycleStartMsg struct {
	n    int
	spec cycleSpec
}
type cycleDoneMsg struct {
	n     int
	res   cycleResult
	board *simboard.Snapshot
}
type linkLostMsg struct {
	err error
}
type reconnectedMsg struct {
	connInfo string
}
type finishedMsg struct{}

// formatElapsed formats a duration as a human-friendly string
func formatElapsed(d time.Duration) string {
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func initialMonitorModel(cm *cycleManager, connInfo string, mode lowpower.Mode) monitorModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	var stats *halwire.Statistics
	if cm != nil {
		stats = cm.stats
	}
	return monitorModel{
		cm:            cm,
		connInfo:      connInfo,
		mode:          mode,
		spinner:       s,
		linkUp:        true,
		causes:        make(map[lowpower.WakeupCause]int),
		stats:         stats,
		eventLog:      make([]logEntry, 0),
		maxLogEntries: 100,
		started:       time.Now(),
		width:         80,
		height:        24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.spinner.Tick,
	)
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "p":
			if m.cm != nil {
				m.paused = m.cm.togglePause()
			} else {
				m.paused = !m.paused
			}
			if m.paused {
				m.addLogEntry("Paused after the current cycle", false)
			} else {
				m.addLogEntry("Resumed", false)
			}
		case "m":
			if m.cm != nil {
				m.mode = m.cm.toggleMode()
			} else if m.mode == lowpower.ModeStop {
				m.mode = lowpower.ModeStandby
			} else {
				m.mode = lowpower.ModeStop
			}
			m.addLogEntry(fmt.Sprintf("Next cycles use %s", m.mode), false)
		case "r":
			m.causes = make(map[lowpower.WakeupCause]int)
			m.returned, m.ended = 0, 0
			if m.stats != nil {
				m.stats.Reset()
			}
			m.addLogEntry("Statistics reset", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stateMsg:
		m.state = lowpower.State(msg)

	case cycleStartMsg:
		m.running = true
		m.cycle = msg.n
		spec := msg.spec
		m.current = &spec

	case cycleDoneMsg:
		m.running = false
		res := msg.res
		m.last = &res
		m.state = res.final
		m.causes[res.cause]++
		if res.outcome == lowpower.OutcomeEnded {
			m.ended++
		} else {
			m.returned++
		}
		if msg.board != nil {
			m.board = msg.board
		}
		m.addLogEntry(fmt.Sprintf("Cycle %d: %s %s, woke by %s", msg.n, res.spec.mode, res.outcome, res.cause),
			res.cause == lowpower.CauseUnknown)

	case linkLostMsg:
		m.running = false
		m.linkUp = false
		m.addLogEntry(fmt.Sprintf("Link lost: %v", msg.err), true)

	case reconnectedMsg:
		m.linkUp = true
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)

	case finishedMsg:
		m.finished = true
		m.addLogEntry(fmt.Sprintf("Finished after %d cycles", m.cycle), false)
	}

	return m, nil
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	entry := logEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	statsLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	statsValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("SOMNUS - CYCLE MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Mode: %s | Running for %s | p pause, m mode, r reset, q quit",
		m.connInfo, m.mode, formatElapsed(time.Since(m.started)))))
	s.WriteString("\n\n")

	// Status line
	switch {
	case !m.linkUp:
		s.WriteString(errorStyle.Render("✗ Link lost, reconnecting..."))
	case m.finished:
		s.WriteString(statsValueStyle.Render(fmt.Sprintf("✓ Finished %d cycles", m.cycle)))
	case m.paused:
		s.WriteString(warningStyle.Render("⏸ Paused"))
	case m.running && m.current != nil:
		s.WriteString(fmt.Sprintf("%s Cycle %d: %s %s",
			m.spinner.View(), m.cycle, m.current.mode, statsValueStyle.Render(m.state.String())))
	default:
		s.WriteString(headerStyle.Render("Waiting for next cycle"))
	}
	s.WriteString("\n\n")

	s.WriteString(boxStyle.Render(m.controllerView()))
	s.WriteString("\n")
	s.WriteString(boxStyle.Render(m.causesView()))
	s.WriteString("\n")
	if link := m.linkView(); link != "" {
		s.WriteString(boxStyle.Render(link))
		s.WriteString("\n")
	}
	s.WriteString("\n")

	// Event log
	s.WriteString(statsLabelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 24 // Reserve space for header and boxes
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	width := m.width - 4
	if width < 20 {
		width = 20
	}
	s.WriteString(boxStyle.Width(width).Render(logContent.String()))

	return s.String()
}

func (m monitorModel) controllerView() string {
	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %d   %s %d returned, %d restarted\n",
		statsLabelStyle.Render("State:"), statsValueStyle.Render(m.state.String()),
		statsLabelStyle.Render("Cycles:"), m.returned+m.ended,
		statsLabelStyle.Render("Outcomes:"), m.returned, m.ended,
	))

	if m.last == nil {
		c.WriteString(headerStyle.Render("No cycle completed yet"))
		return c.String()
	}
	cause := statsValueStyle.Render(m.last.cause.String())
	if m.last.cause == lowpower.CauseUnknown {
		cause = errorStyle.Render(m.last.cause.String())
	}
	c.WriteString(fmt.Sprintf("%s %s\n", statsLabelStyle.Render("Timer:"), m.last.timer))
	c.WriteString(fmt.Sprintf("%s %s %s, woke by %s in %s",
		statsLabelStyle.Render("Last:"), m.last.spec.mode, m.last.outcome, cause,
		m.last.elapsed.Round(time.Millisecond)))
	if m.last.timer.Saturated {
		c.WriteString(warningStyle.Render("  (duration saturated)"))
	}
	return c.String()
}

func (m monitorModel) causesView() string {
	total := 0
	for _, n := range m.causes {
		total += n
	}

	var c strings.Builder
	c.WriteString(statsLabelStyle.Render("Wake Causes:"))
	for _, cause := range lowpower.AllCauses {
		n := m.causes[cause]
		bar := ""
		if total > 0 {
			bar = strings.Repeat("█", n*30/total)
		}
		c.WriteString(fmt.Sprintf("\n%-10s %5d %s", cause, n, statsValueStyle.Render(bar)))
	}
	return c.String()
}

func (m monitorModel) linkView() string {
	if m.board != nil {
		return fmt.Sprintf("%s %s   %s %s   %s %s   %s %s",
			statsLabelStyle.Render("Boots:"), statsValueStyle.Render(fmt.Sprintf("%d", m.board.Boots)),
			statsLabelStyle.Render("Resets:"), statsValueStyle.Render(fmt.Sprintf("%d", m.board.Resets)),
			statsLabelStyle.Render("Slept:"), statsValueStyle.Render(m.board.Slept.String()),
			statsLabelStyle.Render("Flags:"), statsValueStyle.Render(m.board.Flags.String()),
		)
	}
	if m.stats == nil {
		return ""
	}

	counts := m.stats.Counts()
	var validPercent float64
	if counts.Total > 0 {
		validPercent = float64(counts.Valid) * 100.0 / float64(counts.Total)
	}
	errors := counts.CRCErrors + counts.DecodeErrors + counts.Malformed

	var c strings.Builder
	c.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		statsLabelStyle.Render("Total:"), statsValueStyle.Render(fmt.Sprintf("%d", counts.Total)),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%d (%.1f%%)", counts.Valid, validPercent)),
		statsLabelStyle.Render("Errors:"), errorStyle.Render(fmt.Sprintf("%d", errors)),
	))
	c.WriteString(fmt.Sprintf("%s %d   %s %d   %s %d   %s %d\n",
		statsLabelStyle.Render("Requests:"), counts.Requests,
		statsLabelStyle.Render("Responses:"), counts.Responses,
		statsLabelStyle.Render("Boots:"), counts.BootAnnounces,
		statsLabelStyle.Render("Rejections:"), counts.Rejections,
	))
	errRate := statsValueStyle.Render(fmt.Sprintf("%.1f err/s", counts.ErrorRate))
	if counts.ErrorRate > 0 {
		errRate = errorStyle.Render(fmt.Sprintf("%.1f err/s", counts.ErrorRate))
	}
	c.WriteString(fmt.Sprintf("%s %s   %s %s",
		statsLabelStyle.Render("Packet Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f pkts/s", counts.PacketRate)),
		statsLabelStyle.Render("Error Rate:"), errRate,
	))
	return c.String()
}
