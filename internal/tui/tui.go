// Package tui implements the interactive terminal renderer spec §1 lists
// as an external collaborator: it reads immutable snapshots from a
// running tracer.Tracer and renders an mtr-style live table.
//
// Grounded on the teacher's internal/display/tui.go Bubbletea model
// (styles, sparkline rendering, status bar), restructured from a
// push model (hopChan/doneChan feeding AddHop/SetComplete) into the
// pull model spec §9 calls for: a periodic tea.Tick reads
// Tracer.Snapshot() directly, decoupling the TUI's refresh rate from
// round cadence instead of being driven by per-hop messages from the
// engine thread.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hervehildenbrand/trippy/internal/resolve"
	"github.com/hervehildenbrand/trippy/internal/tracer"
	"github.com/hervehildenbrand/trippy/pkg/hop"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("240"))

	hopStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	ipStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("39"))

	hostnameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	rttStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	timeoutStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	statusStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Padding(0, 1)

	completeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82")).
			Bold(true)
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

const refreshInterval = 250 * time.Millisecond

// tickMsg requests the model to re-pull a snapshot from the tracer.
type tickMsg time.Time

// resolvedMsg carries a completed reverse-DNS lookup back into Update,
// which runs on Bubbletea's single event-loop goroutine — the only place
// the hostname cache is safe to mutate.
type resolvedMsg struct {
	addr, hostname string
}

// Model is the Bubbletea model for the live trace table. It owns no
// statistics of its own: every render pulls a fresh hop.Snapshot from
// the tracer.
type Model struct {
	target   string
	targetIP string

	tracer    *tracer.Tracer
	resolver  *resolve.Resolver
	hostnames map[string]string

	snapshot hop.Snapshot
	spinner  spinner.Model
	width    int
	height   int
	cancel   context.CancelFunc
}

// New creates a Model that polls t for snapshots and, if resolver is
// non-nil, resolves hostnames for newly seen addresses in the
// background.
func New(target, targetIP string, t *tracer.Tracer, resolver *resolve.Resolver, cancel context.CancelFunc) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Model{
		target:    target,
		targetIP:  targetIP,
		tracer:    t,
		resolver:  resolver,
		hostnames: make(map[string]string),
		spinner:   s,
		cancel:    cancel,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case "r":
			m.tracer.Reset()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.snapshot = m.tracer.Snapshot()
		cmds := m.resolveNewAddrs()
		if m.snapshot.IsDone {
			return m, tea.Batch(cmds...)
		}
		return m, tea.Batch(append(cmds, tick())...)

	case resolvedMsg:
		m.hostnames[msg.addr] = msg.hostname
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// resolveNewAddrs returns one tea.Cmd per address in the current
// snapshot not already in the hostname cache. Each command performs its
// lookup off the event-loop goroutine and reports back as a resolvedMsg,
// which is the only place the cache is written — Bubbletea guarantees
// Update runs on a single goroutine, so no lock is needed. The TUI never
// blocks a render on DNS.
func (m *Model) resolveNewAddrs() []tea.Cmd {
	if m.resolver == nil {
		return nil
	}
	var cmds []tea.Cmd
	for _, h := range m.snapshot.Hops {
		for _, a := range h.Addrs {
			key := a.Addr.String()
			if _, seen := m.hostnames[key]; seen {
				continue
			}
			m.hostnames[key] = ""
			addr := a.Addr
			cmds = append(cmds, func() tea.Msg {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				name, err := m.resolver.Lookup(ctx, addr)
				if err != nil {
					name = ""
				}
				return resolvedMsg{addr: key, hostname: name}
			})
		}
	}
	return cmds
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("trippy → %s (%s)", m.target, m.targetIP)))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-4s %-16s %-20s %-8s %-6s %-8s",
		"Hop", "IP Address", "Hostname", "Loss", "Avg", "Graph")))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 70))
	b.WriteString("\n")

	for _, h := range m.snapshot.Hops {
		b.WriteString(m.formatHopRow(h))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 70))
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")

	if m.snapshot.IsDone {
		b.WriteString(completeStyle.Render("✓ trace finished"))
		b.WriteString(" | Press 'q' to quit")
	} else {
		b.WriteString(m.spinner.View())
		b.WriteString(" Tracing... Press 'q' to cancel, 'r' to reset")
	}

	return b.String()
}

func (m *Model) formatHopRow(h hop.View) string {
	var b strings.Builder

	b.WriteString(hopStyle.Render(fmt.Sprintf("%-4d", h.TTL)))

	if len(h.Addrs) == 0 {
		b.WriteString(timeoutStyle.Render("*"))
		b.WriteString(strings.Repeat(" ", 15))
	} else {
		ipStr := h.Addrs[0].Addr.String()
		if len(ipStr) > 15 {
			ipStr = ipStr[:15]
		}
		b.WriteString(ipStyle.Render(fmt.Sprintf("%-16s", ipStr)))
	}

	hostname := ""
	if len(h.Addrs) > 0 {
		hostname = m.hostnames[h.Addrs[0].Addr.String()]
	}
	if len(hostname) > 20 {
		hostname = hostname[:17] + "..."
	}
	b.WriteString(hostnameStyle.Render(fmt.Sprintf("%-20s", hostname)))

	lossStr := fmt.Sprintf("%5.1f%%", h.LossPct*100)
	if h.LossPct > 0 {
		b.WriteString(timeoutStyle.Render(fmt.Sprintf("%-8s", lossStr)))
	} else {
		b.WriteString(hopStyle.Render(fmt.Sprintf("%-8s", lossStr)))
	}

	if h.Mean > 0 {
		b.WriteString(rttStyle.Render(fmt.Sprintf("%-6.1f", float64(h.Mean)/float64(time.Millisecond))))
	} else {
		b.WriteString(timeoutStyle.Render(fmt.Sprintf("%-6s", "-")))
	}

	if len(h.Samples) > 0 {
		b.WriteString(" ")
		b.WriteString(renderSparkline(h.Samples))
	}

	return b.String()
}

func renderSparkline(samples []time.Duration) string {
	if len(samples) == 0 {
		return ""
	}
	minRTT, maxRTT := samples[0], samples[0]
	for _, s := range samples {
		if s < minRTT {
			minRTT = s
		}
		if s > maxRTT {
			maxRTT = s
		}
	}
	if minRTT == maxRTT {
		return rttStyle.Render(strings.Repeat(string(sparkChars[3]), len(samples)))
	}

	var b strings.Builder
	rng := float64(maxRTT - minRTT)
	for _, s := range samples {
		idx := int(float64(s-minRTT) / rng * float64(len(sparkChars)-1))
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteRune(sparkChars[idx])
	}
	return rttStyle.Render(b.String())
}

func (m *Model) renderStatusBar() string {
	var totalRTT time.Duration
	var rttCount int
	for _, h := range m.snapshot.Hops {
		if h.Mean > 0 {
			totalRTT += h.Mean
			rttCount++
		}
	}
	avg := time.Duration(0)
	if rttCount > 0 {
		avg = totalRTT / time.Duration(rttCount)
	}

	parts := []string{
		fmt.Sprintf("Hops: %d", len(m.snapshot.Hops)),
		fmt.Sprintf("Rounds: %d", m.snapshot.RoundCount),
		fmt.Sprintf("Avg: %v", avg.Round(time.Millisecond)),
	}
	return statusStyle.Render(strings.Join(parts, " │ "))
}

// Run starts the Bubbletea program and blocks until the user quits or
// the trace finishes and the user acknowledges.
func Run(m *Model) error {
	_, err := tea.NewProgram(m).Run()
	return err
}
