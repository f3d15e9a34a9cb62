package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/app"
	"github.com/trickstertwo/xsurface/midi"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#fff"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888")).Width(8)
	barStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fd7ff"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#5fff87"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff5f5f"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
)

const barWidth = 32

type paramKey struct{ channel, controller uint8 }

type paramMsg struct {
	key   paramKey
	name  string
	value uint8
}

type statsMsg midi.GlobalStats

type runDoneMsg struct{ err error }

type monitor struct {
	params  chan paramMsg
	stats   chan midi.GlobalStats
	done    chan error
	cancel  context.CancelFunc
	values  map[paramKey]paramMsg
	last    midi.GlobalStats
	source  string
	err     error
	exiting bool
}

func waitParam(ch <-chan paramMsg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func waitStats(ch <-chan midi.GlobalStats) tea.Cmd {
	return func() tea.Msg { return statsMsg(<-ch) }
}

func waitDone(ch <-chan error) tea.Cmd {
	return func() tea.Msg { return runDoneMsg{err: <-ch} }
}

func (m monitor) Init() tea.Cmd {
	return tea.Batch(waitParam(m.params), waitStats(m.stats), waitDone(m.done))
}

func (m monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.exiting = true
			m.cancel()
		case "c":
			m.values = make(map[paramKey]paramMsg)
		}
	case paramMsg:
		m.values[msg.key] = msg
		return m, waitParam(m.params)
	case statsMsg:
		m.last = midi.GlobalStats(msg)
		return m, waitStats(m.stats)
	case runDoneMsg:
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m monitor) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("xsurface") + dimStyle.Render("  source: "+m.source) + "\n\n")

	keys := make([]paramKey, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].controller < keys[j].controller
	})
	if len(keys) == 0 {
		b.WriteString(dimStyle.Render("waiting for controller input...") + "\n")
	}
	for _, k := range keys {
		p := m.values[k]
		fill := int(p.value) * barWidth / 127
		fmt.Fprintf(&b, "%s %s%s %3d %s\n",
			labelStyle.Render(p.name),
			barStyle.Render(strings.Repeat("█", fill)),
			dimStyle.Render(strings.Repeat("·", barWidth-fill)),
			p.value,
			dimStyle.Render(fmt.Sprintf("ch%d", k.channel+1)))
	}

	s := m.last
	rt := okStyle.Render("realtime")
	if !s.RealtimeCapable {
		rt = warnStyle.Render("degraded")
	}
	fmt.Fprintf(&b, "\n%s  %s\n", rt, statusStyle.Render(fmt.Sprintf(
		"%d msg/s  avg %dμs  max %dμs  load %.1f%%",
		s.MessagesPerSecond, s.AvgLatency.Microseconds(), s.Processor.MaxLatency.Microseconds(), s.SystemLoad*100)))
	b.WriteString(statusStyle.Render(fmt.Sprintf(
		"overruns %d  dropped %d  coalesced %d  pools %d/%d",
		s.Processor.BufferOverruns, s.Processor.MessagesDropped, s.Batch.ParametersCoalesced,
		s.Pools.TotalAllocated, s.Pools.TotalCapacity)) + "\n")
	if m.err != nil {
		b.WriteString(warnStyle.Render("error: "+m.err.Error()) + "\n")
	}
	b.WriteString(dimStyle.Render("q quit · c clear") + "\n")
	return b.String()
}

// runWithMonitor runs the surface loop in the background and the terminal UI
// in the foreground. Bus listeners and hooks run on the loop goroutine and
// only ever hand values to the UI through non-blocking channel sends.
func runWithMonitor(ctx context.Context, cancel context.CancelFunc, surface *app.Context, src xsurface.InputSource) error {
	m := monitor{
		params: make(chan paramMsg, 256),
		stats:  make(chan midi.GlobalStats, 1),
		done:   make(chan error, 1),
		cancel: cancel,
		values: make(map[paramKey]paramMsg),
		source: viper.GetString("run.source"),
	}

	surface.Bus.SubscribeLow(xsurface.Chain(xsurface.ListenerFunc(func(e xsurface.Event) bool {
		ui := e.(*xsurface.UIParameterUpdateEvent)
		select {
		case m.params <- paramMsg{key: paramKey{ui.Channel, ui.Controller}, name: ui.ParamName, value: ui.Value}:
		default:
		}
		return true
	}), xsurface.TypeFilter(xsurface.UIParameterUpdate)))
	surface.Every(100*time.Millisecond, func() {
		select {
		case m.stats <- surface.MIDI.GlobalStats():
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.done <- surface.Run(ctx, src, viper.GetDuration("run.tick"))
	}()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	cancel()
	wg.Wait()
	if err != nil {
		return err
	}
	if fm, ok := final.(monitor); ok && fm.err != nil {
		return fm.err
	}
	return nil
}
