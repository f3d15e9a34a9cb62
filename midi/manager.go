package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/eventpool"
)

var _ xsurface.Sink = (*Manager)(nil)
var _ xsurface.HealthChecker = (*Manager)(nil)

// ManagerConfig groups the tuning of every stage the Manager owns.
type ManagerConfig struct {
	Processor ProcessorConfig
	Batch     BatchConfig

	// EnableEventIntegration publishes pooled events on the bus.
	EnableEventIntegration      bool
	EnablePerformanceMonitoring bool
	MonitoringInterval          time.Duration
}

func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Processor:                   DefaultProcessorConfig(),
		Batch:                       DefaultBatchConfig(),
		EnableEventIntegration:      true,
		EnablePerformanceMonitoring: true,
		MonitoringInterval:          time.Second,
	}
}

func (c ManagerConfig) Validate() error {
	if err := c.Processor.Validate(); err != nil {
		return err
	}
	if c.Batch.UIInterval <= 0 || c.Batch.StatusInterval <= 0 {
		return errors.New("midi: batch intervals must be > 0")
	}
	if c.EnablePerformanceMonitoring && c.MonitoringInterval <= 0 {
		return errors.New("midi: monitoring_interval must be > 0")
	}
	return nil
}

// GlobalStats aggregates every stage for diagnostics.
type GlobalStats struct {
	Processor ProcessorStats
	Batch     BatchStats
	Buffer    BufferStatus
	Pools     eventpool.GlobalStats

	MessagesPerSecond uint64
	AvgLatency        time.Duration
	SystemLoad        float64
	RealtimeCapable   bool
}

// ManagerBuilder configures a Manager.
type ManagerBuilder struct {
	cfg    ManagerConfig
	logger *xlog.Logger
	clock  xsurface.Clock
	bus    xsurface.Publisher
	pools  *eventpool.Manager
}

func NewManagerBuilder() *ManagerBuilder {
	return &ManagerBuilder{cfg: DefaultManagerConfig()}
}

func (mb *ManagerBuilder) WithConfig(cfg ManagerConfig) *ManagerBuilder {
	mb.cfg = cfg
	return mb
}

func (mb *ManagerBuilder) WithLogger(l *xlog.Logger) *ManagerBuilder {
	mb.logger = l
	return mb
}

func (mb *ManagerBuilder) WithClock(c xsurface.Clock) *ManagerBuilder {
	mb.clock = c
	return mb
}

// WithBus sets where pooled events are published.
func (mb *ManagerBuilder) WithBus(p xsurface.Publisher) *ManagerBuilder {
	mb.bus = p
	return mb
}

// WithPools shares an event pool manager. Without it Build preallocates its own.
func (mb *ManagerBuilder) WithPools(p *eventpool.Manager) *ManagerBuilder {
	mb.pools = p
	return mb
}

func (mb *ManagerBuilder) Build() (*Manager, error) {
	if err := mb.cfg.Validate(); err != nil {
		return nil, err
	}
	clock := mb.clock
	if clock == nil {
		clock = xclock.Default()
	}
	lg := mb.logger
	if lg == nil {
		lg = xlog.Default()
	}
	pools := mb.pools
	if pools == nil {
		var err error
		if pools, err = eventpool.New(eventpool.Defaults()); err != nil {
			return nil, err
		}
	}
	proc, err := NewProcessor(mb.cfg.Processor, clock)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:         mb.cfg,
		clock:       clock,
		logger:      lg.With(xlog.Str("component", "midi")),
		bus:         mb.bus,
		pools:       pools,
		proc:        proc,
		batch:       NewBatchProcessor(mb.cfg.Batch, clock),
		lastMonitor: clock.Now(),
		warnings: catrate.NewLimiter(map[time.Duration]int{
			10 * time.Second: 1,
			time.Minute:      3,
		}),
	}
	m.batch.SetUICallback(m.handleUIBatch)
	m.batch.SetStatusCallback(m.handleStatusBatch)
	proc.OnControlChange(m.handleControlChange)
	proc.OnNoteOn(m.handleNoteOn)
	proc.OnNoteOff(m.handleNoteOff)
	return m, nil
}

// Manager is the MIDI facade: raw messages go in through ProcessMidiMessage,
// Update runs the pipeline once per main-loop cycle.
//
// ProcessMidiMessage may be called from one producer goroutine. Every other
// method belongs to the main loop, except the read-only stats accessors.
type Manager struct {
	cfg    ManagerConfig
	clock  xsurface.Clock
	logger *xlog.Logger
	bus    xsurface.Publisher
	pools  *eventpool.Manager

	proc  *Processor
	batch *BatchProcessor

	userUI     UIBatchFunc
	userStatus StatusBatchFunc

	lastMonitor time.Time
	lastCount   uint64
	msgsPerSec  uint64
	warnings    *catrate.Limiter
}

// ProcessMidiMessage queues one wire message. False means the ring was full.
func (m *Manager) ProcessMidiMessage(status, data1, data2 uint8) bool {
	return m.proc.EnqueueFast(status, data1, data2)
}

// Update drains input, flushes due batches, then refreshes monitoring.
func (m *Manager) Update() {
	m.proc.ProcessIncoming()
	m.batch.ProcessPendingBatches()
	if m.cfg.EnablePerformanceMonitoring {
		m.monitor()
	}
}

func (m *Manager) OnControlChange(fn ControlChangeFunc) int { return m.proc.OnControlChange(fn) }
func (m *Manager) OnNoteOn(fn NoteFunc) int                 { return m.proc.OnNoteOn(fn) }
func (m *Manager) OnNoteOff(fn NoteFunc) int                { return m.proc.OnNoteOff(fn) }
func (m *Manager) RemoveControlChange(h int) bool           { return m.proc.RemoveControlChange(h) }
func (m *Manager) RemoveNoteOn(h int) bool                  { return m.proc.RemoveNoteOn(h) }
func (m *Manager) RemoveNoteOff(h int) bool                 { return m.proc.RemoveNoteOff(h) }

// SetUICallback is called for each coalesced parameter after the bus event is published.
func (m *Manager) SetUICallback(fn UIBatchFunc) { m.userUI = fn }

// SetStatusCallback is called with every status batch.
func (m *Manager) SetStatusCallback(fn StatusBatchFunc) { m.userStatus = fn }

func (m *Manager) Processor() *Processor           { return m.proc }
func (m *Manager) BatchProcessor() *BatchProcessor { return m.batch }
func (m *Manager) Pools() *eventpool.Manager       { return m.pools }

func (m *Manager) handleControlChange(channel, controller, value uint8) {
	m.batch.AddParameter(controller, channel, value)
}

func (m *Manager) handleNoteOn(channel, note, velocity uint8) {
	if !m.integrated() {
		return
	}
	g := m.pools.CreateMidiNoteOn(channel, note, velocity, xsurface.SourceMidiIn)
	defer g.Close()
	if g.Valid() {
		m.bus.Publish(g.Get())
	}
}

func (m *Manager) handleNoteOff(channel, note, velocity uint8) {
	if !m.integrated() {
		return
	}
	g := m.pools.CreateMidiNoteOff(channel, note, velocity, xsurface.SourceMidiIn)
	defer g.Close()
	if g.Valid() {
		m.bus.Publish(g.Get())
	}
}

func (m *Manager) handleUIBatch(controller, channel, value uint8) {
	if m.integrated() {
		g := m.pools.CreateUIParameterUpdate(controller, channel, value, xsurface.ParameterName(controller))
		if g.Valid() {
			m.bus.Publish(g.Get())
		}
		g.Close()
	}
	if m.userUI != nil {
		m.userUI(controller, channel, value)
	}
}

func (m *Manager) handleStatusBatch(params []PendingParameter) {
	if m.userStatus != nil {
		m.userStatus(params)
	}
}

func (m *Manager) integrated() bool {
	return m.cfg.EnableEventIntegration && m.bus != nil && m.pools != nil
}

func (m *Manager) monitor() {
	now := m.clock.Now()
	elapsed := now.Sub(m.lastMonitor)
	if elapsed < m.cfg.MonitoringInterval {
		return
	}
	cur := m.proc.Stats().MessagesProcessed
	delta := cur - m.lastCount
	if cur < m.lastCount {
		delta = cur
	}
	m.msgsPerSec = uint64(float64(delta) / elapsed.Seconds())
	m.lastCount = cur
	m.lastMonitor = now

	if m.IsRealtimeCapable() {
		return
	}
	if _, ok := m.warnings.Allow("realtime"); ok {
		st := m.proc.Stats()
		m.logger.Warn().
			Dur("max_latency", st.MaxLatency).
			Float64("buffer_usage", m.proc.BufferStatus().Usage).
			Float64("system_load", m.SystemLoad()).
			Msg("midi: not realtime capable")
	}
}

// IsRealtimeCapable reports max latency below threshold, ring usage below 80%
// and no processor overload.
func (m *Manager) IsRealtimeCapable() bool {
	st := m.proc.Stats()
	return st.MaxLatency < m.cfg.Processor.MaxLatencyThreshold &&
		m.proc.BufferStatus().Usage < OverloadUsage &&
		!m.proc.IsOverloaded()
}

// SystemLoad is the mean of ring usage and coalescing table usage.
func (m *Manager) SystemLoad() float64 {
	return (m.proc.BufferStatus().Usage + m.batch.Stats().UsageRatio) / 2
}

func (m *Manager) GlobalStats() GlobalStats {
	ps := m.proc.Stats()
	g := GlobalStats{
		Processor:         ps,
		Batch:             m.batch.Stats(),
		Buffer:            m.proc.BufferStatus(),
		MessagesPerSecond: m.msgsPerSec,
		AvgLatency:        ps.AvgLatency,
		SystemLoad:        m.SystemLoad(),
		RealtimeCapable:   m.IsRealtimeCapable(),
	}
	if m.pools != nil {
		g.Pools = m.pools.GlobalStats()
	}
	return g
}

func (m *Manager) ResetAllStats() {
	m.proc.ResetStats()
	m.batch.ResetStats()
	m.msgsPerSec = 0
	m.lastCount = 0
}

func (m *Manager) FlushAllBatches() { m.batch.FlushAll() }

// DiagnosticInfo renders GlobalStats as a human-readable dump.
func (m *Manager) DiagnosticInfo() string {
	g := m.GlobalStats()
	realtime := "NO"
	if g.RealtimeCapable {
		realtime = "YES"
	}
	var sb strings.Builder
	sb.WriteString("=== MIDI Performance Diagnostics ===\n")
	fmt.Fprintf(&sb, "Messages/sec: %d\n", g.MessagesPerSecond)
	fmt.Fprintf(&sb, "Avg Latency: %dμs\n", g.AvgLatency.Microseconds())
	fmt.Fprintf(&sb, "Max Latency: %dμs\n", g.Processor.MaxLatency.Microseconds())
	fmt.Fprintf(&sb, "Buffer Usage: %.1f%%\n", g.Buffer.Usage*100)
	fmt.Fprintf(&sb, "Batch Usage: %.1f%%\n", g.Batch.UsageRatio*100)
	fmt.Fprintf(&sb, "System Load: %.1f%%\n", g.SystemLoad*100)
	fmt.Fprintf(&sb, "Realtime: %s\n", realtime)
	fmt.Fprintf(&sb, "Buffer Overruns: %d\n", g.Processor.BufferOverruns)
	fmt.Fprintf(&sb, "Messages Dropped: %d\n", g.Processor.MessagesDropped)
	fmt.Fprintf(&sb, "Callback Errors: %d\n", g.Processor.CallbackErrors+g.Batch.CallbackErrors)
	return sb.String()
}

// Health maps the realtime predicate onto a HealthStatus.
func (m *Manager) Health(_ context.Context) xsurface.HealthStatus {
	status, msg := xsurface.StatusHealthy, "realtime"
	if !m.IsRealtimeCapable() {
		status = xsurface.StatusDegraded
		msg = fmt.Sprintf("not realtime: system load %.1f%%", m.SystemLoad()*100)
	}
	return xsurface.HealthStatus{
		Status:    status,
		Timestamp: m.clock.Now(),
		Message:   msg,
	}
}
