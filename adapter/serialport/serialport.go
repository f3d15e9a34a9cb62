// Package serialport reads a raw MIDI byte stream from a serial line, such as
// a DIN MIDI interface or a microcontroller speaking MIDI over UART.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/trickstertwo/xlog"
	"github.com/trickstertwo/xsurface"
	"github.com/trickstertwo/xsurface/midi"
	"go.bug.st/serial"
)

// SourceName is the registry key of the serial source.
const SourceName = "serial"

// DefaultBaud is the MIDI 1.0 DIN rate.
const DefaultBaud = 31250

func init() {
	if err := xsurface.RegisterSource(SourceName, func(cfg map[string]any) (xsurface.InputSource, error) {
		c := ConfigFromMap(cfg)
		if err := c.Validate(); err != nil {
			return nil, err
		}
		return NewSource(c), nil
	}); err != nil {
		panic(fmt.Errorf("xsurface/serialport: failed to register source: %w", err))
	}
}

// Config selects and tunes the serial device.
type Config struct {
	Device string
	// Baud is the line rate (default: 31250).
	Baud int
	// ReadTimeout bounds each read so Run notices cancellation (default: 50ms).
	ReadTimeout time.Duration
}

func Defaults() Config {
	return Config{
		Baud:        DefaultBaud,
		ReadTimeout: 50 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("config: device required")
	}
	if c.Baud <= 0 {
		return fmt.Errorf("config: baud must be > 0, got %d", c.Baud)
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("config: read_timeout must be > 0, got %v", c.ReadTimeout)
	}
	return nil
}

// ConfigFromMap safely converts generic map to Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	c := Defaults()
	if v, ok := cfg["device"].(string); ok {
		c.Device = v
	}
	switch v := cfg["baud"].(type) {
	case int:
		c.Baud = v
	case int64:
		c.Baud = int(v)
	case float64:
		c.Baud = int(v)
	}
	switch v := cfg["read_timeout"].(type) {
	case time.Duration:
		c.ReadTimeout = v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			c.ReadTimeout = d
		}
	}
	return c
}

// Ports lists serial devices present on the system.
func Ports() ([]string, error) {
	return serial.GetPortsList()
}

// Reader turns bytes from an io.ReadCloser into sink calls.
type Reader struct {
	port   io.ReadCloser
	parser midi.Parser
	buf    [256]byte
	logger *xlog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Open opens cfg.Device and returns a Reader over it.
func Open(cfg Config, logger *xlog.Logger) (*Reader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p, err := serial.Open(cfg.Device, &serial.Mode{BaudRate: cfg.Baud})
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialport: set read timeout: %w", err)
	}
	r := NewReader(p, logger)
	r.logger = r.logger.With(xlog.Str("device", cfg.Device))
	return r, nil
}

// NewReader wraps an already open byte stream.
func NewReader(port io.ReadCloser, logger *xlog.Logger) *Reader {
	if logger == nil {
		logger = xlog.Default()
	}
	return &Reader{port: port, logger: logger}
}

// Run reads until ctx is done, the stream ends, or a read fails.
// Zero-length reads are treated as timeouts.
func (r *Reader) Run(ctx context.Context, sink xsurface.Sink) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.port.Read(r.buf[:])
		for _, b := range r.buf[:n] {
			if m, ok := r.parser.Feed(b); ok {
				sink.ProcessMidiMessage(m.Status, m.Data1, m.Data2)
			}
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return nil
		}
		r.logger.Warn().Err(err).Msg("serialport: read failed")
		return fmt.Errorf("serialport: read: %w", err)
	}
}

// Close closes the underlying port. Idempotent.
func (r *Reader) Close() error {
	r.closeOnce.Do(func() { r.closeErr = r.port.Close() })
	return r.closeErr
}

// Source opens the configured device when Run starts.
type Source struct {
	cfg    Config
	logger *xlog.Logger

	mu sync.Mutex
	r  *Reader
}

var _ xsurface.InputSource = (*Source)(nil)

func NewSource(cfg Config) *Source { return &Source{cfg: cfg} }

// WithLogger sets the logger of the Reader opened by Run.
func (s *Source) WithLogger(l *xlog.Logger) *Source {
	s.logger = l
	return s
}

func (s *Source) Run(ctx context.Context, sink xsurface.Sink) error {
	r, err := Open(s.cfg, s.logger)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.r = r
	s.mu.Unlock()

	// Closing the port unblocks a pending Read.
	stop := context.AfterFunc(ctx, func() { _ = r.Close() })
	defer stop()
	defer r.Close()
	return r.Run(ctx, sink)
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return nil
	}
	return s.r.Close()
}

// Output writes MIDI to a serial line.
type Output struct {
	w  io.Writer
	mu sync.Mutex
}

var _ midi.OutputPort = (*Output)(nil)

func NewOutput(w io.Writer) *Output { return &Output{w: w} }

func (o *Output) write(m midi.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := o.w.Write(m.Bytes())
	return err
}

func (o *Output) SendControlChange(channel, controller, value uint8) error {
	return o.write(midi.Message{Status: midi.StatusControlChange | channel&0x0F, Data1: controller, Data2: value})
}

func (o *Output) SendNoteOn(channel, note, velocity uint8) error {
	return o.write(midi.Message{Status: midi.StatusNoteOn | channel&0x0F, Data1: note, Data2: velocity})
}

func (o *Output) SendNoteOff(channel, note, velocity uint8) error {
	return o.write(midi.Message{Status: midi.StatusNoteOff | channel&0x0F, Data1: note, Data2: velocity})
}
