package serialport

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trickstertwo/xsurface"
)

type msg struct{ status, d1, d2 uint8 }

type recordingSink struct{ got []msg }

func (s *recordingSink) ProcessMidiMessage(status, d1, d2 uint8) bool {
	s.got = append(s.got, msg{status, d1, d2})
	return true
}

// chunkedPort returns one chunk per Read, then err.
type chunkedPort struct {
	chunks [][]byte
	err    error
	closed bool
}

func (p *chunkedPort) Read(b []byte) (int, error) {
	if len(p.chunks) == 0 {
		return 0, p.err
	}
	n := copy(b, p.chunks[0])
	p.chunks = p.chunks[1:]
	return n, nil
}

func (p *chunkedPort) Close() error {
	p.closed = true
	return nil
}

// TestReader_ParsesStream tests decoding across reads, including running status and timeouts.
func TestReader_ParsesStream(t *testing.T) {
	port := &chunkedPort{
		chunks: [][]byte{{0xB0, 7}, {}, {99, 7, 100, 0xF8}, {0x90, 60, 0}},
		err:    io.EOF,
	}
	sink := &recordingSink{}
	r := NewReader(port, nil)

	require.NoError(t, r.Run(context.Background(), sink))
	assert.Equal(t, []msg{{0xB0, 7, 99}, {0xB0, 7, 100}, {0x90, 60, 0}}, sink.got)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.True(t, port.closed)
}

// TestReader_ReadError tests that device errors are returned.
func TestReader_ReadError(t *testing.T) {
	boom := errors.New("device removed")
	r := NewReader(&chunkedPort{err: boom}, nil)
	assert.ErrorIs(t, r.Run(context.Background(), &recordingSink{}), boom)
}

// TestReader_StopsOnCancel tests that a cancelled context ends Run without error.
func TestReader_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewReader(&chunkedPort{err: errors.New("unused")}, nil)
	assert.NoError(t, r.Run(ctx, &recordingSink{}))
}

// TestConfig tests defaults, validation and map decoding.
func TestConfig(t *testing.T) {
	assert.Error(t, Defaults().Validate(), "device is required")

	c := ConfigFromMap(map[string]any{"device": "/dev/ttyACM0", "baud": 115200, "read_timeout": "10ms"})
	require.NoError(t, c.Validate())
	assert.Equal(t, Config{Device: "/dev/ttyACM0", Baud: 115200, ReadTimeout: 10 * time.Millisecond}, c)

	c.Baud = 0
	assert.Error(t, c.Validate())
}

// TestSourceRegistered tests that the factory validates its config.
func TestSourceRegistered(t *testing.T) {
	assert.Contains(t, xsurface.Sources(), SourceName)
	_, err := xsurface.NewSource(SourceName, map[string]any{})
	assert.Error(t, err)
	src, err := xsurface.NewSource(SourceName, map[string]any{"device": "/dev/null"})
	require.NoError(t, err)
	assert.NoError(t, src.Close())
}

// TestOutput_WritesWireBytes tests the encoding written to the line.
func TestOutput_WritesWireBytes(t *testing.T) {
	var buf bytes.Buffer
	o := NewOutput(&buf)
	require.NoError(t, o.SendControlChange(1, 7, 99))
	require.NoError(t, o.SendNoteOn(0, 60, 100))
	require.NoError(t, o.SendNoteOff(0, 60, 0))
	assert.Equal(t, []byte{0xB1, 7, 99, 0x90, 60, 100, 0x80, 60, 0}, buf.Bytes())
}
