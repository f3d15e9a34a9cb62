package midi

// Parser decodes a raw MIDI byte stream, as read from a serial line, into
// channel voice Messages. It keeps running status across calls. Realtime bytes
// are ignored wherever they appear; SysEx and system common messages are
// skipped.
//
// A Parser is not safe for concurrent use.
type Parser struct {
	running byte
	data    [2]byte
	have    int
	need    int
	// skip counts data bytes of a system common message still to discard.
	skip  int
	sysex bool
}

// Reset drops any partial message and the running status.
func (p *Parser) Reset() { *p = Parser{} }

// Feed consumes one byte and reports a Message when it completes one.
func (p *Parser) Feed(b byte) (Message, bool) {
	switch {
	case b >= 0xF8:
		return Message{}, false
	case b == 0xF0:
		p.sysex, p.running, p.have, p.skip = true, 0, 0, 0
		return Message{}, false
	case b == 0xF7:
		p.sysex = false
		return Message{}, false
	case b >= 0xF0:
		// System common cancels running status.
		p.sysex, p.running, p.have = false, 0, 0
		switch b {
		case 0xF1, 0xF3:
			p.skip = 1
		case 0xF2:
			p.skip = 2
		default:
			p.skip = 0
		}
		return Message{}, false
	case b >= 0x80:
		p.sysex, p.skip = false, 0
		p.running, p.have, p.need = b, 0, dataLen(b)
		return Message{}, false
	}

	if p.sysex {
		return Message{}, false
	}
	if p.skip > 0 {
		p.skip--
		return Message{}, false
	}
	if p.running == 0 {
		return Message{}, false
	}
	p.data[p.have] = b
	p.have++
	if p.have < p.need {
		return Message{}, false
	}
	p.have = 0
	m := Message{Status: p.running, Data1: p.data[0]}
	if p.need == 2 {
		m.Data2 = p.data[1]
	}
	return m, true
}

// FeedBytes decodes buf and calls fn for every completed Message.
// It returns the number of Messages produced.
func (p *Parser) FeedBytes(buf []byte, fn func(Message)) int {
	n := 0
	for _, b := range buf {
		if m, ok := p.Feed(b); ok {
			n++
			if fn != nil {
				fn(m)
			}
		}
	}
	return n
}
