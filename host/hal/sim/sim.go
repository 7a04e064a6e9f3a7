package sim

import (
	"sync"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// MaxChannels is the largest channel count the simulator supports.
const MaxChannels = 32

// Reply scripts the outcome of one channel attempt.
type Reply struct {
	// Flags are the halt reasons reported for the attempt.
	Flags hal.ResultFlags

	// Bytes is the number of bytes the attempt moved. For IN attempts it
	// defaults to len(Data) when zero.
	Bytes int

	// Data is copied into the program buffer of IN attempts.
	Data []byte

	// Packets overrides the number of packets the attempt completed.
	// When zero it is derived from Bytes: at least one packet on ACK, and
	// only packets carrying data on NYET. Start-splits other than
	// isochronous OUT complete no packets; the data is accounted on the
	// complete-split.
	Packets int

	// NextPID overrides the data PID reported after the attempt.
	NextPID *hal.PID
}

// Attempt is a channel program recorded by StartChannel.
type Attempt struct {
	Channel int
	Frame   uint16
	Program hal.ChannelProgram
}

// Responder computes a reply for a program. Returning false leaves the
// channel running.
type Responder func(channel int, prog *hal.ChannelProgram) (Reply, bool)

type channel struct {
	running bool
	halted  bool
	prog    hal.ChannelProgram
	result  hal.ChannelResult
}

// HAL is the scripted simulator. It implements [hal.ChannelHAL] and
// [hal.EndpointHAL].
type HAL struct {
	mu sync.Mutex

	channels []channel
	pending  uint32

	replies   []Reply
	responder Responder
	attempts  []Attempt
	faults    int

	frame       uint16
	sof         bool
	frameIRQ    bool
	port        hal.PortStatus
	portChanged bool

	endpoints [hal.MaxDeviceEndpoints]*hal.EndpointConfig
	epEvents  []hal.EndpointEvent
}

// New creates a simulator with n channels and a connected high-speed port.
func New(n int) *HAL {
	if n <= 0 || n > MaxChannels {
		n = MaxChannels
	}
	return &HAL{
		channels: make([]channel, n),
		port: hal.PortStatus{
			Connected: true,
			Enabled:   true,
			PowerOn:   true,
			Speed:     hal.SpeedHigh,
		},
	}
}

// Queue appends scripted replies. Each started channel consumes one.
func (h *HAL) Queue(replies ...Reply) {
	h.mu.Lock()
	h.replies = append(h.replies, replies...)
	h.mu.Unlock()
}

// SetResponder installs a function consulted before the reply queue.
func (h *HAL) SetResponder(fn Responder) {
	h.mu.Lock()
	h.responder = fn
	h.mu.Unlock()
}

// Pending returns the number of queued replies not yet consumed.
func (h *HAL) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.replies)
}

// Respond completes a running channel with r, as if the hardware halted.
// It returns false if the channel is not running.
func (h *HAL) Respond(ch int, r Reply) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch < 0 || ch >= len(h.channels) || !h.channels[ch].running {
		return false
	}
	h.halt(ch, r)
	return true
}

// Attempts returns a copy of every program started so far.
func (h *HAL) Attempts() []Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Attempt, len(h.attempts))
	copy(out, h.attempts)
	return out
}

// LastAttempt returns the most recent program, if any.
func (h *HAL) LastAttempt() (Attempt, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.attempts) == 0 {
		return Attempt{}, false
	}
	return h.attempts[len(h.attempts)-1], true
}

// ResetAttempts discards the recorded programs.
func (h *HAL) ResetAttempts() {
	h.mu.Lock()
	h.attempts = nil
	h.mu.Unlock()
}

// Faults returns how many times a busy channel was started again.
func (h *HAL) Faults() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.faults
}

// Running reports whether a channel is executing a program.
func (h *HAL) Running(ch int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return ch >= 0 && ch < len(h.channels) && h.channels[ch].running
}

// SetFrame sets the current frame number without raising an interrupt.
func (h *HAL) SetFrame(frame uint16) {
	h.mu.Lock()
	h.frame = frame
	h.mu.Unlock()
}

// AdvanceFrame moves the frame counter forward by n and latches a
// start-of-frame interrupt if frame interrupts are enabled.
func (h *HAL) AdvanceFrame(n int) {
	h.mu.Lock()
	h.frame += uint16(n)
	if h.frameIRQ {
		h.sof = true
	}
	h.mu.Unlock()
}

// FrameInterruptEnabled reports the last value passed to
// EnableFrameInterrupt.
func (h *HAL) FrameInterruptEnabled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frameIRQ
}

// SetPort replaces the port status and latches a port interrupt.
func (h *HAL) SetPort(status hal.PortStatus) {
	h.mu.Lock()
	h.port = status
	h.portChanged = true
	h.mu.Unlock()
}

// RaiseEndpoint latches a device-mode endpoint event.
func (h *HAL) RaiseEndpoint(ev hal.EndpointEvent) {
	h.mu.Lock()
	h.epEvents = append(h.epEvents, ev)
	h.mu.Unlock()
}

// Endpoint returns the configuration of an enabled device endpoint.
func (h *HAL) Endpoint(n uint8) (hal.EndpointConfig, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if int(n) >= len(h.endpoints) || h.endpoints[n] == nil {
		return hal.EndpointConfig{}, false
	}
	return *h.endpoints[n], true
}

// NumChannels implements [hal.ChannelHAL].
func (h *HAL) NumChannels() int {
	return len(h.channels)
}

// PendingInterrupts implements [hal.ChannelHAL].
func (h *HAL) PendingInterrupts() hal.Interrupts {
	h.mu.Lock()
	defer h.mu.Unlock()
	irq := hal.Interrupts{
		PortChanged:  h.portChanged,
		StartOfFrame: h.sof,
		Channels:     h.pending,
		Endpoints:    h.epEvents,
	}
	h.portChanged = false
	h.sof = false
	h.pending = 0
	h.epEvents = nil
	return irq
}

// StartChannel implements [hal.ChannelHAL].
func (h *HAL) StartChannel(ch int, prog *hal.ChannelProgram) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &h.channels[ch]
	if c.running || c.halted {
		h.faults++
		pkg.LogWarn(pkg.ComponentHAL, "channel started while busy", "channel", ch)
	}
	c.running = true
	c.halted = false
	c.prog = *prog
	h.attempts = append(h.attempts, Attempt{Channel: ch, Frame: h.frame, Program: *prog})

	pkg.LogDebug(pkg.ComponentHAL, "channel started",
		"channel", ch,
		"addr", prog.DeviceAddr,
		"ep", prog.Endpoint,
		"type", prog.Type,
		"dir", prog.Direction,
		"pid", prog.PID,
		"size", prog.TransferSize,
		"packets", prog.PacketCount)

	if h.responder != nil {
		if r, ok := h.responder(ch, &c.prog); ok {
			h.halt(ch, r)
			return
		}
	}
	if len(h.replies) > 0 {
		r := h.replies[0]
		h.replies = h.replies[1:]
		h.halt(ch, r)
	}
}

// halt latches the result of r on channel ch. Caller holds h.mu.
func (h *HAL) halt(ch int, r Reply) {
	c := &h.channels[ch]
	p := &c.prog

	bytes := r.Bytes
	if p.Direction == hal.DirectionIn {
		if bytes == 0 && r.Data != nil {
			bytes = len(r.Data)
		}
		if bytes > p.TransferSize {
			bytes = p.TransferSize
		}
		copy(p.Buffer[:min(bytes, len(p.Buffer))], r.Data)
	}

	packets := r.Packets
	startSplit := p.Split.Enable && !p.Split.Complete && p.Type != hal.TransferIsochronous
	if packets == 0 && p.MaxPacket > 0 && !startSplit {
		switch {
		case r.Flags.Has(hal.ResultAck):
			packets = max((bytes+p.MaxPacket-1)/p.MaxPacket, 1)
		case r.Flags.Has(hal.ResultNyet):
			packets = (bytes + p.MaxPacket - 1) / p.MaxPacket
		}
	}
	if packets > p.PacketCount {
		packets = p.PacketCount
	}

	next := nextPID(p.PID, packets)
	if r.NextPID != nil {
		next = *r.NextPID
	}

	remaining := p.TransferSize
	if p.Direction == hal.DirectionIn {
		remaining -= bytes
	}

	c.running = false
	c.halted = true
	c.result = hal.ChannelResult{
		Halted:           true,
		Flags:            r.Flags,
		RemainingSize:    remaining,
		RemainingPackets: p.PacketCount - packets,
		NextPID:          next,
	}
	h.pending |= 1 << uint(ch)
}

func nextPID(pid hal.PID, packets int) hal.PID {
	switch pid {
	case hal.PIDSetup:
		if packets > 0 {
			return hal.PIDData1
		}
		return hal.PIDData0
	case hal.PIDData0, hal.PIDData1:
		if packets%2 == 1 {
			if pid == hal.PIDData0 {
				return hal.PIDData1
			}
			return hal.PIDData0
		}
		return pid
	default:
		return hal.PIDData0
	}
}

// ChannelResult implements [hal.ChannelHAL].
func (h *HAL) ChannelResult(ch int) hal.ChannelResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &h.channels[ch]
	if !c.halted {
		return hal.ChannelResult{}
	}
	res := c.result
	c.halted = false
	c.result = hal.ChannelResult{}
	h.pending &^= 1 << uint(ch)
	return res
}

// AbortChannel implements [hal.ChannelHAL]. A running channel halts with
// no result flags set.
func (h *HAL) AbortChannel(ch int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &h.channels[ch]
	if !c.running {
		return false
	}
	c.running = false
	c.halted = true
	c.result = hal.ChannelResult{
		Halted:           true,
		RemainingSize:    c.prog.TransferSize,
		RemainingPackets: c.prog.PacketCount,
		NextPID:          c.prog.PID,
	}
	h.pending |= 1 << uint(ch)
	pkg.LogDebug(pkg.ComponentHAL, "channel aborted", "channel", ch)
	return true
}

// FrameNumber implements [hal.ChannelHAL].
func (h *HAL) FrameNumber() uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frame
}

// PortStatus implements [hal.ChannelHAL].
func (h *HAL) PortStatus() hal.PortStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.port
}

// EnableFrameInterrupt implements [hal.ChannelHAL].
func (h *HAL) EnableFrameInterrupt(enable bool) {
	h.mu.Lock()
	h.frameIRQ = enable
	if !enable {
		h.sof = false
	}
	h.mu.Unlock()
}

// EnableEndpoint implements [hal.EndpointHAL].
func (h *HAL) EnableEndpoint(cfg *hal.EndpointConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := *cfg
	h.endpoints[cfg.Number] = &c
}

// DisableEndpoint implements [hal.EndpointHAL].
func (h *HAL) DisableEndpoint(n uint8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endpoints[n] = nil
}

var (
	_ hal.ChannelHAL  = (*HAL)(nil)
	_ hal.EndpointHAL = (*HAL)(nil)
)
