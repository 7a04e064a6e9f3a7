package host

import (
	"time"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// PipeParams describes the endpoint a pipe talks to.
type PipeParams struct {
	DeviceAddr int
	Endpoint   int
	Speed      hal.Speed
	MaxPacket  int
	Type       hal.TransferType
	Direction  hal.Direction

	// Interval is the polling period in frames (full/low speed) or
	// microframes (high speed). Zero means as fast as possible. Control
	// pipes require zero.
	Interval int

	// MultiCount is the number of packets per microframe for high-bandwidth
	// high-speed endpoints. Zero for all other speeds.
	MultiCount int

	// HubAddr and HubPort locate the transaction translator for low and
	// full speed devices behind a high-speed hub.
	HubAddr int
	HubPort int

	// Trace logs every channel start and completion on this pipe.
	Trace bool
}

// Pipe is the engine's state for one open endpoint.
type Pipe struct {
	links
	state PipeState
	gen   uint16

	deviceAddr uint8
	endpoint   uint8
	hubAddr    uint8
	hubPort    uint8
	speed      hal.Speed
	kind       hal.TransferType
	dir        hal.Direction
	maxPacket  int
	multiCount int
	interval   time.Duration

	queue     indexList // Transactions in submission order
	nextTx    time.Time // Earliest time the next attempt may start
	toggle    int       // Data PID: 0 for DATA0, 1 for DATA1
	needPing  bool
	trace     bool
	scheduled bool
	channel   int

	// splitFrame is the frame the complete-split is due in, or none.
	splitFrame int
}

func (p *PipeParams) validate() error {
	switch {
	case p.DeviceAddr < 0 || p.DeviceAddr > MaxUSBAddress:
		return errors.Wrapf(pkg.ErrInvalidParameter, "device address %d out of range", p.DeviceAddr)
	case p.Endpoint < 0 || p.Endpoint > MaxUSBEndpoint:
		return errors.Wrapf(pkg.ErrInvalidParameter, "endpoint %d out of range", p.Endpoint)
	case p.Speed != hal.SpeedLow && p.Speed != hal.SpeedFull && p.Speed != hal.SpeedHigh:
		return errors.Wrapf(pkg.ErrInvalidParameter, "invalid device speed %d", p.Speed)
	case p.MaxPacket <= 0 || p.MaxPacket > MaxPacketSize:
		return errors.Wrapf(pkg.ErrInvalidParameter, "max packet %d out of range", p.MaxPacket)
	case p.Type >= hal.NumTransferTypes:
		return errors.Wrapf(pkg.ErrInvalidParameter, "invalid transfer type %d", p.Type)
	case p.Direction != hal.DirectionIn && p.Direction != hal.DirectionOut:
		return errors.Wrapf(pkg.ErrInvalidParameter, "invalid direction %d", p.Direction)
	case p.Interval < 0:
		return errors.Wrapf(pkg.ErrInvalidParameter, "negative interval %d", p.Interval)
	case p.Type == hal.TransferControl && p.Interval != 0:
		return errors.Wrapf(pkg.ErrInvalidParameter, "control pipes take no interval, got %d", p.Interval)
	case p.MultiCount < 0:
		return errors.Wrapf(pkg.ErrInvalidParameter, "negative multi count %d", p.MultiCount)
	case p.Speed != hal.SpeedHigh && p.MultiCount != 0:
		return errors.Wrapf(pkg.ErrInvalidParameter, "multi count %d requires high speed", p.MultiCount)
	case p.HubAddr < 0 || p.HubAddr > MaxUSBAddress:
		return errors.Wrapf(pkg.ErrInvalidParameter, "hub address %d out of range", p.HubAddr)
	case p.HubPort < 0 || p.HubPort > MaxHubPort:
		return errors.Wrapf(pkg.ErrInvalidParameter, "hub port %d out of range", p.HubPort)
	}
	return nil
}

// pollInterval converts an interval in (micro)frames to a duration.
func pollInterval(speed hal.Speed, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if speed == hal.SpeedHigh {
		return time.Duration(n) * highSpeedInterval
	}
	return time.Duration(n) * fullSpeedInterval
}

// OpenPipe opens a pipe to a device endpoint.
func (c *Controller) OpenPipe(params PipeParams) (PipeHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mode != ModeHost {
		return 0, errors.Wrapf(pkg.ErrIncorrectMode, "open pipe in %s mode", c.cfg.Mode)
	}
	if err := params.validate(); err != nil {
		return 0, err
	}

	i, ok := c.pipes.alloc()
	if !ok {
		return 0, errors.Wrapf(pkg.ErrNoMemory, "all %d pipes open", MaxPipes)
	}
	p := &c.pipes.slots[i]
	p.deviceAddr = uint8(params.DeviceAddr)
	p.endpoint = uint8(params.Endpoint)
	p.hubAddr = uint8(params.HubAddr)
	p.hubPort = uint8(params.HubPort)
	p.speed = params.Speed
	p.kind = params.Type
	p.dir = params.Direction
	p.maxPacket = params.MaxPacket
	p.multiCount = params.MultiCount
	p.interval = pollInterval(params.Speed, params.Interval)
	p.nextTx = c.clock.Now().Add(p.interval)
	p.trace = params.Trace
	p.needPing = p.pingPipe()

	h := c.pipes.handle(i)
	pkg.LogDebug(pkg.ComponentHost, "pipe opened",
		"pipe", h,
		"addr", params.DeviceAddr,
		"ep", params.Endpoint,
		"type", params.Type,
		"dir", params.Direction,
		"speed", params.Speed,
		"mps", params.MaxPacket,
		"interval", p.interval)
	return h, nil
}

// ClosePipe closes an idle pipe. Pipes with outstanding transactions
// return [pkg.ErrBusy].
func (c *Controller) ClosePipe(pipe PipeHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mode != ModeHost {
		return errors.Wrapf(pkg.ErrIncorrectMode, "close pipe in %s mode", c.cfg.Mode)
	}
	i, p, err := c.pipes.lookup(pipe)
	if err != nil {
		return err
	}
	if !p.queue.empty() {
		return errors.Wrapf(pkg.ErrBusy, "pipe %#x has outstanding transactions", uint32(pipe))
	}
	c.pipes.release(i)
	pkg.LogDebug(pkg.ComponentHost, "pipe closed", "pipe", pipe)
	return nil
}

// pingPipe reports whether OUT attempts must be preceded by a PING.
func (p *Pipe) pingPipe() bool {
	return p.speed == hal.SpeedHigh && p.kind == hal.TransferBulk && p.dir == hal.DirectionOut
}

// needsSplit reports whether the pipe reaches a low or full speed device
// through a high-speed hub.
func (c *Controller) needsSplit(p *Pipe) bool {
	return c.port.Speed == hal.SpeedHigh && p.speed != hal.SpeedHigh
}

func (c *Controller) tracing(p *Pipe) bool {
	return c.cfg.TraceTransfers || p.trace
}
