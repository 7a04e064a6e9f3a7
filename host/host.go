package host

import (
	"context"
	"math/bits"
	"sync"
	"time"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// Clock supplies the time used for pipe intervals and backoff.
type Clock interface {
	Now() time.Time
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now() }

// Config configures a Controller.
type Config struct {
	// Mode selects host or device operation.
	Mode Mode

	// Channels limits the hardware channels used. Zero uses every channel
	// the HAL reports, up to MaxChannels.
	Channels int

	// Clock is the time source. Nil uses the wall clock.
	Clock Clock

	// TraceTransfers logs every channel start and halt on every pipe.
	TraceTransfers bool

	// TraceCallbacks logs every callback dispatch.
	TraceCallbacks bool
}

// Controller multiplexes pipes over the hardware channels of a HAL.
//
// All methods are safe for concurrent use. Completion callbacks run from
// Poll (or Cancel) with the controller lock released.
type Controller struct {
	mu  sync.Mutex
	hal hal.ChannelHAL
	ep  hal.EndpointHAL
	cfg Config

	clock Clock

	pipes          pipePool
	txs            transactionPool
	channels       channelSet
	pipeForChannel [MaxChannels]int

	callbacks [numReasons]Callback

	port    hal.PortStatus // Cached for split decisions
	portRef hal.PortStatus // Reference for connect change detection

	toggles [hal.MaxDeviceEndpoints]int

	// Polling loop
	runMu   sync.Mutex
	running bool
	stop    context.CancelFunc
	done    chan struct{}
}

// New creates a controller on h. Every pool is allocated up front.
func New(h hal.ChannelHAL, cfg Config) (*Controller, error) {
	if h == nil {
		return nil, errors.Wrap(pkg.ErrInvalidParameter, "nil HAL")
	}
	if cfg.Mode != ModeHost && cfg.Mode != ModeDevice {
		return nil, errors.Wrapf(pkg.ErrInvalidParameter, "unknown mode %d", cfg.Mode)
	}

	n := min(h.NumChannels(), MaxChannels)
	if cfg.Channels < 0 || cfg.Channels > n {
		return nil, errors.Wrapf(pkg.ErrInvalidParameter,
			"%d channels requested, HAL provides %d", cfg.Channels, n)
	}
	if cfg.Channels > 0 {
		n = cfg.Channels
	}
	if n == 0 {
		return nil, errors.Wrap(pkg.ErrNotSupported, "HAL has no channels")
	}
	cfg.Channels = n

	c := &Controller{
		hal:      h,
		cfg:      cfg,
		clock:    cfg.Clock,
		channels: newChannelSet(n),
	}
	if c.clock == nil {
		c.clock = wallClock{}
	}
	if cfg.Mode == ModeDevice {
		ep, ok := h.(hal.EndpointHAL)
		if !ok {
			return nil, errors.Wrap(pkg.ErrNotSupported, "HAL has no device-mode endpoints")
		}
		c.ep = ep
	}

	c.pipes.init()
	c.txs.init()
	for i := range c.pipeForChannel {
		c.pipeForChannel[i] = none
	}
	c.port = h.PortStatus()
	c.portRef = c.port

	pkg.LogDebug(pkg.ComponentHost, "controller created",
		"mode", cfg.Mode,
		"channels", n,
		"port_speed", c.port.Speed)
	return c, nil
}

// Mode returns the controller mode.
func (c *Controller) Mode() Mode {
	return c.cfg.Mode
}

// Poll services pending interrupts: port changes, halted channels, and
// device-mode endpoint events, then starts whatever the scheduler finds
// ready. It is the only place completions are detected.
func (c *Controller) Poll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	irq := c.hal.PendingInterrupts()

	if irq.PortChanged {
		c.port = c.hal.PortStatus()
		pkg.LogDebug(pkg.ComponentHost, "port changed",
			"connected", c.port.Connected,
			"speed", c.port.Speed)
		c.dispatch(Event{Reason: ReasonPortChanged, Status: pkg.TransferStatusSuccess}, nil)
	}

	var err error
	for mask := irq.Channels; mask != 0; mask &= mask - 1 {
		ch := bits.TrailingZeros32(mask)
		if ch >= c.channels.n {
			pkg.LogWarn(pkg.ComponentHost, "interrupt on unused channel", "channel", ch)
			err = errors.Wrapf(pkg.ErrProtocol, "interrupt on unused channel %d", ch)
			continue
		}
		c.serviceChannel(ch)
	}

	if c.cfg.Mode == ModeDevice {
		for _, ev := range irq.Endpoints {
			c.serviceEndpoint(ev)
		}
		return err
	}

	c.schedule(irq.StartOfFrame)
	return err
}

// Start runs Poll every period until ctx is cancelled or Stop is called.
// It is for platforms without a controller interrupt.
func (c *Controller) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "poll period %v", period)
	}

	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.running {
		return pkg.ErrAlreadyRunning
	}

	ctx, c.stop = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.running = true

	go c.pollLoop(ctx, period, c.done)

	pkg.LogInfo(pkg.ComponentHost, "polling started", "period", period)
	return nil
}

// Stop halts the polling loop started by Start and waits for it to exit.
// Callbacks run by that loop must not call Stop directly, since the loop
// cannot exit until the callback returns; use go c.Stop() there instead.
func (c *Controller) Stop() error {
	c.runMu.Lock()
	if !c.running {
		c.runMu.Unlock()
		return nil
	}
	c.running = false
	c.stop()
	done := c.done
	c.runMu.Unlock()

	<-done
	pkg.LogInfo(pkg.ComponentHost, "polling stopped")
	return nil
}

// IsRunning returns true if the polling loop is running.
func (c *Controller) IsRunning() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

func (c *Controller) pollLoop(ctx context.Context, period time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Poll(); err != nil {
				pkg.LogWarn(pkg.ComponentHost, "poll failed", "error", err)
			}
		}
	}
}

// GetPortStatus returns the root port status. ConnectChange is set when
// the connection state differs from the last status passed to
// SetPortStatus.
func (c *Controller) GetPortStatus() hal.PortStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.hal.PortStatus()
	s.ConnectChange = s.Connected != c.portRef.Connected
	return s
}

// SetPortStatus records the reference status used by GetPortStatus.
func (c *Controller) SetPortStatus(s hal.PortStatus) {
	c.mu.Lock()
	c.portRef = s
	c.mu.Unlock()
}

// FrameNumber returns the current (micro)frame number.
func (c *Controller) FrameNumber() int {
	return int(c.hal.FrameNumber())
}

// Stage returns the stage of an outstanding transaction.
func (c *Controller) Stage(pipe PipeHandle, tx TransactionHandle) (Stage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pi, _, err := c.pipes.lookup(pipe)
	if err != nil {
		return 0, err
	}
	_, t, err := c.txs.lookup(tx)
	if err != nil {
		return 0, err
	}
	if t.pipe != pi {
		return 0, errors.Wrapf(pkg.ErrInvalidParameter, "transaction %#x belongs to another pipe", uint32(tx))
	}
	return t.stage, nil
}

// PipeState returns the list an open pipe is on.
func (c *Controller) PipeState(pipe PipeHandle) (PipeState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, p, err := c.pipes.lookup(pipe)
	if err != nil {
		return PipeFree, err
	}
	return p.state, nil
}

// IdleChannels returns the number of channels not bound or awaiting a halt.
func (c *Controller) IdleChannels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels.count()
}

// ActiveTransactions returns the number of outstanding transactions.
func (c *Controller) ActiveTransactions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.txs.inUse
}
