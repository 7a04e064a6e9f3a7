package host

import (
	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// IsoPacket describes one packet of an isochronous transfer. Length and
// Status are updated in place as each packet completes.
type IsoPacket struct {
	Offset int                // Start of the packet within the transfer buffer
	Length int                // Bytes requested; bytes transferred on completion
	Status pkg.TransferStatus // Result of the packet
}

// Transaction is one submitted transfer.
type Transaction struct {
	links
	gen  uint16
	used bool
	pipe int

	kind   hal.TransferType
	stage  Stage
	buffer []byte
	length int // Bytes to move; control OUT uses the setup length
	actual int // Bytes moved so far in the buffer or current packet

	setup  hal.SetupPacket
	header [setupPacketLen]byte

	packets []IsoPacket
	packet  int // Index of the packet in flight

	retries int

	// Recorded when the channel is started.
	xferSize    int
	packetCount int
	xferDir     hal.Direction

	callback Callback
	data     any
}

func (t *Transaction) spaceLeft() int {
	if t.kind == hal.TransferIsochronous {
		return t.packets[t.packet].Length - t.actual
	}
	return t.length - t.actual
}

func (t *Transaction) offset() int {
	if t.kind == hal.TransferIsochronous {
		return t.packets[t.packet].Offset + t.actual
	}
	return t.actual
}

// submission carries the type-specific parts of a submit call.
type submission struct {
	kind     hal.TransferType
	buffer   []byte
	length   int
	setup    *hal.SetupPacket
	packets  []IsoPacket
	callback Callback
	data     any
}

// SubmitBulk queues a bulk transfer of buf on pipe.
func (c *Controller) SubmitBulk(pipe PipeHandle, buf []byte, cb Callback, data any) (TransactionHandle, error) {
	if buf == nil {
		return 0, errors.Wrap(pkg.ErrInvalidParameter, "bulk transfer needs a buffer")
	}
	return c.submit(pipe, submission{
		kind:     hal.TransferBulk,
		buffer:   buf,
		length:   len(buf),
		callback: cb,
		data:     data,
	})
}

// SubmitInterrupt queues an interrupt transfer of buf on pipe.
func (c *Controller) SubmitInterrupt(pipe PipeHandle, buf []byte, cb Callback, data any) (TransactionHandle, error) {
	if buf == nil {
		return 0, errors.Wrap(pkg.ErrInvalidParameter, "interrupt transfer needs a buffer")
	}
	return c.submit(pipe, submission{
		kind:     hal.TransferInterrupt,
		buffer:   buf,
		length:   len(buf),
		callback: cb,
		data:     data,
	})
}

// SubmitControl queues a control transfer. For OUT requests the data stage
// sends setup.Length bytes of buf; for IN requests buf receives the data.
func (c *Controller) SubmitControl(pipe PipeHandle, setup *hal.SetupPacket, buf []byte, cb Callback, data any) (TransactionHandle, error) {
	if setup == nil {
		return 0, errors.Wrap(pkg.ErrInvalidParameter, "control transfer needs a setup packet")
	}
	length := len(buf)
	if !setup.IsIn() {
		length = int(setup.Length)
		if len(buf) < length {
			return 0, errors.Wrapf(pkg.ErrInvalidParameter,
				"setup requests %d bytes but buffer holds %d", length, len(buf))
		}
	}
	return c.submit(pipe, submission{
		kind:     hal.TransferControl,
		buffer:   buf,
		length:   length,
		setup:    setup,
		callback: cb,
		data:     data,
	})
}

// SubmitIsochronous queues an isochronous transfer. Each packet names a
// window of buf; packets are sent one per interval and their Length and
// Status fields are updated as they complete.
//
// startFrame and flags are validated but not yet honoured: the first packet
// goes out on the next start-of-frame after the pipe's interval, as with
// IsoASAP, and short packets complete the same way either way.
func (c *Controller) SubmitIsochronous(pipe PipeHandle, startFrame int, flags IsoFlags, packets []IsoPacket, buf []byte, cb Callback, data any) (TransactionHandle, error) {
	switch {
	case startFrame < 0:
		return 0, errors.Wrapf(pkg.ErrInvalidParameter, "negative start frame %d", startFrame)
	case flags&^isoFlagsMask != 0:
		return 0, errors.Wrapf(pkg.ErrInvalidParameter, "unknown isochronous flags %#x", uint8(flags))
	case len(packets) == 0:
		return 0, errors.Wrap(pkg.ErrInvalidParameter, "isochronous transfer needs packets")
	case buf == nil:
		return 0, errors.Wrap(pkg.ErrInvalidParameter, "isochronous transfer needs a buffer")
	}
	for i, pkt := range packets {
		if pkt.Offset < 0 || pkt.Length < 0 || pkt.Offset+pkt.Length > len(buf) {
			return 0, errors.Wrapf(pkg.ErrInvalidParameter,
				"packet %d [%d:+%d] outside %d byte buffer", i, pkt.Offset, pkt.Length, len(buf))
		}
	}
	return c.submit(pipe, submission{
		kind:     hal.TransferIsochronous,
		buffer:   buf,
		length:   len(buf),
		packets:  packets,
		callback: cb,
		data:     data,
	})
}

func (c *Controller) submit(pipe PipeHandle, s submission) (TransactionHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mode != ModeHost {
		return 0, errors.Wrapf(pkg.ErrIncorrectMode, "submit %s in %s mode", s.kind, c.cfg.Mode)
	}
	pi, p, err := c.pipes.lookup(pipe)
	if err != nil {
		return 0, err
	}
	if p.kind != s.kind {
		return 0, errors.Wrapf(pkg.ErrInvalidParameter, "%s transfer on %s pipe", s.kind, p.kind)
	}

	ti, ok := c.txs.alloc()
	if !ok {
		return 0, errors.Wrapf(pkg.ErrNoMemory, "all %d transactions outstanding", MaxTransactions)
	}
	t := &c.txs.slots[ti]
	t.pipe = pi
	t.kind = s.kind
	t.buffer = s.buffer
	t.length = s.length
	t.callback = s.callback
	t.data = s.data
	t.stage = StageNonControl
	if s.setup != nil {
		t.setup = *s.setup
		t.setup.MarshalTo(t.header[:])
		t.stage = StageSetup
	}
	if s.kind == hal.TransferIsochronous {
		t.packets = s.packets
	}

	if c.txs.inUse == 1 {
		c.hal.EnableFrameInterrupt(true)
	}
	wasIdle := p.queue.empty()
	c.txs.push(&p.queue, ti)
	if wasIdle {
		c.pipes.move(pi, PipeActive)
	}

	h := c.txs.handle(ti)
	if c.tracing(p) {
		pkg.LogInfo(pkg.ComponentTransfer, "transaction submitted",
			"pipe", pipe,
			"tx", h,
			"type", s.kind,
			"length", s.length)
	}

	if wasIdle {
		c.schedule(false)
	}
	return h, nil
}

// Cancel removes a transaction from its pipe and completes it with
// [pkg.TransferStatusCancelled]. A transaction whose channel already
// halted is completed with the hardware result instead, and Cancel
// returns [pkg.ErrInvalidParameter].
func (c *Controller) Cancel(pipe PipeHandle, tx TransactionHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mode != ModeHost {
		return errors.Wrapf(pkg.ErrIncorrectMode, "cancel in %s mode", c.cfg.Mode)
	}
	pi, _, err := c.pipes.lookup(pipe)
	if err != nil {
		return err
	}
	return c.cancel(pi, tx)
}

// CancelAll cancels every transaction queued on pipe.
func (c *Controller) CancelAll(pipe PipeHandle) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Mode != ModeHost {
		return errors.Wrapf(pkg.ErrIncorrectMode, "cancel in %s mode", c.cfg.Mode)
	}
	pi, p, err := c.pipes.lookup(pipe)
	if err != nil {
		return err
	}
	gen := p.gen
	for {
		// Callbacks may close or reopen the pipe while the lock is released.
		if p.state == PipeFree || p.gen != gen || p.queue.empty() {
			return nil
		}
		if err := c.cancel(pi, c.txs.handle(p.queue.head)); err != nil &&
			!errors.Is(err, pkg.ErrInvalidParameter) {
			return err
		}
	}
}

func (c *Controller) cancel(pi int, tx TransactionHandle) error {
	ti, t, err := c.txs.lookup(tx)
	if err != nil {
		return err
	}
	if t.pipe != pi {
		return errors.Wrapf(pkg.ErrInvalidParameter, "transaction %#x belongs to another pipe", uint32(tx))
	}
	p := &c.pipes.slots[pi]

	if p.queue.head == ti && p.scheduled {
		ch := p.channel
		if !c.hal.AbortChannel(ch) {
			// The channel halted before the abort landed; its result wins.
			c.serviceChannel(ch)
			if ti, t, err = c.txs.lookup(tx); err != nil {
				return errors.Wrapf(pkg.ErrInvalidParameter, "transaction %#x completed before cancel", uint32(tx))
			}
			p = &c.pipes.slots[t.pipe]
		} else {
			// The channel stays busy until the poller observes the halt.
			c.pipeForChannel[ch] = none
			p.scheduled = false
			p.channel = none
		}
	}

	if c.tracing(p) {
		pkg.LogInfo(pkg.ComponentTransfer, "transaction cancelled", "tx", tx, "stage", t.stage)
	}
	c.complete(t.pipe, ti, pkg.TransferStatusCancelled)
	return nil
}
