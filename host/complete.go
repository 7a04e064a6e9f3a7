package host

import (
	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// serviceChannel consumes the latched result of a halted channel and
// advances the transaction bound to it.
func (c *Controller) serviceChannel(ch int) {
	res := c.hal.ChannelResult(ch)
	if !res.Halted {
		return
	}

	// The channel is free from here on, whatever happened to the pipe.
	c.channels.release(ch)
	pi := c.pipeForChannel[ch]
	if pi == none {
		pkg.LogDebug(pkg.ComponentScheduler, "released unbound channel", "channel", ch)
		return
	}
	c.pipeForChannel[ch] = none
	p := &c.pipes.slots[pi]
	p.scheduled = false
	p.channel = none

	ti := p.queue.head
	if ti == none {
		pkg.LogWarn(pkg.ComponentScheduler, "channel halted on empty pipe",
			"channel", ch, "pipe", c.pipes.handle(pi))
		return
	}
	t := &c.txs.slots[ti]

	packets := t.packetCount - res.RemainingPackets
	moved := 0
	if t.xferDir == hal.DirectionIn {
		moved = t.xferSize - res.RemainingSize
	} else {
		moved = min(packets*p.maxPacket, t.xferSize)
	}
	last := moved
	if packets > 0 {
		last = moved - (packets-1)*p.maxPacket
	}
	switch {
	case t.stage == StageSetup || t.stage == StageSetupSplitComplete:
		moved = 0
	case t.stage == StageDataSplitComplete && t.xferDir == hal.DirectionOut && acked(res.Flags):
		// The start-split carried the packet and the complete-split moves
		// nothing, so the channel counts no data for control OUT splits.
		moved = min(t.spaceLeft(), p.maxPacket)
		last = moved
	}
	t.actual += moved

	if res.NextPID == hal.PIDData0 {
		p.toggle = 0
	} else {
		p.toggle = 1
	}

	o := resolve(attempt{
		flags:     res.Flags,
		stage:     t.stage,
		retries:   t.retries,
		kind:      t.kind,
		dir:       p.dir,
		split:     c.needsSplit(p),
		hasData:   t.setup.Length != 0,
		spaceLeft: t.spaceLeft(),
		moved:     moved,
		last:      last,
		maxPacket: p.maxPacket,
		pingPipe:  p.pingPipe(),
	})

	if c.tracing(p) {
		pkg.LogInfo(pkg.ComponentScheduler, "channel halted",
			"channel", ch,
			"pipe", c.pipes.handle(pi),
			"tx", c.txs.handle(ti),
			"flags", res.Flags,
			"stage", t.stage,
			"next_stage", o.stage,
			"bytes", moved,
			"actual", t.actual,
			"retries", o.retries)
	}

	t.stage = o.stage
	t.retries = o.retries
	p.needPing = o.needPing
	if o.toggle >= 0 {
		p.toggle = o.toggle
	}
	if o.clearSplit {
		p.splitFrame = none
	}
	switch o.timing {
	case timingRetry:
		p.nextTx = c.clock.Now().Add(p.interval)
	case timingInterval:
		p.nextTx = p.nextTx.Add(p.interval)
	case timingBackoff:
		if now := c.clock.Now(); p.nextTx.Before(now) {
			p.nextTx = now
		}
		p.nextTx = p.nextTx.Add(p.interval)
	}

	if o.complete {
		if o.status == pkg.TransferStatusXactError {
			pkg.LogWarn(pkg.ComponentTransfer, "transaction error retries exhausted",
				"pipe", c.pipes.handle(pi),
				"tx", c.txs.handle(ti),
				"retries", o.retries)
		}
		c.complete(pi, ti, o.status)
	}
}

// complete finishes the transaction in flight. Isochronous transfers with
// packets left rotate to the next packet on success; everything else is
// removed from the pipe, freed, and reported to its callback.
func (c *Controller) complete(pi, ti int, status pkg.TransferStatus) {
	p := &c.pipes.slots[pi]
	t := &c.txs.slots[ti]

	if t.kind == hal.TransferIsochronous {
		pkt := &t.packets[t.packet]
		pkt.Length = t.actual
		pkt.Status = status
		if status == pkg.TransferStatusSuccess && t.packet+1 < len(t.packets) {
			t.actual = 0
			t.packet++
			t.stage = StageNonControl
			return
		}
	}

	c.txs.unlink(&p.queue, ti)
	if p.queue.empty() {
		c.pipes.move(pi, PipeIdle)
	}

	ev := Event{
		Reason:      ReasonTransferComplete,
		Status:      status,
		Pipe:        c.pipes.handle(pi),
		Transaction: c.txs.handle(ti),
		Endpoint:    int(p.endpoint),
		Bytes:       t.actual,
		Data:        t.data,
	}
	if t.kind == hal.TransferIsochronous {
		ev.Bytes = 0
		for _, pkt := range t.packets[:t.packet+1] {
			ev.Bytes += pkt.Length
		}
	}
	cb := t.callback

	if c.tracing(p) {
		pkg.LogInfo(pkg.ComponentTransfer, "transaction complete",
			"pipe", ev.Pipe,
			"tx", ev.Transaction,
			"status", status,
			"bytes", ev.Bytes)
	}

	c.txs.release(ti)
	if c.txs.inUse == 0 {
		c.hal.EnableFrameInterrupt(false)
	}
	c.dispatch(ev, cb)
}
