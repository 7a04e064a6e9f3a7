package host

import (
	"time"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// schedule binds ready pipes to idle channels until either runs out.
// Periodic pipes are only considered on start-of-frame.
func (c *Controller) schedule(sof bool) {
	if !c.channels.any() {
		return
	}
	frame := int(c.hal.FrameNumber())
	now := c.clock.Now()

	for c.channels.any() {
		pi := none
		if sof {
			pi = c.findReadyPipe(&c.pipes.active[hal.TransferIsochronous], frame, now)
			if pi == none {
				pi = c.findReadyPipe(&c.pipes.active[hal.TransferInterrupt], frame, now)
			}
		}
		if pi == none {
			pi = c.findReadyPipe(&c.pipes.active[hal.TransferControl], frame, now)
			if pi == none {
				pi = c.findReadyPipe(&c.pipes.active[hal.TransferBulk], frame, now)
			}
		}
		if pi == none {
			return
		}
		ch, _ := c.channels.acquire()
		c.startChannel(ch, pi, frame)
	}
}

// findReadyPipe returns the first pipe in l that may start now.
func (c *Controller) findReadyPipe(l *indexList, frame int, now time.Time) int {
	for i := l.head; i != none; i = c.pipes.slots[i].next {
		p := &c.pipes.slots[i]
		if p.scheduled || p.queue.empty() || now.Before(p.nextTx) {
			continue
		}
		if p.splitFrame != none && (frame-p.splitFrame)&frameMask >= splitWindow {
			continue
		}
		return i
	}
	return none
}

// dataPID returns the data PID for the pipe's current toggle.
func (p *Pipe) dataPID() hal.PID {
	if p.toggle != 0 {
		return hal.PIDData1
	}
	return hal.PIDData0
}

// packetCount returns the number of packets needed for size bytes.
func packetCount(size, mps int) int {
	n := (size + mps - 1) / mps
	if n == 0 {
		n = 1
	}
	return n
}

// startChannel programs channel ch with the head transaction of pipe pi.
func (c *Controller) startChannel(ch, pi, frame int) {
	p := &c.pipes.slots[pi]
	ti := p.queue.head
	t := &c.txs.slots[ti]

	split := c.needsSplit(p)
	remaining := t.spaceLeft()
	offset := t.offset()

	prog := hal.ChannelProgram{
		DeviceAddr: p.deviceAddr,
		Endpoint:   p.endpoint,
		Type:       t.kind,
		Direction:  p.dir,
		LowSpeed:   p.speed == hal.SpeedLow,
		MaxPacket:  p.maxPacket,
		OddFrame:   frame&1 == 0,
		PID:        p.dataPID(),
		DoPing:     p.needPing,
	}

	size := remaining
	if split {
		complete := t.stage.IsSplitComplete()
		if complete {
			p.splitFrame = none
		} else if t.kind == hal.TransferBulk {
			p.splitFrame = (frame + 1) & frameMask
		} else {
			p.splitFrame = (frame + 2) & frameMask
		}
		prog.Split = hal.Split{
			Enable:   true,
			HubAddr:  p.hubAddr,
			HubPort:  p.hubPort,
			Complete: complete,
		}
		if size > p.maxPacket {
			size = p.maxPacket
		}
		if !complete && p.dir == hal.DirectionOut && t.kind == hal.TransferIsochronous {
			if t.actual == 0 {
				if size > isoSplitChunk {
					prog.Split.Position = hal.SplitBegin
				} else {
					prog.Split.Position = hal.SplitAll
				}
			} else {
				if size > isoSplitChunk {
					prog.Split.Position = hal.SplitMiddle
				} else {
					prog.Split.Position = hal.SplitEnd
				}
			}
			if size > isoSplitChunk {
				size = isoSplitChunk
			}
		}
		prog.MultiCount = 1
	} else {
		prog.MultiCount = min(max(p.multiCount, 1), 3)
	}

	buf := []byte(nil)
	switch t.kind {
	case hal.TransferControl:
		size, buf = c.programControl(&prog, t, split, remaining, offset)
	case hal.TransferIsochronous:
		if !split && p.dir == hal.DirectionOut {
			if p.multiCount < 2 {
				prog.PID = hal.PIDData0
			} else {
				prog.PID = hal.PIDMData
			}
		}
	}
	if buf == nil && t.buffer != nil {
		buf = t.buffer[offset : offset+size]
	}

	prog.TransferSize = size
	prog.PacketCount = packetCount(size, p.maxPacket)
	prog.Buffer = buf

	t.xferSize = prog.TransferSize
	t.packetCount = prog.PacketCount
	t.xferDir = prog.Direction

	p.scheduled = true
	p.channel = ch
	c.pipeForChannel[ch] = pi

	if c.tracing(p) {
		pkg.LogInfo(pkg.ComponentScheduler, "channel started",
			"channel", ch,
			"pipe", c.pipes.handle(pi),
			"tx", c.txs.handle(ti),
			"stage", t.stage,
			"pid", prog.PID,
			"ping", prog.DoPing,
			"size", prog.TransferSize,
			"packets", prog.PacketCount,
			"split", prog.Split.Enable,
			"frame", frame)
	}
	c.hal.StartChannel(ch, &prog)
}

// programControl applies the per-stage fixups of a control transfer and
// returns the transfer size and buffer window.
func (c *Controller) programControl(prog *hal.ChannelProgram, t *Transaction, split bool, remaining, offset int) (int, []byte) {
	dir := hal.DirectionOut
	if t.setup.IsIn() {
		dir = hal.DirectionIn
	}

	size := 0
	switch t.stage {
	case StageSetup:
		prog.PID = hal.PIDSetup
		prog.Direction = hal.DirectionOut
		return setupPacketLen, t.header[:]

	case StageSetupSplitComplete:
		prog.PID = hal.PIDSetup
		prog.Direction = hal.DirectionOut
		return 0, t.header[:0]

	case StageData:
		prog.Direction = dir
		switch {
		case !split:
			size = remaining
		case dir == hal.DirectionOut:
			size = min(remaining, prog.MaxPacket)
		}

	case StageDataSplitComplete:
		prog.Direction = dir
		if dir == hal.DirectionIn {
			size = remaining
		}

	case StageStatus, StageStatusSplitComplete:
		if dir == hal.DirectionIn {
			prog.Direction = hal.DirectionOut
		} else {
			prog.Direction = hal.DirectionIn
		}
	}
	return size, t.buffer[offset : offset+size]
}
