package host

import (
	"fmt"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// Stage is the position of a transaction within its transfer. Split
// complete stages are odd and follow their start-split stage.
type Stage uint8

// Transaction stages.
const (
	StageNonControl              Stage = 0
	StageNonControlSplitComplete Stage = 1
	StageSetup                   Stage = 2
	StageSetupSplitComplete      Stage = 3
	StageData                    Stage = 4
	StageDataSplitComplete       Stage = 5
	StageStatus                  Stage = 6
	StageStatusSplitComplete     Stage = 7
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageNonControl:
		return "non-control"
	case StageNonControlSplitComplete:
		return "non-control-split-complete"
	case StageSetup:
		return "setup"
	case StageSetupSplitComplete:
		return "setup-split-complete"
	case StageData:
		return "data"
	case StageDataSplitComplete:
		return "data-split-complete"
	case StageStatus:
		return "status"
	case StageStatusSplitComplete:
		return "status-split-complete"
	default:
		return fmt.Sprintf("Stage(%d)", s)
	}
}

// IsSplitComplete reports whether s is a complete-split stage.
func (s Stage) IsSplitComplete() bool {
	return s&1 == 1
}

// Rewind returns the start-split stage paired with s.
func (s Stage) Rewind() Stage {
	return s &^ 1
}

// timing selects how a pipe's next activation time moves after an attempt.
type timing uint8

const (
	timingNone     timing = iota
	timingRetry           // next = now + interval
	timingInterval        // next += interval
	timingBackoff         // next = max(next, now) + interval
)

// attempt is the engine state an outcome is computed from.
type attempt struct {
	flags   hal.ResultFlags
	stage   Stage
	retries int
	kind    hal.TransferType
	dir     hal.Direction // Pipe direction
	split   bool

	hasData   bool // Control transfer has a data stage
	spaceLeft int  // Bytes still expected in the current buffer or packet
	moved     int  // Bytes moved by this attempt
	last      int  // Bytes in the final packet of this attempt
	maxPacket int

	pingPipe bool // High-speed bulk OUT pipe
}

// outcome is what the engine applies to the pipe and transaction.
type outcome struct {
	stage      Stage
	retries    int
	timing     timing
	clearSplit bool
	toggle     int // -1 keeps the hardware toggle, else forces DATA0/DATA1
	needPing   bool

	complete bool
	status   pkg.TransferStatus
}

func (o *outcome) finish(status pkg.TransferStatus) {
	o.complete = true
	o.status = status
}

func (o *outcome) rewind(a *attempt) {
	o.stage = a.stage.Rewind()
	o.clearSplit = true
}

// acked reports whether f resolves as a plain ACK.
func acked(f hal.ResultFlags) bool {
	const before = hal.ResultStall | hal.ResultXactError | hal.ResultBabble |
		hal.ResultFrameOverrun | hal.ResultNyet
	return f.Has(hal.ResultAck) && f&before == 0
}

// resolve decides the fate of a transaction after its channel halts. The
// first matching flag wins: STALL, XACTERR, BABBLE, FRMOVRUN, NYET, ACK,
// NAK, else an unexpected state.
func resolve(a attempt) outcome {
	o := outcome{
		stage:    a.stage,
		retries:  a.retries,
		toggle:   -1,
		needPing: a.pingPipe,
	}
	f := a.flags
	short := a.spaceLeft == 0 || a.last < a.maxPacket

	switch {
	case f.Has(hal.ResultStall):
		o.toggle = 0
		o.finish(pkg.TransferStatusStall)

	case f.Has(hal.ResultXactError):
		if f.Has(hal.ResultAck) || f.Has(hal.ResultNak) {
			o.retries = 0
		} else {
			o.retries++
		}
		if o.retries > MaxRetries {
			o.finish(pkg.TransferStatusXactError)
		} else {
			o.rewind(&a)
			o.timing = timingRetry
		}

	case f.Has(hal.ResultBabble):
		o.finish(pkg.TransferStatusBabble)

	case f.Has(hal.ResultFrameOverrun):
		o.rewind(&a)

	case f.Has(hal.ResultNyet):
		if !a.split {
			o.retries = 0
			if short {
				o.finish(pkg.TransferStatusSuccess)
			}
			break
		}
		o.retries++
		if o.retries%nyetRewind == 0 {
			o.rewind(&a)
			o.retries = 0
		}

	case f.Has(hal.ResultAck):
		o.retries = 0
		o.needPing = false
		switch a.kind {
		case hal.TransferControl:
			resolveControlAck(&a, &o)
		case hal.TransferBulk, hal.TransferInterrupt:
			resolvePeriodicAck(&a, &o, short)
		case hal.TransferIsochronous:
			resolveIsoAck(&a, &o, short)
		}

	case f.Has(hal.ResultNak):
		o.retries = 0
		o.rewind(&a)
		o.timing = timingBackoff

	default:
		o.finish(pkg.TransferStatusError)
	}
	return o
}

func resolveControlAck(a *attempt, o *outcome) {
	switch a.stage {
	case StageSetup:
		o.toggle = 1
		switch {
		case a.split:
			o.stage = StageSetupSplitComplete
		case a.hasData:
			o.stage = StageData
		default:
			o.stage = StageStatus
		}
	case StageSetupSplitComplete:
		if a.hasData {
			o.stage = StageData
		} else {
			o.stage = StageStatus
		}
	case StageData:
		switch {
		case a.split:
			o.stage = StageDataSplitComplete
		case a.spaceLeft == 0 || a.last < a.maxPacket:
			o.toggle = 1
			o.stage = StageStatus
		}
	case StageDataSplitComplete:
		if a.spaceLeft == 0 || a.last < a.maxPacket {
			o.toggle = 1
			o.stage = StageStatus
		} else {
			o.stage = StageData
		}
	case StageStatus:
		if a.split {
			o.stage = StageStatusSplitComplete
		} else {
			o.finish(pkg.TransferStatusSuccess)
		}
	case StageStatusSplitComplete:
		o.finish(pkg.TransferStatusSuccess)
	default:
		o.finish(pkg.TransferStatusError)
	}
}

func resolvePeriodicAck(a *attempt, o *outcome, short bool) {
	if a.split {
		switch {
		case a.stage == StageNonControl:
			o.stage = StageNonControlSplitComplete
		case a.spaceLeft > 0 && a.last == a.maxPacket:
			o.stage = StageNonControl
		default:
			if a.kind == hal.TransferInterrupt {
				o.timing = timingInterval
			}
			o.finish(pkg.TransferStatusSuccess)
		}
		return
	}
	if a.pingPipe && a.flags.Has(hal.ResultNak) {
		o.needPing = true
	}
	if short {
		if a.kind == hal.TransferInterrupt {
			o.timing = timingInterval
		}
		o.finish(pkg.TransferStatusSuccess)
	}
}

func resolveIsoAck(a *attempt, o *outcome, short bool) {
	if !a.split {
		o.timing = timingInterval
		o.finish(pkg.TransferStatusSuccess)
		return
	}
	if a.dir == hal.DirectionOut {
		o.timing = timingInterval
		if a.spaceLeft == 0 || a.moved < isoSplitChunk {
			o.finish(pkg.TransferStatusSuccess)
		}
		return
	}
	if a.stage == StageNonControlSplitComplete {
		if short {
			o.timing = timingInterval
			o.finish(pkg.TransferStatusSuccess)
		}
		return
	}
	o.stage = StageNonControlSplitComplete
}
