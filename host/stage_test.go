package host

import (
	"testing"

	"github.com/efficientgo/core/testutil"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

func bulkAttempt(flags hal.ResultFlags) attempt {
	return attempt{
		flags:     flags,
		stage:     StageNonControl,
		kind:      hal.TransferBulk,
		dir:       hal.DirectionIn,
		spaceLeft: 64,
		moved:     64,
		last:      64,
		maxPacket: 64,
	}
}

func TestResolve_Priority(t *testing.T) {
	tests := []struct {
		name     string
		flags    hal.ResultFlags
		complete bool
		status   pkg.TransferStatus
	}{
		{"stall beats everything", hal.ResultStall | hal.ResultXactError | hal.ResultAck, true, pkg.TransferStatusStall},
		{"xact error beats babble", hal.ResultXactError | hal.ResultBabble, false, 0},
		{"babble beats overrun", hal.ResultBabble | hal.ResultFrameOverrun, true, pkg.TransferStatusBabble},
		{"overrun beats nyet", hal.ResultFrameOverrun | hal.ResultNyet, false, 0},
		{"nak alone retries", hal.ResultNak, false, 0},
		{"nothing is an error", 0, true, pkg.TransferStatusError},
		{"toggle error alone is an error", hal.ResultDataToggleError, true, pkg.TransferStatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := resolve(bulkAttempt(tt.flags))
			testutil.Equals(t, tt.complete, o.complete)
			if tt.complete {
				testutil.Equals(t, tt.status, o.status)
			}
		})
	}
}

func TestAcked(t *testing.T) {
	tests := []struct {
		flags hal.ResultFlags
		want  bool
	}{
		{hal.ResultAck, true},
		{hal.ResultAck | hal.ResultNak, true},
		{hal.ResultAck | hal.ResultNyet, false},
		{hal.ResultAck | hal.ResultFrameOverrun, false},
		{hal.ResultAck | hal.ResultXactError, false},
		{hal.ResultNak, false},
	}
	for _, tt := range tests {
		testutil.Equals(t, tt.want, acked(tt.flags), "flags %#x", tt.flags)
	}
}

func TestResolve_StallResetsToggle(t *testing.T) {
	o := resolve(bulkAttempt(hal.ResultStall))
	testutil.Equals(t, 0, o.toggle)
}

func TestResolve_XactErrorRetryBound(t *testing.T) {
	a := bulkAttempt(hal.ResultXactError)
	a.stage = StageNonControlSplitComplete
	a.split = true

	for i := 1; i <= MaxRetries; i++ {
		o := resolve(a)
		testutil.Assert(t, !o.complete, "attempt %d should retry", i)
		testutil.Equals(t, i, o.retries)
		testutil.Equals(t, StageNonControl, o.stage)
		testutil.Equals(t, timingRetry, o.timing)
		testutil.Assert(t, o.clearSplit, "retry should clear the split frame")
		a.retries = o.retries
	}

	o := resolve(a)
	testutil.Assert(t, o.complete, "retries exhausted")
	testutil.Equals(t, pkg.TransferStatusXactError, o.status)
}

func TestResolve_XactErrorWithHandshakeResetsRetries(t *testing.T) {
	a := bulkAttempt(hal.ResultXactError | hal.ResultNak)
	a.retries = MaxRetries
	o := resolve(a)
	testutil.Assert(t, !o.complete, "handshake seen, should retry")
	testutil.Equals(t, 0, o.retries)
}

func TestResolve_NyetSplitRewindsEveryFourth(t *testing.T) {
	a := attempt{
		flags:     hal.ResultNyet,
		stage:     StageNonControlSplitComplete,
		kind:      hal.TransferInterrupt,
		dir:       hal.DirectionIn,
		split:     true,
		spaceLeft: 8,
		maxPacket: 8,
	}
	for i := 1; i < nyetRewind; i++ {
		o := resolve(a)
		testutil.Equals(t, StageNonControlSplitComplete, o.stage, "nyet %d", i)
		testutil.Equals(t, i, o.retries)
		a.retries = o.retries
	}
	o := resolve(a)
	testutil.Equals(t, StageNonControl, o.stage)
	testutil.Equals(t, 0, o.retries)
	testutil.Assert(t, o.clearSplit, "rewind should clear the split frame")
}

func TestResolve_NyetNonSplit(t *testing.T) {
	a := attempt{
		flags:     hal.ResultNyet,
		kind:      hal.TransferBulk,
		dir:       hal.DirectionOut,
		retries:   2,
		spaceLeft: 512,
		moved:     512,
		last:      512,
		maxPacket: 512,
		pingPipe:  true,
	}
	o := resolve(a)
	testutil.Assert(t, !o.complete, "more data to send")
	testutil.Equals(t, 0, o.retries)
	testutil.Assert(t, o.needPing, "ping re-armed after every halt")

	a.spaceLeft = 0
	o = resolve(a)
	testutil.Assert(t, o.complete, "buffer drained")
	testutil.Equals(t, pkg.TransferStatusSuccess, o.status)
}

func TestResolve_NakBacksOff(t *testing.T) {
	a := bulkAttempt(hal.ResultNak)
	a.stage = StageNonControlSplitComplete
	a.retries = 2
	o := resolve(a)
	testutil.Equals(t, StageNonControl, o.stage)
	testutil.Equals(t, 0, o.retries)
	testutil.Equals(t, timingBackoff, o.timing)
}

func TestResolve_ControlAck(t *testing.T) {
	tests := []struct {
		name      string
		stage     Stage
		split     bool
		hasData   bool
		spaceLeft int
		last      int
		next      Stage
		toggle    int
		complete  bool
	}{
		{"setup with data", StageSetup, false, true, 8, 0, StageData, 1, false},
		{"setup without data", StageSetup, false, false, 0, 0, StageStatus, 1, false},
		{"setup split", StageSetup, true, true, 8, 0, StageSetupSplitComplete, 1, false},
		{"setup complete-split with data", StageSetupSplitComplete, true, true, 8, 0, StageData, -1, false},
		{"setup complete-split no data", StageSetupSplitComplete, true, false, 0, 0, StageStatus, -1, false},
		{"data full packet more to go", StageData, false, true, 64, 64, StageData, -1, false},
		{"data drained", StageData, false, true, 0, 64, StageStatus, 1, false},
		{"data short packet", StageData, false, true, 40, 24, StageStatus, 1, false},
		{"data split", StageData, true, true, 64, 64, StageDataSplitComplete, -1, false},
		{"data complete-split more", StageDataSplitComplete, true, true, 64, 64, StageData, -1, false},
		{"data complete-split short", StageDataSplitComplete, true, true, 56, 8, StageStatus, 1, false},
		{"status", StageStatus, false, true, 0, 0, StageStatus, -1, true},
		{"status split", StageStatus, true, true, 0, 0, StageStatusSplitComplete, -1, false},
		{"status complete-split", StageStatusSplitComplete, true, true, 0, 0, StageStatusSplitComplete, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := resolve(attempt{
				flags:     hal.ResultAck,
				stage:     tt.stage,
				kind:      hal.TransferControl,
				split:     tt.split,
				hasData:   tt.hasData,
				spaceLeft: tt.spaceLeft,
				last:      tt.last,
				maxPacket: 64,
			})
			testutil.Equals(t, tt.next, o.stage)
			testutil.Equals(t, tt.toggle, o.toggle)
			testutil.Equals(t, tt.complete, o.complete)
			if o.complete {
				testutil.Equals(t, pkg.TransferStatusSuccess, o.status)
			}
		})
	}
}

func TestResolve_ControlAckOnNonControlStage(t *testing.T) {
	o := resolve(attempt{flags: hal.ResultAck, stage: StageNonControl, kind: hal.TransferControl, maxPacket: 64})
	testutil.Assert(t, o.complete, "impossible stage completes")
	testutil.Equals(t, pkg.TransferStatusError, o.status)
}

func TestResolve_PeriodicAck(t *testing.T) {
	tests := []struct {
		name      string
		kind      hal.TransferType
		stage     Stage
		split     bool
		spaceLeft int
		last      int
		mps       int
		next      Stage
		complete  bool
		timing    timing
	}{
		{"bulk more data", hal.TransferBulk, StageNonControl, false, 64, 64, 64, StageNonControl, false, timingNone},
		{"bulk short", hal.TransferBulk, StageNonControl, false, 30, 34, 64, StageNonControl, true, timingNone},
		{"interrupt done", hal.TransferInterrupt, StageNonControl, false, 0, 8, 64, StageNonControl, true, timingInterval},
		{"split start", hal.TransferInterrupt, StageNonControl, true, 8, 0, 8, StageNonControlSplitComplete, false, timingNone},
		{"split complete more", hal.TransferBulk, StageNonControlSplitComplete, true, 64, 64, 64, StageNonControl, false, timingNone},
		{"split complete bulk done", hal.TransferBulk, StageNonControlSplitComplete, true, 0, 64, 64, StageNonControlSplitComplete, true, timingNone},
		{"split complete interrupt done", hal.TransferInterrupt, StageNonControlSplitComplete, true, 4, 4, 8, StageNonControlSplitComplete, true, timingInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := resolve(attempt{
				flags:     hal.ResultAck,
				stage:     tt.stage,
				kind:      tt.kind,
				dir:       hal.DirectionIn,
				split:     tt.split,
				spaceLeft: tt.spaceLeft,
				last:      tt.last,
				maxPacket: tt.mps,
			})
			testutil.Equals(t, tt.next, o.stage)
			testutil.Equals(t, tt.complete, o.complete)
			testutil.Equals(t, tt.timing, o.timing)
		})
	}
}

func TestResolve_PingAfterAckAndNak(t *testing.T) {
	a := attempt{
		flags:     hal.ResultAck | hal.ResultNak,
		kind:      hal.TransferBulk,
		dir:       hal.DirectionOut,
		spaceLeft: 512,
		moved:     512,
		last:      512,
		maxPacket: 512,
		pingPipe:  true,
	}
	testutil.Assert(t, resolve(a).needPing, "ack with nak keeps ping armed")

	a.flags = hal.ResultAck
	testutil.Assert(t, !resolve(a).needPing, "clean ack clears ping")
}

func TestResolve_IsoAck(t *testing.T) {
	tests := []struct {
		name      string
		dir       hal.Direction
		stage     Stage
		split     bool
		spaceLeft int
		moved     int
		last      int
		next      Stage
		complete  bool
		timing    timing
	}{
		{"direct", hal.DirectionOut, StageNonControl, false, 0, 100, 100, StageNonControl, true, timingInterval},
		{"split out chunk", hal.DirectionOut, StageNonControl, true, 212, 188, 188, StageNonControl, false, timingInterval},
		{"split out last chunk", hal.DirectionOut, StageNonControl, true, 0, 24, 24, StageNonControl, true, timingInterval},
		{"split in start", hal.DirectionIn, StageNonControl, true, 100, 0, 0, StageNonControlSplitComplete, false, timingNone},
		{"split in more", hal.DirectionIn, StageNonControlSplitComplete, true, 100, 64, 64, StageNonControlSplitComplete, false, timingNone},
		{"split in short", hal.DirectionIn, StageNonControlSplitComplete, true, 100, 10, 10, StageNonControlSplitComplete, true, timingInterval},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := resolve(attempt{
				flags:     hal.ResultAck,
				stage:     tt.stage,
				kind:      hal.TransferIsochronous,
				dir:       tt.dir,
				split:     tt.split,
				spaceLeft: tt.spaceLeft,
				moved:     tt.moved,
				last:      tt.last,
				maxPacket: 64,
			})
			testutil.Equals(t, tt.next, o.stage)
			testutil.Equals(t, tt.complete, o.complete)
			testutil.Equals(t, tt.timing, o.timing)
		})
	}
}

func BenchmarkResolve(b *testing.B) {
	a := bulkAttempt(hal.ResultAck)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = resolve(a)
	}
}
