package host_test

import (
	"context"
	"fmt"
	"time"

	"github.com/ardnew/softhcd/host"
	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/host/hal/sim"
)

func Example() {
	dev := sim.New(8)
	dev.SetResponder(func(_ int, prog *hal.ChannelProgram) (sim.Reply, bool) {
		if prog.Direction == hal.DirectionIn {
			return sim.Reply{Flags: hal.ResultAck, Data: []byte{0x12, 0x01, 0x00, 0x02}}, true
		}
		return sim.Reply{Flags: hal.ResultAck, Bytes: prog.TransferSize}, true
	})

	c, err := host.New(dev, host.Config{})
	if err != nil {
		fmt.Println(err)
		return
	}
	if err := c.Start(context.Background(), 100*time.Microsecond); err != nil {
		fmt.Println(err)
		return
	}
	defer c.Stop()

	ep0, err := c.OpenPipe(host.PipeParams{
		Speed:     hal.SpeedHigh,
		MaxPacket: 64,
		Type:      hal.TransferControl,
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	buf := make([]byte, 18)
	n, err := c.ControlTransfer(ctx, ep0, &hal.SetupPacket{
		RequestType: 0x80,
		Request:     0x06,
		Value:       0x0100,
		Length:      uint16(len(buf)),
	}, buf)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("% x\n", buf[:n])
	// Output: 12 01 00 02
}

func ExampleController_SubmitBulk() {
	dev := sim.New(8)
	dev.Queue(sim.Reply{Flags: hal.ResultAck, Data: []byte("pong")})

	clock := sim.NewClock(time.Unix(0, 0))
	c, _ := host.New(dev, host.Config{Clock: clock})
	pipe, _ := c.OpenPipe(host.PipeParams{
		DeviceAddr: 1,
		Endpoint:   1,
		Speed:      hal.SpeedHigh,
		MaxPacket:  512,
		Type:       hal.TransferBulk,
		Direction:  hal.DirectionIn,
	})

	buf := make([]byte, 64)
	_, _ = c.SubmitBulk(pipe, buf, func(_ *host.Controller, ev host.Event) {
		fmt.Printf("%s: %q\n", ev.Status, buf[:ev.Bytes])
	}, nil)

	// Drive the engine by hand: one frame to start, one to complete.
	for i := 0; i < 2; i++ {
		clock.Advance(time.Millisecond)
		dev.AdvanceFrame(8)
		_ = c.Poll()
	}
	// Output: success: "pong"
}
