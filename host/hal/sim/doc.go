// Package sim provides a scripted, in-memory channel HAL for driving the
// host engine without hardware.
//
// The simulator records every channel program the engine issues and
// answers each one from a queue of scripted replies (or a responder
// function). A channel with no reply pending keeps running until it is
// aborted, which makes cancel races reproducible.
//
// # Usage
//
//	dev := sim.New(8)
//	clock := sim.NewClock(time.Unix(0, 0))
//	c, _ := host.New(dev, host.Config{Clock: clock})
//
//	dev.Queue(sim.Reply{Flags: hal.ResultAck, Bytes: 64})
//	clock.Advance(time.Millisecond)
//	c.Poll()
//
// The simulator also implements [hal.EndpointHAL], so the same instance
// serves the device-mode boundary.
package sim
