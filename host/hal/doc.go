// Package hal defines the channel-level Hardware Abstraction Layer consumed
// by the softhcd transaction engine.
//
// The engine owns every protocol decision: which pipe gets a channel, how
// many bytes an attempt moves, which PID and split fields to use, and what
// a halted channel's handshake means. The HAL only translates between those
// decisions and controller registers.
//
// # Interface Overview
//
// The [ChannelHAL] interface defines the contract for host-mode operation:
//   - [ChannelHAL.StartChannel] programs a channel from a [ChannelProgram]
//   - [ChannelHAL.ChannelResult] returns the decoded [ChannelResult] of a
//     halted channel
//   - [ChannelHAL.AbortChannel] halts a running channel
//   - [ChannelHAL.PendingInterrupts] reports halted channels, start-of-frame,
//     port changes, and device-mode endpoint events
//   - [ChannelHAL.FrameNumber] and [ChannelHAL.PortStatus] expose timing and
//     port state
//
// Controllers that can also act as a peripheral implement [EndpointHAL].
//
// # Implementing a HAL
//
// To implement a HAL for a new controller:
//  1. Decode the channel interrupt, size, and PID registers into a
//     [ChannelResult] without interpreting them
//  2. Write every [ChannelProgram] field, then enable the channel
//  3. Clear latched channel status when it is read
//
// A scripted in-memory HAL for testing is available in
// [github.com/ardnew/softhcd/host/hal/sim].
package hal
