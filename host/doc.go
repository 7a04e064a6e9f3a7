// Package host implements a USB host-controller transaction engine.
//
// A [Controller] multiplexes up to [MaxPipes] logical endpoints ("pipes")
// over the few DMA channels of a host controller, reached through the
// [hal.ChannelHAL] interface defined in the
// github.com/ardnew/softhcd/host/hal package. The engine queues transfers
// per pipe, programs channels, interprets the handshake each channel halts
// with, retries or backs off, and reports exactly one completion per
// transfer.
//
// # Architecture
//
// The engine is organized into a few cooperating parts:
//
//   - Pools hold every pipe and transaction in fixed arrays; nothing is
//     allocated after [New]
//   - Pipes carry the endpoint addressing, the data toggle, and a FIFO of
//     transactions
//   - Transactions walk a [Stage] machine; control transfers pass through
//     setup, data, and status, and split transfers add a complete-split
//     stage after each start-split
//   - The scheduler binds ready pipes to idle channels, periodic pipes
//     first on start-of-frame
//   - The completion engine turns each halted channel into the next stage,
//     a retry, or a terminal [pkg.TransferStatus]
//
// # Polling
//
// Nothing happens between calls to [Controller.Poll]. Call it from the
// controller interrupt, or let [Controller.Start] run it on a ticker.
// Callbacks run from Poll with the controller lock released, so they may
// submit more work or close pipes.
//
// # Split Transactions
//
// When the root port runs at high speed and a pipe's device does not, the
// transfer goes through the hub's transaction translator: a start-split,
// then complete-splits in a later (micro)frame until the hub answers with
// data. NYET on a complete-split is retried, and every fourth NYET restarts
// the split from the beginning.
//
// # Example
//
//	c, err := host.New(dev, host.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c.Start(ctx, time.Millisecond)
//	defer c.Stop()
//
//	pipe, _ := c.OpenPipe(host.PipeParams{
//	    DeviceAddr: 1,
//	    Endpoint:   2,
//	    Speed:      hal.SpeedHigh,
//	    MaxPacket:  512,
//	    Type:       hal.TransferBulk,
//	    Direction:  hal.DirectionOut,
//	})
//	n, err := c.BulkTransfer(ctx, pipe, data)
//
// A scripted HAL for testing is available in
// [github.com/ardnew/softhcd/host/hal/sim].
package host
