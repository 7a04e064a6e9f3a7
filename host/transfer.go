package host

import (
	"context"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

// Result is the outcome of a blocking transfer.
type Result struct {
	Status pkg.TransferStatus
	Bytes  int
}

// Err returns the sentinel error for the result status, or nil on success.
func (r Result) Err() error {
	return r.Status.Err()
}

// waiter turns a completion callback into a channel receive.
type waiter chan Result

func newWaiter() waiter {
	return make(waiter, 1)
}

func (w waiter) callback(_ *Controller, ev Event) {
	w <- Result{Status: ev.Status, Bytes: ev.Bytes}
}

// wait blocks until the transaction completes or ctx is done. On ctx
// expiry the transaction is cancelled and its final outcome is still
// collected, so the callback never outlives the call.
func (c *Controller) wait(ctx context.Context, pipe PipeHandle, tx TransactionHandle, w waiter) (int, error) {
	select {
	case r := <-w:
		return r.Bytes, r.Err()
	case <-ctx.Done():
	}

	// Either the cancel completes the transaction or the hardware already
	// did; both deliver exactly one result.
	// ErrInvalidParameter means the hardware finished first and the result
	// is already on its way.
	if err := c.Cancel(pipe, tx); err != nil && !errors.Is(err, pkg.ErrInvalidParameter) {
		return 0, errors.Wrap(err, "cancel after context done")
	}
	r := <-w
	if r.Status == pkg.TransferStatusCancelled {
		return r.Bytes, ctx.Err()
	}
	return r.Bytes, r.Err()
}

// BulkTransfer submits buf on a bulk pipe and blocks until it completes.
// Something must be calling Poll, such as the loop run by Start.
func (c *Controller) BulkTransfer(ctx context.Context, pipe PipeHandle, buf []byte) (int, error) {
	w := newWaiter()
	tx, err := c.SubmitBulk(pipe, buf, w.callback, nil)
	if err != nil {
		return 0, err
	}
	return c.wait(ctx, pipe, tx, w)
}

// InterruptTransfer submits buf on an interrupt pipe and blocks until it
// completes.
func (c *Controller) InterruptTransfer(ctx context.Context, pipe PipeHandle, buf []byte) (int, error) {
	w := newWaiter()
	tx, err := c.SubmitInterrupt(pipe, buf, w.callback, nil)
	if err != nil {
		return 0, err
	}
	return c.wait(ctx, pipe, tx, w)
}

// ControlTransfer runs a control request on a control pipe and blocks until
// the status stage completes. It returns the data stage byte count.
func (c *Controller) ControlTransfer(ctx context.Context, pipe PipeHandle, setup *hal.SetupPacket, buf []byte) (int, error) {
	w := newWaiter()
	tx, err := c.SubmitControl(pipe, setup, buf, w.callback, nil)
	if err != nil {
		return 0, err
	}
	return c.wait(ctx, pipe, tx, w)
}
