package host

import (
	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/pkg"
)

// Event is delivered to callbacks. It is a copy; the engine keeps no
// reference to it.
type Event struct {
	Reason      Reason
	Status      pkg.TransferStatus
	Pipe        PipeHandle        // Zero for port and device-mode events
	Transaction TransactionHandle // Already invalid when the callback runs
	Endpoint    int
	Bytes       int
	Data        any // Opaque value passed at submit time
}

// Callback receives engine events. It runs without the controller lock
// held and may submit, cancel, or close pipes.
type Callback func(c *Controller, ev Event)

// RegisterCallback installs the global callback for reason, replacing any
// previous one. Transactions submitted with their own callback bypass the
// global transfer-complete callback.
func (c *Controller) RegisterCallback(reason Reason, fn Callback) error {
	if reason >= numReasons {
		return errors.Wrapf(pkg.ErrInvalidParameter, "unknown callback reason %d", reason)
	}
	if fn == nil {
		return errors.Wrapf(pkg.ErrInvalidParameter, "nil %s callback", reason)
	}
	c.mu.Lock()
	c.callbacks[reason] = fn
	c.mu.Unlock()
	return nil
}

// dispatch runs the callback for ev with the lock released. Caller holds
// c.mu.
func (c *Controller) dispatch(ev Event, own Callback) {
	cb := own
	if cb == nil {
		cb = c.callbacks[ev.Reason]
	}
	if cb == nil {
		return
	}
	if c.cfg.TraceCallbacks {
		pkg.LogInfo(pkg.ComponentHost, "dispatching callback",
			"reason", ev.Reason,
			"status", ev.Status,
			"pipe", ev.Pipe,
			"tx", ev.Transaction,
			"bytes", ev.Bytes)
	}
	c.mu.Unlock()
	defer c.mu.Lock()
	cb(c, ev)
}
