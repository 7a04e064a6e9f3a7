package host

import (
	"github.com/efficientgo/core/errors"

	"github.com/ardnew/softhcd/host/hal"
	"github.com/ardnew/softhcd/pkg"
)

func (c *Controller) checkEndpoint(num int) error {
	if c.cfg.Mode != ModeDevice {
		return errors.Wrapf(pkg.ErrIncorrectMode, "endpoint %d in %s mode", num, c.cfg.Mode)
	}
	if num < 0 || num > MaxDeviceEndpoint {
		return errors.Wrapf(pkg.ErrInvalidParameter, "endpoint %d out of range", num)
	}
	return nil
}

// EnableEndpoint arms device endpoint num with buf.
func (c *Controller) EnableEndpoint(num int, kind hal.TransferType, dir hal.Direction, maxPacket int, buf []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkEndpoint(num); err != nil {
		return err
	}
	switch {
	case kind >= hal.NumTransferTypes:
		return errors.Wrapf(pkg.ErrInvalidParameter, "invalid transfer type %d", kind)
	case dir != hal.DirectionIn && dir != hal.DirectionOut:
		return errors.Wrapf(pkg.ErrInvalidParameter, "invalid direction %d", dir)
	case maxPacket < 0 || maxPacket > MaxDeviceMaxPacket:
		return errors.Wrapf(pkg.ErrInvalidParameter, "max packet %d out of range", maxPacket)
	case buf == nil:
		return errors.Wrapf(pkg.ErrInvalidParameter, "endpoint %d needs a buffer", num)
	}

	c.ep.EnableEndpoint(&hal.EndpointConfig{
		Number:    uint8(num),
		Type:      kind,
		Direction: dir,
		MaxPacket: maxPacket,
		Buffer:    buf,
	})
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint enabled",
		"ep", num,
		"type", kind,
		"dir", dir,
		"mps", maxPacket,
		"length", len(buf))
	return nil
}

// DisableEndpoint disarms device endpoint num.
func (c *Controller) DisableEndpoint(num int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkEndpoint(num); err != nil {
		return err
	}
	c.ep.DisableEndpoint(uint8(num))
	pkg.LogDebug(pkg.ComponentEndpoint, "endpoint disabled", "ep", num)
	return nil
}

// SetToggle sets the data toggle of device endpoint num.
func (c *Controller) SetToggle(num, toggle int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkEndpoint(num); err != nil {
		return err
	}
	if toggle != 0 && toggle != 1 {
		return errors.Wrapf(pkg.ErrInvalidParameter, "toggle %d", toggle)
	}
	c.toggles[num] = toggle
	return nil
}

// Toggle returns the data toggle of device endpoint num.
func (c *Controller) Toggle(num int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.checkEndpoint(num); err != nil {
		return 0, err
	}
	return c.toggles[num], nil
}

// serviceEndpoint dispatches the callbacks for one endpoint event: IN
// completion, then SETUP, then OUT completion.
func (c *Controller) serviceEndpoint(ev hal.EndpointEvent) {
	if int(ev.Number) > MaxDeviceEndpoint {
		pkg.LogWarn(pkg.ComponentEndpoint, "event on unknown endpoint", "ep", ev.Number)
		return
	}
	done := Event{
		Reason:   ReasonTransferComplete,
		Status:   pkg.TransferStatusSuccess,
		Endpoint: int(ev.Number),
	}
	if ev.InComplete {
		c.dispatch(done, nil)
	}
	if ev.SetupReceived {
		c.dispatch(Event{
			Reason:   ReasonDeviceSetup,
			Status:   pkg.TransferStatusSuccess,
			Endpoint: int(ev.Number),
		}, nil)
	}
	if ev.OutComplete {
		c.dispatch(done, nil)
	}
}
