package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates an endpoint stall condition.
	ErrStall = errors.New("endpoint stalled")

	// ErrXact indicates a transaction error that persisted past the retry limit.
	ErrXact = errors.New("transaction error")

	// ErrBabble indicates the device transmitted past the end of a packet.
	ErrBabble = errors.New("babble error")

	// ErrFrameOverrun indicates a transfer did not fit in its (micro)frame.
	ErrFrameOverrun = errors.New("frame overrun")

	// ErrCancelled indicates a cancelled transfer.
	ErrCancelled = errors.New("transfer cancelled")

	// ErrProtocol indicates an unexpected hardware state, such as a channel
	// halting with no handshake recorded.
	ErrProtocol = errors.New("protocol error")
)

// API errors. These are returned synchronously and never retried.
var (
	// ErrInvalidParameter indicates an invalid parameter or stale handle.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoMemory indicates a fixed-size pool is exhausted.
	ErrNoMemory = errors.New("insufficient memory")

	// ErrBusy indicates the resource is busy.
	ErrBusy = errors.New("resource busy")

	// ErrIncorrectMode indicates a host operation in device mode or the reverse.
	ErrIncorrectMode = errors.New("incorrect controller mode")

	// ErrNotSupported indicates an unsupported operation or feature.
	ErrNotSupported = errors.New("not supported")

	// ErrAlreadyRunning indicates the polling loop is already running.
	ErrAlreadyRunning = errors.New("already running")
)

// TransferStatus represents the completion status of a USB transfer.
type TransferStatus int

// Transfer status values.
const (
	TransferStatusSuccess      TransferStatus = iota // Transfer completed, possibly short
	TransferStatusError                              // Unexpected hardware state
	TransferStatusStall                              // Endpoint stalled
	TransferStatusXactError                          // Retries exhausted
	TransferStatusBabble                             // Babble detected
	TransferStatusFrameOverrun                       // Frame overrun
	TransferStatusCancelled                          // Transfer was cancelled
)

// String returns a string representation of the transfer status.
func (s TransferStatus) String() string {
	switch s {
	case TransferStatusSuccess:
		return "success"
	case TransferStatusError:
		return "error"
	case TransferStatusStall:
		return "stall"
	case TransferStatusXactError:
		return "xacterr"
	case TransferStatusBabble:
		return "babbleerr"
	case TransferStatusFrameOverrun:
		return "frameerr"
	case TransferStatusCancelled:
		return "cancel"
	default:
		return "unknown"
	}
}

// Err returns the corresponding error for the transfer status.
func (s TransferStatus) Err() error {
	switch s {
	case TransferStatusSuccess:
		return nil
	case TransferStatusStall:
		return ErrStall
	case TransferStatusXactError:
		return ErrXact
	case TransferStatusBabble:
		return ErrBabble
	case TransferStatusFrameOverrun:
		return ErrFrameOverrun
	case TransferStatusCancelled:
		return ErrCancelled
	default:
		return ErrProtocol
	}
}
