package host

import (
	"fmt"
	"time"
)

// Engine limits.
const (
	MaxChannels     = 8   // Hardware channels
	MaxPipes        = 32  // Concurrently open pipes
	MaxTransactions = 256 // Outstanding transactions across all pipes
	MaxRetries      = 3   // Transaction errors tolerated before giving up

	MaxUSBAddress  = 127
	MaxUSBEndpoint = 15
	MaxHubPort     = 15
	MaxPacketSize  = 1024

	MaxDeviceEndpoint  = 4
	MaxDeviceMaxPacket = 512
)

const (
	frameMask      = 0x7f // Split frame arithmetic is modulo 128
	splitWindow    = 0x40 // Complete-split must run within half the frame space
	isoSplitChunk  = 188  // Largest isochronous OUT start-split payload
	nyetRewind     = 4    // Complete-split NYETs before restarting the split
	setupPacketLen = 8

	highSpeedInterval = 125 * time.Microsecond
	fullSpeedInterval = time.Millisecond
)

// Mode selects whether the controller runs as a host or a peripheral.
type Mode uint8

// Mode constants.
const (
	ModeHost   Mode = 0
	ModeDevice Mode = 1
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeHost:
		return "host"
	case ModeDevice:
		return "device"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Reason identifies the kind of event delivered to a callback.
type Reason uint8

// Callback reasons.
const (
	ReasonTransferComplete Reason = iota // A transaction or device endpoint finished
	ReasonPortChanged                    // Root port status changed
	ReasonDeviceSetup                    // Device mode received a SETUP packet
	numReasons
)

// String returns the reason name.
func (r Reason) String() string {
	switch r {
	case ReasonTransferComplete:
		return "transfer-complete"
	case ReasonPortChanged:
		return "port-changed"
	case ReasonDeviceSetup:
		return "device-setup"
	default:
		return fmt.Sprintf("Reason(%d)", r)
	}
}

// IsoFlags modify isochronous submissions.
type IsoFlags uint8

// Isochronous flags.
const (
	IsoAllowShort IsoFlags = 1 << iota // Short packets are not an error
	IsoASAP                            // Ignore the start frame

	isoFlagsMask = IsoAllowShort | IsoASAP
)

// PipeState is the list a pipe currently belongs to.
type PipeState uint8

// Pipe states.
const (
	PipeFree   PipeState = iota // Not open
	PipeIdle                    // Open with an empty queue
	PipeActive                  // Open with queued transactions
)

// String returns the state name.
func (s PipeState) String() string {
	switch s {
	case PipeFree:
		return "free"
	case PipeIdle:
		return "idle"
	case PipeActive:
		return "active"
	default:
		return fmt.Sprintf("PipeState(%d)", s)
	}
}
