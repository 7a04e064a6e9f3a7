package hal

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}

// PortStatus represents the status of the root port.
type PortStatus struct {
	Connected     bool  // Device is connected
	Enabled       bool  // Port is enabled
	OverCurrent   bool  // Over-current condition detected
	PowerOn       bool  // Port has power applied
	Speed         Speed // Port speed
	ConnectChange bool  // Connected differs from the reference status
}

// SetupPacket represents a USB SETUP packet in the HAL layer.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsIn reports whether the data stage moves device to host.
func (s *SetupPacket) IsIn() bool {
	return s.RequestType&0x80 != 0
}

// TransferType indicates the type of USB transfer.
type TransferType uint8

// Transfer type constants.
const (
	TransferControl     TransferType = 0 // Control transfer
	TransferIsochronous TransferType = 1 // Isochronous transfer
	TransferBulk        TransferType = 2 // Bulk transfer
	TransferInterrupt   TransferType = 3 // Interrupt transfer
)

// NumTransferTypes is the number of distinct transfer types.
const NumTransferTypes = 4

// String returns the transfer type name.
func (t TransferType) String() string {
	switch t {
	case TransferControl:
		return "control"
	case TransferIsochronous:
		return "isochronous"
	case TransferBulk:
		return "bulk"
	case TransferInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Direction is the data direction of an endpoint.
type Direction uint8

// Direction constants.
const (
	DirectionOut Direction = 0 // Host to device
	DirectionIn  Direction = 1 // Device to host
)

// String returns "IN" or "OUT".
func (d Direction) String() string {
	if d == DirectionIn {
		return "IN"
	}
	return "OUT"
}

// PID is the data PID programmed into a channel.
type PID uint8

// PID constants.
const (
	PIDData0 PID = iota
	PIDData1
	PIDData2
	PIDMData
	PIDSetup
)

// String returns the PID name.
func (p PID) String() string {
	switch p {
	case PIDData0:
		return "DATA0"
	case PIDData1:
		return "DATA1"
	case PIDData2:
		return "DATA2"
	case PIDMData:
		return "MDATA"
	case PIDSetup:
		return "SETUP"
	default:
		return "unknown"
	}
}

// SplitPosition marks which part of an isochronous OUT payload a start-split
// carries.
type SplitPosition uint8

// Split position constants.
const (
	SplitMiddle SplitPosition = 0
	SplitEnd    SplitPosition = 1
	SplitBegin  SplitPosition = 2
	SplitAll    SplitPosition = 3
)

// Split describes the split-transaction fields of a channel program.
type Split struct {
	Enable   bool          // Relay through a high-speed hub
	HubAddr  uint8         // High-speed hub address
	HubPort  uint8         // Port on that hub
	Complete bool          // Complete-split (true) or start-split (false)
	Position SplitPosition // Isochronous OUT payload position
}

// ChannelProgram is everything a channel needs to execute one attempt.
//
// Buffer is the DMA window for this attempt: for IN it receives up to
// TransferSize bytes, for OUT it holds at least TransferSize bytes.
type ChannelProgram struct {
	DeviceAddr   uint8
	Endpoint     uint8
	Type         TransferType
	Direction    Direction
	LowSpeed     bool
	MaxPacket    int
	MultiCount   int // Back-to-back packets per microframe (ec)
	OddFrame     bool
	PID          PID
	DoPing       bool
	TransferSize int
	PacketCount  int
	Split        Split
	Buffer       []byte
}

// ResultFlags are the handshake and error bits latched by a halted channel.
type ResultFlags uint16

// Result flag bits.
const (
	ResultStall ResultFlags = 1 << iota
	ResultAck
	ResultNak
	ResultNyet
	ResultXactError
	ResultBabble
	ResultFrameOverrun
	ResultDataToggleError
)

// Has reports whether all bits in f are set.
func (r ResultFlags) Has(f ResultFlags) bool {
	return r&f == f
}

// ChannelResult is the decoded state of a channel after it halts.
type ChannelResult struct {
	Halted           bool
	Flags            ResultFlags
	RemainingSize    int // Transfer size left (IN transfers decrement it)
	RemainingPackets int // Packet count left (decrements on ACK/NYET)
	NextPID          PID // Data PID the hardware will use next
}

// Interrupts is the pending interrupt summary read once per poll.
type Interrupts struct {
	PortChanged  bool
	StartOfFrame bool
	Channels     uint32 // Bit n set when channel n has an interrupt pending
	Endpoints    []EndpointEvent
}

// ChannelHAL is the host-mode hardware abstraction consumed by the engine.
//
// Implementations decode register state; they never make retry or
// scheduling decisions.
type ChannelHAL interface {
	// NumChannels returns the number of hardware channels available.
	NumChannels() int

	// PendingInterrupts returns and acknowledges the pending interrupt summary.
	PendingInterrupts() Interrupts

	// StartChannel programs and enables a channel.
	StartChannel(channel int, prog *ChannelProgram)

	// ChannelResult returns and clears the latched result of a channel.
	ChannelResult(channel int) ChannelResult

	// AbortChannel requests a running channel to halt. It returns false if
	// the channel had already halted, in which case its result is latched.
	AbortChannel(channel int) bool

	// FrameNumber returns the current (micro)frame number.
	FrameNumber() uint16

	// PortStatus returns the raw root port status.
	PortStatus() PortStatus

	// EnableFrameInterrupt enables or disables start-of-frame interrupts.
	EnableFrameInterrupt(enable bool)
}
