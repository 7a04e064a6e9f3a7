package hal

// MaxDeviceEndpoints is the number of device-mode endpoints (0-4).
const MaxDeviceEndpoints = 5

// EndpointConfig describes a device-mode endpoint for the HAL.
type EndpointConfig struct {
	Number    uint8
	Type      TransferType
	Direction Direction
	MaxPacket int
	Buffer    []byte
}

// PacketCount returns the number of packets needed to move the buffer.
func (e *EndpointConfig) PacketCount() int {
	if e.MaxPacket == 0 {
		return 1
	}
	n := (len(e.Buffer) + e.MaxPacket - 1) / e.MaxPacket
	if n == 0 {
		n = 1
	}
	return n
}

// EndpointEvent reports device-mode activity on one endpoint.
type EndpointEvent struct {
	Number        uint8
	SetupReceived bool
	InComplete    bool
	OutComplete   bool
}

// EndpointHAL is the device-mode boundary. A HAL implements it in addition
// to ChannelHAL when the controller can operate as a peripheral.
type EndpointHAL interface {
	// EnableEndpoint arms an endpoint with a buffer.
	EnableEndpoint(cfg *EndpointConfig)

	// DisableEndpoint disables both directions of an endpoint.
	DisableEndpoint(number uint8)
}
