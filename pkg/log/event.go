package log

import "time"

// Event is a control-channel log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the control-channel connection (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	// Direction indicates message flow relative to the host.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Type-specific payload (exactly one is set).
	Frame   *FrameEvent   `cbor:"6,keyasint,omitempty"` // Raw framing layer
	Control *ControlEvent `cbor:"7,keyasint,omitempty"` // Decoded command/response/event
	State   *StateEvent   `cbor:"8,keyasint,omitempty"` // Coordinator state transitions
	Error   *ErrorEvent   `cbor:"9,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates a message from the firmware to the host.
	DirectionIn Direction = 0
	// DirectionOut indicates a message from the host to the firmware.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport is the framing layer (raw bytes).
	LayerTransport Layer = 0
	// LayerControl is the decoded control-message layer.
	LayerControl Layer = 1
	// LayerCoordinator is the coordinator state-machine layer.
	LayerCoordinator Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerControl:
		return "CONTROL"
	case LayerCoordinator:
		return "COORDINATOR"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a control message (command, response or
	// firmware event).
	CategoryMessage Category = 0
	// CategoryState indicates a state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures a raw frame on the control channel.
type FrameEvent struct {
	// Size is the full frame size including the length prefix.
	Size int `cbor:"1,keyasint"`

	// Data is the frame payload, possibly truncated for large frames.
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates Data was cut to the logging limit.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// ControlEvent captures a decoded control-channel message.
type ControlEvent struct {
	// MessageKind names the message (e.g. "COMMAND/PUBLISH",
	// "RESPONSE/SESSION_CONFIG", "EVENT/MATCH").
	MessageKind string `cbor:"1,keyasint"`

	// TransactionID tags commands and responses; zero for events.
	TransactionID uint16 `cbor:"2,keyasint,omitempty"`

	// PubSubID is the hardware session id, where applicable.
	PubSubID uint32 `cbor:"3,keyasint,omitempty"`

	// Status is the firmware status code on responses and terminations.
	Status uint16 `cbor:"4,keyasint,omitempty"`
}

// StateEvent captures a coordinator state transition.
type StateEvent struct {
	OldState string `cbor:"1,keyasint"`
	NewState string `cbor:"2,keyasint"`

	// Reason names the message that caused the transition.
	Reason string `cbor:"3,keyasint,omitempty"`
}

// ErrorEvent captures an error at any layer.
type ErrorEvent struct {
	Message string `cbor:"1,keyasint"`

	// Context names the operation during which the error occurred.
	Context string `cbor:"2,keyasint,omitempty"`
}
