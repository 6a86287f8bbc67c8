package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Kind discriminates the three message classes on the control channel.
type Kind uint8

const (
	// KindCommand is a host-to-firmware command.
	KindCommand Kind = 1

	// KindResponse is a firmware response to a command, correlated by
	// transaction id.
	KindResponse Kind = 2

	// KindEvent is an unsolicited firmware notification.
	KindEvent Kind = 3
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "COMMAND"
	case KindResponse:
		return "RESPONSE"
	case KindEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether the kind is one of the defined classes.
func (k Kind) IsValid() bool {
	return k >= KindCommand && k <= KindEvent
}

// CommandType identifies a host-to-firmware command.
type CommandType uint8

const (
	// CommandEnable enables the radio or reconfigures an enabled radio.
	CommandEnable CommandType = 1

	// CommandDisable shuts the radio down.
	CommandDisable CommandType = 2

	// CommandPublish creates a publish discovery session.
	CommandPublish CommandType = 3

	// CommandSubscribe creates a subscribe discovery session.
	CommandSubscribe CommandType = 4

	// CommandUpdatePublish reconfigures a live publish session.
	CommandUpdatePublish CommandType = 5

	// CommandUpdateSubscribe reconfigures a live subscribe session.
	CommandUpdateSubscribe CommandType = 6

	// CommandSendMessage transmits a follow-on message to a peer.
	CommandSendMessage CommandType = 7

	// CommandStopPublish stops a publish session.
	CommandStopPublish CommandType = 8

	// CommandStopSubscribe stops a subscribe session.
	CommandStopSubscribe CommandType = 9

	// CommandQueryCapabilities requests the capability table.
	CommandQueryCapabilities CommandType = 10
)

// String returns the command type name.
func (t CommandType) String() string {
	switch t {
	case CommandEnable:
		return "ENABLE"
	case CommandDisable:
		return "DISABLE"
	case CommandPublish:
		return "PUBLISH"
	case CommandSubscribe:
		return "SUBSCRIBE"
	case CommandUpdatePublish:
		return "UPDATE_PUBLISH"
	case CommandUpdateSubscribe:
		return "UPDATE_SUBSCRIBE"
	case CommandSendMessage:
		return "SEND_MESSAGE"
	case CommandStopPublish:
		return "STOP_PUBLISH"
	case CommandStopSubscribe:
		return "STOP_SUBSCRIBE"
	case CommandQueryCapabilities:
		return "QUERY_CAPABILITIES"
	default:
		return "UNKNOWN"
	}
}

// ResponseType identifies which command class a response answers.
type ResponseType uint8

const (
	// ResponseConfig answers ENABLE commands.
	ResponseConfig ResponseType = 1

	// ResponseSessionConfig answers PUBLISH, SUBSCRIBE and the two
	// update commands.
	ResponseSessionConfig ResponseType = 2

	// ResponseMessageSend answers SEND_MESSAGE commands.
	ResponseMessageSend ResponseType = 3

	// ResponseCapabilities answers QUERY_CAPABILITIES commands.
	ResponseCapabilities ResponseType = 4
)

// String returns the response type name.
func (t ResponseType) String() string {
	switch t {
	case ResponseConfig:
		return "CONFIG"
	case ResponseSessionConfig:
		return "SESSION_CONFIG"
	case ResponseMessageSend:
		return "MESSAGE_SEND"
	case ResponseCapabilities:
		return "CAPABILITIES"
	default:
		return "UNKNOWN"
	}
}

// EventType identifies an unsolicited firmware event.
type EventType uint8

const (
	// EventMatch reports a discovery match.
	EventMatch EventType = 1

	// EventMessageReceived reports a follow-on message from a peer.
	EventMessageReceived EventType = 2

	// EventSessionTerminated reports a session ended by the firmware.
	EventSessionTerminated EventType = 3

	// EventClusterChanged reports cluster membership changes.
	EventClusterChanged EventType = 4

	// EventAddressChanged reports a new discovery interface address.
	EventAddressChanged EventType = 5

	// EventFirmwareDown reports the radio went down.
	EventFirmwareDown EventType = 6
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventMatch:
		return "MATCH"
	case EventMessageReceived:
		return "MESSAGE_RECEIVED"
	case EventSessionTerminated:
		return "SESSION_TERMINATED"
	case EventClusterChanged:
		return "CLUSTER_CHANGED"
	case EventAddressChanged:
		return "ADDRESS_CHANGED"
	case EventFirmwareDown:
		return "FIRMWARE_DOWN"
	default:
		return "UNKNOWN"
	}
}

// Message is the control-channel envelope.
//
// CBOR encoding:
//
//	{
//	  1: kind,           // uint8: 1=command, 2=response, 3=event
//	  2: type,           // uint8: CommandType, ResponseType or EventType
//	  3: transactionId,  // uint16: commands and responses; absent on events
//	  4: payload         // type-specific CBOR map
//	}
type Message struct {
	Kind          Kind            `cbor:"1,keyasint"`
	Type          uint8           `cbor:"2,keyasint"`
	TransactionID uint16          `cbor:"3,keyasint,omitempty"`
	Payload       cbor.RawMessage `cbor:"4,keyasint,omitempty"`
}

// Validate checks the envelope for structural validity.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %d", m.Kind)
	}
	if m.Type == 0 {
		return fmt.Errorf("missing message type")
	}
	return nil
}

// Name returns a human-readable "KIND/TYPE" label for logging.
func (m *Message) Name() string {
	var typeName string
	switch m.Kind {
	case KindCommand:
		typeName = CommandType(m.Type).String()
	case KindResponse:
		typeName = ResponseType(m.Type).String()
	case KindEvent:
		typeName = EventType(m.Type).String()
	default:
		typeName = "UNKNOWN"
	}
	return m.Kind.String() + "/" + typeName
}

// DecodePayload decodes the envelope payload into v.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("message %s has no payload", m.Name())
	}
	if err := Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.Name(), err)
	}
	return nil
}

// EnablePayload carries the on-air configuration for ENABLE commands.
// Identity-change gating is a host-side concern and never crosses the
// control channel.
//
// CBOR encoding:
//
//	{
//	  1: support5g,      // bool
//	  2: masterPref,     // uint8
//	  3: clusterLow,     // uint16
//	  4: clusterHigh,    // uint16
//	  5: initialEnable   // bool: true on first enable, false on reconfigure
//	}
type EnablePayload struct {
	Support5GHz      bool   `cbor:"1,keyasint,omitempty"`
	MasterPreference uint8  `cbor:"2,keyasint,omitempty"`
	ClusterLow       uint16 `cbor:"3,keyasint"`
	ClusterHigh      uint16 `cbor:"4,keyasint"`
	InitialEnable    bool   `cbor:"5,keyasint,omitempty"`
}

// SessionPayload carries the session configuration for PUBLISH, SUBSCRIBE
// and the two update commands. PubSubID is set only on updates.
type SessionPayload struct {
	PubSubID            uint32 `cbor:"1,keyasint,omitempty"`
	ServiceName         string `cbor:"2,keyasint"`
	ServiceSpecificInfo []byte `cbor:"3,keyasint,omitempty"`
	MatchFilter         []byte `cbor:"4,keyasint,omitempty"`
	SessionType         uint8  `cbor:"5,keyasint,omitempty"`
	Count               uint32 `cbor:"6,keyasint,omitempty"`
	TTLSec              uint32 `cbor:"7,keyasint,omitempty"`
}

// SendMessagePayload carries a follow-on transmission for SEND_MESSAGE.
type SendMessagePayload struct {
	PubSubID uint32 `cbor:"1,keyasint"`
	PeerID   uint32 `cbor:"2,keyasint"`
	PeerAddr []byte `cbor:"3,keyasint"`
	Message  []byte `cbor:"4,keyasint,omitempty"`
}

// StopSessionPayload identifies the session for STOP_PUBLISH and
// STOP_SUBSCRIBE.
type StopSessionPayload struct {
	PubSubID uint32 `cbor:"1,keyasint"`
}

// StatusPayload is the generic response payload carrying only a firmware
// status code. Used by CONFIG and MESSAGE_SEND responses and by the
// FIRMWARE_DOWN event.
type StatusPayload struct {
	Status uint16 `cbor:"1,keyasint"`
}

// SessionConfigResponsePayload answers session create and update commands.
// PubSubID is meaningful only on success.
type SessionConfigResponsePayload struct {
	Status    uint16 `cbor:"1,keyasint"`
	IsPublish bool   `cbor:"2,keyasint"`
	PubSubID  uint32 `cbor:"3,keyasint,omitempty"`
}

// CapabilitiesPayload is the hardware capability table reported by the
// CAPABILITIES response.
type CapabilitiesPayload struct {
	MaxConcurrentClusters   uint32 `cbor:"1,keyasint"`
	MaxPublishes            uint32 `cbor:"2,keyasint"`
	MaxSubscribes           uint32 `cbor:"3,keyasint"`
	MaxServiceNameLen       uint32 `cbor:"4,keyasint"`
	MaxMatchFilterLen       uint32 `cbor:"5,keyasint"`
	MaxTotalMatchFilterLen  uint32 `cbor:"6,keyasint"`
	MaxServiceSpecificLen   uint32 `cbor:"7,keyasint"`
	MaxVendorSpecificLen    uint32 `cbor:"8,keyasint"`
	MaxQueuedTransmitFrames uint32 `cbor:"9,keyasint"`
}

// MatchEventPayload reports a discovery match.
type MatchEventPayload struct {
	PubSubID            uint32 `cbor:"1,keyasint"`
	PeerID              uint32 `cbor:"2,keyasint"`
	PeerAddr            []byte `cbor:"3,keyasint"`
	ServiceSpecificInfo []byte `cbor:"4,keyasint,omitempty"`
	MatchFilter         []byte `cbor:"5,keyasint,omitempty"`
}

// MessageEventPayload reports a received follow-on message.
type MessageEventPayload struct {
	PubSubID uint32 `cbor:"1,keyasint"`
	PeerID   uint32 `cbor:"2,keyasint"`
	PeerAddr []byte `cbor:"3,keyasint"`
	Message  []byte `cbor:"4,keyasint,omitempty"`
}

// TerminatedEventPayload reports a session ended by the firmware.
type TerminatedEventPayload struct {
	PubSubID  uint32 `cbor:"1,keyasint"`
	IsPublish bool   `cbor:"2,keyasint"`
	Status    uint16 `cbor:"3,keyasint"`
}

// ClusterEventPayload reports a cluster membership change.
type ClusterEventPayload struct {
	Event     uint8  `cbor:"1,keyasint"`
	ClusterID []byte `cbor:"2,keyasint"`
	Addr      []byte `cbor:"3,keyasint"`
}

// AddressEventPayload reports a new discovery interface address.
type AddressEventPayload struct {
	Addr []byte `cbor:"1,keyasint"`
}
