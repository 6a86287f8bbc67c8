package hal

import (
	"errors"

	"github.com/aware-protocol/aware-go/pkg/aware"
)

// Transport errors.
var (
	// ErrNotConnected indicates the control channel is down.
	ErrNotConnected = errors.New("firmware transport not connected")
)

// ClusterEvent distinguishes how cluster membership changed.
type ClusterEvent uint8

const (
	// ClusterStarted indicates this device started a new cluster.
	ClusterStarted ClusterEvent = 0

	// ClusterJoined indicates this device joined an existing cluster.
	ClusterJoined ClusterEvent = 1
)

// String returns the cluster event name.
func (e ClusterEvent) String() string {
	switch e {
	case ClusterStarted:
		return "STARTED"
	case ClusterJoined:
		return "JOINED"
	default:
		return "UNKNOWN"
	}
}

// Transport is the firmware control channel. Every command is tagged with
// a caller-issued transaction id; the matching response arrives later via
// the Handler registered on the transport. An error return means the
// command could not be handed to the channel at all (no response will
// follow); it never reflects the command's outcome.
type Transport interface {
	// EnableAndConfigure enables the radio (initialEnable) or pushes a
	// new merged configuration to an already-enabled radio.
	EnableAndConfigure(transactionID uint16, cfg aware.ConfigRequest, initialEnable bool) error

	// Disable shuts the radio down. Fire-and-forget: implementations
	// need not deliver a response for it.
	Disable(transactionID uint16) error

	// Publish creates a publish discovery session.
	Publish(transactionID uint16, cfg aware.PublishConfig) error

	// Subscribe creates a subscribe discovery session.
	Subscribe(transactionID uint16, cfg aware.SubscribeConfig) error

	// UpdatePublish reconfigures a live publish session.
	UpdatePublish(transactionID uint16, pubSubID uint32, cfg aware.PublishConfig) error

	// UpdateSubscribe reconfigures a live subscribe session.
	UpdateSubscribe(transactionID uint16, pubSubID uint32, cfg aware.SubscribeConfig) error

	// SendMessage transmits a follow-on message to a matched peer.
	SendMessage(transactionID uint16, pubSubID uint32, peerID uint32, peerAddr aware.Address, message []byte) error

	// StopPublish stops a publish session. Fire-and-forget; the session
	// end is reported via the session-terminated event.
	StopPublish(transactionID uint16, pubSubID uint32) error

	// StopSubscribe stops a subscribe session. Fire-and-forget.
	StopSubscribe(transactionID uint16, pubSubID uint32) error

	// QueryCapabilities requests the hardware capability table. The
	// result arrives as the capabilities-updated event.
	QueryCapabilities(transactionID uint16) error
}

// Handler receives firmware responses and unsolicited events. The
// coordinator implements Handler; transports deliver callbacks one at a
// time from a single dispatch goroutine.
type Handler interface {
	// OnConfigSuccess reports a completed enable/configure command.
	OnConfigSuccess(transactionID uint16)

	// OnConfigFailure reports a failed enable/configure command.
	OnConfigFailure(transactionID uint16, status Status)

	// OnSessionConfigSuccess reports a completed session create or
	// update; pubSubID is the hardware-assigned session id.
	OnSessionConfigSuccess(transactionID uint16, isPublish bool, pubSubID uint32)

	// OnSessionConfigFailure reports a failed session create or update.
	OnSessionConfigFailure(transactionID uint16, isPublish bool, status Status)

	// OnMessageSendSuccess reports a peer-acknowledged transmission.
	OnMessageSendSuccess(transactionID uint16)

	// OnMessageSendFailure reports a failed transmission.
	OnMessageSendFailure(transactionID uint16, status Status)

	// OnCapabilitiesUpdated carries a fresh capability snapshot.
	OnCapabilitiesUpdated(caps aware.Capabilities)

	// OnInterfaceAddressChanged reports a new discovery interface
	// address.
	OnInterfaceAddressChanged(addr aware.Address)

	// OnClusterChanged reports cluster membership changes.
	OnClusterChanged(event ClusterEvent, clusterID aware.Address, addr aware.Address)

	// OnMatch reports a discovery match on the session identified by
	// the hardware pubSubID.
	OnMatch(pubSubID uint32, peerID uint32, peerAddr aware.Address, serviceSpecificInfo, matchFilter []byte)

	// OnSessionTerminated reports a session ended by the hardware.
	OnSessionTerminated(pubSubID uint32, isPublish bool, status Status)

	// OnMessageReceived reports a follow-on message from a peer.
	OnMessageReceived(pubSubID uint32, peerID uint32, peerAddr aware.Address, message []byte)

	// OnFirmwareDown reports the radio went down; all live state is
	// invalid afterwards.
	OnFirmwareDown(status Status)
}
