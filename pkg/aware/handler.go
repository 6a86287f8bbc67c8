package aware

import "fmt"

// Address is a discovery interface or peer address on the radio.
type Address [6]byte

// String returns the address in colon-separated hex form.
func (a Address) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// IsZero reports whether the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// EventHandler receives client-wide events from the coordinator. Handlers
// are invoked from the coordinator's serialization point and must not call
// back into the coordinator synchronously. A panicking or failing handler
// never propagates into the coordinator: delivery is best-effort.
type EventHandler interface {
	// OnConnectSuccess is delivered when the client's connect completed.
	OnConnectSuccess()

	// OnConnectFail is delivered when the client's connect failed; the
	// client is not registered.
	OnConnectFail(reason Reason)

	// OnIdentityChanged is delivered when the discovery interface
	// address changed, only to clients that requested identity-change
	// events in their ConfigRequest.
	OnIdentityChanged(addr Address)
}

// SessionHandler receives per-session events from the coordinator. The
// same delivery rules as EventHandler apply.
type SessionHandler interface {
	// OnSessionStarted is delivered with the locally assigned session id
	// once the hardware confirmed session creation.
	OnSessionStarted(sessionID int)

	// OnSessionConfigSuccess is delivered when an update-publish or
	// update-subscribe completed.
	OnSessionConfigSuccess()

	// OnSessionConfigFail is delivered when session creation or update
	// failed. For a failed creation no session exists afterwards.
	OnSessionConfigFail(reason Reason)

	// OnSessionTerminated is delivered when the hardware reported the
	// session as ended; the session is removed before delivery.
	OnSessionTerminated(reason TerminateReason)

	// OnMatch is delivered when discovery found a matching peer.
	OnMatch(peerID uint32, peerAddr Address, serviceSpecificInfo, matchFilter []byte)

	// OnMessageReceived is delivered when a peer sent a message on this
	// session.
	OnMessageReceived(peerID uint32, peerAddr Address, message []byte)

	// OnMessageSendSuccess echoes the caller-supplied message id of an
	// acknowledged transmission.
	OnMessageSendSuccess(messageID int)

	// OnMessageSendFail echoes the caller-supplied message id of a
	// failed transmission.
	OnMessageSendFail(messageID int, reason Reason)
}
