package coordinator

import "github.com/aware-protocol/aware-go/pkg/aware"

// sessionState is one live discovery session. The local session id is
// assigned by the coordinator after the hardware confirms creation; the
// pubSubID is assigned by the hardware and routes its notifications.
type sessionState struct {
	sessionID int
	pubSubID  uint32
	isPublish bool
	handler   aware.SessionHandler
}

// clientState is one connected client and the sessions it owns.
type clientState struct {
	clientID int
	config   aware.ConfigRequest
	handler  aware.EventHandler

	// sessions keyed by local session id.
	sessions map[int]*sessionState

	// Identity-change suppression: events are delivered only when the
	// discovery address actually changed since the last delivery.
	lastIdentityAddr    aware.Address
	identityEverChanged bool
}

func newClientState(clientID int, config aware.ConfigRequest, handler aware.EventHandler) *clientState {
	return &clientState{
		clientID: clientID,
		config:   config,
		handler:  handler,
		sessions: make(map[int]*sessionState),
	}
}

// needsIdentityDelivery reports whether addr should be delivered to this
// client as an identity change, and records it as delivered.
func (c *clientState) needsIdentityDelivery(addr aware.Address) bool {
	if !c.config.EnableIdentityChange {
		return false
	}
	if c.identityEverChanged && c.lastIdentityAddr == addr {
		return false
	}
	c.lastIdentityAddr = addr
	c.identityEverChanged = true
	return true
}

// registry is the in-memory map of connected clients. It is only ever
// touched from the coordinator's event loop.
type registry struct {
	clients map[int]*clientState
}

func newRegistry() *registry {
	return &registry{clients: make(map[int]*clientState)}
}

func (r *registry) client(clientID int) (*clientState, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}

func (r *registry) add(c *clientState) {
	r.clients[c.clientID] = c
}

func (r *registry) remove(clientID int) (*clientState, bool) {
	c, ok := r.clients[clientID]
	if ok {
		delete(r.clients, clientID)
	}
	return c, ok
}

func (r *registry) count() int {
	return len(r.clients)
}

func (r *registry) clear() {
	r.clients = make(map[int]*clientState)
}

// configs returns the connected clients' requested configurations, for
// merging. Order is irrelevant: the merge is order-independent.
func (r *registry) configs() []aware.ConfigRequest {
	out := make([]aware.ConfigRequest, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c.config)
	}
	return out
}

// session looks up a session by owner and local session id.
func (r *registry) session(clientID, sessionID int) (*clientState, *sessionState, bool) {
	c, ok := r.clients[clientID]
	if !ok {
		return nil, nil, false
	}
	s, ok := c.sessions[sessionID]
	if !ok {
		return c, nil, false
	}
	return c, s, true
}

// sessionByPubSubID scans for the client/session pair owning a hardware
// id. Linear scan: session counts are small.
func (r *registry) sessionByPubSubID(pubSubID uint32) (*clientState, *sessionState, bool) {
	for _, c := range r.clients {
		for _, s := range c.sessions {
			if s.pubSubID == pubSubID {
				return c, s, true
			}
		}
	}
	return nil, nil, false
}

// removeSession detaches a session from its owner. Idempotent: removing
// an absent session is a no-op.
func (r *registry) removeSession(clientID, sessionID int) {
	if c, ok := r.clients[clientID]; ok {
		delete(c.sessions, sessionID)
	}
}
