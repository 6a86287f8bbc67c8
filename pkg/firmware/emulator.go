package firmware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
	"github.com/aware-protocol/aware-go/pkg/log"
	"github.com/aware-protocol/aware-go/pkg/wire"
)

// ErrEmulatorClosed indicates the emulator has been shut down.
var ErrEmulatorClosed = errors.New("emulator closed")

// DefaultEmulatorCapabilities is the capability table reported by the
// emulator. The values follow common NAN firmware limits.
func DefaultEmulatorCapabilities() wire.CapabilitiesPayload {
	return wire.CapabilitiesPayload{
		MaxConcurrentClusters:   1,
		MaxPublishes:            8,
		MaxSubscribes:           8,
		MaxServiceNameLen:       255,
		MaxMatchFilterLen:       255,
		MaxTotalMatchFilterLen:  255,
		MaxServiceSpecificLen:   1024,
		MaxVendorSpecificLen:    1024,
		MaxQueuedTransmitFrames: 16,
	}
}

// EmulatorConfig configures a firmware emulator.
type EmulatorConfig struct {
	// Logger for application logs. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLogger receives protocol events. Defaults to no logging.
	EventLogger log.Logger

	// DropEvery makes the emulator swallow every Nth command that
	// expects a response, for exercising host-side command timeouts.
	// Zero disables dropping.
	DropEvery int

	// Capabilities overrides the reported capability table. The zero
	// value selects DefaultEmulatorCapabilities.
	Capabilities wire.CapabilitiesPayload
}

// Emulator is a stand-in for NAN radio firmware. It accepts control
// channels over TCP, answers commands, and simulates discovery: publish
// and subscribe sessions with the same service name match across
// connections, and follow-on messages are relayed between matched
// sessions.
type Emulator struct {
	config EmulatorConfig
	logger *slog.Logger
	caps   wire.CapabilitiesPayload

	ln net.Listener
	wg sync.WaitGroup

	mu           sync.Mutex
	conns        map[string]*emulatorConn
	sessions     map[uint32]*emulatorSession
	nextPubSubID uint32
	nextAddr     byte
	clusterID    aware.Address
	cmdCount     uint64
	closed       bool
}

// emulatorConn is one control channel. Mutable fields are guarded by the
// emulator mutex; frame writes are serialized by the framer itself.
type emulatorConn struct {
	id      string
	conn    net.Conn
	framer  *wire.Framer
	addr    aware.Address
	enabled bool
}

// emulatorSession is a live discovery session. Its pubSubID doubles as
// the peer id remote sessions use to address it.
type emulatorSession struct {
	owner               *emulatorConn
	pubSubID            uint32
	isPublish           bool
	serviceName         string
	serviceSpecificInfo []byte
	matchFilter         []byte
}

// NewEmulator creates an emulator. Call Start to begin accepting
// connections.
func NewEmulator(config EmulatorConfig) *Emulator {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.EventLogger == nil {
		config.EventLogger = log.NoopLogger{}
	}
	caps := config.Capabilities
	if caps == (wire.CapabilitiesPayload{}) {
		caps = DefaultEmulatorCapabilities()
	}
	return &Emulator{
		config:   config,
		logger:   config.Logger,
		caps:     caps,
		conns:    make(map[string]*emulatorConn),
		sessions: make(map[uint32]*emulatorSession),
	}
}

// Start listens on the given TCP address and accepts control channels in
// the background. Use address ":0" to pick a free port; Addr reports it.
func (e *Emulator) Start(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	e.ln = ln
	e.logger.Info("firmware emulator listening", "address", ln.Addr().String())

	e.wg.Add(1)
	go e.acceptLoop()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (e *Emulator) Addr() net.Addr {
	if e.ln == nil {
		return nil
	}
	return e.ln.Addr()
}

// Close shuts the emulator down and closes all control channels.
func (e *Emulator) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	conns := make([]*emulatorConn, 0, len(e.conns))
	for _, conn := range e.conns {
		conns = append(conns, conn)
	}
	e.mu.Unlock()

	var err error
	if e.ln != nil {
		err = e.ln.Close()
	}
	for _, conn := range conns {
		_ = conn.conn.Close()
	}
	e.wg.Wait()
	return err
}

func (e *Emulator) acceptLoop() {
	defer e.wg.Done()
	for {
		conn, err := e.ln.Accept()
		if err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if !closed {
				e.logger.Error("accept failed", "error", err)
			}
			return
		}

		ec, err := e.registerConn(conn)
		if err != nil {
			e.logger.Warn("connection rejected", "error", err)
			_ = conn.Close()
			continue
		}

		e.wg.Add(1)
		go e.serveConn(ec)
	}
}

func (e *Emulator) registerConn(conn net.Conn) (*emulatorConn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEmulatorClosed
	}

	id := uuid.NewString()
	framer := wire.NewFramer(conn)
	framer.SetLogger(e.config.EventLogger, id)

	e.nextAddr++
	ec := &emulatorConn{
		id:     id,
		conn:   conn,
		framer: framer,
		addr:   aware.Address{0x02, 0x00, 0x00, 0x00, 0x00, e.nextAddr},
	}
	e.conns[id] = ec
	e.logger.Debug("control channel accepted",
		"conn_id", id, "remote", conn.RemoteAddr().String())
	return ec, nil
}

func (e *Emulator) serveConn(ec *emulatorConn) {
	defer e.wg.Done()
	defer e.dropConn(ec)

	for {
		msg, err := ec.framer.ReadMessage()
		if err != nil {
			e.mu.Lock()
			closed := e.closed
			e.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				e.logger.Warn("control channel read failed",
					"conn_id", ec.id, "error", err)
			}
			return
		}
		e.handleCommand(ec, msg)
	}
}

// dropConn removes a closed connection and its sessions.
func (e *Emulator) dropConn(ec *emulatorConn) {
	_ = ec.conn.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conns, ec.id)
	for id, session := range e.sessions {
		if session.owner == ec {
			delete(e.sessions, id)
		}
	}
	e.logger.Debug("control channel closed", "conn_id", ec.id)
}

func (e *Emulator) handleCommand(ec *emulatorConn, msg *wire.Message) {
	if msg.Kind != wire.KindCommand {
		e.logger.Warn("non-command message dropped",
			"conn_id", ec.id, "message", msg.Name())
		return
	}

	cmdType := wire.CommandType(msg.Type)
	if e.shouldDrop(cmdType) {
		e.logger.Warn("dropping command",
			"conn_id", ec.id, "command", cmdType.String(),
			"transaction_id", msg.TransactionID)
		return
	}

	switch cmdType {
	case wire.CommandEnable:
		e.handleEnable(ec, msg)
	case wire.CommandDisable:
		e.handleDisable(ec)
	case wire.CommandPublish:
		e.handleSessionStart(ec, msg, true)
	case wire.CommandSubscribe:
		e.handleSessionStart(ec, msg, false)
	case wire.CommandUpdatePublish:
		e.handleSessionUpdate(ec, msg, true)
	case wire.CommandUpdateSubscribe:
		e.handleSessionUpdate(ec, msg, false)
	case wire.CommandSendMessage:
		e.handleSendMessage(ec, msg)
	case wire.CommandStopPublish:
		e.handleSessionStop(ec, msg, true)
	case wire.CommandStopSubscribe:
		e.handleSessionStop(ec, msg, false)
	case wire.CommandQueryCapabilities:
		e.respond(ec, wire.ResponseCapabilities, msg.TransactionID, &e.caps)
	default:
		e.logger.Warn("unknown command dropped",
			"conn_id", ec.id, "command", msg.Name())
	}
}

// shouldDrop implements the DropEvery counter. Fire-and-forget commands
// are exempt: swallowing them would not exercise any host timeout.
func (e *Emulator) shouldDrop(cmdType wire.CommandType) bool {
	if e.config.DropEvery <= 0 {
		return false
	}
	switch cmdType {
	case wire.CommandDisable, wire.CommandStopPublish,
		wire.CommandStopSubscribe, wire.CommandQueryCapabilities:
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cmdCount++
	return e.cmdCount%uint64(e.config.DropEvery) == 0
}

func (e *Emulator) handleEnable(ec *emulatorConn, msg *wire.Message) {
	var p wire.EnablePayload
	if err := msg.DecodePayload(&p); err != nil {
		e.logger.Warn("bad enable payload", "conn_id", ec.id, "error", err)
		e.respond(ec, wire.ResponseConfig, msg.TransactionID,
			&wire.StatusPayload{Status: uint16(hal.StatusInvalidMsgLen)})
		return
	}
	if p.ClusterLow > p.ClusterHigh {
		e.respond(ec, wire.ResponseConfig, msg.TransactionID,
			&wire.StatusPayload{Status: uint16(hal.StatusInvalidClusterLow)})
		return
	}

	e.mu.Lock()
	wasEnabled := ec.enabled
	ec.enabled = true
	clusterEvent := hal.ClusterJoined
	if e.clusterID == (aware.Address{}) {
		e.clusterID = ec.addr
		clusterEvent = hal.ClusterStarted
	}
	clusterID := e.clusterID
	e.mu.Unlock()

	e.respond(ec, wire.ResponseConfig, msg.TransactionID,
		&wire.StatusPayload{Status: uint16(hal.StatusSuccess)})

	// A reconfigure of an enabled radio changes neither the interface
	// address nor cluster membership.
	if p.InitialEnable || !wasEnabled {
		e.emit(ec, wire.EventAddressChanged, &wire.AddressEventPayload{
			Addr: ec.addr[:],
		})
		e.emit(ec, wire.EventClusterChanged, &wire.ClusterEventPayload{
			Event:     uint8(clusterEvent),
			ClusterID: clusterID[:],
			Addr:      ec.addr[:],
		})
	}
}

func (e *Emulator) handleDisable(ec *emulatorConn) {
	e.mu.Lock()
	ec.enabled = false
	for id, session := range e.sessions {
		if session.owner == ec {
			delete(e.sessions, id)
		}
	}
	e.mu.Unlock()
}

func (e *Emulator) handleSessionStart(ec *emulatorConn, msg *wire.Message, isPublish bool) {
	var p wire.SessionPayload
	if err := msg.DecodePayload(&p); err != nil {
		e.logger.Warn("bad session payload", "conn_id", ec.id, "error", err)
		e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
			&wire.SessionConfigResponsePayload{
				Status:    uint16(hal.StatusInvalidMsgLen),
				IsPublish: isPublish,
			})
		return
	}

	e.mu.Lock()
	if !ec.enabled {
		e.mu.Unlock()
		e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
			&wire.SessionConfigResponsePayload{
				Status:    uint16(hal.StatusNotAllowed),
				IsPublish: isPublish,
			})
		return
	}
	e.nextPubSubID++
	session := &emulatorSession{
		owner:               ec,
		pubSubID:            e.nextPubSubID,
		isPublish:           isPublish,
		serviceName:         p.ServiceName,
		serviceSpecificInfo: p.ServiceSpecificInfo,
		matchFilter:         p.MatchFilter,
	}
	e.sessions[session.pubSubID] = session
	peers := e.matchingPeers(session)
	e.mu.Unlock()

	e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
		&wire.SessionConfigResponsePayload{
			Status:    uint16(hal.StatusSuccess),
			IsPublish: isPublish,
			PubSubID:  session.pubSubID,
		})
	e.emitMatches(session, peers)
}

func (e *Emulator) handleSessionUpdate(ec *emulatorConn, msg *wire.Message, isPublish bool) {
	var p wire.SessionPayload
	if err := msg.DecodePayload(&p); err != nil {
		e.logger.Warn("bad session payload", "conn_id", ec.id, "error", err)
		e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
			&wire.SessionConfigResponsePayload{
				Status:    uint16(hal.StatusInvalidMsgLen),
				IsPublish: isPublish,
			})
		return
	}

	e.mu.Lock()
	session, ok := e.sessions[p.PubSubID]
	if !ok || session.owner != ec || session.isPublish != isPublish {
		e.mu.Unlock()
		status := hal.StatusInvalidPublish
		if !isPublish {
			status = hal.StatusInvalidHandle
		}
		e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
			&wire.SessionConfigResponsePayload{
				Status:    uint16(status),
				IsPublish: isPublish,
			})
		return
	}
	session.serviceSpecificInfo = p.ServiceSpecificInfo
	session.matchFilter = p.MatchFilter
	peers := e.matchingPeers(session)
	e.mu.Unlock()

	e.respond(ec, wire.ResponseSessionConfig, msg.TransactionID,
		&wire.SessionConfigResponsePayload{
			Status:    uint16(hal.StatusSuccess),
			IsPublish: isPublish,
			PubSubID:  session.pubSubID,
		})

	// Updated advertisements are rediscovered by matching subscribers.
	if isPublish {
		e.emitMatches(session, peers)
	}
}

func (e *Emulator) handleSendMessage(ec *emulatorConn, msg *wire.Message) {
	var p wire.SendMessagePayload
	if err := msg.DecodePayload(&p); err != nil {
		e.logger.Warn("bad send-message payload", "conn_id", ec.id, "error", err)
		e.respond(ec, wire.ResponseMessageSend, msg.TransactionID,
			&wire.StatusPayload{Status: uint16(hal.StatusInvalidMsgLen)})
		return
	}

	e.mu.Lock()
	sender, senderOK := e.sessions[p.PubSubID]
	target, targetOK := e.sessions[p.PeerID]
	reachable := targetOK && target.owner.enabled
	e.mu.Unlock()

	if !senderOK || sender.owner != ec || !reachable {
		e.respond(ec, wire.ResponseMessageSend, msg.TransactionID,
			&wire.StatusPayload{Status: uint16(hal.StatusNoOtaAck)})
		return
	}

	e.emit(target.owner, wire.EventMessageReceived, &wire.MessageEventPayload{
		PubSubID: target.pubSubID,
		PeerID:   sender.pubSubID,
		PeerAddr: sender.owner.addr[:],
		Message:  p.Message,
	})
	e.respond(ec, wire.ResponseMessageSend, msg.TransactionID,
		&wire.StatusPayload{Status: uint16(hal.StatusSuccess)})
}

func (e *Emulator) handleSessionStop(ec *emulatorConn, msg *wire.Message, isPublish bool) {
	var p wire.StopSessionPayload
	if err := msg.DecodePayload(&p); err != nil {
		e.logger.Warn("bad stop payload", "conn_id", ec.id, "error", err)
		return
	}

	e.mu.Lock()
	session, ok := e.sessions[p.PubSubID]
	if !ok || session.owner != ec || session.isPublish != isPublish {
		e.mu.Unlock()
		e.logger.Warn("stop for unknown session",
			"conn_id", ec.id, "pub_sub_id", p.PubSubID)
		return
	}
	delete(e.sessions, p.PubSubID)
	e.mu.Unlock()

	e.emit(ec, wire.EventSessionTerminated, &wire.TerminatedEventPayload{
		PubSubID:  p.PubSubID,
		IsPublish: isPublish,
		Status:    uint16(hal.StatusTerminatedUserRequest),
	})
}

// matchingPeers returns live counterpart sessions with the same service
// name on other connections. Caller holds the emulator mutex.
func (e *Emulator) matchingPeers(session *emulatorSession) []*emulatorSession {
	var peers []*emulatorSession
	for _, other := range e.sessions {
		if other.isPublish == session.isPublish || other.owner == session.owner {
			continue
		}
		if other.serviceName == session.serviceName {
			peers = append(peers, other)
		}
	}
	return peers
}

// emitMatches delivers match events for a session and its counterpart
// peers. The subscriber side receives the match; the payload carries the
// publisher's advertisement.
func (e *Emulator) emitMatches(session *emulatorSession, peers []*emulatorSession) {
	for _, peer := range peers {
		subscriber, publisher := session, peer
		if session.isPublish {
			subscriber, publisher = peer, session
		}
		e.emit(subscriber.owner, wire.EventMatch, &wire.MatchEventPayload{
			PubSubID:            subscriber.pubSubID,
			PeerID:              publisher.pubSubID,
			PeerAddr:            publisher.owner.addr[:],
			ServiceSpecificInfo: publisher.serviceSpecificInfo,
			MatchFilter:         publisher.matchFilter,
		})
	}
}

func (e *Emulator) respond(ec *emulatorConn, respType wire.ResponseType, transactionID uint16, payload any) {
	msg, err := wire.NewResponse(respType, transactionID, payload)
	if err != nil {
		e.logger.Error("response encode failed",
			"conn_id", ec.id, "response", respType.String(), "error", err)
		return
	}
	if err := ec.framer.WriteMessage(msg); err != nil {
		e.logger.Warn("response write failed",
			"conn_id", ec.id, "response", respType.String(), "error", err)
	}
}

func (e *Emulator) emit(ec *emulatorConn, eventType wire.EventType, payload any) {
	msg, err := wire.NewEvent(eventType, payload)
	if err != nil {
		e.logger.Error("event encode failed",
			"conn_id", ec.id, "event", eventType.String(), "error", err)
		return
	}
	if err := ec.framer.WriteMessage(msg); err != nil {
		e.logger.Warn("event write failed",
			"conn_id", ec.id, "event", eventType.String(), "error", err)
	}
}
