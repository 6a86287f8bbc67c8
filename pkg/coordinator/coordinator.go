package coordinator

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/eapache/queue"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
	"github.com/aware-protocol/aware-go/pkg/log"
)

// DefaultCommandTimeout is how long the coordinator waits for a firmware
// response before resolving the outstanding command as failed.
const DefaultCommandTimeout = 5 * time.Second

// messageBufferSize bounds the event-loop queue. Producers block once it
// fills, which keeps delivery ordered under bursts.
const messageBufferSize = 128

// Coordinator errors.
var (
	// ErrStopped indicates the coordinator's event loop is not running.
	ErrStopped = errors.New("coordinator stopped")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("coordinator already started")
)

// state of the command/response cycle.
type state uint8

const (
	// stateIdle means no hardware command is outstanding.
	stateIdle state = iota

	// stateAwaitingResponse means one command is outstanding and its
	// timeout timer is armed. New commands are deferred.
	stateAwaitingResponse
)

// String returns the state name.
func (s state) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateAwaitingResponse:
		return "awaiting_response"
	default:
		return "unknown"
	}
}

// UsageCallback is invoked when process-wide usage is enabled or
// disabled. Delivered from the event loop like every other callback.
type UsageCallback func(enabled bool)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the application logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithEventLogger sets the protocol event logger receiving coordinator
// state transitions and errors. Defaults to no logging.
func WithEventLogger(eventLogger log.Logger) Option {
	return func(c *Coordinator) { c.eventLogger = eventLogger }
}

// WithClock injects the clock used for command timeouts. Defaults to the
// wall clock; tests inject a mock.
func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

// WithCommandTimeout overrides the firmware response timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.commandTimeout = d }
}

// WithUsageCallback registers the process-wide usage broadcast.
func WithUsageCallback(cb UsageCallback) Option {
	return func(c *Coordinator) { c.usageCallback = cb }
}

// Coordinator serializes client commands onto the firmware control
// channel and fans firmware notifications back out to the owning client
// and session. It implements hal.Handler; register it on the transport
// before calling Start.
type Coordinator struct {
	transport hal.Transport

	logger         *slog.Logger
	eventLogger    log.Logger
	clock          clock.Clock
	commandTimeout time.Duration
	usageCallback  UsageCallback

	messages chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	// Event-loop-owned state. Never touched outside the loop.
	state         state
	transactions  *transactionRegistry
	deferred      *queue.Queue
	registry      *registry
	currentConfig *aware.ConfigRequest // nil = hardware disabled
	nextSessionID int
	capsQueried   bool
	currentAddr   aware.Address

	// Snapshots readable from any goroutine.
	snapMu       sync.RWMutex
	usageEnabled bool
	caps         aware.Capabilities
	capsValid    bool

	started bool
	startMu sync.Mutex
}

// New creates a Coordinator driving the given transport. The returned
// coordinator must be registered as the transport's hal.Handler and
// started with Start before issuing commands.
func New(transport hal.Transport, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport:      transport,
		logger:         slog.Default(),
		eventLogger:    log.NoopLogger{},
		clock:          clock.New(),
		commandTimeout: DefaultCommandTimeout,
		messages:       make(chan any, messageBufferSize),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
		state:          stateIdle,
		deferred:       queue.New(),
		registry:       newRegistry(),
		nextSessionID:  1,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.transactions = newTransactionRegistry(c.clock, c.commandTimeout, c.enqueueTimeout)
	return c
}

// Start launches the event loop.
func (c *Coordinator) Start() error {
	c.startMu.Lock()
	defer c.startMu.Unlock()
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	go c.run()
	return nil
}

// Stop shuts the event loop down. Pending and deferred commands are
// dropped without callbacks. Safe to call multiple times.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.quit)
		c.startMu.Lock()
		started := c.started
		c.startMu.Unlock()
		if started {
			<-c.done
		} else {
			close(c.done)
		}
	})
}

// Connect registers a new client with its requested configuration. The
// outcome is delivered via handler.OnConnectSuccess or OnConnectFail.
func (c *Coordinator) Connect(clientID int, config aware.ConfigRequest, handler aware.EventHandler) error {
	return c.enqueue(connectCommand{clientID: clientID, config: config, handler: handler})
}

// Disconnect removes a client and all its sessions. Always succeeds from
// the caller's perspective; no callback is delivered.
func (c *Coordinator) Disconnect(clientID int) error {
	return c.enqueue(disconnectCommand{clientID: clientID})
}

// Publish creates a publish discovery session for the client. The
// outcome arrives via handler.OnSessionStarted or OnSessionConfigFail.
func (c *Coordinator) Publish(clientID int, config aware.PublishConfig, handler aware.SessionHandler) error {
	return c.enqueue(publishCommand{clientID: clientID, config: config, handler: handler})
}

// Subscribe creates a subscribe discovery session for the client.
func (c *Coordinator) Subscribe(clientID int, config aware.SubscribeConfig, handler aware.SessionHandler) error {
	return c.enqueue(subscribeCommand{clientID: clientID, config: config, handler: handler})
}

// UpdatePublish reconfigures a live publish session.
func (c *Coordinator) UpdatePublish(clientID, sessionID int, config aware.PublishConfig) error {
	return c.enqueue(updatePublishCommand{clientID: clientID, sessionID: sessionID, config: config})
}

// UpdateSubscribe reconfigures a live subscribe session.
func (c *Coordinator) UpdateSubscribe(clientID, sessionID int, config aware.SubscribeConfig) error {
	return c.enqueue(updateSubscribeCommand{clientID: clientID, sessionID: sessionID, config: config})
}

// SendMessage transmits a follow-on message to a matched peer. messageID
// is caller-supplied and echoed back in the send success/failure
// callback.
func (c *Coordinator) SendMessage(clientID, sessionID int, peerID uint32, peerAddr aware.Address, message []byte, messageID int) error {
	return c.enqueue(sendMessageCommand{
		clientID:  clientID,
		sessionID: sessionID,
		peerID:    peerID,
		peerAddr:  peerAddr,
		message:   message,
		messageID: messageID,
	})
}

// TerminateSession stops a session. Fire-and-forget towards the
// hardware; the session is removed when its terminated notification
// arrives.
func (c *Coordinator) TerminateSession(clientID, sessionID int) error {
	return c.enqueue(terminateSessionCommand{clientID: clientID, sessionID: sessionID})
}

// EnableUsage enables the process-wide feature gate and broadcasts the
// change. No-op when already enabled.
func (c *Coordinator) EnableUsage() error {
	return c.enqueue(enableUsageCommand{})
}

// DisableUsage disables the feature gate, removes all clients and
// sessions without individual teardown callbacks, disables the hardware
// and broadcasts the change. No-op when already disabled.
func (c *Coordinator) DisableUsage() error {
	return c.enqueue(disableUsageCommand{})
}

// IsUsageEnabled reports the process-wide feature gate.
func (c *Coordinator) IsUsageEnabled() bool {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.usageEnabled
}

// Capabilities returns the last-known hardware capability snapshot. The
// second return is false until the first snapshot arrived.
func (c *Coordinator) Capabilities() (aware.Capabilities, bool) {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.caps, c.capsValid
}

// enqueue hands a message to the event loop, blocking while the queue is
// full. Fails only when the coordinator is stopped.
func (c *Coordinator) enqueue(msg any) error {
	select {
	case c.messages <- msg:
		return nil
	case <-c.quit:
		return ErrStopped
	}
}

// enqueueTimeout is the transaction registry's timer callback. It may
// fire after Stop; the message is then dropped.
func (c *Coordinator) enqueueTimeout(transactionID uint16) {
	select {
	case c.messages <- timeoutMsg{transactionID: transactionID}:
	case <-c.quit:
	}
}

// setUsageEnabled updates the snapshot. Loop-only.
func (c *Coordinator) setUsageEnabled(enabled bool) {
	c.snapMu.Lock()
	c.usageEnabled = enabled
	c.snapMu.Unlock()
}

// setCapabilities replaces the snapshot wholesale. Loop-only.
func (c *Coordinator) setCapabilities(caps aware.Capabilities) {
	c.snapMu.Lock()
	c.caps = caps
	c.capsValid = true
	c.snapMu.Unlock()
}

// capsSnapshot returns the current capability table for validation. A
// zero value (not yet received) disables limit checks.
func (c *Coordinator) capsSnapshot() aware.Capabilities {
	c.snapMu.RLock()
	defer c.snapMu.RUnlock()
	return c.caps
}

// deliver invokes a client callback, isolating the loop from panicking
// or otherwise failing handlers: a failed delivery is logged and dropped.
func (c *Coordinator) deliver(callback string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("callback delivery failed",
				"callback", callback, "panic", r)
			c.eventLogger.Log(log.Event{
				Timestamp: c.clock.Now(),
				Layer:     log.LayerCoordinator,
				Category:  log.CategoryError,
				Error: &log.ErrorEvent{
					Message: "callback delivery failed",
					Context: callback,
				},
			})
		}
	}()
	fn()
}

// setState transitions the machine and logs the change.
func (c *Coordinator) setState(next state, reason string) {
	if c.state == next {
		return
	}
	c.logger.Debug("state transition",
		"from", c.state.String(), "to", next.String(), "reason", reason)
	c.eventLogger.Log(log.Event{
		Timestamp: c.clock.Now(),
		Layer:     log.LayerCoordinator,
		Category:  log.CategoryState,
		State: &log.StateEvent{
			OldState: c.state.String(),
			NewState: next.String(),
			Reason:   reason,
		},
	})
	c.state = next
}
