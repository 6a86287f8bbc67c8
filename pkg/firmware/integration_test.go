package firmware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/coordinator"
)

type connectEvents struct {
	success  chan struct{}
	fail     chan aware.Reason
	identity chan aware.Address
}

func newConnectEvents() *connectEvents {
	return &connectEvents{
		success:  make(chan struct{}, 4),
		fail:     make(chan aware.Reason, 4),
		identity: make(chan aware.Address, 4),
	}
}

func (e *connectEvents) OnConnectSuccess() { e.success <- struct{}{} }

func (e *connectEvents) OnConnectFail(reason aware.Reason) { e.fail <- reason }

func (e *connectEvents) OnIdentityChanged(addr aware.Address) { e.identity <- addr }

type sessionEvents struct {
	started     chan int
	configFail  chan aware.Reason
	terminated  chan aware.TerminateReason
	match       chan matchResult
	received    chan messageResult
	sendSuccess chan int
	sendFail    chan int
}

func newSessionEvents() *sessionEvents {
	return &sessionEvents{
		started:     make(chan int, 4),
		configFail:  make(chan aware.Reason, 4),
		terminated:  make(chan aware.TerminateReason, 4),
		match:       make(chan matchResult, 4),
		received:    make(chan messageResult, 4),
		sendSuccess: make(chan int, 4),
		sendFail:    make(chan int, 4),
	}
}

func (e *sessionEvents) OnSessionStarted(sessionID int) { e.started <- sessionID }
func (e *sessionEvents) OnSessionConfigSuccess()        {}
func (e *sessionEvents) OnSessionConfigFail(reason aware.Reason) {
	e.configFail <- reason
}
func (e *sessionEvents) OnSessionTerminated(reason aware.TerminateReason) {
	e.terminated <- reason
}
func (e *sessionEvents) OnMatch(peerID uint32, peerAddr aware.Address, serviceSpecificInfo, matchFilter []byte) {
	e.match <- matchResult{peerID: peerID, peerAddr: peerAddr, info: serviceSpecificInfo}
}
func (e *sessionEvents) OnMessageReceived(peerID uint32, peerAddr aware.Address, message []byte) {
	e.received <- messageResult{peerID: peerID, peerAddr: peerAddr, message: message}
}
func (e *sessionEvents) OnMessageSendSuccess(messageID int) { e.sendSuccess <- messageID }
func (e *sessionEvents) OnMessageSendFail(messageID int, reason aware.Reason) {
	e.sendFail <- messageID
}

// startCoordinator wires a fresh control channel and coordinator against
// the emulator.
func startCoordinator(t *testing.T, emu *Emulator) *coordinator.Coordinator {
	t.Helper()

	client := NewClient(ClientConfig{Logger: testLogger()})
	coord := coordinator.New(client, coordinator.WithLogger(testLogger()))
	client.SetHandler(coord)
	require.NoError(t, client.Connect(context.Background(), emu.Addr().String()))
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)
	require.NoError(t, coord.EnableUsage())
	return coord
}

func TestDiscoveryEndToEnd(t *testing.T) {
	emu := startEmulator(t, EmulatorConfig{})

	// Two hosts, each with its own control channel.
	publisher := startCoordinator(t, emu)
	subscriber := startCoordinator(t, emu)

	pubConnect := newConnectEvents()
	require.NoError(t, publisher.Connect(1, aware.DefaultConfigRequest(), pubConnect))
	waitFor(t, pubConnect.success, "publisher connect")

	subConnect := newConnectEvents()
	require.NoError(t, subscriber.Connect(1, aware.DefaultConfigRequest(), subConnect))
	waitFor(t, subConnect.success, "subscriber connect")

	pubSession := newSessionEvents()
	require.NoError(t, publisher.Publish(1, aware.PublishConfig{
		ServiceName:         "printer",
		ServiceSpecificInfo: []byte("floor 3"),
	}, pubSession))
	pubSessionID := waitFor(t, pubSession.started, "publish session")

	subSession := newSessionEvents()
	require.NoError(t, subscriber.Subscribe(1, aware.SubscribeConfig{
		ServiceName: "printer",
	}, subSession))
	subSessionID := waitFor(t, subSession.started, "subscribe session")

	// Discovery crosses the emulator between the two hosts.
	match := waitFor(t, subSession.match, "match")
	assert.Equal(t, []byte("floor 3"), match.info)

	// Follow-on message subscriber -> publisher and the reply back.
	require.NoError(t, subscriber.SendMessage(1, subSessionID, match.peerID,
		match.peerAddr, []byte("ping"), 42))
	received := waitFor(t, pubSession.received, "message at publisher")
	assert.Equal(t, []byte("ping"), received.message)
	assert.Equal(t, 42, waitFor(t, subSession.sendSuccess, "send ack"))

	require.NoError(t, publisher.SendMessage(1, pubSessionID, received.peerID,
		received.peerAddr, []byte("pong"), 43))
	reply := waitFor(t, subSession.received, "reply at subscriber")
	assert.Equal(t, []byte("pong"), reply.message)
	assert.Equal(t, 43, waitFor(t, pubSession.sendSuccess, "reply ack"))

	// Capabilities were queried after the first connect.
	require.Eventually(t, func() bool {
		_, ok := publisher.Capabilities()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Requested stop flows back as an orderly termination.
	require.NoError(t, publisher.TerminateSession(1, pubSessionID))
	assert.Equal(t, aware.TerminateDone, waitFor(t, pubSession.terminated, "termination"))
}

func TestCommandTimeoutEndToEnd(t *testing.T) {
	// Every command that expects a response is swallowed.
	emu := startEmulator(t, EmulatorConfig{DropEvery: 1})

	client := NewClient(ClientConfig{Logger: testLogger()})
	coord := coordinator.New(client,
		coordinator.WithLogger(testLogger()),
		coordinator.WithCommandTimeout(200*time.Millisecond))
	client.SetHandler(coord)
	require.NoError(t, client.Connect(context.Background(), emu.Addr().String()))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, coord.Start())
	t.Cleanup(coord.Stop)
	require.NoError(t, coord.EnableUsage())

	connect := newConnectEvents()
	require.NoError(t, coord.Connect(1, aware.DefaultConfigRequest(), connect))

	// The enable never gets a response; the coordinator gives up after
	// its command timeout.
	assert.Equal(t, aware.ReasonOther, waitFor(t, connect.fail, "connect failure"))
}
