package coordinator

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCoordinator(t *testing.T, opts ...Option) (*Coordinator, *fakeTransport, *clock.Mock) {
	t.Helper()
	ft := newFakeTransport()
	mock := clock.NewMock()
	opts = append([]Option{WithClock(mock), WithLogger(testLogger())}, opts...)
	c := New(ft, opts...)
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)
	require.NoError(t, c.EnableUsage())
	return c, ft, mock
}

func waitFor[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

func expectNothing[T any](t *testing.T, ch chan T, what string) {
	t.Helper()
	select {
	case <-ch:
		t.Fatalf("unexpected %s", what)
	case <-time.After(50 * time.Millisecond):
	}
}

// connectClient drives a full connect round-trip and drains the one-time
// capabilities query.
func connectClient(t *testing.T, c *Coordinator, ft *fakeTransport, clientID int, cfg aware.ConfigRequest) *connectRecorder {
	t.Helper()
	rec := newConnectRecorder()
	require.NoError(t, c.Connect(clientID, cfg, rec))
	call := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", call.method)
	c.OnConfigSuccess(call.transactionID)
	waitFor(t, rec.success, "connect success")
	drainCapabilitiesQuery(ft)
	return rec
}

func drainCapabilitiesQuery(ft *fakeTransport) {
	select {
	case call := <-ft.callCh:
		if call.method != "QueryCapabilities" {
			// Not ours; put nothing back, tests drive all other calls
			// explicitly so this should not happen.
			panic("unexpected call drained: " + call.method)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// startSession drives a publish round-trip to a live session.
func startPublish(t *testing.T, c *Coordinator, ft *fakeTransport, clientID int, serviceName string, pubSubID uint32) (*sessionRecorder, int) {
	t.Helper()
	rec := newSessionRecorder()
	require.NoError(t, c.Publish(clientID, aware.PublishConfig{ServiceName: serviceName}, rec))
	call := waitCall(t, ft)
	require.Equal(t, "Publish", call.method)
	c.OnSessionConfigSuccess(call.transactionID, true, pubSubID)
	sessionID := waitFor(t, rec.started, "session started")
	return rec, sessionID
}

func TestConnectInitialEnable(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	cfg := aware.DefaultConfigRequest()
	cfg.MasterPreference = 1
	rec := newConnectRecorder()
	require.NoError(t, c.Connect(1, cfg, rec))

	call := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", call.method)
	assert.True(t, call.initialEnable)
	assert.Equal(t, cfg, call.config, "single client's merged config is its request verbatim")
	assert.NotEqual(t, uint16(0), call.transactionID, "transaction id 0 is reserved")

	c.OnConfigSuccess(call.transactionID)
	waitFor(t, rec.success, "connect success")

	// First enablement triggers the capabilities query.
	capsCall := waitCall(t, ft)
	assert.Equal(t, "QueryCapabilities", capsCall.method)
}

func TestConnectSecondClientReconfigures(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	cfgA := aware.DefaultConfigRequest()
	cfgA.MasterPreference = 1
	connectClient(t, c, ft, 1, cfgA)

	cfgB := aware.DefaultConfigRequest()
	cfgB.Support5GHz = true
	cfgB.MasterPreference = 5
	recB := newConnectRecorder()
	require.NoError(t, c.Connect(2, cfgB, recB))

	call := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", call.method)
	assert.False(t, call.initialEnable, "radio already enabled, expects reconfigure")
	assert.True(t, call.config.Support5GHz)
	assert.Equal(t, uint8(5), call.config.MasterPreference)

	c.OnConfigSuccess(call.transactionID)
	waitFor(t, recB.success, "connect success")
}

func TestConnectUnchangedMergedConfigResolvesWithoutHardware(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	cfg := aware.DefaultConfigRequest()
	cfg.MasterPreference = 7
	connectClient(t, c, ft, 1, cfg)

	recB := newConnectRecorder()
	require.NoError(t, c.Connect(2, cfg, recB))
	waitFor(t, recB.success, "connect success")
	expectNoCall(t, ft)
}

func TestConnectWhileUsageDisabled(t *testing.T) {
	ft := newFakeTransport()
	c := New(ft, WithClock(clock.NewMock()), WithLogger(testLogger()))
	require.NoError(t, c.Start())
	t.Cleanup(c.Stop)

	rec := newConnectRecorder()
	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), rec))
	reason := waitFor(t, rec.fail, "connect failure")
	assert.Equal(t, aware.ReasonUsageDisabled, reason)
	expectNoCall(t, ft)
}

func TestConnectDuplicateClientIDRejected(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())

	rec := newConnectRecorder()
	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), rec))
	reason := waitFor(t, rec.fail, "connect failure")
	assert.Equal(t, aware.ReasonInvalidArgs, reason)
	expectNoCall(t, ft)
}

func TestAtMostOneOutstandingCommand(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	recA := newConnectRecorder()
	recB := newConnectRecorder()
	recC := newConnectRecorder()
	cfgB := aware.DefaultConfigRequest()
	cfgB.Support5GHz = true
	cfgC := aware.DefaultConfigRequest()
	cfgC.MasterPreference = 9

	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), recA))
	require.NoError(t, c.Connect(2, cfgB, recB))
	require.NoError(t, c.Connect(3, cfgC, recC))

	first := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", first.method)
	expectNoCall(t, ft)

	c.OnConfigSuccess(first.transactionID)
	waitFor(t, recA.success, "first connect success")
	drainCapabilitiesQuery(ft)

	// Deferred commands replay in FIFO order: B before C.
	second := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", second.method)
	assert.True(t, second.config.Support5GHz, "second command belongs to client 2")
	expectNoCall(t, ft)

	c.OnConfigSuccess(second.transactionID)
	waitFor(t, recB.success, "second connect success")

	third := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", third.method)
	assert.Equal(t, uint8(9), third.config.MasterPreference, "third command belongs to client 3")
	c.OnConfigSuccess(third.transactionID)
	waitFor(t, recC.success, "third connect success")
}

func TestStaleResponseDropped(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	rec := newConnectRecorder()
	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), rec))
	call := waitCall(t, ft)

	// Mismatched tag: no callback, no state change.
	c.OnConfigSuccess(call.transactionID + 17)
	expectNothing(t, rec.success, "connect success from stale response")

	c.OnConfigSuccess(call.transactionID)
	waitFor(t, rec.success, "connect success")
}

func TestCommandTimeoutUnblocksQueue(t *testing.T) {
	c, ft, mock := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())

	pubRec := newSessionRecorder()
	require.NoError(t, c.Publish(1, aware.PublishConfig{ServiceName: "printer"}, pubRec))
	pubCall := waitCall(t, ft)
	require.Equal(t, "Publish", pubCall.method)

	subRec := newSessionRecorder()
	require.NoError(t, c.Subscribe(1, aware.SubscribeConfig{ServiceName: "printer"}, subRec))
	expectNoCall(t, ft)

	mock.Add(DefaultCommandTimeout)
	reason := waitFor(t, pubRec.configFail, "publish timeout failure")
	assert.Equal(t, aware.ReasonOther, reason)

	// The queue proceeds with the deferred subscribe.
	subCall := waitCall(t, ft)
	require.Equal(t, "Subscribe", subCall.method)

	// A late response for the timed-out publish is dropped silently.
	c.OnSessionConfigSuccess(pubCall.transactionID, true, 100)
	expectNothing(t, pubRec.started, "session started from late response")

	c.OnSessionConfigSuccess(subCall.transactionID, false, 101)
	waitFor(t, subRec.started, "subscribe session started")
}

func TestSendMessageTimeoutReportsTxFail(t *testing.T) {
	c, ft, mock := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())
	rec, sessionID := startPublish(t, c, ft, 1, "printer", 100)

	peer := aware.Address{0x02, 0, 0, 0, 0, 0x01}
	require.NoError(t, c.SendMessage(1, sessionID, 55, peer, []byte("hi"), 777))
	call := waitCall(t, ft)
	require.Equal(t, "SendMessage", call.method)
	assert.Equal(t, uint32(100), call.pubSubID)

	mock.Add(DefaultCommandTimeout)
	result := waitFor(t, rec.sendFail, "send failure")
	assert.Equal(t, 777, result.messageID)
	assert.Equal(t, aware.ReasonTxFail, result.reason)
}

func TestPublishSessionLifecycle(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())
	rec, sessionID := startPublish(t, c, ft, 1, "printer", 100)
	assert.Equal(t, 1, sessionID)

	// Match routed by hardware id.
	peer := aware.Address{0x02, 0, 0, 0, 0, 0x02}
	c.OnMatch(100, 9, peer, []byte("info"), []byte("filter"))
	match := waitFor(t, rec.match, "match event")
	assert.Equal(t, uint32(9), match.peerID)
	assert.Equal(t, peer, match.peerAddr)
	assert.Equal(t, []byte("info"), match.ssi)

	// Follow-on message routed the same way.
	c.OnMessageReceived(100, 9, peer, []byte("hello"))
	received := waitFor(t, rec.received, "received message")
	assert.Equal(t, []byte("hello"), received.message)

	// Send round-trip echoes the caller's message id.
	require.NoError(t, c.SendMessage(1, sessionID, 9, peer, []byte("yo"), 42))
	sendCall := waitCall(t, ft)
	c.OnMessageSendSuccess(sendCall.transactionID)
	assert.Equal(t, 42, waitFor(t, rec.sendSuccess, "send success"))
}

func TestTerminateSessionOrdering(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())
	rec, sessionID := startPublish(t, c, ft, 1, "printer", 100)

	// Terminate is fire-and-forget; the session stays live until the
	// terminated notification arrives.
	require.NoError(t, c.TerminateSession(1, sessionID))
	stopCall := waitCall(t, ft)
	assert.Equal(t, "StopPublish", stopCall.method)
	assert.Equal(t, uint32(100), stopCall.pubSubID)
	assert.Equal(t, uint16(0), stopCall.transactionID)

	// A match already in flight before the stop still delivers.
	c.OnMatch(100, 9, aware.Address{}, nil, nil)
	waitFor(t, rec.match, "in-flight match")

	c.OnSessionTerminated(100, true, hal.StatusTerminatedUserRequest)
	reason := waitFor(t, rec.terminated, "session terminated")
	assert.Equal(t, aware.TerminateDone, reason)

	// After removal: routing tolerates the missing session and removal
	// is idempotent.
	c.OnMatch(100, 9, aware.Address{}, nil, nil)
	expectNothing(t, rec.match, "match after termination")
	c.OnSessionTerminated(100, true, hal.StatusTerminatedUserRequest)
	expectNothing(t, rec.terminated, "duplicate termination")

	// Terminating the now-absent session is rejected locally.
	require.NoError(t, c.TerminateSession(1, sessionID))
	expectNoCall(t, ft)
}

func TestSessionIDsNeverReused(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())

	_, first := startPublish(t, c, ft, 1, "a", 100)
	_, second := startPublish(t, c, ft, 1, "b", 101)
	assert.Greater(t, second, first)

	c.OnSessionTerminated(100, true, hal.StatusTerminatedUserRequest)

	_, third := startPublish(t, c, ft, 1, "c", 102)
	assert.Greater(t, third, second, "ids stay monotonic after termination")
}

func TestDisconnectLastClientDisablesHardware(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())

	require.NoError(t, c.Disconnect(1))
	call := waitCall(t, ft)
	assert.Equal(t, "Disable", call.method)
	assert.Equal(t, uint16(0), call.transactionID, "disable is fire-and-forget")

	// The next connect is an initial enable again.
	rec := newConnectRecorder()
	require.NoError(t, c.Connect(2, aware.DefaultConfigRequest(), rec))
	enable := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", enable.method)
	assert.True(t, enable.initialEnable)
}

func TestDisconnectNonLastClient(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	cfgA := aware.DefaultConfigRequest()
	cfgA.MasterPreference = 1
	connectClient(t, c, ft, 1, cfgA)

	cfgB := aware.DefaultConfigRequest()
	cfgB.MasterPreference = 5
	recB := newConnectRecorder()
	require.NoError(t, c.Connect(2, cfgB, recB))
	call := waitCall(t, ft)
	c.OnConfigSuccess(call.transactionID)
	waitFor(t, recB.success, "connect success")

	// Dropping B changes the merged preference back to 1: reconfigure.
	require.NoError(t, c.Disconnect(2))
	reconf := waitCall(t, ft)
	require.Equal(t, "EnableAndConfigure", reconf.method)
	assert.False(t, reconf.initialEnable)
	assert.Equal(t, uint8(1), reconf.config.MasterPreference)
	c.OnConfigSuccess(reconf.transactionID)

	// Reconnect B, then drop a client whose config does not affect the
	// merge: no hardware call.
	recB2 := newConnectRecorder()
	cfgC := aware.DefaultConfigRequest()
	require.NoError(t, c.Connect(3, cfgC, recB2))
	waitFor(t, recB2.success, "connect success")
	require.NoError(t, c.Disconnect(3))
	expectNoCall(t, ft)
}

func TestDisconnectUnknownClientIgnored(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	require.NoError(t, c.Disconnect(99))
	expectNoCall(t, ft)
}

func TestIdentityChangeDelivery(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	cfgA := aware.DefaultConfigRequest()
	cfgA.EnableIdentityChange = true
	recA := connectClient(t, c, ft, 1, cfgA)

	cfgB := aware.DefaultConfigRequest()
	recB := newConnectRecorder()
	require.NoError(t, c.Connect(2, cfgB, recB))
	call := waitCall(t, ft)
	c.OnConfigSuccess(call.transactionID)
	waitFor(t, recB.success, "connect success")

	addr := aware.Address{0x02, 0, 0, 0, 0, 0x0A}
	c.OnInterfaceAddressChanged(addr)
	assert.Equal(t, addr, waitFor(t, recA.identity, "identity change"))
	expectNothing(t, recB.identity, "identity change without the flag")

	// Unchanged address: suppressed.
	c.OnInterfaceAddressChanged(addr)
	expectNothing(t, recA.identity, "repeated identity change")

	// Cluster events deliver through the same path.
	addr2 := aware.Address{0x02, 0, 0, 0, 0, 0x0B}
	c.OnClusterChanged(hal.ClusterJoined, aware.Address{0x50}, addr2)
	assert.Equal(t, addr2, waitFor(t, recA.identity, "identity change via cluster event"))
}

func TestCapabilitiesSnapshot(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	_, ok := c.Capabilities()
	assert.False(t, ok, "no snapshot before the first notification")

	caps := aware.Capabilities{MaxPublishes: 4, MaxServiceNameLen: 255}
	c.OnCapabilitiesUpdated(caps)

	require.Eventually(t, func() bool {
		got, ok := c.Capabilities()
		return ok && got == caps
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFirmwareDownClearsEverything(t *testing.T) {
	usageCh := make(chan bool, 8)
	c, ft, _ := newTestCoordinator(t, WithUsageCallback(func(enabled bool) {
		usageCh <- enabled
	}))
	assert.True(t, waitFor(t, usageCh, "enable broadcast"))
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())
	rec, _ := startPublish(t, c, ft, 1, "printer", 100)

	c.OnFirmwareDown(hal.StatusEngineFailure)
	assert.False(t, waitFor(t, usageCh, "usage broadcast"))
	assert.False(t, c.IsUsageEnabled())

	// Notifications for the cleared session are dropped.
	c.OnMatch(100, 9, aware.Address{}, nil, nil)
	expectNothing(t, rec.match, "match after firmware down")

	// Connecting again requires re-enabling usage.
	recB := newConnectRecorder()
	require.NoError(t, c.Connect(2, aware.DefaultConfigRequest(), recB))
	assert.Equal(t, aware.ReasonUsageDisabled, waitFor(t, recB.fail, "connect failure"))
}

func TestDisableUsageClearsClients(t *testing.T) {
	usageCh := make(chan bool, 8)
	c, ft, _ := newTestCoordinator(t, WithUsageCallback(func(enabled bool) {
		usageCh <- enabled
	}))
	assert.True(t, waitFor(t, usageCh, "enable broadcast"))
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())

	require.NoError(t, c.DisableUsage())
	call := waitCall(t, ft)
	assert.Equal(t, "Disable", call.method)
	assert.False(t, waitFor(t, usageCh, "disable broadcast"))
	assert.False(t, c.IsUsageEnabled())
}

func TestTransportErrorFailsCommandLocally(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	ft.failWith(errors.New("channel down"))

	rec := newConnectRecorder()
	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), rec))
	assert.Equal(t, aware.ReasonOther, waitFor(t, rec.fail, "connect failure"))

	// The slot was released: a later command goes through.
	ft.failWith(nil)
	rec2 := newConnectRecorder()
	require.NoError(t, c.Connect(2, aware.DefaultConfigRequest(), rec2))
	call := waitCall(t, ft)
	assert.Equal(t, "EnableAndConfigure", call.method)
}

func TestUpdateSessionTypeMismatch(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)
	connectClient(t, c, ft, 1, aware.DefaultConfigRequest())
	rec, sessionID := startPublish(t, c, ft, 1, "printer", 100)

	require.NoError(t, c.UpdateSubscribe(1, sessionID, aware.SubscribeConfig{ServiceName: "printer"}))
	assert.Equal(t, aware.ReasonInvalidArgs, waitFor(t, rec.configFail, "config failure"))
	expectNoCall(t, ft)

	require.NoError(t, c.UpdatePublish(1, sessionID, aware.PublishConfig{ServiceName: "printer2"}))
	call := waitCall(t, ft)
	require.Equal(t, "UpdatePublish", call.method)
	assert.Equal(t, uint32(100), call.pubSubID)
	c.OnSessionConfigSuccess(call.transactionID, true, 100)
	waitFor(t, rec.configSuccess, "config success")
}

func TestPanickingHandlerDoesNotKillLoop(t *testing.T) {
	c, ft, _ := newTestCoordinator(t)

	require.NoError(t, c.Connect(1, aware.DefaultConfigRequest(), panickingHandler{}))
	call := waitCall(t, ft)
	c.OnConfigSuccess(call.transactionID)
	drainCapabilitiesQuery(ft)

	// The loop survived the panic and keeps serving.
	rec := newConnectRecorder()
	cfg := aware.DefaultConfigRequest()
	cfg.Support5GHz = true
	require.NoError(t, c.Connect(2, cfg, rec))
	next := waitCall(t, ft)
	c.OnConfigSuccess(next.transactionID)
	waitFor(t, rec.success, "connect success")
}

type panickingHandler struct{}

func (panickingHandler) OnConnectSuccess()               { panic("boom") }
func (panickingHandler) OnConnectFail(aware.Reason)      { panic("boom") }
func (panickingHandler) OnIdentityChanged(aware.Address) { panic("boom") }
