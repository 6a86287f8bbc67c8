package coordinator

import (
	"sync"
	"testing"
	"time"

	"github.com/aware-protocol/aware-go/pkg/aware"
)

// transportCall records one hardware command the coordinator issued.
type transportCall struct {
	method        string
	transactionID uint16
	config        aware.ConfigRequest
	initialEnable bool
	publishConfig aware.PublishConfig
	subConfig     aware.SubscribeConfig
	pubSubID      uint32
	peerID        uint32
	peerAddr      aware.Address
	message       []byte
}

// fakeTransport records commands and lets tests feed responses back via
// the coordinator's hal.Handler methods.
type fakeTransport struct {
	mu     sync.Mutex
	calls  []transportCall
	callCh chan transportCall
	err    error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{callCh: make(chan transportCall, 32)}
}

func (f *fakeTransport) failWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeTransport) record(call transportCall) error {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.calls = append(f.calls, call)
	}
	f.mu.Unlock()
	if err != nil {
		return err
	}
	f.callCh <- call
	return nil
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeTransport) EnableAndConfigure(transactionID uint16, cfg aware.ConfigRequest, initialEnable bool) error {
	return f.record(transportCall{
		method:        "EnableAndConfigure",
		transactionID: transactionID,
		config:        cfg,
		initialEnable: initialEnable,
	})
}

func (f *fakeTransport) Disable(transactionID uint16) error {
	return f.record(transportCall{method: "Disable", transactionID: transactionID})
}

func (f *fakeTransport) Publish(transactionID uint16, cfg aware.PublishConfig) error {
	return f.record(transportCall{method: "Publish", transactionID: transactionID, publishConfig: cfg})
}

func (f *fakeTransport) Subscribe(transactionID uint16, cfg aware.SubscribeConfig) error {
	return f.record(transportCall{method: "Subscribe", transactionID: transactionID, subConfig: cfg})
}

func (f *fakeTransport) UpdatePublish(transactionID uint16, pubSubID uint32, cfg aware.PublishConfig) error {
	return f.record(transportCall{
		method:        "UpdatePublish",
		transactionID: transactionID,
		pubSubID:      pubSubID,
		publishConfig: cfg,
	})
}

func (f *fakeTransport) UpdateSubscribe(transactionID uint16, pubSubID uint32, cfg aware.SubscribeConfig) error {
	return f.record(transportCall{
		method:        "UpdateSubscribe",
		transactionID: transactionID,
		pubSubID:      pubSubID,
		subConfig:     cfg,
	})
}

func (f *fakeTransport) SendMessage(transactionID uint16, pubSubID uint32, peerID uint32, peerAddr aware.Address, message []byte) error {
	return f.record(transportCall{
		method:        "SendMessage",
		transactionID: transactionID,
		pubSubID:      pubSubID,
		peerID:        peerID,
		peerAddr:      peerAddr,
		message:       message,
	})
}

func (f *fakeTransport) StopPublish(transactionID uint16, pubSubID uint32) error {
	return f.record(transportCall{method: "StopPublish", transactionID: transactionID, pubSubID: pubSubID})
}

func (f *fakeTransport) StopSubscribe(transactionID uint16, pubSubID uint32) error {
	return f.record(transportCall{method: "StopSubscribe", transactionID: transactionID, pubSubID: pubSubID})
}

func (f *fakeTransport) QueryCapabilities(transactionID uint16) error {
	return f.record(transportCall{method: "QueryCapabilities", transactionID: transactionID})
}

// waitCall returns the next recorded command or fails the test.
func waitCall(t *testing.T, f *fakeTransport) transportCall {
	t.Helper()
	select {
	case call := <-f.callCh:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for transport call")
		return transportCall{}
	}
}

// expectNoCall fails the test if a command arrives within the grace
// window.
func expectNoCall(t *testing.T, f *fakeTransport) {
	t.Helper()
	select {
	case call := <-f.callCh:
		t.Fatalf("unexpected transport call: %s", call.method)
	case <-time.After(50 * time.Millisecond):
	}
}

// connectRecorder captures EventHandler callbacks on channels.
type connectRecorder struct {
	success  chan struct{}
	fail     chan aware.Reason
	identity chan aware.Address
}

func newConnectRecorder() *connectRecorder {
	return &connectRecorder{
		success:  make(chan struct{}, 8),
		fail:     make(chan aware.Reason, 8),
		identity: make(chan aware.Address, 8),
	}
}

func (r *connectRecorder) OnConnectSuccess()                 { r.success <- struct{}{} }
func (r *connectRecorder) OnConnectFail(reason aware.Reason) { r.fail <- reason }
func (r *connectRecorder) OnIdentityChanged(addr aware.Address) {
	r.identity <- addr
}

type matchEvent struct {
	peerID   uint32
	peerAddr aware.Address
	ssi      []byte
	filter   []byte
}

type receivedEvent struct {
	peerID  uint32
	message []byte
}

type sendResult struct {
	messageID int
	reason    aware.Reason
}

// sessionRecorder captures SessionHandler callbacks on channels.
type sessionRecorder struct {
	started       chan int
	configSuccess chan struct{}
	configFail    chan aware.Reason
	terminated    chan aware.TerminateReason
	match         chan matchEvent
	received      chan receivedEvent
	sendSuccess   chan int
	sendFail      chan sendResult
}

func newSessionRecorder() *sessionRecorder {
	return &sessionRecorder{
		started:       make(chan int, 8),
		configSuccess: make(chan struct{}, 8),
		configFail:    make(chan aware.Reason, 8),
		terminated:    make(chan aware.TerminateReason, 8),
		match:         make(chan matchEvent, 8),
		received:      make(chan receivedEvent, 8),
		sendSuccess:   make(chan int, 8),
		sendFail:      make(chan sendResult, 8),
	}
}

func (r *sessionRecorder) OnSessionStarted(sessionID int) { r.started <- sessionID }
func (r *sessionRecorder) OnSessionConfigSuccess()        { r.configSuccess <- struct{}{} }
func (r *sessionRecorder) OnSessionConfigFail(reason aware.Reason) {
	r.configFail <- reason
}
func (r *sessionRecorder) OnSessionTerminated(reason aware.TerminateReason) {
	r.terminated <- reason
}
func (r *sessionRecorder) OnMatch(peerID uint32, peerAddr aware.Address, ssi, filter []byte) {
	r.match <- matchEvent{peerID: peerID, peerAddr: peerAddr, ssi: ssi, filter: filter}
}
func (r *sessionRecorder) OnMessageReceived(peerID uint32, peerAddr aware.Address, message []byte) {
	r.received <- receivedEvent{peerID: peerID, message: message}
}
func (r *sessionRecorder) OnMessageSendSuccess(messageID int) { r.sendSuccess <- messageID }
func (r *sessionRecorder) OnMessageSendFail(messageID int, reason aware.Reason) {
	r.sendFail <- sendResult{messageID: messageID, reason: reason}
}
