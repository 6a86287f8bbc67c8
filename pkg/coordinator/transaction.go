package coordinator

import (
	"time"

	"github.com/benbjohnson/clock"
)

// noTransactionID is the reserved sentinel; it is never issued and tags
// fire-and-forget hardware calls that expect no response.
const noTransactionID uint16 = 0

// transactionRegistry issues transaction ids and remembers the single
// currently outstanding command together with its timeout timer. It is
// only ever touched from the coordinator's event loop.
type transactionRegistry struct {
	clock     clock.Clock
	timeout   time.Duration
	onTimeout func(id uint16)

	nextID  uint16
	pending *pendingCommand
}

type pendingCommand struct {
	id    uint16
	cmd   command
	timer *clock.Timer
}

func newTransactionRegistry(clk clock.Clock, timeout time.Duration, onTimeout func(id uint16)) *transactionRegistry {
	return &transactionRegistry{
		clock:     clk,
		timeout:   timeout,
		onTimeout: onTimeout,
		nextID:    1,
	}
}

// issue returns the next transaction id. Ids wrap around the uint16
// space, skipping the reserved sentinel.
func (r *transactionRegistry) issue() uint16 {
	id := r.nextID
	r.nextID++
	if r.nextID == noTransactionID {
		r.nextID = 1
	}
	return id
}

// track records cmd as the outstanding command under id and arms its
// timeout. Must not be called while another command is pending.
func (r *transactionRegistry) track(id uint16, cmd command) {
	timeoutID := id
	r.pending = &pendingCommand{
		id:  id,
		cmd: cmd,
		timer: r.clock.AfterFunc(r.timeout, func() {
			r.onTimeout(timeoutID)
		}),
	}
}

// resolve returns the outstanding command and clears the pending record,
// but only if id matches the pending transaction. A mismatch means a
// stale or duplicate response and returns false without touching state.
func (r *transactionRegistry) resolve(id uint16) (command, bool) {
	if r.pending == nil || r.pending.id != id {
		return nil, false
	}
	cmd := r.pending.cmd
	r.pending.timer.Stop()
	r.pending = nil
	return cmd, true
}

// hasPending reports whether a command is outstanding.
func (r *transactionRegistry) hasPending() bool {
	return r.pending != nil
}

// pendingID returns the outstanding transaction id, or noTransactionID.
func (r *transactionRegistry) pendingID() uint16 {
	if r.pending == nil {
		return noTransactionID
	}
	return r.pending.id
}
