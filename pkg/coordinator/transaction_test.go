package coordinator

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
)

func TestTransactionIDsSkipReservedSentinel(t *testing.T) {
	r := newTransactionRegistry(clock.NewMock(), time.Second, func(uint16) {})

	r.nextID = 0xFFFF
	if id := r.issue(); id != 0xFFFF {
		t.Fatalf("issue() = %d, want 65535", id)
	}
	if id := r.issue(); id != 1 {
		t.Errorf("issue() after wrap = %d, want 1 (0 is reserved)", id)
	}
}

func TestResolveMismatchedIDReturnsNothing(t *testing.T) {
	r := newTransactionRegistry(clock.NewMock(), time.Second, func(uint16) {})

	id := r.issue()
	r.track(id, disconnectCommand{clientID: 1})

	if _, ok := r.resolve(id + 1); ok {
		t.Error("resolve() accepted a mismatched id")
	}
	if !r.hasPending() {
		t.Error("mismatched resolve cleared the pending command")
	}

	cmd, ok := r.resolve(id)
	if !ok {
		t.Fatal("resolve() rejected the matching id")
	}
	if _, isDisconnect := cmd.(disconnectCommand); !isDisconnect {
		t.Errorf("resolve() returned %T, want disconnectCommand", cmd)
	}
	if r.hasPending() {
		t.Error("resolve left the command pending")
	}

	// Resolving twice returns nothing.
	if _, ok := r.resolve(id); ok {
		t.Error("resolve() accepted an already-resolved id")
	}
}

func TestResolveCancelsTimeout(t *testing.T) {
	mock := clock.NewMock()
	fired := make(chan uint16, 1)
	r := newTransactionRegistry(mock, 5*time.Second, func(id uint16) {
		fired <- id
	})

	id := r.issue()
	r.track(id, disconnectCommand{clientID: 1})
	if _, ok := r.resolve(id); !ok {
		t.Fatal("resolve() failed")
	}

	mock.Add(10 * time.Second)
	select {
	case <-fired:
		t.Error("timeout fired after the transaction resolved")
	default:
	}
}

func TestTimeoutFiresWithPendingID(t *testing.T) {
	mock := clock.NewMock()
	fired := make(chan uint16, 1)
	r := newTransactionRegistry(mock, 5*time.Second, func(id uint16) {
		fired <- id
	})

	id := r.issue()
	r.track(id, disconnectCommand{clientID: 1})

	mock.Add(5 * time.Second)
	select {
	case got := <-fired:
		if got != id {
			t.Errorf("timeout fired with id %d, want %d", got, id)
		}
	default:
		t.Fatal("timeout did not fire")
	}
}
