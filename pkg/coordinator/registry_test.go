package coordinator

import (
	"testing"

	"github.com/aware-protocol/aware-go/pkg/aware"
)

func TestRegistrySessionLookup(t *testing.T) {
	r := newRegistry()
	client := newClientState(1, aware.DefaultConfigRequest(), nil)
	r.add(client)
	client.sessions[10] = &sessionState{sessionID: 10, pubSubID: 100, isPublish: true}
	client.sessions[11] = &sessionState{sessionID: 11, pubSubID: 101, isPublish: false}

	_, s, ok := r.session(1, 10)
	if !ok || s.pubSubID != 100 {
		t.Fatalf("session(1, 10) = %+v, %v", s, ok)
	}
	if _, _, ok := r.session(1, 99); ok {
		t.Error("session lookup found an absent session")
	}
	if _, _, ok := r.session(2, 10); ok {
		t.Error("session lookup found an absent client")
	}

	c, s, ok := r.sessionByPubSubID(101)
	if !ok || c.clientID != 1 || s.sessionID != 11 {
		t.Fatalf("sessionByPubSubID(101) = %v/%v, %v", c, s, ok)
	}
	if _, _, ok := r.sessionByPubSubID(999); ok {
		t.Error("sessionByPubSubID found an absent hardware id")
	}

	// Removal is idempotent.
	r.removeSession(1, 11)
	if _, _, ok := r.sessionByPubSubID(101); ok {
		t.Error("removed session still routable")
	}
	r.removeSession(1, 11)
	r.removeSession(2, 11)
}

func TestIdentityDeliverySuppression(t *testing.T) {
	cfg := aware.DefaultConfigRequest()
	cfg.EnableIdentityChange = true
	client := newClientState(1, cfg, nil)

	addr1 := aware.Address{0x02, 0, 0, 0, 0, 1}
	addr2 := aware.Address{0x02, 0, 0, 0, 0, 2}

	if !client.needsIdentityDelivery(addr1) {
		t.Error("first address change not delivered")
	}
	if client.needsIdentityDelivery(addr1) {
		t.Error("unchanged address delivered again")
	}
	if !client.needsIdentityDelivery(addr2) {
		t.Error("changed address not delivered")
	}

	plain := newClientState(2, aware.DefaultConfigRequest(), nil)
	if plain.needsIdentityDelivery(addr1) {
		t.Error("client without the flag received identity delivery")
	}
}
