package coordinator

import (
	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
)

// Internal event-loop messages for firmware responses, notifications and
// command timeouts. Commands (command.go) share the same queue.

type configSuccessMsg struct {
	transactionID uint16
}

type configFailureMsg struct {
	transactionID uint16
	status        hal.Status
}

type sessionConfigSuccessMsg struct {
	transactionID uint16
	isPublish     bool
	pubSubID      uint32
}

type sessionConfigFailureMsg struct {
	transactionID uint16
	isPublish     bool
	status        hal.Status
}

type messageSendSuccessMsg struct {
	transactionID uint16
}

type messageSendFailureMsg struct {
	transactionID uint16
	status        hal.Status
}

type timeoutMsg struct {
	transactionID uint16
}

type capabilitiesMsg struct {
	caps aware.Capabilities
}

type addressChangedMsg struct {
	addr aware.Address
}

type clusterChangedMsg struct {
	event     hal.ClusterEvent
	clusterID aware.Address
	addr      aware.Address
}

type matchMsg struct {
	pubSubID            uint32
	peerID              uint32
	peerAddr            aware.Address
	serviceSpecificInfo []byte
	matchFilter         []byte
}

type sessionTerminatedMsg struct {
	pubSubID  uint32
	isPublish bool
	status    hal.Status
}

type messageReceivedMsg struct {
	pubSubID uint32
	peerID   uint32
	peerAddr aware.Address
	message  []byte
}

type firmwareDownMsg struct {
	status hal.Status
}
