package coordinator

import (
	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
)

// Coordinator implements hal.Handler. Transports deliver responses and
// notifications from their dispatch goroutine; each callback is queued
// into the event loop so processing stays serialized. Deliveries after
// Stop are dropped.
var _ hal.Handler = (*Coordinator)(nil)

func (c *Coordinator) OnConfigSuccess(transactionID uint16) {
	_ = c.enqueue(configSuccessMsg{transactionID: transactionID})
}

func (c *Coordinator) OnConfigFailure(transactionID uint16, status hal.Status) {
	_ = c.enqueue(configFailureMsg{transactionID: transactionID, status: status})
}

func (c *Coordinator) OnSessionConfigSuccess(transactionID uint16, isPublish bool, pubSubID uint32) {
	_ = c.enqueue(sessionConfigSuccessMsg{
		transactionID: transactionID,
		isPublish:     isPublish,
		pubSubID:      pubSubID,
	})
}

func (c *Coordinator) OnSessionConfigFailure(transactionID uint16, isPublish bool, status hal.Status) {
	_ = c.enqueue(sessionConfigFailureMsg{
		transactionID: transactionID,
		isPublish:     isPublish,
		status:        status,
	})
}

func (c *Coordinator) OnMessageSendSuccess(transactionID uint16) {
	_ = c.enqueue(messageSendSuccessMsg{transactionID: transactionID})
}

func (c *Coordinator) OnMessageSendFailure(transactionID uint16, status hal.Status) {
	_ = c.enqueue(messageSendFailureMsg{transactionID: transactionID, status: status})
}

func (c *Coordinator) OnCapabilitiesUpdated(caps aware.Capabilities) {
	_ = c.enqueue(capabilitiesMsg{caps: caps})
}

func (c *Coordinator) OnInterfaceAddressChanged(addr aware.Address) {
	_ = c.enqueue(addressChangedMsg{addr: addr})
}

func (c *Coordinator) OnClusterChanged(event hal.ClusterEvent, clusterID aware.Address, addr aware.Address) {
	_ = c.enqueue(clusterChangedMsg{event: event, clusterID: clusterID, addr: addr})
}

func (c *Coordinator) OnMatch(pubSubID uint32, peerID uint32, peerAddr aware.Address, serviceSpecificInfo, matchFilter []byte) {
	_ = c.enqueue(matchMsg{
		pubSubID:            pubSubID,
		peerID:              peerID,
		peerAddr:            peerAddr,
		serviceSpecificInfo: serviceSpecificInfo,
		matchFilter:         matchFilter,
	})
}

func (c *Coordinator) OnSessionTerminated(pubSubID uint32, isPublish bool, status hal.Status) {
	_ = c.enqueue(sessionTerminatedMsg{pubSubID: pubSubID, isPublish: isPublish, status: status})
}

func (c *Coordinator) OnMessageReceived(pubSubID uint32, peerID uint32, peerAddr aware.Address, message []byte) {
	_ = c.enqueue(messageReceivedMsg{
		pubSubID: pubSubID,
		peerID:   peerID,
		peerAddr: peerAddr,
		message:  message,
	})
}

func (c *Coordinator) OnFirmwareDown(status hal.Status) {
	_ = c.enqueue(firmwareDownMsg{status: status})
}
