package coordinator

import "github.com/aware-protocol/aware-go/pkg/aware"

// command is the sum type of caller-issued commands processed by the
// event loop. Each kind carries its own strongly typed fields; the
// original context is kept while its hardware round-trip is pending so
// the matching success, failure or timeout handler can be re-driven.
type command interface {
	name() string
}

type connectCommand struct {
	clientID int
	config   aware.ConfigRequest
	handler  aware.EventHandler
}

func (connectCommand) name() string { return "CONNECT" }

type disconnectCommand struct {
	clientID int
}

func (disconnectCommand) name() string { return "DISCONNECT" }

type publishCommand struct {
	clientID int
	config   aware.PublishConfig
	handler  aware.SessionHandler
}

func (publishCommand) name() string { return "PUBLISH" }

type subscribeCommand struct {
	clientID int
	config   aware.SubscribeConfig
	handler  aware.SessionHandler
}

func (subscribeCommand) name() string { return "SUBSCRIBE" }

type updatePublishCommand struct {
	clientID  int
	sessionID int
	config    aware.PublishConfig
}

func (updatePublishCommand) name() string { return "UPDATE_PUBLISH" }

type updateSubscribeCommand struct {
	clientID  int
	sessionID int
	config    aware.SubscribeConfig
}

func (updateSubscribeCommand) name() string { return "UPDATE_SUBSCRIBE" }

type sendMessageCommand struct {
	clientID  int
	sessionID int
	peerID    uint32
	peerAddr  aware.Address
	message   []byte
	messageID int
}

func (sendMessageCommand) name() string { return "SEND_MESSAGE" }

type terminateSessionCommand struct {
	clientID  int
	sessionID int
}

func (terminateSessionCommand) name() string { return "TERMINATE_SESSION" }

type enableUsageCommand struct{}

func (enableUsageCommand) name() string { return "ENABLE_USAGE" }

type disableUsageCommand struct{}

func (disableUsageCommand) name() string { return "DISABLE_USAGE" }
