package coordinator

import (
	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
)

// run is the event loop: the single serialization point for commands,
// responses, timeouts and notifications.
func (c *Coordinator) run() {
	defer close(c.done)
	for {
		select {
		case msg := <-c.messages:
			c.dispatch(msg)
		case <-c.quit:
			return
		}
	}
}

// dispatch routes one message through the (state, message) table.
func (c *Coordinator) dispatch(msg any) {
	switch m := msg.(type) {
	case command:
		c.handleCommand(m)

	case configSuccessMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/CONFIG"); ok {
			c.onConfigSuccess(cmd)
			c.drainDeferred()
		}
	case configFailureMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/CONFIG"); ok {
			c.onConfigFailure(cmd, hal.ConfigReason(m.status))
			c.drainDeferred()
		}
	case sessionConfigSuccessMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/SESSION_CONFIG"); ok {
			c.onSessionConfigSuccess(cmd, m.pubSubID)
			c.drainDeferred()
		}
	case sessionConfigFailureMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/SESSION_CONFIG"); ok {
			c.onSessionConfigFailure(cmd, hal.SessionReason(m.status))
			c.drainDeferred()
		}
	case messageSendSuccessMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/MESSAGE_SEND"); ok {
			c.onMessageSendResult(cmd, true, aware.ReasonOther)
			c.drainDeferred()
		}
	case messageSendFailureMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "RESPONSE/MESSAGE_SEND"); ok {
			c.onMessageSendResult(cmd, false, hal.SessionReason(m.status))
			c.drainDeferred()
		}

	case timeoutMsg:
		if cmd, ok := c.resolveTransaction(m.transactionID, "TIMEOUT"); ok {
			c.onCommandTimeout(cmd)
			c.drainDeferred()
		}

	// Notifications are processed in any state without a transition.
	case capabilitiesMsg:
		c.logger.Debug("capabilities updated", "caps", m.caps)
		c.setCapabilities(m.caps)
	case addressChangedMsg:
		c.onIdentityEvent(m.addr, "interface address changed")
	case clusterChangedMsg:
		c.logger.Debug("cluster changed",
			"event", m.event.String(), "cluster", m.clusterID.String())
		c.onIdentityEvent(m.addr, "cluster changed")
	case matchMsg:
		c.onMatch(m)
	case sessionTerminatedMsg:
		c.onSessionTerminated(m)
	case messageReceivedMsg:
		c.onMessageReceived(m)
	case firmwareDownMsg:
		c.onFirmwareDown(m.status)

	default:
		c.logger.Error("unknown message dropped", "message", msg)
	}
}

// handleCommand defers the command while a hardware round-trip is in
// flight; otherwise it is processed immediately.
func (c *Coordinator) handleCommand(cmd command) {
	if c.state == stateAwaitingResponse {
		c.deferred.Add(cmd)
		return
	}
	c.processCommand(cmd)
}

// processCommand runs one command from the idle state and transitions to
// awaiting-response when a hardware round-trip was started.
func (c *Coordinator) processCommand(cmd command) {
	var waited bool
	switch m := cmd.(type) {
	case connectCommand:
		waited = c.processConnect(m)
	case disconnectCommand:
		waited = c.processDisconnect(m)
	case publishCommand:
		waited = c.processPublish(m)
	case subscribeCommand:
		waited = c.processSubscribe(m)
	case updatePublishCommand:
		waited = c.processUpdatePublish(m)
	case updateSubscribeCommand:
		waited = c.processUpdateSubscribe(m)
	case sendMessageCommand:
		waited = c.processSendMessage(m)
	case terminateSessionCommand:
		waited = c.processTerminateSession(m)
	case enableUsageCommand:
		waited = c.processEnableUsage()
	case disableUsageCommand:
		waited = c.processDisableUsage()
	default:
		c.logger.Error("unknown command dropped", "command", cmd.name())
	}
	if waited {
		c.setState(stateAwaitingResponse, cmd.name())
	}
}

// resolveTransaction validates a response or timeout tag against the
// outstanding transaction. Mismatches are stale or duplicate and are
// dropped without resolving anything.
func (c *Coordinator) resolveTransaction(transactionID uint16, source string) (command, bool) {
	cmd, ok := c.transactions.resolve(transactionID)
	if !ok {
		c.logger.Warn("stale transaction id dropped",
			"transaction_id", transactionID,
			"pending_id", c.transactions.pendingID(),
			"source", source)
		return nil, false
	}
	c.setState(stateIdle, source)
	return cmd, true
}

// drainDeferred replays deferred commands in FIFO order until one of
// them occupies the hardware slot or the queue empties.
func (c *Coordinator) drainDeferred() {
	for c.state == stateIdle && c.deferred.Length() > 0 {
		cmd := c.deferred.Remove().(command)
		c.processCommand(cmd)
	}
}

// issueTransaction hands one hardware command to the transport and
// tracks it. send is given the freshly issued transaction id. The
// transaction is tracked before the send so a response can never race an
// untracked id. Returns false (and runs onError) when the transport
// rejected the command.
func (c *Coordinator) issueTransaction(cmd command, send func(transactionID uint16) error, onError func()) bool {
	transactionID := c.transactions.issue()
	c.transactions.track(transactionID, cmd)
	if err := send(transactionID); err != nil {
		c.transactions.resolve(transactionID)
		c.logger.Error("transport rejected command",
			"command", cmd.name(), "transaction_id", transactionID, "error", err)
		if onError != nil {
			onError()
		}
		return false
	}
	return true
}

func (c *Coordinator) processConnect(cmd connectCommand) bool {
	if !c.IsUsageEnabled() {
		c.deliver("OnConnectFail", func() { cmd.handler.OnConnectFail(aware.ReasonUsageDisabled) })
		return false
	}

	if _, exists := c.registry.client(cmd.clientID); exists {
		c.logger.Error("connect for already-registered client rejected",
			"client_id", cmd.clientID)
		c.deliver("OnConnectFail", func() { cmd.handler.OnConnectFail(aware.ReasonInvalidArgs) })
		return false
	}

	if err := cmd.config.Validate(); err != nil {
		c.logger.Warn("connect with invalid config rejected",
			"client_id", cmd.clientID, "error", err)
		reason := aware.ReasonInvalidArgs
		if c.registry.count() > 0 {
			reason = aware.ReasonIncompatibleConfig
		}
		c.deliver("OnConnectFail", func() { cmd.handler.OnConnectFail(reason) })
		return false
	}

	merged, err := aware.MergeConfigRequests(c.registry.configs(), &cmd.config)
	if err != nil {
		c.logger.Error("config merge failed", "client_id", cmd.clientID, "error", err)
		c.deliver("OnConnectFail", func() { cmd.handler.OnConnectFail(aware.ReasonOther) })
		return false
	}

	// Unchanged merged config: register without a hardware round-trip.
	if c.currentConfig != nil && merged.Equal(*c.currentConfig) {
		c.registry.add(newClientState(cmd.clientID, cmd.config, cmd.handler))
		c.deliver("OnConnectSuccess", cmd.handler.OnConnectSuccess)
		return false
	}

	initialEnable := c.currentConfig == nil
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.EnableAndConfigure(transactionID, merged, initialEnable)
		},
		func() {
			c.deliver("OnConnectFail", func() { cmd.handler.OnConnectFail(aware.ReasonOther) })
		})
}

func (c *Coordinator) processDisconnect(cmd disconnectCommand) bool {
	client, ok := c.registry.remove(cmd.clientID)
	if !ok {
		c.logger.Warn("disconnect for unknown client ignored", "client_id", cmd.clientID)
		return false
	}
	c.logger.Debug("client disconnected",
		"client_id", cmd.clientID, "sessions", len(client.sessions))

	if c.registry.count() == 0 {
		if c.currentConfig != nil {
			c.currentConfig = nil
			if err := c.transport.Disable(noTransactionID); err != nil {
				c.logger.Error("disable failed", "error", err)
			}
		}
		return false
	}

	merged, err := aware.MergeConfigRequests(c.registry.configs(), nil)
	if err != nil {
		c.logger.Error("config merge failed after disconnect", "error", err)
		return false
	}
	if c.currentConfig != nil && merged.Equal(*c.currentConfig) {
		return false
	}

	// The disconnecting caller already completed; a failure of this
	// reconfigure is logged when it resolves, nothing more.
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.EnableAndConfigure(transactionID, merged, false)
		}, nil)
}

func (c *Coordinator) processPublish(cmd publishCommand) bool {
	if _, ok := c.registry.client(cmd.clientID); !ok {
		c.logger.Warn("publish for unknown client rejected", "client_id", cmd.clientID)
		c.deliver("OnSessionConfigFail", func() {
			cmd.handler.OnSessionConfigFail(aware.ReasonNotFound)
		})
		return false
	}
	if err := cmd.config.Validate(c.capsSnapshot()); err != nil {
		c.logger.Warn("publish config rejected",
			"client_id", cmd.clientID, "error", err)
		c.deliver("OnSessionConfigFail", func() {
			cmd.handler.OnSessionConfigFail(aware.ReasonInvalidArgs)
		})
		return false
	}
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.Publish(transactionID, cmd.config)
		},
		func() {
			c.deliver("OnSessionConfigFail", func() {
				cmd.handler.OnSessionConfigFail(aware.ReasonOther)
			})
		})
}

func (c *Coordinator) processSubscribe(cmd subscribeCommand) bool {
	if _, ok := c.registry.client(cmd.clientID); !ok {
		c.logger.Warn("subscribe for unknown client rejected", "client_id", cmd.clientID)
		c.deliver("OnSessionConfigFail", func() {
			cmd.handler.OnSessionConfigFail(aware.ReasonNotFound)
		})
		return false
	}
	if err := cmd.config.Validate(c.capsSnapshot()); err != nil {
		c.logger.Warn("subscribe config rejected",
			"client_id", cmd.clientID, "error", err)
		c.deliver("OnSessionConfigFail", func() {
			cmd.handler.OnSessionConfigFail(aware.ReasonInvalidArgs)
		})
		return false
	}
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.Subscribe(transactionID, cmd.config)
		},
		func() {
			c.deliver("OnSessionConfigFail", func() {
				cmd.handler.OnSessionConfigFail(aware.ReasonOther)
			})
		})
}

func (c *Coordinator) processUpdatePublish(cmd updatePublishCommand) bool {
	_, session, ok := c.registry.session(cmd.clientID, cmd.sessionID)
	if !ok {
		c.logger.Warn("update-publish for unknown client or session ignored",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		return false
	}
	if !session.isPublish {
		c.logger.Warn("update-publish on a subscribe session rejected",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		c.deliver("OnSessionConfigFail", func() {
			session.handler.OnSessionConfigFail(aware.ReasonInvalidArgs)
		})
		return false
	}
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.UpdatePublish(transactionID, session.pubSubID, cmd.config)
		},
		func() {
			c.deliver("OnSessionConfigFail", func() {
				session.handler.OnSessionConfigFail(aware.ReasonOther)
			})
		})
}

func (c *Coordinator) processUpdateSubscribe(cmd updateSubscribeCommand) bool {
	_, session, ok := c.registry.session(cmd.clientID, cmd.sessionID)
	if !ok {
		c.logger.Warn("update-subscribe for unknown client or session ignored",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		return false
	}
	if session.isPublish {
		c.logger.Warn("update-subscribe on a publish session rejected",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		c.deliver("OnSessionConfigFail", func() {
			session.handler.OnSessionConfigFail(aware.ReasonInvalidArgs)
		})
		return false
	}
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.UpdateSubscribe(transactionID, session.pubSubID, cmd.config)
		},
		func() {
			c.deliver("OnSessionConfigFail", func() {
				session.handler.OnSessionConfigFail(aware.ReasonOther)
			})
		})
}

func (c *Coordinator) processSendMessage(cmd sendMessageCommand) bool {
	_, session, ok := c.registry.session(cmd.clientID, cmd.sessionID)
	if !ok {
		c.logger.Warn("send-message for unknown client or session ignored",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		return false
	}
	return c.issueTransaction(cmd,
		func(transactionID uint16) error {
			return c.transport.SendMessage(transactionID, session.pubSubID,
				cmd.peerID, cmd.peerAddr, cmd.message)
		},
		func() {
			c.deliver("OnMessageSendFail", func() {
				session.handler.OnMessageSendFail(cmd.messageID, aware.ReasonOther)
			})
		})
}

func (c *Coordinator) processTerminateSession(cmd terminateSessionCommand) bool {
	_, session, ok := c.registry.session(cmd.clientID, cmd.sessionID)
	if !ok {
		// Also covers terminating a session whose creation is still
		// pending: it does not exist in the registry yet.
		c.logger.Warn("terminate for unknown client or session ignored",
			"client_id", cmd.clientID, "session_id", cmd.sessionID)
		return false
	}

	// Fire-and-forget. The session is removed when its terminated
	// notification arrives, keeping removal ordered with notifications
	// already in flight.
	var err error
	if session.isPublish {
		err = c.transport.StopPublish(noTransactionID, session.pubSubID)
	} else {
		err = c.transport.StopSubscribe(noTransactionID, session.pubSubID)
	}
	if err != nil {
		c.logger.Error("stop session failed",
			"client_id", cmd.clientID, "session_id", cmd.sessionID, "error", err)
	}
	return false
}

func (c *Coordinator) processEnableUsage() bool {
	if c.IsUsageEnabled() {
		return false
	}
	c.setUsageEnabled(true)
	c.logger.Info("usage enabled")
	if c.usageCallback != nil {
		c.deliver("UsageCallback", func() { c.usageCallback(true) })
	}
	return false
}

func (c *Coordinator) processDisableUsage() bool {
	if !c.IsUsageEnabled() {
		return false
	}
	c.setUsageEnabled(false)
	c.registry.clear()
	if c.currentConfig != nil {
		c.currentConfig = nil
		if err := c.transport.Disable(noTransactionID); err != nil {
			c.logger.Error("disable failed", "error", err)
		}
	}
	c.logger.Info("usage disabled")
	if c.usageCallback != nil {
		c.deliver("UsageCallback", func() { c.usageCallback(false) })
	}
	return false
}

// onConfigSuccess resolves a successful enable/configure round-trip.
func (c *Coordinator) onConfigSuccess(cmd command) {
	switch m := cmd.(type) {
	case connectCommand:
		c.registry.add(newClientState(m.clientID, m.config, m.handler))
		merged, err := aware.MergeConfigRequests(c.registry.configs(), nil)
		if err == nil {
			c.currentConfig = &merged
		}
		c.deliver("OnConnectSuccess", m.handler.OnConnectSuccess)

		// One capability query per enablement cycle; the result arrives
		// as the capabilities-updated notification.
		if !c.capsQueried {
			c.capsQueried = true
			if err := c.transport.QueryCapabilities(noTransactionID); err != nil {
				c.logger.Error("capabilities query failed", "error", err)
			}
		}
	case disconnectCommand:
		merged, err := aware.MergeConfigRequests(c.registry.configs(), nil)
		if err == nil {
			c.currentConfig = &merged
		}
	default:
		c.logger.Error("config response for unexpected command", "command", cmd.name())
	}
}

// onConfigFailure resolves a failed or timed-out enable/configure
// round-trip.
func (c *Coordinator) onConfigFailure(cmd command, reason aware.Reason) {
	switch m := cmd.(type) {
	case connectCommand:
		// The client was never registered.
		c.deliver("OnConnectFail", func() { m.handler.OnConnectFail(reason) })
	case disconnectCommand:
		// The disconnecting caller already completed; the radio keeps
		// running the previous configuration.
		c.logger.Warn("reconfigure after disconnect failed",
			"client_id", m.clientID, "reason", reason.String())
	default:
		c.logger.Error("config failure for unexpected command", "command", cmd.name())
	}
}

// onSessionConfigSuccess resolves a successful session create or update.
func (c *Coordinator) onSessionConfigSuccess(cmd command, pubSubID uint32) {
	switch m := cmd.(type) {
	case publishCommand:
		c.createSession(m.clientID, pubSubID, true, m.handler)
	case subscribeCommand:
		c.createSession(m.clientID, pubSubID, false, m.handler)
	case updatePublishCommand:
		c.notifySessionConfigResult(m.clientID, m.sessionID, aware.ReasonOther, true)
	case updateSubscribeCommand:
		c.notifySessionConfigResult(m.clientID, m.sessionID, aware.ReasonOther, true)
	default:
		c.logger.Error("session response for unexpected command", "command", cmd.name())
	}
}

// onSessionConfigFailure resolves a failed or timed-out session create
// or update.
func (c *Coordinator) onSessionConfigFailure(cmd command, reason aware.Reason) {
	switch m := cmd.(type) {
	case publishCommand:
		c.deliver("OnSessionConfigFail", func() { m.handler.OnSessionConfigFail(reason) })
	case subscribeCommand:
		c.deliver("OnSessionConfigFail", func() { m.handler.OnSessionConfigFail(reason) })
	case updatePublishCommand:
		c.notifySessionConfigResult(m.clientID, m.sessionID, reason, false)
	case updateSubscribeCommand:
		c.notifySessionConfigResult(m.clientID, m.sessionID, reason, false)
	default:
		c.logger.Error("session failure for unexpected command", "command", cmd.name())
	}
}

// createSession allocates the next local session id for a confirmed
// create. Local ids are never reused.
func (c *Coordinator) createSession(clientID int, pubSubID uint32, isPublish bool, handler aware.SessionHandler) {
	client, ok := c.registry.client(clientID)
	if !ok {
		// The client disconnected while the create was in flight.
		c.logger.Warn("session confirmed for unknown client",
			"client_id", clientID, "pub_sub_id", pubSubID)
		return
	}
	sessionID := c.nextSessionID
	c.nextSessionID++
	client.sessions[sessionID] = &sessionState{
		sessionID: sessionID,
		pubSubID:  pubSubID,
		isPublish: isPublish,
		handler:   handler,
	}
	c.logger.Debug("session started",
		"client_id", clientID, "session_id", sessionID,
		"pub_sub_id", pubSubID, "publish", isPublish)
	c.deliver("OnSessionStarted", func() { handler.OnSessionStarted(sessionID) })
}

// notifySessionConfigResult routes an update result to its session.
func (c *Coordinator) notifySessionConfigResult(clientID, sessionID int, reason aware.Reason, success bool) {
	_, session, ok := c.registry.session(clientID, sessionID)
	if !ok {
		c.logger.Warn("session config result for unknown client or session",
			"client_id", clientID, "session_id", sessionID)
		return
	}
	if success {
		c.deliver("OnSessionConfigSuccess", session.handler.OnSessionConfigSuccess)
	} else {
		c.deliver("OnSessionConfigFail", func() { session.handler.OnSessionConfigFail(reason) })
	}
}

// onMessageSendResult resolves a send-message round-trip, echoing the
// caller-supplied message id.
func (c *Coordinator) onMessageSendResult(cmd command, success bool, reason aware.Reason) {
	m, ok := cmd.(sendMessageCommand)
	if !ok {
		c.logger.Error("message-send response for unexpected command", "command", cmd.name())
		return
	}
	_, session, found := c.registry.session(m.clientID, m.sessionID)
	if !found {
		c.logger.Warn("message-send result for unknown client or session",
			"client_id", m.clientID, "session_id", m.sessionID)
		return
	}
	if success {
		c.deliver("OnMessageSendSuccess", func() {
			session.handler.OnMessageSendSuccess(m.messageID)
		})
	} else {
		c.deliver("OnMessageSendFail", func() {
			session.handler.OnMessageSendFail(m.messageID, reason)
		})
	}
}

// onCommandTimeout resolves a timed-out command with the failure reason
// matching its kind.
func (c *Coordinator) onCommandTimeout(cmd command) {
	c.logger.Warn("command timed out", "command", cmd.name())
	switch m := cmd.(type) {
	case connectCommand, disconnectCommand:
		c.onConfigFailure(cmd, aware.ReasonOther)
	case publishCommand, subscribeCommand, updatePublishCommand, updateSubscribeCommand:
		c.onSessionConfigFailure(cmd, aware.ReasonOther)
	case sendMessageCommand:
		c.onMessageSendResult(m, false, aware.ReasonTxFail)
	default:
		c.logger.Error("timeout for unexpected command", "command", cmd.name())
	}
}

// onIdentityEvent delivers an identity change to clients that asked for
// it, suppressing deliveries when the address did not change.
func (c *Coordinator) onIdentityEvent(addr aware.Address, what string) {
	c.logger.Debug(what, "addr", addr.String())
	c.currentAddr = addr
	for _, client := range c.registry.clients {
		if client.needsIdentityDelivery(addr) {
			handler := client.handler
			c.deliver("OnIdentityChanged", func() { handler.OnIdentityChanged(addr) })
		}
	}
}

// onMatch routes a discovery match to the owning session. Sessions that
// were already removed simply drop the event.
func (c *Coordinator) onMatch(m matchMsg) {
	_, session, ok := c.registry.sessionByPubSubID(m.pubSubID)
	if !ok {
		c.logger.Debug("match for unknown session dropped", "pub_sub_id", m.pubSubID)
		return
	}
	c.deliver("OnMatch", func() {
		session.handler.OnMatch(m.peerID, m.peerAddr, m.serviceSpecificInfo, m.matchFilter)
	})
}

// onSessionTerminated removes the session and then notifies it. Removal
// is idempotent: a repeated termination for the same id is dropped.
func (c *Coordinator) onSessionTerminated(m sessionTerminatedMsg) {
	client, session, ok := c.registry.sessionByPubSubID(m.pubSubID)
	if !ok {
		c.logger.Debug("termination for unknown session dropped", "pub_sub_id", m.pubSubID)
		return
	}
	c.registry.removeSession(client.clientID, session.sessionID)
	reason := hal.TerminateReason(m.status)
	c.logger.Debug("session terminated",
		"client_id", client.clientID, "session_id", session.sessionID,
		"reason", reason.String())
	c.deliver("OnSessionTerminated", func() { session.handler.OnSessionTerminated(reason) })
}

// onMessageReceived routes a follow-on message to the owning session.
func (c *Coordinator) onMessageReceived(m messageReceivedMsg) {
	_, session, ok := c.registry.sessionByPubSubID(m.pubSubID)
	if !ok {
		c.logger.Debug("message for unknown session dropped", "pub_sub_id", m.pubSubID)
		return
	}
	c.deliver("OnMessageReceived", func() {
		session.handler.OnMessageReceived(m.peerID, m.peerAddr, m.message)
	})
}

// onFirmwareDown clears all live state. Clients receive no individual
// teardown beyond the usage broadcast; a command in flight resolves via
// its timeout.
func (c *Coordinator) onFirmwareDown(status hal.Status) {
	c.logger.Error("firmware down", "status", uint16(status))
	c.registry.clear()
	c.currentConfig = nil
	c.capsQueried = false
	if c.IsUsageEnabled() {
		c.setUsageEnabled(false)
		if c.usageCallback != nil {
			c.deliver("UsageCallback", func() { c.usageCallback(false) })
		}
	}
}
