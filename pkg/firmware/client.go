package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/hal"
	"github.com/aware-protocol/aware-go/pkg/log"
	"github.com/aware-protocol/aware-go/pkg/wire"
)

// DefaultConnectTimeout bounds the dial to the firmware endpoint.
const DefaultConnectTimeout = 10 * time.Second

// ClientConfig configures a firmware control-channel client.
type ClientConfig struct {
	// Logger for application logs. Defaults to slog.Default().
	Logger *slog.Logger

	// EventLogger receives protocol events (frames and decoded
	// messages). Defaults to no logging.
	EventLogger log.Logger

	// ConnectTimeout is the dial timeout (default: 10s).
	ConnectTimeout time.Duration
}

// Client is the host side of the firmware control channel. It
// implements hal.Transport: commands are written as framed CBOR and the
// responses and events read by the dispatch goroutine are delivered to
// the configured hal.Handler one at a time.
//
// Wire a client and its coordinator in either order: the handler is set
// with SetHandler before Connect.
type Client struct {
	config  ClientConfig
	logger  *slog.Logger
	elog    log.Logger
	handler hal.Handler

	// connID identifies this connection in logs (UUID).
	connID string

	mu     sync.Mutex
	conn   net.Conn
	framer *wire.Framer
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient creates a disconnected client. Call SetHandler and then
// Connect before issuing commands.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.EventLogger == nil {
		config.EventLogger = log.NoopLogger{}
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}

	connID := uuid.NewString()
	return &Client{
		config: config,
		logger: config.Logger.With("conn_id", connID),
		elog:   config.EventLogger,
		connID: connID,
		done:   make(chan struct{}),
	}
}

// SetHandler registers the callback receiver. Must be called before
// Connect and not changed afterwards.
func (c *Client) SetHandler(handler hal.Handler) {
	c.handler = handler
}

// Connect dials the firmware endpoint and starts the dispatch
// goroutine.
func (c *Client) Connect(ctx context.Context, address string) error {
	if c.handler == nil {
		return errors.New("firmware client requires a handler")
	}
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("firmware client already connected")
	}
	c.mu.Unlock()

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("dial firmware: %w", err)
	}

	framer := wire.NewFramer(conn)
	framer.SetLogger(c.elog, c.connID)

	c.mu.Lock()
	c.conn = conn
	c.framer = framer
	c.mu.Unlock()

	go c.dispatchLoop()

	c.logger.Debug("firmware channel connected", "remote", conn.RemoteAddr().String())
	return nil
}

// ConnectionID returns the UUID identifying this connection in logs.
func (c *Client) ConnectionID() string {
	return c.connID
}

// Close tears the control channel down. The dispatch goroutine delivers
// a firmware-down callback when the read loop ends.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			close(c.done)
			return
		}
		err = conn.Close()
		<-c.done
	})
	return err
}

// send encodes and writes one command frame.
func (c *Client) send(cmdType wire.CommandType, transactionID uint16, payload any) error {
	c.mu.Lock()
	framer := c.framer
	closed := c.closed
	c.mu.Unlock()
	if closed || framer == nil {
		return hal.ErrNotConnected
	}

	msg, err := wire.NewCommand(cmdType, transactionID, payload)
	if err != nil {
		return err
	}
	if err := framer.WriteMessage(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Name(), err)
	}
	c.logControl(log.DirectionOut, msg)
	return nil
}

// EnableAndConfigure implements hal.Transport.
func (c *Client) EnableAndConfigure(transactionID uint16, cfg aware.ConfigRequest, initialEnable bool) error {
	return c.send(wire.CommandEnable, transactionID, &wire.EnablePayload{
		Support5GHz:      cfg.Support5GHz,
		MasterPreference: cfg.MasterPreference,
		ClusterLow:       cfg.ClusterLow,
		ClusterHigh:      cfg.ClusterHigh,
		InitialEnable:    initialEnable,
	})
}

// Disable implements hal.Transport. Fire-and-forget.
func (c *Client) Disable(transactionID uint16) error {
	return c.send(wire.CommandDisable, transactionID, nil)
}

// Publish implements hal.Transport.
func (c *Client) Publish(transactionID uint16, cfg aware.PublishConfig) error {
	return c.send(wire.CommandPublish, transactionID, publishPayload(0, cfg))
}

// Subscribe implements hal.Transport.
func (c *Client) Subscribe(transactionID uint16, cfg aware.SubscribeConfig) error {
	return c.send(wire.CommandSubscribe, transactionID, subscribePayload(0, cfg))
}

// UpdatePublish implements hal.Transport.
func (c *Client) UpdatePublish(transactionID uint16, pubSubID uint32, cfg aware.PublishConfig) error {
	return c.send(wire.CommandUpdatePublish, transactionID, publishPayload(pubSubID, cfg))
}

// UpdateSubscribe implements hal.Transport.
func (c *Client) UpdateSubscribe(transactionID uint16, pubSubID uint32, cfg aware.SubscribeConfig) error {
	return c.send(wire.CommandUpdateSubscribe, transactionID, subscribePayload(pubSubID, cfg))
}

// SendMessage implements hal.Transport.
func (c *Client) SendMessage(transactionID uint16, pubSubID uint32, peerID uint32, peerAddr aware.Address, message []byte) error {
	return c.send(wire.CommandSendMessage, transactionID, &wire.SendMessagePayload{
		PubSubID: pubSubID,
		PeerID:   peerID,
		PeerAddr: peerAddr[:],
		Message:  message,
	})
}

// StopPublish implements hal.Transport. Fire-and-forget.
func (c *Client) StopPublish(transactionID uint16, pubSubID uint32) error {
	return c.send(wire.CommandStopPublish, transactionID, &wire.StopSessionPayload{PubSubID: pubSubID})
}

// StopSubscribe implements hal.Transport. Fire-and-forget.
func (c *Client) StopSubscribe(transactionID uint16, pubSubID uint32) error {
	return c.send(wire.CommandStopSubscribe, transactionID, &wire.StopSessionPayload{PubSubID: pubSubID})
}

// QueryCapabilities implements hal.Transport. The response is delivered
// as the capabilities-updated callback.
func (c *Client) QueryCapabilities(transactionID uint16) error {
	return c.send(wire.CommandQueryCapabilities, transactionID, nil)
}

var _ hal.Transport = (*Client)(nil)

// dispatchLoop reads frames and delivers callbacks one at a time.
func (c *Client) dispatchLoop() {
	defer close(c.done)
	for {
		msg, err := c.framer.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed && !errors.Is(err, io.EOF) {
				c.logger.Error("control channel read failed", "error", err)
			}
			// The channel is gone either way; all firmware state with it.
			c.handler.OnFirmwareDown(hal.StatusEngineFailure)
			return
		}
		c.logControl(log.DirectionIn, msg)
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg *wire.Message) {
	switch msg.Kind {
	case wire.KindResponse:
		c.dispatchResponse(msg)
	case wire.KindEvent:
		c.dispatchEvent(msg)
	default:
		c.logger.Warn("unexpected message kind dropped", "message", msg.Name())
	}
}

func (c *Client) dispatchResponse(msg *wire.Message) {
	switch wire.ResponseType(msg.Type) {
	case wire.ResponseConfig:
		var p wire.StatusPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		if hal.Status(p.Status) == hal.StatusSuccess {
			c.handler.OnConfigSuccess(msg.TransactionID)
		} else {
			c.handler.OnConfigFailure(msg.TransactionID, hal.Status(p.Status))
		}

	case wire.ResponseSessionConfig:
		var p wire.SessionConfigResponsePayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		if hal.Status(p.Status) == hal.StatusSuccess {
			c.handler.OnSessionConfigSuccess(msg.TransactionID, p.IsPublish, p.PubSubID)
		} else {
			c.handler.OnSessionConfigFailure(msg.TransactionID, p.IsPublish, hal.Status(p.Status))
		}

	case wire.ResponseMessageSend:
		var p wire.StatusPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		if hal.Status(p.Status) == hal.StatusSuccess {
			c.handler.OnMessageSendSuccess(msg.TransactionID)
		} else {
			c.handler.OnMessageSendFailure(msg.TransactionID, hal.Status(p.Status))
		}

	case wire.ResponseCapabilities:
		var p wire.CapabilitiesPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnCapabilitiesUpdated(capabilitiesFromWire(p))

	default:
		c.logger.Warn("unknown response type dropped", "message", msg.Name())
	}
}

func (c *Client) dispatchEvent(msg *wire.Message) {
	switch wire.EventType(msg.Type) {
	case wire.EventMatch:
		var p wire.MatchEventPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnMatch(p.PubSubID, p.PeerID, addressFromBytes(p.PeerAddr),
			p.ServiceSpecificInfo, p.MatchFilter)

	case wire.EventMessageReceived:
		var p wire.MessageEventPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnMessageReceived(p.PubSubID, p.PeerID, addressFromBytes(p.PeerAddr), p.Message)

	case wire.EventSessionTerminated:
		var p wire.TerminatedEventPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnSessionTerminated(p.PubSubID, p.IsPublish, hal.Status(p.Status))

	case wire.EventClusterChanged:
		var p wire.ClusterEventPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnClusterChanged(hal.ClusterEvent(p.Event),
			addressFromBytes(p.ClusterID), addressFromBytes(p.Addr))

	case wire.EventAddressChanged:
		var p wire.AddressEventPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnInterfaceAddressChanged(addressFromBytes(p.Addr))

	case wire.EventFirmwareDown:
		var p wire.StatusPayload
		if err := msg.DecodePayload(&p); err != nil {
			c.logDecodeError(msg, err)
			return
		}
		c.handler.OnFirmwareDown(hal.Status(p.Status))

	default:
		c.logger.Warn("unknown event type dropped", "message", msg.Name())
	}
}

func (c *Client) logControl(direction log.Direction, msg *wire.Message) {
	c.elog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    direction,
		Layer:        log.LayerControl,
		Category:     log.CategoryMessage,
		Control: &log.ControlEvent{
			MessageKind:   msg.Name(),
			TransactionID: msg.TransactionID,
		},
	})
}

func (c *Client) logDecodeError(msg *wire.Message, err error) {
	c.logger.Error("payload decode failed", "message", msg.Name(), "error", err)
	c.elog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.connID,
		Direction:    log.DirectionIn,
		Layer:        log.LayerControl,
		Category:     log.CategoryError,
		Error: &log.ErrorEvent{
			Message: err.Error(),
			Context: msg.Name(),
		},
	})
}

func publishPayload(pubSubID uint32, cfg aware.PublishConfig) *wire.SessionPayload {
	return &wire.SessionPayload{
		PubSubID:            pubSubID,
		ServiceName:         cfg.ServiceName,
		ServiceSpecificInfo: cfg.ServiceSpecificInfo,
		MatchFilter:         cfg.MatchFilter,
		SessionType:         uint8(cfg.Type),
		Count:               cfg.Count,
		TTLSec:              cfg.TTLSec,
	}
}

func subscribePayload(pubSubID uint32, cfg aware.SubscribeConfig) *wire.SessionPayload {
	return &wire.SessionPayload{
		PubSubID:            pubSubID,
		ServiceName:         cfg.ServiceName,
		ServiceSpecificInfo: cfg.ServiceSpecificInfo,
		MatchFilter:         cfg.MatchFilter,
		SessionType:         uint8(cfg.Type),
		Count:               cfg.Count,
		TTLSec:              cfg.TTLSec,
	}
}

func addressFromBytes(b []byte) aware.Address {
	var addr aware.Address
	copy(addr[:], b)
	return addr
}

func capabilitiesFromWire(p wire.CapabilitiesPayload) aware.Capabilities {
	return aware.Capabilities{
		MaxConcurrentClusters:   int(p.MaxConcurrentClusters),
		MaxPublishes:            int(p.MaxPublishes),
		MaxSubscribes:           int(p.MaxSubscribes),
		MaxServiceNameLen:       int(p.MaxServiceNameLen),
		MaxMatchFilterLen:       int(p.MaxMatchFilterLen),
		MaxTotalMatchFilterLen:  int(p.MaxTotalMatchFilterLen),
		MaxServiceSpecificLen:   int(p.MaxServiceSpecificLen),
		MaxVendorSpecificLen:    int(p.MaxVendorSpecificLen),
		MaxQueuedTransmitFrames: int(p.MaxQueuedTransmitFrames),
	}
}
