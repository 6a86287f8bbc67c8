// Package interactive provides the interactive command-line interface
// for the awared coordinator daemon.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/coordinator"
)

// Config provides configuration information to the console. This
// interface keeps the interactive layer independent of the main
// package's config structure.
type Config interface {
	// DefaultConfigRequest returns the radio configuration used for
	// connect commands.
	DefaultConfigRequest() aware.ConfigRequest
}

// Console handles interactive mode for awared.
type Console struct {
	coord  *coordinator.Coordinator
	config Config
	rl     *readline.Instance

	mu        sync.Mutex
	sessions  map[int]map[int]*sessionView // clientID -> sessionID -> view
	messageID int
}

// sessionView tracks what the console knows about one session: its
// service name and the peers discovered on it, so send commands can
// resolve a peer id to an address.
type sessionView struct {
	serviceName string
	isPublish   bool
	peers       map[uint32]aware.Address
}

// New creates a new interactive console.
func New(coord *coordinator.Coordinator, cfg Config) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "aware> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Console{
		coord:    coord,
		config:   cfg,
		rl:       rl,
		sessions: make(map[int]map[int]*sessionView),
	}, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

// Run starts the interactive command loop.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			c.printHelp()

		case "connect":
			c.cmdConnect(args)

		case "disconnect":
			c.cmdDisconnect(args)

		case "publish", "pub":
			c.cmdSession(args, true)

		case "subscribe", "sub":
			c.cmdSession(args, false)

		case "update":
			c.cmdUpdate(args)

		case "send":
			c.cmdSend(args)

		case "terminate", "stop":
			c.cmdTerminate(args)

		case "usage":
			c.cmdUsage(args)

		case "status":
			c.cmdStatus()

		case "quit", "exit", "q":
			fmt.Fprintln(c.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(c.rl.Stdout(),
				"Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.rl.Stdout(), `
Aware Coordinator Commands:
  Clients:
    connect [client-id]                  - Register a client (default id 1)
    disconnect [client-id]               - Remove a client

  Discovery Sessions:
    publish <client> <service> [info]    - Start a publish session
    subscribe <client> <service> [info]  - Start a subscribe session
    update <client> <session> <info>     - Update a session's payload
    terminate <client> <session>         - Stop a session
    send <client> <session> <peer> <txt> - Message a discovered peer

  General:
    usage on|off                         - Enable/disable NAN usage
    status                               - Show coordinator status
    help                                 - Show this help
    quit                                 - Exit`)
}

func (c *Console) cmdConnect(args []string) {
	clientID := 1
	if len(args) > 0 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Bad client id: %s\n", args[0])
			return
		}
		clientID = id
	}

	handler := &eventPrinter{out: c.rl.Stdout(), clientID: clientID}
	if err := c.coord.Connect(clientID, c.config.DefaultConfigRequest(), handler); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Connect error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Connecting client %d...\n", clientID)
}

func (c *Console) cmdDisconnect(args []string) {
	clientID := 1
	if len(args) > 0 {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(c.rl.Stdout(), "Bad client id: %s\n", args[0])
			return
		}
		clientID = id
	}

	if err := c.coord.Disconnect(clientID); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Disconnect error: %v\n", err)
		return
	}
	c.mu.Lock()
	delete(c.sessions, clientID)
	c.mu.Unlock()
	fmt.Fprintf(c.rl.Stdout(), "Disconnected client %d\n", clientID)
}

func (c *Console) cmdSession(args []string, isPublish bool) {
	kind := "publish"
	if !isPublish {
		kind = "subscribe"
	}
	if len(args) < 2 {
		fmt.Fprintf(c.rl.Stdout(), "Usage: %s <client-id> <service-name> [info]\n", kind)
		return
	}
	clientID, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad client id: %s\n", args[0])
		return
	}
	serviceName := args[1]
	var info []byte
	if len(args) > 2 {
		info = []byte(strings.Join(args[2:], " "))
	}

	handler := &sessionPrinter{
		console:     c,
		out:         c.rl.Stdout(),
		clientID:    clientID,
		serviceName: serviceName,
		isPublish:   isPublish,
	}

	if isPublish {
		err = c.coord.Publish(clientID, aware.PublishConfig{
			ServiceName:         serviceName,
			ServiceSpecificInfo: info,
		}, handler)
	} else {
		err = c.coord.Subscribe(clientID, aware.SubscribeConfig{
			ServiceName:         serviceName,
			ServiceSpecificInfo: info,
		}, handler)
	}
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "%s error: %v\n", kind, err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Starting %s of %q for client %d...\n",
		kind, serviceName, clientID)
}

func (c *Console) cmdUpdate(args []string) {
	if len(args) < 3 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: update <client-id> <session-id> <info>")
		return
	}
	clientID, sessionID, ok := c.parseSessionArgs(args)
	if !ok {
		return
	}
	view := c.sessionView(clientID, sessionID)
	if view == nil {
		fmt.Fprintf(c.rl.Stdout(), "Unknown session %d/%d\n", clientID, sessionID)
		return
	}
	info := []byte(strings.Join(args[2:], " "))

	var err error
	if view.isPublish {
		err = c.coord.UpdatePublish(clientID, sessionID, aware.PublishConfig{
			ServiceName:         view.serviceName,
			ServiceSpecificInfo: info,
		})
	} else {
		err = c.coord.UpdateSubscribe(clientID, sessionID, aware.SubscribeConfig{
			ServiceName:         view.serviceName,
			ServiceSpecificInfo: info,
		})
	}
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Update error: %v\n", err)
	}
}

func (c *Console) cmdSend(args []string) {
	if len(args) < 4 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: send <client-id> <session-id> <peer-id> <text>")
		return
	}
	clientID, sessionID, ok := c.parseSessionArgs(args)
	if !ok {
		return
	}
	peer, err := strconv.ParseUint(args[2], 10, 32)
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad peer id: %s\n", args[2])
		return
	}
	peerID := uint32(peer)

	view := c.sessionView(clientID, sessionID)
	if view == nil {
		fmt.Fprintf(c.rl.Stdout(), "Unknown session %d/%d\n", clientID, sessionID)
		return
	}
	addr, ok := view.peers[peerID]
	if !ok {
		fmt.Fprintf(c.rl.Stdout(), "Peer %d not discovered on session %d\n", peerID, sessionID)
		return
	}

	c.mu.Lock()
	c.messageID++
	messageID := c.messageID
	c.mu.Unlock()

	message := []byte(strings.Join(args[3:], " "))
	if err := c.coord.SendMessage(clientID, sessionID, peerID, addr, message, messageID); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Send error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Sending message %d to peer %d...\n", messageID, peerID)
}

func (c *Console) cmdTerminate(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: terminate <client-id> <session-id>")
		return
	}
	clientID, sessionID, ok := c.parseSessionArgs(args)
	if !ok {
		return
	}
	if err := c.coord.TerminateSession(clientID, sessionID); err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Terminate error: %v\n", err)
		return
	}
	fmt.Fprintf(c.rl.Stdout(), "Terminating session %d/%d...\n", clientID, sessionID)
}

func (c *Console) cmdUsage(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.rl.Stdout(), "Usage: usage on|off")
		return
	}
	var err error
	switch strings.ToLower(args[0]) {
	case "on":
		err = c.coord.EnableUsage()
	case "off":
		err = c.coord.DisableUsage()
	default:
		fmt.Fprintln(c.rl.Stdout(), "Usage: usage on|off")
		return
	}
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Usage error: %v\n", err)
	}
}

func (c *Console) cmdStatus() {
	out := c.rl.Stdout()
	fmt.Fprintf(out, "Usage enabled: %v\n", c.coord.IsUsageEnabled())

	if caps, ok := c.coord.Capabilities(); ok {
		fmt.Fprintf(out, "Capabilities: %d publishes, %d subscribes, service names up to %d bytes\n",
			caps.MaxPublishes, caps.MaxSubscribes, caps.MaxServiceNameLen)
	} else {
		fmt.Fprintln(out, "Capabilities: not yet reported")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sessions) == 0 {
		fmt.Fprintln(out, "No live sessions")
		return
	}
	for clientID, sessions := range c.sessions {
		for sessionID, view := range sessions {
			kind := "publish"
			if !view.isPublish {
				kind = "subscribe"
			}
			fmt.Fprintf(out, "  client %d session %d: %s %q, %d peer(s)\n",
				clientID, sessionID, kind, view.serviceName, len(view.peers))
		}
	}
}

func (c *Console) parseSessionArgs(args []string) (clientID, sessionID int, ok bool) {
	clientID, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad client id: %s\n", args[0])
		return 0, 0, false
	}
	sessionID, err = strconv.Atoi(args[1])
	if err != nil {
		fmt.Fprintf(c.rl.Stdout(), "Bad session id: %s\n", args[1])
		return 0, 0, false
	}
	return clientID, sessionID, true
}

func (c *Console) addSession(clientID, sessionID int, view *sessionView) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessions[clientID] == nil {
		c.sessions[clientID] = make(map[int]*sessionView)
	}
	c.sessions[clientID][sessionID] = view
}

func (c *Console) removeSession(clientID, sessionID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions[clientID], sessionID)
}

func (c *Console) sessionView(clientID, sessionID int) *sessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[clientID][sessionID]
}

func (c *Console) addPeer(clientID, sessionID int, peerID uint32, addr aware.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if view := c.sessions[clientID][sessionID]; view != nil {
		view.peers[peerID] = addr
	}
}

// eventPrinter prints client-wide events to the console.
type eventPrinter struct {
	out      io.Writer
	clientID int
}

func (p *eventPrinter) OnConnectSuccess() {
	fmt.Fprintf(p.out, "[client %d] connected\n", p.clientID)
}

func (p *eventPrinter) OnConnectFail(reason aware.Reason) {
	fmt.Fprintf(p.out, "[client %d] connect failed: %s\n", p.clientID, reason)
}

func (p *eventPrinter) OnIdentityChanged(addr aware.Address) {
	fmt.Fprintf(p.out, "[client %d] identity changed: %s\n", p.clientID, addr)
}

// sessionPrinter prints session events and keeps the console's session
// view current.
type sessionPrinter struct {
	console     *Console
	out         io.Writer
	clientID    int
	serviceName string
	isPublish   bool

	sessionID int
}

func (p *sessionPrinter) OnSessionStarted(sessionID int) {
	p.sessionID = sessionID
	p.console.addSession(p.clientID, sessionID, &sessionView{
		serviceName: p.serviceName,
		isPublish:   p.isPublish,
		peers:       make(map[uint32]aware.Address),
	})
	fmt.Fprintf(p.out, "[client %d] session %d started (%s %q)\n",
		p.clientID, sessionID, p.kind(), p.serviceName)
}

func (p *sessionPrinter) OnSessionConfigSuccess() {
	fmt.Fprintf(p.out, "[client %d] session %d updated\n", p.clientID, p.sessionID)
}

func (p *sessionPrinter) OnSessionConfigFail(reason aware.Reason) {
	fmt.Fprintf(p.out, "[client %d] %s %q failed: %s\n",
		p.clientID, p.kind(), p.serviceName, reason)
}

func (p *sessionPrinter) OnSessionTerminated(reason aware.TerminateReason) {
	p.console.removeSession(p.clientID, p.sessionID)
	fmt.Fprintf(p.out, "[client %d] session %d terminated: %s\n",
		p.clientID, p.sessionID, reason)
}

func (p *sessionPrinter) OnMatch(peerID uint32, peerAddr aware.Address, serviceSpecificInfo, matchFilter []byte) {
	p.console.addPeer(p.clientID, p.sessionID, peerID, peerAddr)
	fmt.Fprintf(p.out, "[client %d] session %d matched peer %d at %s: %q\n",
		p.clientID, p.sessionID, peerID, peerAddr, serviceSpecificInfo)
}

func (p *sessionPrinter) OnMessageReceived(peerID uint32, peerAddr aware.Address, message []byte) {
	p.console.addPeer(p.clientID, p.sessionID, peerID, peerAddr)
	fmt.Fprintf(p.out, "[client %d] session %d message from peer %d: %q\n",
		p.clientID, p.sessionID, peerID, message)
}

func (p *sessionPrinter) OnMessageSendSuccess(messageID int) {
	fmt.Fprintf(p.out, "[client %d] message %d delivered\n", p.clientID, messageID)
}

func (p *sessionPrinter) OnMessageSendFail(messageID int, reason aware.Reason) {
	fmt.Fprintf(p.out, "[client %d] message %d failed: %s\n",
		p.clientID, messageID, reason)
}

func (p *sessionPrinter) kind() string {
	if p.isPublish {
		return "publish"
	}
	return "subscribe"
}
