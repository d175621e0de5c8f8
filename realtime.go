package gramsetu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the realtime broker connection.
type RealtimeConfig struct {
	Token             string
	AutoReconnect     bool
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
	HTTPClient        *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 4 * time.Second
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// ConnectionState represents the realtime connection state.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
)

// ============================================================================
// Event Dispatcher
// ============================================================================

type socketDispatcher struct {
	mu             sync.RWMutex
	onChatMessage  []func(ChatMessage)
	onNotification []func(Notification)
	onConnected    []func()
	onDisconnected []func(reason string)
}

func (d *socketDispatcher) dispatchMessage(m ChatMessage) {
	d.mu.RLock()
	handlers := append([]func(ChatMessage){}, d.onChatMessage...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(m)
	}
}

func (d *socketDispatcher) dispatchNotification(n Notification) {
	d.mu.RLock()
	handlers := append([]func(Notification){}, d.onNotification...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(n)
	}
}

func (d *socketDispatcher) emitConnected() {
	d.mu.RLock()
	handlers := append([]func(){}, d.onConnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h()
	}
}

func (d *socketDispatcher) emitDisconnected(reason string) {
	d.mu.RLock()
	handlers := append([]func(string){}, d.onDisconnected...)
	d.mu.RUnlock()
	for _, h := range handlers {
		h(reason)
	}
}

// ============================================================================
// ChatSocket
// ============================================================================

// ChatSocket owns the single live broker connection: dialing, the fixed-delay
// reconnect loop, heartbeats, subscription setup, and inbound frame decoding.
// All other components observe it through handlers and State; none of them
// mutate connection state.
type ChatSocket struct {
	baseURL string
	config  *RealtimeConfig
	log     *zap.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	state            ConnectionState
	userID           string
	intentionalClose bool
	cancelFn         context.CancelFunc
	subscriptions    map[string]bool

	dispatcher *socketDispatcher
}

func newChatSocket(baseURL string, cfg *RealtimeConfig, log *zap.Logger) *ChatSocket {
	return &ChatSocket{
		baseURL:       baseURL,
		config:        cfg,
		log:           log,
		state:         StateDisconnected,
		subscriptions: make(map[string]bool),
		dispatcher:    &socketDispatcher{},
	}
}

// OnChatMessage registers a handler for inbound chat messages.
func (s *ChatSocket) OnChatMessage(h func(ChatMessage)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onChatMessage = append(s.dispatcher.onChatMessage, h)
	s.dispatcher.mu.Unlock()
}

// OnNotification registers a handler for inbound notifications.
func (s *ChatSocket) OnNotification(h func(Notification)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onNotification = append(s.dispatcher.onNotification, h)
	s.dispatcher.mu.Unlock()
}

// OnConnected registers a handler for the connected meta-event.
func (s *ChatSocket) OnConnected(h func()) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onConnected = append(s.dispatcher.onConnected, h)
	s.dispatcher.mu.Unlock()
}

// OnDisconnected registers a handler for the disconnected meta-event.
func (s *ChatSocket) OnDisconnected(h func(reason string)) {
	s.dispatcher.mu.Lock()
	s.dispatcher.onDisconnected = append(s.dispatcher.onDisconnected, h)
	s.dispatcher.mu.Unlock()
}

// State returns the current connection state.
func (s *ChatSocket) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials the broker for the given user. Calling Connect while already
// connected for the same user is a no-op; connecting as a different user
// tears the old connection down first.
//
// The bearer token travels as a connect-time Authorization header. The
// transition to connected happens only on the server's acknowledgment frame.
func (s *ChatSocket) Connect(ctx context.Context, userID string) error {
	s.mu.Lock()
	if s.state == StateConnected && s.userID == userID {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateConnecting {
		s.mu.Unlock()
		return nil
	}
	if s.state == StateConnected {
		s.mu.Unlock()
		s.Disconnect()
		s.mu.Lock()
	}
	s.state = StateConnecting
	s.userID = userID
	s.intentionalClose = false
	s.mu.Unlock()

	header := http.Header{}
	if s.config.Token != "" {
		header.Set("Authorization", "Bearer "+s.config.Token)
	}

	conn, _, err := websocket.Dial(ctx, s.baseURL, &websocket.DialOptions{
		HTTPClient: s.config.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("websocket dial: %w", err)
	}

	// The broker acknowledges the session before any deliveries.
	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusNormalClosure, "")
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("read connect ack: %w", err)
	}
	var ack Frame
	if err := json.Unmarshal(data, &ack); err != nil || ack.Type != frameConnected {
		conn.Close(websocket.StatusNormalClosure, "")
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()
		return fmt.Errorf("expected %q frame, got %q", frameConnected, ack.Type)
	}

	s.mu.Lock()
	s.conn = conn
	s.state = StateConnected
	s.mu.Unlock()

	if err := s.setupSubscriptions(ctx); err != nil {
		s.log.Warn("subscription setup failed", zap.Error(err))
	}

	s.dispatcher.emitConnected()
	s.log.Info("realtime connected", zap.String("userId", userID))

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.readLoop(connCtx)
	go s.heartbeatLoop(connCtx)

	return nil
}

// Disconnect tears the transport down. The state is disconnected afterwards
// regardless of what it was before.
func (s *ChatSocket) Disconnect() error {
	s.mu.Lock()
	s.intentionalClose = true
	if s.cancelFn != nil {
		s.cancelFn()
		s.cancelFn = nil
	}
	conn := s.conn
	s.conn = nil
	s.state = StateDisconnected
	s.mu.Unlock()

	s.dispatcher.emitDisconnected("client disconnect")

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	return nil
}

// SendMessage publishes a chat message to the send destination. When the
// socket is not connected the message is logged and dropped; delivery is
// never confirmed beyond transport-level acceptance, so callers keep their
// optimistic copy either way.
func (s *ChatSocket) SendMessage(ctx context.Context, msg ChatMessage) {
	payload := outboundMessage{
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Content:    msg.Content,
		Timestamp:  msg.Timestamp,
		Token:      s.config.Token,
		ClientID:   msg.ClientID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("failed to encode outbound message", zap.Error(err))
		return
	}
	if err := s.writeFrame(ctx, Frame{
		Type:        frameSend,
		Destination: DestinationSend,
		Payload:     body,
	}); err != nil {
		s.log.Warn("send dropped: not connected",
			zap.String("receiverId", msg.ReceiverID), zap.Error(err))
	}
}

// Subscribe adds a broker destination. Subscribing twice to the same
// destination is a no-op. Subscriptions survive reconnects: they are
// replayed during subscription setup on every successful connect.
func (s *ChatSocket) Subscribe(ctx context.Context, destination string) {
	s.mu.Lock()
	if s.subscriptions[destination] {
		s.mu.Unlock()
		return
	}
	s.subscriptions[destination] = true
	connected := s.state == StateConnected
	s.mu.Unlock()

	if connected {
		if err := s.writeFrame(ctx, Frame{Type: frameSubscribe, Destination: destination}); err != nil {
			s.log.Warn("subscribe frame dropped", zap.String("destination", destination), zap.Error(err))
		}
	}
}

// Unsubscribe removes local bookkeeping for a destination. The broker
// contract has no targeted unsubscribe primitive, so the underlying stream
// keeps flowing until the connection drops; the destination is simply not
// replayed on the next connect.
func (s *ChatSocket) Unsubscribe(destination string) {
	s.mu.Lock()
	delete(s.subscriptions, destination)
	s.mu.Unlock()
}

// setupSubscriptions replays the personal queues plus every tracked
// destination after a successful connect.
func (s *ChatSocket) setupSubscriptions(ctx context.Context) error {
	s.mu.Lock()
	s.subscriptions[DestinationMessages] = true
	s.subscriptions[DestinationPersonalNotifications] = true
	s.subscriptions[DestinationBroadcast] = true
	dests := make([]string, 0, len(s.subscriptions))
	for d := range s.subscriptions {
		dests = append(dests, d)
	}
	s.mu.Unlock()

	for _, d := range dests {
		if err := s.writeFrame(ctx, Frame{Type: frameSubscribe, Destination: d}); err != nil {
			return err
		}
	}
	return nil
}

func (s *ChatSocket) writeFrame(ctx context.Context, f Frame) error {
	s.mu.Lock()
	conn := s.conn
	state := s.state
	s.mu.Unlock()

	if conn == nil || state != StateConnected {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (s *ChatSocket) readLoop(ctx context.Context) {
	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			s.mu.Lock()
			intentional := s.intentionalClose
			s.mu.Unlock()
			if intentional {
				return
			}

			s.mu.Lock()
			s.state = StateDisconnected
			s.conn = nil
			// Tear down the per-connection context so the heartbeat
			// goroutine stops with the session it belongs to.
			if s.cancelFn != nil {
				s.cancelFn()
				s.cancelFn = nil
			}
			s.mu.Unlock()

			s.log.Warn("realtime connection lost", zap.Error(err))
			s.dispatcher.emitDisconnected(err.Error())

			if s.config.AutoReconnect {
				go s.reconnectLoop()
			}
			return
		}

		s.handleFrame(data)
	}
}

// handleFrame decodes and routes one inbound frame. Malformed frames are
// logged and dropped; they never reach typed handlers.
func (s *ChatSocket) handleFrame(data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		s.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch {
	case f.Type == frameMessage || f.Destination == DestinationMessages:
		var m ChatMessage
		if err := json.Unmarshal(f.Payload, &m); err != nil || m.SenderID == "" {
			s.log.Warn("dropping malformed chat message", zap.Error(err))
			return
		}
		s.dispatcher.dispatchMessage(m)

	case f.Type == frameNotification || isNotificationDestination(f.Destination):
		var n Notification
		if err := json.Unmarshal(f.Payload, &n); err != nil || n.ID == "" {
			s.log.Warn("dropping malformed notification", zap.Error(err))
			return
		}
		s.dispatcher.dispatchNotification(n)

	case f.Type == frameConnected:
		// Duplicate ack after resubscription; nothing to do.

	default:
		s.log.Debug("dropping unclassified frame",
			zap.String("type", f.Type), zap.String("destination", f.Destination))
	}
}

func isNotificationDestination(dest string) bool {
	return dest == DestinationPersonalNotifications ||
		dest == DestinationBroadcast ||
		strings.HasPrefix(dest, "/topic/notifications/entity/")
}

// heartbeatLoop sends a ping on a fixed cadence. A failed ping force-closes
// the connection; the read loop then observes the error and drives reconnect.
func (s *ChatSocket) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			state := s.state
			s.mu.Unlock()
			if conn == nil || state != StateConnected {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, s.config.HeartbeatInterval)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.Warn("heartbeat failed, closing connection", zap.Error(err))
				conn.Close(websocket.StatusGoingAway, "heartbeat timeout")
				return
			}
		}
	}
}

// reconnectLoop retries at a fixed delay until a dial succeeds or the
// socket is closed deliberately. There is no backoff.
func (s *ChatSocket) reconnectLoop() {
	for {
		time.Sleep(s.config.ReconnectDelay)

		s.mu.Lock()
		if s.intentionalClose {
			s.mu.Unlock()
			return
		}
		userID := s.userID
		s.mu.Unlock()

		err := s.Connect(context.Background(), userID)
		if err == nil {
			return
		}
		s.log.Warn("reconnect attempt failed", zap.Error(err))
	}
}
