package gramsetu

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EchoWindow is how long after a send an identical inbound message from the
// local user is treated as a broker echo and suppressed.
const EchoWindow = 5000 * time.Millisecond

// echoGuard is the one-shot suppression window armed by each send. It is
// cleared after a single suppression, so a burst of identical sends inside
// the window only has its first echo suppressed.
type echoGuard struct {
	content string
	sentAt  time.Time
	armed   bool
}

// ChatSession reconciles locally-optimistic message state against
// broker-delivered events for one authenticated user. It owns the visible
// transcript of the active conversation and the active-peer cursor; messages
// for any other peer only touch the unread tracker.
//
// A session is constructed once per login and torn down at logout. It is
// safe for use from the socket's dispatch goroutine and the caller
// concurrently.
type ChatSession struct {
	mu         sync.Mutex
	userID     string
	activePeer string
	transcript []ChatMessage
	echo       echoGuard

	unread *UnreadTracker
	socket *ChatSocket
	log    *zap.Logger
	now    func() time.Time
}

// NewChatSession creates a session for userID. The socket may be nil for a
// session that only reconciles (e.g. history-only views); Send then keeps
// its optimistic behavior but nothing reaches the wire.
func NewChatSession(userID string, socket *ChatSocket, unread *UnreadTracker, log *zap.Logger) *ChatSession {
	if log == nil {
		log = zap.NewNop()
	}
	s := &ChatSession{
		userID: userID,
		unread: unread,
		socket: socket,
		log:    log,
		now:    time.Now,
	}
	if socket != nil {
		socket.OnChatMessage(func(m ChatMessage) { s.HandleInbound(m) })
	}
	return s
}

// SetActive records peerID as the active conversation partner. Only messages
// belonging to the pair (me, peer) in either direction render live.
func (s *ChatSession) SetActive(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activePeer != peerID {
		s.activePeer = peerID
		s.transcript = nil
	}
}

// ClearActive drops the active partner; every subsequent inbound message is
// routed to the unread tracker only.
func (s *ChatSession) ClearActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activePeer = ""
	s.transcript = nil
}

// ActivePeer returns the current active partner, or "" when none.
func (s *ChatSession) ActivePeer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activePeer
}

// Transcript returns a copy of the visible transcript in arrival order.
func (s *ChatSession) Transcript() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// LoadHistory replaces the transcript wholesale with a fetched history.
// Live arrivals append incrementally afterwards.
func (s *ChatSession) LoadHistory(msgs []ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = make([]ChatMessage, len(msgs))
	copy(s.transcript, msgs)
}

// OpenConversation makes peerID the active partner, fetches the transcript
// from the history API, resets the peer's unread count, and issues the
// server-side read receipt. A failed fetch logs and leaves the transcript
// empty; reselecting the conversation retries.
func (s *ChatSession) OpenConversation(ctx context.Context, client *Client, peerID string) error {
	s.SetActive(peerID)
	s.LoadHistory(nil)
	if s.unread != nil {
		s.unread.Reset(peerID)
	}

	history, err := client.Chat().Messages.History(ctx, s.userID, peerID)
	if err != nil {
		s.log.Warn("history fetch failed", zap.String("peerId", peerID), zap.Error(err))
		return err
	}
	s.LoadHistory(history)

	if err := client.Chat().Messages.MarkRead(ctx, peerID); err != nil {
		s.log.Warn("mark-read failed", zap.String("peerId", peerID), zap.Error(err))
	}
	return nil
}

// Send appends an optimistic local copy, arms the echo-suppression window,
// and hands the message to the socket. The returned message carries a local
// correlation id; the server id only exists once the broker echo or a later
// history fetch replaces the transcript.
func (s *ChatSession) Send(ctx context.Context, receiverID, content string) ChatMessage {
	now := s.now()
	msg := ChatMessage{
		ClientID:   uuid.NewString(),
		SenderID:   s.userID,
		ReceiverID: receiverID,
		Content:    content,
		Timestamp:  now.UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.echo = echoGuard{content: content, sentAt: now, armed: true}
	if s.matchesActiveLocked(msg) {
		s.transcript = append(s.transcript, msg)
	}
	s.mu.Unlock()

	if s.socket != nil {
		s.socket.SendMessage(ctx, msg)
	}
	return msg
}

// HandleInbound classifies one delivered message: broker echoes of the last
// send are dropped once, messages for the active pair append to the
// transcript, everything else increments the sender's unread count.
// It reports whether the message was appended to the visible transcript.
func (s *ChatSession) HandleInbound(m ChatMessage) bool {
	s.mu.Lock()

	if m.SenderID == s.userID && s.echo.armed &&
		m.Content == s.echo.content && s.now().Sub(s.echo.sentAt) < EchoWindow {
		s.echo.armed = false
		s.mu.Unlock()
		return false
	}

	if s.matchesActiveLocked(m) {
		s.transcript = append(s.transcript, m)
		s.mu.Unlock()
		return true
	}
	s.mu.Unlock()

	if m.SenderID != s.userID && s.unread != nil {
		s.unread.Increment(m.SenderID)
	}
	return false
}

// matchesActiveLocked reports whether m belongs to the active conversation
// pair in either direction. Callers hold s.mu.
func (s *ChatSession) matchesActiveLocked(m ChatMessage) bool {
	if s.activePeer == "" {
		return false
	}
	return (m.SenderID == s.activePeer && m.ReceiverID == s.userID) ||
		(m.SenderID == s.userID && m.ReceiverID == s.activePeer)
}
