package gramsetu

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MaxFeedSize is the bounded length of the in-memory notification buffer.
// The oldest entries are evicted first once the cap is reached.
const MaxFeedSize = 50

// AlertDismissAfter is how long an OS-level alert stays up before
// auto-dismissing. Urgent notifications are exempt and stay until acted on.
const AlertDismissAfter = 5 * time.Second

// AlertFunc displays an OS-level notification. dismissAfter is zero when the
// alert must not auto-dismiss.
type AlertFunc func(n Notification, dismissAfter time.Duration)

// NotificationFeed is the live notification buffer: the personal queue and
// the broadcast/entity topics all funnel into Ingest. Entries are
// deduplicated by id, newest first, capped at MaxFeedSize.
type NotificationFeed struct {
	mu       sync.Mutex
	items    []Notification
	unread   int
	entities map[string]bool

	socket *ChatSocket
	alert  AlertFunc
	log    *zap.Logger
}

// NewNotificationFeed creates a feed wired to the given socket. Socket and
// alert may both be nil; the feed then only tracks state fed to it directly.
func NewNotificationFeed(socket *ChatSocket, alert AlertFunc, log *zap.Logger) *NotificationFeed {
	if log == nil {
		log = zap.NewNop()
	}
	f := &NotificationFeed{
		entities: make(map[string]bool),
		socket:   socket,
		alert:    alert,
		log:      log,
	}
	if socket != nil {
		socket.OnNotification(func(n Notification) { f.Ingest(n) })
	}
	return f
}

// Ingest adds or updates one notification. An id already in the buffer is
// replaced in place — its position is preserved and the update never counts
// as a new arrival for the unread total. New entries prepend; the tail is
// evicted past MaxFeedSize.
func (f *NotificationFeed) Ingest(n Notification) {
	if n.ID == "" {
		f.log.Warn("dropping notification without id")
		return
	}

	f.mu.Lock()
	for i := range f.items {
		if f.items[i].ID == n.ID {
			f.items[i] = n
			f.mu.Unlock()
			return
		}
	}

	f.items = append([]Notification{n}, f.items...)
	if !n.IsRead {
		f.unread++
	}
	if len(f.items) > MaxFeedSize {
		f.items = f.items[:MaxFeedSize]
	}
	alert := f.alert
	f.mu.Unlock()

	if alert != nil && (n.Priority == PriorityHigh || n.Priority == PriorityUrgent) {
		dismiss := AlertDismissAfter
		if n.Priority == PriorityUrgent {
			dismiss = 0
		}
		alert(n, dismiss)
	}
}

// MarkAsRead flips one notification to read and decrements the unread
// count, floored at zero. Already-read ids and unknown ids are no-ops.
func (f *NotificationFeed) MarkAsRead(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == id {
			if !f.items[i].IsRead {
				f.items[i].IsRead = true
				if f.unread > 0 {
					f.unread--
				}
			}
			return
		}
	}
}

// ClearAll empties the buffer and resets the unread count.
func (f *NotificationFeed) ClearAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
	f.unread = 0
}

// UnreadCount returns the current unread total.
func (f *NotificationFeed) UnreadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread
}

// Items returns a copy of the buffer, newest first.
func (f *NotificationFeed) Items() []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Notification, len(f.items))
	copy(out, f.items)
	return out
}

// SubscribeEntity adds the per-entity notification topic for entityID.
// Subscribing twice to the same entity is a no-op.
func (f *NotificationFeed) SubscribeEntity(ctx context.Context, entityID string) {
	f.mu.Lock()
	if f.entities[entityID] {
		f.mu.Unlock()
		return
	}
	f.entities[entityID] = true
	socket := f.socket
	f.mu.Unlock()

	if socket != nil {
		socket.Subscribe(ctx, EntityDestination(entityID))
	}
}

// UnsubscribeEntity removes local bookkeeping for an entity topic. The
// broker keeps delivering on the current connection; the topic is simply
// not replayed after the next reconnect.
func (f *NotificationFeed) UnsubscribeEntity(entityID string) {
	f.mu.Lock()
	delete(f.entities, entityID)
	socket := f.socket
	f.mu.Unlock()

	if socket != nil {
		socket.Unsubscribe(EntityDestination(entityID))
	}
}

// SubscribedEntities returns the entity ids currently tracked.
func (f *NotificationFeed) SubscribedEntities() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.entities))
	for id := range f.entities {
		out = append(out, id)
	}
	return out
}
