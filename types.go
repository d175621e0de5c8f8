package gramsetu

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error reported by the GramSetu API.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// APIResult is the generic envelope for chat-service API responses.
type APIResult struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *APIResult) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Chat Types
// ============================================================================

// ChatMessage is a single direct message between two users.
//
// A server-assigned ID is not guaranteed at creation time: messages sent
// optimistically carry only a local correlation id until the server echoes
// them back. Timestamp is an ISO-8601 string as produced by the server.
type ChatMessage struct {
	ID         string `json:"id,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Read       bool   `json:"read,omitempty"`
}

// outboundMessage is the wire payload published to the send destination.
type outboundMessage struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
	Token      string `json:"token"`
	ClientID   string `json:"clientId,omitempty"`
}

// User is a chat peer as returned by the user directory.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Role        string `json:"role,omitempty"`
	VillageID   string `json:"villageId,omitempty"`
}

// ============================================================================
// Notification Types
// ============================================================================

// Notification priorities, lowest to highest.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// Notification is a server-pushed notification, delivered either on the
// personal queue or on a broadcast/entity topic.
type Notification struct {
	ID               string `json:"id"`
	EntityID         string `json:"entityId,omitempty"`
	EntityName       string `json:"entityName,omitempty"`
	Title            string `json:"title"`
	Message          string `json:"message"`
	NotificationType string `json:"notificationType,omitempty"`
	Priority         string `json:"priority,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	IsRead           bool   `json:"isRead"`
	IsActive         bool   `json:"isActive"`
}

// ============================================================================
// Transport Types
// ============================================================================

// Frame is the wire format for every frame on the realtime connection.
// Payload stays raw until the frame is classified by destination; a frame
// whose payload does not decode into the expected type is dropped.
type Frame struct {
	Type        string          `json:"type"`
	Destination string          `json:"destination,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Frame types understood by the client.
const (
	frameConnected    = "connected"
	frameMessage      = "message"
	frameNotification = "notification"
	frameSend         = "send"
	frameSubscribe    = "subscribe"
)

// Broker destinations consumed and produced by the client.
const (
	// DestinationMessages is the personal per-user message queue.
	DestinationMessages = "/user/queue/messages"
	// DestinationPersonalNotifications is the personal notification queue.
	DestinationPersonalNotifications = "/user/queue/notifications"
	// DestinationBroadcast is the global notification topic.
	DestinationBroadcast = "/topic/notifications/global"
	// DestinationSend is the fixed outbound send destination.
	DestinationSend = "/app/chat.send"
)

// EntityDestination returns the per-entity notification topic for an entity id.
func EntityDestination(entityID string) string {
	return "/topic/notifications/entity/" + entityID
}
