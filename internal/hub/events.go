package hub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/models"
)

// Every frame on the wire is an envelope: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound event names.
const (
	EvJoinRoom            = "joinRoom"
	EvLeaveRoom           = "leaveRoom"
	EvMessage             = "message"
	EvSendMessage         = "sendMessage"
	EvMarkAsRead          = "markAsRead"
	EvMarkMessagesAsRead  = "markMessagesAsRead"
	EvGetChatRoomStatus   = "getChatRoomStatus"
	EvCloseChatRoom       = "closeChatRoom"
	EvGetNotifications    = "getNotifications"
	EvMarkAllAsRead       = "markAllAsRead"
	EvMarkTypeAsRead      = "markTypeAsRead"
	EvDeleteNotifications = "deleteNotifications"
)

// ---------------------------------------------------------------
// Inbound variants. Decode returns exactly one of these, already
// validated with gin's binding validator, so handlers never see a
// half-formed payload.
// ---------------------------------------------------------------

type Inbound interface {
	inbound()
}

// JoinRoom is sent by members/owners with UserID and by admins with RoomID.
type JoinRoom struct {
	UserID int64  `json:"userId"`
	RoomID string `json:"roomId"`
}

type LeaveRoom struct {
	RoomID string `json:"roomId" binding:"required"`
}

// SendMessage carries a chat line. SenderType and the ids are advisory:
// the sender is always taken from the connection.
type SendMessage struct {
	RoomID     string `json:"roomId" binding:"required"`
	UserID     int64  `json:"userId"`
	SenderID   int64  `json:"senderId"`
	Message    string `json:"message" binding:"required"`
	SenderType string `json:"senderType"`
}

type MarkRoomRead struct {
	RoomID string `json:"roomId" binding:"required"`
	UserID int64  `json:"userId"`
}

type GetRoomStatus struct {
	RoomID   string `json:"roomId" binding:"required"`
	UserType string `json:"userType"`
}

type CloseRoom struct {
	RoomID string `json:"roomId" binding:"required"`
}

type GetNotifications struct {
	Limit int `json:"limit" binding:"omitempty,min=1,max=200"`
}

type MarkNotificationRead struct {
	NotificationID int64 `json:"notificationId" binding:"required"`
}

type MarkAllNotificationsRead struct{}

type MarkTypeRead struct {
	Type            models.NotificationType `json:"type" binding:"required"`
	NotificationIDs []int64                 `json:"notificationIds"`
}

type DeleteNotifications struct {
	NotificationIDs []int64 `json:"notificationIds"`
}

func (JoinRoom) inbound()                 {}
func (LeaveRoom) inbound()                {}
func (SendMessage) inbound()              {}
func (MarkRoomRead) inbound()             {}
func (GetRoomStatus) inbound()            {}
func (CloseRoom) inbound()                {}
func (GetNotifications) inbound()         {}
func (MarkNotificationRead) inbound()     {}
func (MarkAllNotificationsRead) inbound() {}
func (MarkTypeRead) inbound()             {}
func (DeleteNotifications) inbound()      {}

// markAsRead is shared by both conversation shapes; the payload decides
// which one it is.
type markAsRead struct {
	NotificationID int64  `json:"notificationId"`
	RoomID         string `json:"roomId"`
	UserID         int64  `json:"userId"`
}

// Decode parses one client frame into its event name and typed payload.
// Malformed frames, unknown events and failed validation are all
// InvalidInput errors.
func Decode(frame []byte) (string, Inbound, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return "", nil, apperr.InvalidInput("malformed frame")
	}
	if env.Event == "" {
		return "", nil, apperr.InvalidInput("missing event name")
	}

	var evt Inbound
	switch env.Event {
	case EvJoinRoom:
		evt = &JoinRoom{}
	case EvLeaveRoom:
		evt = &LeaveRoom{}
	case EvMessage, EvSendMessage:
		evt = &SendMessage{}
	case EvMarkMessagesAsRead:
		evt = &MarkRoomRead{}
	case EvMarkAsRead:
		var m markAsRead
		if err := decodeData(env, &m); err != nil {
			return env.Event, nil, err
		}
		switch {
		case m.NotificationID != 0:
			return env.Event, &MarkNotificationRead{NotificationID: m.NotificationID}, nil
		case m.RoomID != "":
			return env.Event, &MarkRoomRead{RoomID: m.RoomID, UserID: m.UserID}, nil
		}
		return env.Event, nil, apperr.InvalidInput("markAsRead needs notificationId or roomId")
	case EvGetChatRoomStatus:
		evt = &GetRoomStatus{}
	case EvCloseChatRoom:
		evt = &CloseRoom{}
	case EvGetNotifications:
		evt = &GetNotifications{}
	case EvMarkAllAsRead:
		evt = &MarkAllNotificationsRead{}
	case EvMarkTypeAsRead:
		evt = &MarkTypeRead{}
	case EvDeleteNotifications:
		evt = &DeleteNotifications{}
	default:
		return env.Event, nil, apperr.InvalidInput("unknown event %q", env.Event)
	}

	if err := decodeData(env, evt); err != nil {
		return env.Event, nil, err
	}
	if err := binding.Validator.ValidateStruct(evt); err != nil {
		e := apperr.InvalidInput("invalid %s payload", env.Event)
		e.Details = err.Error()
		return env.Event, nil, e
	}
	return env.Event, evt, nil
}

func decodeData(env envelope, v any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		e := apperr.InvalidInput("malformed %s payload", env.Event)
		e.Details = err.Error()
		return e
	}
	return nil
}

// ---------------------------------------------------------------
// Outbound variants. The type decides the event name.
// ---------------------------------------------------------------

type Outbound interface {
	EventName() string
}

// Encode wraps evt in an envelope.
func Encode(evt Outbound) ([]byte, error) {
	data, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	return json.Marshal(envelope{Event: evt.EventName(), Data: data})
}

type ChatInitialized struct {
	Room     *models.ChatRoom     `json:"room"`
	Messages []models.ChatMessage `json:"messages"`
}

type RoomJoined struct {
	RoomID string `json:"roomId"`
}

type ChatHistory struct {
	RoomID   string               `json:"roomId"`
	Messages []models.ChatMessage `json:"messages"`
}

type RoomLeft struct {
	RoomID string `json:"roomId"`
}

// NewMessage is the room broadcast of a committed chat message.
type NewMessage struct {
	models.ChatMessage
}

type MessageSent struct {
	ID     int64  `json:"id"`
	RoomID string `json:"roomId"`
}

type MessageError struct {
	RoomID  string `json:"roomId,omitempty"`
	Message string `json:"message"`
}

type MessagesRead struct {
	RoomID string    `json:"roomId"`
	ReadAt time.Time `json:"readAt"`
}

// ChatRooms is the admin room list; it encodes as a bare array.
type ChatRooms []models.RoomSummary

// UpdateChatRooms tells admin dashboards to refetch and reorder.
type UpdateChatRooms struct{}

type ChatRoomStatus struct {
	RoomID      string            `json:"roomId"`
	Status      models.RoomStatus `json:"status"`
	UnreadCount int               `json:"unread_count"`
}

type ChatRoomClosed struct {
	RoomID string `json:"roomId"`
}

// Notifications encodes as a bare array.
type Notifications []models.Notification

type NewNotification struct {
	models.Notification
	Channel string `json:"channel"`
}

type NotificationsCleared struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorEvent struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (ChatInitialized) EventName() string      { return "chatInitialized" }
func (RoomJoined) EventName() string           { return "roomJoined" }
func (ChatHistory) EventName() string          { return "chatHistory" }
func (RoomLeft) EventName() string             { return "roomLeft" }
func (NewMessage) EventName() string           { return "message" }
func (MessageSent) EventName() string          { return "messageSent" }
func (MessageError) EventName() string         { return "messageError" }
func (MessagesRead) EventName() string         { return "messagesRead" }
func (ChatRooms) EventName() string            { return "chatRooms" }
func (UpdateChatRooms) EventName() string      { return "updateChatRooms" }
func (ChatRoomStatus) EventName() string       { return "chatRoomStatus" }
func (ChatRoomClosed) EventName() string       { return "chatRoomClosed" }
func (Notifications) EventName() string        { return "notifications" }
func (NewNotification) EventName() string      { return "newNotification" }
func (NotificationsCleared) EventName() string { return "notificationsCleared" }
func (ErrorEvent) EventName() string           { return "error" }

// Frame is a decoded outbound envelope, used by clients of this package
// (and its tests) that read frames back.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func ParseFrame(raw []byte) (Frame, error) {
	var f Frame
	err := json.Unmarshal(raw, &f)
	return f, err
}
