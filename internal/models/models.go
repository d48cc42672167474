package models

import (
	"time"
)

// Role is who is on the other end of a connection.
//
// Members and owners are customers of the booking site and each own at
// most one active support room. Admins staff every active room.
type Role string

const (
	RoleMember Role = "member"
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleMember, RoleOwner, RoleAdmin:
		return true
	}
	return false
}

// SenderType collapses members and owners into the customer side of a
// conversation. Read receipts flip messages whose sender type differs
// from the reader's.
func (r Role) SenderType() SenderType {
	if r == RoleAdmin {
		return SenderAdmin
	}
	return SenderMember
}

type SenderType string

const (
	SenderMember SenderType = "member"
	SenderAdmin  SenderType = "admin"
)

type RoomStatus string

const (
	RoomActive RoomStatus = "active"
	RoomClosed RoomStatus = "closed"
)

type MessageStatus string

const (
	MessageSent MessageStatus = "sent"
	MessageRead MessageStatus = "read"
)

// ChatRoom is one support conversation between a customer and,
// eventually, an admin.
//
// ID is the table's bigserial key. Key is the public identifier
// ("user_42") clients use; a closed room and its replacement share a Key,
// which is why every key lookup is also filtered by status.
type ChatRoom struct {
	ID              int64      `json:"-"`
	Key             string     `json:"roomId"`
	UserID          int64      `json:"userId"`
	AdminID         *int64     `json:"adminId"`
	Status          RoomStatus `json:"status"`
	LastMessage     string     `json:"lastMessage"`
	LastMessageTime *time.Time `json:"lastMessageTime"`
	UnreadCount     int        `json:"unread_count"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RoomSummary is a room as listed on the admin dashboard.
type RoomSummary struct {
	ChatRoom
	UserName  string `json:"userName"`
	AdminName string `json:"adminName,omitempty"`
}

// ChatMessage is immutable apart from the single sent→read transition.
type ChatMessage struct {
	ID         int64         `json:"id"`
	RoomID     int64         `json:"-"`
	RoomKey    string        `json:"roomId"`
	SenderID   int64         `json:"senderId"`
	SenderType SenderType    `json:"senderType"`
	Body       string        `json:"message"`
	Status     MessageStatus `json:"status"`
	ReadAt     *time.Time    `json:"readAt"`
	CreatedAt  time.Time     `json:"createdAt"`
}

type NotificationType string

const (
	NotificationSystem  NotificationType = "system"
	NotificationMessage NotificationType = "message"
	NotificationAlert   NotificationType = "alert"
	NotificationOrder   NotificationType = "order"
)

func (t NotificationType) Valid() bool {
	switch t {
	case NotificationSystem, NotificationMessage, NotificationAlert, NotificationOrder:
		return true
	}
	return false
}

// Notification belongs to one user. UserRole tells members and owners
// apart because their ids come from different tables.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	UserRole  Role             `json:"userType"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// NewNotification is the insert shape for a notification row.
type NewNotification struct {
	UserID   int64
	UserRole Role
	Type     NotificationType
	Title    string
	Content  string
}

// Recipient is one resolved target of a role fan-out.
type Recipient struct {
	UserID int64
	Role   Role
}
