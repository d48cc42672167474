// Package testutil holds in-memory fakes of the repository interfaces so
// chat, notify and session logic can be tested without Postgres.
package testutil

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/models"
	"github.com/lalith-99/echodesk/internal/repository"
)

// ErrInjected is returned by any operation named in Store.FailOn.
var ErrInjected = errors.New("injected store failure")

type User struct {
	ID        int64
	Name      string
	Role      models.Role
	Active    bool
	LastLogin *time.Time
}

type Admin struct {
	ID        int64
	Name      string
	Available bool
	LastLogin *time.Time
}

// Store keeps rows for every repository interface in memory, guarded by
// one mutex, mirroring the constraints the SQL schema enforces: one active
// room per user, row-locked room writes, all-or-nothing batches.
type Store struct {
	mu sync.Mutex

	users  map[int64]*User
	admins map[int64]*Admin

	rooms         []*models.ChatRoom
	messages      []*models.ChatMessage
	notifications []*models.Notification

	nextRoomID  int64
	nextMsgID   int64
	nextNotifID int64

	// Writes counts successful mutating calls.
	Writes int
	// FailOn makes the named operation return ErrInjected.
	FailOn map[string]bool
	// FailBatchAt makes CreateBatch fail at this 1-based row.
	FailBatchAt int
	// CreateDelay widens the race window in RoomRepo.Create.
	CreateDelay time.Duration
}

func NewStore() *Store {
	return &Store{
		users:  make(map[int64]*User),
		admins: make(map[int64]*Admin),
		FailOn: make(map[string]bool),
	}
}

var (
	_ repository.RoomRepository         = RoomRepo{}
	_ repository.MessageRepository      = MessageRepo{}
	_ repository.NotificationRepository = NotificationRepo{}
	_ repository.UserRepository         = UserRepo{}
	_ repository.AdminRepository        = AdminRepo{}
)

// Typed views over one Store. They share rows, so a message submitted
// through MessageRepo updates the room RoomRepo returns.
type (
	RoomRepo         struct{ s *Store }
	MessageRepo      struct{ s *Store }
	NotificationRepo struct{ s *Store }
	UserRepo         struct{ s *Store }
	AdminRepo        struct{ s *Store }
)

func (s *Store) RoomRepo() RoomRepo                 { return RoomRepo{s} }
func (s *Store) MessageRepo() MessageRepo           { return MessageRepo{s} }
func (s *Store) NotificationRepo() NotificationRepo { return NotificationRepo{s} }
func (s *Store) UserRepo() UserRepo                 { return UserRepo{s} }
func (s *Store) AdminRepo() AdminRepo               { return AdminRepo{s} }

func (s *Store) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.users[u.ID] = &cp
}

func (s *Store) AddAdmin(a Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.admins[a.ID] = &cp
}

func (s *Store) SetFail(op string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FailOn[op] = fail
}

func (s *Store) WriteCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Writes
}

// Rooms returns copies of every room row, closed ones included.
func (s *Store) Rooms() []models.ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatRoom, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, *r)
	}
	return out
}

// Messages returns copies of every message row.
func (s *Store) Messages() []models.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatMessage, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, *m)
	}
	return out
}

// Notifications returns copies of every notification row.
func (s *Store) Notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out
}

func (s *Store) LastLogin(userID int64) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok && u.LastLogin != nil {
		t := *u.LastLogin
		return &t
	}
	return nil
}

func (s *Store) fail(op string) error {
	if s.FailOn[op] {
		return ErrInjected
	}
	return nil
}

// --- rooms ---

func (s *Store) activeByKey(key string) *models.ChatRoom {
	for _, r := range s.rooms {
		if r.Key == key && r.Status == models.RoomActive {
			return r
		}
	}
	return nil
}

func copyRoom(r *models.ChatRoom) *models.ChatRoom {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

func (v RoomRepo) GetActiveByUser(ctx context.Context, userID int64) (*models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetActiveByUser"); err != nil {
		return nil, err
	}
	for _, r := range s.rooms {
		if r.UserID == userID && r.Status == models.RoomActive {
			return copyRoom(r), nil
		}
	}
	return nil, nil
}

func (v RoomRepo) GetActiveByKey(ctx context.Context, key string) (*models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetActiveByKey"); err != nil {
		return nil, err
	}
	return copyRoom(s.activeByKey(key)), nil
}

func (v RoomRepo) GetLatestByKey(ctx context.Context, key string) (*models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetLatestByKey"); err != nil {
		return nil, err
	}
	for i := len(s.rooms) - 1; i >= 0; i-- {
		if s.rooms[i].Key == key {
			return copyRoom(s.rooms[i]), nil
		}
	}
	return nil, nil
}

func (v RoomRepo) Create(ctx context.Context, key string, userID int64, adminID *int64) (*models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	delay := s.CreateDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Create"); err != nil {
		return nil, err
	}
	for _, r := range s.rooms {
		if r.UserID == userID && r.Status == models.RoomActive {
			return nil, apperr.DuplicateRoom(userID, errors.New("unique violation"))
		}
	}
	s.nextRoomID++
	r := &models.ChatRoom{
		ID:        s.nextRoomID,
		Key:       key,
		UserID:    userID,
		AdminID:   adminID,
		Status:    models.RoomActive,
		CreatedAt: time.Now(),
	}
	s.rooms = append(s.rooms, r)
	s.Writes++
	return copyRoom(r), nil
}

func (s *Store) sortedActive() []*models.ChatRoom {
	active := make([]*models.ChatRoom, 0)
	for _, r := range s.rooms {
		if r.Status == models.RoomActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].LastMessageTime, active[j].LastMessageTime
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return active[i].ID > active[j].ID
	})
	return active
}

func (v RoomRepo) ListSummaries(ctx context.Context) ([]models.RoomSummary, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListSummaries"); err != nil {
		return nil, err
	}
	out := make([]models.RoomSummary, 0)
	for _, r := range s.sortedActive() {
		sum := models.RoomSummary{ChatRoom: *r}
		if u, ok := s.users[r.UserID]; ok {
			sum.UserName = u.Name
		}
		if r.AdminID != nil {
			if a, ok := s.admins[*r.AdminID]; ok {
				sum.AdminName = a.Name
			}
		}
		out = append(out, sum)
	}
	return out, nil
}

func (v RoomRepo) Close(ctx context.Context, key string) (*models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Close"); err != nil {
		return nil, err
	}
	r := s.activeByKey(key)
	if r == nil {
		return nil, nil
	}
	r.Status = models.RoomClosed
	s.Writes++
	return copyRoom(r), nil
}

func (v RoomRepo) MarkRead(ctx context.Context, key string, reader models.SenderType, at time.Time) (*models.ChatRoom, int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkRoomRead"); err != nil {
		return nil, 0, err
	}
	r := s.activeByKey(key)
	if r == nil {
		return nil, 0, apperr.NotFound("room %s not found or closed", key)
	}
	var flipped int64
	for _, m := range s.messages {
		if m.RoomID == r.ID && m.SenderType != reader && m.Status == models.MessageSent {
			m.Status = models.MessageRead
			readAt := at
			m.ReadAt = &readAt
			flipped++
		}
	}
	r.UnreadCount = 0
	s.Writes++
	return copyRoom(r), flipped, nil
}

// --- messages ---

func (v MessageRepo) Submit(ctx context.Context, key string, senderID int64, senderType models.SenderType, body string) (*models.ChatMessage, *models.ChatRoom, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.activeByKey(key)
	if r == nil {
		return nil, nil, apperr.NotFound("room %s not found or closed", key)
	}
	if err := s.fail("Submit"); err != nil {
		return nil, nil, err
	}

	now := time.Now()
	s.nextMsgID++
	m := &models.ChatMessage{
		ID:         s.nextMsgID,
		RoomID:     r.ID,
		RoomKey:    r.Key,
		SenderID:   senderID,
		SenderType: senderType,
		Body:       body,
		Status:     models.MessageSent,
		CreatedAt:  now,
	}
	s.messages = append(s.messages, m)

	r.LastMessage = body
	r.LastMessageTime = &now
	r.UnreadCount++
	if r.AdminID == nil && senderType == models.SenderAdmin {
		id := senderID
		r.AdminID = &id
	}
	s.Writes++

	cp := *m
	return &cp, copyRoom(r), nil
}

func (v MessageRepo) ListByRoom(ctx context.Context, key string, before int64, limit int) ([]models.ChatMessage, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByRoom"); err != nil {
		return nil, err
	}
	var roomID int64
	for i := len(s.rooms) - 1; i >= 0; i-- {
		if s.rooms[i].Key == key {
			roomID = s.rooms[i].ID
			break
		}
	}
	out := make([]models.ChatMessage, 0)
	for i := len(s.messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := s.messages[i]
		if m.RoomID != roomID || (before > 0 && m.ID >= before) {
			continue
		}
		out = append(out, *m)
	}
	return out, nil
}

// --- notifications ---

func (s *Store) insertNotification(in models.NewNotification) *models.Notification {
	s.nextNotifID++
	n := &models.Notification{
		ID:        s.nextNotifID,
		UserID:    in.UserID,
		UserRole:  in.UserRole,
		Type:      in.Type,
		Title:     in.Title,
		Content:   in.Content,
		CreatedAt: time.Now(),
	}
	s.notifications = append(s.notifications, n)
	return n
}

func (v NotificationRepo) Create(ctx context.Context, in models.NewNotification) (*models.Notification, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateNotification"); err != nil {
		return nil, err
	}
	n := s.insertNotification(in)
	s.Writes++
	cp := *n
	return &cp, nil
}

func (v NotificationRepo) CreateBatch(ctx context.Context, in []models.NewNotification) ([]models.Notification, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("CreateBatch"); err != nil {
		return nil, err
	}
	if s.FailBatchAt > 0 && s.FailBatchAt <= len(in) {
		return nil, ErrInjected
	}
	out := make([]models.Notification, 0, len(in))
	for _, n := range in {
		out = append(out, *s.insertNotification(n))
	}
	s.Writes++
	return out, nil
}

func (v NotificationRepo) ListByUser(ctx context.Context, userID int64, role models.Role, limit int) ([]models.Notification, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByUser"); err != nil {
		return nil, err
	}
	out := make([]models.Notification, 0)
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := s.notifications[i]
		if n.UserID == userID && n.UserRole == role {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *Store) markWhere(op string, match func(n *models.Notification) bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(op); err != nil {
		return 0, err
	}
	var count int64
	for _, n := range s.notifications {
		if !n.IsRead && match(n) {
			n.IsRead = true
			count++
		}
	}
	if count > 0 {
		s.Writes++
	}
	return count, nil
}

func owns(n *models.Notification, userID int64, role models.Role) bool {
	return n.UserID == userID && n.UserRole == role
}

func (v NotificationRepo) MarkRead(ctx context.Context, userID int64, role models.Role, id int64) (int64, error) {
	return v.s.markWhere("MarkNotificationRead", func(n *models.Notification) bool {
		return owns(n, userID, role) && n.ID == id
	})
}

func (v NotificationRepo) MarkAllRead(ctx context.Context, userID int64, role models.Role) (int64, error) {
	return v.s.markWhere("MarkAllRead", func(n *models.Notification) bool {
		return owns(n, userID, role)
	})
}

func (v NotificationRepo) MarkTypeRead(ctx context.Context, userID int64, role models.Role, typ models.NotificationType, ids []int64) (int64, error) {
	return v.s.markWhere("MarkTypeRead", func(n *models.Notification) bool {
		return owns(n, userID, role) && n.Type == typ && (len(ids) == 0 || containsID(ids, n.ID))
	})
}

func (v NotificationRepo) Delete(ctx context.Context, userID int64, role models.Role, ids []int64) (int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteNotifications"); err != nil {
		return 0, err
	}
	kept := s.notifications[:0]
	var deleted int64
	for _, n := range s.notifications {
		drop := owns(n, userID, role) && ((len(ids) > 0 && containsID(ids, n.ID)) || (len(ids) == 0 && n.IsRead))
		if drop {
			deleted++
			continue
		}
		kept = append(kept, n)
	}
	s.notifications = kept
	if deleted > 0 {
		s.Writes++
	}
	return deleted, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// --- users and admins ---

func (v UserRepo) ActiveRecipients(ctx context.Context, roles []models.Role) ([]models.Recipient, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ActiveRecipients"); err != nil {
		return nil, err
	}
	want := make(map[models.Role]bool, len(roles))
	for _, r := range roles {
		want[r] = true
	}
	out := make([]models.Recipient, 0)
	for _, u := range s.users {
		if u.Active && want[u.Role] {
			out = append(out, models.Recipient{UserID: u.ID, Role: u.Role})
		}
	}
	if want[models.RoleAdmin] {
		for _, a := range s.admins {
			out = append(out, models.Recipient{UserID: a.ID, Role: models.RoleAdmin})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Role != out[j].Role {
			return out[i].Role < out[j].Role
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (v UserRepo) ClaimWelcome(ctx context.Context, userID int64, now time.Time, window time.Duration) (bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ClaimWelcome"); err != nil {
		return false, err
	}
	u, ok := s.users[userID]
	if !ok {
		return false, nil
	}
	if u.LastLogin != nil && !u.LastLogin.Before(now.Add(-window)) {
		return false, nil
	}
	t := now
	u.LastLogin = &t
	s.Writes++
	return true, nil
}

func (v AdminRepo) PickAvailable(ctx context.Context) (*int64, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("PickAvailable"); err != nil {
		return nil, err
	}
	var best *Admin
	for _, a := range s.admins {
		if !a.Available {
			continue
		}
		if best == nil || newerLogin(a, best) {
			best = a
		}
	}
	if best == nil {
		return nil, nil
	}
	id := best.ID
	return &id, nil
}

func newerLogin(a, b *Admin) bool {
	switch {
	case a.LastLogin != nil && b.LastLogin == nil:
		return true
	case a.LastLogin == nil && b.LastLogin != nil:
		return false
	case a.LastLogin != nil && b.LastLogin != nil && !a.LastLogin.Equal(*b.LastLogin):
		return a.LastLogin.After(*b.LastLogin)
	}
	return a.ID < b.ID
}

func (v AdminRepo) Exists(ctx context.Context, adminID int64) (bool, error) {
	s := v.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("AdminExists"); err != nil {
		return false, err
	}
	_, ok := s.admins[adminID]
	return ok, nil
}
