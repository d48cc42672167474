package postgres

import "github.com/lalith-99/echodesk/internal/repository"

// Compile-time proof that every store satisfies its interface.
var (
	_ repository.RoomRepository         = (*RoomStore)(nil)
	_ repository.MessageRepository      = (*MessageStore)(nil)
	_ repository.NotificationRepository = (*NotificationStore)(nil)
	_ repository.UserRepository         = (*UserStore)(nil)
	_ repository.AdminRepository        = (*AdminStore)(nil)
)
