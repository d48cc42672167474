package session

import (
	"net/url"
	"strconv"

	"github.com/lalith-99/echodesk/internal/apperr"
	"github.com/lalith-99/echodesk/internal/hub"
	"github.com/lalith-99/echodesk/internal/models"
)

// Handshake is what a connection opened with. Identity always comes from
// the verified token; the query parameters may only repeat it.
type Handshake struct {
	Identity   hub.Identity
	ChatRoomID string
}

// ParseHandshake checks the optional userId, userType and adminId query
// parameters against the token's identity and picks up chatRoomId.
func ParseHandshake(q url.Values, id hub.Identity) (Handshake, error) {
	hs := Handshake{Identity: id, ChatRoomID: q.Get("chatRoomId")}

	if ut := q.Get("userType"); ut != "" && models.Role(ut) != id.Role {
		return hs, apperr.Forbidden("userType %q does not match token", ut)
	}
	for _, key := range []string{"userId", "adminId"} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		if key == "adminId" && id.Role != models.RoleAdmin {
			return hs, apperr.Forbidden("adminId is only valid for admins")
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return hs, apperr.InvalidInput("invalid %s", key)
		}
		if v != id.UserID {
			return hs, apperr.Forbidden("%s does not match token", key)
		}
	}
	return hs, nil
}
