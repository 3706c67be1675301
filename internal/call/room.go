package call

import (
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
)

var ErrNoRoom = errors.New("room selector is required")

// ParseRoom accepts a bare room id, a link carrying ?room=<id> or a
// /r/<id> link.
func ParseRoom(s string) (RoomID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrNoRoom
	}
	if !strings.Contains(s, "/") && !strings.Contains(s, "?") {
		return RoomID(s), nil
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid room link: %w", err)
	}
	if id := u.Query().Get("room"); id != "" {
		return RoomID(id), nil
	}
	if i := strings.Index(u.Path, "/r/"); i >= 0 {
		if id := strings.Trim(u.Path[i+3:], "/"); id != "" {
			return RoomID(id), nil
		}
	}
	return "", fmt.Errorf("%w: no room in %q", ErrNoRoom, s)
}

// RandomMemberID returns a short numeric identity for members that did not
// choose one.
func RandomMemberID() MemberID {
	return MemberID(strconv.Itoa(rand.Intn(10000)))
}
