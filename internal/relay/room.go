package relay

import (
	"sort"

	"github.com/BioHazard786/warpcall/internal/call"
)

// Room is a pairing scope. It exists while at least one member is in it.
type Room struct {
	ID      call.RoomID
	Members map[call.MemberID]*Client
}

func newRoom(id call.RoomID) *Room {
	return &Room{ID: id, Members: make(map[call.MemberID]*Client)}
}

// others returns the ids of every member but id, sorted.
func (r *Room) others(id call.MemberID) []string {
	out := make([]string, 0, len(r.Members))
	for m := range r.Members {
		if m != id {
			out = append(out, m.String())
		}
	}
	sort.Strings(out)
	return out
}
