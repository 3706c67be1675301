// Package call holds the identifiers and error taxonomy shared by the
// signaling, negotiation and room packages.
package call

// MemberID identifies one endpoint inside a room. It is issued (or accepted)
// by the relay at login and is unique for the duration of membership.
type MemberID string

func (id MemberID) String() string { return string(id) }

// RoomID is the shared key two members use to find each other.
type RoomID string

func (id RoomID) String() string { return string(id) }

// Role tells which side of the offer/answer exchange a session plays.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

func (r Role) String() string { return string(r) }

// Polite reports whether local should yield when both sides offered to each
// other at the same time. Exactly one of the two members is polite.
func Polite(local, remote MemberID) bool {
	return local > remote
}
