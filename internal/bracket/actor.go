package bracket

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Role is the kind of caller mutating a match. Who may claim a role is decided
// upstream; the engine only enforces what each role may touch.
type Role string

const (
	RoleOrganizer Role = "ORGANIZER"
	RoleReferee   Role = "REFEREE"
)

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	switch r {
	case RoleOrganizer, RoleReferee:
		return r, nil
	case "ARBITRE":
		return RoleReferee, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, s)
}

// Actor is the caller behind a match mutation. ID names the referee and is
// left empty for organizers.
type Actor struct {
	Role Role
	ID   uuid.UUID
}

func Organizer() Actor {
	return Actor{Role: RoleOrganizer}
}

func Referee(id uuid.UUID) Actor {
	return Actor{Role: RoleReferee, ID: id}
}

// Officiates reports whether a is the referee assigned to m.
func (a Actor) Officiates(m *Match) bool {
	return a.Role == RoleReferee && a.ID != uuid.Nil && m.RefereeID != nil && *m.RefereeID == a.ID
}

// Authorize lets organizers through, and referees only on the matches they
// are assigned to.
func (a Actor) Authorize(m *Match) error {
	switch a.Role {
	case RoleOrganizer:
		return nil
	case RoleReferee:
		if a.Officiates(m) {
			return nil
		}
		return fmt.Errorf("%w: referee %s is not assigned to match %s", ErrForbidden, a.ID, m.ID)
	}
	return fmt.Errorf("%w: role %q may not update matches", ErrForbidden, a.Role)
}
