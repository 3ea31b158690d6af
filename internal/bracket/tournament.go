package bracket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TournamentStatus string

const (
	TournamentRegistration     TournamentStatus = "REGISTRATION"
	TournamentBracketGenerated TournamentStatus = "BRACKET_GENERATED"
	TournamentInProgress       TournamentStatus = "IN_PROGRESS"
	TournamentCompleted        TournamentStatus = "COMPLETED"
)

type Category string

const (
	CategoryKids   Category = "KIDS"
	CategoryYouth  Category = "YOUTH"
	CategoryJunior Category = "JUNIOR"
	CategorySenior Category = "SENIOR"
)

// ParseCategory normalizes case, so "Junior" and "JUNIOR" are the same category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	switch c {
	case CategoryKids, CategoryYouth, CategoryJunior, CategorySenior:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

type Tournament struct {
	ID                 uuid.UUID        `db:"id" json:"id"`
	Name               string           `db:"name" json:"name"`
	Category           Category         `db:"category" json:"category"`
	OrganizerID        *uuid.UUID       `db:"organizer_id" json:"organizer_id,omitempty"`
	MaxParticipants    int              `db:"max_participants" json:"max_participants"`
	StartDate          time.Time        `db:"start_date" json:"start_date"`
	IsBracketGenerated bool             `db:"is_bracket_generated" json:"is_bracket_generated"`
	CurrentRound       int              `db:"current_round" json:"current_round"`
	Status             TournamentStatus `db:"status" json:"status"`
	WinnerTeamID       *uuid.UUID       `db:"winner_team_id" json:"winner_team_id,omitempty"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`

	Participants []uuid.UUID `db:"-" json:"participants"`
}

func (t *Tournament) IsFull() bool {
	return len(t.Participants) >= t.MaxParticipants
}

func (t *Tournament) HasParticipant(ownerID uuid.UUID) bool {
	for _, p := range t.Participants {
		if p == ownerID {
			return true
		}
	}
	return false
}
