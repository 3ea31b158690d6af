package bracket

import (
	"time"

	"github.com/google/uuid"
)

type PlayerRole string

const (
	Starter    PlayerRole = "STARTER"
	Substitute PlayerRole = "SUBSTITUTE"
)

type Team struct {
	ID        uuid.UUID `db:"id" json:"id"`
	OwnerID   uuid.UUID `db:"owner_id" json:"owner_id"`
	Name      string    `db:"name" json:"name"`
	Category  Category  `db:"category" json:"category"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`

	Starters    []uuid.UUID `db:"-" json:"starters"`
	Substitutes []uuid.UUID `db:"-" json:"substitutes"`
}

type TeamPlayer struct {
	TeamID   uuid.UUID  `db:"team_id"`
	PlayerID uuid.UUID  `db:"player_id"`
	Role     PlayerRole `db:"role"`
}

func (t *Team) HasPlayer(playerID uuid.UUID) bool {
	for _, id := range t.Starters {
		if id == playerID {
			return true
		}
	}
	for _, id := range t.Substitutes {
		if id == playerID {
			return true
		}
	}
	return false
}
