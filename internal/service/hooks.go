package service

import (
	"context"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
)

// Message types pushed to a tournament room.
const (
	EventBracketGenerated    = "BRACKET_GENERATED"
	EventMatchUpdated        = "MATCH_UPDATED"
	EventWinnerProgressed    = "WINNER_PROGRESSED"
	EventTournamentCompleted = "TOURNAMENT_COMPLETED"
)

// Notifier fans engine events out to whoever watches a room. A room is a
// tournament id, or the match id for standalone matches.
type Notifier interface {
	Notify(room string, eventType string, payload any)
}

// ProgressScheduler defers progression of a finished match.
type ProgressScheduler interface {
	Schedule(matchID uuid.UUID)
}

// Archiver stores a copy of a completed bracket.
type Archiver interface {
	Archive(ctx context.Context, b *bracket.Bracket) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(string, string, any) {}

type nopScheduler struct{}

func (nopScheduler) Schedule(uuid.UUID) {}

func matchRoom(m *bracket.Match) string {
	if m.TournamentID != nil {
		return m.TournamentID.String()
	}
	return m.ID.String()
}
