package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TeamResolver turns a tournament's participant ids into the teams they
// entered for the tournament's category.
type TeamResolver struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	teams       *store.TeamStore
}

func NewTeamResolver(db *sqlx.DB, tournaments *store.TournamentStore, teams *store.TeamStore) *TeamResolver {
	return &TeamResolver{db: db, tournaments: tournaments, teams: teams}
}

// Resolve returns one team per participant, in participant order. It fails
// as a whole if any participant has no team in the category.
func (r *TeamResolver) Resolve(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Team, error) {
	tournament, err := r.tournaments.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return r.resolve(ctx, r.db, tournament)
}

func (r *TeamResolver) resolve(ctx context.Context, q sqlx.ExtContext, tournament *bracket.Tournament) ([]bracket.Team, error) {
	category, err := bracket.ParseCategory(string(tournament.Category))
	if err != nil {
		return nil, err
	}

	teams := make([]bracket.Team, 0, len(tournament.Participants))
	for _, ownerID := range tournament.Participants {
		team, err := r.teams.FindTeam(ctx, q, ownerID, category)
		if errors.Is(err, bracket.ErrNotFound) {
			return nil, fmt.Errorf("%w: participant %s has no %s team", bracket.ErrNoTeamFound, ownerID, category)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve team for participant %s: %w", ownerID, err)
		}
		teams = append(teams, *team)
	}
	return teams, nil
}
