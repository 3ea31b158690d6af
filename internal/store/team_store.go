package store

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TeamStore struct {
	db *sqlx.DB
}

func NewTeamStore(db *sqlx.DB) *TeamStore {
	return &TeamStore{db: db}
}

func (s *TeamStore) CreateTeam(ctx context.Context, tx *sqlx.Tx, team *bracket.Team) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO teams (id, owner_id, name, category)
        VALUES (:id, :owner_id, :name, :category)`, team)
	if err != nil {
		return translate(err, fmt.Sprintf("team for owner %s in %s", team.OwnerID, team.Category))
	}
	return s.insertRoster(ctx, tx, team)
}

// ReplaceRoster swaps the whole roster of team for the one it carries.
func (s *TeamStore) ReplaceRoster(ctx context.Context, tx *sqlx.Tx, team *bracket.Team) error {
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM team_players WHERE team_id = ?"), team.ID); err != nil {
		return translate(err, "roster")
	}
	return s.insertRoster(ctx, tx, team)
}

func (s *TeamStore) insertRoster(ctx context.Context, tx *sqlx.Tx, team *bracket.Team) error {
	players := make([]bracket.TeamPlayer, 0, len(team.Starters)+len(team.Substitutes))
	for _, id := range team.Starters {
		players = append(players, bracket.TeamPlayer{TeamID: team.ID, PlayerID: id, Role: bracket.Starter})
	}
	for _, id := range team.Substitutes {
		players = append(players, bracket.TeamPlayer{TeamID: team.ID, PlayerID: id, Role: bracket.Substitute})
	}
	if len(players) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO team_players (team_id, player_id, role)
        VALUES (:team_id, :player_id, :role)`, players)
	return translate(err, "roster player")
}

func (s *TeamStore) GetTeam(ctx context.Context, id uuid.UUID) (*bracket.Team, error) {
	return s.getTeam(ctx, s.db, id)
}

func (s *TeamStore) GetTeamTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Team, error) {
	return s.getTeam(ctx, tx, id)
}

func (s *TeamStore) getTeam(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*bracket.Team, error) {
	var team bracket.Team
	if err := sqlx.GetContext(ctx, q, &team, q.Rebind("SELECT * FROM teams WHERE id = ?"), id); err != nil {
		return nil, translate(err, fmt.Sprintf("team %s", id))
	}
	if err := s.loadRoster(ctx, q, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

// FindTeam looks up the team a participant entered for a category.
func (s *TeamStore) FindTeam(ctx context.Context, q sqlx.ExtContext, ownerID uuid.UUID, category bracket.Category) (*bracket.Team, error) {
	var team bracket.Team
	err := sqlx.GetContext(ctx, q, &team, q.Rebind("SELECT * FROM teams WHERE owner_id = ? AND category = ?"), ownerID, category)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("team for owner %s in %s", ownerID, category))
	}
	if err := s.loadRoster(ctx, q, &team); err != nil {
		return nil, err
	}
	return &team, nil
}

func (s *TeamStore) loadRoster(ctx context.Context, q sqlx.ExtContext, team *bracket.Team) error {
	var players []bracket.TeamPlayer
	err := sqlx.SelectContext(ctx, q, &players, q.Rebind("SELECT team_id, player_id, role FROM team_players WHERE team_id = ? ORDER BY role, player_id"), team.ID)
	if err != nil {
		return translate(err, "roster")
	}
	team.Starters = []uuid.UUID{}
	team.Substitutes = []uuid.UUID{}
	for _, p := range players {
		if p.Role == bracket.Starter {
			team.Starters = append(team.Starters, p.PlayerID)
		} else {
			team.Substitutes = append(team.Substitutes, p.PlayerID)
		}
	}
	return nil
}

// IsTeamReferenced reports whether any match or event points at the team.
func (s *TeamStore) IsTeamReferenced(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, q.Rebind(`SELECT COUNT(*) FROM matches
        WHERE team_1_id = ? OR team_2_id = ? OR winner_id = ?`), id, id, id)
	if err != nil {
		return false, translate(err, "team references")
	}
	return count > 0, nil
}

func (s *TeamStore) DeleteTeam(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM teams WHERE id = ?"), id)
	if err != nil {
		return translate(err, "team")
	}
	ok, err := checkAffected(res, "team")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: team %s", bracket.ErrNotFound, id)
	}
	return nil
}
