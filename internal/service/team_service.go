package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TeamService struct {
	db     *sqlx.DB
	store  *store.TeamStore
	logger *slog.Logger
}

func NewTeamService(db *sqlx.DB, store *store.TeamStore, logger *slog.Logger) *TeamService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamService{db: db, store: store, logger: logger}
}

type TeamInput struct {
	OwnerID     uuid.UUID   `json:"owner_id"`
	Name        string      `json:"name"`
	Category    string      `json:"category"`
	Starters    []uuid.UUID `json:"starters"`
	Substitutes []uuid.UUID `json:"substitutes"`
}

func validateRoster(starters, substitutes []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(starters)+len(substitutes))
	for _, id := range append(append([]uuid.UUID{}, starters...), substitutes...) {
		if id == uuid.Nil {
			return fmt.Errorf("%w: roster contains an empty player id", bracket.ErrValidation)
		}
		if seen[id] {
			return fmt.Errorf("%w: player %s listed twice in roster", bracket.ErrValidation, id)
		}
		seen[id] = true
	}
	return nil
}

func (s *TeamService) CreateTeam(ctx context.Context, input TeamInput) (*bracket.Team, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name is required", bracket.ErrValidation)
	}
	if input.OwnerID == uuid.Nil {
		return nil, fmt.Errorf("%w: team owner is required", bracket.ErrValidation)
	}
	category, err := bracket.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	if err := validateRoster(input.Starters, input.Substitutes); err != nil {
		return nil, err
	}

	team := &bracket.Team{
		ID:          uuid.New(),
		OwnerID:     input.OwnerID,
		Name:        name,
		Category:    category,
		Starters:    append([]uuid.UUID{}, input.Starters...),
		Substitutes: append([]uuid.UUID{}, input.Substitutes...),
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTeam(ctx, tx, team); err != nil {
		return nil, fmt.Errorf("failed to create team: %w", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	s.logger.Info("team created", "team_id", team.ID, "owner_id", team.OwnerID, "category", team.Category)
	return team, nil
}

func (s *TeamService) GetTeam(ctx context.Context, id uuid.UUID) (*bracket.Team, error) {
	return s.store.GetTeam(ctx, id)
}

// ReplaceRoster is refused once any match points at the team.
func (s *TeamService) ReplaceRoster(ctx context.Context, id uuid.UUID, starters, substitutes []uuid.UUID) (*bracket.Team, error) {
	if err := validateRoster(starters, substitutes); err != nil {
		return nil, err
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	team, err := s.store.GetTeamTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureUnreferenced(ctx, tx, id); err != nil {
		return nil, err
	}

	team.Starters = append([]uuid.UUID{}, starters...)
	team.Substitutes = append([]uuid.UUID{}, substitutes...)
	if err := s.store.ReplaceRoster(ctx, tx, team); err != nil {
		return nil, fmt.Errorf("failed to replace roster: %w", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return team, nil
}

func (s *TeamService) DeleteTeam(ctx context.Context, id uuid.UUID) error {
	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := s.ensureUnreferenced(ctx, tx, id); err != nil {
		return err
	}
	if err := s.store.DeleteTeam(ctx, tx, id); err != nil {
		return err
	}
	return commit(tx)
}

func (s *TeamService) ensureUnreferenced(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	referenced, err := s.store.IsTeamReferenced(ctx, tx, id)
	if err != nil {
		return err
	}
	if referenced {
		return fmt.Errorf("%w: team %s", bracket.ErrTeamInUse, id)
	}
	return nil
}
