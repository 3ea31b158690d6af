package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentService struct {
	db             *sqlx.DB
	store          *store.TournamentStore
	locks          *keylock.Locker
	maxBracketSize int
	logger         *slog.Logger
}

// NewTournamentService shares locks with BracketService so registration
// changes never interleave with generation.
func NewTournamentService(db *sqlx.DB, store *store.TournamentStore, locks *keylock.Locker, maxBracketSize int, logger *slog.Logger) *TournamentService {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBracketSize == 0 {
		maxBracketSize = bracket.MaxBracketSize
	}
	return &TournamentService{db: db, store: store, locks: locks, maxBracketSize: maxBracketSize, logger: logger}
}

type TournamentInput struct {
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	OrganizerID     *uuid.UUID `json:"organizer_id"`
	MaxParticipants int        `json:"max_participants"`
	StartDate       time.Time  `json:"start_date"`
}

func (s *TournamentService) CreateTournament(ctx context.Context, input TournamentInput) (*bracket.Tournament, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: tournament name is required", bracket.ErrValidation)
	}
	category, err := bracket.ParseCategory(input.Category)
	if err != nil {
		return nil, err
	}
	if !bracket.ValidBracketSize(input.MaxParticipants, s.maxBracketSize) {
		return nil, fmt.Errorf("%w: max participants %d must be a power of two between %d and %d",
			bracket.ErrInvalidBracketSize, input.MaxParticipants, bracket.MinBracketSize, s.maxBracketSize)
	}
	if input.StartDate.IsZero() {
		return nil, fmt.Errorf("%w: start date is required", bracket.ErrValidation)
	}

	tournament := &bracket.Tournament{
		ID:              uuid.New(),
		Name:            name,
		Category:        category,
		OrganizerID:     input.OrganizerID,
		MaxParticipants: input.MaxParticipants,
		StartDate:       input.StartDate.UTC(),
		Status:          bracket.TournamentRegistration,
		Participants:    []uuid.UUID{},
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.store.CreateTournament(ctx, tx, tournament); err != nil {
		return nil, fmt.Errorf("failed to create tournament: %w", err)
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	s.logger.Info("tournament created", "tournament_id", tournament.ID, "category", category, "max_participants", tournament.MaxParticipants)
	return tournament, nil
}

func (s *TournamentService) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return s.store.GetTournament(ctx, id)
}

func (s *TournamentService) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	return s.store.ListTournaments(ctx)
}

func (s *TournamentService) DeleteTournament(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	if err := s.store.DeleteTournament(ctx, id); err != nil {
		return err
	}
	s.logger.Info("tournament deleted", "tournament_id", id)
	return nil
}

func (s *TournamentService) AddParticipant(ctx context.Context, tournamentID, ownerID uuid.UUID) (*bracket.Tournament, error) {
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: participant id is required", bracket.ErrValidation)
	}
	return s.changeParticipants(ctx, tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament) error {
		if t.HasParticipant(ownerID) {
			return fmt.Errorf("%w: %s already registered in tournament %s", bracket.ErrDuplicateParticipant, ownerID, t.ID)
		}
		if t.IsFull() {
			return fmt.Errorf("%w: %d of %d places taken", bracket.ErrTournamentFull, len(t.Participants), t.MaxParticipants)
		}
		return s.store.AddParticipant(ctx, tx, t.ID, ownerID)
	})
}

func (s *TournamentService) RemoveParticipant(ctx context.Context, tournamentID, ownerID uuid.UUID) (*bracket.Tournament, error) {
	return s.changeParticipants(ctx, tournamentID, func(tx *sqlx.Tx, t *bracket.Tournament) error {
		return s.store.RemoveParticipant(ctx, tx, t.ID, ownerID)
	})
}

func (s *TournamentService) changeParticipants(ctx context.Context, tournamentID uuid.UUID, change func(*sqlx.Tx, *bracket.Tournament) error) (*bracket.Tournament, error) {
	unlock := s.locks.Lock(tournamentID.String())
	defer unlock()

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.store.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.IsBracketGenerated {
		return nil, fmt.Errorf("%w: participants are frozen for tournament %s", bracket.ErrAlreadyGenerated, tournamentID)
	}
	if err := change(tx, tournament); err != nil {
		return nil, err
	}

	updated, err := s.store.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return updated, nil
}
