package store

import (
	"context"
	"fmt"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type TournamentStore struct {
	db *sqlx.DB
}

func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db}
}

func (s *TournamentStore) CreateTournament(ctx context.Context, tx *sqlx.Tx, tournament *bracket.Tournament) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO tournaments (id, name, category, organizer_id, max_participants, start_date, status)
        VALUES (:id, :name, :category, :organizer_id, :max_participants, :start_date, :status)`, tournament)
	return translate(err, "tournament")
}

func (s *TournamentStore) GetTournament(ctx context.Context, id uuid.UUID) (*bracket.Tournament, error) {
	return s.getTournament(ctx, s.db, id)
}

func (s *TournamentStore) GetTournamentTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Tournament, error) {
	return s.getTournament(ctx, tx, id)
}

func (s *TournamentStore) getTournament(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*bracket.Tournament, error) {
	var tournament bracket.Tournament
	if err := sqlx.GetContext(ctx, q, &tournament, q.Rebind("SELECT * FROM tournaments WHERE id = ?"), id); err != nil {
		return nil, translate(err, fmt.Sprintf("tournament %s", id))
	}

	participants, err := s.getParticipants(ctx, q, id)
	if err != nil {
		return nil, err
	}
	tournament.Participants = participants
	return &tournament, nil
}

func (s *TournamentStore) ListTournaments(ctx context.Context) ([]bracket.Tournament, error) {
	var tournaments []bracket.Tournament
	err := s.db.SelectContext(ctx, &tournaments, "SELECT * FROM tournaments ORDER BY start_date ASC, created_at ASC")
	if err != nil {
		return nil, translate(err, "tournaments")
	}
	for i := range tournaments {
		participants, err := s.getParticipants(ctx, s.db, tournaments[i].ID)
		if err != nil {
			return nil, err
		}
		tournaments[i].Participants = participants
	}
	return tournaments, nil
}

func (s *TournamentStore) DeleteTournament(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM tournaments WHERE id = ?"), id)
	if err != nil {
		return translate(err, "tournament")
	}
	ok, err := checkAffected(res, "tournament")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tournament %s", bracket.ErrNotFound, id)
	}
	return nil
}

func (s *TournamentStore) getParticipants(ctx context.Context, q sqlx.ExtContext, tournamentID uuid.UUID) ([]uuid.UUID, error) {
	participants := []uuid.UUID{}
	err := sqlx.SelectContext(ctx, q, &participants,
		q.Rebind("SELECT owner_id FROM tournament_participants WHERE tournament_id = ? ORDER BY position ASC"), tournamentID)
	if err != nil {
		return nil, translate(err, "participants")
	}
	return participants, nil
}

// AddParticipant appends ownerID at the end of the participant list.
func (s *TournamentStore) AddParticipant(ctx context.Context, tx *sqlx.Tx, tournamentID, ownerID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO tournament_participants (tournament_id, owner_id, position)
        SELECT ?, ?, COALESCE(MAX(position), 0) + 1 FROM tournament_participants WHERE tournament_id = ?`),
		tournamentID, ownerID, tournamentID)
	if err != nil {
		return translate(err, fmt.Sprintf("participant %s", ownerID))
	}
	return nil
}

func (s *TournamentStore) RemoveParticipant(ctx context.Context, tx *sqlx.Tx, tournamentID, ownerID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM tournament_participants WHERE tournament_id = ? AND owner_id = ?"), tournamentID, ownerID)
	if err != nil {
		return translate(err, "participant")
	}
	ok, err := checkAffected(res, "participant")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: participant %s in tournament %s", bracket.ErrNotFound, ownerID, tournamentID)
	}
	return nil
}

// MarkBracketGenerated flips the generated flag. It only succeeds once per
// tournament, so it doubles as the check-and-set guarding generation.
func (s *TournamentStore) MarkBracketGenerated(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tournaments
        SET is_bracket_generated = ?, status = ?, current_round = 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND is_bracket_generated = ?`),
		true, bracket.TournamentBracketGenerated, id, false)
	if err != nil {
		return translate(err, "tournament")
	}
	ok, err := checkAffected(res, "tournament")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tournament %s", bracket.ErrAlreadyGenerated, id)
	}
	return nil
}

// SetTournamentWinnerTx completes the tournament. Re-running with the same
// winner is a no-op; a different winner is rejected.
func (s *TournamentStore) SetTournamentWinnerTx(ctx context.Context, tx *sqlx.Tx, id, winnerTeamID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tournaments
        SET winner_team_id = ?, status = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND (winner_team_id IS NULL OR winner_team_id = ?)`),
		winnerTeamID, bracket.TournamentCompleted, id, winnerTeamID)
	if err != nil {
		return translate(err, "tournament winner")
	}
	ok, err := checkAffected(res, "tournament winner")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: tournament %s already has a different winner", bracket.ErrSlotTaken, id)
	}
	return nil
}

// AdvanceCurrentRoundTx never moves the round counter backwards.
func (s *TournamentStore) AdvanceCurrentRoundTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, round int) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tournaments SET current_round = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND current_round < ?`), round, id, round)
	return translate(err, "tournament round")
}

// MarkInProgressTx moves a generated tournament to IN_PROGRESS when its first
// match kicks off. Later calls change nothing.
func (s *TournamentStore) MarkInProgressTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE tournaments SET status = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND status = ?`), bracket.TournamentInProgress, id, bracket.TournamentBracketGenerated)
	return translate(err, "tournament status")
}
