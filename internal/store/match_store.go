package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type MatchStore struct {
	db *sqlx.DB
}

func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

const insertMatchQuery = `INSERT INTO matches (id, tournament_id, round_number, match_number, round_name, team_1_id, team_2_id,
        referee_id, scheduled_at, status, next_match_id, next_slot)
    VALUES (:id, :tournament_id, :round_number, :match_number, :round_name, :team_1_id, :team_2_id,
        :referee_id, :scheduled_at, :status, :next_match_id, :next_slot)`

func (s *MatchStore) CreateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	_, err := tx.NamedExecContext(ctx, insertMatchQuery, match)
	return translate(err, "match")
}

// CreateMatches inserts a whole bracket. Later rounds go first so every
// next_match_id already exists when the match pointing at it is written.
func (s *MatchStore) CreateMatches(ctx context.Context, tx *sqlx.Tx, matches []bracket.Match) error {
	if len(matches) == 0 {
		return nil
	}
	ordered := make([]bracket.Match, len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RoundNumber > ordered[j].RoundNumber
	})
	_, err := tx.NamedExecContext(ctx, insertMatchQuery, ordered)
	return translate(err, "matches")
}

func (s *MatchStore) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return getMatch(ctx, s.db, id)
}

func (s *MatchStore) GetMatchTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*bracket.Match, error) {
	return getMatch(ctx, tx, id)
}

func getMatch(ctx context.Context, q sqlx.ExtContext, id uuid.UUID) (*bracket.Match, error) {
	var match bracket.Match
	if err := sqlx.GetContext(ctx, q, &match, q.Rebind("SELECT * FROM matches WHERE id = ?"), id); err != nil {
		return nil, translate(err, fmt.Sprintf("match %s", id))
	}
	return &match, nil
}

func (s *MatchStore) GetMatches(ctx context.Context, tournamentID uuid.UUID) ([]bracket.Match, error) {
	var matches []bracket.Match
	err := s.db.SelectContext(ctx, &matches,
		s.db.Rebind("SELECT * FROM matches WHERE tournament_id = ? ORDER BY round_number ASC, match_number ASC"), tournamentID)
	if err != nil {
		return nil, translate(err, "matches")
	}
	return matches, nil
}

// MatchFilter narrows ListMatches. Nil fields match every row.
type MatchFilter struct {
	TournamentID *uuid.UUID
	Status       *bracket.MatchStatus
	RefereeID    *uuid.UUID
}

func (s *MatchStore) ListMatches(ctx context.Context, filter MatchFilter) ([]bracket.Match, error) {
	query := "SELECT * FROM matches WHERE 1 = 1"
	var args []any
	if filter.TournamentID != nil {
		query += " AND tournament_id = ?"
		args = append(args, *filter.TournamentID)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.RefereeID != nil {
		query += " AND referee_id = ?"
		args = append(args, *filter.RefereeID)
	}
	query += " ORDER BY scheduled_at ASC, round_number ASC, match_number ASC"

	matches := []bracket.Match{}
	if err := s.db.SelectContext(ctx, &matches, s.db.Rebind(query), args...); err != nil {
		return nil, translate(err, "matches")
	}
	return matches, nil
}

// UpdateMatch writes every mutable column, provided nobody else changed the
// row since it was read.
func (s *MatchStore) UpdateMatch(ctx context.Context, tx *sqlx.Tx, match *bracket.Match) error {
	res, err := tx.NamedExecContext(ctx, `UPDATE matches SET
            team_1_id = :team_1_id, team_2_id = :team_2_id, referee_id = :referee_id, scheduled_at = :scheduled_at,
            score_1 = :score_1, score_2 = :score_2, status = :status, current_minute = :current_minute,
            has_penalty_shootout = :has_penalty_shootout, penalty_score_1 = :penalty_score_1, penalty_score_2 = :penalty_score_2,
            scores_from_events = :scores_from_events, is_officiated = :is_officiated,
            version = version + 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = :id AND version = :version`, match)
	if err != nil {
		return translate(err, "match")
	}
	ok, err := checkAffected(res, "match")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: match %s changed since it was read", bracket.ErrStaleWrite, match.ID)
	}
	match.Version++
	return nil
}

// IncrementScore adds one goal to a slot inside the database, so concurrent
// goals never overwrite each other.
func (s *MatchStore) IncrementScore(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, slot bracket.Slot) error {
	column := "score_1"
	if slot == bracket.SlotSecond {
		column = "score_2"
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE matches SET `+column+` = `+column+` + 1,
        scores_from_events = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), false, id)
	return translate(err, "match score")
}

func (s *MatchStore) SetScores(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, score1, score2 int, fromEvents bool) error {
	_, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE matches SET score_1 = ?, score_2 = ?, scores_from_events = ?,
        version = version + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?`), score1, score2, fromEvents, id)
	return translate(err, "match score")
}

// SetSlot puts teamID into a slot of the match. Writing the same team twice is
// fine; replacing a different team is not.
func (s *MatchStore) SetSlot(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, slot bracket.Slot, teamID uuid.UUID) error {
	column := "team_1_id"
	if slot == bracket.SlotSecond {
		column = "team_2_id"
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE matches SET `+column+` = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND (`+column+` IS NULL OR `+column+` = ?)`), teamID, id, teamID)
	if err != nil {
		return translate(err, "match slot")
	}
	ok, err := checkAffected(res, "match slot")
	if err != nil {
		return err
	}
	if !ok {
		if _, err := getMatch(ctx, tx, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s slot of match %s", bracket.ErrSlotTaken, slot, id)
	}
	return nil
}

// SetWinner records which team progressed out of the match, once.
func (s *MatchStore) SetWinner(ctx context.Context, tx *sqlx.Tx, id, winnerID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE matches SET winner_id = ?, updated_at = CURRENT_TIMESTAMP
        WHERE id = ? AND (winner_id IS NULL OR winner_id = ?)`), winnerID, id, winnerID)
	if err != nil {
		return translate(err, "match winner")
	}
	ok, err := checkAffected(res, "match winner")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: match %s already progressed a different winner", bracket.ErrSlotTaken, id)
	}
	return nil
}

func (s *MatchStore) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM matches WHERE id = ?"), id)
	if err != nil {
		return translate(err, "match")
	}
	ok, err := checkAffected(res, "match")
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: match %s", bracket.ErrNotFound, id)
	}
	return nil
}

func (s *MatchStore) CountUnfinishedInRoundTx(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, round int) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, tx.Rebind(`SELECT COUNT(*) FROM matches
        WHERE tournament_id = ? AND round_number = ? AND status <> ?`), tournamentID, round, bracket.MatchFinished)
	return count, translate(err, "round matches")
}

func (s *MatchStore) CreateEvent(ctx context.Context, tx *sqlx.Tx, event *bracket.MatchEvent) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO match_events (id, match_id, type, team_id, player_id, assist_player_id, player_in_id, minute, half, created_at)
        VALUES (:id, :match_id, :type, :team_id, :player_id, :assist_player_id, :player_in_id, :minute, :half, :created_at)`, event)
	return translate(err, "match event")
}

func (s *MatchStore) ListEvents(ctx context.Context, matchID uuid.UUID) ([]bracket.MatchEvent, error) {
	return listEvents(ctx, s.db, matchID)
}

func (s *MatchStore) ListEventsTx(ctx context.Context, tx *sqlx.Tx, matchID uuid.UUID) ([]bracket.MatchEvent, error) {
	return listEvents(ctx, tx, matchID)
}

func listEvents(ctx context.Context, q sqlx.ExtContext, matchID uuid.UUID) ([]bracket.MatchEvent, error) {
	events := []bracket.MatchEvent{}
	err := sqlx.SelectContext(ctx, q, &events,
		q.Rebind("SELECT * FROM match_events WHERE match_id = ? ORDER BY half ASC, minute ASC, created_at ASC"), matchID)
	if err != nil {
		return nil, translate(err, "match events")
	}
	return events, nil
}
