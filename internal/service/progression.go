package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProgressionService moves the winner of a finished match into the next
// round, or crowns the tournament winner after the final.
type ProgressionService struct {
	db          *sqlx.DB
	matches     *store.MatchStore
	tournaments *store.TournamentStore
	locks       *keylock.Locker
	notifier    Notifier
	archiver    Archiver
	logger      *slog.Logger
}

// NewProgressionService takes the same locker as BracketService. archiver
// may be nil.
func NewProgressionService(db *sqlx.DB, matches *store.MatchStore, tournaments *store.TournamentStore, locks *keylock.Locker,
	notifier Notifier, archiver Archiver, logger *slog.Logger) *ProgressionService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressionService{
		db:          db,
		matches:     matches,
		tournaments: tournaments,
		locks:       locks,
		notifier:    notifier,
		archiver:    archiver,
		logger:      logger,
	}
}

type progressOutcome struct {
	match     *bracket.Match
	winnerID  uuid.UUID
	next      *bracket.Match
	completed bool
}

// Progress is idempotent: every write only fills an empty value or confirms
// the value already there.
func (s *ProgressionService) Progress(ctx context.Context, matchID uuid.UUID) error {
	match, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return err
	}
	if match.TournamentID != nil {
		unlock := s.locks.Lock(match.TournamentID.String())
		defer unlock()
	}

	outcome, err := s.progress(ctx, matchID)
	if err != nil {
		return err
	}
	if outcome == nil || outcome.match.TournamentID == nil {
		return nil
	}

	tournamentID := *outcome.match.TournamentID
	room := tournamentID.String()
	if !outcome.completed {
		s.logger.Info("winner progressed", "match_id", matchID, "winner_id", outcome.winnerID, "next_match_id", outcome.next.ID)
		s.notifier.Notify(room, EventWinnerProgressed, outcome.next)
		return nil
	}

	s.logger.Info("tournament completed", "tournament_id", tournamentID, "winner_id", outcome.winnerID)
	b, err := loadBracket(ctx, s.tournaments, s.matches, tournamentID)
	if err != nil {
		s.logger.Error("failed to load completed bracket", "tournament_id", tournamentID, "error", err)
		return nil
	}
	s.notifier.Notify(room, EventTournamentCompleted, b)
	if s.archiver != nil {
		if err := s.archiver.Archive(ctx, b); err != nil {
			s.logger.Error("failed to archive bracket", "tournament_id", tournamentID, "error", err)
		}
	}
	return nil
}

func (s *ProgressionService) progress(ctx context.Context, matchID uuid.UUID) (*progressOutcome, error) {
	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.matches.GetMatchTx(ctx, tx, matchID)
	if err != nil {
		return nil, err
	}
	if match.Status != bracket.MatchFinished {
		s.logger.Debug("match not finished, nothing to progress", "match_id", matchID, "status", match.Status)
		return nil, nil
	}

	winnerID, err := match.Winner()
	if err != nil {
		return nil, err
	}
	if err := s.matches.SetWinner(ctx, tx, match.ID, winnerID); err != nil {
		return nil, err
	}
	outcome := &progressOutcome{match: match, winnerID: winnerID}

	switch {
	case match.TournamentID == nil:
	case match.NextMatchID != nil:
		if match.NextSlot == nil {
			return nil, fmt.Errorf("%w: match %s links to %s without a slot", bracket.ErrValidation, match.ID, *match.NextMatchID)
		}
		if err := s.matches.SetSlot(ctx, tx, *match.NextMatchID, *match.NextSlot, winnerID); err != nil {
			return nil, err
		}
		if err := s.advanceRound(ctx, tx, *match.TournamentID, match.RoundNumber); err != nil {
			return nil, err
		}
		if outcome.next, err = s.matches.GetMatchTx(ctx, tx, *match.NextMatchID); err != nil {
			return nil, err
		}
	default:
		if err := s.tournaments.SetTournamentWinnerTx(ctx, tx, *match.TournamentID, winnerID); err != nil {
			return nil, err
		}
		outcome.completed = true
	}

	if err := commit(tx); err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *ProgressionService) advanceRound(ctx context.Context, tx *sqlx.Tx, tournamentID uuid.UUID, round int) error {
	unfinished, err := s.matches.CountUnfinishedInRoundTx(ctx, tx, tournamentID, round)
	if err != nil {
		return err
	}
	if unfinished > 0 {
		return nil
	}
	return s.tournaments.AdvanceCurrentRoundTx(ctx, tx, tournamentID, round+1)
}
