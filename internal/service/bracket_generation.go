package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
)

type BracketConfig struct {
	MaxSize      int
	RoundSpacing time.Duration
}

type BracketService struct {
	db          *sqlx.DB
	tournaments *store.TournamentStore
	matches     *store.MatchStore
	resolver    *TeamResolver
	locks       *keylock.Locker
	notifier    Notifier
	logger      *slog.Logger
	cfg         BracketConfig

	shuffle func([]bracket.Team)
}

func NewBracketService(db *sqlx.DB, tournaments *store.TournamentStore, matches *store.MatchStore, resolver *TeamResolver,
	locks *keylock.Locker, notifier Notifier, logger *slog.Logger, cfg BracketConfig) *BracketService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = bracket.MaxBracketSize
	}
	if cfg.RoundSpacing == 0 {
		cfg.RoundSpacing = bracket.DefaultRoundSpacing
	}
	return &BracketService{
		db:          db,
		tournaments: tournaments,
		matches:     matches,
		resolver:    resolver,
		locks:       locks,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		shuffle:     shuffleTeams,
	}
}

// shuffleTeams is a Fisher-Yates shuffle over the runtime-seeded global source.
func shuffleTeams(teams []bracket.Team) {
	rand.Shuffle(len(teams), func(i, j int) {
		teams[i], teams[j] = teams[j], teams[i]
	})
}

// Generate builds and stores the full bracket of a tournament. It runs once:
// the generated flag is written last, in the same transaction as the matches.
func (s *BracketService) Generate(ctx context.Context, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	unlock := s.locks.Lock(tournamentID.String())
	defer unlock()

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	tournament, err := s.tournaments.GetTournamentTx(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.IsBracketGenerated {
		return nil, fmt.Errorf("%w: tournament %s", bracket.ErrAlreadyGenerated, tournamentID)
	}
	if n := len(tournament.Participants); !bracket.ValidBracketSize(n, s.cfg.MaxSize) {
		return nil, fmt.Errorf("%w: %d participants, need a power of two between %d and %d",
			bracket.ErrInvalidBracketSize, n, bracket.MinBracketSize, s.cfg.MaxSize)
	}

	teams, err := s.resolver.resolve(ctx, tx, tournament)
	if err != nil {
		return nil, err
	}
	s.shuffle(teams)

	matches, err := bracket.Build(tournament, teams, s.cfg.RoundSpacing)
	if err != nil {
		return nil, err
	}
	if err := s.matches.CreateMatches(ctx, tx, matches); err != nil {
		return nil, fmt.Errorf("failed to create matches: %w", err)
	}
	if err := s.tournaments.MarkBracketGenerated(ctx, tx, tournamentID); err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	tournament.IsBracketGenerated = true
	tournament.Status = bracket.TournamentBracketGenerated
	tournament.CurrentRound = 1

	b := &bracket.Bracket{Tournament: tournament, Rounds: bracket.GroupRounds(matches)}
	s.logger.Info("bracket generated", "tournament_id", tournamentID, "teams", len(teams), "matches", len(matches))
	s.notifier.Notify(tournamentID.String(), EventBracketGenerated, b)
	return b, nil
}

func (s *BracketService) GetBracket(ctx context.Context, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	return loadBracket(ctx, s.tournaments, s.matches, tournamentID)
}

func loadBracket(ctx context.Context, tournaments *store.TournamentStore, matchStore *store.MatchStore, tournamentID uuid.UUID) (*bracket.Bracket, error) {
	var (
		tournament *bracket.Tournament
		matches    []bracket.Match
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = tournaments.GetTournament(gctx, tournamentID)
		return err
	})
	g.Go(func() error {
		var err error
		matches, err = matchStore.GetMatches(gctx, tournamentID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &bracket.Bracket{Tournament: tournament, Rounds: bracket.GroupRounds(matches)}, nil
}
