package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")
	database.SetMaxOpenConns(1)

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations/sqlite3",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type recordingScheduler struct {
	mu        sync.Mutex
	scheduled []uuid.UUID
}

func (r *recordingScheduler) Schedule(matchID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scheduled = append(r.scheduled, matchID)
}

func (r *recordingScheduler) count(matchID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range r.scheduled {
		if id == matchID {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(room, eventType string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, room+":"+eventType)
}

func (r *recordingNotifier) has(room, eventType string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == room+":"+eventType {
			return true
		}
	}
	return false
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*bracket.Bracket
	err      error
}

func (f *fakeArchiver) Archive(_ context.Context, b *bracket.Bracket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, b)
	return f.err
}

type testEnv struct {
	db          *sqlx.DB
	tournaments *TournamentService
	teams       *TeamService
	brackets    *BracketService
	matches     *MatchService
	progression *ProgressionService
	matchStore  *store.MatchStore
	scheduler   *recordingScheduler
	notifier    *recordingNotifier
	archiver    *fakeArchiver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	tournamentStore := store.NewTournamentStore(db)
	teamStore := store.NewTeamStore(db)
	matchStore := store.NewMatchStore(db)
	locks := keylock.New()

	env := &testEnv{
		db:         db,
		matchStore: matchStore,
		scheduler:  &recordingScheduler{},
		notifier:   &recordingNotifier{},
		archiver:   &fakeArchiver{},
	}
	env.tournaments = NewTournamentService(db, tournamentStore, locks, 0, nil)
	env.teams = NewTeamService(db, teamStore, nil)
	resolver := NewTeamResolver(db, tournamentStore, teamStore)
	env.brackets = NewBracketService(db, tournamentStore, matchStore, resolver, locks, env.notifier, nil, BracketConfig{})
	// keep participant order so tests know who meets whom
	env.brackets.shuffle = func([]bracket.Team) {}
	env.matches = NewMatchService(db, matchStore, teamStore, tournamentStore, env.scheduler, env.notifier, nil)
	env.progression = NewProgressionService(db, matchStore, tournamentStore, locks, env.notifier, env.archiver, nil)
	return env
}

var testStart = time.Date(2026, time.June, 6, 15, 0, 0, 0, time.UTC)

func (env *testEnv) createTournament(t *testing.T, maxParticipants int) *bracket.Tournament {
	t.Helper()

	tournament, err := env.tournaments.CreateTournament(context.Background(), TournamentInput{
		Name:            "Summer Cup",
		Category:        "senior",
		MaxParticipants: maxParticipants,
		StartDate:       testStart,
	})
	require.NoError(t, err)
	return tournament
}

func (env *testEnv) createTeam(t *testing.T, ownerID uuid.UUID, name string) *bracket.Team {
	t.Helper()

	team, err := env.teams.CreateTeam(context.Background(), TeamInput{
		OwnerID:     ownerID,
		Name:        name,
		Category:    "SENIOR",
		Starters:    []uuid.UUID{uuid.New(), uuid.New()},
		Substitutes: []uuid.UUID{uuid.New()},
	})
	require.NoError(t, err)
	return team
}

// registerTeams creates n teams and registers their owners, in order.
func (env *testEnv) registerTeams(t *testing.T, tournament *bracket.Tournament, n int) []*bracket.Team {
	t.Helper()

	teams := make([]*bracket.Team, n)
	for i := range teams {
		teams[i] = env.createTeam(t, uuid.New(), fmt.Sprintf("Club %d", i+1))
		_, err := env.tournaments.AddParticipant(context.Background(), tournament.ID, teams[i].OwnerID)
		require.NoError(t, err)
	}
	return teams
}

func (env *testEnv) generateBracket(t *testing.T, n int) (*bracket.Bracket, []*bracket.Team) {
	t.Helper()

	tournament := env.createTournament(t, n)
	teams := env.registerTeams(t, tournament, n)
	b, err := env.brackets.Generate(context.Background(), tournament.ID)
	require.NoError(t, err)
	return b, teams
}

// assignReferee puts a fresh referee on the match and returns them.
func (env *testEnv) assignReferee(t *testing.T, matchID uuid.UUID) bracket.Actor {
	t.Helper()

	refereeID := uuid.New()
	_, err := env.matches.UpdateMatch(context.Background(), matchID, bracket.Organizer(), MatchUpdate{RefereeID: &refereeID})
	require.NoError(t, err)
	return bracket.Referee(refereeID)
}

// playMatch runs a match through every status and leaves it finished with
// the given score.
func (env *testEnv) playMatch(t *testing.T, matchID uuid.UUID, score1, score2 int) *bracket.Match {
	t.Helper()

	ctx := context.Background()
	referee := env.assignReferee(t, matchID)
	_, err := env.matches.StartMatch(ctx, matchID)
	require.NoError(t, err)
	_, err = env.matches.UpdateMatch(ctx, matchID, referee, MatchUpdate{Score1: &score1, Score2: &score2})
	require.NoError(t, err)
	_, err = env.matches.EndFirstHalf(ctx, matchID)
	require.NoError(t, err)
	_, err = env.matches.StartSecondHalf(ctx, matchID)
	require.NoError(t, err)
	match, err := env.matches.FinishMatch(ctx, matchID)
	require.NoError(t, err)
	return match
}
