package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/AdamBeresnev/knockout-cup/internal/keylock"
	"github.com/AdamBeresnev/knockout-cup/internal/store"
	"github.com/AdamBeresnev/knockout-cup/internal/utils"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const staleWriteAttempts = 3

type MatchService struct {
	db          *sqlx.DB
	matches     *store.MatchStore
	teams       *store.TeamStore
	tournaments *store.TournamentStore
	locks       *keylock.Locker
	scheduler   ProgressScheduler
	notifier    Notifier
	logger      *slog.Logger
}

func NewMatchService(db *sqlx.DB, matches *store.MatchStore, teams *store.TeamStore, tournaments *store.TournamentStore,
	scheduler ProgressScheduler, notifier Notifier, logger *slog.Logger) *MatchService {
	if scheduler == nil {
		scheduler = nopScheduler{}
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MatchService{
		db:          db,
		matches:     matches,
		teams:       teams,
		tournaments: tournaments,
		locks:       keylock.New(),
		scheduler:   scheduler,
		notifier:    notifier,
		logger:      logger,
	}
}

type MatchInput struct {
	Team1ID     uuid.UUID  `json:"team_1_id"`
	Team2ID     uuid.UUID  `json:"team_2_id"`
	RefereeID   *uuid.UUID `json:"referee_id"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	Label       string     `json:"label"`
}

// CreateMatch schedules a standalone match between two existing teams.
// Bracket matches only come from bracket generation.
func (s *MatchService) CreateMatch(ctx context.Context, input MatchInput) (*bracket.Match, error) {
	if input.Team1ID == uuid.Nil || input.Team2ID == uuid.Nil {
		return nil, fmt.Errorf("%w: both teams are required", bracket.ErrValidation)
	}
	if input.Team1ID == input.Team2ID {
		return nil, fmt.Errorf("%w: a team cannot play itself", bracket.ErrValidation)
	}
	if input.ScheduledAt.IsZero() {
		return nil, fmt.Errorf("%w: scheduled date is required", bracket.ErrValidation)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for _, id := range []uuid.UUID{input.Team1ID, input.Team2ID} {
		if _, err := s.teams.GetTeamTx(ctx, tx, id); err != nil {
			return nil, err
		}
	}

	match := &bracket.Match{
		ID:          uuid.New(),
		RoundName:   input.Label,
		Team1ID:     utils.Ptr(input.Team1ID),
		Team2ID:     utils.Ptr(input.Team2ID),
		RefereeID:   input.RefereeID,
		ScheduledAt: input.ScheduledAt.UTC(),
		Status:      bracket.MatchScheduled,
	}
	if err := s.matches.CreateMatch(ctx, tx, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}
	created, err := s.matches.GetMatchTx(ctx, tx, match.ID)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}

	s.logger.Info("match created", "match_id", created.ID)
	return created, nil
}

func (s *MatchService) GetMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return s.matches.GetMatch(ctx, id)
}

func (s *MatchService) ListMatches(ctx context.Context, filter store.MatchFilter) ([]bracket.Match, error) {
	return s.matches.ListMatches(ctx, filter)
}

type MatchDetail struct {
	*bracket.Match
	Summary bracket.SummaryStatus `json:"summary"`
	Team1   bracket.SlotEvents    `json:"team_1_events"`
	Team2   bracket.SlotEvents    `json:"team_2_events"`
	Events  []bracket.MatchEvent  `json:"events"`
}

func (s *MatchService) GetMatchDetail(ctx context.Context, id uuid.UUID) (*MatchDetail, error) {
	match, err := s.matches.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := s.matches.ListEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	first, second := bracket.SplitEvents(match, events)
	return &MatchDetail{Match: match, Summary: match.Summary(), Team1: first, Team2: second, Events: events}, nil
}

func (s *MatchService) ListEvents(ctx context.Context, id uuid.UUID) ([]bracket.MatchEvent, error) {
	if _, err := s.matches.GetMatch(ctx, id); err != nil {
		return nil, err
	}
	return s.matches.ListEvents(ctx, id)
}

// DeleteMatch removes a standalone match. Bracket matches live and die with
// their tournament.
func (s *MatchService) DeleteMatch(ctx context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	match, err := s.matches.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	if match.TournamentID != nil {
		return fmt.Errorf("%w: match %s belongs to tournament %s", bracket.ErrConflict, id, match.TournamentID)
	}
	return s.matches.DeleteMatch(ctx, id)
}

// mutate runs change inside a transaction while holding the match lock, and
// retries when another writer got to the row first.
func (s *MatchService) mutate(ctx context.Context, id uuid.UUID, change func(*sqlx.Tx, *bracket.Match) error) (*bracket.Match, error) {
	unlock := s.locks.Lock(id.String())
	defer unlock()

	var err error
	for attempt := 1; attempt <= staleWriteAttempts; attempt++ {
		var updated *bracket.Match
		updated, err = s.mutateOnce(ctx, id, change)
		if err == nil {
			s.notifier.Notify(matchRoom(updated), EventMatchUpdated, updated)
			return updated, nil
		}
		if !errors.Is(err, bracket.ErrStaleWrite) {
			return nil, err
		}
		s.logger.Warn("stale match write, retrying", "match_id", id, "attempt", attempt)
	}
	return nil, err
}

func (s *MatchService) mutateOnce(ctx context.Context, id uuid.UUID, change func(*sqlx.Tx, *bracket.Match) error) (*bracket.Match, error) {
	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	match, err := s.matches.GetMatchTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := change(tx, match); err != nil {
		return nil, err
	}

	updated, err := s.matches.GetMatchTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := commit(tx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *MatchService) StartMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return s.transition(ctx, id, bracket.MatchScheduled, bracket.MatchFirstHalf)
}

func (s *MatchService) EndFirstHalf(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return s.transition(ctx, id, bracket.MatchFirstHalf, bracket.MatchHalfTime)
}

func (s *MatchService) StartSecondHalf(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return s.transition(ctx, id, bracket.MatchHalfTime, bracket.MatchSecondHalf)
}

// FinishMatch ends an officiated match. When goals were recorded as events the
// final score is recounted from them, then progression is scheduled.
func (s *MatchService) FinishMatch(ctx context.Context, id uuid.UUID) (*bracket.Match, error) {
	return s.transition(ctx, id, bracket.MatchSecondHalf, bracket.MatchFinished)
}

func (s *MatchService) transition(ctx context.Context, id uuid.UUID, from, to bracket.MatchStatus) (*bracket.Match, error) {
	match, err := s.mutate(ctx, id, func(tx *sqlx.Tx, m *bracket.Match) error {
		if m.Status != from {
			return fmt.Errorf("%w: match %s is %s, cannot move to %s", bracket.ErrInvalidTransition, m.ID, m.Status, to)
		}
		if to == bracket.MatchFinished {
			if err := s.syncFromGoalEvents(ctx, tx, m); err != nil {
				return err
			}
		}
		if err := s.applyStatus(ctx, tx, m, to); err != nil {
			return err
		}
		m.IsOfficiated = true
		return s.matches.UpdateMatch(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("match status changed", "match_id", id, "from", from, "to", to)
	if to == bracket.MatchFinished {
		s.scheduler.Schedule(id)
	}
	return match, nil
}

// applyStatus moves m to status and handles what the new state implies.
func (s *MatchService) applyStatus(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, status bracket.MatchStatus) error {
	if !m.Status.CanMoveTo(status) {
		return fmt.Errorf("%w: match %s cannot go from %s to %s", bracket.ErrInvalidTransition, m.ID, m.Status, status)
	}

	switch status {
	case bracket.MatchFirstHalf:
		if !m.HasBothTeams() {
			return fmt.Errorf("%w: match %s is still waiting for a team", bracket.ErrInvalidTransition, m.ID)
		}
		m.CurrentMinute = 0
		if m.TournamentID != nil {
			if err := s.tournaments.MarkInProgressTx(ctx, tx, *m.TournamentID); err != nil {
				return err
			}
		}
	case bracket.MatchHalfTime, bracket.MatchSecondHalf:
		m.CurrentMinute = 45
	case bracket.MatchFinished:
		if !m.HasBothTeams() {
			return fmt.Errorf("%w: match %s is still waiting for a team", bracket.ErrInvalidTransition, m.ID)
		}
		m.CurrentMinute = 90
	}
	m.Status = status
	return nil
}

func (s *MatchService) syncFromGoalEvents(ctx context.Context, tx *sqlx.Tx, m *bracket.Match) error {
	events, err := s.matches.ListEventsTx(ctx, tx, m.ID)
	if err != nil {
		return err
	}
	for _, e := range events {
		if e.Type == bracket.EventGoal {
			m.Score1, m.Score2 = bracket.CountGoals(m, events)
			m.ScoresFromEvents = true
			return nil
		}
	}
	return nil
}

type MatchUpdate struct {
	Score1        *int                 `json:"score_1"`
	Score2        *int                 `json:"score_2"`
	Status        *bracket.MatchStatus `json:"status"`
	ScheduledAt   *time.Time           `json:"scheduled_at"`
	Team1ID       *uuid.UUID           `json:"team_1_id"`
	Team2ID       *uuid.UUID           `json:"team_2_id"`
	RefereeID     *uuid.UUID           `json:"referee_id"`
	CurrentMinute *int                 `json:"current_minute"`
}

// restrictedFields lists the fields set in u that only an organizer may change.
func (u MatchUpdate) restrictedFields() []string {
	var fields []string
	if u.ScheduledAt != nil {
		fields = append(fields, "scheduled_at")
	}
	if u.Team1ID != nil {
		fields = append(fields, "team_1_id")
	}
	if u.Team2ID != nil {
		fields = append(fields, "team_2_id")
	}
	if u.RefereeID != nil {
		fields = append(fields, "referee_id")
	}
	if u.CurrentMinute != nil {
		fields = append(fields, "current_minute")
	}
	return fields
}

// changesResult reports whether u would rewrite the scores stored on m.
func (u MatchUpdate) changesResult(m *bracket.Match) bool {
	return (u.Score1 != nil && *u.Score1 != m.Score1) || (u.Score2 != nil && *u.Score2 != m.Score2)
}

// checkResultOpen rejects a new result once the winner has moved on: the next
// match already holds that team.
func checkResultOpen(m *bracket.Match) error {
	if m.WinnerID == nil {
		return nil
	}
	return fmt.Errorf("%w: match %s already progressed %s, its result is final", bracket.ErrConflict, m.ID, *m.WinnerID)
}

// UpdateMatch applies a partial edit. Referees may only touch the scores and
// the status of the matches they are assigned to; organizers may touch
// everything.
func (s *MatchService) UpdateMatch(ctx context.Context, id uuid.UUID, actor bracket.Actor, u MatchUpdate) (*bracket.Match, error) {
	switch actor.Role {
	case bracket.RoleOrganizer:
	case bracket.RoleReferee:
		if fields := u.restrictedFields(); len(fields) > 0 {
			return nil, fmt.Errorf("%w: %s may not change %v", bracket.ErrRestrictedField, actor.Role, fields)
		}
	default:
		return nil, fmt.Errorf("%w: role %q may not update matches", bracket.ErrForbidden, actor.Role)
	}
	if (u.Score1 != nil && *u.Score1 < 0) || (u.Score2 != nil && *u.Score2 < 0) {
		return nil, fmt.Errorf("%w: scores cannot be negative", bracket.ErrValidation)
	}
	if u.CurrentMinute != nil && *u.CurrentMinute < 0 {
		return nil, fmt.Errorf("%w: minute cannot be negative", bracket.ErrValidation)
	}
	if u.Status != nil {
		if _, err := bracket.ParseMatchStatus(string(*u.Status)); err != nil {
			return nil, err
		}
	}

	var reachedFinish, scoresChanged bool
	match, err := s.mutate(ctx, id, func(tx *sqlx.Tx, m *bracket.Match) error {
		reachedFinish, scoresChanged = false, false

		if err := actor.Authorize(m); err != nil {
			return err
		}
		if u.changesResult(m) {
			if err := checkResultOpen(m); err != nil {
				return err
			}
		}
		if u.RefereeID != nil {
			m.RefereeID = u.RefereeID
		}
		if u.Team1ID != nil || u.Team2ID != nil {
			if err := s.applyTeams(ctx, tx, m, u.Team1ID, u.Team2ID); err != nil {
				return err
			}
		}
		if u.ScheduledAt != nil {
			m.ScheduledAt = u.ScheduledAt.UTC()
		}
		if u.CurrentMinute != nil {
			m.CurrentMinute = *u.CurrentMinute
		}
		if u.Score1 != nil {
			scoresChanged = scoresChanged || m.Score1 != *u.Score1
			m.Score1 = *u.Score1
			m.ScoresFromEvents = false
		}
		if u.Score2 != nil {
			scoresChanged = scoresChanged || m.Score2 != *u.Score2
			m.Score2 = *u.Score2
			m.ScoresFromEvents = false
		}
		if u.Status != nil && *u.Status != m.Status {
			if err := s.applyStatus(ctx, tx, m, *u.Status); err != nil {
				return err
			}
			reachedFinish = m.Status == bracket.MatchFinished
		}
		return s.matches.UpdateMatch(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("match updated", "match_id", id, "role", actor.Role, "status", match.Status)
	if reachedFinish || (scoresChanged && match.Status == bracket.MatchFinished) {
		s.scheduler.Schedule(id)
	}
	return match, nil
}

func (s *MatchService) applyTeams(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, team1, team2 *uuid.UUID) error {
	if m.TournamentID != nil {
		return fmt.Errorf("%w: teams of bracket match %s are set by the bracket", bracket.ErrConflict, m.ID)
	}
	if m.Status != bracket.MatchScheduled {
		return fmt.Errorf("%w: match %s already kicked off", bracket.ErrConflict, m.ID)
	}
	if team1 != nil {
		m.Team1ID = team1
	}
	if team2 != nil {
		m.Team2ID = team2
	}
	if m.Team1ID != nil && m.Team2ID != nil && *m.Team1ID == *m.Team2ID {
		return fmt.Errorf("%w: a team cannot play itself", bracket.ErrValidation)
	}
	for _, id := range []*uuid.UUID{team1, team2} {
		if id == nil {
			continue
		}
		if _, err := s.teams.GetTeamTx(ctx, tx, *id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateMinute moves the live clock of a match in play. The assigned referee
// keeps the clock, so unlike UpdateMatch this is open to them.
func (s *MatchService) UpdateMinute(ctx context.Context, id uuid.UUID, actor bracket.Actor, minute int) (*bracket.Match, error) {
	if minute < 0 {
		return nil, fmt.Errorf("%w: minute cannot be negative", bracket.ErrValidation)
	}
	return s.mutate(ctx, id, func(tx *sqlx.Tx, m *bracket.Match) error {
		if err := actor.Authorize(m); err != nil {
			return err
		}
		if !m.Status.IsLive() {
			return fmt.Errorf("%w: match %s is %s, not in play", bracket.ErrInvalidTransition, m.ID, m.Status)
		}
		m.CurrentMinute = minute
		return s.matches.UpdateMatch(ctx, tx, m)
	})
}

type GoalInput struct {
	TeamID         uuid.UUID  `json:"team_id"`
	PlayerID       *uuid.UUID `json:"player_id"`
	AssistPlayerID *uuid.UUID `json:"assist_player_id"`
	Minute         int        `json:"minute"`
}

// RecordGoal stores the goal and bumps the scoring slot in one transaction.
func (s *MatchService) RecordGoal(ctx context.Context, matchID uuid.UUID, input GoalInput) (*bracket.Match, error) {
	return s.mutate(ctx, matchID, func(tx *sqlx.Tx, m *bracket.Match) error {
		slot, err := s.checkLiveEvent(ctx, tx, m, input.TeamID, input.PlayerID, input.AssistPlayerID)
		if err != nil {
			return err
		}
		event := s.newEvent(m, bracket.EventGoal, input.TeamID, input.Minute)
		event.PlayerID = input.PlayerID
		event.AssistPlayerID = input.AssistPlayerID
		if err := s.matches.CreateEvent(ctx, tx, event); err != nil {
			return err
		}
		return s.matches.IncrementScore(ctx, tx, m.ID, slot)
	})
}

type CardInput struct {
	TeamID   uuid.UUID `json:"team_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Color    string    `json:"color"`
	Minute   int       `json:"minute"`
}

func (s *MatchService) RecordCard(ctx context.Context, matchID uuid.UUID, input CardInput) (*bracket.Match, error) {
	color, err := bracket.ParseCardColor(input.Color)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, matchID, func(tx *sqlx.Tx, m *bracket.Match) error {
		if _, err := s.checkLiveEvent(ctx, tx, m, input.TeamID, &input.PlayerID); err != nil {
			return err
		}
		event := s.newEvent(m, color.EventType(), input.TeamID, input.Minute)
		event.PlayerID = utils.Ptr(input.PlayerID)
		return s.matches.CreateEvent(ctx, tx, event)
	})
}

type SubstitutionInput struct {
	TeamID      uuid.UUID `json:"team_id"`
	PlayerOutID uuid.UUID `json:"player_out_id"`
	PlayerInID  uuid.UUID `json:"player_in_id"`
	Minute      int       `json:"minute"`
}

func (s *MatchService) RecordSubstitution(ctx context.Context, matchID uuid.UUID, input SubstitutionInput) (*bracket.Match, error) {
	if input.PlayerOutID == input.PlayerInID {
		return nil, fmt.Errorf("%w: a player cannot replace themselves", bracket.ErrValidation)
	}
	return s.mutate(ctx, matchID, func(tx *sqlx.Tx, m *bracket.Match) error {
		if _, err := s.checkLiveEvent(ctx, tx, m, input.TeamID, &input.PlayerOutID, &input.PlayerInID); err != nil {
			return err
		}
		event := s.newEvent(m, bracket.EventSubstitution, input.TeamID, input.Minute)
		event.PlayerID = utils.Ptr(input.PlayerOutID)
		event.PlayerInID = utils.Ptr(input.PlayerInID)
		return s.matches.CreateEvent(ctx, tx, event)
	})
}

// checkLiveEvent validates an in-play event and returns the slot of its team.
// Players, when given, must be on that team's roster.
func (s *MatchService) checkLiveEvent(ctx context.Context, tx *sqlx.Tx, m *bracket.Match, teamID uuid.UUID, players ...*uuid.UUID) (bracket.Slot, error) {
	if !m.Status.IsLive() {
		return "", fmt.Errorf("%w: match %s is %s, not in play", bracket.ErrInvalidTransition, m.ID, m.Status)
	}
	slot, ok := m.SlotOf(teamID)
	if !ok {
		return "", fmt.Errorf("%w: team %s is not playing match %s", bracket.ErrValidation, teamID, m.ID)
	}

	var team *bracket.Team
	for _, p := range players {
		if p == nil {
			continue
		}
		if team == nil {
			var err error
			if team, err = s.teams.GetTeamTx(ctx, tx, teamID); err != nil {
				return "", err
			}
		}
		if !team.HasPlayer(*p) {
			return "", fmt.Errorf("%w: player %s is not on the roster of %s", bracket.ErrValidation, *p, team.Name)
		}
	}
	return slot, nil
}

func (s *MatchService) newEvent(m *bracket.Match, eventType bracket.EventType, teamID uuid.UUID, minute int) *bracket.MatchEvent {
	if minute <= 0 {
		minute = m.CurrentMinute
	}
	half := 1
	if m.Status == bracket.MatchSecondHalf {
		half = 2
	}
	return &bracket.MatchEvent{
		ID:        uuid.New(),
		MatchID:   m.ID,
		Type:      eventType,
		TeamID:    teamID,
		Minute:    minute,
		Half:      half,
		CreatedAt: time.Now().UTC(),
	}
}

// RecordPenalties settles a drawn, finished match and reschedules progression.
func (s *MatchService) RecordPenalties(ctx context.Context, matchID uuid.UUID, penalty1, penalty2 int) (*bracket.Match, error) {
	if penalty1 < 0 || penalty2 < 0 {
		return nil, fmt.Errorf("%w: penalty scores cannot be negative", bracket.ErrValidation)
	}
	match, err := s.mutate(ctx, matchID, func(tx *sqlx.Tx, m *bracket.Match) error {
		if m.Status != bracket.MatchFinished {
			return fmt.Errorf("%w: penalties are taken after the final whistle", bracket.ErrInvalidTransition)
		}
		if m.Score1 != m.Score2 {
			return fmt.Errorf("%w: match %s was not drawn (%d-%d)", bracket.ErrValidation, m.ID, m.Score1, m.Score2)
		}
		if m.HasPenaltyShootout && m.PenaltyScore1 == penalty1 && m.PenaltyScore2 == penalty2 {
			return nil
		}
		if err := checkResultOpen(m); err != nil {
			return err
		}
		m.HasPenaltyShootout = true
		m.PenaltyScore1 = penalty1
		m.PenaltyScore2 = penalty2
		return s.matches.UpdateMatch(ctx, tx, m)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("penalty shootout recorded", "match_id", matchID, "penalties", fmt.Sprintf("%d-%d", penalty1, penalty2))
	s.scheduler.Schedule(matchID)
	return match, nil
}

// SyncScoresFromEvents recounts both scores from the recorded goals,
// overwriting whatever was stored.
func (s *MatchService) SyncScoresFromEvents(ctx context.Context, matchID uuid.UUID) (*bracket.Match, error) {
	match, err := s.mutate(ctx, matchID, func(tx *sqlx.Tx, m *bracket.Match) error {
		events, err := s.matches.ListEventsTx(ctx, tx, m.ID)
		if err != nil {
			return err
		}
		score1, score2 := bracket.CountGoals(m, events)
		if m.WinnerID != nil {
			recounted := *m
			recounted.Score1, recounted.Score2 = score1, score2
			if winner, err := recounted.Winner(); err != nil || winner != *m.WinnerID {
				return checkResultOpen(m)
			}
		}
		return s.matches.SetScores(ctx, tx, m.ID, score1, score2, true)
	})
	if err != nil {
		return nil, err
	}

	if match.Status == bracket.MatchFinished {
		s.scheduler.Schedule(matchID)
	}
	return match, nil
}
