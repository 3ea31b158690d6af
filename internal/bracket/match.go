package bracket

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MatchStatus string

const (
	MatchScheduled  MatchStatus = "SCHEDULED"
	MatchFirstHalf  MatchStatus = "FIRST_HALF"
	MatchHalfTime   MatchStatus = "HALF_TIME"
	MatchSecondHalf MatchStatus = "SECOND_HALF"
	MatchFinished   MatchStatus = "FINISHED"
)

var matchStatusOrder = map[MatchStatus]int{
	MatchScheduled:  0,
	MatchFirstHalf:  1,
	MatchHalfTime:   2,
	MatchSecondHalf: 3,
	MatchFinished:   4,
}

func ParseMatchStatus(s string) (MatchStatus, error) {
	st := MatchStatus(s)
	if _, ok := matchStatusOrder[st]; !ok {
		return "", fmt.Errorf("%w: unknown match status %q", ErrValidation, s)
	}
	return st, nil
}

// Next returns the status that follows s, or false if s is terminal.
func (s MatchStatus) Next() (MatchStatus, bool) {
	switch s {
	case MatchScheduled:
		return MatchFirstHalf, true
	case MatchFirstHalf:
		return MatchHalfTime, true
	case MatchHalfTime:
		return MatchSecondHalf, true
	case MatchSecondHalf:
		return MatchFinished, true
	}
	return "", false
}

// CanMoveTo allows a single forward step, or a jump to FINISHED from any
// unfinished state (forfeit or no-show).
func (s MatchStatus) CanMoveTo(to MatchStatus) bool {
	if s == MatchFinished {
		return false
	}
	if to == MatchFinished {
		return true
	}
	next, ok := s.Next()
	return ok && next == to
}

func (s MatchStatus) IsLive() bool {
	return s == MatchFirstHalf || s == MatchHalfTime || s == MatchSecondHalf
}

type SummaryStatus string

const (
	SummaryProgramme SummaryStatus = "PROGRAMME"
	SummaryEnCours   SummaryStatus = "EN_COURS"
	SummaryTermine   SummaryStatus = "TERMINE"
)

// Summary is the three-value view shown to external consumers. It is never stored.
func (s MatchStatus) Summary() SummaryStatus {
	switch s {
	case MatchScheduled:
		return SummaryProgramme
	case MatchFirstHalf, MatchHalfTime, MatchSecondHalf:
		return SummaryEnCours
	default:
		return SummaryTermine
	}
}

type Slot string

const (
	SlotFirst  Slot = "first"
	SlotSecond Slot = "second"
)

type Match struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	TournamentID *uuid.UUID `db:"tournament_id" json:"tournament_id,omitempty"`

	// Position in the bracket
	RoundNumber int    `db:"round_number" json:"round_number"`
	MatchNumber int    `db:"match_number" json:"match_number"`
	RoundName   string `db:"round_name" json:"round_name"`

	Team1ID *uuid.UUID `db:"team_1_id" json:"team_1_id"`
	Team2ID *uuid.UUID `db:"team_2_id" json:"team_2_id"`

	RefereeID *uuid.UUID `db:"referee_id" json:"referee_id,omitempty"`

	ScheduledAt   time.Time   `db:"scheduled_at" json:"scheduled_at"`
	Score1        int         `db:"score_1" json:"score_1"`
	Score2        int         `db:"score_2" json:"score_2"`
	Status        MatchStatus `db:"status" json:"status"`
	CurrentMinute int         `db:"current_minute" json:"current_minute"`

	HasPenaltyShootout bool `db:"has_penalty_shootout" json:"has_penalty_shootout"`
	PenaltyScore1      int  `db:"penalty_score_1" json:"penalty_score_1"`
	PenaltyScore2      int  `db:"penalty_score_2" json:"penalty_score_2"`

	NextMatchID *uuid.UUID `db:"next_match_id" json:"next_match_id,omitempty"`
	NextSlot    *Slot      `db:"next_slot" json:"next_slot,omitempty"`

	// Set once progression has run; guards against a different outcome later.
	WinnerID *uuid.UUID `db:"winner_id" json:"winner_id,omitempty"`

	ScoresFromEvents bool `db:"scores_from_events" json:"scores_from_events"`
	IsOfficiated     bool `db:"is_officiated" json:"is_officiated"`
	Version          int  `db:"version" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (m *Match) Summary() SummaryStatus {
	return m.Status.Summary()
}

func (m *Match) IsFinal() bool {
	return m.NextMatchID == nil
}

// SlotOf returns the slot occupied by teamID.
func (m *Match) SlotOf(teamID uuid.UUID) (Slot, bool) {
	if m.Team1ID != nil && *m.Team1ID == teamID {
		return SlotFirst, true
	}
	if m.Team2ID != nil && *m.Team2ID == teamID {
		return SlotSecond, true
	}
	return "", false
}

func (m *Match) HasBothTeams() bool {
	return m.Team1ID != nil && m.Team2ID != nil
}

// Winner decides the match: higher score, then higher penalty score.
func (m *Match) Winner() (uuid.UUID, error) {
	if m.Status != MatchFinished {
		return uuid.Nil, fmt.Errorf("%w: match %s is not finished", ErrInvalidTransition, m.ID)
	}
	if !m.HasBothTeams() {
		return uuid.Nil, fmt.Errorf("%w: match %s is missing a team", ErrValidation, m.ID)
	}

	switch {
	case m.Score1 > m.Score2:
		return *m.Team1ID, nil
	case m.Score2 > m.Score1:
		return *m.Team2ID, nil
	}

	if !m.HasPenaltyShootout {
		return uuid.Nil, fmt.Errorf("%w: match %s ended %d-%d without a penalty shootout", ErrUnresolvedDraw, m.ID, m.Score1, m.Score2)
	}
	switch {
	case m.PenaltyScore1 > m.PenaltyScore2:
		return *m.Team1ID, nil
	case m.PenaltyScore2 > m.PenaltyScore1:
		return *m.Team2ID, nil
	}
	return uuid.Nil, fmt.Errorf("%w: match %s still level after penalties (%d-%d)", ErrUnresolvedDraw, m.ID, m.PenaltyScore1, m.PenaltyScore2)
}
