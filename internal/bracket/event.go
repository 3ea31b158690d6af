package bracket

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventGoal         EventType = "GOAL"
	EventYellowCard   EventType = "YELLOW_CARD"
	EventRedCard      EventType = "RED_CARD"
	EventSubstitution EventType = "SUBSTITUTION"
)

type CardColor string

const (
	CardYellow CardColor = "yellow"
	CardRed    CardColor = "red"
)

func ParseCardColor(s string) (CardColor, error) {
	c := CardColor(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CardYellow, CardRed:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q, use 'yellow' or 'red'", ErrInvalidCardColor, s)
}

func (c CardColor) EventType() EventType {
	if c == CardRed {
		return EventRedCard
	}
	return EventYellowCard
}

type MatchEvent struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	MatchID        uuid.UUID  `db:"match_id" json:"match_id"`
	Type           EventType  `db:"type" json:"type"`
	TeamID         uuid.UUID  `db:"team_id" json:"team_id"`
	PlayerID       *uuid.UUID `db:"player_id" json:"player_id,omitempty"`
	AssistPlayerID *uuid.UUID `db:"assist_player_id" json:"assist_player_id,omitempty"`
	PlayerInID     *uuid.UUID `db:"player_in_id" json:"player_in_id,omitempty"`
	Minute         int        `db:"minute" json:"minute"`
	Half           int        `db:"half" json:"half"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// SlotEvents splits a match's events by the slot of the team involved.
type SlotEvents struct {
	Goals       []MatchEvent `json:"goals"`
	YellowCards []MatchEvent `json:"yellow_cards"`
	RedCards    []MatchEvent `json:"red_cards"`
}

// SplitEvents builds the per-slot goal and card lists for m.
func SplitEvents(m *Match, events []MatchEvent) (first, second SlotEvents) {
	for _, e := range events {
		slot, ok := m.SlotOf(e.TeamID)
		if !ok {
			continue
		}
		target := &first
		if slot == SlotSecond {
			target = &second
		}
		switch e.Type {
		case EventGoal:
			target.Goals = append(target.Goals, e)
		case EventYellowCard:
			target.YellowCards = append(target.YellowCards, e)
		case EventRedCard:
			target.RedCards = append(target.RedCards, e)
		}
	}
	return first, second
}

// CountGoals recounts the score of m from its goal events.
func CountGoals(m *Match, events []MatchEvent) (score1, score2 int) {
	for _, e := range events {
		if e.Type != EventGoal {
			continue
		}
		switch slot, _ := m.SlotOf(e.TeamID); slot {
		case SlotFirst:
			score1++
		case SlotSecond:
			score2++
		}
	}
	return score1, score2
}
