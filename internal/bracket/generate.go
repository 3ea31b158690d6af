package bracket

import (
	"fmt"
	"sort"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/utils"
	"github.com/google/uuid"
)

const (
	MinBracketSize = 2
	MaxBracketSize = 32

	DefaultRoundSpacing = 3 * 24 * time.Hour
)

type Round struct {
	Number  int     `json:"number"`
	Name    string  `json:"name"`
	Matches []Match `json:"matches"`
}

type Bracket struct {
	Tournament *Tournament `json:"tournament"`
	Rounds     []Round     `json:"rounds"`
}

func (b *Bracket) MatchCount() int {
	n := 0
	for _, r := range b.Rounds {
		n += len(r.Matches)
	}
	return n
}

// ValidBracketSize reports whether n is a power of two between 2 and max.
func ValidBracketSize(n, max int) bool {
	return n >= MinBracketSize && n <= max && n&(n-1) == 0
}

// RoundName names a round by how many teams enter it.
func RoundName(teams int) string {
	switch teams {
	case 2:
		return "Final"
	case 4:
		return "Semi Finals"
	case 8:
		return "Quarter Finals"
	default:
		return fmt.Sprintf("Round of %d", teams)
	}
}

// RoundNames halves the team count down to the final, so 8 teams gives
// Quarter Finals, Semi Finals, Final.
func RoundNames(teams int) []string {
	var names []string
	for size := teams; size >= 2; size /= 2 {
		names = append(names, RoundName(size))
	}
	return names
}

// Build lays out every match of a single elimination bracket for teams, which
// must already be in seeded order. Round 1 pairs teams 0v1, 2v3 and so on; later
// rounds start empty and are fed in pairs by the round before.
func Build(tournament *Tournament, teams []Team, spacing time.Duration) ([]Match, error) {
	n := len(teams)
	if !ValidBracketSize(n, n) {
		return nil, fmt.Errorf("%w: %d teams, need a power of two", ErrInvalidBracketSize, n)
	}

	names := RoundNames(n)
	tournamentID := tournament.ID
	matches := make([]Match, 0, n-1)

	var previous []int
	for r, name := range names {
		roundNumber := r + 1
		scheduledAt := tournament.StartDate
		if roundNumber > 1 {
			scheduledAt = tournament.StartDate.Add(spacing * time.Duration(roundNumber))
		}

		count := n >> roundNumber
		current := make([]int, 0, count)
		for i := 0; i < count; i++ {
			m := Match{
				ID:           uuid.New(),
				TournamentID: &tournamentID,
				RoundNumber:  roundNumber,
				MatchNumber:  i + 1,
				RoundName:    name,
				ScheduledAt:  scheduledAt,
				Status:       MatchScheduled,
			}
			if roundNumber == 1 {
				m.Team1ID = &teams[2*i].ID
				m.Team2ID = &teams[2*i+1].ID
			}
			matches = append(matches, m)
			current = append(current, len(matches)-1)
		}

		for i, idx := range previous {
			slot := SlotFirst
			if i%2 == 1 {
				slot = SlotSecond
			}
			matches[idx].NextMatchID = utils.Ptr(matches[current[i/2]].ID)
			matches[idx].NextSlot = utils.Ptr(slot)
		}
		previous = current
	}

	return matches, nil
}

// GroupRounds orders matches into rounds, round 1 first.
func GroupRounds(matches []Match) []Round {
	byRound := make(map[int]*Round)
	for _, m := range matches {
		r, ok := byRound[m.RoundNumber]
		if !ok {
			r = &Round{Number: m.RoundNumber, Name: m.RoundName}
			byRound[m.RoundNumber] = r
		}
		r.Matches = append(r.Matches, m)
	}

	rounds := make([]Round, 0, len(byRound))
	for _, r := range byRound {
		sort.Slice(r.Matches, func(i, j int) bool {
			return r.Matches[i].MatchNumber < r.Matches[j].MatchNumber
		})
		rounds = append(rounds, *r)
	}
	sort.Slice(rounds, func(i, j int) bool {
		return rounds[i].Number < rounds[j].Number
	})
	return rounds
}
