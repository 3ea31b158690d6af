package bracket

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTeams(n int) []Team {
	teams := make([]Team, n)
	for i := range teams {
		teams[i] = Team{ID: uuid.New(), OwnerID: uuid.New(), Name: fmt.Sprintf("Team %d", i+1), Category: CategorySenior}
	}
	return teams
}

func TestValidBracketSize(t *testing.T) {
	for _, n := range []int{2, 4, 8, 16, 32} {
		assert.True(t, ValidBracketSize(n, MaxBracketSize), "size %d", n)
	}
	for _, n := range []int{0, 1, 3, 5, 6, 7, 12, 64} {
		assert.False(t, ValidBracketSize(n, MaxBracketSize), "size %d", n)
	}
}

func TestRoundNames(t *testing.T) {
	tests := []struct {
		teams    int
		expected []string
	}{
		{2, []string{"Final"}},
		{4, []string{"Semi Finals", "Final"}},
		{8, []string{"Quarter Finals", "Semi Finals", "Final"}},
		{16, []string{"Round of 16", "Quarter Finals", "Semi Finals", "Final"}},
		{32, []string{"Round of 32", "Round of 16", "Quarter Finals", "Semi Finals", "Final"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d teams", tt.teams), func(t *testing.T) {
			assert.Equal(t, tt.expected, RoundNames(tt.teams))
		})
	}
}

func TestBuild(t *testing.T) {
	start := time.Date(2026, 5, 1, 15, 0, 0, 0, time.UTC)

	for _, n := range []int{2, 4, 8, 16, 32} {
		t.Run(fmt.Sprintf("%d teams", n), func(t *testing.T) {
			tournament := &Tournament{ID: uuid.New(), StartDate: start}
			teams := makeTeams(n)

			matches, err := Build(tournament, teams, DefaultRoundSpacing)
			require.NoError(t, err)
			require.Len(t, matches, n-1)

			byID := make(map[uuid.UUID]Match, len(matches))
			for _, m := range matches {
				byID[m.ID] = m
			}

			finals := 0
			feeds := make(map[uuid.UUID]map[Slot]int)
			for _, m := range matches {
				if m.IsFinal() {
					finals++
					assert.Nil(t, m.NextSlot)
					continue
				}
				require.NotNil(t, m.NextSlot)
				next, ok := byID[*m.NextMatchID]
				require.True(t, ok, "next match must be part of the bracket")
				assert.Equal(t, m.RoundNumber+1, next.RoundNumber)
				if feeds[next.ID] == nil {
					feeds[next.ID] = make(map[Slot]int)
				}
				feeds[next.ID][*m.NextSlot]++
			}
			assert.Equal(t, 1, finals)

			// every later-round match is fed exactly once in each slot
			for _, m := range matches {
				if m.RoundNumber == 1 {
					assert.NotNil(t, m.Team1ID)
					assert.NotNil(t, m.Team2ID)
					assert.Equal(t, start, m.ScheduledAt)
					continue
				}
				assert.Nil(t, m.Team1ID)
				assert.Nil(t, m.Team2ID)
				assert.Equal(t, map[Slot]int{SlotFirst: 1, SlotSecond: 1}, feeds[m.ID])
				assert.Equal(t, start.Add(DefaultRoundSpacing*time.Duration(m.RoundNumber)), m.ScheduledAt)
			}
		})
	}
}

func TestBuild_PairsAndLinks(t *testing.T) {
	tournament := &Tournament{ID: uuid.New(), StartDate: time.Now().UTC()}
	teams := makeTeams(4)

	matches, err := Build(tournament, teams, DefaultRoundSpacing)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	m1, m2, final := matches[0], matches[1], matches[2]

	assert.Equal(t, 1, m1.MatchNumber)
	assert.Equal(t, teams[0].ID, *m1.Team1ID)
	assert.Equal(t, teams[1].ID, *m1.Team2ID)
	assert.Equal(t, 2, m2.MatchNumber)
	assert.Equal(t, teams[2].ID, *m2.Team1ID)
	assert.Equal(t, teams[3].ID, *m2.Team2ID)

	assert.Equal(t, "Semi Finals", m1.RoundName)
	assert.Equal(t, "Final", final.RoundName)
	assert.Equal(t, final.ID, *m1.NextMatchID)
	assert.Equal(t, SlotFirst, *m1.NextSlot)
	assert.Equal(t, final.ID, *m2.NextMatchID)
	assert.Equal(t, SlotSecond, *m2.NextSlot)
}

func TestBuild_InvalidSize(t *testing.T) {
	tournament := &Tournament{ID: uuid.New()}
	for _, n := range []int{0, 1, 3, 5, 6, 7} {
		matches, err := Build(tournament, makeTeams(n), DefaultRoundSpacing)
		assert.ErrorIs(t, err, ErrInvalidBracketSize)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Nil(t, matches)
	}
}

func TestGroupRounds(t *testing.T) {
	tournament := &Tournament{ID: uuid.New()}
	matches, err := Build(tournament, makeTeams(8), DefaultRoundSpacing)
	require.NoError(t, err)

	// shuffle the input order to make sure grouping sorts
	reversed := make([]Match, len(matches))
	for i, m := range matches {
		reversed[len(matches)-1-i] = m
	}

	rounds := GroupRounds(reversed)
	require.Len(t, rounds, 3)
	assert.Equal(t, "Quarter Finals", rounds[0].Name)
	assert.Len(t, rounds[0].Matches, 4)
	assert.Equal(t, "Semi Finals", rounds[1].Name)
	assert.Len(t, rounds[1].Matches, 2)
	assert.Equal(t, "Final", rounds[2].Name)
	assert.Len(t, rounds[2].Matches, 1)

	for _, r := range rounds {
		for i, m := range r.Matches {
			assert.Equal(t, i+1, m.MatchNumber)
		}
	}
}
