package service

import (
	"context"
	"testing"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTeam(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	player := uuid.New()

	testCases := []struct {
		name    string
		input   TeamInput
		wantErr error
	}{
		{
			name:  "valid",
			input: TeamInput{OwnerID: owner, Name: "Rovers", Category: "kids", Starters: []uuid.UUID{player}},
		},
		{
			name:    "second team in the same category",
			input:   TeamInput{OwnerID: owner, Name: "Rovers B", Category: "KIDS"},
			wantErr: bracket.ErrConflict,
		},
		{
			name:    "missing owner",
			input:   TeamInput{Name: "Nobody", Category: "KIDS"},
			wantErr: bracket.ErrValidation,
		},
		{
			name:    "player listed twice",
			input:   TeamInput{OwnerID: uuid.New(), Name: "Twice", Category: "KIDS", Starters: []uuid.UUID{player}, Substitutes: []uuid.UUID{player}},
			wantErr: bracket.ErrValidation,
		},
		{
			name:    "unknown category",
			input:   TeamInput{OwnerID: uuid.New(), Name: "Vets", Category: "OVER_40"},
			wantErr: bracket.ErrInvalidCategory,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			team, err := env.teams.CreateTeam(ctx, tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			stored, err := env.teams.GetTeam(ctx, team.ID)
			require.NoError(t, err)
			assert.Equal(t, bracket.CategoryKids, stored.Category)
			assert.Equal(t, []uuid.UUID{player}, stored.Starters)
			assert.True(t, stored.HasPlayer(player))
		})
	}
}

func TestReplaceRoster(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	team := env.createTeam(t, uuid.New(), "Rovers")
	starters := []uuid.UUID{uuid.New(), uuid.New()}
	subs := []uuid.UUID{uuid.New()}

	updated, err := env.teams.ReplaceRoster(ctx, team.ID, starters, subs)
	require.NoError(t, err)
	assert.Equal(t, starters, updated.Starters)

	stored, err := env.teams.GetTeam(ctx, team.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, starters, stored.Starters)
	assert.ElementsMatch(t, subs, stored.Substitutes)
	assert.False(t, stored.HasPlayer(team.Starters[0]))

	_, err = env.teams.ReplaceRoster(ctx, uuid.New(), starters, nil)
	require.ErrorIs(t, err, bracket.ErrNotFound)
}

func TestTeamsLockedOnceDrawn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, teams := env.generateBracket(t, 2)

	_, err := env.teams.ReplaceRoster(ctx, teams[0].ID, []uuid.UUID{uuid.New()}, nil)
	require.ErrorIs(t, err, bracket.ErrTeamInUse)

	err = env.teams.DeleteTeam(ctx, teams[1].ID)
	require.ErrorIs(t, err, bracket.ErrTeamInUse)
	assert.Equal(t, bracket.KindConflict, bracket.KindOf(err))
}
