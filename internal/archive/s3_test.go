package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	input *s3.PutObjectInput
	body  []byte
	err   error
}

func (f *fakeS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.input = params
	body, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = body
	return &s3.PutObjectOutput{}, nil
}

func testBracket() *bracket.Bracket {
	tournamentID := uuid.New()
	winner := uuid.New()
	return &bracket.Bracket{
		Tournament: &bracket.Tournament{
			ID:           tournamentID,
			Name:         "Winter Cup",
			Status:       bracket.TournamentCompleted,
			WinnerTeamID: &winner,
		},
		Rounds: []bracket.Round{{
			Number:  1,
			Name:    "Final",
			Matches: []bracket.Match{{ID: uuid.New(), TournamentID: &tournamentID, RoundNumber: 1, MatchNumber: 1, WinnerID: &winner}},
		}},
	}
}

func TestArchive(t *testing.T) {
	client := &fakeS3{}
	archiver := newS3Archiver(client, "cups", "brackets/", nil)
	b := testBracket()

	require.NoError(t, archiver.Archive(context.Background(), b))

	require.NotNil(t, client.input)
	assert.Equal(t, "cups", aws.ToString(client.input.Bucket))
	assert.Equal(t, "brackets/"+b.Tournament.ID.String()+".json", aws.ToString(client.input.Key))
	assert.Equal(t, "application/json", aws.ToString(client.input.ContentType))

	var stored bracket.Bracket
	require.NoError(t, json.Unmarshal(client.body, &stored))
	assert.Equal(t, b.Tournament.ID, stored.Tournament.ID)
	assert.Equal(t, *b.Tournament.WinnerTeamID, *stored.Tournament.WinnerTeamID)
	require.Len(t, stored.Rounds, 1)
	assert.Equal(t, "Final", stored.Rounds[0].Name)
}

func TestArchive_Errors(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	archiver := newS3Archiver(client, "cups", "", nil)

	err := archiver.Archive(context.Background(), testBracket())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")

	err = archiver.Archive(context.Background(), &bracket.Bracket{})
	require.ErrorIs(t, err, bracket.ErrValidation)
}

func TestNewS3Archiver_RequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), Config{Endpoint: "http://localhost:9000"}, nil)
	require.Error(t, err)
}
