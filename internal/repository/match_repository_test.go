package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/watchers"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

// openTestDB connects to CRYSTAL_TEST_DATABASE_URL or skips.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("CRYSTAL_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CRYSTAL_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := NewDB(ctx, config.DatabaseConfig{URL: url, MaxConns: 2}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestNewDBRejectsBadURL(t *testing.T) {
	_, err := NewDB(context.Background(), config.DatabaseConfig{URL: "://not a url"}, nil)
	assert.Error(t, err)
}

func TestSnapshotRoundTrip(t *testing.T) {
	db := openTestDB(t)
	repo := NewMatchRepository(db)
	ctx := context.Background()

	id := uuid.NewString()
	g, err := game.NewGameState(id, game.DefaultRules(), &game.ScriptedRandom{}, nil)
	require.NoError(t, err)
	_, err = g.AddPlayer("a", "")
	require.NoError(t, err)
	_, err = g.AddPlayer("b", "")
	require.NoError(t, err)
	require.NoError(t, g.Start())
	t.Cleanup(func() {
		_, _ = db.Pool().Exec(context.Background(), `DELETE FROM match_snapshots WHERE match_id = $1`, id)
		_, _ = db.Pool().Exec(context.Background(), `DELETE FROM match_results WHERE match_id = $1`, id)
	})

	_, err = repo.LatestSnapshot(ctx, id)
	assert.ErrorIs(t, err, match.ErrMatchNotFound)

	require.NoError(t, repo.SaveSnapshot(ctx, g.Snapshot()))
	require.True(t, g.Apply(game.EndTurn{Player: "a"}).Success)
	latest := g.Snapshot()
	require.NoError(t, repo.SaveSnapshot(ctx, latest))
	require.NoError(t, repo.SaveSnapshot(ctx, latest), "saving the same turn twice is an upsert")

	got, err := repo.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnNumber)

	want, err := latest.ComputeChecksum()
	require.NoError(t, err)
	ok, err := got.VerifyChecksum(want)
	require.NoError(t, err)
	assert.True(t, ok)

	// Finishing the match keeps only the final checkpoint.
	require.NoError(t, repo.SaveResult(ctx, match.Result{
		MatchID: id, State: match.StateAbandoned, Turns: 2, Players: g.Seating(),
		StartedAt: time.Now(), FinishedAt: time.Now(),
	}))
	var remaining int
	require.NoError(t, db.Pool().QueryRow(ctx,
		`SELECT count(*) FROM match_snapshots WHERE match_id = $1`, id).Scan(&remaining))
	assert.Equal(t, 1, remaining)

	got, err = repo.LatestSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TurnNumber)

	n, err := repo.pruneSnapshots(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResults(t *testing.T) {
	db := openTestDB(t)
	repo := NewMatchRepository(db)
	ctx := context.Background()

	since := time.Now().Add(-time.Second)
	res := match.Result{
		MatchID:  uuid.NewString(),
		WinnerID: "a",
		State:    match.StateFinished,
		Turns:    31,
		Players:  []string{"a", "b"},
		Stats: []watchers.PlayerStats{
			{PlayerID: "a", DamageDealt: 12, Kills: 2, ObjectivesCaptured: 1},
			{PlayerID: "b", DamageDealt: 4, Losses: 2},
		},
		StartedAt:  since,
		FinishedAt: time.Now(),
	}
	require.NoError(t, repo.SaveResult(ctx, res))
	res.Turns = 32
	require.NoError(t, repo.SaveResult(ctx, res))

	results, err := repo.ListResults(ctx, since)
	require.NoError(t, err)
	var found *match.Result
	for i := range results {
		if results[i].MatchID == res.MatchID {
			found = &results[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, 32, found.Turns)
	assert.Equal(t, match.StateFinished, found.State)
	assert.Equal(t, res.Players, found.Players)
	assert.Equal(t, res.Stats, found.Stats)
}
