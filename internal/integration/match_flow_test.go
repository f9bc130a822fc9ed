package integration

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/crystalrace/crystal-server-go/internal/config"
	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/match"
	"github.com/crystalrace/crystal-server-go/internal/server"
)

// matchServerEnv wires the manager, store, replay recorder and gRPC
// transport the way cmd/server does, over an in-memory listener.
type matchServerEnv struct {
	logger    *zap.Logger
	store     *match.MemoryStore
	replayDir string
	manager   *match.Manager
	client    *server.Client
}

func newMatchServerEnv(t testing.TB) *matchServerEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.Replay.Directory = t.TempDir()

	store := match.NewMemoryStore()
	mgr := match.NewManager(match.Config{
		Rules:       cfg.Game.Rules(),
		MaxMatches:  cfg.Server.MaxMatches,
		TurnTimeout: cfg.Server.TurnTimeout,
		BcryptCost:  bcrypt.MinCost,
	}, logger,
		match.WithStore(store),
		match.WithRecorder(game.NewReplayRecorder(logger, cfg.Replay.Directory)),
		match.WithSeeds(func() uint64 { return 7 }),
	)

	lis := bufconn.Listen(1 << 20)
	srv := server.NewGRPCServer(cfg.Server.GRPC, mgr, logger)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///crystal",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &matchServerEnv{
		logger:    logger,
		store:     store,
		replayDir: cfg.Replay.Directory,
		manager:   mgr,
		client:    server.NewClient(conn),
	}
}

func TestHumanVersusBotMatch(t *testing.T) {
	env := newMatchServerEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	created, err := env.client.CreateMatch(ctx, server.CreateMatchRequest{
		Players: []server.PlayerSpecView{{ID: "human"}, {ID: "bot", Bot: true}},
	})
	require.NoError(t, err)
	require.Len(t, created.Credentials, 1, "only human seats get a secret")
	assert.Equal(t, "human", created.Credentials[0].PlayerID)
	assert.Equal(t, "human", created.Snapshot.CurrentPlayer)
	secret := created.Credentials[0].Secret

	stream, err := env.client.WatchMatch(ctx, created.MatchID)
	require.NoError(t, err)
	first, err := stream.Recv()
	require.NoError(t, err)
	assert.Equal(t, 1, first.Snapshot.TurnNumber)

	updates := make(chan server.UpdateView, 256)
	go func() {
		defer close(updates)
		for {
			u, err := stream.Recv()
			if err != nil {
				return
			}
			updates <- u
		}
	}()

	const rounds = 4
	for round := 0; round < rounds; round++ {
		snap, err := env.client.GetSnapshot(ctx, created.MatchID)
		require.NoError(t, err)
		if snap.GamePhase != "PLAYING" || snap.CurrentPlayer != "human" {
			break
		}

		legal, err := env.client.LegalActions(ctx, created.MatchID, "human")
		require.NoError(t, err)
		require.NotEmpty(t, legal.Actions)

		// Make the first legal move or deploy, then pass the turn.
		for _, a := range legal.Actions {
			if a.Kind == "MOVE" || a.Kind == "DEPLOY" {
				res, err := env.client.SubmitAction(ctx, server.SubmitRequest{
					MatchID: created.MatchID, PlayerID: "human", Secret: secret, Action: a,
				})
				require.NoError(t, err)
				assert.True(t, res.Success, res.Message)
				break
			}
		}
		res, err := env.client.SubmitAction(ctx, server.SubmitRequest{
			MatchID: created.MatchID, PlayerID: "human", Secret: secret,
			Action: server.ActionView{Kind: "END_TURN", Player: "human"},
		})
		require.NoError(t, err)
		require.True(t, res.Success, res.Message)
	}

	// The bot answers inside the same request, so the turn is back with
	// the human unless the match already ended.
	snap, err := env.manager.Snapshot(ctx, created.MatchID)
	require.NoError(t, err)
	require.NoError(t, func() error {
		g, err := game.Restore(snap, game.NewSeededRandom(1), env.logger)
		if err != nil {
			return err
		}
		return g.Verify()
	}())
	if snap.GamePhase == rules.GamePlaying {
		assert.Equal(t, "human", snap.Seating[snap.OrderIndex])
		assert.Greater(t, snap.TurnNumber, rounds)
		require.NoError(t, env.manager.Abandon(ctx, created.MatchID))
	}

	var seen []server.UpdateView
	for u := range updates {
		seen = append(seen, u)
	}
	var botActed bool
	for _, u := range seen {
		assert.Equal(t, created.MatchID, u.MatchID)
		if u.PlayerID == "bot" {
			botActed = true
		}
	}
	assert.True(t, botActed, "watchers see bot actions")

	result, ok := env.store.Result(created.MatchID)
	require.True(t, ok)
	assert.Equal(t, []string{"human", "bot"}, result.Players)
	assert.NotEqual(t, match.StatePlaying, result.State)
	require.Len(t, result.Stats, 2)

	replay, err := game.LoadReplayFromFile(env.replayDir, created.MatchID)
	require.NoError(t, err)
	require.Greater(t, replay.Size(), 2*rounds)
	for i := 0; i < replay.Size(); i++ {
		frame := replay.FrameAt(i)
		g, err := game.Restore(frame.Snapshot, game.NewSeededRandom(uint64(i)), env.logger)
		require.NoError(t, err, "frame %d", i)
		require.NoError(t, g.Verify(), "frame %d", i)
	}
	last := replay.Last().Snapshot
	assert.Equal(t, result.Turns, last.TurnNumber)

	stored, err := env.store.LatestSnapshot(ctx, created.MatchID)
	require.NoError(t, err)
	assert.Equal(t, last.TurnNumber, stored.TurnNumber)
}

func TestRejectedActionsLeaveStateUntouched(t *testing.T) {
	env := newMatchServerEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	created, err := env.client.CreateMatch(ctx, server.CreateMatchRequest{
		Players: []server.PlayerSpecView{{ID: "a"}, {ID: "b"}},
	})
	require.NoError(t, err)
	before, err := env.manager.Snapshot(ctx, created.MatchID)
	require.NoError(t, err)
	beforeSum, err := before.ComputeChecksum()
	require.NoError(t, err)

	want := map[string]string{
		"END_TURN": "NOT_YOUR_TURN",
		"ATTACK":   "WRONG_PHASE",
		"MOVE":     "ILLEGAL_DESTINATION",
	}
	for _, a := range []server.ActionView{
		{Kind: "END_TURN", Player: "b"},
		{Kind: "ATTACK", Player: "a", Attacker: "a-00", Defender: "b-00"},
		{Kind: "MOVE", Player: "a", Token: "a-00", Destination: &server.PositionView{X: -1, Y: 0}},
	} {
		secret := created.Credentials[0].Secret
		if a.Player == "b" {
			secret = created.Credentials[1].Secret
		}
		_, err := env.client.SubmitAction(ctx, server.SubmitRequest{
			MatchID: created.MatchID, PlayerID: a.Player, Secret: secret, Action: a,
		})
		require.Error(t, err, a.Kind)
		assert.Equal(t, want[a.Kind], server.RejectionKind(err))
	}

	after, err := env.manager.Snapshot(ctx, created.MatchID)
	require.NoError(t, err)
	afterSum, err := after.ComputeChecksum()
	require.NoError(t, err)
	assert.Equal(t, beforeSum.Hash, afterSum.Hash)
}
