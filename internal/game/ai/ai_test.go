package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
)

// TestSelfPlayInvariants plays seeded bot matches and checks the engine's
// structural invariants after every single action.
func TestSelfPlayInvariants(t *testing.T) {
	for seed := uint64(1); seed <= 12; seed++ {
		seed := seed
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			players := []string{"a", "b"}
			if seed%3 == 0 {
				players = []string{"a", "b", "c", "d"}
			}
			g, err := NewMatch(fmt.Sprintf("self-%d", seed), game.DefaultRules(), seed, players, zaptest.NewLogger(t))
			require.NoError(t, err)

			policies := map[string]Policy{}
			for i, p := range players {
				if i%2 == 0 {
					policies[p] = NewGreedy(seed + uint64(i))
				} else {
					policies[p] = NewRandom(seed + uint64(i))
				}
			}

			out, err := PlayMatch(context.Background(), g, policies, Options{
				MaxTurns: 150,
				OnAction: func(a game.Action, res game.Result) {
					require.NoError(t, g.Verify(), "after %v", a)
				},
			})
			require.NoError(t, err)
			assert.Positive(t, out.Actions)

			if out.WinnerID != "" {
				assert.Equal(t, rules.GameEnded, g.Phase())
				assert.False(t, out.Capped)
			} else {
				assert.True(t, out.Capped)
			}

			// The final position survives a snapshot round trip.
			restored, err := game.Restore(g.Snapshot(), game.NewSeededRandom(seed), nil)
			require.NoError(t, err)
			require.NoError(t, restored.Verify())
		})
	}
}

func TestGreedyReachesObjectives(t *testing.T) {
	g, err := NewMatch("greedy", game.DefaultRules(), 5, []string{"a", "b"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := PlayMatch(context.Background(), g, map[string]Policy{
		"a": NewGreedy(1),
		"b": NewGreedy(2),
	}, Options{MaxTurns: 120})
	require.NoError(t, err)
	assert.NotEmpty(t, g.CapturedObjectives(), "outcome %+v", out)
	assert.Less(t, g.WinRequirement(), g.Rules().WinBase)
}

func TestRandomOnlyChoosesLegalActions(t *testing.T) {
	g, err := NewMatch("random", game.DefaultRules(), 9, []string{"a", "b", "c"}, nil)
	require.NoError(t, err)
	r := NewRandom(3)
	for i := 0; i < 200 && g.Phase() == rules.GamePlaying; i++ {
		player := g.CurrentPlayer()
		a := r.Choose(g, player)
		require.NotNil(t, a)
		res := g.Apply(a)
		require.True(t, res.Success, "%v: %s", a, res.Message)
	}
	assert.Nil(t, r.Choose(g, "nobody"))
}

func TestPlayMatchErrors(t *testing.T) {
	g, err := NewMatch("err", game.DefaultRules(), 1, []string{"a", "b"}, nil)
	require.NoError(t, err)

	_, err = PlayMatch(context.Background(), g, map[string]Policy{"a": NewRandom(1)}, Options{})
	assert.Error(t, err, "missing policy")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = PlayMatch(ctx, g, map[string]Policy{"a": NewRandom(1), "b": NewRandom(2)}, Options{})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = PlayMatch(context.Background(), g, map[string]Policy{"a": cheater{}, "b": cheater{}}, Options{})
	assert.ErrorIs(t, err, game.ErrNotYourTurn)

	_, err = NewMatch("bad", game.DefaultRules(), 1, []string{"solo"}, nil)
	assert.Error(t, err)
}

// cheater always tries to act for the other seat.
type cheater struct{}

func (cheater) Choose(g *game.GameState, playerID string) game.Action {
	for _, id := range g.Seating() {
		if id != playerID {
			return game.EndTurn{Player: id}
		}
	}
	return nil
}
