package game

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

// harness drives a two-player match with a scripted random source. With
// no scripted ints the event nodes land at (14,2), (2,14) and (14,14).
type harness struct {
	t   *testing.T
	g   *GameState
	rng *ScriptedRandom
}

func newHarness(t *testing.T, players ...string) *harness {
	t.Helper()
	if len(players) == 0 {
		players = []string{"p1", "p2"}
	}
	rng := &ScriptedRandom{}
	g, err := NewGameState("match-1", DefaultRules(), rng, zaptest.NewLogger(t))
	require.NoError(t, err)
	for _, id := range players {
		_, err := g.AddPlayer(id, id)
		require.NoError(t, err)
	}
	require.NoError(t, g.Start())
	return &harness{t: t, g: g, rng: rng}
}

// put deploys a reserve token of tier straight onto p, bypassing turn rules.
func (h *harness) put(playerID string, tier int, p board.Position) string {
	h.t.Helper()
	tok := h.g.firstReserve(playerID, tier)
	require.NotNil(h.t, tok, "no tier %d reserve left for %s", tier, playerID)
	require.NoError(h.t, h.g.board.AddOccupant(p, tok.ID))
	tok.Deploy(p)
	return tok.ID
}

// relocate moves an existing token without any rule checks.
func (h *harness) relocate(id string, p board.Position) {
	h.t.Helper()
	tok := h.g.tokens[id]
	require.NotNil(h.t, tok)
	h.g.relocate(tok, p)
}

func (h *harness) setHealth(id string, health int) {
	h.t.Helper()
	tok := h.g.tokens[id]
	require.NotNil(h.t, tok)
	tok.Health = health
}

func (h *harness) apply(a Action) Result {
	h.t.Helper()
	return h.g.Apply(a)
}

func (h *harness) mustApply(a Action) Result {
	h.t.Helper()
	res := h.g.Apply(a)
	require.True(h.t, res.Success, "%v rejected: %s %s", a, res.Kind, res.Message)
	return res
}

// endTurns ends n turns in a row for whoever is current.
func (h *harness) endTurns(n int) Result {
	h.t.Helper()
	var res Result
	for i := 0; i < n; i++ {
		res = h.mustApply(EndTurn{Player: h.g.CurrentPlayer()})
	}
	return res
}
