package pathing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

type fixture struct {
	board  *board.Board
	tokens map[string]*units.Token
}

func newFixture() *fixture {
	return &fixture{
		board:  board.New(board.DefaultConfig(), nil),
		tokens: map[string]*units.Token{},
	}
}

func (f *fixture) place(t *testing.T, id, owner string, health int, p board.Position) *units.Token {
	t.Helper()
	tok := units.NewToken(id, owner, health)
	tok.Deploy(p)
	require.NoError(t, f.board.AddOccupant(p, id))
	f.tokens[id] = tok
	return tok
}

func (f *fixture) owners() OwnerLookup {
	return OwnerFunc(func(id string) (string, bool) {
		tok, ok := f.tokens[id]
		if !ok {
			return "", false
		}
		return tok.OwnerID, true
	})
}

func TestValidDestinationsOpenBoard(t *testing.T) {
	f := newFixture()
	tok := f.place(t, "a", "p1", 10, board.Pos(10, 3))

	one := ValidDestinations(f.board, f.owners(), tok, 1)
	assert.Len(t, one, 8)
	assert.False(t, one.Contains(tok.Position))

	two := ValidDestinations(f.board, f.owners(), tok, 2)
	assert.Len(t, two, 24)
	for p := range two {
		assert.LessOrEqual(t, p.Chebyshev(tok.Position), 2)
	}
}

func TestValidDestinationsBoardEdge(t *testing.T) {
	f := newFixture()
	tok := f.place(t, "a", "p1", 10, board.Pos(0, 0))
	dests := ValidDestinations(f.board, f.owners(), tok, 1)
	assert.ElementsMatch(t, []board.Position{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}}, dests.Sorted())
}

func TestEnemyCellsBlock(t *testing.T) {
	f := newFixture()
	tok := f.place(t, "a", "p1", 4, board.Pos(10, 10))
	f.place(t, "e", "p2", 10, board.Pos(11, 10))

	dests := ValidDestinations(f.board, f.owners(), tok, 2)
	assert.False(t, dests.Contains(board.Pos(11, 10)))
	assert.False(t, CanReach(f.board, f.owners(), tok, 2, board.Pos(11, 10)))
	// reachable around the blocker
	assert.True(t, dests.Contains(board.Pos(12, 10)))
}

func TestWalledInByEnemies(t *testing.T) {
	f := newFixture()
	tok := f.place(t, "a", "p1", 4, board.Pos(5, 10))
	for i, n := range tok.Position.Neighbors() {
		f.place(t, string(rune('m'+i)), "p2", 4, n)
	}
	assert.Empty(t, ValidDestinations(f.board, f.owners(), tok, 2))
}

func TestFriendlyStackingOnlyOnNodes(t *testing.T) {
	f := newFixture()
	obj := f.board.ObjectiveNodes()[0]
	tok := f.place(t, "a", "p1", 10, obj.Offset(-1, 0))
	f.place(t, "b", "p1", 10, obj)
	f.place(t, "c", "p1", 10, obj.Offset(-1, 1))

	dests := ValidDestinations(f.board, f.owners(), tok, 1)
	assert.True(t, dests.Contains(obj), "friendly-held objective node is enterable")
	assert.False(t, dests.Contains(obj.Offset(-1, 1)), "friendly on a normal cell blocks")

	f.place(t, "x", "p2", 10, obj.Offset(0, 1))
	require.NoError(t, f.board.AddOccupant(obj, "x"))
	f.board.RemoveOccupant(obj.Offset(0, 1), "x")
	f.tokens["x"].Position = obj

	dests = ValidDestinations(f.board, f.owners(), tok, 1)
	assert.False(t, dests.Contains(obj), "mixed occupancy blocks")
}

func TestReserveTokenHasNoDestinations(t *testing.T) {
	f := newFixture()
	tok := units.NewToken("r", "p1", 10)
	assert.Empty(t, ValidDestinations(f.board, f.owners(), tok, 1))
}
