package combat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

func deployed(t *testing.T, b *board.Board, id, owner string, health int, p board.Position) *units.Token {
	t.Helper()
	tok := units.NewToken(id, owner, health)
	tok.Deploy(p)
	require.NoError(t, b.AddOccupant(p, id))
	return tok
}

func TestResolveDamagesDefender(t *testing.T) {
	b := board.New(board.DefaultConfig(), nil)
	a := deployed(t, b, "a", "p1", 10, board.Pos(8, 8))
	d := deployed(t, b, "d", "p2", 6, board.Pos(9, 9))

	out, err := Resolve(b, a, d)
	require.NoError(t, err)
	assert.Equal(t, 5, out.Damage)
	assert.Equal(t, 1, out.DefenderHealth)
	assert.False(t, out.Destroyed)
	assert.Equal(t, 1, d.Health)
	assert.True(t, d.IsAlive())
	assert.Equal(t, 10, a.Health, "no retaliation")
	assert.Equal(t, []string{"d"}, b.Occupants(d.Position))
}

func TestResolveDestroysDefender(t *testing.T) {
	b := board.New(board.DefaultConfig(), nil)
	a := deployed(t, b, "a", "p1", 10, board.Pos(8, 8))
	d := deployed(t, b, "d", "p2", 4, board.Pos(8, 9))

	out, err := Resolve(b, a, d)
	require.NoError(t, err)
	assert.True(t, out.Destroyed)
	assert.Equal(t, 0, d.Health)
	assert.False(t, d.IsAlive())
	assert.True(t, b.IsEmpty(board.Pos(8, 9)))
	assert.Equal(t, board.Pos(8, 9), out.DefenderAt)
}

func TestCanAttackPreconditions(t *testing.T) {
	b := board.New(board.DefaultConfig(), nil)
	a := deployed(t, b, "a", "p1", 10, board.Pos(8, 8))
	friend := deployed(t, b, "f", "p1", 10, board.Pos(8, 9))
	far := deployed(t, b, "far", "p2", 10, board.Pos(10, 8))
	reserve := units.NewToken("r", "p2", 10)

	assert.ErrorIs(t, CanAttack(a, friend), ErrIllegalTarget)
	assert.ErrorIs(t, CanAttack(a, far), ErrIllegalTarget)
	assert.ErrorIs(t, CanAttack(a, reserve), ErrIllegalTarget)
	assert.ErrorIs(t, CanAttack(reserve, a), ErrIllegalTarget)
	assert.ErrorIs(t, CanAttack(nil, a), ErrIllegalTarget)

	_, err := Resolve(b, a, far)
	assert.ErrorIs(t, err, ErrIllegalTarget)
	assert.Equal(t, 10, far.Health)
}

func TestPreviewDoesNotMutate(t *testing.T) {
	b := board.New(board.DefaultConfig(), nil)
	a := deployed(t, b, "a", "p1", 8, board.Pos(3, 8))
	d := deployed(t, b, "d", "p2", 4, board.Pos(4, 8))

	out, err := Preview(a, d)
	require.NoError(t, err)
	assert.Equal(t, 4, out.Damage)
	assert.True(t, out.Destroyed)
	assert.Equal(t, 4, d.Health)
	assert.True(t, d.IsDeployed())
}

func TestTargets(t *testing.T) {
	b := board.New(board.DefaultConfig(), nil)
	a := deployed(t, b, "a", "p1", 8, board.Pos(3, 8))
	d1 := deployed(t, b, "d1", "p2", 4, board.Pos(4, 8))
	d2 := deployed(t, b, "d2", "p3", 4, board.Pos(2, 7))
	d3 := deployed(t, b, "d3", "p2", 4, board.Pos(6, 8))

	got := Targets(a, []*units.Token{d1, d2, d3})
	assert.Equal(t, []*units.Token{d1, d2}, got)
}
