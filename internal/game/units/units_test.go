package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

func TestMobilityBoundary(t *testing.T) {
	m := DefaultMobility()

	tests := []struct {
		health int
		want   int
	}{
		{10, 1},
		{8, 1},
		{7, 1},
		{6, 2},
		{4, 2},
		{1, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.Allowance(tt.health), "health %d", tt.health)
	}
}

func TestTokenDamageAndHeal(t *testing.T) {
	tok := NewToken("p1-00", "p1", 6)
	require.True(t, tok.IsReserve())
	require.True(t, tok.IsAlive())

	tok.Deploy(board.Pos(1, 1))
	assert.True(t, tok.IsDeployed())
	assert.Equal(t, 3, tok.AttackPower())

	assert.False(t, tok.TakeDamage(5))
	assert.Equal(t, 1, tok.Health)

	assert.Equal(t, 1, tok.HealToFull())
	assert.Equal(t, 6, tok.Health)

	assert.True(t, tok.TakeDamage(9))
	assert.Equal(t, 0, tok.Health)
	assert.False(t, tok.IsAlive())
	assert.False(t, tok.IsDeployed())
	assert.Equal(t, "DESTROYED", tok.Lifecycle.String())
}

func TestTokenClone(t *testing.T) {
	tok := NewToken("a", "p", 10)
	c := tok.Clone()
	c.Health = 3
	assert.Equal(t, 10, tok.Health)
}

func TestNewRoster(t *testing.T) {
	p := NewPlayer("p1", "  ", 0)
	assert.Equal(t, "p1", p.Name)

	tokens := NewRoster(p, []int{10, 8, 6, 4}, 5)
	require.Len(t, tokens, 20)
	require.Len(t, p.TokenIDs, 20)

	assert.Equal(t, "p1-00", tokens[0].ID)
	assert.Equal(t, 10, tokens[4].MaxHealth)
	assert.Equal(t, 8, tokens[5].MaxHealth)
	assert.Equal(t, 4, tokens[19].MaxHealth)
	assert.Equal(t, "p1-19", p.TokenIDs[19])
	for _, tok := range tokens {
		assert.Equal(t, "p1", tok.OwnerID)
		assert.True(t, tok.IsReserve())
	}
}
