package units

import (
	"fmt"
	"strings"
)

// Player is a seated participant and the ids of the tokens they own.
type Player struct {
	ID       string
	Name     string
	Seat     int
	TokenIDs []string
}

// NewPlayer creates a player with an empty roster.
func NewPlayer(id, name string, seat int) *Player {
	name = strings.TrimSpace(name)
	if name == "" {
		name = id
	}
	return &Player{ID: id, Name: name, Seat: seat}
}

// TokenID builds the id of the n-th token owned by playerID.
func TokenID(playerID string, n int) string {
	return fmt.Sprintf("%s-%02d", playerID, n)
}

// NewRoster creates the player's full set of reserve tokens, tiers in order,
// perTier tokens each, and records their ids on the player.
func NewRoster(p *Player, tiers []int, perTier int) []*Token {
	tokens := make([]*Token, 0, len(tiers)*perTier)
	p.TokenIDs = p.TokenIDs[:0]
	n := 0
	for _, health := range tiers {
		for i := 0; i < perTier; i++ {
			tok := NewToken(TokenID(p.ID, n), p.ID, health)
			tokens = append(tokens, tok)
			p.TokenIDs = append(p.TokenIDs, tok.ID)
			n++
		}
	}
	return tokens
}
