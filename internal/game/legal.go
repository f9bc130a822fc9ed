package game

import (
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
)

// LegalActions enumerates every action playerID could submit right now
// that Apply would accept. EndTurn is always last.
func (g *GameState) LegalActions(playerID string) []Action {
	if g.phase != rules.GamePlaying || g.turns.CurrentPlayer() != playerID {
		return nil
	}

	var actions []Action
	deployed := g.DeployedTokens(playerID)

	if g.turns.CanPosition() {
		for _, tok := range deployed {
			for _, dest := range g.ValidDestinations(tok.ID) {
				actions = append(actions, Move{Player: playerID, Token: tok.ID, Destination: dest})
			}
		}

		seat := g.players[playerID].Seat
		reserve := g.Reserve(playerID)
		for _, tier := range g.rules.Tiers {
			if reserve[tier] == 0 {
				continue
			}
			for _, cell := range g.board.CornerZone(seat) {
				if g.board.IsEmpty(cell) {
					actions = append(actions, Deploy{Player: playerID, Tier: tier, Destination: cell})
				}
			}
		}
	}

	if g.turns.CanAttack() {
		for _, tok := range deployed {
			for _, target := range g.AttackableTargets(tok.ID) {
				actions = append(actions, Attack{Player: playerID, Attacker: tok.ID, Defender: target})
			}
		}
	}

	return append(actions, EndTurn{Player: playerID})
}
