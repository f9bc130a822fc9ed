package game

import (
	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/combat"
	"github.com/crystalrace/crystal-server-go/internal/game/pathing"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
	"github.com/crystalrace/crystal-server-go/internal/game/watchers"
)

// Phase returns the match lifecycle phase.
func (g *GameState) Phase() rules.GamePhase { return g.phase }

// WinnerID returns the winner, or "" while undecided.
func (g *GameState) WinnerID() string { return g.winnerID }

// CurrentPlayer returns whose turn it is, or "" outside Playing/Ended.
func (g *GameState) CurrentPlayer() string {
	if g.turns == nil {
		return ""
	}
	return g.turns.CurrentPlayer()
}

// TurnNumber returns the 1-based turn counter, 0 before Start.
func (g *GameState) TurnNumber() int {
	if g.turns == nil {
		return 0
	}
	return g.turns.TurnNumber()
}

// TurnPhase returns the phase of the current turn.
func (g *GameState) TurnPhase() rules.TurnPhase {
	if g.turns == nil {
		return rules.PhaseMovement
	}
	return g.turns.Phase()
}

// Attacked reports whether the current player has used their attack.
func (g *GameState) Attacked() bool {
	return g.turns != nil && g.turns.Attacked()
}

// Seating returns player ids in turn order.
func (g *GameState) Seating() []string {
	return append([]string(nil), g.seating...)
}

// Player returns a copy of the player with id.
func (g *GameState) Player(id string) (units.Player, bool) {
	p, ok := g.players[id]
	if !ok {
		return units.Player{}, false
	}
	c := *p
	c.TokenIDs = append([]string(nil), p.TokenIDs...)
	return c, true
}

// Token returns a copy of the token with id.
func (g *GameState) Token(id string) (units.Token, bool) {
	tok, ok := g.tokens[id]
	if !ok {
		return units.Token{}, false
	}
	return *tok, true
}

// CellKind returns the kind of the cell at p.
func (g *GameState) CellKind(p board.Position) (board.CellKind, error) {
	return g.board.CellAt(p)
}

// Occupants returns the token ids on p.
func (g *GameState) Occupants(p board.Position) []string {
	return g.board.Occupants(p)
}

// BoardConfig returns the board geometry.
func (g *GameState) BoardConfig() board.Config { return g.board.Config() }

// CornerZone returns the deployment cells of seat.
func (g *GameState) CornerZone(seat int) []board.Position { return g.board.CornerZone(seat) }

// EventNodes returns the event node positions.
func (g *GameState) EventNodes() []board.Position { return g.board.EventNodes() }

// Reserve returns how many tokens of each tier playerID can still deploy.
func (g *GameState) Reserve(playerID string) map[int]int {
	counts := make(map[int]int, len(g.rules.Tiers))
	for _, t := range g.rules.Tiers {
		counts[t] = 0
	}
	p, ok := g.players[playerID]
	if !ok {
		return counts
	}
	for _, id := range p.TokenIDs {
		if tok := g.tokens[id]; tok != nil && tok.IsReserve() {
			counts[tok.MaxHealth]++
		}
	}
	return counts
}

// DeployedTokens returns copies of playerID's tokens on the board, in roster order.
func (g *GameState) DeployedTokens(playerID string) []units.Token {
	p, ok := g.players[playerID]
	if !ok {
		return nil
	}
	var out []units.Token
	for _, id := range p.TokenIDs {
		if tok := g.tokens[id]; tok != nil && tok.IsDeployed() {
			out = append(out, *tok)
		}
	}
	return out
}

// WinRequirement is the number of tokens needed to dominate the win node now.
func (g *GameState) WinRequirement() int {
	return capture.WinThreshold(g.rules.WinBase, g.rules.ObjectiveReduction, g.capturedCount(), g.rules.WinMinimum)
}

// CapturedObjectives returns the ids of captured objective trackers.
func (g *GameState) CapturedObjectives() []string {
	var out []string
	for _, t := range g.objectives {
		if t.Terminal {
			out = append(out, t.ID)
		}
	}
	return out
}

// ObjectiveTrackers returns copies of the objective trackers.
func (g *GameState) ObjectiveTrackers() []capture.Tracker {
	out := make([]capture.Tracker, 0, len(g.objectives))
	for _, t := range g.objectives {
		out = append(out, *t)
	}
	return out
}

// WinTracker returns a copy of the win tracker.
func (g *GameState) WinTracker() capture.Tracker {
	return *g.win
}

// ValidDestinations returns where tokenID could move this turn, sorted.
func (g *GameState) ValidDestinations(tokenID string) []board.Position {
	tok, ok := g.tokens[tokenID]
	if !ok {
		return nil
	}
	return pathing.ValidDestinations(g.board, g, tok, g.allowance(tok)).Sorted()
}

// MovementAllowance returns how far tokenID may move at its current health.
func (g *GameState) MovementAllowance(tokenID string) int {
	tok, ok := g.tokens[tokenID]
	if !ok || !tok.IsDeployed() {
		return 0
	}
	return g.allowance(tok)
}

// AttackableTargets returns the ids of enemy tokens adjacent to tokenID.
func (g *GameState) AttackableTargets(tokenID string) []string {
	tok, ok := g.tokens[tokenID]
	if !ok || !tok.IsDeployed() {
		return nil
	}
	var out []string
	for _, n := range tok.Position.Neighbors() {
		for _, id := range g.board.Occupants(n) {
			if combat.CanAttack(tok, g.tokens[id]) == nil {
				out = append(out, id)
			}
		}
	}
	return out
}

// PreviewAttack reports what an attack would do without applying it.
func (g *GameState) PreviewAttack(attackerID, defenderID string) (combat.Outcome, error) {
	a, ok := g.tokens[attackerID]
	if !ok {
		return combat.Outcome{}, reject(KindUnknownToken, "token %q does not exist", attackerID)
	}
	d, ok := g.tokens[defenderID]
	if !ok {
		return combat.Outcome{}, reject(KindUnknownToken, "token %q does not exist", defenderID)
	}
	return combat.Preview(a, d)
}

// Stats summarizes what playerID has done since the state was created.
func (g *GameState) Stats(playerID string) watchers.PlayerStats {
	return watchers.Summarize(g.watchers, playerID)
}
