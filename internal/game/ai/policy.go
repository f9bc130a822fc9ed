// Package ai contains simple computer players used for self-play and for
// filling empty seats.
package ai

import (
	"golang.org/x/exp/rand"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

// Policy picks the next action for playerID. Returning nil ends the turn.
type Policy interface {
	Choose(g *game.GameState, playerID string) game.Action
}

// Random picks uniformly among the legal actions.
type Random struct {
	rng *rand.Rand
}

// NewRandom returns a Random policy seeded with seed.
func NewRandom(seed uint64) *Random {
	return &Random{rng: rand.New(rand.NewSource(seed))}
}

func (r *Random) Choose(g *game.GameState, playerID string) game.Action {
	actions := g.LegalActions(playerID)
	if len(actions) == 0 {
		return nil
	}
	return actions[r.rng.Intn(len(actions))]
}

// Greedy attacks whenever it can, walks tokens towards the nearest node
// that still needs bodies and deploys when it has nothing better to do.
type Greedy struct {
	rng *rand.Rand
}

// NewGreedy returns a Greedy policy. seed breaks ties.
func NewGreedy(seed uint64) *Greedy {
	return &Greedy{rng: rand.New(rand.NewSource(seed))}
}

func (p *Greedy) Choose(g *game.GameState, playerID string) game.Action {
	actions := g.LegalActions(playerID)
	if len(actions) == 0 {
		return nil
	}

	var (
		best      []game.Action
		bestScore = 0
	)
	consider := func(a game.Action, score int) {
		switch {
		case score > bestScore:
			best, bestScore = []game.Action{a}, score
		case score == bestScore && score > 0:
			best = append(best, a)
		}
	}

	targets := p.openNodes(g, playerID)
	held := heldNodes(g)
	for _, a := range actions {
		switch a := a.(type) {
		case game.Attack:
			out, err := g.PreviewAttack(a.Attacker, a.Defender)
			if err != nil {
				continue
			}
			score := 100 + out.Damage
			if out.Destroyed {
				score += 50
			}
			consider(a, score)
		case game.Move:
			tok, _ := g.Token(a.Token)
			if held[tok.Position] {
				continue
			}
			gain := nearest(tok.Position, targets) - nearest(a.Destination, targets)
			consider(a, gain*10)
		case game.Deploy:
			// Prefer the strongest tier, and deploy only when no move helps.
			consider(a, a.Tier/2)
		}
	}

	if len(best) == 0 {
		return actions[len(actions)-1]
	}
	return best[p.rng.Intn(len(best))]
}

// openNodes lists the nodes playerID still needs more tokens on: objectives
// that are not captured yet and short of the qualifying count, then the
// win node.
func (p *Greedy) openNodes(g *game.GameState, playerID string) []board.Position {
	r := g.Rules()
	var out []board.Position
	for _, tr := range g.ObjectiveTrackers() {
		if tr.Terminal {
			continue
		}
		if friendly(g, tr.Position, playerID) < r.ObjectiveQualifying {
			out = append(out, tr.Position)
		}
	}
	win := g.WinTracker()
	if friendly(g, win.Position, playerID) < g.WinRequirement() {
		out = append(out, win.Position)
	}
	return out
}

// heldNodes are the nodes a token should stay on once it gets there.
func heldNodes(g *game.GameState) map[board.Position]bool {
	held := map[board.Position]bool{g.WinTracker().Position: true}
	for _, tr := range g.ObjectiveTrackers() {
		if !tr.Terminal {
			held[tr.Position] = true
		}
	}
	return held
}

func friendly(g *game.GameState, p board.Position, playerID string) int {
	n := 0
	for _, id := range g.Occupants(p) {
		if tok, ok := g.Token(id); ok && tok.OwnerID == playerID {
			n++
		}
	}
	return n
}

func nearest(from board.Position, targets []board.Position) int {
	best := -1
	for _, t := range targets {
		if d := from.Chebyshev(t); best < 0 || d < best {
			best = d
		}
	}
	if best < 0 {
		return 0
	}
	return best
}
