package game

import (
	"errors"
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// Verify checks the occupancy index against token state and the other
// structural invariants. A nil result means the state is consistent.
func (g *GameState) Verify() error {
	var errs []error

	for _, pid := range g.seating {
		for _, id := range g.players[pid].TokenIDs {
			if tok, ok := g.tokens[id]; !ok || tok.OwnerID != pid {
				errs = append(errs, fmt.Errorf("roster of %s lists unknown token %s", pid, id))
			}
		}
	}

	for _, id := range g.sortedTokenIDs() {
		tok := g.tokens[id]
		if owner, ok := g.players[tok.OwnerID]; !ok || !contains(owner.TokenIDs, id) {
			errs = append(errs, fmt.Errorf("token %s is missing from the roster of %s", id, tok.OwnerID))
		}
		switch tok.Lifecycle {
		case units.LifecycleDeployed:
			if tok.Health < 1 || tok.Health > tok.MaxHealth {
				errs = append(errs, fmt.Errorf("token %s health %d outside 1..%d", id, tok.Health, tok.MaxHealth))
			}
			if !contains(g.board.Occupants(tok.Position), id) {
				errs = append(errs, fmt.Errorf("token %s missing from %s", id, tok.Position))
			}
		case units.LifecycleReserve:
			if tok.Health != tok.MaxHealth {
				errs = append(errs, fmt.Errorf("reserve token %s has health %d", id, tok.Health))
			}
		case units.LifecycleDestroyed:
			if tok.Health != 0 {
				errs = append(errs, fmt.Errorf("destroyed token %s has health %d", id, tok.Health))
			}
		}
	}

	for _, cell := range g.board.OccupiedCells() {
		ids := g.board.Occupants(cell)
		if len(ids) > 1 && !g.board.KindAt(cell).Stackable() {
			errs = append(errs, fmt.Errorf("%d tokens stacked on %s cell %s", len(ids), g.board.KindAt(cell), cell))
		}
		owner := ""
		for _, id := range ids {
			tok, ok := g.tokens[id]
			if !ok || !tok.IsDeployed() || tok.Position != cell {
				errs = append(errs, fmt.Errorf("stale occupant %s on %s", id, cell))
				continue
			}
			if owner != "" && tok.OwnerID != owner {
				errs = append(errs, fmt.Errorf("%s and %s share %s", owner, tok.OwnerID, cell))
			}
			owner = tok.OwnerID
		}
	}

	trackers := append(g.ObjectiveTrackers(), g.WinTracker())
	for _, tr := range trackers {
		if tr.HolderID == "" && tr.TurnsHeld != 0 {
			errs = append(errs, fmt.Errorf("tracker %s counts %d turns without a holder", tr.ID, tr.TurnsHeld))
		}
		if tr.TurnsHeld > tr.RequiredTurns {
			errs = append(errs, fmt.Errorf("tracker %s held %d of %d turns", tr.ID, tr.TurnsHeld, tr.RequiredTurns))
		}
		if _, ok := g.players[tr.HolderID]; tr.HolderID != "" && !ok {
			errs = append(errs, fmt.Errorf("tracker %s held by unknown player %s", tr.ID, tr.HolderID))
		}
		if done := tr.HolderID != "" && tr.TurnsHeld >= tr.RequiredTurns; done != tr.Terminal {
			errs = append(errs, fmt.Errorf("tracker %s terminal=%t after %d of %d turns", tr.ID, tr.Terminal, tr.TurnsHeld, tr.RequiredTurns))
		}
	}

	switch g.phase {
	case rules.GamePlaying:
		if g.winnerID != "" {
			errs = append(errs, fmt.Errorf("winner %s while playing", g.winnerID))
		}
		if g.win.Terminal {
			errs = append(errs, errors.New("win node captured while playing"))
		}
	case rules.GameEnded:
		if g.winnerID == "" || !g.win.Terminal {
			errs = append(errs, errors.New("match ended without a winner"))
		} else if g.win.HolderID != g.winnerID {
			errs = append(errs, fmt.Errorf("winner %s does not hold the win node", g.winnerID))
		}
	}
	return errors.Join(errs...)
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
