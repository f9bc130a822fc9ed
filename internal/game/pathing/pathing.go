package pathing

import (
	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// OwnerLookup resolves a token id to its owning player.
type OwnerLookup interface {
	OwnerOf(tokenID string) (string, bool)
}

// OwnerFunc adapts a function to OwnerLookup.
type OwnerFunc func(tokenID string) (string, bool)

// OwnerOf implements OwnerLookup.
func (f OwnerFunc) OwnerOf(tokenID string) (string, bool) {
	return f(tokenID)
}

// Passable reports whether a token owned by ownerID may enter p.
// Empty cells are always passable; occupied cells only when they are
// stackable and every occupant is friendly.
func Passable(b *board.Board, owners OwnerLookup, ownerID string, p board.Position) bool {
	if !b.InBounds(p) {
		return false
	}
	occupants := b.Occupants(p)
	if len(occupants) == 0 {
		return true
	}
	if !b.KindAt(p).Stackable() {
		return false
	}
	for _, id := range occupants {
		owner, ok := owners.OwnerOf(id)
		if !ok || owner != ownerID {
			return false
		}
	}
	return true
}

// ValidDestinations returns every cell tok can reach within allowance king
// steps. Blocked cells are neither destinations nor expansion points. The
// token's own cell is never included.
func ValidDestinations(b *board.Board, owners OwnerLookup, tok *units.Token, allowance int) board.PositionSet {
	result := board.PositionSet{}
	if tok == nil || !tok.IsDeployed() || allowance <= 0 {
		return result
	}

	start := tok.Position
	visited := board.PositionSet{}
	visited.Add(start)
	frontier := []board.Position{start}

	for depth := 0; depth < allowance && len(frontier) > 0; depth++ {
		var next []board.Position
		for _, p := range frontier {
			for _, n := range p.Neighbors() {
				if visited.Contains(n) {
					continue
				}
				visited.Add(n)
				if !Passable(b, owners, tok.OwnerID, n) {
					continue
				}
				result.Add(n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	return result
}

// CanReach reports whether dest is one of tok's valid destinations.
func CanReach(b *board.Board, owners OwnerLookup, tok *units.Token, allowance int, dest board.Position) bool {
	if tok == nil || dest == tok.Position {
		return false
	}
	return ValidDestinations(b, owners, tok, allowance).Contains(dest)
}
