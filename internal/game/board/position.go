package board

import (
	"fmt"
	"sort"
)

// Position is a cell coordinate on the board.
type Position struct {
	X int
	Y int
}

// Pos is shorthand for Position{X: x, Y: y}.
func Pos(x, y int) Position {
	return Position{X: x, Y: y}
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// Offset returns the position shifted by dx, dy.
func (p Position) Offset(dx, dy int) Position {
	return Position{X: p.X + dx, Y: p.Y + dy}
}

// Chebyshev returns the king-move distance between two positions.
func (p Position) Chebyshev(other Position) int {
	dx := abs(p.X - other.X)
	dy := abs(p.Y - other.Y)
	if dx > dy {
		return dx
	}
	return dy
}

// IsAdjacent reports whether other is one of the 8 neighbours of p.
func (p Position) IsAdjacent(other Position) bool {
	return p.Chebyshev(other) == 1
}

// Directions lists the 8 king-move offsets in a fixed order.
var Directions = [8]Position{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// Neighbors returns the 8 surrounding positions, not bounds-checked.
func (p Position) Neighbors() []Position {
	out := make([]Position, 0, len(Directions))
	for _, d := range Directions {
		out = append(out, p.Offset(d.X, d.Y))
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// PositionSet is an unordered set of positions.
type PositionSet map[Position]struct{}

// Add inserts p into the set.
func (s PositionSet) Add(p Position) {
	s[p] = struct{}{}
}

// Contains reports whether p is in the set.
func (s PositionSet) Contains(p Position) bool {
	_, ok := s[p]
	return ok
}

// Sorted returns the members ordered by row then column.
func (s PositionSet) Sorted() []Position {
	out := make([]Position, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	SortPositions(out)
	return out
}

// SortPositions orders positions by Y then X.
func SortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Y != ps[j].Y {
			return ps[i].Y < ps[j].Y
		}
		return ps[i].X < ps[j].X
	})
}
