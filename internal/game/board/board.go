package board

import (
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrIllegalStack is returned when a non-stackable cell would hold two tokens.
	ErrIllegalStack = errors.New("illegal stack")
	// ErrOutOfBounds is returned for coordinates outside the grid.
	ErrOutOfBounds = errors.New("position out of bounds")
)

// MaxSeats is the number of corner zones on a board.
const MaxSeats = 4

// CellKind classifies a board cell.
type CellKind int

const (
	CellNormal CellKind = iota
	CellCorner
	CellObjectiveNode
	CellWinNode
	CellEventNode
)

var cellKindNames = map[CellKind]string{
	CellNormal:        "NORMAL",
	CellCorner:        "CORNER",
	CellObjectiveNode: "OBJECTIVE_NODE",
	CellWinNode:       "WIN_NODE",
	CellEventNode:     "EVENT_NODE",
}

func (k CellKind) String() string {
	if name, ok := cellKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("CELL_%d", int(k))
}

// Stackable reports whether more than one token may share a cell of this kind.
func (k CellKind) Stackable() bool {
	return k == CellObjectiveNode || k == CellWinNode
}

// Config holds the geometry parameters used to lay out a board.
type Config struct {
	Width                 int
	Height                int
	CornerSize            int
	EventNodesPerQuadrant int
	EventEdgeMargin       int
	EventMaxAttempts      int
}

// DefaultConfig returns the standard 24x24 layout.
func DefaultConfig() Config {
	return Config{
		Width:                 24,
		Height:                24,
		CornerSize:            3,
		EventNodesPerQuadrant: 2,
		EventEdgeMargin:       2,
		EventMaxAttempts:      100,
	}
}

// Randomizer supplies the randomness used for event node placement.
type Randomizer interface {
	// Intn returns a value in [0, n).
	Intn(n int) int
}

// Cell is a single grid square.
type Cell struct {
	Kind      CellKind
	occupants []string
}

// Board is the grid plus its occupancy index. Special cell layout is fixed
// at construction.
type Board struct {
	cfg        Config
	cells      [][]Cell // [y][x]
	corners    [MaxSeats][]Position
	objectives []Position
	win        Position
	events     []Position
}

// New lays out a board. rnd places the event nodes; a nil rnd places none.
func New(cfg Config, rnd Randomizer) *Board {
	b := newLayout(cfg)
	if rnd != nil {
		b.placeEventNodes(rnd)
	}
	return b
}

// Rebuild lays out a board with event nodes at known positions, as when
// restoring a saved game.
func Rebuild(cfg Config, events []Position) (*Board, error) {
	b := newLayout(cfg)
	for _, p := range events {
		if !b.InBounds(p) {
			return nil, fmt.Errorf("event node %s: %w", p, ErrOutOfBounds)
		}
		if b.cells[p.Y][p.X].Kind != CellNormal {
			return nil, fmt.Errorf("event node %s overlaps %s cell", p, b.cells[p.Y][p.X].Kind)
		}
		b.cells[p.Y][p.X].Kind = CellEventNode
		b.events = append(b.events, p)
	}
	return b, nil
}

func newLayout(cfg Config) *Board {
	b := &Board{cfg: cfg}
	b.cells = make([][]Cell, cfg.Height)
	for y := range b.cells {
		b.cells[y] = make([]Cell, cfg.Width)
	}

	for seat := 0; seat < MaxSeats; seat++ {
		b.corners[seat] = cornerZone(cfg, seat)
		for _, p := range b.corners[seat] {
			b.cells[p.Y][p.X].Kind = CellCorner
		}
	}

	midX, midY := cfg.Width/2, cfg.Height/2
	qX, qY := cfg.Width/4, cfg.Height/4
	b.objectives = []Position{
		{qX, qY},
		{midX + qX, qY},
		{qX, midY + qY},
		{midX + qX, midY + qY},
	}
	for _, p := range b.objectives {
		b.cells[p.Y][p.X].Kind = CellObjectiveNode
	}

	b.win = Position{midX, midY}
	b.cells[midY][midX].Kind = CellWinNode
	return b
}

// cornerZone lists a seat's corner cells in scan order: x outer, y inner,
// both starting from the board edge.
func cornerZone(cfg Config, seat int) []Position {
	n := cfg.CornerSize
	xs := make([]int, n)
	ys := make([]int, n)
	for i := 0; i < n; i++ {
		xs[i], ys[i] = i, i
		if seat == 1 || seat == 3 {
			xs[i] = cfg.Width - 1 - i
		}
		if seat == 2 || seat == 3 {
			ys[i] = cfg.Height - 1 - i
		}
	}
	zone := make([]Position, 0, n*n)
	for _, x := range xs {
		for _, y := range ys {
			zone = append(zone, Position{x, y})
		}
	}
	return zone
}

func (b *Board) placeEventNodes(rnd Randomizer) {
	if b.cfg.Width < 10 || b.cfg.Height < 10 {
		return
	}
	m := b.cfg.EventEdgeMargin
	midX, midY := b.cfg.Width/2, b.cfg.Height/2
	quadrants := [4][4]int{
		{m, midX - m, m, midY - m},
		{midX + m, b.cfg.Width - m, m, midY - m},
		{m, midX - m, midY + m, b.cfg.Height - m},
		{midX + m, b.cfg.Width - m, midY + m, b.cfg.Height - m},
	}

	for _, q := range quadrants {
		xMin, xMax, yMin, yMax := q[0], q[1], q[2], q[3]
		if xMax >= b.cfg.Width {
			xMax = b.cfg.Width - 1
		}
		if yMax >= b.cfg.Height {
			yMax = b.cfg.Height - 1
		}
		if xMax < xMin || yMax < yMin {
			continue
		}
		placed := 0
		for attempt := 0; placed < b.cfg.EventNodesPerQuadrant && attempt < b.cfg.EventMaxAttempts; attempt++ {
			x := xMin + rnd.Intn(xMax-xMin+1)
			y := yMin + rnd.Intn(yMax-yMin+1)
			cell := &b.cells[y][x]
			if cell.Kind != CellNormal {
				continue
			}
			cell.Kind = CellEventNode
			b.events = append(b.events, Position{x, y})
			placed++
		}
	}
}

// Config returns the layout parameters the board was built with.
func (b *Board) Config() Config {
	return b.cfg
}

// Width returns the number of columns.
func (b *Board) Width() int { return b.cfg.Width }

// Height returns the number of rows.
func (b *Board) Height() int { return b.cfg.Height }

// InBounds reports whether p lies on the grid.
func (b *Board) InBounds(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < b.cfg.Width && p.Y < b.cfg.Height
}

// CellAt returns the kind of the cell at p.
func (b *Board) CellAt(p Position) (CellKind, error) {
	if !b.InBounds(p) {
		return CellNormal, fmt.Errorf("cell %s: %w", p, ErrOutOfBounds)
	}
	return b.cells[p.Y][p.X].Kind, nil
}

// KindAt is CellAt for callers that have already checked bounds.
func (b *Board) KindAt(p Position) CellKind {
	kind, _ := b.CellAt(p)
	return kind
}

// AddOccupant places id on p.
func (b *Board) AddOccupant(p Position, id string) error {
	if !b.InBounds(p) {
		return fmt.Errorf("add %s at %s: %w", id, p, ErrOutOfBounds)
	}
	cell := &b.cells[p.Y][p.X]
	for _, existing := range cell.occupants {
		if existing == id {
			return nil
		}
	}
	if len(cell.occupants) > 0 && !cell.Kind.Stackable() {
		return fmt.Errorf("add %s at %s (%s): %w", id, p, cell.Kind, ErrIllegalStack)
	}
	cell.occupants = append(cell.occupants, id)
	return nil
}

// RemoveOccupant takes id off p. Removing an absent id is a no-op.
func (b *Board) RemoveOccupant(p Position, id string) {
	if !b.InBounds(p) {
		return
	}
	cell := &b.cells[p.Y][p.X]
	for i, existing := range cell.occupants {
		if existing == id {
			cell.occupants = append(cell.occupants[:i], cell.occupants[i+1:]...)
			return
		}
	}
}

// RemoveAllOccupants clears p.
func (b *Board) RemoveAllOccupants(p Position) {
	if !b.InBounds(p) {
		return
	}
	b.cells[p.Y][p.X].occupants = nil
}

// Occupants returns a sorted copy of the token ids on p.
func (b *Board) Occupants(p Position) []string {
	if !b.InBounds(p) {
		return nil
	}
	src := b.cells[p.Y][p.X].occupants
	if len(src) == 0 {
		return nil
	}
	out := append([]string(nil), src...)
	sort.Strings(out)
	return out
}

// IsEmpty reports whether p holds no tokens.
func (b *Board) IsEmpty(p Position) bool {
	return b.InBounds(p) && len(b.cells[p.Y][p.X].occupants) == 0
}

// CornerZone returns the corner cells owned by seat in scan order.
func (b *Board) CornerZone(seat int) []Position {
	if seat < 0 || seat >= MaxSeats {
		return nil
	}
	return append([]Position(nil), b.corners[seat]...)
}

// IsInCornerZone reports whether p belongs to seat's corner.
func (b *Board) IsInCornerZone(seat int, p Position) bool {
	if seat < 0 || seat >= MaxSeats {
		return false
	}
	for _, c := range b.corners[seat] {
		if c == p {
			return true
		}
	}
	return false
}

// FirstFreeCornerCell returns the first empty cell of seat's corner in scan order.
func (b *Board) FirstFreeCornerCell(seat int) (Position, bool) {
	if seat < 0 || seat >= MaxSeats {
		return Position{}, false
	}
	for _, p := range b.corners[seat] {
		if b.IsEmpty(p) {
			return p, true
		}
	}
	return Position{}, false
}

// ObjectiveNodes returns the objective node positions in quadrant order.
func (b *Board) ObjectiveNodes() []Position {
	return append([]Position(nil), b.objectives...)
}

// WinNode returns the central node position.
func (b *Board) WinNode() Position {
	return b.win
}

// EventNodes returns the event node positions in placement order.
func (b *Board) EventNodes() []Position {
	return append([]Position(nil), b.events...)
}

// OccupiedCells returns every position holding at least one token.
func (b *Board) OccupiedCells() []Position {
	var out []Position
	for y := range b.cells {
		for x := range b.cells[y] {
			if len(b.cells[y][x].occupants) > 0 {
				out = append(out, Position{x, y})
			}
		}
	}
	return out
}
