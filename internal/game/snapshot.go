package game

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// SnapshotVersion is bumped whenever Snapshot changes shape.
const SnapshotVersion = 1

// Snapshot is a complete, self-contained copy of a GameState. It holds no
// pointers into the live state and can be gob encoded.
type Snapshot struct {
	Version    int
	MatchID    string
	Rules      Rules
	EventNodes []board.Position

	Seating []string
	Players []units.Player
	Tokens  []units.Token

	Objectives []capture.Tracker
	Win        capture.Tracker

	TurnNumber int
	OrderIndex int
	TurnPhase  rules.TurnPhase
	Attacked   bool
	GamePhase  rules.GamePhase
	WinnerID   string

	Timestamp time.Time
}

// Snapshot captures the full state. Watcher statistics are not included.
func (g *GameState) Snapshot() *Snapshot {
	s := &Snapshot{
		Version:    SnapshotVersion,
		MatchID:    g.id,
		Rules:      g.rules.clone(),
		EventNodes: g.board.EventNodes(),
		Seating:    g.Seating(),
		Win:        *g.win,
		GamePhase:  g.phase,
		WinnerID:   g.winnerID,
		Timestamp:  time.Now().UTC(),
	}
	for _, id := range g.seating {
		p, _ := g.Player(id)
		s.Players = append(s.Players, p)
	}
	for _, id := range g.sortedTokenIDs() {
		s.Tokens = append(s.Tokens, *g.tokens[id])
	}
	s.Objectives = g.ObjectiveTrackers()
	if g.turns != nil {
		s.TurnNumber = g.turns.TurnNumber()
		s.OrderIndex = g.turns.OrderIndex()
		s.TurnPhase = g.turns.Phase()
		s.Attacked = g.turns.Attacked()
	}
	return s
}

// Restore rebuilds a GameState from s, re-deriving the occupancy index and
// checking it against the stacking rules.
func Restore(s *Snapshot, rng RandomSource, logger *zap.Logger) (*GameState, error) {
	if s == nil {
		return nil, fmt.Errorf("restore: nil snapshot")
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("restore: unsupported snapshot version %d", s.Version)
	}
	if err := s.Rules.Validate(); err != nil {
		return nil, fmt.Errorf("restore: invalid rules: %w", err)
	}
	if rng == nil {
		return nil, fmt.Errorf("restore: random source is required")
	}

	g := newShell(s.MatchID, s.Rules, rng, logger)
	b, err := board.Rebuild(s.Rules.Board, s.EventNodes)
	if err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	g.board = b

	if len(s.Players) != len(s.Seating) {
		return nil, fmt.Errorf("restore: %d players for %d seats", len(s.Players), len(s.Seating))
	}
	for i, p := range s.Players {
		if p.ID != s.Seating[i] || p.Seat != i {
			return nil, fmt.Errorf("restore: player %s does not match seat %d", p.ID, i)
		}
		c := p
		c.TokenIDs = append([]string(nil), p.TokenIDs...)
		g.players[p.ID] = &c
		g.seating = append(g.seating, p.ID)
	}

	for _, t := range s.Tokens {
		if err := g.restoreToken(t); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	nodes := g.board.ObjectiveNodes()
	if len(s.Objectives) != len(nodes) {
		return nil, fmt.Errorf("restore: %d objective trackers for %d nodes", len(s.Objectives), len(nodes))
	}
	for i, tr := range s.Objectives {
		if tr.Position != nodes[i] || tr.Kind != capture.KindObjective {
			return nil, fmt.Errorf("restore: objective tracker %s is not at %s", tr.ID, nodes[i])
		}
		c := tr
		g.objectives = append(g.objectives, &c)
	}
	if s.Win.Position != g.board.WinNode() || s.Win.Kind != capture.KindWin {
		return nil, fmt.Errorf("restore: win tracker is not at %s", g.board.WinNode())
	}
	win := s.Win
	g.win = &win

	g.phase = s.GamePhase
	g.winnerID = s.WinnerID
	switch s.GamePhase {
	case rules.GameSetup:
		if len(g.tokens) > 0 || s.WinnerID != "" {
			return nil, fmt.Errorf("restore: setup snapshot carries play state")
		}
	case rules.GamePlaying, rules.GameEnded:
		if (s.GamePhase == rules.GameEnded) != (s.WinnerID != "") {
			return nil, fmt.Errorf("restore: phase %s with winner %q", s.GamePhase, s.WinnerID)
		}
		if s.WinnerID != "" {
			if _, ok := g.players[s.WinnerID]; !ok {
				return nil, fmt.Errorf("restore: unknown winner %s", s.WinnerID)
			}
		}
		g.turns = rules.NewTurnManager(g.seating)
		if err := g.turns.Restore(s.OrderIndex, s.TurnNumber, s.TurnPhase, s.Attacked); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	default:
		return nil, fmt.Errorf("restore: unknown game phase %d", int(s.GamePhase))
	}
	if err := g.Verify(); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}

	if logger != nil {
		logger.Debug("restored match",
			zap.String("match_id", s.MatchID),
			zap.Int("turn", s.TurnNumber),
			zap.Int("tokens", len(s.Tokens)),
		)
	}
	return g, nil
}

func (g *GameState) restoreToken(t units.Token) error {
	if _, dup := g.tokens[t.ID]; dup {
		return fmt.Errorf("duplicate token %s", t.ID)
	}
	if _, ok := g.players[t.OwnerID]; !ok {
		return fmt.Errorf("token %s owned by unknown player %s", t.ID, t.OwnerID)
	}
	if !g.rules.HasTier(t.MaxHealth) {
		return fmt.Errorf("token %s has tier %d", t.ID, t.MaxHealth)
	}
	switch t.Lifecycle {
	case units.LifecycleDestroyed:
		if t.Health != 0 {
			return fmt.Errorf("destroyed token %s has health %d", t.ID, t.Health)
		}
	case units.LifecycleReserve, units.LifecycleDeployed:
		if t.Health <= 0 || t.Health > t.MaxHealth {
			return fmt.Errorf("token %s health %d outside 1..%d", t.ID, t.Health, t.MaxHealth)
		}
	default:
		return fmt.Errorf("token %s has unknown lifecycle %d", t.ID, int(t.Lifecycle))
	}

	tok := t
	if tok.IsDeployed() {
		if err := g.board.AddOccupant(tok.Position, tok.ID); err != nil {
			return fmt.Errorf("token %s: %w", tok.ID, err)
		}
	}
	g.tokens[tok.ID] = &tok
	return nil
}
