package game

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
	"github.com/crystalrace/crystal-server-go/internal/game/watchers"
)

// GameState is the authoritative state of one match. It is not safe for
// concurrent use; the hosting layer serializes every call.
type GameState struct {
	id     string
	rules  Rules
	logger *zap.Logger
	rng    RandomSource

	board   *board.Board
	seating []string
	players map[string]*units.Player
	tokens  map[string]*units.Token

	objectives []*capture.Tracker
	win        *capture.Tracker

	turns    *rules.TurnManager
	phase    rules.GamePhase
	winnerID string

	bus      *rules.EventBus
	watchers *rules.WatcherRegistry
}

// NewGameState lays out a board and waits in Setup for players to join.
// rng drives event node placement now and event node coin flips later.
func NewGameState(id string, r Rules, rng RandomSource, logger *zap.Logger) (*GameState, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	g := newShell(id, r, rng, logger)
	g.board = board.New(r.Board, rng)
	g.initTrackers()
	return g, nil
}

func newShell(id string, r Rules, rng RandomSource, logger *zap.Logger) *GameState {
	g := &GameState{
		id:       id,
		rules:    r.clone(),
		logger:   logger,
		rng:      rng,
		players:  make(map[string]*units.Player),
		tokens:   make(map[string]*units.Token),
		phase:    rules.GameSetup,
		bus:      rules.NewEventBus(),
		watchers: rules.NewWatcherRegistry(),
	}
	watchers.RegisterDefaults(g.watchers)
	g.watchers.Attach(g.bus)
	g.bus.SubscribeTyped(rules.EventGameWon, g.logWin)
	return g
}

func (g *GameState) logWin(e rules.Event) {
	if g.logger == nil {
		return
	}
	g.logger.Info("match won",
		zap.String("match_id", g.id),
		zap.String("winner_id", e.PlayerID),
		zap.Int("turn", e.Turn),
	)
}

func (g *GameState) initTrackers() {
	g.objectives = g.objectives[:0]
	for i, p := range g.board.ObjectiveNodes() {
		g.objectives = append(g.objectives,
			capture.NewTracker(fmt.Sprintf("objective-%d", i), capture.KindObjective, p, g.rules.ObjectiveTurns))
	}
	g.win = capture.NewTracker("win", capture.KindWin, g.board.WinNode(), g.rules.WinTurns)
}

// ID returns the match id the state was created with.
func (g *GameState) ID() string { return g.id }

// Rules returns a copy of the rule set.
func (g *GameState) Rules() Rules { return g.rules.clone() }

// Events exposes the bus every applied action publishes to.
func (g *GameState) Events() *rules.EventBus { return g.bus }

// Watchers exposes the registry fed by Events.
func (g *GameState) Watchers() *rules.WatcherRegistry { return g.watchers }

// AddPlayer seats a player in join order. Only legal during Setup.
func (g *GameState) AddPlayer(id, name string) (*units.Player, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("player id is required")
	}
	if g.phase != rules.GameSetup {
		return nil, reject(KindGameNotPlaying, "cannot join a match in %s", g.phase)
	}
	if _, exists := g.players[id]; exists {
		return nil, fmt.Errorf("player %s already seated", id)
	}
	if len(g.seating) >= g.rules.MaxPlayers {
		return nil, fmt.Errorf("match is full (%d players)", g.rules.MaxPlayers)
	}
	p := units.NewPlayer(id, name, len(g.seating))
	g.players[id] = p
	g.seating = append(g.seating, id)

	if g.logger != nil {
		g.logger.Debug("player seated",
			zap.String("match_id", g.id),
			zap.String("player_id", id),
			zap.Int("seat", p.Seat),
		)
	}
	return p, nil
}

// Start creates every roster, auto-deploys the opening tokens into each
// corner and begins turn 1.
func (g *GameState) Start() error {
	if g.phase != rules.GameSetup {
		return reject(KindGameNotPlaying, "match already %s", g.phase)
	}
	if len(g.seating) < g.rules.MinPlayers {
		return fmt.Errorf("need at least %d players, have %d", g.rules.MinPlayers, len(g.seating))
	}

	for _, id := range g.seating {
		p := g.players[id]
		for _, tok := range units.NewRoster(p, g.rules.Tiers, g.rules.TokensPerTier) {
			g.tokens[tok.ID] = tok
		}
	}

	var events []rules.Event
	for _, id := range g.seating {
		p := g.players[id]
		for _, tier := range g.rules.AutoDeployTiers {
			tok := g.firstReserve(id, tier)
			dest, ok := g.board.FirstFreeCornerCell(p.Seat)
			if tok == nil || !ok {
				return fmt.Errorf("auto-deploy tier %d for %s: no token or corner cell", tier, id)
			}
			g.place(tok, dest)
			evt := rules.NewEventWithAmount(rules.EventTokenDeployed, tok.ID, "", id, tier)
			evt.Data = dest.String()
			events = append(events, evt)
		}
	}

	g.turns = rules.NewTurnManager(g.seating)
	g.phase = rules.GamePlaying

	started := rules.NewEvent(rules.EventGameStarted, g.id, "", g.turns.CurrentPlayer())
	started.Turn = 1
	events = append(events, started)
	g.bus.PublishBatch(events)

	if g.logger != nil {
		g.logger.Info("match started",
			zap.String("match_id", g.id),
			zap.Strings("seating", g.seating),
			zap.Int("event_nodes", len(g.board.EventNodes())),
		)
	}
	return nil
}

// place deploys tok at dest. The cell must already be known to accept it.
func (g *GameState) place(tok *units.Token, dest board.Position) {
	mustf(g.board.AddOccupant(dest, tok.ID), "place %s", tok.ID)
	tok.Deploy(dest)
}

// relocate moves a deployed token between cells.
func (g *GameState) relocate(tok *units.Token, dest board.Position) {
	g.board.RemoveOccupant(tok.Position, tok.ID)
	mustf(g.board.AddOccupant(dest, tok.ID), "move %s", tok.ID)
	tok.Position = dest
}

func (g *GameState) firstReserve(playerID string, tier int) *units.Token {
	p, ok := g.players[playerID]
	if !ok {
		return nil
	}
	for _, id := range p.TokenIDs {
		tok := g.tokens[id]
		if tok.IsReserve() && tok.MaxHealth == tier {
			return tok
		}
	}
	return nil
}

// OwnerOf implements pathing.OwnerLookup over live tokens.
func (g *GameState) OwnerOf(tokenID string) (string, bool) {
	tok, ok := g.tokens[tokenID]
	if !ok || !tok.IsAlive() {
		return "", false
	}
	return tok.OwnerID, true
}

func (g *GameState) nodeCounts(p board.Position) map[string]int {
	return capture.Partition(g.board.Occupants(p), func(id string) (string, bool) {
		tok, ok := g.tokens[id]
		if !ok || !tok.IsDeployed() {
			return "", false
		}
		return tok.OwnerID, true
	})
}

func (g *GameState) capturedCount() int {
	n := 0
	for _, t := range g.objectives {
		if t.Terminal {
			n++
		}
	}
	return n
}

func (g *GameState) sortedTokenIDs() []string {
	ids := make([]string, 0, len(g.tokens))
	for id := range g.tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
