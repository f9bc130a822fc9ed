package ai

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
)

// DefaultMaxTurns caps bot matches that never reach a winner.
const DefaultMaxTurns = 400

// Options tune PlayMatch.
type Options struct {
	MaxTurns int
	Logger   *zap.Logger
	// OnAction, when set, sees every applied action and its result.
	OnAction func(a game.Action, res game.Result)
}

// Outcome summarizes a finished bot match.
type Outcome struct {
	WinnerID string
	Turns    int
	Actions  int
	// Capped is true when MaxTurns ran out before anyone won.
	Capped bool
}

// NewMatch creates and starts a match seating players in order.
func NewMatch(id string, r game.Rules, seed uint64, players []string, logger *zap.Logger) (*game.GameState, error) {
	g, err := game.NewGameState(id, r, game.NewSeededRandom(seed), logger)
	if err != nil {
		return nil, err
	}
	for _, p := range players {
		if _, err := g.AddPlayer(p, p); err != nil {
			return nil, fmt.Errorf("seat %s: %w", p, err)
		}
	}
	if err := g.Start(); err != nil {
		return nil, err
	}
	return g, nil
}

// PlayMatch drives g with one policy per seat until someone wins, the turn
// cap is reached or ctx is cancelled. A policy choosing an action the engine
// rejects is an error.
func PlayMatch(ctx context.Context, g *game.GameState, policies map[string]Policy, opts Options) (Outcome, error) {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, id := range g.Seating() {
		if policies[id] == nil {
			return Outcome{}, fmt.Errorf("no policy for seat %s", id)
		}
	}

	var out Outcome
	for g.Phase() == rules.GamePlaying {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if g.TurnNumber() > opts.MaxTurns {
			out.Capped = true
			break
		}

		player := g.CurrentPlayer()
		a := policies[player].Choose(g, player)
		if a == nil {
			a = game.EndTurn{Player: player}
		}
		res := g.Apply(a)
		if !res.Success {
			return out, fmt.Errorf("turn %d: policy for %s chose %v: %w", g.TurnNumber(), player, a, res.Err)
		}
		out.Actions++
		if opts.OnAction != nil {
			opts.OnAction(a, res)
		}
	}

	out.WinnerID = g.WinnerID()
	out.Turns = g.TurnNumber()
	logger.Info("bot match finished",
		zap.String("match_id", g.ID()),
		zap.String("winner_id", out.WinnerID),
		zap.Int("turns", out.Turns),
		zap.Int("actions", out.Actions),
		zap.Bool("capped", out.Capped),
	)
	return out, nil
}
