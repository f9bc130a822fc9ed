package game

import (
	"errors"
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// Rules holds every tunable constant of a match.
type Rules struct {
	Board           board.Config
	Tiers           []int
	TokensPerTier   int
	AutoDeployTiers []int
	Mobility        units.Mobility
	MinPlayers      int
	MaxPlayers      int

	ObjectiveQualifying int
	ObjectiveTurns      int
	ObjectiveReduction  int

	WinBase    int
	WinMinimum int
	WinTurns   int
}

// DefaultRules returns the standard rule set.
func DefaultRules() Rules {
	return Rules{
		Board:               board.DefaultConfig(),
		Tiers:               []int{10, 8, 6, 4},
		TokensPerTier:       5,
		AutoDeployTiers:     []int{10, 8, 6},
		Mobility:            units.DefaultMobility(),
		MinPlayers:          2,
		MaxPlayers:          4,
		ObjectiveQualifying: 2,
		ObjectiveTurns:      2,
		ObjectiveReduction:  2,
		WinBase:             12,
		WinMinimum:          1,
		WinTurns:            3,
	}
}

// HasTier reports whether health is one of the tier values.
func (r Rules) HasTier(health int) bool {
	for _, t := range r.Tiers {
		if t == health {
			return true
		}
	}
	return false
}

// Validate rejects rule sets that cannot produce a playable board.
func (r Rules) Validate() error {
	var errs []error
	b := r.Board
	if b.Width != b.Height {
		errs = append(errs, fmt.Errorf("board must be square, got %dx%d", b.Width, b.Height))
	}
	if b.Width < 8 || b.Width%2 != 0 {
		errs = append(errs, fmt.Errorf("board size must be even and at least 8, got %d", b.Width))
	}
	if b.CornerSize < 1 || b.CornerSize*2 > b.Width/2 {
		errs = append(errs, fmt.Errorf("corner size %d does not fit a %d board", b.CornerSize, b.Width))
	}
	if b.EventNodesPerQuadrant < 0 || b.EventEdgeMargin < 0 || b.EventMaxAttempts < 0 {
		errs = append(errs, errors.New("event node parameters must not be negative"))
	}
	if len(r.Tiers) == 0 {
		errs = append(errs, errors.New("at least one token tier is required"))
	}
	for _, t := range r.Tiers {
		if t < 2 {
			errs = append(errs, fmt.Errorf("tier %d cannot deal damage", t))
		}
	}
	if r.TokensPerTier < 1 {
		errs = append(errs, fmt.Errorf("tokens per tier must be positive, got %d", r.TokensPerTier))
	}
	used := make(map[int]int)
	for _, t := range r.AutoDeployTiers {
		if !r.HasTier(t) {
			errs = append(errs, fmt.Errorf("auto-deploy tier %d is not a token tier", t))
		}
		used[t]++
		if used[t] > r.TokensPerTier {
			errs = append(errs, fmt.Errorf("auto-deploy uses more %d tokens than exist", t))
		}
	}
	if len(r.AutoDeployTiers) > b.CornerSize*b.CornerSize {
		errs = append(errs, fmt.Errorf("%d auto-deployed tokens do not fit the corner", len(r.AutoDeployTiers)))
	}
	if r.MinPlayers < 2 || r.MaxPlayers > board.MaxSeats || r.MinPlayers > r.MaxPlayers {
		errs = append(errs, fmt.Errorf("player range %d..%d must lie within 2..%d", r.MinPlayers, r.MaxPlayers, board.MaxSeats))
	}
	if r.Mobility.Heavy < 1 || r.Mobility.Light < 1 {
		errs = append(errs, errors.New("movement allowances must be positive"))
	}
	if r.ObjectiveQualifying < 1 || r.ObjectiveTurns < 1 || r.ObjectiveReduction < 0 {
		errs = append(errs, errors.New("objective capture parameters must be positive"))
	}
	if r.WinMinimum < 1 || r.WinBase < r.WinMinimum || r.WinTurns < 1 {
		errs = append(errs, errors.New("win capture parameters must be positive with base at least the minimum"))
	}
	return errors.Join(errs...)
}

func (r Rules) clone() Rules {
	c := r
	c.Tiers = append([]int(nil), r.Tiers...)
	c.AutoDeployTiers = append([]int(nil), r.AutoDeployTiers...)
	return c
}
