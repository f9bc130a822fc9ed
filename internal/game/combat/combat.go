package combat

import (
	"errors"
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// ErrIllegalTarget is returned when an attack's preconditions do not hold.
var ErrIllegalTarget = errors.New("illegal attack target")

// Outcome describes the result of a single hit.
type Outcome struct {
	AttackerID     string
	DefenderID     string
	Damage         int
	DefenderHealth int
	Destroyed      bool
	DefenderAt     board.Position
}

// CanAttack checks every precondition of a hit from a on d.
func CanAttack(a, d *units.Token) error {
	switch {
	case a == nil || d == nil:
		return fmt.Errorf("missing token: %w", ErrIllegalTarget)
	case !a.IsDeployed():
		return fmt.Errorf("attacker %s is not on the board: %w", a.ID, ErrIllegalTarget)
	case !d.IsDeployed():
		return fmt.Errorf("defender %s is not on the board: %w", d.ID, ErrIllegalTarget)
	case a.OwnerID == d.OwnerID:
		return fmt.Errorf("%s and %s share an owner: %w", a.ID, d.ID, ErrIllegalTarget)
	case !a.Position.IsAdjacent(d.Position):
		return fmt.Errorf("%s at %s is not adjacent to %s at %s: %w",
			a.ID, a.Position, d.ID, d.Position, ErrIllegalTarget)
	}
	return nil
}

// Damage is the amount a hit from a deals.
func Damage(a *units.Token) int {
	return a.AttackPower()
}

// Preview computes what Resolve would do without mutating anything.
func Preview(a, d *units.Token) (Outcome, error) {
	if err := CanAttack(a, d); err != nil {
		return Outcome{}, err
	}
	dmg := Damage(a)
	remaining := d.Health - dmg
	if remaining < 0 {
		remaining = 0
	}
	return Outcome{
		AttackerID:     a.ID,
		DefenderID:     d.ID,
		Damage:         dmg,
		DefenderHealth: remaining,
		Destroyed:      remaining == 0,
		DefenderAt:     d.Position,
	}, nil
}

// Resolve applies a hit from a on d. There is no retaliation. A destroyed
// defender is removed from the board's occupancy index.
func Resolve(b *board.Board, a, d *units.Token) (Outcome, error) {
	out, err := Preview(a, d)
	if err != nil {
		return Outcome{}, err
	}
	at := d.Position
	if d.TakeDamage(out.Damage) {
		b.RemoveOccupant(at, d.ID)
	}
	out.DefenderHealth = d.Health
	out.Destroyed = !d.IsAlive()
	return out, nil
}

// Targets lists the enemy tokens adjacent to a, in the order given.
func Targets(a *units.Token, candidates []*units.Token) []*units.Token {
	var out []*units.Token
	for _, d := range candidates {
		if CanAttack(a, d) == nil {
			out = append(out, d)
		}
	}
	return out
}
