package units

import (
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

// Lifecycle is the coarse state of a token.
type Lifecycle int

const (
	LifecycleReserve Lifecycle = iota
	LifecycleDeployed
	LifecycleDestroyed
)

var lifecycleNames = map[Lifecycle]string{
	LifecycleReserve:   "RESERVE",
	LifecycleDeployed:  "DEPLOYED",
	LifecycleDestroyed: "DESTROYED",
}

func (l Lifecycle) String() string {
	if name, ok := lifecycleNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LIFECYCLE_%d", int(l))
}

// Token is a single game piece. Position is only meaningful while deployed.
type Token struct {
	ID        string
	OwnerID   string
	MaxHealth int
	Health    int
	Position  board.Position
	Lifecycle Lifecycle
}

// NewToken creates a reserve token at full health.
func NewToken(id, ownerID string, maxHealth int) *Token {
	return &Token{
		ID:        id,
		OwnerID:   ownerID,
		MaxHealth: maxHealth,
		Health:    maxHealth,
		Lifecycle: LifecycleReserve,
	}
}

// IsAlive reports whether the token has not been destroyed.
func (t *Token) IsAlive() bool {
	return t.Lifecycle != LifecycleDestroyed
}

// IsDeployed reports whether the token is on the board.
func (t *Token) IsDeployed() bool {
	return t.Lifecycle == LifecycleDeployed
}

// IsReserve reports whether the token is waiting to be deployed.
func (t *Token) IsReserve() bool {
	return t.Lifecycle == LifecycleReserve
}

// AttackPower is the damage a hit from this token deals.
func (t *Token) AttackPower() int {
	return t.Health / 2
}

// Deploy puts the token on the board at p.
func (t *Token) Deploy(p board.Position) {
	t.Position = p
	t.Lifecycle = LifecycleDeployed
}

// TakeDamage lowers health and reports whether the token was destroyed.
func (t *Token) TakeDamage(amount int) bool {
	if amount < 0 {
		amount = 0
	}
	t.Health -= amount
	if t.Health <= 0 {
		t.Health = 0
		t.Lifecycle = LifecycleDestroyed
		return true
	}
	return false
}

// HealToFull restores health to the token's tier maximum.
func (t *Token) HealToFull() int {
	old := t.Health
	t.Health = t.MaxHealth
	return old
}

// Clone returns an independent copy.
func (t *Token) Clone() *Token {
	c := *t
	return &c
}

// Mobility maps current health to a movement allowance.
type Mobility struct {
	// Threshold is the lowest health that moves at the Heavy allowance.
	Threshold int
	Heavy     int
	Light     int
}

// DefaultMobility is the standard split: 10 and 8 step one cell, 6 and 4 step two.
func DefaultMobility() Mobility {
	return Mobility{Threshold: 7, Heavy: 1, Light: 2}
}

// Allowance returns the number of cells a token with the given health may move.
func (m Mobility) Allowance(health int) int {
	if health >= m.Threshold {
		return m.Heavy
	}
	return m.Light
}
