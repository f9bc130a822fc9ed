package rules

import (
	"fmt"
	"strings"
)

// TurnPhase is the step within a single player's turn.
type TurnPhase int

const (
	PhaseMovement TurnPhase = iota
	PhaseAction
)

var turnPhaseNames = map[TurnPhase]string{
	PhaseMovement: "MOVEMENT",
	PhaseAction:   "ACTION",
}

func (p TurnPhase) String() string {
	if name, ok := turnPhaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PHASE_%d", int(p))
}

// GamePhase is the lifecycle of a whole match.
type GamePhase int

const (
	GameSetup GamePhase = iota
	GamePlaying
	GameEnded
)

var gamePhaseNames = map[GamePhase]string{
	GameSetup:   "SETUP",
	GamePlaying: "PLAYING",
	GameEnded:   "ENDED",
}

func (g GamePhase) String() string {
	if name, ok := gamePhaseNames[g]; ok {
		return name
	}
	return fmt.Sprintf("GAME_%d", int(g))
}

// TurnManager tracks the seating order, whose turn it is and how far into
// that turn they are.
type TurnManager struct {
	order      []string
	orderIndex int
	turnNumber int
	phase      TurnPhase
	attacked   bool
}

// NewTurnManager starts turn 1 with the first seated player in Movement.
func NewTurnManager(order []string) *TurnManager {
	seats := make([]string, 0, len(order))
	for _, id := range order {
		if id = strings.TrimSpace(id); id != "" {
			seats = append(seats, id)
		}
	}
	return &TurnManager{
		order:      seats,
		turnNumber: 1,
		phase:      PhaseMovement,
	}
}

// CurrentPlayer returns the player whose turn it is.
func (tm *TurnManager) CurrentPlayer() string {
	if len(tm.order) == 0 {
		return ""
	}
	return tm.order[tm.orderIndex]
}

// TurnNumber returns the current turn number (1-based).
func (tm *TurnManager) TurnNumber() int {
	return tm.turnNumber
}

// Phase returns the phase of the current turn.
func (tm *TurnManager) Phase() TurnPhase {
	return tm.phase
}

// Attacked reports whether the current player has already attacked.
func (tm *TurnManager) Attacked() bool {
	return tm.attacked
}

// OrderIndex returns the seat index of the current player.
func (tm *TurnManager) OrderIndex() int {
	return tm.orderIndex
}

// Order returns a copy of the seating order.
func (tm *TurnManager) Order() []string {
	return append([]string(nil), tm.order...)
}

// CanPosition reports whether a move or deploy is allowed now.
func (tm *TurnManager) CanPosition() bool {
	return tm.phase == PhaseMovement
}

// CanAttack reports whether an attack is allowed now.
func (tm *TurnManager) CanAttack() bool {
	return tm.phase == PhaseAction && !tm.attacked
}

// CompletePositioning moves the turn from Movement to Action.
func (tm *TurnManager) CompletePositioning() {
	tm.phase = PhaseAction
}

// RecordAttack marks the current turn's attack as spent.
func (tm *TurnManager) RecordAttack() {
	tm.attacked = true
}

// AdvanceTurn hands the turn to the next seated player, resets the phase
// to Movement and increments the turn number.
func (tm *TurnManager) AdvanceTurn() string {
	if len(tm.order) == 0 {
		return ""
	}
	tm.orderIndex = (tm.orderIndex + 1) % len(tm.order)
	tm.turnNumber++
	tm.phase = PhaseMovement
	tm.attacked = false
	return tm.CurrentPlayer()
}

// Restore sets the cursor from saved values.
func (tm *TurnManager) Restore(orderIndex, turnNumber int, phase TurnPhase, attacked bool) error {
	if len(tm.order) == 0 {
		return fmt.Errorf("restore turn: empty seating order")
	}
	if orderIndex < 0 || orderIndex >= len(tm.order) {
		return fmt.Errorf("restore turn: order index %d out of range", orderIndex)
	}
	if turnNumber < 1 {
		return fmt.Errorf("restore turn: turn number %d", turnNumber)
	}
	if _, ok := turnPhaseNames[phase]; !ok {
		return fmt.Errorf("restore turn: unknown phase %d", int(phase))
	}
	tm.orderIndex = orderIndex
	tm.turnNumber = turnNumber
	tm.phase = phase
	tm.attacked = attacked
	return nil
}
