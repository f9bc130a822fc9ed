package game

import (
	"fmt"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/combat"
)

// EventEffect is what an event node did to the token that landed on it.
type EventEffect int

const (
	EventHeal EventEffect = iota
	EventTeleport
	// EventTeleportBlocked means the coin sent the token home but the
	// corner was full, so it stayed on the event node.
	EventTeleportBlocked
)

var eventEffectNames = map[EventEffect]string{
	EventHeal:            "HEAL",
	EventTeleport:        "TELEPORT",
	EventTeleportBlocked: "TELEPORT_BLOCKED",
}

func (e EventEffect) String() string {
	if name, ok := eventEffectNames[e]; ok {
		return name
	}
	return fmt.Sprintf("EFFECT_%d", int(e))
}

// EventOutcome reports an event node resolution.
type EventOutcome struct {
	Effect    EventEffect
	Node      board.Position
	OldHealth int
	NewHealth int
	// Position is where the token ended up.
	Position board.Position
}

// Effects lists the side effects of one applied action.
type Effects struct {
	TokenID         string
	MovedTo         *board.Position
	Event           *EventOutcome
	DeployedTokenID string
	Attack          *combat.Outcome

	Evaluations        []capture.Evaluation
	CapturedObjectives []string
	WinnerID           string
	NextPlayerID       string
	TurnNumber         int
}

// Result is the outcome of Apply. A rejected action carries its kind and
// leaves the state untouched.
type Result struct {
	Success bool
	Kind    ErrorKind
	Message string
	Err     error
	Effects Effects
}

func failed(err *ActionError) Result {
	return Result{
		Success: false,
		Kind:    err.Kind,
		Message: err.Message,
		Err:     err,
	}
}

func succeeded(msg string, effects Effects) Result {
	return Result{Success: true, Message: msg, Effects: effects}
}
