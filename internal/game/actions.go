package game

import (
	"fmt"
	"strings"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
)

// ActionKind names an action variant on the wire and in logs.
type ActionKind string

const (
	ActionMove    ActionKind = "MOVE"
	ActionDeploy  ActionKind = "DEPLOY"
	ActionAttack  ActionKind = "ATTACK"
	ActionEndTurn ActionKind = "END_TURN"
)

// ParseActionKind accepts kinds case-insensitively.
func ParseActionKind(s string) (ActionKind, error) {
	switch k := ActionKind(strings.ToUpper(strings.TrimSpace(s))); k {
	case ActionMove, ActionDeploy, ActionAttack, ActionEndTurn:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
}

// Action is the closed set of player intents accepted by Apply.
type Action interface {
	Kind() ActionKind
	// Actor returns the player submitting the action.
	Actor() string
	sealed()
}

// Move teleports a deployed token to a reachable cell.
type Move struct {
	Player      string
	Token       string
	Destination board.Position
}

// Deploy places a reserve token of the given tier in the player's corner.
type Deploy struct {
	Player      string
	Tier        int
	Destination board.Position
}

// Attack hits an adjacent enemy token.
type Attack struct {
	Player   string
	Attacker string
	Defender string
}

// EndTurn runs end-of-turn evaluation and passes play on.
type EndTurn struct {
	Player string
}

func (Move) Kind() ActionKind    { return ActionMove }
func (Deploy) Kind() ActionKind  { return ActionDeploy }
func (Attack) Kind() ActionKind  { return ActionAttack }
func (EndTurn) Kind() ActionKind { return ActionEndTurn }

func (a Move) Actor() string    { return a.Player }
func (a Deploy) Actor() string  { return a.Player }
func (a Attack) Actor() string  { return a.Player }
func (a EndTurn) Actor() string { return a.Player }

func (Move) sealed()    {}
func (Deploy) sealed()  {}
func (Attack) sealed()  {}
func (EndTurn) sealed() {}

func (a Move) String() string {
	return fmt.Sprintf("%s %s %s->%s", a.Kind(), a.Player, a.Token, a.Destination)
}

func (a Deploy) String() string {
	return fmt.Sprintf("%s %s tier %d->%s", a.Kind(), a.Player, a.Tier, a.Destination)
}

func (a Attack) String() string {
	return fmt.Sprintf("%s %s %s->%s", a.Kind(), a.Player, a.Attacker, a.Defender)
}

func (a EndTurn) String() string {
	return fmt.Sprintf("%s %s", a.Kind(), a.Player)
}
