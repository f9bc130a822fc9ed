package game

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/combat"
	"github.com/crystalrace/crystal-server-go/internal/game/pathing"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

// Apply validates and applies one action. A rejected action leaves the
// state unchanged and reports why in the Result.
func (g *GameState) Apply(action Action) Result {
	res := g.apply(action)
	if g.logger != nil {
		fields := []zap.Field{
			zap.String("match_id", g.id),
			zap.Bool("success", res.Success),
		}
		if action != nil {
			fields = append(fields,
				zap.String("action", string(action.Kind())),
				zap.String("player_id", action.Actor()),
			)
		}
		if !res.Success {
			fields = append(fields, zap.Stringer("kind", res.Kind), zap.String("message", res.Message))
		}
		g.logger.Debug("applied action", fields...)
	}
	return res
}

func (g *GameState) apply(action Action) Result {
	if action == nil {
		return failed(reject(KindUnknownAction, "nil action"))
	}
	if g.phase != rules.GamePlaying {
		return failed(reject(KindGameNotPlaying, "match is %s", g.phase))
	}
	if current := g.turns.CurrentPlayer(); action.Actor() != current {
		return failed(reject(KindNotYourTurn, "it is %s's turn", current))
	}

	switch a := action.(type) {
	case Move:
		return g.applyMove(a)
	case Deploy:
		return g.applyDeploy(a)
	case Attack:
		return g.applyAttack(a)
	case EndTurn:
		return g.applyEndTurn(a)
	default:
		return failed(reject(KindUnknownAction, "unsupported action %T", action))
	}
}

// ownedToken resolves an acting token and checks it belongs to playerID
// and is on the board.
func (g *GameState) ownedToken(playerID, tokenID string) (*units.Token, *ActionError) {
	tok, ok := g.tokens[tokenID]
	if !ok {
		return nil, reject(KindUnknownToken, "token %q does not exist", tokenID)
	}
	if tok.OwnerID != playerID {
		return nil, reject(KindNotOwned, "token %s belongs to %s", tokenID, tok.OwnerID)
	}
	if !tok.IsDeployed() {
		return nil, reject(KindTokenUnavailable, "token %s is %s", tokenID, tok.Lifecycle)
	}
	return tok, nil
}

func (g *GameState) allowance(tok *units.Token) int {
	return g.rules.Mobility.Allowance(tok.Health)
}

func (g *GameState) applyMove(a Move) Result {
	if !g.turns.CanPosition() {
		return failed(reject(KindWrongPhase, "cannot move in %s", g.turns.Phase()))
	}
	tok, aerr := g.ownedToken(a.Player, a.Token)
	if aerr != nil {
		return failed(aerr)
	}
	if !pathing.CanReach(g.board, g, tok, g.allowance(tok), a.Destination) {
		return failed(reject(KindIllegalDestination, "%s cannot reach %s from %s", tok.ID, a.Destination, tok.Position))
	}

	from := tok.Position
	g.relocate(tok, a.Destination)
	moved := rules.NewEvent(rules.EventTokenMoved, tok.ID, "", a.Player)
	moved.Data = fmt.Sprintf("%s->%s", from, a.Destination)
	g.bus.Publish(moved)

	effects := Effects{TokenID: tok.ID}
	if g.board.KindAt(a.Destination) == board.CellEventNode {
		effects.Event = g.resolveEventNode(tok)
	}
	final := tok.Position
	effects.MovedTo = &final

	g.turns.CompletePositioning()
	return succeeded(fmt.Sprintf("moved %s to %s", tok.ID, final), effects)
}

// resolveEventNode flips the coin for a token that just landed on an event
// node: heads heals it, tails sends it back to its owner's corner.
func (g *GameState) resolveEventNode(tok *units.Token) *EventOutcome {
	node := tok.Position
	out := &EventOutcome{Node: node, OldHealth: tok.Health}

	if g.rng.CoinFlip() {
		tok.HealToFull()
		out.Effect = EventHeal
	} else {
		seat := g.players[tok.OwnerID].Seat
		if dest, ok := g.board.FirstFreeCornerCell(seat); ok {
			g.relocate(tok, dest)
			out.Effect = EventTeleport
		} else {
			out.Effect = EventTeleportBlocked
		}
	}
	out.NewHealth = tok.Health
	out.Position = tok.Position

	evt := rules.NewEventWithAmount(rules.EventEventNodeTriggered, tok.ID, "", tok.OwnerID, out.NewHealth)
	evt.Data = out.Effect.String()
	evt.Metadata["node"] = node.String()
	g.bus.Publish(evt)
	return out
}

func (g *GameState) applyDeploy(a Deploy) Result {
	if !g.turns.CanPosition() {
		return failed(reject(KindWrongPhase, "cannot deploy in %s", g.turns.Phase()))
	}
	if !g.rules.HasTier(a.Tier) {
		return failed(reject(KindInvalidTier, "tier %d is not one of %v", a.Tier, g.rules.Tiers))
	}
	tok := g.firstReserve(a.Player, a.Tier)
	if tok == nil {
		return failed(reject(KindReserveExhausted, "no tier %d tokens in reserve", a.Tier))
	}
	seat := g.players[a.Player].Seat
	if !g.board.IsInCornerZone(seat, a.Destination) {
		return failed(reject(KindIllegalDestination, "%s is outside the deployment corner", a.Destination))
	}
	if !g.board.IsEmpty(a.Destination) {
		return failed(reject(KindIllegalDestination, "%s is occupied", a.Destination))
	}

	g.place(tok, a.Destination)
	evt := rules.NewEventWithAmount(rules.EventTokenDeployed, tok.ID, "", a.Player, a.Tier)
	evt.Data = a.Destination.String()
	g.bus.Publish(evt)

	g.turns.CompletePositioning()
	dest := a.Destination
	return succeeded(fmt.Sprintf("deployed %s at %s", tok.ID, dest), Effects{
		TokenID:         tok.ID,
		DeployedTokenID: tok.ID,
		MovedTo:         &dest,
	})
}

func (g *GameState) applyAttack(a Attack) Result {
	if !g.turns.CanAttack() {
		if g.turns.Attacked() {
			return failed(reject(KindWrongPhase, "already attacked this turn"))
		}
		return failed(reject(KindWrongPhase, "cannot attack in %s", g.turns.Phase()))
	}
	attacker, aerr := g.ownedToken(a.Player, a.Attacker)
	if aerr != nil {
		return failed(aerr)
	}
	defender, ok := g.tokens[a.Defender]
	if !ok {
		return failed(reject(KindUnknownToken, "token %q does not exist", a.Defender))
	}
	if err := combat.CanAttack(attacker, defender); err != nil {
		return failed(reject(KindIllegalTarget, "%v", err))
	}

	out, err := combat.Resolve(g.board, attacker, defender)
	mustf(err, "resolve %s on %s", attacker.ID, defender.ID)
	g.turns.RecordAttack()

	g.bus.Publish(rules.NewEventWithAmount(rules.EventTokenAttacked, defender.ID, attacker.ID, a.Player, out.Damage))
	if out.Destroyed {
		evt := rules.NewEventWithFlag(rules.EventTokenDestroyed, defender.ID, attacker.ID, a.Player, true)
		evt.Metadata["owner_id"] = defender.OwnerID
		g.bus.Publish(evt)
	}

	msg := fmt.Sprintf("%s hit %s for %d", attacker.ID, defender.ID, out.Damage)
	if out.Destroyed {
		msg += ", destroyed"
	}
	return succeeded(msg, Effects{TokenID: attacker.ID, Attack: &out})
}

func (g *GameState) applyEndTurn(a EndTurn) Result {
	effects := Effects{}
	turn := g.turns.TurnNumber()

	for _, tr := range g.objectives {
		if tr.Terminal {
			continue
		}
		ev := tr.Evaluate(g.nodeCounts(tr.Position), g.rules.ObjectiveQualifying)
		effects.Evaluations = append(effects.Evaluations, ev)
		if ev.Progressed() && !ev.Completed {
			g.publishProgress(rules.EventObjectiveProgress, ev, turn)
		}
		if ev.Completed {
			effects.CapturedObjectives = append(effects.CapturedObjectives, tr.ID)
			evt := rules.NewEventWithFlag(rules.EventObjectiveCaptured, tr.ID, "", ev.Holder, true)
			evt.Turn = turn
			g.bus.Publish(evt)
		}
	}

	if !g.win.Terminal {
		ev := g.win.Evaluate(g.nodeCounts(g.win.Position), g.WinRequirement())
		effects.Evaluations = append(effects.Evaluations, ev)
		if ev.Progressed() && !ev.Completed {
			g.publishProgress(rules.EventWinProgress, ev, turn)
		}
		if ev.Completed {
			g.winnerID = ev.Holder
		}
	}

	if g.winnerID != "" {
		g.phase = rules.GameEnded
		effects.WinnerID = g.winnerID
		effects.TurnNumber = turn
		evt := rules.NewEvent(rules.EventGameWon, g.win.ID, "", g.winnerID)
		evt.Turn = turn
		g.bus.Publish(evt)
		return succeeded(fmt.Sprintf("%s wins on turn %d", g.winnerID, turn), effects)
	}

	next := g.turns.AdvanceTurn()
	effects.NextPlayerID = next
	effects.TurnNumber = g.turns.TurnNumber()

	ended := rules.NewEvent(rules.EventTurnEnded, "", "", a.Player)
	ended.Turn = turn
	ended.Data = next
	g.bus.Publish(ended)

	return succeeded(fmt.Sprintf("turn %d begins for %s", effects.TurnNumber, next), effects)
}

func (g *GameState) publishProgress(t rules.EventType, ev capture.Evaluation, turn int) {
	evt := rules.NewEventWithAmount(t, ev.TrackerID, "", ev.Holder, ev.TurnsHeld)
	evt.Turn = turn
	g.bus.Publish(evt)
}
