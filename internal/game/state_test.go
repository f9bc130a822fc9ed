package game

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
)

func TestNewGameStateRejectsBadRules(t *testing.T) {
	r := DefaultRules()
	r.Board.Width = 23
	_, err := NewGameState("m", r, NewSeededRandom(1), zaptest.NewLogger(t))
	require.Error(t, err)

	_, err = NewGameState("m", DefaultRules(), nil, zaptest.NewLogger(t))
	require.Error(t, err)
}

func TestAddPlayerAndStart(t *testing.T) {
	g, err := NewGameState("m", DefaultRules(), NewSeededRandom(7), zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, rules.GameSetup, g.Phase())

	_, err = g.AddPlayer("p1", "  Alice ")
	require.NoError(t, err)
	require.Error(t, g.Start(), "one player is not enough")

	_, err = g.AddPlayer("p1", "again")
	require.Error(t, err)
	_, err = g.AddPlayer(" ", "blank")
	require.Error(t, err)
	p2, err := g.AddPlayer("p2", "")
	require.NoError(t, err)
	assert.Equal(t, "p2", p2.Name)
	assert.Equal(t, 1, p2.Seat)

	require.NoError(t, g.Start())
	assert.Equal(t, rules.GamePlaying, g.Phase())
	assert.Equal(t, "p1", g.CurrentPlayer())
	assert.Equal(t, 1, g.TurnNumber())
	assert.Equal(t, rules.PhaseMovement, g.TurnPhase())

	p1, _ := g.Player("p1")
	assert.Equal(t, "Alice", p1.Name)
	assert.Len(t, p1.TokenIDs, 20)

	_, err = g.AddPlayer("p3", "late")
	assert.True(t, errors.Is(err, ErrGameNotPlaying))
	assert.True(t, errors.Is(g.Start(), ErrGameNotPlaying))
}

func TestStartAutoDeploysIntoCorners(t *testing.T) {
	h := newHarness(t, "p1", "p2", "p3", "p4")

	want := map[string][]board.Position{
		"p1": {board.Pos(0, 0), board.Pos(0, 1), board.Pos(0, 2)},
		"p2": {board.Pos(23, 0), board.Pos(23, 1), board.Pos(23, 2)},
		"p3": {board.Pos(0, 23), board.Pos(0, 22), board.Pos(0, 21)},
		"p4": {board.Pos(23, 23), board.Pos(23, 22), board.Pos(23, 21)},
	}
	for id, cells := range want {
		deployed := h.g.DeployedTokens(id)
		require.Len(t, deployed, 3, id)
		for i, tier := range []int{10, 8, 6} {
			assert.Equal(t, tier, deployed[i].MaxHealth, id)
			assert.Equal(t, cells[i], deployed[i].Position, id)
			assert.Equal(t, []string{deployed[i].ID}, h.g.Occupants(cells[i]))
		}
		assert.Equal(t, map[int]int{10: 4, 8: 4, 6: 4, 4: 5}, h.g.Reserve(id))
	}
	assert.Equal(t, 12, h.g.WinRequirement())
}

func TestScriptedEventNodeLayout(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []board.Position{board.Pos(14, 2), board.Pos(2, 14), board.Pos(14, 14)}, h.g.EventNodes())
	kind, err := h.g.CellKind(board.Pos(14, 2))
	require.NoError(t, err)
	assert.Equal(t, board.CellEventNode, kind)
}

func TestApplyValidationOrder(t *testing.T) {
	h := newHarness(t)

	res := h.apply(nil)
	assert.Equal(t, KindUnknownAction, res.Kind)

	res = h.apply(EndTurn{Player: "p2"})
	assert.False(t, res.Success)
	assert.Equal(t, KindNotYourTurn, res.Kind)
	assert.True(t, errors.Is(res.Err, ErrNotYourTurn))

	res = h.apply(Attack{Player: "p1", Attacker: "p1-00", Defender: "p2-00"})
	assert.Equal(t, KindWrongPhase, res.Kind)

	res = h.apply(Move{Player: "p1", Token: "nope", Destination: board.Pos(1, 0)})
	assert.Equal(t, KindUnknownToken, res.Kind)

	res = h.apply(Move{Player: "p1", Token: "p2-00", Destination: board.Pos(22, 0)})
	assert.Equal(t, KindNotOwned, res.Kind)

	res = h.apply(Move{Player: "p1", Token: "p1-01", Destination: board.Pos(1, 0)})
	assert.Equal(t, KindTokenUnavailable, res.Kind, "reserve tokens cannot move")

	assert.Equal(t, rules.PhaseMovement, h.g.TurnPhase(), "rejections leave the turn untouched")
}

func TestMoveAdvancesToActionPhase(t *testing.T) {
	h := newHarness(t)

	res := h.mustApply(Move{Player: "p1", Token: "p1-00", Destination: board.Pos(1, 0)})
	require.NotNil(t, res.Effects.MovedTo)
	assert.Equal(t, board.Pos(1, 0), *res.Effects.MovedTo)
	assert.Nil(t, res.Effects.Event)
	assert.Equal(t, rules.PhaseAction, h.g.TurnPhase())
	assert.Empty(t, h.g.Occupants(board.Pos(0, 0)))

	res = h.apply(Move{Player: "p1", Token: "p1-00", Destination: board.Pos(1, 1)})
	assert.Equal(t, KindWrongPhase, res.Kind)
	res = h.apply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(2, 2)})
	assert.Equal(t, KindWrongPhase, res.Kind)
}

func TestMoveRespectsAllowance(t *testing.T) {
	h := newHarness(t)

	// p1-00 is at full health 10 and moves one cell.
	assert.Equal(t, 1, h.g.MovementAllowance("p1-00"))
	res := h.apply(Move{Player: "p1", Token: "p1-00", Destination: board.Pos(2, 2)})
	assert.Equal(t, KindIllegalDestination, res.Kind)

	// p1-10 is a tier 6 token and moves two.
	assert.Equal(t, 2, h.g.MovementAllowance("p1-10"))
	h.mustApply(Move{Player: "p1", Token: "p1-10", Destination: board.Pos(2, 4)})
}

func TestMobilityBoundary(t *testing.T) {
	h := newHarness(t)
	id := h.put("p1", 8, board.Pos(10, 10))

	h.setHealth(id, 7)
	assert.Equal(t, 1, h.g.MovementAllowance(id))
	assert.Len(t, h.g.ValidDestinations(id), 8)

	h.setHealth(id, 6)
	assert.Equal(t, 2, h.g.MovementAllowance(id))
	assert.Len(t, h.g.ValidDestinations(id), 24)
}

func TestMoveOntoEnemyIsIllegal(t *testing.T) {
	h := newHarness(t)
	mover := h.put("p1", 10, board.Pos(10, 10))
	enemy := h.put("p2", 10, board.Pos(11, 10))

	for _, p := range h.g.ValidDestinations(mover) {
		assert.NotEqual(t, board.Pos(11, 10), p)
	}
	res := h.apply(Move{Player: "p1", Token: mover, Destination: board.Pos(11, 10)})
	assert.Equal(t, KindIllegalDestination, res.Kind)
	assert.True(t, errors.Is(res.Err, ErrIllegalDestination))

	tok, _ := h.g.Token(mover)
	assert.Equal(t, board.Pos(10, 10), tok.Position)
	assert.Equal(t, []string{enemy}, h.g.Occupants(board.Pos(11, 10)))
}

func TestFriendlyStackingOnlyOnNodes(t *testing.T) {
	h := newHarness(t)
	a := h.put("p1", 6, board.Pos(5, 6))
	h.put("p1", 6, board.Pos(6, 6))
	h.put("p1", 6, board.Pos(7, 7))

	assert.Contains(t, h.g.ValidDestinations(a), board.Pos(6, 6), "objective nodes stack")
	assert.NotContains(t, h.g.ValidDestinations(a), board.Pos(7, 7), "normal cells do not")

	h.mustApply(Move{Player: "p1", Token: a, Destination: board.Pos(6, 6)})
	assert.Len(t, h.g.Occupants(board.Pos(6, 6)), 2)
}

func TestDeploy(t *testing.T) {
	h := newHarness(t)

	res := h.apply(Deploy{Player: "p1", Tier: 5, Destination: board.Pos(1, 0)})
	assert.Equal(t, KindInvalidTier, res.Kind)

	res = h.apply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(3, 3)})
	assert.Equal(t, KindIllegalDestination, res.Kind, "outside the corner")

	res = h.apply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(0, 0)})
	assert.Equal(t, KindIllegalDestination, res.Kind, "occupied")

	res = h.apply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(22, 0)})
	assert.Equal(t, KindIllegalDestination, res.Kind, "someone else's corner")

	res = h.mustApply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(2, 2)})
	assert.Equal(t, "p1-15", res.Effects.DeployedTokenID)
	assert.Equal(t, 4, h.g.Reserve("p1")[4])
	assert.Equal(t, rules.PhaseAction, h.g.TurnPhase())

	tok, _ := h.g.Token("p1-15")
	assert.Equal(t, units.LifecycleDeployed, tok.Lifecycle)
	assert.Equal(t, board.Pos(2, 2), tok.Position)
}

func TestDeployReserveExhausted(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.put("p1", 4, board.Pos(10+i, 12))
	}
	res := h.apply(Deploy{Player: "p1", Tier: 4, Destination: board.Pos(2, 2)})
	assert.Equal(t, KindReserveExhausted, res.Kind)
	assert.True(t, errors.Is(res.Err, ErrReserveExhausted))
}

// positionFirst spends the current player's positioning step with a
// deploy into an empty corner cell.
func positionFirst(h *harness, playerID string) {
	h.t.Helper()
	p, _ := h.g.Player(playerID)
	for _, cell := range h.g.CornerZone(p.Seat) {
		if len(h.g.Occupants(cell)) == 0 {
			h.mustApply(Deploy{Player: playerID, Tier: 4, Destination: cell})
			return
		}
	}
	h.t.Fatalf("corner of %s is full", playerID)
}

func TestAttackDamagesDefender(t *testing.T) {
	h := newHarness(t)
	attacker := h.put("p1", 10, board.Pos(10, 10))
	defender := h.put("p2", 6, board.Pos(11, 11))
	positionFirst(h, "p1")

	preview, err := h.g.PreviewAttack(attacker, defender)
	require.NoError(t, err)
	assert.Equal(t, 5, preview.Damage)
	assert.Equal(t, []string{defender}, h.g.AttackableTargets(attacker))

	res := h.mustApply(Attack{Player: "p1", Attacker: attacker, Defender: defender})
	require.NotNil(t, res.Effects.Attack)
	assert.Equal(t, 5, res.Effects.Attack.Damage)
	assert.Equal(t, 1, res.Effects.Attack.DefenderHealth)
	assert.False(t, res.Effects.Attack.Destroyed)

	d, _ := h.g.Token(defender)
	assert.Equal(t, 1, d.Health)
	assert.True(t, d.IsDeployed())
	a, _ := h.g.Token(attacker)
	assert.Equal(t, 10, a.Health, "no retaliation")

	res = h.apply(Attack{Player: "p1", Attacker: attacker, Defender: defender})
	assert.Equal(t, KindWrongPhase, res.Kind, "one attack per turn")
	assert.Equal(t, 5, h.g.Stats("p1").DamageDealt)
}

func TestAttackDestroysDefender(t *testing.T) {
	h := newHarness(t)
	attacker := h.put("p1", 10, board.Pos(10, 10))
	defender := h.put("p2", 6, board.Pos(10, 11))
	h.setHealth(defender, 4)
	positionFirst(h, "p1")

	res := h.mustApply(Attack{Player: "p1", Attacker: attacker, Defender: defender})
	assert.True(t, res.Effects.Attack.Destroyed)

	d, _ := h.g.Token(defender)
	assert.Equal(t, 0, d.Health)
	assert.Equal(t, units.LifecycleDestroyed, d.Lifecycle)
	assert.Empty(t, h.g.Occupants(board.Pos(10, 11)))
	assert.Equal(t, 1, h.g.Stats("p1").Kills)
	assert.Equal(t, 1, h.g.Stats("p2").Losses)

	// Destroyed tokens can neither act nor be targeted again.
	h.endTurns(1)
	res = h.apply(Move{Player: "p2", Token: defender, Destination: board.Pos(10, 12)})
	assert.Equal(t, KindTokenUnavailable, res.Kind)
}

func TestAttackIllegalTargets(t *testing.T) {
	h := newHarness(t)
	attacker := h.put("p1", 10, board.Pos(10, 10))
	friend := h.put("p1", 8, board.Pos(11, 10))
	far := h.put("p2", 8, board.Pos(13, 10))
	positionFirst(h, "p1")

	res := h.apply(Attack{Player: "p1", Attacker: attacker, Defender: friend})
	assert.Equal(t, KindIllegalTarget, res.Kind)
	res = h.apply(Attack{Player: "p1", Attacker: attacker, Defender: far})
	assert.Equal(t, KindIllegalTarget, res.Kind)
	res = h.apply(Attack{Player: "p1", Attacker: attacker, Defender: "p2-19"})
	assert.Equal(t, KindIllegalTarget, res.Kind, "reserve tokens are off the board")
	res = h.apply(Attack{Player: "p1", Attacker: attacker, Defender: "ghost"})
	assert.Equal(t, KindUnknownToken, res.Kind)
	assert.False(t, h.g.Attacked())
}

func TestEventNodeHeals(t *testing.T) {
	h := newHarness(t)
	id := h.put("p1", 6, board.Pos(13, 3))
	h.setHealth(id, 3)
	h.rng.Flips = []bool{true}

	res := h.mustApply(Move{Player: "p1", Token: id, Destination: board.Pos(14, 2)})
	require.NotNil(t, res.Effects.Event)
	assert.Equal(t, EventHeal, res.Effects.Event.Effect)
	assert.Equal(t, 3, res.Effects.Event.OldHealth)
	assert.Equal(t, 6, res.Effects.Event.NewHealth)
	assert.Equal(t, board.Pos(14, 2), *res.Effects.MovedTo)

	tok, _ := h.g.Token(id)
	assert.Equal(t, 6, tok.Health)
	assert.Equal(t, rules.PhaseAction, h.g.TurnPhase())
}

func TestEventNodeTeleportsHome(t *testing.T) {
	h := newHarness(t)
	id := h.put("p1", 6, board.Pos(13, 3))
	h.rng.Flips = []bool{false}

	res := h.mustApply(Move{Player: "p1", Token: id, Destination: board.Pos(14, 2)})
	require.NotNil(t, res.Effects.Event)
	assert.Equal(t, EventTeleport, res.Effects.Event.Effect)
	assert.Equal(t, board.Pos(1, 0), res.Effects.Event.Position)
	assert.Equal(t, board.Pos(1, 0), *res.Effects.MovedTo)
	assert.Empty(t, h.g.Occupants(board.Pos(14, 2)))
	assert.Equal(t, []string{id}, h.g.Occupants(board.Pos(1, 0)))
}

func TestEventNodeTeleportBlocked(t *testing.T) {
	h := newHarness(t)
	tiers := []int{4, 4, 4, 4, 4, 8}
	for _, cell := range h.g.CornerZone(0) {
		if len(h.g.Occupants(cell)) == 0 {
			h.put("p1", tiers[0], cell)
			tiers = tiers[1:]
		}
	}
	id := h.put("p1", 6, board.Pos(13, 3))
	h.rng.Flips = []bool{false}

	res := h.mustApply(Move{Player: "p1", Token: id, Destination: board.Pos(14, 2)})
	assert.Equal(t, EventTeleportBlocked, res.Effects.Event.Effect)
	tok, _ := h.g.Token(id)
	assert.Equal(t, board.Pos(14, 2), tok.Position)
}

func TestEndTurnRotatesSeats(t *testing.T) {
	h := newHarness(t, "p1", "p2", "p3")

	res := h.mustApply(EndTurn{Player: "p1"})
	assert.Equal(t, "p2", res.Effects.NextPlayerID)
	assert.Equal(t, 2, res.Effects.TurnNumber)

	// A duplicate end turn is rejected rather than skipping p2.
	res = h.apply(EndTurn{Player: "p1"})
	assert.Equal(t, KindNotYourTurn, res.Kind)
	assert.Equal(t, "p2", h.g.CurrentPlayer())

	h.endTurns(2)
	assert.Equal(t, "p1", h.g.CurrentPlayer())
	assert.Equal(t, 4, h.g.TurnNumber())
	assert.Equal(t, rules.PhaseMovement, h.g.TurnPhase())
	assert.False(t, h.g.Attacked())
}

func TestObjectiveCapture(t *testing.T) {
	h := newHarness(t)
	h.put("p1", 8, board.Pos(6, 6))
	h.put("p1", 8, board.Pos(6, 6))

	res := h.endTurns(1)
	assert.Empty(t, res.Effects.CapturedObjectives)
	tr := h.g.ObjectiveTrackers()[0]
	assert.Equal(t, "p1", tr.HolderID)
	assert.Equal(t, 1, tr.TurnsHeld)

	res = h.endTurns(1)
	assert.Equal(t, []string{"objective-0"}, res.Effects.CapturedObjectives)
	assert.Equal(t, []string{"objective-0"}, h.g.CapturedObjectives())
	assert.Equal(t, 10, h.g.WinRequirement())
	assert.Equal(t, 1, h.g.Stats("p1").ObjectivesCaptured)

	h.endTurns(4)
	assert.Equal(t, 10, h.g.WinRequirement(), "a capture only reduces the requirement once")
}

func TestObjectiveTieResets(t *testing.T) {
	h := newHarness(t)
	h.put("p1", 8, board.Pos(18, 6))
	h.put("p1", 8, board.Pos(18, 6))
	h.endTurns(1)
	assert.Equal(t, 1, h.g.ObjectiveTrackers()[1].TurnsHeld)

	h.put("p2", 8, board.Pos(18, 6))
	h.put("p2", 8, board.Pos(18, 6))
	h.endTurns(3)
	tr := h.g.ObjectiveTrackers()[1]
	assert.Empty(t, tr.HolderID)
	assert.Equal(t, 0, tr.TurnsHeld)
	assert.False(t, tr.Terminal)
}

func TestObjectiveBelowQualifyingDoesNotProgress(t *testing.T) {
	h := newHarness(t)
	h.put("p1", 8, board.Pos(6, 18))
	h.endTurns(3)
	tr := h.g.ObjectiveTrackers()[2]
	assert.Empty(t, tr.HolderID)
	assert.Empty(t, h.g.CapturedObjectives())
}

func TestWinAfterTwoObjectives(t *testing.T) {
	h := newHarness(t)
	for _, p := range []board.Position{board.Pos(6, 6), board.Pos(18, 6)} {
		h.put("p1", 4, p)
		h.put("p1", 4, p)
	}
	for i := 0; i < 8; i++ {
		tier := 10
		if i >= 4 {
			tier = 8
		}
		h.put("p1", tier, board.Pos(12, 12))
	}

	h.endTurns(1)
	assert.Equal(t, 12, h.g.WinRequirement())
	assert.Empty(t, h.g.WinTracker().HolderID, "8 tokens are short of 12")

	h.endTurns(1)
	assert.Equal(t, 8, h.g.WinRequirement())
	assert.Equal(t, 1, h.g.WinTracker().TurnsHeld)

	h.endTurns(1)
	assert.Equal(t, rules.GamePlaying, h.g.Phase())

	core, logs := observer.New(zap.InfoLevel)
	h.g.logger = zap.New(core)
	res := h.endTurns(1)
	assert.Equal(t, "p1", res.Effects.WinnerID)
	assert.Equal(t, "p1", h.g.WinnerID())
	assert.Equal(t, rules.GameEnded, h.g.Phase())
	assert.True(t, h.g.WinTracker().Terminal)
	won := logs.FilterMessage("match won").All()
	require.Len(t, won, 1)
	assert.Equal(t, "p1", won[0].ContextMap()["winner_id"])

	after := h.apply(EndTurn{Player: h.g.CurrentPlayer()})
	assert.Equal(t, KindGameNotPlaying, after.Kind)
	assert.True(t, errors.Is(after.Err, ErrGameNotPlaying))
	assert.Nil(t, h.g.LegalActions(h.g.CurrentPlayer()))
}

func TestEventsPublished(t *testing.T) {
	h := newHarness(t)
	var seen []rules.EventType
	h.g.Events().Subscribe(func(e rules.Event) { seen = append(seen, e.Type) })

	h.mustApply(Move{Player: "p1", Token: "p1-00", Destination: board.Pos(1, 0)})
	h.endTurns(1)
	assert.Equal(t, []rules.EventType{rules.EventTokenMoved, rules.EventTurnEnded}, seen)
}

func TestLegalActionsAreAccepted(t *testing.T) {
	h := newHarness(t)
	attacker := h.put("p1", 10, board.Pos(10, 10))
	defender := h.put("p2", 8, board.Pos(11, 10))

	assert.Nil(t, h.g.LegalActions("p2"))

	actions := h.g.LegalActions("p1")
	require.NotEmpty(t, actions)
	assert.Equal(t, EndTurn{Player: "p1"}, actions[len(actions)-1])
	for _, a := range actions {
		assert.NotEqual(t, ActionAttack, a.Kind(), "no attacks before positioning")
	}

	// Every listed action is accepted by a fresh copy of the state.
	for _, a := range actions {
		g, err := Restore(h.g.Snapshot(), &ScriptedRandom{}, zaptest.NewLogger(t))
		require.NoError(t, err)
		res := g.Apply(a)
		assert.True(t, res.Success, "%v: %s", a, res.Message)
	}

	h.mustApply(Move{Player: "p1", Token: "p1-00", Destination: board.Pos(1, 0)})
	actions = h.g.LegalActions("p1")
	assert.Contains(t, actions, Attack{Player: "p1", Attacker: attacker, Defender: defender})
	for _, a := range actions {
		assert.NotEqual(t, ActionMove, a.Kind())
		assert.NotEqual(t, ActionDeploy, a.Kind())
	}
}

func TestKindOfAndSentinels(t *testing.T) {
	err := error(reject(KindNotOwned, "token %s", "x"))
	assert.Equal(t, KindNotOwned, KindOf(err))
	assert.True(t, errors.Is(err, ErrNotOwned))
	assert.Equal(t, "NOT_OWNED: token x", err.Error())
	assert.Equal(t, KindWrongPhase, KindOf(ErrWrongPhase))
	assert.Equal(t, KindNone, KindOf(errors.New("other")))
	assert.Nil(t, KindNone.Sentinel())
}

func TestBrokenInvariantPanics(t *testing.T) {
	h := newHarness(t)
	h.put("p2", 8, board.Pos(10, 10))
	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrInvariant))
		assert.True(t, errors.Is(err, board.ErrIllegalStack))
	}()
	h.g.relocate(h.g.tokens["p1-00"], board.Pos(10, 10))
}
