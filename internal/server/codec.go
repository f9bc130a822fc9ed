package server

import (
	"fmt"
	"time"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/board"
	"github.com/crystalrace/crystal-server-go/internal/game/capture"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/units"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

// Wire types shared by the websocket and gRPC transports. Both speak the
// same JSON shapes; gRPC carries them inside structpb.Struct.

type PositionView struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func positionView(p board.Position) *PositionView {
	return &PositionView{X: p.X, Y: p.Y}
}

type ActionView struct {
	Kind        string        `json:"kind"`
	Player      string        `json:"player"`
	Token       string        `json:"token,omitempty"`
	Tier        int           `json:"tier,omitempty"`
	Destination *PositionView `json:"destination,omitempty"`
	Attacker    string        `json:"attacker,omitempty"`
	Defender    string        `json:"defender,omitempty"`
}

// ParseAction converts a wire action into an engine action.
func ParseAction(v ActionView) (game.Action, error) {
	kind, err := game.ParseActionKind(v.Kind)
	if err != nil {
		return nil, err
	}
	if v.Player == "" {
		return nil, fmt.Errorf("%s: player is required", kind)
	}
	dest := func() (board.Position, error) {
		if v.Destination == nil {
			return board.Position{}, fmt.Errorf("%s: destination is required", kind)
		}
		return board.Pos(v.Destination.X, v.Destination.Y), nil
	}

	switch kind {
	case game.ActionMove:
		if v.Token == "" {
			return nil, fmt.Errorf("%s: token is required", kind)
		}
		d, err := dest()
		if err != nil {
			return nil, err
		}
		return game.Move{Player: v.Player, Token: v.Token, Destination: d}, nil
	case game.ActionDeploy:
		d, err := dest()
		if err != nil {
			return nil, err
		}
		return game.Deploy{Player: v.Player, Tier: v.Tier, Destination: d}, nil
	case game.ActionAttack:
		if v.Attacker == "" || v.Defender == "" {
			return nil, fmt.Errorf("%s: attacker and defender are required", kind)
		}
		return game.Attack{Player: v.Player, Attacker: v.Attacker, Defender: v.Defender}, nil
	default:
		return game.EndTurn{Player: v.Player}, nil
	}
}

// NewActionView is the inverse of ParseAction.
func NewActionView(a game.Action) ActionView {
	v := ActionView{Kind: string(a.Kind()), Player: a.Actor()}
	switch a := a.(type) {
	case game.Move:
		v.Token = a.Token
		v.Destination = positionView(a.Destination)
	case game.Deploy:
		v.Tier = a.Tier
		v.Destination = positionView(a.Destination)
	case game.Attack:
		v.Attacker = a.Attacker
		v.Defender = a.Defender
	}
	return v
}

func actionViews(actions []game.Action) []ActionView {
	out := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		out = append(out, NewActionView(a))
	}
	return out
}

type EventOutcomeView struct {
	Effect    string        `json:"effect"`
	Node      *PositionView `json:"node"`
	OldHealth int           `json:"old_health"`
	NewHealth int           `json:"new_health"`
	Position  *PositionView `json:"position"`
}

type AttackView struct {
	Attacker       string `json:"attacker"`
	Defender       string `json:"defender"`
	Damage         int    `json:"damage"`
	DefenderHealth int    `json:"defender_health"`
	Destroyed      bool   `json:"destroyed"`
}

type ResultView struct {
	Success            bool              `json:"success"`
	ErrorKind          string            `json:"error_kind,omitempty"`
	Message            string            `json:"message,omitempty"`
	TokenID            string            `json:"token_id,omitempty"`
	MovedTo            *PositionView     `json:"moved_to,omitempty"`
	Event              *EventOutcomeView `json:"event,omitempty"`
	DeployedTokenID    string            `json:"deployed_token_id,omitempty"`
	Attack             *AttackView       `json:"attack,omitempty"`
	CapturedObjectives []string          `json:"captured_objectives,omitempty"`
	WinnerID           string            `json:"winner_id,omitempty"`
	NextPlayerID       string            `json:"next_player_id,omitempty"`
	TurnNumber         int               `json:"turn_number,omitempty"`
}

func NewResultView(res game.Result) ResultView {
	v := ResultView{Success: res.Success, Message: res.Message}
	if !res.Success {
		v.ErrorKind = res.Kind.String()
		return v
	}
	e := res.Effects
	v.TokenID = e.TokenID
	if e.MovedTo != nil {
		v.MovedTo = positionView(*e.MovedTo)
	}
	if e.Event != nil {
		v.Event = &EventOutcomeView{
			Effect:    e.Event.Effect.String(),
			Node:      positionView(e.Event.Node),
			OldHealth: e.Event.OldHealth,
			NewHealth: e.Event.NewHealth,
			Position:  positionView(e.Event.Position),
		}
	}
	v.DeployedTokenID = e.DeployedTokenID
	if e.Attack != nil {
		v.Attack = &AttackView{
			Attacker:       e.Attack.AttackerID,
			Defender:       e.Attack.DefenderID,
			Damage:         e.Attack.Damage,
			DefenderHealth: e.Attack.DefenderHealth,
			Destroyed:      e.Attack.Destroyed,
		}
	}
	v.CapturedObjectives = e.CapturedObjectives
	v.WinnerID = e.WinnerID
	v.NextPlayerID = e.NextPlayerID
	v.TurnNumber = e.TurnNumber
	return v
}

type PlayerView struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Seat int    `json:"seat"`
}

type TokenView struct {
	ID        string        `json:"id"`
	Owner     string        `json:"owner"`
	MaxHealth int           `json:"max_health"`
	Health    int           `json:"health"`
	Lifecycle string        `json:"lifecycle"`
	Position  *PositionView `json:"position,omitempty"`
}

type TrackerView struct {
	ID            string        `json:"id"`
	Kind          string        `json:"kind"`
	Position      *PositionView `json:"position"`
	HolderID      string        `json:"holder_id,omitempty"`
	TurnsHeld     int           `json:"turns_held"`
	RequiredTurns int           `json:"required_turns"`
	Terminal      bool          `json:"terminal"`
}

func trackerView(t capture.Tracker) TrackerView {
	return TrackerView{
		ID:            t.ID,
		Kind:          t.Kind.String(),
		Position:      positionView(t.Position),
		HolderID:      t.HolderID,
		TurnsHeld:     t.TurnsHeld,
		RequiredTurns: t.RequiredTurns,
		Terminal:      t.Terminal,
	}
}

type SnapshotView struct {
	MatchID       string          `json:"match_id"`
	BoardSize     int             `json:"board_size"`
	TurnNumber    int             `json:"turn_number"`
	CurrentPlayer string          `json:"current_player,omitempty"`
	TurnPhase     string          `json:"turn_phase"`
	Attacked      bool            `json:"attacked"`
	GamePhase     string          `json:"game_phase"`
	WinnerID      string          `json:"winner_id,omitempty"`
	Players       []PlayerView    `json:"players"`
	Tokens        []TokenView     `json:"tokens"`
	Objectives    []TrackerView   `json:"objectives"`
	Win           TrackerView     `json:"win"`
	EventNodes    []*PositionView `json:"event_nodes"`
	Checksum      string          `json:"checksum,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

func NewSnapshotView(s *game.Snapshot) SnapshotView {
	v := SnapshotView{
		MatchID:    s.MatchID,
		BoardSize:  s.Rules.Board.Width,
		TurnNumber: s.TurnNumber,
		TurnPhase:  s.TurnPhase.String(),
		Attacked:   s.Attacked,
		GamePhase:  s.GamePhase.String(),
		WinnerID:   s.WinnerID,
		Win:        trackerView(s.Win),
		Timestamp:  s.Timestamp,
	}
	if s.GamePhase == rules.GamePlaying && s.OrderIndex >= 0 && s.OrderIndex < len(s.Seating) {
		v.CurrentPlayer = s.Seating[s.OrderIndex]
	}
	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerView{ID: p.ID, Name: p.Name, Seat: p.Seat})
	}
	for _, t := range s.Tokens {
		tv := TokenView{
			ID:        t.ID,
			Owner:     t.OwnerID,
			MaxHealth: t.MaxHealth,
			Health:    t.Health,
			Lifecycle: t.Lifecycle.String(),
		}
		if t.Lifecycle == units.LifecycleDeployed {
			tv.Position = positionView(t.Position)
		}
		v.Tokens = append(v.Tokens, tv)
	}
	for _, o := range s.Objectives {
		v.Objectives = append(v.Objectives, trackerView(o))
	}
	for _, p := range s.EventNodes {
		v.EventNodes = append(v.EventNodes, positionView(p))
	}
	if sum, err := s.ComputeChecksum(); err == nil {
		v.Checksum = sum.Hash
	}
	return v
}

type EventView struct {
	Type        string `json:"type"`
	TargetID    string `json:"target_id,omitempty"`
	SourceID    string `json:"source_id,omitempty"`
	PlayerID    string `json:"player_id,omitempty"`
	Amount      int    `json:"amount,omitempty"`
	Flag        bool   `json:"flag,omitempty"`
	Turn        int    `json:"turn,omitempty"`
	Description string `json:"description,omitempty"`
	// Capture marks end-of-turn node evaluation events.
	Capture bool `json:"capture,omitempty"`
}

type UpdateView struct {
	MatchID  string       `json:"match_id"`
	PlayerID string       `json:"player_id"`
	Action   string       `json:"action"`
	Result   ResultView   `json:"result"`
	Events   []EventView  `json:"events"`
	Snapshot SnapshotView `json:"snapshot"`
	State    string       `json:"state"`
}

func NewUpdateView(u match.Update) UpdateView {
	v := UpdateView{
		MatchID:  u.MatchID,
		PlayerID: u.PlayerID,
		Action:   u.Action,
		Result:   NewResultView(u.Result),
		State:    u.State.String(),
	}
	if u.Snapshot != nil {
		v.Snapshot = NewSnapshotView(u.Snapshot)
	}
	for _, e := range u.Events {
		v.Events = append(v.Events, EventView{
			Type:        string(e.Type),
			TargetID:    e.TargetID,
			SourceID:    e.SourceID,
			PlayerID:    e.PlayerID,
			Amount:      e.Amount,
			Flag:        e.Flag,
			Turn:        e.Turn,
			Description: e.Description,
			Capture:     e.Type.IsCapture(),
		})
	}
	return v
}

type SummaryView struct {
	MatchID     string     `json:"match_id"`
	State       string     `json:"state"`
	Players     []string   `json:"players"`
	CurrentTurn int        `json:"current_turn"`
	CurrentID   string     `json:"current_player,omitempty"`
	WinnerID    string     `json:"winner_id,omitempty"`
	CreateTime  time.Time  `json:"create_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

func summaryView(s match.Summary) SummaryView {
	return SummaryView{
		MatchID:     s.ID,
		State:       s.State.String(),
		Players:     s.Players,
		CurrentTurn: s.CurrentTurn,
		CurrentID:   s.CurrentID,
		WinnerID:    s.WinnerID,
		CreateTime:  s.CreateTime,
		EndTime:     s.EndTime,
	}
}

// Requests and responses.

type PlayerSpecView struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Bot  bool   `json:"bot,omitempty"`
}

type CreateMatchRequest struct {
	Players []PlayerSpecView `json:"players"`
}

type CredentialView struct {
	PlayerID string `json:"player_id"`
	Secret   string `json:"secret"`
}

type CreateMatchResponse struct {
	MatchID     string           `json:"match_id"`
	Credentials []CredentialView `json:"credentials"`
	Snapshot    SnapshotView     `json:"snapshot"`
}

type SubmitRequest struct {
	MatchID  string     `json:"match_id"`
	PlayerID string     `json:"player_id"`
	Secret   string     `json:"secret"`
	Action   ActionView `json:"action"`
}

type MatchRequest struct {
	MatchID  string `json:"match_id"`
	PlayerID string `json:"player_id,omitempty"`
}

type LegalActionsResponse struct {
	MatchID  string       `json:"match_id"`
	PlayerID string       `json:"player_id"`
	Actions  []ActionView `json:"actions"`
}

func (r CreateMatchRequest) specs() []match.PlayerSpec {
	out := make([]match.PlayerSpec, len(r.Players))
	for i, p := range r.Players {
		out[i] = match.PlayerSpec{ID: p.ID, Name: p.Name, Bot: p.Bot}
	}
	return out
}

func credentialViews(creds []match.Credential) []CredentialView {
	out := make([]CredentialView, len(creds))
	for i, c := range creds {
		out[i] = CredentialView{PlayerID: c.PlayerID, Secret: c.Secret}
	}
	return out
}
