package watchers

import (
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
)

// Registry keys of the standard watchers.
const (
	KeyTokensDestroyed    = "TokensDestroyedWatcher"
	KeyTokensDeployed     = "TokensDeployedWatcher"
	KeyDamageDealt        = "DamageDealtWatcher"
	KeyObjectivesCaptured = "ObjectivesCapturedWatcher"
)

// TokensDestroyedWatcher counts destroyed tokens by the attacking player and by owner.
type TokensDestroyedWatcher struct {
	*rules.BaseWatcher
	byAttacker map[string]int
	byOwner    map[string]int
}

// NewTokensDestroyedWatcher creates a new tokens destroyed watcher.
func NewTokensDestroyedWatcher() *TokensDestroyedWatcher {
	w := &TokensDestroyedWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeGame),
		byAttacker:  make(map[string]int),
		byOwner:     make(map[string]int),
	}
	w.SetKey(KeyTokensDestroyed)
	return w
}

// Watch implements the Watcher interface.
func (w *TokensDestroyedWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventTokenDestroyed {
		return
	}
	if event.PlayerID != "" {
		w.byAttacker[event.PlayerID]++
	}
	if owner := event.Metadata["owner_id"]; owner != "" {
		w.byOwner[owner]++
	}
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *TokensDestroyedWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.byAttacker = make(map[string]int)
	w.byOwner = make(map[string]int)
}

// Kills returns how many enemy tokens playerID destroyed.
func (w *TokensDestroyedWatcher) Kills(playerID string) int {
	return w.byAttacker[playerID]
}

// Losses returns how many of playerID's tokens were destroyed.
func (w *TokensDestroyedWatcher) Losses(playerID string) int {
	return w.byOwner[playerID]
}

// Total returns the number of destroyed tokens.
func (w *TokensDestroyedWatcher) Total() int {
	total := 0
	for _, n := range w.byOwner {
		total += n
	}
	return total
}

// Copy creates a copy of this watcher.
func (w *TokensDestroyedWatcher) Copy() rules.Watcher {
	c := NewTokensDestroyedWatcher()
	c.SetCondition(w.ConditionMet())
	for k, v := range w.byAttacker {
		c.byAttacker[k] = v
	}
	for k, v := range w.byOwner {
		c.byOwner[k] = v
	}
	return c
}

// TokensDeployedWatcher records the ids of tokens each player deployed,
// including the automatic opening deployment.
type TokensDeployedWatcher struct {
	*rules.BaseWatcher
	deployed map[string][]string
}

// NewTokensDeployedWatcher creates a new tokens deployed watcher.
func NewTokensDeployedWatcher() *TokensDeployedWatcher {
	w := &TokensDeployedWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeGame),
		deployed:    make(map[string][]string),
	}
	w.SetKey(KeyTokensDeployed)
	return w
}

// Watch implements the Watcher interface.
func (w *TokensDeployedWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventTokenDeployed || event.PlayerID == "" || event.TargetID == "" {
		return
	}
	w.deployed[event.PlayerID] = append(w.deployed[event.PlayerID], event.TargetID)
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *TokensDeployedWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.deployed = make(map[string][]string)
}

// Deployed returns the token ids playerID deployed, in order.
func (w *TokensDeployedWatcher) Deployed(playerID string) []string {
	return w.deployed[playerID]
}

// Copy creates a copy of this watcher.
func (w *TokensDeployedWatcher) Copy() rules.Watcher {
	c := NewTokensDeployedWatcher()
	c.SetCondition(w.ConditionMet())
	for k, v := range w.deployed {
		c.deployed[k] = append([]string(nil), v...)
	}
	return c
}

// DamageDealtWatcher sums damage dealt per attacking player.
type DamageDealtWatcher struct {
	*rules.BaseWatcher
	dealt map[string]int
}

// NewDamageDealtWatcher creates a new damage dealt watcher.
func NewDamageDealtWatcher() *DamageDealtWatcher {
	w := &DamageDealtWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeGame),
		dealt:       make(map[string]int),
	}
	w.SetKey(KeyDamageDealt)
	return w
}

// Watch implements the Watcher interface.
func (w *DamageDealtWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventTokenAttacked || event.PlayerID == "" {
		return
	}
	w.dealt[event.PlayerID] += event.Amount
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *DamageDealtWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.dealt = make(map[string]int)
}

// Dealt returns the total damage playerID dealt.
func (w *DamageDealtWatcher) Dealt(playerID string) int {
	return w.dealt[playerID]
}

// Copy creates a copy of this watcher.
func (w *DamageDealtWatcher) Copy() rules.Watcher {
	c := NewDamageDealtWatcher()
	c.SetCondition(w.ConditionMet())
	for k, v := range w.dealt {
		c.dealt[k] = v
	}
	return c
}

// ObjectivesCapturedWatcher records which objective trackers each player captured.
type ObjectivesCapturedWatcher struct {
	*rules.BaseWatcher
	captured map[string][]string
}

// NewObjectivesCapturedWatcher creates a new objectives captured watcher.
func NewObjectivesCapturedWatcher() *ObjectivesCapturedWatcher {
	w := &ObjectivesCapturedWatcher{
		BaseWatcher: rules.NewBaseWatcher(rules.WatcherScopeGame),
		captured:    make(map[string][]string),
	}
	w.SetKey(KeyObjectivesCaptured)
	return w
}

// Watch implements the Watcher interface.
func (w *ObjectivesCapturedWatcher) Watch(event rules.Event) {
	if event.Type != rules.EventObjectiveCaptured || event.PlayerID == "" {
		return
	}
	w.captured[event.PlayerID] = append(w.captured[event.PlayerID], event.TargetID)
	w.SetCondition(true)
}

// Reset clears the watcher's state.
func (w *ObjectivesCapturedWatcher) Reset() {
	w.BaseWatcher.Reset()
	w.captured = make(map[string][]string)
}

// Captured returns the tracker ids playerID captured.
func (w *ObjectivesCapturedWatcher) Captured(playerID string) []string {
	return w.captured[playerID]
}

// Copy creates a copy of this watcher.
func (w *ObjectivesCapturedWatcher) Copy() rules.Watcher {
	c := NewObjectivesCapturedWatcher()
	c.SetCondition(w.ConditionMet())
	for k, v := range w.captured {
		c.captured[k] = append([]string(nil), v...)
	}
	return c
}

// RegisterDefaults adds the standard watchers to reg.
func RegisterDefaults(reg *rules.WatcherRegistry) {
	reg.AddWatcher(NewTokensDestroyedWatcher())
	reg.AddWatcher(NewTokensDeployedWatcher())
	reg.AddWatcher(NewDamageDealtWatcher())
	reg.AddWatcher(NewObjectivesCapturedWatcher())
}

// PlayerStats is the per-player summary stored with a finished match.
type PlayerStats struct {
	PlayerID           string `json:"player_id"`
	DamageDealt        int    `json:"damage_dealt"`
	Kills              int    `json:"kills"`
	Losses             int    `json:"losses"`
	Deployments        int    `json:"deployments"`
	ObjectivesCaptured int    `json:"objectives_captured"`
}

// Summarize reads the standard watchers from reg. Missing watchers count as zero.
func Summarize(reg *rules.WatcherRegistry, playerID string) PlayerStats {
	s := PlayerStats{PlayerID: playerID}
	if w, ok := reg.GetWatcher(KeyDamageDealt).(*DamageDealtWatcher); ok {
		s.DamageDealt = w.Dealt(playerID)
	}
	if w, ok := reg.GetWatcher(KeyTokensDestroyed).(*TokensDestroyedWatcher); ok {
		s.Kills = w.Kills(playerID)
		s.Losses = w.Losses(playerID)
	}
	if w, ok := reg.GetWatcher(KeyTokensDeployed).(*TokensDeployedWatcher); ok {
		s.Deployments = len(w.Deployed(playerID))
	}
	if w, ok := reg.GetWatcher(KeyObjectivesCaptured).(*ObjectivesCapturedWatcher); ok {
		s.ObjectivesCaptured = len(w.Captured(playerID))
	}
	return s
}
