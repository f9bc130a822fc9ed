package match

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/ai"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
)

// maxBotActions bounds how many actions bots take in one go, so a match
// seated only with bots advances a little per call instead of running to
// completion under the lock.
const maxBotActions = 48

// Config controls how matches are hosted.
type Config struct {
	Rules       game.Rules
	MaxMatches  int
	TurnTimeout time.Duration
	BcryptCost  int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithStore persists results and end-of-turn checkpoints to s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithRecorder records a replay of every match.
func WithRecorder(r *game.ReplayRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSeeds replaces the source of per-match random seeds.
func WithSeeds(seed func() uint64) Option {
	return func(m *Manager) { m.seed = seed }
}

// Manager hosts matches. It is the only owner of live game states; callers
// get results, snapshots and updates.
type Manager struct {
	cfg      Config
	logger   *zap.Logger
	store    Store
	recorder *game.ReplayRecorder
	now      func() time.Time
	seed     func() uint64

	mu      sync.RWMutex
	matches map[string]*Match
	// active counts playing matches plus slots reserved by CreateMatch.
	active int
}

// NewManager creates a match manager.
func NewManager(cfg Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	m := &Manager{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		matches: make(map[string]*Match),
	}
	m.seed = func() uint64 { return uint64(m.now().UnixNano()) }
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateMatch seats players in order, starts the match and returns the
// secrets each human seat must present with its actions.
func (m *Manager) CreateMatch(ctx context.Context, players []PlayerSpec) (*Match, []Credential, error) {
	r := m.cfg.Rules
	if len(players) < r.MinPlayers || len(players) > r.MaxPlayers {
		return nil, nil, fmt.Errorf("%w: %d players, need %d..%d", ErrInvalidPlayers, len(players), r.MinPlayers, r.MaxPlayers)
	}
	if err := m.reserveSlot(); err != nil {
		return nil, nil, err
	}
	reserved := true
	defer func() {
		if reserved {
			m.releaseSlot()
		}
	}()

	id := uuid.NewString()
	seed := m.seed()
	g, err := game.NewGameState(id, r, game.NewSeededRandom(seed), m.logger)
	if err != nil {
		return nil, nil, err
	}

	mt := &Match{
		ID:          id,
		CreateTime:  m.now(),
		game:        g,
		seats:       make(map[string]*seat, len(players)),
		state:       StatePlaying,
		subscribers: make(map[int]chan Update),
	}
	var creds []Credential
	for i, spec := range players {
		pid := spec.ID
		if pid == "" {
			pid = uuid.NewString()
		}
		p, err := g.AddPlayer(pid, spec.Name)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPlayers, err)
		}
		s := &seat{playerID: p.ID, name: p.Name}
		if spec.Bot {
			s.bot = ai.NewGreedy(seed + uint64(i) + 1)
		} else {
			secret := uuid.NewString()
			hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.cfg.BcryptCost)
			if err != nil {
				return nil, nil, fmt.Errorf("hash seat secret: %w", err)
			}
			s.secretHash = hash
			creds = append(creds, Credential{PlayerID: p.ID, Secret: secret})
		}
		mt.seats[p.ID] = s
	}
	if err := g.Start(); err != nil {
		return nil, nil, err
	}
	g.Events().Subscribe(func(e rules.Event) {
		mt.pending = append(mt.pending, e)
	})

	mt.mu.Lock()
	defer mt.mu.Unlock()
	m.mu.Lock()
	m.matches[id] = mt
	m.mu.Unlock()
	reserved = false

	m.resetDeadline(mt)
	opening := g.Snapshot()
	if m.recorder != nil {
		if err := m.recorder.StartRecording(id, opening); err != nil {
			m.logger.Warn("failed to start replay", zap.String("match_id", id), zap.Error(err))
		}
	}
	m.checkpoint(ctx, mt, opening)

	m.logger.Info("match created",
		zap.String("match_id", id),
		zap.Strings("players", g.Seating()),
		zap.Int("humans", len(creds)),
		zap.Uint64("seed", seed),
	)

	m.runBots(ctx, mt)
	return mt, creds, nil
}

// Get returns a hosted match.
func (m *Manager) Get(matchID string) (*Match, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mt, ok := m.matches[matchID]
	return mt, ok
}

func (m *Manager) lookup(matchID string) (*Match, error) {
	mt, ok := m.Get(matchID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", matchID, ErrMatchNotFound)
	}
	return mt, nil
}

// Authenticate checks a seat secret.
func (m *Manager) Authenticate(matchID, playerID, secret string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}
	mt.mu.Lock()
	s, ok := mt.seats[playerID]
	mt.mu.Unlock()
	if !ok || s.secretHash == nil {
		return ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword(s.secretHash, []byte(secret)); err != nil {
		return ErrUnauthorized
	}
	return nil
}

// Submit applies an action on behalf of an authenticated seat. Engine
// rejections come back in the Result; the error is reserved for unknown
// matches, bad credentials and stopped matches.
func (m *Manager) Submit(ctx context.Context, matchID, playerID, secret string, action game.Action) (game.Result, error) {
	if err := m.Authenticate(matchID, playerID, secret); err != nil {
		return game.Result{}, err
	}
	if action != nil && action.Actor() != playerID {
		return game.Result{}, ErrActorMismatch
	}
	mt, err := m.lookup(matchID)
	if err != nil {
		return game.Result{}, err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.state == StateAbandoned {
		return game.Result{}, ErrMatchNotRunning
	}
	res := m.applyLocked(ctx, mt, playerID, action)
	if res.Success {
		m.runBots(ctx, mt)
	}
	return res, nil
}

// applyLocked runs one action and fans out the consequences. mt.mu is held.
func (m *Manager) applyLocked(ctx context.Context, mt *Match, playerID string, action game.Action) game.Result {
	res := mt.game.Apply(action)
	events := mt.pending
	mt.pending = nil
	if !res.Success {
		return res
	}

	desc := fmt.Sprint(action)
	snap := mt.game.Snapshot()
	if m.recorder != nil {
		m.recorder.RecordState(mt.ID, desc, snap)
	}
	if action.Kind() == game.ActionEndTurn {
		m.resetDeadline(mt)
		m.checkpoint(ctx, mt, snap)
	}
	if mt.game.Phase() == rules.GameEnded {
		m.finishLocked(ctx, mt, StateFinished)
	}

	mt.publish(Update{
		MatchID:  mt.ID,
		PlayerID: playerID,
		Action:   desc,
		Result:   res,
		Events:   events,
		Snapshot: snap,
		State:    mt.state,
	})
	if mt.state != StatePlaying {
		mt.closeSubscribers()
	}
	return res
}

// runBots lets bot seats act while it is their turn. mt.mu is held.
func (m *Manager) runBots(ctx context.Context, mt *Match) {
	for i := 0; i < maxBotActions; i++ {
		if mt.state != StatePlaying || mt.game.Phase() != rules.GamePlaying {
			return
		}
		current := mt.game.CurrentPlayer()
		s := mt.seats[current]
		if s == nil || s.bot == nil {
			return
		}
		action := s.bot.Choose(mt.game, current)
		if action == nil {
			action = game.EndTurn{Player: current}
		}
		if res := m.applyLocked(ctx, mt, current, action); !res.Success {
			m.logger.Error("bot action rejected",
				zap.String("match_id", mt.ID),
				zap.String("player_id", current),
				zap.Stringer("kind", res.Kind),
				zap.String("message", res.Message),
			)
			m.applyLocked(ctx, mt, current, game.EndTurn{Player: current})
		}
	}
}

func (m *Manager) finishLocked(ctx context.Context, mt *Match, state State) {
	now := m.now()
	if mt.state == StatePlaying {
		m.releaseSlot()
	}
	mt.state = state
	mt.endTime = &now
	result := mt.result(now)

	if m.store != nil {
		if err := m.store.SaveResult(ctx, result); err != nil {
			m.logger.Error("failed to save match result", zap.String("match_id", mt.ID), zap.Error(err))
		}
	}
	if m.recorder != nil && m.recorder.IsRecording(mt.ID) {
		if err := m.recorder.SaveReplay(mt.ID); err != nil {
			m.logger.Warn("failed to save replay", zap.String("match_id", mt.ID), zap.Error(err))
		}
	}
	m.logger.Info("match finished",
		zap.String("match_id", mt.ID),
		zap.Stringer("state", state),
		zap.String("winner_id", result.WinnerID),
		zap.Int("turns", result.Turns),
	)
}

func (m *Manager) checkpoint(ctx context.Context, mt *Match, snap *game.Snapshot) {
	if m.store == nil {
		return
	}
	if err := m.store.SaveSnapshot(ctx, snap); err != nil {
		m.logger.Warn("failed to save snapshot",
			zap.String("match_id", mt.ID),
			zap.Int("turn", snap.TurnNumber),
			zap.Error(err),
		)
	}
}

func (m *Manager) resetDeadline(mt *Match) {
	if m.cfg.TurnTimeout > 0 {
		mt.deadline = m.now().Add(m.cfg.TurnTimeout)
	}
}

// Snapshot returns the current position of a live match, or the last
// stored checkpoint of one that is no longer hosted.
func (m *Manager) Snapshot(ctx context.Context, matchID string) (*game.Snapshot, error) {
	if mt, ok := m.Get(matchID); ok {
		mt.mu.Lock()
		defer mt.mu.Unlock()
		return mt.game.Snapshot(), nil
	}
	if m.store == nil {
		return nil, fmt.Errorf("%s: %w", matchID, ErrMatchNotFound)
	}
	snap, err := m.store.LatestSnapshot(ctx, matchID)
	if err != nil {
		return nil, err
	}
	g, err := game.Restore(snap, game.NewSeededRandom(0), nil)
	if err != nil {
		return nil, fmt.Errorf("stored snapshot for %s: %w", matchID, err)
	}
	if err := g.Verify(); err != nil {
		return nil, fmt.Errorf("stored snapshot for %s: %w", matchID, err)
	}
	return snap, nil
}

// LegalActions lists what playerID may do right now.
func (m *Manager) LegalActions(matchID, playerID string) ([]game.Action, error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return nil, err
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	return mt.game.LegalActions(playerID), nil
}

// Subscribe streams updates for a running match. The channel closes when
// the match ends or cancel is called.
func (m *Manager) Subscribe(matchID string) (<-chan Update, func(), error) {
	mt, err := m.lookup(matchID)
	if err != nil {
		return nil, nil, err
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.state != StatePlaying {
		return nil, nil, ErrMatchNotRunning
	}
	id := mt.nextSubID
	mt.nextSubID++
	ch := make(chan Update, 32)
	mt.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			mt.mu.Lock()
			defer mt.mu.Unlock()
			if c, ok := mt.subscribers[id]; ok {
				close(c)
				delete(mt.subscribers, id)
			}
		})
	}
	return ch, cancel, nil
}

// Abandon stops a running match without a winner.
func (m *Manager) Abandon(ctx context.Context, matchID string) error {
	mt, err := m.lookup(matchID)
	if err != nil {
		return err
	}
	mt.mu.Lock()
	defer mt.mu.Unlock()
	if mt.state != StatePlaying {
		return ErrMatchNotRunning
	}
	m.finishLocked(ctx, mt, StateAbandoned)
	mt.closeSubscribers()
	return nil
}

// SweepTimeouts ends the turn of every player who let the turn timer run
// out and returns how many turns were ended.
func (m *Manager) SweepTimeouts(ctx context.Context) int {
	if m.cfg.TurnTimeout <= 0 {
		return 0
	}
	m.mu.RLock()
	matches := make([]*Match, 0, len(m.matches))
	for _, mt := range m.matches {
		matches = append(matches, mt)
	}
	m.mu.RUnlock()

	ended := 0
	now := m.now()
	for _, mt := range matches {
		mt.mu.Lock()
		if mt.state == StatePlaying && mt.game.Phase() == rules.GamePlaying && now.After(mt.deadline) {
			current := mt.game.CurrentPlayer()
			if res := m.applyLocked(ctx, mt, current, game.EndTurn{Player: current}); res.Success {
				ended++
				m.logger.Info("turn timed out",
					zap.String("match_id", mt.ID),
					zap.String("player_id", current),
				)
			}
		}
		m.runBots(ctx, mt)
		mt.mu.Unlock()
	}
	return ended
}

// Run sweeps turn timers every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SweepTimeouts(ctx)
		}
	}
}

// Remove forgets a match. Running matches are abandoned first.
func (m *Manager) Remove(ctx context.Context, matchID string) {
	if err := m.Abandon(ctx, matchID); err != nil && !errors.Is(err, ErrMatchNotRunning) {
		return
	}
	m.mu.Lock()
	delete(m.matches, matchID)
	m.mu.Unlock()
	m.logger.Info("match removed", zap.String("match_id", matchID))
}

// List returns summaries of every hosted match, oldest first.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	matches := make([]*Match, 0, len(m.matches))
	for _, mt := range m.matches {
		matches = append(matches, mt)
	}
	m.mu.RUnlock()

	out := make([]Summary, 0, len(matches))
	for _, mt := range matches {
		out = append(out, mt.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreateTime.Equal(out[j].CreateTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreateTime.Before(out[j].CreateTime)
	})
	return out
}

// ActiveCount returns the number of matches still being played.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// reserveSlot claims room for one more match under the MaxMatches cap.
func (m *Manager) reserveSlot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.MaxMatches > 0 && m.active >= m.cfg.MaxMatches {
		return ErrTooManyMatches
	}
	m.active++
	return nil
}

func (m *Manager) releaseSlot() {
	m.mu.Lock()
	m.active--
	m.mu.Unlock()
}
