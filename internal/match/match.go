package match

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/ai"
	"github.com/crystalrace/crystal-server-go/internal/game/rules"
	"github.com/crystalrace/crystal-server-go/internal/game/watchers"
)

var (
	ErrMatchNotFound   = errors.New("match not found")
	ErrUnauthorized    = errors.New("invalid seat credentials")
	ErrTooManyMatches  = errors.New("too many active matches")
	ErrActorMismatch   = errors.New("action submitted for another seat")
	ErrInvalidPlayers  = errors.New("invalid player list")
	ErrMatchNotRunning = errors.New("match is not running")
)

// State represents the lifecycle of a hosted match.
type State int

const (
	StatePlaying State = iota
	StateFinished
	StateAbandoned
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "PLAYING"
	case StateFinished:
		return "FINISHED"
	case StateAbandoned:
		return "ABANDONED"
	default:
		return "UNKNOWN"
	}
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for _, st := range []State{StatePlaying, StateFinished, StateAbandoned} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("unknown match state %q", s)
}

// PlayerSpec describes one seat when creating a match. An empty ID gets a
// generated one. Bot seats are played by the server.
type PlayerSpec struct {
	ID   string
	Name string
	Bot  bool
}

// Credential is handed to a human seat once, at creation.
type Credential struct {
	PlayerID string
	Secret   string
}

// Update is pushed to subscribers after every applied action.
type Update struct {
	MatchID  string
	PlayerID string
	Action   string
	Result   game.Result
	Events   []rules.Event
	Snapshot *game.Snapshot
	State    State
}

// Result is the record of a finished match.
type Result struct {
	MatchID    string
	WinnerID   string
	State      State
	Turns      int
	Players    []string
	Stats      []watchers.PlayerStats
	StartedAt  time.Time
	FinishedAt time.Time
}

type seat struct {
	playerID   string
	name       string
	bot        ai.Policy
	secretHash []byte
}

// Match is one hosted game. Every access to the game state goes through mu.
type Match struct {
	ID         string
	CreateTime time.Time

	mu          sync.Mutex
	game        *game.GameState
	seats       map[string]*seat
	state       State
	endTime     *time.Time
	deadline    time.Time
	pending     []rules.Event
	subscribers map[int]chan Update
	nextSubID   int
}

// Summary is a consistent view of a match for listings.
type Summary struct {
	ID          string
	State       State
	Players     []string
	CurrentTurn int
	CurrentID   string
	WinnerID    string
	CreateTime  time.Time
	EndTime     *time.Time
}

// Summary returns a consistent copy of the match header.
func (m *Match) Summary() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var end *time.Time
	if m.endTime != nil {
		cp := *m.endTime
		end = &cp
	}
	return Summary{
		ID:          m.ID,
		State:       m.state,
		Players:     m.game.Seating(),
		CurrentTurn: m.game.TurnNumber(),
		CurrentID:   m.game.CurrentPlayer(),
		WinnerID:    m.game.WinnerID(),
		CreateTime:  m.CreateTime,
		EndTime:     end,
	}
}

func (m *Match) result(now time.Time) Result {
	seating := m.game.Seating()
	stats := make([]watchers.PlayerStats, 0, len(seating))
	for _, id := range seating {
		stats = append(stats, m.game.Stats(id))
	}
	return Result{
		MatchID:    m.ID,
		WinnerID:   m.game.WinnerID(),
		State:      m.state,
		Turns:      m.game.TurnNumber(),
		Players:    seating,
		Stats:      stats,
		StartedAt:  m.CreateTime,
		FinishedAt: now,
	}
}

// publish fans an update out without blocking; slow subscribers miss updates.
func (m *Match) publish(u Update) {
	for _, ch := range m.subscribers {
		select {
		case ch <- u:
		default:
		}
	}
}

func (m *Match) closeSubscribers() {
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
}
