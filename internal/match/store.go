package match

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/crystalrace/crystal-server-go/internal/game"
)

// Store persists finished results and turn checkpoints.
type Store interface {
	SaveResult(ctx context.Context, r Result) error
	SaveSnapshot(ctx context.Context, s *game.Snapshot) error
	LatestSnapshot(ctx context.Context, matchID string) (*game.Snapshot, error)
}

// MemoryStore keeps everything in process. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	results   map[string]Result
	snapshots map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results:   make(map[string]Result),
		snapshots: make(map[string][]byte),
	}
}

func (s *MemoryStore) SaveResult(_ context.Context, r Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[r.MatchID] = r
	return nil
}

// SaveSnapshot keeps only the newest checkpoint per match, encoded so later
// mutation of snap cannot leak into the store.
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *game.Snapshot) error {
	data, err := snap.SerializeToBytes()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.MatchID] = data
	return nil
}

func (s *MemoryStore) LatestSnapshot(_ context.Context, matchID string) (*game.Snapshot, error) {
	s.mu.RLock()
	data, ok := s.snapshots[matchID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("snapshot for %s: %w", matchID, ErrMatchNotFound)
	}
	return game.DeserializeFromBytes(data)
}

// Result returns a saved result.
func (s *MemoryStore) Result(matchID string) (Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[matchID]
	return r, ok
}

// Results returns every saved result ordered by match id.
func (s *MemoryStore) Results() []Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Result, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out
}
