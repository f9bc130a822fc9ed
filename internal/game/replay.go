package game

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const replayFormatVersion = 1

// ReplayFrame is one recorded position and the action that produced it.
// The opening frame has an empty Action.
type ReplayFrame struct {
	Action   string
	Snapshot *Snapshot
	Checksum string
}

// Replay is a recorded match that can be stepped forwards and backwards.
type Replay struct {
	MatchID string
	Frames  []ReplayFrame
	cursor  int
	mu      sync.RWMutex
}

// NewReplay creates an empty replay for matchID.
func NewReplay(matchID string) *Replay {
	return &Replay{MatchID: matchID}
}

// Record appends a frame. action describes what produced the snapshot.
func (r *Replay) Record(action string, s *Snapshot) error {
	sum, err := s.ComputeChecksum()
	if err != nil {
		return fmt.Errorf("record frame: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Frames = append(r.Frames, ReplayFrame{Action: action, Snapshot: s, Checksum: sum.Hash})
	return nil
}

// Start rewinds to the opening frame.
func (r *Replay) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}

// Next returns the frame under the cursor and advances, or nil at the end.
func (r *Replay) Next() *ReplayFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor >= len(r.Frames) {
		return nil
	}
	f := &r.Frames[r.cursor]
	r.cursor++
	return f
}

// Previous steps back one frame and returns it, or nil at the start.
func (r *Replay) Previous() *ReplayFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cursor == 0 {
		return nil
	}
	r.cursor--
	return &r.Frames[r.cursor]
}

// Skip moves the cursor by count frames, clamped to the recording.
func (r *Replay) Skip(count int) *ReplayFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Frames) == 0 {
		return nil
	}
	r.cursor += count
	if r.cursor >= len(r.Frames) {
		r.cursor = len(r.Frames) - 1
	}
	if r.cursor < 0 {
		r.cursor = 0
	}
	return &r.Frames[r.cursor]
}

// Size returns the number of frames.
func (r *Replay) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.Frames)
}

// FrameAt returns the frame at index, or nil.
func (r *Replay) FrameAt(index int) *ReplayFrame {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.Frames) {
		return nil
	}
	return &r.Frames[index]
}

// Last returns the final frame, or nil for an empty replay.
func (r *Replay) Last() *ReplayFrame {
	return r.FrameAt(r.Size() - 1)
}

type replayHeader struct {
	MatchID    string
	SavedAt    time.Time
	Version    int
	FrameCount int
}

// ReplayPath is where a match's replay lives inside directory.
func ReplayPath(directory, matchID string) string {
	return filepath.Join(directory, matchID+".replay")
}

// createReplayFile opens the destination of SaveToFile.
var createReplayFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// SaveToFile writes the replay as a gzip compressed gob stream. The save
// only succeeds if the file closes cleanly.
func (r *Replay) SaveToFile(directory string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(directory, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := createReplayFile(ReplayPath(directory, r.MatchID))
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	writeErr := r.encodeTo(file)
	closeErr := file.Close()
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close replay file: %w", closeErr)
	}
	return nil
}

func (r *Replay) encodeTo(w io.Writer) error {
	zw := gzip.NewWriter(w)
	enc := gob.NewEncoder(zw)
	header := replayHeader{
		MatchID:    r.MatchID,
		SavedAt:    time.Now().UTC(),
		Version:    replayFormatVersion,
		FrameCount: len(r.Frames),
	}
	if err := enc.Encode(&header); err != nil {
		return fmt.Errorf("failed to encode header: %w", err)
	}
	for i := range r.Frames {
		if err := enc.Encode(&r.Frames[i]); err != nil {
			return fmt.Errorf("failed to encode frame %d: %w", i, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to flush replay: %w", err)
	}
	return nil
}

// LoadReplayFromFile reads a replay written by SaveToFile and verifies
// every frame against its recorded checksum.
func LoadReplayFromFile(directory, matchID string) (*Replay, error) {
	file, err := os.Open(ReplayPath(directory, matchID))
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer zr.Close()

	dec := gob.NewDecoder(zr)
	var header replayHeader
	if err := dec.Decode(&header); err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}
	if header.Version != replayFormatVersion {
		return nil, fmt.Errorf("unsupported replay version: %d", header.Version)
	}

	replay := NewReplay(header.MatchID)
	for i := 0; i < header.FrameCount; i++ {
		var f ReplayFrame
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("failed to decode frame %d: %w", i, err)
		}
		if f.Snapshot == nil {
			return nil, fmt.Errorf("frame %d has no snapshot", i)
		}
		sum, err := f.Snapshot.ComputeChecksum()
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		if sum.Hash != f.Checksum {
			return nil, fmt.Errorf("frame %d checksum mismatch", i)
		}
		replay.Frames = append(replay.Frames, f)
	}
	return replay, nil
}

// ReplayRecorder keeps in-progress replays for many matches.
type ReplayRecorder struct {
	logger  *zap.Logger
	saveDir string

	mu      sync.RWMutex
	replays map[string]*Replay
}

// NewReplayRecorder creates a recorder that saves into saveDir.
func NewReplayRecorder(logger *zap.Logger, saveDir string) *ReplayRecorder {
	return &ReplayRecorder{
		logger:  logger,
		saveDir: saveDir,
		replays: make(map[string]*Replay),
	}
}

// StartRecording begins a replay for matchID with its opening snapshot.
func (rr *ReplayRecorder) StartRecording(matchID string, opening *Snapshot) error {
	replay := NewReplay(matchID)
	if err := replay.Record("", opening); err != nil {
		return err
	}
	rr.mu.Lock()
	rr.replays[matchID] = replay
	rr.mu.Unlock()

	if rr.logger != nil {
		rr.logger.Info("started replay recording", zap.String("match_id", matchID))
	}
	return nil
}

// RecordState appends a frame if matchID is being recorded.
func (rr *ReplayRecorder) RecordState(matchID, action string, s *Snapshot) {
	rr.mu.RLock()
	replay := rr.replays[matchID]
	rr.mu.RUnlock()
	if replay == nil {
		return
	}

	if err := replay.Record(action, s); err != nil {
		if rr.logger != nil {
			rr.logger.Warn("failed to record replay frame",
				zap.String("match_id", matchID),
				zap.Error(err),
			)
		}
		return
	}
	if rr.logger != nil {
		rr.logger.Debug("recorded replay frame",
			zap.String("match_id", matchID),
			zap.Int("frames", replay.Size()),
		)
	}
}

// IsRecording reports whether matchID has an open replay.
func (rr *ReplayRecorder) IsRecording(matchID string) bool {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	_, ok := rr.replays[matchID]
	return ok
}

// GetReplay returns the open replay for matchID.
func (rr *ReplayRecorder) GetReplay(matchID string) (*Replay, bool) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()
	replay, ok := rr.replays[matchID]
	return replay, ok
}

// SaveReplay writes the replay to disk and forgets it.
func (rr *ReplayRecorder) SaveReplay(matchID string) error {
	rr.mu.Lock()
	replay, ok := rr.replays[matchID]
	delete(rr.replays, matchID)
	rr.mu.Unlock()
	if !ok {
		return fmt.Errorf("no replay found for match %s", matchID)
	}

	if err := replay.SaveToFile(rr.saveDir); err != nil {
		return fmt.Errorf("failed to save replay: %w", err)
	}
	if rr.logger != nil {
		rr.logger.Info("saved replay to disk",
			zap.String("match_id", matchID),
			zap.Int("frames", replay.Size()),
			zap.String("directory", rr.saveDir),
		)
	}
	return nil
}

// LoadReplay reads a saved replay from the recorder's directory.
func (rr *ReplayRecorder) LoadReplay(matchID string) (*Replay, error) {
	return LoadReplayFromFile(rr.saveDir, matchID)
}

// ClearReplay drops an open replay without saving it.
func (rr *ReplayRecorder) ClearReplay(matchID string) {
	rr.mu.Lock()
	delete(rr.replays, matchID)
	rr.mu.Unlock()
}
