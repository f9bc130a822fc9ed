package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crystalrace/crystal-server-go/internal/game"
	"github.com/crystalrace/crystal-server-go/internal/game/watchers"
	"github.com/crystalrace/crystal-server-go/internal/match"
)

// MatchRepository implements match.Store on PostgreSQL.
type MatchRepository struct {
	db *DB
}

var _ match.Store = (*MatchRepository)(nil)

func NewMatchRepository(db *DB) *MatchRepository {
	return &MatchRepository{db: db}
}

// SaveResult upserts the record of a finished match and drops every
// checkpoint but the last one.
func (r *MatchRepository) SaveResult(ctx context.Context, res match.Result) error {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	players := res.Players
	if players == nil {
		players = []string{}
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO match_results (match_id, winner_id, state, turns, players, stats, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (match_id) DO UPDATE SET
			winner_id = EXCLUDED.winner_id,
			state = EXCLUDED.state,
			turns = EXCLUDED.turns,
			players = EXCLUDED.players,
			stats = EXCLUDED.stats,
			finished_at = EXCLUDED.finished_at`,
		res.MatchID, res.WinnerID, res.State.String(), res.Turns, players, stats, res.StartedAt, res.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", res.MatchID, err)
	}
	if _, err := r.pruneSnapshots(ctx, res.MatchID); err != nil {
		return err
	}
	return nil
}

// SaveSnapshot stores the checkpoint for the snapshot's turn, replacing any
// earlier write for the same turn.
func (r *MatchRepository) SaveSnapshot(ctx context.Context, s *game.Snapshot) error {
	data, err := s.SerializeToBytes()
	if err != nil {
		return err
	}
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO match_snapshots (match_id, turn, checksum, data)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, turn) DO UPDATE SET
			checksum = EXCLUDED.checksum,
			data = EXCLUDED.data,
			created_at = now()`,
		s.MatchID, s.TurnNumber, sum.Hash, data,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s turn %d: %w", s.MatchID, s.TurnNumber, err)
	}
	return nil
}

// LatestSnapshot loads the newest checkpoint and checks it against the
// stored checksum.
func (r *MatchRepository) LatestSnapshot(ctx context.Context, matchID string) (*game.Snapshot, error) {
	var (
		checksum string
		data     []byte
	)
	err := r.db.pool.QueryRow(ctx, `
		SELECT checksum, data FROM match_snapshots
		WHERE match_id = $1
		ORDER BY turn DESC
		LIMIT 1`, matchID,
	).Scan(&checksum, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for %s: %w", matchID, match.ErrMatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", matchID, err)
	}

	s, err := game.DeserializeFromBytes(data)
	if err != nil {
		return nil, err
	}
	ok, err := s.VerifyChecksum(&game.SerializationChecksum{Hash: checksum})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("snapshot for %s does not match its checksum", matchID)
	}
	return s, nil
}

// pruneSnapshots drops every checkpoint of a match older than its latest.
func (r *MatchRepository) pruneSnapshots(ctx context.Context, matchID string) (int64, error) {
	tag, err := r.db.pool.Exec(ctx, `
		DELETE FROM match_snapshots
		WHERE match_id = $1
		  AND turn < (SELECT max(turn) FROM match_snapshots WHERE match_id = $1)`, matchID)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots %s: %w", matchID, err)
	}
	return tag.RowsAffected(), nil
}

// ListResults returns results finished at or after since, oldest first.
func (r *MatchRepository) ListResults(ctx context.Context, since time.Time) ([]match.Result, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT match_id, winner_id, state, turns, players, stats, started_at, finished_at
		FROM match_results
		WHERE finished_at >= $1
		ORDER BY finished_at, match_id`, since,
	)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []match.Result
	for rows.Next() {
		var (
			res   match.Result
			state string
			stats []byte
		)
		if err := rows.Scan(&res.MatchID, &res.WinnerID, &state, &res.Turns, &res.Players, &stats, &res.StartedAt, &res.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if res.State, err = match.ParseState(state); err != nil {
			return nil, err
		}
		var ps []watchers.PlayerStats
		if err := json.Unmarshal(stats, &ps); err != nil {
			return nil, fmt.Errorf("decode stats of %s: %w", res.MatchID, err)
		}
		res.Stats = ps
		out = append(out, res)
	}
	return out, rows.Err()
}
