package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trajlink/internal/pose"
)

// Run is a persisted linking run.
type Run struct {
	RunID      string          `json:"run_id"`
	CreatedAt  int64           `json:"created_at"`
	Stage      string          `json:"stage"`
	ParamsJSON json.RawMessage `json:"params_json,omitempty"`
	StatsJSON  json.RawMessage `json:"stats_json,omitempty"`
}

// Identity is the frame range of one output identity of a run.
type Identity struct {
	RunID      string `json:"run_id"`
	VideoID    int64  `json:"video_id"`
	Identity   int    `json:"identity"`
	StartFrame int    `json:"start_frame"`
	EndFrame   int    `json:"end_frame"`
	Frames     int    `json:"frames"` // frames with an observed pose
}

// IdentitiesOf summarises every non-empty target of a linked sequence.
func IdentitiesOf(videoID int64, seq pose.Source) []Identity {
	var out []Identity
	for k := 0; k < seq.NumTargets(); k++ {
		start, end, ok := seq.TargetRange(k)
		if !ok {
			continue
		}
		n := 0
		for t := start; t <= end; t++ {
			if !seq.Frame(t)[k].IsMissing() {
				n++
			}
		}
		out = append(out, Identity{VideoID: videoID, Identity: k, StartFrame: start, EndFrame: end, Frames: n})
	}
	return out
}

// RunStore persists linking runs.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db.DB}
}

func nullableJSON(b json.RawMessage) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Insert persists run and its identities. If RunID is empty, a UUID is
// generated.
func (s *RunStore) Insert(ctx context.Context, run *Run, ids []Identity) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO link_runs (run_id, created_at, stage, params_json, stats_json)
			VALUES (?, ?, ?, ?, ?)`,
			run.RunID, run.CreatedAt, run.Stage, nullableJSON(run.ParamsJSON), nullableJSON(run.StatsJSON),
		); err != nil {
			return fmt.Errorf("insert run %s: %w", run.RunID, err)
		}
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO run_identities (run_id, video_id, identity, start_frame, end_frame, frames)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.RunID, id.VideoID, id.Identity, id.StartFrame, id.EndFrame, id.Frames,
			); err != nil {
				return fmt.Errorf("insert identity %d of video %d: %w", id.Identity, id.VideoID, err)
			}
		}
		return tx.Commit()
	})
}

// Get returns the run with the given id.
func (s *RunStore) Get(ctx context.Context, runID string) (*Run, error) {
	var (
		run           Run
		params, stats sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, created_at, stage, params_json, stats_json
		FROM link_runs WHERE run_id = ?`, runID,
	).Scan(&run.RunID, &run.CreatedAt, &run.Stage, &params, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if params.Valid {
		run.ParamsJSON = json.RawMessage(params.String)
	}
	if stats.Valid {
		run.StatsJSON = json.RawMessage(stats.String)
	}
	return &run, nil
}

// List returns runs newest first, at most limit of them (all when limit <= 0).
func (s *RunStore) List(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, stage
		FROM link_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.RunID, &run.CreatedAt, &run.Stage); err != nil {
			return nil, err
		}
		out = append(out, &run)
	}
	return out, rows.Err()
}

// ListIdentities returns the identities of a run ordered by video and
// identity.
func (s *RunStore) ListIdentities(ctx context.Context, runID string) ([]Identity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, video_id, identity, start_frame, end_frame, frames
		FROM run_identities WHERE run_id = ? ORDER BY video_id, identity`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		var id Identity
		if err := rows.Scan(&id.RunID, &id.VideoID, &id.Identity, &id.StartFrame, &id.EndFrame, &id.Frames); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
