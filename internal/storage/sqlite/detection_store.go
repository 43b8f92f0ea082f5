package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/trajlink/internal/pose"
)

// ErrNotFound is returned when a video or run does not exist.
var ErrNotFound = errors.New("not found")

// Video describes a stored detection sequence.
type Video struct {
	VideoID    int64      `json:"video_id"`
	Name       string     `json:"name"`
	Shape      pose.Shape `json:"shape"`
	FirstFrame int        `json:"first_frame"`
	LastFrame  int        `json:"last_frame"`
	CreatedAt  int64      `json:"created_at"`
}

// DetectionStore persists pose sequences.
type DetectionStore struct {
	db *sql.DB
}

// NewDetectionStore creates a new DetectionStore.
func NewDetectionStore(db *DB) *DetectionStore {
	return &DetectionStore{db: db.DB}
}

// encodeCoords stores NaN coordinates as JSON null.
func encodeCoords(p pose.Pose) (string, error) {
	vals := make([]*float64, len(p))
	for i := range p {
		if !math.IsNaN(p[i]) {
			v := p[i]
			vals[i] = &v
		}
	}
	b, err := json.Marshal(vals)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCoords(s string) (pose.Pose, error) {
	var vals []*float64
	if err := json.Unmarshal([]byte(s), &vals); err != nil {
		return nil, err
	}
	p := make(pose.Pose, len(vals))
	for i, v := range vals {
		if v == nil {
			p[i] = math.NaN()
		} else {
			p[i] = *v
		}
	}
	return p, nil
}

func nullableFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// SaveSequence stores every observed detection of src under name, replacing
// any video of the same name, and returns the new video id.
func (s *DetectionStore) SaveSequence(ctx context.Context, name string, src pose.Source) (int64, error) {
	shape := src.Shape()
	var videoID int64
	err := retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM videos WHERE name = ?`, name); err != nil {
			return fmt.Errorf("replace video %q: %w", name, err)
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO videos (name, landmarks, dims, first_frame, last_frame, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			name, shape.Landmarks, shape.Dims, src.FirstFrame(), src.LastFrame(), time.Now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("insert video %q: %w", name, err)
		}
		if videoID, err = res.LastInsertId(); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO detections (video_id, frame, slot, coords, confidence)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for t := src.FirstFrame(); t <= src.LastFrame(); t++ {
			for slot, p := range src.Frame(t) {
				if p.IsMissing() {
					continue
				}
				coords, err := encodeCoords(p)
				if err != nil {
					return fmt.Errorf("encode frame %d slot %d: %w", t, slot, err)
				}
				if _, err := stmt.ExecContext(ctx, videoID, t, slot, coords, nullableFloat(src.Confidence(slot, t))); err != nil {
					return fmt.Errorf("insert frame %d slot %d: %w", t, slot, err)
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return videoID, nil
}

// GetVideo returns the metadata of a stored video.
func (s *DetectionStore) GetVideo(ctx context.Context, videoID int64) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT video_id, name, landmarks, dims, first_frame, last_frame, created_at
		FROM videos WHERE video_id = ?`, videoID)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %d: %w", videoID, ErrNotFound)
	}
	return v, err
}

// FindVideo returns the video stored under name.
func (s *DetectionStore) FindVideo(ctx context.Context, name string) (*Video, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT video_id, name, landmarks, dims, first_frame, last_frame, created_at
		FROM videos WHERE name = ?`, name)
	v, err := scanVideo(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("video %q: %w", name, ErrNotFound)
	}
	return v, err
}

// ListVideos returns every stored video ordered by id.
func (s *DetectionStore) ListVideos(ctx context.Context) ([]*Video, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT video_id, name, landmarks, dims, first_frame, last_frame, created_at
		FROM videos ORDER BY video_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Video
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVideo(row scanner) (*Video, error) {
	var v Video
	if err := row.Scan(&v.VideoID, &v.Name, &v.Shape.Landmarks, &v.Shape.Dims, &v.FirstFrame, &v.LastFrame, &v.CreatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}

// LoadSequence rebuilds the stored video as a Sequence with the original
// slot layout.
func (s *DetectionStore) LoadSequence(ctx context.Context, videoID int64) (*pose.Sequence, error) {
	v, err := s.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	seq, err := pose.NewSequence(v.Shape, v.FirstFrame, v.LastFrame)
	if err != nil {
		return nil, fmt.Errorf("video %d: %w", videoID, err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT frame, slot, coords, confidence
		FROM detections WHERE video_id = ? ORDER BY slot, frame`, videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			frame, slot int
			coords      string
			conf        sql.NullFloat64
		)
		if err := rows.Scan(&frame, &slot, &coords, &conf); err != nil {
			return nil, err
		}
		p, err := decodeCoords(coords)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d slot %d: %w", frame, slot, err)
		}
		c := math.NaN()
		if conf.Valid {
			c = conf.Float64
		}
		if err := seq.SetPose(slot, frame, p, c); err != nil {
			return nil, fmt.Errorf("frame %d slot %d: %w", frame, slot, err)
		}
	}
	return seq, rows.Err()
}
