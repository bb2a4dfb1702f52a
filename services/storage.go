package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/intelsk/reid/models"
	_ "modernc.org/sqlite"
)

// ReportStore writes a snapshot of the session into a standalone SQLite file
// for offline review. The session never reads a report back.
type ReportStore struct {
	db   *sql.DB
	path string
}

// NewReportStore creates a fresh report database at dbPath, replacing any
// previous file.
func NewReportStore(dbPath string) (*ReportStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing old report: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &ReportStore{db: db, path: dbPath}, nil
}

func runMigrations(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS report (
    created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS videos (
    local_id     TEXT PRIMARY KEY,
    filename     TEXT NOT NULL,
    video_id     TEXT,
    total_frames INTEGER,
    fps          REAL
);

CREATE TABLE IF NOT EXISTS targets (
    local_id     TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    kind         TEXT NOT NULL,
    description  TEXT NOT NULL,
    backend_id   TEXT
);

CREATE TABLE IF NOT EXISTS matches (
    video_id     TEXT NOT NULL,
    target_id    TEXT NOT NULL,
    rank         INTEGER NOT NULL,
    frame_idx    INTEGER NOT NULL,
    similarity   REAL NOT NULL,
    frame_path   TEXT NOT NULL,
    frame_url    TEXT NOT NULL,
    PRIMARY KEY (video_id, target_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_matches_target ON matches(target_id);
`
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

// ExportSummary counts the rows written by Export.
type ExportSummary struct {
	Path    string `json:"path"`
	Videos  int    `json:"videos"`
	Targets int    `json:"targets"`
	Pairs   int    `json:"pairs"`
	Matches int    `json:"matches"`
}

// Export writes videos, targets and every indexed match in one transaction.
// Image payloads are not copied; only the target description is kept.
func (s *ReportStore) Export(ctx context.Context, videos []models.Video, targets []models.Target,
	index *ResultIndex, mediaURL func(string) string) (ExportSummary, error) {
	summary := ExportSummary{Path: s.path}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return summary, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO report (created_at) VALUES (?)`,
		time.Now().UTC().Format(time.RFC3339)); err != nil {
		return summary, fmt.Errorf("writing report header: %w", err)
	}

	for _, v := range videos {
		var videoID sql.NullString
		var totalFrames sql.NullInt64
		var fps sql.NullFloat64
		if v.Searchable() {
			videoID = sql.NullString{String: v.ServerID(), Valid: true}
			totalFrames = sql.NullInt64{Int64: int64(v.ProcessingResult.TotalFrames), Valid: true}
			fps = sql.NullFloat64{Float64: v.ProcessingResult.FPS, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO videos
			(local_id, filename, video_id, total_frames, fps) VALUES (?, ?, ?, ?, ?)`,
			v.LocalID, v.Filename, videoID, totalFrames, fps); err != nil {
			return summary, fmt.Errorf("writing video %s: %w", v.LocalID, err)
		}
		summary.Videos++
	}

	for _, t := range targets {
		var backendID sql.NullString
		if t.Registered() {
			backendID = sql.NullString{String: t.BackendID, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO targets
			(local_id, name, kind, description, backend_id) VALUES (?, ?, ?, ?, ?)`,
			t.LocalID, t.Name, string(t.Kind()), t.Description, backendID); err != nil {
			return summary, fmt.Errorf("writing target %s: %w", t.LocalID, err)
		}
		summary.Targets++
	}

	for _, key := range index.Pairs() {
		matches, _ := index.Get(key.VideoID, key.TargetID)
		for rank, m := range matches {
			if _, err := tx.ExecContext(ctx, `INSERT INTO matches
				(video_id, target_id, rank, frame_idx, similarity, frame_path, frame_url)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				key.VideoID, key.TargetID, rank, m.FrameIdx, m.Similarity, m.FramePath, mediaURL(m.FramePath)); err != nil {
				return summary, fmt.Errorf("writing match %s/%s#%d: %w", key.VideoID, key.TargetID, rank, err)
			}
			summary.Matches++
		}
		summary.Pairs++
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("committing report: %w", err)
	}
	return summary, nil
}

// DB exposes the report database, mainly for tests.
func (s *ReportStore) DB() *sql.DB {
	return s.db
}

func (s *ReportStore) Close() error {
	return s.db.Close()
}
