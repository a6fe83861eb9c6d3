// Package history persists download attempts and the aggregate
// counters derived from them in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vidfetch/vidfetch/server/internal"

	_ "modernc.org/sqlite"
)

type Recorder struct {
	db  *sql.DB
	now func() time.Time
}

// Open connects to the SQLite database at dsn and applies the schema.
func Open(dsn string) (*Recorder, error) {
	if dsn == "" {
		return nil, errors.New("empty database dsn")
	}

	conn := dsn
	if dsn != ":memory:" && !strings.Contains(dsn, "?") {
		conn = dsn + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// a single connection serializes writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	r, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func New(db *sql.DB) (*Recorder, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Recorder{db: db, now: time.Now}, nil
}

func (r *Recorder) Close() error { return r.db.Close() }

func persistenceErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", internal.ErrPersistence, op, err)
}

// Insert stores a new attempt in status initiated and returns its id.
func (r *Recorder) Insert(ctx context.Context, rec *Record) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now()
	}
	rec.Status = StatusInitiated

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO download_history (
			video_title, video_url, video_id, platform, quality, download_type,
			selector, user_ip, user_agent, session_id, created_at, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.VideoTitle, rec.VideoURL, rec.VideoID, rec.Platform, rec.Quality, rec.DownloadType,
		rec.Selector, rec.UserIP, rec.UserAgent, rec.SessionID, rec.CreatedAt.UnixMilli(), rec.Status,
	)
	if err != nil {
		return 0, persistenceErr("insert history", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, persistenceErr("insert history", err)
	}

	rec.ID = id
	return id, nil
}

func (r *Recorder) expectOne(res sql.Result, op string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceErr(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s: record %d missing or already terminal", internal.ErrPersistence, op, id)
	}
	return nil
}

// MarkDownloading fills the denormalized video details and starts the clock.
func (r *Recorder) MarkDownloading(ctx context.Context, id int64, d Details) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE download_history SET
			video_id = CASE WHEN ? <> '' THEN ? ELSE video_id END,
			video_title = ?, author = ?, duration = ?, views = ?, thumbnail_url = ?,
			quality = ?, download_type = ?, file_size = ?,
			download_started_at = ?, status = ?
		WHERE id = ? AND status = ?`,
		d.VideoID, d.VideoID,
		d.Title, d.Author, d.Duration, d.Views, d.ThumbnailURL,
		d.Quality, d.DownloadType, d.FileSize,
		r.now().UnixMilli(), StatusDownloading,
		id, StatusInitiated,
	)
	if err != nil {
		return persistenceErr("mark downloading", err)
	}
	return r.expectOne(res, "mark downloading", id)
}

func (r *Recorder) MarkCompleted(ctx context.Context, id int64, size int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE download_history SET
			status = ?, download_completed_at = ?,
			file_size = CASE WHEN ? > 0 THEN ? ELSE file_size END
		WHERE id = ? AND status IN (?, ?)`,
		StatusCompleted, r.now().UnixMilli(),
		size, size,
		id, StatusInitiated, StatusDownloading,
	)
	if err != nil {
		return persistenceErr("mark completed", err)
	}
	return r.expectOne(res, "mark completed", id)
}

func (r *Recorder) MarkFailed(ctx context.Context, id int64, message string) error {
	if message == "" {
		message = "unknown error"
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE download_history SET status = ?, error_message = ?, download_completed_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		StatusFailed, message, r.now().UnixMilli(),
		id, StatusInitiated, StatusDownloading,
	)
	if err != nil {
		return persistenceErr("mark failed", err)
	}
	return r.expectOne(res, "mark failed", id)
}

// RecordCompletion bumps the daily counters and the popularity of the video
// in a single transaction. Both writes are upserts, concurrent completions
// on the same not yet existing day are all accounted.
func (r *Recorder) RecordCompletion(ctx context.Context, c Completion) error {
	if c.At.IsZero() {
		c.At = r.now()
	}

	var video, audio int64 = 1, 0
	if c.Audio {
		video, audio = 0, 1
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("record completion", err)
	}
	defer tx.Rollback()

	now := c.At.UnixMilli()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_stats (
			date, total_downloads, video_downloads, audio_downloads,
			failed_downloads, total_bytes_downloaded, created_at, updated_at
		) VALUES (?, 1, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_downloads = total_downloads + 1,
			video_downloads = video_downloads + excluded.video_downloads,
			audio_downloads = audio_downloads + excluded.audio_downloads,
			total_bytes_downloaded = total_bytes_downloaded + excluded.total_bytes_downloaded,
			updated_at = excluded.updated_at`,
		Day(c.At), video, audio, max(c.Bytes, 0), now, now,
	)
	if err != nil {
		return persistenceErr("upsert daily stats", err)
	}

	if c.VideoID != "" {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO popular_videos (
				video_id, platform, video_title, author, thumbnail_url,
				download_count, first_downloaded, last_downloaded
			) VALUES (?, ?, ?, ?, ?, 1, ?, ?)
			ON CONFLICT(video_id) DO UPDATE SET
				download_count = download_count + 1,
				video_title = excluded.video_title,
				last_downloaded = excluded.last_downloaded`,
			c.VideoID, c.Platform, c.Title, c.Author, c.ThumbnailURL, now, now,
		)
		if err != nil {
			return persistenceErr("upsert popular video", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceErr("record completion", err)
	}
	return nil
}

// RecordFailure bumps the failed counter of the day of at.
func (r *Recorder) RecordFailure(ctx context.Context, at time.Time) error {
	if at.IsZero() {
		at = r.now()
	}
	now := at.UnixMilli()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO download_stats (date, failed_downloads, created_at, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			failed_downloads = failed_downloads + 1,
			updated_at = excluded.updated_at`,
		Day(at), now, now,
	)
	if err != nil {
		return persistenceErr("record failure", err)
	}
	return nil
}
