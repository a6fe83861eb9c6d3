package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vidfetch/vidfetch/server/internal"
)

const recordColumns = `
	id, video_title, video_url, video_id, platform, author, duration, views,
	thumbnail_url, quality, download_type, file_size, selector,
	user_ip, user_agent, session_id, created_at, download_started_at,
	download_completed_at, status, error_message`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var (
		rec         Record
		createdAt   int64
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		errMessage  sql.NullString
	)

	err := s.Scan(
		&rec.ID, &rec.VideoTitle, &rec.VideoURL, &rec.VideoID, &rec.Platform,
		&rec.Author, &rec.Duration, &rec.Views, &rec.ThumbnailURL, &rec.Quality,
		&rec.DownloadType, &rec.FileSize, &rec.Selector, &rec.UserIP,
		&rec.UserAgent, &rec.SessionID, &createdAt, &startedAt, &completedAt,
		&rec.Status, &errMessage,
	)
	if err != nil {
		return nil, err
	}

	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.StartedAt = nullTime(startedAt)
	rec.CompletedAt = nullTime(completedAt)
	rec.ErrorMessage = errMessage.String

	return &rec, nil
}

func nullTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

func (r *Recorder) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *Recorder) Get(ctx context.Context, id int64) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM download_history WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: history record %d", internal.ErrNotFound, id)
	}
	if err != nil {
		return nil, persistenceErr("get history", err)
	}
	return rec, nil
}

// RecentCompleted returns the n most recently completed downloads.
func (r *Recorder) RecentCompleted(ctx context.Context, n int) ([]Record, error) {
	records, err := r.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM download_history
		WHERE status = ?
		ORDER BY download_completed_at DESC, id DESC
		LIMIT ?`,
		StatusCompleted, n,
	)
	if err != nil {
		return nil, persistenceErr("recent downloads", err)
	}
	return records, nil
}

// TopPopular returns the n most downloaded videos.
func (r *Recorder) TopPopular(ctx context.Context, n int) ([]PopularVideo, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT video_id, platform, video_title, author, thumbnail_url,
			download_count, first_downloaded, last_downloaded
		FROM popular_videos
		ORDER BY download_count DESC, last_downloaded DESC
		LIMIT ?`, n)
	if err != nil {
		return nil, persistenceErr("popular videos", err)
	}
	defer rows.Close()

	videos := make([]PopularVideo, 0)
	for rows.Next() {
		var (
			v           PopularVideo
			first, last int64
		)
		if err := rows.Scan(&v.VideoID, &v.Platform, &v.VideoTitle, &v.Author,
			&v.ThumbnailURL, &v.DownloadCount, &first, &last); err != nil {
			return nil, persistenceErr("popular videos", err)
		}
		v.FirstDownloaded = time.UnixMilli(first)
		v.LastDownloaded = time.UnixMilli(last)
		videos = append(videos, v)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("popular videos", err)
	}
	return videos, nil
}

// Daily returns the counters of the last days calendar days up to until,
// oldest first. Days without any activity are omitted.
func (r *Recorder) Daily(ctx context.Context, days int, until time.Time) ([]DailyStats, error) {
	if days < 1 {
		days = 1
	}
	from := Day(until.AddDate(0, 0, -(days - 1)))

	rows, err := r.db.QueryContext(ctx, `
		SELECT s.date, s.total_downloads, s.video_downloads, s.audio_downloads,
			s.failed_downloads, s.total_bytes_downloaded,
			(SELECT COUNT(DISTINCT h.user_ip) FROM download_history h
				WHERE h.user_ip <> ''
				AND date(h.created_at / 1000, 'unixepoch') = s.date)
		FROM download_stats s
		WHERE s.date >= ? AND s.date <= ?
		ORDER BY s.date ASC`,
		from, Day(until),
	)
	if err != nil {
		return nil, persistenceErr("daily stats", err)
	}
	defer rows.Close()

	stats := make([]DailyStats, 0, days)
	for rows.Next() {
		var d DailyStats
		if err := rows.Scan(&d.Date, &d.TotalDownloads, &d.VideoDownloads, &d.AudioDownloads,
			&d.FailedDownloads, &d.TotalBytes, &d.UniqueIPs); err != nil {
			return nil, persistenceErr("daily stats", err)
		}
		stats = append(stats, d)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("daily stats", err)
	}
	return stats, nil
}

// Totals sums every daily counter ever recorded.
func (r *Recorder) Totals(ctx context.Context) (*Totals, error) {
	var t Totals

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(total_downloads), 0), COALESCE(SUM(video_downloads), 0),
			COALESCE(SUM(audio_downloads), 0), COALESCE(SUM(failed_downloads), 0),
			COALESCE(SUM(total_bytes_downloaded), 0)
		FROM download_stats`,
	).Scan(&t.TotalDownloads, &t.VideoDownloads, &t.AudioDownloads, &t.FailedDownloads, &t.TotalBytes)
	if err != nil {
		return nil, persistenceErr("totals", err)
	}
	return &t, nil
}

// List pages through the whole history, newest first, optionally by status.
func (r *Recorder) List(ctx context.Context, opts ListOptions) (*Page, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PerPage < 1 {
		opts.PerPage = 20
	}

	var (
		where = ""
		args  = []any{}
	)
	if opts.Status != "" {
		where = "WHERE status = ?"
		args = append(args, opts.Status)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM download_history `+where, args...).Scan(&total); err != nil {
		return nil, persistenceErr("count history", err)
	}

	records, err := r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM download_history `+where+` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, opts.PerPage, (opts.Page-1)*opts.PerPage)...,
	)
	if err != nil {
		return nil, persistenceErr("list history", err)
	}

	pages := int((total + int64(opts.PerPage) - 1) / int64(opts.PerPage))

	return &Page{
		Downloads:   records,
		Total:       total,
		Pages:       pages,
		CurrentPage: opts.Page,
		PerPage:     opts.PerPage,
		HasNext:     opts.Page < pages,
		HasPrev:     opts.Page > 1,
	}, nil
}
