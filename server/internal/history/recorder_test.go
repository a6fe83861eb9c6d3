package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vidfetch/vidfetch/server/internal"
)

func setupTest(t *testing.T) *Recorder {
	t.Helper()

	r, err := Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func insert(t *testing.T, r *Recorder, url, ip string) int64 {
	t.Helper()

	id, err := r.Insert(context.Background(), &Record{
		VideoURL: url,
		Platform: "youtube",
		Selector: "22",
		UserIP:   ip,
	})
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	return id
}

func TestLifecycle(t *testing.T) {
	var (
		r   = setupTest(t)
		ctx = context.Background()
		id  = insert(t, r, "https://youtu.be/dQw4w9WgXcQ", "10.0.0.1")
	)

	rec, err := r.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != StatusInitiated || rec.StartedAt != nil || rec.CompletedAt != nil {
		t.Errorf("unexpected fresh record %+v", rec)
	}

	err = r.MarkDownloading(ctx, id, Details{
		VideoID:      "dQw4w9WgXcQ",
		Title:        "Never Gonna Give You Up",
		Author:       "Rick Astley",
		Duration:     213,
		Quality:      "720p",
		DownloadType: "video",
	})
	if err != nil {
		t.Fatal(err)
	}

	if err := r.MarkCompleted(ctx, id, 4096); err != nil {
		t.Fatal(err)
	}

	rec, _ = r.Get(ctx, id)
	if rec.Status != StatusCompleted || rec.CompletedAt == nil || rec.StartedAt == nil {
		t.Errorf("expected a completed record with timestamps, got %+v", rec)
	}
	if rec.VideoTitle != "Never Gonna Give You Up" || rec.FileSize != 4096 || rec.VideoID != "dQw4w9WgXcQ" {
		t.Errorf("expected denormalized details to be stored, got %+v", rec)
	}

	// terminal records are never rewritten
	if err := r.MarkFailed(ctx, id, "late failure"); !errors.Is(err, internal.ErrPersistence) {
		t.Errorf("expected ErrPersistence, got %v", err)
	}
	rec, _ = r.Get(ctx, id)
	if rec.Status != StatusCompleted {
		t.Errorf("expected status to stay completed, got %s", rec.Status)
	}
}

func TestMarkFailed(t *testing.T) {
	var (
		r   = setupTest(t)
		ctx = context.Background()
		id  = insert(t, r, "https://fb.watch/abc/", "")
	)

	if err := r.MarkFailed(ctx, id, "connection reset"); err != nil {
		t.Fatal(err)
	}

	rec, _ := r.Get(ctx, id)
	if rec.Status != StatusFailed || rec.ErrorMessage != "connection reset" {
		t.Errorf("unexpected failed record %+v", rec)
	}

	if _, err := r.Get(ctx, 9999); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentCompletionsOnANewDay(t *testing.T) {
	var (
		r   = setupTest(t)
		ctx = context.Background()
		day = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)

	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.RecordCompletion(ctx, Completion{
				At:      day.Add(time.Duration(i) * time.Second),
				Audio:   i == 1,
				Bytes:   100,
				VideoID: "dQw4w9WgXcQ",
				Title:   "title",
			})
			if err != nil {
				t.Errorf("record completion failed: %v", err)
			}
		}()
	}
	wg.Wait()

	stats, err := r.Daily(ctx, 7, day)
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected a single daily row, got %d", len(stats))
	}

	d := stats[0]
	if d.TotalDownloads != 2 || d.VideoDownloads != 1 || d.AudioDownloads != 1 || d.TotalBytes != 200 {
		t.Errorf("unexpected daily counters %+v", d)
	}

	popular, err := r.TopPopular(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(popular) != 1 || popular[0].DownloadCount != 2 {
		t.Errorf("expected one popular video downloaded twice, got %+v", popular)
	}
}

func TestStatsQueries(t *testing.T) {
	var (
		r   = setupTest(t)
		ctx = context.Background()
		now = time.Now()
	)

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.1"} {
		id := insert(t, r, "https://youtu.be/dQw4w9WgXcQ", ip)
		r.MarkDownloading(ctx, id, Details{Title: "t"})
		r.MarkCompleted(ctx, id, 10)
		r.RecordCompletion(ctx, Completion{At: now, Bytes: 10, VideoID: "vid-" + ip})
	}
	r.RecordFailure(ctx, now)
	r.RecordCompletion(ctx, Completion{At: now.AddDate(0, 0, -10), Bytes: 1})

	daily, err := r.Daily(ctx, 7, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(daily) != 1 {
		t.Fatalf("expected only today within the last 7 days, got %+v", daily)
	}
	if daily[0].TotalDownloads != 3 || daily[0].FailedDownloads != 1 || daily[0].UniqueIPs != 2 {
		t.Errorf("unexpected counters %+v", daily[0])
	}

	totals, err := r.Totals(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if totals.TotalDownloads != 4 || totals.FailedDownloads != 1 || totals.TotalBytes != 31 {
		t.Errorf("unexpected totals %+v", totals)
	}

	recent, err := r.RecentCompleted(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("expected 2 recent downloads, got %d", len(recent))
	}

	popular, _ := r.TopPopular(ctx, 10)
	if len(popular) != 2 {
		t.Errorf("expected 2 popular videos, got %d", len(popular))
	}
}

func TestList(t *testing.T) {
	var (
		r   = setupTest(t)
		ctx = context.Background()
	)

	for i := range 5 {
		id := insert(t, r, "https://youtu.be/dQw4w9WgXcQ", "")
		if i%2 == 0 {
			r.MarkFailed(ctx, id, "boom")
		}
	}

	page, err := r.List(ctx, ListOptions{Page: 1, PerPage: 2})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 5 || page.Pages != 3 || len(page.Downloads) != 2 || !page.HasNext || page.HasPrev {
		t.Errorf("unexpected first page %+v", page)
	}

	last, _ := r.List(ctx, ListOptions{Page: 3, PerPage: 2})
	if len(last.Downloads) != 1 || last.HasNext || !last.HasPrev {
		t.Errorf("unexpected last page %+v", last)
	}

	failed, _ := r.List(ctx, ListOptions{Page: 1, PerPage: 10, Status: StatusFailed})
	if failed.Total != 3 {
		t.Errorf("expected 3 failed downloads, got %d", failed.Total)
	}
	for _, rec := range failed.Downloads {
		if rec.Status != StatusFailed {
			t.Errorf("unexpected status %s in failed listing", rec.Status)
		}
	}
}
