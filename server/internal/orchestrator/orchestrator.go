// Package orchestrator turns download requests into background tasks and
// keeps the progress registry and the download history in step with them.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/downloaders"
	"github.com/vidfetch/vidfetch/server/internal/history"
	"github.com/vidfetch/vidfetch/server/internal/kv"
	"github.com/vidfetch/vidfetch/server/internal/platform"
	"github.com/vidfetch/vidfetch/server/internal/queue"
)

// ProgressTopic is the bus topic every registry change is published on,
// with the handle and the new internal.ProgressRecord as arguments.
const ProgressTopic = "download:progress"

// Recorder is the subset of the history store the orchestrator writes to.
type Recorder interface {
	Insert(ctx context.Context, rec *history.Record) (int64, error)
	MarkDownloading(ctx context.Context, id int64, d history.Details) error
	MarkCompleted(ctx context.Context, id int64, size int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
	RecordCompletion(ctx context.Context, c history.Completion) error
	RecordFailure(ctx context.Context, at time.Time) error
}

type Orchestrator struct {
	backends downloaders.Backends
	registry *kv.Store
	recorder Recorder
	spawner  *queue.Spawner
	bus      EventBus.Bus
	dir      string
	now      func() time.Time
}

// New wires an orchestrator. bus may be nil when nobody listens to progress.
func New(
	backends downloaders.Backends,
	registry *kv.Store,
	recorder Recorder,
	spawner *queue.Spawner,
	bus EventBus.Bus,
	downloadDir string,
) *Orchestrator {
	return &Orchestrator{
		backends: backends,
		registry: registry,
		recorder: recorder,
		spawner:  spawner,
		bus:      bus,
		dir:      downloadDir,
		now:      time.Now,
	}
}

// StartDownload accepts a request and returns its handle right away.
// The handle is pollable as soon as it is returned.
func (o *Orchestrator) StartDownload(ctx context.Context, req internal.DownloadRequest) (string, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Selector = strings.TrimSpace(req.Selector)

	if req.URL == "" {
		return "", fmt.Errorf("%w: empty url", internal.ErrInvalidURL)
	}
	if req.Selector == "" {
		return "", fmt.Errorf("%w: empty selector", internal.ErrFormatUnavailable)
	}

	p, backend, err := o.backends.For(req.URL)
	if err != nil {
		return "", err
	}

	handle := uuid.NewString()

	o.registry.Insert(handle, internal.ProgressRecord{
		Status:  internal.StatusStarting,
		Percent: 0,
	})

	historyID, err := o.recorder.Insert(ctx, &history.Record{
		VideoURL:  req.URL,
		Platform:  string(p),
		Selector:  req.Selector,
		UserIP:    req.Requester.IP,
		UserAgent: req.Requester.UserAgent,
		SessionID: req.Requester.SessionID,
	})
	if err != nil {
		slog.Error("failed to create history record",
			slog.String("id", handle),
			slog.String("err", err.Error()),
		)
	} else {
		o.update(handle, func(r *internal.ProgressRecord) { r.HistoryID = historyID })
	}

	slog.Info("download accepted",
		slog.String("id", handle),
		slog.String("url", req.URL),
		slog.String("selector", req.Selector),
		slog.String("platform", string(p)),
	)

	o.spawner.Go(handle, func() {
		o.run(handle, historyID, p, backend, req)
	})

	return handle, nil
}

// PollStatus never blocks. Unknown handles are reported as not_found.
func (o *Orchestrator) PollStatus(handle string) internal.ProgressRecord {
	rec, ok := o.registry.Get(handle)
	if !ok {
		return internal.ProgressRecord{Status: internal.StatusNotFound}
	}
	return rec
}

// Active is the number of downloads still running.
func (o *Orchestrator) Active() int { return o.registry.Active() }

func (o *Orchestrator) update(handle string, fn func(*internal.ProgressRecord)) {
	rec, ok := o.registry.Update(handle, fn)
	if ok && o.bus != nil {
		o.bus.Publish(ProgressTopic, handle, rec)
	}
}

func (o *Orchestrator) run(
	handle string,
	historyID int64,
	p platform.Platform,
	backend downloaders.Backend,
	req internal.DownloadRequest,
) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("download task panicked",
				slog.String("id", handle),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			o.fail(handle, historyID, fmt.Errorf("internal error: %v", r))
		}
	}()

	ctx := context.Background()

	sel, err := backend.Lookup(ctx, req.URL, req.Selector)
	if err != nil {
		o.fail(handle, historyID, err)
		return
	}

	o.update(handle, func(r *internal.ProgressRecord) {
		r.Status = internal.StatusDownloading
	})

	if historyID > 0 {
		err := o.recorder.MarkDownloading(ctx, historyID, history.Details{
			VideoID:      sel.Metadata.VideoID,
			Title:        sel.Metadata.Title,
			Author:       sel.Metadata.Author,
			Duration:     sel.Metadata.Duration,
			Views:        sel.Metadata.Views,
			ThumbnailURL: sel.Metadata.ThumbnailURL,
			Quality:      sel.Format.Label,
			DownloadType: downloadType(sel),
			FileSize:     sel.Format.SizeBytes,
		})
		if err != nil {
			slog.Warn("failed to update history record",
				slog.String("id", handle),
				slog.String("err", err.Error()),
			)
		}
	}

	job := downloaders.Job{
		Handle:    handle,
		Selection: sel,
		Dir:       o.dir,
	}

	res, err := backend.Download(ctx, job, func(pr downloaders.Progress) {
		percent, ok := downloaders.ComputePercent(pr)
		if !ok {
			return
		}
		o.update(handle, func(r *internal.ProgressRecord) {
			r.Status = internal.StatusDownloading
			r.Percent = percent
		})
	})
	if err != nil {
		o.fail(handle, historyID, err)
		return
	}

	o.update(handle, func(r *internal.ProgressRecord) {
		r.Status = internal.StatusFinished
	})

	o.persistCompletion(ctx, handle, historyID, p, sel, res)

	o.update(handle, func(r *internal.ProgressRecord) {
		r.Status = internal.StatusCompleted
		r.FilePath = res.FilePath
		r.Filename = res.Filename
	})

	slog.Info("download completed",
		slog.String("id", handle),
		slog.String("path", res.FilePath),
		slog.Int64("size", res.Size),
	)
}

// persistCompletion never changes the outcome of the download.
func (o *Orchestrator) persistCompletion(
	ctx context.Context,
	handle string,
	historyID int64,
	p platform.Platform,
	sel *downloaders.Selection,
	res *downloaders.Result,
) {
	if historyID > 0 {
		if err := o.recorder.MarkCompleted(ctx, historyID, res.Size); err != nil {
			slog.Error("failed to complete history record",
				slog.String("id", handle),
				slog.String("err", err.Error()),
			)
		}
	}

	err := o.recorder.RecordCompletion(ctx, history.Completion{
		At:           o.now(),
		Audio:        sel.Format.IsAudio(),
		Bytes:        res.Size,
		VideoID:      sel.Metadata.VideoID,
		Platform:     string(p),
		Title:        sel.Metadata.Title,
		Author:       sel.Metadata.Author,
		ThumbnailURL: sel.Metadata.ThumbnailURL,
	})
	if err != nil {
		slog.Error("failed to update download stats",
			slog.String("id", handle),
			slog.String("err", err.Error()),
		)
	}
}

func (o *Orchestrator) fail(handle string, historyID int64, cause error) {
	msg := cause.Error()
	if errors.Is(cause, internal.ErrFormatUnavailable) {
		msg = internal.ErrFormatUnavailable.Error()
	}

	slog.Error("download failed",
		slog.String("id", handle),
		slog.String("err", cause.Error()),
	)

	ctx := context.Background()

	if historyID > 0 {
		if err := o.recorder.MarkFailed(ctx, historyID, cause.Error()); err != nil {
			slog.Warn("failed to mark history record as failed",
				slog.String("id", handle),
				slog.String("err", err.Error()),
			)
		}
	}
	if err := o.recorder.RecordFailure(ctx, o.now()); err != nil {
		slog.Warn("failed to count failed download",
			slog.String("id", handle),
			slog.String("err", err.Error()),
		)
	}

	o.update(handle, func(r *internal.ProgressRecord) {
		r.Status = internal.StatusError
		r.Error = msg
	})
}

func downloadType(sel *downloaders.Selection) string {
	if sel.Format.IsAudio() {
		return "audio"
	}
	return "video"
}
