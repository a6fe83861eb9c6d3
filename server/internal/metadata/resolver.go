// Package metadata resolves video metadata through the platform backends
// and keeps a persistent cache of YouTube results.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/singleflight"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/downloaders"
	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

type Resolver struct {
	backends downloaders.Backends
	cache    *Cache
	group    singleflight.Group
}

// NewResolver builds a resolver. A nil cache disables caching.
func NewResolver(backends downloaders.Backends, cache *Cache) *Resolver {
	return &Resolver{
		backends: backends,
		cache:    cache,
	}
}

// Resolve returns the metadata and the normalized format list of url.
// Concurrent misses for the same video share a single backend call.
func (r *Resolver) Resolve(ctx context.Context, url string) (*downloaders.Metadata, error) {
	p, backend, err := r.backends.For(url)
	if err != nil {
		return nil, err
	}

	key := url
	if p == platform.YouTube {
		videoID, err := platform.ExtractVideoID(url)
		if err != nil {
			return nil, err
		}
		key = string(p) + ":" + videoID

		if m := r.lookupCache(videoID); m != nil {
			m.URL = url
			return m, nil
		}
	}

	v, err, shared := r.group.Do(key, func() (any, error) {
		return r.fetch(context.WithoutCancel(ctx), p, backend, url)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("collapsed metadata request", slog.String("key", key))
	}

	m := *v.(*downloaders.Metadata)
	m.Formats = slices.Clone(m.Formats)
	m.URL = url
	return &m, nil
}

func (r *Resolver) fetch(ctx context.Context, p platform.Platform, backend downloaders.Backend, url string) (*downloaders.Metadata, error) {
	slog.Info("retrieving metadata",
		slog.String("url", url),
		slog.String("backend", backend.Name()),
	)

	m, err := backend.Resolve(ctx, url)
	if err != nil {
		if errors.Is(err, internal.ErrExtractionFailed) || errors.Is(err, internal.ErrUnrecognizedURLShape) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, err)
	}

	m.Platform = p
	if p == platform.YouTube && m.VideoID == "" {
		m.VideoID, _ = platform.ExtractVideoID(url)
	}
	m.Formats = formats.Normalize(m.Formats, downloaders.AudioOptions(p))

	if p == platform.YouTube {
		r.store(m)
	}

	return m, nil
}

func (r *Resolver) lookupCache(videoID string) *downloaders.Metadata {
	if r.cache == nil {
		return nil
	}

	e, ok, err := r.cache.Touch(videoID)
	if err != nil {
		slog.Warn("metadata cache read failed",
			slog.String("video_id", videoID),
			slog.String("err", err.Error()),
		)
		return nil
	}
	if !ok {
		return nil
	}

	var opts []formats.FormatOption
	if err := json.Unmarshal([]byte(e.Formats), &opts); err != nil {
		slog.Warn("discarding unreadable cached formats",
			slog.String("video_id", videoID),
			slog.String("err", err.Error()),
		)
		return nil
	}

	return &downloaders.Metadata{
		VideoID:      e.VideoID,
		URL:          e.URL,
		Title:        e.Title,
		Author:       e.Author,
		Duration:     e.Duration,
		Views:        e.Views,
		ThumbnailURL: e.ThumbnailURL,
		Platform:     platform.YouTube,
		Formats:      opts,
	}
}

// store writes m to the cache. Failures are logged and swallowed.
func (r *Resolver) store(m *downloaders.Metadata) {
	if r.cache == nil || m.VideoID == "" {
		return
	}

	serialized, err := json.Marshal(m.Formats)
	if err != nil {
		slog.Warn("cannot serialize formats", slog.String("err", err.Error()))
		return
	}

	err = r.cache.Put(CacheEntry{
		VideoID:      m.VideoID,
		URL:          m.URL,
		Title:        m.Title,
		Author:       m.Author,
		Duration:     m.Duration,
		Views:        m.Views,
		ThumbnailURL: m.ThumbnailURL,
		Formats:      string(serialized),
	})
	if err != nil {
		slog.Warn("metadata cache write failed",
			slog.String("video_id", m.VideoID),
			slog.String("err", err.Error()),
		)
	}
}
