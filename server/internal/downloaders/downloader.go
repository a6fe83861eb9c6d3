package downloaders

import (
	"context"

	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

// Metadata describes a video as reported by a backend.
type Metadata struct {
	VideoID      string                 `json:"video_id"`
	URL          string                 `json:"url"`
	Title        string                 `json:"title"`
	Author       string                 `json:"author"`
	Duration     int64                  `json:"duration"` // seconds
	Views        int64                  `json:"views"`
	ThumbnailURL string                 `json:"thumbnail_url"`
	Platform     platform.Platform      `json:"platform"`
	Formats      []formats.FormatOption `json:"formats"`
}

// Selection is a format looked up right before downloading it.
type Selection struct {
	Metadata Metadata
	Format   formats.FormatOption

	// backend private state carried from Lookup to Download
	source any
}

// Progress is what a backend knows about an ongoing transfer.
// Either the byte counters or Percentage (e.g. " 42.1%") may be empty.
type Progress struct {
	DownloadedBytes int64
	TotalBytes      int64
	Percentage      string
}

type ProgressFunc func(Progress)

type Job struct {
	Handle    string
	Selection *Selection
	Dir       string
}

type Result struct {
	FilePath string
	Filename string
	Size     int64
}

// Backend is a third party media extractor able to list and fetch formats.
type Backend interface {
	Name() string

	// Resolve extracts metadata and the raw, unfiltered format list.
	Resolve(ctx context.Context, url string) (*Metadata, error)

	// Lookup re-resolves a selector against the live backend.
	Lookup(ctx context.Context, url, selector string) (*Selection, error)

	// Download blocks until the selected format is stored under job.Dir.
	Download(ctx context.Context, job Job, onProgress ProgressFunc) (*Result, error)
}
