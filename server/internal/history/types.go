package history

import (
	"time"
)

type Status string

const (
	StatusInitiated   Status = "initiated"
	StatusDownloading Status = "downloading"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusDownloading, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Record is one download attempt.
type Record struct {
	ID           int64      `json:"id"`
	VideoTitle   string     `json:"video_title"`
	VideoURL     string     `json:"video_url"`
	VideoID      string     `json:"video_id"`
	Platform     string     `json:"platform"`
	Author       string     `json:"author"`
	Duration     int64      `json:"duration"`
	Views        int64      `json:"views"`
	ThumbnailURL string     `json:"thumbnail_url"`
	Quality      string     `json:"quality"`
	DownloadType string     `json:"download_type"`
	FileSize     int64      `json:"file_size"`
	Selector     string     `json:"selector"`
	UserIP       string     `json:"-"`
	UserAgent    string     `json:"-"`
	SessionID    string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"download_started_at,omitempty"`
	CompletedAt  *time.Time `json:"download_completed_at"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
}

// Details are learnt once the selected format has been looked up.
type Details struct {
	VideoID      string
	Title        string
	Author       string
	Duration     int64
	Views        int64
	ThumbnailURL string
	Quality      string
	DownloadType string
	FileSize     int64
}

// Completion feeds the aggregate counters of a successful download.
type Completion struct {
	At           time.Time
	Audio        bool
	Bytes        int64
	VideoID      string
	Platform     string
	Title        string
	Author       string
	ThumbnailURL string
}

type DailyStats struct {
	Date            string `json:"date"`
	TotalDownloads  int64  `json:"total_downloads"`
	VideoDownloads  int64  `json:"video_downloads"`
	AudioDownloads  int64  `json:"audio_downloads"`
	FailedDownloads int64  `json:"failed_downloads"`
	TotalBytes      int64  `json:"total_bytes_downloaded"`
	UniqueIPs       int64  `json:"unique_ips"`
}

type PopularVideo struct {
	VideoID         string    `json:"video_id"`
	Platform        string    `json:"platform"`
	VideoTitle      string    `json:"video_title"`
	Author          string    `json:"author"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	DownloadCount   int64     `json:"download_count"`
	FirstDownloaded time.Time `json:"first_downloaded"`
	LastDownloaded  time.Time `json:"last_downloaded"`
}

type Totals struct {
	TotalDownloads  int64 `json:"total_downloads"`
	VideoDownloads  int64 `json:"video_downloads"`
	AudioDownloads  int64 `json:"audio_downloads"`
	FailedDownloads int64 `json:"failed_downloads"`
	TotalBytes      int64 `json:"total_bytes_downloaded"`
}

type ListOptions struct {
	Page    int
	PerPage int
	Status  Status
}

type Page struct {
	Downloads   []Record `json:"downloads"`
	Total       int64    `json:"total"`
	Pages       int      `json:"pages"`
	CurrentPage int      `json:"current_page"`
	PerPage     int      `json:"per_page"`
	HasNext     bool     `json:"has_next"`
	HasPrev     bool     `json:"has_prev"`
}

// Day is the UTC calendar day a timestamp is accounted to.
func Day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
