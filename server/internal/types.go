package internal

// Lifecycle of a single download attempt as seen by polling clients.
type ProgressStatus string

const (
	StatusStarting    ProgressStatus = "starting"
	StatusDownloading ProgressStatus = "downloading"
	StatusFinished    ProgressStatus = "finished"
	StatusCompleted   ProgressStatus = "completed"
	StatusError       ProgressStatus = "error"
	StatusNotFound    ProgressStatus = "not_found"
)

// rank orders the statuses along the only legal path
// starting -> downloading -> finished -> completed|error.
func (s ProgressStatus) rank() int {
	switch s {
	case StatusStarting:
		return 1
	case StatusDownloading:
		return 2
	case StatusFinished:
		return 3
	case StatusCompleted, StatusError:
		return 4
	default:
		return 0
	}
}

// IsTerminal reports whether no further transition may happen.
func (s ProgressStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// CanAdvanceTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s ProgressStatus) CanAdvanceTo(next ProgressStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	return next.rank() >= s.rank() && next.rank() > 0
}

// ProgressRecord is the in-memory view of one download handle.
type ProgressRecord struct {
	Status    ProgressStatus `json:"status"`
	Percent   int            `json:"progress"`
	Filename  string         `json:"filename,omitempty"`
	FilePath  string         `json:"-"`
	Error     string         `json:"error,omitempty"`
	HistoryID int64          `json:"history_id,omitempty"`
}

// Who asked for a download. Persisted with the history record only.
type Requester struct {
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	SessionID string `json:"session_id"`
}

type DownloadRequest struct {
	URL       string    `json:"url"`
	Selector  string    `json:"selector"`
	Requester Requester `json:"-"`
}
