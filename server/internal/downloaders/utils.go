package downloaders

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/vidfetch/vidfetch/server/internal/formats"
)

var (
	unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	selectorPattern     = regexp.MustCompile(`^[A-Za-z0-9_\-+./]+$`)
)

// BuildFilename names a downloaded file the way it is served back to the client:
// "<title>_<quality>.<ext>" with characters invalid on common filesystems stripped.
func BuildFilename(title string, f formats.FormatOption, ext string) string {
	quality := "audio"
	if !f.IsAudio() && f.Label != "" {
		quality = f.Label
	}

	if title == "" {
		title = "video"
	}
	if ext == "" {
		ext = "mp4"
	}

	name := fmt.Sprintf("%s_%s.%s", title, quality, strings.TrimPrefix(ext, "."))
	name = unsafeFilenameChars.ReplaceAllString(name, "")

	return strings.TrimSpace(name)
}

// validSelector guards the arguments handed to the downloader executable.
func validSelector(s string) bool {
	return s != "" && selectorPattern.MatchString(s) && !strings.HasPrefix(s, "-")
}

// ComputePercent derives the completion of a transfer.
// ok is false when the backend gave nothing usable.
func ComputePercent(p Progress) (percent int, ok bool) {
	if p.TotalBytes > 0 && p.DownloadedBytes >= 0 {
		v := int(p.DownloadedBytes * 100 / p.TotalBytes)
		return clamp(v), true
	}

	return ParsePercentage(p.Percentage)
}

// ParsePercentage reads strings like " 42.7%" as 42.
func ParsePercentage(s string) (int, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return 0, false
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}

	return clamp(int(math.Floor(v))), true
}

func clamp(v int) int {
	return max(0, min(100, v))
}

// scanLines feeds every line of r to fn until EOF.
func scanLines(r io.Reader, fn func(line []byte)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		fn(scanner.Bytes())
	}
}

// stderrTail logs the downloader errors and keeps the last lines around
// so that a failed process can be reported with a meaningful detail.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
	limit int
}

func newStderrTail(limit int) *stderrTail {
	return &stderrTail{limit: limit}
}

func (s *stderrTail) consume(r io.Reader, id, url string) {
	scanLines(r, func(line []byte) {
		text := string(line)

		slog.Error("yt-dlp process error",
			slog.String("id", id),
			slog.String("url", url),
			slog.String("err", text),
		)

		s.mu.Lock()
		s.lines = append(s.lines, text)
		if len(s.lines) > s.limit {
			s.lines = s.lines[len(s.lines)-s.limit:]
		}
		s.mu.Unlock()
	})
}

func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}
