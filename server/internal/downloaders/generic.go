package downloaders

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

// subset of the yt-dlp -J output we care about
type ytdlpInfo struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Uploader   string        `json:"uploader"`
	Channel    string        `json:"channel"`
	Duration   float64       `json:"duration"`
	ViewCount  int64         `json:"view_count"`
	Thumbnail  string        `json:"thumbnail"`
	WebpageURL string        `json:"webpage_url"`
	Formats    []ytdlpFormat `json:"formats"`
}

type ytdlpFormat struct {
	FormatID       string  `json:"format_id"`
	FormatNote     string  `json:"format_note"`
	Ext            string  `json:"ext"`
	Height         int     `json:"height"`
	VCodec         string  `json:"vcodec"`
	ACodec         string  `json:"acodec"`
	ABR            float64 `json:"abr"`
	TBR            float64 `json:"tbr"`
	Filesize       int64   `json:"filesize"`
	FilesizeApprox int64   `json:"filesize_approx"`
}

// GenericDownloader drives the yt-dlp executable for every platform
// other than YouTube.
type GenericDownloader struct {
	executable string
}

func NewGenericDownloader(executable string) *GenericDownloader {
	if executable == "" {
		executable = "yt-dlp"
	}
	return &GenericDownloader{executable: executable}
}

func (g *GenericDownloader) Name() string { return "generic" }

func (g *GenericDownloader) Resolve(ctx context.Context, url string) (*Metadata, error) {
	cmd := exec.CommandContext(ctx, g.executable, url, "-J", "--no-playlist", "--no-warnings")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, err)
	}

	var bufferedStderr bytes.Buffer

	copied := make(chan struct{})
	go func() {
		io.Copy(&bufferedStderr, stderr)
		close(copied)
	}()

	slog.Info("retrieving metadata", slog.String("url", url))

	var info ytdlpInfo
	decodeErr := json.NewDecoder(stdout).Decode(&info)

	// drain so that Wait does not block on a full pipe
	io.Copy(io.Discard, stdout)
	<-copied

	if err := cmd.Wait(); err != nil {
		detail := strings.TrimSpace(bufferedStderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", internal.ErrExtractionFailed, detail)
	}

	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, decodeErr)
	}

	p := platform.Classify(url)

	meta := &Metadata{
		VideoID:      info.ID,
		URL:          url,
		Title:        info.Title,
		Author:       cmp.Or(info.Uploader, info.Channel),
		Duration:     int64(info.Duration),
		Views:        info.ViewCount,
		ThumbnailURL: info.Thumbnail,
		Platform:     p,
		Formats:      make([]formats.FormatOption, 0, len(info.Formats)),
	}

	for _, f := range info.Formats {
		if opt, ok := toFormatOption(f, p); ok {
			meta.Formats = append(meta.Formats, opt)
		}
	}

	return meta, nil
}

func toFormatOption(f ytdlpFormat, p platform.Platform) (formats.FormatOption, bool) {
	var (
		hasVideo = f.VCodec != "" && f.VCodec != "none"
		hasAudio = f.ACodec != "" && f.ACodec != "none"
	)

	// storyboards and the like
	if f.FormatID == "" || (!hasVideo && !hasAudio && f.Height == 0) {
		return formats.FormatOption{}, false
	}

	opt := formats.FormatOption{
		Selector:  f.FormatID,
		Platform:  p,
		Height:    f.Height,
		Ext:       f.Ext,
		SizeBytes: f.Filesize,
	}
	if opt.SizeBytes == 0 {
		opt.SizeBytes = f.FilesizeApprox
	}

	switch {
	case !hasVideo && hasAudio:
		opt.Kind = formats.KindAudio
		opt.Bitrate = cmp.Or(f.ABR, f.TBR)
		opt.Label = formats.AudioLabel(opt.Bitrate)
		opt.Height = 0
	case hasVideo && !hasAudio && f.ACodec == "none":
		opt.Kind = formats.KindVideoOnly
		opt.Label = videoLabel(f)
	default:
		opt.Kind = formats.KindVideo
		opt.Label = videoLabel(f)
	}

	return opt, true
}

func videoLabel(f ytdlpFormat) string {
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	if f.FormatNote != "" {
		return f.FormatNote
	}
	return f.FormatID
}

func (g *GenericDownloader) Lookup(ctx context.Context, url, selector string) (*Selection, error) {
	meta, err := g.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}

	f, ok := formats.Find(meta.Formats, selector)
	if !ok {
		return nil, fmt.Errorf("%w: %s", internal.ErrFormatUnavailable, selector)
	}

	return &Selection{Metadata: *meta, Format: f}, nil
}

func (g *GenericDownloader) Download(ctx context.Context, job Job, onProgress ProgressFunc) (*Result, error) {
	sel := job.Selection
	if sel == nil {
		return nil, fmt.Errorf("%w: nothing selected", internal.ErrFormatUnavailable)
	}
	if !validSelector(sel.Format.Selector) {
		return nil, fmt.Errorf("%w: malformed selector %q", internal.ErrFormatUnavailable, sel.Format.Selector)
	}

	formatArg := sel.Format.Selector
	if sel.Format.Kind == formats.KindVideoOnly {
		formatArg = fmt.Sprintf("%s+bestaudio/%s", formatArg, formatArg)
	}

	templateReplacer := strings.NewReplacer("\n", "", "\t", "")

	output := filepath.Join(job.Dir, job.Handle+".%(ext)s")

	params := []string{
		sel.Metadata.URL,
		"--newline",
		"--no-colors",
		"--no-playlist",
		"--no-exec",
		"--no-part",
		"-f", formatArg,
		"-o", output,
		"--progress-template",
		templateReplacer.Replace(progressTemplate),
		"--progress-template",
		templateReplacer.Replace(postprocessTemplate),
	}

	slog.Info("requesting download",
		slog.String("id", job.Handle),
		slog.String("url", sel.Metadata.URL),
		slog.String("format", formatArg),
	)

	cmd := exec.CommandContext(ctx, g.executable, params...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	var (
		consumer = NewJSONLogConsumer(onProgress)
		tail     = newStderrTail(5)
		done     = make(chan struct{}, 2)
	)

	go func() {
		scanLines(stdout, consumer.ParseLogEntry)
		done <- struct{}{}
	}()
	go func() {
		tail.consume(stderr, job.Handle, sel.Metadata.URL)
		done <- struct{}{}
	}()

	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		detail := tail.String()
		if detail == "" {
			detail = err.Error()
		}
		return nil, fmt.Errorf("%w: %s", internal.ErrDownloadTransport, detail)
	}

	path := consumer.FilePath()
	if path == "" {
		path, err = findOutput(job.Dir, job.Handle)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
		}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	return &Result{
		FilePath: path,
		Filename: BuildFilename(sel.Metadata.Title, sel.Format, filepath.Ext(path)),
		Size:     fi.Size(),
	}, nil
}

// findOutput locates the file yt-dlp produced for the output template "<handle>.%(ext)s".
func findOutput(dir, handle string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, handle+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.New("downloaded file not found")
	}
	return matches[0], nil
}
