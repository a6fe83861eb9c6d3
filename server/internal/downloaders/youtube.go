package downloaders

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/platform"
)

// YouTubeDownloader talks to YouTube directly, streams are selected by itag.
type YouTubeDownloader struct {
	client *youtube.Client
}

func NewYouTubeDownloader() *YouTubeDownloader {
	return &YouTubeDownloader{client: &youtube.Client{}}
}

func (y *YouTubeDownloader) Name() string { return "youtube" }

func (y *YouTubeDownloader) fetch(ctx context.Context, url string) (*youtube.Video, error) {
	if _, err := platform.ExtractVideoID(url); err != nil {
		return nil, err
	}

	slog.Info("retrieving metadata", slog.String("url", url))

	video, err := y.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrExtractionFailed, err)
	}
	return video, nil
}

func (y *YouTubeDownloader) Resolve(ctx context.Context, url string) (*Metadata, error) {
	video, err := y.fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return toMetadata(url, video), nil
}

func toMetadata(url string, v *youtube.Video) *Metadata {
	meta := &Metadata{
		VideoID:  v.ID,
		URL:      url,
		Title:    v.Title,
		Author:   v.Author,
		Duration: int64(v.Duration.Seconds()),
		Views:    int64(v.Views),
		Platform: platform.YouTube,
	}

	if n := len(v.Thumbnails); n > 0 {
		meta.ThumbnailURL = v.Thumbnails[n-1].URL
	}

	// progressive streams first so that they win the per-height dedupe
	progressive := make([]formats.FormatOption, 0)
	adaptive := make([]formats.FormatOption, 0)

	for i := range v.Formats {
		opt := itagOption(&v.Formats[i])
		if opt.Kind == formats.KindVideo {
			progressive = append(progressive, opt)
		} else {
			adaptive = append(adaptive, opt)
		}
	}

	meta.Formats = append(progressive, adaptive...)
	return meta
}

func itagOption(f *youtube.Format) formats.FormatOption {
	var (
		isAudio = strings.HasPrefix(f.MimeType, "audio/")
		opt     = formats.FormatOption{
			Selector:  strconv.Itoa(f.ItagNo),
			SizeBytes: f.ContentLength,
			Platform:  platform.YouTube,
			Ext:       subtype(f.MimeType),
		}
	)

	switch {
	case isAudio:
		opt.Kind = formats.KindAudio
		opt.Bitrate = float64(max(f.AverageBitrate, f.Bitrate)) / 1000
		opt.Label = formats.AudioLabel(opt.Bitrate)
	case f.AudioChannels > 0:
		opt.Kind = formats.KindVideo
		opt.Height = f.Height
		opt.Label = qualityLabel(f)
	default:
		opt.Kind = formats.KindVideoOnly
		opt.Height = f.Height
		opt.Label = qualityLabel(f) + " (video only)"
	}

	return opt
}

func qualityLabel(f *youtube.Format) string {
	if f.QualityLabel != "" {
		return f.QualityLabel
	}
	if f.Height > 0 {
		return fmt.Sprintf("%dp", f.Height)
	}
	return f.Quality
}

// "video/mp4; codecs=..." -> "mp4"
func subtype(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	if _, sub, ok := strings.Cut(mt, "/"); ok {
		return sub
	}
	return ""
}

type youtubeSource struct {
	video  *youtube.Video
	format *youtube.Format
}

func (y *YouTubeDownloader) Lookup(ctx context.Context, url, selector string) (*Selection, error) {
	itag, err := strconv.Atoi(selector)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an itag", internal.ErrFormatUnavailable, selector)
	}

	video, err := y.fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	format := findItag(video.Formats, itag)
	if format == nil {
		return nil, fmt.Errorf("%w: itag %d", internal.ErrFormatUnavailable, itag)
	}

	return &Selection{
		Metadata: *toMetadata(url, video),
		Format:   itagOption(format),
		source:   &youtubeSource{video: video, format: format},
	}, nil
}

// findItag returns the first stream with the given itag, nil when it is gone.
func findItag(list youtube.FormatList, itag int) *youtube.Format {
	if l := list.Itag(itag); len(l) > 0 {
		return &l[0]
	}
	return nil
}

func (y *YouTubeDownloader) Download(ctx context.Context, job Job, onProgress ProgressFunc) (*Result, error) {
	if job.Selection == nil {
		return nil, fmt.Errorf("%w: nothing selected", internal.ErrFormatUnavailable)
	}

	src, ok := job.Selection.source.(*youtubeSource)
	if !ok || src == nil {
		return nil, fmt.Errorf("%w: selection was not produced by the youtube backend", internal.ErrFormatUnavailable)
	}

	stream, size, err := y.client.GetStreamContext(ctx, src.video, src.format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}
	defer stream.Close()

	if size <= 0 {
		size = src.format.ContentLength
	}

	ext := job.Selection.Format.Ext
	if ext == "" {
		ext = "mp4"
	}

	path := filepath.Join(job.Dir, job.Handle+"."+ext)

	fd, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	pw := &progressWriter{total: size, onProgress: onProgress}

	written, err := io.Copy(io.MultiWriter(fd, pw), stream)
	if cerr := fd.Close(); err == nil {
		err = cerr
	}
	if err == nil && size > 0 && written < size {
		err = errors.New("stream ended early")
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", internal.ErrDownloadTransport, err)
	}

	return &Result{
		FilePath: path,
		Filename: BuildFilename(job.Selection.Metadata.Title, job.Selection.Format, ext),
		Size:     written,
	}, nil
}

// progressWriter reports every chunk copied from the stream.
type progressWriter struct {
	written    int64
	total      int64
	onProgress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.onProgress != nil {
		p.onProgress(Progress{DownloadedBytes: p.written, TotalBytes: p.total})
	}
	return len(b), nil
}
