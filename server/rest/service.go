package rest

import (
	"context"
	"fmt"
	"os"

	"github.com/vidfetch/vidfetch/server/internal"
	"github.com/vidfetch/vidfetch/server/internal/formats"
	"github.com/vidfetch/vidfetch/server/internal/metadata"
	"github.com/vidfetch/vidfetch/server/internal/orchestrator"
)

type Service struct {
	resolver     *metadata.Resolver
	orchestrator *orchestrator.Orchestrator
}

func NewService(resolver *metadata.Resolver, o *orchestrator.Orchestrator) *Service {
	return &Service{
		resolver:     resolver,
		orchestrator: o,
	}
}

func (s *Service) VideoInfo(ctx context.Context, url string) (*VideoInfo, error) {
	m, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}

	options := make([]QualityOption, 0, len(m.Formats))
	for _, f := range m.Formats {
		options = append(options, QualityOption{
			Selector: f.Selector,
			Label:    f.Label,
			Kind:     string(f.Kind),
			Filesize: formats.FormatFilesize(f.SizeBytes),
			Platform: string(f.Platform),
		})
	}

	return &VideoInfo{
		Title:          m.Title,
		Duration:       formats.FormatDuration(m.Duration),
		Views:          formats.FormatViews(m.Views),
		ThumbnailURL:   m.ThumbnailURL,
		Author:         m.Author,
		Platform:       string(m.Platform),
		VideoID:        m.VideoID,
		QualityOptions: options,
	}, nil
}

func (s *Service) Exec(ctx context.Context, req internal.DownloadRequest) (string, error) {
	return s.orchestrator.StartDownload(ctx, req)
}

func (s *Service) Progress(id string) internal.ProgressRecord {
	return s.orchestrator.PollStatus(id)
}

// File returns the location and the client facing name of a completed download.
func (s *Service) File(id string) (path, name string, err error) {
	rec := s.orchestrator.PollStatus(id)
	if rec.Status != internal.StatusCompleted {
		return "", "", fmt.Errorf("%w: download not completed or not found", internal.ErrNotFound)
	}

	if rec.FilePath == "" {
		return "", "", fmt.Errorf("%w: file not found", internal.ErrNotFound)
	}
	if _, err := os.Stat(rec.FilePath); err != nil {
		return "", "", fmt.Errorf("%w: file not found", internal.ErrNotFound)
	}

	return rec.FilePath, rec.Filename, nil
}
