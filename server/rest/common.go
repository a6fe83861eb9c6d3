package rest

import (
	"github.com/asaskevich/EventBus"

	"github.com/vidfetch/vidfetch/server/internal/metadata"
	"github.com/vidfetch/vidfetch/server/internal/orchestrator"
)

type ContainerArgs struct {
	Resolver     *metadata.Resolver
	Orchestrator *orchestrator.Orchestrator
	Bus          EventBus.Bus
}

// QualityOption is a format as presented to clients.
type QualityOption struct {
	Selector string `json:"selector"`
	Label    string `json:"label"`
	Kind     string `json:"kind"`
	Filesize string `json:"filesize"`
	Platform string `json:"platform"`
}

type VideoInfo struct {
	Title          string          `json:"title"`
	Duration       string          `json:"duration"`
	Views          string          `json:"views"`
	ThumbnailURL   string          `json:"thumbnail_url"`
	Author         string          `json:"author"`
	Platform       string          `json:"platform"`
	VideoID        string          `json:"video_id,omitempty"`
	QualityOptions []QualityOption `json:"quality_options"`
}

type DownloadResponse struct {
	DownloadID string `json:"download_id"`
	Message    string `json:"message"`
}
