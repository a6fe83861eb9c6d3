package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/vidfetch/vidfetch/server/internal/history"
	"github.com/vidfetch/vidfetch/server/internal/kv"
	"github.com/vidfetch/vidfetch/server/sys"
)

const (
	statsDays    = 7
	statsTop     = 10
	statsRecent  = 10
	historyLimit = 100
)

// Repository is the read side of the download history.
type Repository interface {
	RecentCompleted(ctx context.Context, n int) ([]history.Record, error)
	TopPopular(ctx context.Context, n int) ([]history.PopularVideo, error)
	Daily(ctx context.Context, days int, until time.Time) ([]history.DailyStats, error)
	Totals(ctx context.Context) (*history.Totals, error)
	List(ctx context.Context, opts history.ListOptions) (*history.Page, error)
}

type Stats struct {
	Daily       []history.DailyStats   `json:"daily_stats"`
	Totals      *history.Totals        `json:"totals"`
	Popular     []history.PopularVideo `json:"popular_videos"`
	Recent      []history.Record       `json:"recent_downloads"`
	Active      int                    `json:"active_downloads"`
	FreeSpace   uint64                 `json:"free_space"`
	FreeSpaceHR string                 `json:"free_space_human,omitempty"`
}

type Service struct {
	repo        Repository
	mdb         *kv.Store
	downloadDir string
}

func NewService(repo Repository, mdb *kv.Store, downloadDir string) *Service {
	return &Service{
		repo:        repo,
		mdb:         mdb,
		downloadDir: downloadDir,
	}
}

func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var (
		stats = &Stats{Active: s.mdb.Active()}
		g, c  = errgroup.WithContext(ctx)
	)

	g.Go(func() (err error) {
		stats.Daily, err = s.repo.Daily(c, statsDays, time.Now())
		return err
	})
	g.Go(func() (err error) {
		stats.Totals, err = s.repo.Totals(c)
		return err
	})
	g.Go(func() (err error) {
		stats.Popular, err = s.repo.TopPopular(c, statsTop)
		return err
	})
	g.Go(func() (err error) {
		stats.Recent, err = s.repo.RecentCompleted(c, statsRecent)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	free, err := sys.FreeSpace(s.downloadDir)
	if err != nil {
		slog.Warn("cannot read free space", slog.String("path", s.downloadDir), slog.String("err", err.Error()))
	} else {
		stats.FreeSpace = free
		stats.FreeSpaceHR = humanize.IBytes(free)
	}

	return stats, nil
}

func (s *Service) History(ctx context.Context, opts history.ListOptions) (*history.Page, error) {
	opts.PerPage = min(opts.PerPage, historyLimit)
	return s.repo.List(ctx, opts)
}
