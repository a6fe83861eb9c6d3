// a stupid package name...
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vidfetch/vidfetch/server/config"
	"github.com/vidfetch/vidfetch/server/internal/downloaders"
	"github.com/vidfetch/vidfetch/server/internal/history"
	"github.com/vidfetch/vidfetch/server/internal/kv"
	"github.com/vidfetch/vidfetch/server/internal/metadata"
	"github.com/vidfetch/vidfetch/server/internal/orchestrator"
	"github.com/vidfetch/vidfetch/server/internal/queue"
	"github.com/vidfetch/vidfetch/server/logging"
	middlewares "github.com/vidfetch/vidfetch/server/middleware"
	"github.com/vidfetch/vidfetch/server/rest"
	"github.com/vidfetch/vidfetch/server/status"
	"github.com/vidfetch/vidfetch/server/updater"
)

type serverConfig struct {
	mdb          *kv.Store
	cache        *metadata.Cache
	recorder     *history.Recorder
	spawner      *queue.Spawner
	bus          EventBus.Bus
	resolver     *metadata.Resolver
	orchestrator *orchestrator.Orchestrator
	downloadDir  string
}

func Run(ctx context.Context) error {
	conf := config.Instance()

	// ---- LOGGING ---------------------------------------------------
	logCloser, err := logging.Setup(
		conf.Logging.Level,
		conf.Logging.LogPath,
		conf.Logging.EnableFileLogging,
	)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	// ----------------------------------------------------------------

	downloadDir := conf.Paths.DownloadPath
	if downloadDir == "" {
		downloadDir = filepath.Join(os.TempDir(), "vidfetch")
	}
	if err := os.MkdirAll(downloadDir, os.ModePerm); err != nil {
		return err
	}
	if err := os.MkdirAll(conf.Paths.LocalDatabasePath, os.ModePerm); err != nil {
		return err
	}

	recorder, err := history.Open(conf.DatabaseDSN())
	if err != nil {
		return err
	}

	cache, err := metadata.NewCache(filepath.Join(conf.Paths.LocalDatabasePath, "bolt.db"))
	if err != nil {
		recorder.Close()
		return err
	}

	if conf.Paths.UpdateDownloader {
		if err := updater.UpdateExecutable(ctx, conf.Paths.DownloaderPath); err != nil {
			slog.Warn("failed to update the downloader", slog.String("err", err.Error()))
		}
	}
	if v, err := updater.Version(ctx, conf.Paths.DownloaderPath); err != nil {
		slog.Warn("downloader not available, instagram and facebook downloads will fail",
			slog.String("path", conf.Paths.DownloaderPath),
			slog.String("err", err.Error()),
		)
	} else {
		slog.Info("using downloader", slog.String("path", conf.Paths.DownloaderPath), slog.String("version", v))
	}

	var (
		mdb      = kv.NewStore(conf.Registry.MaxFinished, conf.Registry.Retention)
		spawner  = queue.NewSpawner(conf.Server.QueueSize)
		bus      = EventBus.New()
		backends = downloaders.NewBackends(
			downloaders.NewYouTubeDownloader(),
			downloaders.NewGenericDownloader(conf.Paths.DownloaderPath),
		)
	)

	scfg := serverConfig{
		mdb:          mdb,
		cache:        cache,
		recorder:     recorder,
		spawner:      spawner,
		bus:          bus,
		resolver:     metadata.NewResolver(backends, cache),
		orchestrator: orchestrator.New(backends, mdb, recorder, spawner, bus, downloadDir),
		downloadDir:  downloadDir,
	}

	srv := newServer(scfg)

	var (
		network = "tcp"
		address = fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port)
	)

	// support unix sockets
	if strings.HasPrefix(conf.Server.Host, "/") {
		network = "unix"
		address = conf.Server.Host
	}

	listener, err := net.Listen(network, address)
	if err != nil {
		slog.Error("failed to listen", slog.String("err", err.Error()))
		closeStores(&scfg)
		return err
	}

	slog.Info("vidfetch started",
		slog.String("address", address),
		slog.String("download_path", downloadDir),
		slog.Int("queue_size", conf.Server.QueueSize),
	)

	return serve(ctx, srv, listener, &scfg)
}

// serve blocks until the http server is down and the stores are closed.
func serve(ctx context.Context, srv *http.Server, l net.Listener, cfg *serverConfig) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		gracefulShutdown(ctx, srv, cfg)
		close(done)
	}()

	err := srv.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	} else if err != nil {
		slog.Warn("http server stopped", slog.String("err", err.Error()))
	}

	cancel()
	<-done

	return err
}

func newServer(c serverConfig) *http.Server {
	conf := config.Instance()

	r := chi.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	sessions := middlewares.NewSessions(
		conf.Session.Secret,
		conf.Session.CookieName,
		conf.Session.TTL,
	)

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware.Handler)
	r.Use(sessions.Handler)
	// use in dev
	// r.Use(middleware.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	routes := func(r chi.Router) {
		// download endpoints
		r.Group(rest.ApplyRouter(&rest.ContainerArgs{
			Resolver:     c.resolver,
			Orchestrator: c.orchestrator,
			Bus:          c.bus,
		}))

		// stats and history
		r.Route("/api", status.ApplyRouter(c.recorder, c.mdb, c.downloadDir))
	}

	if baseURL := strings.TrimSuffix(conf.Server.BaseURL, "/"); baseURL != "" {
		r.Route(baseURL, routes)
	} else {
		routes(r)
	}

	return &http.Server{
		Handler:           r,
		ReadHeaderTimeout: time.Second * 10,
	}
}

func gracefulShutdown(ctx context.Context, srv *http.Server, cfg *serverConfig) {
	<-ctx.Done()
	slog.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("forced http shutdown", slog.String("err", err.Error()))
	}

	closeStores(cfg)
}

func closeStores(cfg *serverConfig) {
	// downloads still running are abandoned, progress is not durable
	if ids := cfg.mdb.Keys(); len(ids) > 0 {
		slog.Warn("abandoning downloads in flight", slog.Any("ids", ids))
	}

	if err := cfg.cache.Close(); err != nil {
		slog.Warn("failed to close the metadata cache", slog.String("err", err.Error()))
	}
	if err := cfg.recorder.Close(); err != nil {
		slog.Warn("failed to close the history database", slog.String("err", err.Error()))
	}
}
