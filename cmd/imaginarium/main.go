// Package main provides the imaginarium binary entry point. It loads and
// validates configuration, opens the SQLite index and blob storage, wires the
// application services, starts the background janitor and metrics flusher,
// and serves the HTTP API until interrupted.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/mbogdanowicz/imaginarium/internal/app"
	"github.com/mbogdanowicz/imaginarium/internal/config"
	"github.com/mbogdanowicz/imaginarium/internal/httpx"
	"github.com/mbogdanowicz/imaginarium/internal/janitor"
	"github.com/mbogdanowicz/imaginarium/internal/metrics"
	"github.com/mbogdanowicz/imaginarium/internal/store"
	"github.com/mbogdanowicz/imaginarium/internal/store/filesystem"
	minioblob "github.com/mbogdanowicz/imaginarium/internal/store/minio"
	"github.com/mbogdanowicz/imaginarium/internal/store/sqlite"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("configuration error", "err", err)
		os.Exit(2)
	}
	return cfg
}

func ensureDataDir(dir string) string {
	if st, err := os.Stat(dir); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
				slog.Error("failed to create data directory", "dir", dir, "err", mkErr)
				os.Exit(3)
			}
		} else {
			slog.Error("stat data directory", "dir", dir, "err", err)
			os.Exit(3)
		}
	} else if !st.IsDir() {
		slog.Error("data path not directory", "dir", dir)
		os.Exit(3)
	}
	blobDir := filepath.Join(dir, "blobs")
	if err := os.MkdirAll(blobDir, 0o700); err != nil {
		slog.Error("create blobs dir", "err", err)
		os.Exit(3)
	}
	return blobDir
}

func openDatabase(cfg *config.Config) (*sql.DB, *sqlite.Index) {
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		slog.Error("open sqlite driver", "err", err)
		os.Exit(4)
	}
	idx, err := sqlite.New(db)
	if err != nil {
		slog.Error("init sqlite schema", "err", err)
		os.Exit(4)
	}
	return db, idx
}

func newBlobStorage(ctx context.Context, cfg *config.Config, blobDir string) store.BlobStorage {
	if cfg.Storage == "minio" {
		blobs, err := minioblob.New(ctx, minioblob.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			slog.Error("init minio blob storage", "err", err)
			os.Exit(5)
		}
		return blobs
	}
	blobs, err := filesystem.New(blobDir)
	if err != nil {
		slog.Error("init filesystem blob storage", "err", err)
		os.Exit(5)
	}
	return blobs
}

func buildHandler(cfg *config.Config, links *app.Service, images *app.ImageService, accounts *app.AccountService, db *sql.DB, mgr *metrics.Manager) http.Handler {
	readiness := func(ctx context.Context) error { return db.PingContext(ctx) }
	h := httpx.New(links, images, accounts, cfg.MaxUploadBytes, readiness)
	h.Metrics = mgr
	mux := http.NewServeMux()
	mux.Handle("/", h.Router())
	mux.Handle("GET /metricsz", metrics.Handler(mgr, cfg.MetricsToken))
	return mux
}

func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{Addr: cfg.Addr, Handler: handler, ReadTimeout: 30 * time.Second, WriteTimeout: 60 * time.Second, IdleTimeout: 120 * time.Second}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := loadConfig()
	blobDir := ensureDataDir(cfg.DataDir)
	db, idx := openDatabase(cfg)
	defer db.Close()
	blobs := newBlobStorage(ctx, cfg, blobDir)
	clock := realClock{}
	st := store.New(idx, blobs)

	mgr := metrics.New(db, metrics.Config{})
	if err := mgr.InitSchema(ctx); err != nil {
		return err
	}
	mgr.Start(ctx)
	defer mgr.Stop(context.Background())

	links := &app.Service{
		Links:     st,
		Images:    st,
		Accounts:  st,
		Clock:     clock,
		PublicURL: cfg.PublicURL,
		MinTTL:    cfg.MinTTL,
		MaxTTL:    cfg.MaxTTL,
	}
	images := &app.ImageService{Images: st, Accounts: st, Clock: clock, MaxBytes: cfg.MaxUploadBytes}
	accounts := &app.AccountService{
		Accounts:  st,
		Clock:     clock,
		JWTSecret: []byte(cfg.JWTSecret),
		TokenTTL:  cfg.AccessTokenTTL,
	}

	j := janitor.New(links, st, janitor.Config{Interval: cfg.SweepInterval, Sink: mgr})
	j.Start(ctx)
	defer j.Stop()

	srv := newServer(cfg, buildHandler(cfg, links, images, accounts, db, mgr))
	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func main() {
	if err := run(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
