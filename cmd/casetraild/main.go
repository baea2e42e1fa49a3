package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/oakmoor/casetrail/internal/platform/access"
	"github.com/oakmoor/casetrail/internal/platform/auth"
	"github.com/oakmoor/casetrail/internal/platform/clock"
	"github.com/oakmoor/casetrail/internal/platform/ledger"
	"github.com/oakmoor/casetrail/internal/platform/redact"
	"github.com/oakmoor/casetrail/internal/platform/server"
	"github.com/oakmoor/casetrail/internal/platform/storage"
)

func main() {
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpAddr := envOr("CASETRAIL_HTTP_ADDR", ":8080")
	dbDriver := envOr("CASETRAIL_DB_DRIVER", "sqlite")
	dbDSN := envOr("CASETRAIL_DB_DSN", "casetrail.db")
	jwtSecret := envOr("CASETRAIL_JWT_SECRET", "")
	listLimit := envIntOr("CASETRAIL_LIST_LIMIT", server.DefaultListLimit)

	guardMode, err := storage.ParseGuardMode(envOr("CASETRAIL_GUARD_MODE", "strict"))
	if err != nil {
		log.Fatal("configure guard mode", zap.Error(err))
	}

	db, dialect, err := storage.Open(dbDriver, dbDSN)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal("ping database", zap.Error(err))
	}
	if err := storage.InitSchema(ctx, db, dialect); err != nil {
		log.Fatal("init schema", zap.Error(err))
	}
	// In strict mode the process refuses to serve without engine-level
	// append-only protection on the ledger table.
	if err := storage.InstallGuard(ctx, db, dialect, guardMode, log); err != nil {
		log.Fatal("install append-only guard", zap.Error(err))
	}

	store := storage.NewSQLStore(db, dialect)
	clk := clock.RealClock{}
	authn := &auth.Authenticator{Users: store}
	if jwtSecret != "" {
		authn.JWT = auth.NewJWTVerifier(jwtSecret)
	}

	srv := &server.Server{
		Ledger:    ledger.New(store, clk),
		Masker:    redact.NewMasker(),
		Access:    access.NewRecorder(store, clk, log),
		Auth:      authn,
		Metrics:   server.NewMetrics(),
		Log:       log,
		ListLimit: listLimit,
	}

	httpServer := &http.Server{Addr: httpAddr, Handler: srv.Router()}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", httpAddr), zap.String("db", dbDriver))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func envOr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
