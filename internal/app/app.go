package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"example.com/quadclue/internal/auth"
	"example.com/quadclue/internal/chain"
	"example.com/quadclue/internal/config"
	"example.com/quadclue/internal/game"
	"example.com/quadclue/internal/httpapi"
	"example.com/quadclue/internal/store"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db  *pgxpool.Pool
	rdb *redis.Client

	sessions *game.SessionService
	srv      *http.Server
}

// New connects to Postgres and Redis and wires every component. ctx is the
// service lifetime: event subscriptions hang off it.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
	}

	authSvc := auth.NewService(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	// --- Chain ---
	relay := chain.NewHTTPGateway(chain.HTTPGatewayConfig{
		BaseURL: cfg.Chain.RelayURL,
		Timeout: cfg.Chain.Timeout,
	}, log.With("component", "relay"))
	stats := chain.NewStatsCache(relay, cfg.Game.StatsTTL)
	feed := chain.NewWSEventSource(chain.WSEventSourceConfig{
		URL:         cfg.Chain.EventsURL,
		DialTimeout: cfg.Chain.Timeout,
	}, log.With("component", "feed"))

	// --- Stores ---
	puzzles := store.NewPuzzleStore(dbpool)
	profiles := store.NewProfileStore(dbpool)

	// --- Game ---
	sessions := game.NewSessionService(ctx, game.Config{
		SubmissionTimeout: cfg.Game.SubmissionTimeout,
		MatchWindow:       cfg.Game.MatchWindow,
		PuzzleRefresh:     cfg.Game.PuzzleRefresh,
		IdleTimeout:       cfg.Game.SessionIdle,
	}, game.SessionDeps{
		Persist:  game.NewRedisStatePersistence(rdb, cfg.Redis.StateTTL, log),
		Gateways: relay,
		Feed:     feed,
		Puzzles:  puzzles,
		Stats:    stats,
		Log:      log.With("component", "game"),
	})
	gameSrv := game.NewServer(sessions, authSvc, log)

	api := &httpapi.Handler{
		Profiles: profiles,
		Stats:    stats,
		Puzzles:  sessions,
		Tokens:   authSvc,
		Log:      log.With("component", "api"),
	}

	router := newRouter(log, routes{
		api:            api.Routes,
		ws:             gameSrv.RegisterRoutes,
		origin:         cfg.HTTP.ClientOrigin,
		handlerTimeout: cfg.HTTP.HandlerTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, sessions: sessions, srv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		return a.sessions.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	a.sessions.CloseAll()
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
