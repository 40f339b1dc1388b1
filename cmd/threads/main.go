package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/example/threads-platform/internal/accounts"
	"github.com/example/threads-platform/internal/events"
	"github.com/example/threads-platform/internal/handlers"
	"github.com/example/threads-platform/internal/platform/auth"
	"github.com/example/threads-platform/internal/platform/config"
	"github.com/example/threads-platform/internal/platform/db"
	"github.com/example/threads-platform/internal/platform/httpserver"
	"github.com/example/threads-platform/internal/platform/logging"
	"github.com/example/threads-platform/internal/platform/natsconn"
	"github.com/example/threads-platform/internal/platform/run"
	"github.com/example/threads-platform/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	authCfg, err := accounts.LoadAuth()
	if err != nil {
		log.Error("auth config", zap.Error(err))
		run.Exit(1)
	}

	backend := initBackend(cfg, log)
	defer backend.close()

	svc := accounts.NewService(backend.users, backend.sessions, authCfg)
	verifier := auth.JWTVerifier{Secret: authCfg.JWTSecret}

	pub, closePub := initEvents(log)
	defer closePub()

	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: backend.ready})

	r.Post("/v1/auth/register", handlers.Register(svc))
	r.Post("/v1/auth/login", handlers.Login(svc))
	r.Post("/v1/auth/refresh", handlers.Refresh(svc))
	r.Post("/v1/auth/logout", handlers.Logout(svc))

	r.Get("/v1/threads", handlers.ListThreads(backend.threads))
	r.Get("/v1/threads/{thread_id}", handlers.GetThread(backend.threads))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(verifier))
		r.Get("/v1/auth/me", handlers.Me(svc))
		r.Post("/v1/threads", handlers.CreateThread(backend.threads, pub))
		r.Delete("/v1/threads/{thread_id}", handlers.DeleteThread(backend.threads, pub))
		r.Post("/v1/threads/{thread_id}/like", handlers.LikeThread(backend.threads, pub))
		r.Post("/v1/threads/{thread_id}/comments", handlers.AddComment(backend.threads, pub))
		r.Post("/v1/threads/{thread_id}/comments/{comment_id}/like", handlers.LikeComment(backend.threads, pub))
		r.Post("/v1/threads/{thread_id}/comments/{comment_id}/replies", handlers.AddReply(backend.threads, pub))
		r.Post("/v1/threads/{thread_id}/comments/{comment_id}/replies/{reply_id}/like", handlers.LikeReply(backend.threads, pub))
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, ServiceName: cfg.ServiceName, Logger: log, Router: r})

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		return srv.Start(log)
	})

	log.Info("exit", zap.Int("code", code))
	run.Exit(code)
}

// backend bundles the selected stores with their lifecycle hooks.
type backend struct {
	users    store.UserStore
	sessions store.SessionStore
	threads  store.ThreadStore
	ready    func() error
	close    func()
}

// initBackend selects the persistence backend from the environment:
// MONGO_URL, then DATABASE_URL, then THREADS_DB_PATH, then in-memory.
// In production (APP_ENV=production) a durable backend is required and the
// process terminates without one.
func initBackend(cfg config.AppConfig, log *zap.Logger) backend {
	ctx := context.Background()

	if mongoURL := strings.TrimSpace(os.Getenv("MONGO_URL")); mongoURL != "" {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURL))
		if err == nil {
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx, nil)
			cancel()
		}
		if err != nil {
			log.Error("mongo unavailable", zap.Error(err))
			run.Exit(1)
		}
		dbName := strings.TrimSpace(os.Getenv("MONGO_DB"))
		if dbName == "" {
			dbName = "threads"
		}
		// Mongo holds the thread aggregates; accounts and sessions live in a
		// local SQLite file next to the process.
		local := mustOpenSQLite(log)
		log.Info("store: mongo threads + sqlite accounts", zap.String("db", dbName))
		return backend{
			users:    local,
			sessions: local,
			threads:  store.NewMongoThreadStore(client.Database(dbName)),
			ready: func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return client.Ping(pingCtx, nil)
			},
			close: func() {
				_ = client.Disconnect(context.Background())
				_ = local.Close()
			},
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DATABASE_URL")); dsn != "" {
		pool, err := db.Open(ctx, dsn)
		if err != nil {
			log.Error("postgres unavailable", zap.Error(err))
			run.Exit(1)
		}
		pg := store.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("postgres schema", zap.Error(err))
			run.Exit(1)
		}
		log.Info("store: postgres")
		return backend{
			users:    pg,
			sessions: pg,
			threads:  pg,
			ready: func() error {
				pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return pool.Ping(pingCtx)
			},
			close: pool.Close,
		}
	}

	if path := strings.TrimSpace(os.Getenv("THREADS_DB_PATH")); path != "" {
		sq, err := store.OpenSQLite(path)
		if err != nil {
			log.Error("sqlite open", zap.Error(err))
			run.Exit(1)
		}
		log.Info("store: sqlite", zap.String("path", path))
		return backend{
			users:    sq,
			sessions: sq,
			threads:  sq,
			ready:    func() error { return nil },
			close:    func() { _ = sq.Close() },
		}
	}

	if cfg.IsProduction() {
		log.Error("a durable backend (MONGO_URL, DATABASE_URL or THREADS_DB_PATH) is required in production")
		run.Exit(1)
	}
	log.Warn("no backend configured, using in-memory store (development only)")
	mem := store.NewMemoryStore()
	return backend{
		users:    mem,
		sessions: mem,
		threads:  mem,
		ready:    func() error { return nil },
		close:    func() {},
	}
}

func mustOpenSQLite(log *zap.Logger) *store.SQLiteStore {
	path := strings.TrimSpace(os.Getenv("THREADS_DB_PATH"))
	if path == "" {
		path = "threads.db"
	}
	sq, err := store.OpenSQLite(path)
	if err != nil {
		log.Error("sqlite open", zap.Error(err))
		run.Exit(1)
	}
	return sq
}

// initEvents connects to NATS JetStream for engagement events. NATS being
// down is not fatal; the publisher degrades to a no-op.
func initEvents(log *zap.Logger) (*events.Publisher, func()) {
	nc, err := natsconn.Connect(natsconn.Options{})
	if err != nil {
		log.Warn("nats unavailable, events disabled", zap.Error(err))
		return events.New(nil, log), func() {}
	}
	js, err := nc.JetStream(nats.PublishAsyncMaxPending(256))
	if err != nil {
		log.Warn("jetstream unavailable, events disabled", zap.Error(err))
		nc.Close()
		return events.New(nil, log), func() {}
	}
	log.Info("events: nats jetstream")
	return events.New(js, log), nc.Close
}
