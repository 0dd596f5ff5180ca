package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend is the storage stack selected by store.driver.
type backend struct {
	store    app.Store
	quizzes  app.QuizRepository
	notifier app.Notifier
	closers  []func()
}

func (b *backend) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := buildBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	service := app.NewGameService(b.store, b.quizzes,
		app.WithNotifier(b.notifier),
		app.WithRules(cfg.Rules()),
		app.WithLogger(log),
	)
	handler := transport.NewHandler(service, b.notifier, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      handler.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.WithFields(logrus.Fields{"port": finalPort, "driver": cfg.Store.Driver}).Info("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func buildBackend(ctx context.Context, cfg config.Config, log *logrus.Logger) (*backend, error) {
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	b := &backend{}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = redisClient.Close() })
		if err := redisClient.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	switch cfg.Store.Driver {
	case config.DriverMemory:
		store := memory.NewStore()
		b.store = store
		b.quizzes = memory.NewQuizRepository(store, quizTTL)

	case config.DriverRedis:
		store := redisstore.NewStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
		b.store = store
		b.quizzes = redisstore.NewQuizRepository(redisClient, store, quizTTL, log)

	case config.DriverPostgres:
		db := openBun(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })
		if err := migrateDB(ctx, db, log); err != nil {
			b.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		b.store = pgstore.NewStore(db)
		loader := pgstore.NewQuizLoader(pool)
		if redisClient != nil {
			b.quizzes = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		} else {
			b.quizzes = memory.NewQuizRepository(loader, quizTTL)
		}
	}

	// Redis pub/sub lets several server instances push to each other's sockets.
	if redisClient != nil {
		b.notifier = redisstore.NewNotifier(redisClient, log)
	} else {
		b.notifier = memory.NewNotifier()
	}
	return b, nil
}
