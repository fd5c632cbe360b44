package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trivia-sync-service/internal/app"
	"trivia-sync-service/internal/broadcast"
	"trivia-sync-service/internal/config"
	"trivia-sync-service/internal/infra/memory"
	natsinfra "trivia-sync-service/internal/infra/nats"
	"trivia-sync-service/internal/infra/postgres"
	redisinfra "trivia-sync-service/internal/infra/redis"
	transport "trivia-sync-service/internal/transport/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// storeOfRecord is satisfied by both the Postgres and the in-memory store.
type storeOfRecord interface {
	app.QuizStore
	app.GameStore
}

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Start the trivia server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	var store storeOfRecord = memory.NewStore()
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL, config.Duration(cfg.Postgres.ConnectTimeout, 10*time.Second))
		if err != nil {
			return err
		}
		defer pool.Close()
		store = postgres.NewStore(pool)
	} else {
		log.Warn().Msg("postgres url not configured, using in-memory store")
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	quizTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var cache app.QuizCache
	if redisClient != nil {
		cache = redisinfra.NewQuizCache(redisClient, store, quizTTL)
	} else {
		cache = memory.NewQuizCache(store, quizTTL)
	}

	channel, closeChannel, err := newBroadcastChannel(cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeChannel()

	quizzes := app.NewQuizService(store, cache)
	games := app.NewGameService(store, cache, channel, app.WithGameConfig(app.GameConfig{
		RejectLateAnswers: cfg.Game.RejectLateAnswers,
		LateGrace:         config.Duration(cfg.Game.LateGrace, 2*time.Second),
		PublishTimeout:    config.Duration(cfg.Server.PublishTimeout, 2*time.Second),
	}))

	server := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     transport.NewRouter(quizzes, games, channel),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: websocket streams are long-lived.
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("broadcast", cfg.Broadcast.Driver).Msg("starting trivia service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newBroadcastChannel(cfg config.Config, redisClient *redis.Client) (broadcast.Channel, func(), error) {
	switch cfg.Broadcast.Driver {
	case config.DriverRedis:
		if redisClient == nil {
			return nil, nil, errors.New("broadcast driver redis needs redis.addr")
		}
		return redisinfra.NewBroadcaster(redisClient), func() {}, nil
	case config.DriverNATS:
		nc, err := natsinfra.Connect(cfg.Broadcast.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		return natsinfra.NewBroadcaster(nc), nc.Close, nil
	}
	return memory.NewBroker(), func() {}, nil
}
