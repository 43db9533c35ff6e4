package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizbot/internal/app"
	"quizbot/internal/config"
	"quizbot/internal/domain"
	"quizbot/internal/infra/memory"
	pgstore "quizbot/internal/infra/postgres"
	redisrepo "quizbot/internal/infra/redis"
	transport "quizbot/internal/transport/http"
	"quizbot/internal/transport/telegram"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the bot and server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz bot and server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	// Quiz storage: postgres when configured, a seeded in-memory store
	// otherwise. The writable side backs the authoring commands.
	var (
		loader    memory.QuizLoader
		quizStore telegram.QuizStore
	)
	if pool != nil {
		store := pgstore.NewQuizStore(pool)
		loader, quizStore = store, store
	} else {
		store := memory.NewQuizStore(sampleQuizzes())
		loader, quizStore = store, store
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	var invalidate func(ctx context.Context, id string) error
	if redisClient != nil {
		cached := redisrepo.NewQuizRepository(redisClient, loader, quizTTL)
		quizRepo = cached
		invalidate = func(ctx context.Context, id string) error {
			cached.Invalidate(ctx, id)
			return nil
		}
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
	}

	var resultStore app.ResultStore
	if pool != nil {
		resultStore = pgstore.NewResultStore(pool)
	} else {
		resultStore = memory.NewResultStore()
	}

	advanceDelay := config.TTLDuration(cfg.Quiz.AdvanceDelay, time.Second)
	controller := app.NewController(quizRepo, resultStore, app.SystemTimers(), advanceDelay)

	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telegram.New(telegram.Options{
			Token:                  cfg.Telegram.Token,
			Admins:                 cfg.Telegram.Admins,
			Controller:             controller,
			Quizzes:                quizRepo,
			Store:                  quizStore,
			Results:                resultStore,
			DefaultTimeLimitSec:    cfg.Quiz.DefaultTimeLimitSec,
			DefaultNegativeMarking: cfg.Quiz.DefaultNegativeMarking,
			Invalidate:             invalidate,
		})
		if err != nil {
			return err
		}
		go func() {
			log.Printf("starting telegram bot")
			bot.Start()
		}()
	} else {
		log.Printf("telegram token not configured, bot disabled")
	}

	wsHandler := transport.NewWSHandler(controller)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quiz server on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down...")
	}

	if bot != nil {
		bot.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds the in-memory store so the bot is usable without
// postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:              "quiz-1",
			Title:           "Arithmetic",
			Description:     "A quick warm-up",
			TimeLimitSec:    30,
			NegativeMarking: 0.25,
			Questions: []domain.Question{
				{
					Text:          "What is 2 + 2?",
					Options:       []string{"3", "4", "5"},
					CorrectOption: 1,
				},
				{
					Text:          "What is 7 * 8?",
					Options:       []string{"54", "56", "64", "72"},
					CorrectOption: 1,
				},
			},
		},
	}
}
