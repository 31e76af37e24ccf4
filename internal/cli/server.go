package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tugwar-quiz-service/internal/app"
	"tugwar-quiz-service/internal/config"
	"tugwar-quiz-service/internal/domain"
	"tugwar-quiz-service/internal/infra/memory"
	"tugwar-quiz-service/internal/infra/postgres"
	redisinfra "tugwar-quiz-service/internal/infra/redis"
	"tugwar-quiz-service/internal/metrics"
	transport "tugwar-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, log)
		},
	}
}

// backends holds the collaborators chosen from config: Postgres for the
// ledger when configured, Redis for pub/sub and caching, memory otherwise.
type backends struct {
	store     app.Store
	feed      app.EventFeed
	questions app.QuestionRepository
	closers   []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func openBackends(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*backends, error) {
	b := &backends{}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

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
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleQuestionSets())
	if cfg.Postgres.URL != "" {
		db, err := openBunDB(cfg)
		if err != nil {
			b.close()
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = db.Close() })

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		b.closers = append(b.closers, pool.Close)

		loader = postgres.NewQuestionLoader(pool)
		b.store = postgres.NewStore(db)
		b.feed = postgres.NewFeed(db, log)
	}

	if redisClient != nil {
		if b.store == nil {
			b.store = redisinfra.NewStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
		}
		// Redis pub/sub is preferred over LISTEN/NOTIFY: no connection per subscriber.
		b.feed = redisinfra.NewFeed(redisClient, log)
		b.questions = redisinfra.NewQuestionRepository(redisClient, loader, quizTTL)
	} else {
		b.questions = memory.NewQuestionRepository(loader, quizTTL)
	}

	if b.store == nil {
		b.store = memory.NewStore()
	}
	if b.feed == nil {
		b.feed = memory.NewFeed()
	}
	return b, nil
}

func runServer(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	service := app.NewGameService(b.store, b.feed, b.questions, app.Options{
		QuestionSet:       cfg.Quiz.QuestionSet,
		PlayerIdleTimeout: config.TTLDuration(cfg.Quiz.PlayerIdleTimeout, app.DefaultPlayerIdleTimeout),
		Scoring:           cfg.Scoring,
		Logger:            log,
		Metrics:           metrics.New(reg),
	})
	defer service.Close()

	router := transport.NewRouter(service, transport.RouterOptions{
		PublicURL: cfg.Server.PublicURL,
		Gatherer:  reg,
		Logger:    log,
	})

	server := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       10 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", server.Addr).Info("starting tug of war quiz service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// sampleQuestionSets is served when no Postgres question source is configured.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"default": {
			ID: "default",
			Questions: []domain.Question{
				{No: 1, Prompt: "Lomba 17 Agustus yang memakai tali panjang?", Answer: "tarik tambang", TimeSec: 15, Category: "tradisi"},
				{No: 2, Prompt: "Tahun proklamasi kemerdekaan Indonesia?", Answer: "1945", TimeSec: 10, Category: "sejarah"},
				{No: 3, Prompt: "Ibu kota provinsi Jawa Barat?", Answer: "bandung", TimeSec: 15, Category: "geografi"},
				{No: 4, Prompt: "Lomba makan makanan yang digantung?", Answer: "makan kerupuk", TimeSec: 15, Category: "tradisi"},
				{No: 5, Prompt: "Warna bendera Indonesia?", Answer: "merah putih", TimeSec: 10, Category: "umum"},
			},
		},
	}
}
