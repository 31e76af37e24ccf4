package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"tugwar-quiz-service/internal/app"
	"tugwar-quiz-service/internal/domain"
	"tugwar-quiz-service/internal/infra/postgres"
	pgmigrations "tugwar-quiz-service/internal/infra/postgres/migrations"
	infraredis "tugwar-quiz-service/internal/infra/redis"
	"tugwar-quiz-service/internal/logger"
)

func TestSubmitAnswerEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openDB(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db, sampleQuestions())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	questions := infraredis.NewQuestionRepository(redisClient, postgres.NewQuestionLoader(pool), 5*time.Minute)
	service := app.NewGameService(postgres.NewStore(db), postgres.NewFeed(db, logger.Discard()), questions, app.Options{
		Logger: logger.Discard(),
	})
	defer service.Close()

	session, err := service.StartSession(ctx)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	events, cancel, err := service.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.StartQuestion(ctx, 1); err != nil {
		t.Fatalf("start question: %v", err)
	}
	if ev := nextEvent(t, events); ev.Type != domain.EventStartQuestion || ev.StartQuestion.Question.Answer != "" {
		t.Fatalf("expected start_question without answer, got %+v", ev)
	}

	// Same player from several connections: only one record may be scored.
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted, duplicates := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
				SessionID:     session.ID,
				Player:        "Budi",
				Team:          domain.TeamBoy,
				QuestionNo:    1,
				Answer:        "tarik tambang",
				TimeRemaining: -1,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case errors.Is(err, domain.ErrAlreadyAnswered):
				duplicates++
			default:
				t.Errorf("submit: %v", err)
			}
		}()
	}
	wg.Wait()
	if accepted != 1 || duplicates != 7 {
		t.Fatalf("expected 1 accepted and 7 duplicates, got %d/%d", accepted, duplicates)
	}

	if _, err := service.SubmitAnswer(ctx, domain.AnswerSubmission{
		SessionID: session.ID, Player: "Sari", Team: domain.TeamGirl, QuestionNo: 1, Answer: "", TimeRemaining: -1,
	}); err != nil {
		t.Fatalf("submit empty: %v", err)
	}

	scores, err := service.Scores(ctx)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if scores.Boy < 40 || scores.Girl != -30 {
		t.Fatalf("unexpected scores %+v", scores)
	}

	if _, err := service.RevealQuestion(ctx, 1); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	sawEnd := false
	for i := 0; i < 5 && !sawEnd; i++ {
		ev := nextEvent(t, events)
		sawEnd = ev.Type == domain.EventEndQuestion && ev.EndQuestion.CorrectAnswer == "tarik tambang"
	}
	if !sawEnd {
		t.Fatalf("expected end_question with the canonical answer")
	}

	history, err := postgres.NewFeed(db, logger.Discard()).History(ctx, session.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected start and end broadcasts, got %d", len(history))
	}
}

func nextEvent(t *testing.T, events <-chan domain.Event) domain.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(10 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
	return domain.Event{}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func openDB(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB, set domain.QuestionSet) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := postgres.NewQuestionWriter(db).ReplaceQuestionSet(ctx, set); err != nil {
		t.Fatalf("seed questions: %v", err)
	}
}

func sampleQuestions() domain.QuestionSet {
	return domain.QuestionSet{
		ID: "default",
		Questions: []domain.Question{
			{No: 1, Prompt: "Lomba 17 Agustus yang memakai tali panjang?", Answer: "tarik tambang", TimeSec: 15},
			{No: 2, Prompt: "Tahun proklamasi?", Answer: "1945", TimeSec: 10},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
