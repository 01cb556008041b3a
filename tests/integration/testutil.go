//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/insanelabs/witchcraft/internal/accounts"
	"github.com/insanelabs/witchcraft/internal/alerts"
	"github.com/insanelabs/witchcraft/internal/api"
	"github.com/insanelabs/witchcraft/internal/auth"
	"github.com/insanelabs/witchcraft/internal/quota"
	"github.com/insanelabs/witchcraft/internal/rollover"
	"github.com/insanelabs/witchcraft/internal/sessions"
	"github.com/insanelabs/witchcraft/internal/usage"
)

const testAdminKey = "test-admin-key"

type TestEnv struct {
	Pool           *pgxpool.Pool
	RedisClient    *redis.Client
	Server         *httptest.Server
	TokenValidator *auth.TokenValidator
	AccountSvc     *accounts.Service
	QuotaSvc       *quota.Service
	QuotaRepo      *quota.Repository
	UsageSvc       *usage.Service
	RolloverSvc    *rollover.Service
	AlertRepo      *alerts.Repository
}

var testEnv *TestEnv

func SetupTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	if testEnv != nil {
		return testEnv
	}

	ctx := context.Background()

	// Start PostgreSQL container
	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "test",
				"POSTGRES_PASSWORD": "test",
				"POSTGRES_DB":       "witchcraft_test",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { pgContainer.Terminate(ctx) })

	pgHost, _ := pgContainer.Host(ctx)
	pgPort, _ := pgContainer.MappedPort(ctx, "5432")

	// Start Redis container
	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() { redisContainer.Terminate(ctx) })

	redisHost, _ := redisContainer.Host(ctx)
	redisPort, _ := redisContainer.MappedPort(ctx, "6379")

	// Connect to PostgreSQL
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/witchcraft_test?sslmode=disable", pgHost, pgPort.Port())
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connecting to postgres: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	// Run migrations
	m, err := migrate.New(fmt.Sprintf("file://%s", getMigrationsPath()), dsn)
	if err != nil {
		t.Fatalf("creating migrator: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("running migrations: %v", err)
	}

	// Connect to Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	t.Cleanup(func() { redisClient.Close() })

	logger := slog.Default()

	// Auth
	tokenValidator := auth.NewTokenValidator("test-signing-secret-32-chars-long!", "witchcraft-test", 15*time.Minute)
	apiKeys := auth.NewAPIKeyStore(pool)

	// Quota gate and alerts. No per-minute limiter so concurrency tests
	// exercise the ledger directly; NATS is nil, publishing is skipped.
	quotaRepo := quota.NewRepository(pool)
	alertRepo := alerts.NewRepository(pool)
	alertMonitor := alerts.NewMonitor(alertRepo, nil, logger)
	quotaSvc := quota.NewService(pool, quotaRepo, nil, alertMonitor)
	quotaHandler := quota.NewHandler(quotaSvc)
	alertHandler := alerts.NewHandler(alertRepo)

	// Accounts
	accountRepo := accounts.NewRepository(pool)
	accountSvc := accounts.NewService(accountRepo, quotaRepo, "free", logger)
	accountHandler := accounts.NewHandler(accountSvc, apiKeys)

	// Sessions and usage
	sessionRepo := sessions.NewRepository(pool)
	sessionHandler := sessions.NewHandler(sessionRepo)
	usageRepo := usage.NewRepository(pool)
	usageSvc := usage.NewService(pool, usageRepo, sessionRepo, nil, logger)
	usageHandler := usage.NewHandler(usageSvc)

	// Rollover
	rolloverSvc := rollover.NewService(pool, logger)
	rolloverHandler := rollover.NewHandler(rolloverSvc)

	router := api.NewRouter(pool, nil, api.RouterConfig{}, api.HandlerSet{
		ConsumeQuota: quotaHandler.Consume,
		GetQuota:     quotaHandler.GetQuota,

		RecordUsage:  usageHandler.Record,
		UsageSummary: usageHandler.Summary,
		UsageDaily:   usageHandler.Daily,

		ListAlerts:    alertHandler.List,
		UnreadAlerts:  alertHandler.UnreadCount,
		MarkAlertRead: alertHandler.MarkRead,
		DismissAlert:  alertHandler.Dismiss,

		CreateSession: sessionHandler.Create,
		ListSessions:  sessionHandler.List,
		GetSession:    sessionHandler.Get,
		EndSession:    sessionHandler.End,
		AppendMessage: sessionHandler.AppendMessage,
		ListMessages:  sessionHandler.ListMessages,

		GetAccount:  accountHandler.Me,
		IssueAPIKey: accountHandler.IssueKey,

		EnsureAccount: accountHandler.Ensure,
		RunRollover:   rolloverHandler.Run,

		AuthMiddleware:  auth.Middleware(tokenValidator, apiKeys),
		AdminMiddleware: auth.AdminMiddleware(testAdminKey),
	})

	server := httptest.NewServer(router)
	t.Cleanup(func() { server.Close() })

	testEnv = &TestEnv{
		Pool:           pool,
		RedisClient:    redisClient,
		Server:         server,
		TokenValidator: tokenValidator,
		AccountSvc:     accountSvc,
		QuotaSvc:       quotaSvc,
		QuotaRepo:      quotaRepo,
		UsageSvc:       usageSvc,
		RolloverSvc:    rolloverSvc,
		AlertRepo:      alertRepo,
	}

	return testEnv
}

func getMigrationsPath() string {
	paths := []string{
		"../../migrations",
		"../../../migrations",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	log.Fatal("migrations directory not found")
	return ""
}

// Helper functions

// EnsureAccount provisions an account with the given tier and returns a
// bearer token for it.
func EnsureAccount(t *testing.T, env *TestEnv, tier string) (uuid.UUID, string) {
	t.Helper()

	id := uuid.New()
	email := fmt.Sprintf("%s@example.test", id)
	_, err := env.AccountSvc.Ensure(context.Background(), &accounts.EnsureInput{
		ID:    id,
		Email: email,
		Tier:  tier,
	})
	if err != nil {
		t.Fatalf("ensuring account: %v", err)
	}

	token, err := env.TokenValidator.GenerateAccessToken(id.String(), email)
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}
	return id, token
}

// SetLedgerLimits overwrites the account's ledger limits for a scenario.
// Nil means unlimited.
func SetLedgerLimits(t *testing.T, env *TestEnv, accountID uuid.UUID, tokens, requests, daily *int64, cost *float64) {
	t.Helper()
	_, err := env.Pool.Exec(context.Background(),
		`UPDATE quota_ledgers SET
		   monthly_token_limit = $2, monthly_request_limit = $3,
		   daily_request_limit = $4, monthly_cost_limit = $5
		 WHERE account_id = $1`, accountID, tokens, requests, daily, cost)
	if err != nil {
		t.Fatalf("setting ledger limits: %v", err)
	}
}

func DoRequest(t *testing.T, env *TestEnv, method, path string, body any, token string) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

// DoAdminRequest sends a request authenticated with the admin key.
func DoAdminRequest(t *testing.T, env *TestEnv, method, path string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, env.Server.URL+path, bodyReader)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Key", testAdminKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("doing request: %v", err)
	}
	return resp
}

func ParseResponse(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var result map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("parsing response: %v", err)
	}
	return result
}

// ParseData unwraps the data envelope as a map.
func ParseData(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	result := ParseResponse(t, resp)
	data, ok := result["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", result)
	}
	return data
}

// decodeJSON unwraps the data envelope into v.
func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("parsing response envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		t.Fatalf("decoding response data: %v", err)
	}
}
