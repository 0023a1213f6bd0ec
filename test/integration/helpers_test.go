package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hamdani2020/edagent-auth/internal/domain"
	"github.com/hamdani2020/edagent-auth/internal/http/handler"
	"github.com/hamdani2020/edagent-auth/internal/http/router"
	"github.com/hamdani2020/edagent-auth/internal/repository"
	"github.com/hamdani2020/edagent-auth/internal/security"
	"github.com/hamdani2020/edagent-auth/internal/service"
)

const testUserID = "user-integration"

// newAuthStack wires the real codec, repositories, service, and router
// against an in-memory sqlite database and seeds one user.
func newAuthStack(t *testing.T) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repository.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	users := repository.NewUserRepository(db)
	if err := users.Create(context.Background(), &domain.User{ID: testUserID, Email: "integration@example.com", Name: "Integration"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	codec := security.NewTokenCodec("edagent-auth", strings.Repeat("s", 32))
	authService := service.NewAuthService(
		codec,
		repository.NewSessionRepository(db),
		repository.NewAPIKeyRepository(db),
		users,
		service.NewInMemoryInvalidCredentialCache(),
		logger,
		service.AuthServiceOptions{
			SessionTTL:       time.Hour,
			Retention:        30 * 24 * time.Hour,
			StoreTimeout:     2 * time.Second,
			NegativeCacheTTL: time.Minute,
		},
	)

	return router.NewRouter(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(authService, logger),
		AuthService:      authService,
		CORSOrigins:      []string{"http://localhost"},
		APIRateLimitRPM:  10000,
		AuthRateLimitRPM: 10000,
	})
}

func do(h http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.9:5555"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func dataOf(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	data, _ := env["data"].(map[string]any)
	return data
}
