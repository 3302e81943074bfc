package main

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/config"
	"storefront/internal/repositories"
)

func testConfig() config.Config {
	return config.Config{
		AppPort:        ":0",
		DBDriver:       "sqlite",
		DatabaseDSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		JWTSecret:      "test_jwt_secret",
		IdempotencyTTL: time.Hour,
	}
}

func TestBuildApp_HealthAndAuth(t *testing.T) {
	app, cleanup, err := buildApp(testConfig())
	require.NoError(t, err)
	defer cleanup()

	t.Run("HealthCheck", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, 200, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), `"status":"healthy"`)
		assert.Contains(t, string(body), `"events":false`)
	})

	t.Run("CatalogIsPublic", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/products", nil))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 200, resp.StatusCode)
	})

	for _, path := range []string{"/api/v1/cart", "/api/v1/orders", "/api/v1/wishlist"} {
		t.Run("Unauthenticated "+path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest("GET", path, nil))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, 401, resp.StatusCode)
		})
	}

	t.Run("ProductWritesNeedToken", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/v1/products", strings.NewReader(`{"title":"Lamp"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, 401, resp.StatusCode)
	})
}

func TestBuildApp_RejectsUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "oracle"

	_, _, err := buildApp(cfg)
	assert.Error(t, err)
}

func TestBuildApp_SeedsEmptyCatalogOnce(t *testing.T) {
	cfg := testConfig()
	cfg.SeedDemoData = true

	app, cleanup, err := buildApp(cfg)
	require.NoError(t, err)
	defer cleanup()
	require.NotNil(t, app)

	db, err := repositories.Open(cfg.DBDriver, cfg.DatabaseDSN)
	require.NoError(t, err)
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	repo := repositories.NewGORMProductRepository(db)

	products, err := repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 4)

	seedProducts(context.Background(), repo)
	products, err = repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 4)
}

func TestBuildApp_CreatesConfiguredAdmin(t *testing.T) {
	cfg := testConfig()
	cfg.AdminUsername = "root"
	cfg.AdminEmail = "root@example.com"
	cfg.AdminPassword = "secret123"

	app, cleanup, err := buildApp(cfg)
	require.NoError(t, err)
	defer cleanup()

	req := httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader(`{"username":"root","password":"secret123"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestLogOrderEvent(t *testing.T) {
	err := logOrderEvent(amqp.Delivery{
		RoutingKey: "order.created",
		Body:       []byte(`{"order_id":"o-1","user_id":"u-1","status":"pending"}`),
	})
	assert.NoError(t, err)

	err = logOrderEvent(amqp.Delivery{RoutingKey: "order.created", Body: []byte("not json")})
	assert.Error(t, err)
}
