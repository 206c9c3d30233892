package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/resilience"
)

func testLogger() *logging.Logger {
	cfg := logging.DefaultConfig("production-service-test")
	cfg.Output = io.Discard
	return logging.New(cfg)
}

func fastConfig(name, baseURL string) Config {
	cfg := DefaultConfig(name, baseURL)
	cfg.Retry = &resilience.RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
	}
	return cfg
}

const recipeBody = `{
	"menuId": "menu-1",
	"costPerServing": {"amount": 250, "currency": "USD"},
	"lines": [
		{"ingredientId": "rice", "ingredientName": "Rice", "quantityPerPortion": 0.125, "unit": "kg"},
		{"ingredientId": "chicken", "ingredientName": "Chicken", "quantityPerPortion": 0.15, "unit": "kg"}
	]
}`

func TestRecipeClient_GetMenuRecipe(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		wantCalls int32
		check     func(t *testing.T, recipe *domain.MenuRecipe, err error)
	}{
		{
			name: "Successfully get recipe",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/menus/menu-1/recipe", r.URL.Path)
				assert.Equal(t, "application/json", r.Header.Get("Accept"))
				assert.Equal(t, "cook-1", r.Header.Get("X-User-ID"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(recipeBody))
			},
			wantCalls: 1,
			check: func(t *testing.T, recipe *domain.MenuRecipe, err error) {
				require.NoError(t, err)
				require.Len(t, recipe.Lines, 2)
				assert.Equal(t, "rice", recipe.Lines[0].IngredientID)
				assert.InDelta(t, 0.15, recipe.Lines[1].QuantityPerPortion, 1e-9)
				assert.True(t, recipe.CostPerServing.Equals(domain.MustMoney(250, "USD")))
			},
		},
		{
			name: "Unknown menu is not found and not retried",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantCalls: 1,
			check: func(t *testing.T, _ *domain.MenuRecipe, err error) {
				assert.True(t, domain.IsNotFound(err))
			},
		},
		{
			name: "Server errors are retried then reported as dependency failures",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantCalls: 3,
			check: func(t *testing.T, _ *domain.MenuRecipe, err error) {
				assert.True(t, domain.IsDependency(err))
			},
		},
		{
			name: "Malformed body is a dependency failure",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"lines": [`))
			},
			wantCalls: 3,
			check: func(t *testing.T, _ *domain.MenuRecipe, err error) {
				assert.True(t, domain.IsDependency(err))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				tt.handler(w, r)
			}))
			defer server.Close()

			client := NewRecipeClient(fastConfig("menu-service", server.URL), testLogger(), nil)
			ctx := logging.ContextWithUserID(context.Background(), "cook-1")
			recipe, err := client.GetMenuRecipe(ctx, "menu-1")

			tt.check(t, recipe, err)
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestRecipeClient_RecoversAfterTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(recipeBody))
	}))
	defer server.Close()

	client := NewRecipeClient(fastConfig("menu-service", server.URL), testLogger(), nil)
	recipe, err := client.GetMenuRecipe(context.Background(), "menu-1")

	require.NoError(t, err)
	assert.Len(t, recipe.Lines, 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestRecipeClient_OpenCircuitFailsFast(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := fastConfig("menu-service", server.URL)
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker.FailureThreshold = 1
	client := NewRecipeClient(cfg, testLogger(), nil)

	_, err := client.GetMenuRecipe(context.Background(), "menu-1")
	require.True(t, domain.IsDependency(err))

	_, err = client.GetMenuRecipe(context.Background(), "menu-1")
	require.True(t, domain.IsDependency(err))
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRecipeClient_NotFoundDoesNotTripBreaker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cfg := fastConfig("menu-service", server.URL)
	cfg.Breaker.FailureThreshold = 1
	client := NewRecipeClient(cfg, testLogger(), nil)

	for i := 0; i < 3; i++ {
		_, err := client.GetMenuRecipe(context.Background(), "unknown-menu")
		assert.True(t, domain.IsNotFound(err))
	}
}

func TestInventoryCostClient_GetUnitCost(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    domain.Money
		wantErr bool
	}{
		{
			name:   "Successfully get unit cost",
			status: http.StatusOK,
			body:   `{"ingredientId": "rice", "unitCost": {"amount": 180, "currency": "USD"}}`,
			want:   domain.MustMoney(180, "USD"),
		},
		{
			name:    "Unknown ingredient is a dependency failure",
			status:  http.StatusNotFound,
			wantErr: true,
		},
		{
			name:    "Negative cost is rejected",
			status:  http.StatusOK,
			body:    `{"ingredientId": "rice", "unitCost": {"amount": -5, "currency": "USD"}}`,
			wantErr: true,
		},
		{
			name:    "Missing currency is rejected",
			status:  http.StatusOK,
			body:    `{"ingredientId": "rice", "unitCost": {"amount": 180}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/ingredients/rice/cost", r.URL.Path)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewInventoryCostClient(fastConfig("inventory-service", server.URL), testLogger(), nil)
			cost, err := client.GetUnitCost(context.Background(), "rice")

			if tt.wantErr {
				assert.True(t, domain.IsDependency(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equals(cost))
		})
	}
}

func TestStaticCatalog(t *testing.T) {
	catalog, err := ParseStaticCatalog([]byte(`
currency: USD
menus:
  menu-1:
    costPerServing: 250
    lines:
      - ingredientId: rice
        name: Rice
        quantityPerPortion: 0.125
        unit: kg
ingredients:
  rice: 180
`))
	require.NoError(t, err)
	ctx := context.Background()

	recipe, err := catalog.GetMenuRecipe(ctx, "menu-1")
	require.NoError(t, err)
	require.Len(t, recipe.Lines, 1)
	assert.Equal(t, "Rice", recipe.Lines[0].IngredientName)
	assert.True(t, recipe.CostPerServing.Equals(domain.MustMoney(250, "USD")))

	recipe.Lines[0].QuantityPerPortion = 99
	again, err := catalog.GetMenuRecipe(ctx, "menu-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.125, again.Lines[0].QuantityPerPortion, 1e-9)

	cost, err := catalog.GetUnitCost(ctx, "rice")
	require.NoError(t, err)
	assert.True(t, cost.Equals(domain.MustMoney(180, "USD")))

	_, err = catalog.GetMenuRecipe(ctx, "menu-2")
	assert.True(t, domain.IsNotFound(err))

	_, err = catalog.GetUnitCost(ctx, "saffron")
	assert.True(t, domain.IsDependency(err))

	_, err = ParseStaticCatalog([]byte("ingredients:\n  rice: -1\n"))
	assert.Error(t, err)
}
