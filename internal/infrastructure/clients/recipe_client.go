package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

// RecipeClient implements domain.RecipeProvider against the menu service
type RecipeClient struct {
	client *jsonClient
}

// NewRecipeClient creates a new RecipeClient
func NewRecipeClient(cfg Config, logger *logging.Logger, m *metrics.Metrics) *RecipeClient {
	if cfg.Name == "" {
		cfg.Name = "menu-service"
	}
	return &RecipeClient{client: newJSONClient(cfg, logger, m)}
}

// GetMenuRecipe fetches GET /api/v1/menus/{id}/recipe. A 404 is a
// NotFoundError, every other failure is a DependencyError.
func (c *RecipeClient) GetMenuRecipe(ctx context.Context, menuID string) (*domain.MenuRecipe, error) {
	var recipe domain.MenuRecipe
	path := fmt.Sprintf("/api/v1/menus/%s/recipe", url.PathEscape(menuID))
	if err := c.client.get(ctx, path, &recipe); err != nil {
		if isStatus(err, http.StatusNotFound) {
			return nil, domain.NewNotFoundError("menu", menuID)
		}
		return nil, domain.NewDependencyError(fmt.Sprintf("recipe lookup for menu %s failed", menuID), err)
	}
	if recipe.MenuID == "" {
		recipe.MenuID = menuID
	}
	return &recipe, nil
}
