package clients

import (
	"context"
	"fmt"
	"net/url"

	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
)

type unitCostResponse struct {
	IngredientID string       `json:"ingredientId"`
	UnitCost     domain.Money `json:"unitCost"`
}

// InventoryCostClient implements domain.CostProvider against the inventory
// service
type InventoryCostClient struct {
	client *jsonClient
}

// NewInventoryCostClient creates a new InventoryCostClient
func NewInventoryCostClient(cfg Config, logger *logging.Logger, m *metrics.Metrics) *InventoryCostClient {
	if cfg.Name == "" {
		cfg.Name = "inventory-service"
	}
	return &InventoryCostClient{client: newJSONClient(cfg, logger, m)}
}

// GetUnitCost fetches GET /api/v1/ingredients/{id}/cost. Any failure,
// including an unknown ingredient, is a DependencyError since the batch
// itself is valid and the lookup can be retried.
func (c *InventoryCostClient) GetUnitCost(ctx context.Context, ingredientID string) (domain.Money, error) {
	var resp unitCostResponse
	path := fmt.Sprintf("/api/v1/ingredients/%s/cost", url.PathEscape(ingredientID))
	if err := c.client.get(ctx, path, &resp); err != nil {
		return domain.Money{}, domain.NewDependencyError(fmt.Sprintf("unit cost lookup for ingredient %s failed", ingredientID), err)
	}
	cost, err := domain.NewMoney(resp.UnitCost.Amount(), resp.UnitCost.Currency())
	if err != nil {
		return domain.Money{}, domain.NewDependencyError(fmt.Sprintf("inventory returned an unusable unit cost for ingredient %s", ingredientID), err)
	}
	return cost, nil
}
