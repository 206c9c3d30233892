package application

import (
	"context"

	"github.com/meal-program/production-service/internal/domain"
)

type reconciliationInputs struct {
	recipe    *domain.MenuRecipe
	unitCosts map[string]domain.Money
}

// fetchReconciliationInputs loads the recipe and a unit cost snapshot for
// every ingredient. It runs outside any transaction so remote calls never
// hold a database session open.
func (s *ProductionService) fetchReconciliationInputs(ctx context.Context, menuID string) (*reconciliationInputs, error) {
	recipe, err := s.recipes.GetMenuRecipe(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if err := recipe.Validate(); err != nil {
		return nil, err
	}

	costs := make(map[string]domain.Money, len(recipe.Lines))
	for _, id := range recipe.IngredientIDs() {
		cost, err := s.costs.GetUnitCost(ctx, id)
		if err != nil {
			if domain.IsDependency(err) {
				return nil, err
			}
			// an ingredient the inventory cannot price is a failed lookup
			return nil, domain.NewDependencyError("unit cost lookup failed for ingredient "+id, err)
		}
		costs[id] = cost
	}

	return &reconciliationInputs{recipe: recipe, unitCosts: costs}, nil
}
