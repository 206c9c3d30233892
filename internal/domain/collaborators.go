package domain

import "context"

// RecipeProvider looks up a menu's per-portion ingredient quantities. An
// unknown menu is a NotFoundError; any transport failure is a DependencyError.
type RecipeProvider interface {
	GetMenuRecipe(ctx context.Context, menuID string) (*MenuRecipe, error)
}

// CostProvider returns the current unit cost of an ingredient
type CostProvider interface {
	GetUnitCost(ctx context.Context, ingredientID string) (Money, error)
}
