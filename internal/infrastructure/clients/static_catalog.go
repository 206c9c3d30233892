package clients

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/meal-program/production-service/internal/domain"
)

// StaticCatalog serves recipes and unit costs from memory. It backs local
// runs without the menu and inventory services.
type StaticCatalog struct {
	mu       sync.RWMutex
	recipes  map[string]*domain.MenuRecipe
	costs    map[string]domain.Money
	currency string
}

// NewStaticCatalog creates an empty catalog priced in currency
func NewStaticCatalog(currency string) *StaticCatalog {
	return &StaticCatalog{
		recipes:  make(map[string]*domain.MenuRecipe),
		costs:    make(map[string]domain.Money),
		currency: currency,
	}
}

type catalogFile struct {
	Currency string `yaml:"currency"`
	Menus    map[string]struct {
		CostPerServing int64 `yaml:"costPerServing"`
		Lines          []struct {
			IngredientID       string  `yaml:"ingredientId"`
			Name               string  `yaml:"name"`
			QuantityPerPortion float64 `yaml:"quantityPerPortion"`
			Unit               string  `yaml:"unit"`
		} `yaml:"lines"`
	} `yaml:"menus"`
	Ingredients map[string]int64 `yaml:"ingredients"`
}

// LoadStaticCatalog reads a YAML catalog. Amounts are in minor units.
func LoadStaticCatalog(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return ParseStaticCatalog(data)
}

// ParseStaticCatalog parses a YAML catalog document
func ParseStaticCatalog(data []byte) (*StaticCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if file.Currency == "" {
		file.Currency = "USD"
	}

	catalog := NewStaticCatalog(file.Currency)
	for menuID, menu := range file.Menus {
		cost, err := domain.NewMoney(menu.CostPerServing, file.Currency)
		if err != nil {
			return nil, fmt.Errorf("menu %s: %w", menuID, err)
		}
		recipe := &domain.MenuRecipe{MenuID: menuID, CostPerServing: cost}
		for _, l := range menu.Lines {
			recipe.Lines = append(recipe.Lines, domain.RecipeLine{
				IngredientID:       l.IngredientID,
				IngredientName:     l.Name,
				QuantityPerPortion: l.QuantityPerPortion,
				Unit:               l.Unit,
			})
		}
		catalog.PutRecipe(recipe)
	}
	for ingredientID, amount := range file.Ingredients {
		if err := catalog.PutUnitCost(ingredientID, amount); err != nil {
			return nil, fmt.Errorf("ingredient %s: %w", ingredientID, err)
		}
	}
	return catalog, nil
}

// PutRecipe registers or replaces a menu recipe
func (c *StaticCatalog) PutRecipe(recipe *domain.MenuRecipe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recipes[recipe.MenuID] = recipe
}

// PutUnitCost sets an ingredient's unit cost in minor units
func (c *StaticCatalog) PutUnitCost(ingredientID string, amount int64) error {
	cost, err := domain.NewMoney(amount, c.currency)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.costs[ingredientID] = cost
	return nil
}

// GetMenuRecipe implements domain.RecipeProvider
func (c *StaticCatalog) GetMenuRecipe(_ context.Context, menuID string) (*domain.MenuRecipe, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	recipe, ok := c.recipes[menuID]
	if !ok {
		return nil, domain.NewNotFoundError("menu", menuID)
	}
	copied := *recipe
	copied.Lines = append([]domain.RecipeLine(nil), recipe.Lines...)
	return &copied, nil
}

// GetUnitCost implements domain.CostProvider
func (c *StaticCatalog) GetUnitCost(_ context.Context, ingredientID string) (domain.Money, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cost, ok := c.costs[ingredientID]
	if !ok {
		return domain.Money{}, domain.NewDependencyError(fmt.Sprintf("no unit cost for ingredient %s", ingredientID), nil)
	}
	return cost, nil
}
