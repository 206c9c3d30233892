// Package bootstrap assembles the production service from configuration.
// The API and the worker share it so both run against the same adapters.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/meal-program/production-service/internal/application"
	"github.com/meal-program/production-service/internal/config"
	"github.com/meal-program/production-service/internal/domain"
	"github.com/meal-program/production-service/internal/infrastructure/clients"
	"github.com/meal-program/production-service/internal/infrastructure/eventing"
	"github.com/meal-program/production-service/internal/infrastructure/memory"
	mongoRepo "github.com/meal-program/production-service/internal/infrastructure/mongodb"
	"github.com/meal-program/production-service/pkg/cloudevents"
	"github.com/meal-program/production-service/pkg/kafka"
	"github.com/meal-program/production-service/pkg/logging"
	"github.com/meal-program/production-service/pkg/metrics"
	"github.com/meal-program/production-service/pkg/mongodb"
	"github.com/meal-program/production-service/pkg/outbox"
)

// EventSource is the CloudEvents source of every production event
const EventSource = "/production-service"

// Runtime is a wired service plus the resources backing it
type Runtime struct {
	Service *application.ProductionService
	Outbox  outbox.Repository
	Ready   func(ctx context.Context) error

	closers []func(ctx context.Context) error
}

// Close releases the storage connection
func (r *Runtime) Close(ctx context.Context) error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type storage struct {
	deps   application.Dependencies
	outbox outbox.Repository
	ready  func(ctx context.Context) error
	close  func(ctx context.Context) error
}

// Build connects storage and collaborators and creates the service
func Build(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*Runtime, error) {
	store, err := openStorage(ctx, cfg, logger, m)
	if err != nil {
		return nil, err
	}

	recipes, costs, err := collaborators(cfg, logger, m)
	if err != nil {
		_ = store.close(ctx)
		return nil, err
	}

	deps := store.deps
	deps.Recipes = recipes
	deps.Costs = costs
	deps.Outbox = eventing.NewOutboxRecorder(store.outbox, cloudevents.NewEventFactory(EventSource), kafka.Topics.ProductionEvents)

	return &Runtime{
		Service: application.NewProductionService(deps, cfg.Policy, logger, m),
		Outbox:  store.outbox,
		Ready:   store.ready,
		closers: []func(context.Context) error{store.close},
	}, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (*storage, error) {
	if cfg.StorageDriver == config.StorageMemory {
		logger.Warn("Using in-memory storage; data is lost on restart")
		mem := memory.NewStore()
		return &storage{
			deps: application.Dependencies{
				Batches:         mem.Batches(),
				Checks:          mem.QualityChecks(),
				Reconciliations: mem.Reconciliations(),
				Sequence:        mem.Sequence(),
				Tx:              mem,
			},
			outbox: mem.Outbox(),
			ready:  func(context.Context) error { return nil },
			close:  func(context.Context) error { return nil },
		}, nil
	}

	client, err := mongodb.NewClient(ctx, cfg.MongoDB)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	instrumented := mongodb.NewInstrumentedClient(client)
	store := mongoRepo.NewStore(instrumented.Database(), instrumented, m, logger)
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = instrumented.Close(ctx)
		return nil, err
	}
	logger.Info("Connected to MongoDB", "database", cfg.MongoDB.Database)

	return &storage{
		deps: application.Dependencies{
			Batches:         store.Batches,
			Checks:          store.QualityChecks,
			Reconciliations: store.Reconciliations,
			Sequence:        store.Sequence,
			Tx:              store.Tx,
		},
		outbox: store.Outbox,
		ready:  instrumented.HealthCheck,
		close:  instrumented.Close,
	}, nil
}

func collaborators(cfg *config.Config, logger *logging.Logger, m *metrics.Metrics) (domain.RecipeProvider, domain.CostProvider, error) {
	c := cfg.Collaborators

	var catalog *clients.StaticCatalog
	if c.MenuServiceURL == "" || c.InventoryServiceURL == "" {
		if c.CatalogFile != "" {
			loaded, err := clients.LoadStaticCatalog(c.CatalogFile)
			if err != nil {
				return nil, nil, err
			}
			catalog = loaded
		} else {
			catalog = clients.NewStaticCatalog(cfg.Policy.Currency)
		}
		logger.Warn("Serving recipes or costs from the static catalog",
			"menuServiceUrl", c.MenuServiceURL,
			"inventoryServiceUrl", c.InventoryServiceURL,
			"catalogFile", c.CatalogFile,
		)
	}

	var recipes domain.RecipeProvider = catalog
	if c.MenuServiceURL != "" {
		clientCfg := clients.DefaultConfig("menu-service", c.MenuServiceURL)
		clientCfg.Timeout = c.Timeout
		recipes = clients.NewRecipeClient(clientCfg, logger, m)
	}

	var costs domain.CostProvider = catalog
	if c.InventoryServiceURL != "" {
		clientCfg := clients.DefaultConfig("inventory-service", c.InventoryServiceURL)
		clientCfg.Timeout = c.Timeout
		costs = clients.NewInventoryCostClient(clientCfg, logger, m)
	}
	return recipes, costs, nil
}
