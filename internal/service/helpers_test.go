package service

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/events"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
)

const (
	testServiceName = "demand-core-test"
	testUserID      = "user-1"
)

type testEnv struct {
	svc      *ForecastService
	store    repository.Store
	bus      *events.EventBus
	registry *prediction.Registry
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	store, err := repository.NewInMemoryRepository(logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	config := prediction.DefaultModelConfig()
	config.Epochs = 20
	registry := prediction.NewRegistry(config, store, logger)
	predictor := prediction.NewPredictionService(registry, store, time.Minute, logger)
	bus := events.NewEventBus(testServiceName, logger)
	t.Cleanup(bus.Wait)

	return &testEnv{
		svc:      NewForecastService(store, predictor, bus, DefaultHorizon, logger),
		store:    store,
		bus:      bus,
		registry: registry,
	}
}

func (e *testEnv) addItem(t *testing.T, name string, category domain.Category, quantity, reorderPoint int) *domain.InventoryItem {
	t.Helper()
	item, err := e.svc.CreateItem(t.Context(), &domain.InventoryItem{
		UserID:       testUserID,
		Name:         name,
		Category:     category,
		Quantity:     quantity,
		ReorderPoint: reorderPoint,
	})
	require.NoError(t, err)
	return item
}

// addMonthlySales records one sale per month ending last month
func (e *testEnv) addMonthlySales(t *testing.T, itemID string, quantities ...int) {
	t.Helper()
	start := time.Now().UTC().AddDate(0, -len(quantities), 0)
	for i, q := range quantities {
		_, err := e.svc.RecordSale(t.Context(), &domain.SalesRecord{
			ItemID:   itemID,
			UserID:   testUserID,
			Quantity: q,
			Date:     start.AddDate(0, i, 0),
		})
		require.NoError(t, err)
	}
}
