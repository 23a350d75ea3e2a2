package repository

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

// createTestStores yields one store per backend, named after its DatabaseType
func createTestStores(t *testing.T) iter.Seq2[string, Store] {
	return func(yield func(string, Store) bool) {
		for _, dbType := range []DatabaseType{DatabaseTypeBadger, DatabaseTypeBolt, DatabaseTypeMemory} {
			store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), dbType, testLogger())
			require.NoError(t, err, "open %s", dbType)

			ok := yield(string(dbType), store)
			store.Close()
			if !ok {
				return
			}
		}
	}
}

func TestStoreSeedsCategoryThresholds(t *testing.T) {
	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			thresholds, err := store.ListCategoryThresholds(ctx)
			require.NoError(t, err)
			assert.Len(t, thresholds, len(domain.Categories()))

			bedroom, err := store.GetCategoryThreshold(ctx, domain.CategoryBedroom)
			require.NoError(t, err)
			require.NotNil(t, bedroom)
			assert.Equal(t, 10, bedroom.DefaultThreshold)
			assert.NotEmpty(t, bedroom.ID)

			missing, err := store.GetCategoryThreshold(ctx, domain.Category("Garage"))
			require.NoError(t, err)
			assert.Nil(t, missing)
		})
	}
}

func TestStoreSeedKeepsExistingThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewBoltRepository(path, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.PutCategoryThreshold(ctx, &domain.CategoryThreshold{Category: domain.CategoryOffice, DefaultThreshold: 3}))
	require.NoError(t, store.Close())

	reopened, err := NewBoltRepository(path, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	office, err := reopened.GetCategoryThreshold(ctx, domain.CategoryOffice)
	require.NoError(t, err)
	assert.Equal(t, 3, office.DefaultThreshold)
}

func TestStoreSales(t *testing.T) {
	base := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)

	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sales := []*domain.SalesRecord{
				{ItemID: "item-1", UserID: "user-1", Quantity: 4, Date: base.AddDate(0, 0, 2)},
				{ItemID: "item-1", UserID: "user-1", Quantity: 2, Date: base},
				{ItemID: "item-10", UserID: "user-1", Quantity: 7, Date: base},
				{ItemID: "item-1", UserID: "user-2", Quantity: 9, Date: base},
			}
			for _, s := range sales {
				require.NoError(t, store.AddSale(ctx, s))
				assert.NotEmpty(t, s.ID)
			}

			byItem, err := store.ListSalesByItem(ctx, "item-1", "user-1")
			require.NoError(t, err)
			assert.ElementsMatch(t, []int{4, 2}, domain.Quantities(byItem))

			byUser, err := store.ListSalesByUser(ctx, "user-1")
			require.NoError(t, err)
			assert.Len(t, byUser, 3)

			none, err := store.ListSalesByItem(ctx, "item-1", "user-3")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStoreItems(t *testing.T) {
	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			item := &domain.InventoryItem{
				UserID:       "user-1",
				Name:         "Oak Desk",
				Category:     domain.CategoryOffice,
				Quantity:     12,
				ReorderPoint: 5,
				CreatedAt:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
				UpdatedAt:    time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
			}
			item.RefreshStatus()
			require.NoError(t, store.AddItem(ctx, item))
			require.NotEmpty(t, item.ID)

			got, err := store.GetItem(ctx, item.ID)
			require.NoError(t, err)
			if diff := cmp.Diff(item, got); diff != "" {
				t.Errorf("stored item mismatch (-want +got):\n%s", diff)
			}

			item.Quantity = 4
			item.RefreshStatus()
			require.NoError(t, store.UpdateItem(ctx, item))
			got, err = store.GetItem(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.StatusDanger, got.Status)

			require.NoError(t, store.AddItem(ctx, &domain.InventoryItem{UserID: "user-2", Name: "Bed", Category: domain.CategoryBedroom}))
			mine, err := store.ListItems(ctx, "user-1")
			require.NoError(t, err)
			assert.Len(t, mine, 1)
			all, err := store.ListItems(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestStoreItemNotFound(t *testing.T) {
	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := store.GetItem(ctx, "missing")
			var notFound *domain.InventoryItemNotFoundError
			require.True(t, errors.As(err, &notFound))
			assert.Equal(t, "missing", notFound.ID)

			err = store.UpdateItem(ctx, &domain.InventoryItem{ID: "missing"})
			assert.True(t, errors.As(err, &notFound))

			err = store.DeleteItem(ctx, "missing")
			assert.True(t, errors.As(err, &notFound))
		})
	}
}

func TestStoreDeleteItemKeepsSales(t *testing.T) {
	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			item := &domain.InventoryItem{UserID: "user-1", Name: "Lamp", Category: domain.CategoryOffice, Quantity: 2}
			require.NoError(t, store.AddItem(ctx, item))
			require.NoError(t, store.AddSale(ctx, &domain.SalesRecord{ItemID: item.ID, UserID: "user-1", Quantity: 2, Date: time.Now()}))

			require.NoError(t, store.DeleteItem(ctx, item.ID))

			_, err := store.GetItem(ctx, item.ID)
			var notFound *domain.InventoryItemNotFoundError
			assert.True(t, errors.As(err, &notFound))

			items, err := store.ListItems(ctx, "user-1")
			require.NoError(t, err)
			assert.Empty(t, items)

			sales, err := store.ListSalesByItem(ctx, item.ID, "user-1")
			require.NoError(t, err)
			assert.Len(t, sales, 1)
		})
	}
}

func TestStorePredictionLifecycle(t *testing.T) {
	created := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p := domain.NewPrediction("item-1", "user-1", domain.CategoryOffice, 5, created, created.AddDate(0, 0, 30))
			require.NoError(t, store.CreatePrediction(ctx, p))
			require.NotEmpty(t, p.ID)

			pending, err := store.GetPrediction(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.PredictionPending, pending.State())
			assert.Nil(t, pending.MAE)

			reconciled, err := store.ReconcilePrediction(ctx, p.ID, 8, created.AddDate(0, 0, 31))
			require.NoError(t, err)
			metrics, ok := reconciled.Metrics()
			require.True(t, ok)
			assert.Equal(t, domain.Metrics{MAE: 3, RMSE: 3, MAPE: 37.5, Accuracy: 62.5}, metrics)

			_, err = store.ReconcilePrediction(ctx, p.ID, 2, created.AddDate(0, 0, 32))
			assert.ErrorIs(t, err, domain.ErrAlreadyReconciled)

			stored, err := store.GetPrediction(ctx, p.ID)
			require.NoError(t, err)
			assert.Equal(t, 8, *stored.ActualQuantity)

			_, err = store.ReconcilePrediction(ctx, "missing", 1, created)
			var notFound *domain.PredictionNotFoundError
			assert.True(t, errors.As(err, &notFound))
		})
	}
}

func TestStoreListPredictions(t *testing.T) {
	base := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			late := domain.NewPrediction("item-1", "user-1", domain.CategoryOffice, 5, base.AddDate(0, 0, 2), base.AddDate(0, 0, 40))
			early := domain.NewPrediction("item-1", "user-1", domain.CategoryOffice, 6, base, base.AddDate(0, 0, 10))
			other := domain.NewPrediction("item-2", "user-2", domain.CategoryBedroom, 3, base.AddDate(0, 0, 1), base.AddDate(0, 0, 5))
			for _, p := range []*domain.Prediction{late, early, other} {
				require.NoError(t, store.CreatePrediction(ctx, p))
			}

			byItem, err := store.ListPredictions(ctx, PredictionFilter{ItemID: "item-1"})
			require.NoError(t, err)
			require.Len(t, byItem, 2)
			assert.Equal(t, early.ID, byItem[0].ID)
			assert.Equal(t, late.ID, byItem[1].ID)

			due, err := store.ListPredictions(ctx, PredictionFilter{DueBy: base.AddDate(0, 0, 10)})
			require.NoError(t, err)
			assert.Len(t, due, 2)

			_, err = store.ReconcilePrediction(ctx, other.ID, 3, base.AddDate(0, 0, 6))
			require.NoError(t, err)

			reconciled, err := store.ListPredictions(ctx, PredictionFilter{State: domain.PredictionReconciled})
			require.NoError(t, err)
			require.Len(t, reconciled, 1)
			assert.Equal(t, other.ID, reconciled[0].ID)

			due, err = store.ListPredictions(ctx, PredictionFilter{UserID: "user-1", DueBy: base.AddDate(0, 0, 10)})
			require.NoError(t, err)
			require.Len(t, due, 1)
			assert.Equal(t, early.ID, due[0].ID)
		})
	}
}

func TestStoreModelSnapshots(t *testing.T) {
	for name, store := range createTestStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := store.GetModelSnapshot(ctx, "user-1", domain.CategoryOffice)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.SaveModelSnapshot(ctx, "user-1", domain.CategoryOffice, []byte(`{"version":1}`)))
			data, found, err := store.GetModelSnapshot(ctx, "user-1", domain.CategoryOffice)
			require.NoError(t, err)
			assert.True(t, found)
			assert.JSONEq(t, `{"version":1}`, string(data))

			_, found, err = store.GetModelSnapshot(ctx, "user-1", domain.CategoryBedroom)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, store.DeleteModelSnapshot(ctx, "user-1", domain.CategoryOffice))
			_, found, err = store.GetModelSnapshot(ctx, "user-1", domain.CategoryOffice)
			require.NoError(t, err)
			assert.False(t, found)
		})
	}
}

func TestNewStoreRejectsUnknownType(t *testing.T) {
	_, err := NewStore(t.TempDir(), DatabaseType("sqlite"), testLogger())
	assert.Error(t, err)
	assert.Len(t, GetDatabaseInfo(), 3)
}
