package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMetrics(t *testing.T) {
	m, err := ComputeMetrics([]float64{3, 5, 2}, []float64{2, 5, 4})
	require.NoError(t, err)

	assert.InDelta(t, 1.0, m.MAE, 1e-9)
	assert.InDelta(t, math.Sqrt(5.0/3.0), m.RMSE, 1e-9)
	// |2-3|/2 + 0 + |4-2|/4 = 0.5 + 0.5
	assert.InDelta(t, 100.0/3.0, m.MAPE, 1e-9)
	assert.Equal(t, 100-m.MAPE, m.Accuracy)
}

func TestComputeMetricsZeroActualKeepsDenominator(t *testing.T) {
	m, err := ComputeMetrics([]float64{4, 2}, []float64{0, 4})
	require.NoError(t, err)

	// only the second term contributes (0.5) but the divisor stays 2
	assert.InDelta(t, 25.0, m.MAPE, 1e-9)
	assert.InDelta(t, 75.0, m.Accuracy, 1e-9)
}

func TestComputeMetricsNegativeAccuracy(t *testing.T) {
	m, err := ComputeMetrics([]float64{30}, []float64{10})
	require.NoError(t, err)

	assert.InDelta(t, 200.0, m.MAPE, 1e-9)
	assert.InDelta(t, -100.0, m.Accuracy, 1e-9)
	assert.Equal(t, 100-m.MAPE, m.Accuracy)
}

func TestComputeMetricsErrors(t *testing.T) {
	_, err := ComputeMetrics([]float64{1, 2}, []float64{1})
	assert.True(t, errors.Is(err, ErrLengthMismatch))

	_, err = ComputeMetrics(nil, nil)
	assert.True(t, errors.Is(err, ErrNoObservations))
}

func TestPredictionReconcile(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPrediction("item-1", "user-1", CategoryOffice, 5, now, now.AddDate(0, 0, 30))

	assert.Equal(t, PredictionPending, p.State())
	_, ok := p.Metrics()
	assert.False(t, ok)
	assert.Nil(t, p.MAE)
	assert.Nil(t, p.Accuracy)

	require.NoError(t, p.Reconcile(8, now.AddDate(0, 1, 0)))
	assert.Equal(t, PredictionReconciled, p.State())

	m, ok := p.Metrics()
	require.True(t, ok)
	assert.InDelta(t, 3.0, m.MAE, 1e-9)
	assert.InDelta(t, 3.0, m.RMSE, 1e-9)
	assert.InDelta(t, 37.5, m.MAPE, 1e-9)
	assert.InDelta(t, 62.5, m.Accuracy, 1e-9)
	require.NotNil(t, p.ActualQuantity)
	assert.Equal(t, 8, *p.ActualQuantity)
}

func TestPredictionReconcileOnlyOnce(t *testing.T) {
	now := time.Now()
	p := NewPrediction("item-1", "user-1", CategoryBedroom, 4, now, now)
	require.NoError(t, p.Reconcile(4, now))

	err := p.Reconcile(10, now)
	assert.True(t, errors.Is(err, ErrAlreadyReconciled))
	assert.Equal(t, 4, *p.ActualQuantity)
	assert.InDelta(t, 0.0, *p.MAE, 1e-9)
}

func TestPredictionReconcileRejectsNegativeActual(t *testing.T) {
	now := time.Now()
	p := NewPrediction("item-1", "user-1", CategoryBedroom, 4, now, now)

	err := p.Reconcile(-1, now)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, PredictionPending, p.State())
	assert.Nil(t, p.MAPE)
}

func TestNewPredictionFloorsAtOne(t *testing.T) {
	p := NewPrediction("item-1", "user-1", CategoryOffice, 0, time.Now(), time.Now())
	assert.Equal(t, 1, p.PredictedQuantity)
}

func TestPredictionIsDue(t *testing.T) {
	now := time.Now()
	p := NewPrediction("item-1", "user-1", CategoryOffice, 3, now.Add(-48*time.Hour), now.Add(-time.Hour))
	assert.True(t, p.IsDue(now))

	future := NewPrediction("item-1", "user-1", CategoryOffice, 3, now, now.Add(time.Hour))
	assert.False(t, future.IsDue(now))
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Dining Room ")
	require.NoError(t, err)
	assert.Equal(t, CategoryDiningRoom, c)

	_, err = ParseCategory("Electronics")
	var unknown *UnknownCategoryError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "Electronics", unknown.Category)

	n, err := CategoryOffice.Normalized()
	require.NoError(t, err)
	assert.Equal(t, 1.0, n)

	n, err = CategoryLivingRoom.Normalized()
	require.NoError(t, err)
	assert.Equal(t, 0.0, n)
}

func TestQuantityBounds(t *testing.T) {
	var invalid *ValidationError

	sale := &SalesRecord{ItemID: "item-1", UserID: "user-1", Quantity: MaxQuantity}
	require.NoError(t, sale.Validate())

	sale.Quantity = MaxQuantity + 1
	require.ErrorAs(t, sale.Validate(), &invalid)
	assert.Equal(t, "quantity", invalid.Field)

	item := &InventoryItem{UserID: "user-1", Name: "Lamp", Category: CategoryOffice, Quantity: 1, ReorderPoint: MaxQuantity + 1}
	require.ErrorAs(t, item.Validate(), &invalid)
	assert.Equal(t, "reorder_point", invalid.Field)

	p := NewPrediction("item-1", "user-1", CategoryOffice, 3, time.Now(), time.Now())
	require.ErrorAs(t, p.Reconcile(MaxQuantity+1, time.Now()), &invalid)
	assert.Equal(t, PredictionPending, p.State())
}

func TestSortByDateIsStable(t *testing.T) {
	base := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	records := []SalesRecord{
		{ID: "c", Quantity: 3, Date: base.AddDate(0, 2, 0)},
		{ID: "a", Quantity: 1, Date: base},
		{ID: "b", Quantity: 2, Date: base},
	}

	sorted := SortByDate(records)
	assert.Equal(t, []int{1, 2, 3}, Quantities(sorted))
	assert.Equal(t, "c", records[0].ID, "input must not be reordered")
}
