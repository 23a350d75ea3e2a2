package prediction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

func monthlyRecords(quantities ...int) []domain.SalesRecord {
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	records := make([]domain.SalesRecord, len(quantities))
	for i, q := range quantities {
		records[i] = domain.SalesRecord{
			ID:       "sale-" + string(rune('a'+i)),
			ItemID:   "item-1",
			UserID:   "user-1",
			Quantity: q,
			Date:     start.AddDate(0, i, 0),
		}
	}
	return records
}

func TestExtractFeaturesLength(t *testing.T) {
	for _, n := range []int{0, 1, 5} {
		features, err := ExtractFeatures(monthlyRecords(make([]int, n)...), domain.CategoryOffice)
		require.NoError(t, err)
		assert.Len(t, features, n)
	}
}

func TestExtractFeaturesLagsByPosition(t *testing.T) {
	features, err := ExtractFeatures(monthlyRecords(2, 3, 7, 4), domain.CategoryBedroom)
	require.NoError(t, err)

	assert.Equal(t, [lagCount]float64{0, 0, 0}, features[0].PreviousQuantity)
	assert.Equal(t, [lagCount]float64{2, 0, 0}, features[1].PreviousQuantity)
	assert.Equal(t, [lagCount]float64{3, 2, 0}, features[2].PreviousQuantity)
	assert.Equal(t, [lagCount]float64{7, 3, 2}, features[3].PreviousQuantity)
}

func TestExtractFeaturesCalendar(t *testing.T) {
	records := []domain.SalesRecord{
		{Quantity: 1, Date: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC)},   // Monday, holiday
		{Quantity: 1, Date: time.Date(2024, time.December, 28, 12, 0, 0, 0, time.UTC)}, // Saturday
		{Quantity: 1, Date: time.Date(2024, time.July, 4, 12, 0, 0, 0, time.UTC)},      // Thursday, holiday
	}

	features, err := ExtractFeatures(records, domain.CategoryLivingRoom)
	require.NoError(t, err)

	assert.Equal(t, 0.0, features[0].NormalizedMonth)
	assert.InDelta(t, 1.0/6, features[0].NormalizedDayOfWeek, 1e-9)
	assert.Equal(t, 1.0, features[0].IsHoliday)

	assert.Equal(t, 1.0, features[1].NormalizedMonth)
	assert.Equal(t, 1.0, features[1].NormalizedDayOfWeek)
	assert.Equal(t, 0.0, features[1].IsHoliday)

	assert.Equal(t, 1.0, features[2].IsHoliday)
}

func TestExtractFeaturesCategoryIndex(t *testing.T) {
	expected := map[domain.Category]float64{
		domain.CategoryLivingRoom: 0,
		domain.CategoryBedroom:    1.0 / 3,
		domain.CategoryDiningRoom: 2.0 / 3,
		domain.CategoryOffice:     1,
	}
	for category, want := range expected {
		features, err := ExtractFeatures(monthlyRecords(1), category)
		require.NoError(t, err)
		assert.InDelta(t, want, features[0].NormalizedCategoryIndex, 1e-9, category)
	}
}

func TestExtractFeaturesUnknownCategory(t *testing.T) {
	_, err := ExtractFeatures(monthlyRecords(1, 2), domain.Category("Garage"))

	var unknown *domain.UnknownCategoryError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "Garage", unknown.Category)
}

func TestFeatureVectorInputScalesQuantities(t *testing.T) {
	fv := FeatureVector{
		NormalizedMonth:         0.5,
		NormalizedDayOfWeek:     0.25,
		PreviousQuantity:        [lagCount]float64{10, 5, 0},
		NormalizedCategoryIndex: 1,
	}

	assert.Equal(t, []float64{0.5, 0.25, 0, 1, 0.5, 0, 1}, fv.input(10))
}
