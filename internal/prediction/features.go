package prediction

import (
	"time"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// lagCount is how many preceding records feed each feature vector
const lagCount = 3

// inputSize is the width of the network input built from a FeatureVector
const inputSize = 4 + lagCount

// FeatureVector is the numeric view of one sales record
type FeatureVector struct {
	NormalizedMonth         float64
	NormalizedDayOfWeek     float64
	IsHoliday               float64
	PreviousQuantity        [lagCount]float64
	NormalizedCategoryIndex float64
}

// ExtractFeatures builds one FeatureVector per record. Records must already be
// in chronological order; lags are taken by position, not by date distance,
// and are zero where the sequence has not started yet.
func ExtractFeatures(records []domain.SalesRecord, category domain.Category) ([]FeatureVector, error) {
	categoryValue, err := category.Normalized()
	if err != nil {
		return nil, err
	}

	features := make([]FeatureVector, len(records))
	for i, record := range records {
		date := record.Date.UTC()

		fv := FeatureVector{
			NormalizedMonth:         float64(date.Month()-1) / 11,
			NormalizedDayOfWeek:     float64(date.Weekday()) / 6,
			NormalizedCategoryIndex: categoryValue,
		}
		if isHoliday(date) {
			fv.IsHoliday = 1
		}
		for lag := 1; lag <= lagCount; lag++ {
			if i-lag >= 0 {
				fv.PreviousQuantity[lag-1] = float64(records[i-lag].Quantity)
			}
		}

		features[i] = fv
	}

	return features, nil
}

// isHoliday checks a fixed placeholder calendar: New Year's Day, Independence
// Day and Christmas Day. It is not a real holiday calendar.
func isHoliday(date time.Time) bool {
	month, day := date.Month(), date.Day()
	return (month == time.January && day == 1) ||
		(month == time.July && day == 4) ||
		(month == time.December && day == 25)
}

// input lays the vector out as network input, dividing quantity features by scale
func (f FeatureVector) input(scale float64) []float64 {
	in := make([]float64, 0, inputSize)
	in = append(in, f.NormalizedMonth, f.NormalizedDayOfWeek, f.IsHoliday)
	for _, q := range f.PreviousQuantity {
		in = append(in, q/scale)
	}
	return append(in, f.NormalizedCategoryIndex)
}
