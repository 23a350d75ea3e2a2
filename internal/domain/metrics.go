package domain

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLengthMismatch means predictions and actuals were not aligned pointwise
	ErrLengthMismatch = errors.New("predictions and actuals differ in length")
	// ErrNoObservations means there was nothing to score
	ErrNoObservations = errors.New("no observations to score")
)

// Metrics are the error measures of a forecast against observed actuals
type Metrics struct {
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	MAPE     float64 `json:"mape"`
	Accuracy float64 `json:"accuracy"`
}

// ComputeMetrics scores predictions against actuals of the same length.
//
// MAPE skips terms whose actual is zero but still divides by the full count,
// which understates it when zero actuals are present. Accuracy is 100 - MAPE
// and is not clamped, so it goes negative once MAPE exceeds 100.
func ComputeMetrics(predictions, actuals []float64) (Metrics, error) {
	if len(predictions) != len(actuals) {
		return Metrics{}, fmt.Errorf("%w: %d predictions, %d actuals", ErrLengthMismatch, len(predictions), len(actuals))
	}
	if len(predictions) == 0 {
		return Metrics{}, ErrNoObservations
	}

	n := float64(len(predictions))
	var absSum, sqSum, pctSum float64
	for i, pred := range predictions {
		diff := pred - actuals[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actuals[i] != 0 {
			pctSum += math.Abs((actuals[i] - pred) / actuals[i])
		}
	}

	mape := pctSum * 100 / n
	return Metrics{
		MAE:      absSum / n,
		RMSE:     math.Sqrt(sqSum / n),
		MAPE:     mape,
		Accuracy: 100 - mape,
	}, nil
}

// IntsToFloats widens quantities for metric computation
func IntsToFloats(values []int) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}
