package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyReconciled is returned when an actual is attached to a prediction twice
var ErrAlreadyReconciled = errors.New("prediction already reconciled")

// PredictionState is where a prediction sits in its lifecycle
type PredictionState string

const (
	PredictionPending    PredictionState = "pending"
	PredictionReconciled PredictionState = "reconciled"
)

// Prediction is a stored forecast for one item. Actual and metric fields are
// nil until reconciliation and are written together exactly once.
type Prediction struct {
	ID                string    `json:"id"`
	ItemID            string    `json:"itemId"`
	UserID            string    `json:"userId"`
	Category          Category  `json:"category"`
	PredictedQuantity int       `json:"predictedQuantity"`
	ActualQuantity    *int      `json:"actualQuantity"`
	PredictionDate    time.Time `json:"predictionDate"`
	TargetDate        time.Time `json:"targetDate"`
	Accuracy          *float64  `json:"accuracy"`
	MAE               *float64  `json:"mae"`
	RMSE              *float64  `json:"rmse"`
	MAPE              *float64  `json:"mape"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// NewPrediction creates a pending prediction. Quantities below one are raised to one.
func NewPrediction(itemID, userID string, category Category, predicted int, predictionDate, targetDate time.Time) *Prediction {
	if predicted < 1 {
		predicted = 1
	}
	return &Prediction{
		ItemID:            itemID,
		UserID:            userID,
		Category:          category,
		PredictedQuantity: predicted,
		PredictionDate:    predictionDate,
		TargetDate:        targetDate,
		CreatedAt:         predictionDate,
		UpdatedAt:         predictionDate,
	}
}

// State reports the lifecycle state
func (p *Prediction) State() PredictionState {
	if p.ActualQuantity != nil {
		return PredictionReconciled
	}
	return PredictionPending
}

// IsDue reports whether a pending prediction's target date has been reached
func (p *Prediction) IsDue(now time.Time) bool {
	return p.State() == PredictionPending && !p.TargetDate.After(now)
}

// Reconcile attaches the observed actual quantity and freezes single-point metrics.
// mae and rmse both equal |actual - predicted| for a single point.
func (p *Prediction) Reconcile(actual int, at time.Time) error {
	if p.State() == PredictionReconciled {
		return fmt.Errorf("%w: %s", ErrAlreadyReconciled, p.ID)
	}
	if actual < 0 || actual > MaxQuantity {
		return &ValidationError{Field: "actual_quantity", Reason: fmt.Sprintf("must be between 0 and %d", MaxQuantity)}
	}

	m, err := ComputeMetrics([]float64{float64(p.PredictedQuantity)}, []float64{float64(actual)})
	if err != nil {
		return err
	}

	p.ActualQuantity = &actual
	p.MAE = &m.MAE
	p.RMSE = &m.RMSE
	p.MAPE = &m.MAPE
	p.Accuracy = &m.Accuracy
	p.UpdatedAt = at
	return nil
}

// Metrics returns the frozen metrics of a reconciled prediction
func (p *Prediction) Metrics() (Metrics, bool) {
	if p.State() != PredictionReconciled || p.MAE == nil || p.RMSE == nil || p.MAPE == nil || p.Accuracy == nil {
		return Metrics{}, false
	}
	return Metrics{MAE: *p.MAE, RMSE: *p.RMSE, MAPE: *p.MAPE, Accuracy: *p.Accuracy}, true
}

// PredictionNotFoundError represents an error when a prediction is not found
type PredictionNotFoundError struct {
	ID string
}

func (e *PredictionNotFoundError) Error() string {
	return fmt.Sprintf("prediction with ID '%s' not found", e.ID)
}
