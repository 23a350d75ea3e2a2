package prediction

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// DefaultFallbackQuantity is returned when there is no history and no category threshold
const DefaultFallbackQuantity = 10

// DefaultTrainTimeout bounds one training run
const DefaultTrainTimeout = 10 * time.Second

// Source records which step of the fallback chain produced a prediction
type Source string

const (
	SourceModel             Source = "model"
	SourceRecentMean        Source = "recent_mean"
	SourceHistoryMean       Source = "history_mean"
	SourceCategoryThreshold Source = "category_threshold"
	SourceDefault           Source = "default"
)

// Forecast is the outcome of PredictDemand
type Forecast struct {
	Quantity int    `json:"quantity"`
	Source   Source `json:"source"`
}

// ThresholdLookup returns the seeded default threshold for a category.
// A nil threshold with a nil error means none is configured.
type ThresholdLookup interface {
	GetCategoryThreshold(ctx context.Context, category domain.Category) (*domain.CategoryThreshold, error)
}

// PredictionService turns a sales history into a single reorder quantity.
// It always answers: model failures degrade to simpler estimates.
type PredictionService struct {
	registry     *Registry
	thresholds   ThresholdLookup
	trainTimeout time.Duration
	logger       *logrus.Logger
}

// NewPredictionService creates a new prediction service. thresholds may be nil.
func NewPredictionService(registry *Registry, thresholds ThresholdLookup, trainTimeout time.Duration, logger *logrus.Logger) *PredictionService {
	if logger == nil {
		logger = logrus.New()
	}
	if trainTimeout <= 0 {
		trainTimeout = DefaultTrainTimeout
	}
	return &PredictionService{
		registry:     registry,
		thresholds:   thresholds,
		trainTimeout: trainTimeout,
		logger:       logger,
	}
}

// Registry exposes the model registry so callers can invalidate stale models
func (s *PredictionService) Registry() *Registry {
	return s.registry
}

// PredictDemand forecasts the next quantity for userID in category. The only
// error it returns is *domain.UnknownCategoryError; everything else falls back
// to the history mean, then the category threshold, then DefaultFallbackQuantity.
func (s *PredictionService) PredictDemand(ctx context.Context, userID string, history []domain.SalesRecord, category domain.Category) (Forecast, error) {
	if _, err := category.Index(); err != nil {
		return Forecast{}, err
	}

	sorted := domain.SortByDate(history)
	key := ModelKey{UserID: userID, Category: category}
	entry := s.logger.WithFields(logrus.Fields{
		"user_id":  userID,
		"category": category,
		"records":  len(sorted),
	})

	if len(sorted) > 0 {
		forecast, err := s.predictWithModel(ctx, key, sorted)
		if err == nil {
			entry.WithFields(logrus.Fields{
				"quantity": forecast.Quantity,
				"source":   forecast.Source,
			}).Debug("demand predicted")
			return forecast, nil
		}
		entry.WithError(err).Warn("model prediction unavailable, using fallback")
	}

	forecast := s.fallback(ctx, sorted, category)
	entry.WithFields(logrus.Fields{
		"quantity": forecast.Quantity,
		"source":   forecast.Source,
	}).Info("demand predicted from fallback")
	return forecast, nil
}

func (s *PredictionService) predictWithModel(ctx context.Context, key ModelKey, sorted []domain.SalesRecord) (forecast Forecast, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrNumerical, r)
		}
	}()

	model, err := s.trainedModel(ctx, key, sorted)
	if err != nil {
		return Forecast{}, err
	}

	quantity, err := model.Predict(sorted, key.Category)
	if err != nil {
		return Forecast{}, err
	}

	source := SourceModel
	if len(sorted) < lagCount {
		source = SourceRecentMean
	}
	return Forecast{Quantity: quantity, Source: source}, nil
}

func (s *PredictionService) trainedModel(ctx context.Context, key ModelKey, sorted []domain.SalesRecord) (*Model, error) {
	if m := s.registry.Get(ctx, key); m.IsTrained() {
		return m, nil
	}
	if len(sorted) < minTrainingRecords {
		return nil, ErrInsufficientData
	}

	trainCtx, cancel := context.WithTimeout(ctx, s.trainTimeout)
	defer cancel()
	return s.registry.EnsureTrained(trainCtx, key, sorted)
}

func (s *PredictionService) fallback(ctx context.Context, sorted []domain.SalesRecord, category domain.Category) Forecast {
	if len(sorted) > 0 {
		return Forecast{Quantity: MeanQuantity(sorted), Source: SourceHistoryMean}
	}

	if s.thresholds != nil {
		threshold, err := s.thresholds.GetCategoryThreshold(ctx, category)
		switch {
		case err != nil:
			s.logger.WithError(err).WithField("category", category).Error("failed to look up category threshold")
		case threshold != nil:
			return Forecast{Quantity: threshold.DefaultThreshold, Source: SourceCategoryThreshold}
		}
	}

	return Forecast{Quantity: DefaultFallbackQuantity, Source: SourceDefault}
}

// Evaluate trains the model for userID/category if needed and scores it
// against the same history. Unlike PredictDemand it reports failures.
func (s *PredictionService) Evaluate(ctx context.Context, userID string, history []domain.SalesRecord, category domain.Category) (domain.Metrics, error) {
	if _, err := category.Index(); err != nil {
		return domain.Metrics{}, err
	}

	sorted := domain.SortByDate(history)
	if len(sorted) < minTrainingRecords {
		return domain.Metrics{}, ErrInsufficientData
	}

	key := ModelKey{UserID: userID, Category: category}
	model, err := s.trainedModel(ctx, key, sorted)
	if err != nil {
		return domain.Metrics{}, err
	}

	return model.Evaluate(sorted, category)
}
