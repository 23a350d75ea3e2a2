package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/events"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
)

// ErrNoReconciledPredictions means there is nothing to score accuracy against yet
var ErrNoReconciledPredictions = errors.New("no reconciled predictions")

// DefaultHorizon is how far ahead a stored prediction's target date lies
const DefaultHorizon = 30 * 24 * time.Hour

// ForecastService implements the demand use-cases shared by the HTTP and gRPC transports
type ForecastService struct {
	store     repository.Store
	predictor *prediction.PredictionService
	eventBus  *events.EventBus
	horizon   time.Duration
	logger    *logrus.Logger
}

// NewForecastService creates a new forecast service instance
func NewForecastService(
	store repository.Store,
	predictor *prediction.PredictionService,
	eventBus *events.EventBus,
	horizon time.Duration,
	logger *logrus.Logger,
) *ForecastService {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	return &ForecastService{
		store:     store,
		predictor: predictor,
		eventBus:  eventBus,
		horizon:   horizon,
		logger:    logger,
	}
}

// ItemForecast is the result of predicting demand for one item
type ItemForecast struct {
	Item       *domain.InventoryItem `json:"item"`
	Prediction *domain.Prediction    `json:"prediction"`
	Forecast   prediction.Forecast   `json:"forecast"`
}

// CategoryForecast is one row of a user's per-category demand summary.
// Metrics are nil when the category has too little history to score.
type CategoryForecast struct {
	Category          domain.Category   `json:"category"`
	PredictedQuantity int               `json:"predictedQuantity"`
	Source            prediction.Source `json:"source"`
	Records           int               `json:"records"`
	MAE               *float64          `json:"mae"`
	RMSE              *float64          `json:"rmse"`
	MAPE              *float64          `json:"mape"`
	Accuracy          *float64          `json:"accuracy"`
}

// AccuracySummary scores every reconciled prediction matching a filter
type AccuracySummary struct {
	domain.Metrics
	Count int `json:"count"`
}

// ItemUpdate carries the fields a partial item update may change
type ItemUpdate struct {
	Name         *string `json:"name"`
	Category     *string `json:"category"`
	Quantity     *int    `json:"quantity"`
	ReorderPoint *int    `json:"reorderPoint"`
	Unit         *string `json:"unit"`
	Location     *string `json:"location"`
	Supplier     *string `json:"supplier"`
	Notes        *string `json:"notes"`
}

// Items

// CreateItem validates and stores a new inventory item with its derived status
func (s *ForecastService) CreateItem(ctx context.Context, item *domain.InventoryItem) (*domain.InventoryItem, error) {
	category, err := domain.ParseCategory(string(item.Category))
	if err != nil {
		return nil, err
	}
	item.Category = category
	if err := item.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	item.ID = ""
	item.Demand = nil
	item.CreatedAt = now
	item.UpdatedAt = now
	item.RefreshStatus()

	if err := s.store.AddItem(ctx, item); err != nil {
		s.logger.WithError(err).WithField("item_name", item.Name).Error("failed to add inventory item")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"item_id":  item.ID,
		"user_id":  item.UserID,
		"category": item.Category,
		"status":   item.Status,
	}).Info("inventory item created")

	return item, nil
}

// GetItem retrieves a single inventory item by ID
func (s *ForecastService) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "item_id", Reason: "is required"}
	}
	return s.store.GetItem(ctx, id)
}

// getOwnedItem loads an item and hides it from every user but its owner
func (s *ForecastService) getOwnedItem(ctx context.Context, id, userID string) (*domain.InventoryItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, &domain.InventoryItemNotFoundError{ID: id}
	}
	return item, nil
}

// DeleteItem removes an item. Its sales and predictions stay stored, but the
// user's model for its category is dropped since that history no longer counts.
func (s *ForecastService) DeleteItem(ctx context.Context, id string) error {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return err
	}

	if err := s.store.DeleteItem(ctx, id); err != nil {
		s.logger.WithError(err).WithField("item_id", id).Error("failed to delete inventory item")
		return err
	}
	s.predictor.Registry().Invalidate(ctx, prediction.ModelKey{UserID: item.UserID, Category: item.Category})

	s.logger.WithFields(logrus.Fields{
		"item_id": id,
		"user_id": item.UserID,
	}).Info("inventory item deleted")
	return nil
}

// ListItems retrieves a user's inventory items
func (s *ForecastService) ListItems(ctx context.Context, userID string) ([]*domain.InventoryItem, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}
	return s.store.ListItems(ctx, userID)
}

// UpdateItem applies a partial update and publishes a status change when the derived status moves
func (s *ForecastService) UpdateItem(ctx context.Context, id string, update ItemUpdate) (*domain.InventoryItem, error) {
	item, err := s.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		item.Name = *update.Name
	}
	if update.Category != nil {
		category, err := domain.ParseCategory(*update.Category)
		if err != nil {
			return nil, err
		}
		item.Category = category
	}
	if update.Quantity != nil {
		item.Quantity = *update.Quantity
	}
	if update.ReorderPoint != nil {
		item.ReorderPoint = *update.ReorderPoint
	}
	setString(&item.Unit, update.Unit)
	setString(&item.Location, update.Location)
	setString(&item.Supplier, update.Supplier)
	setString(&item.Notes, update.Notes)
	if err := item.Validate(); err != nil {
		return nil, err
	}

	previous := item.Status
	changed := item.RefreshStatus()
	item.UpdatedAt = time.Now()

	if err := s.store.UpdateItem(ctx, item); err != nil {
		s.logger.WithError(err).WithField("item_id", id).Error("failed to update inventory item")
		return nil, err
	}

	if changed {
		s.logger.WithFields(logrus.Fields{
			"item_id":         item.ID,
			"previous_status": previous,
			"status":          item.Status,
			"low_stock":       item.IsLowStock(),
		}).Info("inventory item status changed")
		s.publish(s.eventBus.PublishItemStatusChanged(ctx, item, previous))
	}

	return item, nil
}

// Sales

// RecordSale stores a sale for an existing item and invalidates the model trained
// for that user and category so the next prediction sees the new history.
func (s *ForecastService) RecordSale(ctx context.Context, sale *domain.SalesRecord) (*domain.SalesRecord, error) {
	if err := sale.Validate(); err != nil {
		return nil, err
	}

	item, err := s.getOwnedItem(ctx, sale.ItemID, sale.UserID)
	if err != nil {
		return nil, err
	}

	sale.ID = ""
	if sale.Date.IsZero() {
		sale.Date = time.Now()
	}
	sale.Date = sale.Date.UTC()

	if err := s.store.AddSale(ctx, sale); err != nil {
		s.logger.WithError(err).WithField("item_id", sale.ItemID).Error("failed to record sale")
		return nil, err
	}

	s.predictor.Registry().Invalidate(ctx, prediction.ModelKey{UserID: sale.UserID, Category: item.Category})

	s.logger.WithFields(logrus.Fields{
		"sale_id":  sale.ID,
		"item_id":  sale.ItemID,
		"user_id":  sale.UserID,
		"quantity": sale.Quantity,
	}).Debug("sale recorded")
	s.publish(s.eventBus.PublishSaleRecorded(ctx, sale, item.Category))

	return sale, nil
}

// ListSales returns a user's sales, optionally limited to one item, oldest first
func (s *ForecastService) ListSales(ctx context.Context, userID, itemID string) ([]domain.SalesRecord, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}

	var (
		sales []domain.SalesRecord
		err   error
	)
	if itemID != "" {
		sales, err = s.store.ListSalesByItem(ctx, itemID, userID)
	} else {
		sales, err = s.store.ListSalesByUser(ctx, userID)
	}
	if err != nil {
		return nil, err
	}
	return domain.SortByDate(sales), nil
}

// Category thresholds

// ListCategoryThresholds returns every configured threshold
func (s *ForecastService) ListCategoryThresholds(ctx context.Context) ([]*domain.CategoryThreshold, error) {
	return s.store.ListCategoryThresholds(ctx)
}

// SetCategoryThreshold creates or replaces a category's fallback threshold
func (s *ForecastService) SetCategoryThreshold(ctx context.Context, rawCategory string, defaultThreshold int) (*domain.CategoryThreshold, error) {
	category, err := domain.ParseCategory(rawCategory)
	if err != nil {
		return nil, err
	}
	if defaultThreshold < 1 {
		return nil, &domain.ValidationError{Field: "default_threshold", Reason: "must be at least 1"}
	}

	threshold, err := s.store.GetCategoryThreshold(ctx, category)
	if err != nil {
		return nil, err
	}
	if threshold == nil {
		threshold = &domain.CategoryThreshold{Category: category}
	}
	threshold.DefaultThreshold = defaultThreshold

	if err := s.store.PutCategoryThreshold(ctx, threshold); err != nil {
		return nil, err
	}
	return threshold, nil
}

// Predictions

// PredictItemDemand forecasts the next quantity for one item, stores it as a
// pending prediction and records it as the item's current demand. rawCategory
// may be empty; otherwise it must name the item's own category.
func (s *ForecastService) PredictItemDemand(ctx context.Context, itemID, userID, rawCategory string) (*ItemForecast, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}

	item, err := s.getOwnedItem(ctx, itemID, userID)
	if err != nil {
		return nil, err
	}

	category := item.Category
	if strings.TrimSpace(rawCategory) != "" {
		requested, err := domain.ParseCategory(rawCategory)
		if err != nil {
			return nil, err
		}
		if requested != category {
			return nil, &domain.ValidationError{
				Field:  "category",
				Reason: fmt.Sprintf("%q does not match the item's category %q", requested, category),
			}
		}
	}

	history, err := s.store.ListSalesByItem(ctx, item.ID, userID)
	if err != nil {
		return nil, err
	}

	forecast, err := s.predictor.PredictDemand(ctx, userID, history, category)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	p := domain.NewPrediction(item.ID, userID, category, forecast.Quantity, now, now.Add(s.horizon))
	if err := s.store.CreatePrediction(ctx, p); err != nil {
		s.logger.WithError(err).WithField("item_id", item.ID).Error("failed to store prediction")
		return nil, err
	}

	item.SetDemand(forecast.Quantity)
	if err := s.store.UpdateItem(ctx, item); err != nil {
		s.logger.WithError(err).WithField("item_id", item.ID).Error("failed to record item demand")
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"item_id":       item.ID,
		"user_id":       userID,
		"category":      category,
		"prediction_id": p.ID,
		"quantity":      forecast.Quantity,
		"source":        forecast.Source,
	}).Info("item demand predicted")
	s.publish(s.eventBus.PublishPredictionCreated(ctx, p))

	return &ItemForecast{Item: item, Prediction: p, Forecast: forecast}, nil
}

// PredictUserDemand forecasts every category for a user from the sales of their
// items in that category. Categories with enough history also carry in-sample metrics.
func (s *ForecastService) PredictUserDemand(ctx context.Context, userID string) ([]CategoryForecast, error) {
	if userID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "is required"}
	}

	items, err := s.store.ListItems(ctx, userID)
	if err != nil {
		return nil, err
	}
	categoryOf := make(map[string]domain.Category, len(items))
	for _, item := range items {
		categoryOf[item.ID] = item.Category
	}

	sales, err := s.store.ListSalesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	byCategory := make(map[domain.Category][]domain.SalesRecord)
	for _, sale := range sales {
		if category, ok := categoryOf[sale.ItemID]; ok {
			byCategory[category] = append(byCategory[category], sale)
		}
	}

	results := make([]CategoryForecast, 0, len(domain.Categories()))
	for _, category := range domain.Categories() {
		history := byCategory[category]
		forecast, err := s.predictor.PredictDemand(ctx, userID, history, category)
		if err != nil {
			return nil, err
		}

		row := CategoryForecast{
			Category:          category,
			PredictedQuantity: forecast.Quantity,
			Source:            forecast.Source,
			Records:           len(history),
		}

		metrics, err := s.predictor.Evaluate(ctx, userID, history, category)
		switch {
		case err == nil:
			row.MAE, row.RMSE, row.MAPE, row.Accuracy = &metrics.MAE, &metrics.RMSE, &metrics.MAPE, &metrics.Accuracy
		case errors.Is(err, prediction.ErrInsufficientData):
		default:
			s.logger.WithError(err).WithFields(logrus.Fields{
				"user_id":  userID,
				"category": category,
			}).Warn("category evaluation failed")
		}

		results = append(results, row)
	}

	return results, nil
}

// ListPredictions returns stored predictions matching filter
func (s *ForecastService) ListPredictions(ctx context.Context, filter repository.PredictionFilter) ([]*domain.Prediction, error) {
	if filter.ItemID == "" && filter.UserID == "" {
		return nil, &domain.ValidationError{Field: "user_id", Reason: "user_id or item_id is required"}
	}
	return s.store.ListPredictions(ctx, filter)
}

// ReconcilePrediction attaches an observed actual quantity to a pending prediction
func (s *ForecastService) ReconcilePrediction(ctx context.Context, id string, actual int) (*domain.Prediction, error) {
	if id == "" {
		return nil, &domain.ValidationError{Field: "prediction_id", Reason: "is required"}
	}

	p, err := s.store.ReconcilePrediction(ctx, id, actual, time.Now())
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"prediction_id": p.ID,
		"item_id":       p.ItemID,
		"predicted":     p.PredictedQuantity,
		"actual":        actual,
		"accuracy":      *p.Accuracy,
	}).Info("prediction reconciled")
	s.publish(s.eventBus.PublishPredictionReconciled(ctx, p))

	return p, nil
}

// GetAccuracy scores every reconciled prediction for an item (and user, when given)
func (s *ForecastService) GetAccuracy(ctx context.Context, itemID, userID string) (*AccuracySummary, error) {
	if itemID == "" {
		return nil, &domain.ValidationError{Field: "item_id", Reason: "is required"}
	}

	predictions, err := s.store.ListPredictions(ctx, repository.PredictionFilter{
		ItemID: itemID,
		UserID: userID,
		State:  domain.PredictionReconciled,
	})
	if err != nil {
		return nil, err
	}
	if len(predictions) == 0 {
		return nil, ErrNoReconciledPredictions
	}

	predicted := make([]float64, len(predictions))
	actual := make([]float64, len(predictions))
	for i, p := range predictions {
		predicted[i] = float64(p.PredictedQuantity)
		actual[i] = float64(*p.ActualQuantity)
	}

	metrics, err := domain.ComputeMetrics(predicted, actual)
	if err != nil {
		return nil, fmt.Errorf("failed to score predictions for %s: %w", itemID, err)
	}
	return &AccuracySummary{Metrics: metrics, Count: len(predictions)}, nil
}

// ReconcileDue reconciles every pending prediction whose target date is not after
// now. The actual is the quantity sold between the prediction and its target date.
// Predictions with no sale in that window stay pending for an explicit reconcile.
// Failures on individual predictions are logged and skipped.
func (s *ForecastService) ReconcileDue(ctx context.Context, now time.Time) (int, error) {
	due, err := s.store.ListPredictions(ctx, repository.PredictionFilter{DueBy: now})
	if err != nil {
		return 0, err
	}

	var reconciled int
	for _, p := range due {
		if err := ctx.Err(); err != nil {
			return reconciled, err
		}

		entry := s.logger.WithFields(logrus.Fields{
			"prediction_id": p.ID,
			"item_id":       p.ItemID,
		})

		sales, err := s.store.ListSalesByItem(ctx, p.ItemID, p.UserID)
		if err != nil {
			entry.WithError(err).Error("failed to load sales for due prediction")
			continue
		}

		actual, count := soldBetween(sales, p.PredictionDate, p.TargetDate)
		if count == 0 {
			entry.Debug("no sales observed for due prediction, leaving it pending")
			continue
		}
		if _, err := s.ReconcilePrediction(ctx, p.ID, actual); err != nil {
			if errors.Is(err, domain.ErrAlreadyReconciled) {
				continue
			}
			entry.WithError(err).Error("failed to reconcile due prediction")
			continue
		}
		reconciled++
	}

	return reconciled, nil
}

// soldBetween sums quantities with from < date <= to and counts the sales it summed
func soldBetween(sales []domain.SalesRecord, from, to time.Time) (total, count int) {
	for _, sale := range sales {
		if sale.Date.After(from) && !sale.Date.After(to) {
			total += sale.Quantity
			count++
		}
	}
	return total, count
}

func setString(dst, src *string) {
	if src != nil {
		*dst = *src
	}
}

func (s *ForecastService) publish(err error) {
	if err != nil {
		s.logger.WithError(err).Warn("failed to publish event")
	}
}
