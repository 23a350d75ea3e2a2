package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// SalesRepository stores immutable sales records
type SalesRepository interface {
	AddSale(ctx context.Context, sale *domain.SalesRecord) error
	// ListSalesByItem returns an item's sales for one user, in no guaranteed order
	ListSalesByItem(ctx context.Context, itemID, userID string) ([]domain.SalesRecord, error)
	ListSalesByUser(ctx context.Context, userID string) ([]domain.SalesRecord, error)
}

// ItemRepository stores inventory items
type ItemRepository interface {
	AddItem(ctx context.Context, item *domain.InventoryItem) error
	GetItem(ctx context.Context, id string) (*domain.InventoryItem, error)
	UpdateItem(ctx context.Context, item *domain.InventoryItem) error
	DeleteItem(ctx context.Context, id string) error
	ListItems(ctx context.Context, userID string) ([]*domain.InventoryItem, error)
}

// ThresholdRepository stores per-category fallback thresholds
type ThresholdRepository interface {
	// GetCategoryThreshold returns nil, nil when the category has no threshold
	GetCategoryThreshold(ctx context.Context, category domain.Category) (*domain.CategoryThreshold, error)
	PutCategoryThreshold(ctx context.Context, threshold *domain.CategoryThreshold) error
	ListCategoryThresholds(ctx context.Context) ([]*domain.CategoryThreshold, error)
}

// PredictionRepository stores prediction records through their lifecycle
type PredictionRepository interface {
	CreatePrediction(ctx context.Context, p *domain.Prediction) error
	GetPrediction(ctx context.Context, id string) (*domain.Prediction, error)
	// ReconcilePrediction attaches the actual quantity in a single read-modify-write
	ReconcilePrediction(ctx context.Context, id string, actual int, at time.Time) (*domain.Prediction, error)
	ListPredictions(ctx context.Context, filter PredictionFilter) ([]*domain.Prediction, error)
}

// ModelRepository stores serialised model snapshots keyed by user and category
type ModelRepository interface {
	SaveModelSnapshot(ctx context.Context, userID string, category domain.Category, data []byte) error
	GetModelSnapshot(ctx context.Context, userID string, category domain.Category) ([]byte, bool, error)
	DeleteModelSnapshot(ctx context.Context, userID string, category domain.Category) error
}

// Store is everything the demand service persists
type Store interface {
	SalesRepository
	ItemRepository
	ThresholdRepository
	PredictionRepository
	ModelRepository
	Close() error
}

// PredictionFilter narrows ListPredictions. Zero fields match everything.
type PredictionFilter struct {
	ItemID string
	UserID string
	State  domain.PredictionState
	// DueBy keeps only pending predictions whose target date is not after it
	DueBy time.Time
}

func (f PredictionFilter) matches(p *domain.Prediction) bool {
	if f.ItemID != "" && p.ItemID != f.ItemID {
		return false
	}
	if f.UserID != "" && p.UserID != f.UserID {
		return false
	}
	if f.State != "" && p.State() != f.State {
		return false
	}
	if !f.DueBy.IsZero() && !p.IsDue(f.DueBy) {
		return false
	}
	return true
}

const (
	itemPrefix       = "item:"
	salePrefix       = "sale:" // sale:item_id:sortable_time:sale_id
	thresholdPrefix  = "threshold:"
	predictionPrefix = "prediction:"
	modelPrefix      = "model:"

	// fixed width so lexical key order is chronological
	sortableTimeLayout = "20060102T150405.000000000"
)

func saleKey(sale *domain.SalesRecord) string {
	return fmt.Sprintf("%s:%s:%s", sale.ItemID, sale.Date.UTC().Format(sortableTimeLayout), sale.ID)
}

func modelKey(userID string, category domain.Category) string {
	return fmt.Sprintf("%s|%s", userID, category)
}

func sortPredictions(predictions []*domain.Prediction) {
	sort.SliceStable(predictions, func(i, j int) bool {
		return predictions[i].PredictionDate.Before(predictions[j].PredictionDate)
	})
}

// seedCategoryThresholds fills in the default threshold for any category that has none
func seedCategoryThresholds(ctx context.Context, repo ThresholdRepository) error {
	for _, t := range domain.DefaultCategoryThresholds() {
		existing, err := repo.GetCategoryThreshold(ctx, t.Category)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}

		threshold := t
		if err := repo.PutCategoryThreshold(ctx, &threshold); err != nil {
			return err
		}
	}
	return nil
}
