package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// BadgerRepository implements Store using BadgerDB
type BadgerRepository struct {
	db     *badger.DB
	logger *logrus.Logger
}

// NewBadgerRepository opens (or creates) a BadgerDB store at dbPath
func NewBadgerRepository(dbPath string, logger *logrus.Logger) (*BadgerRepository, error) {
	return openBadger(badger.DefaultOptions(dbPath), logger)
}

// NewInMemoryRepository creates a BadgerDB store that lives only in memory
func NewInMemoryRepository(logger *logrus.Logger) (*BadgerRepository, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true), logger)
}

func openBadger(opts badger.Options, logger *logrus.Logger) (*BadgerRepository, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	opts.Logger = &badgerLogger{logger: logger}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger database")
	}

	repo := &BadgerRepository{db: db, logger: logger}
	if err := seedCategoryThresholds(context.Background(), repo); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to seed category thresholds")
	}

	return repo, nil
}

// Close closes the database connection
func (r *BadgerRepository) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

func badgerGet(txn *badger.Txn, key string, out interface{}) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func badgerSet(txn *badger.Txn, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	return txn.Set([]byte(key), data)
}

// badgerScan calls fn with every value under prefix, in key order
func (r *BadgerRepository) badgerScan(prefix string, fn func(val []byte) error) error {
	return r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				return err
			}
		}
		return nil
	})
}

// Sales

// AddSale stores a new sales record
func (r *BadgerRepository) AddSale(ctx context.Context, sale *domain.SalesRecord) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return badgerSet(txn, salePrefix+saleKey(sale), sale)
	})
	if err != nil {
		return errors.Wrap(err, "failed to store sale")
	}
	return nil
}

// ListSalesByItem retrieves the sales of an item recorded for userID
func (r *BadgerRepository) ListSalesByItem(ctx context.Context, itemID, userID string) ([]domain.SalesRecord, error) {
	return r.listSales(salePrefix+itemID+":", userID)
}

// ListSalesByUser retrieves every sale recorded for userID
func (r *BadgerRepository) ListSalesByUser(ctx context.Context, userID string) ([]domain.SalesRecord, error) {
	return r.listSales(salePrefix, userID)
}

func (r *BadgerRepository) listSales(prefix, userID string) ([]domain.SalesRecord, error) {
	sales := []domain.SalesRecord{}
	err := r.badgerScan(prefix, func(val []byte) error {
		var sale domain.SalesRecord
		if err := json.Unmarshal(val, &sale); err != nil {
			return err
		}
		if sale.UserID == userID {
			sales = append(sales, sale)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sales")
	}
	return sales, nil
}

// Items

// AddItem adds a new inventory item
func (r *BadgerRepository) AddItem(ctx context.Context, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return badgerSet(txn, itemPrefix+item.ID, item)
	})
	if err != nil {
		return errors.Wrap(err, "failed to store item")
	}
	return nil
}

// GetItem retrieves an inventory item by ID
func (r *BadgerRepository) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := r.db.View(func(txn *badger.Txn) error {
		return badgerGet(txn, itemPrefix+id, &item)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &domain.InventoryItemNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get item %s", id)
	}
	return &item, nil
}

// UpdateItem replaces an existing inventory item
func (r *BadgerRepository) UpdateItem(ctx context.Context, item *domain.InventoryItem) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(itemPrefix + item.ID)); err != nil {
			return err
		}
		return badgerSet(txn, itemPrefix+item.ID, item)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &domain.InventoryItemNotFoundError{ID: item.ID}
	}
	if err != nil {
		return errors.Wrapf(err, "failed to update item %s", item.ID)
	}
	return nil
}

// DeleteItem removes an inventory item. Its sales and predictions are kept.
func (r *BadgerRepository) DeleteItem(ctx context.Context, id string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(itemPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(itemPrefix + id))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return &domain.InventoryItemNotFoundError{ID: id}
	}
	if err != nil {
		return errors.Wrapf(err, "failed to delete item %s", id)
	}
	return nil
}

// ListItems retrieves a user's items; an empty userID lists every item
func (r *BadgerRepository) ListItems(ctx context.Context, userID string) ([]*domain.InventoryItem, error) {
	items := []*domain.InventoryItem{}
	err := r.badgerScan(itemPrefix, func(val []byte) error {
		var item domain.InventoryItem
		if err := json.Unmarshal(val, &item); err != nil {
			return err
		}
		if userID == "" || item.UserID == userID {
			items = append(items, &item)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list items")
	}
	return items, nil
}

// Category thresholds

// GetCategoryThreshold retrieves the threshold for category, or nil if none is stored
func (r *BadgerRepository) GetCategoryThreshold(ctx context.Context, category domain.Category) (*domain.CategoryThreshold, error) {
	var threshold domain.CategoryThreshold
	err := r.db.View(func(txn *badger.Txn) error {
		return badgerGet(txn, thresholdPrefix+string(category), &threshold)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get threshold for %s", category)
	}
	return &threshold, nil
}

// PutCategoryThreshold creates or replaces the threshold for its category
func (r *BadgerRepository) PutCategoryThreshold(ctx context.Context, threshold *domain.CategoryThreshold) error {
	if threshold.ID == "" {
		threshold.ID = uuid.New().String()
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return badgerSet(txn, thresholdPrefix+string(threshold.Category), threshold)
	})
	if err != nil {
		return errors.Wrap(err, "failed to store category threshold")
	}
	return nil
}

// ListCategoryThresholds retrieves every stored threshold
func (r *BadgerRepository) ListCategoryThresholds(ctx context.Context) ([]*domain.CategoryThreshold, error) {
	thresholds := []*domain.CategoryThreshold{}
	err := r.badgerScan(thresholdPrefix, func(val []byte) error {
		var t domain.CategoryThreshold
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		thresholds = append(thresholds, &t)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list category thresholds")
	}
	return thresholds, nil
}

// Predictions

// CreatePrediction stores a new pending prediction
func (r *BadgerRepository) CreatePrediction(ctx context.Context, p *domain.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	err := r.db.Update(func(txn *badger.Txn) error {
		return badgerSet(txn, predictionPrefix+p.ID, p)
	})
	if err != nil {
		return errors.Wrap(err, "failed to store prediction")
	}
	return nil
}

// GetPrediction retrieves a prediction by ID
func (r *BadgerRepository) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	var p domain.Prediction
	err := r.db.View(func(txn *badger.Txn) error {
		return badgerGet(txn, predictionPrefix+id, &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &domain.PredictionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get prediction %s", id)
	}
	return &p, nil
}

// ReconcilePrediction attaches the actual quantity inside one transaction
func (r *BadgerRepository) ReconcilePrediction(ctx context.Context, id string, actual int, at time.Time) (*domain.Prediction, error) {
	var p domain.Prediction
	err := r.db.Update(func(txn *badger.Txn) error {
		if err := badgerGet(txn, predictionPrefix+id, &p); err != nil {
			return err
		}
		if err := p.Reconcile(actual, at); err != nil {
			return err
		}
		return badgerSet(txn, predictionPrefix+id, &p)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, &domain.PredictionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reconcile prediction %s", id)
	}
	return &p, nil
}

// ListPredictions retrieves predictions matching filter, oldest first
func (r *BadgerRepository) ListPredictions(ctx context.Context, filter PredictionFilter) ([]*domain.Prediction, error) {
	predictions := []*domain.Prediction{}
	err := r.badgerScan(predictionPrefix, func(val []byte) error {
		var p domain.Prediction
		if err := json.Unmarshal(val, &p); err != nil {
			return err
		}
		if filter.matches(&p) {
			predictions = append(predictions, &p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list predictions")
	}

	sortPredictions(predictions)
	return predictions, nil
}

// Model snapshots

// SaveModelSnapshot stores a model snapshot, replacing any previous one
func (r *BadgerRepository) SaveModelSnapshot(ctx context.Context, userID string, category domain.Category, data []byte) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(modelPrefix+modelKey(userID, category)), data)
	})
	if err != nil {
		return errors.Wrap(err, "failed to store model snapshot")
	}
	return nil
}

// GetModelSnapshot retrieves a model snapshot; found is false when none is stored
func (r *BadgerRepository) GetModelSnapshot(ctx context.Context, userID string, category domain.Category) ([]byte, bool, error) {
	var data []byte
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(modelPrefix + modelKey(userID, category)))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get model snapshot")
	}
	return data, true, nil
}

// DeleteModelSnapshot removes a model snapshot if present
func (r *BadgerRepository) DeleteModelSnapshot(ctx context.Context, userID string, category domain.Category) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(modelPrefix + modelKey(userID, category)))
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete model snapshot")
	}
	return nil
}

// badgerLogger routes badger's internal logging through logrus at one level lower
type badgerLogger struct {
	logger *logrus.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf(strings.TrimSpace(format), args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef(strings.TrimSpace(format), args...)
}
