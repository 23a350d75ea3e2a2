package repository

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/bbolt"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

const (
	itemsBucket       = "items"
	salesBucket       = "sales"
	thresholdsBucket  = "thresholds"
	predictionsBucket = "predictions"
	modelsBucket      = "models"
)

var errBoltNotFound = errors.New("key not found")

// BoltRepository implements Store using BoltDB (bbolt).
// BoltDB keeps everything in one compact file, unlike BadgerDB's value logs.
type BoltRepository struct {
	db     *bbolt.DB
	logger *logrus.Logger
}

// NewBoltRepository opens (or creates) a BoltDB store at dbPath
func NewBoltRepository(dbPath string, logger *logrus.Logger) (*BoltRepository, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	// Ensure parent directory exists (important for Windows)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create parent directory for bolt db")
	}

	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{
		Timeout:      1 * time.Second,
		FreelistType: bbolt.FreelistMapType,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open bolt db")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{itemsBucket, salesBucket, thresholdsBucket, predictionsBucket, modelsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return errors.Wrapf(err, "failed to create bucket %s", bucket)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	repo := &BoltRepository{db: db, logger: logger}
	if err := seedCategoryThresholds(context.Background(), repo); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to seed category thresholds")
	}

	logger.WithField("path", dbPath).Debug("bolt store opened")
	return repo, nil
}

// Close closes the database connection
func (r *BoltRepository) Close() error {
	return r.db.Close()
}

func boltGet(tx *bbolt.Tx, bucket, key string, out interface{}) error {
	data := tx.Bucket([]byte(bucket)).Get([]byte(key))
	if data == nil {
		return errBoltNotFound
	}
	return json.Unmarshal(data, out)
}

func boltPut(tx *bbolt.Tx, bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s", key)
	}
	return tx.Bucket([]byte(bucket)).Put([]byte(key), data)
}

// boltScan calls fn for every value in bucket whose key starts with prefix
func (r *BoltRepository) boltScan(bucket, prefix string, fn func(val []byte) error) error {
	return r.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if err := fn(v); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddSale stores a new sales record
func (r *BoltRepository) AddSale(ctx context.Context, sale *domain.SalesRecord) error {
	if sale.ID == "" {
		sale.ID = uuid.New().String()
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return boltPut(tx, salesBucket, saleKey(sale), sale)
	})
	return errors.Wrap(err, "failed to store sale")
}

// ListSalesByItem retrieves the sales of an item recorded for userID
func (r *BoltRepository) ListSalesByItem(ctx context.Context, itemID, userID string) ([]domain.SalesRecord, error) {
	return r.listSales(itemID+":", userID)
}

// ListSalesByUser retrieves every sale recorded for userID
func (r *BoltRepository) ListSalesByUser(ctx context.Context, userID string) ([]domain.SalesRecord, error) {
	return r.listSales("", userID)
}

func (r *BoltRepository) listSales(prefix, userID string) ([]domain.SalesRecord, error) {
	sales := []domain.SalesRecord{}
	err := r.boltScan(salesBucket, prefix, func(val []byte) error {
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

// AddItem adds a new inventory item
func (r *BoltRepository) AddItem(ctx context.Context, item *domain.InventoryItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return boltPut(tx, itemsBucket, item.ID, item)
	})
	return errors.Wrap(err, "failed to store item")
}

// GetItem retrieves an inventory item by ID
func (r *BoltRepository) GetItem(ctx context.Context, id string) (*domain.InventoryItem, error) {
	var item domain.InventoryItem
	err := r.db.View(func(tx *bbolt.Tx) error {
		return boltGet(tx, itemsBucket, id, &item)
	})
	if errors.Is(err, errBoltNotFound) {
		return nil, &domain.InventoryItemNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get item %s", id)
	}
	return &item, nil
}

// UpdateItem replaces an existing inventory item
func (r *BoltRepository) UpdateItem(ctx context.Context, item *domain.InventoryItem) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(itemsBucket)).Get([]byte(item.ID)) == nil {
			return errBoltNotFound
		}
		return boltPut(tx, itemsBucket, item.ID, item)
	})
	if errors.Is(err, errBoltNotFound) {
		return &domain.InventoryItemNotFoundError{ID: item.ID}
	}
	return errors.Wrapf(err, "failed to update item %s", item.ID)
}

// DeleteItem removes an inventory item. Its sales and predictions are kept.
func (r *BoltRepository) DeleteItem(ctx context.Context, id string) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(itemsBucket))
		if bucket.Get([]byte(id)) == nil {
			return errBoltNotFound
		}
		return bucket.Delete([]byte(id))
	})
	if errors.Is(err, errBoltNotFound) {
		return &domain.InventoryItemNotFoundError{ID: id}
	}
	return errors.Wrapf(err, "failed to delete item %s", id)
}

// ListItems retrieves a user's items; an empty userID lists every item
func (r *BoltRepository) ListItems(ctx context.Context, userID string) ([]*domain.InventoryItem, error) {
	items := []*domain.InventoryItem{}
	err := r.boltScan(itemsBucket, "", func(val []byte) error {
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

// GetCategoryThreshold retrieves the threshold for category, or nil if none is stored
func (r *BoltRepository) GetCategoryThreshold(ctx context.Context, category domain.Category) (*domain.CategoryThreshold, error) {
	var threshold domain.CategoryThreshold
	err := r.db.View(func(tx *bbolt.Tx) error {
		return boltGet(tx, thresholdsBucket, string(category), &threshold)
	})
	if errors.Is(err, errBoltNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get threshold for %s", category)
	}
	return &threshold, nil
}

// PutCategoryThreshold creates or replaces the threshold for its category
func (r *BoltRepository) PutCategoryThreshold(ctx context.Context, threshold *domain.CategoryThreshold) error {
	if threshold.ID == "" {
		threshold.ID = uuid.New().String()
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return boltPut(tx, thresholdsBucket, string(threshold.Category), threshold)
	})
	return errors.Wrap(err, "failed to store category threshold")
}

// ListCategoryThresholds retrieves every stored threshold
func (r *BoltRepository) ListCategoryThresholds(ctx context.Context) ([]*domain.CategoryThreshold, error) {
	thresholds := []*domain.CategoryThreshold{}
	err := r.boltScan(thresholdsBucket, "", func(val []byte) error {
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

// CreatePrediction stores a new pending prediction
func (r *BoltRepository) CreatePrediction(ctx context.Context, p *domain.Prediction) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	err := r.db.Update(func(tx *bbolt.Tx) error {
		return boltPut(tx, predictionsBucket, p.ID, p)
	})
	return errors.Wrap(err, "failed to store prediction")
}

// GetPrediction retrieves a prediction by ID
func (r *BoltRepository) GetPrediction(ctx context.Context, id string) (*domain.Prediction, error) {
	var p domain.Prediction
	err := r.db.View(func(tx *bbolt.Tx) error {
		return boltGet(tx, predictionsBucket, id, &p)
	})
	if errors.Is(err, errBoltNotFound) {
		return nil, &domain.PredictionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get prediction %s", id)
	}
	return &p, nil
}

// ReconcilePrediction attaches the actual quantity inside one transaction
func (r *BoltRepository) ReconcilePrediction(ctx context.Context, id string, actual int, at time.Time) (*domain.Prediction, error) {
	var p domain.Prediction
	err := r.db.Update(func(tx *bbolt.Tx) error {
		if err := boltGet(tx, predictionsBucket, id, &p); err != nil {
			return err
		}
		if err := p.Reconcile(actual, at); err != nil {
			return err
		}
		return boltPut(tx, predictionsBucket, id, &p)
	})
	if errors.Is(err, errBoltNotFound) {
		return nil, &domain.PredictionNotFoundError{ID: id}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to reconcile prediction %s", id)
	}
	return &p, nil
}

// ListPredictions retrieves predictions matching filter, oldest first
func (r *BoltRepository) ListPredictions(ctx context.Context, filter PredictionFilter) ([]*domain.Prediction, error) {
	predictions := []*domain.Prediction{}
	err := r.boltScan(predictionsBucket, "", func(val []byte) error {
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

// SaveModelSnapshot stores a model snapshot, replacing any previous one
func (r *BoltRepository) SaveModelSnapshot(ctx context.Context, userID string, category domain.Category, data []byte) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Put([]byte(modelKey(userID, category)), data)
	})
	return errors.Wrap(err, "failed to store model snapshot")
}

// GetModelSnapshot retrieves a model snapshot; found is false when none is stored
func (r *BoltRepository) GetModelSnapshot(ctx context.Context, userID string, category domain.Category) ([]byte, bool, error) {
	var data []byte
	err := r.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket([]byte(modelsBucket)).Get([]byte(modelKey(userID, category))); v != nil {
			// bolt values are only valid inside the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to get model snapshot")
	}
	return data, data != nil, nil
}

// DeleteModelSnapshot removes a model snapshot if present
func (r *BoltRepository) DeleteModelSnapshot(ctx context.Context, userID string, category domain.Category) error {
	err := r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(modelsBucket)).Delete([]byte(modelKey(userID, category)))
	})
	return errors.Wrap(err, "failed to delete model snapshot")
}
