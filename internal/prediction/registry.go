package prediction

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// ModelKey isolates models per user and category
type ModelKey struct {
	UserID   string
	Category domain.Category
}

func (k ModelKey) String() string {
	return fmt.Sprintf("%s|%s", k.UserID, k.Category)
}

// ModelStore persists trained model snapshots between process restarts
type ModelStore interface {
	SaveModelSnapshot(ctx context.Context, userID string, category domain.Category, data []byte) error
	GetModelSnapshot(ctx context.Context, userID string, category domain.Category) ([]byte, bool, error)
	DeleteModelSnapshot(ctx context.Context, userID string, category domain.Category) error
}

// Registry owns one Model per ModelKey. Training for a key is single-flight:
// concurrent callers for the same key wait for the first training to finish.
type Registry struct {
	config ModelConfig
	store  ModelStore
	logger *logrus.Logger

	mu     sync.Mutex
	models map[ModelKey]*Model
	group  singleflight.Group
}

// NewRegistry creates an empty registry. store may be nil to keep models in memory only.
func NewRegistry(config ModelConfig, store ModelStore, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	return &Registry{
		config: config,
		store:  store,
		logger: logger,
		models: make(map[ModelKey]*Model),
	}
}

// Get returns the model for key, creating it (or restoring its snapshot) on first use
func (r *Registry) Get(ctx context.Context, key ModelKey) *Model {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[key]; ok {
		return m
	}

	m := r.restore(ctx, key)
	if m == nil {
		m = NewModel(r.config, r.logger)
	}
	r.models[key] = m
	return m
}

func (r *Registry) restore(ctx context.Context, key ModelKey) *Model {
	if r.store == nil {
		return nil
	}

	entry := r.logger.WithField("model_key", key.String())
	data, found, err := r.store.GetModelSnapshot(ctx, key.UserID, key.Category)
	if err != nil {
		entry.WithError(err).Warn("failed to load model snapshot")
		return nil
	}
	if !found {
		return nil
	}

	m, err := RestoreModel(data, r.config, r.logger)
	if err != nil {
		entry.WithError(err).Warn("discarding unreadable model snapshot")
		return nil
	}

	entry.Debug("restored model from snapshot")
	return m
}

// EnsureTrained returns a trained model for key, training it on records if needed
func (r *Registry) EnsureTrained(ctx context.Context, key ModelKey, records []domain.SalesRecord) (*Model, error) {
	if m := r.Get(ctx, key); m.IsTrained() {
		return m, nil
	}

	v, err, shared := r.group.Do(key.String(), func() (interface{}, error) {
		m := r.Get(ctx, key)
		if m.IsTrained() {
			return m, nil
		}
		if err := m.Train(ctx, records, key.Category); err != nil {
			return nil, err
		}
		r.persist(ctx, key, m)
		return m, nil
	})
	if err != nil {
		return nil, err
	}

	if shared {
		r.logger.WithField("model_key", key.String()).Debug("joined in-flight training")
	}
	return v.(*Model), nil
}

func (r *Registry) persist(ctx context.Context, key ModelKey, m *Model) {
	if r.store == nil {
		return
	}

	data, err := m.MarshalSnapshot()
	if err == nil {
		err = r.store.SaveModelSnapshot(ctx, key.UserID, key.Category, data)
	}
	if err != nil {
		r.logger.WithError(err).WithField("model_key", key.String()).Warn("failed to persist model snapshot")
	}
}

// Invalidate drops the model for key so the next request retrains on fresh history
func (r *Registry) Invalidate(ctx context.Context, key ModelKey) {
	r.mu.Lock()
	delete(r.models, key)
	r.mu.Unlock()

	if r.store == nil {
		return
	}
	if err := r.store.DeleteModelSnapshot(ctx, key.UserID, key.Category); err != nil {
		r.logger.WithError(err).WithField("model_key", key.String()).Warn("failed to delete model snapshot")
	}
}

// Keys lists the keys that currently hold a model, sorted for stable output
func (r *Registry) Keys() []ModelKey {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]ModelKey, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
