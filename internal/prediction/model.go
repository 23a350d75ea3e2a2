package prediction

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// minTrainingRecords is the shortest history Train accepts: three lag sources plus one label
const minTrainingRecords = lagCount + 1

var (
	ErrInsufficientData = errors.New("insufficient data for training, need at least 4 sales records")
	ErrModelNotTrained  = errors.New("model needs to be trained before use")
	ErrNumerical        = errors.New("model produced a non-finite value")
	ErrTrainingTimeout  = errors.New("training exceeded its time budget")
)

// ModelConfig holds the network shape and optimiser settings
type ModelConfig struct {
	HiddenUnits     []int
	Dropout         float64
	LearningRate    float64
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LogEvery        int
	Seed            int64
}

// DefaultModelConfig mirrors the settings the forecaster has always shipped with
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		HiddenUnits:     []int{64, 32},
		Dropout:         0.2,
		LearningRate:    0.001,
		Epochs:          100,
		BatchSize:       32,
		ValidationSplit: 0.2,
		LogEvery:        10,
		Seed:            42,
	}
}

// Model is a trainable demand regressor. It is trained once and then used for
// many predictions; Predict and Evaluate are safe for concurrent use after
// training, Train must not race with itself.
type Model struct {
	config ModelConfig
	logger *logrus.Logger

	mu        sync.RWMutex
	net       *network
	scale     float64
	trained   bool
	trainedAt time.Time
	samples   int
}

// NewModel creates an untrained model
func NewModel(config ModelConfig, logger *logrus.Logger) *Model {
	if logger == nil {
		logger = logrus.New()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	if len(config.HiddenUnits) == 0 {
		config.HiddenUnits = DefaultModelConfig().HiddenUnits
	}

	return &Model{
		config: config,
		logger: logger,
		scale:  1,
	}
}

// IsTrained reports whether Train has completed successfully
func (m *Model) IsTrained() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trained
}

// TrainedAt returns when training finished and how many labelled samples it used
func (m *Model) TrainedAt() (time.Time, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.trainedAt, m.samples
}

// Train fits the network on chronologically ordered records. Labels are the
// quantities from the fourth record on; the first three only feed lags.
func (m *Model) Train(ctx context.Context, records []domain.SalesRecord, category domain.Category) error {
	if len(records) < minTrainingRecords {
		return ErrInsufficientData
	}

	features, err := ExtractFeatures(records, category)
	if err != nil {
		return err
	}
	features = features[lagCount:]
	labels := domain.IntsToFloats(domain.Quantities(records[lagCount:]))

	scale := quantityScale(records)
	inputs := make([][]float64, len(features))
	targets := make([]float64, len(labels))
	for i, f := range features {
		inputs[i] = f.input(scale)
		targets[i] = labels[i] / scale
	}

	// validation comes from the tail, before shuffling
	trainCount := int(float64(len(inputs)) * (1 - m.config.ValidationSplit))
	if trainCount < 1 || trainCount > len(inputs) {
		trainCount = len(inputs)
	}
	trainX, trainY := inputs[:trainCount], targets[:trainCount]
	valX, valY := inputs[trainCount:], targets[trainCount:]

	rng := rand.New(rand.NewSource(m.config.Seed))
	net := newNetwork(inputSize, m.config.HiddenUnits, m.config.Dropout, rng)

	entry := m.logger.WithFields(logrus.Fields{
		"category":      category,
		"samples":       len(trainX),
		"validation":    len(valX),
		"epochs":        m.config.Epochs,
		"learning_rate": m.config.LearningRate,
	})
	entry.Debug("training demand model")

	order := make([]int, len(trainX))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < m.config.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w after %d epochs: %w", ErrTrainingTimeout, epoch, err)
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var epochLoss float64
		var batches int
		for start := 0; start < len(order); start += m.config.BatchSize {
			end := min(start+m.config.BatchSize, len(order))
			x, y := batch(trainX, trainY, order[start:end])

			out := net.forward(x, rng)
			loss, grad := mseLoss(out, y)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return fmt.Errorf("%w: loss diverged at epoch %d", ErrNumerical, epoch+1)
			}
			net.backward(grad, m.config.LearningRate)

			epochLoss += loss
			batches++
		}

		if m.config.LogEvery > 0 && (epoch+1)%m.config.LogEvery == 0 {
			fields := logrus.Fields{
				"epoch": epoch + 1,
				"loss":  epochLoss / float64(batches),
			}
			if len(valX) > 0 {
				fields["val_loss"] = evaluateLoss(net, valX, valY)
			}
			entry.WithFields(fields).Debug("epoch finished")
		}
	}

	m.mu.Lock()
	m.net = net
	m.scale = scale
	m.trained = true
	m.trainedAt = time.Now()
	m.samples = len(inputs)
	m.mu.Unlock()

	entry.Info("demand model trained")
	return nil
}

// Predict forecasts the next quantity from the most recent record. With fewer
// than three records it returns their rounded mean instead of running the network.
func (m *Model) Predict(records []domain.SalesRecord, category domain.Category) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return 0, ErrModelNotTrained
	}
	if len(records) == 0 {
		return 0, ErrInsufficientData
	}
	if len(records) < lagCount {
		return MeanQuantity(records), nil
	}

	features, err := ExtractFeatures(records, category)
	if err != nil {
		return 0, err
	}
	return m.infer(features[len(features)-1])
}

// Evaluate replays the training alignment (features from the fourth record,
// labels records[3:]) and scores one inference per held-out point.
func (m *Model) Evaluate(records []domain.SalesRecord, category domain.Category) (domain.Metrics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return domain.Metrics{}, ErrModelNotTrained
	}
	if len(records) < minTrainingRecords {
		return domain.Metrics{}, ErrInsufficientData
	}

	features, err := ExtractFeatures(records, category)
	if err != nil {
		return domain.Metrics{}, err
	}
	features = features[lagCount:]
	actuals := domain.IntsToFloats(domain.Quantities(records[lagCount:]))

	predictions := make([]float64, len(features))
	for i, f := range features {
		p, err := m.infer(f)
		if err != nil {
			return domain.Metrics{}, err
		}
		predictions[i] = float64(p)
	}

	return domain.ComputeMetrics(predictions, actuals)
}

// infer must be called with mu held
func (m *Model) infer(f FeatureVector) (int, error) {
	raw := m.net.predictOne(f.input(m.scale)) * m.scale
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return 0, ErrNumerical
	}
	return floorOne(math.Round(raw)), nil
}

// MeanQuantity is max(1, round(mean quantity)); empty input yields 1
func MeanQuantity(records []domain.SalesRecord) int {
	if len(records) == 0 {
		return 1
	}
	var total float64
	for _, r := range records {
		total += float64(r.Quantity)
	}
	return floorOne(math.Round(total / float64(len(records))))
}

// floorOne clamps a rounded estimate into [1, domain.MaxQuantity]
func floorOne(v float64) int {
	if v < 1 {
		return 1
	}
	if v > domain.MaxQuantity {
		return domain.MaxQuantity
	}
	return int(v)
}

// quantityScale keeps quantity features and targets near unit range
func quantityScale(records []domain.SalesRecord) float64 {
	scale := 1.0
	for _, r := range records {
		scale = math.Max(scale, float64(r.Quantity))
	}
	return scale
}

func batch(inputs [][]float64, targets []float64, idx []int) (*mat.Dense, []float64) {
	x := mat.NewDense(len(idx), inputSize, nil)
	y := make([]float64, len(idx))
	for r, i := range idx {
		x.SetRow(r, inputs[i])
		y[r] = targets[i]
	}
	return x, y
}

func evaluateLoss(net *network, inputs [][]float64, targets []float64) float64 {
	idx := make([]int, len(inputs))
	for i := range idx {
		idx[i] = i
	}
	x, y := batch(inputs, targets, idx)
	loss, _ := mseLoss(net.forward(x, nil), y)
	return loss
}
