package prediction

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// snapshotVersion is bumped whenever the stored layout changes
const snapshotVersion = 1

type modelSnapshot struct {
	Version   int             `json:"version"`
	Scale     float64         `json:"scale"`
	Samples   int             `json:"samples"`
	TrainedAt time.Time       `json:"trained_at"`
	Layers    []layerSnapshot `json:"layers"`
}

// MarshalSnapshot serialises a trained model's parameters as a versioned blob
func (m *Model) MarshalSnapshot() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.trained {
		return nil, ErrModelNotTrained
	}

	return json.Marshal(modelSnapshot{
		Version:   snapshotVersion,
		Scale:     m.scale,
		Samples:   m.samples,
		TrainedAt: m.trainedAt,
		Layers:    m.net.snapshot(),
	})
}

// RestoreModel rebuilds a trained model from MarshalSnapshot output
func RestoreModel(data []byte, config ModelConfig, logger *logrus.Logger) (*Model, error) {
	var snap modelSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode model snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported model snapshot version %d", snap.Version)
	}
	if snap.Scale < 1 {
		return nil, fmt.Errorf("invalid model snapshot scale %v", snap.Scale)
	}

	net, err := networkFromSnapshot(snap.Layers, config.Dropout)
	if err != nil {
		return nil, err
	}

	m := NewModel(config, logger)
	m.net = net
	m.scale = snap.Scale
	m.samples = snap.Samples
	m.trainedAt = snap.TrainedAt
	m.trained = true
	return m, nil
}
