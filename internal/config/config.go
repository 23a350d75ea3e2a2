package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
)

// Config represents the full application configuration surface.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Logging    LoggingConfig
	Prediction PredictionConfig
	Reconcile  ReconcileConfig
}

// ServerConfig holds listener ports.
type ServerConfig struct {
	HTTPPort string
	GRPCPort string
}

// DatabaseConfig selects the store backend.
type DatabaseConfig struct {
	Path string
	Type repository.DatabaseType
}

// LoggingConfig controls logrus output.
type LoggingConfig struct {
	Level  string
	Format string
}

// PredictionConfig tunes model training and prediction bookkeeping.
type PredictionConfig struct {
	Epochs        int
	LearningRate  float64
	TrainTimeout  time.Duration
	Horizon       time.Duration
	Seed          int64
	PersistModels bool
}

// ReconcileConfig holds scheduler settings. An empty schedule disables the job.
type ReconcileConfig struct {
	Schedule string
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// a missing .env is fine when the environment is set directly
		_ = godotenv.Load()
	}

	defaults := prediction.DefaultModelConfig()
	cfg := &Config{
		Server: ServerConfig{
			HTTPPort: getenvWithDefault("DEMAND_HTTP_PORT", "8080"),
			GRPCPort: getenvWithDefault("DEMAND_GRPC_PORT", "50053"),
		},
		Database: DatabaseConfig{
			Path: getenvWithDefault("DEMAND_DB_PATH", "./data/demand.db"),
			Type: repository.DatabaseType(getenvWithDefault("DEMAND_DB_TYPE", string(repository.DatabaseTypeBadger))),
		},
		Logging: LoggingConfig{
			Level:  getenvWithDefault("LOG_LEVEL", "info"),
			Format: getenvWithDefault("LOG_FORMAT", "json"),
		},
		Reconcile: ReconcileConfig{
			Schedule: getenvWithDefault("RECONCILE_SCHEDULE", "@hourly"),
		},
	}

	var err error
	p := &cfg.Prediction
	if p.Epochs, err = getenvInt("PREDICTION_EPOCHS", defaults.Epochs); err != nil {
		return nil, err
	}
	if p.LearningRate, err = getenvFloat("PREDICTION_LEARNING_RATE", defaults.LearningRate); err != nil {
		return nil, err
	}
	if p.TrainTimeout, err = getenvDuration("PREDICTION_TRAIN_TIMEOUT", prediction.DefaultTrainTimeout); err != nil {
		return nil, err
	}
	if p.Horizon, err = getenvDuration("PREDICTION_HORIZON", 30*24*time.Hour); err != nil {
		return nil, err
	}
	seed, err := getenvInt("PREDICTION_SEED", int(defaults.Seed))
	if err != nil {
		return nil, err
	}
	p.Seed = int64(seed)
	if p.PersistModels, err = getenvBool("PERSIST_MODELS", true); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that configuration values are usable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	for name, port := range map[string]string{"DEMAND_HTTP_PORT": c.Server.HTTPPort, "DEMAND_GRPC_PORT": c.Server.GRPCPort} {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("%s must be a port number, got %q", name, port)
		}
	}

	switch c.Database.Type {
	case repository.DatabaseTypeBadger, repository.DatabaseTypeBolt:
		if c.Database.Path == "" {
			return errors.New("DEMAND_DB_PATH must be provided")
		}
	case repository.DatabaseTypeMemory:
	default:
		return fmt.Errorf("DEMAND_DB_TYPE %q is not one of badger, bolt, memory", c.Database.Type)
	}

	switch {
	case c.Prediction.Epochs <= 0:
		return errors.New("PREDICTION_EPOCHS must be positive")
	case c.Prediction.LearningRate <= 0:
		return errors.New("PREDICTION_LEARNING_RATE must be positive")
	case c.Prediction.TrainTimeout <= 0:
		return errors.New("PREDICTION_TRAIN_TIMEOUT must be positive")
	case c.Prediction.Horizon <= 0:
		return errors.New("PREDICTION_HORIZON must be positive")
	}

	if c.Reconcile.Schedule != "" {
		if _, err := cron.ParseStandard(c.Reconcile.Schedule); err != nil {
			return fmt.Errorf("RECONCILE_SCHEDULE is invalid: %w", err)
		}
	}

	return nil
}

// ModelConfig returns the network settings with the configured overrides applied
func (c *Config) ModelConfig() prediction.ModelConfig {
	mc := prediction.DefaultModelConfig()
	mc.Epochs = c.Prediction.Epochs
	mc.LearningRate = c.Prediction.LearningRate
	mc.Seed = c.Prediction.Seed
	return mc
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func getenvFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return v, nil
}

func getenvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration such as 10s or 720h: %w", key, err)
	}
	return v, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be true or false: %w", key, err)
	}
	return v, nil
}
