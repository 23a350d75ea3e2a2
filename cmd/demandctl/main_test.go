package main

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestSeasonalSales(t *testing.T) {
	now := time.Date(2024, time.December, 10, 0, 0, 0, 0, time.UTC)
	sales := seasonalSales(rand.New(rand.NewSource(1)), domain.CategoryLivingRoom, 12, now)

	require.Len(t, sales, 12)
	assert.Equal(t, now, sales[0].Date)
	assert.Equal(t, now.AddDate(0, -11, 0), sales[11].Date)
	for _, s := range sales {
		assert.GreaterOrEqual(t, s.Quantity, 1)
		assert.LessOrEqual(t, s.Quantity, 8)
	}
}

func TestRunSeed(t *testing.T) {
	store, err := repository.NewInMemoryRepository(quietLogger())
	require.NoError(t, err)
	defer store.Close()

	var out bytes.Buffer
	now := time.Date(2024, time.June, 20, 0, 0, 0, 0, time.UTC)
	svc := newSeedService(store, quietLogger())
	require.NoError(t, runSeed(t.Context(), &out, svc, "test-user", 6, rand.New(rand.NewSource(7)), now))

	items, err := store.ListItems(t.Context(), "test-user")
	require.NoError(t, err)
	require.Len(t, items, len(seedItems))

	sales, err := store.ListSalesByUser(t.Context(), "test-user")
	require.NoError(t, err)
	assert.Len(t, sales, 6*len(seedItems))
	for _, s := range sales {
		assert.GreaterOrEqual(t, s.Quantity, 1)
		assert.LessOrEqual(t, s.Quantity, 3)
		assert.Contains(t, []int{1, 15}, s.Date.Day())
	}
	assert.Contains(t, out.String(), "Office Chair")
}

func TestRunEvaluate(t *testing.T) {
	config := prediction.DefaultModelConfig()
	config.Epochs = 10
	config.LogEvery = 0

	var out bytes.Buffer
	require.NoError(t, runEvaluate(t.Context(), &out, config, 12, rand.New(rand.NewSource(3)), quietLogger()))

	for _, category := range domain.Categories() {
		assert.Contains(t, out.String(), "Category: "+string(category))
	}
	assert.Contains(t, out.String(), "Accuracy:")
}

func TestRootCommandListsDatabaseTypes(t *testing.T) {
	root := newRootCommand()
	flag := root.PersistentFlags().Lookup("db-type")
	require.NotNil(t, flag)
	for dbType := range repository.GetDatabaseInfo() {
		assert.Contains(t, flag.Usage, string(dbType))
	}

	seed, _, err := root.Find([]string{"seed"})
	require.NoError(t, err)
	assert.Equal(t, "seed", seed.Name())
}
