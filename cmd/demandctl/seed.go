package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/events"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
	"github.com/DaDevFox/task-systems/demand-core/internal/service"
)

type seedItem struct {
	Name     string
	Category domain.Category
}

var seedItems = []seedItem{
	{Name: "Sofa", Category: domain.CategoryLivingRoom},
	{Name: "Bed", Category: domain.CategoryBedroom},
	{Name: "Dining Table", Category: domain.CategoryDiningRoom},
	{Name: "Office Chair", Category: domain.CategoryOffice},
}

func newSeedCommand() *cobra.Command {
	var (
		user    string
		records int
		seed    int64
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create one item per category and record test sales for it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if user == "" {
				return fmt.Errorf("--user is required")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			store, err := repository.NewStore(cfg.Database.Path, cfg.Database.Type, logger)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			svc := newSeedService(store, logger)
			return runSeed(cmd.Context(), cmd.OutOrStdout(), svc, user, records, rand.New(rand.NewSource(seed)), time.Now().UTC())
		},
	}

	cmd.Flags().StringVarP(&user, "user", "u", "test-user", "User the items and sales belong to")
	cmd.Flags().IntVar(&records, "records", 6, "Sales records per item")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "Seed for random quantities")

	return cmd
}

func newSeedService(store repository.Store, logger *logrus.Logger) *service.ForecastService {
	registry := prediction.NewRegistry(prediction.DefaultModelConfig(), store, logger)
	predictor := prediction.NewPredictionService(registry, store, prediction.DefaultTrainTimeout, logger)
	return service.NewForecastService(store, predictor, events.NewEventBus("demandctl", logger), service.DefaultHorizon, logger)
}

// runSeed creates the seed items and spreads records sales per item over recent
// months, on the 1st and 15th, with quantities between 1 and 3
func runSeed(ctx context.Context, out io.Writer, svc *service.ForecastService, user string, records int, rng *rand.Rand, now time.Time) error {
	for _, si := range seedItems {
		item, err := svc.CreateItem(ctx, &domain.InventoryItem{
			UserID:       user,
			Name:         si.Name,
			Category:     si.Category,
			Quantity:     10 + rng.Intn(20),
			ReorderPoint: 5,
		})
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", si.Name, err)
		}

		for i := 0; i < records; i++ {
			month := now.AddDate(0, -i/2, 0)
			date := time.Date(month.Year(), month.Month(), 1+(i%2)*14, 12, 0, 0, 0, time.UTC)

			if _, err := svc.RecordSale(ctx, &domain.SalesRecord{
				ItemID:   item.ID,
				UserID:   user,
				Quantity: 1 + rng.Intn(3),
				Date:     date,
			}); err != nil {
				return fmt.Errorf("failed to record sale for %s: %w", si.Name, err)
			}
		}

		fmt.Fprintf(out, "Added %d sales for %s (%s, ID: %s)\n", records, item.Name, item.Category, item.ID)
	}
	return nil
}
