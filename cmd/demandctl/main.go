package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/DaDevFox/task-systems/demand-core/internal/config"
	"github.com/DaDevFox/task-systems/demand-core/internal/logging"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
)

var (
	envFile  string
	dbPath   string
	dbType   string
	logLevel string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "demandctl",
		Short:        "Operator tooling for demand-core",
		Long:         "Seed test sales into a demand-core store and evaluate the demand model on synthetic history",
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load before reading flags")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Database path (defaults to DEMAND_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&dbType, "db-type", "", "Database type:\n"+databaseTypesHelp())
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")

	rootCmd.AddCommand(newSeedCommand())
	rootCmd.AddCommand(newEvaluateCommand())

	return rootCmd
}

func databaseTypesHelp() string {
	info := repository.GetDatabaseInfo()
	types := make([]string, 0, len(info))
	for t := range info {
		types = append(types, string(t))
	}
	sort.Strings(types)

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "  %s: %s\n", t, info[repository.DatabaseType(t)])
	}
	return b.String()
}

func newLogger() *logrus.Logger {
	return logging.New(logLevel, "text")
}

// loadConfig applies the command line overrides on top of the environment
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dbType != "" {
		cfg.Database.Type = repository.DatabaseType(dbType)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
