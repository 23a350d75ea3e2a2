package repository

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// DatabaseType represents different database backend options
type DatabaseType string

const (
	DatabaseTypeBadger DatabaseType = "badger"
	DatabaseTypeBolt   DatabaseType = "bolt"
	DatabaseTypeMemory DatabaseType = "memory"
)

// NewStore creates a store with the specified database type
//
// Database Types:
// - badger: High-performance LSM-tree database (default), but creates large .vlog files
// - bolt: Compact B+ tree database, much smaller files, good for smaller datasets
// - memory: BadgerDB in memory only, nothing survives a restart
func NewStore(dbPath string, dbType DatabaseType, logger *logrus.Logger) (Store, error) {
	switch dbType {
	case DatabaseTypeBolt:
		// Use .bolt extension for BoltDB files
		if !strings.HasSuffix(dbPath, ".bolt") {
			dbPath = dbPath + ".bolt"
		}
		return NewBoltRepository(dbPath, logger)

	case DatabaseTypeBadger, "":
		// BadgerDB uses directory-based storage
		return NewBadgerRepository(dbPath, logger)

	case DatabaseTypeMemory:
		return NewInMemoryRepository(logger)

	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// GetDatabaseInfo returns information about the different database options
func GetDatabaseInfo() map[DatabaseType]string {
	return map[DatabaseType]string{
		DatabaseTypeBadger: "High-performance LSM-tree database. Fast for writes and large datasets, but creates large .vlog files. Good for high-throughput deployments.",
		DatabaseTypeBolt:   "Compact B+ tree database. Single small file. Good for a single shop or embedded use.",
		DatabaseTypeMemory: "In-memory BadgerDB. Data is lost on restart. Good for demos and tests.",
	}
}
