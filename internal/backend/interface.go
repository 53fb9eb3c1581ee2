package backend

import (
	"context"
	"time"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the wired application core: a transaction service over a
// live store, the aggregate engine reading from the same store and the cache
// backing GetByID.
type BackendResult struct {
	Service *services.TransactionService
	Engine  *aggregate.Engine
	Cache   *cache.LRUCache[core.Transaction]
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Location days start in and timestamps are stored in.
	Location *time.Location

	// Optional change events
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	DefaultCurrency string
	CacheSize       int
	CacheTTL        time.Duration

	// Clock overrides time.Now for the aggregate engine.
	Clock func() time.Time
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
