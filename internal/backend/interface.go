package backend

import (
	"context"
	"time"

	"custfin/internal/amqp"
	"custfin/internal/cache"
	"custfin/internal/services"
	"custfin/internal/store"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is a ready finance service with the resources behind it.
type BackendResult struct {
	Store   store.Store
	Service *services.FinanceService
	// Events is nil when AMQP is not configured or unreachable.
	Events *amqp.Client
	Caches *cache.Manager
	// Ping checks the backing store; it always succeeds for memory.
	Ping    func(context.Context) error
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

	// Seed directory: the memory store is loaded from it, and an empty
	// SQLite database is imported from it.
	DataDirectory string

	// AMQP is optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	CacheTTL time.Duration
	Location *time.Location
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
