package storage

import (
	"context"
	"log/slog"

	"github.com/stacklok/seatwatch/internal/store"
	"github.com/stacklok/seatwatch/internal/store/inmemory"
)

// MemoryFactory creates an in-process store. Records are lost on restart.
type MemoryFactory struct {
	store *inmemory.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a memory-backed storage factory
func NewMemoryFactory() *MemoryFactory {
	slog.Info("Creating memory-backed storage factory")
	return &MemoryFactory{store: inmemory.New()}
}

// CreateStore returns the in-memory store
func (m *MemoryFactory) CreateStore(_ context.Context) (store.Store, error) {
	return m.store, nil
}

// Cleanup is a no-op
func (*MemoryFactory) Cleanup() {}
