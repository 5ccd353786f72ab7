package store

import (
	"fmt"

	"github.com/berfenger/aurum2mqtt/internal/config"
	"github.com/berfenger/aurum2mqtt/internal/core/domain"
	"github.com/berfenger/aurum2mqtt/internal/core/port"
)

var ErrEntryNotFound = fmt.Errorf("store: %w", domain.ErrUnknownEntry)

// New opens the sqlite store at cfg.Path, or an in-memory one when no path is set.
func New(cfg config.StoreConfig) (port.EntryStore, error) {
	if cfg.Path == "" {
		return NewMemoryStore(), nil
	}
	return NewSQLiteStore(cfg.Path)
}
