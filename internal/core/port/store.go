package port

import (
	"context"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
)

// EntryStore persists config entries across restarts.
type EntryStore interface {
	List(ctx context.Context) ([]domain.ConfigEntry, error)
	Get(ctx context.Context, id string) (*domain.ConfigEntry, error)
	Save(ctx context.Context, entry domain.ConfigEntry) error
	Delete(ctx context.Context, id string) error
	Close() error
}
