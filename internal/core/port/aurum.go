package port

import (
	"context"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
)

// AurumClient is the read side of a Meetstekker.
type AurumClient interface {
	Connect(ctx context.Context) (bool, error)
	UpdateData(ctx context.Context) error
	GetAurumData() domain.NumberedPayload
}

type AurumClientFactory func(host string) AurumClient
