package ports

import (
	"context"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// InflightGuard makes sure at most one mutation per request identity is in
// flight, across every portal replica.
type InflightGuard interface {
	// Acquire returns false when another mutation of ref is already running.
	Acquire(ctx context.Context, ref domain.RequestRef) (bool, error)
	Release(ctx context.Context, ref domain.RequestRef) error
}
