package ports

import (
	"context"

	"github.com/practicebynumbers/portal/internal/core/domain"
)

// DecisionJournal records approve/reject attempts.
type DecisionJournal interface {
	Record(ctx context.Context, d domain.Decision) error
}

// DecisionRepository is the persistent side of the journal.
type DecisionRepository interface {
	Insert(ctx context.Context, d domain.Decision) error
	Recent(ctx context.Context, limit int) ([]domain.Decision, error)
}
