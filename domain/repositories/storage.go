package repositories

import (
	"context"

	"github.com/satriahrh/oralexam/domain/entities"
)

// ResultRepository persists final evaluation results
type ResultRepository interface {
	Save(ctx context.Context, record *entities.EvaluationRecord) error
	GetBySessionID(ctx context.Context, sessionID string) (*entities.EvaluationRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*entities.EvaluationRecord, error)
}
