package adapters

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
)

// ErrResultNotFound is returned when no result exists for a session
var ErrResultNotFound = domain.ErrResultNotFound

// MemoryResultRepository keeps evaluation results in process memory.
// It is used when no MongoDB URI is configured.
type MemoryResultRepository struct {
	mu        sync.RWMutex
	records   map[string]*entities.EvaluationRecord // id -> record
	bySession map[string]*entities.EvaluationRecord // session_id -> record
}

// NewMemoryResultRepository creates an empty repository
func NewMemoryResultRepository() *MemoryResultRepository {
	return &MemoryResultRepository{
		records:   make(map[string]*entities.EvaluationRecord),
		bySession: make(map[string]*entities.EvaluationRecord),
	}
}

// Save implements repositories.ResultRepository
func (m *MemoryResultRepository) Save(ctx context.Context, record *entities.EvaluationRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if record.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if err := record.Result.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.bySession[record.SessionID]; exists {
		return errors.New("result for this session already exists")
	}

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	recordCopy := *record
	m.records[record.ID] = &recordCopy
	m.bySession[record.SessionID] = &recordCopy
	return nil
}

// GetBySessionID implements repositories.ResultRepository
func (m *MemoryResultRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.EvaluationRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	record, exists := m.bySession[sessionID]
	if !exists {
		return nil, ErrResultNotFound
	}

	recordCopy := *record
	return &recordCopy, nil
}

// ListRecent implements repositories.ResultRepository
func (m *MemoryResultRepository) ListRecent(ctx context.Context, limit int) ([]*entities.EvaluationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*entities.EvaluationRecord, 0, len(m.records))
	for _, record := range m.records {
		recordCopy := *record
		result = append(result, &recordCopy)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if limit < 0 {
		limit = 0
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
