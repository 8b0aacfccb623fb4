package badger

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
)

func newTestRepository(t *testing.T) *ResultRepository {
	repo, err := NewResultRepository(Options{InMemory: true}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewResultRepository() error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newRecord(sessionID, level string, createdAt time.Time) *entities.EvaluationRecord {
	return &entities.EvaluationRecord{
		SessionID: sessionID,
		Result: entities.EvaluationResult{
			Level: level,
			Feedback: entities.Feedback{
				Strengths:  "clear pronunciation",
				Weaknesses: "limited vocabulary",
				Tips:       "read more",
			},
		},
		CreatedAt: createdAt,
	}
}

func TestResultRepository_SaveAndGet(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rec := newRecord("session-1", "B2", created)
	if err := repo.Save(ctx, rec); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if rec.ID == "" {
		t.Error("Expected an ID to be generated")
	}

	got, err := repo.GetBySessionID(ctx, "session-1")
	if err != nil {
		t.Fatalf("GetBySessionID() error: %v", err)
	}
	if got.ID != rec.ID || got.Result != rec.Result {
		t.Errorf("Expected %+v, got %+v", rec, got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("Expected created at %v, got %v", created, got.CreatedAt)
	}

	if err := repo.Save(ctx, newRecord("session-1", "C1", created)); err == nil {
		t.Error("Expected error saving a second result for the same session")
	}
}

func TestResultRepository_Errors(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.GetBySessionID(ctx, "missing"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Errorf("Expected ErrResultNotFound, got %v", err)
	}
	if err := repo.Save(ctx, nil); err == nil {
		t.Error("Expected error for nil record")
	}
	if err := repo.Save(ctx, newRecord("", "B1", time.Now())); err == nil {
		t.Error("Expected error for empty session ID")
	}
	if err := repo.Save(ctx, newRecord("session-x", "", time.Now())); err == nil {
		t.Error("Expected error for incomplete result")
	}

	if _, err := NewResultRepository(Options{}, zaptest.NewLogger(t)); err == nil {
		t.Error("Expected error without a directory")
	}
}

func TestResultRepository_ListRecent(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		if err := repo.Save(ctx, newRecord(id, "A2", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("Save(%s) error: %v", id, err)
		}
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recent))
	}
	if recent[0].SessionID != "s3" || recent[1].SessionID != "s2" {
		t.Errorf("Expected s3, s2 got %s, %s", recent[0].SessionID, recent[1].SessionID)
	}

	all, err := repo.ListRecent(ctx, 0)
	if err != nil {
		t.Fatalf("ListRecent() error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 records, got %d", len(all))
	}
}
