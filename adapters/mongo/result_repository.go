package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

const resultsCollection = "evaluation_results"

// ErrResultNotFound is returned when no result exists for a session
var ErrResultNotFound = domain.ErrResultNotFound

// ResultRepository implements repositories.ResultRepository on MongoDB
type ResultRepository struct {
	collection *mongo.Collection
}

// NewResultRepository creates a new MongoDB result repository
func NewResultRepository(db *mongo.Database) *ResultRepository {
	return &ResultRepository{
		collection: db.Collection(resultsCollection),
	}
}

// EnsureIndexes creates the lookup indexes used by the repository
func (r *ResultRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create result indexes: %w", err)
	}
	return nil
}

// Save implements repositories.ResultRepository
func (r *ResultRepository) Save(ctx context.Context, record *entities.EvaluationRecord) error {
	if record == nil {
		return errors.New("record cannot be nil")
	}
	if record.ID == "" || record.SessionID == "" {
		return errors.New("record ID and session ID are required")
	}
	if err := record.Result.Validate(); err != nil {
		return err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if _, err := r.collection.InsertOne(ctx, record); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// GetBySessionID implements repositories.ResultRepository
func (r *ResultRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.EvaluationRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var record entities.EvaluationRecord
	err := r.collection.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("failed to get result for session %s: %w", sessionID, err)
	}
	return &record, nil
}

// ListRecent implements repositories.ResultRepository
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]*entities.EvaluationRecord, error) {
	if limit <= 0 {
		return []*entities.EvaluationRecord{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer cursor.Close(ctx)

	records := []*entities.EvaluationRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode results: %w", err)
	}
	return records, nil
}

var _ repositories.ResultRepository = (*ResultRepository)(nil)
