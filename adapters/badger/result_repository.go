package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/domain/repositories"
)

const (
	resultPrefix  = "result/"
	createdPrefix = "created/"
)

// Options configures the embedded result store
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string
	// InMemory runs without disk persistence, for tests.
	InMemory bool
}

// ResultRepository keeps evaluation results in an embedded BadgerDB.
// Records are msgpack-encoded under result/<session_id>; created/<time>/<session_id>
// keys order them for ListRecent.
type ResultRepository struct {
	db     *badger.DB
	logger *zap.Logger
}

// record is the stored form; msgpack tags keep the encoding independent of Go field names
type record struct {
	ID         string    `msgpack:"id"`
	SessionID  string    `msgpack:"session_id"`
	Level      string    `msgpack:"level"`
	Strengths  string    `msgpack:"strengths"`
	Weaknesses string    `msgpack:"weaknesses"`
	Tips       string    `msgpack:"tips"`
	CreatedAt  time.Time `msgpack:"created_at"`
}

// NewResultRepository opens the store
func NewResultRepository(opts Options, logger *zap.Logger) (*ResultRepository, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("results directory is required")
	}
	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(zapLogger{logger.Sugar()})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}
	logger.Info("Opened result store", zap.String("dir", opts.Dir), zap.Bool("inMemory", opts.InMemory))
	return &ResultRepository{db: db, logger: logger}, nil
}

// Save implements repositories.ResultRepository
func (r *ResultRepository) Save(ctx context.Context, rec *entities.EvaluationRecord) error {
	if rec == nil {
		return errors.New("record cannot be nil")
	}
	if rec.SessionID == "" {
		return errors.New("session ID cannot be empty")
	}
	if err := rec.Result.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	data, err := msgpack.Marshal(toRecord(rec))
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	key := resultKey(rec.SessionID)
	return r.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return errors.New("result for this session already exists")
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(createdKey(rec.CreatedAt, rec.SessionID), []byte(rec.SessionID))
	})
}

// GetBySessionID implements repositories.ResultRepository
func (r *ResultRepository) GetBySessionID(ctx context.Context, sessionID string) (*entities.EvaluationRecord, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	var rec *entities.EvaluationRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = get(txn, sessionID)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, domain.ErrResultNotFound
	}
	return rec, err
}

// ListRecent implements repositories.ResultRepository
func (r *ResultRepository) ListRecent(ctx context.Context, limit int) ([]*entities.EvaluationRecord, error) {
	records := []*entities.EvaluationRecord{}
	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(createdPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the largest key under the prefix.
		seek := append([]byte(createdPrefix), 0xff)
		for it.Seek(seek); it.ValidForPrefix([]byte(createdPrefix)); it.Next() {
			if limit > 0 && len(records) >= limit {
				break
			}
			sessionID, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			rec, err := get(txn, string(sessionID))
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the store
func (r *ResultRepository) Close() error {
	return r.db.Close()
}

func get(txn *badger.Txn, sessionID string) (*entities.EvaluationRecord, error) {
	item, err := txn.Get(resultKey(sessionID))
	if err != nil {
		return nil, err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var stored record
	if err := msgpack.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return stored.toEntity(), nil
}

func resultKey(sessionID string) []byte {
	return []byte(resultPrefix + sessionID)
}

// createdKey sorts by creation time; the timestamp is offset so negative values still order correctly
func createdKey(t time.Time, sessionID string) []byte {
	key := make([]byte, 0, len(createdPrefix)+8+1+len(sessionID))
	key = append(key, createdPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(t.UnixNano())^(1<<63))
	key = append(key, '/')
	return append(key, sessionID...)
}

func toRecord(rec *entities.EvaluationRecord) record {
	return record{
		ID:         rec.ID,
		SessionID:  rec.SessionID,
		Level:      rec.Result.Level,
		Strengths:  rec.Result.Feedback.Strengths,
		Weaknesses: rec.Result.Feedback.Weaknesses,
		Tips:       rec.Result.Feedback.Tips,
		CreatedAt:  rec.CreatedAt,
	}
}

func (r record) toEntity() *entities.EvaluationRecord {
	return &entities.EvaluationRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		Result: entities.EvaluationResult{
			Level: r.Level,
			Feedback: entities.Feedback{
				Strengths:  r.Strengths,
				Weaknesses: r.Weaknesses,
				Tips:       r.Tips,
			},
		},
		CreatedAt: r.CreatedAt,
	}
}

// zapLogger routes badger logs to zap, dropping its info and debug chatter
type zapLogger struct {
	*zap.SugaredLogger
}

func (l zapLogger) Errorf(f string, v ...interface{})   { l.SugaredLogger.Errorf("badger: "+f, v...) }
func (l zapLogger) Warningf(f string, v ...interface{}) { l.SugaredLogger.Warnf("badger: "+f, v...) }
func (l zapLogger) Infof(string, ...interface{})        {}
func (l zapLogger) Debugf(string, ...interface{})       {}

var _ repositories.ResultRepository = (*ResultRepository)(nil)
