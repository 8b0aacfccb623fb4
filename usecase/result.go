package usecase

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/satriahrh/oralexam/domain"
	"github.com/satriahrh/oralexam/domain/entities"
	"github.com/satriahrh/oralexam/internal/live"
)

// ResultExtractor turns a report_result call into an EvaluationResult
type ResultExtractor struct {
	schema *jsonschema.Resolved
	logger *zap.Logger
}

// NewResultExtractor resolves the report_result schema once
func NewResultExtractor(logger *zap.Logger) (*ResultExtractor, error) {
	schema, err := live.ReportResultSchema()
	if err != nil {
		return nil, err
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", live.ReportResultName, err)
	}
	return &ResultExtractor{schema: resolved, logger: logger}, nil
}

// Matches reports whether call is the structured result invocation
func (x *ResultExtractor) Matches(call *genai.FunctionCall) bool {
	return call != nil && call.Name == live.ReportResultName
}

// Extract validates the call arguments. Every failure is a *domain.MalformedResultError.
func (x *ResultExtractor) Extract(call *genai.FunctionCall) (*entities.EvaluationResult, error) {
	if !x.Matches(call) {
		return nil, &domain.MalformedResultError{Err: errors.New("not a report_result call")}
	}
	if call.Args == nil {
		return nil, &domain.MalformedResultError{Err: errors.New("arguments are missing")}
	}

	instance := map[string]any(call.Args)
	if err := x.schema.Validate(instance); err != nil {
		return nil, &domain.MalformedResultError{Err: err}
	}

	raw, err := json.Marshal(instance)
	if err != nil {
		return nil, &domain.MalformedResultError{Err: err}
	}
	var args live.ReportResultArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, &domain.MalformedResultError{Err: err}
	}

	result := &entities.EvaluationResult{
		Level: args.Level,
		Feedback: entities.Feedback{
			Strengths:  args.Feedback.Strengths,
			Weaknesses: args.Feedback.Weaknesses,
			Tips:       args.Feedback.Tips,
		},
	}
	if err := result.Validate(); err != nil {
		return nil, &domain.MalformedResultError{Err: err}
	}

	x.logger.Info("Evaluation result extracted",
		zap.String("callID", call.ID),
		zap.String("level", result.Level))
	return result, nil
}
