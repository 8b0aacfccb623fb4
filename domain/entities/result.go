package entities

import (
	"errors"
	"strings"
	"time"
)

// Feedback is the qualitative part of an evaluation
type Feedback struct {
	Strengths  string `json:"strengths" bson:"strengths"`
	Weaknesses string `json:"weaknesses" bson:"weaknesses"`
	Tips       string `json:"tips" bson:"tips"`
}

// EvaluationResult is the structured outcome reported by the model at the end of a session
type EvaluationResult struct {
	Level    string   `json:"level" bson:"level"`
	Feedback Feedback `json:"feedback" bson:"feedback"`
}

// Validate checks that every field of the result is present
func (r EvaluationResult) Validate() error {
	if strings.TrimSpace(r.Level) == "" {
		return errors.New("level is required")
	}
	if strings.TrimSpace(r.Feedback.Strengths) == "" {
		return errors.New("feedback.strengths is required")
	}
	if strings.TrimSpace(r.Feedback.Weaknesses) == "" {
		return errors.New("feedback.weaknesses is required")
	}
	if strings.TrimSpace(r.Feedback.Tips) == "" {
		return errors.New("feedback.tips is required")
	}
	return nil
}

// EvaluationRecord is the persisted form of an EvaluationResult
type EvaluationRecord struct {
	ID        string           `json:"id" bson:"_id"`
	SessionID string           `json:"session_id" bson:"session_id"`
	Result    EvaluationResult `json:"result" bson:"result"`
	CreatedAt time.Time        `json:"created_at" bson:"created_at"`
}
