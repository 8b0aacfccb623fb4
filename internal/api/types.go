package api

import "github.com/satriahrh/oralexam/domain/entities"

// ResultsResponse represents a page of recent evaluation results
type ResultsResponse struct {
	Results []*entities.EvaluationRecord `json:"results"`
	Count   int                          `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
