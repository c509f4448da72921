// Package dto provides Data Transfer Objects for API requests/responses.
package dto

import (
	"costledger/internal/core/apperror"
	"costledger/internal/core/id"
)

// --- ID Response ---

// IDResponse for create operations.
type IDResponse struct {
	ID string `json:"id"`
}

// NewIDResponse creates ID response.
func NewIDResponse(i id.ID) IDResponse {
	return IDResponse{ID: i.String()}
}

// --- List Response ---

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse never returns a null items array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

// --- Error Response ---

// ErrorResponse for error details.
type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// parseIDs parses optional id strings, naming the field in the validation error.
func parseIDs(field string, values []string) ([]id.ID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids, err := id.ParseAll(values)
	if err != nil {
		return nil, apperror.NewValidation("invalid "+field).WithDetail("field", field)
	}
	return ids, nil
}

func parseOptionalID(field, value string) (*id.ID, error) {
	if value == "" {
		return nil, nil
	}
	v, err := id.Parse(value)
	if err != nil {
		return nil, apperror.NewValidation("invalid "+field).WithDetail("field", field)
	}
	return &v, nil
}
