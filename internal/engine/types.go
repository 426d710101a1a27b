package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Permission is a dataset-level capability.
type Permission string

const (
	PermRead   Permission = "read"
	PermWrite  Permission = "write"
	PermDelete Permission = "delete"
	PermShare  Permission = "share"
)

// ParsePermission normalizes and validates a permission name.
func ParsePermission(s string) (Permission, error) {
	p := Permission(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PermRead, PermWrite, PermDelete, PermShare:
		return p, nil
	}
	return "", E("parse_permission", KindInvalidInput, fmt.Errorf("unknown permission %q", s))
}

// SearchType selects the retrieval strategy.
type SearchType string

const (
	SearchGraphCompletion SearchType = "GRAPH_COMPLETION"
	SearchRAGCompletion   SearchType = "RAG_COMPLETION"
	SearchChunks          SearchType = "CHUNKS"
	SearchSummaries       SearchType = "SUMMARIES"
	SearchInsights        SearchType = "INSIGHTS"
)

// NewUser carries the fields needed to register an account.
type NewUser struct {
	Email      string
	Password   string
	IsVerified bool
	IsActive   bool
}

type User struct {
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
}

type Tenant struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

type Role struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

type Dataset struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	OwnerID uuid.UUID `json:"owner_id"`
}

// SearchRequest scopes a query to datasets. TopK <= 0 lets the engine decide.
type SearchRequest struct {
	Type       SearchType
	Query      string
	DatasetIDs []uuid.UUID
	TopK       int
}

// SearchResult is one per-dataset answer record.
type SearchResult struct {
	DatasetID    uuid.UUID `json:"dataset_id"`
	DatasetName  string    `json:"dataset_name"`
	SearchResult []string  `json:"search_result"`
}
