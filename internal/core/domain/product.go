package domain

import (
	"errors"
	"time"
)

var (
	// ErrConfig marks failures that must stop the application at startup,
	// e.g. an unreadable or invalid catalog source.
	ErrConfig = errors.New("invalid configuration")

	// ErrProvider marks any failure of the text generation provider,
	// including unusable responses. It never reaches the API caller.
	ErrProvider = errors.New("provider failure")
)

// A Product is the immutable catalog record. Name is the identity key.
type Product struct {
	Name        string
	Category    string
	Price       float64
	Rating      float64
	Description string
}

type SearchRequest struct {
	Query    string
	Category string
	MaxPrice *float64
	UseAI    bool
}

// Constraints are derived from query text. Nil pointers and an empty
// Category mean the constraint is absent.
type Constraints struct {
	MaxPrice  *float64
	MinPrice  *float64
	MinRating *float64
	Category  string
}

// Structural reports whether any price, rating or category constraint
// was detected.
func (c Constraints) Structural() bool {
	return c.MaxPrice != nil ||
		c.MinPrice != nil ||
		c.MinRating != nil ||
		c.Category != ""
}

type SearchPath string

const (
	SearchPathCatalog SearchPath = "catalog"
	SearchPathAI      SearchPath = "ai"
	SearchPathLocal   SearchPath = "local"
)

type SearchEvent struct {
	Query    string
	Category string
	MaxPrice *float64
	UseAI    bool
	Path     SearchPath
	Fallback bool
	Results  int
	Elapsed  time.Duration
	At       time.Time
}
