package httphandler

import "encoding/json"

type Product struct {
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	Rating      float64 `json:"rating"`
	Description string  `json:"description"`
}

// SearchRequest is the smart search body. MaxPrice and UseAI stay loosely
// typed: clients send numbers, strings, null or nothing at all. UseAI is
// kept raw so an absent flag differs from an explicit null.
type SearchRequest struct {
	Query    string          `json:"query"`
	Category string          `json:"category"`
	MaxPrice any             `json:"max_price"`
	UseAI    json.RawMessage `json:"use_ai"`
}
