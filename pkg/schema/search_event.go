package schema

import "github.com/hamba/avro/v2"

const SearchEventSchemaTextV1 = `{
	"type": "record",
	"namespace": "catalog",
	"name": "search_event",
	"fields" : [
		{"name": "query", "type": "string"},
		{"name": "category", "type": "string"},
		{"name": "max_price", "type": ["null", "double"], "default": null},
		{"name": "use_ai", "type": "boolean"},
		{"name": "path", "type": "string"},
		{"name": "fallback", "type": "boolean"},
		{"name": "results", "type": "long"},
		{"name": "elapsed_ms", "type": "long"},
		{"name": "at_ms", "type": "long"}
	]
}`

type SearchEventV1 struct {
	Query     string   `avro:"query"`
	Category  string   `avro:"category"`
	MaxPrice  *float64 `avro:"max_price"`
	UseAI     bool     `avro:"use_ai"`
	Path      string   `avro:"path"`
	Fallback  bool     `avro:"fallback"`
	Results   int64    `avro:"results"`
	ElapsedMs int64    `avro:"elapsed_ms"`
	AtMs      int64    `avro:"at_ms"`
}

// SearchEventV1Avro parses [SearchEventSchemaTextV1]. It panics on an
// invalid schema text.
func SearchEventV1Avro() avro.Schema {
	return avro.MustParse(SearchEventSchemaTextV1)
}
