// Package extract defines the requirement-extraction contract: one normalized
// booking comment in, a structured list of unusual requirements out.
package extract

import (
	"context"
)

// UnusualRequirement is one extracted non-standard client ask.
type UnusualRequirement struct {
	Requirement string  `json:"requirement"`
	Category    *string `json:"category"`
}

// Extraction is the ordered result for one comment. An empty Requirements
// list is a valid, expected result when nothing unusual is found.
type Extraction struct {
	Requirements []UnusualRequirement `json:"unusual_requirements"`
}

// Extractor produces an Extraction for one normalized comment.
//
// Implementations are blocking external calls: no in-process caching, no
// retries. Any failure (network, schema validation, auth, quota) is returned
// to the caller as-is; per-record recovery is the pipeline's job.
type Extractor interface {
	Extract(ctx context.Context, text string) (Extraction, error)
}

// ExtractFunc adapts a function to the Extractor interface.
type ExtractFunc func(ctx context.Context, text string) (Extraction, error)

func (f ExtractFunc) Extract(ctx context.Context, text string) (Extraction, error) {
	return f(ctx, text)
}
