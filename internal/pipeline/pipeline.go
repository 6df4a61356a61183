// Package pipeline drives batch extraction: for each input record it
// normalizes the comment, invokes the extractor, and yields one outcome,
// isolating failures to individual records.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"iter"

	"github.com/shpitdev/unusual-requirements/internal/extract"
	"github.com/shpitdev/unusual-requirements/internal/normalize"
)

// DefaultMaxRecords bounds one batch. Records past the cap are silently
// ignored.
const DefaultMaxRecords = 500

// InputRecord is one travel request from the uploaded batch.
//
// Number is an opaque identifier carried through unchanged, whatever its
// JSON type. Comment is free text that may contain HTML-like markup; it is
// kept raw so that a malformed value fails one record, never the batch.
type InputRecord struct {
	Number  json.RawMessage `json:"number"`
	Comment json.RawMessage `json:"Comment"`
}

// CommentText decodes the comment. Absent and null comments are empty text.
func (r InputRecord) CommentText() (string, error) {
	if len(r.Comment) == 0 || string(r.Comment) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(r.Comment, &s); err != nil {
		return "", errors.New("comment is not a string")
	}
	return s, nil
}

type Options struct {
	// MaxRecords caps how many records one run considers. <=0 means
	// DefaultMaxRecords.
	MaxRecords int
}

func (o Options) withDefaults() Options {
	if o.MaxRecords <= 0 {
		o.MaxRecords = DefaultMaxRecords
	}
	return o
}

// Pipeline holds the immutable per-run configuration.
type Pipeline struct {
	extractor  extract.Extractor
	maxRecords int
}

func New(extractor extract.Extractor, opts Options) *Pipeline {
	opts = opts.withDefaults()
	return &Pipeline{
		extractor:  extractor,
		maxRecords: opts.MaxRecords,
	}
}

// MaxRecords reports the per-run record cap.
func (p *Pipeline) MaxRecords() int { return p.maxRecords }

// Run yields one Outcome per considered record, lazily and in input order.
//
// Records are processed strictly one at a time: each outcome is computed and
// handed to the consumer before the next record begins, so a consumer can
// display results incrementally, and stopping early issues no further
// extractor calls. The sequence is finite and single-use; re-running requires
// calling Run again with the original input.
func (p *Pipeline) Run(ctx context.Context, records []InputRecord) iter.Seq[Outcome] {
	limit := len(records)
	if limit > p.maxRecords {
		limit = p.maxRecords
	}
	return func(yield func(Outcome) bool) {
		for _, rec := range records[:limit] {
			if !yield(p.processRecord(ctx, rec)) {
				return
			}
		}
	}
}

// processRecord converts every per-record error into a failure outcome; only
// pre-batch structural problems ever surface as hard errors.
func (p *Pipeline) processRecord(ctx context.Context, rec InputRecord) Outcome {
	comment, err := rec.CommentText()
	if err != nil {
		return Outcome{Number: rec.Number, Err: err}
	}
	if comment == "" {
		// No extraction attempted for empty or absent comments.
		return Outcome{Number: rec.Number, Requirements: []extract.UnusualRequirement{}}
	}

	cleaned := normalize.CleanHTML(comment)
	result, err := p.extractor.Extract(ctx, cleaned)
	if err != nil {
		return Outcome{Number: rec.Number, Err: err}
	}

	requirements := result.Requirements
	if requirements == nil {
		requirements = []extract.UnusualRequirement{}
	}
	return Outcome{
		Number:          rec.Number,
		OriginalComment: comment,
		Requirements:    requirements,
	}
}
