package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/shpitdev/unusual-requirements/internal/extract"
)

// Outcome is the result unit for one input record. Exactly one of three
// shapes, distinguished at serialization time:
//
//   - failure:           {number, error}                                (Err != nil)
//   - success-with-text: {number, original_comment, unusual_requirements} (OriginalComment != "")
//   - success-empty:     {number, unusual_requirements: []}
//
// Empty comments never reach the extractor, so OriginalComment is non-empty
// exactly when an extraction ran.
type Outcome struct {
	Number          json.RawMessage
	OriginalComment string
	Requirements    []extract.UnusualRequirement
	Err             error
}

// Failed reports whether this record's extraction failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// MarshalJSON writes the outcome in its wire shape: stable key order, no
// HTML escaping, non-ASCII text literal.
func (o Outcome) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"number":`)
	if len(o.Number) == 0 {
		buf.WriteString("null")
	} else {
		buf.Write(o.Number)
	}

	if o.Err != nil {
		buf.WriteString(`,"error":`)
		if err := encodeNoEscape(&buf, o.Err.Error()); err != nil {
			return nil, err
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	}

	if o.OriginalComment != "" {
		buf.WriteString(`,"original_comment":`)
		if err := encodeNoEscape(&buf, o.OriginalComment); err != nil {
			return nil, err
		}
	}

	requirements := o.Requirements
	if requirements == nil {
		requirements = []extract.UnusualRequirement{}
	}
	buf.WriteString(`,"unusual_requirements":`)
	if err := encodeNoEscape(&buf, requirements); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeNoEscape(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode appends a newline; drop it to keep the object compact.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// ReadRecords parses the uploaded batch: a JSON array of request objects.
// A malformed top-level document is a hard error reported before the
// pipeline starts.
func ReadRecords(r io.Reader) ([]InputRecord, error) {
	var records []InputRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("parse input JSON: %w", err)
	}
	return records, nil
}

// WriteOutcomes exports outcomes as an ordered JSON array with two-space
// indentation, preserving non-ASCII characters and markup literally.
func WriteOutcomes(w io.Writer, outcomes []Outcome) error {
	if outcomes == nil {
		outcomes = []Outcome{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(outcomes)
}
