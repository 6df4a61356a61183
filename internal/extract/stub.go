package extract

import (
	"context"
	"errors"
	"strings"
)

// Stub is a deterministic in-memory Extractor for tests and dry runs.
//
// Comments containing "ошибка" or "error" fail with a forced error; comments
// containing "необычн" or "unusual" produce one requirement echoing the text;
// everything else produces an empty extraction.
type Stub struct{}

func (Stub) Extract(_ context.Context, text string) (Extraction, error) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "ошибка") || strings.Contains(lower, "error") {
		return Extraction{}, errors.New("forced error")
	}
	if strings.Contains(lower, "необычн") || strings.Contains(lower, "unusual") {
		category := "сервис"
		return Extraction{Requirements: []UnusualRequirement{{
			Requirement: text,
			Category:    &category,
		}}}, nil
	}
	return Extraction{Requirements: []UnusualRequirement{}}, nil
}
