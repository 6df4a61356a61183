// Package gemini implements the requirement Extractor on the Gemini API with
// a structured-output schema.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/shpitdev/unusual-requirements/internal/extract"
)

type Config struct {
	APIKey string
	Model  string

	// BaseURL overrides the Gemini API base URL. Useful for proxies/testing.
	BaseURL string

	// Prompt renders the per-comment instruction. Nil uses the built-in
	// Russian template.
	Prompt *extract.Prompt

	// Temperature is the sampling temperature. Nil pins it to 0 for maximum
	// repeatability (bit-exact reproducibility is still not guaranteed).
	Temperature *float32

	// RateLimitRPS caps outgoing extraction calls globally. Set to <=0 to
	// disable. This belongs to the external-call configuration, not the
	// pipeline: the pipeline itself stays strictly sequential.
	RateLimitRPS float64
}

type Extractor struct {
	client      *genai.Client
	model       string
	prompt      *extract.Prompt
	temperature float32
	limiter     *rate.Limiter
}

func New(ctx context.Context, cfg Config) (*Extractor, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("GEMINI_MODEL is required")
	}

	cc := &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		cc.HTTPOptions.BaseURL = strings.TrimSpace(cfg.BaseURL)
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	prompt := cfg.Prompt
	if prompt == nil {
		prompt = extract.DefaultPrompt()
	}
	var temperature float32
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), 1)
	}

	return &Extractor{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		prompt:      prompt,
		temperature: temperature,
		limiter:     limiter,
	}, nil
}

var extractionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"unusual_requirements": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"requirement": {Type: genai.TypeString},
					"category":    {Type: genai.TypeString, Nullable: genai.Ptr(true)},
				},
				Required: []string{"requirement"},
			},
		},
	},
	Required: []string{"unusual_requirements"},
}

// Extract issues one blocking structured-output call. No retries: failures
// propagate to the caller, which records them per-record.
func (e *Extractor) Extract(ctx context.Context, text string) (extract.Extraction, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return extract.Extraction{}, err
		}
	}

	instruction, err := e.prompt.Render(text)
	if err != nil {
		return extract.Extraction{}, err
	}

	resp, err := e.client.Models.GenerateContent(
		ctx,
		e.model,
		genai.Text(instruction),
		&genai.GenerateContentConfig{
			CandidateCount:   1,
			Temperature:      genai.Ptr(e.temperature),
			ResponseMIMEType: "application/json",
			ResponseSchema:   extractionSchema,
		},
	)
	if err != nil {
		return extract.Extraction{}, err
	}

	return parseExtraction(resp.Text())
}

type parsedRequirement struct {
	Requirement string  `json:"requirement"`
	Category    *string `json:"category"`
}

type parsedExtraction struct {
	UnusualRequirements []parsedRequirement `json:"unusual_requirements"`
}

func parseExtraction(raw string) (extract.Extraction, error) {
	var parsed parsedExtraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return extract.Extraction{}, fmt.Errorf("gemini: parse structured json: %w", err)
	}

	out := extract.Extraction{
		Requirements: make([]extract.UnusualRequirement, 0, len(parsed.UnusualRequirements)),
	}
	for _, r := range parsed.UnusualRequirements {
		requirement := strings.TrimSpace(r.Requirement)
		if requirement == "" {
			continue
		}
		var category *string
		if r.Category != nil {
			if c := strings.TrimSpace(*r.Category); c != "" {
				category = &c
			}
		}
		out.Requirements = append(out.Requirements, extract.UnusualRequirement{
			Requirement: requirement,
			Category:    category,
		})
	}
	return out, nil
}
