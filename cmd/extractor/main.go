package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/shpitdev/unusual-requirements/internal/app"
	"github.com/shpitdev/unusual-requirements/internal/extract"
	"github.com/shpitdev/unusual-requirements/internal/extract/gemini"
	"github.com/shpitdev/unusual-requirements/internal/pipeline"
	"github.com/shpitdev/unusual-requirements/internal/review"
	"github.com/shpitdev/unusual-requirements/internal/util"
	"github.com/shpitdev/unusual-requirements/internal/version"
)

func main() {
	ctx := context.Background()

	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "help", "-h", "--help":
		usage(os.Stdout)
		return
	case "version", "--version":
		fmt.Println(version.Current)
		return
	case "local":
		os.Exit(runLocal(ctx, os.Args[2:]))
	case "serve":
		os.Exit(runServe(ctx, os.Args[2:]))
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runLocal(ctx context.Context, args []string) int {
	gemEnv, err := loadGeminiConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("local", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var inputPath string
	var outputPath string
	var maxRecords int
	var progress bool
	var promptConfigPath string
	var geminiModel string
	var geminiBaseURL string
	var rateLimitRPS float64

	fs.StringVar(&inputPath, "input", "", "Input JSON file: an array of request objects")
	fs.StringVar(&outputPath, "output", "unusual_requirements.json", "Output JSON file path")
	fs.IntVar(&maxRecords, "max-records", envIntOr("MAX_RECORDS", pipeline.DefaultMaxRecords), "Max records considered per batch (env: MAX_RECORDS)")
	fs.BoolVar(&progress, "progress", true, "Render a terminal progress bar")
	fs.StringVar(&promptConfigPath, "prompt-config", strings.TrimSpace(os.Getenv("PROMPT_CONFIG")), "YAML prompt-config file path (env: PROMPT_CONFIG)")
	fs.StringVar(&geminiModel, "gemini-model", gemEnv.Model, "Gemini model name (env: GEMINI_MODEL)")
	fs.StringVar(&geminiBaseURL, "gemini-base-url", gemEnv.BaseURL, "Gemini API base URL override (env: GEMINI_BASE_URL)")
	fs.Float64Var(&rateLimitRPS, "rate-limit-rps", gemEnv.RateLimitRPS, "Global extraction rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		_, _ = fmt.Fprintln(os.Stderr, "local requires --input")
		return 2
	}

	gemEnv.Model = geminiModel
	gemEnv.BaseURL = geminiBaseURL
	gemEnv.RateLimitRPS = rateLimitRPS
	extractor, err := newExtractor(ctx, gemEnv, promptConfigPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gemini config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	if err := app.RunLocal(ctx, app.Config{
		InputPath:    inputPath,
		OutputPath:   outputPath,
		ShowProgress: progress,
	}, pipeline.New(extractor, pipeline.Options{MaxRecords: maxRecords})); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "local run failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

func runServe(ctx context.Context, args []string) int {
	gemEnv, err := loadGeminiConfigFromEnv()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var addr string
	var maxRecords int
	var promptConfigPath string
	var geminiModel string
	var geminiBaseURL string
	var rateLimitRPS float64

	fs.StringVar(&addr, "addr", ":8080", "Listen address")
	fs.IntVar(&maxRecords, "max-records", envIntOr("MAX_RECORDS", pipeline.DefaultMaxRecords), "Max records considered per batch (env: MAX_RECORDS)")
	fs.StringVar(&promptConfigPath, "prompt-config", strings.TrimSpace(os.Getenv("PROMPT_CONFIG")), "YAML prompt-config file path (env: PROMPT_CONFIG)")
	fs.StringVar(&geminiModel, "gemini-model", gemEnv.Model, "Gemini model name (env: GEMINI_MODEL)")
	fs.StringVar(&geminiBaseURL, "gemini-base-url", gemEnv.BaseURL, "Gemini API base URL override (env: GEMINI_BASE_URL)")
	fs.Float64Var(&rateLimitRPS, "rate-limit-rps", gemEnv.RateLimitRPS, "Global extraction rate limit (RPS), 0 disables (env: RATE_LIMIT_RPS)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	gemEnv.Model = geminiModel
	gemEnv.BaseURL = geminiBaseURL
	gemEnv.RateLimitRPS = rateLimitRPS
	extractor, err := newExtractor(ctx, gemEnv, promptConfigPath)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "gemini config error: %s\n", util.RedactSecrets(err.Error()))
		return 2
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)
	srv := review.New(pipeline.New(extractor, pipeline.Options{MaxRecords: maxRecords}), logger)
	logger.Printf("review server %s listening on %s", version.Current, addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "serve failed: %s\n", util.RedactSecrets(err.Error()))
		return 1
	}
	return 0
}

type geminiEnv struct {
	APIKey       string
	Model        string
	BaseURL      string
	RateLimitRPS float64
}

func loadGeminiConfigFromEnv() (geminiEnv, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		return geminiEnv{}, fmt.Errorf("GEMINI_API_KEY is required")
	}

	rateLimitRPS, err := envFloat("RATE_LIMIT_RPS", 0)
	if err != nil {
		return geminiEnv{}, err
	}

	return geminiEnv{
		APIKey:       apiKey,
		Model:        strings.TrimSpace(os.Getenv("GEMINI_MODEL")),
		BaseURL:      strings.TrimSpace(os.Getenv("GEMINI_BASE_URL")),
		RateLimitRPS: rateLimitRPS,
	}, nil
}

// newExtractor applies the optional prompt-config file on top of env/flags.
func newExtractor(ctx context.Context, env geminiEnv, promptConfigPath string) (*gemini.Extractor, error) {
	cfg := gemini.Config{
		APIKey:       env.APIKey,
		Model:        env.Model,
		BaseURL:      env.BaseURL,
		RateLimitRPS: env.RateLimitRPS,
	}

	if promptConfigPath != "" {
		pc, err := extract.LoadPromptConfig(promptConfigPath)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(pc.Model) != "" {
			cfg.Model = strings.TrimSpace(pc.Model)
		}
		cfg.Temperature = pc.Temperature
		prompt, err := extract.NewPrompt(pc.Template)
		if err != nil {
			return nil, err
		}
		cfg.Prompt = prompt
	}

	return gemini.New(ctx, cfg)
}

func usage(w *os.File) {
	_, _ = fmt.Fprintf(w, `extractor: unusual-requirement extraction for travel-booking batches

Usage:
  extractor <command> [flags]

Commands:
  local    Process a local input JSON batch and write the export file
  serve    Run the upload/review HTTP service
  version  Print the release version

Examples:
  extractor local --input requests.json --output unusual_requirements.json
  extractor serve --addr :8080

Environment:
  GEMINI_API_KEY   Gemini API key (required)
  GEMINI_MODEL     Gemini model name (required)
  GEMINI_BASE_URL  Optional base URL override (proxies/testing)
  RATE_LIMIT_RPS   Global extraction rate limit, 0 disables
  MAX_RECORDS      Max records considered per batch (default %d)
  PROMPT_CONFIG    YAML prompt-config file (model, temperature, template)

`, pipeline.DefaultMaxRecords)
}

func envIntOr(varName string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback
	}
	out, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return out
}

func envFloat(varName string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(varName))
	if v == "" {
		return fallback, nil
	}
	out, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s=%q: %w", varName, v, err)
	}
	return out, nil
}
