// Package analyzer scores policy text with the Anthropic Messages API.
//
// In two-phase mode a fast model first extracts the policy into structured
// markdown, then the analysis model applies the scoring methodology to that
// extraction. Single-pass mode sends the raw text straight to the analysis
// model. Either way the YAML (or JSON) output is parsed, enriched with
// defaults and metadata, and validated for completeness.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/target/policy-analysis-api/config"
	"github.com/target/policy-analysis-api/internal/domain/job"
	"github.com/target/policy-analysis-api/internal/domain/model"
)

// Phase progress messages passed to AnalysisContext.OnPhase.
const (
	PhaseExtractingData = "Extracting structured data from policy document..."
	PhaseScoring        = "Applying Rhône Risk scoring methodology..."
)

// ErrNoAPIKey is returned by New when the analyzer has no API key.
var ErrNoAPIKey = errors.New("ANTHROPIC_API_KEY is not configured")

// Messenger sends one Messages API request.
type Messenger interface {
	CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error)
}

// Options groups dependencies for Analyzer.
type Options struct {
	Config     config.AnalyzerConfig // Required: models, token limits and selectors
	Messenger  Messenger             // Optional: defaults to a Client built from Config
	HTTPClient *http.Client          // Optional: used when Messenger is nil
	Prompts    *Prompts              // Optional: defaults to prompts loaded from Config.PromptsDir
	Clock      func() time.Time      // Optional: defaults to time.Now
	Logger     *slog.Logger          // Optional: structured logger
}

// Analyzer implements core.Analyzer.
type Analyzer struct {
	cfg            config.AnalyzerConfig
	messenger      Messenger
	prompts        *Prompts
	score          selector
	recommendation selector
	clock          func() time.Time
	logger         *slog.Logger
}

// New constructs an Analyzer.
func New(opts Options) (*Analyzer, error) {
	cfg := opts.Config
	messenger := opts.Messenger
	if messenger == nil {
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, ErrNoAPIKey
		}
		messenger = NewClient(ClientOptions{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, HTTPClient: opts.HTTPClient})
	}

	prompts := opts.Prompts
	if prompts == nil {
		var err error
		if prompts, err = LoadPrompts(cfg.PromptsDir); err != nil {
			return nil, err
		}
	}

	score, err := newSelector(cfg.ScoreExpr)
	if err != nil {
		return nil, fmt.Errorf("score expression: %w", err)
	}
	rec, err := newSelector(cfg.RecommendationExpr)
	if err != nil {
		return nil, fmt.Errorf("recommendation expression: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Analyzer{
		cfg:            cfg,
		messenger:      messenger,
		prompts:        prompts,
		score:          score,
		recommendation: rec,
		clock:          clock,
		logger:         logger.With("component", "analyzer"),
	}, nil
}

// Analyze scores text and returns the enriched analysis document.
func (a *Analyzer) Analyze(ctx context.Context, text string, in model.AnalysisContext) (*model.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, job.Fatal(job.ReasonInvalidInput, errors.New("no policy text to analyze"))
	}

	var (
		data  map[string]any
		usage map[string]any
		total int
		err   error
	)
	if a.cfg.TwoPhase {
		data, total, err = a.analyzeTwoPhase(ctx, text, in)
		usage = map[string]any{
			"total_tokens":     total,
			"extraction_model": a.cfg.ExtractionModel,
			"analysis_model":   a.cfg.Model,
			"mode":             "two_phase",
		}
	} else {
		data, total, err = a.analyzeSinglePass(ctx, text, in)
		usage = map[string]any{
			"total_tokens": total,
			"model":        a.cfg.Model,
			"mode":         "single_pass",
		}
	}
	if err != nil {
		return nil, err
	}

	enrich(data, enrichInput{
		ClientName:     in.ClientName,
		ClientIndustry: in.ClientIndustry,
		Renewal:        in.Renewal,
		Now:            a.clock(),
		TokenUsage:     usage,
	})
	warnings := validate(data)
	if len(warnings) > 0 {
		a.logger.WarnContext(ctx, "analysis validation warnings", "client", in.ClientName, "warnings", warnings)
		data["_validation_warnings"] = warnings
	}

	out := &model.Analysis{
		Data:           data,
		Score:          a.score.number(data),
		Recommendation: a.recommendation.text(data),
		TokensUsed:     total,
		Warnings:       warnings,
	}
	a.logger.InfoContext(ctx, "analysis complete",
		"client", in.ClientName,
		"tokens", total,
		"recommendation", out.Recommendation,
	)
	return out, nil
}

func (a *Analyzer) analyzeTwoPhase(ctx context.Context, text string, in model.AnalysisContext) (map[string]any, int, error) {
	phase(in, PhaseExtractingData)
	extracted, extractTokens, err := a.complete(ctx, "extraction", MessageRequest{
		Model:     a.cfg.ExtractionModel,
		MaxTokens: a.cfg.ExtractionMaxTokens,
		System:    a.prompts.Extraction(),
		Messages:  []Message{{Role: "user", Content: extractionMessage(text, in)}},
	})
	if err != nil {
		return nil, 0, err
	}

	phase(in, PhaseScoring)
	system, err := a.prompts.Analysis(in.ClientIndustry, in.Renewal)
	if err != nil {
		return nil, 0, job.Fatal("prompt", err)
	}
	raw, analysisTokens, err := a.complete(ctx, "analysis", MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: analysisMessage(extracted, in, a.clock())}},
	})
	if err != nil {
		return nil, 0, err
	}

	data, parsed := parseOutput(raw)
	if !parsed {
		a.logger.ErrorContext(ctx, "could not parse analysis output", "chars", len(raw))
	}
	return data, extractTokens + analysisTokens, nil
}

func (a *Analyzer) analyzeSinglePass(ctx context.Context, text string, in model.AnalysisContext) (map[string]any, int, error) {
	system, err := a.prompts.Analysis(in.ClientIndustry, in.Renewal)
	if err != nil {
		return nil, 0, job.Fatal("prompt", err)
	}
	raw, tokens, err := a.complete(ctx, "analysis", MessageRequest{
		Model:     a.cfg.Model,
		MaxTokens: a.cfg.MaxTokens,
		System:    system,
		Messages:  []Message{{Role: "user", Content: singlePassMessage(text, in, a.clock())}},
	})
	if err != nil {
		return nil, 0, err
	}

	data, parsed := parseOutput(raw)
	if !parsed {
		a.logger.ErrorContext(ctx, "could not parse analysis output", "chars", len(raw))
	}
	return data, tokens, nil
}

// complete sends one request and returns its text and token usage.
func (a *Analyzer) complete(ctx context.Context, label string, req MessageRequest) (string, int, error) {
	start := time.Now()
	a.logger.DebugContext(ctx, "sending model request",
		"phase", label,
		"model", req.Model,
		"input_chars", len(req.Messages[0].Content),
	)

	resp, err := a.messenger.CreateMessage(ctx, req)
	if err != nil {
		return "", 0, fmt.Errorf("%s phase: %w", label, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", 0, job.Fatal("empty_response", fmt.Errorf("%s phase: model returned no text", label))
	}
	if resp.StopReason == "max_tokens" {
		a.logger.WarnContext(ctx, "model output truncated at max tokens", "phase", label, "max_tokens", req.MaxTokens)
	}

	a.logger.InfoContext(ctx, "model request complete",
		"phase", label,
		"output_chars", len(text),
		"tokens", resp.Usage.Total(),
		"duration", time.Since(start),
	)
	return text, resp.Usage.Total(), nil
}

func phase(in model.AnalysisContext, msg string) {
	if in.OnPhase != nil {
		in.OnPhase(msg)
	}
}

func extractionMessage(text string, in model.AnalysisContext) string {
	var b strings.Builder
	b.WriteString("## CONTEXT\n")
	if in.ClientName != "" {
		fmt.Fprintf(&b, "Client: %s\n", in.ClientName)
	}
	if in.ClientIndustry != "" {
		fmt.Fprintf(&b, "Industry: %s\n", in.ClientIndustry)
	}
	if in.FileName != "" {
		fmt.Fprintf(&b, "Document: %s\n", in.FileName)
	}
	b.WriteString("\n## POLICY DOCUMENT TEXT\n\n")
	b.WriteString(text)
	return b.String()
}

func policyKind(renewal bool) string {
	if renewal {
		return "Renewal"
	}
	return "New"
}

func analysisMessage(extracted string, in model.AnalysisContext, now time.Time) string {
	var b strings.Builder
	b.WriteString("## POLICY ANALYSIS REQUEST\n\n")
	fmt.Fprintf(&b, "**Client:** %s\n", in.ClientName)
	fmt.Fprintf(&b, "**Industry:** %s\n", in.ClientIndustry)
	fmt.Fprintf(&b, "**Policy Type:** %s\n", policyKind(in.Renewal))
	fmt.Fprintf(&b, "**Analysis Date:** %s\n\n", now.Format(analysisDateLayout))
	if in.Carrier != "" || in.FileName != "" {
		if in.Carrier != "" {
			fmt.Fprintf(&b, "**Carrier:** %s\n", in.Carrier)
		}
		if in.FileName != "" {
			fmt.Fprintf(&b, "**File Name:** %s\n", in.FileName)
		}
		b.WriteString("\n")
	}
	b.WriteString("## EXTRACTED POLICY DATA\n\n")
	b.WriteString("Below is the structured extraction from the policy document.\n")
	b.WriteString("Analyze this data using the Rhône Risk scoring methodology\n")
	b.WriteString("and produce the complete YAML analysis output.\n\n")
	b.WriteString(extracted)
	return b.String()
}

func singlePassMessage(text string, in model.AnalysisContext, now time.Time) string {
	renewal := "No (New Policy)"
	if in.Renewal {
		renewal = "Yes"
	}
	var b strings.Builder
	b.WriteString("## POLICY ANALYSIS REQUEST\n\n")
	fmt.Fprintf(&b, "**Client:** %s\n", in.ClientName)
	fmt.Fprintf(&b, "**Industry:** %s\n", in.ClientIndustry)
	fmt.Fprintf(&b, "**Policy Type:** %s\n", in.PolicyType)
	fmt.Fprintf(&b, "**Renewal:** %s\n", renewal)
	fmt.Fprintf(&b, "**Analysis Date:** %s\n\n---\n\n", now.Format(analysisDateLayout))
	b.WriteString("## POLICY DOCUMENT TEXT\n\n")
	b.WriteString(text)
	b.WriteString("\n\n---\n\n")
	b.WriteString("Produce your complete analysis as valid YAML following the structure in your instructions.\n")
	b.WriteString("Score every coverage sub-item using the 5-factor methodology.\n")
	fmt.Fprintf(&b, "Apply industry-specific criteria for %s.\n", in.ClientIndustry)
	b.WriteString("Include maturity dimensions, red flags, and binding recommendation.\n")
	return b.String()
}
