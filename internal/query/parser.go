package query

import (
	"context"
	"fmt"
	"time"

	"ai-meal-plan-api/internal/shared"

	"go.uber.org/zap"
)

// Params are the final constraints of a request. Every slice is non-nil.
type Params struct {
	DurationDays        int
	DietaryRestrictions []string
	Preferences         []string
	SpecialRequirements []string
	Warnings            []Warning
	Usage               shared.ValidationUsage
	// Meta describes the validation model call, if one was made.
	Meta shared.AgentMeta
}

// Parser runs extraction, optional model validation and the optional dump.
type Parser struct {
	extractor *Extractor
	validator *Validator
	dumper    *Dumper
	logger    *zap.Logger
}

// NewParser wires a Parser. validator and dumper may be nil.
func NewParser(validator *Validator, dumper *Dumper, logger *zap.Logger) *Parser {
	return &Parser{
		extractor: NewExtractor(),
		validator: validator,
		dumper:    dumper,
		logger:    logger.Named("parser"),
	}
}

// Parse turns a free-text request into Params. The only error it returns is
// an *ExtractionError.
func (p *Parser) Parse(ctx context.Context, q string) (*Params, error) {
	start := time.Now()

	initial, err := p.extractor.Extract(q)
	regexLatency := time.Since(start)
	if err != nil {
		p.logger.Info("query rejected", zap.Error(err))
		return nil, err
	}

	result := p.validator.ValidateAndEnhance(ctx, q, initial)
	final := result.Final

	if final.DurationDays < 1 {
		final.Warnings = append(final.Warnings, Warning{
			Category: WarnDaysRaised,
			Value:    fmt.Sprintf("Requested %d days. Generating at least 1 day.", final.DurationDays),
		})
		final.DurationDays = 1
	}

	usage := result.Usage
	usage.RegexLatencyMS = regexLatency.Milliseconds()
	usage.TotalDurationMS = time.Since(start).Milliseconds()

	p.dumper.Dump(DumpRecord{
		Query:             q,
		InitialExtraction: initial,
		FinalExtraction:   final,
		LLMLogging:        usage,
	})

	p.logger.Info("query parsed",
		zap.Int("duration_days", final.DurationDays),
		zap.Strings("dietary_restrictions", final.DietaryRestrictions),
		zap.Strings("preferences", final.Preferences),
		zap.Strings("special_requirements", final.SpecialRequirements),
		zap.Int("warnings", len(final.Warnings)),
		zap.Bool("llm_validation", usage.Enabled),
	)

	return &Params{
		DurationDays:        final.DurationDays,
		DietaryRestrictions: final.DietaryRestrictions,
		Preferences:         final.Preferences,
		SpecialRequirements: final.SpecialRequirements,
		Warnings:            final.Warnings,
		Usage:               usage,
		Meta:                result.Meta,
	}, nil
}
