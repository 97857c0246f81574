// Package cost estimates token counts and per-request prices. Everything here
// is side-effect free so callers can price a request speculatively.
package cost

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// FallbackCost is returned for models missing from the price table.
	FallbackCost = 0.01

	// DefaultTokenEstimate is the token count assumed when pricing a model
	// without a concrete request.
	DefaultTokenEstimate = 1000

	// DefaultMaxBudget is the per-request ceiling used by SelectModel.
	DefaultMaxBudget = 0.05

	// FallbackModel is chosen when no tier candidate fits the budget.
	FallbackModel = "gemma"

	inputShare  = 0.6
	outputShare = 0.4
)

// ModelPricing holds USD prices per 1000 tokens.
type ModelPricing struct {
	Model           string
	InputCostPer1K  float64
	OutputCostPer1K float64
}

// DefaultPricing is the built-in price table.
var DefaultPricing = []ModelPricing{
	{Model: "gpt-4", InputCostPer1K: 0.03, OutputCostPer1K: 0.06},
	{Model: "gpt-4-turbo", InputCostPer1K: 0.01, OutputCostPer1K: 0.03},
	{Model: "gpt-3.5-turbo", InputCostPer1K: 0.0005, OutputCostPer1K: 0.0015},
	{Model: "gemma", InputCostPer1K: 0.0001, OutputCostPer1K: 0.0002},
	{Model: "gemini-pro", InputCostPer1K: 0.00025, OutputCostPer1K: 0.0005},
}

// Quality is a requested answer quality tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

// tiers lists candidates cheapest-acceptable first.
var tiers = map[Quality][]string{
	QualityLow:    {"gemma", "gpt-3.5-turbo"},
	QualityMedium: {"gemini-pro", "gpt-3.5-turbo", "gpt-4-turbo"},
	QualityHigh:   {"gpt-4", "gpt-4-turbo"},
}

var temperatures = map[string]float64{
	"simple":   0.3,
	"medium":   0.5,
	"complex":  0.7,
	"creative": 0.9,
}

// Model prices requests against an immutable price table.
type Model struct {
	pricing map[string]ModelPricing
}

// NewModel builds a Model from DefaultPricing with overrides applied on top.
func NewModel(overrides []ModelPricing) *Model {
	m := &Model{pricing: make(map[string]ModelPricing, len(DefaultPricing)+len(overrides))}
	for _, p := range DefaultPricing {
		m.pricing[p.Model] = p
	}
	for _, p := range overrides {
		m.pricing[p.Model] = p
	}
	return m
}

var defaultModel = NewModel(nil)

// Default returns the Model backed by DefaultPricing.
func Default() *Model { return defaultModel }

// Price returns the pricing entry for model.
func (m *Model) Price(model string) (ModelPricing, bool) {
	p, ok := m.pricing[model]
	return p, ok
}

// EstimateCost splits tokens 60/40 between input and output and prices them,
// rounded to 6 decimals. Unknown models cost FallbackCost.
func (m *Model) EstimateCost(model string, tokens int) float64 {
	p, ok := m.pricing[model]
	if !ok {
		return FallbackCost
	}
	if tokens < 0 {
		tokens = 0
	}

	in := float64(tokens) * inputShare
	out := float64(tokens) * outputShare
	total := in/1000*p.InputCostPer1K + out/1000*p.OutputCostPer1K

	return math.Round(total*1e6) / 1e6
}

// SelectModel returns the first candidate of the quality tier whose cost at
// DefaultTokenEstimate fits maxBudget, or FallbackModel. Unknown tiers use medium.
func (m *Model) SelectModel(maxBudget float64, quality Quality) string {
	candidates, ok := tiers[Quality(strings.ToLower(string(quality)))]
	if !ok {
		candidates = tiers[QualityMedium]
	}
	for _, model := range candidates {
		if m.EstimateCost(model, DefaultTokenEstimate) <= maxBudget {
			return model
		}
	}
	return FallbackModel
}

// EstimateTokens approximates tokens as characters / 4, floored,
// with a floor of 1 for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := utf8.RuneCountInString(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// EstimateCost prices tokens for model against DefaultPricing.
func EstimateCost(model string, tokens int) float64 {
	return defaultModel.EstimateCost(model, tokens)
}

// ChooseTemperature maps a task type (simple, medium, complex, creative)
// to a sampling temperature. Anything else gets 0.5.
func ChooseTemperature(taskType string) float64 {
	if t, ok := temperatures[strings.ToLower(taskType)]; ok {
		return t
	}
	return 0.5
}
