package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"carmatch/internal/logger"
	"carmatch/internal/metrics"
	"carmatch/internal/model"
	"carmatch/internal/utils"
)

const extractionPrompt = `You extract car-buying preferences from a customer's message (Brazilian Portuguese, sometimes English).

Return ONLY a JSON object:
{
  "extracted": { ...fields... },
  "confidence": 0.0-1.0,
  "reasoning": "short explanation",
  "fieldsExtracted": ["field", ...]
}

Allowed fields inside "extracted" (omit anything not explicitly stated):
- budget, budgetMin, budgetMax: numbers in BRL ("50 mil" = 50000, "até 60k" = budgetMax 60000)
- people: number of passengers (1-10)
- usage: "cidade" | "viagem" | "trabalho" | "misto"
- usoPrincipal: "uber" | "familia" | "trabalho" | "viagem" | "outro"
- tipoUber: "uberx" | "comfort" | "black"
- bodyType: "sedan" | "suv" | "hatch" | "pickup" | "minivan"
- minYear: oldest acceptable model year
- maxKm: highest acceptable mileage
- transmission: "manual" | "automatico"
- fuelType: "gasolina" | "flex" | "diesel" | "hibrido" | "eletrico"
- color, brand, model: lower-case strings
- priorities: snake_case keywords such as "economico", "espaco", "conforto", "seguranca", "ar_condicionado", "familia", "cadeirinha"
- dealBreakers: snake_case keywords such as "alta_quilometragem", "muito_antigo", "hatch_pequeno", "manual"
- hasTradeIn: boolean
- urgency: "imediato" | "1mes" | "3meses" | "flexivel"

Rules:
- Never guess. A field you are not sure about is left out.
- If a model is named, also fill its brand (onix -> chevrolet, civic -> honda, corolla -> toyota, gol -> volkswagen, hb20 -> hyundai, argo -> fiat, spin -> chevrolet).
- Pickup models (strada, toro, s10, montana, hilux, ranger, maverick, saveiro, amarok, l200, triton, frontier, oroch) always mean bodyType "pickup".
- Working as a driver for Uber/99 means usoPrincipal "uber".

Example: "Até 50 mil para 5 pessoas" ->
{"extracted":{"budgetMax":50000,"people":5},"confidence":0.95,"reasoning":"budget ceiling and passenger count stated","fieldsExtracted":["budgetMax","people"]}`

// ExtractOptions carries the conversation context for one extraction
type ExtractOptions struct {
	CurrentProfile *model.CustomerProfile
	RecentHistory  []string
}

// Extractor turns a customer message into a validated partial profile
type Extractor struct {
	completer Completer
	timeout   time.Duration
	now       func() time.Time
	logger    *logger.Logger
}

// NewExtractor creates an extractor. A nil completer yields empty extractions.
func NewExtractor(completer Completer, timeout time.Duration, log *logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{
		completer: completer,
		timeout:   timeout,
		now:       time.Now,
		logger:    log.Named("extractor"),
	}
}

// Extract never fails: on any error it returns an empty extraction with
// confidence 0 and the error in Reasoning.
func (e *Extractor) Extract(ctx context.Context, message string, opts ExtractOptions) (result model.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panicked", zap.Any("panic", r))
			result = failedExtraction(fmt.Errorf("panic: %v", r))
		}
	}()

	message = strings.TrimSpace(message)
	if message == "" {
		return model.ExtractionResult{Reasoning: "empty message"}
	}
	if e.completer == nil {
		metrics.ExtractionsTotal.WithLabelValues("unavailable").Inc()
		return failedExtraction(ErrInferenceUnavailable)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	out, err := e.completer.Complete(ctx, []ChatMessage{
		{Role: "system", Content: extractionPrompt},
		{Role: "user", Content: buildExtractionInput(message, opts)},
	}, CompletionOptions{Temperature: 0.1, MaxTokens: 400, JSON: true})
	if err != nil {
		e.logger.Warn("extraction inference failed", zap.Error(err))
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		return failedExtraction(err)
	}

	result, err = e.parseResponse(out)
	if err != nil {
		e.logger.Warn("extraction response rejected", zap.Error(err))
		metrics.ExtractionsTotal.WithLabelValues("invalid").Inc()
		return failedExtraction(err)
	}

	metrics.ExtractionsTotal.WithLabelValues("ok").Inc()
	e.logger.Debug("profile extracted",
		zap.Strings("fields", result.FieldsExtracted),
		zap.Float64("confidence", result.Confidence),
	)
	return result
}

func (e *Extractor) parseResponse(out string) (model.ExtractionResult, error) {
	obj, err := utils.ParseAIObject(out, "extracted", "confidence")
	if err != nil {
		return model.ExtractionResult{}, err
	}

	extracted, ok := obj["extracted"].(map[string]interface{})
	if !ok {
		return model.ExtractionResult{}, fmt.Errorf("extracted is not an object")
	}
	confidence, ok := obj["confidence"].(float64)
	if !ok {
		return model.ExtractionResult{}, fmt.Errorf("confidence is not a number")
	}
	reasoning, _ := obj["reasoning"].(string)

	profile := SanitizeExtraction(extracted, e.now())
	return model.ExtractionResult{
		Profile:         profile,
		Confidence:      normalizeConfidence(confidence),
		Reasoning:       reasoning,
		FieldsExtracted: profile.Fields(),
	}, nil
}

// normalizeConfidence accepts both 0-1 and 0-100 scales.
func normalizeConfidence(c float64) float64 {
	if c > 1 {
		c /= 100
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func buildExtractionInput(message string, opts ExtractOptions) string {
	var b strings.Builder
	if opts.CurrentProfile != nil && !opts.CurrentProfile.IsEmpty() {
		if known, err := json.Marshal(opts.CurrentProfile); err == nil {
			b.WriteString("Already known about the customer: ")
			b.Write(known)
			b.WriteString("\n")
		}
	}
	if len(opts.RecentHistory) > 0 {
		b.WriteString("Recent customer messages:\n")
		for _, h := range opts.RecentHistory {
			b.WriteString("- ")
			b.WriteString(h)
			b.WriteString("\n")
		}
	}
	b.WriteString("Message to analyze: ")
	b.WriteString(message)
	return b.String()
}

func failedExtraction(err error) model.ExtractionResult {
	return model.ExtractionResult{Reasoning: "extraction failed: " + err.Error()}
}
