// Package guardrail screens inbound customer messages and outbound replies.
package guardrail

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"carmatch/internal/logger"
	"carmatch/internal/metrics"
)

// Disclosure is appended to accepted replies that quote prices.
const Disclosure = "_Atendimento automatizado. Preços e disponibilidade sujeitos a confirmação._"

// SafeReply replaces an outbound message that failed validation.
const SafeReply = "Desculpe, tive um problema ao montar a resposta. Pode repetir o que você procura?"

var (
	tagRe        = regexp.MustCompile(`<[^>]*>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// Config holds the filter thresholds.
type Config struct {
	MaxInputLength   int
	MaxOutputLength  int
	MaxSpecialRatio  float64
	MinDensityLength int
	MaxRepeatedRun   int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MaxInputLength:   1000,
		MaxOutputLength:  4096,
		MaxSpecialRatio:  0.30,
		MinDensityLength: 8,
		MaxRepeatedRun:   10,
	}
}

// Result is the verdict on one message. Text holds the sanitized message when
// Allowed is true.
type Result struct {
	Allowed  bool
	Reason   string
	Category Category
	Text     string
}

// Filter validates messages against the policy tables.
type Filter struct {
	cfg     Config
	limiter *RateLimiter
	markup  []Pattern
	input   []Pattern
	output  []Pattern
	logger  *logger.Logger
}

// NewFilter creates a filter. limiter may be nil to disable rate limiting.
func NewFilter(cfg Config, limiter *RateLimiter, log *logger.Logger) *Filter {
	if log == nil {
		log = logger.NewNop()
	}
	return &Filter{
		cfg:     cfg,
		limiter: limiter,
		markup:  MarkupPolicy,
		input:   InputPolicy,
		output:  OutputPolicy,
		logger:  log.Named("guardrail"),
	}
}

// ValidateInput checks an inbound message from sender.
func (f *Filter) ValidateInput(sender, raw string) Result {
	if f.limiter != nil && !f.limiter.Allow(sender) {
		return f.reject("input", sender, CategoryRateLimit)
	}
	if utf8.RuneCountInString(raw) > f.cfg.MaxInputLength {
		return f.reject("input", sender, CategoryTooLong)
	}

	if c, ok := matchPolicy(f.markup, raw); ok {
		return f.reject("input", sender, c)
	}

	text := Sanitize(raw)
	if text == "" {
		return f.reject("input", sender, CategoryEmpty)
	}
	if c, ok := matchPolicy(f.input, text); ok {
		return f.reject("input", sender, c)
	}
	if f.tooManySpecialChars(text) {
		return f.reject("input", sender, CategorySpecialChars)
	}
	if longestRun(text) > f.cfg.MaxRepeatedRun {
		return f.reject("input", sender, CategoryFlooding)
	}

	return Result{Allowed: true, Text: text}
}

// ValidateOutput checks a reply before it is sent.
func (f *Filter) ValidateOutput(text string) Result {
	if utf8.RuneCountInString(text) > f.cfg.MaxOutputLength {
		return f.reject("output", "", CategoryTooLong)
	}
	if c, ok := matchPolicy(f.output, text); ok {
		return f.reject("output", "", c)
	}
	return Result{Allowed: true, Text: f.withDisclosure(text)}
}

func (f *Filter) withDisclosure(text string) string {
	if !strings.Contains(text, "R$") || strings.Contains(text, Disclosure) {
		return text
	}
	out := text + "\n\n" + Disclosure
	if utf8.RuneCountInString(out) > f.cfg.MaxOutputLength {
		return text
	}
	return out
}

func (f *Filter) reject(direction, sender string, c Category) Result {
	metrics.GuardrailRejections.WithLabelValues(direction, string(c)).Inc()
	f.logger.Warn("message rejected",
		zap.String("direction", direction),
		zap.String("sender", sender),
		zap.String("category", string(c)),
	)
	return Result{Allowed: false, Reason: rejectionMessage(c), Category: c}
}

// Sanitize strips control characters and markup, then collapses whitespace.
// Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) || r == utf8.RuneError {
			return -1
		}
		return r
	}, s)
	s = tagRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func matchPolicy(table []Pattern, text string) (Category, bool) {
	for _, p := range table {
		if p.Expr.MatchString(text) {
			return p.Category, true
		}
	}
	return "", false
}

func (f *Filter) tooManySpecialChars(text string) bool {
	total := utf8.RuneCountInString(text)
	if total < f.cfg.MinDensityLength {
		return onlyASCIISymbols(text)
	}
	special := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) && r != '_' {
			special++
		}
	}
	return float64(special)/float64(total) > f.cfg.MaxSpecialRatio
}

// onlyASCIISymbols reports whether a short message has no content at all,
// like "!!!??". Emoji alone still pass.
func onlyASCIISymbols(text string) bool {
	for _, r := range text {
		if r > unicode.MaxASCII || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func longestRun(text string) int {
	longest, run := 0, 0
	var prev rune = -1
	for _, r := range text {
		if r == prev {
			run++
		} else {
			run = 1
			prev = r
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
