package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// Fold lower-cases s and strips diacritics, so "Automático" becomes "automatico".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NormalizeKey folds s and turns separators into single spaces.
func NormalizeKey(s string) string {
	s = Fold(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// FormatInt renders n with Brazilian digit grouping (55000 -> "55.000").
func FormatInt(n int) string {
	return ptBR.Sprintf("%d", n)
}

// FormatBRL renders an amount as "R$ 55.000".
func FormatBRL(amount float64) string {
	return "R$ " + FormatInt(int(amount+0.5))
}
