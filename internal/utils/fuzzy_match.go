package utils

import (
	"strings"

	"carmatch/internal/model"
)

// featureAliases maps every vocabulary feature to the phrasings customers use
// for it, already folded. Aliases of three letters or fewer only match whole
// words.
var featureAliases = map[model.Feature][]string{
	model.FeatureAirConditioning: {"ar condicionado", "ar", "climatizador", "air conditioning", "aircon", "a/c", "ac"},
	model.FeaturePowerSteering:   {"direcao hidraulica", "direcao eletrica", "direcao", "power steering"},
	model.FeatureAirbags:         {"airbag", "air bag"},
	model.FeatureABS:             {"abs", "freio abs"},
	model.FeaturePowerWindows:    {"vidro eletrico", "vidros eletricos", "vidro", "power window"},
	model.FeaturePowerLocks:      {"trava eletrica", "travas eletricas", "trava", "power lock"},
	model.FeatureAlarm:           {"alarme", "alarm"},
}

// featureOrder keeps MatchFeature deterministic.
var featureOrder = []model.Feature{
	model.FeatureAirConditioning,
	model.FeaturePowerSteering,
	model.FeatureAirbags,
	model.FeatureABS,
	model.FeaturePowerWindows,
	model.FeaturePowerLocks,
	model.FeatureAlarm,
}

// MatchFeature maps a customer keyword such as "ar_condicionado" or
// "Vidros elétricos" to a vocabulary feature.
func MatchFeature(keyword string) (model.Feature, bool) {
	key := NormalizeKey(keyword)
	if key == "" {
		return "", false
	}
	words := strings.Fields(key)

	for _, f := range featureOrder {
		for _, alias := range featureAliases[f] {
			if len(alias) <= 3 {
				if containsWord(words, alias) {
					return f, true
				}
				continue
			}
			if strings.Contains(key, alias) {
				return f, true
			}
		}
	}
	return "", false
}

// RequestedFeatures returns the distinct vocabulary features named by the
// given keywords, in keyword order.
func RequestedFeatures(keywords []string) []model.Feature {
	var out []model.Feature
	seen := make(map[model.Feature]bool)
	for _, kw := range keywords {
		if f, ok := MatchFeature(kw); ok && !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

// FeatureLabel is the customer-facing name of a feature.
func FeatureLabel(f model.Feature) string {
	switch f {
	case model.FeatureAirConditioning:
		return "ar-condicionado"
	case model.FeaturePowerSteering:
		return "direção hidráulica"
	case model.FeatureAirbags:
		return "airbags"
	case model.FeatureABS:
		return "freios ABS"
	case model.FeaturePowerWindows:
		return "vidros elétricos"
	case model.FeaturePowerLocks:
		return "travas elétricas"
	case model.FeatureAlarm:
		return "alarme"
	}
	return string(f)
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}
