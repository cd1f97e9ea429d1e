package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"carmatch/internal/model"
)

func TestMatchFeature(t *testing.T) {
	tests := []struct {
		keyword string
		want    model.Feature
		ok      bool
	}{
		{"ar_condicionado", model.FeatureAirConditioning, true},
		{"Ar-Condicionado", model.FeatureAirConditioning, true},
		{"air conditioning", model.FeatureAirConditioning, true},
		{"direção hidráulica", model.FeaturePowerSteering, true},
		{"airbags", model.FeatureAirbags, true},
		{"freio ABS", model.FeatureABS, true},
		{"vidros elétricos", model.FeaturePowerWindows, true},
		{"trava_eletrica", model.FeaturePowerLocks, true},
		{"alarme", model.FeatureAlarm, true},
		{"carga", "", false},
		{"economico", "", false},
		{"espaco", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.keyword, func(t *testing.T) {
			got, ok := MatchFeature(tt.keyword)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestedFeaturesDeduplicates(t *testing.T) {
	got := RequestedFeatures([]string{"ar_condicionado", "economico", "a/c", "alarme"})
	assert.Equal(t, []model.Feature{model.FeatureAirConditioning, model.FeatureAlarm}, got)
}

func TestFoldAndFormat(t *testing.T) {
	assert.Equal(t, "automatico", Fold("Automático"))
	assert.Equal(t, "hibrido", Fold("HÍBRIDO"))
	assert.Equal(t, "direcao eletrica", NormalizeKey("  Direção_elétrica "))
	assert.Equal(t, "55.000", FormatInt(55000))
	assert.Equal(t, "R$ 1.250.000", FormatBRL(1250000))
}
