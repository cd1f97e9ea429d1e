package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAIJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    map[string]interface{}
		wantErr bool
	}{
		{
			name:  "pure JSON",
			input: `{"budget": 50000, "people": 5}`,
			want:  map[string]interface{}{"budget": float64(50000), "people": float64(5)},
		},
		{
			name:  "markdown fence with language",
			input: "```json\n{\"usage\": \"cidade\"}\n```",
			want:  map[string]interface{}{"usage": "cidade"},
		},
		{
			name:  "markdown fence without language",
			input: "```\n{\"bodyType\": \"suv\"}\n```",
			want:  map[string]interface{}{"bodyType": "suv"},
		},
		{
			name:  "surrounding prose",
			input: `Claro! Aqui está: {"brand": "fiat", "confidence": 0.9} espero que ajude, it's done.`,
			want:  map[string]interface{}{"brand": "fiat", "confidence": 0.9},
		},
		{
			name:  "trailing comma",
			input: `{"minYear": 2018, "maxKm": 80000,}`,
			want:  map[string]interface{}{"minYear": float64(2018), "maxKm": float64(80000)},
		},
		{
			name:  "unquoted keys",
			input: `{people: 4, usage: "misto"}`,
			want:  map[string]interface{}{"people": float64(4), "usage": "misto"},
		},
		{
			name:  "single quoted values",
			input: `{'transmission': 'automatico'}`,
			want:  map[string]interface{}{"transmission": "automatico"},
		},
		{
			name:    "empty",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "no JSON at all",
			input:   "não entendi a pergunta",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]interface{}
			err := ParseAIJSON(tt.input, &got)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAIObjectRequiredKeys(t *testing.T) {
	obj, err := ParseAIObject(`{"extracted": {}, "confidence": 0.5}`, "extracted", "confidence")
	require.NoError(t, err)
	assert.Contains(t, obj, "extracted")

	_, err = ParseAIObject(`{"confidence": 0.5}`, "extracted", "confidence")
	assert.ErrorContains(t, err, `"extracted"`)

	_, err = ParseAIObject(`[1, 2, 3]`, "extracted")
	assert.Error(t, err)
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", StripCodeFences("plain"))
}

func TestExtractBalancedBraces(t *testing.T) {
	in := `{"reasoning": "usa {chaves} no texto", "x": {"y": 1}} tail`
	assert.Equal(t, `{"reasoning": "usa {chaves} no texto", "x": {"y": 1}}`, extractBalancedBraces(in, '{', '}'))
	assert.Equal(t, "", extractBalancedBraces(`{"open": `, '{', '}'))
}

func TestCleanAndFixJSONStripsByteOrderMark(t *testing.T) {
	assert.Equal(t, `{"people": 5}`, cleanAndFixJSON("\uFEFF{\"people\": 5,}"))

	var out map[string]interface{}
	require.NoError(t, ParseAIJSON("\uFEFF{\"people\": 5}", &out))
	assert.Equal(t, float64(5), out["people"])
}
