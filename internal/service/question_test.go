package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmatch/internal/model"
)

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Qual a diferença entre SUV e sedan?", true},
		{"qual o consumo do onix", true},
		{"Como funciona o financiamento", true},
		{"Me explica a diferença entre hatch e sedan", true},
		{"O que é câmbio CVT", true},
		{"Vocês têm algum Corolla", true},
		{"Pode me explicar as garantias", true},
		{"Queria saber do seguro", true},
		{"Do you have any SUVs", true},
		{"tem alguma picape", true},
		{"até 50 mil", false},
		{"Quero um SUV para a família", false},
		{"5 pessoas", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestion(tt.msg))
		})
	}
}

func TestFallbackQuestionOrder(t *testing.T) {
	r := model.Readiness{Action: model.ActionContinueAsking}

	assert.Equal(t, questionFallbackBudget, FallbackQuestion(model.CustomerProfile{}, r))
	assert.Equal(t, questionFallbackUsage, FallbackQuestion(model.CustomerProfile{Budget: ptr(50000.0)}, r))
	assert.Equal(t, questionFallbackPeople, FallbackQuestion(model.CustomerProfile{
		Budget: ptr(50000.0), PrimaryUse: ptr(model.PrimaryUseFamily),
	}, r))
	assert.Equal(t, questionFallbackGeneric, FallbackQuestion(model.CustomerProfile{
		Budget: ptr(50000.0), Usage: ptr(model.UsageCity), People: ptr(2),
	}, r))
}

func TestFallbackQuestionConfirmationVariant(t *testing.T) {
	r := model.Readiness{Action: model.ActionAskConfirmation, MissingRequired: []string{"people"}}
	q := FallbackQuestion(model.CustomerProfile{Budget: ptr(50000.0), Usage: ptr(model.UsageCity)}, r)

	assert.True(t, strings.HasPrefix(q, confirmationPrefix))
	assert.Contains(t, q, questionFallbackPeople)
}

func TestNextQuestionUsesInference(t *testing.T) {
	stub := &stubCompleter{responses: []string{"  Legal! Quantas pessoas costumam andar com você?  "}}
	c := NewConversationalist(stub, nil)

	q := c.NextQuestion(context.Background(), model.CustomerProfile{}, model.Readiness{MissingRequired: []string{"people"}}, "")
	assert.Equal(t, "Legal! Quantas pessoas costumam andar com você?", q)
	require.Equal(t, 1, stub.callCount())
	assert.Contains(t, stub.calls[0][0].Content, "INFORMAÇÕES QUE AINDA PRECISAMOS: people")
}

func TestNextQuestionFallsBackOnFailure(t *testing.T) {
	for _, stub := range []*stubCompleter{
		{err: errors.New("timeout")},
		{responses: []string{"   "}},
	} {
		c := NewConversationalist(stub, nil)
		q := c.NextQuestion(context.Background(), model.CustomerProfile{}, model.Readiness{}, "")
		assert.Equal(t, questionFallbackBudget, q)
	}

	q := NewConversationalist(nil, nil).NextQuestion(context.Background(), model.CustomerProfile{}, model.Readiness{}, "")
	assert.Equal(t, questionFallbackBudget, q)
}

func TestAnswerQuestion(t *testing.T) {
	matches := asMatches(
		vehicle("a", "Hyundai", "Creta", model.BodySUV, 2022, 20000, 105000),
		vehicle("b", "Toyota", "Corolla", model.BodySedan, 2021, 30000, 115000),
	)

	t.Run("catalog context reaches the prompt", func(t *testing.T) {
		stub := &stubCompleter{responses: []string{"SUVs são mais altos; sedans têm porta-malas maior."}}
		answer := NewConversationalist(stub, nil).AnswerQuestion(context.Background(),
			"Qual a diferença entre SUV e sedan?", model.CustomerProfile{}, matches, "")

		assert.Equal(t, "SUVs são mais altos; sedans têm porta-malas maior.", answer)
		prompt := stub.calls[0][0].Content
		assert.Contains(t, prompt, "1. Hyundai Creta 2022 - R$ 105.000")
		assert.Contains(t, prompt, "2. Toyota Corolla 2021 - R$ 115.000")
	})

	t.Run("fallback lists the vehicles", func(t *testing.T) {
		answer := NewConversationalist(&stubCompleter{err: errors.New("down")}, nil).
			AnswerQuestion(context.Background(), "tem suv?", model.CustomerProfile{}, matches, "")
		assert.Contains(t, answer, "Hyundai Creta 2022")
	})

	t.Run("fallback without vehicles apologizes", func(t *testing.T) {
		answer := NewConversationalist(nil, nil).
			AnswerQuestion(context.Background(), "tem suv?", model.CustomerProfile{}, nil, "")
		assert.Equal(t, answerFallback, answer)
	})
}

func TestFormatRecommendations(t *testing.T) {
	matches := asMatches(
		vehicle("hb20", "Hyundai", "HB20", model.BodyHatch, 2020, 40000, 55000, withTransmission("manual")),
		vehicle("onix", "Chevrolet", "Onix", model.BodyHatch, 2019, 65000, 52000),
	)
	matches[0].Reasons = []string{ReasonWithinBudget}
	p := model.CustomerProfile{Budget: ptr(60000.0), Usage: ptr(model.UsageCity), People: ptr(4)}

	msg := FormatRecommendations(matches, p)

	assert.True(t, strings.HasPrefix(msg, "Perfeito! Encontrei 2 veículos ideais para uso urbano, 4 pessoas, até R$ 60.000:"), msg)
	assert.Contains(t, msg, "1. 🏆 *Hyundai HB20 2020*")
	assert.Contains(t, msg, "💰 R$ 55.000")
	assert.Contains(t, msg, "🛣️ 40.000 km")
	assert.Contains(t, msg, "hatch | manual")
	assert.Contains(t, msg, "✅ "+ReasonWithinBudget)
	assert.Contains(t, msg, "2. *Chevrolet Onix 2019*")

	assert.Equal(t, NoMatchesMessage, FormatRecommendations(nil, p))
}
