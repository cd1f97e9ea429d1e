package service

import (
	"fmt"
	"strings"

	"carmatch/internal/model"
	"carmatch/internal/utils"
)

// NoMatchesMessage is sent when nothing in the catalog fits the profile.
const NoMatchesMessage = `Hmm, não encontrei veículos que atendam exatamente suas preferências. 🤔

Posso ajustar os critérios? Por exemplo:
- Aumentar o orçamento em 10-20%?
- Considerar anos um pouco mais antigos?
- Ver outras categorias de veículos?

Me diz o que prefere!`

const recommendationOutro = `Qual te interessou mais? Posso dar mais detalhes! 😊

_Digite "reiniciar" para nova busca ou "vendedor" para falar com nossa equipe._`

var usageLabels = map[string]string{
	model.UsageCity:   "uso urbano",
	model.UsageTravel: "viagens",
	model.UsageWork:   "trabalho",
	model.UsageMixed:  "uso variado",
}

// FormatRecommendations renders a shortlist as a chat message.
func FormatRecommendations(matches []model.ScoredMatch, p model.CustomerProfile) string {
	if len(matches) == 0 {
		return NoMatchesMessage
	}

	items := make([]string, len(matches))
	for i, m := range matches {
		items[i] = formatMatch(i, m)
	}
	return recommendationIntro(p, len(matches)) + "\n\n" + strings.Join(items, "\n\n") + "\n\n" + recommendationOutro
}

func formatMatch(i int, m model.ScoredMatch) string {
	v := m.Vehicle
	var b strings.Builder

	medal := ""
	if i == 0 {
		medal = "🏆 "
	}
	fmt.Fprintf(&b, "%d. %s*%s %d*\n", i+1, medal, v.DisplayName(), v.Year)
	fmt.Fprintf(&b, "   💰 %s\n", utils.FormatBRL(v.Price))
	fmt.Fprintf(&b, "   🛣️ %s km\n", utils.FormatInt(v.Mileage))
	fmt.Fprintf(&b, "   🚗 %s", v.BodyType)
	if v.Transmission != nil && *v.Transmission != "" {
		fmt.Fprintf(&b, " | %s", *v.Transmission)
	}
	if len(m.Reasons) > 0 {
		fmt.Fprintf(&b, "\n   ✅ %s", strings.Join(m.Reasons, " · "))
	}
	if v.URL != nil && *v.URL != "" {
		fmt.Fprintf(&b, "\n   🔗 %s", *v.URL)
	}
	return b.String()
}

func recommendationIntro(p model.CustomerProfile, count int) string {
	var parts []string
	if p.Usage != nil {
		if label, ok := usageLabels[*p.Usage]; ok {
			parts = append(parts, label)
		}
	}
	if p.People != nil {
		parts = append(parts, fmt.Sprintf("%d pessoas", *p.People))
	}
	if b, ok := p.EffectiveBudget(); ok {
		parts = append(parts, "até "+utils.FormatBRL(b))
	}

	criteria := ""
	if len(parts) > 0 {
		criteria = " para " + strings.Join(parts, ", ")
	}
	if count == 1 {
		return fmt.Sprintf("Perfeito! Encontrei 1 veículo ideal%s:", criteria)
	}
	return fmt.Sprintf("Perfeito! Encontrei %d veículos ideais%s:", count, criteria)
}

const (
	// ApologyMessage is the single reply for unexpected turn failures.
	ApologyMessage = "Desculpe, tive um problema ao processar sua mensagem. Pode reformular?"
	// ResetMessage confirms a restarted conversation.
	ResetMessage = "Tudo certo, vamos começar de novo! 🚗 Me conta: que tipo de carro você está procurando?"
	// GoodbyeMessage closes a conversation.
	GoodbyeMessage = "Obrigado pela conversa! Quando quiser retomar a busca é só mandar uma mensagem. 👋"
	// HandoffMessage confirms that a salesperson will take over.
	HandoffMessage = "Perfeito! Já avisei nossa equipe de vendas e um consultor vai falar com você em instantes. 🙌"
)
