package service

import (
	"fmt"
	"math"
	"strings"

	"carmatch/internal/model"
)

// Thresholds on the number of customer messages.
const (
	oneMissingOverride = 5
	messageCeiling     = 8
	confirmationAfter  = 3
)

// Assess decides whether the profile is complete enough to recommend.
// Required: budget, usage, people. Optional: bodyType, minYear, transmission.
func Assess(p model.CustomerProfile, meta model.ConversationMeta) model.Readiness {
	_, hasBudget := p.EffectiveBudget()

	var missingRequired, missingOptional []string
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"budget", hasBudget},
		{"usage", p.HasUsage()},
		{"people", p.People != nil},
	} {
		if !f.present {
			missingRequired = append(missingRequired, f.name)
		}
	}
	for _, f := range []struct {
		name    string
		present bool
	}{
		{"bodyType", p.BodyType != nil},
		{"minYear", p.MinYear != nil},
		{"transmission", p.Transmission != nil},
	} {
		if !f.present {
			missingOptional = append(missingOptional, f.name)
		}
	}

	requiredPresent := 3 - len(missingRequired)
	optionalPresent := 3 - len(missingOptional)
	confidence := int(math.Round(math.Min(100, float64(requiredPresent)*100/3+float64(optionalPresent)*30/3)))

	r := model.Readiness{
		Confidence:      confidence,
		MissingRequired: missingRequired,
		MissingOptional: missingOptional,
	}

	switch {
	case len(missingRequired) == 0:
		r.CanRecommend = true
		r.Action = model.ActionRecommendNow
		r.Reasoning = "all required information collected"
	case len(missingRequired) == 1 && meta.MessageCount >= oneMissingOverride:
		r.CanRecommend = true
		r.Action = model.ActionRecommendNow
		r.Reasoning = fmt.Sprintf("only %s missing after %d messages", missingRequired[0], meta.MessageCount)
	case meta.MessageCount >= messageCeiling:
		r.CanRecommend = true
		r.Action = model.ActionRecommendNow
		r.Reasoning = fmt.Sprintf("conversation reached %d messages", meta.MessageCount)
	case len(missingRequired) == 1 && meta.MessageCount >= confirmationAfter:
		r.Action = model.ActionAskConfirmation
		r.Reasoning = "one last required field: " + missingRequired[0]
	default:
		r.Action = model.ActionContinueAsking
		r.Reasoning = "missing: " + strings.Join(missingRequired, ", ")
	}
	return r
}
