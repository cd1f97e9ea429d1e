package service

import (
	"strings"
	"time"

	"carmatch/internal/model"
	"carmatch/internal/utils"
)

// minViableMatches is the shortlist size below which a post-filter relaxes.
const minViableMatches = 3

// adjacentBodies is the first relaxation step: roomy body types that suit
// most family and ride-hailing profiles.
var adjacentBodies = []string{model.BodySUV, model.BodySedan, model.BodyMinivan}

// RideTierRule is the eligibility policy for one ride-hailing tier
type RideTierRule struct {
	MinYear         int
	MinDoors        int
	AirConditioning bool
	Bodies          []string
}

// RideTierRules is the static eligibility table per ride-hailing tier.
var RideTierRules = map[string]RideTierRule{
	model.RideTierX:       {MinYear: 2012, MinDoors: 4, AirConditioning: true, Bodies: []string{model.BodySedan, model.BodyHatch}},
	model.RideTierComfort: {MinYear: 2015, MinDoors: 4, AirConditioning: true, Bodies: []string{model.BodySedan, model.BodySUV}},
	model.RideTierBlack:   {MinYear: 2018, MinDoors: 4, AirConditioning: true, Bodies: []string{model.BodySedan}},
}

// familyDenylist holds very small hatches that never fit a family.
var familyDenylist = []string{"mobi", "kwid", "up", "uno", "ka", "march", "sandero"}

// roomyHatches are the hatches that still take a child seat comfortably.
var roomyHatches = []string{"fit", "golf", "polo", "argo"}

// smallHatches are excluded by the hatch_pequeno deal-breaker.
var smallHatches = []string{"mobi", "kwid", "up", "uno", "ka", "march", "gol", "celta", "palio", "clio"}

// Deal-breaker keywords understood by the overlay.
const (
	DealBreakerHighMileage = "alta_quilometragem"
	DealBreakerTooOld      = "muito_antigo"
	DealBreakerSmallHatch  = "hatch_pequeno"
	DealBreakerManual      = "manual"
	DealBreakerAutomatic   = "automatico"

	highMileageThreshold = 100000
	tooOldYears          = 10
)

// ApplyOverlays runs the business post-filters over a ranked shortlist,
// preserving order. Deal-breakers are hard exclusions; the ride-hailing and
// family rules relax when they would leave fewer than three matches.
func ApplyOverlays(p model.CustomerProfile, matches []model.ScoredMatch, now time.Time) []model.ScoredMatch {
	out := filterMatches(matches, func(v model.CatalogItem) bool {
		return !violatesDealBreaker(p, v, now)
	})

	if p.PrimaryUse != nil && *p.PrimaryUse == model.PrimaryUseRideHailing {
		rule := RideTierRules[rideTier(p)]
		out = relaxed(out, func(v model.CatalogItem) bool { return rule.Eligible(v) })
	}

	if isFamilyProfile(p) {
		askedHatch := p.BodyType != nil && *p.BodyType == model.BodyHatch
		childSeat := p.HasPriority("cadeirinha", "crianca")
		out = relaxed(out, func(v model.CatalogItem) bool { return familyFit(v, askedHatch, childSeat) })
	}

	return out
}

// Eligible reports whether a vehicle meets the tier policy.
func (r RideTierRule) Eligible(v model.CatalogItem) bool {
	if v.Year < r.MinYear || v.Doors < r.MinDoors {
		return false
	}
	if r.AirConditioning && !v.AirConditioning {
		return false
	}
	return containsFold(r.Bodies, v.BodyType)
}

func rideTier(p model.CustomerProfile) string {
	if p.RideTier != nil {
		if _, ok := RideTierRules[*p.RideTier]; ok {
			return *p.RideTier
		}
	}
	return model.RideTierX
}

func isFamilyProfile(p model.CustomerProfile) bool {
	if p.PrimaryUse != nil && *p.PrimaryUse == model.PrimaryUseFamily {
		return true
	}
	if p.HasPriority("familia", "cadeirinha", "crianca") {
		return true
	}
	return p.People != nil && *p.People >= 4
}

func familyFit(v model.CatalogItem, askedHatch, childSeat bool) bool {
	if !askedHatch && modelIn(v, familyDenylist) {
		return false
	}
	if childSeat && strings.EqualFold(v.BodyType, model.BodyHatch) {
		return modelIn(v, roomyHatches)
	}
	return true
}

func violatesDealBreaker(p model.CustomerProfile, v model.CatalogItem, now time.Time) bool {
	for _, db := range p.DealBreakers {
		switch db {
		case DealBreakerHighMileage:
			if v.Mileage > highMileageThreshold {
				return true
			}
		case DealBreakerTooOld:
			if v.Year < now.Year()-tooOldYears {
				return true
			}
		case DealBreakerSmallHatch:
			if strings.EqualFold(v.BodyType, model.BodyHatch) && modelIn(v, smallHatches) {
				return true
			}
		case DealBreakerManual, DealBreakerAutomatic:
			if v.Transmission != nil && utils.Fold(*v.Transmission) == db {
				return true
			}
		}
	}
	return false
}

// relaxed applies keep, then falls back to adjacent body types and finally
// to the unfiltered input when too few matches survive.
func relaxed(matches []model.ScoredMatch, keep func(model.CatalogItem) bool) []model.ScoredMatch {
	strict := filterMatches(matches, keep)
	if len(strict) >= minViableMatches || len(matches) < minViableMatches {
		return strict
	}

	adjacent := filterMatches(matches, func(v model.CatalogItem) bool {
		return containsFold(adjacentBodies, v.BodyType)
	})
	if len(adjacent) >= minViableMatches {
		return adjacent
	}
	return matches
}

func filterMatches(matches []model.ScoredMatch, keep func(model.CatalogItem) bool) []model.ScoredMatch {
	out := make([]model.ScoredMatch, 0, len(matches))
	for _, m := range matches {
		if keep(m.Vehicle) {
			out = append(out, m)
		}
	}
	return out
}

// modelIn matches whole words of the model name, so "up" does not hit "uptown".
func modelIn(v model.CatalogItem, names []string) bool {
	words := strings.FieldsFunc(utils.Fold(v.Model), func(r rune) bool {
		return r == ' ' || r == '-' || r == '!'
	})
	for _, w := range words {
		for _, n := range names {
			if w == n {
				return true
			}
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
