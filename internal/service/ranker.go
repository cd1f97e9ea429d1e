package service

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"carmatch/internal/model"
	"carmatch/internal/utils"
)

// Match reason constants
const (
	ReasonWithinBudget   = "Dentro do orçamento"
	ReasonNearBudget     = "Pouco acima do orçamento"
	ReasonLowMileage     = "Quilometragem dentro do esperado"
	ReasonBodyTypeMatch  = "Categoria que você pediu"
	ReasonBrandMatch     = "Marca de sua preferência"
	ReasonSemanticMatch  = "Combina com o seu perfil"
	ReasonGeneralMatch   = "Boa opção no estoque"
	reasonYearFormat     = "Ano %d"
	reasonFeaturesFormat = "Tem %s"
)

// Criterion weights before renormalization.
var criterionWeights = map[string]float64{
	"budget":   0.30,
	"year":     0.15,
	"mileage":  0.15,
	"bodyType": 0.20,
	"brand":    0.10,
	"features": 0.10,
}

// neutralCriteriaScore is used when the profile states no criteria at all.
const neutralCriteriaScore = 0.5

// Criteria are the profile fields the ranker scores against
type Criteria struct {
	Budget   *float64
	MinYear  *int
	MaxKm    *int
	BodyType string
	Brand    string
	Features []model.Feature
}

// CriteriaFromProfile derives ranking criteria from a customer profile
func CriteriaFromProfile(p model.CustomerProfile) Criteria {
	var c Criteria
	if b, ok := p.EffectiveBudget(); ok {
		c.Budget = &b
	}
	c.MinYear = p.MinYear
	c.MaxKm = p.MaxKm
	if p.BodyType != nil {
		c.BodyType = *p.BodyType
	}
	if p.Brand != nil {
		c.Brand = utils.Fold(*p.Brand)
	}
	c.Features = utils.RequestedFeatures(p.Priorities)
	return c
}

// Ranker scores catalog items against criteria and optional semantic similarity
type Ranker struct {
	semanticWeight float64
	criteriaWeight float64
}

// NewRanker creates a ranker; the weights are normalized to sum to 1
func NewRanker(semanticWeight, criteriaWeight float64) *Ranker {
	total := semanticWeight + criteriaWeight
	if total <= 0 {
		semanticWeight, criteriaWeight, total = 0.4, 0.6, 1
	}
	return &Ranker{
		semanticWeight: semanticWeight / total,
		criteriaWeight: criteriaWeight / total,
	}
}

// Candidate is an item to rank, with its similarity when known
type Candidate struct {
	Item       model.CatalogItem
	Similarity *float64
}

// Rank scores candidates and returns them best first. Candidates with a
// similarity use the hybrid formula, the rest are scored on criteria alone.
func (r *Ranker) Rank(candidates []Candidate, c Criteria, tier string) []model.ScoredMatch {
	results := make([]model.ScoredMatch, 0, len(candidates))

	for _, cand := range candidates {
		criteriaScore, credits := ScoreCriteria(cand.Item, c)
		final := criteriaScore

		var semantic *float64
		if cand.Similarity != nil {
			s := clamp01(*cand.Similarity)
			semantic = &s
			final = r.semanticWeight*s + r.criteriaWeight*criteriaScore
		}

		results = append(results, model.ScoredMatch{
			Vehicle: cand.Item,
			Score:   toScore(final),
			Reasons: r.generateMatchedReasons(cand.Item, c, credits, semantic),
			Breakdown: model.ScoreBreakdown{
				Semantic: semantic,
				Criteria: criteriaScore,
				Credits:  credits,
			},
			Tier: tier,
		})
	}

	SortMatches(results)
	return results
}

// ScoreCriteria returns the weighted criteria score in [0,1] and the credit
// earned on each stated criterion. Criteria that are not stated are left out
// and the remaining weights renormalized.
func ScoreCriteria(item model.CatalogItem, c Criteria) (float64, map[string]float64) {
	credits := make(map[string]float64)

	if c.Budget != nil && *c.Budget > 0 {
		credits["budget"] = budgetCredit(item.Price, *c.Budget)
	}
	if c.MinYear != nil {
		credits["year"] = yearCredit(item.Year, *c.MinYear)
	}
	if c.MaxKm != nil {
		credits["mileage"] = mileageCredit(item.Mileage, *c.MaxKm)
	}
	if c.BodyType != "" {
		credits["bodyType"] = boolCredit(strings.EqualFold(item.BodyType, c.BodyType))
	}
	if c.Brand != "" {
		credits["brand"] = boolCredit(strings.Contains(utils.Fold(item.Brand), c.Brand))
	}
	if len(c.Features) > 0 {
		matched := 0
		for _, f := range c.Features {
			if item.HasFeature(f) {
				matched++
			}
		}
		credits["features"] = float64(matched) / float64(len(c.Features))
	}

	if len(credits) == 0 {
		return neutralCriteriaScore, credits
	}

	var weighted, totalWeight float64
	for name, credit := range credits {
		w := criterionWeights[name]
		weighted += w * credit
		totalWeight += w
	}
	return clamp01(weighted / totalWeight), credits
}

func budgetCredit(price, budget float64) float64 {
	switch {
	case price <= budget:
		return 1
	case price <= budget*1.1:
		return 0.7
	case price <= budget*1.2:
		return 0.4
	default:
		return 0
	}
}

// yearCredit is full at the floor, decays 5% per year above it down to 0.5,
// and loses 20% per year below it.
func yearCredit(year, floor int) float64 {
	if year >= floor {
		return math.Max(0.5, 1-0.05*float64(year-floor))
	}
	return math.Max(0, 1-0.2*float64(floor-year))
}

func mileageCredit(km, ceiling int) float64 {
	switch {
	case km <= ceiling:
		return 1
	case float64(km) <= float64(ceiling)*1.2:
		return 0.5
	default:
		return 0
	}
}

func boolCredit(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toScore(final float64) int {
	return int(math.Round(clamp01(final) * 100))
}

// SortMatches orders by score desc, then price desc, mileage asc, year desc,
// and id for a stable total order.
func SortMatches(matches []model.ScoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Vehicle.Price != b.Vehicle.Price {
			return a.Vehicle.Price > b.Vehicle.Price
		}
		if a.Vehicle.Mileage != b.Vehicle.Mileage {
			return a.Vehicle.Mileage < b.Vehicle.Mileage
		}
		if a.Vehicle.Year != b.Vehicle.Year {
			return a.Vehicle.Year > b.Vehicle.Year
		}
		return a.Vehicle.ID < b.Vehicle.ID
	})
}

// generateMatchedReasons explains a match in customer-facing terms
func (r *Ranker) generateMatchedReasons(item model.CatalogItem, c Criteria, credits map[string]float64, semantic *float64) []string {
	reasons := []string{}

	if credit, ok := credits["budget"]; ok {
		if credit == 1 {
			reasons = append(reasons, ReasonWithinBudget)
		} else if credit > 0 {
			reasons = append(reasons, ReasonNearBudget)
		}
	}
	if credit, ok := credits["year"]; ok && credit >= 0.8 {
		reasons = append(reasons, fmt.Sprintf(reasonYearFormat, item.Year))
	}
	if credit, ok := credits["mileage"]; ok && credit == 1 {
		reasons = append(reasons, ReasonLowMileage)
	}
	if credits["bodyType"] == 1 {
		reasons = append(reasons, ReasonBodyTypeMatch)
	}
	if credits["brand"] == 1 {
		reasons = append(reasons, ReasonBrandMatch)
	}
	if credits["features"] > 0 {
		var have []string
		for _, f := range c.Features {
			if item.HasFeature(f) {
				have = append(have, utils.FeatureLabel(f))
			}
		}
		reasons = append(reasons, fmt.Sprintf(reasonFeaturesFormat, strings.Join(have, ", ")))
	}
	if semantic != nil && *semantic >= 0.75 {
		reasons = append(reasons, ReasonSemanticMatch)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, ReasonGeneralMatch)
	}
	return reasons
}
