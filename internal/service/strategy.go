package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"carmatch/internal/model"
	"carmatch/internal/utils"
)

var (
	// ErrStrategyUnavailable means a strategy lacks a collaborator it needs.
	ErrStrategyUnavailable = errors.New("ranking strategy unavailable")
	// ErrNoCandidates means a strategy ran but nothing passed its filters.
	ErrNoCandidates = errors.New("no candidates")
)

// Strategy names, also used as metric labels and ScoredMatch.Tier.
const (
	StrategyHybrid   = "hybrid"
	StrategyCriteria = "criteria"
	StrategyNaive    = "naive"
)

// budgetTolerance lets the hard filter keep vehicles slightly over budget.
const budgetTolerance = 1.1

// CatalogProvider is the read side of the vehicle catalog
type CatalogProvider interface {
	ListAvailable(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogItem, error)
	GetVehicleByID(ctx context.Context, id string) (*model.CatalogItem, error)
}

// VectorSearcher is implemented by catalogs that can rank by embedding
// similarity themselves.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, embedding []float32, limit int) ([]model.SimilarItem, error)
}

// RankingStrategy produces an ordered shortlist for a profile
type RankingStrategy interface {
	Name() string
	Rank(ctx context.Context, profile model.CustomerProfile, limit int) ([]model.ScoredMatch, error)
}

// hardFilter is the criteria-tier pre-filter derived from a profile.
func hardFilter(p model.CustomerProfile) model.CatalogFilter {
	var f model.CatalogFilter
	if b, ok := p.EffectiveBudget(); ok && b > 0 {
		maxPrice := b * budgetTolerance
		f.MaxPrice = &maxPrice
	}
	f.MinYear = p.MinYear
	f.MaxKm = p.MaxKm
	f.BodyType = p.BodyType
	return f
}

func passesFilter(it model.CatalogItem, f model.CatalogFilter) bool {
	if !it.Available {
		return false
	}
	if f.MaxPrice != nil && it.Price > *f.MaxPrice {
		return false
	}
	if f.MinYear != nil && it.Year < *f.MinYear {
		return false
	}
	if f.MaxKm != nil && it.Mileage > *f.MaxKm {
		return false
	}
	if f.BodyType != nil && !strings.EqualFold(it.BodyType, *f.BodyType) {
		return false
	}
	return true
}

func truncate(matches []model.ScoredMatch, limit int) []model.ScoredMatch {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}

// HybridStrategy blends embedding similarity with the criteria score
type HybridStrategy struct {
	catalog  CatalogProvider
	embedder Embedder
	ranker   *Ranker
}

// NewHybridStrategy creates the semantic tier. A nil embedder makes it
// permanently unavailable.
func NewHybridStrategy(catalog CatalogProvider, embedder Embedder, ranker *Ranker) *HybridStrategy {
	return &HybridStrategy{catalog: catalog, embedder: embedder, ranker: ranker}
}

func (s *HybridStrategy) Name() string { return StrategyHybrid }

func (s *HybridStrategy) Rank(ctx context.Context, p model.CustomerProfile, limit int) ([]model.ScoredMatch, error) {
	if s.embedder == nil {
		return nil, ErrStrategyUnavailable
	}

	query, err := s.embedder.Embed(ctx, ProfileQueryText(p))
	if err != nil {
		return nil, fmt.Errorf("failed to embed profile: %w", err)
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("empty profile embedding")
	}

	filter := hardFilter(p)
	var candidates []Candidate

	if vs, ok := s.catalog.(VectorSearcher); ok {
		// Over-fetch since the hard filter runs after the vector search.
		similar, err := vs.VectorSearch(ctx, query, limit*5)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		for _, it := range similar {
			if !passesFilter(it.CatalogItem, filter) {
				continue
			}
			sim := it.Similarity
			candidates = append(candidates, Candidate{Item: it.CatalogItem, Similarity: &sim})
		}
	} else {
		filter.RequireEmbedding = true
		items, err := s.catalog.ListAvailable(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list catalog: %w", err)
		}
		for _, it := range items {
			sim, err := CosineSimilarity(query, it.EmbeddingVector())
			if err != nil {
				continue
			}
			candidates = append(candidates, Candidate{Item: it, Similarity: &sim})
		}
	}

	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	return truncate(s.ranker.Rank(candidates, CriteriaFromProfile(p), StrategyHybrid), limit), nil
}

// CriteriaStrategy hard-filters the catalog and scores on criteria alone
type CriteriaStrategy struct {
	catalog CatalogProvider
	ranker  *Ranker
}

// NewCriteriaStrategy creates the criteria tier
func NewCriteriaStrategy(catalog CatalogProvider, ranker *Ranker) *CriteriaStrategy {
	return &CriteriaStrategy{catalog: catalog, ranker: ranker}
}

func (s *CriteriaStrategy) Name() string { return StrategyCriteria }

func (s *CriteriaStrategy) Rank(ctx context.Context, p model.CustomerProfile, limit int) ([]model.ScoredMatch, error) {
	items, err := s.catalog.ListAvailable(ctx, hardFilter(p))
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoCandidates
	}
	return truncate(s.ranker.Rank(toCandidates(items), CriteriaFromProfile(p), StrategyCriteria), limit), nil
}

// NaiveStrategy ranks the whole available catalog. It only comes back empty
// when the catalog is.
type NaiveStrategy struct {
	catalog CatalogProvider
	ranker  *Ranker
}

// NewNaiveStrategy creates the last-resort tier
func NewNaiveStrategy(catalog CatalogProvider, ranker *Ranker) *NaiveStrategy {
	return &NaiveStrategy{catalog: catalog, ranker: ranker}
}

func (s *NaiveStrategy) Name() string { return StrategyNaive }

func (s *NaiveStrategy) Rank(ctx context.Context, p model.CustomerProfile, limit int) ([]model.ScoredMatch, error) {
	items, err := s.catalog.ListAvailable(ctx, model.CatalogFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list catalog: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoCandidates
	}
	return truncate(s.ranker.Rank(toCandidates(items), CriteriaFromProfile(p), StrategyNaive), limit), nil
}

func toCandidates(items []model.CatalogItem) []Candidate {
	out := make([]Candidate, len(items))
	for i, it := range items {
		out[i] = Candidate{Item: it}
	}
	return out
}

// ProfileQueryText renders a profile as the free text that gets embedded for
// the semantic tier.
func ProfileQueryText(p model.CustomerProfile) string {
	parts := []string{"carro"}
	if p.BodyType != nil {
		parts = append(parts, *p.BodyType)
	}
	if p.Brand != nil {
		parts = append(parts, *p.Brand)
	}
	if p.Model != nil {
		parts = append(parts, *p.Model)
	}
	if p.People != nil {
		parts = append(parts, fmt.Sprintf("para %d pessoas", *p.People))
	}
	if p.Usage != nil {
		parts = append(parts, "uso "+*p.Usage)
	}
	if p.PrimaryUse != nil {
		parts = append(parts, "uso principal "+*p.PrimaryUse)
	}
	if b, ok := p.EffectiveBudget(); ok {
		parts = append(parts, "até "+utils.FormatBRL(b))
	}
	if p.MinYear != nil {
		parts = append(parts, fmt.Sprintf("ano %d ou mais novo", *p.MinYear))
	}
	if p.MaxKm != nil {
		parts = append(parts, "até "+utils.FormatInt(*p.MaxKm)+" km")
	}
	if p.Transmission != nil {
		parts = append(parts, "câmbio "+*p.Transmission)
	}
	if p.FuelType != nil {
		parts = append(parts, *p.FuelType)
	}
	if len(p.Priorities) > 0 {
		parts = append(parts, "prioridades: "+strings.Join(p.Priorities, ", "))
	}
	return strings.Join(parts, ", ")
}

// VehicleEmbeddingText renders a vehicle as the free text that gets embedded
// into the catalog.
func VehicleEmbeddingText(v model.CatalogItem) string {
	parts := []string{
		v.DisplayName(),
		fmt.Sprintf("%d", v.Year),
		v.BodyType,
		utils.FormatInt(v.Mileage) + " km",
		utils.FormatBRL(v.Price),
	}
	if v.Transmission != nil {
		parts = append(parts, "câmbio "+*v.Transmission)
	}
	if v.FuelType != nil {
		parts = append(parts, *v.FuelType)
	}
	for _, f := range []model.Feature{
		model.FeatureAirConditioning, model.FeaturePowerSteering, model.FeatureAirbags,
		model.FeatureABS, model.FeaturePowerWindows, model.FeaturePowerLocks, model.FeatureAlarm,
	} {
		if v.HasFeature(f) {
			parts = append(parts, utils.FeatureLabel(f))
		}
	}
	return strings.Join(parts, ", ")
}

// CosineSimilarity returns the cosine of the angle between a and b, clamped
// to [0,1]. Zero vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimension mismatch: %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dot, aMag, bMag float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}
	if aMag == 0 || bMag == 0 {
		return 0, nil
	}
	return clamp01(dot / (math.Sqrt(aMag) * math.Sqrt(bMag))), nil
}
