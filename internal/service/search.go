package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"carmatch/internal/logger"
	"carmatch/internal/metrics"
	"carmatch/internal/model"
)

const (
	// DefaultRecommendationLimit is used when the caller passes no limit.
	DefaultRecommendationLimit = 5
	// minFetch is the smallest shortlist a strategy is asked for, so the
	// overlays have room to filter.
	minFetch = 10

	recommendationLogTimeout = 5 * time.Second
)

// RecommendationLogger persists which vehicles were shown to a customer
type RecommendationLogger interface {
	LogRecommendation(ctx context.Context, entry model.RecommendationLog) error
}

// FeedbackLogger persists customer reactions to recommended vehicles
type FeedbackLogger interface {
	LogFeedback(ctx context.Context, sessionID, vehicleID, action string) error
}

// EmbeddingStore stores vehicle embeddings
type EmbeddingStore interface {
	BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string)
}

type rankingTier struct {
	strategy RankingStrategy
	breaker  *gobreaker.CircuitBreaker
}

// SearchConfig tunes CatalogSearch
type SearchConfig struct {
	MaxLimit            int
	EmbeddingDimensions int // 0 skips the dimension check
	Breaker             BreakerSettings
}

// CatalogSearch ranks the catalog for a profile through the strategy chain
// and applies the business overlays
type CatalogSearch struct {
	catalog  CatalogProvider
	tiers    []rankingTier
	embedder BatchEmbedder
	cfg      SearchConfig
	now      func() time.Time
	logger   *logger.Logger
}

// DefaultStrategies returns the hybrid, criteria and naive tiers in order.
// A nil embedder leaves the hybrid tier permanently unavailable.
func DefaultStrategies(catalog CatalogProvider, embedder Embedder, ranker *Ranker) []RankingStrategy {
	return []RankingStrategy{
		NewHybridStrategy(catalog, embedder, ranker),
		NewCriteriaStrategy(catalog, ranker),
		NewNaiveStrategy(catalog, ranker),
	}
}

// NewCatalogSearch creates a search service trying strategies in order, each
// behind its own circuit breaker. embedder may be nil.
func NewCatalogSearch(catalog CatalogProvider, strategies []RankingStrategy, embedder BatchEmbedder, cfg SearchConfig, log *logger.Logger) *CatalogSearch {
	if log == nil {
		log = logger.NewNop()
	}
	log = log.Named("search")

	tiers := make([]rankingTier, 0, len(strategies))
	for _, st := range strategies {
		tiers = append(tiers, rankingTier{
			strategy: st,
			breaker:  newBreaker("ranking_"+st.Name(), cfg.Breaker, isBenignRankingError, log),
		})
	}

	return &CatalogSearch{
		catalog:  catalog,
		tiers:    tiers,
		embedder: embedder,
		cfg:      cfg,
		now:      time.Now,
		logger:   log,
	}
}

func isBenignRankingError(err error) bool {
	return errors.Is(err, ErrNoCandidates) || errors.Is(err, ErrStrategyUnavailable) || isCallerDone(err)
}

// Search returns up to limit matches ordered by score. An empty result with a
// nil error means nothing in the catalog fits, not a failure.
func (s *CatalogSearch) Search(ctx context.Context, profile model.CustomerProfile, limit int) ([]model.ScoredMatch, error) {
	if limit <= 0 {
		limit = DefaultRecommendationLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}
	fetch := limit * 2
	if fetch < minFetch {
		fetch = minFetch
	}

	var lastErr error
	for _, tier := range s.tiers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name := tier.strategy.Name()

		out, err := tier.breaker.Execute(func() (interface{}, error) {
			return tier.strategy.Rank(ctx, profile, fetch)
		})
		if err == nil {
			matches := ApplyOverlays(profile, out.([]model.ScoredMatch), s.now())
			if len(matches) > 0 {
				metrics.RankingTier.WithLabelValues(name).Inc()
				return truncate(matches, limit), nil
			}
			err = fmt.Errorf("overlays removed every match: %w", ErrNoCandidates)
		}

		if isCallerDone(err) {
			return nil, err
		}
		reason := fallbackReason(err)
		metrics.RankingFallbacks.WithLabelValues(name, reason).Inc()
		s.logger.Info("ranking strategy skipped",
			zap.String("strategy", name),
			zap.String("reason", reason),
			zap.Error(err),
		)
		lastErr = err
	}

	if lastErr == nil || errors.Is(lastErr, ErrNoCandidates) {
		return []model.ScoredMatch{}, nil
	}
	return nil, fmt.Errorf("all ranking strategies failed: %w", lastErr)
}

func fallbackReason(err error) string {
	switch {
	case isBreakerOpen(err):
		return "breaker_open"
	case errors.Is(err, ErrStrategyUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNoCandidates):
		return "no_candidates"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// RecordRecommendation logs a shown shortlist without blocking the caller.
// It does nothing when the catalog cannot store logs.
func (s *CatalogSearch) RecordRecommendation(entry model.RecommendationLog) {
	rl, ok := s.catalog.(RecommendationLogger)
	if !ok {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), recommendationLogTimeout)
		defer cancel()
		if err := rl.LogRecommendation(ctx, entry); err != nil {
			s.logger.Warn("failed to log recommendation",
				zap.String("session_id", entry.SessionID),
				zap.Error(err),
			)
		}
	}()
}

// GetVehicle retrieves a single available vehicle
func (s *CatalogSearch) GetVehicle(ctx context.Context, id string) (*model.CatalogItem, error) {
	return s.catalog.GetVehicleByID(ctx, id)
}

// UpdateEmbeddings stores vehicle embeddings. Items without a vector are
// embedded on the server from their Text, or from the vehicle description
// when Text is empty too.
func (s *CatalogSearch) UpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	store, ok := s.catalog.(EmbeddingStore)
	if !ok {
		return 0, []string{"catalog does not store embeddings"}
	}

	var errs []string
	ready := make([]model.EmbeddingItem, 0, len(items))
	var pending []model.EmbeddingItem
	for _, it := range items {
		if len(it.Embedding) > 0 {
			ready = append(ready, it)
			continue
		}
		if it.Text == "" {
			v, err := s.catalog.GetVehicleByID(ctx, it.VehicleID)
			if err != nil {
				errs = append(errs, fmt.Sprintf("vehicle %s: %v", it.VehicleID, err))
				continue
			}
			it.Text = VehicleEmbeddingText(*v)
		}
		pending = append(pending, it)
	}

	if len(pending) > 0 {
		embedded, embedErrs := s.embedTexts(ctx, pending)
		ready = append(ready, embedded...)
		errs = append(errs, embedErrs...)
	}

	valid := ready[:0]
	for _, it := range ready {
		if s.cfg.EmbeddingDimensions > 0 && len(it.Embedding) != s.cfg.EmbeddingDimensions {
			errs = append(errs, fmt.Sprintf("vehicle %s: embedding has %d dimensions, want %d",
				it.VehicleID, len(it.Embedding), s.cfg.EmbeddingDimensions))
			continue
		}
		valid = append(valid, it)
	}
	if len(valid) == 0 {
		return 0, errs
	}

	success, storeErrs := store.BatchUpdateEmbeddings(ctx, valid)
	return success, append(errs, storeErrs...)
}

func (s *CatalogSearch) embedTexts(ctx context.Context, items []model.EmbeddingItem) ([]model.EmbeddingItem, []string) {
	fail := func(reason string) []string {
		errs := make([]string, len(items))
		for i, it := range items {
			errs[i] = fmt.Sprintf("vehicle %s: %s", it.VehicleID, reason)
		}
		return errs
	}
	if s.embedder == nil {
		return nil, fail("no embedding provider configured")
	}

	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		s.logger.Warn("batch embedding failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, fail(err.Error())
	}
	if len(vectors) != len(items) {
		return nil, fail(fmt.Sprintf("provider returned %d vectors for %d texts", len(vectors), len(items)))
	}

	for i := range items {
		items[i].Embedding = vectors[i]
	}
	return items, nil
}

// LogFeedback records a customer reaction to a recommended vehicle
func (s *CatalogSearch) LogFeedback(ctx context.Context, sessionID, vehicleID, action string) error {
	fl, ok := s.catalog.(FeedbackLogger)
	if !ok {
		s.logger.Debug("feedback dropped, catalog has no feedback log",
			zap.String("session_id", sessionID),
			zap.String("vehicle_id", vehicleID),
			zap.String("action", action),
		)
		return nil
	}
	return fl.LogFeedback(ctx, sessionID, vehicleID, action)
}
