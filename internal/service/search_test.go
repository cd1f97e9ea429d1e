package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carmatch/internal/model"
	"carmatch/internal/repository"
)

func newTestSearch(catalog CatalogProvider, embedder BatchEmbedder) *CatalogSearch {
	var emb Embedder
	if embedder != nil {
		emb = embedder
	}
	s := NewCatalogSearch(catalog, DefaultStrategies(catalog, emb, NewRanker(0.4, 0.6)), embedder, SearchConfig{
		MaxLimit: 20,
		Breaker:  BreakerSettings{FailureThreshold: 2, Cooldown: time.Minute},
	}, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestSearchCityFamilyHatchLandsInTopThree(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	profile := model.CustomerProfile{
		Budget: ptr(60000.0),
		Usage:  ptr(model.UsageCity),
		People: ptr(4),
	}

	matches, err := s.Search(context.Background(), profile, 5)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	top := matches
	if len(top) > 3 {
		top = top[:3]
	}
	var found *model.ScoredMatch
	for i := range top {
		if top[i].Vehicle.ID == "hb20-2020" {
			found = &top[i]
		}
	}
	require.NotNil(t, found, "got %v", matchIDs(matches))
	assert.Equal(t, 1.0, found.Breakdown.Credits["budget"])
	assert.Equal(t, StrategyCriteria, found.Tier)
}

func TestSearchOrdersByScoreThenTieBreak(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	matches, err := s.Search(context.Background(), model.CustomerProfile{BodyType: ptr(model.BodySedan)}, 5)
	require.NoError(t, err)

	assert.Equal(t, []string{"corolla-2021", "virtus-2020"}, matchIDs(matches))
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSearchFallsBackToNaiveWhenFiltersEmpty(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	profile := model.CustomerProfile{Budget: ptr(20000.0)}

	matches, err := s.Search(context.Background(), profile, 3)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		assert.Equal(t, StrategyNaive, m.Tier)
		assert.Contains(t, m.Breakdown.Credits, "budget")
	}
}

func TestSearchEmptyCatalogIsNotAnError(t *testing.T) {
	s := newTestSearch(repository.NewMemoryCatalog(), nil)
	matches, err := s.Search(context.Background(), model.CustomerProfile{Budget: ptr(50000.0)}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchHybridTierWithEmbeddings(t *testing.T) {
	catalog := testCatalog()
	for _, id := range []string{"hb20-2020", "onix-2019"} {
		require.NoError(t, catalog.UpdateEmbedding(context.Background(), id, []float32{1, 0, 0}))
	}
	require.NoError(t, catalog.UpdateEmbedding(context.Background(), "mobi-2018", []float32{0, 1, 0}))

	emb := &stubEmbedder{vector: []float32{1, 0, 0}}
	s := newTestSearch(catalog, emb)

	matches, err := s.Search(context.Background(), model.CustomerProfile{Budget: ptr(60000.0)}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, StrategyHybrid, matches[0].Tier)
	assert.Equal(t, []string{"hb20-2020", "onix-2019", "mobi-2018"}, matchIDs(matches))
	assert.Equal(t, 100, matches[0].Score)
	assert.Equal(t, 60, matches[2].Score)
	require.Len(t, emb.texts, 1)
	assert.Contains(t, emb.texts[0], "R$ 60.000")
}

func TestSearchHybridFailureFallsThroughAndTripsBreaker(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("embedding provider down")}
	s := newTestSearch(testCatalog(), emb)
	profile := model.CustomerProfile{Budget: ptr(60000.0)}

	for i := 0; i < 3; i++ {
		matches, err := s.Search(context.Background(), profile, 5)
		require.NoError(t, err)
		require.NotEmpty(t, matches)
		assert.Equal(t, StrategyCriteria, matches[0].Tier)
	}
	assert.Len(t, emb.texts, 2, "breaker opens after two failures")
}

func TestSearchUnavailableHybridDoesNotTripBreaker(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	for i := 0; i < 5; i++ {
		_, err := s.Search(context.Background(), model.CustomerProfile{}, 5)
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", s.tiers[0].breaker.State().String())
}

func TestSearchCatalogDownIsAnError(t *testing.T) {
	s := newTestSearch(&failingCatalog{}, nil)
	_, err := s.Search(context.Background(), model.CustomerProfile{}, 5)
	assert.Error(t, err)
}

func TestSearchCancelledContext(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, model.CustomerProfile{}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSearchLimitBounds(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)

	matches, err := s.Search(context.Background(), model.CustomerProfile{}, 0)
	require.NoError(t, err)
	assert.Len(t, matches, DefaultRecommendationLimit)

	matches, err = s.Search(context.Background(), model.CustomerProfile{}, 2)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestUpdateEmbeddings(t *testing.T) {
	catalog := testCatalog()
	emb := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	s := newTestSearch(catalog, emb)
	s.cfg.EmbeddingDimensions = 3

	success, errs := s.UpdateEmbeddings(context.Background(), []model.EmbeddingItem{
		{VehicleID: "hb20-2020", Embedding: []float32{1, 2, 3}},
		{VehicleID: "onix-2019", Text: "hatch econômico"},
		{VehicleID: "corolla-2021"},
		{VehicleID: "virtus-2020", Embedding: []float32{1, 2}},
		{VehicleID: "missing"},
	})

	assert.Equal(t, 3, success)
	assert.Len(t, errs, 2)

	v, err := catalog.GetVehicleByID(context.Background(), "corolla-2021")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v.EmbeddingVector())
	assert.Contains(t, emb.texts, "hatch econômico")
	assert.Contains(t, emb.texts[1], "Toyota Corolla")
}

func TestCosineSimilarity(t *testing.T) {
	sim, err := CosineSimilarity([]float32{1, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sim, 1e-9)

	sim, err = CosineSimilarity([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim, "opposite vectors clamp to zero")

	sim, err = CosineSimilarity([]float32{0, 0}, []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)

	_, err = CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0})
	assert.Error(t, err)
}

// loggingCatalog records recommendation logs on top of the memory catalog.
type loggingCatalog struct {
	*repository.MemoryCatalog
	logged chan model.RecommendationLog
}

func (c *loggingCatalog) LogRecommendation(_ context.Context, entry model.RecommendationLog) error {
	c.logged <- entry
	return nil
}

func TestRecordRecommendationIsAsync(t *testing.T) {
	catalog := &loggingCatalog{MemoryCatalog: testCatalog(), logged: make(chan model.RecommendationLog, 1)}
	s := newTestSearch(catalog, nil)

	s.RecordRecommendation(model.RecommendationLog{SessionID: "s1", VehicleIDs: []string{"hb20-2020"}})

	select {
	case entry := <-catalog.logged:
		assert.Equal(t, "s1", entry.SessionID)
		assert.Equal(t, []string{"hb20-2020"}, entry.VehicleIDs)
	case <-time.After(time.Second):
		t.Fatal("recommendation was not logged")
	}
}

func TestRecordRecommendationWithoutLogger(t *testing.T) {
	s := newTestSearch(testCatalog(), nil)
	assert.NotPanics(t, func() { s.RecordRecommendation(model.RecommendationLog{SessionID: "s1"}) })
}

func TestProfileQueryText(t *testing.T) {
	assert.Equal(t, "carro", ProfileQueryText(model.CustomerProfile{}))

	q := ProfileQueryText(model.CustomerProfile{MinYear: ptr(2018), MaxKm: ptr(80000)})
	assert.Equal(t, "carro, ano 2018 ou mais novo, até 80.000 km", q)

	q = ProfileQueryText(model.CustomerProfile{
		BodyType: ptr(model.BodySUV),
		People:   ptr(5),
		Budget:   ptr(90000.0),
		MinYear:  ptr(2020),
	})
	assert.Equal(t, "carro, suv, para 5 pessoas, até R$ 90.000, ano 2020 ou mais novo", q)
}
