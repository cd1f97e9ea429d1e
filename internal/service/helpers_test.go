package service

import (
	"context"
	"errors"
	"sync"

	"carmatch/internal/model"
	"carmatch/internal/repository"
)

func ptr[T any](v T) *T { return &v }

// stubCompleter replays canned responses in order; the last one repeats.
type stubCompleter struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     [][]ChatMessage
}

func (s *stubCompleter) Complete(_ context.Context, messages []ChatMessage, _ CompletionOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, messages)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no response scripted")
	}
	out := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return out, nil
}

func (s *stubCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// namedStub is a stubCompleter with a provider name.
type namedStub struct {
	stubCompleter
	name string
}

func (n *namedStub) Name() string { return n.name }

// stubEmbedder returns a fixed vector for every text.
type stubEmbedder struct {
	vector []float32
	err    error
	texts  []string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		s.texts = append(s.texts, t)
		out[i] = s.vector
	}
	return out, nil
}

// failingCatalog errors on every read.
type failingCatalog struct{ calls int }

func (f *failingCatalog) ListAvailable(context.Context, model.CatalogFilter) ([]model.CatalogItem, error) {
	f.calls++
	return nil, errors.New("connection refused")
}

func (f *failingCatalog) GetVehicleByID(context.Context, string) (*model.CatalogItem, error) {
	return nil, errors.New("connection refused")
}

type vehicleOpt func(*model.CatalogItem)

func withAC() vehicleOpt { return func(v *model.CatalogItem) { v.AirConditioning = true } }

func withDoors(n int) vehicleOpt { return func(v *model.CatalogItem) { v.Doors = n } }

func withTransmission(t string) vehicleOpt {
	return func(v *model.CatalogItem) { v.Transmission = ptr(t) }
}

func withFeatures(fs ...model.Feature) vehicleOpt {
	return func(v *model.CatalogItem) {
		for _, f := range fs {
			switch f {
			case model.FeatureAirConditioning:
				v.AirConditioning = true
			case model.FeaturePowerSteering:
				v.PowerSteering = true
			case model.FeatureAirbags:
				v.Airbags = true
			case model.FeatureABS:
				v.ABS = true
			case model.FeaturePowerWindows:
				v.PowerWindows = true
			case model.FeaturePowerLocks:
				v.PowerLocks = true
			case model.FeatureAlarm:
				v.Alarm = true
			}
		}
	}
}

func vehicle(id, brand, mdl, body string, year, km int, price float64, opts ...vehicleOpt) model.CatalogItem {
	v := model.CatalogItem{
		ID:        id,
		Brand:     brand,
		Model:     mdl,
		Year:      year,
		Mileage:   km,
		Price:     price,
		BodyType:  body,
		Doors:     4,
		Available: true,
	}
	for _, o := range opts {
		o(&v)
	}
	return v
}

// testInventory is a small lot covering every body type.
func testInventory() []model.CatalogItem {
	return []model.CatalogItem{
		vehicle("hb20-2020", "Hyundai", "HB20", model.BodyHatch, 2020, 40000, 55000, withAC()),
		vehicle("onix-2019", "Chevrolet", "Onix", model.BodyHatch, 2019, 65000, 52000, withAC()),
		vehicle("corolla-2021", "Toyota", "Corolla", model.BodySedan, 2021, 30000, 115000, withAC(), withTransmission("automatico")),
		vehicle("virtus-2020", "Volkswagen", "Virtus", model.BodySedan, 2020, 45000, 78000, withAC()),
		vehicle("creta-2022", "Hyundai", "Creta", model.BodySUV, 2022, 20000, 105000, withAC(), withTransmission("automatico")),
		vehicle("mobi-2018", "Fiat", "Mobi", model.BodyHatch, 2018, 70000, 38000),
		vehicle("strada-2021", "Fiat", "Strada", model.BodyPickup, 2021, 50000, 89000, withAC()),
		vehicle("spin-2019", "Chevrolet", "Spin", model.BodyMinivan, 2019, 80000, 72000, withAC(), withDoors(5)),
	}
}

func testCatalog() *repository.MemoryCatalog {
	return repository.NewMemoryCatalog(testInventory()...)
}

func matchIDs(matches []model.ScoredMatch) []string {
	ids := make([]string, len(matches))
	for i, m := range matches {
		ids[i] = m.Vehicle.ID
	}
	return ids
}
