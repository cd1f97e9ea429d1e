package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/pgvector/pgvector-go"

	"carmatch/internal/model"
)

// MemoryCatalog is an in-process catalog snapshot, used when no database is
// configured and in tests
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]model.CatalogItem
}

// NewMemoryCatalog creates a catalog holding the given vehicles
func NewMemoryCatalog(items ...model.CatalogItem) *MemoryCatalog {
	c := &MemoryCatalog{items: make(map[string]model.CatalogItem, len(items))}
	for _, it := range items {
		c.items[it.ID] = it
	}
	return c
}

// LoadMemoryCatalog reads a JSON array of vehicles from path
func LoadMemoryCatalog(path string) (*MemoryCatalog, error) {
	items, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return NewMemoryCatalog(items...), nil
}

func readCatalogFile(path string) ([]model.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	var items []model.CatalogItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}
	return items, nil
}

// Reload replaces the catalog with the contents of path. Vehicles that keep
// their ID keep their embedding.
func (c *MemoryCatalog) Reload(path string) (int, error) {
	items, err := readCatalogFile(path)
	if err != nil {
		return 0, err
	}
	c.Replace(items)
	return len(items), nil
}

// Replace swaps the whole catalog
func (c *MemoryCatalog) Replace(items []model.CatalogItem) {
	next := make(map[string]model.CatalogItem, len(items))
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range items {
		if old, ok := c.items[it.ID]; ok && it.Embedding == nil {
			it.Embedding = old.Embedding
		}
		next[it.ID] = it
	}
	c.items = next
}

// Upsert adds or replaces a vehicle
func (c *MemoryCatalog) Upsert(item model.CatalogItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[item.ID] = item
}

// ListAvailable returns available vehicles matching the filter
func (c *MemoryCatalog) ListAvailable(_ context.Context, filter model.CatalogFilter) ([]model.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.CatalogItem, 0, len(c.items))
	for _, it := range c.items {
		if matchesFilter(it, filter) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Price != b.Price {
			return a.Price > b.Price
		}
		if a.Mileage != b.Mileage {
			return a.Mileage < b.Mileage
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.ID < b.ID
	})
	return out, nil
}

func matchesFilter(it model.CatalogItem, f model.CatalogFilter) bool {
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
	if f.Brand != nil && !strings.Contains(strings.ToLower(it.Brand), strings.ToLower(*f.Brand)) {
		return false
	}
	if f.RequireEmbedding && len(it.EmbeddingVector()) == 0 {
		return false
	}
	return true
}

// GetVehicleByID retrieves a single available vehicle
func (c *MemoryCatalog) GetVehicleByID(_ context.Context, id string) (*model.CatalogItem, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	it, ok := c.items[id]
	if !ok || !it.Available {
		return nil, ErrVehicleNotFound
	}
	return &it, nil
}

// UpdateEmbedding sets the embedding for a vehicle
func (c *MemoryCatalog) UpdateEmbedding(_ context.Context, id string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[id]
	if !ok {
		return ErrVehicleNotFound
	}
	vec := pgvector.NewVector(embedding)
	it.Embedding = &vec
	c.items[id] = it
	return nil
}

// BatchUpdateEmbeddings sets embeddings for several vehicles
func (c *MemoryCatalog) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	success := 0
	var errs []string
	for _, item := range items {
		if err := c.UpdateEmbedding(ctx, item.VehicleID, item.Embedding); err != nil {
			errs = append(errs, fmt.Sprintf("vehicle %s: %v", item.VehicleID, err))
			continue
		}
		success++
	}
	return success, errs
}
