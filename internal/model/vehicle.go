package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
)

// Feature identifies an equipment item from the fixed feature vocabulary.
type Feature string

const (
	FeatureAirConditioning Feature = "air_conditioning"
	FeaturePowerSteering   Feature = "power_steering"
	FeatureAirbags         Feature = "airbags"
	FeatureABS             Feature = "abs"
	FeaturePowerWindows    Feature = "power_windows"
	FeaturePowerLocks      Feature = "power_locks"
	FeatureAlarm           Feature = "alarm"
)

// CatalogItem represents a vehicle available for sale
type CatalogItem struct {
	ID              string           `json:"id" db:"id"`
	Brand           string           `json:"brand" db:"brand"`
	Model           string           `json:"model" db:"model"`
	Version         *string          `json:"version,omitempty" db:"version"`
	Year            int              `json:"year" db:"year"`
	Mileage         int              `json:"mileage" db:"mileage"`
	Price           float64          `json:"price" db:"price"`
	BodyType        string           `json:"body_type" db:"body_type"`
	FuelType        *string          `json:"fuel_type,omitempty" db:"fuel_type"`
	Transmission    *string          `json:"transmission,omitempty" db:"transmission"`
	Color           *string          `json:"color,omitempty" db:"color"`
	Doors           int              `json:"doors" db:"doors"`
	AirConditioning bool             `json:"air_conditioning" db:"air_conditioning"`
	PowerSteering   bool             `json:"power_steering" db:"power_steering"`
	Airbags         bool             `json:"airbags" db:"airbags"`
	ABS             bool             `json:"abs" db:"abs"`
	PowerWindows    bool             `json:"power_windows" db:"power_windows"`
	PowerLocks      bool             `json:"power_locks" db:"power_locks"`
	Alarm           bool             `json:"alarm" db:"alarm"`
	Photos          JSONArray        `json:"photos,omitempty" db:"photos"`
	URL             *string          `json:"url,omitempty" db:"url"`
	Available       bool             `json:"available" db:"available"`
	Embedding       *pgvector.Vector `json:"-" db:"embedding"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" db:"updated_at"`
}

// HasFeature reports whether the vehicle carries the given equipment.
func (v CatalogItem) HasFeature(f Feature) bool {
	switch f {
	case FeatureAirConditioning:
		return v.AirConditioning
	case FeaturePowerSteering:
		return v.PowerSteering
	case FeatureAirbags:
		return v.Airbags
	case FeatureABS:
		return v.ABS
	case FeaturePowerWindows:
		return v.PowerWindows
	case FeaturePowerLocks:
		return v.PowerLocks
	case FeatureAlarm:
		return v.Alarm
	}
	return false
}

// EmbeddingVector returns the stored embedding, or nil when the vehicle has none.
func (v CatalogItem) EmbeddingVector() []float32 {
	if v.Embedding == nil {
		return nil
	}
	return v.Embedding.Slice()
}

// DisplayName is "Brand Model Version".
func (v CatalogItem) DisplayName() string {
	name := v.Brand + " " + v.Model
	if v.Version != nil && *v.Version != "" {
		name += " " + *v.Version
	}
	return name
}

// CatalogFilter narrows ListAvailable. Nil fields are not applied.
type CatalogFilter struct {
	MaxPrice         *float64
	MinYear          *int
	MaxKm            *int
	BodyType         *string
	Brand            *string
	RequireEmbedding bool
}

// ScoreBreakdown explains how a match was scored. Credits are in [0,1].
type ScoreBreakdown struct {
	Semantic *float64           `json:"semantic,omitempty"`
	Criteria float64            `json:"criteria"`
	Credits  map[string]float64 `json:"credits,omitempty"`
}

// ScoredMatch is a catalog item with its relevance score (0-100).
type ScoredMatch struct {
	Vehicle   CatalogItem    `json:"vehicle"`
	Score     int            `json:"score"`
	Reasons   []string       `json:"reasons"`
	Breakdown ScoreBreakdown `json:"breakdown"`
	Tier      string         `json:"tier"`
}

// SimilarItem is a catalog item with its cosine similarity to a query vector
type SimilarItem struct {
	CatalogItem
	Similarity float64 `json:"similarity" db:"similarity"`
}

// RecommendationLog is one recommendation shown to a customer
type RecommendationLog struct {
	SessionID      string
	ConversationID string
	Profile        CustomerProfile
	Strategy       string
	VehicleIDs     []string
	ResponseTimeMs int
}

// JSONValue stores any value as a JSON column
func JSONValue(v interface{}) driver.Valuer {
	return jsonValue{v: v}
}

type jsonValue struct{ v interface{} }

func (j jsonValue) Value() (driver.Value, error) {
	return json.Marshal(j.v)
}
