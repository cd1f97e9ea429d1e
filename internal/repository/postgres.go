package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"carmatch/internal/model"
)

// ErrVehicleNotFound is returned when a vehicle id does not exist or is sold
var ErrVehicleNotFound = errors.New("vehicle not found")

const vehicleColumns = `
	id, brand, model, version, year, mileage, price, body_type, fuel_type,
	transmission, color, doors, air_conditioning, power_steering, airbags, abs,
	power_windows, power_locks, alarm, photos, url, available, embedding,
	created_at, updated_at`

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an existing connection
func NewPostgresRepositoryFromDB(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// Ping checks the connection
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// buildWhere turns a filter into a WHERE clause with positional args
func buildWhere(filter model.CatalogFilter) (string, []interface{}) {
	whereClauses := []string{"available = true"}
	args := []interface{}{}
	argIndex := 1

	add := func(clause string, arg interface{}) {
		whereClauses = append(whereClauses, fmt.Sprintf(clause, argIndex))
		args = append(args, arg)
		argIndex++
	}

	if filter.MaxPrice != nil {
		add("price <= $%d", *filter.MaxPrice)
	}
	if filter.MinYear != nil {
		add("year >= $%d", *filter.MinYear)
	}
	if filter.MaxKm != nil {
		add("mileage <= $%d", *filter.MaxKm)
	}
	if filter.BodyType != nil {
		add("LOWER(body_type) = LOWER($%d)", *filter.BodyType)
	}
	if filter.Brand != nil {
		add("brand ILIKE $%d", "%"+*filter.Brand+"%")
	}
	if filter.RequireEmbedding {
		whereClauses = append(whereClauses, "embedding IS NOT NULL")
	}

	return strings.Join(whereClauses, " AND "), args
}

// ListAvailable returns every available vehicle matching the filter
func (r *PostgresRepository) ListAvailable(ctx context.Context, filter model.CatalogFilter) ([]model.CatalogItem, error) {
	where, args := buildWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM vehicles WHERE %s ORDER BY price DESC, mileage ASC, year DESC, id ASC`, vehicleColumns, where)

	var items []model.CatalogItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list vehicles: %w", err)
	}
	return items, nil
}

// VectorSearch returns available vehicles ordered by cosine similarity to the
// query embedding, using the pgvector distance operator
func (r *PostgresRepository) VectorSearch(ctx context.Context, embedding []float32, limit int) ([]model.SimilarItem, error) {
	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1) AS similarity
		FROM vehicles
		WHERE available = true AND embedding IS NOT NULL
		ORDER BY embedding <=> $1
		LIMIT $2`, vehicleColumns)

	var items []model.SimilarItem
	if err := r.db.SelectContext(ctx, &items, query, pgvector.NewVector(embedding), limit); err != nil {
		return nil, fmt.Errorf("failed to run vector search: %w", err)
	}
	return items, nil
}

// GetVehicleByID retrieves a single available vehicle
func (r *PostgresRepository) GetVehicleByID(ctx context.Context, id string) (*model.CatalogItem, error) {
	var item model.CatalogItem
	query := fmt.Sprintf(`SELECT %s FROM vehicles WHERE id = $1 AND available = true`, vehicleColumns)
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return &item, nil
}

const updateEmbeddingQuery = `UPDATE vehicles SET embedding = $1, updated_at = NOW() WHERE id = $2`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// UpdateEmbedding updates the embedding vector for a vehicle
func (r *PostgresRepository) UpdateEmbedding(ctx context.Context, id string, embedding []float32) error {
	return updateEmbedding(ctx, r.db, id, embedding)
}

func updateEmbedding(ctx context.Context, db execer, id string, embedding []float32) error {
	res, err := db.ExecContext(ctx, updateEmbeddingQuery, pgvector.NewVector(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to update embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrVehicleNotFound
	}
	return nil
}

// BatchUpdateEmbeddings updates embeddings for multiple vehicles in one
// transaction. Unknown ids are reported in the error list.
func (r *PostgresRepository) BatchUpdateEmbeddings(ctx context.Context, items []model.EmbeddingItem) (int, []string) {
	success := 0
	var errs []string

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, append(errs, fmt.Sprintf("failed to start transaction: %v", err))
	}
	defer tx.Rollback()

	for _, item := range items {
		if err := updateEmbedding(ctx, tx, item.VehicleID, item.Embedding); err != nil {
			errs = append(errs, fmt.Sprintf("vehicle %s: %v", item.VehicleID, err))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		return 0, append(errs, fmt.Sprintf("failed to commit transaction: %v", err))
	}
	return success, errs
}

// LogRecommendation records which vehicles were shown to a session
func (r *PostgresRepository) LogRecommendation(ctx context.Context, entry model.RecommendationLog) error {
	query := `
		INSERT INTO recommendation_logs (session_id, conversation_id, profile, strategy, vehicle_ids, response_time_ms)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.SessionID, entry.ConversationID, model.JSONValue(entry.Profile),
		entry.Strategy, pq.Array(entry.VehicleIDs), entry.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to log recommendation: %w", err)
	}
	return nil
}

// LogFeedback records a customer reaction to a recommended vehicle
func (r *PostgresRepository) LogFeedback(ctx context.Context, sessionID, vehicleID, action string) error {
	query := `
		INSERT INTO recommendation_feedback (session_id, vehicle_id, action)
		VALUES ($1, $2, $3)
	`
	if _, err := r.db.ExecContext(ctx, query, sessionID, vehicleID, action); err != nil {
		return fmt.Errorf("failed to log feedback: %w", err)
	}
	return nil
}
