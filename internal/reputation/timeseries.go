package reputation

import (
	"context"
	_ "embed"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rawblock/sentinel-engine/pkg/models"
)

// schemaSQL is compiled into the binary at build time so schema init works
// inside the Docker runtime image, which does not ship this package's files.
//
//go:embed schema.sql
var schemaSQL string

// TimeSeriesProvider is the optional long-horizon history source. The engine
// degrades gracefully when none is configured: the reputation-bias
// contributor simply emits an availability Info record.
type TimeSeriesProvider interface {
	GetReputation(ctx context.Context, signature string) (models.TimeSeriesStats, error)
}

// PostgresStore is the reference TimeSeriesProvider backed by Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool using pgx.
func Connect(connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %v", err)
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping failed: %v", err)
	}
	log.Println("Successfully connected to PostgreSQL for reputation history")
	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the underlying connection pool for sibling stores that share
// the same database (shadow results).
func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

// Close gracefully closes the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema() error {
	_, err := s.pool.Exec(context.Background(), schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema migrations: %v", err)
	}
	log.Println("Reputation history schema initialized")
	return nil
}

// RecordVerdict appends one observation to the signature's history.
func (s *PostgresStore) RecordVerdict(ctx context.Context, signature string, isBot bool, probability float64) error {
	sql := `
		INSERT INTO signature_history (signature, observed_at, is_bot, bot_probability)
		VALUES ($1, NOW(), $2, $3);
	`
	_, err := s.pool.Exec(ctx, sql, signature, isBot, probability)
	return err
}

// GetReputation aggregates the stored history for one signature.
func (s *PostgresStore) GetReputation(ctx context.Context, signature string) (models.TimeSeriesStats, error) {
	sql := `
		SELECT
			COUNT(*) AS hits,
			COALESCE(AVG(CASE WHEN is_bot THEN 1.0 ELSE 0.0 END), 0) AS bot_ratio,
			COALESCE(AVG(bot_probability), 0) AS avg_probability,
			COALESCE(COUNT(DISTINCT DATE(observed_at)), 0) AS days_active,
			COUNT(*) FILTER (WHERE observed_at > NOW() - INTERVAL '1 hour') AS last_hour
		FROM signature_history
		WHERE signature = $1;
	`
	stats := models.TimeSeriesStats{Signature: signature}
	var lastHour int64
	row := s.pool.QueryRow(ctx, sql, signature)
	if err := row.Scan(&stats.HitCount, &stats.BotRatio, &stats.AvgBotProbability, &stats.DaysActive, &lastHour); err != nil {
		return stats, fmt.Errorf("failed to aggregate signature history: %v", err)
	}
	stats.LastHourVelocity = float64(lastHour)
	return stats, nil
}

// Prune removes history older than the retention window (days).
func (s *PostgresStore) Prune(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM signature_history WHERE observed_at < NOW() - make_interval(days => $1)`,
		retentionDays)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
