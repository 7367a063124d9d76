package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	_ "github.com/lib/pq"
)

type DB struct {
	conn *sql.DB
}

// New creates a new database connection
func New(databaseURL string) (*DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Migrate creates the tables the service owns if they are missing
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// GetAPIKey retrieves an API key by its raw key value
func (db *DB) GetAPIKey(ctx context.Context, rawKey string) (*models.APIKey, error) {
	hash := sha256.Sum256([]byte(rawKey))
	keyHash := hex.EncodeToString(hash[:])

	query := `
		SELECT id, key_hash, key_prefix, name, rate_limit_per_minute,
		       is_active, last_used_at, created_at, updated_at
		FROM api_keys
		WHERE key_hash = $1 AND is_active = true
	`

	var apiKey models.APIKey
	err := db.conn.QueryRowContext(ctx, query, keyHash).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.Name,
		&apiKey.RateLimitPerMinute,
		&apiKey.IsActive,
		&apiKey.LastUsedAt,
		&apiKey.CreatedAt,
		&apiKey.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("invalid API key")
	}
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &apiKey, nil
}

// UpdateAPIKeyLastUsed updates the last_used_at timestamp
func (db *DB) UpdateAPIKeyLastUsed(ctx context.Context, apiKeyID string) error {
	query := `UPDATE api_keys SET last_used_at = NOW() WHERE id = $1`
	_, err := db.conn.ExecContext(ctx, query, apiKeyID)
	return err
}

// ListProviders returns every configured provider, active or not.
// Filtering and ordering belong to the registry.
func (db *DB) ListProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	query := `
		SELECT id, name, kind, credentials, endpoint, model, api_version, usage_type,
		       active, priority, temperature, max_tokens, timeout_seconds, max_retries,
		       retry_delay_ms, rate_limit_per_minute, rate_limit_per_hour,
		       cost_per_1k_tokens, updated_at
		FROM ai_providers
	`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	defer rows.Close()

	var out []models.ProviderConfig
	for rows.Next() {
		var (
			p            models.ProviderConfig
			kind         string
			timeoutSecs  int
			retryDelayMs int64
		)
		if err := rows.Scan(
			&p.ID,
			&p.Name,
			&kind,
			&p.Credentials,
			&p.Endpoint,
			&p.Model,
			&p.APIVersion,
			&p.UsageType,
			&p.Active,
			&p.Priority,
			&p.Temperature,
			&p.MaxTokens,
			&timeoutSecs,
			&p.MaxRetries,
			&retryDelayMs,
			&p.RateLimitPerMinute,
			&p.RateLimitPerHour,
			&p.CostPer1kTokens,
			&p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan provider: %w", err)
		}
		p.Kind = models.ProviderKind(kind)
		p.Timeout = time.Duration(timeoutSecs) * time.Second
		p.RetryDelay = time.Duration(retryDelayMs) * time.Millisecond
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	return out, nil
}

// LogRequest appends one attempt to the audit table
func (db *DB) LogRequest(ctx context.Context, entry *models.RequestLogEntry) error {
	query := `
		INSERT INTO ai_request_logs (
			id, dispatch_id, provider_id, provider_kind, usage_type, attempt, prompt,
			response, error_message, success, user_ref, latency_ms, tokens_used, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := db.conn.ExecContext(ctx,
		query,
		entry.ID,
		entry.DispatchID,
		entry.ProviderID,
		string(entry.ProviderKind),
		entry.UsageType,
		entry.Attempt,
		entry.Prompt,
		entry.Response,
		entry.Error,
		entry.Success,
		entry.User,
		entry.LatencyMs,
		entry.TokensUsed,
		entry.CreatedAt,
	)

	return err
}

// SaveUsageMetrics upserts the in-memory usage counters of each provider
func (db *DB) SaveUsageMetrics(ctx context.Context, snapshot []models.UsageMetrics) error {
	query := `
		INSERT INTO ai_provider_usage (
			provider_id, total_requests, successful_requests, failed_requests,
			avg_response_time, total_tokens_used, total_cost, last_used, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (provider_id) DO UPDATE SET
			total_requests = EXCLUDED.total_requests,
			successful_requests = EXCLUDED.successful_requests,
			failed_requests = EXCLUDED.failed_requests,
			avg_response_time = EXCLUDED.avg_response_time,
			total_tokens_used = EXCLUDED.total_tokens_used,
			total_cost = EXCLUDED.total_cost,
			last_used = EXCLUDED.last_used,
			updated_at = NOW()
	`

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for _, m := range snapshot {
		if _, err := tx.ExecContext(ctx, query,
			m.ProviderID,
			m.TotalRequests,
			m.SuccessfulRequests,
			m.FailedRequests,
			m.AvgResponseTime,
			m.TotalTokensUsed,
			m.TotalCost,
			m.LastUsed,
		); err != nil {
			return fmt.Errorf("upsert usage for provider %d: %w", m.ProviderID, err)
		}
	}

	return tx.Commit()
}
