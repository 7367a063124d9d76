package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink keeps a local audit trail in a SQLite file
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the audit database at path
func OpenSQLite(path string) (*SQLiteSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create audit dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit db: %w", err)
	}
	// One writer avoids "database is locked" under concurrent dispatches
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS request_logs(
		id TEXT PRIMARY KEY,
		dispatch_id TEXT,
		provider_id INTEGER,
		provider_kind TEXT,
		usage_type TEXT,
		attempt INTEGER,
		prompt TEXT,
		response TEXT,
		error TEXT,
		success INTEGER,
		user TEXT,
		latency_ms INTEGER,
		tokens_used INTEGER,
		created_at REAL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create request_logs table: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Close closes the audit database
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) Record(ctx context.Context, e models.RequestLogEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO request_logs(
		id, dispatch_id, provider_id, provider_kind, usage_type, attempt, prompt, response, error, success, user, latency_ms, tokens_used, created_at)
		VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.DispatchID, e.ProviderID, string(e.ProviderKind), e.UsageType, e.Attempt, e.Prompt, e.Response, e.Error,
		e.Success, e.User, e.LatencyMs, e.TokensUsed, float64(e.CreatedAt.UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}
	return nil
}

// Entries returns the entries of one dispatch in insertion order
func (s *SQLiteSink) Entries(ctx context.Context, dispatchID string) ([]models.RequestLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, dispatch_id, provider_id, provider_kind, usage_type, attempt, prompt, response, error, success, user, latency_ms, tokens_used, created_at
		FROM request_logs WHERE dispatch_id = ? ORDER BY rowid`, dispatchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query request logs: %w", err)
	}
	defer rows.Close()

	var out []models.RequestLogEntry
	for rows.Next() {
		var (
			e    models.RequestLogEntry
			kind string
			ts   float64
		)
		if err := rows.Scan(&e.ID, &e.DispatchID, &e.ProviderID, &kind, &e.UsageType, &e.Attempt, &e.Prompt, &e.Response,
			&e.Error, &e.Success, &e.User, &e.LatencyMs, &e.TokensUsed, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan request log: %w", err)
		}
		e.ProviderKind = models.ProviderKind(kind)
		sec := int64(ts)
		e.CreatedAt = time.Unix(sec, int64((ts-float64(sec))*1e9)).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
