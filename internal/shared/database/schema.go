package database

var schema = []string{
	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		key_prefix TEXT NOT NULL,
		name TEXT NOT NULL,
		rate_limit_per_minute INTEGER NOT NULL DEFAULT 100,
		is_active BOOLEAN NOT NULL DEFAULT true,
		last_used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS ai_providers (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		credentials TEXT NOT NULL DEFAULT '',
		endpoint TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL,
		api_version TEXT NOT NULL DEFAULT '',
		usage_type TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT true,
		priority INTEGER NOT NULL DEFAULT 10,
		temperature DOUBLE PRECISION NOT NULL DEFAULT 0.7,
		max_tokens INTEGER NOT NULL DEFAULT 4096,
		timeout_seconds INTEGER NOT NULL DEFAULT 60,
		max_retries INTEGER NOT NULL DEFAULT 3,
		retry_delay_ms BIGINT NOT NULL DEFAULT 1000,
		rate_limit_per_minute INTEGER NOT NULL DEFAULT 60,
		rate_limit_per_hour INTEGER NOT NULL DEFAULT 1000,
		cost_per_1k_tokens DOUBLE PRECISION NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_providers_usage ON ai_providers (usage_type, active)`,
	`CREATE TABLE IF NOT EXISTS ai_request_logs (
		id TEXT PRIMARY KEY,
		dispatch_id TEXT NOT NULL,
		provider_id BIGINT NOT NULL,
		provider_kind TEXT NOT NULL,
		usage_type TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		response TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		success BOOLEAN NOT NULL,
		user_ref TEXT NOT NULL DEFAULT '',
		latency_ms BIGINT NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_request_logs_provider ON ai_request_logs (provider_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS ai_provider_usage (
		provider_id BIGINT PRIMARY KEY,
		total_requests BIGINT NOT NULL DEFAULT 0,
		successful_requests BIGINT NOT NULL DEFAULT 0,
		failed_requests BIGINT NOT NULL DEFAULT 0,
		avg_response_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		total_tokens_used BIGINT NOT NULL DEFAULT 0,
		total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_used TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
