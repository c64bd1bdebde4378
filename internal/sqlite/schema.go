// Package sqlite implements the Store interface over a local SQLite
// database. Decimal values are stored as TEXT to keep their exact digits;
// timestamps are RFC 3339 TEXT. The progress cache is written through
// INSERT ... ON CONFLICT upserts so per-row durability is the only
// concurrency control, matching the orchestrator's expectations.
package sqlite

// Schema DDL. Attach executes these statements; IF NOT EXISTS keeps the
// database durable across runs.
const (
	createKpis = `CREATE TABLE IF NOT EXISTS kpis (
    kpi_id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    level TEXT NOT NULL,
    parent_kpi_id TEXT REFERENCES kpis(kpi_id),
    target_value TEXT,
    unit TEXT NOT NULL DEFAULT '',
    weight TEXT NOT NULL DEFAULT '1',
    sort_order INTEGER NOT NULL DEFAULT 0,
    active INTEGER NOT NULL DEFAULT 1,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createKpisParentIndex = `CREATE INDEX IF NOT EXISTS idx_kpis_parent
    ON kpis(parent_kpi_id) WHERE active = 1;`

	createKpiLogs = `CREATE TABLE IF NOT EXISTS kpi_logs (
    log_id TEXT PRIMARY KEY,
    kpi_id TEXT NOT NULL REFERENCES kpis(kpi_id),
    log_date TEXT NOT NULL,
    value TEXT,
    is_completed INTEGER,
    note TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);`

	createKpiLogsIndex = `CREATE INDEX IF NOT EXISTS idx_kpi_logs_kpi_date
    ON kpi_logs(kpi_id, log_date DESC, created_at DESC);`

	createProgressCache = `CREATE TABLE IF NOT EXISTS kpi_progress_cache (
    kpi_id TEXT PRIMARY KEY REFERENCES kpis(kpi_id),
    progress_percentage TEXT NOT NULL DEFAULT '0',
    status TEXT NOT NULL DEFAULT 'not_started',
    child_count INTEGER NOT NULL DEFAULT 0,
    completed_child_count INTEGER NOT NULL DEFAULT 0,
    weighted_progress TEXT NOT NULL DEFAULT '0',
    total_weight TEXT NOT NULL DEFAULT '0',
    calculation_method TEXT NOT NULL DEFAULT 'auto',
    override_reason TEXT NOT NULL DEFAULT '',
    overridden_by TEXT NOT NULL DEFAULT '',
    last_calculated_at TEXT NOT NULL
);`
)

// schemaStatements lists the DDL in execution order.
var schemaStatements = []string{
	createKpis,
	createKpisParentIndex,
	createKpiLogs,
	createKpiLogsIndex,
	createProgressCache,
}
