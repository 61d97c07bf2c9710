package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the evidence database schema.
const Schema = `
-- Evidence records table
CREATE TABLE IF NOT EXISTS evidence (
    id TEXT PRIMARY KEY,
    request_id TEXT NOT NULL,
    session_id TEXT,

    -- Timestamps
    request_time TIMESTAMP NOT NULL,
    policy_eval_time TIMESTAMP NOT NULL,
    origin_call_time TIMESTAMP,
    response_time TIMESTAMP,
    recorded_time TIMESTAMP NOT NULL,

    -- Request metadata
    request_hash TEXT NOT NULL,
    request_method TEXT NOT NULL,
    request_path TEXT NOT NULL,
    request_line TEXT,
    request_headers TEXT,

    -- Inspection results
    risk_score INTEGER,
    signatures_detected BOOLEAN,
    signature_types TEXT,

    -- Policy decisions
    policy_decision TEXT NOT NULL,
    matched_rules TEXT,
    block_reason TEXT,
    policy_version TEXT,

    -- Applied mutations
    header_actions TEXT,
    stream_edits TEXT,
    synthetic_response BOOLEAN,

    -- Response metadata
    response_hash TEXT,
    response_status INTEGER,

    -- Response content
    response_content TEXT,

    -- Byte accounting
    request_bytes INTEGER,
    response_bytes INTEGER,
    bytes_edited INTEGER,

    -- Origin info
    origin_latency INTEGER,

    -- User/API key
    user_id TEXT,
    api_key TEXT,
    ip_address TEXT,

    -- Error info
    error TEXT,
    error_type TEXT
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_evidence_request_time ON evidence(request_time);
CREATE INDEX IF NOT EXISTS idx_evidence_user_id ON evidence(user_id);
CREATE INDEX IF NOT EXISTS idx_evidence_session_id ON evidence(session_id);
CREATE INDEX IF NOT EXISTS idx_evidence_ip_address ON evidence(ip_address);
CREATE INDEX IF NOT EXISTS idx_evidence_policy_decision ON evidence(policy_decision);
CREATE INDEX IF NOT EXISTS idx_evidence_response_status ON evidence(response_status);
CREATE INDEX IF NOT EXISTS idx_evidence_request_id ON evidence(request_id);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
