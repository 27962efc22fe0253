package audit

// Schema creates the audit table and its indexes. Every statement is
// idempotent so Open can run it on each start.
const Schema = `
CREATE TABLE IF NOT EXISTS pii_audit (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    pii_type TEXT NOT NULL,
    token TEXT NOT NULL,
    original_length INTEGER NOT NULL,
    action TEXT NOT NULL DEFAULT 'REDACTED',
    position_start INTEGER,
    position_end INTEGER,
    created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pii_audit_request ON pii_audit(request_id);
CREATE INDEX IF NOT EXISTS idx_pii_audit_type ON pii_audit(pii_type);
CREATE INDEX IF NOT EXISTS idx_pii_audit_created ON pii_audit(created_at);
`
