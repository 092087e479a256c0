package checklog

// Schema contains the DDL for the validation log.
const Schema = `
-- One row per completed validation, newest first by created_at.
CREATE TABLE IF NOT EXISTS checks (
    id               TEXT PRIMARY KEY,
    url              TEXT NOT NULL,
    host             TEXT NOT NULL DEFAULT '',
    exists_          INTEGER NOT NULL,
    accessible       INTEGER NOT NULL,
    method           TEXT NOT NULL,
    attempts         INTEGER NOT NULL DEFAULT 0,
    status_code      INTEGER NOT NULL DEFAULT 0,
    response_time_ms INTEGER NOT NULL DEFAULT 0,
    trace_id         TEXT NOT NULL DEFAULT '',
    created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checks_created ON checks(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_checks_host ON checks(host);
`
