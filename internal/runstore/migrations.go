package runstore

const schema = `
CREATE TABLE IF NOT EXISTS batches (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    concurrency INTEGER NOT NULL,
    units INTEGER NOT NULL,
    started_at INTEGER,
    finished_at INTEGER,
    runs_completed INTEGER DEFAULT 0,
    runs_failed INTEGER DEFAULT 0,
    runs_timed_out INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);

CREATE TABLE IF NOT EXISTS runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    batch_id TEXT NOT NULL REFERENCES batches(id),
    region TEXT NOT NULL,
    work_dir TEXT,
    executable TEXT,
    start_year INTEGER,
    end_year INTEGER,
    status TEXT NOT NULL,
    failure TEXT,
    reason TEXT,
    days_completed INTEGER DEFAULT 0,
    total_days INTEGER DEFAULT 0,
    exit_code INTEGER,
    started_at INTEGER,
    finished_at INTEGER,
    UNIQUE(batch_id, region)
);

CREATE INDEX IF NOT EXISTS idx_runs_batch_id ON runs(batch_id);
CREATE INDEX IF NOT EXISTS idx_runs_region ON runs(region);
`
