package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL,
    full_name           TEXT NOT NULL,
    category            TEXT NOT NULL,
    stars               INTEGER NOT NULL DEFAULT 0,
    forks               INTEGER NOT NULL DEFAULT 0,
    recent_stars_growth INTEGER NOT NULL DEFAULT 0,
    description         TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    homepage            TEXT NOT NULL DEFAULT '',
    language            TEXT NOT NULL DEFAULT '',
    topics              TEXT NOT NULL DEFAULT '[]',
    created_at          DATETIME,
    updated_at          DATETIME,
    last_scanned        DATETIME,
    last_analyzed       DATETIME,
    readme_content      TEXT,
    ai_summary          TEXT,
    ai_tech_stack       TEXT NOT NULL DEFAULT '[]',
    ai_use_cases        TEXT NOT NULL DEFAULT '[]',
    ai_difficulty       INTEGER,
    ai_quick_start      TEXT,
    ai_tutorial         TEXT,
    ai_rag_summary      TEXT,
    ai_visual_summary   TEXT,
    screenshot          TEXT
);

CREATE INDEX IF NOT EXISTS idx_projects_category ON projects(category);

CREATE TABLE IF NOT EXISTS scan_history (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    category       TEXT NOT NULL DEFAULT '',
    scan_time      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    projects_found INTEGER NOT NULL DEFAULT 0,
    projects_new   INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS news_sources (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    name         TEXT NOT NULL,
    url          TEXT NOT NULL UNIQUE,
    last_scanned DATETIME,
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
