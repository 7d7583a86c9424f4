package store

// The hosted deployment runs on managed PostgreSQL. Row-level security is
// enabled on every table with a single permissive policy: the API layer is
// the trust boundary, not the database. CREATE POLICY has no IF NOT EXISTS
// form, so policies are dropped and recreated to keep the script re-runnable.
const postgresSchema = `
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
    topics              JSONB NOT NULL DEFAULT '[]'::jsonb,
    created_at          TIMESTAMPTZ,
    updated_at          TIMESTAMPTZ,
    last_scanned        TIMESTAMPTZ,
    last_analyzed       TIMESTAMPTZ,
    readme_content      TEXT,
    ai_summary          TEXT,
    ai_tech_stack       JSONB NOT NULL DEFAULT '[]'::jsonb,
    ai_use_cases        JSONB NOT NULL DEFAULT '[]'::jsonb,
    ai_difficulty       INTEGER,
    ai_quick_start      TEXT,
    ai_tutorial         TEXT,
    ai_rag_summary      TEXT,
    ai_visual_summary   TEXT,
    screenshot          TEXT
);

CREATE INDEX IF NOT EXISTS idx_projects_category ON projects(category);

CREATE TABLE IF NOT EXISTS scan_history (
    id             BIGSERIAL PRIMARY KEY,
    category       TEXT NOT NULL DEFAULT '',
    scan_time      TIMESTAMPTZ NOT NULL DEFAULT now(),
    projects_found INTEGER NOT NULL DEFAULT 0,
    projects_new   INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS news_sources (
    id           BIGSERIAL PRIMARY KEY,
    name         TEXT NOT NULL,
    url          TEXT NOT NULL UNIQUE,
    last_scanned TIMESTAMPTZ,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE projects ENABLE ROW LEVEL SECURITY;
ALTER TABLE scan_history ENABLE ROW LEVEL SECURITY;
ALTER TABLE settings ENABLE ROW LEVEL SECURITY;
ALTER TABLE news_sources ENABLE ROW LEVEL SECURITY;

DROP POLICY IF EXISTS projects_all ON projects;
CREATE POLICY projects_all ON projects FOR ALL USING (true) WITH CHECK (true);

DROP POLICY IF EXISTS scan_history_all ON scan_history;
CREATE POLICY scan_history_all ON scan_history FOR ALL USING (true) WITH CHECK (true);

DROP POLICY IF EXISTS settings_all ON settings;
CREATE POLICY settings_all ON settings FOR ALL USING (true) WITH CHECK (true);

DROP POLICY IF EXISTS news_sources_all ON news_sources;
CREATE POLICY news_sources_all ON news_sources FOR ALL USING (true) WITH CHECK (true);
`
