package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/elonfeng/ghhub/pkg/github"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ScanRecord is one audit row of a scan run. Rows are append-only.
type ScanRecord struct {
	ID            int64     `db:"id" json:"id"`
	Category      string    `db:"category" json:"category"`
	ScanTime      time.Time `db:"scan_time" json:"scan_time"`
	ProjectsFound int       `db:"projects_found" json:"projects_found"`
	ProjectsNew   int       `db:"projects_new" json:"projects_new"`
	Status        string    `db:"status" json:"status"`
}

// NewsSource is a feed or page monitored for newly published projects.
type NewsSource struct {
	ID          int64      `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	URL         string     `db:"url" json:"url"`
	LastScanned *time.Time `db:"last_scanned" json:"last_scanned"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Analysis carries the analyzer output persisted onto a project.
type Analysis struct {
	Summary    string   `json:"summary"`
	TechStack  []string `json:"tech_stack"`
	UseCases   []string `json:"use_cases"`
	Difficulty int      `json:"difficulty"`
	QuickStart string   `json:"quick_start"`
}

// Stats summarizes catalog contents.
type Stats struct {
	TotalProjects    int `json:"total_projects"`
	AnalyzedProjects int `json:"analyzed_projects"`
	Categories       int `json:"categories"`
}

// ListOpts controls project listing. All disables the row limit, which
// exports rely on.
type ListOpts struct {
	Category string
	Limit    int
	All      bool
}

// Store is the persistence interface.
type Store interface {
	UpsertProject(ctx context.Context, p *github.Project) error
	UpsertProjects(ctx context.Context, projects []github.Project) error
	GetProject(ctx context.Context, id string) (*github.Project, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
	DeleteProject(ctx context.Context, id string) error
	ListProjects(ctx context.Context, opts ListOpts) ([]github.Project, error)
	SearchProjects(ctx context.Context, query string, limit int) ([]github.Project, error)
	ListUnanalyzed(ctx context.Context, limit int) ([]github.Project, error)
	CountPending(ctx context.Context) (int, error)

	UpdateAnalysis(ctx context.Context, id string, a Analysis) error
	UpdateRAGSummary(ctx context.Context, id, summary string) error
	UpdateTutorial(ctx context.Context, id, tutorial string) error
	UpdateVisualSummary(ctx context.Context, id, summary string) error
	UpdateScreenshot(ctx context.Context, id, path string) error
	UpdateReadme(ctx context.Context, id, readme string) error

	Stats(ctx context.Context) (Stats, error)
	CategoryCounts(ctx context.Context) (map[string]int, error)

	LogScan(ctx context.Context, rec *ScanRecord) error
	RecentScans(ctx context.Context, limit int) ([]ScanRecord, error)

	Setting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	ListNewsSources(ctx context.Context) ([]NewsSource, error)
	GetNewsSource(ctx context.Context, id int64) (*NewsSource, error)
	AddNewsSource(ctx context.Context, name, url string) (*NewsSource, error)
	DeleteNewsSource(ctx context.Context, id int64) error
	TouchNewsSource(ctx context.Context, id int64) error

	Reset(ctx context.Context) error
	Close() error
}

// SQLStore implements Store on top of SQLite or PostgreSQL. Queries are
// written with ? placeholders and rebound per driver.
type SQLStore struct {
	db *sqlx.DB
}

var _ Store = (*SQLStore)(nil)

// New opens a SQLite database at path and applies the schema.
func New(path string) (*SQLStore, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

// NewPostgres connects to a PostgreSQL database and applies the schema,
// including the row-level-security policies.
func NewPostgres(dsn string) (*SQLStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) UpsertProject(ctx context.Context, p *github.Project) error {
	if p.ID == "" || p.Name == "" || p.FullName == "" || p.Category == "" {
		return fmt.Errorf("upsert project: id, name, full_name and category are required")
	}

	now := time.Now().UTC()
	p.LastScanned = &now
	p.TopicsJSON = marshalList(p.Topics)

	query := s.db.Rebind(`
		INSERT INTO projects (id, name, full_name, category, stars, forks,
			description, url, homepage, language, topics,
			created_at, updated_at, last_scanned, ai_rag_summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			full_name = excluded.full_name,
			category = excluded.category,
			recent_stars_growth = CASE
				WHEN excluded.stars >= projects.stars THEN excluded.stars - projects.stars
				ELSE projects.recent_stars_growth
			END,
			stars = excluded.stars,
			forks = excluded.forks,
			description = excluded.description,
			url = excluded.url,
			homepage = excluded.homepage,
			language = excluded.language,
			topics = excluded.topics,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			last_scanned = excluded.last_scanned
	`)
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.Name, p.FullName, p.Category, p.Stars, p.Forks,
		p.Description, p.URL, p.Homepage, p.Language, p.TopicsJSON,
		p.CreatedAt, p.UpdatedAt, p.LastScanned, p.AIRAGSummary)
	if err != nil {
		return fmt.Errorf("upsert project %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLStore) UpsertProjects(ctx context.Context, projects []github.Project) error {
	for i := range projects {
		if err := s.UpsertProject(ctx, &projects[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLStore) GetProject(ctx context.Context, id string) (*github.Project, error) {
	var p github.Project
	err := s.db.GetContext(ctx, &p, s.db.Rebind("SELECT * FROM projects WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", id, err)
	}
	unmarshalProject(&p)
	return &p, nil
}

func (s *SQLStore) ProjectExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM projects WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("project exists %s: %w", id, err)
	}
	return n > 0, nil
}

func (s *SQLStore) DeleteProject(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM projects WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) ListProjects(ctx context.Context, opts ListOpts) ([]github.Project, error) {
	query := "SELECT * FROM projects WHERE 1=1"
	var args []any

	if opts.Category != "" {
		query += " AND category = ?"
		args = append(args, opts.Category)
	}
	query += " ORDER BY stars DESC"
	if !opts.All {
		limit := opts.Limit
		if limit <= 0 {
			limit = 100
		}
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var projects []github.Project
	if err := s.db.SelectContext(ctx, &projects, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	for i := range projects {
		unmarshalProject(&projects[i])
	}
	return projects, nil
}

func (s *SQLStore) SearchProjects(ctx context.Context, query string, limit int) ([]github.Project, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(query) + "%"
	q := s.db.Rebind(`
		SELECT * FROM projects
		WHERE lower(name) LIKE ?
		   OR lower(description) LIKE ?
		   OR lower(ai_rag_summary) LIKE ?
		ORDER BY stars DESC LIMIT ?
	`)
	var projects []github.Project
	if err := s.db.SelectContext(ctx, &projects, q, pattern, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("search projects: %w", err)
	}
	for i := range projects {
		unmarshalProject(&projects[i])
	}
	return projects, nil
}

func (s *SQLStore) ListUnanalyzed(ctx context.Context, limit int) ([]github.Project, error) {
	if limit <= 0 {
		limit = 10
	}
	q := s.db.Rebind("SELECT * FROM projects WHERE ai_summary IS NULL ORDER BY stars DESC LIMIT ?")
	var projects []github.Project
	if err := s.db.SelectContext(ctx, &projects, q, limit); err != nil {
		return nil, fmt.Errorf("list unanalyzed: %w", err)
	}
	for i := range projects {
		unmarshalProject(&projects[i])
	}
	return projects, nil
}

func (s *SQLStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM projects WHERE ai_summary IS NULL")
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (s *SQLStore) UpdateAnalysis(ctx context.Context, id string, a Analysis) error {
	q := s.db.Rebind(`
		UPDATE projects SET ai_summary = ?, ai_tech_stack = ?, ai_use_cases = ?,
			ai_difficulty = ?, ai_quick_start = ?, last_analyzed = ?
		WHERE id = ?
	`)
	_, err := s.db.ExecContext(ctx, q,
		a.Summary, marshalList(a.TechStack), marshalList(a.UseCases),
		a.Difficulty, a.QuickStart, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update analysis %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) UpdateRAGSummary(ctx context.Context, id, summary string) error {
	return s.updateField(ctx, "ai_rag_summary", id, summary)
}

func (s *SQLStore) UpdateTutorial(ctx context.Context, id, tutorial string) error {
	return s.updateField(ctx, "ai_tutorial", id, tutorial)
}

func (s *SQLStore) UpdateVisualSummary(ctx context.Context, id, summary string) error {
	return s.updateField(ctx, "ai_visual_summary", id, summary)
}

func (s *SQLStore) UpdateScreenshot(ctx context.Context, id, path string) error {
	return s.updateField(ctx, "screenshot", id, path)
}

func (s *SQLStore) UpdateReadme(ctx context.Context, id, readme string) error {
	return s.updateField(ctx, "readme_content", id, readme)
}

func (s *SQLStore) updateField(ctx context.Context, column, id, value string) error {
	q := s.db.Rebind("UPDATE projects SET " + column + " = ? WHERE id = ?")
	_, err := s.db.ExecContext(ctx, q, value, id)
	if err != nil {
		return fmt.Errorf("update %s for %s: %w", column, id, err)
	}
	return nil
}

func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.GetContext(ctx, &st.TotalProjects, "SELECT COUNT(*) FROM projects"); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.AnalyzedProjects, "SELECT COUNT(*) FROM projects WHERE ai_summary IS NOT NULL"); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	if err := s.db.GetContext(ctx, &st.Categories, "SELECT COUNT(DISTINCT category) FROM projects"); err != nil {
		return st, fmt.Errorf("stats: %w", err)
	}
	return st, nil
}

func (s *SQLStore) CategoryCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT category, COUNT(*) AS cnt FROM projects GROUP BY category")
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var cnt int
		if err := rows.Scan(&category, &cnt); err != nil {
			return nil, err
		}
		counts[category] = cnt
	}
	return counts, rows.Err()
}

func (s *SQLStore) LogScan(ctx context.Context, rec *ScanRecord) error {
	if rec.ScanTime.IsZero() {
		rec.ScanTime = time.Now().UTC()
	}
	q := s.db.Rebind(`
		INSERT INTO scan_history (category, scan_time, projects_found, projects_new, status)
		VALUES (?, ?, ?, ?, ?) RETURNING id
	`)
	err := s.db.QueryRowxContext(ctx, q,
		rec.Category, rec.ScanTime, rec.ProjectsFound, rec.ProjectsNew, rec.Status).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("log scan %s: %w", rec.Category, err)
	}
	return nil
}

func (s *SQLStore) RecentScans(ctx context.Context, limit int) ([]ScanRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var scans []ScanRecord
	q := s.db.Rebind("SELECT * FROM scan_history ORDER BY scan_time DESC, id DESC LIMIT ?")
	if err := s.db.SelectContext(ctx, &scans, q, limit); err != nil {
		return nil, fmt.Errorf("recent scans: %w", err)
	}
	return scans, nil
}

func (s *SQLStore) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.GetContext(ctx, &value, s.db.Rebind("SELECT value FROM settings WHERE key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLStore) SetSetting(ctx context.Context, key, value string) error {
	q := s.db.Rebind(`
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`)
	if _, err := s.db.ExecContext(ctx, q, key, value); err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) ListNewsSources(ctx context.Context) ([]NewsSource, error) {
	var sources []NewsSource
	if err := s.db.SelectContext(ctx, &sources, "SELECT * FROM news_sources ORDER BY id"); err != nil {
		return nil, fmt.Errorf("list news sources: %w", err)
	}
	return sources, nil
}

func (s *SQLStore) AddNewsSource(ctx context.Context, name, url string) (*NewsSource, error) {
	src := NewsSource{Name: name, URL: url, CreatedAt: time.Now().UTC()}
	q := s.db.Rebind(`
		INSERT INTO news_sources (name, url, created_at)
		VALUES (?, ?, ?) RETURNING id
	`)
	err := s.db.QueryRowxContext(ctx, q, name, url, src.CreatedAt).Scan(&src.ID)
	if err != nil {
		return nil, fmt.Errorf("add news source %s: %w", url, err)
	}
	return &src, nil
}

func (s *SQLStore) GetNewsSource(ctx context.Context, id int64) (*NewsSource, error) {
	var src NewsSource
	q := s.db.Rebind("SELECT * FROM news_sources WHERE id = ?")
	if err := s.db.GetContext(ctx, &src, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get news source %d: %w", id, err)
	}
	return &src, nil
}

func (s *SQLStore) DeleteNewsSource(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM news_sources WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete news source %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) TouchNewsSource(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE news_sources SET last_scanned = ? WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch news source %d: %w", id, err)
	}
	return nil
}

// Reset clears projects and scan history. Settings and news sources survive a
// reset so a rescan can start immediately.
func (s *SQLStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM projects"); err != nil {
		return fmt.Errorf("reset projects: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM scan_history"); err != nil {
		return fmt.Errorf("reset scan history: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for schema-level tests.
func (s *SQLStore) DB() *sqlx.DB {
	return s.db
}

func marshalList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalProject(p *github.Project) {
	json.Unmarshal([]byte(p.TopicsJSON), &p.Topics)
	json.Unmarshal([]byte(p.AITechStackJSON), &p.AITechStack)
	json.Unmarshal([]byte(p.AIUseCasesJSON), &p.AIUseCases)
}
