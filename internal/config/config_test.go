package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Scan.PerCategory != 30 || cfg.Scan.MinStars != 100 {
		t.Errorf("scan defaults = %+v", cfg.Scan)
	}
	if cfg.LLM.Enabled {
		t.Error("llm should be disabled by default")
	}
	if len(cfg.Categories) == 0 {
		t.Fatal("no default categories")
	}
	if _, ok := cfg.Category("llm_rag"); !ok {
		t.Error("llm_rag category missing")
	}
	if cat, ok := cfg.Category("trending"); !ok || len(cat.Keywords) != 0 {
		t.Errorf("trending should exist with no keywords, got %+v", cat)
	}
	if len(cfg.Discovery.Sources) == 0 {
		t.Error("no default discovery sources")
	}
}

func TestAnalysisInterval(t *testing.T) {
	tests := []struct {
		minutes int
		want    time.Duration
	}{
		{0, 10 * time.Minute},
		{5, 5 * time.Minute},
		{60, time.Hour},
	}
	for _, tc := range tests {
		got := ScanConfig{AnalysisIntervalMinutes: tc.minutes}.AnalysisInterval()
		if got != tc.want {
			t.Errorf("AnalysisInterval(%d) = %s, want %s", tc.minutes, got, tc.want)
		}
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
database:
  driver: postgres
  dsn: postgres://localhost/ghhub?sslmode=disable
server:
  port: 9090
scan:
  per_category: 10
llm:
  enabled: true
  analyzer_model: qwen2.5-coder
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Scan.PerCategory != 10 {
		t.Errorf("per_category = %d, want 10", cfg.Scan.PerCategory)
	}
	// Unset fields keep their defaults.
	if cfg.Scan.MinStars != 100 {
		t.Errorf("min_stars = %d, want default 100", cfg.Scan.MinStars)
	}
	if !cfg.LLM.Enabled || cfg.LLM.AnalyzerModel != "qwen2.5-coder" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GHHUB_DB_DSN", "postgres://db/catalog")
	t.Setenv("GHHUB_PORT", "7070")
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.DSN != "postgres://db/catalog" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.GitHub.Token != "ghp_test" {
		t.Errorf("token = %q", cfg.GitHub.Token)
	}
	if !cfg.LLM.Enabled {
		t.Error("OPENAI_API_KEY should enable llm")
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
}
