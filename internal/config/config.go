package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig  `yaml:"database"`
	Server     ServerConfig    `yaml:"server"`
	GitHub     GitHubConfig    `yaml:"github"`
	Scan       ScanConfig      `yaml:"scan"`
	LLM        LLMConfig       `yaml:"llm"`
	Notify     NotifyConfig    `yaml:"notify"`
	Categories []Category      `yaml:"categories"`
	Discovery  DiscoveryConfig `yaml:"discovery"`
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "sqlite" or "postgres"
	Path   string `yaml:"path"`   // sqlite file path
	DSN    string `yaml:"dsn"`    // postgres connection string
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// GitHubConfig for the GitHub API client.
type GitHubConfig struct {
	Token   string `yaml:"token"`
	APIBase string `yaml:"api_base"`
}

// ScanConfig controls scan volume and scheduling.
type ScanConfig struct {
	PerCategory             int `yaml:"per_category"`
	MinStars                int `yaml:"min_stars"`
	AnalysisBatch           int `yaml:"analysis_batch"`
	AnalysisIntervalMinutes int `yaml:"analysis_interval_minutes"`
}

// AnalysisInterval returns the auto-analysis sweep interval.
func (s ScanConfig) AnalysisInterval() time.Duration {
	if s.AnalysisIntervalMinutes <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(s.AnalysisIntervalMinutes) * time.Minute
}

// LLMConfig configures the OpenAI-compatible analysis endpoint. BaseURL may
// point at a local inference server.
type LLMConfig struct {
	Enabled       bool   `yaml:"enabled"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	AnalyzerModel string `yaml:"analyzer_model"`
	ClassifyModel string `yaml:"classify_model"`
	VisionModel   string `yaml:"vision_model"`
}

// NotifyConfig points scan completion events at an external webhook.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Secret     string `yaml:"secret"`
}

// Category is one keyword-driven scan bucket.
type Category struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Keywords    []string `yaml:"keywords"`
	Description string   `yaml:"description"`
}

// DiscoveryConfig lists the news sources seeded on first start.
type DiscoveryConfig struct {
	Sources []DiscoverySource `yaml:"sources"`
}

// DiscoverySource is one seeded news source.
type DiscoverySource struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Driver: "sqlite", Path: "./ghhub.db"},
		Server:   ServerConfig{Port: 8080},
		Scan: ScanConfig{
			PerCategory:             30,
			MinStars:                100,
			AnalysisBatch:           50,
			AnalysisIntervalMinutes: 10,
		},
		LLM: LLMConfig{
			BaseURL:       "http://localhost:1234/v1",
			APIKey:        "lm-studio",
			AnalyzerModel: "gpt-4o-mini",
			ClassifyModel: "gpt-4o-mini",
			VisionModel:   "gpt-4o-mini",
		},
		Categories: DefaultCategories(),
		Discovery: DiscoveryConfig{
			Sources: []DiscoverySource{
				{Name: "GitHub Trending", URL: "https://github.com/trending"},
				{Name: "GitHub Trending (Weekly)", URL: "https://github.com/trending?since=weekly"},
			},
		},
	}
}

// DefaultCategories returns the built-in scan categories. The trending and
// new_releases buckets have no keywords: they map to dedicated API queries.
func DefaultCategories() []Category {
	return []Category{
		{ID: "llm_rag", Name: "LLM & RAG", Keywords: []string{"llm", "langchain", "rag", "ollama", "llamaindex"}, Description: "LLM applications and retrieval-augmented generation"},
		{ID: "ai_agent", Name: "AI Agent", Keywords: []string{"ai-agent", "autogen", "crewai", "metagpt", "agentgpt"}, Description: "Agent frameworks and automation"},
		{ID: "multimodal", Name: "Multimodal", Keywords: []string{"vision-language", "clip", "llava", "gpt4v", "multimodal"}, Description: "Vision-language and cross-modal models"},
		{ID: "image_gen", Name: "Image Generation", Keywords: []string{"stable-diffusion", "comfyui", "flux", "sdxl", "diffusers"}, Description: "AI drawing and image synthesis"},
		{ID: "tts_voice", Name: "Speech", Keywords: []string{"tts", "voice-clone", "whisper", "so-vits", "bark"}, Description: "Text to speech and voice cloning"},
		{ID: "mcp", Name: "MCP", Keywords: []string{"model-context-protocol", "mcp", "tool-use"}, Description: "Model context protocol and tool calling"},
		{ID: "devops", Name: "DevOps", Keywords: []string{"docker", "kubernetes", "cicd", "terraform", "ansible"}, Description: "Deployment and infrastructure"},
		{ID: "fullstack", Name: "Full-stack", Keywords: []string{"nextjs", "nuxt", "remix", "astro", "sveltekit"}, Description: "Modern web frameworks"},
		{ID: "ui_design", Name: "UI Design", Keywords: []string{"ui-design", "design-system", "component-library", "tailwindcss"}, Description: "Component libraries and design systems"},
		{ID: "video", Name: "Video", Keywords: []string{"video-editing", "ffmpeg", "youtube-dl", "yt-dlp"}, Description: "Video download and processing"},
		{ID: "news", Name: "Aggregation", Keywords: []string{"rss", "news-crawler", "readability", "feed"}, Description: "Feeds and content aggregation"},
		{ID: "visualization", Name: "Visualization", Keywords: []string{"dashboard", "chart", "grafana", "echarts"}, Description: "Dashboards and charts"},
		{ID: "awesome", Name: "Learning", Keywords: []string{"awesome", "roadmap", "interview", "tutorial"}, Description: "Curated lists and learning paths"},
		{ID: "trending", Name: "Trending", Description: "GitHub trending projects"},
		{ID: "new_releases", Name: "New Releases", Description: "Recently published high-quality projects"},
		{ID: "manual", Name: "Manual", Description: "Manually added projects"},
	}
}

// Category looks up a configured category by ID.
func (c *Config) Category(id string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return Category{}, false
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	if len(cfg.Categories) == 0 {
		cfg.Categories = DefaultCategories()
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GHHUB_DB_PATH"); v != "" {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = v
	}
	if v := os.Getenv("GHHUB_DB_DSN"); v != "" {
		cfg.Database.Driver = "postgres"
		cfg.Database.DSN = v
	}
	if v := os.Getenv("GHHUB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
}
