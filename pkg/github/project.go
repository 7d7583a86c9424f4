package github

import "time"

// Category IDs assigned by collectors for projects that did not come from a
// keyword scan.
const (
	CategoryTrending    = "trending"
	CategoryNewReleases = "new_releases"
	CategoryManual      = "manual"
	CategoryNews        = "news"
)

// Project is the catalog record for a tracked repository.
// AI fields stay nil until the analyzer has processed the project.
type Project struct {
	ID                string     `json:"id" db:"id"`
	Name              string     `json:"name" db:"name"`
	FullName          string     `json:"full_name" db:"full_name"`
	Category          string     `json:"category" db:"category"`
	Stars             int        `json:"stars" db:"stars"`
	Forks             int        `json:"forks" db:"forks"`
	RecentStarsGrowth int        `json:"recent_stars_growth" db:"recent_stars_growth"`
	Description       string     `json:"description" db:"description"`
	URL               string     `json:"url" db:"url"`
	Homepage          string     `json:"homepage" db:"homepage"`
	Language          string     `json:"language" db:"language"`
	Topics            []string   `json:"topics" db:"-"`
	CreatedAt         *time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at" db:"updated_at"`
	LastScanned       *time.Time `json:"last_scanned" db:"last_scanned"`
	LastAnalyzed      *time.Time `json:"last_analyzed" db:"last_analyzed"`

	ReadmeContent   *string  `json:"readme_content,omitempty" db:"readme_content"`
	AISummary       *string  `json:"ai_summary" db:"ai_summary"`
	AITechStack     []string `json:"ai_tech_stack" db:"-"`
	AIUseCases      []string `json:"ai_use_cases" db:"-"`
	AIDifficulty    *int     `json:"ai_difficulty" db:"ai_difficulty"`
	AIQuickStart    *string  `json:"ai_quick_start" db:"ai_quick_start"`
	AITutorial      *string  `json:"ai_tutorial,omitempty" db:"ai_tutorial"`
	AIRAGSummary    *string  `json:"ai_rag_summary" db:"ai_rag_summary"`
	AIVisualSummary *string  `json:"ai_visual_summary,omitempty" db:"ai_visual_summary"`
	Screenshot      *string  `json:"screenshot" db:"screenshot"`

	TopicsJSON      string `json:"-" db:"topics"`
	AITechStackJSON string `json:"-" db:"ai_tech_stack"`
	AIUseCasesJSON  string `json:"-" db:"ai_use_cases"`
}

// Analyzed reports whether the analyzer has produced a summary yet.
func (p *Project) Analyzed() bool {
	return p.AISummary != nil && *p.AISummary != ""
}
