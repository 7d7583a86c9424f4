// Package hub coordinates scanning, discovery and analysis. It owns the
// single-flight rule: only one scan or analysis batch runs at a time, and
// every step is reported to subscribers as a log event.
package hub

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/elonfeng/ghhub/internal/config"
	"github.com/elonfeng/ghhub/internal/store"
	"github.com/elonfeng/ghhub/pkg/analyze"
	"github.com/elonfeng/ghhub/pkg/discover"
	"github.com/elonfeng/ghhub/pkg/github"
	"github.com/elonfeng/ghhub/pkg/notify"
)

// ErrBusy is returned when a scan is requested while another is running.
var ErrBusy = errors.New("a scan is already running")

// Event is one log line emitted during a run. Events are fanned out to
// subscribers (the SSE endpoint) and mirrored to stderr.
type Event struct {
	Message string    `json:"message"`
	Level   string    `json:"level"`
	Time    time.Time `json:"time"`
}

// Progress describes the state of the current or last run.
type Progress struct {
	Running bool   `json:"running"`
	Phase   string `json:"phase"`
	Current string `json:"current"`
	Done    int    `json:"done"`
	Total   int    `json:"total"`
}

// Hub wires the store, the GitHub client, the source scanner and the
// analyzer together.
type Hub struct {
	cfg      *config.Config
	store    store.Store
	gh       *github.Client
	scanner  *discover.Scanner
	analyzer *analyze.Analyzer
	webhook  *notify.Webhook

	mu       sync.Mutex
	running  bool
	stopping bool
	progress Progress

	lmu       sync.Mutex
	listeners map[int]chan Event
	nextID    int
}

// New builds a Hub from configuration. The analyzer is only constructed when
// the LLM section is enabled; everything else degrades gracefully without it.
func New(cfg *config.Config, st store.Store) *Hub {
	h := &Hub{
		cfg:       cfg,
		store:     st,
		gh:        github.NewClient(cfg.GitHub.Token, github.WithAPIBase(cfg.GitHub.APIBase)),
		scanner:   discover.NewScanner(),
		webhook:   notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.Secret),
		listeners: make(map[int]chan Event),
	}
	if cfg.LLM.Enabled {
		h.analyzer = analyze.New(cfg.LLM.BaseURL, cfg.LLM.APIKey,
			cfg.LLM.AnalyzerModel, cfg.LLM.ClassifyModel, cfg.LLM.VisionModel)
	}
	return h
}

// Analyzer reports whether LLM analysis is available.
func (h *Hub) Analyzer() bool { return h.analyzer != nil }

// Subscribe registers a listener for log events. The returned func must be
// called to unsubscribe.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.lmu.Lock()
	defer h.lmu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan Event, 64)
	h.listeners[id] = ch
	return ch, func() {
		h.lmu.Lock()
		defer h.lmu.Unlock()
		if c, ok := h.listeners[id]; ok {
			delete(h.listeners, id)
			close(c)
		}
	}
}

func (h *Hub) logf(level, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "hub: %s\n", msg)
	ev := Event{Message: msg, Level: level, Time: time.Now().UTC()}
	h.lmu.Lock()
	defer h.lmu.Unlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
			// slow subscriber, drop rather than block the run
		}
	}
}

// Status returns a snapshot of the current run state.
func (h *Hub) Status() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := h.progress
	p.Running = h.running
	return p
}

// Stop asks the current run to finish after the step in flight.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		h.stopping = true
	}
}

func (h *Hub) start(phase string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrBusy
	}
	h.running = true
	h.stopping = false
	h.progress = Progress{Running: true, Phase: phase}
	return nil
}

func (h *Hub) finish() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.running = false
	h.stopping = false
	h.progress.Running = false
	h.progress.Phase = ""
	h.progress.Current = ""
}

func (h *Hub) stopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopping
}

func (h *Hub) setProgress(current string, done, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.progress.Current = current
	h.progress.Done = done
	h.progress.Total = total
}

// RunFullScan scans news sources, then every keyword category ordered by how
// few projects it already has, then analyzes pending projects.
func (h *Hub) RunFullScan(ctx context.Context) error {
	if err := h.start("full_scan"); err != nil {
		return err
	}
	defer h.finish()

	h.logf("info", "full scan started")
	totalFound, totalNew := 0, 0
	if found, fresh, err := h.scanNews(ctx); err != nil {
		h.logf("warn", "news scan: %v", err)
	} else {
		totalFound += found
		totalNew += fresh
	}

	categories := h.scanOrder(ctx)
	for i, cat := range categories {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if h.stopped() {
			h.logf("info", "full scan stopped after %d/%d categories", i, len(categories))
			return nil
		}
		h.setProgress(cat.ID, i, len(categories))
		found, fresh, err := h.scanCategory(ctx, cat)
		if err != nil {
			h.logf("warn", "category %s: %v", cat.ID, err)
			continue
		}
		totalFound += found
		totalNew += fresh
	}
	h.setProgress("", len(categories), len(categories))

	analyzed := 0
	if h.analyzer != nil {
		n, err := h.analyzeBatch(ctx, h.cfg.Scan.AnalysisBatch)
		if err != nil {
			h.logf("warn", "analysis batch: %v", err)
		} else if n > 0 {
			h.logf("info", "analyzed %d projects", n)
		}
		analyzed = n
	}
	h.logf("info", "full scan finished: %d found, %d new", totalFound, totalNew)

	if h.webhook != nil {
		ev := &notify.ScanEvent{
			Phase:       "full_scan",
			Found:       totalFound,
			New:         totalNew,
			Analyzed:    analyzed,
			CompletedAt: time.Now().UTC(),
		}
		if err := h.webhook.Send(ctx, ev); err != nil {
			h.logf("warn", "notify webhook: %v", err)
		}
	}
	return nil
}

// RunCategoryScan scans one category only.
func (h *Hub) RunCategoryScan(ctx context.Context, categoryID string) error {
	cat, ok := h.cfg.Category(categoryID)
	if !ok {
		return fmt.Errorf("unknown category %q", categoryID)
	}
	if err := h.start("category_scan"); err != nil {
		return err
	}
	defer h.finish()
	h.setProgress(cat.ID, 0, 1)
	_, _, err := h.scanCategory(ctx, cat)
	return err
}

// RunNewsScan scans the configured news sources only.
func (h *Hub) RunNewsScan(ctx context.Context) error {
	if err := h.start("news_scan"); err != nil {
		return err
	}
	defer h.finish()
	_, _, err := h.scanNews(ctx)
	return err
}

// RunSourceScan scans a single news source by id. It returns
// store.ErrNotFound when the id does not exist.
func (h *Hub) RunSourceScan(ctx context.Context, id int64) error {
	src, err := h.store.GetNewsSource(ctx, id)
	if err != nil {
		return err
	}
	if err := h.start("news_scan"); err != nil {
		return err
	}
	defer h.finish()
	h.setProgress(src.Name, 0, 1)
	_, _, err = h.scanSources(ctx, []store.NewsSource{*src})
	return err
}

// scanOrder returns keyword categories sorted by ascending project count so
// thin categories fill up first.
func (h *Hub) scanOrder(ctx context.Context) []config.Category {
	var cats []config.Category
	for _, c := range h.cfg.Categories {
		if len(c.Keywords) > 0 || c.ID == github.CategoryTrending || c.ID == github.CategoryNewReleases {
			cats = append(cats, c)
		}
	}
	counts, err := h.store.CategoryCounts(ctx)
	if err != nil {
		h.logf("warn", "category counts: %v", err)
		return cats
	}
	sort.SliceStable(cats, func(i, j int) bool {
		return counts[cats[i].ID] < counts[cats[j].ID]
	})
	return cats
}

func (h *Hub) scanCategory(ctx context.Context, cat config.Category) (int, int, error) {
	h.logf("info", "scanning %s", cat.ID)

	var projects []github.Project
	var err error
	switch cat.ID {
	case github.CategoryTrending:
		projects, err = h.gh.Trending(ctx)
	case github.CategoryNewReleases:
		projects, err = h.gh.NewReleases(ctx)
	default:
		projects, err = h.gh.SearchByKeywords(ctx, cat.Keywords, cat.ID,
			h.cfg.Scan.MinStars, h.cfg.Scan.PerCategory)
	}

	rec := &store.ScanRecord{Category: cat.ID, Status: "success"}
	if err != nil {
		rec.Status = "error"
		if logErr := h.store.LogScan(ctx, rec); logErr != nil {
			h.logf("warn", "log scan: %v", logErr)
		}
		return 0, 0, fmt.Errorf("scan %s: %w", cat.ID, err)
	}

	newCount := 0
	for i := range projects {
		exists, err := h.store.ProjectExists(ctx, projects[i].ID)
		if err == nil && !exists {
			newCount++
		}
	}
	if err := h.store.UpsertProjects(ctx, projects); err != nil {
		return 0, 0, fmt.Errorf("store %s results: %w", cat.ID, err)
	}

	rec.ProjectsFound = len(projects)
	rec.ProjectsNew = newCount
	if err := h.store.LogScan(ctx, rec); err != nil {
		h.logf("warn", "log scan: %v", err)
	}
	h.logf("info", "%s: %d found, %d new", cat.ID, len(projects), newCount)
	return len(projects), newCount, nil
}

func (h *Hub) scanNews(ctx context.Context) (int, int, error) {
	sources, err := h.store.ListNewsSources(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list news sources: %w", err)
	}
	if len(sources) == 0 {
		return 0, 0, nil
	}
	return h.scanSources(ctx, sources)
}

func (h *Hub) scanSources(ctx context.Context, sources []store.NewsSource) (int, int, error) {
	total, fresh := 0, 0
	for _, src := range sources {
		if ctx.Err() != nil {
			return total, fresh, ctx.Err()
		}
		h.logf("info", "scanning source %s", src.Name)
		projects, err := h.scanner.Scan(ctx, src.URL)
		if err != nil {
			h.logf("warn", "source %s: %v", src.Name, err)
			continue
		}
		for i := range projects {
			exists, err := h.store.ProjectExists(ctx, projects[i].ID)
			if err != nil || exists {
				continue
			}
			if err := h.store.UpsertProject(ctx, &projects[i]); err != nil {
				h.logf("warn", "store %s: %v", projects[i].FullName, err)
				continue
			}
			fresh++
		}
		total += len(projects)
		if err := h.store.TouchNewsSource(ctx, src.ID); err != nil {
			h.logf("warn", "touch source %d: %v", src.ID, err)
		}
	}

	rec := &store.ScanRecord{Category: github.CategoryNews, ProjectsFound: total,
		ProjectsNew: fresh, Status: "success"}
	if err := h.store.LogScan(ctx, rec); err != nil {
		h.logf("warn", "log scan: %v", err)
	}
	h.logf("info", "news: %d found, %d new", total, fresh)
	return total, fresh, nil
}

// RunAnalysis analyzes up to limit pending projects as its own run.
func (h *Hub) RunAnalysis(ctx context.Context, limit int) (int, error) {
	if h.analyzer == nil {
		return 0, errors.New("llm analysis is not enabled")
	}
	if err := h.start("analysis"); err != nil {
		return 0, err
	}
	defer h.finish()
	return h.analyzeBatch(ctx, limit)
}

func (h *Hub) analyzeBatch(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 10
	}
	pending, err := h.store.ListUnanalyzed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unanalyzed: %w", err)
	}

	done := 0
	for i := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if h.stopped() {
			h.logf("info", "analysis stopped after %d/%d", done, len(pending))
			return done, nil
		}
		h.setProgress(pending[i].FullName, i, len(pending))
		if err := h.analyzeOne(ctx, &pending[i]); err != nil {
			h.logf("warn", "analyze %s: %v", pending[i].FullName, err)
			continue
		}
		done++
	}
	return done, nil
}

// AnalyzeProject analyzes a single project by ID, outside of any batch.
func (h *Hub) AnalyzeProject(ctx context.Context, id string) error {
	if h.analyzer == nil {
		return errors.New("llm analysis is not enabled")
	}
	p, err := h.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	return h.analyzeOne(ctx, p)
}

func (h *Hub) analyzeOne(ctx context.Context, p *github.Project) error {
	readme := h.readme(ctx, p)

	analysis, err := h.analyzer.AnalyzeProject(ctx, p, readme)
	if err != nil {
		h.logf("warn", "analysis fallback for %s: %v", p.FullName, err)
		analysis = analyze.DefaultAnalysis(p)
	}
	if err := h.store.UpdateAnalysis(ctx, p.ID, analysis); err != nil {
		return fmt.Errorf("save analysis: %w", err)
	}

	summary, err := h.analyzer.RAGSummary(ctx, p, readme)
	if err != nil {
		h.logf("warn", "rag summary for %s: %v", p.FullName, err)
	} else if err := h.store.UpdateRAGSummary(ctx, p.ID, summary); err != nil {
		return fmt.Errorf("save rag summary: %w", err)
	}

	visual := ""
	if p.AIVisualSummary != nil {
		visual = *p.AIVisualSummary
	}
	if visual == "" && p.Screenshot != nil && *p.Screenshot != "" {
		v, err := h.analyzer.VisionSummary(ctx, p, *p.Screenshot)
		if err != nil {
			h.logf("warn", "vision summary for %s: %v", p.FullName, err)
		} else if err := h.store.UpdateVisualSummary(ctx, p.ID, v); err != nil {
			return fmt.Errorf("save visual summary: %w", err)
		} else {
			visual = v
		}
	}

	if p.AITutorial == nil || *p.AITutorial == "" {
		tutorial, err := h.analyzer.Tutorial(ctx, p, readme, visual)
		if err != nil {
			h.logf("warn", "tutorial for %s: %v", p.FullName, err)
		} else if err := h.store.UpdateTutorial(ctx, p.ID, tutorial); err != nil {
			return fmt.Errorf("save tutorial: %w", err)
		}
	}

	h.logf("info", "analyzed %s", p.FullName)
	return nil
}

// readme returns the project's cached README, fetching and caching it when
// missing. Fetch failures just mean the analyzer works without a README.
func (h *Hub) readme(ctx context.Context, p *github.Project) string {
	if p.ReadmeContent != nil && *p.ReadmeContent != "" {
		return *p.ReadmeContent
	}
	readme, err := h.gh.Readme(ctx, p.FullName)
	if err != nil || readme == "" {
		return ""
	}
	if err := h.store.UpdateReadme(ctx, p.ID, readme); err != nil {
		h.logf("warn", "cache readme for %s: %v", p.FullName, err)
	}
	return readme
}

// Tutorial returns the project's tutorial, generating and caching it on
// first request.
func (h *Hub) Tutorial(ctx context.Context, id string) (string, error) {
	p, err := h.store.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	if p.AITutorial != nil && *p.AITutorial != "" {
		return *p.AITutorial, nil
	}
	if h.analyzer == nil {
		return "", errors.New("llm analysis is not enabled")
	}

	visual := ""
	if p.AIVisualSummary != nil {
		visual = *p.AIVisualSummary
	}
	tutorial, err := h.analyzer.Tutorial(ctx, p, h.readme(ctx, p), visual)
	if err != nil {
		return "", err
	}
	if err := h.store.UpdateTutorial(ctx, id, tutorial); err != nil {
		return "", fmt.Errorf("save tutorial: %w", err)
	}
	return tutorial, nil
}

// AddProjectByURL fetches a GitHub repository by URL, classifies it when the
// analyzer is available, and stores it.
func (h *Hub) AddProjectByURL(ctx context.Context, pageURL string) (*github.Project, error) {
	p, err := h.gh.FetchByURL(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	if h.analyzer != nil {
		var ids []string
		for _, c := range h.cfg.Categories {
			if len(c.Keywords) > 0 {
				ids = append(ids, c.ID)
			}
		}
		if cat, err := h.analyzer.Classify(ctx, p, ids); err == nil {
			p.Category = cat
		} else {
			h.logf("warn", "classify %s: %v", p.FullName, err)
		}
	}

	if err := h.store.UpsertProject(ctx, p); err != nil {
		return nil, fmt.Errorf("store %s: %w", p.FullName, err)
	}
	h.logf("info", "added %s (%s)", p.FullName, p.Category)
	return p, nil
}

// Search runs a local catalog search and tops the results up from the live
// GitHub API when they are thin. Remote hits are stored so the catalog grows
// with usage.
func (h *Hub) Search(ctx context.Context, query string, limit int, remote bool) ([]github.Project, error) {
	local, err := h.store.SearchProjects(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if !remote && len(local) >= 5 {
		return local, nil
	}

	seen := make(map[string]bool, len(local))
	for _, p := range local {
		seen[p.ID] = true
	}

	remoteHits, err := h.gh.SearchRemote(ctx, query, limit)
	if err != nil {
		if len(local) > 0 {
			h.logf("warn", "remote search: %v", err)
			return local, nil
		}
		return nil, err
	}
	for i := range remoteHits {
		if seen[remoteHits[i].ID] {
			continue
		}
		if err := h.store.UpsertProject(ctx, &remoteHits[i]); err != nil {
			h.logf("warn", "store search hit %s: %v", remoteHits[i].FullName, err)
		}
		local = append(local, remoteHits[i])
		if len(local) >= limit {
			break
		}
	}
	return local, nil
}

// SeedNewsSources inserts the configured discovery sources when the table is
// empty, so a fresh install has something to scan.
func (h *Hub) SeedNewsSources(ctx context.Context) error {
	existing, err := h.store.ListNewsSources(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for _, src := range h.cfg.Discovery.Sources {
		if _, err := h.store.AddNewsSource(ctx, src.Name, src.URL); err != nil {
			if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "duplicate") {
				continue
			}
			return fmt.Errorf("seed source %s: %w", src.Name, err)
		}
	}
	return nil
}
