package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultAPIBase is the public GitHub REST API endpoint.
	DefaultAPIBase = "https://api.github.com"

	readmeMaxBytes = 10000
)

// Client talks to the GitHub REST API. A token is optional but raises the
// search rate limit considerably.
type Client struct {
	http    *http.Client
	apiBase string
	token   string

	// delay between search requests; unauthenticated search allows
	// only 10 requests per minute.
	searchDelay time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBase overrides the API endpoint (used by tests and GHE setups).
// An empty base keeps the default.
func WithAPIBase(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.apiBase = strings.TrimRight(base, "/")
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithSearchDelay overrides the pause between search requests.
func WithSearchDelay(d time.Duration) Option {
	return func(c *Client) { c.searchDelay = d }
}

// NewClient creates a GitHub API client.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:        &http.Client{Timeout: 30 * time.Second},
		apiBase:     DefaultAPIBase,
		token:       token,
		searchDelay: 10 * time.Second,
	}
	if token != "" {
		c.searchDelay = 2 * time.Second
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchByKeywords searches repositories matching any of the keywords with at
// least minStars stars, tagging results with the given category.
func (c *Client) SearchByKeywords(ctx context.Context, keywords []string, category string, minStars, perPage int) ([]Project, error) {
	query := fmt.Sprintf("(%s) stars:>%d", strings.Join(keywords, " OR "), minStars)
	result, err := c.search(ctx, query, "stars", 1, perPage)
	if err != nil {
		return nil, fmt.Errorf("search category %s: %w", category, err)
	}

	projects := make([]Project, 0, len(result.Items))
	for _, repo := range result.Items {
		projects = append(projects, parseRepo(repo, category))
	}

	// Stay under the search API rate limit between category scans.
	select {
	case <-ctx.Done():
		return projects, ctx.Err()
	case <-time.After(c.searchDelay):
	}
	return projects, nil
}

// Trending returns repositories with heavy recent activity, approximated via
// the search API since GitHub has no official trending endpoint.
func (c *Client) Trending(ctx context.Context) ([]Project, error) {
	query := fmt.Sprintf("stars:>1000 pushed:>%s", dateOffset(7))
	result, err := c.search(ctx, query, "stars", 1, 30)
	if err != nil {
		return nil, fmt.Errorf("fetch trending: %w", err)
	}

	projects := make([]Project, 0, len(result.Items))
	for _, repo := range result.Items {
		projects = append(projects, parseRepo(repo, CategoryTrending))
	}
	return projects, nil
}

// NewReleases returns recently created repositories that already gathered a
// meaningful star count.
func (c *Client) NewReleases(ctx context.Context) ([]Project, error) {
	query := fmt.Sprintf("stars:>100 created:>%s", dateOffset(30))
	result, err := c.search(ctx, query, "stars", 1, 30)
	if err != nil {
		return nil, fmt.Errorf("fetch new releases: %w", err)
	}

	projects := make([]Project, 0, len(result.Items))
	for _, repo := range result.Items {
		projects = append(projects, parseRepo(repo, CategoryNewReleases))
	}
	return projects, nil
}

// listKeywords flags results that are curated lists or courses rather than
// runnable software; SearchRemote filters them unless the query asks for them.
var listKeywords = []string{
	"book", "interview", "tutorial", "course",
	"awesome", "collection", "list", "cheatsheet",
}

// SearchRemote runs a live repository search for the given free-form query,
// paginating until limit quality results are collected.
func (c *Client) SearchRemote(ctx context.Context, query string, limit int) ([]Project, error) {
	if limit <= 0 {
		limit = 10
	}
	q := query
	if !strings.Contains(q, "stars:") && !strings.Contains(q, "sort:") {
		q += " stars:>50"
	}

	wantsTutorial := false
	lower := strings.ToLower(query)
	for _, kw := range []string{"tutorial", "learn", "course", "book"} {
		if strings.Contains(lower, kw) {
			wantsTutorial = true
			break
		}
	}

	seen := make(map[string]bool)
	var projects []Project

	const maxPages = 3
	for page := 1; page <= maxPages && len(projects) < limit; page++ {
		result, err := c.search(ctx, q, "", page, 50)
		if err != nil {
			if len(projects) > 0 {
				break
			}
			return nil, fmt.Errorf("remote search: %w", err)
		}
		if len(result.Items) == 0 {
			break
		}

		for _, repo := range result.Items {
			if len(projects) >= limit {
				break
			}
			if !wantsTutorial && isListRepo(repo) {
				continue
			}
			id := fmt.Sprintf("%d", repo.ID)
			if seen[id] {
				continue
			}
			seen[id] = true
			p := parseRepo(repo, "remote_search")
			if p.AIRAGSummary == nil {
				live := "GitHub live result"
				p.AIRAGSummary = &live
			}
			projects = append(projects, p)
		}

		select {
		case <-ctx.Done():
			return projects, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	return projects, nil
}

// Readme fetches the default readme for owner/repo, decoded and truncated.
func (c *Client) Readme(ctx context.Context, fullName string) (string, error) {
	var payload struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := c.getJSON(ctx, "/repos/"+fullName+"/readme", nil, &payload); err != nil {
		return "", fmt.Errorf("fetch readme %s: %w", fullName, err)
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(payload.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("decode readme %s: %w", fullName, err)
	}
	content := string(decoded)
	if len(content) > readmeMaxBytes {
		content = content[:readmeMaxBytes]
	}
	return content, nil
}

// FetchByURL resolves a github.com repository page URL to a Project. On rate
// limiting it falls back to scraping the repository page itself.
func (c *Client) FetchByURL(ctx context.Context, pageURL string) (*Project, error) {
	fullName, ok := RepoFromURL(pageURL)
	if !ok {
		return nil, fmt.Errorf("not a repository URL: %s", pageURL)
	}

	var repo repoJSON
	err := c.getJSON(ctx, "/repos/"+fullName, nil, &repo)
	if err != nil {
		if isRateLimit(err) {
			return c.scrapeRepoPage(ctx, pageURL)
		}
		return nil, fmt.Errorf("fetch repo %s: %w", fullName, err)
	}

	p := parseRepo(repo, CategoryManual)
	return &p, nil
}

// RepoFromURL extracts "owner/repo" from a github.com URL.
func RepoFromURL(pageURL string) (string, bool) {
	u, err := url.Parse(strings.TrimRight(pageURL, "/"))
	if err != nil {
		return "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "/" + parts[1], true
}

// HashID builds a stable synthetic project ID for repositories discovered
// without an API response (page scrapes, link discovery).
func HashID(fullName string) string {
	h := fnv.New64a()
	h.Write([]byte(fullName))
	return fmt.Sprintf("h%d", h.Sum64())
}

func (c *Client) search(ctx context.Context, query, sort string, page, perPage int) (*searchResult, error) {
	if perPage > 100 {
		perPage = 100
	}
	params := url.Values{}
	params.Set("q", query)
	if sort != "" && !strings.Contains(query, "sort:") {
		params.Set("sort", sort)
		params.Set("order", "desc")
	}
	params.Set("per_page", fmt.Sprintf("%d", perPage))
	if page > 1 {
		params.Set("page", fmt.Sprintf("%d", page))
	}

	var result searchResult
	if err := c.getJSON(ctx, "/search/repositories", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	reqURL := c.apiBase + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("User-Agent", "ghhub/1.0")
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt > 0 {
				return &rateLimitError{status: resp.StatusCode}
			}
			// One retry after the secondary rate limit window.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.searchDelay):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("github API status %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode github response: %w", err)
		}
		return nil
	}
}

type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("github rate limited (status %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

type searchResult struct {
	TotalCount int        `json:"total_count"`
	Items      []repoJSON `json:"items"`
}

type repoJSON struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	HTMLURL     string    `json:"html_url"`
	Description string    `json:"description"`
	Homepage    string    `json:"homepage"`
	Stars       int       `json:"stargazers_count"`
	Forks       int       `json:"forks_count"`
	Language    string    `json:"language"`
	Topics      []string  `json:"topics"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func parseRepo(repo repoJSON, category string) Project {
	created := repo.CreatedAt
	updated := repo.UpdatedAt
	return Project{
		ID:          fmt.Sprintf("%d", repo.ID),
		Name:        repo.Name,
		FullName:    repo.FullName,
		Category:    category,
		Stars:       repo.Stars,
		Forks:       repo.Forks,
		Description: repo.Description,
		URL:         repo.HTMLURL,
		Homepage:    repo.Homepage,
		Language:    repo.Language,
		Topics:      repo.Topics,
		CreatedAt:   &created,
		UpdatedAt:   &updated,
	}
}

func isListRepo(repo repoJSON) bool {
	name := strings.ToLower(repo.Name)
	desc := strings.ToLower(repo.Description)
	for _, kw := range listKeywords {
		if strings.Contains(name, kw) || strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

func dateOffset(days int) string {
	return time.Now().AddDate(0, 0, -days).Format("2006-01-02")
}
