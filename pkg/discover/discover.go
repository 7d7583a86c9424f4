// Package discover scans news sources (RSS/Atom feeds or plain web pages)
// for links to GitHub repositories and turns them into lightweight catalog
// entries pending a full fetch.
package discover

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/elonfeng/ghhub/pkg/github"
	"github.com/mmcdole/gofeed"
)

const maxPerScan = 30

var repoLinkRe = regexp.MustCompile(`github\.com/([a-zA-Z0-9._-]+)/([a-zA-Z0-9._-]+)`)

// skipPaths are github.com paths that look like owner/repo but are not.
var skipPaths = []string{
	"site/policy", "login", "pricing", "features",
	"topics/", "search", "about", "contact", "trending/",
	"sponsors/", "orgs/", "settings", "marketplace",
}

// Scanner extracts repository links from external pages and feeds.
type Scanner struct {
	http   *http.Client
	parser *gofeed.Parser
}

// NewScanner creates a Scanner.
func NewScanner() *Scanner {
	return &Scanner{
		http:   &http.Client{Timeout: 30 * time.Second},
		parser: gofeed.NewParser(),
	}
}

// Scan fetches the given URL and returns discovered repositories as
// news-category projects. Feeds are detected by content type or payload and
// every entry is scanned; anything else is treated as an HTML page.
func (s *Scanner) Scan(ctx context.Context, sourceURL string) ([]github.Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ghhub/1.0")

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch source %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source %s: status %d", sourceURL, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "xml") || strings.Contains(ct, "rss") || strings.Contains(ct, "atom") {
		feed, err := s.parser.Parse(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("parse feed %s: %w", sourceURL, err)
		}
		return s.fromFeed(feed, sourceURL), nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", sourceURL, err)
	}
	return s.fromPage(doc, sourceURL), nil
}

// fromFeed scans feed entry links and bodies for repository references.
func (s *Scanner) fromFeed(feed *gofeed.Feed, sourceURL string) []github.Project {
	seen := make(map[string]bool)
	var projects []github.Project

	for _, entry := range feed.Items {
		if len(projects) >= maxPerScan {
			break
		}
		text := entry.Link + " " + entry.Content + " " + entry.Description
		for _, match := range repoLinkRe.FindAllStringSubmatch(text, -1) {
			fullName := match[1] + "/" + match[2]
			if seen[fullName] || skipRepoPath(fullName) {
				continue
			}
			seen[fullName] = true

			desc := entry.Title
			if desc == "" {
				desc = "Discovered via " + sourceURL
			}
			projects = append(projects, lightweightProject(fullName, desc))
			if len(projects) >= maxPerScan {
				break
			}
		}
	}
	return projects
}

// fromPage scans anchor hrefs for repository references.
func (s *Scanner) fromPage(doc *goquery.Document, sourceURL string) []github.Project {
	seen := make(map[string]bool)
	var projects []github.Project

	doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, _ := sel.Attr("href")
		match := repoLinkRe.FindStringSubmatch(href)
		if match == nil {
			return true
		}
		fullName := match[1] + "/" + match[2]
		if seen[fullName] || skipRepoPath(fullName) {
			return true
		}
		seen[fullName] = true

		linkText := strings.TrimSpace(sel.Text())
		if linkText == "" || strings.Contains(linkText, "github.com") {
			linkText = "Discovered via link"
		}
		desc := fmt.Sprintf("Found in %s. Link text: %s", sourceURL, truncate(linkText, 50))
		projects = append(projects, lightweightProject(fullName, desc))
		return len(projects) < maxPerScan
	})
	return projects
}

func lightweightProject(fullName, description string) github.Project {
	name := fullName
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		name = fullName[i+1:]
	}
	pending := "Pending detail fetch"
	now := time.Now().UTC()
	return github.Project{
		ID:           github.HashID(fullName),
		Name:         name,
		FullName:     fullName,
		Category:     github.CategoryNews,
		Description:  description,
		URL:          "https://github.com/" + fullName,
		Topics:       []string{"discovered"},
		CreatedAt:    &now,
		AIRAGSummary: &pending,
	}
}

func skipRepoPath(fullName string) bool {
	lower := strings.ToLower(fullName)
	for _, p := range skipPaths {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
