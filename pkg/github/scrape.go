package github

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var countRe = regexp.MustCompile(`([\d,]+\.?\d*[kK]?)`)

// scrapeRepoPage extracts what it can from the repository HTML page when the
// API is rate limited. Star counts come from the page counter when present.
func (c *Client) scrapeRepoPage(ctx context.Context, pageURL string) (*Project, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "ghhub/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	fullName := "unknown/unknown"
	if title, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok {
		fullName = strings.TrimSpace(strings.SplitN(title, ":", 2)[0])
	}
	description := ""
	if desc, ok := doc.Find(`meta[property="og:description"]`).Attr("content"); ok {
		description = desc
	}

	stars := 0
	if text := doc.Find("#repo-stars-counter-star").Text(); text != "" {
		stars = parseCount(text)
	}

	name := fullName
	if i := strings.LastIndex(fullName, "/"); i >= 0 {
		name = fullName[i+1:]
	}

	now := time.Now().UTC()
	return &Project{
		ID:          HashID(fullName),
		Name:        name,
		FullName:    fullName,
		Category:    "manual_scraped",
		Stars:       stars,
		Description: description,
		URL:         pageURL,
		Topics:      []string{"scraped"},
		UpdatedAt:   &now,
	}, nil
}

// parseCount handles GitHub UI counters like "12,345" and "1.2k".
func parseCount(text string) int {
	match := countRe.FindString(text)
	if match == "" {
		return 0
	}
	match = strings.ReplaceAll(match, ",", "")
	if strings.HasSuffix(strings.ToLower(match), "k") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(match), "k"), 64)
		if err != nil {
			return 0
		}
		return int(f * 1000)
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return n
}
