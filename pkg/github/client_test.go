package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("", WithAPIBase(srv.URL), WithSearchDelay(time.Millisecond))
}

func searchPayload(repos ...repoJSON) []byte {
	b, _ := json.Marshal(searchResult{TotalCount: len(repos), Items: repos})
	return b
}

func TestSearchByKeywords(t *testing.T) {
	var gotQuery string
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/search/repositories" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotQuery = r.URL.Query().Get("q")
		w.Write(searchPayload(repoJSON{
			ID: 42, Name: "langchain", FullName: "langchain-ai/langchain",
			Stars: 90000, Language: "Python", Topics: []string{"llm"},
		}))
	})

	projects, err := c.SearchByKeywords(context.Background(), []string{"llm", "rag"}, "llm_rag", 100, 30)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if gotQuery != "(llm OR rag) stars:>100" {
		t.Errorf("query = %q", gotQuery)
	}
	if len(projects) != 1 {
		t.Fatalf("got %d projects", len(projects))
	}
	p := projects[0]
	if p.ID != "42" || p.Category != "llm_rag" || p.Stars != 90000 {
		t.Errorf("project = %+v", p)
	}
	if p.CreatedAt == nil || p.UpdatedAt == nil {
		t.Error("timestamps not set")
	}
}

func TestSearchRemoteFiltersLists(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(searchPayload(
			repoJSON{ID: 1, Name: "awesome-go", Description: "A curated list"},
			repoJSON{ID: 2, Name: "gin", Description: "HTTP web framework"},
		))
	})

	projects, err := c.SearchRemote(context.Background(), "web framework", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(projects) != 1 || projects[0].Name != "gin" {
		t.Errorf("projects = %+v, want only gin", projects)
	}
	if projects[0].AIRAGSummary == nil {
		t.Error("live results should carry a summary marker")
	}

	// A query that asks for learning material keeps list repos.
	projects, err = c.SearchRemote(context.Background(), "go tutorial", 10)
	if err != nil {
		t.Fatalf("tutorial search: %v", err)
	}
	if len(projects) != 2 {
		t.Errorf("tutorial search got %d projects, want 2", len(projects))
	}
}

func TestReadme(t *testing.T) {
	content := "# LangChain\n\nBuild LLM apps."
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/langchain-ai/langchain/readme" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"content":  base64.StdEncoding.EncodeToString([]byte(content)),
			"encoding": "base64",
		})
	})

	got, err := c.Readme(context.Background(), "langchain-ai/langchain")
	if err != nil {
		t.Fatalf("readme: %v", err)
	}
	if got != content {
		t.Errorf("readme = %q, want %q", got, content)
	}
}

func TestRateLimitRetry(t *testing.T) {
	attempts := 0
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write(searchPayload(repoJSON{ID: 7, Name: "ok", FullName: "o/ok"}))
	})

	projects, err := c.Trending(context.Background())
	if err != nil {
		t.Fatalf("trending after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if len(projects) != 1 {
		t.Errorf("got %d projects", len(projects))
	}
}

func TestRateLimitExhausted(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Trending(context.Background())
	if err == nil {
		t.Fatal("expected rate limit error")
	}
	if !isRateLimit(err) {
		t.Errorf("err = %v, want rate limit", err)
	}
}

func TestFetchByURL(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/gin-gonic/gin" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(repoJSON{
			ID: 9, Name: "gin", FullName: "gin-gonic/gin", Stars: 75000,
		})
	})

	p, err := c.FetchByURL(context.Background(), "https://github.com/gin-gonic/gin")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.Category != CategoryManual {
		t.Errorf("category = %q, want %q", p.Category, CategoryManual)
	}
	if p.FullName != "gin-gonic/gin" {
		t.Errorf("full_name = %q", p.FullName)
	}
}

func TestRepoFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
		ok   bool
	}{
		{"https://github.com/gin-gonic/gin", "gin-gonic/gin", true},
		{"https://github.com/gin-gonic/gin/", "gin-gonic/gin", true},
		{"https://github.com/gin-gonic/gin/tree/master/docs", "gin-gonic/gin", true},
		{"https://github.com/orgname", "", false},
		{"https://github.com/", "", false},
	}
	for _, tc := range tests {
		got, ok := RepoFromURL(tc.url)
		if ok != tc.ok || got != tc.want {
			t.Errorf("RepoFromURL(%s) = %q, %v; want %q, %v", tc.url, got, ok, tc.want, tc.ok)
		}
	}
}

func TestHashIDStable(t *testing.T) {
	a := HashID("owner/repo")
	b := HashID("owner/repo")
	if a != b {
		t.Errorf("HashID not stable: %s vs %s", a, b)
	}
	if a == HashID("other/repo") {
		t.Error("different repos share an ID")
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"12,345", 12345},
		{"1.2k", 1200},
		{"987", 987},
		{" 42 ", 42},
		{"", 0},
		{"n/a", 0},
	}
	for _, tc := range tests {
		if got := parseCount(tc.in); got != tc.want {
			t.Errorf("parseCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
