package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/elonfeng/ghhub/internal/config"
	"github.com/elonfeng/ghhub/internal/store"
	"github.com/elonfeng/ghhub/pkg/github"
)

type fakeRepo struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Stars    int    `json:"stargazers_count"`
}

func fakeGitHub(t *testing.T, repos ...fakeRepo) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"total_count": len(repos),
			"items":       repos,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestHub(t *testing.T, apiBase string) (*Hub, *store.SQLStore) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.GitHub.APIBase = apiBase
	return New(cfg, st), st
}

func TestSeedNewsSources(t *testing.T) {
	h, st := newTestHub(t, "")
	ctx := context.Background()

	if err := h.SeedNewsSources(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	sources, err := st.ListNewsSources(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sources) == 0 {
		t.Fatal("no sources seeded")
	}

	// A second seed run must not duplicate anything.
	if err := h.SeedNewsSources(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	again, _ := st.ListNewsSources(ctx)
	if len(again) != len(sources) {
		t.Errorf("reseed changed source count: %d -> %d", len(sources), len(again))
	}
}

func TestRunCategoryScan(t *testing.T) {
	srv := fakeGitHub(t,
		fakeRepo{ID: 1, Name: "vllm", FullName: "vllm-project/vllm", Stars: 30000},
		fakeRepo{ID: 2, Name: "ollama", FullName: "ollama/ollama", Stars: 90000},
	)
	h, st := newTestHub(t, srv.URL)
	ctx := context.Background()

	if err := h.RunCategoryScan(ctx, "trending"); err != nil {
		t.Fatalf("scan: %v", err)
	}

	projects, err := st.ListProjects(ctx, store.ListOpts{Category: github.CategoryTrending})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("got %d projects, want 2", len(projects))
	}

	scans, err := st.RecentScans(ctx, 10)
	if err != nil {
		t.Fatalf("scans: %v", err)
	}
	if len(scans) != 1 || scans[0].Status != "success" || scans[0].ProjectsNew != 2 {
		t.Errorf("scan record = %+v", scans)
	}

	if h.Status().Running {
		t.Error("hub still marked running after scan")
	}
}

func TestRunCategoryScanUnknown(t *testing.T) {
	h, _ := newTestHub(t, "")
	if err := h.RunCategoryScan(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown category")
	}
}

func TestSearchLocalOnly(t *testing.T) {
	h, st := newTestHub(t, "")
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		err := st.UpsertProject(ctx, &github.Project{
			ID:          string(rune('a' + i)),
			Name:        "diffusion-tool",
			FullName:    "owner/diffusion-tool",
			Category:    "image_gen",
			Description: "stable diffusion pipeline",
			Stars:       100 + i,
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// Enough local hits means no live API call.
	results, err := h.Search(ctx, "diffusion", 10, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 6 {
		t.Errorf("got %d results, want 6", len(results))
	}
}

func TestSearchRemoteTopUp(t *testing.T) {
	srv := fakeGitHub(t,
		fakeRepo{ID: 11, Name: "comfyui", FullName: "comfyanonymous/ComfyUI", Stars: 60000},
	)
	h, st := newTestHub(t, srv.URL)
	ctx := context.Background()

	results, err := h.Search(ctx, "comfy workflow", 5, false)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "11" {
		t.Fatalf("results = %+v", results)
	}

	// Remote hits land in the catalog.
	if _, err := st.GetProject(ctx, "11"); err != nil {
		t.Errorf("remote hit not stored: %v", err)
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	srv := fakeGitHub(t, fakeRepo{ID: 21, Name: "x", FullName: "o/x", Stars: 10})
	h, _ := newTestHub(t, srv.URL)

	events, unsubscribe := h.Subscribe()
	defer unsubscribe()

	if err := h.RunCategoryScan(context.Background(), "trending"); err != nil {
		t.Fatalf("scan: %v", err)
	}

	select {
	case ev := <-events:
		if ev.Message == "" || ev.Level == "" {
			t.Errorf("empty event: %+v", ev)
		}
	default:
		t.Error("no events received during scan")
	}
}

func TestRunSourceScanUnknownID(t *testing.T) {
	h, _ := newTestHub(t, "")
	if err := h.RunSourceScan(context.Background(), 999); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want store.ErrNotFound", err)
	}
}

func TestRunSourceScanSingleSource(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body>
			<a href="https://github.com/acme/widget">Widget toolkit</a>
		</body></html>`)
	}))
	t.Cleanup(page.Close)

	h, st := newTestHub(t, "")
	ctx := context.Background()

	target, err := st.AddNewsSource(ctx, "target", page.URL)
	if err != nil {
		t.Fatalf("add source: %v", err)
	}
	other, err := st.AddNewsSource(ctx, "other", page.URL+"/other")
	if err != nil {
		t.Fatalf("add source: %v", err)
	}

	if err := h.RunSourceScan(ctx, target.ID); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if _, err := st.GetProject(ctx, github.HashID("acme/widget")); err != nil {
		t.Errorf("discovered project not stored: %v", err)
	}

	// Only the requested source gets its last_scanned stamp.
	got, err := st.GetNewsSource(ctx, target.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got.LastScanned == nil {
		t.Error("scanned source has no last_scanned")
	}
	untouched, err := st.GetNewsSource(ctx, other.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if untouched.LastScanned != nil {
		t.Error("unrelated source was scanned too")
	}
}

func fakeLLM(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeProjectRunsFullPipeline(t *testing.T) {
	llm := fakeLLM(t, `{"summary":"A widget toolkit","tech_stack":["Go"],`+
		`"use_cases":["tooling"],"difficulty":2,"quick_start":"go install"}`)

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	cfg.LLM.Enabled = true
	cfg.LLM.BaseURL = llm.URL
	h := New(cfg, st)
	ctx := context.Background()

	shot := filepath.Join(t.TempDir(), "shot.jpg")
	if err := os.WriteFile(shot, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write screenshot: %v", err)
	}

	p := &github.Project{ID: "w1", Name: "widget", FullName: "acme/widget",
		Category: "devops", Description: "widget toolkit", Stars: 10}
	if err := st.UpsertProject(ctx, p); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := st.UpdateReadme(ctx, "w1", "# widget"); err != nil {
		t.Fatalf("readme: %v", err)
	}
	if err := st.UpdateScreenshot(ctx, "w1", shot); err != nil {
		t.Fatalf("screenshot: %v", err)
	}

	if err := h.AnalyzeProject(ctx, "w1"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	got, err := st.GetProject(ctx, "w1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.AISummary == nil || *got.AISummary != "A widget toolkit" {
		t.Errorf("ai_summary = %v", got.AISummary)
	}
	if got.AIRAGSummary == nil || *got.AIRAGSummary == "" {
		t.Error("rag summary not written")
	}
	if got.AIVisualSummary == nil || *got.AIVisualSummary == "" {
		t.Error("visual summary not written")
	}
	if got.AITutorial == nil || *got.AITutorial == "" {
		t.Error("tutorial not written")
	}
}
