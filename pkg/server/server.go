// Package server provides the HTTP API over the catalog and the hub.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/ghhub/internal/config"
	"github.com/elonfeng/ghhub/internal/hub"
	"github.com/elonfeng/ghhub/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server provides the HTTP API.
type Server struct {
	cfg   *config.Config
	store store.Store
	hub   *hub.Hub
	port  int
}

// New creates a new HTTP server.
func New(cfg *config.Config, st store.Store, h *hub.Hub, port int) *Server {
	if port == 0 {
		port = cfg.Server.Port
	}
	return &Server{cfg: cfg, store: st, hub: h, port: port}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/projects/{category}", s.handleProjects)
		r.Get("/project/{id}", s.handleProject)
		r.Post("/project/add", s.handleProjectAdd)
		r.Get("/stats", s.handleStats)
		r.Get("/status", s.handleStatus)
		r.Get("/pending", s.handlePending)
		r.Get("/progress", s.handleStatus)
		r.Get("/scans", s.handleScans)
		r.Get("/settings", s.handleSettingsGet)
		r.Post("/settings", s.handleSettingsPost)
		r.Get("/export", s.handleExport)

		r.Post("/scan", s.handleScan)
		r.Post("/scan/news", s.handleScanNews)
		r.Post("/scan/{category}", s.handleScanCategory)
		r.Post("/stop", s.handleStop)
		r.Post("/analyze/{id}", s.handleAnalyze)
		r.Post("/analyze_all", s.handleAnalyzeAll)

		r.Get("/search", s.handleSearch)
		r.Get("/search/local", s.handleSearchLocal)
		r.Get("/search/remote", s.handleSearchRemote)

		r.Get("/news/sources", s.handleSourcesList)
		r.Post("/news/sources/add", s.handleSourceAdd)
		r.Delete("/news/sources/delete/{id}", s.handleSourceDelete)
		r.Post("/news/sources/scan/{id}", s.handleSourceScan)

		r.Get("/tutorial/{id}", s.handleTutorial)
		r.Get("/logs", s.handleLogs)

		r.Post("/reset", s.handleReset)
	})
	return r
}

// ListenAndServe starts the HTTP server and never returns on its own.
func (s *Server) ListenAndServe() error {
	return s.Serve(context.Background())
}

// Serve runs the HTTP server until ctx is cancelled, then drains open
// connections for up to 10 seconds before closing the rest.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{Addr: addr, Handler: s.Router()}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	fmt.Printf("ghhub server listening on %s\n", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return srv.Close()
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CategoryCounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	type categoryInfo struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Count       int    `json:"count"`
	}
	var infos []categoryInfo
	for _, c := range s.cfg.Categories {
		infos = append(infos, categoryInfo{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Count:       counts[c.ID],
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": infos, "count": len(infos)})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOpts{
		Category: chi.URLParam(r, "category"),
		Limit:    queryInt(r, "limit", 100),
	}
	projects, err := s.store.ListProjects(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": projects, "count": len(projects)})
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetProject(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProjectAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("url is required"))
		return
	}
	p, err := s.hub.AddProjectByURL(r.Context(), req.URL)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Status())
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

func (s *Server) handleScans(w http.ResponseWriter, r *http.Request) {
	scans, err := s.store.RecentScans(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": scans, "count": len(scans)})
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	scanTime, err := s.store.Setting(r.Context(), "scan_time")
	if errors.Is(err, store.ErrNotFound) {
		scanTime = "02:00"
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"scan_time": scanTime})
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if v, ok := req["scan_time"]; ok {
		if _, err := time.Parse("15:04", v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("scan_time must be HH:MM"))
			return
		}
	}
	for k, v := range req {
		if err := s.store.SetSetting(r.Context(), k, v); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), store.ListOpts{All: true})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="projects.json"`)
	writeJSON(w, http.StatusOK, projects)
}

// scan triggers run in the background so the request returns immediately;
// progress is observable via /api/status and /api/logs.
func (s *Server) startRun(w http.ResponseWriter, run func(ctx context.Context) error) {
	if s.hub.Status().Running {
		writeError(w, http.StatusConflict, hub.ErrBusy)
		return
	}
	go func() {
		if err := run(context.Background()); err != nil && !errors.Is(err, hub.ErrBusy) {
			fmt.Printf("scan run: %v\n", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, s.hub.RunFullScan)
}

func (s *Server) handleScanNews(w http.ResponseWriter, r *http.Request) {
	s.startRun(w, s.hub.RunNewsScan)
}

func (s *Server) handleScanCategory(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if _, ok := s.cfg.Category(category); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown category %q", category))
		return
	}
	s.startRun(w, func(ctx context.Context) error {
		return s.hub.RunCategoryScan(ctx, category)
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.hub.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.hub.AnalyzeProject(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "analyzed", "id": id})
}

func (s *Server) handleAnalyzeAll(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", s.cfg.Scan.AnalysisBatch)
	s.startRun(w, func(ctx context.Context) error {
		_, err := s.hub.RunAnalysis(ctx, limit)
		return err
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, false, true)
}

func (s *Server) handleSearchLocal(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, false, false)
}

func (s *Server) handleSearchRemote(w http.ResponseWriter, r *http.Request) {
	s.search(w, r, true, true)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request, remote, topUp bool) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, errors.New("q is required"))
		return
	}
	limit := queryInt(r, "limit", 20)

	if !topUp {
		local, err := s.store.SearchProjects(r.Context(), query, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": local, "count": len(local)})
		return
	}

	results, err := s.hub.Search(r.Context(), query, limit, remote)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": results, "count": len(results)})
}

func (s *Server) handleSourcesList(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListNewsSources(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": sources, "count": len(sources)})
}

func (s *Server) handleSourceAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.URL == "" {
		writeError(w, http.StatusBadRequest, errors.New("name and url are required"))
		return
	}
	src, err := s.store.AddNewsSource(r.Context(), req.Name, req.URL)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleSourceDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.DeleteNewsSource(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSourceScan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetNewsSource(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.startRun(w, func(ctx context.Context) error {
		return s.hub.RunSourceScan(ctx, id)
	})
}

func (s *Server) handleTutorial(w http.ResponseWriter, r *http.Request) {
	tutorial, err := s.hub.Tutorial(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tutorial": tutorial})
}

// handleLogs streams hub events as server-sent events. A ping every 15s
// keeps proxies from timing out the connection.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	ping := time.NewTicker(15 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.hub.Status().Running {
		writeError(w, http.StatusConflict, hub.ErrBusy)
		return
	}
	if err := s.store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
