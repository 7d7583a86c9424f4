package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/ghhub/internal/config"
	"github.com/elonfeng/ghhub/internal/hub"
	"github.com/elonfeng/ghhub/internal/scheduler"
	"github.com/elonfeng/ghhub/internal/store"
	"github.com/elonfeng/ghhub/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func openStore(cfg *config.Config) (store.Store, error) {
	if cfg.Database.Driver == "postgres" {
		return store.NewPostgres(cfg.Database.DSN)
	}
	return store.New(cfg.Database.Path)
}

func buildHub(cfg *config.Config, db store.Store) (*hub.Hub, error) {
	h := hub.New(cfg, db)
	if err := h.SeedNewsSources(context.Background()); err != nil {
		return nil, fmt.Errorf("seed news sources: %w", err)
	}
	return h, nil
}

func runScan(category string, news bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	ctx := context.Background()
	switch {
	case news:
		return h.RunNewsScan(ctx)
	case category != "":
		return h.RunCategoryScan(ctx, category)
	default:
		return h.RunFullScan(ctx)
	}
}

func runSourceScan(idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", idArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}
	return h.RunSourceScan(context.Background(), id)
}

func runAnalyze(limit int, id string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.LLM.Enabled {
		return fmt.Errorf("llm analysis is not enabled (set llm.enabled or OPENAI_API_KEY)")
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if id != "" {
		if err := h.AnalyzeProject(ctx, id); err != nil {
			return fmt.Errorf("analyze %s: %w", id, err)
		}
		fmt.Fprintf(os.Stderr, "analyzed %s\n", id)
		return nil
	}

	if limit == 0 {
		limit = cfg.Scan.AnalysisBatch
	}
	n, err := h.RunAnalysis(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "analyzed %d projects\n", n)
	return nil
}

func runSearch(query string, remote, jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	projects, err := h.Search(context.Background(), query, limit, remote)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(projects)
	}

	if len(projects) == 0 {
		fmt.Println("no projects found (try --remote for a live GitHub search)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARS\tCATEGORY\tPROJECT\tDESCRIPTION")
	for _, p := range projects {
		desc := p.Description
		if len(desc) > 80 {
			desc = desc[:77] + "..."
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", p.Stars, p.Category, p.FullName, desc)
	}
	return w.Flush()
}

func runAdd(pageURL string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	p, err := h.AddProjectByURL(context.Background(), pageURL)
	if err != nil {
		return fmt.Errorf("add project: %w", err)
	}
	fmt.Fprintf(os.Stderr, "added %s (%s, %d stars)\n", p.FullName, p.Category, p.Stars)
	return nil
}

func runExport(out string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	projects, err := db.ListProjects(context.Background(), store.ListOpts{All: true})
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}

	w := os.Stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			return fmt.Errorf("create %s: %w", out, err)
		}
		defer f.Close()
		w = f
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(projects); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if out != "" {
		fmt.Fprintf(os.Stderr, "exported %d projects to %s\n", len(projects), out)
	}
	return nil
}

func runSourcesList() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sources, err := db.ListNewsSources(context.Background())
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tURL\tLAST SCANNED")
	for _, src := range sources {
		last := "never"
		if src.LastScanned != nil {
			last = src.LastScanned.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", src.ID, src.Name, src.URL, last)
	}
	return w.Flush()
}

func runSourcesAdd(name, url string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	src, err := db.AddNewsSource(context.Background(), name, url)
	if err != nil {
		return fmt.Errorf("add source: %w", err)
	}
	fmt.Fprintf(os.Stderr, "added source %d: %s\n", src.ID, src.Name)
	return nil
}

func runSourcesRemove(idArg string) error {
	id, err := strconv.ParseInt(idArg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid source id %q", idArg)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.DeleteNewsSource(context.Background(), id); err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	fmt.Fprintf(os.Stderr, "removed source %d\n", id)
	return nil
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	srv := server.New(cfg, db, h, port)
	return srv.ListenAndServe()
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	h, err := buildHub(cfg, db)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(db, h, cfg.Scan.AnalysisInterval())

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintf(os.Stderr, "scheduler error: %v\n", err)
		}
	}()

	srv := server.New(cfg, db, h, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
