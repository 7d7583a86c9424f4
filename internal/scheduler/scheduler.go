// Package scheduler triggers the daily full scan and the background
// analysis sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/elonfeng/ghhub/internal/hub"
	"github.com/elonfeng/ghhub/internal/store"
)

// scanTimeKey is the settings row holding the daily scan time as "HH:MM".
const scanTimeKey = "scan_time"

// defaultScanTime is used when no setting exists.
const defaultScanTime = "02:00"

// Scheduler runs the daily scan at a configurable wall-clock time and
// sweeps unanalyzed projects between scans.
type Scheduler struct {
	store       store.Store
	hub         *hub.Hub
	analysisInt time.Duration

	lastScanDay string
}

// New creates a scheduler. analysisInt controls how often pending projects
// are checked for analysis.
func New(s store.Store, h *hub.Hub, analysisInt time.Duration) *Scheduler {
	if analysisInt == 0 {
		analysisInt = 10 * time.Minute
	}
	return &Scheduler{store: s, hub: h, analysisInt: analysisInt}
}

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	clockTicker := time.NewTicker(30 * time.Second)
	analysisTicker := time.NewTicker(s.analysisInt)
	defer clockTicker.Stop()
	defer analysisTicker.Stop()

	fmt.Fprintf(os.Stderr, "scheduler: running (daily scan at %s, analysis sweep every %s)\n",
		s.scanTime(ctx), s.analysisInt)

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "scheduler: stopped")
			return ctx.Err()
		case now := <-clockTicker.C:
			if s.scanDue(ctx, now) {
				fmt.Fprintln(os.Stderr, "scheduler: daily scan...")
				if err := s.hub.RunFullScan(ctx); err != nil && !errors.Is(err, hub.ErrBusy) {
					fmt.Fprintf(os.Stderr, "  scan error: %v\n", err)
				}
			}
		case <-analysisTicker.C:
			s.sweepAnalysis(ctx)
		}
	}
}

// scanTime reads the configured daily scan time, falling back to the
// default when the setting is missing or malformed.
func (s *Scheduler) scanTime(ctx context.Context) string {
	v, err := s.store.Setting(ctx, scanTimeKey)
	if err != nil || len(v) != 5 {
		return defaultScanTime
	}
	if _, parseErr := time.Parse("15:04", v); parseErr != nil {
		return defaultScanTime
	}
	return v
}

// scanDue reports whether the daily scan should fire now. The setting is
// re-read on every tick so changes apply without a restart, and the day
// guard keeps the scan from firing twice.
func (s *Scheduler) scanDue(ctx context.Context, now time.Time) bool {
	if now.Format("15:04") != s.scanTime(ctx) {
		return false
	}
	day := now.Format("2006-01-02")
	if day == s.lastScanDay {
		return false
	}
	s.lastScanDay = day
	return true
}

func (s *Scheduler) sweepAnalysis(ctx context.Context) {
	if !s.hub.Analyzer() || s.hub.Status().Running {
		return
	}
	pending, err := s.store.CountPending(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  pending count error: %v\n", err)
		return
	}
	if pending == 0 {
		return
	}

	fmt.Fprintf(os.Stderr, "scheduler: %d projects pending analysis\n", pending)
	n, err := s.hub.RunAnalysis(ctx, pending)
	if err != nil && !errors.Is(err, hub.ErrBusy) {
		fmt.Fprintf(os.Stderr, "  analysis error: %v\n", err)
		return
	}
	if n > 0 {
		fmt.Fprintf(os.Stderr, "scheduler: analyzed %d projects\n", n)
	}
}
