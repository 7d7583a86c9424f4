package scheduler

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/ghhub/internal/config"
	"github.com/elonfeng/ghhub/internal/hub"
	"github.com/elonfeng/ghhub/internal/store"
)

func newTestScheduler(t *testing.T) (*Scheduler, *store.SQLStore) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	h := hub.New(config.Default(), st)
	return New(st, h, time.Minute), st
}

func TestScanTimeDefault(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	if got := s.scanTime(ctx); got != "02:00" {
		t.Errorf("scanTime = %q, want 02:00", got)
	}

	if err := st.SetSetting(ctx, "scan_time", "not-a-time"); err != nil {
		t.Fatal(err)
	}
	if got := s.scanTime(ctx); got != "02:00" {
		t.Errorf("malformed setting: scanTime = %q, want fallback 02:00", got)
	}

	if err := st.SetSetting(ctx, "scan_time", "14:45"); err != nil {
		t.Fatal(err)
	}
	if got := s.scanTime(ctx); got != "14:45" {
		t.Errorf("scanTime = %q, want 14:45", got)
	}
}

func TestScanDue(t *testing.T) {
	s, st := newTestScheduler(t)
	ctx := context.Background()

	if err := st.SetSetting(ctx, "scan_time", "03:00"); err != nil {
		t.Fatal(err)
	}

	day1 := time.Date(2026, 8, 30, 3, 0, 10, 0, time.Local)
	if s.scanDue(ctx, day1.Add(-time.Hour)) {
		t.Error("scan should not be due before the configured time")
	}
	if !s.scanDue(ctx, day1) {
		t.Error("scan should be due at the configured time")
	}
	// Second tick in the same minute must not fire again.
	if s.scanDue(ctx, day1.Add(20*time.Second)) {
		t.Error("scan fired twice on the same day")
	}

	day2 := day1.AddDate(0, 0, 1)
	if !s.scanDue(ctx, day2) {
		t.Error("scan should fire again the next day")
	}
}
