package janitor

import (
	"testing"
	"time"
)

type fakePruner struct {
	cutoffs []time.Time
	deleted int64
}

func (f *fakePruner) DeleteRunsBefore(cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.deleted, nil
}

func TestNew_InvalidCron(t *testing.T) {
	_, err := New(Config{Cron: "not a cron line", MaxAge: time.Hour}, &fakePruner{})
	if err == nil {
		t.Error("New(bad cron) succeeded, want error")
	}
}

func TestShouldRun(t *testing.T) {
	j, err := New(Config{Cron: "0 3 * * *", MaxAge: 24 * time.Hour}, &fakePruner{})
	if err != nil {
		t.Fatal(err)
	}

	// 03:05 with no prior sweep: the 03:00 slot has passed
	at := time.Date(2026, 8, 30, 3, 5, 0, 0, time.UTC)
	if !j.ShouldRun(at) {
		t.Error("ShouldRun(03:05, never swept) = false, want true")
	}

	j.Sweep(at)

	// a minute later the next 03:00 is tomorrow
	if j.ShouldRun(at.Add(time.Minute)) {
		t.Error("ShouldRun right after a sweep = true, want false")
	}
	if !j.ShouldRun(at.Add(24 * time.Hour)) {
		t.Error("ShouldRun next day = false, want true")
	}
}

func TestSweep_UsesRetentionCutoff(t *testing.T) {
	pruner := &fakePruner{deleted: 3}
	j, err := New(Config{Cron: "0 3 * * *", MaxAge: 72 * time.Hour}, pruner)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 8, 30, 3, 0, 0, 0, time.UTC)
	j.Sweep(now)

	if len(pruner.cutoffs) != 1 {
		t.Fatalf("DeleteRunsBefore called %d times, want 1", len(pruner.cutoffs))
	}
	want := now.Add(-72 * time.Hour)
	if !pruner.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %s, want %s", pruner.cutoffs[0], want)
	}
}

func TestStartStop(t *testing.T) {
	j, err := New(Config{Cron: "0 3 * * *", MaxAge: time.Hour}, &fakePruner{})
	if err != nil {
		t.Fatal(err)
	}
	j.Start()
	j.Stop()
	j.Stop() // idempotent
}
