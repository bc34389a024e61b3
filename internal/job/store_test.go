package job

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreCreateAndGet(t *testing.T) {
	s := newTestStore(t)

	rec := &Record{ID: "j1", Name: "checkout", TargetURL: "https://shop.example.com"}
	if err := s.Create(rec); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get("j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != "j1" || got.Name != "checkout" {
		t.Errorf("got %+v", got)
	}
	if got.Status != Pending {
		t.Errorf("new job status = %v, want pending", got.Status)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should have been set")
	}
}

func TestStoreGetNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := newTestStore(t)

	if err := s.Create(&Record{ID: "j1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.SetStatus("j1", Running); err != nil {
		t.Fatalf("set running: %v", err)
	}

	steps := []Step{
		{Description: "open page", Status: Completed, DurationMs: 120},
		{Description: "fill form", Status: Completed, DurationMs: 80},
		{Description: "submit", Status: Failed, DurationMs: 300},
	}
	for _, st := range steps {
		if err := s.AppendStep("j1", st); err != nil {
			t.Fatalf("append step: %v", err)
		}
	}

	if err := s.Finish("j1", false, "", "submit failed", 2*time.Second); err != nil {
		t.Fatalf("finish: %v", err)
	}

	got, err := s.Get("j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != Failed {
		t.Errorf("status = %v, want failed", got.Status)
	}
	if got.Error != "submit failed" {
		t.Errorf("error = %q", got.Error)
	}
	if got.DurationMs != 2000 {
		t.Errorf("duration = %d, want 2000", got.DurationMs)
	}
	if len(got.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(got.Steps))
	}
	for i, st := range steps {
		if got.Steps[i].Description != st.Description {
			t.Errorf("step %d = %q, want %q", i, got.Steps[i].Description, st.Description)
		}
	}
	if got.Steps[2].Status != Failed {
		t.Errorf("last step status = %v, want failed", got.Steps[2].Status)
	}
}

func TestStoreFinishUnknownJob(t *testing.T) {
	s := newTestStore(t)

	if err := s.Finish("nope", true, "", "", 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetStatus("nope", Running); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreListAndActiveCount(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"j1", "j2", "j3"} {
		err := s.Create(&Record{ID: id, CreatedAt: base.Add(time.Duration(i) * time.Second)})
		if err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.Finish("j2", true, "ok", "", time.Second); err != nil {
		t.Fatalf("finish: %v", err)
	}

	records, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	// Newest first.
	if records[0].ID != "j3" {
		t.Errorf("first record = %s, want j3", records[0].ID)
	}

	active, err := s.ActiveCount()
	if err != nil {
		t.Fatalf("active count: %v", err)
	}
	if active != 2 {
		t.Errorf("active = %d, want 2", active)
	}
}
