package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRemoveJob(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.AddJob("sweep", "1h", func() {}); err != nil {
		t.Fatal(err)
	}
	if !s.HasJob("sweep") {
		t.Fatal("job not registered")
	}
	if err := s.AddJob("sweep", "1h", func() {}); err == nil {
		t.Error("duplicate job name should fail")
	}
	if err := s.AddJob("cron", "0 */5 * * * *", func() {}); err != nil {
		t.Errorf("cron schedule: %v", err)
	}
	if err := s.AddJob("bad", "not a schedule", func() {}); err == nil {
		t.Error("invalid schedule should fail")
	}

	jobs := s.ListJobs()
	if len(jobs) != 2 {
		t.Errorf("ListJobs returned %d jobs, want 2", len(jobs))
	}

	s.RemoveJob("sweep")
	if s.HasJob("sweep") {
		t.Error("job still registered after RemoveJob")
	}
	s.RemoveJob("sweep") // no-op
}

func TestRunNow(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	defer s.Stop()

	var runs atomic.Int32
	if err := s.AddJob("count", "1h", func() { runs.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow("count"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := s.RunNow("missing"); err == nil {
		t.Error("RunNow on unknown job should fail")
	}
}

func TestUpdateJob(t *testing.T) {
	s, err := New(nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()

	if err := s.UpdateJob("j", "1h", func() {}); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateJob("j", "2h", func() {}); err != nil {
		t.Fatal(err)
	}
	jobs := s.ListJobs()
	if len(jobs) != 1 || jobs[0].Schedule != "2h" {
		t.Errorf("jobs = %+v", jobs)
	}
}
