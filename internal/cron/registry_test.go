package cron

import (
	"context"
	"testing"
)

type stubJob struct {
	name string
}

func (s *stubJob) Name() string              { return s.name }
func (s *stubJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndDropsDuplicates(t *testing.T) {
	cleanup := &stubJob{name: "notification-cleanup"}
	retention := &stubJob{name: "outbox-retention"}
	registry := NewRegistry(cleanup, nil, retention)

	if registry.Register(&stubJob{name: "outbox-retention"}) {
		t.Fatal("duplicate name should be rejected")
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0] != cleanup || jobs[1] != retention {
		t.Fatalf("unexpected jobs %v", jobs)
	}
	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatal("Jobs must return a copy")
	}
}
