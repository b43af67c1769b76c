package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

func probe(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestDependencyHealthReportStatus(t *testing.T) {
	now := time.Date(2025, time.May, 4, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name    string
		checks  []DependencyCheck
		overall string
		per     map[string]string
	}{
		{
			name: "all healthy",
			checks: []DependencyCheck{
				{Name: "storage", Check: probe(nil)},
				{Name: "redis", Check: probe(nil)},
			},
			overall: domain.HealthStatusOK,
			per:     map[string]string{"storage": domain.HealthStatusOK, "redis": domain.HealthStatusOK},
		},
		{
			name: "open breaker degrades",
			checks: []DependencyCheck{
				{Name: "storage", Check: probe(nil)},
				{Name: "eventSink", Check: probe(errors.New("circuit open"))},
			},
			overall: domain.HealthStatusDegraded,
			per:     map[string]string{"storage": domain.HealthStatusOK, "eventSink": domain.HealthStatusDegraded},
		},
		{
			name: "timeout is an error",
			checks: []DependencyCheck{
				{Name: "redis", Check: probe(errors.New("connection refused"))},
				{Name: "storage", Check: probe(context.DeadlineExceeded)},
			},
			overall: domain.HealthStatusError,
			per:     map[string]string{"redis": domain.HealthStatusDegraded, "storage": domain.HealthStatusError},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks, WithDependencyClock(func() time.Time { return now }))
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.overall {
				t.Fatalf("status = %s, want %s", report.Status, tc.overall)
			}
			if !report.GeneratedAt.Equal(now) {
				t.Fatalf("generatedAt = %s", report.GeneratedAt)
			}
			for name, want := range tc.per {
				got, ok := report.Checks[name]
				if !ok {
					t.Fatalf("missing check %s", name)
				}
				if got.Status != want {
					t.Fatalf("%s status = %s, want %s", name, got.Status, want)
				}
				if want != domain.HealthStatusOK && got.Error == "" {
					t.Fatalf("%s: expected error text", name)
				}
			}
		})
	}
}

func TestDependencyHealthAppliesCheckTimeout(t *testing.T) {
	slow := DependencyCheck{
		Name:    "storage",
		Timeout: 5 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	repo, err := NewDependencyHealthRepository([]DependencyCheck{slow}, WithDependencyTimeout(time.Hour))
	if err != nil {
		t.Fatalf("NewDependencyHealthRepository: %v", err)
	}

	report, err := repo.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := report.Checks["storage"]; got.Detail != "timeout" || got.Status != domain.HealthStatusError {
		t.Fatalf("unexpected check %+v", got)
	}
}

func TestNewDependencyHealthRepositoryRejectsBadChecks(t *testing.T) {
	for name, checks := range map[string][]DependencyCheck{
		"empty":      nil,
		"blank name": {{Name: " ", Check: probe(nil)}},
		"no probe":   {{Name: "redis"}},
	} {
		if _, err := NewDependencyHealthRepository(checks); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
