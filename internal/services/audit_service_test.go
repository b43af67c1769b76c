package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories/memory"
)

type stubHistoryRepo struct {
	appendFn func(context.Context, domain.OrderHistoryEntry) error
	listFn   func(context.Context, string) ([]domain.OrderHistoryEntry, error)
}

func (s *stubHistoryRepo) Append(ctx context.Context, entry domain.OrderHistoryEntry) error {
	if s.appendFn != nil {
		return s.appendFn(ctx, entry)
	}
	return nil
}

func (s *stubHistoryRepo) List(ctx context.Context, orderID string) ([]domain.OrderHistoryEntry, error) {
	if s.listFn != nil {
		return s.listFn(ctx, orderID)
	}
	return nil, nil
}

func newAuditUnderTest(t *testing.T, repo repositories.OrderHistoryRepository) AuditRecorder {
	t.Helper()
	svc, err := NewAuditService(AuditServiceDeps{
		History:     repo,
		Clock:       func() time.Time { return fixtureNow },
		IDGenerator: func() string { return "hist-1" },
	})
	if err != nil {
		t.Fatalf("new audit service: %v", err)
	}
	return svc
}

func TestAuditServiceRecordSanitisesEntry(t *testing.T) {
	var captured domain.OrderHistoryEntry
	repo := &stubHistoryRepo{appendFn: func(_ context.Context, entry domain.OrderHistoryEntry) error {
		captured = entry
		return nil
	}}
	svc := newAuditUnderTest(t, repo)

	order := domain.Order{ID: "ord-1", HistoryCount: 3}
	entry, err := svc.Record(context.Background(), order, AuditEntry{
		Action: domain.HistoryNoteAdded,
		Note:   "  <script>alert(1)</script>call customer &amp; confirm\x07  ",
		Metadata: map[string]any{
			"amount": domain.Cents(1234),
			" ":      "dropped",
			"count":  2,
		},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if entry.Sequence != 3 || entry.OrderID != "ord-1" || entry.ID != "hist-1" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.ActorID != "system" {
		t.Fatalf("expected default actor, got %q", entry.ActorID)
	}
	if strings.Contains(entry.Note, "<") || strings.Contains(entry.Note, "\x07") {
		t.Fatalf("expected markup and control characters stripped, got %q", entry.Note)
	}
	if !strings.Contains(entry.Note, "call customer & confirm") {
		t.Fatalf("expected note text kept, got %q", entry.Note)
	}
	if entry.Metadata["amount"] != "12.34" || entry.Metadata["count"] != 2 {
		t.Fatalf("unexpected metadata: %+v", entry.Metadata)
	}
	if _, ok := entry.Metadata[""]; ok {
		t.Fatalf("expected blank key dropped")
	}
	if !entry.CreatedAt.Equal(fixtureNow) || captured.ID != entry.ID {
		t.Fatalf("expected stored entry to match returned entry")
	}
}

func TestAuditServiceRecordRequiresSequence(t *testing.T) {
	svc := newAuditUnderTest(t, &stubHistoryRepo{})
	if _, err := svc.Record(context.Background(), domain.Order{ID: "o"}, AuditEntry{Action: domain.HistoryCreated}); !errors.Is(err, ErrOrderAuditFailed) {
		t.Fatalf("expected audit failure without history count, got %v", err)
	}
	if _, err := svc.Record(context.Background(), domain.Order{HistoryCount: 1}, AuditEntry{Action: domain.HistoryCreated}); !errors.Is(err, ErrOrderAuditFailed) {
		t.Fatalf("expected audit failure without order id, got %v", err)
	}
}

func TestAuditServiceRecordWrapsAppendFailure(t *testing.T) {
	svc := newAuditUnderTest(t, &stubHistoryRepo{appendFn: func(context.Context, domain.OrderHistoryEntry) error {
		return errors.New("firestore: deadline exceeded")
	}})
	_, err := svc.Record(context.Background(), domain.Order{ID: "o", HistoryCount: 1}, AuditEntry{Action: domain.HistoryCreated})
	if !errors.Is(err, ErrOrderAuditFailed) {
		t.Fatalf("expected audit failure, got %v", err)
	}
}

func TestAuditServiceHistoryIsAppendOnly(t *testing.T) {
	store := memory.NewStore()
	svc := newAuditUnderTest(t, store.OrderHistory())
	ctx := context.Background()
	order := domain.Order{ID: "o", HistoryCount: 1}

	if _, err := svc.Record(ctx, order, AuditEntry{Action: domain.HistoryCreated}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// The same sequence can never be written twice.
	if _, err := svc.Record(ctx, order, AuditEntry{Action: domain.HistoryNoteAdded}); !errors.Is(err, ErrOrderAuditFailed) {
		t.Fatalf("expected duplicate sequence rejected, got %v", err)
	}

	entries, err := svc.List(ctx, "o")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].Action != domain.HistoryCreated {
		t.Fatalf("expected original entry intact, got %+v", entries)
	}
	if _, err := svc.List(ctx, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
