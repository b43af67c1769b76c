package services

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
	"github.com/firoze-hossain/nexacommerce-ui-sub001/internal/repositories"
)

const (
	maxAuditNoteLength  = 2000
	maxAuditValueLength = 256
	maxAuditActorLength = 128
	defaultAuditActor   = "system"
)

// AuditServiceDeps bundles constructor inputs for the order history recorder.
type AuditServiceDeps struct {
	History     repositories.OrderHistoryRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type auditService struct {
	repo  repositories.OrderHistoryRepository
	clock func() time.Time
	newID func() string
}

// notePolicy strips every tag; bluemonday policies are safe for concurrent use.
var notePolicy = bluemonday.StrictPolicy()

// NewAuditService creates the append-only history recorder.
func NewAuditService(deps AuditServiceDeps) (AuditRecorder, error) {
	if deps.History == nil {
		return nil, fmt.Errorf("audit service: history repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &auditService{
		repo:  deps.History,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

// Record appends one entry for order. The order must already carry its post-mutation
// HistoryCount, which becomes the entry's sequence number. A failed append is reported
// as ErrOrderAuditFailed so the caller can abandon the mutation.
func (s *auditService) Record(ctx context.Context, order Order, entry AuditEntry) (OrderHistoryEntry, error) {
	if strings.TrimSpace(order.ID) == "" {
		return OrderHistoryEntry{}, fmt.Errorf("%w: order id is required", ErrOrderAuditFailed)
	}
	if order.HistoryCount < 1 {
		return OrderHistoryEntry{}, fmt.Errorf("%w: order %s has no history sequence", ErrOrderAuditFailed, order.ID)
	}
	record := OrderHistoryEntry{
		ID:        s.newID(),
		OrderID:   order.ID,
		Sequence:  order.HistoryCount,
		Action:    entry.Action,
		ActorID:   sanitizeActor(entry.ActorID),
		FromValue: sanitizeText(entry.From, maxAuditValueLength),
		ToValue:   sanitizeText(entry.To, maxAuditValueLength),
		Amount:    entry.Amount,
		Note:      sanitizeNote(entry.Note),
		Metadata:  sanitizeMetadata(entry.Metadata),
		CreatedAt: s.clock(),
	}
	if err := s.repo.Append(ctx, record); err != nil {
		return OrderHistoryEntry{}, fmt.Errorf("%w: %v", ErrOrderAuditFailed, err)
	}
	return record, nil
}

func (s *auditService) List(ctx context.Context, orderID string) ([]OrderHistoryEntry, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrInvalidInput)
	}
	entries, err := s.repo.List(ctx, orderID)
	if err != nil {
		return nil, mapRepositoryError(err, "history for order "+orderID)
	}
	return entries, nil
}

// sanitizeNote strips markup from free text written by staff or customers.
func sanitizeNote(note string) string {
	cleaned := html.UnescapeString(notePolicy.Sanitize(note))
	return sanitizeText(cleaned, maxAuditNoteLength)
}

func sanitizeActor(actor string) string {
	actor = sanitizeText(actor, maxAuditActorLength)
	if actor == "" {
		return defaultAuditActor
	}
	return actor
}

func sanitizeMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for key, value := range metadata {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		switch v := value.(type) {
		case string:
			result[key] = sanitizeText(v, maxAuditValueLength)
		case domain.Money:
			result[key] = v.String()
		default:
			result[key] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func sanitizeText(input string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	var builder strings.Builder
	for _, r := range input {
		if r < 32 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		builder.WriteRune(r)
		if builder.Len() >= limit {
			break
		}
	}
	return builder.String()
}
