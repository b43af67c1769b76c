package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	domain "github.com/firoze-hossain/nexacommerce-ui-sub001/internal/domain"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	domain.OrderStatusPending:    {domain.OrderStatusConfirmed, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusConfirmed:  {domain.OrderStatusProcessing, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusProcessing: {domain.OrderStatusShipped, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusShipped:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled, domain.OrderStatusRefunded},
	domain.OrderStatusRefunded:   {domain.OrderStatusCancelled},
}

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	domain.PaymentStatusPending:           {domain.PaymentStatusPaid, domain.PaymentStatusFailed},
	domain.PaymentStatusPaid:              {domain.PaymentStatusRefunded, domain.PaymentStatusPartiallyRefunded},
	domain.PaymentStatusPartiallyRefunded: {domain.PaymentStatusRefunded},
}

var cancellableStatuses = []OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusConfirmed,
	domain.OrderStatusProcessing,
}

var refundableStatuses = []PaymentStatus{
	domain.PaymentStatusPaid,
	domain.PaymentStatusPartiallyRefunded,
}

// CanTransitionStatus reports whether the fulfilment state table allows current -> target.
func CanTransitionStatus(current, target OrderStatus) bool {
	return slices.Contains(orderStatusTransitions[current], target)
}

// CanTransitionPayment reports whether the payment state table allows current -> target.
func CanTransitionPayment(current, target PaymentStatus) bool {
	return slices.Contains(paymentStatusTransitions[current], target)
}

func (s *orderService) TransitionStatus(ctx context.Context, cmd TransitionCommand) (Order, error) {
	target := OrderStatus(strings.ToUpper(strings.TrimSpace(string(cmd.Status))))
	if _, known := orderStatusTransitions[target]; !known && !target.IsTerminal() {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, cmd.Status)
	}

	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if !CanTransitionStatus(order.Status, target) {
		s.metrics.ObserveTransition("status", string(KindInvalidTransition))
		return Order{}, fmt.Errorf("%w: status %s cannot move to %s", ErrInvalidTransition, order.Status, target)
	}
	if target == domain.OrderStatusCancelled {
		return s.cancel(ctx, order, cmd.Notes, cmd.ActorID, domain.HistoryStatusChanged)
	}

	now := s.clock()
	updated := order
	updated.Status = target
	stampStatus(&updated, target, now)

	err = s.persist(ctx, order, &updated, AuditEntry{
		Action:  domain.HistoryStatusChanged,
		ActorID: cmd.ActorID,
		From:    string(order.Status),
		To:      string(target),
		Note:    cmd.Notes,
	}, now)
	s.metrics.ObserveTransition("status", outcomeOf(err))
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, OrderEvent{
		Type:        EventStatusChanged,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OwnerKey:    updated.Owner.Key(),
		From:        string(order.Status),
		To:          string(updated.Status),
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
	})
	return updated, nil
}

func (s *orderService) TransitionPaymentStatus(ctx context.Context, cmd PaymentTransitionCommand) (Order, error) {
	target := PaymentStatus(strings.ToUpper(strings.TrimSpace(string(cmd.Status))))
	switch target {
	case domain.PaymentStatusPending, domain.PaymentStatusPaid, domain.PaymentStatusFailed,
		domain.PaymentStatusPartiallyRefunded, domain.PaymentStatusRefunded:
	default:
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrInvalidInput, cmd.Status)
	}

	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if !CanTransitionPayment(order.PaymentStatus, target) {
		s.metrics.ObserveTransition("payment", string(KindInvalidTransition))
		return Order{}, fmt.Errorf("%w: payment status %s cannot move to %s", ErrInvalidTransition, order.PaymentStatus, target)
	}
	// Refund states carry an amount; only ProcessRefund can reach them.
	if target == domain.PaymentStatusRefunded || target == domain.PaymentStatusPartiallyRefunded {
		s.metrics.ObserveTransition("payment", string(KindInvalidTransition))
		return Order{}, fmt.Errorf("%w: payment status %s is set by processing a refund", ErrInvalidTransition, target)
	}

	now := s.clock()
	updated := order
	updated.PaymentStatus = target
	if intent := strings.TrimSpace(cmd.PaymentIntentID); intent != "" {
		updated.PaymentIntentID = intent
	}
	if target == domain.PaymentStatusPaid {
		updated.PaidAt = &now
	}

	err = s.persist(ctx, order, &updated, AuditEntry{
		Action:  domain.HistoryPaymentStatusChanged,
		ActorID: cmd.ActorID,
		From:    string(order.PaymentStatus),
		To:      string(target),
		Note:    cmd.Notes,
	}, now)
	s.metrics.ObserveTransition("payment", outcomeOf(err))
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, OrderEvent{
		Type:        EventPaymentStatusChanged,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OwnerKey:    updated.Owner.Key(),
		From:        string(order.PaymentStatus),
		To:          string(updated.PaymentStatus),
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
	})
	return updated, nil
}

// CancelOrder is the customer and staff cancellation path, legal only before shipping.
// Payment is never refunded automatically.
func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error) {
	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if !slices.Contains(cancellableStatuses, order.Status) {
		s.metrics.ObserveTransition("cancel", string(KindInvalidTransition))
		return Order{}, fmt.Errorf("%w: order in status %s cannot be cancelled", ErrInvalidTransition, order.Status)
	}
	return s.cancel(ctx, order, cmd.Reason, cmd.ActorID, domain.HistoryCancelled)
}

// cancel returns the order's inventory and deal claims, then persists CANCELLED. If the
// order write fails, the returned inventory is taken back so the ledger matches the order.
func (s *orderService) cancel(ctx context.Context, order Order, reason, actor string, action domain.HistoryAction) (Order, error) {
	now := s.clock()
	updated := order
	updated.Status = domain.OrderStatusCancelled
	updated.CancelReason = sanitizeNote(reason)
	stampStatus(&updated, domain.OrderStatusCancelled, now)

	lines := order.InventoryLines()
	var undo compensations
	// Units are committed at order creation, so unshipped stock goes back on hand.
	if order.InventoryState == domain.InventoryCommitted && order.ShippedAt == nil {
		if err := s.inventory.RestockLines(ctx, lines); err != nil {
			return Order{}, err
		}
		undo.add("deduct after failed cancel", func(c context.Context) error { return s.inventory.DeductLines(c, lines) })
		updated.InventoryState = domain.InventoryReturned
	}

	if claims := order.DealClaims(); len(claims) > 0 && s.deals != nil && order.ShippedAt == nil {
		if err := s.deals.Unclaim(ctx, claims, now); err != nil {
			undo.run(context.WithoutCancel(ctx), s.logger)
			return Order{}, mapRepositoryError(err, "deal claims")
		}
		undo.add("reclaim deals after failed cancel", func(c context.Context) error { return s.deals.Claim(c, claims, nil, now) })
	}

	err := s.persist(ctx, order, &updated, AuditEntry{
		Action:  action,
		ActorID: actor,
		From:    string(order.Status),
		To:      string(domain.OrderStatusCancelled),
		Note:    reason,
		Metadata: map[string]any{
			"inventory": string(updated.InventoryState),
		},
	}, now)
	s.metrics.ObserveTransition("cancel", outcomeOf(err))
	if err != nil {
		undo.run(context.WithoutCancel(ctx), s.logger)
		return Order{}, err
	}
	s.dispatch(ctx, OrderEvent{
		Type:        EventOrderCancelled,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OwnerKey:    updated.Owner.Key(),
		From:        string(order.Status),
		To:          string(updated.Status),
		ActorID:     actor,
		OccurredAt:  now,
	})
	return updated, nil
}

// ProcessRefund records a refund against the order. Cumulative refunds equal to the final
// amount mark the payment REFUNDED, anything less PARTIALLY_REFUNDED. The fulfilment
// status is left alone.
func (s *orderService) ProcessRefund(ctx context.Context, cmd RefundCommand) (Order, error) {
	if cmd.Amount <= 0 {
		return Order{}, fmt.Errorf("%w: refund amount must be positive, got %s", ErrRefundExceedsOrder, cmd.Amount)
	}
	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if !slices.Contains(refundableStatuses, order.PaymentStatus) {
		s.metrics.ObserveTransition("refund", string(KindRefundNotEligible))
		return Order{}, fmt.Errorf("%w: payment status is %s", ErrRefundNotEligible, order.PaymentStatus)
	}
	if refundable := order.RefundableAmount(); cmd.Amount > refundable {
		s.metrics.ObserveTransition("refund", string(KindRefundExceedsOrder))
		return Order{}, fmt.Errorf("%w: requested %s, refundable %s of %s", ErrRefundExceedsOrder,
			cmd.Amount.Format(order.Currency), refundable.Format(order.Currency), order.Totals.Final.Format(order.Currency))
	}

	refundID := ""
	if s.refunds != nil && order.PaymentIntentID != "" {
		refundID, err = s.refunds.Refund(ctx, RefundRequest{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			PaymentIntentID: order.PaymentIntentID,
			Amount:          cmd.Amount,
			Currency:        order.Currency,
			Reason:          cmd.Reason,
			IdempotencyKey:  cmd.IdempotencyKey,
		})
		if err != nil {
			s.metrics.ObserveTransition("refund", string(KindUnavailable))
			return Order{}, fmt.Errorf("%w: payment provider refund failed: %v", ErrUnavailable, err)
		}
	}

	now := s.clock()
	updated := order
	updated.RefundedAmount = order.RefundedAmount + cmd.Amount
	if updated.RefundedAmount == order.Totals.Final {
		updated.PaymentStatus = domain.PaymentStatusRefunded
	} else {
		updated.PaymentStatus = domain.PaymentStatusPartiallyRefunded
	}

	metadata := map[string]any{"refundedTotal": updated.RefundedAmount}
	if refundID != "" {
		metadata["providerRefundId"] = refundID
	}
	err = s.persist(ctx, order, &updated, AuditEntry{
		Action:   domain.HistoryRefundProcessed,
		ActorID:  cmd.ActorID,
		From:     string(order.PaymentStatus),
		To:       string(updated.PaymentStatus),
		Amount:   cmd.Amount,
		Note:     cmd.Reason,
		Metadata: metadata,
	}, now)
	s.metrics.ObserveTransition("refund", outcomeOf(err))
	if err != nil {
		if refundID != "" {
			s.logger(ctx, eventOrderIntegrityViolation, map[string]any{
				"severity":         "error",
				"orderId":          order.ID,
				"action":           string(domain.HistoryRefundProcessed),
				"providerRefundId": refundID,
				"amount":           cmd.Amount.String(),
				"error":            err.Error(),
			})
		}
		return Order{}, err
	}
	s.dispatch(ctx, OrderEvent{
		Type:        EventRefundProcessed,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OwnerKey:    updated.Owner.Key(),
		From:        string(order.PaymentStatus),
		To:          string(updated.PaymentStatus),
		Amount:      cmd.Amount,
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
	})
	return updated, nil
}

func (s *orderService) ReassignOrder(ctx context.Context, cmd ReassignCommand) (Order, error) {
	assignee := strings.TrimSpace(cmd.AssigneeID)
	if assignee == "" {
		return Order{}, fmt.Errorf("%w: assignee id is required", ErrInvalidInput)
	}
	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	if order.Status.IsTerminal() {
		return Order{}, fmt.Errorf("%w: order in status %s cannot be reassigned", ErrInvalidTransition, order.Status)
	}

	now := s.clock()
	updated := order
	updated.AssigneeID = assignee
	err = s.persist(ctx, order, &updated, AuditEntry{
		Action:  domain.HistoryReassigned,
		ActorID: cmd.ActorID,
		From:    order.AssigneeID,
		To:      assignee,
	}, now)
	s.metrics.ObserveTransition("reassign", outcomeOf(err))
	if err != nil {
		return Order{}, err
	}
	s.dispatch(ctx, OrderEvent{
		Type:        EventOrderReassigned,
		OrderID:     updated.ID,
		OrderNumber: updated.OrderNumber,
		OwnerKey:    updated.Owner.Key(),
		From:        order.AssigneeID,
		To:          assignee,
		ActorID:     cmd.ActorID,
		OccurredAt:  now,
	})
	return updated, nil
}

// AddNote appends to the internal notes, one note per line.
func (s *orderService) AddNote(ctx context.Context, cmd AddNoteCommand) (Order, error) {
	note := sanitizeNote(cmd.Note)
	if note == "" {
		return Order{}, fmt.Errorf("%w: note is required", ErrInvalidInput)
	}
	ctx, order, release, err := s.loadLocked(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}
	defer release()

	notes := note
	if order.Notes != "" {
		notes = order.Notes + "\n" + note
	}
	if len(notes) > maxOrderNotesLength {
		return Order{}, fmt.Errorf("%w: internal notes exceed %d characters", ErrInvalidInput, maxOrderNotesLength)
	}

	now := s.clock()
	updated := order
	updated.Notes = notes
	err = s.persist(ctx, order, &updated, AuditEntry{
		Action:  domain.HistoryNoteAdded,
		ActorID: cmd.ActorID,
		Note:    note,
	}, now)
	s.metrics.ObserveTransition("note", outcomeOf(err))
	if err != nil {
		return Order{}, err
	}
	return updated, nil
}

func stampStatus(order *Order, status OrderStatus, now time.Time) {
	switch status {
	case domain.OrderStatusShipped:
		order.ShippedAt = &now
	case domain.OrderStatusDelivered:
		order.DeliveredAt = &now
	case domain.OrderStatusCancelled:
		if order.CancelledAt == nil {
			order.CancelledAt = &now
		}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return string(KindOf(err))
}
