package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// derived holds the local fields computed from a processor snapshot.
type derived struct {
	status            domain.Status
	quantity          int
	currentPeriodEnd  time.Time
	startDate         time.Time
	cancelAtPeriodEnd bool
	canceledAt        *time.Time
	trialEndsAt       *time.Time
	priceID           *string
}

func derive(snapshot *paymentdomain.SubscriptionSnapshot, fallbackQuantity int, now time.Time) derived {
	out := derived{
		status:            MapExternalStatus(snapshot.Status),
		quantity:          1,
		startDate:         now,
		cancelAtPeriodEnd: snapshot.CancelAtPeriodEnd,
		canceledAt:        epochPtr(snapshot.CanceledAt),
		trialEndsAt:       epochPtr(snapshot.TrialEnd),
	}
	if fallbackQuantity > 0 {
		out.quantity = fallbackQuantity
	}
	if snapshot.StartDate > 0 {
		out.startDate = time.Unix(snapshot.StartDate, 0).UTC()
	}
	out.currentPeriodEnd = out.startDate

	if len(snapshot.Items) > 0 {
		item := snapshot.Items[0]
		if item.Quantity > 0 {
			out.quantity = int(item.Quantity)
		}
		if item.CurrentPeriodEnd > 0 {
			out.currentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
		}
		if priceID := strings.TrimSpace(item.PriceID); priceID != "" {
			out.priceID = &priceID
		}
	}
	return out
}

func epochPtr(epoch int64) *time.Time {
	if epoch <= 0 {
		return nil
	}
	t := time.Unix(epoch, 0).UTC()
	return &t
}

// Reconcile overwrites local subscription and seat state with a processor
// snapshot inside tx. Running it twice with the same snapshot changes
// nothing the second time.
func (s *Service) Reconcile(ctx context.Context, tx *gorm.DB, in domain.ReconcileInput) (*domain.Subscription, error) {
	if in.Snapshot == nil || strings.TrimSpace(in.Snapshot.ID) == "" {
		return nil, domain.ErrInvalidSnapshot
	}
	if in.UserID == 0 || in.PlanID == 0 {
		return nil, fmt.Errorf("%w: owner and plan are required", domain.ErrInvalidSnapshot)
	}
	conn := s.conn(tx)

	now := s.clock.Now()
	externalID := strings.TrimSpace(in.Snapshot.ID)
	fields := derive(in.Snapshot, in.FallbackQuantity, now)

	row := &domain.Subscription{
		ID:                     s.genID.Generate(),
		UserID:                 in.UserID,
		PlanID:                 in.PlanID,
		ExternalSubscriptionID: &externalID,
		Status:                 fields.status,
		Quantity:               fields.quantity,
		CurrentPeriodEnd:       fields.currentPeriodEnd,
		StartDate:              fields.startDate,
		CancelAtPeriodEnd:      fields.cancelAtPeriodEnd,
		CanceledAt:             fields.canceledAt,
		TrialEndsAt:            fields.trialEndsAt,
		PriceID:                fields.priceID,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := s.repo.Upsert(ctx, conn, row); err != nil {
		return nil, fmt.Errorf("upsert subscription %s: %w", externalID, err)
	}

	subscription, err := s.repo.FindByExternalID(ctx, conn, externalID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, fmt.Errorf("subscription %s missing after upsert", externalID)
	}

	if in.OrderID != nil && *in.OrderID != 0 {
		if err := s.settleOrder(ctx, conn, *in.OrderID, subscription); err != nil {
			return nil, err
		}
	}

	if err := s.ResizePool(ctx, conn, subscription.ID, poolTarget(subscription)); err != nil {
		return nil, err
	}

	err = s.auditSvc.AuditLog(ctx, conn, string(auditdomain.ActorTypeSystem), nil,
		"subscription.sync", "subscription", idPtr(subscription.ID),
		map[string]any{
			"status":                   string(subscription.Status),
			"quantity":                 subscription.Quantity,
			"external_subscription_id": externalID,
		},
	)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReconciliation(ctx, string(subscription.Status))
	return subscription, nil
}

func (s *Service) settleOrder(ctx context.Context, tx *gorm.DB, orderID snowflake.ID, subscription *domain.Subscription) error {
	if err := s.orderSvc.LinkSubscription(ctx, tx, orderID, subscription.ID); err != nil {
		return err
	}
	if _, err := s.orderSvc.MarkPaid(ctx, tx, orderID); err != nil {
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			s.log.Warn("order referenced by subscription not found",
				zap.String("order_id", orderID.String()),
				zap.String("subscription_id", subscription.ID.String()),
			)
			return nil
		}
		return err
	}
	return nil
}

// Sync runs Reconcile in its own transaction.
func (s *Service) Sync(ctx context.Context, in domain.ReconcileInput) (*domain.Subscription, error) {
	var out *domain.Subscription
	err := db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		subscription, err := s.Reconcile(ctx, tx, in)
		if err != nil {
			return err
		}
		out = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) FindByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*domain.Subscription, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, nil
	}
	return s.repo.FindByExternalID(ctx, s.conn(tx), externalID)
}

// poolTarget is the live seat count a subscription should hold. Ended
// subscriptions keep their purchased quantity but no seats.
func poolTarget(subscription *domain.Subscription) int {
	if subscription.Status.Ended() {
		return 0
	}
	return subscription.Quantity
}

// MarkPastDue flags a failed renewal without a full resync. Only the status
// is written; an ended subscription stays ended.
func (s *Service) MarkPastDue(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription, invoiceID string) error {
	conn := s.conn(tx)
	now := s.clock.Now()
	changed, err := s.repo.MarkPastDue(ctx, conn, subscription.ID, now)
	if err != nil {
		return err
	}
	if !changed {
		s.log.Debug("payment failure for ended subscription ignored",
			zap.String("subscription_id", subscription.ID.String()),
			zap.String("invoice_id", invoiceID),
		)
		return nil
	}
	subscription.Status = domain.StatusPastDue
	subscription.UpdatedAt = now

	return s.auditSvc.AuditLog(ctx, conn, string(auditdomain.ActorTypeSystem), nil,
		"subscription.payment_failed", "subscription", idPtr(subscription.ID),
		map[string]any{"invoice_id": invoiceID},
	)
}

// Cancel ends a subscription locally and revokes every live seat. action
// names the audit entry. Canceling again writes nothing unless live seats
// remain.
func (s *Service) Cancel(ctx context.Context, tx *gorm.DB, subscription *domain.Subscription, action string) error {
	conn := s.conn(tx)
	now := s.clock.Now()

	changed, err := s.repo.MarkCanceled(ctx, conn, subscription.ID, now)
	if err != nil {
		return err
	}
	revoked, err := s.repo.RevokeAllEntitlements(ctx, conn, subscription.ID, now)
	if err != nil {
		return err
	}

	if subscription.CanceledAt == nil {
		subscription.CanceledAt = &now
	}
	subscription.Status = domain.StatusCanceled
	if !changed && revoked == 0 {
		return nil
	}
	subscription.UpdatedAt = now
	s.metrics.RecordPoolResize(ctx, "revoke_all", int(revoked))

	metadata := map[string]any{"revoked_seats": revoked}
	if subscription.ExternalSubscriptionID != nil {
		metadata["external_subscription_id"] = *subscription.ExternalSubscriptionID
	}
	return s.auditSvc.AuditLog(ctx, conn, "", nil, action, "subscription", idPtr(subscription.ID), metadata)
}
