package service

import (
	"context"
	"fmt"

	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"gorm.io/gorm"
)

func (s *Service) ListSubscriptions(ctx context.Context) ([]domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db, domain.ListFilter{UserID: &actor.UserID})
	if err != nil {
		return nil, err
	}

	out := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		out = append(out, *item)
	}
	return out, nil
}

func (s *Service) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	subscriptionID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.ownedSubscription(ctx, s.db, actor, subscriptionID)
	if err != nil {
		return nil, err
	}
	return s.withEntitlements(ctx, s.db, subscription)
}

func (s *Service) ListEntitlements(ctx context.Context, subscriptionID string) ([]domain.Entitlement, error) {
	subscription, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	return subscription.Entitlements, nil
}

// UpdateSubscription applies a customer action at the processor and syncs
// the returned snapshot. Owner and plan are kept.
func (s *Service) UpdateSubscription(ctx context.Context, id string, action domain.Action) (*domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	subscriptionID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	subscription, err := s.ownedSubscription(ctx, s.db, actor, subscriptionID)
	if err != nil {
		return nil, err
	}
	if subscription.ExternalSubscriptionID == nil || *subscription.ExternalSubscriptionID == "" {
		return nil, domain.ErrSubscriptionNotLinked
	}
	if subscription.Status.Ended() {
		return nil, domain.ErrSubscriptionCanceled
	}
	externalID := *subscription.ExternalSubscriptionID

	var snapshot *paymentdomain.SubscriptionSnapshot
	metadata := map[string]any{"action": domain.ActionName(action)}
	switch a := action.(type) {
	case domain.ChangeQuantity:
		policy := s.policy.Get()
		if a.Quantity < policy.MinQuantity || a.Quantity > policy.MaxCustomerQuantity {
			return nil, fmt.Errorf("%w: quantity must be between %d and %d",
				domain.ErrInvalidQuantity, policy.MinQuantity, policy.MaxCustomerQuantity)
		}
		metadata["previous_quantity"] = subscription.Quantity
		metadata["quantity"] = a.Quantity
		snapshot, err = s.processor.UpdateQuantity(ctx, externalID, int64(a.Quantity))
	case domain.CancelAtPeriodEnd:
		snapshot, err = s.processor.SetCancelAtPeriodEnd(ctx, externalID, true)
	case domain.Resume:
		snapshot, err = s.processor.SetCancelAtPeriodEnd(ctx, externalID, false)
	default:
		return nil, domain.ErrInvalidAction
	}
	if err != nil {
		return nil, err
	}

	var synced *domain.Subscription
	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		out, err := s.Reconcile(ctx, tx, domain.ReconcileInput{
			Snapshot: snapshot,
			UserID:   subscription.UserID,
			PlanID:   subscription.PlanID,
		})
		if err != nil {
			return err
		}
		synced = out

		return s.auditSvc.AuditLog(ctx, tx, "", nil, "subscription.update", "subscription", idPtr(out.ID), metadata)
	})
	if err != nil {
		return nil, err
	}
	return s.withEntitlements(ctx, s.db, synced)
}
