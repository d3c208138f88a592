package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func decode(event *paymentdomain.Event, out any) error {
	if len(event.Object) == 0 {
		return fmt.Errorf("%w: %s has no data object", paymentdomain.ErrInvalidPayload, event.Type)
	}
	if err := json.Unmarshal(event.Object, out); err != nil {
		return fmt.Errorf("%w: %w", paymentdomain.ErrInvalidPayload, err)
	}
	return nil
}

// handleCheckoutCompleted creates or refreshes the subscription bought in a
// checkout session and settles its order.
func (s *Service) handleCheckoutCompleted(ctx context.Context, event *paymentdomain.Event) error {
	var session checkoutSession
	if err := decode(event, &session); err != nil {
		return err
	}
	log := s.log.With(zap.String("event_id", event.ID), zap.String("checkout_session_id", session.ID))

	externalID := session.Subscription.String()
	if externalID == "" {
		log.Debug("checkout session without subscription")
		return nil
	}

	planID, okPlan := metadataID(session.Metadata, "planId")
	userID, okUser := metadataID(session.Metadata, "userId")
	if !okPlan || !okUser {
		log.Warn("checkout session missing plan or user metadata; dropping",
			zap.String("subscription_id", externalID),
		)
		return nil
	}
	fallback, _ := strconv.Atoi(strings.TrimSpace(session.Metadata["quantity"]))

	snapshot, err := s.processor.GetSubscription(ctx, externalID)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		order, err := s.findOrder(ctx, tx, session)
		if err != nil {
			return err
		}
		in := subscriptiondomain.ReconcileInput{
			Snapshot:         snapshot,
			UserID:           userID,
			PlanID:           planID,
			FallbackQuantity: fallback,
		}
		if order != nil {
			in.OrderID = &order.ID
		} else {
			log.Warn("no order for checkout session")
		}
		_, err = s.reconciler.Reconcile(ctx, tx, in)
		return err
	})
}

func (s *Service) findOrder(ctx context.Context, tx *gorm.DB, session checkoutSession) (*orderdomain.Order, error) {
	order, err := s.orderSvc.FindByCheckoutSession(ctx, tx, session.ID)
	if err != nil || order != nil {
		return order, err
	}
	orderID, ok := metadataID(session.Metadata, "orderId")
	if !ok {
		if orderID, ok = parseID(session.ClientReferenceID); !ok {
			return nil, nil
		}
	}
	return s.orderSvc.FindByID(ctx, tx, orderID)
}

// handleInvoicePaid refreshes a known subscription after a renewal.
func (s *Service) handleInvoicePaid(ctx context.Context, event *paymentdomain.Event) error {
	var inv invoice
	if err := decode(event, &inv); err != nil {
		return err
	}
	return s.resync(ctx, inv.subscriptionID())
}

func (s *Service) handleInvoiceFailed(ctx context.Context, event *paymentdomain.Event) error {
	var inv invoice
	if err := decode(event, &inv); err != nil {
		return err
	}
	externalID := inv.subscriptionID()
	if externalID == "" {
		return nil
	}

	return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		subscription, err := s.reconciler.FindByExternalID(ctx, tx, externalID)
		if err != nil || subscription == nil {
			return err
		}
		return s.reconciler.MarkPastDue(ctx, tx, subscription, inv.ID)
	})
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *paymentdomain.Event) error {
	var object subscriptionObject
	if err := decode(event, &object); err != nil {
		return err
	}
	return s.resync(ctx, strings.TrimSpace(object.ID))
}

// handleSubscriptionDeleted cancels locally. A subscription a sync already
// marked canceled still loses any seat left live.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *paymentdomain.Event) error {
	var object subscriptionObject
	if err := decode(event, &object); err != nil {
		return err
	}
	externalID := strings.TrimSpace(object.ID)
	if externalID == "" {
		return nil
	}

	return db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		subscription, err := s.reconciler.FindByExternalID(ctx, tx, externalID)
		if err != nil || subscription == nil {
			return err
		}
		return s.reconciler.Cancel(ctx, tx, subscription, "subscription.canceled")
	})
}

// resync re-fetches a subscription we already track and reconciles it,
// keeping the local owner and plan. Unknown subscriptions are skipped; the
// checkout event creates them.
func (s *Service) resync(ctx context.Context, externalID string) error {
	if externalID == "" {
		return nil
	}
	local, err := s.reconciler.FindByExternalID(ctx, nil, externalID)
	if err != nil {
		return err
	}
	if local == nil {
		s.log.Debug("event for unknown subscription", zap.String("subscription_id", externalID))
		return nil
	}

	snapshot, err := s.processor.GetSubscription(ctx, externalID)
	if err != nil {
		return err
	}
	_, err = s.reconciler.Sync(ctx, subscriptiondomain.ReconcileInput{
		Snapshot:         snapshot,
		UserID:           local.UserID,
		PlanID:           local.PlanID,
		FallbackQuantity: local.Quantity,
	})
	return err
}

func metadataID(metadata map[string]string, key string) (snowflake.ID, bool) {
	if metadata == nil {
		return 0, false
	}
	return parseID(metadata[key])
}

func parseID(raw string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
