package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxClaimAttempts bounds how often AssignSeat re-selects after losing a
// claim to a concurrent transaction.
const maxClaimAttempts = 3

const notifyTimeout = 30 * time.Second

// AssignSeat gives the oldest unassigned seat of an owned subscription to
// email.
func (s *Service) AssignSeat(ctx context.Context, subscriptionID string, req domain.AssignSeatRequest) (*domain.Entitlement, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	id, err := parseID(subscriptionID, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidEmail, err)
	}

	var assigneeUserID *snowflake.ID
	if actor.Email != "" && actor.Email == req.Email {
		assigneeUserID = &actor.UserID
	}

	var (
		subscription *domain.Subscription
		claimed      *domain.Entitlement
	)
	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		claimed = nil
		owned, err := s.ownedSubscription(ctx, tx, actor, id)
		if err != nil {
			return err
		}
		subscription = owned
		if subscription.Status.Ended() {
			return domain.ErrSubscriptionCanceled
		}

		for attempt := 0; attempt < maxClaimAttempts; attempt++ {
			candidate, err := s.repo.NextUnassignedForUpdate(ctx, tx, subscription.ID)
			if err != nil {
				return err
			}
			if candidate == nil {
				return domain.ErrNoAvailableSeat
			}

			now := s.clock.Now()
			ok, err := s.repo.ClaimEntitlement(ctx, tx, candidate.ID, req.Email, assigneeUserID, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}

			candidate.Status = domain.EntitlementAssigned
			candidate.AssigneeEmail = &req.Email
			candidate.AssigneeUserID = assigneeUserID
			candidate.UpdatedAt = now
			claimed = candidate
			break
		}
		if claimed == nil {
			return domain.ErrNoAvailableSeat
		}

		return s.auditSvc.AuditLog(ctx, tx, "", nil, "entitlement.assign", "entitlement", idPtr(claimed.ID),
			map[string]any{
				"subscription_id": subscription.ID.String(),
				"assignee_email":  req.Email,
			},
		)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNoAvailableSeat) {
			s.metrics.RecordSeatAssignment(ctx, "no_available_seat")
		}
		return nil, err
	}

	s.metrics.RecordSeatAssignment(ctx, "assigned")
	s.notifySeatAssigned(ctx, actor, subscription, req.Email)
	return claimed, nil
}

// UnassignSeat frees a seat. Freeing an unassigned seat is a no-op.
func (s *Service) UnassignSeat(ctx context.Context, subscriptionID, entitlementID string) (*domain.Entitlement, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	subID, err := parseID(subscriptionID, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	entID, err := parseID(entitlementID, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var out *domain.Entitlement
	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if _, err := s.ownedSubscription(ctx, tx, actor, subID); err != nil {
			if errors.Is(err, domain.ErrSubscriptionNotFound) {
				return domain.ErrEntitlementNotFound
			}
			return err
		}

		entitlement, err := s.repo.FindEntitlement(ctx, tx, subID, entID)
		if err != nil {
			return err
		}
		if entitlement == nil {
			return domain.ErrEntitlementNotFound
		}

		switch entitlement.Status {
		case domain.EntitlementRevoked:
			return domain.ErrEntitlementRevoked
		case domain.EntitlementUnassigned:
			out = entitlement
			return nil
		}

		now := s.clock.Now()
		released, err := s.repo.ReleaseEntitlement(ctx, tx, entitlement.ID, now)
		if err != nil {
			return err
		}
		if !released {
			return domain.ErrEntitlementRevoked
		}

		previous := ""
		if entitlement.AssigneeEmail != nil {
			previous = *entitlement.AssigneeEmail
		}
		entitlement.Status = domain.EntitlementUnassigned
		entitlement.AssigneeEmail = nil
		entitlement.AssigneeUserID = nil
		entitlement.UpdatedAt = now
		out = entitlement

		return s.auditSvc.AuditLog(ctx, tx, "", nil, "entitlement.unassign", "entitlement", idPtr(entitlement.ID),
			map[string]any{
				"subscription_id":         subID.String(),
				"previous_assignee_email": previous,
			},
		)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// notifySeatAssigned emails the new seat holder after commit. Failures are
// logged only.
func (s *Service) notifySeatAssigned(ctx context.Context, actor actorcontext.Actor, subscription *domain.Subscription, to string) {
	if s.mailer == nil || subscription == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	log := s.log.With(
		zap.String("subscription_id", subscription.ID.String()),
		zap.String("owner_id", actor.UserID.String()),
	)

	s.notify(func() {
		ctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()

		planName := "your subscription"
		if plan, err := s.planSvc.Lookup(ctx, subscription.PlanID); err == nil && plan != nil {
			planName = plan.Name
		}

		err := s.mailer.SendTemplate(ctx, []string{to}, "seat_assigned", map[string]any{
			"owner_email":   actor.Email,
			"plan_name":     planName,
			"dashboard_url": s.cfg.PublicURL + "/dashboard",
		})
		if err != nil {
			log.Warn("seat assignment email failed", zap.Error(err))
		}
	})
}
