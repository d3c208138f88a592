package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"github.com/smallbiznis/seatly/pkg/db/pagination"
	"gorm.io/gorm"
)

func (s *Service) AdminListSubscriptions(ctx context.Context, req domain.ListSubscriptionRequest) (domain.ListSubscriptionResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	if status != "" && !domain.Status(status).Valid() {
		return domain.ListSubscriptionResponse{}, domain.ErrInvalidStatus
	}

	var userID *snowflake.ID
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		parsed, err := parseID(raw, domain.ErrInvalidID)
		if err != nil {
			return domain.ListSubscriptionResponse{}, err
		}
		userID = &parsed
	}

	cursor, err := parseCursor(req.PageToken)
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		UserID: userID,
		Status: status,
		Cursor: cursor,
		Limit:  pageSize,
	})
	if err != nil {
		return domain.ListSubscriptionResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Subscription) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID.String(),
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	subscriptions := make([]domain.Subscription, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		subscriptions = append(subscriptions, *item)
	}

	return domain.ListSubscriptionResponse{
		PageInfo:      *pageInfo,
		Subscriptions: subscriptions,
	}, nil
}

// AdminUpdateSubscription overrides status and quantity locally and resizes
// the seat pool in the same transaction. An ended status empties the pool.
// The processor is not called.
func (s *Service) AdminUpdateSubscription(ctx context.Context, id string, req domain.AdminUpdateRequest) (*domain.Subscription, error) {
	subscriptionID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}
	if req.Status == nil && req.Quantity == nil {
		return nil, domain.ErrEmptyUpdate
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	if req.Quantity != nil {
		policy := s.policy.Get()
		if *req.Quantity < policy.MinQuantity || *req.Quantity > policy.MaxAdminQuantity {
			return nil, fmt.Errorf("%w: quantity must be between %d and %d",
				domain.ErrInvalidQuantity, policy.MinQuantity, policy.MaxAdminQuantity)
		}
	}

	var out *domain.Subscription
	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}

		changes := map[string]any{}
		if req.Status != nil {
			changes["previous_status"] = string(subscription.Status)
			changes["status"] = string(*req.Status)
			subscription.Status = *req.Status
		}
		if req.Quantity != nil {
			changes["previous_quantity"] = subscription.Quantity
			changes["quantity"] = *req.Quantity
			subscription.Quantity = *req.Quantity
		}
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateState(ctx, tx, subscription); err != nil {
			return err
		}
		if err := s.ResizePool(ctx, tx, subscription.ID, poolTarget(subscription)); err != nil {
			return err
		}
		out = subscription

		return s.auditSvc.AuditLog(ctx, tx, "", nil, "subscription.admin_update", "subscription", idPtr(subscription.ID), changes)
	})
	if err != nil {
		return nil, err
	}
	return s.withEntitlements(ctx, s.db, out)
}

// AdminCancelSubscription cancels locally and revokes every seat. Canceling
// an already canceled subscription only revokes seats that are still live.
func (s *Service) AdminCancelSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	subscriptionID, err := parseID(id, domain.ErrInvalidID)
	if err != nil {
		return nil, err
	}

	var out *domain.Subscription
	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return domain.ErrSubscriptionNotFound
		}
		out = subscription
		return s.Cancel(ctx, tx, subscription, "subscription.admin_cancel")
	})
	if err != nil {
		return nil, err
	}
	return s.withEntitlements(ctx, s.db, out)
}
