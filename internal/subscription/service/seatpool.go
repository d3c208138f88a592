package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ResizePool makes the live seat count equal target. Growth inserts fresh
// unassigned seats. Shrinking revokes the newest seats first, assigned or
// not.
func (s *Service) ResizePool(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, target int) error {
	if target < 0 {
		return fmt.Errorf("%w: negative pool size %d", domain.ErrInvalidQuantity, target)
	}
	db := s.conn(tx)

	current, err := s.repo.ListEntitlements(ctx, db, subscriptionID, false)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	switch {
	case len(current) == target:
		return nil

	case len(current) < target:
		missing := target - len(current)
		seats := make([]domain.Entitlement, 0, missing)
		for i := 0; i < missing; i++ {
			seats = append(seats, domain.Entitlement{
				ID:             s.genID.Generate(),
				SubscriptionID: subscriptionID,
				Status:         domain.EntitlementUnassigned,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
		}
		if err := s.repo.InsertEntitlements(ctx, db, seats); err != nil {
			return err
		}
		s.metrics.RecordPoolResize(ctx, "grow", missing)
		s.log.Debug("seat pool grown",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Int("added", missing),
			zap.Int("target", target),
		)

	default:
		excess := current[target:]
		ids := make([]snowflake.ID, 0, len(excess))
		for _, seat := range excess {
			ids = append(ids, seat.ID)
		}
		if _, err := s.repo.RevokeEntitlements(ctx, db, ids, now); err != nil {
			return err
		}
		s.metrics.RecordPoolResize(ctx, "shrink", len(ids))
		s.log.Debug("seat pool shrunk",
			zap.String("subscription_id", subscriptionID.String()),
			zap.Int("revoked", len(ids)),
			zap.Int("target", target),
		)
	}
	return nil
}
