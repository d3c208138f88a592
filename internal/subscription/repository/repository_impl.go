package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, user_id, plan_id, external_subscription_id, status, quantity,
	current_period_end, start_date, cancel_at_period_end, canceled_at, trial_ends_at, price_id,
	created_at, updated_at`

const entitlementColumns = `id, subscription_id, status, assignee_email, assignee_user_id, created_at, updated_at`

// derivedColumns are the columns a processor sync owns.
var derivedColumns = []string{
	"status",
	"quantity",
	"current_period_end",
	"start_date",
	"cancel_at_period_end",
	"canceled_at",
	"trial_ends_at",
	"price_id",
	"updated_at",
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_subscription_id"}},
		DoUpdates: clause.AssignmentColumns(derivedColumns),
	}).Create(subscription).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = ?`,
		id,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate}).
		Where("id = ?", id).
		Limit(1).
		Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE external_subscription_id = ?`,
		externalID,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Subscription, error) {
	var items []*domain.Subscription
	stmt := db.WithContext(ctx).Model(&domain.Subscription{})

	if filter.UserID != nil {
		stmt = stmt.Where("user_id = ?", *filter.UserID)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpdateState(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, quantity = ?, cancel_at_period_end = ?, canceled_at = ?, updated_at = ?
		 WHERE id = ?`,
		subscription.Status,
		subscription.Quantity,
		subscription.CancelAtPeriodEnd,
		subscription.CanceledAt,
		subscription.UpdatedAt,
		subscription.ID,
	).Error
}

func (r *repo) MarkPastDue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN ?`,
		domain.StatusPastDue,
		at,
		id,
		[]domain.Status{domain.StatusCanceled, domain.StatusExpired},
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET status = ?, canceled_at = COALESCE(canceled_at, ?), updated_at = ?
		 WHERE id = ? AND (status <> ? OR canceled_at IS NULL)`,
		domain.StatusCanceled,
		at,
		at,
		id,
		domain.StatusCanceled,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListDueForResync(ctx context.Context, db *gorm.DB, periodEnd, touchedBefore time.Time, limit int) ([]*domain.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	var items []*domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE external_subscription_id IS NOT NULL
		   AND status IN ?
		   AND current_period_end <= ?
		   AND updated_at <= ?
		 ORDER BY current_period_end ASC, id ASC
		 LIMIT ?`,
		[]domain.Status{domain.StatusTrialing, domain.StatusActive, domain.StatusPastDue},
		periodEnd,
		touchedBefore,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListEntitlements(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, includeRevoked bool) ([]domain.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE subscription_id = ?`
	args := []any{subscriptionID}
	if !includeRevoked {
		query += ` AND status <> ?`
		args = append(args, domain.EntitlementRevoked)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	var items []domain.Entitlement
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindEntitlement(ctx context.Context, db *gorm.DB, subscriptionID, entitlementID snowflake.ID) (*domain.Entitlement, error) {
	var entitlement domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT `+entitlementColumns+` FROM entitlements WHERE id = ? AND subscription_id = ?`,
		entitlementID,
		subscriptionID,
	).Scan(&entitlement).Error
	if err != nil {
		return nil, err
	}
	if entitlement.ID == 0 {
		return nil, nil
	}
	return &entitlement, nil
}

func (r *repo) InsertEntitlements(ctx context.Context, db *gorm.DB, entitlements []domain.Entitlement) error {
	if len(entitlements) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&entitlements).Error
}

func (r *repo) RevokeEntitlements(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements SET status = ?, updated_at = ? WHERE id IN ? AND status <> ?`,
		domain.EntitlementRevoked, at, ids, domain.EntitlementRevoked,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) RevokeAllEntitlements(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, at time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements SET status = ?, updated_at = ? WHERE subscription_id = ? AND status <> ?`,
		domain.EntitlementRevoked, at, subscriptionID, domain.EntitlementRevoked,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) NextUnassignedForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*domain.Entitlement, error) {
	var entitlement domain.Entitlement
	err := db.WithContext(ctx).
		Clauses(clause.Locking{
			Strength: clause.LockingStrengthUpdate,
			Options:  clause.LockingOptionsSkipLocked,
		}).
		Where("subscription_id = ? AND status = ?", subscriptionID, domain.EntitlementUnassigned).
		Order("created_at asc, id asc").
		Limit(1).
		Find(&entitlement).Error
	if err != nil {
		return nil, err
	}
	if entitlement.ID == 0 {
		return nil, nil
	}
	return &entitlement, nil
}

func (r *repo) ClaimEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID, email string, userID *snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET status = ?, assignee_email = ?, assignee_user_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.EntitlementAssigned, email, userID, at, id, domain.EntitlementUnassigned,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ReleaseEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE entitlements
		 SET status = ?, assignee_email = NULL, assignee_user_id = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.EntitlementUnassigned, at, id, domain.EntitlementAssigned,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
