package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts by external id or, on conflict, rewrites only the
	// processor-derived columns. Owner and plan are never changed.
	Upsert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalID string) (*Subscription, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Subscription, error)
	UpdateState(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	// MarkPastDue flips a live subscription to past_due. Ended rows are left
	// alone and report false.
	MarkPastDue(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// MarkCanceled sets status canceled and keeps an earlier canceled_at. It
	// reports false when the row was already canceled.
	MarkCanceled(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// ListDueForResync returns live linked subscriptions whose period ended
	// before periodEnd and that were not touched since touchedBefore.
	ListDueForResync(ctx context.Context, db *gorm.DB, periodEnd, touchedBefore time.Time, limit int) ([]*Subscription, error)

	ListEntitlements(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, includeRevoked bool) ([]Entitlement, error)
	FindEntitlement(ctx context.Context, db *gorm.DB, subscriptionID, entitlementID snowflake.ID) (*Entitlement, error)
	InsertEntitlements(ctx context.Context, db *gorm.DB, entitlements []Entitlement) error
	RevokeEntitlements(ctx context.Context, db *gorm.DB, ids []snowflake.ID, at time.Time) (int64, error)
	RevokeAllEntitlements(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID, at time.Time) (int64, error)
	// NextUnassignedForUpdate locks the oldest unassigned seat, skipping
	// rows another transaction already holds.
	NextUnassignedForUpdate(ctx context.Context, db *gorm.DB, subscriptionID snowflake.ID) (*Entitlement, error)
	// ClaimEntitlement assigns the seat only while it is still unassigned.
	ClaimEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID, email string, userID *snowflake.ID, at time.Time) (bool, error)
	ReleaseEntitlement(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
}

type ListFilter struct {
	UserID *snowflake.ID
	Status string
	Cursor *SubscriptionCursor
	Limit  int
}

type SubscriptionCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
