package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	SetCheckoutSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID string, at time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByCheckoutSession(ctx context.Context, db *gorm.DB, sessionID string) (*Order, error)
	// MarkPaid reports whether the row moved to paid on this call.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) (bool, error)
	// MarkFailed only touches pending orders.
	MarkFailed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	// LinkSubscription sets subscription_id only when it is still empty.
	LinkSubscription(ctx context.Context, db *gorm.DB, id, subscriptionID snowflake.ID, at time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Order, error)
}

type ListFilter struct {
	UserID *snowflake.ID
	Status string
	Cursor *OrderCursor
	Limit  int
}

type OrderCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
