package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateCheckoutRequest struct {
	PlanID   string `json:"plan_id" binding:"required"`
	Quantity int    `json:"quantity"`
}

type CheckoutResponse struct {
	OrderID   string `json:"order_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type ListOrdersRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	UserID string `form:"user_id"`
}

type ListOrdersResponse struct {
	pagination.PageInfo
	Orders []Order `json:"orders"`
}

type Service interface {
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (*CheckoutResponse, error)
	// ListOrders lists the acting user's orders.
	ListOrders(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)
	AdminListOrders(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)

	FindByCheckoutSession(ctx context.Context, tx *gorm.DB, sessionID string) (*Order, error)
	FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Order, error)
	MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error)
	LinkSubscription(ctx context.Context, tx *gorm.DB, id, subscriptionID snowflake.ID) error
}

var (
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrPlanNotPurchasable = errors.New("plan_not_purchasable")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrUnauthenticated    = errors.New("unauthenticated")
)
