package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	"github.com/smallbiznis/seatly/pkg/db/pagination"
	"gorm.io/gorm"
)

// Action is a customer change to a subscription. Exactly one variant is
// carried per request.
type Action interface {
	actionName() string
}

type ChangeQuantity struct {
	Quantity int
}

type CancelAtPeriodEnd struct{}

type Resume struct{}

func (ChangeQuantity) actionName() string    { return "change_quantity" }
func (CancelAtPeriodEnd) actionName() string { return "cancel" }
func (Resume) actionName() string            { return "resume" }

// ActionName returns the wire name of an action.
func ActionName(a Action) string {
	if a == nil {
		return ""
	}
	return a.actionName()
}

// UpdateSubscriptionRequest is the wire form of an Action.
type UpdateSubscriptionRequest struct {
	Action   string `json:"action" binding:"required,oneof=change_quantity cancel resume"`
	Quantity *int   `json:"quantity,omitempty"`
}

func (r UpdateSubscriptionRequest) ToAction() (Action, error) {
	switch r.Action {
	case "change_quantity":
		if r.Quantity == nil {
			return nil, ErrInvalidQuantity
		}
		return ChangeQuantity{Quantity: *r.Quantity}, nil
	case "cancel":
		return CancelAtPeriodEnd{}, nil
	case "resume":
		return Resume{}, nil
	default:
		return nil, ErrInvalidAction
	}
}

type AssignSeatRequest struct {
	Email string `json:"email" validate:"required,email,max=320"`
}

type ListSubscriptionRequest struct {
	pagination.Pagination
	Status string `form:"status"`
	UserID string `form:"user_id"`
}

type ListSubscriptionResponse struct {
	pagination.PageInfo
	Subscriptions []Subscription `json:"subscriptions"`
}

type AdminUpdateRequest struct {
	Status   *Status `json:"status,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// ReconcileInput carries a processor snapshot and the local identity it
// belongs to. UserID and PlanID are only used when the row is first created.
type ReconcileInput struct {
	Snapshot         *paymentdomain.SubscriptionSnapshot
	UserID           snowflake.ID
	PlanID           snowflake.ID
	OrderID          *snowflake.ID
	FallbackQuantity int
}

// Service is the customer and admin surface over subscriptions and seats.
type Service interface {
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	GetSubscription(ctx context.Context, id string) (*Subscription, error)
	ListEntitlements(ctx context.Context, subscriptionID string) ([]Entitlement, error)
	UpdateSubscription(ctx context.Context, id string, action Action) (*Subscription, error)

	AssignSeat(ctx context.Context, subscriptionID string, req AssignSeatRequest) (*Entitlement, error)
	UnassignSeat(ctx context.Context, subscriptionID, entitlementID string) (*Entitlement, error)

	AdminListSubscriptions(ctx context.Context, req ListSubscriptionRequest) (ListSubscriptionResponse, error)
	AdminUpdateSubscription(ctx context.Context, id string, req AdminUpdateRequest) (*Subscription, error)
	AdminCancelSubscription(ctx context.Context, id string) (*Subscription, error)
}

// Reconciler applies processor state to local rows. Methods taking tx run
// on the caller's transaction and never commit on their own.
type Reconciler interface {
	Reconcile(ctx context.Context, tx *gorm.DB, in ReconcileInput) (*Subscription, error)
	Sync(ctx context.Context, in ReconcileInput) (*Subscription, error)
	ResizePool(ctx context.Context, tx *gorm.DB, subscriptionID snowflake.ID, target int) error
	FindByExternalID(ctx context.Context, tx *gorm.DB, externalID string) (*Subscription, error)
	MarkPastDue(ctx context.Context, tx *gorm.DB, subscription *Subscription, invoiceID string) error
	Cancel(ctx context.Context, tx *gorm.DB, subscription *Subscription, action string) error
}

var (
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidAction         = errors.New("invalid_action")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidEmail          = errors.New("invalid_email")
	ErrInvalidSnapshot       = errors.New("invalid_snapshot")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
	ErrUnauthenticated       = errors.New("unauthenticated")
	ErrSubscriptionNotFound  = errors.New("subscription_not_found")
	ErrEntitlementNotFound   = errors.New("entitlement_not_found")
	ErrNoAvailableSeat       = errors.New("no_available_seat")
	ErrEntitlementRevoked    = errors.New("entitlement_revoked")
	ErrSubscriptionNotLinked = errors.New("subscription_not_linked")
	ErrSubscriptionCanceled  = errors.New("subscription_canceled")
	ErrEmptyUpdate           = errors.New("empty_update")
)
