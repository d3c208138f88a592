package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/seatly/internal/actorcontext"
	auditdomain "github.com/smallbiznis/seatly/internal/audit/domain"
	"github.com/smallbiznis/seatly/internal/clock"
	"github.com/smallbiznis/seatly/internal/config"
	"github.com/smallbiznis/seatly/internal/order/domain"
	paymentdomain "github.com/smallbiznis/seatly/internal/payment/domain"
	plandomain "github.com/smallbiznis/seatly/internal/plan/domain"
	"github.com/smallbiznis/seatly/pkg/db"
	"github.com/smallbiznis/seatly/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Config    config.Config
	Policy    *config.SeatPolicyHolder
	Repo      domain.Repository
	PlanSvc   plandomain.Service
	Processor paymentdomain.Processor
	AuditSvc  auditdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	cfg       config.Config
	policy    *config.SeatPolicyHolder
	repo      domain.Repository
	planSvc   plandomain.Service
	processor paymentdomain.Processor
	auditSvc  auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("order.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		cfg:       p.Config,
		policy:    p.Policy,
		repo:      p.Repo,
		planSvc:   p.PlanSvc,
		processor: p.Processor,
		auditSvc:  p.AuditSvc,
	}
}

// CreateCheckout opens a processor checkout session for the acting user.
// Quantity is a seat count; zero falls back to the plan's seat capacity.
func (s *Service) CreateCheckout(ctx context.Context, req domain.CreateCheckoutRequest) (*domain.CheckoutResponse, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil || planID == 0 {
		return nil, domain.ErrInvalidID
	}

	plan, err := s.planSvc.Lookup(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.Purchasable() {
		return nil, domain.ErrPlanNotPurchasable
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = plan.SeatCapacityPerPurchase
	}
	policy := s.policy.Get()
	if quantity < policy.MinQuantity || quantity > policy.MaxCustomerQuantity {
		return nil, domain.ErrInvalidQuantity
	}

	now := s.clock.Now()
	order := &domain.Order{
		ID:          s.genID.Generate(),
		UserID:      actor.UserID,
		PlanID:      plan.ID,
		AmountCents: plan.PriceCents * int64(quantity),
		Currency:    plan.Currency,
		Quantity:    quantity,
		Status:      domain.OrderStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, order); err != nil {
		return nil, err
	}

	session, err := s.processor.CreateCheckoutSession(ctx, paymentdomain.CheckoutSessionRequest{
		PriceID:           *plan.ExternalPriceID,
		Quantity:          int64(quantity),
		CustomerEmail:     actor.Email,
		ClientReferenceID: order.ID.String(),
		SuccessURL:        s.cfg.Stripe.SuccessURL,
		CancelURL:         s.cfg.Stripe.CancelURL,
		Metadata: map[string]string{
			"planId":   plan.ID.String(),
			"userId":   actor.UserID.String(),
			"orderId":  order.ID.String(),
			"quantity": strconv.Itoa(quantity),
		},
	})
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, s.db, order.ID, s.clock.Now()); markErr != nil {
			s.log.Warn("failed to mark order failed", zap.String("order_id", order.ID.String()), zap.Error(markErr))
		}
		return nil, err
	}

	err = db.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		if err := s.repo.SetCheckoutSession(ctx, tx, order.ID, session.ID, s.clock.Now()); err != nil {
			return err
		}

		targetID := order.ID.String()
		return s.auditSvc.AuditLog(ctx, tx, "", nil, "order.create", "order", &targetID, map[string]any{
			"plan_id":             plan.ID.String(),
			"quantity":            quantity,
			"amount_cents":        order.AmountCents,
			"checkout_session_id": session.ID,
		})
	})
	if err != nil {
		return nil, err
	}

	return &domain.CheckoutResponse{
		OrderID:   order.ID.String(),
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

func (s *Service) ListOrders(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	userID, ok := actorcontext.UserIDFromContext(ctx)
	if !ok {
		return domain.ListOrdersResponse{}, domain.ErrUnauthenticated
	}
	return s.list(ctx, &userID, req)
}

func (s *Service) AdminListOrders(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	var userID *snowflake.ID
	if raw := strings.TrimSpace(req.UserID); raw != "" {
		parsed, err := snowflake.ParseString(raw)
		if err != nil || parsed == 0 {
			return domain.ListOrdersResponse{}, domain.ErrInvalidID
		}
		userID = &parsed
	}
	return s.list(ctx, userID, req)
}

func (s *Service) list(ctx context.Context, userID *snowflake.ID, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	status := strings.ToLower(strings.TrimSpace(req.Status))
	switch domain.OrderStatus(status) {
	case "", domain.OrderStatusPending, domain.OrderStatusPaid, domain.OrderStatusFailed:
	default:
		return domain.ListOrdersResponse{}, domain.ErrInvalidStatus
	}

	cursor, err := parseCursor(req.PageToken)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, domain.ListFilter{
		UserID: userID,
		Status: status,
		Cursor: cursor,
		Limit:  pageSize,
	})
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(item *domain.Order) string {
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

	orders := make([]domain.Order, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		orders = append(orders, *item)
	}

	return domain.ListOrdersResponse{
		PageInfo: *pageInfo,
		Orders:   orders,
	}, nil
}

func (s *Service) FindByCheckoutSession(ctx context.Context, tx *gorm.DB, sessionID string) (*domain.Order, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	return s.repo.FindByCheckoutSession(ctx, s.conn(tx), sessionID)
}

func (s *Service) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	if id == 0 {
		return nil, nil
	}
	return s.repo.FindByID(ctx, s.conn(tx), id)
}

// MarkPaid flips a pending or failed order to paid and audits the
// transition. It reports false when the order was already paid.
func (s *Service) MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID) (bool, error) {
	conn := s.conn(tx)
	order, err := s.repo.FindByID(ctx, conn, id)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, domain.ErrOrderNotFound
	}

	changed, err := s.repo.MarkPaid(ctx, conn, id, s.clock.Now())
	if err != nil || !changed {
		return false, err
	}

	metadata := map[string]any{"amount_cents": order.AmountCents}
	if order.ExternalCheckoutSessionID != nil {
		metadata["checkout_session_id"] = *order.ExternalCheckoutSessionID
	}
	targetID := id.String()
	if err := s.auditSvc.AuditLog(ctx, conn, string(auditdomain.ActorTypeSystem), nil, "order.paid", "order", &targetID, metadata); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) LinkSubscription(ctx context.Context, tx *gorm.DB, id, subscriptionID snowflake.ID) error {
	linked, err := s.repo.LinkSubscription(ctx, s.conn(tx), id, subscriptionID, s.clock.Now())
	if err != nil {
		return err
	}
	if !linked {
		s.log.Debug("order already linked",
			zap.String("order_id", id.String()),
			zap.String("subscription_id", subscriptionID.String()),
		)
	}
	return nil
}

func (s *Service) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func parseCursor(token string) (*domain.OrderCursor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	decoded, err := pagination.DecodeCursor(token)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
	if err != nil {
		return nil, domain.ErrInvalidPageToken
	}
	id, err := snowflake.ParseString(strings.TrimSpace(decoded.ID))
	if err != nil || id == 0 {
		return nil, domain.ErrInvalidPageToken
	}
	return &domain.OrderCursor{ID: id, CreatedAt: createdAt}, nil
}
